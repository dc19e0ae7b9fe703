// Package prompt builds the multimodal request body sent to the extraction model.
package prompt

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Lllllllleong/formextractionflow/internal/models"
)

const (
	DefaultAnthropicVersion = "vertex-2023-10-16"
	DefaultMaxTokens        = 2048
)

// Request is the Anthropic messages body.
type Request struct {
	AnthropicVersion string    `json:"anthropic_version"`
	MaxTokens        int       `json:"max_tokens"`
	Messages         []Message `json:"messages"`
}

type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is either an image block or a text block.
type ContentBlock struct {
	Type   string       `json:"type"`
	Source *ImageSource `json:"source,omitempty"`
	Text   string       `json:"text,omitempty"`
}

type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// Config sets the request envelope.
type Config struct {
	AnthropicVersion string
	MaxTokens        int
}

// Builder assembles one request per attachment.
type Builder struct {
	config Config
}

func NewBuilder(cfg Config) *Builder {
	if cfg.AnthropicVersion == "" {
		cfg.AnthropicVersion = DefaultAnthropicVersion
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	return &Builder{config: cfg}
}

// Build returns the serialized request: one user message holding every page
// image in page order followed by the instruction text. An empty instruction
// falls back to FormInstruction. The output is deterministic for equal input.
func (b *Builder) Build(pages []models.PageImage, instruction string) ([]byte, error) {
	req, err := b.Request(pages, instruction)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, models.PromptError("failed to serialize request", err)
	}
	return body, nil
}

// Request builds the unserialized request.
func (b *Builder) Request(pages []models.PageImage, instruction string) (*Request, error) {
	if len(pages) == 0 {
		return nil, models.PromptError("no page images to send", nil)
	}
	if strings.TrimSpace(instruction) == "" {
		instruction = FormInstruction
	}

	content := make([]ContentBlock, 0, len(pages)+1)
	for i, page := range pages {
		if len(page.Data) == 0 {
			return nil, models.PromptError(fmt.Sprintf("page %d has no image data", i+1), nil)
		}
		mediaType := page.MediaType
		if mediaType == "" {
			mediaType = "image/png"
		}
		content = append(content, ContentBlock{
			Type: "image",
			Source: &ImageSource{
				Type:      "base64",
				MediaType: mediaType,
				Data:      base64.StdEncoding.EncodeToString(page.Data),
			},
		})
	}
	content = append(content, ContentBlock{Type: "text", Text: instruction})

	return &Request{
		AnthropicVersion: b.config.AnthropicVersion,
		MaxTokens:        b.config.MaxTokens,
		Messages:         []Message{{Role: "user", Content: content}},
	}, nil
}

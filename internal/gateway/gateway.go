// Package gateway invokes hosted models and decodes their JSON output.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Lllllllleong/formextractionflow/internal/models"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Invoker sends a serialized request body to the vision model and returns the
// raw response body.
type Invoker interface {
	InvokeModel(ctx context.Context, body []byte) ([]byte, error)
}

// TextGenerator runs a single text prompt against a language model.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Config bounds model latency.
type Config struct {
	Timeout time.Duration
}

// Gateway is the only component that talks to hosted models.
type Gateway struct {
	invoker   Invoker
	generator TextGenerator
	config    Config
}

// New creates a Gateway. generator may be nil when only extraction is used.
func New(invoker Invoker, generator TextGenerator, cfg Config) *Gateway {
	return &Gateway{invoker: invoker, generator: generator, config: cfg}
}

// Response is a decoded extraction response.
type Response struct {
	// Body is the full response with the first text block replaced by its decoded JSON value.
	Body map[string]any
	// Content is the decoded JSON value of the first text block.
	Content any
	// Text is the JSON text of Content with any code fences removed. Object
	// key order is only preserved here.
	Text string
}

// JSON serializes the decoded body, as stored in ai_output_json.
func (r *Response) JSON() ([]byte, error) {
	return json.Marshal(r.Body)
}

// Extract invokes the vision model with body and decodes the answer.
// Transport failures return ModelInvocationError; undecodable or off-schema
// answers return ModelResponseFormatError.
func (g *Gateway) Extract(ctx context.Context, body []byte) (*Response, error) {
	if g.invoker == nil {
		return nil, models.ModelInvocationError("no model invoker configured", nil)
	}
	callCtx, cancel := g.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	raw, err := g.invoker.InvokeModel(callCtx, body)
	if err != nil {
		return nil, models.ModelInvocationError("model invocation failed", err)
	}
	slog.Debug("Model responded.", "latency", time.Since(start), "bytes", len(raw))

	resp, err := DecodeResponse(raw)
	if err != nil {
		return nil, err
	}
	if err := extractionSchema.Validate(resp.Content); err != nil {
		return nil, models.ModelResponseFormatError("model content does not match the extraction shape", err)
	}
	return resp, nil
}

// GenerateJSON runs prompt on the text model and decodes the answer through
// the same JSON-text step as Extract. schema may be nil.
func (g *Gateway) GenerateJSON(ctx context.Context, prompt string, schema *jsonschema.Schema) (any, error) {
	if g.generator == nil {
		return nil, models.ModelInvocationError("no text model configured", nil)
	}
	callCtx, cancel := g.withTimeout(ctx)
	defer cancel()

	text, err := g.generator.GenerateText(callCtx, prompt)
	if err != nil {
		return nil, models.ModelInvocationError("text model invocation failed", err)
	}
	value, err := DecodeJSONText(text)
	if err != nil {
		return nil, err
	}
	if schema != nil {
		if err := schema.Validate(value); err != nil {
			return nil, models.ModelResponseFormatError("model output does not match the expected shape", err)
		}
	}
	return value, nil
}

func (g *Gateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.config.Timeout > 0 {
		return context.WithTimeout(ctx, g.config.Timeout)
	}
	return context.WithCancel(ctx)
}

// DecodeResponse parses an Anthropic messages response and decodes the JSON
// text held in its first text content block.
func DecodeResponse(raw []byte) (*Response, error) {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, models.ModelResponseFormatError("response body is not JSON", err)
	}

	blocks, ok := body["content"].([]any)
	if !ok || len(blocks) == 0 {
		return nil, models.ModelResponseFormatError("response has no content blocks", nil)
	}

	for i, b := range blocks {
		block, ok := b.(map[string]any)
		if !ok {
			continue
		}
		if t, _ := block["type"].(string); t != "" && t != "text" {
			continue
		}
		text, ok := block["text"].(string)
		if !ok {
			continue
		}
		cleaned, content, err := decodeJSONText(text)
		if err != nil {
			return nil, err
		}
		block["text"] = content
		blocks[i] = block
		return &Response{Body: body, Content: content, Text: cleaned}, nil
	}
	return nil, models.ModelResponseFormatError(fmt.Sprintf("none of %d content blocks carries text", len(blocks)), nil)
}

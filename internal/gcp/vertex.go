package gcp

import (
	"context"
	"fmt"
	"strings"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"
	"google.golang.org/genproto/googleapis/api/httpbody"
)

// --- Header Mapper Model Prompts ---
const HeaderMapperSystemPrompt = "You are a spreadsheet column mapping assistant. You map the column headers of an uploaded sheet onto the columns of a named output template. You must output your response as a valid JSON array."

// HeaderMapperUserPrompt is appended to the template name and input headers.
func HeaderMapperUserPrompt(template string) string {
	return "Map the input headers to the correct output headers using the template " + template + " mapping. " +
		"Return a JSON array, each entry with 'inputheader' and 'mappedheader'. " +
		"Include all output headers from the Training Data KB, even if unmapped. " +
		"Keep the order exactly as per your KB. " +
		"Do not omit any headers for any reason. " +
		"Respond only with the JSON array and nothing else."
}

// VertexConfig selects the models used by the pipeline.
type VertexConfig struct {
	ProjectID         string
	Region            string
	ExtractionModel   string
	HeaderMapperModel string
	// TemplateHeaders is the knowledge the header mapper is grounded on, one
	// "TEMPLATE: h1, h2, ..." line per template.
	TemplateHeaders string
}

// VertexClient holds the pre-configured model clients for our app.
type VertexClient struct {
	HeaderMapperModel *genai.GenerativeModel
	predictions       *aiplatform.PredictionClient
	baseClient        *genai.Client
	extractionModel   string
	config            VertexConfig
}

// NewVertexClient creates a new client holding all necessary models.
func NewVertexClient(ctx context.Context, cfg VertexConfig) (*VertexClient, error) {
	if cfg.ProjectID == "" || cfg.Region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	predictions, err := aiplatform.NewPredictionClient(ctx,
		option.WithEndpoint(fmt.Sprintf("%s-aiplatform.googleapis.com:443", cfg.Region)))
	if err != nil {
		return nil, fmt.Errorf("aiplatform.NewPredictionClient: %w", err)
	}

	baseClient, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Region)
	if err != nil {
		_ = predictions.Close()
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	headerMapperModel := baseClient.GenerativeModel(cfg.HeaderMapperModel)
	system := HeaderMapperSystemPrompt
	if cfg.TemplateHeaders != "" {
		system += "\n\nTraining Data KB:\n" + cfg.TemplateHeaders
	}
	headerMapperModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(system)},
	}
	headerMapperModel.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}

	return &VertexClient{
		HeaderMapperModel: headerMapperModel,
		predictions:       predictions,
		baseClient:        baseClient,
		extractionModel:   cfg.ExtractionModel,
		config:            cfg,
	}, nil
}

// InvokeModel sends an Anthropic messages body to the extraction model through
// rawPredict and returns the raw response body.
func (c *VertexClient) InvokeModel(ctx context.Context, body []byte) ([]byte, error) {
	endpoint := fmt.Sprintf("projects/%s/locations/%s/publishers/anthropic/models/%s",
		c.config.ProjectID, c.config.Region, c.extractionModel)

	resp, err := c.predictions.RawPredict(ctx, &aiplatformpb.RawPredictRequest{
		Endpoint: endpoint,
		HttpBody: &httpbody.HttpBody{
			ContentType: "application/json",
			Data:        body,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("rawPredict %s: %w", c.extractionModel, err)
	}
	return resp.GetData(), nil
}

// GenerateText runs the header mapper model on a single text prompt and
// returns the concatenated text parts of the first candidate.
func (c *VertexClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	resp, err := c.HeaderMapperModel.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content from gemini: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String(), nil
}

func (c *VertexClient) Close() error {
	var firstErr error
	if c.predictions != nil {
		firstErr = c.predictions.Close()
	}
	if c.baseClient != nil {
		if err := c.baseClient.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Lllllllleong/formextractionflow/internal/gcp"
	"github.com/Lllllllleong/formextractionflow/internal/models"
	"github.com/Lllllllleong/formextractionflow/internal/objectstore"
	"github.com/Lllllllleong/formextractionflow/internal/tabular"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// JSONGenerator asks a text model for a JSON answer matching schema.
type JSONGenerator interface {
	GenerateJSON(ctx context.Context, prompt string, schema *jsonschema.Schema) (any, error)
}

// HeaderMapperFunction maps the columns of an uploaded sheet onto a template.
type HeaderMapperFunction struct {
	store     objectstore.Store
	generator JSONGenerator
	config    *HeaderMapperConfig
	closers   []func() error
}

func NewHeaderMapperFunction(store objectstore.Store, generator JSONGenerator, cfg *HeaderMapperConfig) *HeaderMapperFunction {
	return &HeaderMapperFunction{store: store, generator: generator, config: cfg}
}

// Close releases the clients the function was built with.
func (h *HeaderMapperFunction) Close() error {
	var firstErr error
	for _, c := range h.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Process runs one mapping job. Skips and bad input are reported through the
// response status; the returned error is set only for 500 responses.
func (h *HeaderMapperFunction) Process(ctx context.Context, event models.GCSEvent) (*models.HeaderMappingResponse, error) {
	logCtx := slog.With("bucket", event.Bucket, "object", event.Name,
		"template", h.config.Template, "sessionId", mappingSessionID(h.config.Template))
	logCtx.Info("Header mapping triggered.")

	if !strings.HasPrefix(event.Name, h.config.InputFolder) {
		logCtx.Info("File not in input folder, exiting.")
		return &models.HeaderMappingResponse{Status: http.StatusOK, Body: "Not an input file, skipping."}, nil
	}
	if !tabular.SupportedExtension(event.Name) {
		ext := strings.ToLower(path.Ext(event.Name))
		logCtx.Error("Unsupported file type.", "extension", ext)
		return &models.HeaderMappingResponse{Status: http.StatusBadRequest, Body: "Unsupported file type " + ext}, nil
	}

	data, err := h.store.Get(ctx, event.Bucket, event.Name)
	if err != nil {
		return failed(logCtx, models.DownloadError("failed to download sheet", err))
	}
	input, err := tabular.Read(event.Name, data)
	if err != nil {
		return failed(logCtx, err)
	}
	if len(input.Headers) == 0 {
		logCtx.Error("Could not extract headers from file.")
		return &models.HeaderMappingResponse{Status: http.StatusBadRequest, Body: "Could not extract headers"}, nil
	}
	logCtx.Info("Input sheet loaded.", "headers", input.Headers, "rows", len(input.Rows))

	prompt := fmt.Sprintf("Template: %s\nInput headers: %s\n\n%s",
		h.config.Template, strings.Join(input.Headers, ", "), gcp.HeaderMapperUserPrompt(h.config.Template))
	answer, err := h.generator.GenerateJSON(ctx, prompt, tabular.MappingSchema)
	if err != nil {
		return failed(logCtx, err)
	}
	mappings, err := tabular.ParseMappings(answer)
	if err != nil {
		return failed(logCtx, models.ModelResponseFormatError("failed to read header mappings", err))
	}
	logCtx.Info("Received header mappings.", "count", len(mappings))

	output := tabular.ApplyMappings(input, mappings)
	workbook, err := tabular.WriteXLSX(output)
	if err != nil {
		return failed(logCtx, err)
	}

	outputKey := tabular.OutputKey(event.Name, h.config.InputFolder, h.config.OutputFolder)
	if err := h.store.Put(ctx, event.Bucket, outputKey, workbook, xlsxContentType, false); err != nil {
		return failed(logCtx, fmt.Errorf("failed to upload %s: %w", outputKey, err))
	}

	logCtx.Info("Processing complete.", "outputKey", outputKey, "columns", len(output.Headers))
	return &models.HeaderMappingResponse{
		Status:      http.StatusOK,
		Body:        fmt.Sprintf("Processed %s, output saved to %s", event.Name, outputKey),
		OutputKey:   outputKey,
		ColumnCount: len(output.Headers),
	}, nil
}

// mappingSessionID names the model session for one template.
func mappingSessionID(template string) string {
	return "mapping-" + template
}

func failed(logCtx *slog.Logger, err error) (*models.HeaderMappingResponse, error) {
	logCtx.Error("Error processing file.", "error", err)
	return &models.HeaderMappingResponse{Status: http.StatusInternalServerError, Body: err.Error()}, err
}

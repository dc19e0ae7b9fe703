package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/storage"
	"github.com/jmoiron/sqlx"

	"github.com/Lllllllleong/formextractionflow/internal/cache"
	"github.com/Lllllllleong/formextractionflow/internal/gateway"
	"github.com/Lllllllleong/formextractionflow/internal/gcp"
	"github.com/Lllllllleong/formextractionflow/internal/objectstore"
	"github.com/Lllllllleong/formextractionflow/internal/prompt"
	"github.com/Lllllllleong/formextractionflow/internal/relocate"
	"github.com/Lllllllleong/formextractionflow/internal/render"
	"github.com/Lllllllleong/formextractionflow/internal/repository"
)

// newObjectStore returns the configured storage backend and a closer for it.
func newObjectStore(ctx context.Context, backend string, s3 objectstore.S3Config) (objectstore.Store, func() error, error) {
	if backend == StorageBackendS3 {
		store, err := objectstore.NewS3Store(s3)
		if err != nil {
			return nil, nil, err
		}
		return store, func() error { return nil }, nil
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return gcp.NewGCSStore(client), client.Close, nil
}

// openOutcomeCache connects to Redis when addr is set. An unreachable server
// is logged and yields a nil cache so the extractor still starts.
func openOutcomeCache(ctx context.Context, addr string, ttl time.Duration) (OutcomeCache, func() error) {
	if addr == "" {
		return nil, nil
	}
	c, err := cache.NewOutcomeCache(ctx, addr, ttl)
	if err != nil {
		slog.Warn("Outcome cache unavailable. Continuing without redelivery guard.", "addr", addr, "error", err)
		return nil, nil
	}
	return c, c.Close
}

// NewAttachmentExtractor builds a MessageProcessor from the environment.
func NewAttachmentExtractor(ctx context.Context) (*MessageProcessor, error) {
	config, err := loadExtractorConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	var closers []func() error
	fail := func(err error) (*MessageProcessor, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	store, closeStore, err := newObjectStore(ctx, config.StorageBackend, config.S3)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeStore)

	vertexClient, err := gcp.NewVertexClient(ctx, gcp.VertexConfig{
		ProjectID:       config.ProjectID,
		Region:          config.VertexAIRegion,
		ExtractionModel: config.ExtractionModel,
	})
	if err != nil {
		return fail(fmt.Errorf("failed to create vertex client: %w", err))
	}
	closers = append(closers, vertexClient.Close)

	db, err := repository.Open(ctx, config.DatabaseDriver, config.DatabaseURL, config.DBMaxOpenConns)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, db.Close)

	outcomes, closeOutcomes := openOutcomeCache(ctx, config.RedisAddr, config.OutcomeTTL)
	if closeOutcomes != nil {
		closers = append(closers, closeOutcomes)
	}

	var ledger RunRecorder
	if config.FirestoreCollection != "" {
		client, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
		if err != nil {
			return fail(err)
		}
		l := gcp.NewRunLedger(client, config.FirestoreCollection)
		closers = append(closers, l.Close)
		ledger = l
	}

	instruction, err := prompt.Instruction(config.PromptName)
	if err != nil {
		return fail(err)
	}

	workflow := NewAttachmentWorkflow(
		store,
		render.New(render.Config{DPI: config.RenderDPI, Concurrency: config.RenderConcurrency}),
		prompt.NewBuilder(prompt.Config{AnthropicVersion: config.AnthropicVersion, MaxTokens: config.MaxResponseTokens}),
		gateway.New(vertexClient, nil, gateway.Config{Timeout: config.ModelTimeout}),
		repository.NewContentRepository(db, repository.Config{
			ProcessedBy: config.ContentProcessedBy,
			UpdatedBy:   config.ContentUpdatedBy,
		}),
		relocate.New(store, config.Zones),
		outcomes,
		WorkflowConfig{
			Instruction:              instruction,
			ProcessedBy:              config.MessageProcessedBy,
			ProcessedStatus:          config.ProcessedStatus,
			PartiallyProcessedStatus: config.PartiallyProcessedStatus,
		},
	)

	processor := NewMessageProcessor(workflow, store, ledger, ProcessorConfig{
		AcceptedContentTypes: config.AcceptedContentTypes,
		OutputResponseFolder: config.OutputResponseFolder,
		UploadResults:        config.UploadResults,
		ResultsBucket:        config.ResultsBucket,
	})
	processor.closers = closers

	slog.Info("Attachment extractor initialized.",
		"model", config.ExtractionModel,
		"region", config.VertexAIRegion,
		"storageBackend", config.StorageBackend,
		"prompt", config.PromptName,
		"outcomeCache", outcomes != nil,
		"runLedger", ledger != nil)
	return processor, nil
}

// NewHeaderMapper builds a HeaderMapperFunction from the environment.
func NewHeaderMapper(ctx context.Context) (*HeaderMapperFunction, error) {
	config, err := loadHeaderMapperConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	store, closeStore, err := newObjectStore(ctx, config.StorageBackend, config.S3)
	if err != nil {
		return nil, err
	}

	vertexClient, err := gcp.NewVertexClient(ctx, gcp.VertexConfig{
		ProjectID:         config.ProjectID,
		Region:            config.VertexAIRegion,
		HeaderMapperModel: config.HeaderMapperModel,
		TemplateHeaders:   config.TemplateHeaders,
	})
	if err != nil {
		_ = closeStore()
		return nil, fmt.Errorf("failed to create vertex client: %w", err)
	}

	mapper := NewHeaderMapperFunction(store, gateway.New(nil, vertexClient, gateway.Config{Timeout: config.ModelTimeout}), config)
	mapper.closers = []func() error{vertexClient.Close, closeStore}
	return mapper, nil
}

// OpenContentRepository connects to the relational store for tooling that
// only needs the database.
func OpenContentRepository(ctx context.Context) (*sqlx.DB, *repository.ContentRepository, error) {
	config, err := LoadDatabaseConfig()
	if err != nil {
		return nil, nil, err
	}
	db, err := repository.Open(ctx, config.Driver, config.URL, config.MaxOpenConns)
	if err != nil {
		return nil, nil, err
	}
	return db, repository.NewContentRepository(db, repository.Config{
		ProcessedBy: gcp.GetEnv("CONTENT_PROCESSED_BY", ""),
		UpdatedBy:   gcp.GetEnv("CONTENT_UPDATED_BY", ""),
	}), nil
}

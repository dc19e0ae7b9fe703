package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/Lllllllleong/formextractionflow/internal/gcp"
	"github.com/Lllllllleong/formextractionflow/internal/models"
	"github.com/Lllllllleong/formextractionflow/internal/objectstore"
	"github.com/Lllllllleong/formextractionflow/internal/prompt"
	"github.com/Lllllllleong/formextractionflow/internal/queue"
	"github.com/Lllllllleong/formextractionflow/internal/relocate"
	"github.com/Lllllllleong/formextractionflow/internal/repository"
)

const (
	StorageBackendGCS = "gcs"
	StorageBackendS3  = "s3"
)

// ExtractorConfig holds all configuration for the attachment extractor.
type ExtractorConfig struct {
	ProjectID         string
	VertexAIRegion    string
	ExtractionModel   string
	AnthropicVersion  string
	MaxResponseTokens int
	ModelTimeout      time.Duration
	PromptName        string
	RenderDPI         float64
	RenderConcurrency int

	StorageBackend string
	S3             objectstore.S3Config

	DatabaseDriver string
	DatabaseURL    string
	DBMaxOpenConns int

	Zones                relocate.Zones
	OutputResponseFolder string
	UploadResults        bool
	ResultsBucket        string

	MessageProcessedBy       string
	ContentProcessedBy       string
	ContentUpdatedBy         string
	ProcessedStatus          string
	PartiallyProcessedStatus string
	AcceptedContentTypes     []string

	RedisAddr           string
	OutcomeTTL          time.Duration
	FirestoreCollection string
}

// loadExtractorConfig loads and validates all necessary environment variables for this service.
func loadExtractorConfig() (*ExtractorConfig, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	databaseURL := gcp.GetEnv("DATABASE_URL", "")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable must be set")
	}

	cfg := &ExtractorConfig{
		ProjectID:         projectID,
		VertexAIRegion:    gcp.GetEnv("VERTEX_AI_REGION", "us-east5"),
		ExtractionModel:   gcp.GetEnv("EXTRACTION_MODEL_ID", "claude-3-5-sonnet@20240620"),
		AnthropicVersion:  gcp.GetEnv("ANTHROPIC_VERSION", prompt.DefaultAnthropicVersion),
		MaxResponseTokens: gcp.GetEnvInt("MAX_RESPONSE_TOKENS", prompt.DefaultMaxTokens),
		ModelTimeout:      gcp.GetEnvDuration("MODEL_TIMEOUT", 120*time.Second),
		PromptName:        gcp.GetEnv("EXTRACTION_PROMPT", "form"),
		RenderDPI:         gcp.GetEnvFloat("RENDER_DPI", 72),
		RenderConcurrency: gcp.GetEnvInt("RENDER_CONCURRENCY", 4),

		StorageBackend: storageBackend(),
		S3:             loadS3Config(),

		DatabaseDriver: gcp.GetEnv("DATABASE_DRIVER", repository.DriverPostgres),
		DatabaseURL:    databaseURL,
		DBMaxOpenConns: gcp.GetEnvInt("DB_MAX_OPEN_CONNS", 4),

		Zones: relocate.Zones{
			Inbound:  gcp.GetEnv("INBOUND_FOLDER", "inbound/"),
			Outbound: gcp.GetEnv("OUTBOUND_FOLDER", "outbound/"),
			Review:   gcp.GetEnv("REVIEW_FOLDER", "review/"),
		},
		OutputResponseFolder: gcp.GetEnv("OUTPUT_RESPONSE_FOLDER", "output_response"),
		UploadResults:        gcp.GetEnvBool("UPLOAD_RESULTS", false),
		ResultsBucket:        gcp.GetEnv("RESULTS_BUCKET", ""),

		MessageProcessedBy:       gcp.GetEnv("MESSAGE_PROCESSED_BY", "system"),
		ContentProcessedBy:       gcp.GetEnv("CONTENT_PROCESSED_BY", "AI_Model"),
		ContentUpdatedBy:         gcp.GetEnv("CONTENT_UPDATED_BY", "System"),
		ProcessedStatus:          gcp.GetEnv("PROCESSED_MESSAGE_STATUS", models.MessageStatusProcessed),
		PartiallyProcessedStatus: gcp.GetEnv("PARTIALLY_PROCESSED_MESSAGE_STATUS", models.MessageStatusPartiallyProcessed),
		AcceptedContentTypes:     gcp.GetEnvList("ACCEPTED_CONTENT_TYPES", []string{"MULTIPART/MIXED"}),

		RedisAddr:           gcp.GetEnv("REDIS_ADDR", ""),
		OutcomeTTL:          gcp.GetEnvDuration("OUTCOME_TTL", 24*time.Hour),
		FirestoreCollection: gcp.GetEnv("FIRESTORE_COLLECTION", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func storageBackend() string {
	return strings.ToLower(gcp.GetEnv("STORAGE_BACKEND", StorageBackendGCS))
}

func loadS3Config() objectstore.S3Config {
	return objectstore.S3Config{
		Endpoint:  gcp.GetEnv("S3_ENDPOINT", "s3.amazonaws.com"),
		AccessKey: gcp.GetEnv("S3_ACCESS_KEY", ""),
		SecretKey: gcp.GetEnv("S3_SECRET_KEY", ""),
		Region:    gcp.GetEnv("S3_REGION", ""),
		UseSSL:    gcp.GetEnvBool("S3_USE_SSL", true),
	}
}

func validateStorage(backend string, s3 objectstore.S3Config) error {
	switch backend {
	case StorageBackendGCS:
	case StorageBackendS3:
		if s3.AccessKey == "" || s3.SecretKey == "" {
			return fmt.Errorf("S3_ACCESS_KEY and S3_SECRET_KEY must be set for the s3 storage backend")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", StorageBackendGCS, StorageBackendS3, backend)
	}
	return nil
}

// Validate checks values that have no safe default.
func (c *ExtractorConfig) Validate() error {
	if err := validateStorage(c.StorageBackend, c.S3); err != nil {
		return err
	}
	if _, err := prompt.Instruction(c.PromptName); err != nil {
		return fmt.Errorf("EXTRACTION_PROMPT: %w", err)
	}
	if c.Zones.Inbound == "" || c.Zones.Outbound == "" || c.Zones.Review == "" {
		return fmt.Errorf("INBOUND_FOLDER, OUTBOUND_FOLDER and REVIEW_FOLDER cannot be empty")
	}
	if c.Zones.Outbound == c.Zones.Inbound || c.Zones.Review == c.Zones.Inbound {
		return fmt.Errorf("outbound and review folders must differ from the inbound folder")
	}
	if len(c.AcceptedContentTypes) == 0 {
		return fmt.Errorf("ACCEPTED_CONTENT_TYPES cannot be empty")
	}
	return nil
}

// HeaderMapperConfig holds all configuration for the header-mapping job.
type HeaderMapperConfig struct {
	ProjectID         string
	VertexAIRegion    string
	HeaderMapperModel string
	Template          string
	TemplateHeaders   string
	InputFolder       string
	OutputFolder      string
	ModelTimeout      time.Duration
	StorageBackend    string
	S3                objectstore.S3Config
}

func loadHeaderMapperConfig() (*HeaderMapperConfig, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	cfg := &HeaderMapperConfig{
		ProjectID:         projectID,
		VertexAIRegion:    gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		HeaderMapperModel: gcp.GetEnv("HEADER_MAPPER_MODEL", "gemini-1.5-pro"),
		Template:          gcp.GetEnv("MAPPING_TEMPLATE", "A1"),
		TemplateHeaders:   gcp.GetEnv("MAPPING_TEMPLATE_HEADERS", ""),
		InputFolder:       gcp.GetEnv("INPUT_FOLDER", "input/"),
		OutputFolder:      gcp.GetEnv("OUTPUT_FOLDER", "output/"),
		ModelTimeout:      gcp.GetEnvDuration("MODEL_TIMEOUT", 120*time.Second),
		StorageBackend:    storageBackend(),
		S3:                loadS3Config(),
	}
	if err := validateStorage(cfg.StorageBackend, cfg.S3); err != nil {
		return nil, err
	}
	if cfg.InputFolder == cfg.OutputFolder {
		return nil, fmt.Errorf("INPUT_FOLDER and OUTPUT_FOLDER must differ")
	}
	return cfg, nil
}

// LoadPollerConfig reads the RabbitMQ worker settings.
func LoadPollerConfig() (queue.Config, error) {
	cfg := queue.Config{
		URL:          gcp.GetEnv("RABBITMQ_URL", ""),
		QueueName:    gcp.GetEnv("QUEUE_NAME", "attachment-extraction"),
		PollInterval: gcp.GetEnvDuration("WAIT_TIME_FOR_RESULTS", 2*time.Second),
		MaxRetries:   gcp.GetEnvInt("RABBITMQ_CONNECT_RETRIES", 10),
		RetryDelay:   gcp.GetEnvDuration("RABBITMQ_RETRY_DELAY", 5*time.Second),
	}
	if cfg.URL == "" {
		return cfg, fmt.Errorf("RABBITMQ_URL environment variable must be set")
	}
	return cfg, nil
}

// DatabaseConfig is the subset of settings needed to reach the relational store.
type DatabaseConfig struct {
	Driver       string
	URL          string
	MaxOpenConns int
}

// LoadDatabaseConfig reads DATABASE_DRIVER, DATABASE_URL and DB_MAX_OPEN_CONNS.
func LoadDatabaseConfig() (DatabaseConfig, error) {
	cfg := DatabaseConfig{
		Driver:       gcp.GetEnv("DATABASE_DRIVER", repository.DriverPostgres),
		URL:          gcp.GetEnv("DATABASE_URL", ""),
		MaxOpenConns: gcp.GetEnvInt("DB_MAX_OPEN_CONNS", 4),
	}
	if cfg.URL == "" {
		return cfg, fmt.Errorf("DATABASE_URL environment variable must be set")
	}
	return cfg, nil
}

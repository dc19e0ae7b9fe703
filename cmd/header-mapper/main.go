package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/joho/godotenv"

	"github.com/Lllllllleong/formextractionflow/internal/models"
	"github.com/Lllllllleong/formextractionflow/internal/services"
)

var (
	mapper  *services.HeaderMapperFunction
	once    sync.Once
	initErr error
)

func init() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.CloudEvent("MapHeaders", mapHeaders)
}

// main is required by the Go Functions Framework.
func main() {}

func mapHeaders(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		mapper, initErr = services.NewHeaderMapper(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	resp, err := mapper.Process(ctx, gcsEvent)
	if err != nil {
		return err
	}
	slog.Info("Header mapping finished.", "statusCode", resp.Status, "body", resp.Body)
	return nil
}

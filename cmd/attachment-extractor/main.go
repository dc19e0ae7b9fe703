package main

import (
	"context"
	"encoding/json"
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
	processor *services.MessageProcessor
	once      sync.Once
	initErr   error
)

func init() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.CloudEvent("ProcessAttachments", processAttachments)
}

// main is required by the Go Functions Framework.
func main() {}

// processAttachments handles one Pub/Sub push. Once the message has been read
// it is always acknowledged; outcomes live in the database and the logs.
func processAttachments(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		processor, initErr = services.NewAttachmentExtractor(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var msg models.MessagePublishedData
	if err := json.Unmarshal(e.Data(), &msg); err != nil {
		slog.Error("Failed to unmarshal event data. Dropping message.", "error", err, "eventId", e.ID())
		return nil
	}

	summary, err := processor.Process(ctx, msg.Message.Data)
	if err != nil {
		slog.Error("Dropping undecodable queue message.", "error", err, "messageId", msg.Message.ID)
		return nil
	}
	slog.Info("Queue message consumed.",
		"messageId", msg.Message.ID,
		"processId", summary.ProcessID.String(),
		"runId", summary.RunID,
		"skipped", summary.Skipped,
		"messageStatus", summary.MessageStatus)
	return nil
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Lllllllleong/formextractionflow/internal/queue"
	"github.com/Lllllllleong/formextractionflow/internal/services"
)

func main() {
	_ = godotenv.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Extraction worker stopped.", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pollerConfig, err := services.LoadPollerConfig()
	if err != nil {
		return err
	}

	processor, err := services.NewAttachmentExtractor(ctx)
	if err != nil {
		return err
	}
	defer processor.Close()

	poller, err := queue.NewPoller(pollerConfig)
	if err != nil {
		return err
	}
	defer poller.Close()

	err = poller.Run(ctx, func(ctx context.Context, body []byte) error {
		_, err := processor.Process(ctx, body)
		return err
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("Extraction worker shut down.")
	return nil
}

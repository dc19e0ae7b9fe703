package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Lllllllleong/formextractionflow/internal/models"
	"github.com/Lllllllleong/formextractionflow/internal/services"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "extractctl",
	Short: "Operate the form extraction pipeline from a shell",
	Long: `extractctl runs queue messages and header-mapping jobs through the same
services the Cloud Functions use, and manages the extraction tables.
Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

var processCmd = &cobra.Command{
	Use:   "process <message.json>...",
	Short: "Process queue messages read from files (- for stdin)",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runProcess,
}

var (
	mapBucket string
	mapKey    string
)

var mapHeadersCmd = &cobra.Command{
	Use:   "map-headers",
	Short: "Run the header-mapping job for one uploaded sheet",
	RunE:  runMapHeaders,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	mapHeadersCmd.Flags().StringVarP(&mapBucket, "bucket", "b", "", "bucket holding the sheet (required)")
	mapHeadersCmd.Flags().StringVarP(&mapKey, "key", "k", "", "object key of the sheet (required)")
	_ = mapHeadersCmd.MarkFlagRequired("bucket")
	_ = mapHeadersCmd.MarkFlagRequired("key")

	rootCmd.AddCommand(processCmd, mapHeadersCmd, migrateCmd, recordsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	processor, err := services.NewAttachmentExtractor(ctx)
	if err != nil {
		return err
	}
	defer processor.Close()

	var summaries []*models.MessageSummary
	for _, name := range args {
		body, err := readInput(cmd, name)
		if err != nil {
			return err
		}
		summary, err := processor.Process(ctx, body)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		summaries = append(summaries, summary)
	}
	return printJSON(cmd.OutOrStdout(), summaries)
}

func runMapHeaders(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	mapper, err := services.NewHeaderMapper(ctx)
	if err != nil {
		return err
	}
	defer mapper.Close()

	resp, err := mapper.Process(ctx, models.GCSEvent{Bucket: mapBucket, Name: mapKey})
	if resp != nil {
		if printErr := printJSON(cmd.OutOrStdout(), resp); printErr != nil {
			return printErr
		}
	}
	return err
}

func readInput(cmd *cobra.Command, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read message file: %w", err)
	}
	return data, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

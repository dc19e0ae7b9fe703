package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Lllllllleong/formextractionflow/internal/models"
	"github.com/Lllllllleong/formextractionflow/internal/objectstore"
)

// ErrInvalidMessage is returned when a message body cannot be decoded.
var ErrInvalidMessage = errors.New("invalid queue message")

// RunRecorder persists one summary document per processed message.
type RunRecorder interface {
	Record(ctx context.Context, docID string, run models.MessageRun) error
}

// ProcessorConfig controls message filtering and the result artifact.
type ProcessorConfig struct {
	AcceptedContentTypes []string
	OutputResponseFolder string
	UploadResults        bool
	ResultsBucket        string
}

// MessageProcessor runs the attachment workflow over every attachment of a
// queue message, one at a time.
type MessageProcessor struct {
	workflow *AttachmentWorkflow
	store    objectstore.Store
	ledger   RunRecorder
	config   ProcessorConfig
	now      func() time.Time
	closers  []func() error
}

// NewMessageProcessor wires a processor. ledger may be nil.
func NewMessageProcessor(workflow *AttachmentWorkflow, store objectstore.Store, ledger RunRecorder, cfg ProcessorConfig) *MessageProcessor {
	if len(cfg.AcceptedContentTypes) == 0 {
		cfg.AcceptedContentTypes = []string{"MULTIPART/MIXED"}
	}
	return &MessageProcessor{
		workflow: workflow,
		store:    store,
		ledger:   ledger,
		config:   cfg,
		now:      time.Now,
	}
}

// Close releases the clients the processor was built with.
func (p *MessageProcessor) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		errs = append(errs, p.closers[i]())
	}
	return errors.Join(errs...)
}

// Process handles one queue message body. Attachment failures are reported in
// the summary, never as an error; only an undecodable body returns one.
func (p *MessageProcessor) Process(ctx context.Context, body []byte) (*models.MessageSummary, error) {
	var msg models.QueueMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	run := &messageRun{processID: msg.ProcessID, runID: uuid.NewString()}
	run.logger = slog.With("processId", msg.ProcessID.String(), "runId", run.runID)
	summary := &models.MessageSummary{
		ProcessID: msg.ProcessID,
		RunID:     run.runID,
		Outcomes:  []models.AttachmentOutcome{},
	}

	if !models.AcceptsContentType(msg.ContentType, p.config.AcceptedContentTypes) {
		run.logger.Info("Skipping message with unsupported content type.", "contentType", msg.ContentType)
		summary.Skipped = true
		summary.SkipReason = fmt.Sprintf("content type %q is not accepted", msg.ContentType)
		return summary, nil
	}

	run.logger.Info("Starting attachment extraction.", "attachments", len(msg.Attachments))
	for _, att := range msg.Attachments {
		summary.Outcomes = append(summary.Outcomes, p.workflow.Run(ctx, run, att))
	}
	if len(msg.Attachments) > 0 {
		summary.MessageStatus = p.workflow.statusAfter(run, false)
	}

	now := p.now().UTC()
	summary.ResultFile = ResultFileName(msg.ProcessID, now)

	result, err := augmentMessage(body, summary.Outcomes)
	if err != nil {
		run.logger.Error("Failed to build result document.", "error", err)
	} else {
		run.logger.Info("Message processed.", "resultFile", summary.ResultFile, "result", string(result))
		if p.config.UploadResults {
			summary.ResultObject = p.uploadResult(ctx, run.logger, msg, summary.ResultFile, result)
		}
	}

	p.recordRun(ctx, run.logger, summary, now)

	run.logger.Info("Finished attachment extraction.",
		"messageStatus", summary.MessageStatus,
		"succeeded", summary.Count(models.StateSucceeded),
		"review", summary.Count(models.StatePartiallyFailed)+summary.Count(models.StateNoData),
		"skipped", summary.Count(models.StateSkipped))
	return summary, nil
}

// ResultFileName is <processId>_<YYYYMMDD>_<HHMMSS>.json for the UTC instant t.
func ResultFileName(processID models.ID, t time.Time) string {
	return fmt.Sprintf("%s_%s.json", processID, t.UTC().Format("20060102_150405"))
}

// augmentMessage returns the original message with a "contents" list added to
// each attachment, in attachment order.
func augmentMessage(body []byte, outcomes []models.AttachmentOutcome) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}

	attachments, _ := doc["attachments"].([]any)
	for i, a := range attachments {
		att, ok := a.(map[string]any)
		if !ok || i >= len(outcomes) {
			continue
		}
		contents := outcomes[i].Contents
		if contents == nil {
			contents = []models.FieldRecord{}
		}
		att["contents"] = contents
	}
	return json.MarshalIndent(doc, "", "    ")
}

func (p *MessageProcessor) uploadResult(ctx context.Context, logCtx *slog.Logger, msg models.QueueMessage, fileName string, result []byte) string {
	bucket := p.config.ResultsBucket
	if bucket == "" && len(msg.Attachments) > 0 {
		bucket = msg.Attachments[len(msg.Attachments)-1].Bucket
	}
	if bucket == "" {
		logCtx.Warn("No bucket for result document. Skipping upload.")
		return ""
	}
	key := path.Join(strings.Trim(p.config.OutputResponseFolder, "/"), fileName)
	if err := p.store.Put(ctx, bucket, key, result, "application/json", true); err != nil {
		logCtx.Error("Failed to upload result document.", "bucket", bucket, "key", key, "error", err)
		return ""
	}
	logCtx.Info("Result document uploaded.", "bucket", bucket, "key", key)
	return bucket + "/" + key
}

func (p *MessageProcessor) recordRun(ctx context.Context, logCtx *slog.Logger, summary *models.MessageSummary, now time.Time) {
	if p.ledger == nil {
		return
	}
	var failures []string
	for _, o := range summary.Outcomes {
		if o.Error != "" {
			failures = append(failures, fmt.Sprintf("%s: %s", o.ProcessAttachmentID, o.Error))
		}
	}
	run := models.MessageRun{
		ProcessID:       summary.ProcessID.String(),
		RunID:           summary.RunID,
		MessageStatus:   summary.MessageStatus,
		AttachmentCount: len(summary.Outcomes),
		SucceededCount:  summary.Count(models.StateSucceeded),
		ReviewCount:     summary.Count(models.StatePartiallyFailed) + summary.Count(models.StateNoData),
		SkippedCount:    summary.Count(models.StateSkipped),
		ResultObject:    summary.ResultObject,
		ErrorDetails:    strings.Join(failures, "; "),
		CreatedAt:       now,
	}
	docID := strings.TrimSuffix(summary.ResultFile, ".json")
	if err := p.ledger.Record(ctx, docID, run); err != nil {
		logCtx.Error("Failed to record message run.", "error", err)
	}
}

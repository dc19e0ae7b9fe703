package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/formextractionflow/internal/gateway"
	"github.com/Lllllllleong/formextractionflow/internal/models"
	"github.com/Lllllllleong/formextractionflow/internal/normalize"
	"github.com/Lllllllleong/formextractionflow/internal/objectstore"
	"github.com/Lllllllleong/formextractionflow/internal/relocate"
)

// PageRenderer rasterizes a PDF into ordered page images.
type PageRenderer interface {
	Render(ctx context.Context, pdf []byte) ([]models.PageImage, error)
}

// RequestBuilder serializes the model request for a set of pages.
type RequestBuilder interface {
	Build(pages []models.PageImage, instruction string) ([]byte, error)
}

// Extractor sends a request to the vision model and decodes the answer.
type Extractor interface {
	Extract(ctx context.Context, body []byte) (*gateway.Response, error)
}

// ContentStore is the relational side of the workflow.
type ContentStore interface {
	InsertFieldRecords(ctx context.Context, processID, attachmentID string, records models.NormalizedRecords) (bool, error)
	RecordRawModelOutput(ctx context.Context, attachmentID string, output []byte) error
	MarkAttachmentRelocated(ctx context.Context, attachmentID, objectPath, processedBy string) error
	MarkMessageStatus(ctx context.Context, processID, status, processedBy string) error
}

// OutcomeCache remembers finished attachments across redeliveries.
type OutcomeCache interface {
	Outcome(ctx context.Context, processID, attachmentID models.ID) (models.AttachmentState, error)
	Remember(ctx context.Context, processID, attachmentID models.ID, state models.AttachmentState) error
}

// WorkflowConfig holds the labels and instruction used for every attachment.
type WorkflowConfig struct {
	Instruction              string
	ProcessedBy              string
	ProcessedStatus          string
	PartiallyProcessedStatus string
}

// AttachmentWorkflow drives one attachment from download to its final zone.
type AttachmentWorkflow struct {
	store     objectstore.Store
	renderer  PageRenderer
	requests  RequestBuilder
	extractor Extractor
	content   ContentStore
	relocator *relocate.Relocator
	cache     OutcomeCache
	config    WorkflowConfig
}

// NewAttachmentWorkflow wires the workflow. cache may be nil.
func NewAttachmentWorkflow(store objectstore.Store, renderer PageRenderer, requests RequestBuilder, extractor Extractor,
	content ContentStore, relocator *relocate.Relocator, cache OutcomeCache, cfg WorkflowConfig) *AttachmentWorkflow {
	if cfg.ProcessedStatus == "" {
		cfg.ProcessedStatus = models.MessageStatusProcessed
	}
	if cfg.PartiallyProcessedStatus == "" {
		cfg.PartiallyProcessedStatus = models.MessageStatusPartiallyProcessed
	}
	return &AttachmentWorkflow{
		store:     store,
		renderer:  renderer,
		requests:  requests,
		extractor: extractor,
		content:   content,
		relocator: relocator,
		cache:     cache,
		config:    cfg,
	}
}

// messageRun is the per-message state shared by the attachments of one message.
type messageRun struct {
	processID models.ID
	runID     string
	logger    *slog.Logger
	failed    bool
}

// statusAfter returns the message status to write once an attachment ends.
// Once any attachment has failed the message stays partially processed.
func (w *AttachmentWorkflow) statusAfter(run *messageRun, failed bool) string {
	if failed {
		run.failed = true
	}
	if run.failed {
		return w.config.PartiallyProcessedStatus
	}
	return w.config.ProcessedStatus
}

// Run processes one attachment. It never returns an error: every failure is
// routed to the review zone and reported in the outcome.
func (w *AttachmentWorkflow) Run(ctx context.Context, run *messageRun, att models.Attachment) models.AttachmentOutcome {
	key := att.ObjectKey()
	logCtx := run.logger.With("processAttachmentId", att.ProcessAttachmentID.String(), "bucket", att.Bucket, "objectKey", key)
	outcome := models.AttachmentOutcome{
		ProcessAttachmentID: att.ProcessAttachmentID,
		ObjectKey:           key,
		Contents:            []models.FieldRecord{},
	}

	if w.alreadyDone(ctx, logCtx, run, att) {
		outcome.State = models.StateSkipped
		outcome.Transitions = []models.AttachmentState{models.StateSkipped}
		return outcome
	}

	enter(logCtx, &outcome, models.StateDownloading, "Downloading attachment.")
	pdf, err := w.store.Get(ctx, att.Bucket, key)
	if err != nil {
		return w.toReview(ctx, logCtx, run, att, outcome, models.StateDownloadFailed,
			models.DownloadError("failed to download attachment", err), models.StatePartiallyFailed)
	}
	enter(logCtx, &outcome, models.StateDownloaded, "Attachment downloaded.", "bytes", len(pdf))

	records, failedAt, err := w.extractAndPersist(ctx, logCtx, run, att, &outcome, pdf)
	if err != nil {
		return w.toReview(ctx, logCtx, run, att, outcome, failedAt, err, models.StatePartiallyFailed)
	}
	if records.Len() == 0 {
		logCtx.Warn("Model returned no usable field records. Routing to review.")
		return w.toReview(ctx, logCtx, run, att, outcome, models.StateExtracted, nil, models.StateNoData)
	}

	outcome.Contents = records.Flatten()
	outcome.Zone = w.relocator.Zones().Outbound
	w.route(ctx, logCtx, run, att, outcome.Zone, false)
	outcome.State = models.StateSucceeded
	enter(logCtx, &outcome, models.StateSucceeded, "Attachment processed.", "records", len(outcome.Contents))
	w.remember(ctx, logCtx, run, att, outcome.State)
	return outcome
}

// enter records a state transition on outcome and logs it.
func enter(logCtx *slog.Logger, outcome *models.AttachmentOutcome, state models.AttachmentState, msg string, args ...any) {
	outcome.Transitions = append(outcome.Transitions, state)
	logCtx.Info(msg, append([]any{"state", state}, args...)...)
}

// extractAndPersist covers the Extracting and Persisting phases. A panic in
// either phase is converted into an error for the phase it happened in.
// An empty result with a nil error means the model found nothing to store.
func (w *AttachmentWorkflow) extractAndPersist(ctx context.Context, logCtx *slog.Logger, run *messageRun, att models.Attachment, outcome *models.AttachmentOutcome, pdf []byte) (records models.NormalizedRecords, failedAt models.AttachmentState, err error) {
	failedAt = models.StateExtractFailed
	defer func() {
		if r := recover(); r != nil {
			records = nil
			err = fmt.Errorf("unexpected panic: %v", r)
		}
	}()

	enter(logCtx, outcome, models.StateExtracting, "Extracting fields.")
	pages, err := w.renderer.Render(ctx, pdf)
	if err != nil {
		return nil, failedAt, err
	}
	body, err := w.requests.Build(pages, w.config.Instruction)
	if err != nil {
		return nil, failedAt, err
	}
	resp, err := w.extractor.Extract(ctx, body)
	if err != nil {
		return nil, failedAt, err
	}

	if raw, err := resp.JSON(); err != nil {
		logCtx.Error("Failed to serialize raw model output.", "error", err)
	} else if err := w.content.RecordRawModelOutput(ctx, att.ProcessAttachmentID.String(), raw); err != nil {
		logCtx.Error("Failed to record raw model output.", "error", err)
	}

	records, err = normalize.Normalize([]byte(resp.Text))
	if err != nil {
		return nil, failedAt, err
	}
	enter(logCtx, outcome, models.StateExtracted, "Fields extracted.", "pages", len(pages), "records", records.Len(), "groups", len(records))
	if records.Len() == 0 {
		return records, "", nil
	}

	failedAt = models.StatePersistFailed
	enter(logCtx, outcome, models.StatePersisting, "Persisting field records.")
	ok, err := w.content.InsertFieldRecords(ctx, run.processID.String(), att.ProcessAttachmentID.String(), records)
	if err != nil {
		return nil, failedAt, err
	}
	if !ok {
		return nil, failedAt, models.PersistenceError("field records were not committed", nil)
	}
	enter(logCtx, outcome, models.StatePersisted, "Field records persisted.")
	return records, "", nil
}

func (w *AttachmentWorkflow) toReview(ctx context.Context, logCtx *slog.Logger, run *messageRun, att models.Attachment,
	outcome models.AttachmentOutcome, failedAt models.AttachmentState, cause error, final models.AttachmentState) models.AttachmentOutcome {
	if cause != nil {
		logCtx.Error("Attachment failed. Routing to review.", "failedAt", failedAt, "kind", models.KindOf(cause), "error", cause)
		outcome.Err = cause
		outcome.Error = cause.Error()
		outcome.Transitions = append(outcome.Transitions, failedAt)
	}
	outcome.FailedAt = failedAt
	outcome.Zone = w.relocator.Zones().Review
	w.route(ctx, logCtx, run, att, outcome.Zone, true)
	outcome.State = final
	outcome.Transitions = append(outcome.Transitions, final)
	w.remember(ctx, logCtx, run, att, outcome.State)
	return outcome
}

// route copies the attachment into zone, then records the new path and the
// message status. Each step is attempted even if an earlier one failed.
func (w *AttachmentWorkflow) route(ctx context.Context, logCtx *slog.Logger, run *messageRun, att models.Attachment, zone string, failed bool) {
	if dest, err := w.relocator.Relocate(ctx, att.Bucket, att.ObjectKey(), zone); err != nil {
		logCtx.Error("Failed to relocate attachment. Recorded path will not match storage.", "zone", zone, "error", err)
	} else {
		logCtx.Info("Attachment relocated.", "zone", zone, "destination", dest)
	}

	path := w.relocator.Rewrite(att.ObjectPath, zone)
	if err := w.content.MarkAttachmentRelocated(ctx, att.ProcessAttachmentID.String(), path, w.config.ProcessedBy); err != nil {
		logCtx.Error("Failed to record attachment path.", "path", path, "error", err)
	}

	status := w.statusAfter(run, failed)
	if err := w.content.MarkMessageStatus(ctx, run.processID.String(), status, w.config.ProcessedBy); err != nil {
		logCtx.Error("Failed to record message status.", "status", status, "error", err)
	}
}

func (w *AttachmentWorkflow) alreadyDone(ctx context.Context, logCtx *slog.Logger, run *messageRun, att models.Attachment) bool {
	if w.cache == nil {
		return false
	}
	state, err := w.cache.Outcome(ctx, run.processID, att.ProcessAttachmentID)
	if err != nil {
		logCtx.Warn("Outcome cache unavailable. Processing attachment.", "error", err)
		return false
	}
	if state.Terminal() {
		logCtx.Info("Attachment already finished in an earlier delivery. Skipping.", "state", state)
		if state != models.StateSucceeded {
			run.failed = true
		}
		return true
	}
	return false
}

func (w *AttachmentWorkflow) remember(ctx context.Context, logCtx *slog.Logger, run *messageRun, att models.Attachment, state models.AttachmentState) {
	if w.cache == nil {
		return
	}
	if err := w.cache.Remember(ctx, run.processID, att.ProcessAttachmentID, state); err != nil {
		logCtx.Warn("Failed to cache attachment outcome.", "error", err)
	}
}

package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Lllllllleong/formextractionflow/internal/models"
	"github.com/jmoiron/sqlx"
)

// Config holds the fixed labels written with content rows.
type Config struct {
	ExtractType string
	ProcessedBy string
	UpdatedBy   string
}

func (c *Config) withDefaults() {
	if c.ExtractType == "" {
		c.ExtractType = "form"
	}
	if c.ProcessedBy == "" {
		c.ProcessedBy = "AI_Model"
	}
	if c.UpdatedBy == "" {
		c.UpdatedBy = "System"
	}
}

// ContentRepository implements the four pipeline writes. Every operation runs
// on its own connection, released before the call returns.
type ContentRepository struct {
	db     *sqlx.DB
	config Config
	now    func() time.Time
}

func NewContentRepository(db *sqlx.DB, cfg Config) *ContentRepository {
	cfg.withDefaults()
	return &ContentRepository{db: db, config: cfg, now: time.Now}
}

const insertContentSQL = `
	INSERT INTO process_content_ai (
		process_attachment_id, process_id, extract_type, description, page_number,
		field_key, field_value, confidence_score_key, confidence_score_value,
		processed_by, processed_date, updated_by, updated_date, key_value_sequence
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InsertFieldRecords writes every record of records in one transaction and
// reports true only when all of them were committed. key_value_sequence is the
// 1-based position of the record inside its page group. An empty batch
// writes nothing and reports false.
func (r *ContentRepository) InsertFieldRecords(ctx context.Context, processID, attachmentID string, records models.NormalizedRecords) (bool, error) {
	rows := r.contentRows(processID, attachmentID, records)
	if len(rows) == 0 {
		return false, nil
	}

	conn, err := r.db.Connx(ctx)
	if err != nil {
		return false, models.PersistenceError("failed to acquire connection", err)
	}
	defer conn.Close()

	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return false, models.PersistenceError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(insertContentSQL))
	if err != nil {
		return false, models.PersistenceError("failed to prepare insert", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx,
			row.ProcessAttachmentID, row.ProcessID, row.ExtractType, row.Description, row.PageNumber,
			row.FieldKey, row.FieldValue, row.ConfidenceScoreKey, row.ConfidenceScoreValue,
			row.ProcessedBy, row.ProcessedDate, row.UpdatedBy, row.UpdatedDate, row.KeyValueSequence,
		); err != nil {
			return false, models.PersistenceError(fmt.Sprintf("failed to insert %q", row.FieldKey), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, models.PersistenceError("failed to commit field records", err)
	}
	slog.Info("Inserted field records.", "processAttachmentId", attachmentID, "count", len(rows))
	return true, nil
}

func (r *ContentRepository) contentRows(processID, attachmentID string, records models.NormalizedRecords) []models.ProcessContentRecord {
	now := r.now().UTC()
	rows := make([]models.ProcessContentRecord, 0, records.Len())
	for _, group := range records {
		var description *string
		if group.Section != "" {
			section := group.Section
			description = &section
		}
		for i, rec := range group.Records {
			rows = append(rows, models.ProcessContentRecord{
				ProcessAttachmentID:  attachmentID,
				ProcessID:            processID,
				ExtractType:          r.config.ExtractType,
				Description:          description,
				PageNumber:           group.PageNumber,
				FieldKey:             rec.Key,
				FieldValue:           rec.Value,
				ConfidenceScoreKey:   rec.KeyConfidence,
				ConfidenceScoreValue: rec.ValueConfidence,
				ProcessedBy:          r.config.ProcessedBy,
				ProcessedDate:        now,
				UpdatedBy:            r.config.UpdatedBy,
				UpdatedDate:          now,
				KeyValueSequence:     i + 1,
			})
		}
	}
	return rows
}

// RecordRawModelOutput stores the decoded model response on the attachment row.
func (r *ContentRepository) RecordRawModelOutput(ctx context.Context, attachmentID string, output []byte) error {
	return r.exec(ctx, "record raw model output",
		`UPDATE process_attachment SET ai_output_json = ? WHERE process_attachment_id = ?`,
		string(output), attachmentID)
}

// MarkAttachmentRelocated records where the attachment now lives.
func (r *ContentRepository) MarkAttachmentRelocated(ctx context.Context, attachmentID, objectPath, processedBy string) error {
	return r.exec(ctx, "mark attachment relocated",
		`UPDATE process_attachment SET s3_object_path = ?, processed_by = ?, processed_date = ? WHERE process_attachment_id = ?`,
		objectPath, processedBy, r.now().UTC(), attachmentID)
}

// MarkMessageStatus sets the message-level status label.
func (r *ContentRepository) MarkMessageStatus(ctx context.Context, processID, status, processedBy string) error {
	return r.exec(ctx, "mark message status",
		`UPDATE process_data SET message_status = ?, message_processed_by = ?, message_processed_date = ? WHERE process_id = ?`,
		status, processedBy, r.now().UTC(), processID)
}

func (r *ContentRepository) exec(ctx context.Context, op, query string, args ...any) error {
	conn, err := r.db.Connx(ctx)
	if err != nil {
		return models.PersistenceError(op+": failed to acquire connection", err)
	}
	defer conn.Close()

	res, err := conn.ExecContext(ctx, conn.Rebind(query), args...)
	if err != nil {
		return models.PersistenceError(op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		slog.Warn("Update matched no rows.", "operation", op, "key", args[len(args)-1])
	}
	return nil
}

// ListFieldRecords returns the stored rows of an attachment in page and sequence order.
func (r *ContentRepository) ListFieldRecords(ctx context.Context, attachmentID string) ([]models.ProcessContentRecord, error) {
	conn, err := r.db.Connx(ctx)
	if err != nil {
		return nil, models.PersistenceError("failed to acquire connection", err)
	}
	defer conn.Close()

	var rows []models.ProcessContentRecord
	query := conn.Rebind(`
		SELECT process_attachment_id, process_id, extract_type, description, page_number,
			field_key, field_value, confidence_score_key, confidence_score_value,
			processed_by, processed_date, updated_by, updated_date, key_value_sequence
		FROM process_content_ai
		WHERE process_attachment_id = ?
		ORDER BY page_number, key_value_sequence`)
	if err := conn.SelectContext(ctx, &rows, query, attachmentID); err != nil {
		return nil, models.PersistenceError("failed to list field records", err)
	}
	return rows, nil
}

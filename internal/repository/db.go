// Package repository is the relational persistence gateway: extracted field
// records, raw model output, attachment placement and message status.
package repository

import (
	"context"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

// DriverPostgres is the database/sql driver registered by pgx.
const DriverPostgres = "pgx"

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, driver, dsn string, maxOpenConns int) (*sqlx.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN must be provided")
	}
	if driver == "" {
		driver = DriverPostgres
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxOpenConns)
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS process_data (
		process_id VARCHAR(64) PRIMARY KEY,
		message_status VARCHAR(64),
		message_processed_by VARCHAR(64),
		message_processed_date TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS process_attachment (
		process_attachment_id VARCHAR(64) PRIMARY KEY,
		process_id VARCHAR(64),
		s3_object_path TEXT,
		file_name TEXT,
		processed_by VARCHAR(64),
		processed_date TIMESTAMP,
		ai_output_json TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS process_content_ai (
		process_attachment_id VARCHAR(64) NOT NULL,
		process_id VARCHAR(64) NOT NULL,
		extract_type VARCHAR(32) NOT NULL,
		description TEXT,
		page_number INTEGER NOT NULL,
		field_key TEXT NOT NULL,
		field_value TEXT NOT NULL,
		confidence_score_key DOUBLE PRECISION NOT NULL,
		confidence_score_value DOUBLE PRECISION NOT NULL,
		processed_by VARCHAR(64) NOT NULL,
		processed_date TIMESTAMP NOT NULL,
		updated_by VARCHAR(64) NOT NULL,
		updated_date TIMESTAMP NOT NULL,
		key_value_sequence INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_process_content_ai_attachment
		ON process_content_ai (process_attachment_id, page_number, key_value_sequence)`,
}

// Migrate creates the tables used by the pipeline if they are missing.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

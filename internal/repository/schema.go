package repository

import (
	"context"
	"fmt"
)

// Migrate creates the schema if it does not exist. The DDL sticks to
// the portable subset both dialects accept; ids are TEXT uuids so the
// same statements run on Postgres and SQLite.
func Migrate(ctx context.Context, d *DB) error {
	for _, stmt := range schemaStatements {
		if _, err := d.SQL.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS cases (
		id            TEXT PRIMARY KEY,
		case_number   TEXT NOT NULL,
		case_name     TEXT NOT NULL,
		status        TEXT NOT NULL DEFAULT 'TRACKED',
		summary_ai    TEXT,
		summarized_at TIMESTAMP,
		created_at    TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS case_updates (
		id             TEXT PRIMARY KEY,
		case_id        TEXT NOT NULL REFERENCES cases(id),
		created_at     TIMESTAMP NOT NULL,
		summary_ap     TEXT,
		summary_html   TEXT,
		is_storyworthy BOOLEAN NOT NULL DEFAULT FALSE,
		emailed        BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS case_events (
		id               TEXT PRIMARY KEY,
		case_id          TEXT NOT NULL REFERENCES cases(id),
		event_date       TIMESTAMP NOT NULL,
		description      TEXT NOT NULL,
		filing_url       TEXT NOT NULL DEFAULT '',
		attachments_html TEXT,
		stage_completed  INTEGER NOT NULL DEFAULT 0,
		summary_ai       TEXT,
		summary_ai_html  TEXT,
		emailed          BOOLEAN NOT NULL DEFAULT FALSE,
		case_update_id   TEXT REFERENCES case_updates(id),
		attempting_at    TIMESTAMP,
		failure_reason   TEXT,
		created_at       TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS documents (
		id              TEXT PRIMARY KEY,
		case_id         TEXT NOT NULL REFERENCES cases(id),
		case_event_id   TEXT NOT NULL REFERENCES case_events(id),
		source_doc_id   TEXT NOT NULL,
		title           TEXT NOT NULL DEFAULT '',
		doc_type        TEXT NOT NULL DEFAULT 'Docket',
		source_url      TEXT NOT NULL DEFAULT '',
		rel_path        TEXT NOT NULL DEFAULT 'pending',
		ocr_text_raw    TEXT,
		ocr_text        TEXT,
		summary_ai      TEXT,
		summary_ai_html TEXT,
		excluded        BOOLEAN NOT NULL DEFAULT FALSE,
		retrieved_at    TIMESTAMP,
		processed_at    TIMESTAMP,
		UNIQUE (case_id, source_doc_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_case_events_stage
		ON case_events (stage_completed, event_date)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_event
		ON documents (case_event_id)`,
	`CREATE INDEX IF NOT EXISTS idx_case_updates_case
		ON case_updates (case_id, emailed)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_case_updates_one_open
		ON case_updates (case_id) WHERE summary_ap IS NULL AND emailed = FALSE`,
}

package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/casetrack/docketwatch/constants"
)

// Document represents one retrievable artifact (PDF) under a CaseEvent.
// RelPath holds constants.PendingPath until the file is fetched; the
// transition to a concrete path happens exactly once.
type Document struct {
	ID            uuid.UUID         `json:"id"`
	CaseID        uuid.UUID         `json:"case_id"`
	CaseEventID   uuid.UUID         `json:"case_event_id"`
	SourceDocID   string            `json:"source_doc_id"`
	Title         string            `json:"title"`
	DocType       constants.DocType `json:"doc_type"`
	SourceURL     string            `json:"source_url"`
	RelPath       string            `json:"rel_path"`
	OCRTextRaw    *string           `json:"ocr_text_raw,omitempty"`
	OCRText       *string           `json:"ocr_text,omitempty"`
	SummaryAI     *string           `json:"summary_ai,omitempty"`
	SummaryAIHTML *string           `json:"summary_ai_html,omitempty"`
	Excluded      bool              `json:"excluded"`
	RetrievedAt   *time.Time        `json:"retrieved_at,omitempty"`
	ProcessedAt   *time.Time        `json:"processed_at,omitempty"`
}

// Retrieved reports whether the document's bytes are on disk.
func (d *Document) Retrieved() bool {
	return d.RelPath != "" && d.RelPath != constants.PendingPath
}

// NeedsText reports whether the extraction stage still owes this
// document cleaned text.
func (d *Document) NeedsText() bool {
	return !d.Excluded && d.OCRText == nil
}

// NeedsSummary reports whether the document tier still owes a summary.
// A populated summary is terminal.
func (d *Document) NeedsSummary() bool {
	return !d.Excluded && d.OCRText != nil && d.SummaryAI == nil
}

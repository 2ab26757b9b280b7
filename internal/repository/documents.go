package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/casetrack/docketwatch/constants"
	"github.com/casetrack/docketwatch/internal/common"
	"github.com/casetrack/docketwatch/internal/entity"
)

type DocumentRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error)
	// RegisterIfAbsent inserts the document unless a row for
	// (case_id, source_doc_id) already exists. Returns whether a row
	// was inserted; the second registration of the same source id is a
	// no-op.
	RegisterIfAbsent(ctx context.Context, doc *entity.Document) (bool, error)
	// ListByEvent returns the event's documents in retrieval order
	// (oldest retrieval first, unretrieved last).
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*entity.Document, error)
	// MarkRetrieved transitions rel_path from the pending sentinel to a
	// concrete path exactly once; repeated calls return false.
	MarkRetrieved(ctx context.Context, id uuid.UUID, relPath string) (bool, error)
	SetText(ctx context.Context, id uuid.UUID, raw, clean string) error
	// MarkExcluded records a quality-gate failure: a legitimate
	// terminal state, not an error.
	MarkExcluded(ctx context.Context, id uuid.UUID) error
	SetSummary(ctx context.Context, id uuid.UUID, text, html string) error
}

type documentRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewDocumentRepository(db *DB, logger *slog.Logger) DocumentRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &documentRepository{db: db, logger: logger}
}

var documentColumns = []string{
	"id", "case_id", "case_event_id", "source_doc_id", "title", "doc_type",
	"source_url", "rel_path", "ocr_text_raw", "ocr_text", "summary_ai",
	"summary_ai_html", "excluded", "retrieved_at", "processed_at",
}

func scanDocument(row sq.RowScanner) (*entity.Document, error) {
	var (
		d                      entity.Document
		idStr, caseID, eventID string
		docType                string
		raw, clean             sql.NullString
		summary, summaryHTML   sql.NullString
		retrievedAt            sql.NullTime
		processedAt            sql.NullTime
	)
	err := row.Scan(&idStr, &caseID, &eventID, &d.SourceDocID, &d.Title, &docType,
		&d.SourceURL, &d.RelPath, &raw, &clean, &summary, &summaryHTML,
		&d.Excluded, &retrievedAt, &processedAt)
	if err != nil {
		return nil, err
	}
	if d.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("document id: %w", err)
	}
	if d.CaseID, err = uuid.Parse(caseID); err != nil {
		return nil, fmt.Errorf("document case id: %w", err)
	}
	if d.CaseEventID, err = uuid.Parse(eventID); err != nil {
		return nil, fmt.Errorf("document event id: %w", err)
	}
	d.DocType = constants.DocType(docType)
	if raw.Valid {
		d.OCRTextRaw = &raw.String
	}
	if clean.Valid {
		d.OCRText = &clean.String
	}
	if summary.Valid {
		d.SummaryAI = &summary.String
	}
	if summaryHTML.Valid {
		d.SummaryAIHTML = &summaryHTML.String
	}
	if retrievedAt.Valid {
		d.RetrievedAt = &retrievedAt.Time
	}
	if processedAt.Valid {
		d.ProcessedAt = &processedAt.Time
	}
	return &d, nil
}

func (r *documentRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	query, args, err := r.db.SB.
		Select(documentColumns...).
		From("documents").
		Where("id = ?", id.String()).
		ToSql()
	if err != nil {
		return nil, err
	}
	d, err := scanDocument(r.db.SQL.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, common.ErrNotFound)
	}
	return d, err
}

func (r *documentRepository) RegisterIfAbsent(ctx context.Context, doc *entity.Document) (bool, error) {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.RelPath == "" {
		doc.RelPath = constants.PendingPath
	}
	query, args, err := r.db.SB.
		Insert("documents").
		Columns("id", "case_id", "case_event_id", "source_doc_id", "title", "doc_type", "source_url", "rel_path").
		Values(doc.ID.String(), doc.CaseID.String(), doc.CaseEventID.String(),
			doc.SourceDocID, doc.Title, string(doc.DocType), doc.SourceURL, doc.RelPath).
		Suffix("ON CONFLICT (case_id, source_doc_id) DO NOTHING").
		ToSql()
	if err != nil {
		return false, err
	}
	res, err := r.db.SQL.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("document register failed",
			"case_id", doc.CaseID, "source_doc_id", doc.SourceDocID, "error", err)
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		r.logger.Debug("document already cataloged",
			"case_id", doc.CaseID, "source_doc_id", doc.SourceDocID)
		return false, nil
	}
	r.logger.Info("document cataloged",
		"doc_id", doc.ID, "event_id", doc.CaseEventID,
		"source_doc_id", doc.SourceDocID, "type", string(doc.DocType))
	return true, nil
}

func (r *documentRepository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*entity.Document, error) {
	query, args, err := r.db.SB.
		Select(documentColumns...).
		From("documents").
		Where("case_event_id = ?", eventID.String()).
		OrderBy("retrieved_at ASC", "source_doc_id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.SQL.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*entity.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *documentRepository) MarkRetrieved(ctx context.Context, id uuid.UUID, relPath string) (bool, error) {
	if relPath == "" || relPath == constants.PendingPath {
		return false, fmt.Errorf("mark retrieved %s: %w", id, common.ErrInvalidInput)
	}
	query, args, err := r.db.SB.
		Update("documents").
		Set("rel_path", relPath).
		Set("retrieved_at", time.Now().UTC()).
		Where("id = ?", id.String()).
		Where("rel_path = ?", constants.PendingPath).
		ToSql()
	if err != nil {
		return false, err
	}
	res, err := r.db.SQL.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("mark retrieved failed", "doc_id", id, "error", err)
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		r.logger.Debug("document already retrieved", "doc_id", id)
		return false, nil
	}
	r.logger.Info("document retrieved", "doc_id", id, "rel_path", relPath)
	return true, nil
}

func (r *documentRepository) SetText(ctx context.Context, id uuid.UUID, raw, clean string) error {
	query, args, err := r.db.SB.
		Update("documents").
		Set("ocr_text_raw", raw).
		Set("ocr_text", clean).
		Set("processed_at", time.Now().UTC()).
		Where("id = ?", id.String()).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := r.db.SQL.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("document text update failed", "doc_id", id, "error", err)
		return err
	}
	return nil
}

func (r *documentRepository) MarkExcluded(ctx context.Context, id uuid.UUID) error {
	query, args, err := r.db.SB.
		Update("documents").
		Set("excluded", true).
		Set("processed_at", time.Now().UTC()).
		Where("id = ?", id.String()).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := r.db.SQL.ExecContext(ctx, query, args...); err != nil {
		return err
	}
	r.logger.Info("document excluded by quality gate", "doc_id", id)
	return nil
}

func (r *documentRepository) SetSummary(ctx context.Context, id uuid.UUID, text, html string) error {
	query, args, err := r.db.SB.
		Update("documents").
		Set("summary_ai", text).
		Set("summary_ai_html", html).
		Where("id = ?", id.String()).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := r.db.SQL.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("document summary update failed", "doc_id", id, "error", err)
		return err
	}
	return nil
}

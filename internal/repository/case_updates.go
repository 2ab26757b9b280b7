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

	"github.com/casetrack/docketwatch/internal/common"
	"github.com/casetrack/docketwatch/internal/entity"
)

type CaseUpdateRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.CaseUpdate, error)
	// GetOrCreateOpen returns the case's open update (unemailed, not yet
	// summarized), creating one if none exists. Events join the open
	// update until it is summarized and alerted.
	GetOrCreateOpen(ctx context.Context, caseID uuid.UUID) (*entity.CaseUpdate, error)
	SetSummaries(ctx context.Context, id uuid.UUID, apText, narrativeHTML string, storyworthy bool) error
	// ListStoryworthy returns storyworthy, unemailed updates for export
	// and alerting, newest first.
	ListStoryworthy(ctx context.Context, limit int) ([]*entity.CaseUpdate, error)
}

type caseUpdateRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewCaseUpdateRepository(db *DB, logger *slog.Logger) CaseUpdateRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &caseUpdateRepository{db: db, logger: logger}
}

var caseUpdateColumns = []string{
	"id", "case_id", "created_at", "summary_ap", "summary_html", "is_storyworthy", "emailed",
}

func scanCaseUpdate(row sq.RowScanner) (*entity.CaseUpdate, error) {
	var (
		u             entity.CaseUpdate
		idStr, caseID string
		ap, html      sql.NullString
	)
	err := row.Scan(&idStr, &caseID, &u.CreatedAt, &ap, &html, &u.IsStoryworthy, &u.Emailed)
	if err != nil {
		return nil, err
	}
	if u.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("update id: %w", err)
	}
	if u.CaseID, err = uuid.Parse(caseID); err != nil {
		return nil, fmt.Errorf("update case id: %w", err)
	}
	if ap.Valid {
		u.SummaryAP = &ap.String
	}
	if html.Valid {
		u.SummaryHTML = &html.String
	}
	return &u, nil
}

func (r *caseUpdateRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.CaseUpdate, error) {
	query, args, err := r.db.SB.
		Select(caseUpdateColumns...).
		From("case_updates").
		Where("id = ?", id.String()).
		ToSql()
	if err != nil {
		return nil, err
	}
	u, err := scanCaseUpdate(r.db.SQL.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("case update %s: %w", id, common.ErrNotFound)
	}
	return u, err
}

func (r *caseUpdateRepository) GetOrCreateOpen(ctx context.Context, caseID uuid.UUID) (*entity.CaseUpdate, error) {
	u, err := r.findOpen(ctx, caseID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	created := &entity.CaseUpdate{
		ID:        uuid.New(),
		CaseID:    caseID,
		CreatedAt: time.Now().UTC(),
	}
	// The partial unique index allows one open update per case, so a
	// concurrent opener makes this a no-op and we read theirs back.
	query, args, err := r.db.SB.
		Insert("case_updates").
		Columns("id", "case_id", "created_at", "is_storyworthy", "emailed").
		Values(created.ID.String(), created.CaseID.String(), created.CreatedAt, false, false).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return nil, err
	}
	res, err := r.db.SQL.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("case update create failed", "case_id", caseID, "error", err)
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		u, err := r.findOpen(ctx, caseID)
		if err != nil {
			return nil, fmt.Errorf("open update for case %s lost after conflict: %w", caseID, err)
		}
		return u, nil
	}
	r.logger.Info("case update opened", "update_id", created.ID, "case_id", caseID)
	return created, nil
}

func (r *caseUpdateRepository) findOpen(ctx context.Context, caseID uuid.UUID) (*entity.CaseUpdate, error) {
	query, args, err := r.db.SB.
		Select(caseUpdateColumns...).
		From("case_updates").
		Where("case_id = ?", caseID.String()).
		Where("emailed = ?", false).
		Where("summary_ap IS NULL").
		OrderBy("created_at ASC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}
	return scanCaseUpdate(r.db.SQL.QueryRowContext(ctx, query, args...))
}

func (r *caseUpdateRepository) SetSummaries(ctx context.Context, id uuid.UUID, apText, narrativeHTML string, storyworthy bool) error {
	query, args, err := r.db.SB.
		Update("case_updates").
		Set("summary_ap", apText).
		Set("summary_html", narrativeHTML).
		Set("is_storyworthy", storyworthy).
		Where("id = ?", id.String()).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := r.db.SQL.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("case update summaries failed", "update_id", id, "error", err)
		return err
	}
	r.logger.Info("case update summarized", "update_id", id, "storyworthy", storyworthy)
	return nil
}

func (r *caseUpdateRepository) ListStoryworthy(ctx context.Context, limit int) ([]*entity.CaseUpdate, error) {
	sb := r.db.SB.
		Select(caseUpdateColumns...).
		From("case_updates").
		Where("is_storyworthy = ?", true).
		Where("emailed = ?", false).
		OrderBy("created_at DESC")
	if limit > 0 {
		sb = sb.Limit(uint64(limit))
	}
	query, args, err := sb.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.SQL.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*entity.CaseUpdate
	for rows.Next() {
		u, err := scanCaseUpdate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

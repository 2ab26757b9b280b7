package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/casetrack/docketwatch/constants"
	"github.com/casetrack/docketwatch/internal/common"
	"github.com/casetrack/docketwatch/internal/entity"
)

type CaseRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Case, error)
	Create(ctx context.Context, c *entity.Case) error
	SetStatus(ctx context.Context, id uuid.UUID, status constants.CaseStatus) error
	// SetSummary stores the case-level digest and stamps summarized_at.
	SetSummary(ctx context.Context, id uuid.UUID, summary string) error
	// TouchSummaryAttempt stamps summarized_at without a summary, so a
	// failed digest call is not retried on every pass.
	TouchSummaryAttempt(ctx context.Context, id uuid.UUID) error
}

type caseRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewCaseRepository(db *DB, logger *slog.Logger) CaseRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &caseRepository{db: db, logger: logger}
}

func (r *caseRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Case, error) {
	query, args, err := r.db.SB.
		Select("id", "case_number", "case_name", "status", "summary_ai", "summarized_at", "created_at").
		From("cases").
		Where("id = ?", id.String()).
		ToSql()
	if err != nil {
		return nil, err
	}

	var (
		c            entity.Case
		idStr        string
		status       string
		summary      sql.NullString
		summarizedAt sql.NullTime
	)
	row := r.db.SQL.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&idStr, &c.CaseNumber, &c.CaseName, &status, &summary, &summarizedAt, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("case %s: %w", id, common.ErrNotFound)
		}
		return nil, err
	}
	c.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("case id: %w", err)
	}
	c.Status = constants.CaseStatus(status)
	if summary.Valid {
		c.SummaryAI = &summary.String
	}
	if summarizedAt.Valid {
		c.SummarizedAt = &summarizedAt.Time
	}
	return &c, nil
}

func (r *caseRepository) Create(ctx context.Context, c *entity.Case) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.Status == "" {
		c.Status = constants.CaseStatusTracked
	}
	query, args, err := r.db.SB.
		Insert("cases").
		Columns("id", "case_number", "case_name", "status", "created_at").
		Values(c.ID.String(), c.CaseNumber, c.CaseName, string(c.Status), c.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := r.db.SQL.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("case create failed", "case_number", c.CaseNumber, "error", err)
		return err
	}
	return nil
}

func (r *caseRepository) SetStatus(ctx context.Context, id uuid.UUID, status constants.CaseStatus) error {
	query, args, err := r.db.SB.
		Update("cases").
		Set("status", string(status)).
		Where("id = ?", id.String()).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.SQL.ExecContext(ctx, query, args...)
	return err
}

func (r *caseRepository) SetSummary(ctx context.Context, id uuid.UUID, summary string) error {
	query, args, err := r.db.SB.
		Update("cases").
		Set("summary_ai", summary).
		Set("summarized_at", time.Now().UTC()).
		Where("id = ?", id.String()).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := r.db.SQL.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("case summary update failed", "case_id", id, "error", err)
		return err
	}
	r.logger.Info("case summary stored", "case_id", id, "bytes", len(summary))
	return nil
}

func (r *caseRepository) TouchSummaryAttempt(ctx context.Context, id uuid.UUID) error {
	query, args, err := r.db.SB.
		Update("cases").
		Set("summarized_at", time.Now().UTC()).
		Where("id = ?", id.String()).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.SQL.ExecContext(ctx, query, args...)
	return err
}

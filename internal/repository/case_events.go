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

type CaseEventRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.CaseEvent, error)
	Create(ctx context.Context, ev *entity.CaseEvent) error
	// ListEligible selects up to limit events with work remaining on
	// tracked cases. Events closest to done come first, then
	// chronological filing order.
	ListEligible(ctx context.Context, limit int) ([]*entity.CaseEvent, error)
	// AdvanceStage performs the conditional stage transition. It only
	// succeeds when the stored stage still equals from, which keeps
	// stage_completed monotonic across racing workers.
	AdvanceStage(ctx context.Context, id uuid.UUID, from, to constants.Stage) (bool, error)
	SetSummary(ctx context.Context, id uuid.UUID, text, html string) error
	MarkAttempting(ctx context.Context, id uuid.UUID, at time.Time) error
	SetFailureReason(ctx context.Context, id uuid.UUID, reason string) error
	ClearFailure(ctx context.Context, id uuid.UUID) error
	// ClaimForUpdate sets case_update_id once; an event already claimed
	// by another update is left untouched and false is returned.
	ClaimForUpdate(ctx context.Context, eventID, updateID uuid.UUID) (bool, error)
	ListByUpdate(ctx context.Context, updateID uuid.UUID) ([]*entity.CaseEvent, error)
	// ListSummarizedByCase returns finalized events for the case-level
	// digest, oldest first.
	ListSummarizedByCase(ctx context.Context, caseID uuid.UUID) ([]*entity.CaseEvent, error)
}

type caseEventRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewCaseEventRepository(db *DB, logger *slog.Logger) CaseEventRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &caseEventRepository{db: db, logger: logger}
}

var caseEventColumns = []string{
	"id", "case_id", "event_date", "description", "filing_url",
	"attachments_html", "stage_completed", "summary_ai", "summary_ai_html",
	"emailed", "case_update_id", "attempting_at", "failure_reason", "created_at",
}

func scanCaseEvent(row sq.RowScanner) (*entity.CaseEvent, error) {
	var (
		ev            entity.CaseEvent
		idStr, caseID string
		attachments   sql.NullString
		stage         int
		summary       sql.NullString
		summaryHTML   sql.NullString
		updateID      sql.NullString
		attemptingAt  sql.NullTime
		failureReason sql.NullString
	)
	err := row.Scan(&idStr, &caseID, &ev.EventDate, &ev.Description, &ev.FilingURL,
		&attachments, &stage, &summary, &summaryHTML,
		&ev.Emailed, &updateID, &attemptingAt, &failureReason, &ev.CreatedAt)
	if err != nil {
		return nil, err
	}
	if ev.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("event id: %w", err)
	}
	if ev.CaseID, err = uuid.Parse(caseID); err != nil {
		return nil, fmt.Errorf("event case id: %w", err)
	}
	ev.StageCompleted = constants.Stage(stage)
	if attachments.Valid {
		ev.AttachmentsHTML = &attachments.String
	}
	if summary.Valid {
		ev.SummaryAI = &summary.String
	}
	if summaryHTML.Valid {
		ev.SummaryAIHTML = &summaryHTML.String
	}
	if updateID.Valid {
		uid, err := uuid.Parse(updateID.String)
		if err != nil {
			return nil, fmt.Errorf("event update id: %w", err)
		}
		ev.CaseUpdateID = &uid
	}
	if attemptingAt.Valid {
		ev.AttemptingAt = &attemptingAt.Time
	}
	if failureReason.Valid {
		ev.FailureReason = &failureReason.String
	}
	return &ev, nil
}

func (r *caseEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.CaseEvent, error) {
	query, args, err := r.db.SB.
		Select(caseEventColumns...).
		From("case_events").
		Where("id = ?", id.String()).
		ToSql()
	if err != nil {
		return nil, err
	}
	ev, err := scanCaseEvent(r.db.SQL.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("case event %s: %w", id, common.ErrNotFound)
	}
	return ev, err
}

func (r *caseEventRepository) Create(ctx context.Context, ev *entity.CaseEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	query, args, err := r.db.SB.
		Insert("case_events").
		Columns("id", "case_id", "event_date", "description", "filing_url", "attachments_html", "stage_completed", "emailed", "created_at").
		Values(ev.ID.String(), ev.CaseID.String(), ev.EventDate, ev.Description, ev.FilingURL,
			nullable(ev.AttachmentsHTML), int(ev.StageCompleted), ev.Emailed, ev.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := r.db.SQL.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("case event create failed", "case_id", ev.CaseID, "error", err)
		return err
	}
	return nil
}

func (r *caseEventRepository) ListEligible(ctx context.Context, limit int) ([]*entity.CaseEvent, error) {
	sb := r.db.SB.
		Select(prefixColumns("e", caseEventColumns)...).
		From("case_events e").
		Join("cases c ON c.id = e.case_id").
		Where("c.status = ?", string(constants.CaseStatusTracked)).
		Where("e.stage_completed < ?", int(constants.StageMax)).
		OrderBy("e.stage_completed DESC", "e.event_date ASC")
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

	var out []*entity.CaseEvent
	for rows.Next() {
		ev, err := scanCaseEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (r *caseEventRepository) AdvanceStage(ctx context.Context, id uuid.UUID, from, to constants.Stage) (bool, error) {
	if to <= from {
		return false, fmt.Errorf("stage %d -> %d: %w", from, to, common.ErrConflict)
	}
	query, args, err := r.db.SB.
		Update("case_events").
		Set("stage_completed", int(to)).
		Where("id = ?", id.String()).
		Where("stage_completed = ?", int(from)).
		ToSql()
	if err != nil {
		return false, err
	}
	res, err := r.db.SQL.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("stage advance failed", "event_id", id, "from", from, "to", to, "error", err)
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		r.logger.Warn("stage advance skipped, stored stage moved", "event_id", id, "from", from, "to", to)
		return false, nil
	}
	r.logger.Info("stage advanced", "event_id", id, "stage", to.String())
	return true, nil
}

func (r *caseEventRepository) SetSummary(ctx context.Context, id uuid.UUID, text, html string) error {
	query, args, err := r.db.SB.
		Update("case_events").
		Set("summary_ai", text).
		Set("summary_ai_html", html).
		Where("id = ?", id.String()).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.SQL.ExecContext(ctx, query, args...)
	return err
}

func (r *caseEventRepository) MarkAttempting(ctx context.Context, id uuid.UUID, at time.Time) error {
	query, args, err := r.db.SB.
		Update("case_events").
		Set("attempting_at", at.UTC()).
		Where("id = ?", id.String()).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.SQL.ExecContext(ctx, query, args...)
	return err
}

func (r *caseEventRepository) SetFailureReason(ctx context.Context, id uuid.UUID, reason string) error {
	query, args, err := r.db.SB.
		Update("case_events").
		Set("failure_reason", reason).
		Where("id = ?", id.String()).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.SQL.ExecContext(ctx, query, args...)
	return err
}

func (r *caseEventRepository) ClearFailure(ctx context.Context, id uuid.UUID) error {
	query, args, err := r.db.SB.
		Update("case_events").
		Set("failure_reason", nil).
		Where("id = ?", id.String()).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.SQL.ExecContext(ctx, query, args...)
	return err
}

func (r *caseEventRepository) ClaimForUpdate(ctx context.Context, eventID, updateID uuid.UUID) (bool, error) {
	query, args, err := r.db.SB.
		Update("case_events").
		Set("case_update_id", updateID.String()).
		Where("id = ?", eventID.String()).
		Where("case_update_id IS NULL").
		ToSql()
	if err != nil {
		return false, err
	}
	res, err := r.db.SQL.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *caseEventRepository) ListByUpdate(ctx context.Context, updateID uuid.UUID) ([]*entity.CaseEvent, error) {
	query, args, err := r.db.SB.
		Select(caseEventColumns...).
		From("case_events").
		Where("case_update_id = ?", updateID.String()).
		OrderBy("event_date ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	return r.queryEvents(ctx, query, args)
}

func (r *caseEventRepository) ListSummarizedByCase(ctx context.Context, caseID uuid.UUID) ([]*entity.CaseEvent, error) {
	query, args, err := r.db.SB.
		Select(caseEventColumns...).
		From("case_events").
		Where("case_id = ?", caseID.String()).
		Where("summary_ai IS NOT NULL").
		OrderBy("event_date ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	return r.queryEvents(ctx, query, args)
}

func (r *caseEventRepository) queryEvents(ctx context.Context, query string, args []interface{}) ([]*entity.CaseEvent, error) {
	rows, err := r.db.SQL.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*entity.CaseEvent
	for rows.Next() {
		ev, err := scanCaseEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func prefixColumns(alias string, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = alias + "." + c
	}
	return out
}

func nullable(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

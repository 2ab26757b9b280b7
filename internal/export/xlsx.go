// Package export writes storyworthy case updates to an XLSX workbook
// for the editorial desk.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/casetrack/docketwatch/internal/repository"
)

const sheetName = "Case Updates"

type Exporter struct {
	cases   repository.CaseRepository
	updates repository.CaseUpdateRepository
	logger  *slog.Logger
}

func NewExporter(cases repository.CaseRepository, updates repository.CaseUpdateRepository, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{cases: cases, updates: updates, logger: logger}
}

// WriteStoryworthy exports up to limit storyworthy, unalerted updates
// (newest first) to path. Returns the number of rows written.
func (e *Exporter) WriteStoryworthy(ctx context.Context, path string, limit int) (int, error) {
	updates, err := e.updates.ListStoryworthy(ctx, limit)
	if err != nil {
		return 0, err
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			e.logger.Warn("workbook close failed", "error", err)
		}
	}()

	idx, err := f.NewSheet(sheetName)
	if err != nil {
		return 0, err
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return 0, err
	}

	headers := []string{"Case Number", "Case Name", "Opened", "Bulletin", "Narrative"}
	for col, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return 0, err
		}
	}
	_ = f.SetColWidth(sheetName, "D", "E", 80)

	row := 2
	for _, u := range updates {
		cs, err := e.cases.GetByID(ctx, u.CaseID)
		if err != nil {
			return 0, fmt.Errorf("case for update %s: %w", u.ID, err)
		}
		values := []any{
			cs.CaseNumber,
			cs.CaseName,
			u.CreatedAt.Format(time.RFC3339),
			deref(u.SummaryAP),
			deref(u.SummaryHTML),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return 0, err
			}
		}
		row++
	}

	if err := f.SaveAs(path); err != nil {
		return 0, fmt.Errorf("save workbook: %w", err)
	}
	e.logger.Info("storyworthy updates exported", "path", path, "rows", row-2)
	return row - 2, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

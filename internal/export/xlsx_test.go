package export

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/casetrack/docketwatch/internal/entity"
	"github.com/casetrack/docketwatch/internal/repository"
)

func TestWriteStoryworthy(t *testing.T) {
	ctx := context.Background()
	db, err := repository.OpenSQLite(ctx, ":memory:", slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(slog.Default()) })

	cases := repository.NewCaseRepository(db, nil)
	updates := repository.NewCaseUpdateRepository(db, nil)

	cs := &entity.Case{CaseNumber: "1:24-cv-55", CaseName: "Doe v. Acme"}
	require.NoError(t, cases.Create(ctx, cs))

	story, err := updates.GetOrCreateOpen(ctx, cs.ID)
	require.NoError(t, err)
	require.NoError(t, updates.SetSummaries(ctx, story.ID, "Judge dismisses suit.", "<p>dismissed</p>", true))

	routine, err := updates.GetOrCreateOpen(ctx, cs.ID)
	require.NoError(t, err)
	require.NoError(t, updates.SetSummaries(ctx, routine.ID, "Scheduling order entered.", "<p>scheduled</p>", false))

	path := filepath.Join(t.TempDir(), "updates.xlsx")
	n, err := NewExporter(cases, updates, nil).WriteStoryworthy(ctx, path, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Case Number", "Case Name", "Opened", "Bulletin", "Narrative"}, rows[0])
	assert.Equal(t, "1:24-cv-55", rows[1][0])
	assert.Equal(t, "Judge dismisses suit.", rows[1][3])
}

func TestWriteStoryworthyEmpty(t *testing.T) {
	ctx := context.Background()
	db, err := repository.OpenSQLite(ctx, ":memory:", slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(slog.Default()) })

	path := filepath.Join(t.TempDir(), "empty.xlsx")
	n, err := NewExporter(repository.NewCaseRepository(db, nil), repository.NewCaseUpdateRepository(db, nil), nil).
		WriteStoryworthy(ctx, path, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

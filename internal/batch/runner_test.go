package batch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casetrack/docketwatch/constants"
	"github.com/casetrack/docketwatch/internal/entity"
	"github.com/casetrack/docketwatch/internal/repository"
)

// memEvents implements the scheduler-facing slice of the events
// repository in memory. Each event belongs to its own case unless the
// test reassigns CaseID.
type memEvents struct {
	repository.CaseEventRepository

	mu         sync.Mutex
	eligible   []*entity.CaseEvent
	attempting map[uuid.UUID]time.Time
	failures   map[uuid.UUID]string
}

func newMemEvents(n int) *memEvents {
	m := &memEvents{
		attempting: map[uuid.UUID]time.Time{},
		failures:   map[uuid.UUID]string{},
	}
	for i := 0; i < n; i++ {
		m.eligible = append(m.eligible, &entity.CaseEvent{
			ID:        uuid.New(),
			CaseID:    uuid.New(),
			EventDate: time.Date(2026, 8, 1+i, 0, 0, 0, 0, time.UTC),
		})
	}
	return m
}

func (m *memEvents) ListEligible(_ context.Context, limit int) ([]*entity.CaseEvent, error) {
	if limit > 0 && limit < len(m.eligible) {
		return m.eligible[:limit], nil
	}
	return m.eligible, nil
}

func (m *memEvents) MarkAttempting(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempting[id] = at
	return nil
}

func (m *memEvents) SetFailureReason(_ context.Context, id uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[id] = reason
	return nil
}

func (m *memEvents) ClearFailure(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failures, id)
	return nil
}

// stubProcessor scripts per-event outcomes and tracks how many events
// of each case run at the same time.
type stubProcessor struct {
	mu        sync.Mutex
	failing   map[uuid.UUID]error
	failTimes map[uuid.UUID]int // fail only the first N attempts
	panicked  map[uuid.UUID]bool
	slow      map[uuid.UUID]time.Duration
	calls     map[uuid.UUID]int
	caseOf    map[uuid.UUID]uuid.UUID
	active    map[uuid.UUID]int
	maxActive map[uuid.UUID]int
}

func newStubProcessor() *stubProcessor {
	return &stubProcessor{
		failing:   map[uuid.UUID]error{},
		failTimes: map[uuid.UUID]int{},
		panicked:  map[uuid.UUID]bool{},
		slow:      map[uuid.UUID]time.Duration{},
		calls:     map[uuid.UUID]int{},
		caseOf:    map[uuid.UUID]uuid.UUID{},
		active:    map[uuid.UUID]int{},
		maxActive: map[uuid.UUID]int{},
	}
}

func (p *stubProcessor) ProcessCaseEvent(ctx context.Context, id uuid.UUID) error {
	p.mu.Lock()
	p.calls[id]++
	err := p.failing[id]
	if n, ok := p.failTimes[id]; ok && err != nil && p.calls[id] > n {
		err = nil
	}
	panics := p.panicked[id]
	delay := p.slow[id]
	caseID, tracked := p.caseOf[id]
	if tracked {
		p.active[caseID]++
		if p.active[caseID] > p.maxActive[caseID] {
			p.maxActive[caseID] = p.active[caseID]
		}
	}
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			if tracked {
				p.mu.Lock()
				p.active[caseID]--
				p.mu.Unlock()
			}
			return ctx.Err()
		}
	}
	if tracked {
		p.mu.Lock()
		p.active[caseID]--
		p.mu.Unlock()
	}
	if panics {
		panic("poisoned document")
	}
	return err
}

func opts() Options {
	return Options{Workers: 3, AttemptTimeout: time.Second, RetryDelay: time.Millisecond}
}

func TestRunAllSucceed(t *testing.T) {
	events := newMemEvents(5)
	proc := newStubProcessor()
	r := NewRunner(events, proc, opts(), slog.Default())

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, report.Selected)
	assert.Equal(t, 5, report.Succeeded)
	assert.Zero(t, report.Failed)
	assert.Zero(t, report.ExitCode())
	for _, ev := range events.eligible {
		assert.Contains(t, events.attempting, ev.ID)
	}
}

func TestRunOneFailureDoesNotStopTheBatch(t *testing.T) {
	events := newMemEvents(5)
	proc := newStubProcessor()
	bad := events.eligible[2].ID
	proc.failing[bad] = fmt.Errorf("fetch document main-1: status 503")
	r := NewRunner(events, proc, opts(), slog.Default())

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.ExitCode())
	require.Len(t, report.Failures, 1)
	assert.Equal(t, bad.String(), report.Failures[0].EventID)
	assert.Equal(t, 1, report.Reasons["process error"])
	// Both attempts were spent before giving up.
	assert.Equal(t, 2, proc.calls[bad])
}

func TestRunPersistsFailureCause(t *testing.T) {
	events := newMemEvents(1)
	proc := newStubProcessor()
	bad := events.eligible[0].ID
	proc.failing[bad] = fmt.Errorf("fetch document main-1: status 503")
	r := NewRunner(events, proc, opts(), slog.Default())

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	// The stored reason carries the cause, not just the category.
	assert.Equal(t, "process error: fetch document main-1: status 503", events.failures[bad])
	assert.Equal(t, events.failures[bad], report.Failures[0].Reason)
}

func TestRunPanicIsIsolated(t *testing.T) {
	events := newMemEvents(3)
	proc := newStubProcessor()
	bad := events.eligible[0].ID
	proc.panicked[bad] = true
	r := NewRunner(events, proc, opts(), slog.Default())

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Reasons["unknown error"])
	assert.Contains(t, events.failures[bad], "poisoned document")
}

func TestRunTimeoutReason(t *testing.T) {
	events := newMemEvents(1)
	proc := newStubProcessor()
	slow := events.eligible[0].ID
	proc.slow[slow] = 500 * time.Millisecond
	o := opts()
	o.AttemptTimeout = 20 * time.Millisecond
	r := NewRunner(events, proc, o, slog.Default())

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Reasons["timeout"])
}

func TestRunRetryRecovers(t *testing.T) {
	events := newMemEvents(1)
	proc := newStubProcessor()
	flaky := events.eligible[0].ID
	proc.failing[flaky] = fmt.Errorf("transient")
	proc.failTimes[flaky] = 1 // only the first attempt fails
	r := NewRunner(events, proc, opts(), slog.Default())

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Zero(t, report.Failed)
	assert.NotContains(t, events.failures, flaky)
}

func TestRunRespectsLimit(t *testing.T) {
	events := newMemEvents(10)
	proc := newStubProcessor()
	o := opts()
	o.Limit = 4
	r := NewRunner(events, proc, o, slog.Default())

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, report.Selected)
	assert.Equal(t, 4, report.Succeeded)
}

func TestRunEmptySelection(t *testing.T) {
	events := newMemEvents(0)
	r := NewRunner(events, newStubProcessor(), opts(), slog.Default())

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Selected)
	assert.Zero(t, report.ExitCode())
}

func TestRunSerializesEventsOfOneCase(t *testing.T) {
	events := newMemEvents(4)
	// Two cases with two events each.
	caseA := events.eligible[0].CaseID
	caseB := events.eligible[2].CaseID
	events.eligible[1].CaseID = caseA
	events.eligible[3].CaseID = caseB

	proc := newStubProcessor()
	for _, ev := range events.eligible {
		proc.caseOf[ev.ID] = ev.CaseID
		proc.slow[ev.ID] = 30 * time.Millisecond
	}
	r := NewRunner(events, proc, opts(), slog.Default())

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, report.Succeeded)
	// No two events of the same case ever ran at once.
	assert.Equal(t, 1, proc.maxActive[caseA])
	assert.Equal(t, 1, proc.maxActive[caseB])
}

func TestNewRunnerCapsWorkersAtCPUCount(t *testing.T) {
	events := newMemEvents(0)
	r := NewRunner(events, newStubProcessor(), Options{Workers: 1 << 10}, slog.Default())
	assert.LessOrEqual(t, r.opts.Workers, runtime.NumCPU())

	r = NewRunner(events, newStubProcessor(), Options{}, slog.Default())
	assert.GreaterOrEqual(t, r.opts.Workers, 1)
	assert.LessOrEqual(t, r.opts.Workers, runtime.NumCPU())
}

func TestStageConstantsDriveSelection(t *testing.T) {
	// The scheduler contract: anything below the terminal stage is work.
	assert.Equal(t, constants.Stage(5), constants.StageMax)
}

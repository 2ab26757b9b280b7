// Package batch runs many case events through the pipeline with
// bounded parallelism. One failed event never stops the batch; it is
// documented in the report and retried on a later run.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/casetrack/docketwatch/internal/repository"
)

const attemptsPerEvent = 2

// errPanicked marks an attempt that died in a recover, as opposed to
// an ordinary error return from the pipeline.
var errPanicked = errors.New("processor panicked")

// EventProcessor is what the runner drives; the pipeline's processor
// satisfies it.
type EventProcessor interface {
	ProcessCaseEvent(ctx context.Context, eventID uuid.UUID) error
}

type Options struct {
	Workers        int
	Limit          int
	AttemptTimeout time.Duration
	RetryDelay     time.Duration
}

// Report is the machine-readable outcome of one batch run.
type Report struct {
	Selected  int            `json:"selected"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Reasons   map[string]int `json:"reasons,omitempty"`
	Failures  []Failure      `json:"failures,omitempty"`
	Duration  time.Duration  `json:"duration_ns"`
}

type Failure struct {
	EventID string `json:"event_id"`
	Reason  string `json:"reason"`
}

// ExitCode maps the report to a process exit status: zero only when
// every selected event succeeded.
func (r *Report) ExitCode() int {
	if r.Failed > 0 {
		return 1
	}
	return 0
}

type Runner struct {
	events    repository.CaseEventRepository
	processor EventProcessor
	opts      Options
	logger    *slog.Logger
}

func NewRunner(events repository.CaseEventRepository, processor EventProcessor, opts Options, logger *slog.Logger) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = 3
	}
	if cores := runtime.NumCPU(); opts.Workers > cores {
		opts.Workers = cores
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 10 * time.Minute
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{events: events, processor: processor, opts: opts, logger: logger}
}

// Run selects eligible events, groups them by case, and fans the
// groups out over the worker pool. One worker owns all of a case's
// events: two events of the same case racing each other would both
// try to open the case's update, and the open-update lookup is not a
// single conditional write.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	selected, err := r.events.ListEligible(ctx, r.opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("select eligible events: %w", err)
	}
	report := &Report{Selected: len(selected), Reasons: map[string]int{}}
	if len(selected) == 0 {
		report.Duration = time.Since(start)
		r.logger.Info("no eligible events")
		return report, nil
	}

	// Selection order is preserved within each case.
	byCase := map[uuid.UUID][]uuid.UUID{}
	var caseOrder []uuid.UUID
	for _, ev := range selected {
		if _, ok := byCase[ev.CaseID]; !ok {
			caseOrder = append(caseOrder, ev.CaseID)
		}
		byCase[ev.CaseID] = append(byCase[ev.CaseID], ev.ID)
	}
	r.logger.Info("batch starting",
		"selected", len(selected), "cases", len(caseOrder), "workers", r.opts.Workers)

	jobs := make(chan []uuid.UUID)
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for i := 0; i < r.opts.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for ids := range jobs {
				for _, id := range ids {
					category, detail := r.processOne(ctx, id, worker)
					mu.Lock()
					if category == "" {
						report.Succeeded++
					} else {
						report.Failed++
						report.Reasons[category]++
						report.Failures = append(report.Failures, Failure{EventID: id.String(), Reason: detail})
					}
					mu.Unlock()
				}
			}
		}(i)
	}

	for _, caseID := range caseOrder {
		select {
		case jobs <- byCase[caseID]:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()

	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].EventID < report.Failures[j].EventID
	})
	report.Duration = time.Since(start)
	r.logger.Info("batch finished",
		"selected", report.Selected, "succeeded", report.Succeeded,
		"failed", report.Failed, "duration", report.Duration.Round(time.Millisecond))
	return report, ctx.Err()
}

// processOne gives the event a fixed number of attempts, each under
// its own timeout. Returns ("", "") on success, or the failure
// category for the report plus the persisted human-readable reason.
func (r *Runner) processOne(ctx context.Context, id uuid.UUID, worker int) (category, detail string) {
	log := r.logger.With("event_id", id, "worker", worker)

	if err := r.events.MarkAttempting(ctx, id, time.Now()); err != nil {
		log.Error("attempt stamp failed", "error", err)
	}

	var lastErr error
	for attempt := 1; attempt <= attemptsPerEvent; attempt++ {
		if ctx.Err() != nil {
			cat := classify(ctx.Err())
			return cat, cat
		}
		err := r.attempt(ctx, id)
		if err == nil {
			if lastErr != nil {
				if clearErr := r.events.ClearFailure(ctx, id); clearErr != nil {
					log.Error("failure clear failed", "error", clearErr)
				}
			}
			return "", ""
		}
		lastErr = err
		category = classify(err)
		log.Warn("event attempt failed", "attempt", attempt, "reason", category, "error", err)
		if attempt < attemptsPerEvent {
			select {
			case <-time.After(r.opts.RetryDelay):
			case <-ctx.Done():
				cat := classify(ctx.Err())
				return cat, cat
			}
		}
	}

	detail = category + ": " + lastErr.Error()
	if err := r.events.SetFailureReason(ctx, id, detail); err != nil {
		log.Error("failure reason store failed", "error", err)
	}
	return category, detail
}

// attempt runs the pipeline once under the per-attempt timeout,
// converting a worker panic into an error so one poisoned document
// cannot take down the pool.
func (r *Runner) attempt(ctx context.Context, id uuid.UUID) (err error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.opts.AttemptTimeout)
	defer cancel()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", errPanicked, rec)
		}
	}()
	return r.processor.ProcessCaseEvent(attemptCtx, id)
}

// classify buckets a failed attempt for the report. An ordinary error
// from the pipeline is a process error; "unknown error" is reserved
// for panics and anything else without a usable cause.
func classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, errPanicked):
		return "unknown error"
	default:
		return "process error"
	}
}

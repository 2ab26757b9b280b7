// Package pipeline drives one case event through the processing
// stages. Each stage reads the durable state, does only the work that
// state says is missing, verifies its post-condition, and advances
// stage_completed with a conditional write. A crash at any point is
// recovered by simply running the processor again.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/casetrack/docketwatch/constants"
	"github.com/casetrack/docketwatch/internal/entity"
	"github.com/casetrack/docketwatch/internal/fetch"
	"github.com/casetrack/docketwatch/internal/ocr"
	"github.com/casetrack/docketwatch/internal/registry"
	"github.com/casetrack/docketwatch/internal/repository"
	"github.com/casetrack/docketwatch/internal/summarize"
)

// TextExtractor is the extraction capability the pipeline depends on;
// ocr.Extractor satisfies it.
type TextExtractor interface {
	ExtractText(ctx context.Context, path string) (ocr.Result, error)
}

type Processor struct {
	cases     repository.CaseRepository
	events    repository.CaseEventRepository
	documents repository.DocumentRepository
	registry  *registry.Registry
	fetcher   fetch.Fetcher
	store     *fetch.Store
	extractor TextExtractor
	cascade   *summarize.Cascade
	logger    *slog.Logger
}

func NewProcessor(
	cases repository.CaseRepository,
	events repository.CaseEventRepository,
	documents repository.DocumentRepository,
	reg *registry.Registry,
	fetcher fetch.Fetcher,
	store *fetch.Store,
	extractor TextExtractor,
	cascade *summarize.Cascade,
	logger *slog.Logger,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		cases:     cases,
		events:    events,
		documents: documents,
		registry:  reg,
		fetcher:   fetcher,
		store:     store,
		extractor: extractor,
		cascade:   cascade,
		logger:    logger,
	}
}

// ProcessCaseEvent resumes the event from its completed stage and
// works toward finalized. It stops at the first stage whose
// post-condition cannot be met yet; that is not an error, the next
// pass picks the event up again.
func (p *Processor) ProcessCaseEvent(ctx context.Context, eventID uuid.UUID) error {
	ev, err := p.events.GetByID(ctx, eventID)
	if err != nil {
		return err
	}
	cs, err := p.cases.GetByID(ctx, ev.CaseID)
	if err != nil {
		return err
	}
	if cs.Status != constants.CaseStatusTracked {
		p.logger.Info("event skipped, case not tracked",
			"event_id", eventID, "case_id", cs.ID, "status", string(cs.Status))
		return nil
	}

	log := p.logger.With("event_id", eventID, "case_id", cs.ID)
	for ev.StageCompleted < constants.StageMax {
		if err := ctx.Err(); err != nil {
			return err
		}
		from := ev.StageCompleted
		done, err := p.runStage(ctx, ev, cs, log)
		if err != nil {
			return fmt.Errorf("stage %s: %w", (from + 1).String(), err)
		}
		if !done {
			log.Info("stage incomplete, leaving for next pass", "stage", (from + 1).String())
			return nil
		}
		advanced, err := p.events.AdvanceStage(ctx, ev.ID, from, from+1)
		if err != nil {
			return err
		}
		if !advanced {
			// Someone else advanced it; re-read and continue from there.
			ev, err = p.events.GetByID(ctx, eventID)
			if err != nil {
				return err
			}
			continue
		}
		ev.StageCompleted = from + 1
	}

	p.cascade.RefreshCaseDigest(ctx, cs.ID)
	log.Info("event finalized")
	return nil
}

// runStage performs the work for the stage after ev.StageCompleted and
// reports whether its post-condition now holds.
func (p *Processor) runStage(ctx context.Context, ev *entity.CaseEvent, cs *entity.Case, log *slog.Logger) (bool, error) {
	switch ev.StageCompleted {
	case constants.StageNew:
		return p.discover(ctx, ev, log)
	case constants.StageDiscovered:
		return p.retrieve(ctx, ev, log)
	case constants.StageRetrieved:
		return p.extract(ctx, ev, log)
	case constants.StageExtracted:
		return p.summarizeDocuments(ctx, ev, cs)
	case constants.StageDocsSummarized:
		return p.finalize(ctx, ev, cs)
	default:
		return false, fmt.Errorf("unexpected stage %d", ev.StageCompleted)
	}
}

// discover catalogs every document reference the event carries.
// Registration is idempotent, so re-running after a partial crash only
// fills in the missing rows.
func (p *Processor) discover(ctx context.Context, ev *entity.CaseEvent, log *slog.Logger) (bool, error) {
	refs := p.registry.Discover(ev)
	for _, ref := range refs {
		if _, _, err := p.registry.Register(ctx, ev, ref); err != nil {
			return false, err
		}
	}
	docs, err := p.documents.ListByEvent(ctx, ev.ID)
	if err != nil {
		return false, err
	}
	if len(docs) < len(refs) {
		return false, fmt.Errorf("cataloged %d of %d discovered documents", len(docs), len(refs))
	}
	log.Info("documents discovered", "count", len(docs))
	return true, nil
}

// retrieve downloads every still-pending document. The stage completes
// only when no document remains pending.
func (p *Processor) retrieve(ctx context.Context, ev *entity.CaseEvent, log *slog.Logger) (bool, error) {
	docs, err := p.documents.ListByEvent(ctx, ev.ID)
	if err != nil {
		return false, err
	}
	pending := 0
	for _, d := range docs {
		if d.Retrieved() {
			continue
		}
		data, err := p.fetcher.Fetch(ctx, d.SourceURL)
		if err != nil {
			log.Warn("document fetch failed", "doc_id", d.ID, "url", d.SourceURL, "error", err)
			pending++
			continue
		}
		rel, err := p.store.Save(d.CaseID.String(), d.SourceDocID, data, urlExt(d.SourceURL))
		if err != nil {
			return false, err
		}
		if _, err := p.registry.MarkRetrieved(ctx, d.ID, rel); err != nil {
			return false, err
		}
	}
	if pending > 0 {
		log.Warn("documents still pending retrieval", "pending", pending)
		return false, nil
	}
	return true, nil
}

// extract produces cleaned text for every retrieved document that has
// none. Quality-gate failures mark the document excluded, which also
// satisfies the post-condition: every document either has text or is
// excluded.
func (p *Processor) extract(ctx context.Context, ev *entity.CaseEvent, log *slog.Logger) (bool, error) {
	docs, err := p.documents.ListByEvent(ctx, ev.ID)
	if err != nil {
		return false, err
	}
	for _, d := range docs {
		if !d.NeedsText() {
			continue
		}
		res, err := p.extractor.ExtractText(ctx, p.store.Abs(d.RelPath))
		if err != nil {
			log.Warn("text extraction failed", "doc_id", d.ID, "error", err)
			return false, nil
		}
		if !res.QualityOK {
			if err := p.documents.MarkExcluded(ctx, d.ID); err != nil {
				return false, err
			}
			log.Info("document failed quality gate",
				"doc_id", d.ID, "chars", len(res.Text), "method", res.Method)
			continue
		}
		if err := p.documents.SetText(ctx, d.ID, res.RawText, res.Text); err != nil {
			return false, err
		}
		log.Info("document text extracted",
			"doc_id", d.ID, "method", res.Method, "pages", res.Pages,
			"chars", len(res.Text), "ai_cleaned", res.AICleaned)
	}
	return true, nil
}

// summarizeDocuments runs the document summary tier. The stage is done
// when every non-excluded document carries a summary.
func (p *Processor) summarizeDocuments(ctx context.Context, ev *entity.CaseEvent, cs *entity.Case) (bool, error) {
	remaining, err := p.cascade.SummarizeDocuments(ctx, ev, cs)
	if err != nil {
		return false, err
	}
	return remaining == 0, nil
}

// finalize runs the event summary tier and attaches the event to its
// case's open update.
func (p *Processor) finalize(ctx context.Context, ev *entity.CaseEvent, cs *entity.Case) (bool, error) {
	if err := p.cascade.SummarizeEvent(ctx, ev, cs); err != nil {
		return false, err
	}
	if err := p.cascade.AttachToUpdate(ctx, ev, cs); err != nil {
		return false, err
	}
	return true, nil
}

func urlExt(rawURL string) string {
	base := rawURL
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	ext := filepath.Ext(base)
	if ext == "" || len(ext) > 5 {
		return ".pdf"
	}
	return ext
}

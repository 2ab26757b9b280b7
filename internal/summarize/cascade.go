// Package summarize runs the three-tier summarization cascade:
// per-document, per-event, and per-case-update, plus the opportunistic
// case digest. Populated summaries are terminal; every tier checks its
// target before spending a model call.
package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/casetrack/docketwatch/internal/entity"
	"github.com/casetrack/docketwatch/internal/llm"
	"github.com/casetrack/docketwatch/internal/repository"
)

// Output budgets per tier, in model tokens.
const (
	docMaxTokens    = 400
	eventMaxTokens  = 500
	updateMaxTokens = 900
	digestMaxTokens = 400
)

// How long a stored case digest stays fresh before the next finalized
// event triggers a rebuild.
const digestMaxAge = 24 * time.Hour

type Cascade struct {
	cases     repository.CaseRepository
	events    repository.CaseEventRepository
	documents repository.DocumentRepository
	updates   repository.CaseUpdateRepository
	gen       llm.TextGenerator
	logger    *slog.Logger
}

func NewCascade(
	cases repository.CaseRepository,
	events repository.CaseEventRepository,
	documents repository.DocumentRepository,
	updates repository.CaseUpdateRepository,
	gen llm.TextGenerator,
	logger *slog.Logger,
) *Cascade {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cascade{
		cases:     cases,
		events:    events,
		documents: documents,
		updates:   updates,
		gen:       gen,
		logger:    logger,
	}
}

// SummarizeDocuments runs the document tier for every document of the
// event that has usable text and no summary yet. Documents excluded by
// the quality gate are never sent to the model. Returns the number of
// documents that still lack a summary afterwards, so the caller can
// verify the stage post-condition.
func (c *Cascade) SummarizeDocuments(ctx context.Context, ev *entity.CaseEvent, cs *entity.Case) (remaining int, err error) {
	docs, err := c.documents.ListByEvent(ctx, ev.ID)
	if err != nil {
		return 0, err
	}
	evCtx := llm.EventContext{Date: ev.EventDate, Description: ev.Description}
	caseCtx := llm.CaseContext{CaseNumber: cs.CaseNumber, CaseName: cs.CaseName}

	for _, d := range docs {
		if !d.NeedsSummary() {
			continue
		}
		prompt := llm.BuildDocumentPrompt(*d.OCRText, evCtx, caseCtx)
		text, genErr := c.gen.Generate(ctx, llm.GenerateRequest{
			Prompt:      prompt,
			MaxTokens:   docMaxTokens,
			Temperature: 0.2,
		})
		if genErr != nil {
			c.logger.Warn("document summary call failed",
				"doc_id", d.ID, "event_id", ev.ID, "error", genErr)
			remaining++
			continue
		}
		html := "<p>" + llm.EscapeHTML(text) + "</p>"
		if err := c.documents.SetSummary(ctx, d.ID, text, html); err != nil {
			return remaining + 1, err
		}
		c.logger.Info("document summarized", "doc_id", d.ID, "event_id", ev.ID)
	}
	return remaining, nil
}

// SummarizeEvent runs the event tier: it folds the event's document
// summaries into one event summary. An event whose documents were all
// excluded still gets a summary built from the docket entry text alone.
// A populated event summary is terminal and skips the call entirely.
func (c *Cascade) SummarizeEvent(ctx context.Context, ev *entity.CaseEvent, cs *entity.Case) error {
	if ev.SummaryAI != nil {
		return nil
	}
	docs, err := c.documents.ListByEvent(ctx, ev.ID)
	if err != nil {
		return err
	}
	var docSummaries []string
	for _, d := range docs {
		if d.SummaryAI != nil {
			docSummaries = append(docSummaries, *d.SummaryAI)
		}
	}

	evCtx := llm.EventContext{Date: ev.EventDate, Description: ev.Description}
	caseCtx := llm.CaseContext{CaseNumber: cs.CaseNumber, CaseName: cs.CaseName}
	prompt := llm.BuildEventPrompt(docSummaries, evCtx, caseCtx)

	text, err := c.gen.Generate(ctx, llm.GenerateRequest{
		Prompt:      prompt,
		MaxTokens:   eventMaxTokens,
		Temperature: 0.2,
	})
	if err != nil {
		return fmt.Errorf("event summary %s: %w", ev.ID, err)
	}
	html := "<p>" + llm.EscapeHTML(text) + "</p>"
	if err := c.events.SetSummary(ctx, ev.ID, text, html); err != nil {
		return err
	}
	ev.SummaryAI = &text
	c.logger.Info("event summarized", "event_id", ev.ID, "doc_summaries", len(docSummaries))
	return nil
}

// AttachToUpdate claims the event for its case's open update and runs
// the update tier over every event the update has collected so far. The
// update's summaries are rebuilt each time a new event joins, so the
// bulletin always reflects the full batch.
func (c *Cascade) AttachToUpdate(ctx context.Context, ev *entity.CaseEvent, cs *entity.Case) error {
	update, err := c.updates.GetOrCreateOpen(ctx, ev.CaseID)
	if err != nil {
		return err
	}
	if ev.CaseUpdateID == nil {
		claimed, err := c.events.ClaimForUpdate(ctx, ev.ID, update.ID)
		if err != nil {
			return err
		}
		if !claimed {
			// Another pass claimed it first; that update owns the event.
			c.logger.Debug("event already attached to an update", "event_id", ev.ID)
			return nil
		}
		ev.CaseUpdateID = &update.ID
	}

	members, err := c.events.ListByUpdate(ctx, update.ID)
	if err != nil {
		return err
	}
	var eventSummaries []string
	for _, m := range members {
		if m.SummaryAI != nil {
			eventSummaries = append(eventSummaries, *m.SummaryAI)
		}
	}
	if len(eventSummaries) == 0 {
		return fmt.Errorf("update %s has no summarized events", update.ID)
	}

	caseCtx := llm.CaseContext{CaseNumber: cs.CaseNumber, CaseName: cs.CaseName}
	raw, err := c.gen.Generate(ctx, llm.GenerateRequest{
		Prompt:      llm.BuildUpdatePrompt(eventSummaries, caseCtx),
		MaxTokens:   updateMaxTokens,
		Temperature: 0.3,
	})
	if err != nil {
		return fmt.Errorf("update summary %s: %w", update.ID, err)
	}

	result := llm.ParseUpdateResult(raw)
	if !result.Parsed {
		c.logger.Warn("update output failed structured parse, stored unparsed",
			"update_id", update.ID)
	}
	if err := c.updates.SetSummaries(ctx, update.ID,
		result.APSummary, result.Narrative.ToHTML(), result.IsStoryworthy); err != nil {
		return err
	}
	c.logger.Info("case update summarized",
		"update_id", update.ID, "events", len(members), "storyworthy", result.IsStoryworthy)
	return nil
}

// RefreshCaseDigest opportunistically rebuilds the case-level running
// digest when it is missing or stale. Failures are logged, stamped so
// the next pass does not hammer the service, and never propagated.
func (c *Cascade) RefreshCaseDigest(ctx context.Context, caseID uuid.UUID) {
	cs, err := c.cases.GetByID(ctx, caseID)
	if err != nil {
		c.logger.Warn("digest refresh skipped", "case_id", caseID, "error", err)
		return
	}
	if cs.SummarizedAt != nil && time.Since(*cs.SummarizedAt) < digestMaxAge {
		return
	}

	events, err := c.events.ListSummarizedByCase(ctx, caseID)
	if err != nil || len(events) == 0 {
		return
	}
	summaries := make([]string, 0, len(events))
	for _, ev := range events {
		summaries = append(summaries, *ev.SummaryAI)
	}

	caseCtx := llm.CaseContext{CaseNumber: cs.CaseNumber, CaseName: cs.CaseName}
	text, err := c.gen.Generate(ctx, llm.GenerateRequest{
		Prompt:      llm.BuildCaseDigestPrompt(summaries, caseCtx),
		MaxTokens:   digestMaxTokens,
		Temperature: 0.2,
	})
	if err != nil {
		c.logger.Warn("case digest call failed", "case_id", caseID, "error", err)
		if touchErr := c.cases.TouchSummaryAttempt(ctx, caseID); touchErr != nil {
			c.logger.Error("digest attempt stamp failed", "case_id", caseID, "error", touchErr)
		}
		return
	}
	if err := c.cases.SetSummary(ctx, caseID, text); err != nil {
		c.logger.Error("case digest store failed", "case_id", caseID, "error", err)
		return
	}
	c.logger.Info("case digest refreshed", "case_id", caseID, "events", len(events))
}

// Package registry is the idempotent catalog of documents under a case
// event: it parses scraped attachment metadata into document
// descriptors, inserts them with insert-if-not-exists semantics, and
// owns the one-way pending -> retrieved path transition.
package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/casetrack/docketwatch/constants"
	"github.com/casetrack/docketwatch/internal/entity"
	"github.com/casetrack/docketwatch/internal/repository"
)

// DocumentRef is one parsed document descriptor.
type DocumentRef struct {
	SourceDocID string
	Title       string
	DocType     constants.DocType
	URL         string
}

type Registry struct {
	docs   repository.DocumentRepository
	logger *slog.Logger
}

func New(docs repository.DocumentRepository, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{docs: docs, logger: logger}
}

// Discover parses the event's scraped attachment metadata into zero or
// more document descriptors. When the fragment yields nothing but the
// event carries a filing URL, the filing itself becomes a single
// implicit document, so downstream stages never stall on zero
// documents when the source definitely has content.
func (r *Registry) Discover(ev *entity.CaseEvent) []DocumentRef {
	var refs []DocumentRef
	if ev.AttachmentsHTML != nil {
		parsed, err := ParseAttachmentsHTML(*ev.AttachmentsHTML)
		if err != nil {
			r.logger.Warn("attachment metadata unparseable, degrading to filing url",
				"event_id", ev.ID, "error", err)
		} else {
			refs = parsed
		}
	}
	if len(refs) == 0 && ev.FilingURL != "" {
		refs = append(refs, DocumentRef{
			SourceDocID: "event-" + ev.ID.String(),
			Title:       ev.Description,
			DocType:     constants.DocTypeDocket,
			URL:         ev.FilingURL,
		})
		r.logger.Info("degraded discovery: filing url as implicit document", "event_id", ev.ID)
	}
	return refs
}

// Register performs the existence check keyed by (case, source doc id)
// and inserts a pending Document row when absent. The second
// discover+register for the same event is a no-op.
func (r *Registry) Register(ctx context.Context, ev *entity.CaseEvent, ref DocumentRef) (*entity.Document, bool, error) {
	if ref.SourceDocID == "" {
		return nil, false, fmt.Errorf("document ref without source id for event %s", ev.ID)
	}
	doc := &entity.Document{
		CaseID:      ev.CaseID,
		CaseEventID: ev.ID,
		SourceDocID: ref.SourceDocID,
		Title:       ref.Title,
		DocType:     ref.DocType,
		SourceURL:   ref.URL,
		RelPath:     constants.PendingPath,
	}
	inserted, err := r.docs.RegisterIfAbsent(ctx, doc)
	if err != nil {
		return nil, false, fmt.Errorf("register document %q: %w", ref.SourceDocID, err)
	}
	return doc, inserted, nil
}

// MarkRetrieved transitions a document from pending to a concrete
// path. Repeated calls are rejected as no-ops by the conditional
// update underneath.
func (r *Registry) MarkRetrieved(ctx context.Context, docID uuid.UUID, relPath string) (bool, error) {
	return r.docs.MarkRetrieved(ctx, docID, relPath)
}

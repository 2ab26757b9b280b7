package entity

import (
	"time"

	"github.com/google/uuid"
)

// CaseUpdate groups one or more CaseEvents that are summarized and
// alerted together. Events are claimed by exactly one update; the
// update owns the alerting lifecycle.
type CaseUpdate struct {
	ID            uuid.UUID  `json:"id"`
	CaseID        uuid.UUID  `json:"case_id"`
	CreatedAt     time.Time  `json:"created_at"`
	SummaryAP     *string    `json:"summary_ap,omitempty"`
	SummaryHTML   *string    `json:"summary_html,omitempty"`
	IsStoryworthy bool       `json:"is_storyworthy"`
	Emailed       bool       `json:"emailed"`
}

package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/casetrack/docketwatch/constants"
)

// CaseEvent represents one discrete filing/docket entry tied to a Case.
// StageCompleted is monotonically non-decreasing and only advanced after
// the corresponding stage's post-condition is verified.
type CaseEvent struct {
	ID              uuid.UUID       `json:"id"`
	CaseID          uuid.UUID       `json:"case_id"`
	EventDate       time.Time       `json:"event_date"`
	Description     string          `json:"description"`
	FilingURL       string          `json:"filing_url"`
	AttachmentsHTML *string         `json:"attachments_html,omitempty"`
	StageCompleted  constants.Stage `json:"stage_completed"`
	SummaryAI       *string         `json:"summary_ai,omitempty"`
	SummaryAIHTML   *string         `json:"summary_ai_html,omitempty"`
	Emailed         bool            `json:"emailed"`
	CaseUpdateID    *uuid.UUID      `json:"case_update_id,omitempty"`
	AttemptingAt    *time.Time      `json:"attempting_at,omitempty"`
	FailureReason   *string         `json:"failure_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

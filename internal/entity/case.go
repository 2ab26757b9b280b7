package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/casetrack/docketwatch/constants"
)

// Case represents a tracked legal matter for data transfer between layers.
type Case struct {
	ID           uuid.UUID            `json:"id"`
	CaseNumber   string               `json:"case_number"`
	CaseName     string               `json:"case_name"`
	Status       constants.CaseStatus `json:"status"`
	SummaryAI    *string              `json:"summary_ai,omitempty"`
	SummarizedAt *time.Time           `json:"summarized_at,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
}

package constants

// CaseStatus is the lifecycle status for rows in cases. Cases are never
// deleted, only status-transitioned.
type CaseStatus string

// Stable values (store these exact strings in DB).
const (
	CaseStatusTracked CaseStatus = "TRACKED" // actively processed by the pipeline
	CaseStatusRemoved CaseStatus = "REMOVED" // no longer selected for work
	CaseStatusReview  CaseStatus = "REVIEW"  // flagged for human attention
)

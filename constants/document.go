package constants

// DocType tags where a document descriptor came from.
type DocType string

const (
	DocTypeDocket     DocType = "Docket"     // the filing itself
	DocTypeAttachment DocType = "Attachment" // exhibit or attachment under a filing
)

// PendingPath is the retrieval-path sentinel for documents that are
// cataloged but not yet fetched. The pending -> concrete transition is
// one-way.
const PendingPath = "pending"

// Text thresholds used by the extraction engine.
const (
	// EmbeddedTextMin accepts the PDF text layer without OCR.
	EmbeddedTextMin = 200
	// UsableTextMin is the quality gate: shorter extracted text is never
	// summarized, to avoid fabricated output from near-empty input.
	UsableTextMin = 100
)

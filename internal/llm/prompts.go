package llm

import (
	"strings"
	"time"
)

// Character budgets for model input. Conservative: prompts ride along
// with the source text inside the same context window.
const (
	DocTextBudget     = 24000
	EventInputBudget  = 16000
	UpdateInputBudget = 16000
	DigestInputBudget = 12000
	CleanupBudget     = 8000
)

// CaseContext carries the case fields prompts reference.
type CaseContext struct {
	CaseNumber string
	CaseName   string
}

// EventContext carries the filing fields prompts reference.
type EventContext struct {
	Date        time.Time
	Description string
}

// BuildDocumentPrompt composes the document-tier summarization prompt.
func BuildDocumentPrompt(ocrText string, ev EventContext, cs CaseContext) string {
	parts := []string{
		"You are a legal analyst summarizing one court filing for journalists tracking the case.",
		"Case: " + cs.CaseName + " (" + cs.CaseNumber + ").",
		"Docket entry (" + ev.Date.Format("2006-01-02") + "): " + ev.Description + ".",
		"Summarize the document below in 2-4 plain-language sentences.",
		"State what was filed, by whom, and what it asks for or decides. Note any deadlines or rulings.",
		"Do not speculate beyond the text.",
		"",
		"Document text:",
		TruncateForModel(ocrText, DocTextBudget),
	}
	return strings.Join(parts, "\n")
}

// BuildEventPrompt composes the event-tier prompt over ordered document
// summaries (oldest retrieval first).
func BuildEventPrompt(docSummaries []string, ev EventContext, cs CaseContext) string {
	var b strings.Builder
	b.WriteString("You are a legal analyst. Combine the per-document summaries below into one summary of this docket entry.\n")
	b.WriteString("Case: " + cs.CaseName + " (" + cs.CaseNumber + ").\n")
	b.WriteString("Docket entry (" + ev.Date.Format("2006-01-02") + "): " + ev.Description + ".\n")
	b.WriteString("Write 2-5 sentences covering every document. Keep chronological order and plain language.\n")
	if len(docSummaries) == 0 {
		b.WriteString("No document text was usable; summarize what the docket entry itself says.\n")
	} else {
		b.WriteString("\nDocument summaries, oldest first:\n")
		joined := strings.Join(docSummaries, "\n---\n")
		b.WriteString(TruncateForModel(joined, EventInputBudget))
	}
	return b.String()
}

// BuildUpdatePrompt composes the case-update tier prompt. The model is
// asked for structured JSON matching BuildUpdateJSONSchema; parsing
// falls back gracefully when it does not comply.
func BuildUpdatePrompt(eventSummaries []string, cs CaseContext) string {
	var b strings.Builder
	b.WriteString("You are a newswire editor covering the case " + cs.CaseName + " (" + cs.CaseNumber + ").\n")
	b.WriteString("Below are summaries of the latest filings, oldest first.\n")
	b.WriteString("Return ONLY a JSON object with these fields:\n")
	b.WriteString(`  "ap_summary": a neutral wire-style bulletin of 2-3 sentences;` + "\n")
	b.WriteString(`  "narrative_headline": a short headline;` + "\n")
	b.WriteString(`  "narrative_body": a narrative of 1-3 paragraphs;` + "\n")
	b.WriteString(`  "is_storyworthy": true only if a general-news reader would care (major ruling, dismissal, settlement, sanctions, trial date).` + "\n")
	b.WriteString("No markdown, no code fences, no fields beyond these four.\n")
	b.WriteString("\nFiling summaries:\n")
	joined := strings.Join(eventSummaries, "\n---\n")
	b.WriteString(TruncateForModel(joined, UpdateInputBudget))
	return b.String()
}

// BuildCaseDigestPrompt composes the running case-level digest prompt.
func BuildCaseDigestPrompt(eventSummaries []string, cs CaseContext) string {
	var b strings.Builder
	b.WriteString("You are maintaining a running digest of the case " + cs.CaseName + " (" + cs.CaseNumber + ").\n")
	b.WriteString("From the filing summaries below (oldest first), write one paragraph describing what the case is about and where it stands now.\n")
	b.WriteString("Plain language, no speculation.\n")
	b.WriteString("\nFiling summaries:\n")
	joined := strings.Join(eventSummaries, "\n---\n")
	b.WriteString(TruncateForModel(joined, DigestInputBudget))
	return b.String()
}

// BuildCleanupPrompt composes the OCR-cleanup instruction. Only a
// bounded excerpt is submitted; the caller keeps raw text when the
// call fails.
func BuildCleanupPrompt(ocrText string) string {
	parts := []string{
		"The text below came from OCR of a scanned court filing.",
		"Correct OCR artifacts only: broken hyphenation, stray characters, obvious misreads.",
		"Do not rephrase, reorder, summarize, or add anything. Preserve line structure where sensible.",
		"Return only the corrected text.",
		"",
		TruncateForModel(ocrText, CleanupBudget),
	}
	return strings.Join(parts, "\n")
}

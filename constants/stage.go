package constants

// Stage is a pipeline milestone recorded per case event. A stage value
// means every smaller-numbered stage's post-condition held when it was
// written; stage_completed never decreases.
type Stage int

const (
	StageNew            Stage = 0 // scraped row exists, nothing processed
	StageDiscovered     Stage = 1 // document metadata cataloged
	StageRetrieved      Stage = 2 // all document bytes fetched
	StageExtracted      Stage = 3 // text extracted (or excluded) for every document
	StageDocsSummarized Stage = 4 // per-document summaries complete
	StageFinalized      Stage = 5 // event summary written, terminal
)

// StageMax is the terminal stage; the scheduler selects stage_completed < StageMax.
const StageMax = StageFinalized

func (s Stage) String() string {
	switch s {
	case StageNew:
		return "new"
	case StageDiscovered:
		return "discovered"
	case StageRetrieved:
		return "retrieved"
	case StageExtracted:
		return "extracted"
	case StageDocsSummarized:
		return "docs-summarized"
	case StageFinalized:
		return "finalized"
	}
	return "unknown"
}

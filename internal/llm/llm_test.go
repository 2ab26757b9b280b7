package llm

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncateForModelPassthrough(t *testing.T) {
	assert.Equal(t, "short", TruncateForModel("short", 100))
	assert.Equal(t, "unbounded", TruncateForModel("unbounded", 0))
}

func TestTruncateForModelKeepsHeadAndTail(t *testing.T) {
	s := strings.Repeat("a", 500) + strings.Repeat("z", 500)
	out := TruncateForModel(s, 200)

	assert.LessOrEqual(t, len(out), 200)
	assert.True(t, strings.HasPrefix(out, "a"))
	assert.True(t, strings.HasSuffix(out, "z"))
	assert.Contains(t, out, "[...]")
}

func TestTruncateForModelTinyBudget(t *testing.T) {
	s := strings.Repeat("x", 100)
	out := TruncateForModel(s, 10)
	assert.Equal(t, strings.Repeat("x", 10), out)
}

func TestTruncateForModelNeverSplitsRunes(t *testing.T) {
	// Section signs are two bytes each, so naive byte cuts land inside
	// a rune for most budgets.
	s := strings.Repeat("§", 400)
	for _, budget := range []int{10, 41, 101, 200, 333} {
		out := TruncateForModel(s, budget)
		assert.LessOrEqual(t, len(out), budget)
		assert.True(t, utf8.ValidString(out), "budget %d produced invalid UTF-8", budget)
	}
}

func TestParseNarrativeWithMarkers(t *testing.T) {
	raw := "Headline: Judge Dismisses Claims Against Acme\nBody: The court granted the motion in part.\n\nTwo claims survive."
	n := ParseNarrative(raw)

	assert.True(t, n.Parsed)
	assert.Equal(t, "Judge Dismisses Claims Against Acme", n.Headline)
	assert.True(t, strings.HasPrefix(n.Body, "The court granted"))
	assert.Equal(t, raw, n.Raw)
}

func TestParseNarrativeToleratesMarkdownDecoration(t *testing.T) {
	raw := "**Headline:** Acme Settles\n## Body: The parties filed a joint stipulation."
	n := ParseNarrative(raw)

	assert.True(t, n.Parsed)
	assert.Equal(t, "Acme Settles", n.Headline)
}

func TestParseNarrativeWithoutMarkersKeepsRaw(t *testing.T) {
	raw := "The model ignored the format and wrote freely."
	n := ParseNarrative(raw)

	assert.False(t, n.Parsed)
	assert.Empty(t, n.Headline)
	assert.Equal(t, raw, n.Raw)
}

func TestNarrativeToHTML(t *testing.T) {
	parsed := Narrative{Parsed: true, Headline: "A < B", Body: "First.\n\nSecond & third."}
	html := parsed.ToHTML()
	assert.Contains(t, html, "<h3>A &lt; B</h3>")
	assert.Contains(t, html, "<p>First.</p>")
	assert.Contains(t, html, "<p>Second &amp; third.</p>")

	unparsed := Narrative{Raw: "free text"}
	assert.Equal(t, "<p>free text</p>\n", unparsed.ToHTML())
}

func TestParseUpdateResultStructured(t *testing.T) {
	raw := `{"ap_summary":"Court dismisses case.","narrative_headline":"Case Dismissed","narrative_body":"The judge ruled today.","is_storyworthy":true}`
	res := ParseUpdateResult(raw)

	assert.True(t, res.Parsed)
	assert.Equal(t, "Court dismisses case.", res.APSummary)
	assert.Equal(t, "Case Dismissed", res.Narrative.Headline)
	assert.True(t, res.IsStoryworthy)
}

func TestParseUpdateResultStripsCodeFence(t *testing.T) {
	raw := "```json\n{\"ap_summary\":\"s\",\"narrative_headline\":\"h\",\"narrative_body\":\"b\",\"is_storyworthy\":false}\n```"
	res := ParseUpdateResult(raw)

	assert.True(t, res.Parsed)
	assert.Equal(t, "h", res.Narrative.Headline)
	assert.False(t, res.IsStoryworthy)
}

func TestParseUpdateResultFallsBackNonStoryworthy(t *testing.T) {
	for _, raw := range []string{
		"not json at all",
		`{"ap_summary":"missing fields"}`,
		`{"ap_summary":"x","narrative_headline":"h","narrative_body":"b","is_storyworthy":"yes"}`,
	} {
		res := ParseUpdateResult(raw)
		assert.False(t, res.Parsed, raw)
		assert.False(t, res.IsStoryworthy, raw)
		assert.NotEmpty(t, res.APSummary, raw)
	}
}

func TestValidateJSONAgainstSchema(t *testing.T) {
	schema := BuildUpdateJSONSchema()
	valid := []byte(`{"ap_summary":"s","narrative_headline":"h","narrative_body":"b","is_storyworthy":true}`)
	require.NoError(t, ValidateJSONAgainstSchema(schema, valid))

	invalid := []byte(`{"ap_summary":"","narrative_headline":"h","narrative_body":"b","is_storyworthy":true}`)
	assert.Error(t, ValidateJSONAgainstSchema(schema, invalid))

	extra := []byte(`{"ap_summary":"s","narrative_headline":"h","narrative_body":"b","is_storyworthy":true,"note":"x"}`)
	assert.Error(t, ValidateJSONAgainstSchema(schema, extra))
}

func TestBuildPromptsRespectBudgets(t *testing.T) {
	long := strings.Repeat("lorem ipsum ", 10000)
	cs := CaseContext{CaseNumber: "1:24-cv-1", CaseName: "Doe v. Acme"}
	ev := EventContext{Description: "Motion filed"}

	p := BuildDocumentPrompt(long, ev, cs)
	assert.Less(t, len(p), DocTextBudget+2000)
	assert.Contains(t, p, "Doe v. Acme")

	p = BuildCleanupPrompt(long)
	assert.Less(t, len(p), CleanupBudget+2000)
}

package llm

import (
	"strings"
)

// Narrative is the tagged result of parsing a model response carrying
// explicit "Headline:" / "Body:" markers. When the markers cannot be
// found the raw output is preserved and Parsed is false; parsing never
// fails outright.
type Narrative struct {
	Parsed   bool
	Headline string
	Body     string
	Raw      string
}

// ParseNarrative splits raw on the headline/body markers. Marker
// matching is case-insensitive and tolerates leading whitespace and
// markdown emphasis around the labels.
func ParseNarrative(raw string) Narrative {
	n := Narrative{Raw: raw}

	lower := strings.ToLower(raw)
	hIdx := indexMarker(lower, "headline:")
	bIdx := indexMarker(lower, "body:")
	if hIdx < 0 || bIdx < 0 || bIdx <= hIdx {
		return n
	}

	headline := raw[hIdx+len("headline:") : bIdx]
	body := raw[bIdx+len("body:"):]

	n.Headline = strings.Trim(strings.TrimSpace(headline), "*# ")
	n.Body = strings.TrimSpace(body)
	n.Parsed = n.Headline != "" && n.Body != ""
	return n
}

// indexMarker finds marker at a line start, skipping whitespace and
// markdown decoration ("**Headline:**", "## Body:").
func indexMarker(lower, marker string) int {
	from := 0
	for {
		i := strings.Index(lower[from:], marker)
		if i < 0 {
			return -1
		}
		i += from
		if atLineStart(lower, i) {
			return i
		}
		from = i + len(marker)
	}
}

func atLineStart(s string, i int) bool {
	j := i - 1
	for j >= 0 {
		switch s[j] {
		case ' ', '\t', '*', '#', '_':
			j--
			continue
		case '\n':
			return true
		default:
			return false
		}
	}
	return true
}

// ToHTML renders the narrative as alert-ready HTML. Unparsed output is
// wrapped whole as the body so nothing the model produced is lost.
func (n Narrative) ToHTML() string {
	var b strings.Builder
	if n.Parsed {
		b.WriteString("<h3>")
		b.WriteString(EscapeHTML(n.Headline))
		b.WriteString("</h3>\n")
		writeParagraphs(&b, n.Body)
	} else {
		writeParagraphs(&b, n.Raw)
	}
	return b.String()
}

func writeParagraphs(b *strings.Builder, text string) {
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(EscapeHTML(para))
		b.WriteString("</p>\n")
	}
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
)

// EscapeHTML escapes text destined for summary HTML fields.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

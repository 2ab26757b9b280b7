package ocr

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	reCRLF       = regexp.MustCompile(`\r\n?`)
	reTabs       = regexp.MustCompile(`\t+`)
	reMultiSpace = regexp.MustCompile(` {2,}`)
	reMultiBlank = regexp.MustCompile(`\n{3,}`)
)

var reBoxNoise = regexp.MustCompile(`(?m)^\s*[_\-]{3,}\s*$`)

// mojibake fixes common double-encoded punctuation. Upstream court
// systems mix Windows-1252 and UTF-8 inconsistently, so smart quotes
// and dashes regularly arrive mangled.
var mojibake = strings.NewReplacer(
	"â", "’", // ’
	"â", "‘", // ‘
	"â", "“", // “
	"â", "”", // ”
	"â", "–", // –
	"â", "—", // —
	"â¦", "…", // …
	"Â ", " ", // non-breaking space
	"Â§", "§", // §
	"ï¬", "fi", // fi ligature
	"ï¬", "fl", // fl ligature
)

// Normalize applies canonical composition (NFC), the mojibake fixup
// table, and conservative whitespace cleanup to text before it is
// persisted. Keeps line breaks; collapses >2 newlines into a single
// blank line.
func Normalize(s string) string {
	if s == "" {
		return s
	}
	s = mojibake.Replace(s)
	s = norm.NFC.String(s)
	s = reCRLF.ReplaceAllString(s, "\n")
	s = reTabs.ReplaceAllString(s, " ")
	s = reMultiSpace.ReplaceAllString(s, " ")
	s = reMultiBlank.ReplaceAllString(s, "\n\n")
	// trim trailing spaces on lines
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	s = strings.Join(lines, "\n")
	return strings.TrimSpace(s)
}

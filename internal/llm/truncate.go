package llm

import "unicode/utf8"

// TruncateForModel bounds s to budget bytes for model input. Filings
// often place dispositive information at the end (orders, signatures,
// rulings), so when the budget allows it the head and the tail are
// both kept, joined by an ellipsis marker. Cut points back off to rune
// boundaries so the excerpt stays valid UTF-8.
func TruncateForModel(s string, budget int) string {
	if budget <= 0 || len(s) <= budget {
		return s
	}
	const marker = "\n[...]\n"
	if budget <= len(marker)+32 {
		// Too small to split meaningfully; keep the head.
		return s[:runeFloor(s, budget)]
	}
	usable := budget - len(marker)
	head := runeFloor(s, usable*7/10)
	tailStart := runeCeil(s, len(s)-(usable-head))
	return s[:head] + marker + s[tailStart:]
}

// runeFloor moves i down to the nearest rune start in s.
func runeFloor(s string, i int) int {
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// runeCeil moves i up to the nearest rune start in s.
func runeCeil(s string, i int) int {
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}

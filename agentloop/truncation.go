package agentloop

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Script output sections longer than these limits are cut in the middle
// before they reach the model.
const (
	MaxOutputChars = 30000
	MaxOutputLines = 400
)

// truncateMiddle keeps the head and tail of output within maxChars runes.
// Cuts fall on rune boundaries, so the result stays valid UTF-8.
func truncateMiddle(output string, maxChars int) string {
	total := utf8.RuneCountInString(output)
	if maxChars <= 0 || total <= maxChars {
		return output
	}
	half := maxChars / 2
	head := runeOffset(output, half)
	tail := runeOffset(output, total-half)
	removed := total - 2*half
	return output[:head] +
		fmt.Sprintf("\n\n[WARNING: output truncated, %d characters removed from the middle]\n\n", removed) +
		output[tail:]
}

// runeOffset returns the byte offset of the n-th rune of s.
func runeOffset(s string, n int) int {
	i := 0
	for off := range s {
		if i == n {
			return off
		}
		i++
	}
	return len(s)
}

// truncateLines keeps the first and last lines of output within maxLines.
func truncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if maxLines <= 0 || len(lines) <= maxLines {
		return output
	}

	headCount := maxLines / 2
	tailCount := maxLines - headCount
	omitted := len(lines) - headCount - tailCount

	return strings.Join(lines[:headCount], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tailCount:], "\n")
}

// truncateScriptOutput applies the character limit first, then the line
// limit.
func truncateScriptOutput(output string) string {
	return truncateLines(truncateMiddle(output, MaxOutputChars), MaxOutputLines)
}

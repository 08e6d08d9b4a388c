package tui

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// truncateText shortens text to width display cells, ending in "...".
func truncateText(text string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(text) <= width {
		return text
	}
	if width <= 3 {
		return runewidth.Truncate(text, width, "")
	}
	return runewidth.Truncate(text, width, "...")
}

// truncateLeft keeps the end of text, which is the informative part of a path.
func truncateLeft(text string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(text) <= width {
		return text
	}
	if width <= 3 {
		return runewidth.TruncateLeft(text, runewidth.StringWidth(text)-width, "")
	}
	return runewidth.TruncateLeft(text, runewidth.StringWidth(text)-width+3, "...")
}

// wrapText wraps text at word boundaries into at most maxLines lines of
// width cells. The last line ends in "..." when text did not fit.
func wrapText(text string, width, maxLines int) []string {
	if width <= 0 || maxLines <= 0 {
		return []string{""}
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}
	}

	var lines []string
	var line strings.Builder
	for _, word := range words {
		switch {
		case line.Len() == 0:
			line.WriteString(word)
		case runewidth.StringWidth(line.String())+1+runewidth.StringWidth(word) > width:
			lines = append(lines, line.String())
			line.Reset()
			line.WriteString(word)
		default:
			line.WriteByte(' ')
			line.WriteString(word)
		}
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}

	if len(lines) > maxLines {
		lines = lines[:maxLines]
		last := lines[maxLines-1]
		if runewidth.StringWidth(last)+3 > width {
			last = truncateText(last, width-3)
		}
		lines[maxLines-1] = last + "..."
	}
	for i, l := range lines {
		lines[i] = truncateText(l, width)
	}
	return lines
}

// padLines appends empty lines until there are n.
func padLines(lines []string, n int) []string {
	for len(lines) < n {
		lines = append(lines, "")
	}
	return lines
}

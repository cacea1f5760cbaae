package telegram

import (
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

// displayWidth returns the number of terminal cells s occupies in a
// monospace block. CJK runes count double.
func displayWidth(s string) int {
	return runewidth.StringWidth(s)
}

func padRight(s string, width int) string {
	if gap := width - displayWidth(s); gap > 0 {
		return s + strings.Repeat(" ", gap)
	}
	return s
}

// splitTableRow parses "| a | b |" into trimmed cells.
func splitTableRow(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")
	parts := strings.Split(line, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func isSeparatorRow(cells []string) bool {
	for _, c := range cells {
		if c == "" || strings.Trim(c, "-:") != "" {
			return false
		}
	}
	return len(cells) > 0
}

// renderTableAsCode re-aligns a pipe table so every row has the same
// display width. The result is meant to be wrapped in a code block.
func renderTableAsCode(lines []string) string {
	var rows [][]string
	for _, line := range lines {
		cells := splitTableRow(line)
		if isSeparatorRow(cells) {
			continue
		}
		rows = append(rows, cells)
	}
	if len(rows) == 0 {
		return ""
	}

	cols := 0
	for _, r := range rows {
		cols = max(cols, len(r))
	}
	widths := make([]int, cols)
	for _, r := range rows {
		for i, c := range r {
			widths[i] = max(widths[i], displayWidth(c))
		}
	}

	var sb strings.Builder
	writeRow := func(r []string) {
		sb.WriteString("|")
		for i := 0; i < cols; i++ {
			cell := ""
			if i < len(r) {
				cell = r[i]
			}
			sb.WriteString(" " + padRight(cell, widths[i]) + " |")
		}
	}

	writeRow(rows[0])
	sb.WriteString("\n|")
	for _, w := range widths {
		sb.WriteString(strings.Repeat("-", w+2) + "|")
	}
	for _, r := range rows[1:] {
		sb.WriteString("\n")
		writeRow(r)
	}
	return sb.String()
}

// renderTable builds an aligned table from a header and rows. Pipes in
// cell values are replaced so they cannot break the layout.
func renderTable(header []string, rows [][]string) string {
	clean := func(cells []string) string {
		out := make([]string, len(cells))
		for i, c := range cells {
			out[i] = strings.ReplaceAll(c, "|", "/")
		}
		return "| " + strings.Join(out, " | ") + " |"
	}
	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, clean(header))
	for _, r := range rows {
		lines = append(lines, clean(r))
	}
	return renderTableAsCode(lines)
}

// codeBlock wraps s in a Markdown fenced block.
func codeBlock(s string) string {
	return "```\n" + strings.ReplaceAll(s, "```", "'''") + "\n```"
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// escapeMarkdown escapes user supplied text for legacy Markdown mode.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// chunkText splits text on line boundaries into pieces no longer than
// limit bytes. A single overlong line is cut hard.
func chunkText(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var chunks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > limit {
			flush()
			cut := limit
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		if cur.Len()+len(line) > limit {
			flush()
		}
		cur.WriteString(line)
	}
	flush()
	return chunks
}

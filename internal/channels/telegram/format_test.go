package telegram

import (
	"strings"
	"testing"
)

func TestDisplayWidth(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"hello", 5},
		{"Serverruimte", 12},
		{"Kelder één", 10}, // Latin diacritics = single-width
		{"中文", 4},          // CJK = double-width
		{"日本語", 6},         // CJK = double-width
	}

	for _, tt := range tests {
		got := displayWidth(tt.input)
		if got != tt.want {
			t.Errorf("displayWidth(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestRenderTableAsCode_MixedWidths(t *testing.T) {
	lines := []string{
		"| ID | Location | Groups |",
		"|----|----------|--------|",
		"| 1223455 | Server Room | 2 |",
		"| 42 | Kelder één | 0 |",
		"| 7 | 東京データセンター | 1 |",
	}

	result := renderTableAsCode(lines)

	resultLines := strings.Split(result, "\n")
	if len(resultLines) != 5 {
		t.Fatalf("expected 5 lines, got %d:\n%s", len(resultLines), result)
	}

	headerWidth := displayWidth(resultLines[0])
	sepWidth := displayWidth(resultLines[1])
	if headerWidth != sepWidth {
		t.Errorf("header width (%d) != separator width (%d)\nheader: %s\nsep:    %s",
			headerWidth, sepWidth, resultLines[0], resultLines[1])
	}

	for i := 2; i < len(resultLines); i++ {
		rowWidth := displayWidth(resultLines[i])
		if rowWidth != headerWidth {
			t.Errorf("row %d width (%d) != header width (%d)\nrow:    %s\nheader: %s",
				i, rowWidth, headerWidth, resultLines[i], resultLines[0])
		}
	}
}

func TestRenderTable_EscapesPipes(t *testing.T) {
	out := renderTable([]string{"ID", "Location"}, [][]string{{"1", "Rack A|B"}})
	lines := strings.Split(out, "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d:\n%s", len(lines), out)
	}
	if strings.Count(lines[2], "|") != 3 {
		t.Errorf("cell pipe leaked into layout: %q", lines[2])
	}
	if !strings.Contains(lines[2], "Rack A/B") {
		t.Errorf("row = %q, want replaced pipe", lines[2])
	}
}

func TestChunkText(t *testing.T) {
	short := "one line"
	if got := chunkText(short, 100); len(got) != 1 || got[0] != short {
		t.Fatalf("chunkText(short) = %q", got)
	}

	text := strings.Repeat("0123456789\n", 10) // 110 bytes
	chunks := chunkText(text, 25)
	if strings.Join(chunks, "") != text {
		t.Fatal("chunks do not reassemble the input")
	}
	for i, c := range chunks {
		if len(c) > 25 {
			t.Errorf("chunk %d has %d bytes", i, len(c))
		}
		if !strings.HasSuffix(c, "\n") {
			t.Errorf("chunk %d not split on a line boundary: %q", i, c)
		}
	}

	long := strings.Repeat("é", 20) // 40 bytes, no newline
	chunks = chunkText(long, 15)
	if strings.Join(chunks, "") != long {
		t.Fatal("hard cut lost bytes")
	}
	for i, c := range chunks {
		if !strings.HasPrefix(c, "é") {
			t.Errorf("chunk %d split inside a rune: %q", i, c)
		}
	}
}

func TestEscapeMarkdown(t *testing.T) {
	if got := escapeMarkdown("rack_1 *hot* [a]"); got != `rack\_1 \*hot\* \[a]` {
		t.Errorf("escapeMarkdown = %q", got)
	}
}

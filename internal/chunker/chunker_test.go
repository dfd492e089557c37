package chunker

import (
	"strings"
	"testing"

	"github.com/finchunk/finchunk/internal/chunks"
	"github.com/finchunk/finchunk/internal/layout"
	"github.com/finchunk/finchunk/internal/tables"
)

func baseMeta(page int) chunks.Metadata {
	return chunks.Metadata{
		DocID:      "abc123",
		SourceFile: "report.pdf",
		Page:       page,
		Section:    "Outlook",
	}
}

func TestTextChunks_WindowAndOverlap(t *testing.T) {
	// 600 characters, no whitespace, so trimming cannot move the boundaries.
	text := strings.Repeat("abcdefghij", 60)
	c := New(450, 50, 30, 8000, false)

	out := c.TextChunks(text, baseMeta(1))
	if len(out) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(out))
	}

	first := out[0].(chunks.TextChunk)
	second := out[1].(chunks.TextChunk)
	if len(first.Text) != 450 {
		t.Errorf("expected first window of 450 chars, got %d", len(first.Text))
	}
	if len(second.Text) != 200 {
		t.Errorf("expected second window of 200 chars, got %d", len(second.Text))
	}
	if first.Text[400:] != second.Text[:50] {
		t.Error("expected 50-char overlap between consecutive windows")
	}
}

func TestTextChunks_ShortWindowDiscardedStridePreserved(t *testing.T) {
	c := New(100, 20, 30, 8000, false)
	// 170 chars: window 1 = [0:100], window 2 = [80:170] (90 chars).
	// With MinLength 95, window 2 is discarded but window 1 survives at the
	// same position it would have had anyway.
	text := strings.Repeat("x", 170)
	c.MinLength = 95

	out := c.TextChunks(text, baseMeta(1))
	if len(out) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(out))
	}
	if got := out[0].(chunks.TextChunk).Text; len(got) != 100 {
		t.Errorf("expected surviving window of 100 chars, got %d", len(got))
	}
}

func TestTextChunks_MetadataStamped(t *testing.T) {
	c := New(450, 50, 10, 8000, false)
	out := c.TextChunks("Q3 revenue rose four percent on stronger services demand.", baseMeta(4))
	if len(out) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(out))
	}
	m := out[0].Meta()
	if m.BlockType != chunks.BlockText {
		t.Errorf("expected block type text, got %q", m.BlockType)
	}
	if m.Section != "Outlook" {
		t.Errorf("expected section to carry through, got %q", m.Section)
	}
	if m.ContentHash == "" {
		t.Error("expected content hash to be set")
	}
	if m.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
}

func TestPageText_SectionThreading(t *testing.T) {
	c := New(450, 50, 30, 8000, false)

	pageOne := []layout.Block{
		{Role: layout.RoleHeading, Text: "Rates Outlook"},
		{Role: layout.RoleParagraph, Text: "The committee held rates steady."},
	}
	text, section := c.PageText(pageOne, "")
	if section != "Rates Outlook" {
		t.Errorf("expected section from heading, got %q", section)
	}
	if !strings.Contains(text, "## Rates Outlook") {
		t.Errorf("expected heading marker in page text, got %q", text)
	}

	// A page without a heading inherits the previous section.
	pageTwo := []layout.Block{
		{Role: layout.RoleParagraph, Text: "Inflation eased further."},
	}
	text, section = c.PageText(pageTwo, section)
	if section != "Rates Outlook" {
		t.Errorf("expected inherited section, got %q", section)
	}
	if text != "Inflation eased further." {
		t.Errorf("unexpected page text: %q", text)
	}
}

func TestPageText_SkipsHeadersFiguresAndCaptions(t *testing.T) {
	c := New(450, 50, 30, 8000, false)
	blocks := []layout.Block{
		{Role: layout.RoleHeader, Text: "Confidential"},
		{Role: layout.RoleParagraph, Text: "Real content."},
		{Role: layout.RoleFigure},
		{Role: layout.RoleCaption, Text: "Figure 1: Output gap"},
	}
	text, _ := c.PageText(blocks, "")
	if text != "Real content." {
		t.Errorf("expected only paragraph text, got %q", text)
	}
}

func TestTableChunks_NumbersPerPage(t *testing.T) {
	c := New(450, 50, 30, 8000, false)
	tbls := []tables.ExtractedTable{
		{PageNumber: 2, Markdown: "| a | b |\n| --- | --- |\n| 1 | 2 |", CSV: "a,b\n1,2\n"},
		{PageNumber: 2, Markdown: "| c | d |\n| --- | --- |\n| 3 | 4 |", CSV: "c,d\n3,4\n"},
	}

	out := c.TableChunks(tbls, baseMeta(2))
	if len(out) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(out))
	}
	if got := out[0].Meta().ExhibitID; got != "Table 1 (p.2)" {
		t.Errorf("unexpected exhibit id: %q", got)
	}
	if got := out[1].Meta().ExhibitID; got != "Table 2 (p.2)" {
		t.Errorf("unexpected exhibit id: %q", got)
	}

	// A later page restarts the numbering.
	later := c.TableChunks([]tables.ExtractedTable{
		{PageNumber: 5, Markdown: "| e | f |\n| --- | --- |\n| 5 | 6 |"},
	}, baseMeta(5))
	if got := later[0].Meta().ExhibitID; got != "Table 1 (p.5)" {
		t.Errorf("expected numbering to restart per page, got %q", got)
	}
}

func TestTableChunks_SkipsEmptyMarkdownButKeepsPosition(t *testing.T) {
	c := New(450, 50, 30, 8000, false)
	tbls := []tables.ExtractedTable{
		{PageNumber: 1}, // no markdown rendering
		{PageNumber: 1, Markdown: "| a | b |\n| --- | --- |\n| 1 | 2 |"},
	}
	out := c.TableChunks(tbls, baseMeta(1))
	if len(out) != 1 {
		t.Fatalf("expected empty table skipped, got %d chunks", len(out))
	}
	if got := out[0].Meta().ExhibitID; got != "Table 2 (p.1)" {
		t.Errorf("expected the skipped table to keep its position, got %q", got)
	}
}

func TestFigureChunks_FallbackCaption(t *testing.T) {
	c := New(450, 50, 30, 8000, false)
	out := c.FigureChunks([]FigureInput{{Index: 1, Page: 3}}, baseMeta(3))
	if len(out) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(out))
	}
	fig := out[0].(chunks.FigureChunk)
	if fig.Caption != "Figure from report.pdf page 3" {
		t.Errorf("expected provenance fallback caption, got %q", fig.Caption)
	}
	if got := fig.Metadata.ExhibitID; got != "Figure 1 (p.3)" {
		t.Errorf("unexpected exhibit id: %q", got)
	}
}

func TestFigureChunks_KeepsRichSignals(t *testing.T) {
	c := New(450, 50, 30, 8000, false)
	in := FigureInput{
		Index:       2,
		Page:        5,
		Caption:     "Figure 2: CPI by component",
		OCRText:     "Energy Services Core goods",
		Description: "A bar chart comparing CPI components over 2024.",
		FigureType:  chunks.FigureBarChart,
	}
	out := c.FigureChunks([]FigureInput{in}, baseMeta(5))
	fig := out[0].(chunks.FigureChunk)
	if fig.Caption != in.Caption {
		t.Errorf("expected caption kept, got %q", fig.Caption)
	}
	flat := chunks.ToText(fig)
	for _, want := range []string{"Caption: Figure 2", "bar chart", "OCR overlay: Energy"} {
		if !strings.Contains(flat, want) {
			t.Errorf("expected flattened text to contain %q, got %q", want, flat)
		}
	}
}

func TestPageSummary_PrefixAndGating(t *testing.T) {
	c := New(450, 50, 30, 8000, true)

	if got := c.PageSummary("too short", baseMeta(1)); got != nil {
		t.Errorf("expected nil summary for short page, got %v", got)
	}

	text := "The outlook weakened materially as trade volumes contracted."
	sum := c.PageSummary(text, baseMeta(7))
	if sum == nil {
		t.Fatal("expected a summary chunk")
	}
	tc := sum.(chunks.TextChunk)
	if !strings.HasPrefix(tc.Text, "[Page 7 overview] ") {
		t.Errorf("expected overview prefix, got %q", tc.Text)
	}
	if tc.Metadata.BlockType != chunks.BlockPageSummary {
		t.Errorf("expected page_summary block type, got %q", tc.Metadata.BlockType)
	}

	disabled := New(450, 50, 30, 8000, false)
	if got := disabled.PageSummary(text, baseMeta(7)); got != nil {
		t.Error("expected nil summary when disabled")
	}
}

func TestPageSummary_TruncatesToMaxLength(t *testing.T) {
	c := New(450, 50, 30, 100, true)
	sum := c.PageSummary(strings.Repeat("a", 500), baseMeta(1))
	if sum == nil {
		t.Fatal("expected a summary chunk")
	}
	text := sum.(chunks.TextChunk).Text
	if len(text) != len("[Page 1 overview] ")+100 {
		t.Errorf("expected truncation to 100 chars of body, got total %d", len(text))
	}
}

func TestContentHash_Deterministic(t *testing.T) {
	c := New(450, 50, 10, 8000, false)
	a := c.TextChunks("Identical content hashes identically.", baseMeta(1))
	b := c.TextChunks("Identical content hashes identically.", baseMeta(9))
	if a[0].Meta().ContentHash != b[0].Meta().ContentHash {
		t.Error("expected identical text to hash identically regardless of metadata")
	}
}

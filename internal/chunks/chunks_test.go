package chunks

import (
	"strings"
	"testing"
	"time"
)

func TestToText_Variants(t *testing.T) {
	text := TextChunk{Text: "plain prose"}
	if got := ToText(text); got != "plain prose" {
		t.Errorf("unexpected text flattening: %q", got)
	}

	table := TableChunk{Markdown: "| a |\n| --- |\n| 1 |"}
	if got := ToText(table); got != table.Markdown {
		t.Errorf("unexpected table flattening: %q", got)
	}
	table.Summary = "One-column table."
	if got := ToText(table); !strings.HasSuffix(got, "\nSummary: One-column table.") {
		t.Errorf("expected summary suffix, got %q", got)
	}

	fig := FigureChunk{
		Caption:          "Figure 1: CPI",
		ChartDescription: "A bar chart of CPI components.",
		OCRText:          "Energy Core",
	}
	flat := ToText(fig)
	wantOrder := []string{"Caption: Figure 1: CPI", "A bar chart", "OCR overlay: Energy Core"}
	last := -1
	for _, w := range wantOrder {
		idx := strings.Index(flat, w)
		if idx < 0 || idx < last {
			t.Fatalf("expected %q in order in %q", w, flat)
		}
		last = idx
	}

	if got := ToText(FigureChunk{}); got != "(figure - no text extracted)" {
		t.Errorf("unexpected empty-figure placeholder: %q", got)
	}
}

func TestCitation(t *testing.T) {
	m := Metadata{SourceFile: "q3_outlook.pdf", Page: 4}
	if got := m.Citation(); got != "q3_outlook.pdf, p.4" {
		t.Errorf("unexpected citation: %q", got)
	}
	m.ExhibitID = "Table 2 (p.4)"
	if got := m.Citation(); got != "q3_outlook.pdf, p.4 - Table 2 (p.4)" {
		t.Errorf("unexpected citation with exhibit: %q", got)
	}
}

func TestMetadataMap_FigureFields(t *testing.T) {
	fig := FigureChunk{
		FigureType: FigureBarChart,
		ImagePath:  "storage/resources/abc/page_1_fig_1.png",
		Metadata: Metadata{
			DocID:      "abc",
			SourceFile: "r.pdf",
			Page:       1,
			BlockType:  BlockFigure,
			CreatedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	}
	m := MetadataMap(fig)
	if m["figure_type"] != "bar_chart" {
		t.Errorf("expected figure_type, got %q", m["figure_type"])
	}
	if m["image_path"] == "" {
		t.Error("expected image_path")
	}
	if m["created_at"] != "2026-03-01T12:00:00Z" {
		t.Errorf("unexpected created_at: %q", m["created_at"])
	}

	text := TextChunk{Metadata: Metadata{BlockType: BlockText}}
	if _, ok := MetadataMap(text)["figure_type"]; ok {
		t.Error("expected no figure fields on text chunks")
	}
}

func TestContentHashHex(t *testing.T) {
	h1 := ContentHashHex([]byte("hello world"))
	h2 := ContentHashHex([]byte("hello world"))
	if h1 != h2 {
		t.Errorf("expected identical hashes, got %q and %q", h1, h2)
	}
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if h1 != want {
		t.Errorf("expected hash %q, got %q", want, h1)
	}
	if ContentHashHex([]byte("a")) == ContentHashHex([]byte("b")) {
		t.Error("expected different hashes for different inputs")
	}
}

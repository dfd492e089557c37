// Package chunks defines the unit of storage produced by the ingestion
// pipeline: text, table, and figure chunks sharing a common metadata record.
package chunks

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"
)

// BlockType identifies the family a chunk belongs to.
type BlockType string

const (
	BlockText        BlockType = "text"
	BlockTable       BlockType = "table"
	BlockFigure      BlockType = "figure"
	BlockPageSummary BlockType = "page_summary"
)

// FigureType classifies a figure chunk's visual content.
type FigureType string

const (
	FigureLineChart           FigureType = "line_chart"
	FigureMultiLineChart      FigureType = "multi_line_chart"
	FigureAreaChart           FigureType = "area_chart"
	FigureBarChart            FigureType = "bar_chart"
	FigureStackedBarChart     FigureType = "stacked_bar_chart"
	FigurePieChart            FigureType = "pie_chart"
	FigureDonutChart          FigureType = "donut_chart"
	FigureScatterChart        FigureType = "scatter_chart"
	FigureBubbleChart         FigureType = "bubble_chart"
	FigureBoxWhisker          FigureType = "box_whisker"
	FigureWaterfall           FigureType = "waterfall"
	FigureHeatmap             FigureType = "heatmap"
	FigureCandlestick         FigureType = "candlestick"
	FigureHistogram           FigureType = "histogram"
	FigureNetworkGraph        FigureType = "network_graph"
	FigureParallelCoordinates FigureType = "parallel_coordinates"
	FigurePhoto               FigureType = "photo"
	FigureDiagram             FigureType = "diagram"
	FigureLogo                FigureType = "logo"
	FigureUnknown             FigureType = "unknown"
)

// Metadata is shared by every chunk variant. ContentHash is the chunk's
// storage identity: the SHA-256 of its canonical text representation.
type Metadata struct {
	DocID       string    `json:"doc_id"`
	SourceFile  string    `json:"source_file"`
	Page        int       `json:"page"`
	BlockType   BlockType `json:"block_type"`
	Section     string    `json:"section"`
	ExhibitID   string    `json:"exhibit_id,omitempty"`
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
}

// Citation renders the provenance string used in query responses,
// e.g. "q3_outlook.pdf, p.4 - Table 2 (p.4)".
func (m Metadata) Citation() string {
	s := fmt.Sprintf("%s, p.%d", m.SourceFile, m.Page)
	if m.ExhibitID != "" {
		s += " - " + m.ExhibitID
	}
	return s
}

// Chunk is the tagged union of the three storable variants. Consumers
// type-switch on the concrete type for variant-specific handling.
type Chunk interface {
	Meta() Metadata
}

// TextChunk holds narrative prose (or a page summary).
type TextChunk struct {
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

func (c TextChunk) Meta() Metadata { return c.Metadata }

// TableChunk holds an extracted table as markdown plus a CSV rendering.
type TableChunk struct {
	Markdown string   `json:"markdown"`
	CSV      string   `json:"csv"`
	Summary  string   `json:"summary,omitempty"`
	Metadata Metadata `json:"metadata"`
}

func (c TableChunk) Meta() Metadata { return c.Metadata }

// Series is optional digitized chart data.
type Series struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// FigureChunk holds the textual signals extracted from a figure image.
type FigureChunk struct {
	Caption          string     `json:"caption"`
	OCRText          string     `json:"ocr_text"`
	ChartDescription string     `json:"chart_description"`
	FigureType       FigureType `json:"figure_type"`
	Series           *Series    `json:"series,omitempty"`
	ImagePath        string     `json:"image_path"`
	Metadata         Metadata   `json:"metadata"`
}

func (c FigureChunk) Meta() Metadata { return c.Metadata }

// ToText flattens a chunk into the canonical string that is hashed,
// embedded, and stored.
func ToText(c Chunk) string {
	switch v := c.(type) {
	case TextChunk:
		return v.Text
	case TableChunk:
		if v.Summary != "" {
			return v.Markdown + "\nSummary: " + v.Summary
		}
		return v.Markdown
	case FigureChunk:
		var parts []string
		if v.Caption != "" {
			parts = append(parts, "Caption: "+v.Caption)
		}
		if v.ChartDescription != "" {
			parts = append(parts, v.ChartDescription)
		}
		if v.OCRText != "" {
			parts = append(parts, "OCR overlay: "+v.OCRText)
		}
		if len(parts) == 0 {
			return "(figure - no text extracted)"
		}
		return strings.Join(parts, "\n")
	default:
		return fmt.Sprintf("%v", c)
	}
}

// ContentHashHex computes SHA-256 of data and returns the hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}

// MetadataMap flattens metadata into the string map the vector store accepts.
func MetadataMap(c Chunk) map[string]string {
	m := c.Meta()
	out := map[string]string{
		"doc_id":       m.DocID,
		"source_file":  m.SourceFile,
		"page":         fmt.Sprintf("%d", m.Page),
		"block_type":   string(m.BlockType),
		"section":      m.Section,
		"exhibit_id":   m.ExhibitID,
		"content_hash": m.ContentHash,
		"created_at":   m.CreatedAt.UTC().Format(time.RFC3339),
		"citation":     m.Citation(),
	}
	if f, ok := c.(FigureChunk); ok {
		out["figure_type"] = string(f.FigureType)
		out["image_path"] = f.ImagePath
	}
	return out
}

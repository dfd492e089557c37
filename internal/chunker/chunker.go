// Package chunker turns classified page blocks and extracted artifacts into
// storable chunks: sliding-window text chunks with section threading, one
// chunk per table and figure, and an optional page overview chunk.
package chunker

import (
	"fmt"
	"strings"
	"time"

	"github.com/finchunk/finchunk/internal/chunks"
	"github.com/finchunk/finchunk/internal/layout"
	"github.com/finchunk/finchunk/internal/tables"
)

// Chunker holds the windowing parameters.
type Chunker struct {
	Size               int // window length, characters
	Overlap            int // characters shared between consecutive windows
	MinLength          int // windows shorter than this are discarded
	MaxLength          int // hard cap applied to summaries
	IncludePageSummary bool

	now func() time.Time
}

func New(size, overlap, minLength, maxLength int, includePageSummary bool) *Chunker {
	if size <= 0 {
		size = 450
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 9
	}
	if minLength <= 0 {
		minLength = 30
	}
	if maxLength <= 0 {
		maxLength = 8000
	}
	return &Chunker{
		Size:               size,
		Overlap:            overlap,
		MinLength:          minLength,
		MaxLength:          maxLength,
		IncludePageSummary: includePageSummary,
		now:                time.Now,
	}
}

// PageText linearizes a page's blocks into prose. Headings become markdown
// markers, paragraphs and footnotes join with spaces; headers, footers,
// captions, and figure blocks are skipped (caption text travels with its
// figure chunk). The returned section is the last heading seen, or the
// incoming section when the page has none.
func (c *Chunker) PageText(blocks []layout.Block, section string) (string, string) {
	var sb strings.Builder
	for _, b := range blocks {
		text := strings.TrimSpace(b.Text)
		if text == "" {
			continue
		}
		switch b.Role {
		case layout.RoleHeading:
			section = text
			sb.WriteString("\n## " + text + "\n")
		case layout.RoleParagraph, layout.RoleFootnote:
			if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
				sb.WriteString(" ")
			}
			sb.WriteString(text)
		}
	}
	return strings.TrimSpace(sb.String()), section
}

// TextChunks slides a fixed window over the page text. The stride is
// Size-Overlap and advances even past windows that fall below MinLength, so
// the positions of surviving windows do not depend on their neighbors.
func (c *Chunker) TextChunks(pageText string, base chunks.Metadata) []chunks.Chunk {
	runes := []rune(pageText)
	stride := c.Size - c.Overlap

	var out []chunks.Chunk
	for start := 0; start < len(runes); start += stride {
		end := min(start+c.Size, len(runes))
		window := strings.TrimSpace(string(runes[start:end]))
		if len([]rune(window)) >= c.MinLength {
			ch := chunks.TextChunk{Text: window, Metadata: base}
			ch.Metadata.BlockType = chunks.BlockText
			out = append(out, c.finalize(ch))
		}
		if end == len(runes) {
			break
		}
	}
	return out
}

// TableChunks builds one chunk per extracted table. The exhibit number is the
// table's 1-based position among the page's tables, so a table skipped for an
// empty rendering still consumes its number.
func (c *Chunker) TableChunks(tbls []tables.ExtractedTable, base chunks.Metadata) []chunks.Chunk {
	var out []chunks.Chunk
	for i, t := range tbls {
		if strings.TrimSpace(t.Markdown) == "" {
			continue
		}
		ch := chunks.TableChunk{
			Markdown: t.Markdown,
			CSV:      t.CSV,
			Metadata: base,
		}
		ch.Metadata.BlockType = chunks.BlockTable
		ch.Metadata.Page = t.PageNumber
		ch.Metadata.ExhibitID = fmt.Sprintf("Table %d (p.%d)", i+1, t.PageNumber)
		out = append(out, c.finalize(ch))
	}
	return out
}

// FigureInput is the assembled signal set for one figure region.
type FigureInput struct {
	Index       int // 1-based within the page
	Page        int
	Caption     string
	OCRText     string
	Description string
	FigureType  chunks.FigureType
	Series      *chunks.Series
	ImagePath   string
}

// FigureChunks builds one chunk per figure. A figure whose flattened text
// falls below MinLength gets a provenance caption instead of being dropped:
// the image itself is still worth a retrievable record.
func (c *Chunker) FigureChunks(figs []FigureInput, base chunks.Metadata) []chunks.Chunk {
	var out []chunks.Chunk
	for _, f := range figs {
		ch := chunks.FigureChunk{
			Caption:          f.Caption,
			OCRText:          f.OCRText,
			ChartDescription: f.Description,
			FigureType:       f.FigureType,
			Series:           f.Series,
			ImagePath:        f.ImagePath,
			Metadata:         base,
		}
		ch.Metadata.BlockType = chunks.BlockFigure
		ch.Metadata.Page = f.Page
		ch.Metadata.ExhibitID = fmt.Sprintf("Figure %d (p.%d)", f.Index, f.Page)
		if len([]rune(chunks.ToText(ch))) < c.MinLength {
			ch.Caption = fmt.Sprintf("Figure from %s page %d", base.SourceFile, f.Page)
		}
		out = append(out, c.finalize(ch))
	}
	return out
}

// PageSummary produces the page overview chunk, or nil when disabled or the
// page text is too short to summarize.
func (c *Chunker) PageSummary(pageText string, base chunks.Metadata) chunks.Chunk {
	if !c.IncludePageSummary {
		return nil
	}
	text := strings.TrimSpace(pageText)
	if len([]rune(text)) < c.MinLength {
		return nil
	}
	runes := []rune(text)
	if len(runes) > c.MaxLength {
		text = string(runes[:c.MaxLength])
	}
	ch := chunks.TextChunk{
		Text:     fmt.Sprintf("[Page %d overview] %s", base.Page, text),
		Metadata: base,
	}
	ch.Metadata.BlockType = chunks.BlockPageSummary
	return c.finalize(ch)
}

// finalize stamps the content hash and creation time. Hashing happens at
// creation so later mutation cannot desynchronize identity from content.
func (c *Chunker) finalize(ch chunks.Chunk) chunks.Chunk {
	switch v := ch.(type) {
	case chunks.TextChunk:
		v.Metadata.ContentHash = chunks.ContentHashHex([]byte(chunks.ToText(v)))
		v.Metadata.CreatedAt = c.now()
		return v
	case chunks.TableChunk:
		v.Metadata.ContentHash = chunks.ContentHashHex([]byte(chunks.ToText(v)))
		v.Metadata.CreatedAt = c.now()
		return v
	case chunks.FigureChunk:
		v.Metadata.ContentHash = chunks.ContentHashHex([]byte(chunks.ToText(v)))
		v.Metadata.CreatedAt = c.now()
		return v
	default:
		return ch
	}
}

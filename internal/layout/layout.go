// Package layout classifies page text spans into semantic roles using
// positional and typographic heuristics, and merges embedded-image regions
// into figure candidates.
package layout

import (
	"regexp"
	"sort"
	"strings"

	"github.com/finchunk/finchunk/internal/pagesource"
)

// Role is the semantic role of a page region.
type Role string

const (
	RoleHeading   Role = "heading"
	RoleParagraph Role = "paragraph"
	RoleTable     Role = "table"
	RoleFigure    Role = "figure"
	RoleCaption   Role = "caption"
	RoleFootnote  Role = "footnote"
	RoleHeader    Role = "header"
	RoleFooter    Role = "footer"
	RoleOther     Role = "other"
)

// Block is a classified page region. Text is empty for image-only figures.
type Block struct {
	Role       Role
	BBox       pagesource.Rect
	Text       string
	Page       int
	Confidence float64
}

// Segmenter holds the classification thresholds.
type Segmenter struct {
	HeadingFontRatio  float64 // span font >= median * ratio -> heading
	HeaderYRatio      float64 // vertical center above this fraction -> header
	FooterYRatio      float64 // vertical center below this fraction -> footnote
	MinImageAreaRatio float64 // embedded images below this page fraction are ignored
	MaxHeadingWords   int
}

func NewSegmenter() *Segmenter {
	return &Segmenter{
		HeadingFontRatio:  1.25,
		HeaderYRatio:      0.06,
		FooterYRatio:      0.92,
		MinImageAreaRatio: 0.01,
		MaxHeadingWords:   15,
	}
}

var captionRe = regexp.MustCompile(`(?i)^(figure|fig\.?|table|exhibit|chart|graph|source|note)\s`)

// Segment classifies every text span on the page and appends figure blocks
// for embedded images large enough to matter.
func (s *Segmenter) Segment(page pagesource.PageRecord) []Block {
	median := medianFontSize(page.Spans)
	blocks := make([]Block, 0, len(page.Spans)+len(page.Images))

	for _, span := range page.Spans {
		blocks = append(blocks, Block{
			Role:       s.classify(span, median, page.Height),
			BBox:       span.BBox,
			Text:       span.Text,
			Page:       page.PageNumber,
			Confidence: 1.0,
		})
	}

	pageArea := page.Width * page.Height
	for _, img := range page.Images {
		if pageArea <= 0 {
			continue
		}
		if img.BBox.Area()/pageArea < s.MinImageAreaRatio {
			continue // tiny icons and decorations
		}
		blocks = append(blocks, Block{
			Role:       RoleFigure,
			BBox:       img.BBox,
			Page:       page.PageNumber,
			Confidence: 1.0,
		})
	}

	return blocks
}

func (s *Segmenter) classify(span pagesource.TextSpan, median, pageHeight float64) Role {
	relY := 0.5
	if pageHeight > 0 {
		relY = span.BBox.CenterY() / pageHeight
	}

	// Position beats content.
	if relY < s.HeaderYRatio {
		return RoleHeader
	}
	if relY > s.FooterYRatio {
		return RoleFootnote
	}

	if captionRe.MatchString(strings.TrimSpace(span.Text)) {
		return RoleCaption
	}

	if span.FontSize >= median*s.HeadingFontRatio ||
		(span.Bold && len(strings.Fields(span.Text)) < s.MaxHeadingWords) {
		return RoleHeading
	}

	return RoleParagraph
}

// GroupParagraphs merges runs of consecutive paragraph blocks into one block
// per run: the bbox expands to the union and the text joins with a space.
// Any non-paragraph block passes through and resets the run.
func GroupParagraphs(blocks []Block) []Block {
	if len(blocks) == 0 {
		return nil
	}
	merged := make([]Block, 0, len(blocks))
	var cur *Block

	for _, b := range blocks {
		if b.Role == RoleParagraph {
			if cur == nil {
				c := b
				cur = &c
			} else {
				cur.Text += " " + b.Text
				cur.BBox = cur.BBox.Union(b.BBox)
			}
			continue
		}
		if cur != nil {
			merged = append(merged, *cur)
			cur = nil
		}
		merged = append(merged, b)
	}
	if cur != nil {
		merged = append(merged, *cur)
	}
	return merged
}

func medianFontSize(spans []pagesource.TextSpan) float64 {
	sizes := make([]float64, 0, len(spans))
	for _, sp := range spans {
		if sp.FontSize > 0 {
			sizes = append(sizes, sp.FontSize)
		}
	}
	if len(sizes) == 0 {
		return 12.0
	}
	sort.Float64s(sizes)
	return sizes[len(sizes)/2]
}

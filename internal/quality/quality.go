// Package quality gates chunks before storage. Every rule is a pure function
// of a single chunk, so filtering is total and order-independent: no chunk's
// verdict depends on any other chunk.
package quality

import (
	"strings"
	"unicode"

	"github.com/finchunk/finchunk/internal/chunks"
)

// Rejection records a chunk that failed the gate and why.
type Rejection struct {
	Chunk  chunks.Chunk
	Reason string
}

// Gate holds the acceptance thresholds.
type Gate struct {
	MinLength     int     // flattened text shorter than this is rejected
	MaxLength     int     // and longer than this
	MinAlnumRatio float64 // fraction of alphanumeric runes required
	TableMinRows  int     // data rows a table needs, separator excluded
	TableMinCols  int
	FigureMinText int // flattened figure text shorter than this is rejected
}

func NewGate(minLength, maxLength, tableMinRows, tableMinCols int) *Gate {
	if minLength <= 0 {
		minLength = 30
	}
	if maxLength <= 0 {
		maxLength = 8000
	}
	if tableMinRows <= 0 {
		tableMinRows = 2
	}
	if tableMinCols <= 0 {
		tableMinCols = 2
	}
	return &Gate{
		MinLength:     minLength,
		MaxLength:     maxLength,
		MinAlnumRatio: 0.30,
		TableMinRows:  tableMinRows,
		TableMinCols:  tableMinCols,
		FigureMinText: 10,
	}
}

// Filter partitions chunks into accepted and rejected, preserving input
// order within each partition. Chunk kinds without a specific rule pass.
func (g *Gate) Filter(in []chunks.Chunk) (accepted []chunks.Chunk, rejected []Rejection) {
	for _, c := range in {
		if reason := g.Check(c); reason != "" {
			rejected = append(rejected, Rejection{Chunk: c, Reason: reason})
		} else {
			accepted = append(accepted, c)
		}
	}
	return accepted, rejected
}

// Check returns the rejection reason for a chunk, or "" when it passes.
func (g *Gate) Check(c chunks.Chunk) string {
	switch v := c.(type) {
	case chunks.TextChunk:
		return g.checkText(v.Text)
	case chunks.TableChunk:
		return g.checkTable(v)
	case chunks.FigureChunk:
		return g.checkFigure(v)
	default:
		return ""
	}
}

func (g *Gate) checkText(text string) string {
	runes := []rune(strings.TrimSpace(text))
	n := len(runes)
	if n < g.MinLength {
		return "too short"
	}
	if n > g.MaxLength {
		return "too long"
	}

	alnum := 0
	for _, r := range runes {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			alnum++
		}
	}
	if float64(alnum)/float64(n) < g.MinAlnumRatio {
		return "low alphanumeric content"
	}

	// Boilerplate detector: long runs of the same few words.
	words := strings.Fields(strings.ToLower(text))
	if len(words) >= 5 {
		unique := make(map[string]struct{}, len(words))
		for _, w := range words {
			unique[w] = struct{}{}
		}
		if float64(len(unique))/float64(len(words)) < 0.5 {
			return "repetitive content"
		}
	}
	return ""
}

func (g *Gate) checkTable(t chunks.TableChunk) string {
	md := strings.TrimSpace(t.Markdown)
	if md == "" {
		return "empty table"
	}

	dataRows := 0
	cols := 0
	for _, line := range strings.Split(md, "\n") {
		line = strings.TrimSpace(line)
		if !strings.Contains(line, "|") || isSeparatorRow(line) {
			continue
		}
		dataRows++
		if c := countCells(line); c > cols {
			cols = c
		}
	}
	if dataRows < g.TableMinRows {
		return "too few rows"
	}
	if cols < g.TableMinCols {
		return "too few columns"
	}
	return ""
}

func (g *Gate) checkFigure(f chunks.FigureChunk) string {
	if len([]rune(strings.TrimSpace(chunks.ToText(f)))) < g.FigureMinText {
		return "no usable figure text"
	}
	return ""
}

// isSeparatorRow reports whether a markdown line is the header separator,
// i.e. contains only pipes, dashes, colons, and spaces.
func isSeparatorRow(line string) bool {
	seen := false
	for _, r := range line {
		switch r {
		case '|', ':', ' ':
		case '-':
			seen = true
		default:
			return false
		}
	}
	return seen
}

func countCells(line string) int {
	line = strings.Trim(line, "|")
	return len(strings.Split(line, "|"))
}

// Package tables extracts tables from pages. The primary method detects
// ruled-line grids in the page's vector drawing operators; the fallback crops
// a layout-tagged table region from the raster and reconstructs rows from OCR
// boxes. Each result records which method produced it.
package tables

import (
	"context"
	"encoding/csv"
	"log/slog"
	"sort"
	"strings"

	"github.com/finchunk/finchunk/internal/ocr"
	"github.com/finchunk/finchunk/internal/pagesource"
)

// Method names the extraction path that produced a table.
type Method string

const (
	MethodPrimary     Method = "primary"
	MethodOCRFallback Method = "ocr-fallback"
)

// ExtractedTable is one table found on a page. Never mutated after creation.
type ExtractedTable struct {
	PageNumber int
	BBox       pagesource.Rect
	Rows       [][]string
	Markdown   string
	CSV        string
	Method     Method
}

// Extractor holds the table-detection thresholds.
type Extractor struct {
	MinRows        int
	MinCols        int
	RowTolerancePx int     // OCR fallback: boxes within this of a row key join it
	RuleThickness  float64 // max thickness of a drawing path to count as a rule, pt
	RuleMinLength  float64 // min length of a rule, pt
	SnapTolerance  float64 // rules within this distance share a grid line, pt

	log *slog.Logger
}

func NewExtractor(minRows, minCols int, log *slog.Logger) *Extractor {
	if minRows <= 0 {
		minRows = 2
	}
	if minCols <= 0 {
		minCols = 2
	}
	return &Extractor{
		MinRows:        minRows,
		MinCols:        minCols,
		RowTolerancePx: 12,
		RuleThickness:  2.0,
		RuleMinLength:  10.0,
		SnapTolerance:  3.0,
		log:            log,
	}
}

// ExtractVector runs the ruled-line detector over the page's drawing paths.
func (e *Extractor) ExtractVector(page pagesource.PageRecord) []ExtractedTable {
	var hRules, vRules []pagesource.Rect
	for _, d := range page.Drawings {
		b := d.BBox
		if b.Height() <= e.RuleThickness && b.Width() >= e.RuleMinLength {
			hRules = append(hRules, b)
		} else if b.Width() <= e.RuleThickness && b.Height() >= e.RuleMinLength {
			vRules = append(vRules, b)
		}
	}
	if len(hRules) < 2 || len(vRules) < 2 {
		return nil
	}

	var tables []ExtractedTable
	for _, cand := range clusterRules(append(append([]pagesource.Rect{}, hRules...), vRules...), 6.0) {
		tbl := e.gridFromRules(page, cand, hRules, vRules)
		if tbl != nil {
			tables = append(tables, *tbl)
		}
	}

	sort.SliceStable(tables, func(i, j int) bool { return tables[i].BBox.Y0 < tables[j].BBox.Y0 })
	return tables
}

// gridFromRules snaps the rules inside a candidate region into grid lines and
// fills cells from the page's text spans.
func (e *Extractor) gridFromRules(page pagesource.PageRecord, region pagesource.Rect, hRules, vRules []pagesource.Rect) *ExtractedTable {
	var ys, xs []float64
	for _, r := range hRules {
		if region.WithinGap(r, 1.0) {
			ys = snap(ys, r.CenterY(), e.SnapTolerance)
		}
	}
	for _, r := range vRules {
		if region.WithinGap(r, 1.0) {
			xs = snap(xs, r.CenterX(), e.SnapTolerance)
		}
	}
	sort.Float64s(ys)
	sort.Float64s(xs)

	nRows, nCols := len(ys)-1, len(xs)-1
	if nRows < e.MinRows || nCols < e.MinCols {
		return nil
	}

	rows := make([][]string, nRows)
	for i := range rows {
		rows[i] = make([]string, nCols)
	}
	for _, span := range page.Spans {
		cx, cy := span.BBox.CenterX(), span.BBox.CenterY()
		row := bucket(ys, cy)
		col := bucket(xs, cx)
		if row < 0 || col < 0 {
			continue
		}
		if rows[row][col] != "" {
			rows[row][col] += " "
		}
		rows[row][col] += span.Text
	}

	// A grid with no text at all is a ruled decoration, not a table.
	filled := 0
	for _, r := range rows {
		for _, c := range r {
			if c != "" {
				filled++
			}
		}
	}
	if filled == 0 {
		return nil
	}

	bbox := pagesource.Rect{X0: xs[0], Y0: ys[0], X1: xs[len(xs)-1], Y1: ys[len(ys)-1]}
	return &ExtractedTable{
		PageNumber: page.PageNumber,
		BBox:       bbox,
		Rows:       rows,
		Markdown:   RowsToMarkdown(rows),
		CSV:        RowsToCSV(rows),
		Method:     MethodPrimary,
	}
}

// ExtractOCR crops a table region from the page raster and reconstructs rows
// by clustering OCR box vertical centers. Returns nil when the region does
// not yield a table meeting the minimums.
func (e *Extractor) ExtractOCR(ctx context.Context, client ocr.Client, page pagesource.PageRecord, bbox pagesource.Rect, confidence float64) *ExtractedTable {
	if client == nil || len(page.Raster) == 0 {
		return nil
	}
	crop, _, _, err := pagesource.CropRaster(page.Raster, bbox, page.RasterDPI)
	if err != nil {
		e.log.Debug("table crop failed", "page", page.PageNumber, "error", err)
		return nil
	}
	boxes, err := client.Recognize(ctx, crop, confidence)
	if err != nil {
		e.log.Warn("table ocr failed", "page", page.PageNumber, "error", err)
		return nil
	}
	rows := ClusterRows(boxes, e.RowTolerancePx)
	if len(rows) < e.MinRows {
		return nil
	}
	return &ExtractedTable{
		PageNumber: page.PageNumber,
		BBox:       bbox,
		Rows:       rows,
		Markdown:   RowsToMarkdown(rows),
		CSV:        RowsToCSV(rows),
		Method:     MethodOCRFallback,
	}
}

// FallbackRegions returns rule clusters that look tabular but cannot form a
// grid, typically tables ruled with horizontal lines only. Used to pick OCR
// regions when the vector detector comes up empty.
func (e *Extractor) FallbackRegions(page pagesource.PageRecord) []pagesource.Rect {
	var hRules []pagesource.Rect
	for _, d := range page.Drawings {
		b := d.BBox
		if b.Height() <= e.RuleThickness && b.Width() >= e.RuleMinLength {
			hRules = append(hRules, b)
		}
	}

	var regions []pagesource.Rect
	for _, cand := range clusterRules(hRules, 24.0) {
		count := 0
		for _, r := range hRules {
			if cand.WithinGap(r, 1.0) {
				count++
			}
		}
		// MinRows rows need at least MinRows+1 separating rules.
		if count > e.MinRows {
			regions = append(regions, cand)
		}
	}
	sort.SliceStable(regions, func(i, j int) bool { return regions[i].Y0 < regions[j].Y0 })
	return regions
}

// ClusterRows groups OCR boxes into rows by vertical-center proximity, then
// orders rows top-to-bottom and cells left-to-right.
func ClusterRows(boxes []ocr.Box, tolerance int) [][]string {
	type cell struct {
		x    int
		text string
	}
	rowMap := make(map[int][]cell)
	var keys []int

	for _, b := range boxes {
		yc := (b.Y0 + b.Y1) / 2
		matched := false
		for _, k := range keys {
			if absInt(k-yc) < tolerance {
				rowMap[k] = append(rowMap[k], cell{x: b.X0, text: b.Text})
				matched = true
				break
			}
		}
		if !matched {
			keys = append(keys, yc)
			rowMap[yc] = []cell{{x: b.X0, text: b.Text}}
		}
	}

	sort.Ints(keys)
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		cells := rowMap[k]
		sort.SliceStable(cells, func(i, j int) bool { return cells[i].x < cells[j].x })
		row := make([]string, 0, len(cells))
		for _, c := range cells {
			row = append(row, c.text)
		}
		rows = append(rows, row)
	}
	return rows
}

// RowsToMarkdown renders a pipe table with a separator row after the header.
func RowsToMarkdown(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}
	maxCols := 0
	for _, r := range rows {
		maxCols = max(maxCols, len(r))
	}
	pad := func(r []string) []string {
		for len(r) < maxCols {
			r = append(r, "")
		}
		return r
	}

	var lines []string
	lines = append(lines, "| "+strings.Join(pad(rows[0]), " | ")+" |")
	sep := make([]string, maxCols)
	for i := range sep {
		sep[i] = "---"
	}
	lines = append(lines, "| "+strings.Join(sep, " | ")+" |")
	for _, r := range rows[1:] {
		lines = append(lines, "| "+strings.Join(pad(r), " | ")+" |")
	}
	return strings.Join(lines, "\n")
}

// RowsToCSV renders the cell matrix via encoding/csv.
func RowsToCSV(rows [][]string) string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			return ""
		}
	}
	w.Flush()
	return sb.String()
}

// clusterRules greedily merges rule bboxes that overlap or lie within gap.
func clusterRules(rules []pagesource.Rect, gap float64) []pagesource.Rect {
	var clusters []pagesource.Rect
	for _, r := range rules {
		merged := false
		for i, c := range clusters {
			if r.WithinGap(c, gap) {
				clusters[i] = c.Union(r)
				merged = true
				break
			}
		}
		if !merged {
			clusters = append(clusters, r)
		}
	}
	return clusters
}

// snap adds v to the sorted-line set unless an existing line is within tol.
func snap(lines []float64, v, tol float64) []float64 {
	for _, l := range lines {
		if v >= l-tol && v <= l+tol {
			return lines
		}
	}
	return append(lines, v)
}

// bucket returns the grid interval containing v, or -1 when outside.
func bucket(lines []float64, v float64) int {
	for i := 0; i+1 < len(lines); i++ {
		if v >= lines[i] && v < lines[i+1] {
			return i
		}
	}
	return -1
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

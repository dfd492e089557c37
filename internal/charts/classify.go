// Package charts turns figure crops into chart knowledge: a keyword classifier
// over caption and OCR text, and an HTTP client for a vision model service
// that describes and digitizes chart images.
package charts

import (
	"regexp"
	"strings"

	"github.com/finchunk/finchunk/internal/chunks"
)

type keywordRule struct {
	re  *regexp.Regexp
	typ chunks.FigureType
}

// Rules are ordered most-specific first: "stacked bar" must win over "bar",
// "multi-line" over "line", and so on.
var keywordRules = []keywordRule{
	{regexp.MustCompile(`(?i)\bpie\b`), chunks.FigurePieChart},
	{regexp.MustCompile(`(?i)\bdonut\b`), chunks.FigureDonutChart},
	{regexp.MustCompile(`(?i)\bscatter\b`), chunks.FigureScatterChart},
	{regexp.MustCompile(`(?i)\bbubble\b`), chunks.FigureBubbleChart},
	{regexp.MustCompile(`(?i)\b(candle|candlestick|ohlc)\b`), chunks.FigureCandlestick},
	{regexp.MustCompile(`(?i)\bwaterfall\b`), chunks.FigureWaterfall},
	{regexp.MustCompile(`(?i)\bheat\s?map\b`), chunks.FigureHeatmap},
	{regexp.MustCompile(`(?i)\bbox\s?(and\s)?whisker|boxplot\b`), chunks.FigureBoxWhisker},
	{regexp.MustCompile(`(?i)\bhistogram\b`), chunks.FigureHistogram},
	{regexp.MustCompile(`(?i)\bnetwork\b`), chunks.FigureNetworkGraph},
	{regexp.MustCompile(`(?i)\bparallel\s?coord`), chunks.FigureParallelCoordinates},
	{regexp.MustCompile(`(?i)\bstacked\s?(bar|column)\b`), chunks.FigureStackedBarChart},
	{regexp.MustCompile(`(?i)\b(bar|column)s?\s?(chart|graph)?\b`), chunks.FigureBarChart},
	{regexp.MustCompile(`(?i)\barea\s?(chart|graph)\b`), chunks.FigureAreaChart},
	{regexp.MustCompile(`(?i)\bmulti[-\s]?line\b`), chunks.FigureMultiLineChart},
	{regexp.MustCompile(`(?i)\bline\s?(chart|graph)?\b`), chunks.FigureLineChart},
}

// Classify picks a figure type from the caption and OCR overlay text. The
// first matching rule wins; no match yields FigureUnknown.
func Classify(caption, ocrText string) chunks.FigureType {
	text := strings.TrimSpace(caption + " " + ocrText)
	if text == "" {
		return chunks.FigureUnknown
	}
	for _, rule := range keywordRules {
		if rule.re.MatchString(text) {
			return rule.typ
		}
	}
	return chunks.FigureUnknown
}

// ParseLinearized decodes the model service's flattened table format: rows
// separated by newlines, cells by pipes. The first row names the columns.
// Returns nil when the payload has no data rows.
func ParseLinearized(data string) *chunks.Series {
	lines := strings.Split(strings.TrimSpace(data), "\n")
	var rows [][]string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cells := strings.Split(line, "|")
		row := make([]string, 0, len(cells))
		for _, c := range cells {
			row = append(row, strings.TrimSpace(c))
		}
		rows = append(rows, row)
	}
	if len(rows) < 2 {
		return nil
	}
	return &chunks.Series{Columns: rows[0], Rows: rows[1:]}
}

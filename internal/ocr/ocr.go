// Package ocr defines the OCR collaborator contract and an HTTP client for a
// remote recognition service. OCR failures are always soft: callers treat an
// error as an empty result and continue.
package ocr

import (
	"context"
	"sort"
	"strings"
)

// Box is one recognized text region, in pixel coordinates of the input image.
type Box struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	X0         int     `json:"x0"`
	Y0         int     `json:"y0"`
	X1         int     `json:"x1"`
	Y1         int     `json:"y1"`
}

// Client recognizes text in a PNG image. Implementations must return boxes
// sorted top-to-bottom, left-to-right with sub-threshold boxes excluded;
// SortBoxes/FilterBoxes are provided for that.
type Client interface {
	Recognize(ctx context.Context, png []byte, confidenceThreshold float64) ([]Box, error)
}

// SortBoxes orders boxes top-to-bottom, then left-to-right.
func SortBoxes(boxes []Box) {
	sort.SliceStable(boxes, func(i, j int) bool {
		if boxes[i].Y0 != boxes[j].Y0 {
			return boxes[i].Y0 < boxes[j].Y0
		}
		return boxes[i].X0 < boxes[j].X0
	})
}

// FilterBoxes drops boxes below the confidence threshold.
func FilterBoxes(boxes []Box, threshold float64) []Box {
	out := boxes[:0]
	for _, b := range boxes {
		if b.Confidence >= threshold {
			out = append(out, b)
		}
	}
	return out
}

// ToText joins box texts into a single string in reading order.
func ToText(boxes []Box) string {
	parts := make([]string, 0, len(boxes))
	for _, b := range boxes {
		if t := strings.TrimSpace(b.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

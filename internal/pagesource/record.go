// Package pagesource produces per-page records from PDF documents: positioned
// text spans, embedded-image regions, vector drawing paths, and a rendered
// raster. Everything downstream (layout, tables, figures) consumes PageRecord.
package pagesource

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
)

// Rect is an axis-aligned bounding box in page points, top-left origin.
type Rect struct {
	X0, Y0, X1, Y1 float64
}

func (r Rect) Width() float64  { return r.X1 - r.X0 }
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }

func (r Rect) Area() float64 {
	w, h := r.Width(), r.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

func (r Rect) CenterX() float64 { return (r.X0 + r.X1) / 2 }
func (r Rect) CenterY() float64 { return (r.Y0 + r.Y1) / 2 }

// Union expands r to cover both rects.
func (r Rect) Union(o Rect) Rect {
	return Rect{
		X0: min(r.X0, o.X0),
		Y0: min(r.Y0, o.Y0),
		X1: max(r.X1, o.X1),
		Y1: max(r.Y1, o.Y1),
	}
}

// IoU is the intersection-over-union of two rects, 0 when disjoint.
func (r Rect) IoU(o Rect) float64 {
	ix0, iy0 := max(r.X0, o.X0), max(r.Y0, o.Y0)
	ix1, iy1 := min(r.X1, o.X1), min(r.Y1, o.Y1)
	inter := max(0, ix1-ix0) * max(0, iy1-iy0)
	union := r.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// WithinGap reports whether two rects overlap or lie within gap points of
// each other on both axes.
func (r Rect) WithinGap(o Rect, gap float64) bool {
	return r.X0 <= o.X1+gap && r.X1 >= o.X0-gap &&
		r.Y0 <= o.Y1+gap && r.Y1 >= o.Y0-gap
}

// TextSpan is a run of text from the native PDF text layer.
type TextSpan struct {
	Text     string
	BBox     Rect
	FontSize float64
	FontName string
	Bold     bool
}

// ImageRegion is an embedded image's placement on the page.
type ImageRegion struct {
	BBox Rect
	PxW  int // pixel width of the underlying image stream, 0 if unknown
	PxH  int
}

// DrawingPath is a single vector drawing operation's bounding box.
type DrawingPath struct {
	BBox   Rect
	Fill   bool
	Stroke bool
}

// PageRecord is everything known about one page after parsing. Immutable once
// produced; the raster bytes are owned by that page's processing pass.
type PageRecord struct {
	PageNumber   int // 1-based
	Width        float64
	Height       float64
	Spans        []TextSpan
	Images       []ImageRegion
	Drawings     []DrawingPath
	RawText      string
	HasTextLayer bool
	Raster       []byte // PNG rendered at the configured DPI, nil when rendering is unavailable
	RasterDPI    int
}

// Source yields the ordered page records of a document.
type Source interface {
	Pages(ctx context.Context, path string) ([]PageRecord, error)
}

// FileHashHex computes the SHA-256 of a file's contents; used as doc_id.
func FileHashHex(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

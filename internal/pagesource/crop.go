package pagesource

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
)

// CropRaster cuts a page-space bbox out of a rendered page PNG. The bbox is
// scaled from point-space to pixel-space by dpi/72 and clamped to the image.
// Returns an error when the resulting crop would be empty.
func CropRaster(raster []byte, bbox Rect, dpi int) ([]byte, int, int, error) {
	img, err := png.Decode(bytes.NewReader(raster))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode raster: %w", err)
	}
	bounds := img.Bounds()
	scale := float64(dpi) / 72.0

	x0 := max(bounds.Min.X, int(bbox.X0*scale))
	y0 := max(bounds.Min.Y, int(bbox.Y0*scale))
	x1 := min(bounds.Max.X, int(bbox.X1*scale))
	y1 := min(bounds.Max.Y, int(bbox.Y1*scale))
	if x1 <= x0 || y1 <= y0 {
		return nil, 0, 0, fmt.Errorf("empty crop region")
	}

	out := image.NewRGBA(image.Rect(0, 0, x1-x0, y1-y0))
	draw.Draw(out, out.Bounds(), img, image.Pt(x0, y0), draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, 0, 0, fmt.Errorf("encode crop: %w", err)
	}
	return buf.Bytes(), x1 - x0, y1 - y0, nil
}

package pagesource

import (
	"testing"
)

const pageH = 792.0

func TestScanContentStream_StrokedRect(t *testing.T) {
	content := []byte("100 600 200 50 re S")
	out := scanContentStream(content, pageH)

	if len(out.drawings) != 1 {
		t.Fatalf("expected 1 drawing, got %d", len(out.drawings))
	}
	d := out.drawings[0]
	want := Rect{X0: 100, Y0: pageH - 650, X1: 300, Y1: pageH - 600}
	if d.BBox != want {
		t.Errorf("expected bbox %+v, got %+v", want, d.BBox)
	}
	if !d.Stroke || d.Fill {
		t.Errorf("expected stroke-only path, got fill=%v stroke=%v", d.Fill, d.Stroke)
	}
}

func TestScanContentStream_FilledPath(t *testing.T) {
	content := []byte("72 100 m 172 100 l 172 200 l 72 200 l f")
	out := scanContentStream(content, pageH)

	if len(out.drawings) != 1 {
		t.Fatalf("expected 1 drawing, got %d", len(out.drawings))
	}
	d := out.drawings[0]
	if !d.Fill || d.Stroke {
		t.Errorf("expected fill-only path, got fill=%v stroke=%v", d.Fill, d.Stroke)
	}
	want := Rect{X0: 72, Y0: pageH - 200, X1: 172, Y1: pageH - 100}
	if d.BBox != want {
		t.Errorf("expected bbox %+v, got %+v", want, d.BBox)
	}
}

func TestScanContentStream_NoOpPathDiscarded(t *testing.T) {
	content := []byte("10 10 m 50 50 l n 100 100 m 150 150 l S")
	out := scanContentStream(content, pageH)
	if len(out.drawings) != 1 {
		t.Fatalf("expected the n-terminated path discarded, got %d drawings", len(out.drawings))
	}
	if out.drawings[0].BBox.X0 != 100 {
		t.Errorf("expected only the second path, got %+v", out.drawings[0].BBox)
	}
}

func TestScanContentStream_ImagePlacement(t *testing.T) {
	// CTM scales the unit square to 200x150 and moves it to (100, 400).
	content := []byte("q 200 0 0 150 100 400 cm /Im1 Do Q")
	out := scanContentStream(content, pageH)

	if len(out.images) != 1 {
		t.Fatalf("expected 1 image placement, got %d", len(out.images))
	}
	want := Rect{X0: 100, Y0: pageH - 550, X1: 300, Y1: pageH - 400}
	if out.images[0] != want {
		t.Errorf("expected placement %+v, got %+v", want, out.images[0])
	}
	if out.imageNames[0] != "Im1" {
		t.Errorf("expected image name Im1, got %q", out.imageNames[0])
	}
}

func TestScanContentStream_CTMSaveRestore(t *testing.T) {
	// The second Do happens after Q restored the identity CTM.
	content := []byte("q 100 0 0 100 0 0 cm /Im1 Do Q /Im2 Do")
	out := scanContentStream(content, pageH)
	if len(out.images) != 2 {
		t.Fatalf("expected 2 placements, got %d", len(out.images))
	}
	if out.images[0].Width() != 100 {
		t.Errorf("expected scaled first placement, got width %v", out.images[0].Width())
	}
	if out.images[1].Width() != 1 {
		t.Errorf("expected unit second placement, got width %v", out.images[1].Width())
	}
}

func TestScanContentStream_NestedCM(t *testing.T) {
	content := []byte("q 2 0 0 2 0 0 cm q 1 0 0 1 10 20 cm /Im1 Do Q Q")
	out := scanContentStream(content, pageH)
	if len(out.images) != 1 {
		t.Fatalf("expected 1 placement, got %d", len(out.images))
	}
	// Translation (10,20) composed with the outer 2x scale lands at (20,40).
	img := out.images[0]
	if img.X0 != 20 {
		t.Errorf("expected composed translation x=20, got %v", img.X0)
	}
	if img.Width() != 2 {
		t.Errorf("expected composed scale width 2, got %v", img.Width())
	}
}

func TestScanContentStream_SkipsTextAndStrings(t *testing.T) {
	content := []byte("BT /F1 12 Tf (some (nested) text \\) literal) Tj ET 10 10 20 20 re f")
	out := scanContentStream(content, pageH)
	if len(out.drawings) != 1 {
		t.Fatalf("expected text ops ignored and 1 drawing, got %d", len(out.drawings))
	}
}

func TestScanContentStream_SkipsInlineImage(t *testing.T) {
	content := []byte("BI /W 2 /H 2 ID \x00\x01S f re EI 50 50 10 10 re f")
	out := scanContentStream(content, pageH)
	if len(out.drawings) != 1 {
		t.Fatalf("expected inline image payload skipped, got %d drawings", len(out.drawings))
	}
	if out.drawings[0].BBox.X0 != 50 {
		t.Errorf("expected only the trailing rect, got %+v", out.drawings[0].BBox)
	}
}

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"0", 0, true},
		{"42", 42, true},
		{"-7", -7, true},
		{"3.5", 3.5, true},
		{"-0.25", -0.25, true},
		{".5", 0.5, true},
		{"+2", 2, true},
		{"", 0, false},
		{"-", 0, false},
		{"1e3", 0, false},
	}
	for _, c := range cases {
		got, ok := parseNumber([]byte(c.in))
		if ok != c.ok || (ok && got != c.want) {
			t.Errorf("parseNumber(%q) = %v, %v; want %v, %v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestRectHelpers(t *testing.T) {
	a := Rect{X0: 0, Y0: 0, X1: 10, Y1: 10}
	b := Rect{X0: 5, Y0: 5, X1: 15, Y1: 15}

	if got := a.IoU(b); got <= 0.14 || got >= 0.15 {
		t.Errorf("expected IoU ~25/175, got %v", got)
	}
	if u := a.Union(b); u != (Rect{X0: 0, Y0: 0, X1: 15, Y1: 15}) {
		t.Errorf("unexpected union: %+v", u)
	}

	c := Rect{X0: 20, Y0: 0, X1: 30, Y1: 10}
	if !a.WithinGap(c, 10) {
		t.Error("expected rects 10pt apart to be within gap 10")
	}
	if a.WithinGap(c, 5) {
		t.Error("expected rects 10pt apart to be outside gap 5")
	}

	var zero Rect
	if zero.IoU(zero) != 0 {
		t.Error("expected zero-area IoU to be 0")
	}
}

package pagesource

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	pdflib "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// PDFSource parses PDF files into PageRecords. Text spans come from the
// native text layer, image placements and drawing paths from the page
// content streams, and the raster from pdftoppm when available.
type PDFSource struct {
	DPI            int
	MaxPages       int // 0 = unlimited
	RenderPdftoppm bool
	RenderTimeout  time.Duration

	log *slog.Logger
}

func NewPDFSource(dpi, maxPages int, renderPdftoppm bool, renderTimeout time.Duration, log *slog.Logger) *PDFSource {
	if dpi <= 0 {
		dpi = 100
	}
	if renderTimeout <= 0 {
		renderTimeout = 30 * time.Second
	}
	return &PDFSource{
		DPI:            dpi,
		MaxPages:       maxPages,
		RenderPdftoppm: renderPdftoppm,
		RenderTimeout:  renderTimeout,
		log:            log,
	}
}

// Pages parses every page of the document at path, in order.
func (s *PDFSource) Pages(ctx context.Context, path string) ([]PageRecord, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	// The pdfcpu context supplies content streams and image metadata.
	// Its absence degrades the record (no drawings, no image regions)
	// but never fails the parse.
	pctx := s.openPdfcpu(path)

	total := reader.NumPage()
	limit := total
	if s.MaxPages > 0 && s.MaxPages < total {
		limit = s.MaxPages
	}

	records := make([]PageRecord, 0, limit)
	for n := 1; n <= limit; n++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		page := reader.Page(n)
		if page.V.IsNull() {
			continue
		}
		w, h := mediaBox(page)

		spans := buildSpans(page, h)
		raw := joinSpanText(spans)

		rec := PageRecord{
			PageNumber:   n,
			Width:        w,
			Height:       h,
			Spans:        spans,
			RawText:      raw,
			HasTextLayer: len(strings.TrimSpace(raw)) > 20,
			RasterDPI:    s.DPI,
		}

		if pctx != nil && n <= pctx.PageCount {
			content := s.pageContent(pctx, n, h)
			rec.Drawings = content.drawings
			rec.Images = s.imageRegions(pctx, n, content)
		}

		if s.RenderPdftoppm {
			raster, err := s.renderPage(ctx, path, n)
			if err != nil {
				s.log.Warn("page render failed", "page", n, "error", err)
			} else {
				rec.Raster = raster
			}
		}

		records = append(records, rec)
	}

	s.log.Info("parsed pdf", "file", filepath.Base(path), "pages", len(records))
	return records, nil
}

func (s *PDFSource) openPdfcpu(path string) *model.Context {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	pctx, err := api.ReadValidateAndOptimize(f, model.NewDefaultConfiguration())
	if err != nil {
		s.log.Warn("pdfcpu read failed, geometry degraded", "file", filepath.Base(path), "error", err)
		return nil
	}
	return pctx
}

func (s *PDFSource) pageContent(pctx *model.Context, pageNr int, pageH float64) pageContent {
	r, err := pdfcpu.ExtractPageContent(pctx, pageNr)
	if err != nil || r == nil {
		return pageContent{}
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return pageContent{}
	}
	return scanContentStream(data, pageH)
}

// imageRegions pairs content-stream XObject placements with the page's image
// streams. A page without image streams has only form XObjects; those
// placements are dropped. Pixel dimensions fall back to a DPI estimate when
// the stream dict cannot be matched.
func (s *PDFSource) imageRegions(pctx *model.Context, pageNr int, content pageContent) []ImageRegion {
	objNrs := pdfcpu.ImageObjNrs(pctx, pageNr)
	if len(objNrs) == 0 || len(content.images) == 0 {
		return nil
	}

	type dims struct{ w, h int }
	var sizes []dims
	for _, nr := range objNrs {
		entry := pctx.Table[nr]
		if entry == nil || entry.Free || entry.Compressed {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok {
			continue
		}
		var d dims
		if obj, found := sd.Find("Width"); found {
			if i, ok := obj.(types.Integer); ok {
				d.w = int(i)
			}
		}
		if obj, found := sd.Find("Height"); found {
			if i, ok := obj.(types.Integer); ok {
				d.h = int(i)
			}
		}
		sizes = append(sizes, d)
	}

	// Distinct Do names appear in resource-dict order; pair them with the
	// page's image objects in that same order.
	nameIdx := make(map[string]int)
	for _, name := range content.imageNames {
		if _, seen := nameIdx[name]; !seen {
			nameIdx[name] = len(nameIdx)
		}
	}

	regions := make([]ImageRegion, 0, len(content.images))
	for i, bbox := range content.images {
		if bbox.Area() <= 0 {
			continue
		}
		reg := ImageRegion{BBox: bbox}
		if idx, ok := nameIdx[content.imageNames[i]]; ok && idx < len(sizes) {
			reg.PxW, reg.PxH = sizes[idx].w, sizes[idx].h
		}
		if reg.PxW == 0 || reg.PxH == 0 {
			scale := float64(s.DPI) / 72.0
			reg.PxW = int(bbox.Width() * scale)
			reg.PxH = int(bbox.Height() * scale)
		}
		regions = append(regions, reg)
	}
	return regions
}

// renderPage shells out to pdftoppm for a single-page PNG raster.
func (s *PDFSource) renderPage(ctx context.Context, path string, pageNr int) ([]byte, error) {
	dir, err := os.MkdirTemp("", "finchunk-raster-")
	if err != nil {
		return nil, fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	rctx, cancel := context.WithTimeout(ctx, s.RenderTimeout)
	defer cancel()

	prefix := filepath.Join(dir, "page")
	n := strconv.Itoa(pageNr)
	cmd := exec.CommandContext(rctx, "pdftoppm", "-png", "-r", strconv.Itoa(s.DPI), "-f", n, "-l", n, path, prefix)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, strings.TrimSpace(string(out)))
	}

	matches, err := filepath.Glob(prefix + "*.png")
	if err != nil || len(matches) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no output for page %d", pageNr)
	}
	return os.ReadFile(matches[0])
}

// mediaBox resolves the page's MediaBox, walking up the page tree for
// inherited values.
func mediaBox(p pdflib.Page) (w, h float64) {
	v := p.V
	for !v.IsNull() {
		mb := v.Key("MediaBox")
		if !mb.IsNull() && mb.Len() == 4 {
			x0, y0 := mb.Index(0).Float64(), mb.Index(1).Float64()
			x1, y1 := mb.Index(2).Float64(), mb.Index(3).Float64()
			if x1 > x0 && y1 > y0 {
				return x1 - x0, y1 - y0
			}
		}
		v = v.Key("Parent")
	}
	return 612, 792 // US Letter
}

// buildSpans groups the page's positioned characters into text spans:
// characters are bucketed into lines by baseline proximity, then split into
// spans on large horizontal gaps or font changes.
func buildSpans(page pdflib.Page, pageH float64) []TextSpan {
	content := page.Content()
	chars := make([]pdflib.Text, 0, len(content.Text))
	for _, t := range content.Text {
		if strings.TrimSpace(t.S) == "" {
			continue
		}
		chars = append(chars, t)
	}
	if len(chars) == 0 {
		return nil
	}

	// Top of page first (PDF y grows upward), then left to right.
	sort.SliceStable(chars, func(i, j int) bool {
		if chars[i].Y != chars[j].Y {
			return chars[i].Y > chars[j].Y
		}
		return chars[i].X < chars[j].X
	})

	var spans []TextSpan
	var cur []pdflib.Text
	flush := func() {
		if len(cur) > 0 {
			spans = append(spans, spanFromChars(cur, pageH))
			cur = nil
		}
	}

	for _, ch := range chars {
		if len(cur) == 0 {
			cur = append(cur, ch)
			continue
		}
		prev := cur[len(cur)-1]
		lineTol := max(2.0, prev.FontSize*0.4)
		sameLine := abs(ch.Y-prev.Y) <= lineTol
		gap := ch.X - (prev.X + prev.W)
		if !sameLine || gap > max(3.0, prev.FontSize*1.2) || ch.Font != prev.Font || abs(ch.FontSize-prev.FontSize) > 0.5 {
			flush()
		}
		cur = append(cur, ch)
	}
	flush()

	return spans
}

func spanFromChars(chars []pdflib.Text, pageH float64) TextSpan {
	var sb strings.Builder
	x0, x1 := chars[0].X, chars[0].X+chars[0].W
	baseline := chars[0].Y
	fs := chars[0].FontSize
	for i, ch := range chars {
		if i > 0 {
			prev := chars[i-1]
			if ch.X-(prev.X+prev.W) > max(0.8, prev.FontSize*0.22) {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(ch.S)
		x0 = min(x0, ch.X)
		x1 = max(x1, ch.X+ch.W)
		fs = max(fs, ch.FontSize)
	}
	return TextSpan{
		Text:     strings.TrimSpace(sb.String()),
		BBox:     Rect{X0: x0, Y0: pageH - baseline - fs, X1: x1, Y1: pageH - baseline},
		FontSize: fs,
		FontName: chars[0].Font,
		Bold:     strings.Contains(strings.ToLower(chars[0].Font), "bold"),
	}
}

func joinSpanText(spans []TextSpan) string {
	parts := make([]string, 0, len(spans))
	for _, s := range spans {
		if s.Text != "" {
			parts = append(parts, s.Text)
		}
	}
	return strings.Join(parts, " ")
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

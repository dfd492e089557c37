// Package figures detects figure regions on a page, crops them from the page
// raster, writes the crops to the resources directory, and pairs each region
// with its nearest caption.
package figures

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/finchunk/finchunk/internal/layout"
	"github.com/finchunk/finchunk/internal/pagesource"
)

// Figure is one detected figure region with its saved crop.
type Figure struct {
	PageNumber int
	Index      int // 1-based within the page
	BBox       pagesource.Rect
	Caption    string
	Image      []byte // PNG crop, nil when the page has no raster
	PxW        int
	PxH        int
	ImagePath  string // on disk, empty when no crop was saved
}

// Extractor holds the figure-detection thresholds.
type Extractor struct {
	MinAreaRatio float64 // candidate regions below this page fraction are dropped
	IoUThreshold float64 // candidates overlapping an accepted one above this collapse into it
	MergeGap     float64 // drawing paths within this many points cluster together
	MinPaths     int     // a drawing cluster needs at least this many paths
	MinCropPx    int     // crops narrower or shorter than this are discarded
	ResourcesDir string

	log *slog.Logger
}

func NewExtractor(minAreaRatio, iouThreshold, mergeGap float64, minPaths int, resourcesDir string, log *slog.Logger) *Extractor {
	if minAreaRatio <= 0 {
		minAreaRatio = 0.02
	}
	if iouThreshold <= 0 {
		iouThreshold = 0.3
	}
	if mergeGap <= 0 {
		mergeGap = 10.0
	}
	if minPaths <= 0 {
		minPaths = 5
	}
	return &Extractor{
		MinAreaRatio: minAreaRatio,
		IoUThreshold: iouThreshold,
		MergeGap:     mergeGap,
		MinPaths:     minPaths,
		MinCropPx:    20,
		ResourcesDir: resourcesDir,
		log:          log,
	}
}

// Candidates merges figure regions from three sources in priority order:
// layout-tagged figure blocks, embedded image regions, and clusters of vector
// drawing paths (charts drawn as line art). A later candidate that overlaps an
// accepted one above the IoU threshold is absorbed into it. The area floor
// applies to images and drawing clusters only; layout figure blocks already
// passed the segmenter's own size filter.
func (e *Extractor) Candidates(page pagesource.PageRecord, blocks []layout.Block) []pagesource.Rect {
	pageArea := page.Width * page.Height
	if pageArea <= 0 {
		return nil
	}

	var accepted []pagesource.Rect
	add := func(r pagesource.Rect, enforceMinArea bool) {
		if enforceMinArea && r.Area()/pageArea < e.MinAreaRatio {
			return
		}
		for i, a := range accepted {
			if a.IoU(r) > e.IoUThreshold {
				accepted[i] = a.Union(r)
				return
			}
		}
		accepted = append(accepted, r)
	}

	for _, b := range blocks {
		if b.Role == layout.RoleFigure {
			add(b.BBox, false)
		}
	}
	for _, img := range page.Images {
		add(img.BBox, true)
	}
	for _, cluster := range e.drawingClusters(page.Drawings) {
		add(cluster, true)
	}

	sort.SliceStable(accepted, func(i, j int) bool {
		if accepted[i].Y0 != accepted[j].Y0 {
			return accepted[i].Y0 < accepted[j].Y0
		}
		return accepted[i].X0 < accepted[j].X0
	})
	return accepted
}

// drawingClusters greedily merges drawing-path bboxes within MergeGap and
// keeps clusters with at least MinPaths members.
func (e *Extractor) drawingClusters(paths []pagesource.DrawingPath) []pagesource.Rect {
	type cluster struct {
		bbox  pagesource.Rect
		count int
	}
	var clusters []cluster

	for _, p := range paths {
		merged := false
		for i := range clusters {
			if clusters[i].bbox.WithinGap(p.BBox, e.MergeGap) {
				clusters[i].bbox = clusters[i].bbox.Union(p.BBox)
				clusters[i].count++
				merged = true
				break
			}
		}
		if !merged {
			clusters = append(clusters, cluster{bbox: p.BBox, count: 1})
		}
	}

	var out []pagesource.Rect
	for _, c := range clusters {
		if c.count >= e.MinPaths {
			out = append(out, c.bbox)
		}
	}
	return out
}

// Extract detects figure regions, crops them from the page raster, writes the
// crops under {resources}/{docID prefix}/page_{n}_fig_{m}.png, and attaches
// the nearest caption. Regions whose crop comes out smaller than MinCropPx in
// either dimension are dropped. Raster-less pages still yield figures; they
// just carry no image.
func (e *Extractor) Extract(page pagesource.PageRecord, blocks []layout.Block, docID string) []Figure {
	candidates := e.Candidates(page, blocks)
	if len(candidates) == 0 {
		return nil
	}

	captions := captionBlocks(blocks)
	dir := e.docDir(docID)

	var figures []Figure
	idx := 0
	for _, bbox := range candidates {
		fig := Figure{
			PageNumber: page.PageNumber,
			BBox:       bbox,
			Caption:    nearestCaption(bbox, captions),
		}

		if len(page.Raster) > 0 {
			crop, w, h, err := pagesource.CropRaster(page.Raster, bbox, page.RasterDPI)
			if err != nil {
				e.log.Debug("figure crop failed", "page", page.PageNumber, "error", err)
				continue
			}
			if w < e.MinCropPx || h < e.MinCropPx {
				continue
			}
			fig.Image, fig.PxW, fig.PxH = crop, w, h
		}

		idx++
		fig.Index = idx

		if fig.Image != nil && dir != "" {
			name := fmt.Sprintf("page_%d_fig_%d.png", page.PageNumber, idx)
			path := filepath.Join(dir, name)
			if err := os.WriteFile(path, fig.Image, 0o644); err != nil {
				e.log.Warn("save figure crop", "path", path, "error", err)
			} else {
				fig.ImagePath = path
			}
		}
		figures = append(figures, fig)
	}
	return figures
}

// docDir ensures the per-document crop directory exists and returns it, or ""
// when it cannot be created.
func (e *Extractor) docDir(docID string) string {
	if e.ResourcesDir == "" || docID == "" {
		return ""
	}
	prefix := docID
	if len(prefix) > 16 {
		prefix = prefix[:16]
	}
	dir := filepath.Join(e.ResourcesDir, prefix)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		e.log.Warn("create figure dir", "dir", dir, "error", err)
		return ""
	}
	return dir
}

func captionBlocks(blocks []layout.Block) []layout.Block {
	var out []layout.Block
	for _, b := range blocks {
		if b.Role == layout.RoleCaption {
			out = append(out, b)
		}
	}
	return out
}

// nearestCaption picks the caption whose centroid is closest to the region's
// centroid. Ties keep the first caption encountered.
func nearestCaption(bbox pagesource.Rect, captions []layout.Block) string {
	best := ""
	bestDist := math.Inf(1)
	for _, c := range captions {
		dx := c.BBox.CenterX() - bbox.CenterX()
		dy := c.BBox.CenterY() - bbox.CenterY()
		d := math.Hypot(dx, dy)
		if d < bestDist {
			bestDist = d
			best = c.Text
		}
	}
	return best
}

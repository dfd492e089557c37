package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/finchunk/finchunk/internal/charts"
	"github.com/finchunk/finchunk/internal/chunker"
	"github.com/finchunk/finchunk/internal/chunks"
	"github.com/finchunk/finchunk/internal/layout"
	"github.com/finchunk/finchunk/internal/ocr"
	"github.com/finchunk/finchunk/internal/pagesource"
	"github.com/finchunk/finchunk/internal/tables"
)

// pageWork carries one page's intermediate results between pipeline phases.
type pageWork struct {
	page    pagesource.PageRecord
	blocks  []layout.Block
	tables  []tables.ExtractedTable
	figures []chunker.FigureInput
	ocrText string // whole-page OCR substitute when the text layer is missing
}

// ingestFile runs one document through the full state machine. Every phase
// transition is recorded on the run; enrichment failures (OCR, chart model)
// degrade to missing data, only parse and store failures are fatal.
func (o *Orchestrator) ingestFile(ctx context.Context, run *Run, path string) {
	log := o.log.With("run_id", run.ID, "file", filepath.Base(path))
	run.SetDocState(path, StateNew)

	docID, err := pagesource.FileHashHex(path)
	if err != nil {
		o.failDoc(run, path, fmt.Errorf("hash: %w", err))
		return
	}
	log = log.With("doc_id", docID[:16])

	if !run.Force && o.store.ExistsByDoc(ctx, docID) {
		log.Info("document already ingested, skipping")
		run.SetDocState(path, StateSkipped)
		run.AddStats(Stats{FilesSkipped: 1})
		return
	}
	if !o.reserve(docID) {
		log.Info("document already in flight, skipping")
		run.SetDocState(path, StateSkipped)
		run.AddStats(Stats{FilesSkipped: 1})
		return
	}
	defer o.release(docID)

	// Parse.
	pages, err := o.source.Pages(ctx, path)
	if err != nil {
		o.failDoc(run, path, fmt.Errorf("parse: %w", err))
		return
	}
	if len(pages) == 0 {
		o.failDoc(run, path, fmt.Errorf("parse: no pages"))
		return
	}
	run.SetDocState(path, StateParsed)

	// Segment.
	works := make([]pageWork, len(pages))
	for i, page := range pages {
		blocks := o.segmenter.Segment(page)
		works[i] = pageWork{page: page, blocks: layout.GroupParagraphs(blocks)}
	}
	run.SetDocState(path, StateSegmented)

	// Extract tables and figures.
	for i := range works {
		if ctx.Err() != nil {
			o.failDoc(run, path, ctx.Err())
			return
		}
		o.extractPage(ctx, &works[i], docID, log)
	}
	run.SetDocState(path, StateExtracted)

	// Chunk. The section heading threads across pages: a page without its own
	// heading inherits the last one seen.
	var all []chunks.Chunk
	section := ""
	sourceFile := filepath.Base(path)
	for i := range works {
		w := &works[i]
		var pageText string
		pageText, section = o.chunker.PageText(w.blocks, section)
		if !w.page.HasTextLayer && strings.TrimSpace(pageText) == "" && w.ocrText != "" {
			pageText = w.ocrText
		}

		base := chunks.Metadata{
			DocID:      docID,
			SourceFile: sourceFile,
			Page:       w.page.PageNumber,
			Section:    section,
		}
		all = append(all, o.chunker.TextChunks(pageText, base)...)
		all = append(all, o.chunker.TableChunks(w.tables, base)...)
		all = append(all, o.chunker.FigureChunks(w.figures, base)...)
		if summary := o.chunker.PageSummary(pageText, base); summary != nil {
			all = append(all, summary)
		}
	}
	run.SetDocState(path, StateChunked)

	// Quality gate.
	accepted, rejected := o.gate.Filter(all)
	for _, r := range rejected {
		log.Debug("chunk rejected", "page", r.Chunk.Meta().Page, "type", r.Chunk.Meta().BlockType, "reason", r.Reason)
	}
	run.SetDocState(path, StateFiltered)

	// Store the whole document as one batch so a failure leaves nothing
	// half-written, then register the hash. Registration comes last: a crash
	// before it leaves the document eligible for a clean re-run.
	var stored, deduped int
	err = o.withRetry(ctx, log, "store chunks", func() error {
		var uerr error
		stored, deduped, uerr = o.store.UpsertChunks(ctx, accepted)
		return uerr
	})
	if err != nil {
		o.failDoc(run, path, fmt.Errorf("store: %w", err))
		return
	}
	if err := o.withRetry(ctx, log, "register document", func() error {
		return o.store.MarkIngested(ctx, docID, sourceFile)
	}); err != nil {
		o.failDoc(run, path, fmt.Errorf("register: %w", err))
		return
	}
	run.SetDocState(path, StateStored)

	stats := Stats{
		FilesProcessed: 1,
		Pages:          len(pages),
		ChunksRejected: len(rejected),
		ChunksDeduped:  deduped,
		ChunksStored:   stored,
	}
	for _, c := range accepted {
		switch c.Meta().BlockType {
		case chunks.BlockTable:
			stats.TableChunks++
		case chunks.BlockFigure:
			stats.FigureChunks++
		default:
			stats.TextChunks++
		}
	}
	run.AddStats(stats)
	log.Info("document ingested",
		"pages", len(pages),
		"chunks", len(accepted),
		"rejected", len(rejected),
		"deduped", deduped,
		"stored", stored)
}

// extractPage fills a pageWork with tables, figures, and OCR enrichment.
func (o *Orchestrator) extractPage(ctx context.Context, w *pageWork, docID string, log *slog.Logger) {
	page := w.page

	// Tables: vector grid first, OCR over rule clusters when it finds nothing.
	w.tables = o.tableExtractor.ExtractVector(page)
	if len(w.tables) == 0 && o.ocr != nil && len(page.Raster) > 0 {
		for _, region := range o.tableExtractor.FallbackRegions(page) {
			if t := o.tableExtractor.ExtractOCR(ctx, o.ocr, page, region, o.cfg.OCRConfidence); t != nil {
				w.tables = append(w.tables, *t)
			}
		}
	}

	// Figures.
	for _, fig := range o.figureExtractor.Extract(page, w.blocks, docID) {
		in := chunker.FigureInput{
			Index:     fig.Index,
			Page:      fig.PageNumber,
			Caption:   fig.Caption,
			ImagePath: fig.ImagePath,
		}
		if o.ocr != nil && fig.Image != nil {
			boxes, err := o.ocr.Recognize(ctx, fig.Image, o.cfg.OCRConfidence)
			if err != nil {
				log.Warn("figure ocr failed", "page", page.PageNumber, "figure", fig.Index, "error", err)
			} else {
				in.OCRText = ocr.ToText(boxes)
			}
		}
		in.FigureType = charts.Classify(in.Caption, in.OCRText)
		if o.charts != nil && fig.Image != nil {
			if desc, err := o.charts.Describe(ctx, fig.Image, in.FigureType, in.Caption); err != nil {
				log.Warn("chart describe failed", "page", page.PageNumber, "figure", fig.Index, "error", err)
			} else {
				in.Description = desc
			}
			if isDataChart(in.FigureType) {
				if series, err := o.charts.Digitize(ctx, fig.Image, in.FigureType); err != nil {
					log.Warn("chart digitize failed", "page", page.PageNumber, "figure", fig.Index, "error", err)
				} else {
					in.Series = series
				}
			}
		}
		w.figures = append(w.figures, in)
	}

	// Scanned page: substitute whole-page OCR for the missing text layer.
	if !page.HasTextLayer && o.ocr != nil && len(page.Raster) > 0 {
		boxes, err := o.ocr.Recognize(ctx, page.Raster, o.cfg.OCRConfidence)
		if err != nil {
			log.Warn("page ocr failed", "page", page.PageNumber, "error", err)
		} else {
			w.ocrText = ocr.ToText(boxes)
		}
	}
}

// withRetry runs op up to MaxRetries times, backing off between transient
// failures. Permanent errors return immediately.
func (o *Orchestrator) withRetry(ctx context.Context, log *slog.Logger, what string, op func() error) error {
	var lastErr error
	for attempt := 0; attempt < MaxRetries; attempt++ {
		lastErr = op()
		if lastErr == nil || !IsRetryable(lastErr) {
			return lastErr
		}
		log.Warn("retryable failure", "op", what, "attempt", attempt, "error", lastErr)
		select {
		case <-time.After(Backoff(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func (o *Orchestrator) failDoc(run *Run, path string, err error) {
	o.log.Error("ingestion failed", "run_id", run.ID, "file", filepath.Base(path), "error", err)
	run.SetDocState(path, StateFailed)
	run.AddError(fmt.Sprintf("%s: %s", filepath.Base(path), err))
	run.AddStats(Stats{FilesFailed: 1})
}

// isDataChart reports whether a figure type carries a digitizable data series.
func isDataChart(t chunks.FigureType) bool {
	switch t {
	case chunks.FigurePhoto, chunks.FigureLogo, chunks.FigureDiagram, chunks.FigureUnknown:
		return false
	default:
		return true
	}
}

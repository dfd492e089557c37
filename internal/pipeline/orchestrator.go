package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/finchunk/finchunk/internal/charts"
	"github.com/finchunk/finchunk/internal/chunker"
	"github.com/finchunk/finchunk/internal/config"
	"github.com/finchunk/finchunk/internal/figures"
	"github.com/finchunk/finchunk/internal/layout"
	"github.com/finchunk/finchunk/internal/ocr"
	"github.com/finchunk/finchunk/internal/pagesource"
	"github.com/finchunk/finchunk/internal/quality"
	"github.com/finchunk/finchunk/internal/store"
	"github.com/finchunk/finchunk/internal/tables"
)

// Orchestrator owns the ingestion collaborators and runs documents through
// the pipeline. Collaborators are constructed once at startup and shared by
// every run; ocr and charts may be nil when their services are unconfigured.
type Orchestrator struct {
	cfg             config.Config
	source          pagesource.Source
	segmenter       *layout.Segmenter
	tableExtractor  *tables.Extractor
	figureExtractor *figures.Extractor
	chunker         *chunker.Chunker
	gate            *quality.Gate
	store           *store.VectorStore
	ocr             ocr.Client
	charts          *charts.ModelClient
	log             *slog.Logger

	runs *RunStore

	// inflight holds doc hashes currently being ingested, so two workers
	// handed the same content cannot both pass the dedup check.
	inflightMu sync.Mutex
	inflight   map[string]struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewOrchestrator(cfg config.Config, source pagesource.Source, vs *store.VectorStore, ocrClient ocr.Client, chartClient *charts.ModelClient, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:             cfg,
		source:          source,
		segmenter:       layout.NewSegmenter(),
		tableExtractor:  tables.NewExtractor(cfg.TableMinRows, cfg.TableMinCols, log),
		figureExtractor: figures.NewExtractor(cfg.FigureMinAreaRatio, cfg.FigureIoUThreshold, cfg.FigureMergeGap, cfg.FigureMinPaths, cfg.ResourcesDir, log),
		chunker:         chunker.New(cfg.TextChunkSize, cfg.TextChunkOverlap, cfg.MinChunkLength, cfg.MaxChunkLength, cfg.IncludePageSummary),
		gate:            quality.NewGate(cfg.MinChunkLength, cfg.MaxChunkLength, cfg.TableMinRows, cfg.TableMinCols),
		store:           vs,
		ocr:             ocrClient,
		charts:          chartClient,
		log:             log,
		runs:            NewRunStore(cfg.RunTTL),
		inflight:        make(map[string]struct{}),
	}
}

// Start launches the run-store janitor.
func (o *Orchestrator) Start(ctx context.Context) {
	janitorCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-janitorCtx.Done():
				return
			case <-ticker.C:
				o.runs.Cleanup()
			}
		}
	}()
}

// Stop cancels background work and waits for in-flight runs.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
}

// IngestFileAsync starts ingesting a single file and returns the run.
func (o *Orchestrator) IngestFileAsync(ctx context.Context, path string, force bool) *Run {
	run := NewRun(path, force)
	o.runs.Put(run)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.ingestFile(ctx, run, path)
		o.finishRun(run)
	}()
	return run
}

// IngestFolderAsync starts ingesting every PDF under dir (non-recursive) with
// a bounded worker pool and returns the run.
func (o *Orchestrator) IngestFolderAsync(ctx context.Context, dir string, force bool) (*Run, error) {
	paths, err := listPDFs(dir)
	if err != nil {
		return nil, err
	}
	run := NewRun(dir, force)
	o.runs.Put(run)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()

		sem := make(chan struct{}, o.cfg.WorkerCount)
		var fileWG sync.WaitGroup
		for _, path := range paths {
			if ctx.Err() != nil {
				break
			}
			sem <- struct{}{}
			fileWG.Add(1)
			go func(p string) {
				defer fileWG.Done()
				defer func() { <-sem }()
				o.ingestFile(ctx, run, p)
			}(path)
		}
		fileWG.Wait()
		o.finishRun(run)
	}()
	return run, nil
}

func (o *Orchestrator) finishRun(run *Run) {
	snap := run.Snapshot()
	status := RunCompleted
	if snap.Stats.FilesProcessed == 0 && snap.Stats.FilesFailed > 0 {
		status = RunFailed
	}
	run.Finish(status)
	o.log.Info("run finished",
		"run_id", run.ID,
		"status", status,
		"processed", snap.Stats.FilesProcessed,
		"skipped", snap.Stats.FilesSkipped,
		"failed", snap.Stats.FilesFailed)
}

// GetRun returns a run by ID, or nil.
func (o *Orchestrator) GetRun(id string) *Run {
	return o.runs.Get(id)
}

// Store exposes the vector store for query handlers.
func (o *Orchestrator) Store() *store.VectorStore {
	return o.store
}

// reserve claims a doc hash for ingestion; false means someone else holds it.
func (o *Orchestrator) reserve(docID string) bool {
	o.inflightMu.Lock()
	defer o.inflightMu.Unlock()
	if _, busy := o.inflight[docID]; busy {
		return false
	}
	o.inflight[docID] = struct{}{}
	return true
}

func (o *Orchestrator) release(docID string) {
	o.inflightMu.Lock()
	defer o.inflightMu.Unlock()
	delete(o.inflight, docID)
}

// listPDFs returns the sorted PDF paths directly under dir.
func listPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read folder %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

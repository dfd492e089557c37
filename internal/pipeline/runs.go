package pipeline

import (
	"sync"
	"time"
)

// DocState is the per-document ingestion state. Documents move strictly
// forward; skipped and failed are terminal.
type DocState string

const (
	StateNew       DocState = "new"
	StateParsed    DocState = "parsed"
	StateSegmented DocState = "segmented"
	StateExtracted DocState = "extracted"
	StateChunked   DocState = "chunked"
	StateFiltered  DocState = "filtered"
	StateStored    DocState = "stored"
	StateSkipped   DocState = "skipped"
	StateFailed    DocState = "failed"
)

// RunStatus is the overall state of an ingestion run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Stats aggregates counters across all documents of a run.
type Stats struct {
	FilesProcessed int           `json:"files_processed"`
	FilesSkipped   int           `json:"files_skipped"`
	FilesFailed    int           `json:"files_failed"`
	Pages          int           `json:"pages"`
	TextChunks     int           `json:"text_chunks"`
	TableChunks    int           `json:"table_chunks"`
	FigureChunks   int           `json:"figure_chunks"`
	ChunksRejected int           `json:"chunks_rejected"`
	ChunksDeduped  int           `json:"chunks_deduped"`
	ChunksStored   int           `json:"chunks_stored"`
	Elapsed        time.Duration `json:"elapsed_ns"`
}

// Run tracks one ingestion request: a single file or a folder sweep.
type Run struct {
	mu sync.Mutex

	ID     string    `json:"run_id"`
	Target string    `json:"target"`
	Force  bool      `json:"force"`
	Status RunStatus `json:"status"`

	Docs   map[string]DocState `json:"docs"`
	Stats  Stats               `json:"stats"`
	Errors []string            `json:"errors"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewRun(target string, force bool) *Run {
	now := time.Now()
	return &Run{
		ID:        newRunID(),
		Target:    target,
		Force:     force,
		Status:    RunRunning,
		Docs:      make(map[string]DocState),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SetDocState records a document's state transition.
func (r *Run) SetDocState(path string, state DocState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Docs[path] = state
	r.UpdatedAt = time.Now()
}

// AddError records a document-level error.
func (r *Run) AddError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, msg)
	r.UpdatedAt = time.Now()
}

// AddStats merges per-document counters into the run totals.
func (r *Run) AddStats(s Stats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Stats.FilesProcessed += s.FilesProcessed
	r.Stats.FilesSkipped += s.FilesSkipped
	r.Stats.FilesFailed += s.FilesFailed
	r.Stats.Pages += s.Pages
	r.Stats.TextChunks += s.TextChunks
	r.Stats.TableChunks += s.TableChunks
	r.Stats.FigureChunks += s.FigureChunks
	r.Stats.ChunksRejected += s.ChunksRejected
	r.Stats.ChunksDeduped += s.ChunksDeduped
	r.Stats.ChunksStored += s.ChunksStored
	r.UpdatedAt = time.Now()
}

// Finish marks the run terminal and records the wall time.
func (r *Run) Finish(status RunStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = status
	r.Stats.Elapsed = time.Since(r.CreatedAt)
	r.UpdatedAt = time.Now()
}

// RunSnapshot is a read-only, JSON-safe copy of run state.
type RunSnapshot struct {
	ID        string              `json:"run_id"`
	Target    string              `json:"target"`
	Force     bool                `json:"force"`
	Status    RunStatus           `json:"status"`
	Docs      map[string]DocState `json:"docs"`
	Stats     Stats               `json:"stats"`
	Errors    []string            `json:"errors"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Snapshot copies the run state for serialization.
func (r *Run) Snapshot() RunSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	docs := make(map[string]DocState, len(r.Docs))
	for k, v := range r.Docs {
		docs[k] = v
	}
	errs := r.Errors
	if errs == nil {
		errs = []string{}
	}
	return RunSnapshot{
		ID:        r.ID,
		Target:    r.Target,
		Force:     r.Force,
		Status:    r.Status,
		Docs:      docs,
		Stats:     r.Stats,
		Errors:    errs,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// RunStore is a thread-safe in-memory run registry with TTL eviction.
type RunStore struct {
	mu   sync.Mutex
	runs map[string]*Run
	ttl  time.Duration
}

func NewRunStore(ttl time.Duration) *RunStore {
	return &RunStore{
		runs: make(map[string]*Run),
		ttl:  ttl,
	}
}

func (s *RunStore) Put(run *Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
}

func (s *RunStore) Get(id string) *Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[id]
}

// Cleanup removes runs idle past the TTL.
func (s *RunStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, run := range s.runs {
		run.mu.Lock()
		idle := now.Sub(run.UpdatedAt)
		run.mu.Unlock()
		if idle > s.ttl {
			delete(s.runs, id)
		}
	}
}

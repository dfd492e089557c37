package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
)

type ingestRequest struct {
	Path   string `json:"path"`   // single PDF, relative to the PDF dir or absolute
	Folder string `json:"folder"` // folder of PDFs, same resolution
	Force  bool   `json:"force"`  // re-ingest even when the content hash is known
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if (req.Path == "") == (req.Folder == "") {
		jsonError(w, "exactly one of path or folder is required", http.StatusBadRequest)
		return
	}

	// Runs outlive the HTTP request; they stop with the orchestrator, not
	// with the client connection.
	ctx := context.WithoutCancel(r.Context())

	if req.Path != "" {
		path, err := s.resolve(req.Path)
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		run := s.orchestrator.IngestFileAsync(ctx, path, req.Force)
		s.accepted(w, run.ID)
		return
	}

	dir, err := s.resolve(req.Folder)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	run, err := s.orchestrator.IngestFolderAsync(ctx, dir, req.Force)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.accepted(w, run.ID)
}

func (s *Server) accepted(w http.ResponseWriter, runID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"run_id":   runID,
		"poll_url": fmt.Sprintf("/api/ingest/%s/status", runID),
	})
}

func (s *Server) handleIngestStatus(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	run := s.orchestrator.GetRun(runID)
	if run == nil {
		jsonError(w, "run not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(run.Snapshot())
}

// resolve maps a request path onto the configured PDF directory and rejects
// anything that escapes it. Absolute paths are allowed as-is only when they
// already sit under the PDF dir.
func (s *Server) resolve(p string) (string, error) {
	base, err := filepath.Abs(s.cfg.PDFDir)
	if err != nil {
		return "", fmt.Errorf("resolve pdf dir: %w", err)
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(base, p)
	}
	p = filepath.Clean(p)
	if p != base && !strings.HasPrefix(p, base+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes the pdf directory")
	}
	return p, nil
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

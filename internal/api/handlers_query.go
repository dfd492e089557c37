package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/finchunk/finchunk/internal/chunks"
	"github.com/finchunk/finchunk/internal/store"
)

var tableMarkdown = goldmark.New(goldmark.WithExtensions(extension.Table))

type queryHit struct {
	store.QueryResult
	Citation    string `json:"citation"`
	ContentHTML string `json:"content_html,omitempty"`
}

// handleQuery searches the chunk collections.
//
//	GET /api/query?q=...&k=5&types=text,table&format=html
//
// format=html additionally renders table-chunk markdown to HTML.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		jsonError(w, "q is required", http.StatusBadRequest)
		return
	}

	k := 5
	if v := r.URL.Query().Get("k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 100 {
			jsonError(w, "k must be between 1 and 100", http.StatusBadRequest)
			return
		}
		k = n
	}

	var blockTypes []chunks.BlockType
	if v := r.URL.Query().Get("types"); v != "" {
		for _, t := range strings.Split(v, ",") {
			switch bt := chunks.BlockType(strings.TrimSpace(t)); bt {
			case chunks.BlockText, chunks.BlockTable, chunks.BlockFigure, chunks.BlockPageSummary:
				blockTypes = append(blockTypes, bt)
			default:
				jsonError(w, "unknown block type: "+t, http.StatusBadRequest)
				return
			}
		}
	}

	results, err := s.orchestrator.Store().Query(r.Context(), q, k, blockTypes)
	if err != nil {
		s.log.Error("query failed", "error", err)
		jsonError(w, "query failed", http.StatusInternalServerError)
		return
	}

	renderHTML := r.URL.Query().Get("format") == "html"
	hits := make([]queryHit, 0, len(results))
	for _, res := range results {
		hit := queryHit{QueryResult: res, Citation: res.Metadata["citation"]}
		if renderHTML && res.Metadata["block_type"] == string(chunks.BlockTable) {
			var buf bytes.Buffer
			if err := tableMarkdown.Convert([]byte(res.Content), &buf); err == nil {
				hit.ContentHTML = buf.String()
			}
		}
		hits = append(hits, hit)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"query":   q,
		"results": hits,
	})
}

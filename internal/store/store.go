// Package store persists chunks in a chromem vector database: one collection
// per chunk family plus a document registry used for idempotent ingestion.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"github.com/philippgille/chromem-go"

	"github.com/finchunk/finchunk/internal/chunks"
)

const (
	collText    = "chunks_text"
	collTables  = "chunks_tables"
	collFigures = "chunks_figures"
	collDocs    = "documents"
)

// TransientError marks a storage failure worth retrying: embedding backend
// hiccups, network timeouts. Permanent failures are returned bare.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient store error: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// QueryResult is one ranked hit across the chunk collections.
type QueryResult struct {
	ID         string            `json:"id"`
	Content    string            `json:"content"`
	Similarity float32           `json:"similarity"`
	Metadata   map[string]string `json:"metadata"`
}

// VectorStore wraps a chromem DB with the collection layout the pipeline
// expects. Safe for concurrent use; chromem collections are internally locked.
type VectorStore struct {
	db      *chromem.DB
	text    *chromem.Collection
	tables  *chromem.Collection
	figures *chromem.Collection
	docs    *chromem.Collection
	log     *slog.Logger
}

// New opens (or creates) a persistent store under dir.
func New(dir string, embed chromem.EmbeddingFunc, log *slog.Logger) (*VectorStore, error) {
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}
	return wire(db, embed, log)
}

// NewInMemory builds a throwaway store, used by tests.
func NewInMemory(embed chromem.EmbeddingFunc, log *slog.Logger) (*VectorStore, error) {
	return wire(chromem.NewDB(), embed, log)
}

func wire(db *chromem.DB, embed chromem.EmbeddingFunc, log *slog.Logger) (*VectorStore, error) {
	s := &VectorStore{db: db, log: log}
	var err error
	if s.text, err = db.GetOrCreateCollection(collText, nil, embed); err != nil {
		return nil, fmt.Errorf("collection %s: %w", collText, err)
	}
	if s.tables, err = db.GetOrCreateCollection(collTables, nil, embed); err != nil {
		return nil, fmt.Errorf("collection %s: %w", collTables, err)
	}
	if s.figures, err = db.GetOrCreateCollection(collFigures, nil, embed); err != nil {
		return nil, fmt.Errorf("collection %s: %w", collFigures, err)
	}
	// Registry entries carry a fixed dummy embedding: they are looked up by
	// ID only and must not trigger embedding calls.
	if s.docs, err = db.GetOrCreateCollection(collDocs, nil, embed); err != nil {
		return nil, fmt.Errorf("collection %s: %w", collDocs, err)
	}
	return s, nil
}

func (s *VectorStore) collectionFor(bt chunks.BlockType) *chromem.Collection {
	switch bt {
	case chunks.BlockTable:
		return s.tables
	case chunks.BlockFigure:
		return s.figures
	default:
		return s.text
	}
}

// UpsertChunks stores a batch, deduplicating within the batch by content
// hash. The hash is also the document ID, so re-ingesting identical content
// overwrites in place rather than duplicating. Returns how many chunks were
// written and how many were dropped as intra-batch duplicates.
func (s *VectorStore) UpsertChunks(ctx context.Context, batch []chunks.Chunk) (stored, deduped int, err error) {
	perColl := map[*chromem.Collection][]chromem.Document{}
	seen := make(map[string]struct{}, len(batch))

	for _, c := range batch {
		hash := c.Meta().ContentHash
		if hash == "" {
			hash = chunks.ContentHashHex([]byte(chunks.ToText(c)))
		}
		if _, dup := seen[hash]; dup {
			deduped++
			continue
		}
		seen[hash] = struct{}{}

		coll := s.collectionFor(c.Meta().BlockType)
		perColl[coll] = append(perColl[coll], chromem.Document{
			ID:       hash,
			Content:  chunks.ToText(c),
			Metadata: chunks.MetadataMap(c),
		})
	}

	for coll, docs := range perColl {
		if err := coll.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return stored, deduped, &TransientError{Err: fmt.Errorf("add documents: %w", err)}
		}
		stored += len(docs)
	}
	return stored, deduped, nil
}

// ExistsByDoc reports whether a document content hash is registered.
func (s *VectorStore) ExistsByDoc(ctx context.Context, docID string) bool {
	_, err := s.docs.GetByID(ctx, docID)
	return err == nil
}

// MarkIngested registers a document hash. Called only after the document's
// chunks were stored successfully, so a crash mid-ingest leaves the document
// eligible for a clean re-run.
func (s *VectorStore) MarkIngested(ctx context.Context, docID, sourceFile string) error {
	err := s.docs.AddDocuments(ctx, []chromem.Document{{
		ID:        docID,
		Embedding: []float32{1},
		Content:   sourceFile,
		Metadata: map[string]string{
			"source_file": sourceFile,
			"ingested_at": time.Now().UTC().Format(time.RFC3339),
		},
	}}, 1)
	if err != nil {
		return &TransientError{Err: fmt.Errorf("register document: %w", err)}
	}
	return nil
}

// Query searches the chunk collections and merges hits by similarity,
// descending. blockTypes filters which collections are searched; empty means
// all three.
func (s *VectorStore) Query(ctx context.Context, q string, k int, blockTypes []chunks.BlockType) ([]QueryResult, error) {
	if k <= 0 {
		k = 5
	}
	colls := s.selectCollections(blockTypes)

	var merged []QueryResult
	for _, coll := range colls {
		n := min(k, coll.Count())
		if n == 0 {
			continue
		}
		results, err := coll.Query(ctx, q, n, nil, nil)
		if err != nil {
			return nil, &TransientError{Err: fmt.Errorf("query: %w", err)}
		}
		for _, r := range results {
			merged = append(merged, QueryResult{
				ID:         r.ID,
				Content:    r.Content,
				Similarity: r.Similarity,
				Metadata:   r.Metadata,
			})
		}
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Similarity > merged[j].Similarity })
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged, nil
}

func (s *VectorStore) selectCollections(blockTypes []chunks.BlockType) []*chromem.Collection {
	if len(blockTypes) == 0 {
		return []*chromem.Collection{s.text, s.tables, s.figures}
	}
	set := map[*chromem.Collection]struct{}{}
	var out []*chromem.Collection
	for _, bt := range blockTypes {
		coll := s.collectionFor(bt)
		if _, ok := set[coll]; ok {
			continue
		}
		set[coll] = struct{}{}
		out = append(out, coll)
	}
	return out
}

// Counts reports per-collection document counts.
func (s *VectorStore) Counts() map[string]int {
	return map[string]int{
		collText:    s.text.Count(),
		collTables:  s.tables.Count(),
		collFigures: s.figures.Count(),
		collDocs:    s.docs.Count(),
	}
}

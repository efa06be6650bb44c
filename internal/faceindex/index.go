// Package faceindex keeps the in-memory HNSW index of enrolled face
// embeddings and answers identity queries for the recognition worker.
package faceindex

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/coder/hnsw"

	"github.com/egrangel/facerecon-sub001/internal/data"
	"github.com/egrangel/facerecon-sub001/internal/metrics"
)

var (
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
	ErrCapacityExhausted  = errors.New("index capacity exhausted")
	ErrInvalidThreshold   = errors.New("threshold must be within [0,1]")
	ErrIndexNotInitialized = errors.New("index not initialized")
)

// Similarity presets for the two embedding families the detector can produce.
const (
	ThresholdArcFace = 0.75
	ThresholdFaceNet = 0.85

	hnswM        = 16
	hnswEfSearch = 200
)

// Store supplies the enrolled faces the index is built from.
type Store interface {
	ListActiveEnrolled(ctx context.Context) ([]data.EnrolledFace, error)
}

// Match is one search hit.
type Match struct {
	PersonFaceID int64   `json:"person_face_id"`
	PersonID     int64   `json:"person_id"`
	PersonName   string  `json:"person_name"`
	Similarity   float64 `json:"similarity"`
	IsMatch      bool    `json:"is_match"`
}

type indexedFace struct {
	personID   int64
	personName string
	embedding  []float32
}

// Config tunes index construction. MinCapacity keeps small deployments from
// rebuilding constantly; capacity is max(2*N, MinCapacity) after each build.
type Config struct {
	Threshold   float64
	MinCapacity int
}

// Index is shared mutable state: one writer (Add/Rebuild/Remove) at a time,
// many concurrent readers. The shadow map and the graph are always updated
// under the same write lock so a concurrent Search never observes a torn pair.
type Index struct {
	store Store
	cfg   Config

	mu        sync.RWMutex
	graph     *hnsw.Graph[int64]
	faces     map[int64]*indexedFace // shadow map; the graph cannot evict
	dim       int
	size      int // nodes in the graph, including shadow-removed ones
	capacity  int
	threshold float64
}

func New(store Store, cfg Config) *Index {
	if cfg.Threshold == 0 {
		cfg.Threshold = ThresholdArcFace
	}
	if cfg.MinCapacity == 0 {
		cfg.MinCapacity = 100
	}
	return &Index{
		store:     store,
		cfg:       cfg,
		faces:     make(map[int64]*indexedFace),
		threshold: cfg.Threshold,
	}
}

// Initialize loads every enrolled face and builds the graph. The embedding
// dimension is discovered from the first decodable row and then fixed; rows
// with a different length are skipped.
func (ix *Index) Initialize(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.rebuildLocked(ctx)
}

// Rebuild drops the graph and reloads from the store.
func (ix *Index) Rebuild(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.rebuildLocked(ctx)
}

func (ix *Index) rebuildLocked(ctx context.Context) error {
	rows, err := ix.store.ListActiveEnrolled(ctx)
	if err != nil {
		return fmt.Errorf("loading enrolled faces: %w", err)
	}

	g := newGraph()
	faces := make(map[int64]*indexedFace, len(rows))
	dim := 0
	skipped := 0

	for _, row := range rows {
		vec, err := DecodeVector(row.Embedding)
		if err != nil {
			skipped++
			continue
		}
		if dim == 0 {
			dim = len(vec)
		}
		if len(vec) != dim {
			skipped++
			continue
		}
		g.Add(hnsw.MakeNode(row.FaceID, vec))
		faces[row.FaceID] = &indexedFace{
			personID:   row.PersonID,
			personName: row.PersonName,
			embedding:  vec,
		}
	}

	ix.graph = g
	ix.faces = faces
	ix.dim = dim
	ix.size = len(faces)
	ix.capacity = 2 * len(faces)
	if ix.capacity < ix.cfg.MinCapacity {
		ix.capacity = ix.cfg.MinCapacity
	}

	if skipped > 0 {
		log.Printf("[FaceIndex] Skipped %d rows with unusable embeddings (dimension %d)", skipped, dim)
	}
	log.Printf("[FaceIndex] Built index: %d faces, dimension %d, capacity %d", len(faces), dim, ix.capacity)
	metrics.FaceIndexSize.Set(float64(len(faces)))
	return nil
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = hnswM
	g.Ml = 1.0 / float64(hnswM)
	g.EfSearch = hnswEfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// Search returns the top-k matches by cosine similarity. A dimension
// mismatch triggers one rebuild-and-retry; errors never propagate as
// failures to the recognition worker, only as an empty result.
func (ix *Index) Search(ctx context.Context, query []float32, k int) []Match {
	matches, err := ix.search(query, k)
	if err == nil {
		return matches
	}
	if !errors.Is(err, ErrDimensionMismatch) {
		log.Printf("[FaceIndex] Search error: %v", err)
		return nil
	}

	// The enrolled embeddings may have changed families (e.g. a new
	// detector model). Reload once and retry.
	log.Printf("[FaceIndex] Query dimension mismatch, rebuilding: %v", err)
	if err := ix.Rebuild(ctx); err != nil {
		log.Printf("[FaceIndex] Rebuild after dimension mismatch failed: %v", err)
		return nil
	}
	matches, err = ix.search(query, k)
	if err != nil {
		log.Printf("[FaceIndex] Search after rebuild failed: %v", err)
		return nil
	}
	return matches
}

func (ix *Index) search(query []float32, k int) ([]Match, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.graph == nil {
		return nil, ErrIndexNotInitialized
	}
	if len(ix.faces) == 0 {
		return nil, nil
	}
	if len(query) != ix.dim {
		return nil, fmt.Errorf("%w: query %d, index %d", ErrDimensionMismatch, len(query), ix.dim)
	}

	// Over-fetch to compensate for shadow-removed nodes still in the graph.
	fetch := k + (ix.size - len(ix.faces))
	neighbors := ix.graph.Search(query, fetch)

	matches := make([]Match, 0, k)
	for _, n := range neighbors {
		face, ok := ix.faces[n.Key]
		if !ok {
			continue // removed face, filtered at search time
		}
		sim := 1 - CosineDistance(query, face.embedding)/2
		if sim < 0 {
			sim = 0
		}
		if sim > 1 {
			sim = 1
		}
		matches = append(matches, Match{
			PersonFaceID: n.Key,
			PersonID:     face.personID,
			PersonName:   face.personName,
			Similarity:   sim,
			IsMatch:      sim >= ix.threshold,
		})
		if len(matches) == k {
			break
		}
	}
	return matches, nil
}

// Add inserts one enrolled face. Capacity exhaustion triggers a full
// rebuild (which resizes capacity) followed by one retry.
func (ix *Index) Add(ctx context.Context, face data.EnrolledFace) error {
	err := ix.add(face)
	if !errors.Is(err, ErrCapacityExhausted) {
		return err
	}

	log.Printf("[FaceIndex] Capacity exhausted on add of face %d, rebuilding", face.FaceID)
	if err := ix.Rebuild(ctx); err != nil {
		return fmt.Errorf("rebuild after capacity exhaustion: %w", err)
	}
	return ix.add(face)
}

func (ix *Index) add(face data.EnrolledFace) error {
	vec, err := DecodeVector(face.Embedding)
	if err != nil {
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.graph == nil {
		return ErrIndexNotInitialized
	}
	if _, exists := ix.faces[face.FaceID]; exists {
		return nil
	}
	if ix.dim == 0 {
		ix.dim = len(vec)
	}
	if len(vec) != ix.dim {
		return fmt.Errorf("%w: face %d has %d, index %d", ErrDimensionMismatch, face.FaceID, len(vec), ix.dim)
	}
	if ix.size >= ix.capacity {
		return ErrCapacityExhausted
	}

	ix.graph.Add(hnsw.MakeNode(face.FaceID, vec))
	ix.faces[face.FaceID] = &indexedFace{
		personID:   face.PersonID,
		personName: face.PersonName,
		embedding:  vec,
	}
	ix.size++
	metrics.FaceIndexSize.Set(float64(len(ix.faces)))
	return nil
}

// Remove drops a face from the shadow map. The underlying graph keeps the
// point until the next rebuild; Search filters it out.
func (ix *Index) Remove(personFaceID int64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.faces, personFaceID)
	metrics.FaceIndexSize.Set(float64(len(ix.faces)))
}

// SetThreshold adjusts the match gate.
func (ix *Index) SetThreshold(t float64) error {
	if t < 0 || t > 1 {
		return ErrInvalidThreshold
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.threshold = t
	return nil
}

// Threshold returns the current match gate.
func (ix *Index) Threshold() float64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.threshold
}

// Count returns the number of searchable faces.
func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.faces)
}

// Dimension returns the fixed embedding dimension, 0 before the first build
// with data.
func (ix *Index) Dimension() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dim
}

// Package index is the in-memory corpus index: exact cosine search over
// L2-normalized trial vectors.
package index

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/kailas-cloud/trialfit/internal/domain"
)

// Record is one trial vector handed to Build or Rebuild.
type Record struct {
	ID     string
	Vector []float32
}

// Hit is a query result.
type Hit struct {
	ID         string
	Similarity float64
}

// snapshot is immutable once published.
type snapshot struct {
	ids     []string
	vectors [][]float64 // unit length, or all zeros
	pos     map[string]int
}

// Index maps trial IDs to vectors and answers top-k cosine queries.
//
// Readers never block. Writers (Add, Rebuild) serialize on a mutex, copy the
// current snapshot, modify the copy and publish it atomically. A Query sees
// the snapshot current when it starts: an Add that has not returned may or
// may not be visible to it, and once Add returns every later Query sees it.
type Index struct {
	dim  int
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

// NewEmpty returns an index with no trials. Its queries return no hits.
func NewEmpty(dim int) (*Index, error) {
	if dim <= 0 {
		return nil, &domain.IndexError{Reason: fmt.Sprintf("dimension must be positive, got %d", dim)}
	}
	idx := &Index{dim: dim}
	idx.snap.Store(&snapshot{pos: map[string]int{}})
	return idx, nil
}

// Build creates an index from records. Every vector must have length dim.
// When an ID repeats, the later vector wins.
func Build(dim int, records []Record) (*Index, error) {
	if len(records) == 0 {
		return nil, &domain.IndexError{Reason: "no records to build from"}
	}
	idx, err := NewEmpty(dim)
	if err != nil {
		return nil, err
	}
	snap, err := idx.newSnapshot(records)
	if err != nil {
		return nil, err
	}
	idx.snap.Store(snap)
	return idx, nil
}

// Dim returns the vector dimension.
func (idx *Index) Dim() int { return idx.dim }

// Len returns the number of indexed trials.
func (idx *Index) Len() int { return len(idx.snap.Load().ids) }

// IDs returns the indexed trial IDs in ascending order.
func (idx *Index) IDs() []string {
	return slices.Clone(idx.snap.Load().ids)
}

// Contains reports whether id is indexed.
func (idx *Index) Contains(id string) bool {
	_, ok := idx.snap.Load().pos[id]
	return ok
}

// Vector returns the stored unit-length vector of id.
func (idx *Index) Vector(id string) ([]float32, bool) {
	s := idx.snap.Load()
	i, ok := s.pos[id]
	if !ok {
		return nil, false
	}
	out := make([]float32, len(s.vectors[i]))
	for j, x := range s.vectors[i] {
		out[j] = float32(x)
	}
	return out, true
}

// Query returns up to k hits by descending similarity, ties broken by ID
// ascending. Similarity is max(0, cosine).
func (idx *Index) Query(vec []float32, k int) ([]Hit, error) {
	if len(vec) != idx.dim {
		return nil, &domain.DimensionMismatchError{Want: idx.dim, Got: len(vec)}
	}
	s := idx.snap.Load()
	if k <= 0 || len(s.ids) == 0 {
		return []Hit{}, nil
	}
	q := normalize(vec)

	hits := make([]Hit, len(s.ids))
	for i, v := range s.vectors {
		hits[i] = Hit{ID: s.ids[i], Similarity: similarity(q, v)}
	}
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Similarity != hits[b].Similarity {
			return hits[a].Similarity > hits[b].Similarity
		}
		return hits[a].ID < hits[b].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Add inserts a trial vector. An existing ID has its vector replaced.
func (idx *Index) Add(id string, vec []float32) error {
	if id == "" {
		return &domain.IndexError{Reason: "empty trial id"}
	}
	if len(vec) != idx.dim {
		return &domain.DimensionMismatchError{Want: idx.dim, Got: len(vec)}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	cur := idx.snap.Load()
	next := &snapshot{
		ids:     slices.Clone(cur.ids),
		vectors: slices.Clone(cur.vectors),
		pos:     make(map[string]int, len(cur.pos)+1),
	}
	if i, ok := cur.pos[id]; ok {
		next.vectors[i] = normalize(vec)
		for k, v := range cur.pos {
			next.pos[k] = v
		}
	} else {
		at, _ := slices.BinarySearch(next.ids, id)
		next.ids = slices.Insert(next.ids, at, id)
		next.vectors = slices.Insert(next.vectors, at, normalize(vec))
		for i, x := range next.ids {
			next.pos[x] = i
		}
	}
	idx.snap.Store(next)
	return nil
}

// Rebuild atomically replaces the whole contents. An empty record set
// empties the index.
func (idx *Index) Rebuild(records []Record) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	next, err := idx.newSnapshot(records)
	if err != nil {
		return err
	}
	idx.snap.Store(next)
	return nil
}

func (idx *Index) newSnapshot(records []Record) (*snapshot, error) {
	byID := make(map[string][]float32, len(records))
	for i, r := range records {
		if strings.TrimSpace(r.ID) == "" {
			return nil, &domain.IndexError{Reason: fmt.Sprintf("record %d has empty id", i)}
		}
		if len(r.Vector) != idx.dim {
			return nil, &domain.IndexError{
				Reason: fmt.Sprintf("mixed dimensions: record %q has %d, want %d", r.ID, len(r.Vector), idx.dim),
			}
		}
		byID[r.ID] = r.Vector
	}

	s := &snapshot{
		ids:     make([]string, 0, len(byID)),
		vectors: make([][]float64, 0, len(byID)),
		pos:     make(map[string]int, len(byID)),
	}
	for id := range byID {
		s.ids = append(s.ids, id)
	}
	sort.Strings(s.ids)
	for i, id := range s.ids {
		s.vectors = append(s.vectors, normalize(byID[id]))
		s.pos[id] = i
	}
	return s, nil
}

// normalize returns a unit-length float64 copy, or zeros for a zero vector.
func normalize(v []float32) []float64 {
	out := make([]float64, len(v))
	var sum float64
	for i, x := range v {
		out[i] = float64(x)
		sum += out[i] * out[i]
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		clear(out)
		return out
	}
	n := math.Sqrt(sum)
	for i := range out {
		out[i] /= n
	}
	return out
}

func similarity(a, b []float64) float64 {
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return min(max(dot, 0), 1)
}

package vector_index //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/lewisedginton/memory_engine/internal/memerrors"
	"github.com/lewisedginton/memory_engine/internal/storage_manager"
)

// snapshot is an immutable view of one namespace. Writers build a new one.
type snapshot struct {
	dim  int
	ids  []int64
	vecs [][]float32
	pos  map[int64]int
}

func newSnapshot(dim, capacity int) *snapshot {
	return &snapshot{
		dim:  dim,
		ids:  make([]int64, 0, capacity),
		vecs: make([][]float32, 0, capacity),
		pos:  make(map[int64]int, capacity),
	}
}

func (s *snapshot) put(id int64, vec []float32) {
	if i, ok := s.pos[id]; ok {
		s.vecs[i] = vec
		return
	}
	s.pos[id] = len(s.ids)
	s.ids = append(s.ids, id)
	s.vecs = append(s.vecs, vec)
}

// with returns a copy of s with id set to vec. Vectors are shared, never mutated.
func (s *snapshot) with(id int64, vec []float32) *snapshot {
	out := newSnapshot(s.dim, len(s.ids)+1)
	for i, existing := range s.ids {
		out.put(existing, s.vecs[i])
	}
	out.put(id, vec)
	return out
}

// without returns a copy of s lacking id.
func (s *snapshot) without(id int64) *snapshot {
	out := newSnapshot(s.dim, len(s.ids))
	for i, existing := range s.ids {
		if existing != id {
			out.put(existing, s.vecs[i])
		}
	}
	return out
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// nearest is an exhaustive search, stable on ties by insertion order.
func (s *snapshot) nearest(q []float32, k int) []Hit {
	hits := make([]Hit, len(s.ids))
	for i, id := range s.ids {
		hits[i] = Hit{ID: id, Distance: squaredL2(q, s.vecs[i])}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits
}

type namespaceState struct {
	writeMu sync.Mutex
	// nil until first load; missing is a loaded state with no file behind it
	snap    atomic.Pointer[snapshot]
	missing atomic.Bool
}

// FlatIndex keeps each namespace in a single file that is rewritten whole on
// every mutation, with an exact L2 scan for queries. The process is assumed to
// be the only writer of its index files.
type FlatIndex struct {
	files storage_manager.FileProvider
	dim   int

	mu         sync.Mutex
	namespaces map[string]*namespaceState
}

// NewFlatIndex creates an index storing "{namespace}.vix" files in files.
func NewFlatIndex(files storage_manager.FileProvider, dim int) *FlatIndex {
	return &FlatIndex{
		files:      files,
		dim:        dim,
		namespaces: make(map[string]*namespaceState),
	}
}

func fileName(namespace string) string {
	return namespace + ".vix"
}

func (f *FlatIndex) state(namespace string) *namespaceState {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.namespaces[namespace]
	if !ok {
		st = &namespaceState{}
		f.namespaces[namespace] = st
	}
	return st
}

// load returns the namespace snapshot, reading the file on first use.
// A missing file yields an empty snapshot and missing=true.
func (f *FlatIndex) load(ctx context.Context, namespace string, st *namespaceState) (*snapshot, error) {
	if s := st.snap.Load(); s != nil {
		return s, nil
	}

	data, err := f.files.Read(ctx, fileName(namespace))
	switch {
	case errors.Is(err, storage_manager.ErrNotFound):
		s := newSnapshot(f.dim, 0)
		st.missing.Store(true)
		st.snap.Store(s)
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read index %s: %w", namespace, err)
	}

	s, err := decodeSnapshot(data)
	if err != nil {
		return nil, memerrors.E(memerrors.KindCorruptRecord, "load index "+namespace, err)
	}
	if s.dim != f.dim {
		return nil, memerrors.E(memerrors.KindCorruptRecord, "load index "+namespace,
			fmt.Errorf("index dimension %d, want %d", s.dim, f.dim))
	}
	st.snap.Store(s)
	return s, nil
}

// persist writes next and only then publishes it to readers.
func (f *FlatIndex) persist(ctx context.Context, namespace string, st *namespaceState, next *snapshot) error {
	data, err := encodeSnapshot(next)
	if err != nil {
		return fmt.Errorf("encode index %s: %w", namespace, err)
	}
	if err := f.files.Write(ctx, fileName(namespace), data); err != nil {
		return fmt.Errorf("write index %s: %w", namespace, err)
	}
	st.snap.Store(next)
	st.missing.Store(false)
	return nil
}

// Add implements Index.
func (f *FlatIndex) Add(ctx context.Context, namespace string, id int64, vec []float32) (int, error) {
	if len(vec) != f.dim {
		return 0, memerrors.Validation("add", "vector has %d dimensions, index holds %d", len(vec), f.dim)
	}
	st := f.state(namespace)
	st.writeMu.Lock()
	defer st.writeMu.Unlock()

	cur, err := f.load(ctx, namespace, st)
	if err != nil {
		return 0, err
	}
	next := cur.with(id, vec)
	if err := f.persist(ctx, namespace, st, next); err != nil {
		return 0, err
	}
	return len(next.ids), nil
}

// Remove implements Index. The file is only rewritten when id was present.
func (f *FlatIndex) Remove(ctx context.Context, namespace string, id int64) (bool, error) {
	st := f.state(namespace)
	st.writeMu.Lock()
	defer st.writeMu.Unlock()

	cur, err := f.load(ctx, namespace, st)
	if err != nil {
		return false, err
	}
	if _, ok := cur.pos[id]; !ok {
		return false, nil
	}
	if err := f.persist(ctx, namespace, st, cur.without(id)); err != nil {
		return false, err
	}
	return true, nil
}

// Query implements Index.
func (f *FlatIndex) Query(ctx context.Context, namespace string, vec []float32, k int) ([]Hit, error) {
	if len(vec) != f.dim {
		return nil, memerrors.Validation("query", "vector has %d dimensions, index holds %d", len(vec), f.dim)
	}
	st := f.state(namespace)
	s := st.snap.Load()
	if s == nil {
		// first touch; loading takes the writer lock so it never races a mutation
		st.writeMu.Lock()
		var err error
		s, err = f.load(ctx, namespace, st)
		st.writeMu.Unlock()
		if err != nil {
			return nil, err
		}
	}
	if st.missing.Load() {
		return nil, memerrors.E(memerrors.KindIndexMissing, "query "+namespace, nil)
	}
	if k <= 0 {
		return []Hit{}, nil
	}
	return s.nearest(vec, k), nil
}

// Size implements Index.
func (f *FlatIndex) Size(ctx context.Context, namespace string) (int, error) {
	st := f.state(namespace)
	st.writeMu.Lock()
	s, err := f.load(ctx, namespace, st)
	st.writeMu.Unlock()
	if err != nil {
		return 0, err
	}
	return len(s.ids), nil
}

// Namespaces lists namespaces that have an index file.
func (f *FlatIndex) Namespaces(ctx context.Context) ([]string, error) {
	files, err := f.files.List(ctx, "")
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(files))
	for _, name := range files {
		if ns, ok := strings.CutSuffix(name, ".vix"); ok && ns != "" && !strings.Contains(ns, "/") {
			out = append(out, ns)
		}
	}
	return out, nil
}

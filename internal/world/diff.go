package world

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrNoDiff is returned by a DiffSource when no edits are stored for a chunk.
var ErrNoDiff = errors.New("no diff stored for chunk")

// LocalCoord addresses a cell inside one chunk.
type LocalCoord struct {
	X, Y int
}

// Diff is the set of edits that distinguish a chunk from its regenerated
// baseline. Entries hold the new value only.
type Diff struct {
	ChunkIndex int
	Tiles      map[LocalCoord]Tile
	Vegetation map[int]Vegetation
	// Baseline is the digest of the regenerated chunk the edits were made
	// against. Zero means unknown.
	Baseline [32]byte
}

func NewDiff(chunkIndex int) *Diff {
	return &Diff{
		ChunkIndex: chunkIndex,
		Tiles:      make(map[LocalCoord]Tile),
		Vegetation: make(map[int]Vegetation),
	}
}

// Len is the number of edited cells and columns.
func (d *Diff) Len() int {
	return len(d.Tiles) + len(d.Vegetation)
}

func (d *Diff) Empty() bool { return d.Len() == 0 }

// Clone returns a deep copy.
func (d *Diff) Clone() *Diff {
	c := NewDiff(d.ChunkIndex)
	for k, v := range d.Tiles {
		c.Tiles[k] = v
	}
	for k, v := range d.Vegetation {
		c.Vegetation[k] = v
	}
	c.Baseline = d.Baseline
	return c
}

// SortedTiles returns the tile coordinates ordered by row then column.
func (d *Diff) SortedTiles() []LocalCoord {
	out := make([]LocalCoord, 0, len(d.Tiles))
	for c := range d.Tiles {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}

// SortedColumns returns the vegetation columns in ascending order.
func (d *Diff) SortedColumns() []int {
	out := make([]int, 0, len(d.Vegetation))
	for c := range d.Vegetation {
		out = append(out, c)
	}
	sort.Ints(out)
	return out
}

// DiffSource supplies stored diffs for chunk reconstruction.
type DiffSource interface {
	// LoadDiff returns ErrNoDiff when nothing was stored for the chunk.
	LoadDiff(ctx context.Context, chunkIndex int) (*Diff, error)
}

// DiffSink receives diffs of modified chunks.
type DiffSink interface {
	SaveDiffs(ctx context.Context, diffs []*Diff) error
}

type DiffStore interface {
	DiffSource
	DiffSink
}

// MemoryDiffStore keeps diffs in process memory. Used when no database is
// configured and in tests.
type MemoryDiffStore struct {
	mu    sync.RWMutex
	diffs map[int]*Diff
	saves int
}

func NewMemoryDiffStore() *MemoryDiffStore {
	return &MemoryDiffStore{diffs: make(map[int]*Diff)}
}

func (s *MemoryDiffStore) LoadDiff(_ context.Context, chunkIndex int) (*Diff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.diffs[chunkIndex]
	if !ok {
		return nil, ErrNoDiff
	}
	return d.Clone(), nil
}

func (s *MemoryDiffStore) SaveDiffs(ctx context.Context, diffs []*Diff) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range diffs {
		s.diffs[d.ChunkIndex] = d.Clone()
	}
	s.saves++
	return nil
}

// Put stores a diff directly.
func (s *MemoryDiffStore) Put(d *Diff) {
	s.mu.Lock()
	s.diffs[d.ChunkIndex] = d.Clone()
	s.mu.Unlock()
}

// Len is the number of chunks with a stored diff.
func (s *MemoryDiffStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.diffs)
}

// Saves counts SaveDiffs batches accepted.
func (s *MemoryDiffStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

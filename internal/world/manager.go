package world

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ErrInvalidConfig is returned when manager options cannot describe a world.
var ErrInvalidConfig = errors.New("invalid world configuration")

// Generator produces the baseline content of a chunk. It must be a pure
// function of the chunk index and safe for concurrent use.
type Generator interface {
	GenerateChunk(index int) *Chunk
}

// Options configure a Manager.
type Options struct {
	Layout
	LoadRadius       int // R: chunks kept on each side of the player's chunk
	HysteresisMargin int // M: extra chunks tolerated before eviction
	Workers          int
	QueueSize        int
}

func (o Options) validate() error {
	switch {
	case o.Width <= 0:
		return fmt.Errorf("%w: chunk width %d", ErrInvalidConfig, o.Width)
	case o.Height <= 0:
		return fmt.Errorf("%w: chunk height %d", ErrInvalidConfig, o.Height)
	case o.BlockSize <= 0:
		return fmt.Errorf("%w: block size %v", ErrInvalidConfig, o.BlockSize)
	case o.LoadRadius < 0:
		return fmt.Errorf("%w: load radius %d", ErrInvalidConfig, o.LoadRadius)
	case o.HysteresisMargin < 0:
		return fmt.Errorf("%w: hysteresis margin %d", ErrInvalidConfig, o.HysteresisMargin)
	case o.Workers < 1:
		return fmt.Errorf("%w: workers %d", ErrInvalidConfig, o.Workers)
	case o.QueueSize < 1:
		return fmt.Errorf("%w: queue size %d", ErrInvalidConfig, o.QueueSize)
	}
	return nil
}

// UpdateResult reports what one UpdateChunks call changed.
type UpdateResult struct {
	Center    int
	Scheduled []int
	Evicted   []int
	Pinned    int // dirty chunks outside the window kept until saved
}

// Changed reports whether the call scheduled or evicted anything.
func (r UpdateResult) Changed() bool {
	return len(r.Scheduled) > 0 || len(r.Evicted) > 0
}

// Stats is a point-in-time view of manager activity.
type Stats struct {
	Loaded    int   `json:"loaded"`
	Dirty     int   `json:"dirty"`
	Pending   int   `json:"pending"`
	Generated int64 `json:"generated"`
	Evicted   int64 `json:"evicted"`
	Replayed  int64 `json:"replayed"`
	Saved     int64 `json:"saved"`
}

// Manager owns the chunk cache. Chunks are produced on demand or by a pool
// of prefetch workers; each index is generated at most once while cached.
type Manager struct {
	opts  Options
	gen   Generator
	diffs DiffSource
	log   *zap.Logger

	mu     sync.RWMutex
	chunks map[int]*Chunk

	flight singleflight.Group

	jobs      chan int
	pendingMu sync.Mutex
	pending   map[int]struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    atomic.Bool

	generated atomic.Int64
	evicted   atomic.Int64
	replayed  atomic.Int64
	saved     atomic.Int64
}

// NewManager validates opts and starts the prefetch workers. diffs may be
// nil when nothing was ever persisted.
func NewManager(opts Options, gen Generator, diffs DiffSource, log *zap.Logger) (*Manager, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if gen == nil {
		return nil, fmt.Errorf("%w: nil generator", ErrInvalidConfig)
	}
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		opts:    opts,
		gen:     gen,
		diffs:   diffs,
		log:     log,
		chunks:  make(map[int]*Chunk),
		jobs:    make(chan int, opts.QueueSize),
		pending: make(map[int]struct{}),
	}
	for i := 0; i < opts.Workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	return m, nil
}

func (m *Manager) Layout() Layout { return m.opts.Layout }

// Height is the number of rows in every chunk.
func (m *Manager) Height() int { return m.opts.Height }

func (m *Manager) worker() {
	defer m.wg.Done()
	for idx := range m.jobs {
		m.load(idx)
		m.pendingMu.Lock()
		delete(m.pending, idx)
		m.pendingMu.Unlock()
	}
}

// enqueue schedules idx without blocking. It returns false when the chunk is
// already pending or the queue is full; the next update retries.
func (m *Manager) enqueue(idx int) bool {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	if m.closed.Load() {
		return false
	}
	if _, ok := m.pending[idx]; ok {
		return false
	}
	select {
	case m.jobs <- idx:
		m.pending[idx] = struct{}{}
		return true
	default:
		return false
	}
}

func (m *Manager) cached(idx int) *Chunk {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.chunks[idx]
}

// load returns the cached chunk or generates it. Concurrent callers for the
// same index share one generation.
func (m *Manager) load(idx int) *Chunk {
	if c := m.cached(idx); c != nil {
		return c
	}
	v, _, _ := m.flight.Do(strconv.Itoa(idx), func() (any, error) {
		if c := m.cached(idx); c != nil {
			return c, nil
		}
		c := m.gen.GenerateChunk(idx)
		m.generated.Add(1)
		m.replay(c)

		m.mu.Lock()
		defer m.mu.Unlock()
		if existing, ok := m.chunks[idx]; ok {
			return existing, nil
		}
		m.chunks[idx] = c
		return c, nil
	})
	return v.(*Chunk)
}

func (m *Manager) replay(c *Chunk) {
	if m.diffs == nil {
		return
	}
	d, err := m.diffs.LoadDiff(context.Background(), c.Index())
	if errors.Is(err, ErrNoDiff) {
		return
	}
	if err != nil {
		m.log.Warn("diff load failed, using regenerated chunk",
			zap.Int("chunk", c.Index()), zap.Error(err))
		return
	}
	rep := c.ApplyDiff(d)
	m.replayed.Add(1)
	if rep.BaselineMismatch {
		m.log.Warn("generator output changed since diff was saved",
			zap.Int("chunk", c.Index()))
	}
	for _, s := range rep.Skipped {
		m.log.Warn("skipping diff entry",
			zap.Int("chunk", c.Index()),
			zap.Int("x", s.X),
			zap.Int("y", s.Y),
			zap.String("reason", s.Reason))
	}
	m.log.Debug("chunk reconstructed",
		zap.Int("chunk", c.Index()),
		zap.Int("applied", rep.Applied),
		zap.Int("skipped", len(rep.Skipped)))
}

// GetChunkSync returns the chunk, generating it on the caller's goroutine
// when it is not cached.
func (m *Manager) GetChunkSync(idx int) *Chunk {
	return m.load(idx)
}

// GetTile reads a world cell. Rows outside the chunk height read as Air.
func (m *Manager) GetTile(worldX, worldY int) Tile {
	if worldY < 0 || worldY >= m.opts.Height {
		return Air
	}
	c := m.load(m.opts.ChunkOf(worldX))
	return c.Tile(m.opts.LocalX(worldX), worldY)
}

// SetTile edits a world cell. Out-of-range rows and unknown tiles are ignored.
func (m *Manager) SetTile(worldX, worldY int, t Tile) bool {
	if worldY < 0 || worldY >= m.opts.Height || !t.Valid() {
		return false
	}
	lx := m.opts.LocalX(worldX)
	return m.edit(m.opts.ChunkOf(worldX), func(c *Chunk) bool {
		return c.SetTile(lx, worldY, t)
	})
}

func (m *Manager) GetVegetation(worldX int) Vegetation {
	c := m.load(m.opts.ChunkOf(worldX))
	return c.Vegetation(m.opts.LocalX(worldX))
}

func (m *Manager) SetVegetation(worldX int, v Vegetation) bool {
	if !v.Valid() {
		return false
	}
	lx := m.opts.LocalX(worldX)
	return m.edit(m.opts.ChunkOf(worldX), func(c *Chunk) bool {
		return c.SetVegetation(lx, v)
	})
}

// edit applies fn to chunk idx while holding the cache read lock, so evict
// cannot drop the chunk between the lookup and the write. A chunk evicted
// after load but before the lock is reloaded.
func (m *Manager) edit(idx int, fn func(*Chunk) bool) bool {
	for {
		c := m.load(idx)
		m.mu.RLock()
		if m.chunks[idx] != c {
			m.mu.RUnlock()
			continue
		}
		ok := fn(c)
		m.mu.RUnlock()
		return ok
	}
}

// BiomeAt is the biome of a world column.
func (m *Manager) BiomeAt(worldX int) Biome {
	c := m.load(m.opts.ChunkOf(worldX))
	return c.ColumnBiome(m.opts.LocalX(worldX))
}

// ChunkBiomeAt is the dominant biome of the chunk owning a world column.
func (m *Manager) ChunkBiomeAt(worldX int) Biome {
	return m.load(m.opts.ChunkOf(worldX)).Biome()
}

// SurfaceAt returns the first non-Air row of a world column as it is now,
// edits included.
func (m *Manager) SurfaceAt(worldX int) int {
	c := m.load(m.opts.ChunkOf(worldX))
	return c.FirstNonAir(m.opts.LocalX(worldX))
}

// ContainsColumn is always true: the world is unbounded horizontally.
func (m *Manager) ContainsColumn(int) bool { return true }

// UpdateChunks recentres the streaming window on the player. Missing chunks
// within LoadRadius are handed to the workers; loaded chunks farther than
// LoadRadius+HysteresisMargin are evicted unless they hold unsaved edits.
func (m *Manager) UpdateChunks(playerWorldX float64) UpdateResult {
	center := m.opts.ChunkAtPosition(playerWorldX)
	res := UpdateResult{Center: center}
	res.Evicted, res.Pinned = m.evict(center)

	r := m.opts.LoadRadius
	for idx := center - r; idx <= center+r; idx++ {
		if m.cached(idx) != nil {
			continue
		}
		if m.enqueue(idx) {
			res.Scheduled = append(res.Scheduled, idx)
		}
	}
	return res
}

func (m *Manager) evict(center int) ([]int, int) {
	limit := m.opts.LoadRadius + m.opts.HysteresisMargin
	var evicted []int
	pinned := 0

	m.mu.Lock()
	for idx, c := range m.chunks {
		d := idx - center
		if d < 0 {
			d = -d
		}
		if d <= limit {
			continue
		}
		if c.NeedsSave() {
			pinned++
			continue
		}
		delete(m.chunks, idx)
		evicted = append(evicted, idx)
	}
	m.mu.Unlock()

	sort.Ints(evicted)
	m.evicted.Add(int64(len(evicted)))
	if len(evicted) > 0 {
		m.log.Debug("chunks evicted", zap.Int("center", center), zap.Ints("chunks", evicted))
	}
	return evicted, pinned
}

// GetLoadedChunks returns the cached chunks ordered by index.
func (m *Manager) GetLoadedChunks() []*Chunk {
	m.mu.RLock()
	out := make([]*Chunk, 0, len(m.chunks))
	for _, c := range m.chunks {
		out = append(out, c)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Index() < out[j].Index() })
	return out
}

// LoadedIndices returns the cached chunk indices in ascending order.
func (m *Manager) LoadedIndices() []int {
	m.mu.RLock()
	out := make([]int, 0, len(m.chunks))
	for idx := range m.chunks {
		out = append(out, idx)
	}
	m.mu.RUnlock()
	sort.Ints(out)
	return out
}

// SaveModified writes the diffs of every chunk with unsaved edits to sink and
// returns how many chunks were written. On error nothing is marked saved, so
// the next call retries the whole batch.
func (m *Manager) SaveModified(ctx context.Context, sink DiffSink) (int, error) {
	type capture struct {
		c   *Chunk
		rev uint64
	}
	var (
		caps  []capture
		diffs []*Diff
	)
	for _, c := range m.GetLoadedChunks() {
		if !c.NeedsSave() {
			continue
		}
		d, rev := c.DiffAt()
		caps = append(caps, capture{c: c, rev: rev})
		diffs = append(diffs, d)
	}
	if len(diffs) == 0 {
		return 0, nil
	}
	if err := sink.SaveDiffs(ctx, diffs); err != nil {
		return 0, fmt.Errorf("save %d chunk diffs: %w", len(diffs), err)
	}
	for _, cp := range caps {
		cp.c.MarkSaved(cp.rev)
	}
	m.saved.Add(int64(len(caps)))
	return len(caps), nil
}

// Pregenerate loads chunks [from, to] in parallel on the caller's context.
func (m *Manager) Pregenerate(ctx context.Context, from, to int) error {
	if to < from {
		from, to = to, from
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Workers)
	for idx := from; idx <= to; idx++ {
		idx := idx
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			m.load(idx)
			return nil
		})
	}
	return g.Wait()
}

// WaitIdle blocks until no prefetch job is pending or ctx ends.
func (m *Manager) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()
	for {
		if m.pendingCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Manager) pendingCount() int {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	return len(m.pending)
}

// Stats returns current counters.
func (m *Manager) Stats() Stats {
	s := Stats{
		Pending:   m.pendingCount(),
		Generated: m.generated.Load(),
		Evicted:   m.evicted.Load(),
		Replayed:  m.replayed.Load(),
		Saved:     m.saved.Load(),
	}
	for _, c := range m.GetLoadedChunks() {
		s.Loaded++
		if c.NeedsSave() {
			s.Dirty++
		}
	}
	return s
}

// Close stops the workers after queued jobs finish. Cached chunks stay
// readable.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.pendingMu.Lock()
		m.closed.Store(true)
		close(m.jobs)
		m.pendingMu.Unlock()
		m.wg.Wait()
	})
}

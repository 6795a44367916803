package world_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/drifter/server/internal/data"
	"github.com/drifter/server/internal/world"
	"github.com/drifter/server/internal/worldgen"
)

const (
	testSeed   = 12345
	testWidth  = 32
	testHeight = 30
	blockSize  = 1.0
)

func newPipeline(t *testing.T) *worldgen.Pipeline {
	t.Helper()
	p, err := worldgen.NewPipeline(worldgen.Params{
		Seed:           testSeed,
		Width:          testWidth,
		Height:         testHeight,
		SurfaceLevel:   10,
		DirtDepth:      3,
		CaveEdgeMargin: 2,
		BedrockMargin:  2,
	}, data.DefaultTables(), nil)
	require.NoError(t, err)
	return p
}

func testOptions(radius, margin int) world.Options {
	return world.Options{
		Layout:           world.Layout{Width: testWidth, Height: testHeight, BlockSize: blockSize},
		LoadRadius:       radius,
		HysteresisMargin: margin,
		Workers:          4,
		QueueSize:        64,
	}
}

func newManager(t *testing.T, gen world.Generator, diffs world.DiffSource, radius, margin int) *world.Manager {
	t.Helper()
	m, err := world.NewManager(testOptions(radius, margin), gen, diffs, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func waitIdle(t *testing.T, m *world.Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, m.WaitIdle(ctx))
}

// countingGenerator wraps a generator and counts calls per chunk.
type countingGenerator struct {
	inner world.Generator
	delay time.Duration
	mu    sync.Mutex
	calls map[int]int
	total atomic.Int64
}

func newCounting(inner world.Generator, delay time.Duration) *countingGenerator {
	return &countingGenerator{inner: inner, delay: delay, calls: make(map[int]int)}
}

func (g *countingGenerator) GenerateChunk(index int) *world.Chunk {
	g.mu.Lock()
	g.calls[index]++
	g.mu.Unlock()
	g.total.Add(1)
	time.Sleep(g.delay)
	return g.inner.GenerateChunk(index)
}

func (g *countingGenerator) count(index int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[index]
}

func TestNewManagerValidates(t *testing.T) {
	gen := newPipeline(t)
	bad := []world.Options{
		testOptions(-1, 0),
		testOptions(1, -1),
		{Layout: world.Layout{Width: 0, Height: 30, BlockSize: 1}, Workers: 1, QueueSize: 1},
		{Layout: world.Layout{Width: 32, Height: 30, BlockSize: 0}, Workers: 1, QueueSize: 1},
		{Layout: world.Layout{Width: 32, Height: 30, BlockSize: 1}, Workers: 0, QueueSize: 1},
	}
	for i, opts := range bad {
		_, err := world.NewManager(opts, gen, nil, nil)
		assert.ErrorIs(t, err, world.ErrInvalidConfig, "case %d", i)
	}
	_, err := world.NewManager(testOptions(1, 1), nil, nil, nil)
	assert.ErrorIs(t, err, world.ErrInvalidConfig)
}

func TestConcreteScenario(t *testing.T) {
	gen := newPipeline(t)
	store := world.NewMemoryDiffStore()
	m := newManager(t, gen, store, 2, 1)

	m.UpdateChunks(0)
	waitIdle(t, m)
	assert.Equal(t, []int{-2, -1, 0, 1, 2}, m.LoadedIndices())
	assert.Equal(t, newPipeline(t).GenerateChunk(0).Biome(), m.GetChunkSync(0).Biome(),
		"independent pipelines agree on chunk 0")

	require.True(t, m.SetTile(5, 2, world.Stone))
	assert.Equal(t, world.Stone, m.GetTile(5, 2))
	assert.True(t, m.GetChunkSync(0).IsModified())

	fresh := gen.GenerateChunk(0)
	assert.Equal(t, fresh.Tile(0, 2), m.GetTile(0, 2))
	assert.False(t, m.GetChunkSync(1).IsModified())

	var loaded []int
	for _, c := range m.GetLoadedChunks() {
		loaded = append(loaded, c.Index())
	}
	assert.Contains(t, loaded, 0)

	n, err := m.SaveModified(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	res := m.UpdateChunks(100 * testWidth)
	require.Contains(t, res.Evicted, 0)
	waitIdle(t, m)

	assert.Equal(t, world.Stone, m.GetTile(5, 2), "edit survives unload and reload")
	assert.Equal(t, fresh.Tile(0, 2), m.GetTile(0, 2))
	assert.True(t, m.GetChunkSync(0).IsModified())
}

func TestEditsSurviveConcurrentEviction(t *testing.T) {
	store := world.NewMemoryDiffStore()
	m := newManager(t, newPipeline(t), store, 0, 0)
	const chunks = 48

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				m.UpdateChunks(-1000 * testWidth)
			}
		}
	}()

	for k := 0; k < chunks; k++ {
		require.True(t, m.SetTile(k*testWidth+5, 0, world.Gravel))
		require.True(t, m.SetVegetation(k*testWidth+6, world.Mushroom))
	}
	close(done)
	wg.Wait()

	n, err := m.SaveModified(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, chunks, n, "every edited chunk stayed cached until saved")

	m.UpdateChunks(-1000 * testWidth)
	waitIdle(t, m)
	for k := 0; k < chunks; k++ {
		assert.NotContains(t, m.LoadedIndices(), k)
	}
	for k := 0; k < chunks; k++ {
		assert.Equal(t, world.Gravel, m.GetTile(k*testWidth+5, 0), "chunk %d", k)
		assert.Equal(t, world.Mushroom, m.GetVegetation(k*testWidth+6), "chunk %d", k)
	}
}

func TestGetTileOutOfRange(t *testing.T) {
	m := newManager(t, newPipeline(t), nil, 1, 1)
	assert.Equal(t, world.Air, m.GetTile(0, -1))
	assert.Equal(t, world.Air, m.GetTile(0, testHeight))
	assert.False(t, m.SetTile(0, testHeight, world.Stone))
	assert.False(t, m.SetTile(0, 0, world.Tile(99)))
	assert.Empty(t, m.GetLoadedChunks(), "out-of-range rows do not load chunks")
}

func TestNegativeColumns(t *testing.T) {
	gen := newPipeline(t)
	m := newManager(t, gen, nil, 1, 1)
	fresh := gen.GenerateChunk(-1)
	for y := 0; y < testHeight; y++ {
		assert.Equal(t, fresh.Tile(testWidth-1, y), m.GetTile(-1, y))
	}
	require.True(t, m.SetTile(-33, 4, world.Brick))
	assert.Equal(t, world.Brick, m.GetChunkSync(-2).Tile(31, 4))
}

func TestManagerMatchesGenerator(t *testing.T) {
	gen := newPipeline(t)
	m := newManager(t, gen, nil, 2, 1)
	m.UpdateChunks(0)
	waitIdle(t, m)
	for idx := -2; idx <= 2; idx++ {
		assert.Equal(t, gen.GenerateChunk(idx).Digest(), m.GetChunkSync(idx).Digest(), "chunk %d", idx)
	}
}

func TestEvictionWindow(t *testing.T) {
	const r, margin = 2, 1
	m := newManager(t, newPipeline(t), nil, r, margin)

	res := m.UpdateChunks(0)
	assert.Equal(t, 0, res.Center)
	assert.Equal(t, []int{-2, -1, 0, 1, 2}, res.Scheduled)
	waitIdle(t, m)
	assert.Equal(t, []int{-2, -1, 0, 1, 2}, m.LoadedIndices())

	// a repeat call schedules nothing
	assert.False(t, m.UpdateChunks(0.5).Changed())

	moves := []struct {
		x      float64
		center int
	}{
		{40, 1},
		{100, 3},
		{150, 4},
		{500, 15},
		{-300, -10},
		{37.5, 1},
	}
	for _, mv := range moves {
		res := m.UpdateChunks(mv.x)
		waitIdle(t, m)
		pc := mv.center
		require.Equal(t, pc, res.Center)
		loaded := m.LoadedIndices()
		for idx := pc - r; idx <= pc+r; idx++ {
			assert.Contains(t, loaded, idx, "after moving to %v", mv.x)
		}
		for _, idx := range loaded {
			d := idx - pc
			if d < 0 {
				d = -d
			}
			assert.LessOrEqual(t, d, r+margin, "chunk %d stayed loaded around %d", idx, pc)
		}
	}
}

func TestHysteresisKeepsNearbyChunks(t *testing.T) {
	m := newManager(t, newPipeline(t), nil, 1, 2)
	m.UpdateChunks(0)
	waitIdle(t, m)

	res := m.UpdateChunks(2 * testWidth)
	assert.Empty(t, res.Evicted, "chunk -1 is within R+M of chunk 2")
	waitIdle(t, m)

	res = m.UpdateChunks(3 * testWidth)
	assert.Equal(t, []int{-1}, res.Evicted)
}

func TestSingleGenerationUnderConcurrency(t *testing.T) {
	gen := newCounting(newPipeline(t), 20*time.Millisecond)
	m := newManager(t, gen, nil, 1, 1)

	var wg sync.WaitGroup
	chunks := make([]*world.Chunk, 16)
	for i := range chunks {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				chunks[i] = m.GetChunkSync(5)
			} else {
				m.GetTile(5*testWidth+3, 10)
				chunks[i] = m.GetChunkSync(5)
			}
		}()
	}
	m.UpdateChunks(5 * testWidth)
	wg.Wait()
	waitIdle(t, m)

	assert.Equal(t, 1, gen.count(5))
	for _, c := range chunks {
		assert.Same(t, chunks[0], c)
	}
	assert.Equal(t, gen.total.Load(), m.Stats().Generated)
}

func TestDiffRoundTrip(t *testing.T) {
	gen := newPipeline(t)
	store := world.NewMemoryDiffStore()
	m := newManager(t, gen, store, 1, 0)

	m.UpdateChunks(0)
	waitIdle(t, m)
	require.True(t, m.SetTile(5, 2, world.Stone))
	require.True(t, m.SetTile(40, 20, world.Brick))
	require.True(t, m.SetVegetation(7, world.Flower))
	want0 := m.GetChunkSync(0).Digest()
	want1 := m.GetChunkSync(1).Digest()

	n, err := m.SaveModified(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, store.Len())

	n, err = m.SaveModified(context.Background(), store)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing new to save")

	res := m.UpdateChunks(100 * testWidth)
	assert.Contains(t, res.Evicted, 0)
	assert.Contains(t, res.Evicted, 1)
	waitIdle(t, m)

	c0 := m.GetChunkSync(0)
	assert.Equal(t, want0, c0.Digest())
	assert.Equal(t, world.Stone, m.GetTile(5, 2))
	assert.Equal(t, world.Flower, m.GetVegetation(7))
	assert.True(t, c0.IsModified())
	assert.False(t, c0.NeedsSave())
	assert.Equal(t, want1, m.GetChunkSync(1).Digest())
	assert.Equal(t, int64(2), m.Stats().Replayed)
}

func TestDirtyChunksArePinned(t *testing.T) {
	store := world.NewMemoryDiffStore()
	m := newManager(t, newPipeline(t), store, 1, 0)
	m.UpdateChunks(0)
	waitIdle(t, m)
	require.True(t, m.SetTile(3, 3, world.Plank))

	res := m.UpdateChunks(50 * testWidth)
	assert.NotContains(t, res.Evicted, 0)
	assert.Equal(t, 1, res.Pinned)
	assert.Contains(t, m.LoadedIndices(), 0)

	_, err := m.SaveModified(context.Background(), store)
	require.NoError(t, err)
	res = m.UpdateChunks(50 * testWidth)
	assert.Contains(t, res.Evicted, 0)
}

type failingSink struct{}

func (failingSink) SaveDiffs(context.Context, []*world.Diff) error {
	return errors.New("disk full")
}

func TestSaveFailureKeepsChunksDirty(t *testing.T) {
	m := newManager(t, newPipeline(t), nil, 1, 0)
	require.True(t, m.SetTile(3, 3, world.Plank))
	_, err := m.SaveModified(context.Background(), failingSink{})
	assert.ErrorContains(t, err, "disk full")
	assert.True(t, m.GetChunkSync(0).NeedsSave())
	assert.Equal(t, 1, m.Stats().Dirty)
}

func TestCorruptDiffEntriesSkipped(t *testing.T) {
	gen := newPipeline(t)
	store := world.NewMemoryDiffStore()
	d := world.NewDiff(0)
	d.Tiles[world.LocalCoord{X: 5, Y: 2}] = world.Stone
	d.Tiles[world.LocalCoord{X: 6, Y: 2}] = world.Tile(240)
	d.Tiles[world.LocalCoord{X: 6, Y: 400}] = world.Stone
	store.Put(d)

	m := newManager(t, gen, store, 1, 1)
	fresh := gen.GenerateChunk(0)
	assert.Equal(t, world.Stone, m.GetTile(5, 2))
	assert.Equal(t, fresh.Tile(6, 2), m.GetTile(6, 2))
	assert.True(t, m.GetChunkSync(0).IsModified())
}

type brokenSource struct{}

func (brokenSource) LoadDiff(context.Context, int) (*world.Diff, error) {
	return nil, errors.New("connection refused")
}

func TestDiffLoadFailureFallsBackToBaseline(t *testing.T) {
	gen := newPipeline(t)
	m := newManager(t, gen, brokenSource{}, 1, 1)
	assert.Equal(t, gen.GenerateChunk(3).Digest(), m.GetChunkSync(3).Digest())
}

func TestPregenerate(t *testing.T) {
	gen := newCounting(newPipeline(t), 0)
	m := newManager(t, gen, nil, 1, 1)
	require.NoError(t, m.Pregenerate(context.Background(), 4, -4))
	assert.Len(t, m.GetLoadedChunks(), 9)
	assert.Equal(t, int64(9), gen.total.Load())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Pregenerate(ctx, 10, 20), context.Canceled)
}

func TestLoadedChunksSorted(t *testing.T) {
	m := newManager(t, newPipeline(t), nil, 3, 0)
	for _, idx := range []int{4, -2, 0, 7} {
		m.GetChunkSync(idx)
	}
	var got []int
	for _, c := range m.GetLoadedChunks() {
		got = append(got, c.Index())
	}
	assert.Equal(t, []int{-2, 0, 4, 7}, got)
}

func TestCloseStopsScheduling(t *testing.T) {
	m, err := world.NewManager(testOptions(2, 1), newPipeline(t), nil, zap.NewNop())
	require.NoError(t, err)
	m.Close()
	m.Close()
	assert.Empty(t, m.UpdateChunks(0).Scheduled)
	assert.NotPanics(t, func() { m.GetTile(0, 0) })
}

func TestManagerAsStructureGrid(t *testing.T) {
	gen := newPipeline(t)
	m := newManager(t, gen, nil, 1, 1)
	var grid worldgen.Grid = m
	s := gen.Structures()

	allowed := func(b world.Biome) bool {
		return b == world.Plains || b == world.Forest || b == world.Tundra
	}
	site := 0
	found := false
	for wx := -2000; wx < 2000 && !found; wx++ {
		found = true
		for dx := 0; dx < 6; dx++ {
			if !allowed(m.BiomeAt(wx+dx)) || !allowed(m.ChunkBiomeAt(wx+dx)) {
				found = false
				break
			}
		}
		site = wx
	}
	require.True(t, found, "no cabin biome in 4000 columns")

	// level the site so only the placement rules are under test
	const ground = 10
	for dx := 0; dx < 6; dx++ {
		for y := 0; y < ground; y++ {
			m.SetTile(site+dx, y, world.Air)
		}
		m.SetTile(site+dx, ground, world.Grass)
		m.SetVegetation(site+dx, world.NoVegetation)
	}

	require.True(t, s.TryPlaceStructure(grid, "cabin", site, ground))
	assert.Equal(t, world.Plank, m.GetTile(site, ground-4))
	assert.True(t, m.GetChunkSync(m.Layout().ChunkOf(site)).IsModified())
	assert.False(t, s.TryPlaceStructure(grid, "cabin", site, m.SurfaceAt(site)), "second cabin on the same spot")
	assert.False(t, s.TryPlaceStructure(grid, "cabin", site+2, ground))
}

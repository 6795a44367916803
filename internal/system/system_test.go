package system

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	coresys "github.com/drifter/server/internal/core/system"
	"github.com/drifter/server/internal/data"
	"github.com/drifter/server/internal/world"
	"github.com/drifter/server/internal/worldgen"
)

func newManager(t *testing.T, store world.DiffSource) *world.Manager {
	t.Helper()
	gen, err := worldgen.NewPipeline(worldgen.Params{
		Seed: 7, Width: 16, Height: 24, SurfaceLevel: 8, DirtDepth: 3, CaveEdgeMargin: 1, BedrockMargin: 2,
	}, data.DefaultTables(), nil)
	require.NoError(t, err)
	m, err := world.NewManager(world.Options{
		Layout:           world.Layout{Width: 16, Height: 24, BlockSize: 1},
		LoadRadius:       1,
		HysteresisMargin: 1,
		Workers:          2,
		QueueSize:        16,
	}, gen, store, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

type fixedPose struct {
	x  float64
	ok bool
}

func (p *fixedPose) PlayerX() (float64, bool) { return p.x, p.ok }

type recordingSink struct {
	results []world.UpdateResult
	loaded  [][]int
}

func (s *recordingSink) Publish(res world.UpdateResult, loaded []int) {
	s.results = append(s.results, res)
	s.loaded = append(s.loaded, loaded)
}

func TestChunkStreamSystemFollowsPlayer(t *testing.T) {
	m := newManager(t, nil)
	pose := &fixedPose{}
	sink := &recordingSink{}
	s := NewChunkStreamSystem(m, pose, sink, 40, zap.NewNop())
	assert.Equal(t, coresys.PhaseUpdate, s.Phase())

	s.Update(time.Millisecond)
	require.Len(t, sink.results, 1)
	assert.Equal(t, 2, sink.results[0].Center, "spawn position used before any pose")
	assert.ElementsMatch(t, []int{1, 2, 3}, sink.results[0].Scheduled)

	require.NoError(t, m.WaitIdle(context.Background()))
	s.Update(time.Millisecond)
	assert.Len(t, sink.results, 1, "nothing changed")

	pose.x, pose.ok = -20, true
	s.Update(time.Millisecond)
	require.Len(t, sink.results, 2)
	assert.Equal(t, -2, s.Center())
	assert.Equal(t, []int{1, 2, 3}, sink.results[1].Evicted)
}

func TestChunkPersistSystemInterval(t *testing.T) {
	store := world.NewMemoryDiffStore()
	m := newManager(t, store)
	s := NewChunkPersistSystem(m, store, zap.NewNop(), 3)
	assert.Equal(t, coresys.PhasePersist, s.Phase())

	require.True(t, m.SetTile(1, 1, world.Brick))
	s.Update(0)
	s.Update(0)
	assert.Zero(t, store.Len())
	s.Update(0)
	assert.Equal(t, 1, store.Len())
	assert.False(t, m.GetChunkSync(0).NeedsSave())

	require.True(t, m.SetTile(-1, 1, world.Brick))
	require.NoError(t, s.Flush())
	assert.Equal(t, 2, store.Len())
}

func TestRunnerDrivesSystems(t *testing.T) {
	store := world.NewMemoryDiffStore()
	m := newManager(t, store)
	sink := &recordingSink{}
	r := coresys.NewRunner()
	r.Register(NewChunkPersistSystem(m, store, zap.NewNop(), 1))
	r.Register(NewChunkStreamSystem(m, nil, sink, 0, zap.NewNop()))

	require.True(t, m.SetTile(3, 3, world.Plank))
	r.Tick(time.Millisecond)
	assert.Len(t, sink.results, 1)
	assert.Equal(t, 1, store.Len())
}

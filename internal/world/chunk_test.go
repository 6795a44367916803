package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseChunk() *Chunk {
	c := NewChunk(2, 8, 6)
	for x := 0; x < 8; x++ {
		c.SetColumn(x, Forest, 2)
		c.SetBaseTile(x, 2, Grass)
		for y := 3; y < 5; y++ {
			c.SetBaseTile(x, y, Dirt)
		}
		c.SetBaseTile(x, 5, Bedrock)
	}
	c.SetBaseVegetation(1, Oak)
	c.Seal()
	return c
}

func TestChunkBounds(t *testing.T) {
	c := baseChunk()
	assert.Equal(t, Air, c.Tile(-1, 2))
	assert.Equal(t, Air, c.Tile(8, 2))
	assert.Equal(t, Air, c.Tile(0, 6))
	assert.False(t, c.SetTile(8, 0, Stone))
	assert.False(t, c.SetTile(0, -1, Stone))
	assert.False(t, c.SetTile(0, 0, Tile(200)))
	assert.False(t, c.SetVegetation(9, Oak))
	assert.Equal(t, NoVegetation, c.Vegetation(-1))
	assert.False(t, c.IsModified())
}

func TestChunkBaselineWritesStayClean(t *testing.T) {
	c := baseChunk()
	assert.False(t, c.IsModified())
	assert.Equal(t, Grass, c.Tile(3, 2))
	assert.Equal(t, Oak, c.Vegetation(1))
	assert.Equal(t, Forest, c.Biome())
	assert.Equal(t, 2, c.FirstNonAir(0))
	assert.Equal(t, []int{1}, c.VegetationColumns())
}

func TestChunkEditLog(t *testing.T) {
	c := baseChunk()
	require.True(t, c.SetTile(3, 2, Stone))
	require.True(t, c.SetVegetation(1, NoVegetation))
	assert.True(t, c.IsModified())
	assert.True(t, c.NeedsSave())

	d := c.Diff()
	assert.Equal(t, 2, d.ChunkIndex)
	assert.Equal(t, map[LocalCoord]Tile{{X: 3, Y: 2}: Stone}, d.Tiles)
	assert.Equal(t, map[int]Vegetation{1: NoVegetation}, d.Vegetation)
	assert.Equal(t, c.BaselineDigest(), d.Baseline)

	// restoring the baseline value drops the entry but the chunk stays modified
	c.SetTile(3, 2, Dirt)
	c.SetTile(3, 2, Grass)
	c.SetVegetation(1, Oak)
	assert.True(t, c.Diff().Empty())
	assert.True(t, c.IsModified())
}

func TestChunkNoOpEditStillModifies(t *testing.T) {
	c := baseChunk()
	c.SetTile(0, 2, Grass)
	assert.True(t, c.IsModified())
	assert.True(t, c.Diff().Empty())
}

func TestChunkSaveTracking(t *testing.T) {
	c := baseChunk()
	c.SetTile(0, 0, Brick)
	_, rev := c.DiffAt()
	c.SetTile(1, 0, Brick)
	c.MarkSaved(rev)
	assert.True(t, c.NeedsSave(), "edit after capture is still unsaved")

	_, rev = c.DiffAt()
	c.MarkSaved(rev)
	assert.False(t, c.NeedsSave())
	assert.True(t, c.IsModified())

	c.MarkSaved(rev - 1)
	assert.False(t, c.NeedsSave(), "older revisions never regress")
}

func TestChunkApplyDiff(t *testing.T) {
	src := baseChunk()
	src.SetTile(4, 3, Brick)
	src.SetTile(0, 0, Plank)
	src.SetVegetation(6, Flower)

	dst := baseChunk()
	rep := dst.ApplyDiff(src.Diff())
	assert.Equal(t, 3, rep.Applied)
	assert.Empty(t, rep.Skipped)
	assert.False(t, rep.BaselineMismatch)
	assert.Equal(t, src.Digest(), dst.Digest())
	assert.True(t, dst.IsModified())
	assert.False(t, dst.NeedsSave(), "replayed edits are already persisted")
	assert.Equal(t, src.Diff().Tiles, dst.Diff().Tiles)
}

func TestChunkApplyDiffSkipsInvalidEntries(t *testing.T) {
	c := baseChunk()
	d := NewDiff(2)
	d.Tiles[LocalCoord{X: 1, Y: 1}] = Brick
	d.Tiles[LocalCoord{X: 99, Y: 1}] = Brick
	d.Tiles[LocalCoord{X: 2, Y: 1}] = Tile(250)
	d.Vegetation[3] = Vegetation(90)
	d.Vegetation[-4] = Flower

	rep := c.ApplyDiff(d)
	assert.Equal(t, 1, rep.Applied)
	assert.Len(t, rep.Skipped, 4)
	assert.Equal(t, Brick, c.Tile(1, 1))
	assert.Equal(t, Air, c.Tile(2, 1), "corrupt entry leaves the baseline")
	assert.Equal(t, NoVegetation, c.Vegetation(3))
}

func TestChunkApplyDiffBaselineMismatch(t *testing.T) {
	c := baseChunk()
	d := NewDiff(2)
	d.Tiles[LocalCoord{X: 1, Y: 1}] = Brick
	d.Baseline = [32]byte{1}
	rep := c.ApplyDiff(d)
	assert.True(t, rep.BaselineMismatch)
	assert.Equal(t, 1, rep.Applied)
}

func TestChunkDigest(t *testing.T) {
	a, b := baseChunk(), baseChunk()
	assert.Equal(t, a.Digest(), b.Digest())
	b.SetVegetation(7, Bush)
	assert.NotEqual(t, a.Digest(), b.Digest())
	b.SetVegetation(7, NoVegetation)
	assert.Equal(t, a.Digest(), b.Digest())
}

func TestTileNames(t *testing.T) {
	for i := 0; i < TileCount; i++ {
		tile := Tile(i)
		parsed, err := ParseTile(tile.String())
		require.NoError(t, err)
		assert.Equal(t, tile, parsed)
	}
	_, err := ParseTile("marble")
	assert.Error(t, err)
	assert.Equal(t, "tile(77)", Tile(77).String())

	assert.True(t, Stone.Solid())
	assert.False(t, Backdrop.Solid())
	assert.True(t, Backdrop.Structure())
	assert.True(t, Water.Liquid())
	assert.True(t, Oak.Blocking())
	assert.False(t, Flower.Blocking())

	b, err := ParseBiome("jungle")
	require.NoError(t, err)
	assert.Equal(t, Jungle, b)
}

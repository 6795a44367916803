package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drifter/server/internal/world"
)

func TestEveryTileHasGlyph(t *testing.T) {
	seen := make(map[byte]world.Tile)
	for i := 0; i < world.TileCount; i++ {
		tile := world.Tile(i)
		g, ok := tileGlyphs[tile]
		require.True(t, ok, "no glyph for %s", tile)
		prev, dup := seen[g]
		assert.False(t, dup, "%s and %s share glyph %q", prev, tile, g)
		seen[g] = tile
	}
}

func TestRenderChunk(t *testing.T) {
	c := world.NewChunk(0, 4, 5)
	for x := 0; x < 4; x++ {
		c.SetBaseTile(x, 2, world.Grass)
		c.SetBaseTile(x, 3, world.Dirt)
		c.SetBaseTile(x, 4, world.Bedrock)
	}
	c.SetBaseVegetation(1, world.Oak)
	c.Seal()

	lines := strings.Split(strings.TrimSuffix(renderChunk(c), "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "    ", lines[0])
	assert.Equal(t, " O  ", lines[1])
	assert.Equal(t, `""""`, lines[2])
	assert.Equal(t, "....", lines[3])
	assert.Equal(t, "====", lines[4])
}

func TestSummarise(t *testing.T) {
	p, err := buildPipeline("", 12345)
	require.NoError(t, err)
	c := p.GenerateChunk(0)
	s := summarise(c)

	assert.Equal(t, 0, s.Index)
	assert.Equal(t, c.Biome().String(), s.Biome)
	assert.Len(t, s.Surface, c.Width())
	assert.Len(t, s.Digest, 16)
	assert.Equal(t, c.Width(), s.Tiles[world.Bedrock.String()])
}

package worldgen

import "github.com/drifter/server/internal/world"

// Grid is the surface structures are placed on. world.Manager satisfies it
// in world coordinates; chunkGrid adapts a chunk under generation.
type Grid interface {
	GetTile(x, y int) world.Tile
	SetTile(x, y int, t world.Tile) bool
	GetVegetation(x int) world.Vegetation
	SetVegetation(x int, v world.Vegetation) bool
	BiomeAt(x int) world.Biome
	ChunkBiomeAt(x int) world.Biome
	SurfaceAt(x int) int
	ContainsColumn(x int) bool
	Height() int
}

// chunkGrid writes baseline content into a single chunk in local coordinates.
type chunkGrid struct {
	c *world.Chunk
}

func (g chunkGrid) GetTile(x, y int) world.Tile { return g.c.Tile(x, y) }

func (g chunkGrid) SetTile(x, y int, t world.Tile) bool { return g.c.SetBaseTile(x, y, t) }

func (g chunkGrid) GetVegetation(x int) world.Vegetation { return g.c.Vegetation(x) }

func (g chunkGrid) SetVegetation(x int, v world.Vegetation) bool {
	return g.c.SetBaseVegetation(x, v)
}

func (g chunkGrid) BiomeAt(x int) world.Biome { return g.c.ColumnBiome(x) }

func (g chunkGrid) ChunkBiomeAt(int) world.Biome { return g.c.Biome() }

func (g chunkGrid) SurfaceAt(x int) int { return g.c.FirstNonAir(x) }

func (g chunkGrid) ContainsColumn(x int) bool { return x >= 0 && x < g.c.Width() }

func (g chunkGrid) Height() int { return g.c.Height() }

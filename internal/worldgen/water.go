package worldgen

import (
	"math"

	"github.com/drifter/server/internal/data"
	"github.com/drifter/server/internal/mathx"
	"github.com/drifter/server/internal/world"
)

// Water body depths, in rows from the surface down.
const (
	RiverDepth = 2
	LakeDepth  = 3
	OceanDepth = 5
)

const (
	riverScale     = 96.0
	riverBand      = 0.02
	lakeScale      = 40.0
	oceanScale     = 64.0
	oceanThreshold = 0.45
)

// Water floods rivers, lakes and ocean zones into the terrain.
type Water struct {
	params Params
	biomes *data.BiomeTable

	river Noise
	lake  Noise
	ocean Noise
}

func NewWater(p Params, biomes *data.BiomeTable) *Water {
	return &Water{
		params: p,
		biomes: biomes,
		river:  NewNoise(p.Seed, mathx.SaltRiver),
		lake:   NewNoise(p.Seed, mathx.SaltLake),
		ocean:  NewNoise(p.Seed, mathx.SaltOcean),
	}
}

// DepthAt returns how many rows of water a world column holds, 0 if dry.
func (w *Water) DepthAt(worldX int, def *data.BiomeDef) int {
	x := float64(worldX)
	if def.Shoreline && w.ocean.Octave1D(x/oceanScale, 2, 0.5) > oceanThreshold {
		return OceanDepth
	}
	if def.LakeThreshold > 0 && w.lake.Octave1D(x/lakeScale, 2, 0.5) > def.LakeThreshold {
		return LakeDepth
	}
	if def.Rivers && math.Abs(w.river.Octave1D(x/riverScale, 2, 0.5)-0.5) < riverBand {
		return RiverDepth
	}
	return 0
}

// Decorate floods the chunk. Wet columns lose their vegetation.
func (w *Water) Decorate(c *world.Chunk) {
	bottom := w.params.Height - 2
	for x := 0; x < c.Width(); x++ {
		def := w.biomes.Get(c.ColumnBiome(x))
		depth := w.DepthAt(c.Index()*c.Width()+x, def)
		if depth == 0 {
			continue
		}
		row := c.SurfaceRow(x)
		for y := row; y < row+depth && y < bottom; y++ {
			c.SetBaseTile(x, y, world.Water)
		}
		if bed := row + depth; bed <= bottom {
			c.SetBaseTile(x, bed, def.WaterBed)
		}
		c.SetBaseVegetation(x, world.NoVegetation)
	}
}

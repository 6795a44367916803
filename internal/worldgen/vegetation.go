package worldgen

import (
	"github.com/drifter/server/internal/data"
	"github.com/drifter/server/internal/mathx"
	"github.com/drifter/server/internal/world"
)

const floraScale = 24.0

// Vegetation scatters flora over dry biome surfaces.
type Vegetation struct {
	params  Params
	biomes  *data.BiomeTable
	density Noise
}

func NewVegetation(p Params, biomes *data.BiomeTable) *Vegetation {
	return &Vegetation{
		params:  p,
		biomes:  biomes,
		density: NewNoise(p.Seed, mathx.SaltFloraDensity),
	}
}

// Decorate fills the overlay. Blocking plants are never adjacent inside a
// chunk.
func (v *Vegetation) Decorate(c *world.Chunk) {
	seed := v.params.Seed
	prevBlocking := false
	for x := 0; x < c.Width(); x++ {
		def := v.biomes.Get(c.ColumnBiome(x))
		row := c.SurfaceRow(x)
		if c.Tile(x, row) != def.Surface || c.Tile(x, row-1) != world.Air {
			prevBlocking = false
			continue
		}
		wx := int64(c.Index()*c.Width() + x)
		density := def.VegetationDensity * (0.5 + v.density.Octave1D(float64(wx)/floraScale, 2, 0.5))
		if mathx.UnitAt(seed, wx, 0, mathx.SaltVegetation) >= density {
			prevBlocking = false
			continue
		}
		kind := def.PickFlora(mathx.UnitAt(seed, wx, 1, mathx.SaltVegetation))
		if kind.Blocking() && prevBlocking {
			prevBlocking = false
			continue
		}
		c.SetBaseVegetation(x, kind)
		prevBlocking = kind.Blocking()
	}
}

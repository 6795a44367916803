package worldgen

import (
	"errors"
	"fmt"
	"math"

	"github.com/drifter/server/internal/data"
	"github.com/drifter/server/internal/mathx"
	"github.com/drifter/server/internal/world"
)

// Params are the seed and dimensions every generator stage shares.
type Params struct {
	Seed           int64
	Width          int
	Height         int
	SurfaceLevel   int // nominal ground row before biome offsets
	DirtDepth      int
	CaveEdgeMargin int // columns at each chunk edge never carved by caves
	BedrockMargin  int // rows above bedrock never carved by caves
}

func (p Params) validate() error {
	var errs []error
	if p.Width <= 0 {
		errs = append(errs, fmt.Errorf("width %d", p.Width))
	}
	if p.DirtDepth < 1 {
		errs = append(errs, fmt.Errorf("dirt depth %d", p.DirtDepth))
	}
	if p.Height < p.DirtDepth+6 {
		errs = append(errs, fmt.Errorf("height %d too small for dirt depth %d", p.Height, p.DirtDepth))
	}
	if p.SurfaceLevel <= 0 || p.SurfaceLevel >= p.Height {
		errs = append(errs, fmt.Errorf("surface level %d outside (0,%d)", p.SurfaceLevel, p.Height))
	}
	if p.CaveEdgeMargin < 0 || 2*p.CaveEdgeMargin > p.Width {
		errs = append(errs, fmt.Errorf("cave edge margin %d", p.CaveEdgeMargin))
	}
	if p.BedrockMargin < 0 {
		errs = append(errs, fmt.Errorf("bedrock margin %d", p.BedrockMargin))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", world.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// lowestSurface is the deepest row the ground may sit on.
func (p Params) lowestSurface() int {
	return p.Height - 1 - (p.DirtDepth + 3)
}

const (
	biomeScale  = 160.0
	heightScale = 40.0
	caveScaleX  = 14.0
	caveScaleY  = 7.0
)

// Terrain lays out biomes, ground, caves and ores.
type Terrain struct {
	params Params
	biomes *data.BiomeTable
	layers *data.LayerTable

	temperature Noise
	moisture    Noise
	height      Noise
	cave        Noise
}

func NewTerrain(p Params, biomes *data.BiomeTable, layers *data.LayerTable) *Terrain {
	return &Terrain{
		params:      p,
		biomes:      biomes,
		layers:      layers,
		temperature: NewNoise(p.Seed, mathx.SaltTemperature),
		moisture:    NewNoise(p.Seed, mathx.SaltMoisture),
		height:      NewNoise(p.Seed, mathx.SaltHeight),
		cave:        NewNoise(p.Seed, mathx.SaltCave),
	}
}

func stretch(v float64) float64 {
	return math.Min(math.Max((v-0.5)*2.5+0.5, 0), 0.999)
}

// Climate returns the stretched temperature and moisture of a world column.
func (t *Terrain) Climate(worldX int) (temperature, moisture float64) {
	x := float64(worldX) / biomeScale
	temperature = stretch(t.temperature.Octave1D(x, 3, 0.5))
	moisture = stretch(t.moisture.Octave1D(x+1000, 3, 0.5))
	return temperature, moisture
}

// Classify maps climate onto one of the eight biomes.
func Classify(temperature, moisture float64) world.Biome {
	switch {
	case temperature < 0.33:
		if moisture < 0.45 {
			return world.Mountains
		}
		return world.Tundra
	case temperature < 0.66:
		switch {
		case moisture < 0.35:
			return world.Plains
		case moisture < 0.65:
			return world.Forest
		case moisture < 0.82:
			return world.Swamp
		}
		return world.Ocean
	default:
		switch {
		case moisture < 0.40:
			return world.Desert
		case moisture < 0.78:
			return world.Jungle
		}
		return world.Ocean
	}
}

// BiomeAt classifies a world column.
func (t *Terrain) BiomeAt(worldX int) world.Biome {
	return Classify(t.Climate(worldX))
}

// SurfaceRow is the generated ground row of a world column.
func (t *Terrain) SurfaceRow(worldX int, def *data.BiomeDef) int {
	h := t.height.Octave1D(float64(worldX)/heightScale, 4, 0.5)
	row := t.params.SurfaceLevel + def.Offset - int(math.Round((h-0.5)*2*def.Amplitude))
	return mathx.Clamp(row, 2, t.params.lowestSurface())
}

// GenerateChunk builds the terrain of chunk index.
func (t *Terrain) GenerateChunk(index int) *world.Chunk {
	p := t.params
	c := world.NewChunk(index, p.Width, p.Height)
	for x := 0; x < p.Width; x++ {
		wx := index*p.Width + x
		b := t.BiomeAt(wx)
		def := t.biomes.Get(b)
		row := t.SurfaceRow(wx, def)
		c.SetColumn(x, b, row)
		t.fillColumn(c, x, row, def)
		if x >= p.CaveEdgeMargin && x < p.Width-p.CaveEdgeMargin {
			t.carveCaves(c, x, wx, row, def)
		}
		t.placeOres(c, x, wx, row)
	}
	return c
}

func (t *Terrain) fillColumn(c *world.Chunk, x, row int, def *data.BiomeDef) {
	p := t.params
	for y := row; y < p.Height; y++ {
		var tile world.Tile
		switch {
		case y == p.Height-1:
			tile = world.Bedrock
		case y == row:
			tile = def.Surface
		case y <= row+p.DirtDepth:
			tile = def.Subsurface
		default:
			tile = world.Stone
		}
		c.SetBaseTile(x, y, tile)
	}
}

func (t *Terrain) carveCaves(c *world.Chunk, x, wx, row int, def *data.BiomeDef) {
	floor := t.params.Height - 1 - t.params.BedrockMargin
	for y := row + 3; y < floor; y++ {
		n := t.cave.Octave2D(float64(wx)/caveScaleX, float64(y)/caveScaleY, 3, 0.5)
		if n < def.CaveThreshold {
			c.SetBaseTile(x, y, world.Air)
		}
	}
}

func (t *Terrain) placeOres(c *world.Chunk, x, wx, row int) {
	p := t.params
	span := float64(p.Height - 1 - row)
	for y := row + 1; y < p.Height-1; y++ {
		if c.Tile(x, y) != world.Stone {
			continue
		}
		band := t.layers.At(float64(y-row) / span)
		if ore := band.Pick(mathx.UnitAt(p.Seed, int64(wx), int64(y), mathx.SaltOre)); ore != world.Air {
			c.SetBaseTile(x, y, ore)
		}
	}
}

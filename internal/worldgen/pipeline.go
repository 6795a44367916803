package worldgen

import (
	"fmt"

	"github.com/drifter/server/internal/data"
	"github.com/drifter/server/internal/world"
)

// Pipeline runs the full generation sequence: terrain, water, vegetation,
// structures. It implements world.Generator.
type Pipeline struct {
	params     Params
	terrain    *Terrain
	water      *Water
	vegetation *Vegetation
	structures *Structures
}

// NewPipeline validates p and wires the stages. chance may be nil.
func NewPipeline(p Params, tables *data.Tables, chance ChanceFunc) (*Pipeline, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if tables == nil || tables.Biomes == nil || tables.Layers == nil || tables.Structures == nil {
		return nil, fmt.Errorf("%w: incomplete data tables", world.ErrInvalidConfig)
	}
	return &Pipeline{
		params:     p,
		terrain:    NewTerrain(p, tables.Biomes, tables.Layers),
		water:      NewWater(p, tables.Biomes),
		vegetation: NewVegetation(p, tables.Biomes),
		structures: NewStructures(p, tables.Structures, chance),
	}, nil
}

func (p *Pipeline) Params() Params { return p.params }

func (p *Pipeline) Terrain() *Terrain { return p.terrain }

func (p *Pipeline) Structures() *Structures { return p.structures }

// GenerateChunk produces the sealed baseline of chunk index.
func (p *Pipeline) GenerateChunk(index int) *world.Chunk {
	c := p.terrain.GenerateChunk(index)
	p.water.Decorate(c)
	p.vegetation.Decorate(c)
	p.structures.Decorate(c)
	c.Seal()
	return c
}

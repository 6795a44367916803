package worldgen

import (
	"github.com/drifter/server/internal/data"
	"github.com/drifter/server/internal/mathx"
	"github.com/drifter/server/internal/world"
)

// ChanceFunc adjusts the base placement chance of a structure in a chunk.
// It must be deterministic.
type ChanceFunc func(structure string, biome world.Biome, chunkIndex int, base float64) float64

// Structures places pre-authored footprints.
type Structures struct {
	params Params
	table  *data.StructureTable
	chance ChanceFunc
}

func NewStructures(p Params, table *data.StructureTable, chance ChanceFunc) *Structures {
	return &Structures{params: p, table: table, chance: chance}
}

// TryPlaceStructure places the named structure at (anchorX, anchorY) on g.
//
// For surface structures anchorY is the ground row: the footprint occupies
// the rows directly above it and each column's ground may sit up to
// Tolerance rows lower, the gap filled with the foundation tile. For
// underground structures anchorY is the footprint's top row.
//
// Placement is all-or-nothing: when any rule fails nothing is written and the
// result is false.
func (s *Structures) TryPlaceStructure(g Grid, name string, anchorX, anchorY int) bool {
	def := s.table.Get(name)
	if def == nil {
		return false
	}
	w := def.Width()
	for dx := 0; dx < w; dx++ {
		x := anchorX + dx
		if !g.ContainsColumn(x) {
			return false
		}
		if !def.Allows(g.BiomeAt(x)) || !def.Allows(g.ChunkBiomeAt(x)) {
			return false
		}
	}
	if def.Kind == data.UndergroundStructure {
		return s.placeUnderground(g, def, anchorX, anchorY)
	}
	return s.placeSurface(g, def, anchorX, anchorY)
}

func (s *Structures) placeSurface(g Grid, def *data.StructureDef, ax, ay int) bool {
	w, h := def.Width(), def.Height()
	top := ay - h
	if top < 0 || ay >= g.Height()-1 {
		return false
	}
	grounds := make([]int, w)
	for dx := 0; dx < w; dx++ {
		x := ax + dx
		ground := g.SurfaceAt(x)
		if ground < ay || ground > ay+def.Tolerance || ground >= g.Height() {
			return false
		}
		gt := g.GetTile(x, ground)
		if !gt.Solid() || gt.Structure() {
			return false
		}
		if g.GetVegetation(x).Blocking() {
			return false
		}
		for y := top; y < ay; y++ {
			if g.GetTile(x, y) != world.Air {
				return false
			}
		}
		grounds[dx] = ground
	}

	for dx := 0; dx < w; dx++ {
		x := ax + dx
		for dy := 0; dy < h; dy++ {
			g.SetTile(x, top+dy, def.Cells[dy][dx])
		}
		for y := ay; y < grounds[dx]; y++ {
			g.SetTile(x, y, def.Foundation)
		}
		if g.GetVegetation(x) != world.NoVegetation {
			g.SetVegetation(x, world.NoVegetation)
		}
	}
	return true
}

func (s *Structures) placeUnderground(g Grid, def *data.StructureDef, ax, ay int) bool {
	w, h := def.Width(), def.Height()
	bottom := ay + h - 1
	floor := g.Height() - 1 - s.params.BedrockMargin
	if ay < 0 || bottom >= floor {
		return false
	}
	surface := g.SurfaceAt(ax)
	depth := def.DepthFor(g.BiomeAt(ax))
	if ay < surface+depth.Min || bottom > surface+depth.Max {
		return false
	}
	for dx := 0; dx < w; dx++ {
		for y := ay; y <= bottom; y++ {
			t := g.GetTile(ax+dx, y)
			if t.Liquid() || t == world.Bedrock || t.Structure() {
				return false
			}
		}
	}

	for dx := 0; dx < w; dx++ {
		for dy := 0; dy < h; dy++ {
			g.SetTile(ax+dx, ay+dy, def.Cells[dy][dx])
		}
	}
	return true
}

// Decorate rolls every structure once for the chunk and places those that
// succeed. Results are baseline content.
func (s *Structures) Decorate(c *world.Chunk) {
	g := chunkGrid{c: c}
	seed := s.params.Seed
	idx := int64(c.Index())
	biome := c.Biome()
	for i, def := range s.table.All() {
		if !def.Allows(biome) {
			continue
		}
		chance := def.Chance
		if s.chance != nil {
			chance = s.chance(def.Name, biome, c.Index(), chance)
		}
		if mathx.UnitAt(seed, idx, int64(i), mathx.SaltStructure) >= chance {
			continue
		}
		span := c.Width() - def.Width() + 1
		if span <= 0 {
			continue
		}
		ax := mathx.Intn(seed, idx, int64(i), mathx.SaltStructureAnchor, span)
		ay := g.SurfaceAt(ax)
		if def.Kind == data.UndergroundStructure {
			depth := def.DepthFor(g.BiomeAt(ax))
			room := depth.Max - depth.Min - def.Height() + 2
			ay += depth.Min + mathx.Intn(seed, idx, int64(i), mathx.SaltStructureDepth, room)
		}
		s.TryPlaceStructure(g, def.Name, ax, ay)
	}
}

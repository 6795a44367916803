package data

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/drifter/server/internal/world"
)

// StructureKind selects the placement rules of a structure.
type StructureKind uint8

const (
	SurfaceStructure     StructureKind = iota // sits on the ground
	UndergroundStructure                      // carves its own volume
)

func (k StructureKind) String() string {
	if k == UndergroundStructure {
		return "underground"
	}
	return "surface"
}

// DepthRange bounds an underground structure, in rows below the surface.
type DepthRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// StructureDef is a pre-authored footprint and its placement rules.
type StructureDef struct {
	Name       string
	Kind       StructureKind
	Chance     float64
	Tolerance  int        // surface: allowed ground drop below the anchor row
	Foundation world.Tile // surface: fill between anchor row and lower ground
	Cells      [][]world.Tile

	biomes [world.BiomeCount]bool
	depth  DepthRange
	depths map[world.Biome]DepthRange
}

func (d *StructureDef) Width() int  { return len(d.Cells[0]) }
func (d *StructureDef) Height() int { return len(d.Cells) }

// Allows reports whether the structure may be placed in biome b.
func (d *StructureDef) Allows(b world.Biome) bool {
	return b.Valid() && d.biomes[b]
}

// Biomes lists the allowed biomes.
func (d *StructureDef) Biomes() []world.Biome {
	var out []world.Biome
	for i, ok := range d.biomes {
		if ok {
			out = append(out, world.Biome(i))
		}
	}
	return out
}

// DepthFor returns the underground depth range for biome b.
func (d *StructureDef) DepthFor(b world.Biome) DepthRange {
	if r, ok := d.depths[b]; ok {
		return r
	}
	return d.depth
}

type structureEntry struct {
	Name       string                `yaml:"name"`
	Kind       string                `yaml:"kind"`
	Chance     float64               `yaml:"chance"`
	Tolerance  int                   `yaml:"tolerance"`
	Foundation string                `yaml:"foundation"`
	Biomes     []string              `yaml:"biomes"`
	Depth      DepthRange            `yaml:"depth"`
	BiomeDepth map[string]DepthRange `yaml:"biome_depth"`
	Legend     map[string]string     `yaml:"legend"`
	Rows       []string              `yaml:"rows"`
}

type structureListFile struct {
	Structures []structureEntry `yaml:"structures"`
}

// StructureTable holds the structure catalogue in file order.
type StructureTable struct {
	defs   []*StructureDef
	byName map[string]*StructureDef
}

// LoadStructureTable loads structures.yaml.
func LoadStructureTable(path string) (*StructureTable, error) {
	raw, err := readTable(path, "structures.yaml")
	if err != nil {
		return nil, fmt.Errorf("read structure table: %w", err)
	}
	var f structureListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse structure table: %w", err)
	}
	t := &StructureTable{byName: make(map[string]*StructureDef, len(f.Structures))}
	for _, e := range f.Structures {
		def, err := buildStructure(e)
		if err != nil {
			return nil, fmt.Errorf("structure %s: %w", e.Name, err)
		}
		if _, dup := t.byName[def.Name]; dup {
			return nil, fmt.Errorf("structure %s defined twice", def.Name)
		}
		t.defs = append(t.defs, def)
		t.byName[def.Name] = def
	}
	return t, nil
}

func buildStructure(e structureEntry) (*StructureDef, error) {
	if e.Name == "" {
		return nil, fmt.Errorf("missing name")
	}
	def := &StructureDef{
		Name:      e.Name,
		Chance:    e.Chance,
		Tolerance: e.Tolerance,
		depth:     e.Depth,
		depths:    make(map[world.Biome]DepthRange),
	}
	switch e.Kind {
	case "", "surface":
		def.Kind = SurfaceStructure
	case "underground":
		def.Kind = UndergroundStructure
	default:
		return nil, fmt.Errorf("unknown kind %q", e.Kind)
	}
	if e.Chance < 0 || e.Chance > 1 {
		return nil, fmt.Errorf("chance %.3f outside [0,1]", e.Chance)
	}

	def.Foundation = world.Dirt
	if e.Foundation != "" {
		tile, err := world.ParseTile(e.Foundation)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTile, e.Foundation)
		}
		def.Foundation = tile
	}

	if len(e.Biomes) == 0 {
		return nil, fmt.Errorf("empty biome list")
	}
	for _, name := range e.Biomes {
		b, err := world.ParseBiome(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownBiome, name)
		}
		def.biomes[b] = true
	}
	for name, r := range e.BiomeDepth {
		b, err := world.ParseBiome(name)
		if err != nil {
			return nil, fmt.Errorf("depth override: %w: %q", ErrUnknownBiome, name)
		}
		def.depths[b] = r
	}

	legend := make(map[rune]world.Tile, len(e.Legend))
	for k, v := range e.Legend {
		r := []rune(k)
		if len(r) != 1 {
			return nil, fmt.Errorf("legend key %q is not a single character", k)
		}
		tile, err := world.ParseTile(v)
		if err != nil {
			return nil, fmt.Errorf("legend %q: %w: %q", k, ErrUnknownTile, v)
		}
		if tile == world.Air {
			return nil, fmt.Errorf("legend %q maps to air", k)
		}
		legend[r[0]] = tile
	}

	if len(e.Rows) == 0 {
		return nil, fmt.Errorf("empty footprint")
	}
	width := len([]rune(e.Rows[0]))
	if width == 0 {
		return nil, fmt.Errorf("empty footprint")
	}
	for y, row := range e.Rows {
		runes := []rune(row)
		if len(runes) != width {
			return nil, fmt.Errorf("row %d has width %d, want %d", y, len(runes), width)
		}
		cells := make([]world.Tile, width)
		for x, r := range runes {
			tile, ok := legend[r]
			if !ok {
				return nil, fmt.Errorf("row %d: character %q not in legend", y, r)
			}
			cells[x] = tile
		}
		def.Cells = append(def.Cells, cells)
	}

	if def.Kind == UndergroundStructure {
		ranges := []DepthRange{def.depth}
		for _, r := range def.depths {
			ranges = append(ranges, r)
		}
		for _, r := range ranges {
			if r.Min < 1 || r.Max-r.Min+1 < def.Height() {
				return nil, fmt.Errorf("depth range [%d,%d] cannot hold height %d", r.Min, r.Max, def.Height())
			}
		}
	}
	return def, nil
}

// Get returns the structure by name, or nil.
func (t *StructureTable) Get(name string) *StructureDef {
	return t.byName[name]
}

// All returns the structures in file order.
func (t *StructureTable) All() []*StructureDef {
	return t.defs
}

// Names returns the structure names sorted.
func (t *StructureTable) Names() []string {
	out := make([]string, 0, len(t.defs))
	for _, d := range t.defs {
		out = append(out, d.Name)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of structures loaded.
func (t *StructureTable) Count() int {
	return len(t.defs)
}

package data

import (
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/drifter/server/internal/world"
)

// FloraWeight is one weighted entry of a biome's vegetation table.
type FloraWeight struct {
	Kind   world.Vegetation
	Weight int
}

// BiomeDef holds the generation parameters of one biome.
type BiomeDef struct {
	Biome             world.Biome
	DisplayName       string
	Surface           world.Tile
	Subsurface        world.Tile
	WaterBed          world.Tile
	Amplitude         float64 // surface height variation in rows
	Offset            int     // added to the configured surface level
	CaveThreshold     float64 // cave noise below this is carved
	VegetationDensity float64
	Flora             []FloraWeight
	Rivers            bool
	LakeThreshold     float64 // 0 disables lakes
	Shoreline         bool    // ocean zones may form

	floraTotal int
}

// PickFlora maps u in [0,1) onto the weighted flora table.
func (d *BiomeDef) PickFlora(u float64) world.Vegetation {
	if d.floraTotal == 0 {
		return world.NoVegetation
	}
	target := int(u * float64(d.floraTotal))
	for _, f := range d.Flora {
		if target < f.Weight {
			return f.Kind
		}
		target -= f.Weight
	}
	return d.Flora[len(d.Flora)-1].Kind
}

type biomeEntry struct {
	Name              string  `yaml:"name"`
	Surface           string  `yaml:"surface"`
	Subsurface        string  `yaml:"subsurface"`
	WaterBed          string  `yaml:"water_bed"`
	Amplitude         float64 `yaml:"amplitude"`
	Offset            int     `yaml:"offset"`
	CaveThreshold     float64 `yaml:"cave_threshold"`
	VegetationDensity float64 `yaml:"vegetation_density"`
	Flora             []struct {
		Kind   string `yaml:"kind"`
		Weight int    `yaml:"weight"`
	} `yaml:"flora"`
	Rivers        bool    `yaml:"rivers"`
	LakeThreshold float64 `yaml:"lake_threshold"`
	Shoreline     bool    `yaml:"shoreline"`
}

type biomeListFile struct {
	Biomes []biomeEntry `yaml:"biomes"`
}

// BiomeTable indexes biome parameters by world.Biome.
type BiomeTable struct {
	defs [world.BiomeCount]*BiomeDef
}

// LoadBiomeTable loads biomes.yaml. Every biome must be defined exactly once.
func LoadBiomeTable(path string) (*BiomeTable, error) {
	raw, err := readTable(path, "biomes.yaml")
	if err != nil {
		return nil, fmt.Errorf("read biome table: %w", err)
	}
	var f biomeListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse biome table: %w", err)
	}
	title := cases.Title(language.English)
	t := &BiomeTable{}
	for _, e := range f.Biomes {
		b, err := world.ParseBiome(e.Name)
		if err != nil {
			return nil, fmt.Errorf("biome table: %w: %q", ErrUnknownBiome, e.Name)
		}
		if t.defs[b] != nil {
			return nil, fmt.Errorf("biome table: %s defined twice", e.Name)
		}
		def := &BiomeDef{
			Biome:             b,
			DisplayName:       title.String(e.Name),
			Amplitude:         e.Amplitude,
			Offset:            e.Offset,
			CaveThreshold:     e.CaveThreshold,
			VegetationDensity: e.VegetationDensity,
			Rivers:            e.Rivers,
			LakeThreshold:     e.LakeThreshold,
			Shoreline:         e.Shoreline,
		}
		for _, ref := range []struct {
			name string
			dst  *world.Tile
		}{
			{e.Surface, &def.Surface},
			{e.Subsurface, &def.Subsurface},
			{e.WaterBed, &def.WaterBed},
		} {
			tile, err := world.ParseTile(ref.name)
			if err != nil {
				return nil, fmt.Errorf("biome %s: %w: %q", e.Name, ErrUnknownTile, ref.name)
			}
			*ref.dst = tile
		}
		for _, fl := range e.Flora {
			v, err := world.ParseVegetation(fl.Kind)
			if err != nil {
				return nil, fmt.Errorf("biome %s flora: %w", e.Name, err)
			}
			if fl.Weight <= 0 {
				continue
			}
			def.Flora = append(def.Flora, FloraWeight{Kind: v, Weight: fl.Weight})
			def.floraTotal += fl.Weight
		}
		t.defs[b] = def
	}
	for i, d := range t.defs {
		if d == nil {
			return nil, fmt.Errorf("biome table: %s missing", world.Biome(i))
		}
	}
	return t, nil
}

// Get returns the parameters of b. Invalid biomes fall back to plains.
func (t *BiomeTable) Get(b world.Biome) *BiomeDef {
	if !b.Valid() {
		return t.defs[world.Plains]
	}
	return t.defs[b]
}

// Count returns the number of biomes loaded.
func (t *BiomeTable) Count() int {
	return len(t.defs)
}

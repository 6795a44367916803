package data

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/drifter/server/internal/world"
)

// LayerBands is the number of depth bands between surface and bedrock.
const LayerBands = 4

// OreChance is the per-cell probability of one ore within a band.
type OreChance struct {
	Tile   world.Tile
	Chance float64
}

// Layer is one underground depth band. Until is the fraction of the
// surface-to-bedrock distance at which the band ends.
type Layer struct {
	Name  string
	Until float64
	Ores  []OreChance
}

// Pick maps u in [0,1) onto the cumulative ore table; Air means no ore.
func (l *Layer) Pick(u float64) world.Tile {
	acc := 0.0
	for _, o := range l.Ores {
		acc += o.Chance
		if u < acc {
			return o.Tile
		}
	}
	return world.Air
}

type layerListFile struct {
	Layers []struct {
		Name  string  `yaml:"name"`
		Until float64 `yaml:"until"`
		Ores  []struct {
			Tile   string  `yaml:"tile"`
			Chance float64 `yaml:"chance"`
		} `yaml:"ores"`
	} `yaml:"layers"`
}

// LayerTable is the underground layer profile, ordered top to bottom.
type LayerTable struct {
	layers []Layer
}

// LoadLayerTable loads layers.yaml.
func LoadLayerTable(path string) (*LayerTable, error) {
	raw, err := readTable(path, "layers.yaml")
	if err != nil {
		return nil, fmt.Errorf("read layer table: %w", err)
	}
	var f layerListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse layer table: %w", err)
	}
	if len(f.Layers) != LayerBands {
		return nil, fmt.Errorf("layer table: %d bands, want %d", len(f.Layers), LayerBands)
	}
	t := &LayerTable{}
	prev := 0.0
	for _, e := range f.Layers {
		if e.Until <= prev || e.Until > 1 {
			return nil, fmt.Errorf("layer %s: until %.2f not in (%.2f, 1]", e.Name, e.Until, prev)
		}
		prev = e.Until
		l := Layer{Name: e.Name, Until: e.Until}
		total := 0.0
		for _, o := range e.Ores {
			tile, err := world.ParseTile(o.Tile)
			if err != nil {
				return nil, fmt.Errorf("layer %s: %w: %q", e.Name, ErrUnknownTile, o.Tile)
			}
			if !tile.Ore() {
				return nil, fmt.Errorf("layer %s: %s is not an ore", e.Name, tile)
			}
			total += o.Chance
			l.Ores = append(l.Ores, OreChance{Tile: tile, Chance: o.Chance})
		}
		if total > 1 {
			return nil, fmt.Errorf("layer %s: ore chances sum to %.2f", e.Name, total)
		}
		t.layers = append(t.layers, l)
	}
	if prev != 1 {
		return nil, fmt.Errorf("layer table: last band ends at %.2f, want 1", prev)
	}
	return t, nil
}

// At returns the band containing depth fraction f (0 = surface, 1 = bedrock).
func (t *LayerTable) At(f float64) *Layer {
	for i := range t.layers {
		if f <= t.layers[i].Until {
			return &t.layers[i]
		}
	}
	return &t.layers[len(t.layers)-1]
}

// Count returns the number of bands.
func (t *LayerTable) Count() int {
	return len(t.layers)
}

// Package data loads the world-generation tables: biome parameters, the
// underground layer profile and structure footprints. Defaults are embedded;
// each table can be overridden by a file path.
package data

import (
	"embed"
	"errors"
	"fmt"
	"os"
)

//go:embed yaml/*.yaml
var defaults embed.FS

var (
	ErrUnknownBiome = errors.New("unknown biome")
	ErrUnknownTile  = errors.New("unknown tile")
)

// Tables bundles everything the generation pipeline reads.
type Tables struct {
	Biomes     *BiomeTable
	Layers     *LayerTable
	Structures *StructureTable
}

// Paths selects override files. Empty fields use the embedded defaults.
type Paths struct {
	Biomes     string
	Layers     string
	Structures string
}

// LoadTables loads all three tables.
func LoadTables(p Paths) (*Tables, error) {
	biomes, err := LoadBiomeTable(p.Biomes)
	if err != nil {
		return nil, err
	}
	layers, err := LoadLayerTable(p.Layers)
	if err != nil {
		return nil, err
	}
	structures, err := LoadStructureTable(p.Structures)
	if err != nil {
		return nil, err
	}
	return &Tables{Biomes: biomes, Layers: layers, Structures: structures}, nil
}

// DefaultTables returns the embedded tables. It panics if they are broken,
// which only a bad build can cause.
func DefaultTables() *Tables {
	t, err := LoadTables(Paths{})
	if err != nil {
		panic(fmt.Sprintf("embedded world tables: %v", err))
	}
	return t
}

func readTable(path, fallback string) ([]byte, error) {
	if path == "" {
		return defaults.ReadFile("yaml/" + fallback)
	}
	return os.ReadFile(path)
}

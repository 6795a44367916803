package main

import (
	"encoding/hex"
	"strings"

	"github.com/drifter/server/internal/world"
)

var tileGlyphs = map[world.Tile]byte{
	world.Air:        ' ',
	world.Grass:      '"',
	world.Dirt:       '.',
	world.Stone:      '#',
	world.Bedrock:    '=',
	world.Sand:       ':',
	world.Snow:       '*',
	world.Mud:        ',',
	world.Gravel:     ';',
	world.Clay:       '%',
	world.CoalOre:    'c',
	world.IronOre:    'i',
	world.GoldOre:    'g',
	world.CrystalOre: 'x',
	world.Water:      '~',
	world.Plank:      'P',
	world.Brick:      'B',
	world.CryptStone: 'C',
	world.Timber:     'T',
	world.Backdrop:   '-',
}

var vegetationGlyphs = map[world.Vegetation]byte{
	world.TallGrass:  'w',
	world.Flower:     'f',
	world.Bush:       'b',
	world.Reed:       'r',
	world.Cactus:     'k',
	world.Mushroom:   'm',
	world.Oak:        'O',
	world.Pine:       'A',
	world.Palm:       'Y',
	world.JungleTree: 'J',
}

// renderChunk draws one line per row. Vegetation is drawn in the air cell
// directly above the column's first non-air tile.
func renderChunk(c *world.Chunk) string {
	w, h := c.Width(), c.Height()
	grid := make([][]byte, h)
	for y := 0; y < h; y++ {
		row := make([]byte, w)
		for x := 0; x < w; x++ {
			g, ok := tileGlyphs[c.Tile(x, y)]
			if !ok {
				g = '?'
			}
			row[x] = g
		}
		grid[y] = row
	}
	for x := 0; x < w; x++ {
		v := c.Vegetation(x)
		if v == world.NoVegetation {
			continue
		}
		if top := c.FirstNonAir(x); top > 0 {
			grid[top-1][x] = vegetationGlyphs[v]
		}
	}

	var sb strings.Builder
	for _, row := range grid {
		sb.Write(row)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// ChunkSummary is the YAML view of a generated chunk.
type ChunkSummary struct {
	Index      int            `yaml:"index"`
	Biome      string         `yaml:"biome"`
	Digest     string         `yaml:"digest"`
	Surface    []int          `yaml:"surface,flow"`
	Tiles      map[string]int `yaml:"tiles"`
	Vegetation map[string]int `yaml:"vegetation,omitempty"`
}

func summarise(c *world.Chunk) ChunkSummary {
	digest := c.Digest()
	s := ChunkSummary{
		Index:  c.Index(),
		Biome:  c.Biome().String(),
		Digest: hex.EncodeToString(digest[:8]),
		Tiles:  make(map[string]int),
	}
	for x := 0; x < c.Width(); x++ {
		s.Surface = append(s.Surface, c.SurfaceRow(x))
		for y := 0; y < c.Height(); y++ {
			if t := c.Tile(x, y); t != world.Air {
				s.Tiles[t.String()]++
			}
		}
		if v := c.Vegetation(x); v != world.NoVegetation {
			if s.Vegetation == nil {
				s.Vegetation = make(map[string]int)
			}
			s.Vegetation[v.String()]++
		}
	}
	return s
}

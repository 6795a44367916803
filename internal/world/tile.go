package world

import "fmt"

// Tile is the material of one grid cell.
type Tile uint8

const (
	Air Tile = iota
	Grass
	Dirt
	Stone
	Bedrock
	Sand
	Snow
	Mud
	Gravel
	Clay
	CoalOre
	IronOre
	GoldOre
	CrystalOre
	Water
	Plank
	Brick
	CryptStone
	Timber
	Backdrop // structure interior; not solid, but occupied
	tileCount
)

var tileNames = [tileCount]string{
	Air:        "air",
	Grass:      "grass",
	Dirt:       "dirt",
	Stone:      "stone",
	Bedrock:    "bedrock",
	Sand:       "sand",
	Snow:       "snow",
	Mud:        "mud",
	Gravel:     "gravel",
	Clay:       "clay",
	CoalOre:    "coal_ore",
	IronOre:    "iron_ore",
	GoldOre:    "gold_ore",
	CrystalOre: "crystal_ore",
	Water:      "water",
	Plank:      "plank",
	Brick:      "brick",
	CryptStone: "crypt_stone",
	Timber:     "timber",
	Backdrop:   "backdrop",
}

// TileCount is the number of defined tile codes.
const TileCount = int(tileCount)

func (t Tile) Valid() bool { return t < tileCount }

func (t Tile) String() string {
	if !t.Valid() {
		return fmt.Sprintf("tile(%d)", uint8(t))
	}
	return tileNames[t]
}

// Solid reports whether the tile blocks movement and can carry a structure.
func (t Tile) Solid() bool {
	switch t {
	case Air, Water, Backdrop:
		return false
	}
	return t.Valid()
}

// Structure reports whether the tile only appears as part of a placed structure.
func (t Tile) Structure() bool {
	switch t {
	case Plank, Brick, CryptStone, Timber, Backdrop:
		return true
	}
	return false
}

func (t Tile) Liquid() bool { return t == Water }

// Ore reports whether the tile is one of the underground ore deposits.
func (t Tile) Ore() bool {
	return t >= CoalOre && t <= CrystalOre
}

// ParseTile resolves a tile by its lowercase name.
func ParseTile(name string) (Tile, error) {
	for i, n := range tileNames {
		if n == name {
			return Tile(i), nil
		}
	}
	return Air, fmt.Errorf("unknown tile %q", name)
}

// Vegetation is the decoration overlay drawn on top of a column's surface.
type Vegetation uint8

const (
	NoVegetation Vegetation = iota
	TallGrass
	Flower
	Bush
	Reed
	Cactus
	Mushroom
	Oak
	Pine
	Palm
	JungleTree
	vegetationCount
)

var vegetationNames = [vegetationCount]string{
	NoVegetation: "none",
	TallGrass:    "tall_grass",
	Flower:       "flower",
	Bush:         "bush",
	Reed:         "reed",
	Cactus:       "cactus",
	Mushroom:     "mushroom",
	Oak:          "oak",
	Pine:         "pine",
	Palm:         "palm",
	JungleTree:   "jungle_tree",
}

func (v Vegetation) Valid() bool { return v < vegetationCount }

func (v Vegetation) String() string {
	if !v.Valid() {
		return fmt.Sprintf("vegetation(%d)", uint8(v))
	}
	return vegetationNames[v]
}

// Blocking reports whether the vegetation occupies its column for building.
func (v Vegetation) Blocking() bool {
	switch v {
	case Cactus, Oak, Pine, Palm, JungleTree:
		return true
	}
	return false
}

func ParseVegetation(name string) (Vegetation, error) {
	for i, n := range vegetationNames {
		if n == name {
			return Vegetation(i), nil
		}
	}
	return NoVegetation, fmt.Errorf("unknown vegetation %q", name)
}

// Biome is the per-column climate classification.
type Biome uint8

const (
	Plains Biome = iota
	Forest
	Desert
	Tundra
	Swamp
	Mountains
	Jungle
	Ocean
	biomeCount
)

// BiomeCount is the number of biomes the classifier can produce.
const BiomeCount = int(biomeCount)

var biomeNames = [biomeCount]string{
	Plains:    "plains",
	Forest:    "forest",
	Desert:    "desert",
	Tundra:    "tundra",
	Swamp:     "swamp",
	Mountains: "mountains",
	Jungle:    "jungle",
	Ocean:     "ocean",
}

func (b Biome) Valid() bool { return b < biomeCount }

func (b Biome) String() string {
	if !b.Valid() {
		return fmt.Sprintf("biome(%d)", uint8(b))
	}
	return biomeNames[b]
}

func ParseBiome(name string) (Biome, error) {
	for i, n := range biomeNames {
		if n == name {
			return Biome(i), nil
		}
	}
	return Plains, fmt.Errorf("unknown biome %q", name)
}

package world

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// Chunk is a fixed-width vertical slice of the world. Cells are stored
// row-major; row 0 is the top.
//
// Two kinds of writes exist. Baseline writes (SetBaseTile, SetBaseVegetation)
// come from the generator and are reproducible from the seed. Edits (SetTile,
// SetVegetation) come from gameplay; they flip IsModified for good and are
// tracked against the baseline so Diff stays proportional to the edit count.
type Chunk struct {
	index  int
	width  int
	height int

	mu         sync.RWMutex
	tiles      []Tile
	vegetation map[int]Vegetation
	biomes     []Biome
	surface    []int
	baseline   [32]byte
	sealed     bool

	modified  bool
	revision  uint64
	saved     uint64
	tileEdits map[LocalCoord]Tile
	tileBase  map[LocalCoord]Tile
	vegEdits  map[int]Vegetation
	vegBase   map[int]Vegetation
}

// NewChunk allocates an all-Air chunk.
func NewChunk(index, width, height int) *Chunk {
	return &Chunk{
		index:      index,
		width:      width,
		height:     height,
		tiles:      make([]Tile, width*height),
		vegetation: make(map[int]Vegetation),
		biomes:     make([]Biome, width),
		surface:    make([]int, width),
		tileEdits:  make(map[LocalCoord]Tile),
		tileBase:   make(map[LocalCoord]Tile),
		vegEdits:   make(map[int]Vegetation),
		vegBase:    make(map[int]Vegetation),
	}
}

func (c *Chunk) Index() int  { return c.index }
func (c *Chunk) Width() int  { return c.width }
func (c *Chunk) Height() int { return c.height }

func (c *Chunk) inBounds(x, y int) bool {
	return x >= 0 && x < c.width && y >= 0 && y < c.height
}

func (c *Chunk) column(x int) bool { return x >= 0 && x < c.width }

// Tile returns the cell at local coordinates, or Air outside the chunk.
func (c *Chunk) Tile(x, y int) Tile {
	if !c.inBounds(x, y) {
		return Air
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tiles[y*c.width+x]
}

// Vegetation returns the overlay on column x, or NoVegetation.
func (c *Chunk) Vegetation(x int) Vegetation {
	if !c.column(x) {
		return NoVegetation
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vegetation[x]
}

// ColumnBiome is the biome assigned to column x at generation.
func (c *Chunk) ColumnBiome(x int) Biome {
	if !c.column(x) {
		return Plains
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.biomes[x]
}

// SurfaceRow is the generated ground row of column x.
func (c *Chunk) SurfaceRow(x int) int {
	if !c.column(x) {
		return c.height - 1
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.surface[x]
}

// Biome is the dominant column biome. Ties go to the lower biome id.
func (c *Chunk) Biome() Biome {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var counts [biomeCount]int
	for _, b := range c.biomes {
		if b.Valid() {
			counts[b]++
		}
	}
	best := Plains
	for b := range counts {
		if counts[b] > counts[best] {
			best = Biome(b)
		}
	}
	return best
}

// FirstNonAir scans column x from the top and returns the first occupied
// row, or Height() when the column is empty.
func (c *Chunk) FirstNonAir(x int) int {
	if !c.column(x) {
		return c.height
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for y := 0; y < c.height; y++ {
		if c.tiles[y*c.width+x] != Air {
			return y
		}
	}
	return c.height
}

// SetColumn records generator metadata for column x.
func (c *Chunk) SetColumn(x int, biome Biome, surface int) {
	if !c.column(x) {
		return
	}
	c.mu.Lock()
	c.biomes[x] = biome
	c.surface[x] = surface
	c.mu.Unlock()
}

// SetBaseTile writes generator output. It does not affect IsModified.
func (c *Chunk) SetBaseTile(x, y int, t Tile) bool {
	if !c.inBounds(x, y) || !t.Valid() {
		return false
	}
	c.mu.Lock()
	c.tiles[y*c.width+x] = t
	c.mu.Unlock()
	return true
}

// SetBaseVegetation writes generator output. It does not affect IsModified.
func (c *Chunk) SetBaseVegetation(x int, v Vegetation) bool {
	if !c.column(x) || !v.Valid() {
		return false
	}
	c.mu.Lock()
	if v == NoVegetation {
		delete(c.vegetation, x)
	} else {
		c.vegetation[x] = v
	}
	c.mu.Unlock()
	return true
}

// Seal records the baseline digest once generation has finished.
func (c *Chunk) Seal() {
	d := c.Digest()
	c.mu.Lock()
	c.baseline = d
	c.sealed = true
	c.mu.Unlock()
}

// BaselineDigest is the digest captured by Seal.
func (c *Chunk) BaselineDigest() [32]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseline
}

// SetTile applies a gameplay edit. Out-of-range coordinates and unknown tiles
// are ignored and report false.
func (c *Chunk) SetTile(x, y int, t Tile) bool {
	if !c.inBounds(x, y) || !t.Valid() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setTileLocked(x, y, t)
	return true
}

func (c *Chunk) setTileLocked(x, y int, t Tile) {
	i := y*c.width + x
	key := LocalCoord{X: x, Y: y}
	base, seen := c.tileBase[key]
	if !seen {
		base = c.tiles[i]
		c.tileBase[key] = base
	}
	if t == base {
		delete(c.tileEdits, key)
		delete(c.tileBase, key)
	} else {
		c.tileEdits[key] = t
	}
	c.tiles[i] = t
	c.modified = true
	c.revision++
}

// SetVegetation applies a gameplay edit to the overlay of column x.
func (c *Chunk) SetVegetation(x int, v Vegetation) bool {
	if !c.column(x) || !v.Valid() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setVegetationLocked(x, v)
	return true
}

func (c *Chunk) setVegetationLocked(x int, v Vegetation) {
	base, seen := c.vegBase[x]
	if !seen {
		base = c.vegetation[x]
		c.vegBase[x] = base
	}
	if v == base {
		delete(c.vegEdits, x)
		delete(c.vegBase, x)
	} else {
		c.vegEdits[x] = v
	}
	if v == NoVegetation {
		delete(c.vegetation, x)
	} else {
		c.vegetation[x] = v
	}
	c.modified = true
	c.revision++
}

// IsModified reports whether the chunk was ever edited after generation.
// It never reverts to false, even if every edit was undone.
func (c *Chunk) IsModified() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.modified
}

// Revision increases with every edit.
func (c *Chunk) Revision() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.revision
}

// NeedsSave reports edits newer than the last MarkSaved.
func (c *Chunk) NeedsSave() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.modified && c.revision != c.saved
}

// MarkSaved records that the state at revision rev has been persisted.
func (c *Chunk) MarkSaved(rev uint64) {
	c.mu.Lock()
	if rev > c.saved {
		c.saved = rev
	}
	c.mu.Unlock()
}

// Diff returns the edits that differ from the baseline.
func (c *Chunk) Diff() *Diff {
	d, _ := c.DiffAt()
	return d
}

// DiffAt returns the diff together with the revision it reflects.
func (c *Chunk) DiffAt() (*Diff, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d := NewDiff(c.index)
	for k, v := range c.tileEdits {
		d.Tiles[k] = v
	}
	for k, v := range c.vegEdits {
		d.Vegetation[k] = v
	}
	d.Baseline = c.baseline
	return d, c.revision
}

// SkippedEdit describes a diff entry ApplyDiff could not apply.
type SkippedEdit struct {
	X, Y   int // Y is -1 for vegetation entries
	Reason string
}

// ReplayReport summarises an ApplyDiff call.
type ReplayReport struct {
	Applied          int
	Skipped          []SkippedEdit
	BaselineMismatch bool
}

// ApplyDiff replays stored edits onto a freshly generated chunk. Entries that
// fall outside the chunk or carry unknown codes are skipped; the rest apply.
// A stored diff marks the chunk modified even when empty; the replayed state
// counts as already saved.
func (c *Chunk) ApplyDiff(d *Diff) ReplayReport {
	var rep ReplayReport
	if d == nil {
		return rep
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero [32]byte
	if c.sealed && d.Baseline != zero && d.Baseline != c.baseline {
		rep.BaselineMismatch = true
	}
	for _, k := range d.SortedTiles() {
		t := d.Tiles[k]
		switch {
		case !c.inBounds(k.X, k.Y):
			rep.Skipped = append(rep.Skipped, SkippedEdit{X: k.X, Y: k.Y, Reason: "out of range"})
		case !t.Valid():
			rep.Skipped = append(rep.Skipped, SkippedEdit{X: k.X, Y: k.Y, Reason: fmt.Sprintf("unknown tile code %d", uint8(t))})
		default:
			c.setTileLocked(k.X, k.Y, t)
			rep.Applied++
		}
	}
	for _, x := range d.SortedColumns() {
		v := d.Vegetation[x]
		switch {
		case !c.column(x):
			rep.Skipped = append(rep.Skipped, SkippedEdit{X: x, Y: -1, Reason: "out of range"})
		case !v.Valid():
			rep.Skipped = append(rep.Skipped, SkippedEdit{X: x, Y: -1, Reason: fmt.Sprintf("unknown vegetation code %d", uint8(v))})
		default:
			c.setVegetationLocked(x, v)
			rep.Applied++
		}
	}
	c.modified = true
	c.saved = c.revision
	return rep
}

// VegetationColumns returns the decorated columns in ascending order.
func (c *Chunk) VegetationColumns() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cols := make([]int, 0, len(c.vegetation))
	for x := range c.vegetation {
		cols = append(cols, x)
	}
	sort.Ints(cols)
	return cols
}

// Digest is a blake2b-256 hash over tiles and vegetation.
func (c *Chunk) Digest() [32]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, _ := blake2b.New256(nil)
	buf := make([]byte, len(c.tiles))
	for i, t := range c.tiles {
		buf[i] = byte(t)
	}
	h.Write(buf)

	cols := make([]int, 0, len(c.vegetation))
	for x := range c.vegetation {
		cols = append(cols, x)
	}
	sort.Ints(cols)
	var rec [5]byte
	for _, x := range cols {
		binary.LittleEndian.PutUint32(rec[:4], uint32(x))
		rec[4] = byte(c.vegetation[x])
		h.Write(rec[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

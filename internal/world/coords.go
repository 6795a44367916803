package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/drifter/server/internal/mathx"
)

// Layout translates between continuous world positions, global tile
// coordinates and (chunk, local) addresses.
type Layout struct {
	Width     int     // tiles per chunk, horizontally
	Height    int     // tiles per chunk, vertically (rows, 0 = top)
	BlockSize float64 // world units per tile
}

// TileOf maps a continuous coordinate to the tile containing it.
func (l Layout) TileOf(pos float64) int {
	return int(math.Floor(pos / l.BlockSize))
}

// TileAt maps a world position to its tile column and row.
func (l Layout) TileAt(pos mgl64.Vec2) (x, y int) {
	return l.TileOf(pos.X()), l.TileOf(pos.Y())
}

// TileOrigin is the world position of the tile's top-left corner.
func (l Layout) TileOrigin(x, y int) mgl64.Vec2 {
	return mgl64.Vec2{float64(x), float64(y)}.Mul(l.BlockSize)
}

// TileCenter is the world position of the middle of the tile.
func (l Layout) TileCenter(x, y int) mgl64.Vec2 {
	return l.TileOrigin(x, y).Add(mgl64.Vec2{0.5, 0.5}.Mul(l.BlockSize))
}

// ChunkOf returns the chunk index owning the world tile column.
func (l Layout) ChunkOf(tileX int) int {
	return mathx.FloorDiv(tileX, l.Width)
}

// LocalX returns the column inside its chunk.
func (l Layout) LocalX(tileX int) int {
	return mathx.FloorMod(tileX, l.Width)
}

// WorldX is the inverse of (ChunkOf, LocalX).
func (l Layout) WorldX(chunk, localX int) int {
	return chunk*l.Width + localX
}

// ChunkAtPosition returns the chunk index under a continuous x coordinate.
func (l Layout) ChunkAtPosition(x float64) int {
	return l.ChunkOf(l.TileOf(x))
}

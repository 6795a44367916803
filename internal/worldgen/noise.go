// Package worldgen produces chunk baselines from the world seed: terrain,
// water, vegetation and structures. Every stage is a pure function of
// (seed, position), so any chunk can be generated in isolation.
package worldgen

import (
	"math"

	"github.com/drifter/server/internal/mathx"
)

// Noise is value noise over a hashed integer lattice.
type Noise struct {
	seed int64
	salt uint64
}

func NewNoise(seed int64, salt uint64) Noise {
	return Noise{seed: seed, salt: salt}
}

func (n Noise) lattice(x, y int64, octave int) float64 {
	return mathx.UnitAt(n.seed, x, y, n.salt+uint64(octave)<<32)
}

func (n Noise) value(x, y float64, octave int) float64 {
	x0 := math.Floor(x)
	y0 := math.Floor(y)
	ix, iy := int64(x0), int64(y0)
	tx := mathx.Smoothstep(x - x0)
	ty := mathx.Smoothstep(y - y0)

	a := n.lattice(ix, iy, octave)
	b := n.lattice(ix+1, iy, octave)
	c := n.lattice(ix, iy+1, octave)
	d := n.lattice(ix+1, iy+1, octave)
	return mathx.Lerp(mathx.Lerp(a, b, tx), mathx.Lerp(c, d, tx), ty)
}

// Value2D samples one octave in [0, 1).
func (n Noise) Value2D(x, y float64) float64 {
	return n.value(x, y, 0)
}

// Octave2D sums octaves of value noise, normalized back to [0, 1).
func (n Noise) Octave2D(x, y float64, octaves int, persistence float64) float64 {
	if octaves < 1 {
		octaves = 1
	}
	total, amp, freq, norm := 0.0, 1.0, 1.0, 0.0
	for i := 0; i < octaves; i++ {
		total += n.value(x*freq, y*freq, i) * amp
		norm += amp
		amp *= persistence
		freq *= 2
	}
	return total / norm
}

// Octave1D samples a horizontal line of the 2D field.
func (n Noise) Octave1D(x float64, octaves int, persistence float64) float64 {
	return n.Octave2D(x, 0.5, octaves, persistence)
}

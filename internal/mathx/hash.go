// Package mathx holds the positional hashing every generator stage draws its
// randomness from. There is no shared RNG: a value is a pure function of
// (seed, x, y, salt), so chunks can be generated in any order on any worker.
package mathx

// Salts separate independent random streams that would otherwise hash the
// same coordinates.
const (
	SaltTemperature uint64 = 0x1000 + iota
	SaltMoisture
	SaltHeight
	SaltCave
	SaltOre
	SaltVegetation
	SaltFloraDensity
	SaltRiver
	SaltLake
	SaltOcean
	SaltStructure
	SaltStructureAnchor
	SaltStructureDepth
)

const (
	golden = 0x9E3779B97F4A7C15
	primeX = 0xC2B2AE3D27D4EB4F
	primeY = 0x165667B19E3779F9
)

// mix is the SplitMix64 finalizer.
func mix(z uint64) uint64 {
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

// Hash returns a well-distributed 64-bit value for the given seed, lattice
// position and stream salt.
func Hash(seed int64, x, y int64, salt uint64) uint64 {
	h := mix(uint64(seed) + golden)
	h = mix(h ^ (uint64(x) * primeX))
	h = mix(h ^ (uint64(y) * primeY))
	return mix(h ^ (salt * golden))
}

// Unit maps a hash to [0, 1) using its top 53 bits.
func Unit(h uint64) float64 {
	return float64(h>>11) / (1 << 53)
}

// UnitAt is Unit(Hash(seed, x, y, salt)).
func UnitAt(seed int64, x, y int64, salt uint64) float64 {
	return Unit(Hash(seed, x, y, salt))
}

// Intn returns a hash-derived value in [0, n). n <= 0 yields 0.
func Intn(seed int64, x, y int64, salt uint64, n int) int {
	if n <= 0 {
		return 0
	}
	return int(Hash(seed, x, y, salt) % uint64(n))
}

// FloorDiv divides rounding toward negative infinity.
func FloorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// FloorMod is the non-negative remainder matching FloorDiv.
func FloorMod(a, b int) int {
	m := a % b
	if m != 0 && ((m < 0) != (b < 0)) {
		m += b
	}
	return m
}

// Smoothstep is the cubic fade used for lattice interpolation.
func Smoothstep(t float64) float64 {
	return t * t * (3 - 2*t)
}

// Lerp interpolates between a and b.
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

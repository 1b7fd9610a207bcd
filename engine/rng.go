package engine

import "math/rand"

// RNG wraps math/rand.Rand with deterministic position tracking.
// Every public method consumes exactly one draw from the underlying
// source, so a saved (seed, position) pair replays to the exact stream.
type RNG struct {
	seed int64
	src  *rand.Rand
	pos  int64
}

// NewRNG creates a new deterministic RNG from a seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		seed: seed,
		src:  rand.New(rand.NewSource(seed)),
	}
}

func (r *RNG) next() int64 {
	r.pos++
	return r.src.Int63()
}

// Float64 returns a value in [0, 1).
func (r *RNG) Float64() float64 {
	return float64(r.next()>>11) / (1 << 52)
}

// IntRange returns a random integer in [lo, hi]. A degenerate range
// returns lo.
func (r *RNG) IntRange(lo, hi int) int {
	if hi <= lo {
		r.next()
		return lo
	}
	span := int64(hi - lo + 1)
	return lo + int(r.next()%span)
}

// Roll returns a random integer in [1, sides].
func (r *RNG) Roll(sides int) int {
	return r.IntRange(1, sides)
}

// Seed returns the seed the RNG was created with.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Position returns the number of draws made since creation.
func (r *RNG) Position() int64 {
	return r.pos
}

// Restore re-seeds the RNG in place and replays to the given position.
// In-place so components holding the RNG keep drawing from the restored
// stream.
func (r *RNG) Restore(seed int64, position int64) {
	r.seed = seed
	r.src = rand.New(rand.NewSource(seed))
	for i := int64(0); i < position; i++ {
		r.src.Int63()
	}
	r.pos = position
}

// RestoreRNG creates an RNG and advances it to the given position.
// This reproduces the exact RNG state for save/load.
func RestoreRNG(seed int64, position int64) *RNG {
	rng := NewRNG(seed)
	rng.Restore(seed, position)
	return rng
}

package engine

import (
	"math/rand"
	"time"
)

// RNG wraps math/rand.Rand with deterministic position tracking.
// Position counts draws from the underlying source, so a run can be
// reproduced from (seed, position).
type RNG struct {
	seed int64
	src  *countingSource
	rand *rand.Rand
}

// countingSource counts every value drawn from the wrapped source.
type countingSource struct {
	src rand.Source64
	n   int64
}

func (c *countingSource) Int63() int64 {
	c.n++
	return c.src.Int63()
}

func (c *countingSource) Uint64() uint64 {
	c.n++
	return c.src.Uint64()
}

func (c *countingSource) Seed(seed int64) {
	c.src.Seed(seed)
	c.n = 0
}

// NewRNG creates a new deterministic RNG from a seed.
func NewRNG(seed int64) *RNG {
	src := &countingSource{src: rand.NewSource(seed).(rand.Source64)}
	return &RNG{seed: seed, src: src, rand: rand.New(src)}
}

// NewClockRNG seeds from the wall clock, for production runs.
func NewClockRNG() *RNG {
	return NewRNG(time.Now().UnixNano())
}

// Intn returns a random integer in [0, n).
func (r *RNG) Intn(n int) int {
	return r.rand.Intn(n)
}

// Shuffle permutes n elements uniformly.
func (r *RNG) Shuffle(n int, swap func(i, j int)) {
	r.rand.Shuffle(n, swap)
}

// Int63 returns a non-negative random int64. Used to derive child seeds.
func (r *RNG) Int63() int64 {
	return r.rand.Int63()
}

// Seed returns the seed the RNG was created with.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Position returns the number of source draws made since creation.
func (r *RNG) Position() int64 {
	return r.src.n
}

// RestoreRNG creates an RNG and advances it to the given position.
func RestoreRNG(seed int64, position int64) *RNG {
	rng := NewRNG(seed)
	for i := int64(0); i < position; i++ {
		rng.src.Int63()
	}
	return rng
}

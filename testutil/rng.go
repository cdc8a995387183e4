package testutil

import (
	"math"
	"math/rand"
	"sort"
	"sync"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand = rand.New(rand.NewSource(r.seed))
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// FillGaussian fills dst with standard normal values.
func (r *RNG) FillGaussian(dst []float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = r.rand.NormFloat64()
	}
}

// Signal returns rows × channels row-major samples: per channel a sine of
// a distinct frequency plus unit gaussian noise, sampled at rate Hz.
func (r *RNG) Signal(rows, channels int, rate float64) []float64 {
	out := make([]float64, rows*channels)
	r.FillGaussian(out)

	for c := range channels {
		freq := 1 + 2*float64(c)
		amp := 10 * float64(c+1)
		for i := range rows {
			out[i*channels+c] += amp * math.Sin(2*math.Pi*freq*float64(i)/rate)
		}
	}
	return out
}

// SpikeTimes returns n sorted spike times drawn uniformly from [0, duration).
func (r *RNG) SpikeTimes(n int, duration float64) []float64 {
	r.mu.Lock()
	out := make([]float64, n)
	for i := range out {
		out[i] = r.rand.Float64() * duration
	}
	r.mu.Unlock()

	sort.Float64s(out)
	return out
}

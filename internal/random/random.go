package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
)

// cryptoSource is a rand.Source backed by crypto/rand.
type cryptoSource struct{}

// Uint64 implements rand.Source.
func (cryptoSource) Uint64() uint64 {
	var b [8]byte
	// crypto/rand.Read never returns an error; it aborts the program if the
	// kernel source is unavailable.
	_, _ = crand.Read(b[:]) //nolint:errcheck // see above
	return binary.LittleEndian.Uint64(b[:])
}

// New returns a generator that draws from crypto/rand.
func New() *rand.Rand {
	return rand.New(cryptoSource{})
}

// Sample returns min(k, len(items)) elements of items chosen without
// replacement, in random order. items is not modified.
// A non-positive k returns an empty slice.
func Sample[T any](r *rand.Rand, items []T, k int) []T {
	if k <= 0 || len(items) == 0 {
		return []T{}
	}
	if k > len(items) {
		k = len(items)
	}

	pool := make([]T, len(items))
	copy(pool, items)

	// Partial Fisher-Yates: only the first k positions are settled.
	for i := range k {
		j := i + r.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k]
}

// Sampler draws relay samples for the sampling loop.
type Sampler[T any] struct {
	rand *rand.Rand
}

// NewSampler returns a Sampler using r. If r is nil the crypto-backed
// generator from New is used.
func NewSampler[T any](r *rand.Rand) *Sampler[T] {
	if r == nil {
		r = New()
	}
	return &Sampler[T]{rand: r}
}

// Sample implements the sampler's picker contract.
func (s *Sampler[T]) Sample(items []T, k int) []T {
	return Sample(s.rand, items, k)
}

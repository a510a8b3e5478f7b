package core

import (
	"crypto/rand"
	"encoding/binary"
)

const (
	lcgMultiplier = 1664525
	lcgIncrement  = 1013904223
	lcgModulus    = 1 << 32
)

// Rand is a 32-bit linear congruential generator. Its whole state is one
// uint32 so that copying a State copies the random stream with it.
type Rand struct {
	state uint32
}

// HashSeed folds a string seed into 32 bits.
func HashSeed(seed string) uint32 {
	var h uint32
	for i := 0; i < len(seed); i++ {
		h = h*31 + uint32(seed[i])
	}
	return h
}

// NewRand returns a generator seeded from seed. An empty seed draws its
// starting state from the system entropy source.
func NewRand(seed string) *Rand {
	if seed == "" {
		var b [4]byte
		if _, err := rand.Read(b[:]); err == nil {
			return &Rand{state: binary.LittleEndian.Uint32(b[:])}
		}
	}
	return &Rand{state: HashSeed(seed)}
}

// RandFromState resumes a generator from a saved state.
func RandFromState(s uint32) *Rand { return &Rand{state: s} }

// State returns the internal state.
func (r *Rand) State() uint32 { return r.state }

// Next returns a float in [0, 1).
func (r *Rand) Next() float64 {
	r.state = r.state*lcgMultiplier + lcgIncrement
	return float64(r.state) / lcgModulus
}

// Between returns a float in [min, max).
func (r *Rand) Between(min, max float64) float64 {
	return min + r.Next()*(max-min)
}

// IntBetween returns an int in [min, max].
func (r *Rand) IntBetween(min, max int) int {
	if max <= min {
		return min
	}
	return min + int(r.Next()*float64(max-min+1))
}

// Chance reports whether a trial with probability p succeeded.
func (r *Rand) Chance(p float64) bool {
	if p <= 0 {
		return false
	}
	return r.Next() < p
}

// Choice picks a uniform element of items. It panics on an empty slice.
func Choice[T any](r *Rand, items []T) T {
	return items[r.IntBetween(0, len(items)-1)]
}

// Shuffle permutes items in place (Fisher-Yates).
func Shuffle[T any](r *Rand, items []T) {
	for i := len(items) - 1; i > 0; i-- {
		j := r.IntBetween(0, i)
		items[i], items[j] = items[j], items[i]
	}
}

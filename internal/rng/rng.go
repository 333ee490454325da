package rng

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
)

// Source abstracts the random numbers an encounter consumes.
type Source interface {
	Float64() float64 // [0, 1)
}

// crypto random: default source for live sessions
type cryptoRNG struct{}

func (cryptoRNG) Float64() float64 {
	var buf [8]byte
	if _, err := cryptoRand.Read(buf[:]); err != nil {
		return rand.Float64()
	}
	u := binary.BigEndian.Uint64(buf[:]) >> 11 // 53 bits
	return float64(u) / (1 << 53)
}

func Default() Source { return cryptoRNG{} }

// Replicable source, used for seeded runs and the balance simulation.
type seededRNG struct{ r *rand.Rand }

func NewSeeded(seed uint64) Source {
	return &seededRNG{r: rand.New(rand.NewPCG(seed, 0))}
}

func (s *seededRNG) Float64() float64 { return s.r.Float64() }

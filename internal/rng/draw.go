package rng

import (
	"errors"
	"math"
)

var ErrInvalidProb = errors.New("invalid probability p; must be 0..1")

// Chance reports whether an event with probability p happens.
// p <= 0 never happens, p >= 1 always does.
func Chance(p float64, src Source) (bool, error) {
	if err := validateProb(p); err != nil {
		return false, err
	}
	if p <= 0 {
		return false, nil
	}
	if p >= 1 {
		return true, nil
	}
	if src == nil {
		src = Default()
	}
	return src.Float64() < p, nil
}

// Roll is Chance for callers with constant, known-good probabilities.
func Roll(p float64, src Source) bool {
	hit, _ := Chance(p, src)
	return hit
}

// Between returns an integer in [lo, hi], inclusive on both ends.
func Between(src Source, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	if src == nil {
		src = Default()
	}
	n := int(src.Float64() * float64(hi-lo+1))
	if n > hi-lo {
		n = hi - lo
	}
	return lo + n
}

// Range returns a float in [lo, hi).
func Range(src Source, lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	if src == nil {
		src = Default()
	}
	return lo + src.Float64()*(hi-lo)
}

func validateProb(p float64) error {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return ErrInvalidProb
	}
	if p < 0 || p > 1 {
		return ErrInvalidProb
	}
	return nil
}

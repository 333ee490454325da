package encounter

import (
	"errors"
	"strings"
)

// Easing shapes how a recovering unit glides back to its slot.
type Easing string

const (
	EaseLinear     Easing = "linear"
	EaseOutQuad    Easing = "easeOutQuad"
	EaseInOutCubic Easing = "easeInOutCubic"
)

var ErrUnknownEasing = errors.New("unknown easing")

// ParseEasing accepts the easing names case-insensitively; empty means linear.
func ParseEasing(s string) (Easing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "linear":
		return EaseLinear, nil
	case "easeoutquad":
		return EaseOutQuad, nil
	case "easeinoutcubic":
		return EaseInOutCubic, nil
	}
	return "", ErrUnknownEasing
}

// Apply maps progress t in [0,1] onto the curve.
func (e Easing) Apply(t float64) float64 {
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	switch e {
	case EaseOutQuad:
		// f(t) = 1 - (1 - t)^2
		return 1 - (1-t)*(1-t)
	case EaseInOutCubic:
		if t < 0.5 {
			return 4 * t * t * t
		}
		u := -2*t + 2
		return 1 - u*u*u/2
	default:
		return t
	}
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

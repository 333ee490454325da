package encounter

import (
	"math"
	"time"
)

// Danger is the run's difficulty level, +1 per cleared node. All scaling is
// computed from an encounter's baseline values, never from already scaled ones.
type Danger int

// WaveStepDelay is max(80ms, floor(base * max(0.5, 1 - 0.08D))).
func (d Danger) WaveStepDelay(base time.Duration) time.Duration {
	if d <= 0 {
		return base
	}
	f := math.Max(0.5, 1-0.08*float64(d))
	scaled := math.Floor(float64(base.Milliseconds()) * f)
	return maxDuration(80*time.Millisecond, time.Duration(scaled)*time.Millisecond)
}

// WaveFirstShot is max(260ms, 780ms - 55ms*D).
func (d Danger) WaveFirstShot() time.Duration {
	if d <= 0 {
		return firstShotDelay
	}
	return maxDuration(260*time.Millisecond, 780*time.Millisecond-time.Duration(d)*55*time.Millisecond)
}

// BossFireScale is base * max(0.6, 1 - 0.05D).
func (d Danger) BossFireScale(base float64) float64 {
	if d <= 0 {
		return base
	}
	return base * math.Max(0.6, 1-0.05*float64(d))
}

// BossHPBoost is 1 + min(0.45, 0.06D).
func (d Danger) BossHPBoost() float64 {
	if d <= 0 {
		return 1
	}
	return 1 + math.Min(0.45, 0.06*float64(d))
}

func (d Danger) BossMaxHP(base int) int {
	return int(math.Floor(float64(base) * d.BossHPBoost()))
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

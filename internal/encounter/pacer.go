package encounter

import (
	"time"

	"github.com/xtding233/sector-run/internal/rng"
)

// VolleyPacer inserts breathing gaps into a sustained stream of volleys.
// After BreakAfter consecutive volleys a long break is guaranteed; before
// that each volley has a small chance of a short pause.
type VolleyPacer struct {
	BreakAfter int // volleys before a guaranteed break, rerolled in [4,7]
	Count      int // volleys since the last break
	RNG        rng.Source
}

const microPauseChance = 0.18

func NewVolleyPacer(src rng.Source) *VolleyPacer {
	if src == nil {
		src = rng.Default()
	}
	p := &VolleyPacer{RNG: src}
	p.reroll()
	return p
}

func (p *VolleyPacer) reroll() {
	p.BreakAfter = rng.Between(p.RNG, 4, 7)
}

// Next records one volley and returns the extra delay before the following one.
func (p *VolleyPacer) Next() time.Duration {
	p.Count++
	if p.Count >= p.BreakAfter {
		p.Count = 0
		p.reroll()
		return time.Duration(rng.Between(p.RNG, 320, 620)) * time.Millisecond
	}
	if rng.Roll(microPauseChance, p.RNG) {
		return time.Duration(rng.Between(p.RNG, 180, 360)) * time.Millisecond
	}
	return 0
}

// Reset clears the streak, used while the wave is outside its endgame.
func (p *VolleyPacer) Reset() { p.Count = 0 }

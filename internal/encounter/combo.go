package encounter

import "time"

const (
	// ComboWindow is the base time a kill keeps the streak alive.
	ComboWindow   = 2500 * time.Millisecond
	MaxMultiplier = 5
	killPoints    = 10
)

// Combo tracks consecutive kills within the combo window.
type Combo struct {
	Count      int
	Multiplier int
	ExpiresAt  time.Time
	Window     time.Duration
}

// NewCombo creates a combo whose window is extended by the loadout bonus.
func NewCombo(extension time.Duration) *Combo {
	if extension < 0 {
		extension = 0
	}
	return &Combo{Multiplier: 1, Window: ComboWindow + extension}
}

// MultiplierFor is min(5, 1 + floor((count-1)/4)).
func MultiplierFor(count int) int {
	if count <= 0 {
		return 1
	}
	m := 1 + (count-1)/4
	if m > MaxMultiplier {
		return MaxMultiplier
	}
	return m
}

// Register counts a kill at now and returns the new multiplier.
func (c *Combo) Register(now time.Time) int {
	if c.Count > 0 && !now.After(c.ExpiresAt) {
		c.Count++
	} else {
		c.Count = 1
	}
	c.Multiplier = MultiplierFor(c.Count)
	c.ExpiresAt = now.Add(c.Window)
	return c.Multiplier
}

// Reset drops the streak, e.g. when the player is hit.
func (c *Combo) Reset() {
	c.Count = 0
	c.Multiplier = 1
	c.ExpiresAt = time.Time{}
}

func (c *Combo) Active(now time.Time) bool {
	return c.Count > 0 && !now.After(c.ExpiresAt)
}

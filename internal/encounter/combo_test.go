package encounter

import (
	"testing"
	"time"
)

func TestMultiplierFor(t *testing.T) {
	cases := []struct{ count, want int }{
		{1, 1}, {4, 1}, {5, 2}, {8, 2}, {9, 3}, {21, 5}, {24, 5}, {25, 5}, {400, 5}, {0, 1},
	}
	for _, c := range cases {
		if got := MultiplierFor(c.count); got != c.want {
			t.Fatalf("MultiplierFor(%d) = %d, want %d", c.count, got, c.want)
		}
	}
	for n := 1; n < 200; n++ {
		if m := MultiplierFor(n); m < 1 || m > MaxMultiplier {
			t.Fatalf("multiplier out of range at %d: %d", n, m)
		}
	}
}

func TestComboWindow(t *testing.T) {
	now := time.Unix(100, 0)
	c := NewCombo(0)
	for i := 0; i < 5; i++ {
		c.Register(now)
		now = now.Add(ComboWindow)
	}
	if c.Count != 5 || c.Multiplier != 2 {
		t.Fatalf("kills at the window edge should chain: %+v", c)
	}
	c.Register(now.Add(ComboWindow + time.Millisecond))
	if c.Count != 1 {
		t.Fatalf("kill after expiry should restart the streak: %+v", c)
	}
}

func TestComboExtension(t *testing.T) {
	now := time.Unix(100, 0)
	c := NewCombo(2 * time.Second)
	c.Register(now)
	c.Register(now.Add(4 * time.Second))
	if c.Count != 2 {
		t.Fatalf("extended window should keep the streak: %+v", c)
	}
}

func TestScoreKillDoublesAndTradeDisables(t *testing.T) {
	now := time.Unix(100, 0)
	f := NewField(1, NewPlayer(3), nil)
	if pts := f.ScoreKill(now); pts != 10 {
		t.Fatalf("first kill = %d", pts)
	}
	f.GrantDoubleReward(now, 5*time.Second)
	if pts := f.ScoreKill(now); pts != 20 {
		t.Fatalf("doubled kill = %d", pts)
	}
	f.DoubleRewardDisabled = true
	if pts := f.ScoreKill(now); pts != 10 {
		t.Fatalf("disabled double = %d", pts)
	}
}

func TestPlayerHitResetsCombo(t *testing.T) {
	now := time.Unix(100, 0)
	f := NewField(1, NewPlayer(3), nil)
	for i := 0; i < 6; i++ {
		f.ScoreKill(now)
	}
	f.DamagePlayer(now)
	if f.Combo.Count != 0 || f.Combo.Multiplier != 1 {
		t.Fatalf("combo not reset: %+v", f.Combo)
	}
	if f.Player.Lives != 2 {
		t.Fatalf("lives = %d", f.Player.Lives)
	}
}

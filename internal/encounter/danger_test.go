package encounter

import (
	"math"
	"testing"
	"time"

	"github.com/xtding233/sector-run/internal/rng"
)

func TestDangerFormulas(t *testing.T) {
	base := time.Second
	if got := Danger(0).WaveStepDelay(base); got != base {
		t.Fatalf("D0 step = %s", got)
	}
	if got := Danger(2).WaveStepDelay(base); got != 840*time.Millisecond {
		t.Fatalf("D2 step = %s", got)
	}
	if got := Danger(20).WaveStepDelay(100 * time.Millisecond); got != 80*time.Millisecond {
		t.Fatalf("step floor = %s", got)
	}
	if got := Danger(2).WaveFirstShot(); got != 670*time.Millisecond {
		t.Fatalf("D2 first shot = %s", got)
	}
	if got := Danger(30).WaveFirstShot(); got != 260*time.Millisecond {
		t.Fatalf("first shot floor = %s", got)
	}
	if got := Danger(4).BossMaxHP(60); got != 74 {
		t.Fatalf("D4 boss hp = %d", got)
	}
	if got := Danger(100).BossHPBoost(); math.Abs(got-1.45) > 1e-9 {
		t.Fatalf("hp boost cap = %v", got)
	}
	if got := Danger(100).BossFireScale(1); got != 0.6 {
		t.Fatalf("fire scale floor = %v", got)
	}
}

func TestDangerIsMonotonic(t *testing.T) {
	base := 700 * time.Millisecond
	for d1 := Danger(0); d1 < 15; d1++ {
		d2 := d1 + 1
		if d2.WaveStepDelay(base) > d1.WaveStepDelay(base) {
			t.Fatalf("step delay grew from D%d to D%d", d1, d2)
		}
		if d2.WaveFirstShot() > d1.WaveFirstShot() {
			t.Fatalf("first shot grew from D%d to D%d", d1, d2)
		}
		if d2.BossFireScale(0.8) > d1.BossFireScale(0.8) {
			t.Fatalf("fire scale grew from D%d to D%d", d1, d2)
		}
		if d2.BossMaxHP(90) < d1.BossMaxHP(90) {
			t.Fatalf("boss hp shrank from D%d to D%d", d1, d2)
		}
	}
}

func TestApplyDangerUsesBaseline(t *testing.T) {
	now := time.Unix(100, 0)
	w := NewWave(now, NewField(1, NewPlayer(3), rng.NewSeeded(1)), WaveOptions{})
	w.ApplyDanger(now, 3)
	first := w.StepDelay()
	w.ApplyDanger(now, 3)
	if w.StepDelay() != first {
		t.Fatalf("reapplying danger compounded: %s then %s", first, w.StepDelay())
	}

	b := NewBoss(now, NewField(5, NewPlayer(3), rng.NewSeeded(1)))
	b.ApplyDanger(now, 2)
	hp := b.MaxHealth
	b.ApplyDanger(now, 2)
	if b.MaxHealth != hp || b.FireScale() != Danger(2).BossFireScale(b.BaseFireScale()) {
		t.Fatalf("boss danger compounded: hp %d -> %d", hp, b.MaxHealth)
	}
}

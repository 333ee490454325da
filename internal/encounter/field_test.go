package encounter

import (
	"testing"
	"time"

	"github.com/xtding233/sector-run/internal/rng"
)

func TestShieldAbsorbsHits(t *testing.T) {
	now := time.Unix(3000, 0)
	f := NewField(1, NewPlayer(3), rng.NewSeeded(1))
	f.Player.GrantShield(now, 2)

	f.DamagePlayer(now)
	f.DamagePlayer(now.Add(time.Second))
	if f.Player.Lives != 3 || f.Player.ShieldHits != 0 {
		t.Fatalf("lives=%d shield=%d", f.Player.Lives, f.Player.ShieldHits)
	}
	f.DamagePlayer(now.Add(2 * time.Second))
	if f.Player.Lives != 2 {
		t.Fatalf("lives after shield = %d", f.Player.Lives)
	}
}

func TestShieldExpires(t *testing.T) {
	now := time.Unix(3000, 0)
	f := NewField(1, NewPlayer(3), rng.NewSeeded(1))
	f.Player.GrantShield(now, 3)
	f.DamagePlayer(now.Add(9 * time.Second))
	if f.Player.Lives != 2 {
		t.Fatalf("expired shield still absorbed")
	}
}

func TestEmergencyRepair(t *testing.T) {
	now := time.Unix(3000, 0)
	f := NewField(1, NewPlayer(2), rng.NewSeeded(1))
	f.Player.EmergencyRepairs = 1

	if out := f.DamagePlayer(now); out || f.Player.Lives != 1 || f.Player.EmergencyRepairs != 1 {
		t.Fatalf("first hit: out=%v lives=%d repairs=%d", out, f.Player.Lives, f.Player.EmergencyRepairs)
	}
	// the hit on the last life is absorbed by the repair
	if out := f.DamagePlayer(now); out {
		t.Fatalf("repair should save the last life")
	}
	if f.Player.Lives != 3 || f.Player.EmergencyRepairs != 0 {
		t.Fatalf("lives=%d repairs=%d", f.Player.Lives, f.Player.EmergencyRepairs)
	}
	f.DamagePlayer(now)
	f.DamagePlayer(now)
	if out := f.DamagePlayer(now); !out || f.Player.Lives != 0 {
		t.Fatalf("expected defeat, lives=%d", f.Player.Lives)
	}
}

func TestEmergencyRepairOnLastLife(t *testing.T) {
	now := time.Unix(3000, 0)
	f := NewField(1, NewPlayer(1), rng.NewSeeded(1))
	f.Player.EmergencyRepairs = 1
	if out := f.DamagePlayer(now); out {
		t.Fatalf("player with a repair died on one life")
	}
	if f.Player.Lives != 3 {
		t.Fatalf("lives = %d, want 3", f.Player.Lives)
	}
}

func TestFullArmorNeverLosesLives(t *testing.T) {
	now := time.Unix(3000, 0)
	f := NewField(1, NewPlayer(3), rng.NewSeeded(1))
	f.Player.DamageReduction = 1
	for i := 0; i < 20; i++ {
		f.DamagePlayer(now)
	}
	if f.Player.Lives != 3 {
		t.Fatalf("lives = %d", f.Player.Lives)
	}
}

func TestEntityGroups(t *testing.T) {
	now := time.Unix(3000, 0)
	f := NewField(1, NewPlayer(3), rng.NewSeeded(1))
	f.Spawn(now, "debris", Entity{X: 100, Y: 0, VY: 150})
	f.Spawn(now, "debris", Entity{X: 200, Y: 0, VY: 150})
	esc := f.Spawn(now, "escort", Entity{X: 300, Y: 100, HP: 2, Bounty: 15})

	if f.AuxCount() != 3 {
		t.Fatalf("aux = %d", f.AuxCount())
	}
	if n := f.ClearGroup("debris"); n != 2 || f.AuxCount() != 1 {
		t.Fatalf("cleared %d, aux %d", n, f.AuxCount())
	}

	if f.HitEntity(now, esc.ID, 1) {
		t.Fatalf("escort destroyed too early")
	}
	if !f.HitEntity(now, esc.ID, 1) {
		t.Fatalf("escort should be destroyed")
	}
	if f.AuxCount() != 0 || f.BonusSalvage != 15 {
		t.Fatalf("aux=%d bonus=%d", f.AuxCount(), f.BonusSalvage)
	}
	if f.HitEntity(now, esc.ID, 1) {
		t.Fatalf("destroyed entity hit again")
	}
}

func TestEntitiesDropWhenLeavingArena(t *testing.T) {
	now := time.Unix(3000, 0)
	f := NewField(1, NewPlayer(3), rng.NewSeeded(1))
	f.Spawn(now, "debris", Entity{X: 400, Y: 590, VY: 200})
	f.advanceEntities(0.5)
	if f.AuxCount() != 0 {
		t.Fatalf("debris should have left the arena")
	}
}

func TestBonusSalvageScales(t *testing.T) {
	now := time.Unix(3000, 0)
	f := NewField(1, NewPlayer(3), rng.NewSeeded(1))
	f.Player.SalvageMult = 1.25
	if got := f.AddBonusSalvage(now, 40, "trade"); got != 50 {
		t.Fatalf("bonus = %d", got)
	}
}

func TestDoubleRewardAndTrade(t *testing.T) {
	now := time.Unix(3000, 0)
	f := NewField(1, NewPlayer(3), rng.NewSeeded(1))
	f.GrantDoubleReward(now, 5*time.Second)
	if pts := f.ScoreKill(now); pts != 2*killPoints {
		t.Fatalf("double pts = %d", pts)
	}
	f.DoubleRewardDisabled = true
	if f.DoubleRewardActive(now) {
		t.Fatalf("trade should disable double reward")
	}
}

func TestTryFireCooldown(t *testing.T) {
	now := time.Unix(3000, 0)
	p := NewPlayer(3)
	if !p.TryFire(now) {
		t.Fatalf("first shot blocked")
	}
	if p.TryFire(now.Add(100 * time.Millisecond)) {
		t.Fatalf("shot inside cooldown")
	}
	if !p.TryFire(now.Add(300 * time.Millisecond)) {
		t.Fatalf("shot after cooldown blocked")
	}
	p.DisruptedUntil = now.Add(time.Second)
	if p.TryFire(now.Add(900 * time.Millisecond)) {
		t.Fatalf("disrupted ship fired")
	}
}

package modifier

import (
	"math"
	"time"

	"github.com/xtding233/sector-run/internal/encounter"
	"github.com/xtding233/sector-run/internal/rng"
)

// Entity groups owned by catalog rules.
const (
	GroupDebris = "debris"
	GroupBunker = "bunker"
	GroupCargo  = "cargo"
	GroupEscort = "escort"

	OverlayFog      = "fog"
	OverlayIonStorm = "ionstorm"
)

const (
	tradeSalvage      = 40
	escortBounty      = 15
	escortOffset      = 80.0
	escortDrop        = 60.0
	interferenceFor   = 200 * time.Millisecond
	stormFireDelay    = 150 * time.Millisecond
	stormAccuracy     = 0.7
	destabilizeChance = 0.45
)

// Catalog returns the built-in rules.
func Catalog() []Rule {
	return []Rule{
		{
			ID:          "hazard-debris",
			Encounter:   encounter.KindWave,
			Title:       "Debris Shower",
			Description: "Falling debris hazards rain down during the wave.",
			Callout:     "Debris shower incoming - dodge the falling wreckage.",
			Apply:       applyDebris,
		},
		{
			ID:          "elite-interceptors",
			Encounter:   encounter.KindWave,
			Title:       "Interceptor Wing",
			Description: "Interceptors move faster and shoot more often.",
			Callout:     "Interceptor wing engaged - expect faster volleys.",
			Apply:       applyElite,
		},
		{
			ID:          "hazard-fog",
			Encounter:   encounter.KindWave,
			Title:       "Nebula Fog",
			Description: "Visibility reduced; a fog overlay covers the battlefield.",
			Callout:     "Visibility compromised by nebula fog.",
			Apply: func(ctx Context, g *Guard) error {
				g.Overlay(ctx.Field(), OverlayFog)
				return nil
			},
		},
		{
			ID:          "hazards-ionstorm",
			Encounter:   encounter.KindWave,
			Title:       "Ionic Storm",
			Description: "Electrical interference disrupts targeting systems.",
			Callout:     "Ionic storm detected - targeting systems disrupted.",
			Apply:       applyIonStorm,
		},
		{
			ID:          "objective-destabilize",
			Encounter:   encounter.KindWave,
			Title:       "Shield Destabilizers",
			Description: "Allied shields start partially destroyed.",
			Callout:     "Defensive shields destabilised - bunkers are compromised.",
			Apply:       applyDestabilize,
		},
		{
			ID:          "objective-defend",
			Encounter:   encounter.KindWave,
			Title:       "Escort Convoy",
			Description: "Protect the cargo drone from enemy fire.",
			Callout:     "Escort the cargo drone and keep it intact.",
			Apply: func(ctx Context, g *Guard) error {
				g.Spawn(ctx.Now, ctx.Field(), GroupCargo, encounter.Entity{X: 400, Y: 510, HP: 3})
				return nil
			},
		},
		{
			ID:          "choice-trade",
			Encounter:   encounter.KindWave,
			Title:       "Trade Offer",
			Description: "Exchange combo momentum for repairs and salvage.",
			Callout:     "Trade offer active - repairs and salvage over firepower.",
			Apply:       applyTrade,
		},
		{
			ID:          "boss-phase",
			Encounter:   encounter.KindBoss,
			Title:       "Phase Shift",
			Description: "Boss phases more aggressively with faster attacks.",
			Callout:     "Boss is phasing aggressively - buckle up.",
			Apply: func(ctx Context, g *Guard) error {
				b, _ := ctx.Boss()
				b.ScaleFire(0.75)
				b.ScaleDash(1.15)
				b.ScheduleEnrage(ctx.Now.Add(4200 * time.Millisecond))
				return nil
			},
		},
		{
			ID:          "boss-carrier",
			Encounter:   encounter.KindBoss,
			Title:       "Carrier Assault",
			Description: "Boss deploys escort drones during the fight.",
			Callout:     "Carrier escorts inbound - additional threats detected.",
			Apply:       applyCarrier,
		},
	}
}

func applyDebris(ctx Context, g *Guard) error {
	f := ctx.Field()
	spawn := func() {
		f.Spawn(ctx.Timers.Now(), GroupDebris, encounter.Entity{
			X:       float64(rng.Between(f.RNG, 40, 760)),
			Y:       -20,
			VX:      float64(rng.Between(f.RNG, -40, 40)),
			VY:      float64(rng.Between(f.RNG, 240, 320)),
			HP:      1,
			Hostile: true,
		})
	}
	g.Timer(ctx.Timers, ctx.Timers.Every(950*time.Millisecond, spawn))
	g.Defer(func() { f.ClearGroup(GroupDebris) })
	return nil
}

func applyElite(ctx Context, g *Guard) error {
	w, _ := ctx.Wave()
	f := ctx.Field()
	w.SetStepDelay(maxDur(90*time.Millisecond, time.Duration(math.Floor(float64(w.StepDelay())*0.65))))
	w.ScheduleShot(ctx.Now.Add(420 * time.Millisecond))
	w.ScheduleDive(ctx.Now.Add(time.Duration(rng.Between(f.RNG, 1600, 2400)) * time.Millisecond))
	f.Elite = true
	return nil
}

func applyIonStorm(ctx Context, g *Guard) error {
	f := ctx.Field()
	p := f.Player
	prevDelay, prevAcc := p.FireDelay, p.Accuracy
	p.FireDelay += stormFireDelay
	p.Accuracy = stormAccuracy
	g.Defer(func() {
		p.FireDelay, p.Accuracy = prevDelay, prevAcc
		p.DisruptedUntil = time.Time{}
	})
	g.Overlay(f, OverlayIonStorm)
	g.Timer(ctx.Timers, ctx.Timers.Every(2*time.Second, func() {
		now := ctx.Timers.Now()
		p.DisruptedUntil = now.Add(interferenceFor)
		f.Emit(encounter.Event{Kind: encounter.EventInterference, At: now})
	}))
	return nil
}

// applyDestabilize lays out the allied bunkers already damaged.
func applyDestabilize(ctx Context, g *Guard) error {
	f := ctx.Field()
	for _, x := range []float64{160, 320, 480, 640} {
		if rng.Roll(destabilizeChance, f.RNG) {
			continue
		}
		g.Spawn(ctx.Now, f, GroupBunker, encounter.Entity{X: x, Y: 470, HP: 1})
	}
	return nil
}

func applyTrade(ctx Context, g *Guard) error {
	f := ctx.Field()
	if f.TradeApplied {
		return nil
	}
	f.TradeApplied = true
	f.DoubleRewardDisabled = true
	f.AddBonusSalvage(ctx.Now, tradeSalvage, "trade")
	f.Player.Lives = min(encounter.MaxLives, f.Player.Lives+1)
	f.Combo.Reset()
	return nil
}

func applyCarrier(ctx Context, g *Guard) error {
	b, _ := ctx.Boss()
	f := ctx.Field()
	var escorts []*encounter.Entity
	for _, off := range []float64{-escortOffset, escortOffset} {
		e := g.Spawn(ctx.Now, f, GroupEscort, encounter.Entity{
			X: b.X + off, Y: b.Y + escortDrop, HP: 3, Bounty: escortBounty, Hostile: true,
		})
		escorts = append(escorts, e)
	}
	offsets := []float64{-escortOffset, escortOffset}
	g.Timer(ctx.Timers, ctx.Timers.Every(50*time.Millisecond, func() {
		for i, e := range escorts {
			if e.HP > 0 {
				e.X, e.Y = b.X+offsets[i], b.Y+escortDrop
			}
		}
	}))
	return nil
}

func maxDur(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

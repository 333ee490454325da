package session

import (
	"time"

	"github.com/xtding233/sector-run/internal/encounter"
	"github.com/xtding233/sector-run/internal/ledger"
)

// Upgrade keys understood by ApplyLoadout.
const (
	UpgradeReinforcedHull    = "reinforced_hull"
	UpgradeAdaptiveArmor     = "adaptive_armor"
	UpgradeEmergencyRepair   = "emergency_repair"
	UpgradeWeaponDamage      = "weapon_damage"
	UpgradeFireRate          = "fire_rate"
	UpgradePierceEnhancement = "pierce_enhancement"
	UpgradeShieldCapacity    = "shield_capacity"
	UpgradeComboExtension    = "combo_extension"
	UpgradeSalvageBoost      = "salvage_boost"
)

const legacyPierceBoost = 1.35

// ApplyLoadout applies the hangar loadout to a fresh ship. A nil loadout changes nothing.
func ApplyLoadout(now time.Time, p *encounter.Player, lo *ledger.Loadout) {
	if lo == nil {
		return
	}
	if lo.ExtraLife {
		p.Lives++
	}
	if lo.PierceBoost {
		p.PierceBoost = legacyPierceBoost
	}

	if n := lo.Upgrade(UpgradeReinforcedHull); n > 0 {
		p.Lives += n
	}
	if n := lo.Upgrade(UpgradeAdaptiveArmor); n > 0 {
		p.DamageReduction = min(0.1*float64(n), 0.9)
	}
	if n := lo.Upgrade(UpgradeEmergencyRepair); n > 0 {
		p.EmergencyRepairs = n
	}
	if n := lo.Upgrade(UpgradeWeaponDamage); n > 0 {
		p.DamageMult = 1 + 0.2*float64(n)
	}
	if n := lo.Upgrade(UpgradeFireRate); n > 0 {
		p.FireRateMult = 1 + 0.15*float64(n)
	}
	if n := lo.Upgrade(UpgradePierceEnhancement); n > 0 {
		p.PierceBoost = 1 + 0.25*float64(n)
	}
	if n := lo.Upgrade(UpgradeShieldCapacity); n > 0 {
		p.ShieldCapacity = encounter.DefaultShieldCap + n
	}
	if n := lo.Upgrade(UpgradeComboExtension); n > 0 {
		p.ComboExtension = time.Duration(n) * 2000 * time.Millisecond
	}
	if n := lo.Upgrade(UpgradeSalvageBoost); n > 0 {
		l := float64(n)
		p.SalvageMult = 1 + (0.1+0.05*(l-1))*l
	}

	// shield prep goes last so it sees the upgraded capacity
	if lo.ShieldPrep {
		p.GrantShield(now, 1)
	}
}

package main

import "math"

// Built-in ability ids. The wire carries ability_id as u16, so scripting
// collaborators can register their own ids above these without clashing.
const (
	AbilityFireball uint16 = 1 // single projectile toward the target point
	AbilityVolley   uint16 = 2 // three-projectile spread toward the target
	AbilityDash     uint16 = 3 // impulse on the caster toward the target
	AbilitySmite    uint16 = 4 // slow heavy projectile, long reach
)

// Ability volley spread and per-ability tuning
const (
	fireballSpeed    = 8.0
	fireballRadius   = 0.2
	fireballLifetime = 2.0

	volleySpreadRad = 0.35 // ~20 degrees between spread shots
	volleySpeed     = 6.0
	volleyRadius    = 0.15
	volleyLifetime  = 1.5

	dashForce    = 12.0
	dashDuration = 0.2

	smiteSpeed    = 3.0
	smiteRadius   = 0.5
	smiteLifetime = 4.0
)

// AbilityDef describes one castable ability in data. Projectile abilities
// spawn Count shots fanned around the aim direction; impulse abilities
// shove the caster instead.
type AbilityDef struct {
	Name     string
	Count    int     // projectiles per cast, 0 for impulse abilities
	Spread   float64 // radians between adjacent shots
	Speed    float64 // world units/s
	Radius   float64 // world units
	Lifetime float64 // seconds, <= 0 means no expiry
	Force    float64 // impulse strength for Count == 0
}

// AbilityBook maps ability ids to definitions and implements
// AbilityCaster by executing them through the ScriptAPI.
type AbilityBook struct {
	defs map[uint16]AbilityDef
}

// DefaultAbilities returns the built-in ability set.
func DefaultAbilities() *AbilityBook {
	return &AbilityBook{defs: map[uint16]AbilityDef{
		AbilityFireball: {Name: "fireball", Count: 1, Speed: fireballSpeed, Radius: fireballRadius, Lifetime: fireballLifetime},
		AbilityVolley:   {Name: "volley", Count: 3, Spread: volleySpreadRad, Speed: volleySpeed, Radius: volleyRadius, Lifetime: volleyLifetime},
		AbilityDash:     {Name: "dash", Force: dashForce},
		AbilitySmite:    {Name: "smite", Count: 1, Speed: smiteSpeed, Radius: smiteRadius, Lifetime: smiteLifetime},
	}}
}

// Register adds or replaces an ability definition.
func (b *AbilityBook) Register(id uint16, def AbilityDef) {
	b.defs[id] = def
}

// Cast implements AbilityCaster. Unknown ids and unknown casters are
// ignored; the simulation has already validated the input envelope and a
// stale cast is not worth failing a tick over.
func (b *AbilityBook) Cast(api ScriptAPI, casterEntity uint32, abilityID uint16, targetX, targetY float64) {
	def, ok := b.defs[abilityID]
	if !ok {
		return
	}
	cx, cy, ok := api.GetPosition(casterEntity)
	if !ok {
		return
	}
	dx, dy := targetX-cx, targetY-cy

	if def.Count == 0 {
		api.ApplyKnockback(casterEntity, casterEntity, dx, dy, def.Force, dashDuration)
		return
	}

	// Fan Count shots around the aim direction, center shot first.
	aim := math.Atan2(dy, dx)
	for i := 0; i < def.Count; i++ {
		offset := float64(i-(def.Count-1)/2) * def.Spread
		a := aim + offset
		api.SpawnProjectile(casterEntity, cx, cy,
			math.Cos(a), math.Sin(a), def.Speed, def.Radius, def.Lifetime)
	}
}

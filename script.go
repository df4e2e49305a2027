package main

import "math"

// ScriptAPI is the narrow capability surface a scripting collaborator
// sees. Positions and speeds cross the boundary in display units and
// units-per-second; everything is converted to fixed-point per-tick form
// on the way in, so the deterministic core never stores a float.
type ScriptAPI interface {
	// GetPosition returns the entity's display-unit position, ok=false
	// for an unknown id.
	GetPosition(id uint32) (x, y float64, ok bool)
	// SetMovement overwrites the entity's velocity, given in world
	// units per second.
	SetMovement(id uint32, vxPerSec, vyPerSec float64) bool
	// ApplyDamage subtracts amount from target health, clamped at
	// zero. The source id is informational and not validated.
	ApplyDamage(source, target uint32, amount int32, kind uint8) bool
	// ApplyKnockback adds an impulse along dir to the target's current
	// velocity. A zero direction falls back to +X instead of dividing
	// by zero. Duration is informational; the caller schedules its own
	// reversal if it wants one.
	ApplyKnockback(source, target uint32, dirX, dirY, force, duration float64) bool
	// SpawnProjectile creates a projectile entity and returns its id.
	// lifeTime is in seconds; zero or negative means the projectile
	// never expires on its own.
	SpawnProjectile(caster uint32, x, y, dirX, dirY, speed, radius, lifeTime float64) uint32
}

// scriptContext implements ScriptAPI for calls made from inside a tick,
// where the simulation goroutine already holds g.mu.
type scriptContext struct {
	g *Game
}

func (c scriptContext) GetPosition(id uint32) (float64, float64, bool) {
	return c.g.getPositionLocked(id)
}

func (c scriptContext) SetMovement(id uint32, vx, vy float64) bool {
	return c.g.setMovementLocked(id, vx, vy)
}

func (c scriptContext) ApplyDamage(source, target uint32, amount int32, kind uint8) bool {
	return c.g.applyDamageLocked(source, target, amount, kind)
}

func (c scriptContext) ApplyKnockback(source, target uint32, dirX, dirY, force, duration float64) bool {
	return c.g.applyKnockbackLocked(source, target, dirX, dirY, force, duration)
}

func (c scriptContext) SpawnProjectile(caster uint32, x, y, dirX, dirY, speed, radius, lifeTime float64) uint32 {
	return c.g.spawnProjectileLocked(caster, x, y, dirX, dirY, speed, radius, lifeTime)
}

// Game also implements ScriptAPI directly for collaborators calling in
// from outside a tick (timers, admin tooling). These take the lock.

func (g *Game) GetPosition(id uint32) (float64, float64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.getPositionLocked(id)
}

func (g *Game) SetMovement(id uint32, vx, vy float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.setMovementLocked(id, vx, vy)
}

func (g *Game) ApplyDamage(source, target uint32, amount int32, kind uint8) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.applyDamageLocked(source, target, amount, kind)
}

func (g *Game) ApplyKnockback(source, target uint32, dirX, dirY, force, duration float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.applyKnockbackLocked(source, target, dirX, dirY, force, duration)
}

func (g *Game) SpawnProjectile(caster uint32, x, y, dirX, dirY, speed, radius, lifeTime float64) uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.spawnProjectileLocked(caster, x, y, dirX, dirY, speed, radius, lifeTime)
}

func (g *Game) getPositionLocked(id uint32) (float64, float64, bool) {
	e := g.store.Get(id)
	if e == nil {
		return 0, 0, false
	}
	return e.PosX.World(), e.PosY.World(), true
}

func (g *Game) setMovementLocked(id uint32, vxPerSec, vyPerSec float64) bool {
	e := g.store.Get(id)
	if e == nil {
		return false
	}
	e.VelX = ToFixed(vxPerSec) / TickRate
	e.VelY = ToFixed(vyPerSec) / TickRate
	return true
}

func (g *Game) applyDamageLocked(source, target uint32, amount int32, kind uint8) bool {
	e := g.store.Get(target)
	if e == nil {
		return false
	}
	e.Health -= amount
	if e.Health < 0 {
		e.Health = 0
	}
	return true
}

func (g *Game) applyKnockbackLocked(source, target uint32, dirX, dirY, force, duration float64) bool {
	e := g.store.Get(target)
	if e == nil {
		return false
	}
	nx, ny := normalizeDir(dirX, dirY)
	// force is world units/s; the impulse adds to whatever velocity the
	// entity already has rather than overwriting it.
	e.VelX += ToFixed(nx*force) / TickRate
	e.VelY += ToFixed(ny*force) / TickRate
	return true
}

func (g *Game) spawnProjectileLocked(caster uint32, x, y, dirX, dirY, speed, radius, lifeTime float64) uint32 {
	if g.store.Len() >= maxEntitiesPerSession {
		return 0
	}
	nx, ny := normalizeDir(dirX, dirY)

	lifetime := LifetimeInfinite
	if lifeTime > 0 {
		lifetime = int32(lifeTime * TickRate)
	}
	ent := g.store.Spawn(EntityState{
		Kind:          KindProjectile,
		PosX:          ToFixed(x),
		PosY:          ToFixed(y),
		VelX:          ToFixed(nx*speed) / TickRate,
		VelY:          ToFixed(ny*speed) / TickRate,
		Radius:        ToFixed(radius),
		LifetimeTicks: lifetime,
	})
	return ent.ID
}

// normalizeDir returns the unit vector for (dx, dy), substituting +X for
// a degenerate zero-length input.
func normalizeDir(dx, dy float64) (float64, float64) {
	len2 := dx*dx + dy*dy
	if len2 == 0 {
		return 1, 0
	}
	l := math.Sqrt(len2)
	return dx / l, dy / l
}

package main

import "sort"

// EntityKind distinguishes simulation behavior: characters experience
// friction, projectiles do not.
type EntityKind uint8

const (
	KindCharacter  EntityKind = 0
	KindProjectile EntityKind = 1
)

// Entity flag bits (replicated verbatim in the flags byte)
const (
	FlagStunned uint8 = 1 << 0
	FlagInvuln  uint8 = 1 << 1
)

const (
	CharacterMaxHealth = 100
	CharacterRadius    = FixedScalar(500) // 0.5 world units

	// LifetimeInfinite marks an entity that never expires on its own.
	LifetimeInfinite = int32(-1)
)

// EntityState is the full authoritative state of one entity. Pos/Vel are
// fixed-point; Vel is in fixed units per simulation tick. LifetimeTicks
// counts down each tick when positive; the entity is removed after the
// tick that observed it at zero.
type EntityState struct {
	ID            uint32
	Kind          EntityKind
	PosX, PosY    FixedScalar
	VelX, VelY    FixedScalar
	Health        int32
	Radius        FixedScalar
	LifetimeTicks int32
	Flags         uint8
}

// wireEqual reports whether the replicated fields of two states match.
// Kind, Radius and LifetimeTicks are server-side attributes and never
// cross the wire, so they are excluded here.
func (e EntityState) wireEqual(o EntityState) bool {
	return e.ID == o.ID &&
		e.PosX == o.PosX &&
		e.PosY == o.PosY &&
		e.VelX == o.VelX &&
		e.VelY == o.VelY &&
		e.Health == o.Health &&
		e.Flags == o.Flags
}

// EntityStore owns all live entities of one session, keyed by id.
// Identifiers are allocated monotonically and never reused. The store is
// only ever touched from the simulation goroutine.
type EntityStore struct {
	entities map[uint32]*EntityState
	nextID   uint32
}

// NewEntityStore creates an empty store. Ids are handed out starting at
// firstID.
func NewEntityStore(firstID uint32) *EntityStore {
	return &EntityStore{
		entities: make(map[uint32]*EntityState),
		nextID:   firstID,
	}
}

// Allocate reserves the next entity id.
func (s *EntityStore) Allocate() uint32 {
	id := s.nextID
	s.nextID++
	return id
}

// Spawn inserts a new entity with a freshly allocated id and returns it.
func (s *EntityStore) Spawn(e EntityState) *EntityState {
	e.ID = s.Allocate()
	ent := e
	s.entities[ent.ID] = &ent
	return &ent
}

// Get returns the entity with the given id, or nil.
func (s *EntityStore) Get(id uint32) *EntityState {
	return s.entities[id]
}

// Remove deletes the entity with the given id.
func (s *EntityStore) Remove(id uint32) {
	delete(s.entities, id)
}

// Len returns the number of live entities.
func (s *EntityStore) Len() int {
	return len(s.entities)
}

// SortedIDs returns all live ids in ascending order. Map iteration order
// is not reproducible, so every per-entity pass in the simulation and
// every snapshot walks this slice instead.
func (s *EntityStore) SortedIDs() []uint32 {
	ids := make([]uint32, 0, len(s.entities))
	for id := range s.entities {
		ids = append(ids, id)
	}
	sortU32(ids)
	return ids
}

func sortU32(ids []uint32) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

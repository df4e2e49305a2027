package main

// Snapshot is the complete authoritative world state at one tick.
// Entities are ordered by ascending id so two identical worlds always
// encode to identical bytes. Snapshots are rebuilt every tick and never
// mutated after construction.
type Snapshot struct {
	Tick     uint32
	Entities []EntityState
}

// BuildSnapshot copies every live entity out of the store in ascending
// id order.
func BuildSnapshot(store *EntityStore, tick uint32) *Snapshot {
	snap := &Snapshot{
		Tick:     tick,
		Entities: make([]EntityState, 0, store.Len()),
	}
	for _, id := range store.SortedIDs() {
		snap.Entities = append(snap.Entities, *store.Get(id))
	}
	return snap
}

// index returns the snapshot's entities keyed by id, the reference form
// used for identity-keyed delta encoding.
func (s *Snapshot) index() map[uint32]EntityState {
	m := make(map[uint32]EntityState, len(s.Entities))
	for _, e := range s.Entities {
		m[e.ID] = e
	}
	return m
}

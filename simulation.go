package main

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrUnknownClient is returned when an input names a client the session
// has never seen.
var ErrUnknownClient = errors.New("unknown client")

const (
	TickDuration  = time.Second / TickRate
	SpectateRate  = 10 // spectator state broadcasts per second
	SpectateEvery = TickRate / SpectateRate

	// telemetryEvery samples bandwidth telemetry once per second of
	// simulated time.
	telemetryEvery = TickRate

	maxEntitiesPerSession = 500
	maxClientsPerSession  = 20

	firstEntityID = 1001
)

// SnapshotSink receives the authoritative snapshot and its encoded forms
// after every completed tick. Implementations must not block: the
// simulation goroutine calls them synchronously.
type SnapshotSink interface {
	OnTickComplete(snap *Snapshot, full, delta []byte)
}

// SpectatorSink receives the periodic msgpack world state feed.
type SpectatorSink interface {
	SendState(data []byte)
}

// AbilityCaster is the hook a scripting collaborator implements. Cast is
// invoked on the simulation goroutine whenever a drained input carries
// the cast action flag; the api handle is only valid for the duration of
// the call.
type AbilityCaster interface {
	Cast(api ScriptAPI, casterEntity uint32, abilityID uint16, targetX, targetY float64)
}

// Game is one session's authoritative simulation: the entity store, the
// per-client input queues, the client→entity binding table and the tick
// counter. All mutation happens on the single goroutine driving Run;
// SubmitInput may be called concurrently from transport goroutines.
type Game struct {
	mu         sync.Mutex
	store      *EntityStore
	queues     map[uint32]*InputQueue
	bindings   map[uint32]uint32 // client id -> controlled entity id
	sinks      map[uint32]SnapshotSink
	spectators map[SpectatorSink]bool
	tick       uint32
	prev       *Snapshot // reference for the next delta encoding

	caster    AbilityCaster
	telemetry *Analytics
	sessionID string

	nextClientID uint32
	running      bool
	stop         chan struct{}
	done         chan struct{}
}

// NewGame creates an empty session simulation.
func NewGame() *Game {
	return &Game{
		store:        NewEntityStore(firstEntityID),
		queues:       make(map[uint32]*InputQueue),
		bindings:     make(map[uint32]uint32),
		sinks:        make(map[uint32]SnapshotSink),
		spectators:   make(map[SpectatorSink]bool),
		nextClientID: 1,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// SetCaster installs the scripting collaborator hook.
func (g *Game) SetCaster(c AbilityCaster) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.caster = c
}

// SetTelemetry attaches the analytics recorder for this session.
func (g *Game) SetTelemetry(a *Analytics, sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.telemetry = a
	g.sessionID = sessionID
}

// AddClient allocates a client id, spawns its character at the origin
// and binds the two. Returns 0 if the session is full.
func (g *Game) AddClient() (clientID uint32, entity EntityState) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.bindings) >= maxClientsPerSession {
		return 0, EntityState{}
	}
	clientID = g.nextClientID
	g.nextClientID++

	ent := g.store.Spawn(EntityState{
		Kind:          KindCharacter,
		Health:        CharacterMaxHealth,
		Radius:        CharacterRadius,
		LifetimeTicks: LifetimeInfinite,
	})
	g.queues[clientID] = NewInputQueue()
	g.bindings[clientID] = ent.ID
	return clientID, *ent
}

// RemoveClient drops a client's queue, binding, sink and controlled
// entity.
func (g *Game) RemoveClient(clientID uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if entID, ok := g.bindings[clientID]; ok {
		g.store.Remove(entID)
	}
	delete(g.bindings, clientID)
	delete(g.queues, clientID)
	delete(g.sinks, clientID)
}

// Bind points a client at a different controlled entity. Returns false
// if either side is unknown.
func (g *Game) Bind(clientID, entityID uint32) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.queues[clientID]; !ok {
		return false
	}
	if g.store.Get(entityID) == nil {
		return false
	}
	g.bindings[clientID] = entityID
	return true
}

// SetSink attaches the per-client snapshot receiver.
func (g *Game) SetSink(clientID uint32, sink SnapshotSink) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sinks[clientID] = sink
}

// AddSpectator subscribes a read-only observer to the msgpack state feed.
func (g *Game) AddSpectator(s SpectatorSink) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.spectators[s] = true
}

// RemoveSpectator unsubscribes an observer.
func (g *Game) RemoveSpectator(s SpectatorSink) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.spectators, s)
}

// SubmitInput queues an already-deserialized input for its client.
// Returns ErrQueueFull when the client's buffer is at capacity; callers
// log and drop, the simulation never blocks on back-pressure.
func (g *Game) SubmitInput(in ClientInput) error {
	g.mu.Lock()
	q, ok := g.queues[in.ClientID]
	g.mu.Unlock()
	if !ok {
		return ErrUnknownClient
	}
	return q.Push(in)
}

// ClientCount returns the number of bound clients.
func (g *Game) ClientCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.bindings)
}

// EntityCount returns the number of live entities.
func (g *Game) EntityCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.store.Len()
}

// Tick returns the authoritative tick counter.
func (g *Game) Tick() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tick
}

// Run drives the fixed-step loop until Stop. The next deadline
// accumulates from the previous one rather than from time.Now, so tick
// timing does not drift with scheduling jitter. A tick in progress
// always runs to completion; Stop takes effect between ticks.
func (g *Game) Run() {
	g.mu.Lock()
	g.running = true
	g.mu.Unlock()
	defer close(g.done)

	next := time.Now()
	for {
		next = next.Add(TickDuration)
		if d := time.Until(next); d > 0 {
			time.Sleep(d)
		}
		select {
		case <-g.stop:
			return
		default:
		}
		g.Advance()
	}
}

// Stop terminates the loop between ticks and waits for it to exit.
func (g *Game) Stop() {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return
	}
	g.running = false
	g.mu.Unlock()
	close(g.stop)
	<-g.done
}

// Advance executes exactly one tick: drain inputs, simulate, snapshot,
// encode and distribute. Exposed so tests and offline drivers can step
// the simulation without the wall-clock loop.
func (g *Game) Advance() *Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	snap := g.step()

	full := EncodeFull(snap)
	delta := EncodeDelta(snap, g.prev)
	g.prev = snap

	for _, sink := range g.sinks {
		sink.OnTickComplete(snap, full, delta)
	}
	if len(g.spectators) > 0 && snap.Tick%SpectateEvery == 0 {
		g.broadcastSpectators(snap)
	}
	if g.telemetry != nil && snap.Tick%telemetryEvery == 0 {
		g.telemetry.TrackBandwidth(g.sessionID, snap.Tick, len(full), len(delta), len(snap.Entities))
	}
	return snap
}

// step runs one simulation tick with g.mu held.
func (g *Game) step() *Snapshot {
	// 1) Apply queued inputs, walking clients in ascending id order so
	// two runs with identical input sequences stay bit-identical.
	clientIDs := make([]uint32, 0, len(g.queues))
	for id := range g.queues {
		clientIDs = append(clientIDs, id)
	}
	sortU32(clientIDs)

	api := scriptContext{g}
	for _, clientID := range clientIDs {
		inputs := g.queues[clientID].DrainForTick(g.tick)
		if len(inputs) == 0 {
			continue
		}
		entID, bound := g.bindings[clientID]
		if !bound {
			continue
		}
		ent := g.store.Get(entID)
		if ent == nil {
			continue
		}
		g.applyInputs(ent, inputs, api)
	}

	// 2) Integrate motion in ascending id order. Characters bleed
	// velocity through friction, projectiles coast. Finite lifetimes
	// count down; an entity observed at zero is collected after the
	// snapshot that observed it, so it appears in exactly
	// lifetime-many snapshots.
	var expired []uint32
	for _, id := range g.store.SortedIDs() {
		e := g.store.Get(id)
		e.PosX += e.VelX
		e.PosY += e.VelY
		if e.Kind == KindCharacter {
			e.VelX = approachZero(e.VelX, FrictionPerTick)
			e.VelY = approachZero(e.VelY, FrictionPerTick)
		}
		if e.LifetimeTicks > 0 {
			e.LifetimeTicks--
		}
		if e.LifetimeTicks == 0 {
			expired = append(expired, id)
		}
	}

	// 3) Snapshot, then finalize removals and advance the tick.
	snap := BuildSnapshot(g.store, g.tick)
	for _, id := range expired {
		g.store.Remove(id)
	}
	g.tick++
	return snap
}

// applyInputs resolves one client's drained batch against its entity.
// Among same-tick movement inputs the last non-zero direction wins; cast
// actions fire in FIFO order.
func (g *Game) applyInputs(e *EntityState, inputs []ClientInput, api ScriptAPI) {
	var move *ClientInput
	for i := range inputs {
		in := &inputs[i]
		if in.MoveDX != 0 || in.MoveDY != 0 {
			move = in
		}
		if in.ActionFlags&ActionCast != 0 && g.caster != nil {
			g.caster.Cast(api, e.ID, in.AbilityID, in.TargetX.World(), in.TargetY.World())
		}
	}
	if move != nil {
		e.VelX = MaxSpeedPerTick * FixedScalar(move.MoveDX) / 127
		e.VelY = MaxSpeedPerTick * FixedScalar(move.MoveDY) / 127
	}
}

// broadcastSpectators sends the display-unit world state to observers.
// Called with g.mu held; sends must not block.
func (g *Game) broadcastSpectators(snap *Snapshot) {
	state := WorldState{Tick: snap.Tick, Entities: make([]WorldEntity, 0, len(snap.Entities))}
	for _, e := range snap.Entities {
		state.Entities = append(state.Entities, WorldEntity{
			ID:     e.ID,
			Kind:   uint8(e.Kind),
			X:      e.PosX.World(),
			Y:      e.PosY.World(),
			VX:     e.VelX.World(),
			VY:     e.VelY.World(),
			Health: e.Health,
		})
	}
	data, err := msgpack.Marshal(&state)
	if err != nil {
		log.Printf("spectator marshal error: %v", err)
		return
	}
	for s := range g.spectators {
		s.SendState(data)
	}
}

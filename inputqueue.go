package main

import (
	"errors"
	"sync"
)

const maxClientInputQueue = 256

// ErrQueueFull is returned by Push when the per-client buffer is at
// capacity. Overflow is rejection, never blocking; the caller decides
// whether to log and drop.
var ErrQueueFull = errors.New("input queue full")

// Action flag bits carried in ClientInput.ActionFlags.
const (
	ActionAttack uint8 = 1 << 0
	ActionCast   uint8 = 1 << 1
)

// ClientInput is one already-deserialized input command. InputSeq is
// informational only: duplicates and out-of-order values are accepted,
// ordering guarantees belong to the transport.
type ClientInput struct {
	ClientID    uint32
	InputSeq    uint32
	TargetTick  uint32
	MoveDX      int8 // normalized direction * 127
	MoveDY      int8
	ActionFlags uint8
	AbilityID   uint16
	TargetX     FixedScalar
	TargetY     FixedScalar
}

// InputQueue buffers pending inputs for a single client. Push may be
// called from any goroutine (the transport's read loop); DrainForTick
// runs exclusively on the simulation goroutine.
type InputQueue struct {
	mu      sync.Mutex
	pending []ClientInput
}

// NewInputQueue creates an empty queue.
func NewInputQueue() *InputQueue {
	return &InputQueue{pending: make([]ClientInput, 0, 16)}
}

// Push appends an input in arrival order. Returns ErrQueueFull once the
// queue holds maxClientInputQueue entries; the queue is left untouched.
func (q *InputQueue) Push(in ClientInput) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) >= maxClientInputQueue {
		return ErrQueueFull
	}
	q.pending = append(q.pending, in)
	return nil
}

// DrainForTick removes and returns, in FIFO order, every entry targeting
// the given tick. All other entries are retained in their original
// relative order.
func (q *InputQueue) DrainForTick(tick uint32) []ClientInput {
	q.mu.Lock()
	defer q.mu.Unlock()

	var drained []ClientInput
	kept := q.pending[:0]
	for _, in := range q.pending {
		if in.TargetTick == tick {
			drained = append(drained, in)
		} else {
			kept = append(kept, in)
		}
	}
	q.pending = kept
	return drained
}

// Len returns the current queue depth.
func (q *InputQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

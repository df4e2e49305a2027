package main

import (
	"sync"
	"testing"
)

func TestQueueDrainForTick(t *testing.T) {
	q := NewInputQueue()
	seqs := []struct {
		seq  uint32
		tick uint32
	}{
		{1, 5}, {2, 6}, {3, 5}, {4, 7}, {5, 5},
	}
	for _, s := range seqs {
		if err := q.Push(ClientInput{InputSeq: s.seq, TargetTick: s.tick}); err != nil {
			t.Fatalf("push: %v", err)
		}
	}

	drained := q.DrainForTick(5)
	if len(drained) != 3 {
		t.Fatalf("expected 3 drained, got %d", len(drained))
	}
	// FIFO order among same-tick siblings
	for i, want := range []uint32{1, 3, 5} {
		if drained[i].InputSeq != want {
			t.Errorf("drained[%d].seq = %d, want %d", i, drained[i].InputSeq, want)
		}
	}

	// remaining entries keep their relative order
	rest := q.DrainForTick(6)
	if len(rest) != 1 || rest[0].InputSeq != 2 {
		t.Errorf("tick 6 drain wrong: %+v", rest)
	}
	rest = q.DrainForTick(7)
	if len(rest) != 1 || rest[0].InputSeq != 4 {
		t.Errorf("tick 7 drain wrong: %+v", rest)
	}
	if q.Len() != 0 {
		t.Errorf("queue should be empty, has %d", q.Len())
	}
}

func TestQueueDrainEmptyForTick(t *testing.T) {
	q := NewInputQueue()
	q.Push(ClientInput{InputSeq: 1, TargetTick: 3})
	if got := q.DrainForTick(2); len(got) != 0 {
		t.Errorf("expected nothing for tick 2, got %d", len(got))
	}
	if q.Len() != 1 {
		t.Errorf("entry for other tick must be retained")
	}
}

func TestQueueBound(t *testing.T) {
	q := NewInputQueue()
	for i := 0; i < maxClientInputQueue; i++ {
		if err := q.Push(ClientInput{InputSeq: uint32(i), TargetTick: 1}); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	if err := q.Push(ClientInput{InputSeq: 999, TargetTick: 1}); err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	// the rejected push must not have mutated the queue
	if q.Len() != maxClientInputQueue {
		t.Fatalf("queue depth changed: %d", q.Len())
	}
	drained := q.DrainForTick(1)
	if len(drained) != maxClientInputQueue {
		t.Fatalf("expected %d entries, got %d", maxClientInputQueue, len(drained))
	}
	for i, in := range drained {
		if in.InputSeq != uint32(i) {
			t.Fatalf("entry %d has seq %d, order corrupted", i, in.InputSeq)
		}
	}
}

func TestQueueConcurrentPush(t *testing.T) {
	q := NewInputQueue()
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 16; i++ {
				q.Push(ClientInput{ClientID: uint32(p), TargetTick: 1})
			}
		}(p)
	}
	wg.Wait()
	if got := len(q.DrainForTick(1)); got != 8*16 {
		t.Errorf("expected %d entries, got %d", 8*16, got)
	}
}

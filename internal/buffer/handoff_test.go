package buffer

import (
	"sync"
	"testing"
)

func TestHandoffBasicSendReceive(t *testing.T) {
	h := NewHandoff[int](4)

	for i := 0; i < 3; i++ {
		if !h.Send(i) {
			t.Fatalf("Send(%d) = false, want true", i)
		}
	}
	if h.Len() != 3 {
		t.Errorf("Len() = %d, want 3", h.Len())
	}

	for i := 0; i < 3; i++ {
		got, ok := h.Receive()
		if !ok {
			t.Fatalf("Receive() #%d closed early", i)
		}
		if got != i {
			t.Errorf("Receive() = %d, want %d", got, i)
		}
	}
}

func TestHandoffGrowsWhenFull(t *testing.T) {
	h := NewHandoff[int](2)

	for i := 0; i < 5; i++ {
		h.Send(i)
	}

	stats := h.Stats()
	if stats.Count != 5 {
		t.Errorf("Count = %d, want 5", stats.Count)
	}
	if stats.Capacity < 5 {
		t.Errorf("Capacity = %d, want >= 5", stats.Capacity)
	}
	if stats.Grows < 1 {
		t.Errorf("Grows = %d, want >= 1", stats.Grows)
	}

	// FIFO order must survive the grow
	for i := 0; i < 5; i++ {
		got, _ := h.Receive()
		if got != i {
			t.Errorf("Receive() = %d, want %d", got, i)
		}
	}
}

func TestHandoffGrowPreservesWrappedOrder(t *testing.T) {
	h := NewHandoff[int](4)

	// Advance head so the ring wraps before growing.
	h.Send(0)
	h.Send(1)
	h.Receive()
	h.Receive()

	for i := 2; i < 9; i++ {
		h.Send(i)
	}

	for i := 2; i < 9; i++ {
		got, _ := h.Receive()
		if got != i {
			t.Errorf("Receive() = %d, want %d", got, i)
		}
	}
}

func TestHandoffCloseDrainsRemaining(t *testing.T) {
	h := NewHandoff[int](4)

	h.Send(1)
	h.Send(2)
	h.Close()

	if h.Send(3) {
		t.Error("Send after Close returned true")
	}

	for want := 1; want <= 2; want++ {
		got, ok := h.Receive()
		if !ok || got != want {
			t.Errorf("Receive() = (%d, %v), want (%d, true)", got, ok, want)
		}
	}

	if _, ok := h.Receive(); ok {
		t.Error("Receive on drained closed queue returned true")
	}
}

func TestHandoffCloseWakesBlockedReceivers(t *testing.T) {
	h := NewHandoff[int](4)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, ok := h.Receive(); ok {
			t.Error("blocked Receive returned an item from an empty queue")
		}
	}()

	h.Close()
	wg.Wait()
}

func TestHandoffTryReceive(t *testing.T) {
	h := NewHandoff[int](4)

	if _, ok := h.TryReceive(); ok {
		t.Error("TryReceive on empty queue returned true")
	}

	h.Send(42)
	got, ok := h.TryReceive()
	if !ok || got != 42 {
		t.Errorf("TryReceive() = (%d, %v), want (42, true)", got, ok)
	}
}

func TestHandoffDrainTo(t *testing.T) {
	h := NewHandoff[int](4)
	for i := 0; i < 6; i++ {
		h.Send(i)
	}

	first := h.DrainTo(2)
	if len(first) != 2 || first[0] != 0 || first[1] != 1 {
		t.Errorf("DrainTo(2) = %v, want [0 1]", first)
	}

	rest := h.DrainTo(0)
	if len(rest) != 4 || rest[0] != 2 || rest[3] != 5 {
		t.Errorf("DrainTo(0) = %v, want [2 3 4 5]", rest)
	}

	if out := h.DrainTo(0); out != nil {
		t.Errorf("DrainTo on empty queue = %v, want nil", out)
	}
}

func TestHandoffStats(t *testing.T) {
	h := NewHandoff[int](4)

	h.Send(1)
	h.Send(2)
	h.Receive()

	stats := h.Stats()
	if stats.TotalIn != 2 {
		t.Errorf("TotalIn = %d, want 2", stats.TotalIn)
	}
	if stats.TotalOut != 1 {
		t.Errorf("TotalOut = %d, want 1", stats.TotalOut)
	}
	if stats.Count != 1 {
		t.Errorf("Count = %d, want 1", stats.Count)
	}
}

package bufring

import "testing"

func TestNewSlabRejectsNonPowerOfTwo(t *testing.T) {
	if _, err := NewSlab(3, 1024); err == nil {
		t.Fatalf("expected error for non-power-of-two entries")
	}
}

func TestSlabBufferIsolation(t *testing.T) {
	s, err := NewSlab(4, 16)
	if err != nil {
		t.Fatalf("NewSlab: %v", err)
	}
	b0 := s.Buffer(0)
	b1 := s.Buffer(1)
	if len(b0) != 16 || len(b1) != 16 {
		t.Fatalf("unexpected chunk size")
	}
	b0[0] = 0xFF
	if b1[0] == 0xFF {
		t.Fatalf("buffer chunks must not overlap")
	}
	if s.BasePointer()%slabAlignment != 0 {
		t.Fatalf("slab base pointer must be 64-byte aligned")
	}
}

func TestRefcountReclaimOnlyWhenDoneAndUnreferenced(t *testing.T) {
	m := NewRefcountManager(4)

	m.OnReceive(2, 100, false)
	if m.Reclaimable(2) {
		t.Fatalf("buffer with outstanding reference and not kernel-done must not be reclaimable")
	}

	m.OnReceive(2, 50, true) // terminating completion, second reference
	if m.Reclaimable(2) {
		t.Fatalf("two outstanding references must block reclaim")
	}

	m.OnReturn(2)
	if m.Reclaimable(2) {
		t.Fatalf("one outstanding reference must still block reclaim")
	}

	m.OnReturn(2)
	if !m.Reclaimable(2) {
		t.Fatalf("refcount 0 and kernel done must be reclaimable")
	}
	if m.Offset(2) != 150 {
		t.Fatalf("expected offset 150, got %d", m.Offset(2))
	}

	m.Reclaim(2)
	if m.Offset(2) != 0 {
		t.Fatalf("reclaim must reset offset")
	}
	m.OnReceive(2, 10, false)
	if m.Reclaimable(2) {
		t.Fatalf("after reclaim, kernelDone must be cleared")
	}
}

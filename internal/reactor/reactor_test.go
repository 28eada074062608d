package reactor

import (
	"testing"
	"time"

	"github.com/ringtcp/ringtcp/internal/conn"
)

func newTestReactor(t *testing.T) *Reactor {
	t.Helper()
	cfg := Config{
		ReceiveBufferSize: 4096,
		BufferRingEntries: 16,
		CompletionBatch:   32,
		MaxConnections:    16,
		WaitTimeout:       5 * time.Millisecond,
	}
	r, err := New(0, cfg, func(*conn.Connection) {})
	if err != nil {
		t.Skipf("reactor construction unavailable in this environment: %v", err)
	}
	return r
}

func TestNewAppliesDefaults(t *testing.T) {
	r := newTestReactor(t)
	defer r.Stop()

	if r.cfg.CompletionBatch != 32 {
		t.Errorf("CompletionBatch = %d, want 32 (explicit)", r.cfg.CompletionBatch)
	}

	cfg2 := Config{}
	r2, err := New(1, cfg2, func(*conn.Connection) {})
	if err != nil {
		t.Skipf("reactor construction unavailable in this environment: %v", err)
	}
	defer r2.Stop()

	if r2.cfg.CompletionBatch != defaultCompletionBatch {
		t.Errorf("CompletionBatch = %d, want default %d", r2.cfg.CompletionBatch, defaultCompletionBatch)
	}
	if r2.cfg.WaitTimeout != defaultWaitTimeout {
		t.Errorf("WaitTimeout = %v, want default %v", r2.cfg.WaitTimeout, defaultWaitTimeout)
	}
	if r2.cfg.ReceiveBufferSize != 4096 {
		t.Errorf("ReceiveBufferSize = %d, want default 4096", r2.cfg.ReceiveBufferSize)
	}
}

func TestReactorIDAndQueueAccessors(t *testing.T) {
	r := newTestReactor(t)
	defer r.Stop()

	if r.ID() != 0 {
		t.Errorf("ID() = %d, want 0", r.ID())
	}
	if r.ReturnQueue() == nil {
		t.Error("ReturnQueue() returned nil")
	}
	if r.FlushQueue() == nil {
		t.Error("FlushQueue() returned nil")
	}
}

func TestDispatchQueuesDescriptor(t *testing.T) {
	r := newTestReactor(t)
	defer r.Stop()

	r.Dispatch(42)

	select {
	case fd := <-r.newDescs:
		if fd != 42 {
			t.Errorf("dispatched fd = %d, want 42", fd)
		}
	default:
		t.Fatal("expected Dispatch to enqueue onto newDescs")
	}
}

func TestPtrOfEmptySlice(t *testing.T) {
	if got := ptrOf(nil); got != 0 {
		t.Errorf("ptrOf(nil) = %d, want 0", got)
	}
	if got := ptrOf([]byte{}); got != 0 {
		t.Errorf("ptrOf(empty) = %d, want 0", got)
	}
}

func TestPtrOfNonEmptySlice(t *testing.T) {
	b := []byte{1, 2, 3}
	if got := ptrOf(b); got == 0 {
		t.Error("ptrOf(non-empty) should not be 0")
	}
}

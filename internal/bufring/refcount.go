package bufring

// state tracks a single buffer id's incremental-consumption bookkeeping.
// All state lives on the reactor thread: returns arrive through the MPSC
// return queue and are drained sequentially, so none of this needs atomics.
type state struct {
	offset     uint32
	refcount   uint32
	kernelDone bool
}

// RefcountManager implements the tri-state buffer refcount protocol used
// when incremental buffer consumption is enabled (§4.5): a buffer can be
// re-published to the ring only once every outstanding RingItem referring
// to it has been returned and the kernel has signalled it is done writing
// into that buffer.
//
// When incremental consumption is disabled, callers should not use this
// type at all: each receive completion consumes a whole buffer, and it is
// republishable as soon as its single return arrives.
type RefcountManager struct {
	states []state
}

// NewRefcountManager creates a manager sized for entries buffer ids.
func NewRefcountManager(entries int) *RefcountManager {
	return &RefcountManager{states: make([]state, entries)}
}

// OnReceive records an incremental receive completion for id: one more
// outstanding reference, offset advanced by length, and kernelDone set
// only if this was the terminating completion for the buffer (the kernel
// did not report "more to come").
func (m *RefcountManager) OnReceive(id uint16, length int, final bool) {
	s := &m.states[id]
	s.refcount++
	s.offset += uint32(length)
	if final {
		s.kernelDone = true
	}
}

// OnReturn records a handler's return of a RingItem referencing id.
func (m *RefcountManager) OnReturn(id uint16) {
	s := &m.states[id]
	if s.refcount > 0 {
		s.refcount--
	}
}

// Reclaimable reports whether id may be re-published to the provided
// buffer ring: no outstanding references and the kernel is done with it.
func (m *RefcountManager) Reclaimable(id uint16) bool {
	s := &m.states[id]
	return s.refcount == 0 && s.kernelDone
}

// Reclaim resets id's bookkeeping after it has been re-published. Callers
// must only call this when Reclaimable(id) is true.
func (m *RefcountManager) Reclaim(id uint16) {
	s := &m.states[id]
	s.offset = 0
	s.kernelDone = false
}

// Offset returns the current write offset within buffer id, the position
// at which the next incremental receive will land.
func (m *RefcountManager) Offset(id uint16) uint32 {
	return m.states[id].offset
}

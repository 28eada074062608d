// Package bufring implements the per-reactor buffer-ring slab: a single
// unmanaged allocation of fixed-size receive chunks registered with the
// kernel as a provided buffer ring, plus the refcount bookkeeping needed
// when incremental buffer consumption is enabled.
package bufring

import "fmt"

const slabAlignment = 64

// Slab is a single contiguous allocation divided into entries equal-size
// chunks. buffer_id indexes a chunk at slab + buffer_id*bufferSize.
// entries must be a power of two.
type Slab struct {
	raw        []byte
	aligned    []byte
	bufferSize int
	entries    int
	mask       uint64
}

// NewSlab allocates a slab of entries chunks of bufferSize bytes each,
// aligned to a 64-byte boundary. entries must be a power of two.
func NewSlab(entries, bufferSize int) (*Slab, error) {
	if entries < 1 || entries&(entries-1) != 0 {
		return nil, fmt.Errorf("bufring: entries must be a power of two, got %d", entries)
	}
	if bufferSize <= 0 {
		return nil, fmt.Errorf("bufring: bufferSize must be positive, got %d", bufferSize)
	}

	total := entries * bufferSize
	raw := make([]byte, total+slabAlignment-1)
	off := alignOffset(raw, slabAlignment)

	return &Slab{
		raw:        raw,
		aligned:    raw[off : off+total],
		bufferSize: bufferSize,
		entries:    entries,
		mask:       uint64(entries) - 1,
	}, nil
}

func alignOffset(b []byte, align int) int {
	if len(b) == 0 {
		return 0
	}
	addr := sliceAddr(b)
	rem := addr % uintptr(align)
	if rem == 0 {
		return 0
	}
	return int(uintptr(align) - rem)
}

// Entries returns the number of chunks in the slab.
func (s *Slab) Entries() int { return s.entries }

// Mask returns entries-1, used to wrap buffer ids and ring cursor math.
func (s *Slab) Mask() uint64 { return s.mask }

// BufferSize returns the size in bytes of a single chunk.
func (s *Slab) BufferSize() int { return s.bufferSize }

// Buffer returns the chunk for the given buffer id, the whole chunk
// regardless of how much of it is currently filled.
func (s *Slab) Buffer(id uint16) []byte {
	start := int(id) * s.bufferSize
	return s.aligned[start : start+s.bufferSize]
}

// BasePointer returns the address of chunk 0, the value registered with
// the kernel as the provided buffer ring's backing address.
func (s *Slab) BasePointer() uintptr {
	return sliceAddr(s.aligned)
}

// Package scratch manages the fallback capture target used when the pending
// queue runs dry. The hardware keeps writing at frame cadence regardless of
// buffer supply; pointing a starved slot at the scratch planes stops it from
// scribbling over address zero.
package scratch

import "fmt"

// Pool allocates physically contiguous, DMA-capable memory. AllocCoherent
// may sleep and must never be called while the engine's buffer lock is held.
type Pool interface {
	AllocCoherent(size int) (*Region, error)
}

// Region is one contiguous DMA-capable allocation.
type Region struct {
	// Addr is the bus address programmed into the buffer-pointer registers.
	Addr uint32
	// Data is the CPU-visible mapping of the region.
	Data []byte

	free func()
}

// NewRegion builds a region around an allocation. free releases the backing
// memory and may be nil.
func NewRegion(addr uint32, data []byte, free func()) *Region {
	return &Region{Addr: addr, Data: data, free: free}
}

// Free releases the backing memory. Safe to call more than once.
func (r *Region) Free() {
	if r.free != nil {
		r.free()
		r.free = nil
	}
}

// Scratch holds one engine-owned allocation per color plane, all of the same
// geometry as the real capture buffers. Its lifetime is bound to a single
// streaming session: Allocate before power-up, Free on stop.
//
// Allocate and Free are control-context operations. The interrupt path only
// calls Addresses, which is safe without a lock because the regions are
// published before capture starts and torn down after it stops, with the
// engine's buffer lock ordering the two.
type Scratch struct {
	pool      Pool
	regions   [3]*Region
	planes    int
	allocated bool
}

// New creates an empty scratch buffer backed by pool.
func New(pool Pool) *Scratch {
	return &Scratch{pool: pool}
}

// Allocate sets up one region per plane. A previous allocation is always
// released first so a failed or repeated session cannot leak its memory.
func (s *Scratch) Allocate(planeCount, planeSize int) error {
	s.Free()

	if planeCount < 1 || planeCount > len(s.regions) {
		return fmt.Errorf("scratch: invalid plane count %d", planeCount)
	}
	if planeSize <= 0 {
		return fmt.Errorf("scratch: invalid plane size %d", planeSize)
	}

	for i := 0; i < planeCount; i++ {
		region, err := s.pool.AllocCoherent(planeSize)
		if err != nil {
			s.planes = i
			s.allocated = true
			s.Free()
			return fmt.Errorf("scratch: plane %d allocation failed: %w", i, err)
		}
		s.regions[i] = region
	}

	s.planes = planeCount
	s.allocated = true

	return nil
}

// Free releases all regions. Idempotent; safe to call when nothing is
// allocated.
func (s *Scratch) Free() {
	if !s.allocated {
		return
	}

	for i := 0; i < s.planes; i++ {
		if s.regions[i] != nil {
			s.regions[i].Free()
			s.regions[i] = nil
		}
	}

	s.planes = 0
	s.allocated = false
}

// Allocated reports whether the scratch buffer currently holds memory.
func (s *Scratch) Allocated() bool {
	return s.allocated
}

// Addresses returns the per-plane bus addresses. Planes beyond the allocated
// count read as zero.
func (s *Scratch) Addresses() [3]uint32 {
	var addrs [3]uint32
	for i := 0; i < s.planes; i++ {
		if s.regions[i] != nil {
			addrs[i] = s.regions[i].Addr
		}
	}
	return addrs
}

// Plane returns the CPU-visible mapping of one plane, or nil when the plane
// is not allocated.
func (s *Scratch) Plane(i int) []byte {
	if i < 0 || i >= s.planes || s.regions[i] == nil {
		return nil
	}
	return s.regions[i].Data
}

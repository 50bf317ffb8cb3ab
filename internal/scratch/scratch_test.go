package scratch

import (
	"errors"
	"testing"
)

// fakePool counts allocations and frees, and can fail after a set number of
// successful allocations.
type fakePool struct {
	failAfter int // 0 = never fail
	allocs    int
	frees     int
	next      uint32
}

func (p *fakePool) AllocCoherent(size int) (*Region, error) {
	if p.failAfter > 0 && p.allocs >= p.failAfter {
		return nil, errors.New("out of memory")
	}
	p.allocs++
	p.next += 0x1000
	addr := p.next
	return NewRegion(addr, make([]byte, size), func() { p.frees++ }), nil
}

func TestScratch_AllocateAndFree(t *testing.T) {
	pool := &fakePool{}
	s := New(pool)

	if s.Allocated() {
		t.Fatal("fresh scratch reports allocated")
	}

	if err := s.Allocate(3, 64); err != nil {
		t.Fatalf("Allocate() failed: %v", err)
	}
	if !s.Allocated() {
		t.Fatal("scratch not allocated after Allocate()")
	}
	if pool.allocs != 3 {
		t.Errorf("pool allocs = %d, want 3", pool.allocs)
	}

	addrs := s.Addresses()
	for i := 0; i < 3; i++ {
		if addrs[i] == 0 {
			t.Errorf("plane %d address is zero", i)
		}
	}
	for i := 0; i < 3; i++ {
		if got := len(s.Plane(i)); got != 64 {
			t.Errorf("Plane(%d) size = %d, want 64", i, got)
		}
	}

	s.Free()
	if s.Allocated() {
		t.Error("scratch still allocated after Free()")
	}
	if pool.frees != 3 {
		t.Errorf("pool frees = %d, want 3", pool.frees)
	}
	if got := s.Addresses(); got != [3]uint32{} {
		t.Errorf("Addresses() after Free() = %v, want all zero", got)
	}
}

func TestScratch_FreeIdempotent(t *testing.T) {
	pool := &fakePool{}
	s := New(pool)

	// Free before any allocation must be safe.
	s.Free()

	if err := s.Allocate(2, 16); err != nil {
		t.Fatalf("Allocate() failed: %v", err)
	}

	s.Free()
	s.Free()
	s.Free()

	if pool.frees != 2 {
		t.Errorf("pool frees = %d, want 2 (double free)", pool.frees)
	}
}

func TestScratch_ReallocateFreesFirst(t *testing.T) {
	pool := &fakePool{}
	s := New(pool)

	if err := s.Allocate(3, 16); err != nil {
		t.Fatalf("first Allocate() failed: %v", err)
	}
	if err := s.Allocate(3, 16); err != nil {
		t.Fatalf("second Allocate() failed: %v", err)
	}

	if pool.allocs != 6 {
		t.Errorf("pool allocs = %d, want 6", pool.allocs)
	}
	if pool.frees != 3 {
		t.Errorf("pool frees = %d, want 3 (previous session leaked)", pool.frees)
	}
}

func TestScratch_PartialFailureReleasesPlanes(t *testing.T) {
	pool := &fakePool{failAfter: 2}
	s := New(pool)

	err := s.Allocate(3, 16)
	if err == nil {
		t.Fatal("Allocate() succeeded with failing pool")
	}
	if s.Allocated() {
		t.Error("scratch reports allocated after failed Allocate()")
	}
	if pool.frees != pool.allocs {
		t.Errorf("pool frees = %d, allocs = %d; partial allocation leaked", pool.frees, pool.allocs)
	}
}

func TestScratch_InvalidGeometry(t *testing.T) {
	s := New(&fakePool{})

	cases := []struct {
		name       string
		planeCount int
		planeSize  int
	}{
		{"zero_planes", 0, 16},
		{"too_many_planes", 4, 16},
		{"zero_size", 3, 0},
		{"negative_size", 3, -1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := s.Allocate(tc.planeCount, tc.planeSize); err == nil {
				t.Errorf("Allocate(%d, %d) succeeded", tc.planeCount, tc.planeSize)
			}
		})
	}
}

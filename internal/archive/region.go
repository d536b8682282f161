package archive

import "fmt"

const objAlignment = 8

func alignUp(n uint64) uint64 {
	return (n + objAlignment - 1) &^ (objAlignment - 1)
}

// region is a bump allocator over one archive region. Offsets handed out
// are stable for the rest of the build; the backing bytes are only
// materialized at encode time.
type region struct {
	kind     RegionKind
	top      uint64
	capacity uint64
}

func newRegion(kind RegionKind, capacity uint64) *region {
	return &region{kind: kind, capacity: capacity}
}

// alloc reserves size bytes, 8-byte aligned.
func (r *region) alloc(size uint64) (uint64, error) {
	size = alignUp(size)
	if r.top+size > r.capacity {
		return 0, fmt.Errorf("%w: %s region needs %d bytes over the %d reserved",
			ErrCapacity, r.kind, r.top+size-r.capacity, r.capacity)
	}
	off := r.top
	r.top += size
	return off, nil
}

func (r *region) used() uint64 { return r.top }

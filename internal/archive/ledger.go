package archive

import "github.com/mabhi256/jarc/internal/meta"

// RegionKind selects which buffer region an object is copied into.
// Read-write holds metadata the runtime mutates after mapping (classes,
// constant pools, training records); read-only holds everything else.
type RegionKind uint8

const (
	RegionRW RegionKind = iota
	RegionRO
	regionCount
)

func (k RegionKind) String() string {
	switch k {
	case RegionRW:
		return "rw"
	case RegionRO:
		return "ro"
	default:
		return "?"
	}
}

// ObjID numbers every copied object in copy order, starting at 1.
type ObjID uint32

// ObjInfo tracks one copied object across the build: its identity in both
// address spaces, its placement, and whether its pointer slots are
// currently marked safe to encode.
type ObjInfo struct {
	ID     ObjID
	Kind   RegionKind
	Offset uint64 // within the region
	Size   uint64

	Live     any // source object; nil for objects created during the build
	Buffered meta.Archivable

	// Marked is set when the object's reference slots have been rewritten
	// to buffered or base-archive targets. Phases that reorder an object's
	// slots clear the mark and must restore it; the encoder refuses
	// unmarked objects.
	Marked bool
}

// Ledger is the relocation table: every copied object gets an id and a
// placement at copy time, and both its live and buffered identities map
// back to that entry. A reference to an object the ledger has never seen
// is a hard error at encode time, never a silent bad address.
type Ledger struct {
	byLive     map[any]*ObjInfo
	byBuffered map[any]*ObjInfo
	objs       []*ObjInfo // id order
}

func NewLedger() *Ledger {
	return &Ledger{
		byLive:     make(map[any]*ObjInfo),
		byBuffered: make(map[any]*ObjInfo),
	}
}

// Register records a copied object. live may be nil for objects that only
// exist in the buffer (root blocks, preload tables).
func (l *Ledger) Register(live any, buffered meta.Archivable, kind RegionKind, offset, size uint64) *ObjInfo {
	info := &ObjInfo{
		ID:       ObjID(len(l.objs) + 1),
		Kind:     kind,
		Offset:   offset,
		Size:     size,
		Live:     live,
		Buffered: buffered,
	}
	l.objs = append(l.objs, info)
	l.byBuffered[buffered] = info
	if live != nil {
		l.byLive[live] = info
	}
	return info
}

// LookupLive returns the ledger entry for a source object, if it was copied.
func (l *Ledger) LookupLive(live any) (*ObjInfo, bool) {
	info, ok := l.byLive[live]
	return info, ok
}

// LookupBuffered returns the ledger entry for a buffered object.
func (l *Ledger) LookupBuffered(buffered any) (*ObjInfo, bool) {
	info, ok := l.byBuffered[buffered]
	return info, ok
}

// BufferedFor translates a live object to its buffered copy, or returns
// the input unchanged when it was never copied.
func (l *Ledger) BufferedFor(live any) any {
	if info, ok := l.byLive[live]; ok {
		return info.Buffered
	}
	return live
}

// Objects returns all entries in id order.
func (l *Ledger) Objects() []*ObjInfo { return l.objs }

func (l *Ledger) Len() int { return len(l.objs) }

// Mark flags a buffered object's slots as encode-safe.
func (l *Ledger) Mark(buffered any) {
	if info, ok := l.byBuffered[buffered]; ok {
		info.Marked = true
	}
}

// ClearMark revokes encode-safety before a phase rewrites the object's
// slots. Encoding an object left in this state fails loudly.
func (l *Ledger) ClearMark(buffered any) {
	if info, ok := l.byBuffered[buffered]; ok {
		info.Marked = false
	}
}

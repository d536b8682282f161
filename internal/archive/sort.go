package archive

import (
	"sort"

	"github.com/oleiade/lane"

	"github.com/mabhi256/jarc/internal/meta"
)

// sortAndRelayout orders every buffered class's methods by the final
// buffer position of their name symbols and re-derives dispatch tables
// from the new order. Supertypes are handled before subtypes so a
// subclass vtable is rebuilt from an already-rebuilt super vtable.
//
// The visited set doubles as the idempotence sentinel: running the phase
// against an already-sorted class is a no-op, so a crash-and-retry inside
// this phase cannot double-apply the reorder.
func (b *Builder) sortAndRelayout() error {
	if err := b.advance(PhaseSortRelayout); err != nil {
		return err
	}
	for _, info := range b.ledger.Objects() {
		if c, ok := info.Buffered.(*meta.Class); ok {
			b.sortClass(c)
		}
	}
	return nil
}

type sortFrame struct {
	class    *meta.Class
	expanded bool
}

// sortClass reorders c after its supertypes. Explicit stack; class
// hierarchies can be deep.
func (b *Builder) sortClass(c *meta.Class) {
	st := lane.NewStack()
	for st.Push(sortFrame{class: c}); !st.Empty(); {
		f := st.Pop().(sortFrame)
		k := f.class

		if f.expanded {
			b.reorderMethods(k)
			continue
		}

		if k == nil || b.sortVisited[k] {
			continue
		}
		if _, ok := b.ledger.LookupBuffered(k); !ok {
			// Base-archive class: already sorted when its own archive
			// was dumped.
			continue
		}
		b.sortVisited[k] = true

		st.Push(sortFrame{class: k, expanded: true})
		for i := len(k.Interfaces) - 1; i >= 0; i-- {
			st.Push(sortFrame{class: k.Interfaces[i]})
		}
		if k.Super != nil {
			st.Push(sortFrame{class: k.Super})
		}
	}
}

func (b *Builder) reorderMethods(c *meta.Class) {
	// The reorder invalidates the object's resolved slots until the
	// dispatch tables are rebuilt, so encode-safety is revoked across it.
	b.ledger.ClearMark(c)

	sort.SliceStable(c.Methods, func(i, j int) bool {
		a, bn := c.Methods[i].Name, c.Methods[j].Name
		if a == bn {
			return false
		}
		return b.symbolPos(a) < b.symbolPos(bn)
	})

	if c.Linked {
		c.BuildDispatchTables()
	}

	b.ledger.Mark(c)
}

// symbolPos is the sort key: the symbol's address in the requested
// space. Symbols from the base archive keep their mapped address, so the
// ordering is total across both archives.
func (b *Builder) symbolPos(s *meta.Symbol) uint64 {
	if info, ok := b.ledger.LookupBuffered(s); ok {
		return b.requestedAddr(info)
	}
	if b.cfg.Base != nil {
		if addr, ok := b.cfg.Base.AddressOf(s); ok {
			return addr
		}
	}
	return 0
}

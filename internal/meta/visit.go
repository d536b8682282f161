package meta

// Slot is a settable reference location inside an archivable object. The
// archive builder walks slots to relocate embedded pointers; owners of
// metadata expose their layout through VisitRefs without the builder
// knowing their internals.
type Slot struct {
	Get func() any
	Set func(any)
}

// RefTo adapts a typed pointer field into a Slot.
func RefTo[T comparable](p *T) Slot {
	return Slot{
		Get: func() any {
			var zero T
			if *p == zero {
				return nil
			}
			return *p
		},
		Set: func(v any) {
			var zero T
			if v == nil {
				*p = zero
				return
			}
			*p = v.(T)
		},
	}
}

// Archivable is implemented by every metadata object that can be copied
// into an archive buffer.
type Archivable interface {
	VisitRefs(visit func(Slot))
}

func (s *Symbol) VisitRefs(visit func(Slot)) {}

// Clone returns a detached copy for the archive buffer. The copy is
// deliberately not interned; it belongs to the buffered address space.
func (s *Symbol) Clone() *Symbol {
	return &Symbol{value: s.value}
}

func (m *Method) VisitRefs(visit func(Slot)) {
	visit(RefTo(&m.Name))
	visit(RefTo(&m.Signature))
}

func (m *Method) Clone() *Method {
	cp := *m
	return &cp
}

func (c *Class) VisitRefs(visit func(Slot)) {
	visit(RefTo(&c.Name))
	visit(RefTo(&c.LoaderName))
	visit(RefTo(&c.Super))
	visit(RefTo(&c.Pool))
	for i := range c.Interfaces {
		visit(RefTo(&c.Interfaces[i]))
	}
	for i := range c.Methods {
		visit(RefTo(&c.Methods[i]))
	}
	for i := range c.Fields {
		visit(RefTo(&c.Fields[i].Name))
		visit(RefTo(&c.Fields[i].Descriptor))
	}
	for i := range c.VTable {
		visit(RefTo(&c.VTable[i]))
	}
}

// Clone returns a snapshot of the class for the archive buffer. Reference
// fields still point at live metadata; the builder rewrites them during
// pointer resolution. Dispatch tables are re-derived after method sorting.
func (c *Class) Clone() *Class {
	cp := *c
	cp.Interfaces = append([]*Class(nil), c.Interfaces...)
	cp.Methods = append([]*Method(nil), c.Methods...)
	cp.Fields = append([]Field(nil), c.Fields...)
	cp.VTable = append([]*Method(nil), c.VTable...)
	cp.ITable = nil
	return &cp
}

func (cp *ConstantPool) VisitRefs(visit func(Slot)) {
	visit(RefTo(&cp.Holder))
	for i := range cp.Entries {
		e := &cp.Entries[i]
		visit(RefTo(&e.ClassName))
		visit(RefTo(&e.MemberName))
		visit(RefTo(&e.Descriptor))
		visit(RefTo(&e.Value))
		visit(RefTo(&e.ResolvedClass))
	}
}

func (cp *ConstantPool) Clone() *ConstantPool {
	out := *cp
	out.Entries = append([]PoolEntry(nil), cp.Entries...)
	return &out
}

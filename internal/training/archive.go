package training

import "github.com/mabhi256/jarc/internal/meta"

// The archive builder copies training records into its buffer and rewrites
// every embedded reference. Records expose their reference layout here so
// the builder stays ignorant of record internals.

// NewKlassRecord builds a bare class record around its key. Used when
// rehydrating records from an archive; live recording goes through Store.
func NewKlassRecord(className, loaderName *meta.Symbol) *KlassRecord {
	return &KlassRecord{key: klassKey(className, loaderName)}
}

// NewMethodRecord builds a bare method record around its key.
func NewMethodRecord(className, loaderName, methodName, signature *meta.Symbol) *MethodRecord {
	return &MethodRecord{key: methodKey(className, loaderName, methodName, signature)}
}

func visitKeyRefs(k *Key, visit func(meta.Slot)) {
	visit(meta.RefTo(&k.ClassName))
	visit(meta.RefTo(&k.LoaderName))
	visit(meta.RefTo(&k.MethodName))
	visit(meta.RefTo(&k.Signature))
}

func (k *KlassRecord) VisitRefs(visit func(meta.Slot)) {
	visitKeyRefs(&k.key, visit)
	visit(meta.RefTo(&k.Holder))
	for i := range k.FieldInits {
		visit(meta.RefTo(&k.FieldInits[i].Name))
	}
	for i := range k.InitDeps {
		visit(meta.RefTo(&k.InitDeps[i]))
	}
	for i := range k.CompDeps {
		visit(meta.RefTo(&k.CompDeps[i]))
	}
}

func (k *KlassRecord) Clone() *KlassRecord {
	cp := *k
	cp.FieldInits = append([]FieldInit(nil), k.FieldInits...)
	cp.InitDeps = append([]*KlassRecord(nil), k.InitDeps...)
	cp.CompDeps = append([]*CompileRecord(nil), k.CompDeps...)
	return &cp
}

func (m *MethodRecord) VisitRefs(visit func(meta.Slot)) {
	visitKeyRefs(&m.key, visit)
	visit(meta.RefTo(&m.Klass))
	visit(meta.RefTo(&m.Compiles))
	for i := range m.LastToplevel {
		visit(meta.RefTo(&m.LastToplevel[i]))
	}
}

func (m *MethodRecord) Clone() *MethodRecord {
	cp := *m
	return &cp
}

func (c *CompileRecord) VisitRefs(visit func(meta.Slot)) {
	visit(meta.RefTo(&c.Method))
	visit(meta.RefTo(&c.TopMethod))
	visit(meta.RefTo(&c.Next))
	for i := range c.InitDeps {
		visit(meta.RefTo(&c.InitDeps[i]))
	}
}

func (c *CompileRecord) Clone() *CompileRecord {
	cp := *c
	cp.InitDeps = append([]*KlassRecord(nil), c.InitDeps...)
	return &cp
}

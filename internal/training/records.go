package training

import (
	"strings"
	"time"

	"github.com/mabhi256/jarc/internal/meta"
)

// Compilation levels, mirroring the tiered-compilation ladder.
const (
	LevelNone             = 0
	LevelSimple           = 1
	LevelLimitedProfile   = 2
	LevelFullProfile      = 3
	LevelFullOptimization = 4
	LevelCount            = 5
)

// Key identifies a record: (class name, loader name) for class records,
// plus (method name, signature) for method records. Symbols are interned,
// so the struct is directly comparable.
type Key struct {
	ClassName  *meta.Symbol
	LoaderName *meta.Symbol
	MethodName *meta.Symbol
	Signature  *meta.Symbol
}

func (k Key) isMethod() bool {
	return k.MethodName != nil
}

// Compare orders keys by class name, loader, method name, signature.
// Nil components sort first.
func (k Key) Compare(o Key) int {
	if c := cmpSymbol(k.ClassName, o.ClassName); c != 0 {
		return c
	}
	if c := cmpSymbol(k.LoaderName, o.LoaderName); c != 0 {
		return c
	}
	if c := cmpSymbol(k.MethodName, o.MethodName); c != 0 {
		return c
	}
	return cmpSymbol(k.Signature, o.Signature)
}

func cmpSymbol(a, b *meta.Symbol) int {
	switch {
	case a == b:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	default:
		return strings.Compare(a.String(), b.String())
	}
}

// Record is implemented by KlassRecord and MethodRecord.
type Record interface {
	Key() Key
}

// FieldInit tracks the first observed non-default initialization of one
// static field. Sequence indexes are 1-based and diagnostic only.
type FieldInit struct {
	Name     *meta.Symbol
	Sequence int
}

// KlassRecord accumulates initialization observations for one class.
type KlassRecord struct {
	key Key

	Holder *meta.Class // live cross-link, nil until first touched

	HasInitTouch bool
	ClinitSeq    int // 1-based global <clinit> order, 0 if never started
	ClinitDone   bool
	FieldInits   []FieldInit

	InitDeps []*KlassRecord   // classes to initialize before this one
	CompDeps []*CompileRecord // compiles that depend on this class
}

func (k *KlassRecord) Key() Key { return k.key }

// ClassName returns the record's class name symbol.
func (k *KlassRecord) ClassName() *meta.Symbol { return k.key.ClassName }

// LoaderName returns the record's loader name symbol.
func (k *KlassRecord) LoaderName() *meta.Symbol { return k.key.LoaderName }

func (k *KlassRecord) addInitDep(dep *KlassRecord) {
	if dep == k {
		return
	}
	for _, d := range k.InitDeps {
		if d == dep {
			return
		}
	}
	k.InitDeps = append(k.InitDeps, dep)
}

func (k *KlassRecord) addCompDep(dep *CompileRecord) {
	for _, d := range k.CompDeps {
		if d == dep {
			return
		}
	}
	k.CompDeps = append(k.CompDeps, dep)
}

// fieldInitSeq returns the recorded sequence for a field, or 0.
func (k *KlassRecord) fieldInitSeq(name *meta.Symbol) int {
	for _, fi := range k.FieldInits {
		if fi.Name == name {
			return fi.Sequence
		}
	}
	return 0
}

// MethodRecord accumulates compilation observations for one method.
type MethodRecord struct {
	key   Key
	Klass *KlassRecord

	Level       int // monotonic, except LevelSimple forces a reset
	LevelMask   int // bit-set of every level ever seen
	WasInlined  bool
	WasToplevel bool

	Compiles        *CompileRecord // singly linked, latest first
	LastToplevel    [LevelCount]*CompileRecord
	HighestTopLevel int
}

func (m *MethodRecord) Key() Key { return m.key }

// OnlyInlined reports whether the method has only ever been seen inlined.
// Once a top-level compile is observed this is false forever.
func (m *MethodRecord) OnlyInlined() bool { return !m.WasToplevel }

// SawLevel reports whether the given level was ever observed.
func (m *MethodRecord) SawLevel(level int) bool {
	return m.LevelMask&levelMask(level) != 0
}

func levelMask(level int) int {
	if level&0xF != level {
		return 0
	}
	return 1 << level
}

// CompileRecord captures one compilation task of a method.
type CompileRecord struct {
	Method    *MethodRecord
	TopMethod *MethodRecord // differs from Method when inlined
	Next      *CompileRecord

	Level     int
	CompileID int

	Queued    time.Time
	Started   time.Time
	Ended     time.Time
	CodeSize  int
	InitDeps  []*KlassRecord
	initsLeft int
}

// Inlined reports whether this compile observed the method only as an
// inlinee of another top-level method.
func (c *CompileRecord) Inlined() bool { return c.Method != c.TopMethod }

// InitDepsLeft counts the recorded init deps whose classes were not yet
// initialized when tracking started.
func (c *CompileRecord) InitDepsLeft() int { return c.initsLeft }

// InitializeDepsTracking seeds the deps-left counter from the current
// initialization state of the dep holders.
func (c *CompileRecord) InitializeDepsTracking() {
	c.initsLeft = 0
	for _, dep := range c.InitDeps {
		if dep.Holder != nil && !dep.Holder.Initialized {
			c.initsLeft++
		}
	}
}

// NoticeInitialized decrements the deps-left counter when one of the
// recorded dep classes finishes initialization.
func (c *CompileRecord) NoticeInitialized(dep *KlassRecord) {
	for _, d := range c.InitDeps {
		if d == dep && c.initsLeft > 0 {
			c.initsLeft--
			return
		}
	}
}

func (c *CompileRecord) addInitDep(dep *KlassRecord) {
	for _, d := range c.InitDeps {
		if d == dep {
			return
		}
	}
	c.InitDeps = append(c.InitDeps, dep)
	dep.addCompDep(c)
}

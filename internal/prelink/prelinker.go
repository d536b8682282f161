// Package prelink decides which resolved runtime metadata is safe to
// persist into a shared archive, computes the preload class sets, and
// replays them at load time.
package prelink

import (
	"github.com/oleiade/lane"
	"go.uber.org/zap"

	"github.com/mabhi256/jarc/internal/loader"
	"github.com/mabhi256/jarc/internal/meta"
)

// PreloadSet holds the ordered class sequences for one archive. A class
// appears in at most one preload sequence, and never in both the vm-class
// set and a preload sequence.
type PreloadSet struct {
	Boot              []*meta.Class // java.base only
	Boot2             []*meta.Class // boot classes in other modules
	Platform          []*meta.Class
	PlatformInitiated []*meta.Class
	App               []*meta.Class
	AppInitiated      []*meta.Class
}

// Sequences returns the preload sequences in replay order.
func (ps *PreloadSet) Sequences() [][]*meta.Class {
	return [][]*meta.Class{ps.Boot, ps.Boot2, ps.Platform, ps.App}
}

// Empty reports whether no class is recorded at all.
func (ps *PreloadSet) Empty() bool {
	return len(ps.Boot)+len(ps.Boot2)+len(ps.Platform)+len(ps.App)+
		len(ps.PlatformInitiated)+len(ps.AppInitiated) == 0
}

// Prelinker owns the per-dump eligibility state: the vm-class set, the
// preloaded set, the initiated-class ledgers, and the already-processed
// marker for constant resolution. One instance lives per archive build.
type Prelinker struct {
	env *loader.Environment
	log *zap.Logger

	vmClasses map[*meta.Class]bool
	preloaded map[*meta.Class]bool
	processed map[*meta.Class]bool

	// Classes initiated (touched) but not loaded by the platform/app
	// loaders; insertion order is preserved for deterministic output.
	platformInitiated *classList
	appInitiated      *classList

	numVMClasses int
}

// New builds a prelinker for one dump. The vm-class set is seeded from the
// well-known bootstrap names currently loaded in the environment, closed
// over supertypes and interfaces.
func New(env *loader.Environment, log *zap.Logger) *Prelinker {
	p := &Prelinker{
		env:               env,
		log:               log.Named("prelink"),
		vmClasses:         make(map[*meta.Class]bool),
		preloaded:         make(map[*meta.Class]bool),
		processed:         make(map[*meta.Class]bool),
		platformInitiated: newClassList(),
		appInitiated:      newClassList(),
	}
	for _, name := range loader.WellKnownClassNames {
		sym, ok := env.Symtab().Lookup(name)
		if !ok {
			continue
		}
		if c := env.FindLoaded(sym, meta.BootLoader); c != nil {
			p.addVMClass(c)
		}
	}
	return p
}

// addVMClass adds a class and its supertype closure to the vm-class and
// preloaded sets. Iterative on an explicit stack; class hierarchies can be
// deep.
func (p *Prelinker) addVMClass(c *meta.Class) {
	st := lane.NewStack()
	for st.Push(c); !st.Empty(); {
		k := st.Pop().(*meta.Class)
		if p.vmClasses[k] {
			continue
		}
		p.vmClasses[k] = true
		p.preloaded[k] = true
		p.numVMClasses++
		if k.Super != nil {
			st.Push(k.Super)
		}
		for _, iface := range k.Interfaces {
			st.Push(iface)
		}
	}
}

// AddBasePreloaded registers the preload sets of an already-mapped base
// archive, so a dynamic dump never re-records classes the base covers.
func (p *Prelinker) AddBasePreloaded(ps *PreloadSet) {
	for _, seq := range ps.Sequences() {
		for _, c := range seq {
			p.preloaded[c] = true
		}
	}
}

// IsVMClass reports membership in the well-known bootstrap closure.
func (p *Prelinker) IsVMClass(c *meta.Class) bool { return p.vmClasses[c] }

// IsPreloaded reports whether c will be loaded automatically at startup.
func (p *Prelinker) IsPreloaded(c *meta.Class) bool { return p.preloaded[c] }

// NumPreloaded returns the size of the preloaded set, vm classes and any
// base-archive classes included. Initiated sequences can never be larger.
func (p *Prelinker) NumPreloaded() int { return len(p.preloaded) }

// NumVMClasses returns the size of the vm-class closure.
func (p *Prelinker) NumVMClasses() int { return p.numVMClasses }

// InitiatedClasses returns the recorded initiated-only classes for the
// platform or app loader.
func (p *Prelinker) InitiatedClasses(l meta.Loader) []*meta.Class {
	switch l {
	case meta.PlatformLoader:
		return p.platformInitiated.classes
	case meta.AppLoader:
		return p.appInitiated.classes
	default:
		return nil
	}
}

// Dispose clears all per-dump state. The prelinker must not be used after.
func (p *Prelinker) Dispose() {
	p.vmClasses = nil
	p.preloaded = nil
	p.processed = nil
	p.platformInitiated = nil
	p.appInitiated = nil
}

// classList is an insertion-ordered set of classes.
type classList struct {
	classes []*meta.Class
	seen    map[*meta.Class]bool
}

func newClassList() *classList {
	return &classList{seen: make(map[*meta.Class]bool)}
}

// add appends c if absent and reports whether it was inserted.
func (cl *classList) add(c *meta.Class) bool {
	if cl.seen[c] {
		return false
	}
	cl.seen[c] = true
	cl.classes = append(cl.classes, c)
	return true
}

func (cl *classList) len() int { return len(cl.classes) }

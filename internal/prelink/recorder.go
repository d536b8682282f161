package prelink

import (
	"fmt"

	"github.com/oleiade/lane"
	"go.uber.org/zap"

	"github.com/mabhi256/jarc/internal/meta"
)

// RecordPreloadSets computes the preload sequences for one archive from
// the builder's gathered class list. The boot category runs as two
// sub-passes: java.base must be fully preloaded before any other boot
// class, because later classes may assume java.base is ready.
func (p *Prelinker) RecordPreloadSets(classes []*meta.Class, dynamicDump bool) (*PreloadSet, error) {
	ps := &PreloadSet{}
	passes := []struct {
		loaderType   meta.Loader
		javaBaseOnly bool
		out          *[]*meta.Class
	}{
		{meta.BootLoader, true, &ps.Boot},
		{meta.BootLoader, false, &ps.Boot2},
		{meta.PlatformLoader, false, &ps.Platform},
		{meta.AppLoader, false, &ps.App},
	}
	for _, pass := range passes {
		r := &preloadRecorder{
			p:            p,
			loaderType:   pass.loaderType,
			javaBaseOnly: pass.javaBaseOnly,
			dynamicDump:  dynamicDump,
			seen:         make(map[*meta.Class]bool),
		}
		if err := r.iterate(classes); err != nil {
			return nil, err
		}
		*pass.out = r.list
	}
	return ps, nil
}

// RecordInitiatedSets fills in the initiated-class sequences. It runs
// after constant-pool pruning, not inside RecordPreloadSets: pruning is
// what drives the oracle, and the oracle is what records initiated
// entries, so collecting them any earlier would always find both ledgers
// empty.
func (p *Prelinker) RecordInitiatedSets(ps *PreloadSet) {
	ps.PlatformInitiated = p.recordInitiatedSet(meta.PlatformLoader)
	ps.AppInitiated = p.recordInitiatedSet(meta.AppLoader)
}

func (p *Prelinker) recordInitiatedSet(l meta.Loader) []*meta.Class {
	classes := p.InitiatedClasses(l)
	for _, c := range classes {
		p.log.Info("preload (initiated)",
			zap.Stringer("loader", l),
			zap.String("class", c.ExternalName()))
	}
	return classes
}

// preloadRecorder runs one (category, sub-pass) traversal. The seen set is
// per pass: a class visited while walking an earlier class's hierarchy is
// not reconsidered.
type preloadRecorder struct {
	p            *Prelinker
	loaderType   meta.Loader
	javaBaseOnly bool
	dynamicDump  bool

	seen map[*meta.Class]bool
	list []*meta.Class
}

func (r *preloadRecorder) iterate(classes []*meta.Class) error {
	for _, c := range classes {
		if err := r.record(c); err != nil {
			return err
		}
	}
	return nil
}

// skip applies the pass filters: already-visited hierarchy members,
// vm classes (loaded earlier by a separate fixed mechanism), hidden
// classes, classes already in a finalized base archive, wrong loader
// category, wrong java.base sub-pass, and named-module classes that did
// not come from the modules image (their bytes may differ at load time).
func (r *preloadRecorder) skip(c *meta.Class) bool {
	if r.p.IsVMClass(c) {
		return true
	}
	if r.loaderType == meta.BootLoader && r.javaBaseOnly != c.InJavaBase() {
		return true
	}
	if c.Hidden {
		return true
	}
	if c.Loader != r.loaderType {
		return true
	}
	if c.Shared {
		// Reachable only when extending a base archive.
		return true
	}
	if c.Module != "" && !c.FromModulesImage {
		return true
	}
	return false
}

type recordFrame struct {
	class    *meta.Class
	expanded bool
}

// record walks c's hierarchy depth-first and appends c after its
// dependencies, so the stored sequence can be replayed front to back.
// Explicit stack; class hierarchies can be deep.
func (r *preloadRecorder) record(c *meta.Class) error {
	st := lane.NewStack()
	for st.Push(recordFrame{class: c}); !st.Empty(); {
		f := st.Pop().(recordFrame)
		k := f.class

		if f.expanded {
			if err := r.append(k); err != nil {
				return err
			}
			continue
		}

		if r.seen[k] {
			continue
		}
		r.seen[k] = true
		if r.skip(k) {
			continue
		}

		// The append frame goes under the dependency frames so the
		// superclass subtree, then each interface subtree, land in the
		// list first.
		st.Push(recordFrame{class: k, expanded: true})
		for i := len(k.Interfaces) - 1; i >= 0; i-- {
			st.Push(recordFrame{class: k.Interfaces[i]})
		}
		if k.Super != nil {
			st.Push(recordFrame{class: k.Super})
		}
	}
	return nil
}

func (r *preloadRecorder) append(c *meta.Class) error {
	if r.p.preloaded[c] {
		return fmt.Errorf("duplicate preload record for %s", c.ExternalName())
	}
	r.p.preloaded[c] = true
	r.list = append(r.list, c)

	r.p.log.Info("preload",
		zap.String("pass", r.passName()),
		zap.String("class", c.ExternalName()))
	return nil
}

func (r *preloadRecorder) passName() string {
	if r.loaderType == meta.BootLoader {
		if r.javaBaseOnly {
			return "boot"
		}
		return "boot2"
	}
	return r.loaderType.String()
}

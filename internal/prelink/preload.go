package prelink

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/mabhi256/jarc/internal/loader"
	"github.com/mabhi256/jarc/internal/meta"
)

// AgentMismatchError reports that resolving a recorded class produced a
// different identity than the archive captured: something redefined class
// bytes between archive creation and load. Unrecoverable for the
// archive-consuming path.
type AgentMismatchError struct {
	Kind     string // "preloaded" or "initiated"
	Expected *meta.Class
	Actual   *meta.Class
}

func (e *AgentMismatchError) Error() string {
	return fmt.Sprintf("unable to resolve %s class from archive: %s (expected %p, actual %p); "+
		"class retransformation is not supported with preloaded archives",
		e.Kind, e.Expected.ExternalName(), e.Expected, e.Actual)
}

// Driver replays the persisted preload sets at startup. Preload is invoked
// once per pass in the fixed order boot/java.base, boot/remainder,
// platform, application; later passes assume earlier ones completed.
type Driver struct {
	env *loader.Environment
	log *zap.Logger

	static  *PreloadSet
	dynamic *PreloadSet // nil without a dynamic archive

	enabled          bool // archive use enabled at all
	hasPlatformOrApp bool

	preloadJavaBaseOnly bool
	finished            atomic.Bool
}

func NewDriver(env *loader.Environment, log *zap.Logger, static, dynamic *PreloadSet) *Driver {
	d := &Driver{
		env:                 env,
		log:                 log.Named("preload"),
		static:              static,
		dynamic:             dynamic,
		enabled:             static != nil,
		preloadJavaBaseOnly: true,
	}
	if d.enabled {
		d.hasPlatformOrApp = hasPlatformOrApp(static) || hasPlatformOrApp(dynamic)
	}
	return d
}

func hasPlatformOrApp(ps *PreloadSet) bool {
	if ps == nil {
		return false
	}
	return len(ps.Platform)+len(ps.PlatformInitiated)+len(ps.App)+len(ps.AppInitiated) > 0
}

// Finished reports whether class preloading completed. Constant pools of
// preloaded classes reference other preloaded classes, so nothing should
// consume archived classes until every pass is done. Other threads poll
// this without a lock; the atomic gives the required acquire/release
// ordering, and the flag is monotonic.
func (d *Driver) Finished() bool {
	if !d.enabled {
		return true
	}
	return d.finished.Load()
}

// Preload replays the recorded sets for one loader category. The boot
// category is driven twice: the first call covers only java.base, the
// second the remaining boot classes.
func (d *Driver) Preload(l meta.Loader) error {
	if !d.enabled {
		return nil
	}
	if l != meta.BootLoader && !d.hasPlatformOrApp {
		// Non-boot archived classes were disabled, e.g. by a
		// command-line mismatch. Nothing further will load.
		d.finished.Store(true)
		return nil
	}

	if err := d.preloadFrom(d.static, l); err != nil {
		return err
	}
	if d.dynamic != nil {
		if err := d.preloadFrom(d.dynamic, l); err != nil {
			return err
		}
	}
	if l == meta.BootLoader {
		d.preloadJavaBaseOnly = false
	}
	if l == meta.AppLoader {
		d.finished.Store(true)
	}
	return nil
}

func (d *Driver) preloadFrom(table *PreloadSet, l meta.Loader) error {
	var preloaded, initiated []*meta.Class
	var passName string

	switch l {
	case meta.BootLoader:
		if d.preloadJavaBaseOnly {
			passName, preloaded = "boot", table.Boot
		} else {
			passName, preloaded = "boot2", table.Boot2
		}
	case meta.PlatformLoader:
		passName, preloaded, initiated = "platform", table.Platform, table.PlatformInitiated
	case meta.AppLoader:
		passName, preloaded, initiated = "app", table.App, table.AppInitiated
	default:
		return fmt.Errorf("loader %s does not support preloading", l)
	}

	for _, c := range initiated {
		d.log.Info("preload (initiated)", zap.String("pass", passName), zap.String("class", c.ExternalName()))
		actual, err := d.env.ResolveOrLoad(c.Name, l)
		if err != nil {
			return fmt.Errorf("initiated class %s: %w", c.ExternalName(), err)
		}
		if err := d.checkIdentity("initiated", c, actual); err != nil {
			return err
		}
	}

	for _, c := range preloaded {
		already := d.env.FindLoaded(c.Name, l) != nil
		d.log.Info("preload",
			zap.String("pass", passName),
			zap.String("class", c.ExternalName()),
			zap.Bool("already_loaded", already))
		if already {
			continue
		}
		actual, err := d.env.ResolveOrLoad(c.Name, l)
		if err != nil {
			return fmt.Errorf("preloaded class %s: %w", c.ExternalName(), err)
		}
		if err := d.checkIdentity("preloaded", c, actual); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) checkIdentity(kind string, expected, actual *meta.Class) error {
	if actual == expected {
		return nil
	}
	if actual != nil && actual.Shared && actual.Name == expected.Name &&
		MayBeRegeneratedClass(expected.Name.String()) {
		// One copy per archive layer exists for the regenerated holder
		// classes; loading the other layer's copy is benign.
		return nil
	}
	err := &AgentMismatchError{Kind: kind, Expected: expected, Actual: actual}
	d.log.Error("archive identity mismatch", zap.Error(err))
	return err
}

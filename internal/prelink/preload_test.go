package prelink

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mabhi256/jarc/internal/loader"
	"github.com/mabhi256/jarc/internal/meta"
)

// defineOnly creates a class available for loading but not yet loaded,
// the state archived classes are installed in before preloading runs.
func defineOnly(t *testing.T, env *loader.Environment, name string, l meta.Loader) *meta.Class {
	t.Helper()
	sym, err := env.Symtab().Intern(name)
	require.NoError(t, err)
	loaderName, err := env.Symtab().Intern(l.String())
	require.NoError(t, err)
	c := &meta.Class{Name: sym, Loader: l, LoaderName: loaderName, Shared: true}
	env.Define(c)
	return c
}

func runAllPasses(d *Driver) error {
	for _, l := range []meta.Loader{meta.BootLoader, meta.BootLoader, meta.PlatformLoader, meta.AppLoader} {
		if err := d.Preload(l); err != nil {
			return err
		}
	}
	return nil
}

func TestDriverReplaysAllPasses(t *testing.T) {
	env := loader.NewEnvironment()
	boot := defineOnly(t, env, "jdk/internal/Base", meta.BootLoader)
	boot2 := defineOnly(t, env, "jdk/other/Util", meta.BootLoader)
	platform := defineOnly(t, env, "jdk/net/Thing", meta.PlatformLoader)
	app := defineOnly(t, env, "app/Main", meta.AppLoader)
	initiated := defineOnly(t, env, "jdk/shared/Token", meta.PlatformLoader)

	sets := &PreloadSet{
		Boot:         []*meta.Class{boot},
		Boot2:        []*meta.Class{boot2},
		Platform:     []*meta.Class{platform},
		App:          []*meta.Class{app},
		AppInitiated: []*meta.Class{initiated},
	}

	d := NewDriver(env, zap.NewNop(), sets, nil)
	require.False(t, d.Finished())
	require.NoError(t, runAllPasses(d))
	require.True(t, d.Finished())

	require.Same(t, boot, env.FindLoaded(boot.Name, meta.BootLoader))
	require.Same(t, boot2, env.FindLoaded(boot2.Name, meta.BootLoader))
	require.Same(t, platform, env.FindLoaded(platform.Name, meta.PlatformLoader))
	require.Same(t, app, env.FindLoaded(app.Name, meta.AppLoader))
	// The initiated class was loaded by request of the app loader but
	// lives in its defining loader's dictionary.
	require.Same(t, initiated, env.FindLoaded(initiated.Name, meta.PlatformLoader))
}

func TestDriverWithoutArchive(t *testing.T) {
	env := loader.NewEnvironment()
	d := NewDriver(env, zap.NewNop(), nil, nil)
	require.True(t, d.Finished(), "no archive means nothing to wait for")
	require.NoError(t, d.Preload(meta.BootLoader))
}

func TestDriverBootOnlyFinishesEarly(t *testing.T) {
	env := loader.NewEnvironment()
	boot := defineOnly(t, env, "jdk/internal/Base", meta.BootLoader)
	sets := &PreloadSet{Boot: []*meta.Class{boot}}

	d := NewDriver(env, zap.NewNop(), sets, nil)
	require.NoError(t, d.Preload(meta.BootLoader))
	require.NoError(t, d.Preload(meta.BootLoader))
	require.False(t, d.Finished())
	// No platform or app classes were archived: the first non-boot pass
	// concludes preloading immediately.
	require.NoError(t, d.Preload(meta.PlatformLoader))
	require.True(t, d.Finished())
}

func TestDriverIdentityMismatch(t *testing.T) {
	env := loader.NewEnvironment()

	sym, err := env.Symtab().Intern("app/Main")
	require.NoError(t, err)
	loaderName, err := env.Symtab().Intern("app")
	require.NoError(t, err)

	archived := &meta.Class{Name: sym, Loader: meta.AppLoader, LoaderName: loaderName, Shared: true}
	imposter := &meta.Class{Name: sym, Loader: meta.AppLoader, LoaderName: loaderName}
	env.Define(imposter)

	sets := &PreloadSet{App: []*meta.Class{archived}}
	d := NewDriver(env, zap.NewNop(), sets, nil)

	require.NoError(t, d.Preload(meta.BootLoader))
	require.NoError(t, d.Preload(meta.BootLoader))
	require.NoError(t, d.Preload(meta.PlatformLoader))

	err = d.Preload(meta.AppLoader)
	require.Error(t, err)
	var mismatch *AgentMismatchError
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, "preloaded", mismatch.Kind)
	require.Same(t, archived, mismatch.Expected)
}

func TestDriverRegeneratedClassExempt(t *testing.T) {
	env := loader.NewEnvironment()

	sym, err := env.Symtab().Intern("java/lang/invoke/Invokers$Holder")
	require.NoError(t, err)
	loaderName, err := env.Symtab().Intern("boot")
	require.NoError(t, err)

	// Two archive layers each carry a copy of a regenerated holder class;
	// loading the other layer's copy must not count as a mismatch.
	archived := &meta.Class{Name: sym, Loader: meta.BootLoader, LoaderName: loaderName, Shared: true, Module: "java.base"}
	otherLayer := &meta.Class{Name: sym, Loader: meta.BootLoader, LoaderName: loaderName, Shared: true, Module: "java.base"}
	env.Define(otherLayer)

	sets := &PreloadSet{Boot: []*meta.Class{archived}}
	d := NewDriver(env, zap.NewNop(), sets, nil)
	require.NoError(t, runAllPasses(d))
	require.True(t, d.Finished())
}

func TestDriverFailsForCustomLoader(t *testing.T) {
	env := loader.NewEnvironment()
	app := defineOnly(t, env, "app/Main", meta.AppLoader)
	sets := &PreloadSet{App: []*meta.Class{app}}
	d := NewDriver(env, zap.NewNop(), sets, nil)
	require.Error(t, d.Preload(meta.CustomLoader))
}

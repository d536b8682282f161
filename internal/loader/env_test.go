package loader

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mabhi256/jarc/internal/meta"
)

func newClass(t *testing.T, env *Environment, name string, l meta.Loader) *meta.Class {
	t.Helper()
	sym, err := env.Symtab().Intern(name)
	require.NoError(t, err)
	loaderName, err := env.Symtab().Intern(l.String())
	require.NoError(t, err)
	return &meta.Class{Name: sym, Loader: l, LoaderName: loaderName}
}

func TestRegisterAndFindLoaded(t *testing.T) {
	env := NewEnvironment()
	obj := newClass(t, env, "java/lang/Object", meta.BootLoader)
	require.NoError(t, env.RegisterLoaded(obj))

	// Delegation: the app loader finds boot classes through its parents.
	require.Same(t, obj, env.FindLoaded(obj.Name, meta.BootLoader))
	require.Same(t, obj, env.FindLoaded(obj.Name, meta.PlatformLoader))
	require.Same(t, obj, env.FindLoaded(obj.Name, meta.AppLoader))

	// But not the other way around.
	app := newClass(t, env, "app/Main", meta.AppLoader)
	require.NoError(t, env.RegisterLoaded(app))
	require.Nil(t, env.FindLoaded(app.Name, meta.BootLoader))
}

func TestRegisterLoadedRejectsDuplicates(t *testing.T) {
	env := NewEnvironment()
	a := newClass(t, env, "app/Main", meta.AppLoader)
	require.NoError(t, env.RegisterLoaded(a))
	require.NoError(t, env.RegisterLoaded(a), "re-registering the same class is fine")

	b := newClass(t, env, "app/Main", meta.AppLoader)
	err := env.RegisterLoaded(b)
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate class record")
}

func TestRegisterLoadedRejectsCustomLoader(t *testing.T) {
	env := NewEnvironment()
	c := newClass(t, env, "plugin/Thing", meta.CustomLoader)
	require.Error(t, env.RegisterLoaded(c))
}

func TestResolveOrLoadPromotes(t *testing.T) {
	env := NewEnvironment()
	c := newClass(t, env, "app/Lazy", meta.AppLoader)
	env.Define(c)

	require.Nil(t, env.FindLoaded(c.Name, meta.AppLoader), "defined is not loaded")

	got, err := env.ResolveOrLoad(c.Name, meta.AppLoader)
	require.NoError(t, err)
	require.Same(t, c, got)
	require.Same(t, c, env.FindLoaded(c.Name, meta.AppLoader))

	_, err = env.ResolveOrLoad(mustIntern(t, env, "app/Missing"), meta.AppLoader)
	require.Error(t, err)
}

func TestResolveOrLoadDelegates(t *testing.T) {
	env := NewEnvironment()
	c := newClass(t, env, "java/util/List", meta.BootLoader)
	env.Define(c)

	got, err := env.ResolveOrLoad(c.Name, meta.AppLoader)
	require.NoError(t, err)
	require.Same(t, c, got)
	// Promotion lands in the defining loader's dictionary.
	require.Same(t, c, env.FindLoaded(c.Name, meta.BootLoader))
}

func TestExclusivePhaseFreezesMutation(t *testing.T) {
	env := NewEnvironment()
	loaded := newClass(t, env, "app/Loaded", meta.AppLoader)
	require.NoError(t, env.RegisterLoaded(loaded))
	lazy := newClass(t, env, "app/Lazy", meta.AppLoader)
	env.Define(lazy)

	env.BeginExclusive()

	// Lookups keep working during a dump.
	require.Same(t, loaded, env.FindLoaded(loaded.Name, meta.AppLoader))
	got, err := env.ResolveOrLoad(loaded.Name, meta.AppLoader)
	require.NoError(t, err)
	require.Same(t, loaded, got)

	// Loading and defining do not.
	require.Error(t, env.RegisterLoaded(newClass(t, env, "app/New", meta.AppLoader)))
	_, err = env.ResolveOrLoad(lazy.Name, meta.AppLoader)
	require.Error(t, err)

	env.EndExclusive()
	require.NoError(t, env.RegisterLoaded(newClass(t, env, "app/New", meta.AppLoader)))
}

func mustIntern(t *testing.T, env *Environment, v string) *meta.Symbol {
	t.Helper()
	s, err := env.Symtab().Intern(v)
	require.NoError(t, err)
	return s
}

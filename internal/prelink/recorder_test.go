package prelink

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mabhi256/jarc/internal/loader"
	"github.com/mabhi256/jarc/internal/meta"
)

func TestRecordPreloadSetsOrdering(t *testing.T) {
	env := loader.NewEnvironment()
	object := testClass(t, env, "java/lang/Object", meta.BootLoader, inJavaBase)
	p := New(env, zap.NewNop())

	base := testClass(t, env, "jdk/internal/Base", meta.BootLoader, inJavaBase, func(c *meta.Class) {
		c.Super = object
	})
	boot2 := testClass(t, env, "jdk/other/Util", meta.BootLoader, func(c *meta.Class) {
		c.Super = object
		c.Module = "jdk.other"
		c.FromModulesImage = true
	})
	iface := testClass(t, env, "app/Iface", meta.AppLoader)
	super := testClass(t, env, "app/Super", meta.AppLoader, func(c *meta.Class) { c.Super = object })
	leaf := testClass(t, env, "app/Leaf", meta.AppLoader, func(c *meta.Class) {
		c.Super = super
		c.Interfaces = []*meta.Class{iface}
	})

	// Deliberately list the subtype first: supertypes must still come out
	// ahead of it.
	sets, err := p.RecordPreloadSets([]*meta.Class{leaf, super, iface, boot2, base}, false)
	require.NoError(t, err)

	require.Equal(t, []*meta.Class{base}, sets.Boot, "java.base classes form the first boot pass")
	require.Equal(t, []*meta.Class{boot2}, sets.Boot2)
	require.Empty(t, sets.Platform)
	require.Equal(t, []*meta.Class{super, iface, leaf}, sets.App, "dependencies precede the classes that need them")
	require.False(t, sets.Empty())

	// Each class lands in exactly one sequence, and never alongside a
	// vm class.
	seen := map[*meta.Class]bool{}
	for _, seq := range [][]*meta.Class{sets.Boot, sets.Boot2, sets.Platform, sets.App} {
		for _, c := range seq {
			require.False(t, seen[c], "%s recorded in two sequences", c.Name)
			require.False(t, p.IsVMClass(c), "%s is a vm class", c.Name)
			seen[c] = true
		}
	}
}

func TestRecordPreloadSetsFilters(t *testing.T) {
	env := loader.NewEnvironment()
	object := testClass(t, env, "java/lang/Object", meta.BootLoader, inJavaBase)
	p := New(env, zap.NewNop())

	hidden := testClass(t, env, "app/Lambda$0x1", meta.AppLoader, func(c *meta.Class) { c.Hidden = true })
	shared := testClass(t, env, "app/FromBase", meta.AppLoader, func(c *meta.Class) { c.Shared = true })
	offImage := testClass(t, env, "patched/Klass", meta.BootLoader, func(c *meta.Class) {
		c.Module = "some.module" // named module not backed by the modules image
	})
	plain := testClass(t, env, "app/Plain", meta.AppLoader)

	sets, err := p.RecordPreloadSets([]*meta.Class{object, hidden, shared, offImage, plain}, false)
	require.NoError(t, err)

	require.Empty(t, sets.Boot, "vm classes never appear in preload sequences")
	require.Empty(t, sets.Boot2)
	require.Equal(t, []*meta.Class{plain}, sets.App)
}

func TestRecordPreloadSetsDuplicate(t *testing.T) {
	env := loader.NewEnvironment()
	testClass(t, env, "java/lang/Object", meta.BootLoader, inJavaBase)
	p := New(env, zap.NewNop())

	c := testClass(t, env, "app/Once", meta.AppLoader)
	base := &PreloadSet{App: []*meta.Class{c}}
	p.AddBasePreloaded(base)

	// The class already lives in the base archive's preload set; recording
	// it again for a dynamic dump would replay it twice. The recorder skips
	// it via the Shared flag normally, so forcing it through is an error.
	_, err := p.RecordPreloadSets([]*meta.Class{c}, true)
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate preload record")
}

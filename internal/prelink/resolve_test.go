package prelink

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mabhi256/jarc/internal/loader"
	"github.com/mabhi256/jarc/internal/meta"
)

func TestResolveConstantsStrings(t *testing.T) {
	env := loader.NewEnvironment()
	testClass(t, env, "java/lang/Object", meta.BootLoader, inJavaBase)
	p := New(env, zap.NewNop())

	c := testClass(t, env, "app/Holder", meta.AppLoader)
	c.Pool = &meta.ConstantPool{
		Holder: c,
		Entries: []meta.PoolEntry{
			{},
			{Tag: meta.TagString, Value: mustSym(t, env, "hello")},
			{Tag: meta.TagOther},
		},
	}

	require.NoError(t, p.ResolveConstants(c, true))
	e := &c.Pool.Entries[1]
	require.True(t, e.Resolved)
	interned, ok := env.Symtab().Lookup("hello")
	require.True(t, ok)
	require.Same(t, interned, e.Value)

	// The class is processed at most once per dump: clearing the flag and
	// resolving again must not touch the entry.
	e.Resolved = false
	require.NoError(t, p.ResolveConstants(c, true))
	require.False(t, e.Resolved)
}

func TestResolveConstantsSkipsUnlinked(t *testing.T) {
	env := loader.NewEnvironment()
	testClass(t, env, "java/lang/Object", meta.BootLoader, inJavaBase)
	p := New(env, zap.NewNop())

	c := testClass(t, env, "app/Holder", meta.AppLoader, func(c *meta.Class) { c.Linked = false })
	c.Pool = &meta.ConstantPool{
		Holder:  c,
		Entries: []meta.PoolEntry{{}, {Tag: meta.TagString, Value: mustSym(t, env, "s")}},
	}
	require.NoError(t, p.ResolveConstants(c, true))
	require.False(t, c.Pool.Entries[1].Resolved)
}

func TestResolveConstantsWithoutArchivedStrings(t *testing.T) {
	env := loader.NewEnvironment()
	testClass(t, env, "java/lang/Object", meta.BootLoader, inJavaBase)
	p := New(env, zap.NewNop())

	c := testClass(t, env, "app/Holder", meta.AppLoader)
	c.Pool = &meta.ConstantPool{
		Holder:  c,
		Entries: []meta.PoolEntry{{}, {Tag: meta.TagString, Value: mustSym(t, env, "s")}},
	}
	require.NoError(t, p.ResolveConstants(c, false))
	require.False(t, c.Pool.Entries[1].Resolved, "dynamic dumps have no archived heap")
}

func TestPreresolveClassEntries(t *testing.T) {
	env := loader.NewEnvironment()
	testClass(t, env, "java/lang/Object", meta.BootLoader, inJavaBase)
	p := New(env, zap.NewNop())

	loaded := testClass(t, env, "app/Loaded", meta.AppLoader)
	hidden := testClass(t, env, "app/Hidden", meta.AppLoader, func(c *meta.Class) { c.Hidden = true })
	missing := mustSym(t, env, "app/NeverLoaded")

	c := testClass(t, env, "app/Holder", meta.AppLoader)
	c.Pool = &meta.ConstantPool{
		Holder: c,
		Entries: []meta.PoolEntry{
			{},
			{Tag: meta.TagUnresolvedClass, ClassName: loaded.Name},
			{Tag: meta.TagUnresolvedClass, ClassName: missing},
			{Tag: meta.TagUnresolvedClass, ClassName: hidden.Name},
			{Tag: meta.TagUnresolvedClass, ClassName: loaded.Name},
		},
	}

	// Only entries the training run resolved are eligible; entry 4 ran.
	p.PreresolveClassEntries(c, []bool{false, false, false, false, true})

	require.Equal(t, meta.TagUnresolvedClass, c.Pool.Entries[1].Tag, "filtered out")
	require.Equal(t, meta.TagClass, c.Pool.Entries[4].Tag)
	require.Same(t, loaded, c.Pool.Entries[4].ResolvedClass)

	// Without a filter every loadable, non-hidden target resolves.
	p.PreresolveClassEntries(c, nil)
	require.Equal(t, meta.TagClass, c.Pool.Entries[1].Tag)
	require.Equal(t, meta.TagUnresolvedClass, c.Pool.Entries[2].Tag, "target never loaded")
	require.Equal(t, meta.TagUnresolvedClass, c.Pool.Entries[3].Tag, "hidden target")
}

func TestPreresolveMemberEntries(t *testing.T) {
	env := loader.NewEnvironment()
	testClass(t, env, "java/lang/Object", meta.BootLoader, inJavaBase)
	p := New(env, zap.NewNop())

	fieldName := mustSym(t, env, "count")
	fieldDesc := mustSym(t, env, "I")
	target := testClass(t, env, "app/Target", meta.AppLoader, func(c *meta.Class) {
		c.Fields = []meta.Field{{Name: fieldName, Descriptor: fieldDesc}}
	})

	c := testClass(t, env, "app/Holder", meta.AppLoader)
	c.Pool = &meta.ConstantPool{
		Holder: c,
		Entries: []meta.PoolEntry{
			{},
			{Tag: meta.TagField, ClassName: target.Name, MemberName: fieldName, Descriptor: fieldDesc},
			{Tag: meta.TagField, ClassName: target.Name, MemberName: mustSym(t, env, "absent"), Descriptor: fieldDesc},
			{Tag: meta.TagMethod, ClassName: target.Name, MemberName: mustSym(t, env, "run"), Descriptor: mustSym(t, env, "()V")},
			{Tag: meta.TagMethod, ClassName: mustSym(t, env, "app/NeverLoaded"), MemberName: fieldName, Descriptor: fieldDesc},
		},
	}

	p.PreresolveMemberEntries(c, nil)

	require.True(t, c.Pool.Entries[1].Resolved)
	require.Same(t, target, c.Pool.Entries[1].ResolvedClass)
	require.False(t, c.Pool.Entries[2].Resolved, "field must resolve by name and descriptor")
	require.True(t, c.Pool.Entries[3].Resolved)
	require.False(t, c.Pool.Entries[4].Resolved, "target never loaded")
}

func TestPruneUnarchivableResolutions(t *testing.T) {
	env := loader.NewEnvironment()
	object := testClass(t, env, "java/lang/Object", meta.BootLoader, inJavaBase)
	p := New(env, zap.NewNop())

	super := testClass(t, env, "app/Super", meta.AppLoader, func(c *meta.Class) { c.Super = object })
	unrelated := testClass(t, env, "app/Unrelated", meta.AppLoader)
	fieldName := mustSym(t, env, "x")
	fieldDesc := mustSym(t, env, "I")
	super.Fields = []meta.Field{
		{Name: fieldName, Descriptor: fieldDesc},
		{Name: mustSym(t, env, "y"), Descriptor: fieldDesc, Static: true},
	}

	holder := testClass(t, env, "app/Holder", meta.AppLoader, func(c *meta.Class) { c.Super = super })

	// Stands in for the buffered copy the builder hands over; the live
	// pool stays untouched either way.
	pool := &meta.ConstantPool{
		Entries: []meta.PoolEntry{
			{},
			{Tag: meta.TagClass, ClassName: super.Name, ResolvedClass: super, Resolved: true},
			{Tag: meta.TagClass, ClassName: unrelated.Name, ResolvedClass: unrelated, Resolved: true},
			{Tag: meta.TagField, ClassName: super.Name, MemberName: fieldName, Descriptor: fieldDesc,
				ResolvedClass: super, Resolved: true},
			{Tag: meta.TagField, ClassName: super.Name, MemberName: super.Fields[1].Name, Descriptor: fieldDesc,
				ResolvedClass: super, Resolved: true},
		},
	}

	p.PruneUnarchivableResolutions(holder, pool)

	require.True(t, pool.Entries[1].Resolved, "supertype reference survives")
	require.Equal(t, meta.TagUnresolvedClass, pool.Entries[2].Tag, "unpreloaded cross reference reverted")
	require.Nil(t, pool.Entries[2].ResolvedClass)
	require.True(t, pool.Entries[3].Resolved)
	require.False(t, pool.Entries[4].Resolved, "static field access reverted")
	require.Equal(t, meta.TagField, pool.Entries[4].Tag, "member entries keep their tag")
}

package meta

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sym(t *testing.T, st *Symtab, v string) *Symbol {
	t.Helper()
	s, err := st.Intern(v)
	require.NoError(t, err)
	return s
}

func TestIsSubtypeOf(t *testing.T) {
	st := NewSymtab()
	object := &Class{Name: sym(t, st, "java/lang/Object")}
	iface := &Class{Name: sym(t, st, "java/lang/Runnable"), Super: object}
	mid := &Class{Name: sym(t, st, "app/Mid"), Super: object, Interfaces: []*Class{iface}}
	leaf := &Class{Name: sym(t, st, "app/Leaf"), Super: mid}

	require.True(t, leaf.IsSubtypeOf(leaf))
	require.True(t, leaf.IsSubtypeOf(mid))
	require.True(t, leaf.IsSubtypeOf(object))
	require.True(t, leaf.IsSubtypeOf(iface), "interface of a supertype counts")
	require.False(t, object.IsSubtypeOf(leaf))
	require.False(t, leaf.IsSubtypeOf(nil))
}

func TestExternalName(t *testing.T) {
	st := NewSymtab()
	c := &Class{Name: sym(t, st, "java/util/HashMap")}
	require.Equal(t, "java.util.HashMap", c.ExternalName())
}

func TestFindFieldWalksHierarchy(t *testing.T) {
	st := NewSymtab()
	name := sym(t, st, "value")
	desc := sym(t, st, "I")

	super := &Class{
		Name:   sym(t, st, "app/Super"),
		Fields: []Field{{Name: name, Descriptor: desc}},
	}
	sub := &Class{Name: sym(t, st, "app/Sub"), Super: super}

	f, ok := sub.FindField(name, desc)
	require.True(t, ok)
	require.Same(t, name, f.Name)

	_, ok = sub.FindField(name, sym(t, st, "J"))
	require.False(t, ok, "descriptor participates in resolution")
}

func TestBuildDispatchTables(t *testing.T) {
	st := NewSymtab()
	runName, runSig := sym(t, st, "run"), sym(t, st, "()V")
	closeName, closeSig := sym(t, st, "close"), sym(t, st, "()V")

	ifaceRun := &Method{Name: runName, Signature: runSig, Virtual: true}
	iface := &Class{
		Name:    sym(t, st, "java/lang/Runnable"),
		Methods: []*Method{ifaceRun},
		Linked:  true,
	}

	superClose := &Method{Name: closeName, Signature: closeSig, Virtual: true}
	super := &Class{
		Name:    sym(t, st, "app/Super"),
		Methods: []*Method{superClose},
		Linked:  true,
	}
	super.BuildDispatchTables()
	require.Equal(t, []*Method{superClose}, super.VTable)

	subRun := &Method{Name: runName, Signature: runSig, Virtual: true}
	init := &Method{Name: sym(t, st, "<init>"), Signature: runSig}
	sub := &Class{
		Name:       sym(t, st, "app/Sub"),
		Super:      super,
		Interfaces: []*Class{iface},
		Methods:    []*Method{init, subRun},
		Linked:     true,
	}
	sub.BuildDispatchTables()

	// Super's vtable is inherited; non-virtual methods get no slot.
	require.Equal(t, []*Method{superClose, subRun}, sub.VTable)

	// One itable slot per interface method, filled by virtual lookup.
	require.Len(t, sub.ITable[iface], 1)
	require.Same(t, subRun, sub.ITable[iface][0])
}

func TestBuildDispatchTablesUnlinked(t *testing.T) {
	st := NewSymtab()
	c := &Class{
		Name:    sym(t, st, "app/Unlinked"),
		Methods: []*Method{{Name: sym(t, st, "m"), Signature: sym(t, st, "()V"), Virtual: true}},
	}
	c.VTable = []*Method{c.Methods[0]} // stale state from a previous link attempt
	c.BuildDispatchTables()
	require.Nil(t, c.VTable)
	require.Nil(t, c.ITable)
}

func TestLoaderParentChain(t *testing.T) {
	p, ok := AppLoader.Parent()
	require.True(t, ok)
	require.Equal(t, PlatformLoader, p)

	p, ok = PlatformLoader.Parent()
	require.True(t, ok)
	require.Equal(t, BootLoader, p)

	_, ok = BootLoader.Parent()
	require.False(t, ok)
}

func TestParseLoader(t *testing.T) {
	require.Equal(t, BootLoader, ParseLoader(""))
	require.Equal(t, BootLoader, ParseLoader("bootstrap"))
	require.Equal(t, PlatformLoader, ParseLoader("platform"))
	require.Equal(t, AppLoader, ParseLoader("system"))
	require.Equal(t, CustomLoader, ParseLoader("com.example.PluginLoader"))
	require.False(t, CustomLoader.IsBuiltin())
}

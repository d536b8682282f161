package meta

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSymtabInterning(t *testing.T) {
	st := NewSymtab()

	a, err := st.Intern("java/lang/Object")
	require.NoError(t, err)
	b, err := st.Intern("java/lang/Object")
	require.NoError(t, err)
	require.Same(t, a, b, "interning the same value must return the same pointer")

	c, err := st.Intern("java/lang/String")
	require.NoError(t, err)
	require.NotSame(t, a, c)

	require.Equal(t, 2, st.Len())
	require.Equal(t, []*Symbol{a, c}, st.Symbols())
}

func TestSymtabLookup(t *testing.T) {
	st := NewSymtab()
	_, ok := st.Lookup("missing")
	require.False(t, ok)

	sym, err := st.Intern("present")
	require.NoError(t, err)
	got, ok := st.Lookup("present")
	require.True(t, ok)
	require.Same(t, sym, got)
}

func TestSymtabExhaustion(t *testing.T) {
	st := NewSymtabWithCapacity(2)
	_, err := st.Intern("one")
	require.NoError(t, err)
	_, err = st.Intern("two")
	require.NoError(t, err)

	_, err = st.Intern("three")
	require.Error(t, err)
	require.Contains(t, err.Error(), "symbol table exhausted")

	// Existing symbols still intern fine at capacity.
	one, err := st.Intern("one")
	require.NoError(t, err)
	require.Equal(t, "one", one.String())
}

func TestSymbolNilString(t *testing.T) {
	var s *Symbol
	require.Equal(t, "<nil>", s.String())
}

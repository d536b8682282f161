package archive

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mabhi256/jarc/internal/meta"
)

func TestLedgerRegisterAndLookup(t *testing.T) {
	st := meta.NewSymtab()
	live, err := st.Intern("java/lang/Object")
	require.NoError(t, err)
	buffered := live.Clone()

	l := NewLedger()
	info := l.Register(live, buffered, RegionRO, 0, 24)
	require.Equal(t, ObjID(1), info.ID)
	require.Equal(t, RegionRO, info.Kind)

	got, ok := l.LookupLive(live)
	require.True(t, ok)
	require.Same(t, info, got)
	got, ok = l.LookupBuffered(buffered)
	require.True(t, ok)
	require.Same(t, info, got)

	_, ok = l.LookupLive(buffered)
	require.False(t, ok, "buffered identity is not a live identity")

	require.Same(t, buffered, l.BufferedFor(live))

	// Objects that were never copied translate to themselves; the caller
	// decides whether that means base archive or bug.
	other, err := st.Intern("untracked")
	require.NoError(t, err)
	require.Same(t, other, l.BufferedFor(other))

	// Buffer-only objects have no live identity.
	arr := &ClassArray{}
	arrInfo := l.Register(nil, arr, RegionRO, 24, 16)
	require.Equal(t, ObjID(2), arrInfo.ID)
	require.Len(t, l.Objects(), 2)
	require.Equal(t, 2, l.Len())
	require.Same(t, info, l.Objects()[0])
}

func TestLedgerMarks(t *testing.T) {
	st := meta.NewSymtab()
	live, err := st.Intern("sym")
	require.NoError(t, err)
	buffered := live.Clone()

	l := NewLedger()
	info := l.Register(live, buffered, RegionRO, 0, 16)
	require.False(t, info.Marked)

	l.Mark(buffered)
	require.True(t, info.Marked)
	l.ClearMark(buffered)
	require.False(t, info.Marked)

	// Marking an unknown object is a no-op, not a panic.
	l.Mark(live)
	require.False(t, info.Marked)
}

package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mabhi256/jarc/internal/loader"
	"github.com/mabhi256/jarc/internal/meta"
	"github.com/mabhi256/jarc/internal/prelink"
	"github.com/mabhi256/jarc/internal/training"
)

func dumpStatic(t *testing.T, f *fixture) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.jsa")
	f.dump(t, Config{Path: path, Static: true})
	return path
}

func corrupt(t *testing.T, path string, off int) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[off] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestOpenRejectsBadHeader(t *testing.T) {
	resetDumps(t)
	path := dumpStatic(t, newFixture(t))

	// Bad magic fails before the checksum is even consulted.
	corrupt(t, path, 0)
	_, err := Open(path, meta.NewSymtab(), nil)
	require.ErrorIs(t, err, ErrBadHeader)

	corrupt(t, path, 0) // restore magic
	corrupt(t, path, 33)
	_, err = Open(path, meta.NewSymtab(), nil)
	require.ErrorIs(t, err, ErrBadHeader)
}

func TestOpenRejectsCorruptRegion(t *testing.T) {
	resetDumps(t)
	path := dumpStatic(t, newFixture(t))

	// First byte of the read-write region payload.
	corrupt(t, path, regionAlign)
	_, err := Open(path, meta.NewSymtab(), nil)
	require.ErrorIs(t, err, ErrBadRegion)
}

func TestOpenRejectsTruncatedFile(t *testing.T) {
	resetDumps(t)
	path := dumpStatic(t, newFixture(t))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:200], 0o644))
	_, err = Open(path, meta.NewSymtab(), nil)
	require.ErrorIs(t, err, ErrBadRegion)
}

func TestValidateReport(t *testing.T) {
	resetDumps(t)
	path := dumpStatic(t, newFixture(t))

	rep, err := Validate(path)
	require.NoError(t, err)
	require.True(t, rep.HeaderOK)
	require.True(t, rep.Static)
	require.Equal(t, DefaultRequestedBase, rep.RequestedBase)
	require.Len(t, rep.Regions, int(regionCount))
	for _, rr := range rep.Regions {
		require.True(t, rr.OK, "%s region", rr.Kind)
		require.Equal(t, rr.StoredCRC, rr.ActualCRC)
	}

	corrupt(t, path, regionAlign)
	rep, err = Validate(path)
	require.ErrorIs(t, err, ErrBadRegion)
	require.True(t, rep.HeaderOK, "header remains intact")
	require.False(t, rep.Regions[RegionRW].OK)
	require.True(t, rep.Regions[RegionRO].OK)
}

func TestDynamicDumpRoundTrip(t *testing.T) {
	resetDumps(t)
	basePath := dumpStatic(t, newFixture(t))

	env := loader.NewEnvironment()
	base, err := Open(basePath, env.Symtab(), nil)
	require.NoError(t, err)
	for _, c := range base.Classes() {
		require.NoError(t, env.RegisterLoaded(c))
	}
	baseObject := classByName(t, base.Classes(), "java/lang/Object")

	extra := &meta.Class{
		Name:       intern(t, env, "app/Extra"),
		Loader:     meta.AppLoader,
		LoaderName: intern(t, env, "app"),
		Super:      baseObject,
		Linked:     true,
	}
	extra.BuildDispatchTables()
	require.NoError(t, env.RegisterLoaded(extra))

	pre := prelink.New(env, zap.NewNop())
	pre.AddBasePreloaded(base.PreloadSet())

	dynPath := filepath.Join(t.TempDir(), "dyn.jsa")
	b, err := New(env, pre, training.NewStore(true), zap.NewNop(),
		Config{Path: dynPath, Static: false, Base: base})
	require.NoError(t, err)
	require.NoError(t, b.Dump())

	dyn, err := Open(dynPath, env.Symtab(), base)
	require.NoError(t, err)
	require.False(t, dyn.Static())
	require.Equal(t, base.RequestedTop(), dyn.Header().RequestedBase)

	classes := dyn.Classes()
	require.Len(t, classes, 1, "base-archive classes are not re-archived")
	got := classByName(t, classes, "app/Extra")
	require.Same(t, baseObject, got.Super, "cross-archive reference lands on the base object")

	ps := dyn.PreloadSet()
	require.Len(t, ps.App, 1)
	require.Same(t, got, ps.App[0])
}

func TestOpenEnforcesBasePairing(t *testing.T) {
	resetDumps(t)
	basePath := dumpStatic(t, newFixture(t))

	env := loader.NewEnvironment()
	base, err := Open(basePath, env.Symtab(), nil)
	require.NoError(t, err)
	for _, c := range base.Classes() {
		require.NoError(t, env.RegisterLoaded(c))
	}
	extra := &meta.Class{
		Name:       intern(t, env, "app/Extra"),
		Loader:     meta.AppLoader,
		LoaderName: intern(t, env, "app"),
		Super:      classByName(t, base.Classes(), "java/lang/Object"),
		Linked:     true,
	}
	extra.BuildDispatchTables()
	require.NoError(t, env.RegisterLoaded(extra))
	pre := prelink.New(env, zap.NewNop())
	pre.AddBasePreloaded(base.PreloadSet())

	dynPath := filepath.Join(t.TempDir(), "dyn.jsa")
	b, err := New(env, pre, training.NewStore(true), zap.NewNop(),
		Config{Path: dynPath, Static: false, Base: base})
	require.NoError(t, err)
	require.NoError(t, b.Dump())

	// A dynamic archive cannot map without its base.
	_, err = Open(dynPath, meta.NewSymtab(), nil)
	require.ErrorIs(t, err, ErrBaseMismatch)

	// A static archive cannot map over a base.
	_, err = Open(basePath, meta.NewSymtab(), base)
	require.ErrorIs(t, err, ErrBaseMismatch)

	// A different base archive fails the header pairing check.
	otherEnv := loader.NewEnvironment()
	single := &meta.Class{
		Name:       intern(t, otherEnv, "lib/Only"),
		Loader:     meta.AppLoader,
		LoaderName: intern(t, otherEnv, "app"),
		Linked:     true,
	}
	single.BuildDispatchTables()
	require.NoError(t, otherEnv.RegisterLoaded(single))
	otherPath := filepath.Join(t.TempDir(), "other.jsa")
	ob, err := New(otherEnv, prelink.New(otherEnv, zap.NewNop()), training.NewStore(true),
		zap.NewNop(), Config{Path: otherPath, Static: true})
	require.NoError(t, err)
	require.NoError(t, ob.Dump())
	other, err := Open(otherPath, loader.NewEnvironment().Symtab(), nil)
	require.NoError(t, err)

	_, err = Open(dynPath, meta.NewSymtab(), other)
	require.ErrorIs(t, err, ErrBaseMismatch)
}

package training

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mabhi256/jarc/internal/meta"
)

func trainClass(t *testing.T, st *meta.Symtab, name string) *meta.Class {
	t.Helper()
	sym, err := st.Intern(name)
	require.NoError(t, err)
	loaderName, err := st.Intern("app")
	require.NoError(t, err)
	return &meta.Class{Name: sym, Loader: meta.AppLoader, LoaderName: loaderName, Linked: true}
}

func trainMethod(t *testing.T, st *meta.Symtab, name string) *meta.Method {
	t.Helper()
	sym, err := st.Intern(name)
	require.NoError(t, err)
	sig, err := st.Intern("()V")
	require.NoError(t, err)
	return &meta.Method{Name: sym, Signature: sig, Virtual: true}
}

func TestDisabledStoreRecordsNothing(t *testing.T) {
	st := meta.NewSymtab()
	s := NewStore(false)
	c := trainClass(t, st, "app/Main")

	require.False(t, s.Recording())
	require.Nil(t, s.KlassRecordFor(c))
	require.Nil(t, s.NoticeCompilation(c, trainMethod(t, st, "run"), LevelFullProfile, false))
	s.RecordInitializationStart(c)
	require.Zero(t, s.Len())
}

func TestNoticeCompilationLevels(t *testing.T) {
	st := meta.NewSymtab()
	s := NewStore(true)
	c := trainClass(t, st, "app/Main")
	m := trainMethod(t, st, "run")

	mr := s.NoticeCompilation(c, m, LevelLimitedProfile, false)
	require.NotNil(t, mr)
	require.Equal(t, LevelLimitedProfile, mr.Level)

	require.Same(t, mr, s.NoticeCompilation(c, m, LevelFullOptimization, false))
	require.Equal(t, LevelFullOptimization, mr.Level)

	// Levels never regress on their own.
	s.NoticeCompilation(c, m, LevelFullProfile, false)
	require.Equal(t, LevelFullOptimization, mr.Level)

	// Except a deopt to the simple tier, which resets the record.
	s.NoticeCompilation(c, m, LevelSimple, false)
	require.Equal(t, LevelSimple, mr.Level)

	require.True(t, mr.SawLevel(LevelLimitedProfile))
	require.True(t, mr.SawLevel(LevelFullOptimization))
	require.False(t, mr.SawLevel(LevelFullProfile+10))
}

func TestOnlyInlinedClearedPermanently(t *testing.T) {
	st := meta.NewSymtab()
	s := NewStore(true)
	c := trainClass(t, st, "app/Main")
	m := trainMethod(t, st, "helper")

	mr := s.NoticeCompilation(c, m, LevelFullOptimization, true)
	require.True(t, mr.OnlyInlined())

	s.NoticeCompilation(c, m, LevelFullProfile, false)
	require.False(t, mr.OnlyInlined())

	// A later inlined observation does not restore the state.
	s.NoticeCompilation(c, m, LevelFullOptimization, true)
	require.False(t, mr.OnlyInlined())
}

func TestBeginCompileChain(t *testing.T) {
	st := meta.NewSymtab()
	s := NewStore(true)
	c := trainClass(t, st, "app/Main")
	outer := s.NoticeCompilation(c, trainMethod(t, st, "outer"), LevelFullOptimization, false)
	inner := s.NoticeCompilation(c, trainMethod(t, st, "inner"), LevelFullOptimization, true)

	cr1 := s.BeginCompile(outer, nil, LevelFullProfile)
	cr2 := s.BeginCompile(outer, nil, LevelFullOptimization)
	require.Same(t, cr2, outer.Compiles, "latest compile heads the chain")
	require.Same(t, cr1, cr2.Next)
	require.Less(t, cr1.CompileID, cr2.CompileID)
	require.False(t, cr2.Inlined())
	require.Same(t, cr2, outer.LastToplevel[LevelFullOptimization])
	require.Equal(t, LevelFullOptimization, outer.HighestTopLevel)

	inlinee := s.BeginCompile(inner, outer, LevelFullOptimization)
	require.True(t, inlinee.Inlined())
	require.Nil(t, inner.LastToplevel[LevelFullOptimization], "inlined compiles are not top level")
}

func TestCompileInitDepTracking(t *testing.T) {
	st := meta.NewSymtab()
	s := NewStore(true)
	c := trainClass(t, st, "app/Main")
	dep := trainClass(t, st, "app/Config")
	mr := s.NoticeCompilation(c, trainMethod(t, st, "run"), LevelFullOptimization, false)

	cr := s.BeginCompile(mr, nil, LevelFullOptimization)
	s.NoticeInitDependency(cr, dep)
	s.NoticeInitDependency(cr, dep) // deduplicated
	require.Len(t, cr.InitDeps, 1)

	depRecord := s.KlassRecordFor(dep)
	require.Contains(t, depRecord.CompDeps, cr)

	cr.InitializeDepsTracking()
	require.Equal(t, 1, cr.InitDepsLeft())
	cr.NoticeInitialized(depRecord)
	require.Zero(t, cr.InitDepsLeft())
	cr.NoticeInitialized(depRecord)
	require.Zero(t, cr.InitDepsLeft(), "counter never goes negative")
}

func TestClinitSequenceAssignedOnce(t *testing.T) {
	st := meta.NewSymtab()
	s := NewStore(true)
	a := trainClass(t, st, "app/A")
	b := trainClass(t, st, "app/B")

	s.RecordInitializationStart(a)
	s.RecordInitializationStart(b)
	s.RecordInitializationStart(a) // re-entrant start keeps the first slot
	s.RecordInitializationEnd(a)

	ra := s.KlassRecordFor(a)
	rb := s.KlassRecordFor(b)
	require.Equal(t, 1, ra.ClinitSeq)
	require.Equal(t, 2, rb.ClinitSeq)
	require.True(t, ra.ClinitDone)
	require.False(t, rb.ClinitDone)
}

func TestInitDependencies(t *testing.T) {
	st := meta.NewSymtab()
	s := NewStore(true)
	a := trainClass(t, st, "app/A")
	b := trainClass(t, st, "app/B")

	s.RecordInitDependency(a, b)
	s.RecordInitDependency(a, b)
	s.RecordInitDependency(a, a) // self dependency dropped
	s.RecordInitDependency(a, nil)

	ra := s.KlassRecordFor(a)
	require.Len(t, ra.InitDeps, 1)
	require.Same(t, b.Name, ra.InitDeps[0].ClassName())
}

func TestStaticFieldInitSequence(t *testing.T) {
	st := meta.NewSymtab()
	s := NewStore(true)
	c := trainClass(t, st, "app/Config")
	f1, err := st.Intern("first")
	require.NoError(t, err)
	f2, err := st.Intern("second")
	require.NoError(t, err)

	s.RecordStaticFieldInit(c, f1)
	s.RecordStaticFieldInit(c, f2)
	s.RecordStaticFieldInit(c, f1) // only the first write counts

	kr := s.KlassRecordFor(c)
	require.Len(t, kr.FieldInits, 2)
	require.Equal(t, 1, kr.FieldInits[0].Sequence)
	require.Same(t, f1, kr.FieldInits[0].Name)
	require.Equal(t, 2, kr.FieldInits[1].Sequence)
}

func TestSortedRecordsOrder(t *testing.T) {
	st := meta.NewSymtab()
	s := NewStore(true)
	zebra := trainClass(t, st, "app/Zebra")
	alpha := trainClass(t, st, "app/Alpha")
	never := trainClass(t, st, "app/Never")

	// Zebra initialized before Alpha; Never was only touched.
	s.RecordInitializationStart(zebra)
	s.RecordInitializationStart(alpha)
	s.KlassRecordFor(never)
	mr := s.NoticeCompilation(alpha, trainMethod(t, st, "run"), LevelFullProfile, false)

	records := s.SortedRecords()
	require.Len(t, records, 4)
	require.Same(t, zebra.Name, records[0].(*KlassRecord).ClassName(), "initialization order beats name order")
	require.Same(t, alpha.Name, records[1].(*KlassRecord).ClassName())
	require.Same(t, never.Name, records[2].(*KlassRecord).ClassName())
	require.Same(t, mr, records[3], "method records follow class records")
}

func TestAdoptPrefersCurrentRun(t *testing.T) {
	st := meta.NewSymtab()
	s := NewStore(true)
	c := trainClass(t, st, "app/Main")
	s.RecordInitializationStart(c)
	live := s.KlassRecordFor(c)

	archived := &KlassRecord{key: klassKey(c.Name, c.LoaderName), ClinitSeq: 99}
	other := &KlassRecord{key: klassKey(mustInternSym(t, st, "app/Other"), c.LoaderName)}
	s.Adopt([]Record{archived, other})

	require.Same(t, live, s.KlassRecordFor(c), "current-run record wins")
	require.Equal(t, 1, live.ClinitSeq)
	require.Equal(t, 2, s.Len())
}

func mustInternSym(t *testing.T, st *meta.Symtab, v string) *meta.Symbol {
	t.Helper()
	sym, err := st.Intern(v)
	require.NoError(t, err)
	return sym
}

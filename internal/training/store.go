// Package training is the process-wide record of compilation and
// initialization observations gathered during a training run. The archive
// builder persists these records next to the class data so a later run can
// replay the same compilation decisions.
package training

import (
	"sort"
	"time"

	"github.com/mabhi256/jarc/internal/meta"
)

// Store is the keyed table of training records. All mutation happens under
// the injected Locker; when recording is disabled the locker is a no-op
// and every entry point returns immediately.
type Store struct {
	lock      Locker
	recording bool

	records map[Key]Record

	clinitCount   int // global count of <clinit> events so far
	nextCompileID int
}

func NewStore(recording bool) *Store {
	return &Store{
		lock:      NewLocker(recording),
		recording: recording,
		records:   make(map[Key]Record),
	}
}

// Recording reports whether this store accepts observations.
func (s *Store) Recording() bool { return s.recording }

func klassKey(className, loaderName *meta.Symbol) Key {
	return Key{ClassName: className, LoaderName: loaderName}
}

func methodKey(className, loaderName, methodName, signature *meta.Symbol) Key {
	return Key{ClassName: className, LoaderName: loaderName, MethodName: methodName, Signature: signature}
}

// ensureKlassLocked creates-or-returns the class record. Records are never
// deleted during a run.
func (s *Store) ensureKlassLocked(className, loaderName *meta.Symbol) *KlassRecord {
	key := klassKey(className, loaderName)
	if r, ok := s.records[key]; ok {
		return r.(*KlassRecord)
	}
	kr := &KlassRecord{key: key}
	s.records[key] = kr
	return kr
}

func (s *Store) ensureMethodLocked(className, loaderName, methodName, signature *meta.Symbol) *MethodRecord {
	key := methodKey(className, loaderName, methodName, signature)
	if r, ok := s.records[key]; ok {
		return r.(*MethodRecord)
	}
	mr := &MethodRecord{
		key:   key,
		Klass: s.ensureKlassLocked(className, loaderName),
	}
	s.records[key] = mr
	return mr
}

// KlassRecordFor finds or creates the record for a class.
func (s *Store) KlassRecordFor(c *meta.Class) *KlassRecord {
	if !s.recording {
		return nil
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	kr := s.ensureKlassLocked(c.Name, c.LoaderName)
	kr.Holder = c
	return kr
}

// FindMethod returns the record for a method if one exists.
func (s *Store) FindMethod(className, loaderName, methodName, signature *meta.Symbol) *MethodRecord {
	s.lock.Lock()
	defer s.lock.Unlock()
	r, ok := s.records[methodKey(className, loaderName, methodName, signature)]
	if !ok {
		return nil
	}
	return r.(*MethodRecord)
}

// NoticeCompilation records that a method was compiled at the given level.
// The stored level only ever increases, except that LevelSimple forces a
// reset to LevelSimple. A non-inlined observation permanently clears the
// only-inlined state.
func (s *Store) NoticeCompilation(c *meta.Class, method *meta.Method, level int, inlined bool) *MethodRecord {
	if !s.recording {
		return nil
	}
	s.lock.Lock()
	defer s.lock.Unlock()

	mr := s.ensureMethodLocked(c.Name, c.LoaderName, method.Name, method.Signature)
	mr.Klass.Holder = c

	if inlined {
		mr.WasInlined = true
	} else {
		mr.WasToplevel = true
	}
	mr.LevelMask |= levelMask(level)
	if level == LevelSimple {
		mr.Level = LevelSimple
	} else if level > mr.Level {
		mr.Level = level
	}
	return mr
}

// BeginCompile opens a compile record for a method and chains it onto the
// record's compile list.
func (s *Store) BeginCompile(mr *MethodRecord, topMethod *MethodRecord, level int) *CompileRecord {
	if !s.recording || mr == nil {
		return nil
	}
	s.lock.Lock()
	defer s.lock.Unlock()

	if topMethod == nil {
		topMethod = mr
	}
	s.nextCompileID++
	cr := &CompileRecord{
		Method:    mr,
		TopMethod: topMethod,
		Level:     level,
		CompileID: s.nextCompileID,
		Queued:    time.Now(),
		Next:      mr.Compiles,
	}
	mr.Compiles = cr
	if !cr.Inlined() && level > LevelNone && level < LevelCount {
		mr.LastToplevel[level] = cr
		if level > mr.HighestTopLevel {
			mr.HighestTopLevel = level
		}
	}
	return cr
}

// RecordCompileStart and RecordCompileEnd stamp the task timeline.
func (s *Store) RecordCompileStart(cr *CompileRecord) {
	if cr == nil {
		return
	}
	s.lock.Lock()
	cr.Started = time.Now()
	s.lock.Unlock()
}

func (s *Store) RecordCompileEnd(cr *CompileRecord, codeSize int) {
	if cr == nil {
		return
	}
	s.lock.Lock()
	cr.Ended = time.Now()
	cr.CodeSize = codeSize
	s.lock.Unlock()
}

// NoticeInitDependency records that a compilation observed the
// initialization state of a class.
func (s *Store) NoticeInitDependency(cr *CompileRecord, c *meta.Class) {
	if !s.recording || cr == nil {
		return
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	dep := s.ensureKlassLocked(c.Name, c.LoaderName)
	dep.Holder = c
	cr.addInitDep(dep)
}

// RecordInitializationStart assigns the class its global <clinit> sequence
// number the first time initialization begins.
func (s *Store) RecordInitializationStart(c *meta.Class) {
	if !s.recording {
		return
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	kr := s.ensureKlassLocked(c.Name, c.LoaderName)
	kr.Holder = c
	kr.HasInitTouch = true
	if kr.ClinitSeq == 0 {
		s.clinitCount++
		kr.ClinitSeq = s.clinitCount
	}
}

// RecordInitializationEnd marks <clinit> completion.
func (s *Store) RecordInitializationEnd(c *meta.Class) {
	if !s.recording {
		return
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	kr := s.ensureKlassLocked(c.Name, c.LoaderName)
	kr.ClinitDone = true
}

// RecordInitDependency notes that initializing c required dep to be
// initialized first.
func (s *Store) RecordInitDependency(c *meta.Class, dep *meta.Class) {
	if !s.recording || dep == nil {
		return
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	kr := s.ensureKlassLocked(c.Name, c.LoaderName)
	kd := s.ensureKlassLocked(dep.Name, dep.LoaderName)
	kr.addInitDep(kd)
}

// RecordStaticFieldInit notes the first observed non-default value of a
// static field, assigning the next per-class sequence number.
func (s *Store) RecordStaticFieldInit(c *meta.Class, fieldName *meta.Symbol) {
	if !s.recording {
		return
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	kr := s.ensureKlassLocked(c.Name, c.LoaderName)
	if kr.fieldInitSeq(fieldName) != 0 {
		return
	}
	kr.FieldInits = append(kr.FieldInits, FieldInit{
		Name:     fieldName,
		Sequence: len(kr.FieldInits) + 1,
	})
}

// Adopt installs records decoded from an archive. Records the current
// run already produced win over archived ones.
func (s *Store) Adopt(records []Record) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, r := range records {
		if _, ok := s.records[r.Key()]; !ok {
			s.records[r.Key()] = r
		}
	}
}

// Len returns the number of records in the store.
func (s *Store) Len() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.records)
}

// SortedRecords returns every record, class records before method records,
// with classes ordered non-zero <clinit> sequence first (then by sequence),
// then by key.
func (s *Store) SortedRecords() []Record {
	s.lock.Lock()
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	s.lock.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return recordLess(out[i], out[j])
	})
	return out
}

func recordLess(a, b Record) bool {
	ak, bk := a.Key(), b.Key()
	if ak.isMethod() != bk.isMethod() {
		return !ak.isMethod()
	}
	if !ak.isMethod() {
		// Classes that actually initialized come first, in
		// initialization order; never-initialized classes follow.
		as := a.(*KlassRecord).ClinitSeq
		bs := b.(*KlassRecord).ClinitSeq
		if (as != 0) != (bs != 0) {
			return as != 0
		}
		if as != 0 && as != bs {
			return as < bs
		}
	}
	return ak.Compare(bk) < 0
}

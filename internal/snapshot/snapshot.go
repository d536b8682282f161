// Package snapshot loads the dump-time input: a JSON-with-comments
// document describing the classes a training run loaded and the
// compilation and initialization events it observed. Loading one produces
// a populated loader environment and training store, the frozen object
// graph the archive builder walks.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/oleiade/lane"
	"github.com/tailscale/hujson"
	"go.uber.org/zap"

	"github.com/mabhi256/jarc/internal/loader"
	"github.com/mabhi256/jarc/internal/meta"
	"github.com/mabhi256/jarc/internal/training"
)

// File is the top-level snapshot document.
type File struct {
	// Classes were loaded during the training run.
	Classes []ClassDef `json:"classes"`

	// Loadable classes are present on the class path or in the modules
	// image but were never loaded. The preload driver can pull them in.
	Loadable []ClassDef `json:"loadable"`

	Training *TrainingDef `json:"training"`
}

type ClassDef struct {
	Name             string      `json:"name"` // slash-separated internal form
	Loader           string      `json:"loader"`
	Module           string      `json:"module"`
	FromModulesImage *bool       `json:"fromModulesImage"`
	Super            string      `json:"super"`
	Interfaces       []string    `json:"interfaces"`
	Hidden           bool        `json:"hidden"`
	Linked           bool        `json:"linked"`
	Initialized      bool        `json:"initialized"`
	Methods          []MethodDef `json:"methods"`
	Fields           []FieldDef  `json:"fields"`
	Pool             []PoolDef   `json:"pool"`
}

type MethodDef struct {
	Name      string `json:"name"`
	Signature string `json:"signature"`
	Static    bool   `json:"static"`
	Virtual   bool   `json:"virtual"`
}

type FieldDef struct {
	Name       string `json:"name"`
	Descriptor string `json:"descriptor"`
	Static     bool   `json:"static"`
}

// PoolDef is one constant-pool entry; entry numbering in the built pool
// starts at 1 as in the class-file format.
type PoolDef struct {
	Tag        string `json:"tag"` // class | unresolved-class | field | method | string | other
	Class      string `json:"class"`
	Member     string `json:"member"`
	Descriptor string `json:"descriptor"`
	Value      string `json:"value"`
	Resolved   bool   `json:"resolved"`
}

type TrainingDef struct {
	Initializations []InitDef    `json:"initializations"`
	Compilations    []CompileDef `json:"compilations"`
}

// InitDef replays one class initialization, in document order.
type InitDef struct {
	Class  string   `json:"class"`
	Loader string   `json:"loader"`
	Deps   []string `json:"deps"`   // classes this <clinit> needed first
	Fields []string `json:"fields"` // static fields set, in order
	Done   *bool    `json:"done"`   // default true
}

// CompileDef replays one compilation observation.
type CompileDef struct {
	Class     string   `json:"class"`
	Loader    string   `json:"loader"`
	Method    string   `json:"method"`
	Signature string   `json:"signature"`
	Level     int      `json:"level"`
	Inlined   bool     `json:"inlined"`
	CodeSize  int      `json:"codeSize"`
	InitDeps  []string `json:"initDeps"`
}

// Load parses the snapshot at path and installs its contents into env and
// store.
func Load(path string, env *loader.Environment, store *training.Store, log *zap.Logger) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}
	std, err := hujson.Standardize(raw)
	if err != nil {
		return fmt.Errorf("standardizing snapshot %s: %w", path, err)
	}
	var f File
	if err := json.Unmarshal(std, &f); err != nil {
		return fmt.Errorf("parsing snapshot %s: %w", path, err)
	}
	return build(&f, env, store, log.Named("snapshot"))
}

type classKey struct {
	name   *meta.Symbol
	loader meta.Loader
}

type builder struct {
	env   *loader.Environment
	store *training.Store
	log   *zap.Logger

	classes map[classKey]*meta.Class
}

func build(f *File, env *loader.Environment, store *training.Store, log *zap.Logger) error {
	b := &builder{
		env:     env,
		store:   store,
		log:     log,
		classes: make(map[classKey]*meta.Class),
	}

	// First pass creates every class shell so the linking pass can
	// resolve supertypes in either direction.
	for i := range f.Classes {
		if err := b.create(&f.Classes[i]); err != nil {
			return err
		}
	}
	for i := range f.Loadable {
		if err := b.create(&f.Loadable[i]); err != nil {
			return err
		}
	}

	for i := range f.Classes {
		if err := b.link(&f.Classes[i]); err != nil {
			return err
		}
	}
	for i := range f.Loadable {
		if err := b.link(&f.Loadable[i]); err != nil {
			return err
		}
	}
	b.buildDispatchTables()

	for i := range f.Classes {
		c, err := b.lookupDef(&f.Classes[i])
		if err != nil {
			return err
		}
		if err := env.RegisterLoaded(c); err != nil {
			return err
		}
	}
	for i := range f.Loadable {
		c, err := b.lookupDef(&f.Loadable[i])
		if err != nil {
			return err
		}
		env.Define(c)
	}

	if f.Training != nil {
		if err := b.replay(f.Training); err != nil {
			return err
		}
	}

	b.log.Info("snapshot loaded",
		zap.Int("classes", len(f.Classes)),
		zap.Int("loadable", len(f.Loadable)),
		zap.Int("trainingRecords", store.Len()))
	return nil
}

func (b *builder) intern(s string) (*meta.Symbol, error) {
	return b.env.Symtab().Intern(s)
}

func (b *builder) create(def *ClassDef) error {
	name, err := b.intern(def.Name)
	if err != nil {
		return err
	}
	l := meta.ParseLoader(def.Loader)
	loaderName, err := b.intern(l.String())
	if err != nil {
		return err
	}

	key := classKey{name, l}
	if _, ok := b.classes[key]; ok {
		return fmt.Errorf("snapshot defines %s twice for the %s loader", def.Name, l)
	}

	fromImage := def.Module != ""
	if def.FromModulesImage != nil {
		fromImage = *def.FromModulesImage
	}

	c := &meta.Class{
		Name:             name,
		Loader:           l,
		LoaderName:       loaderName,
		Module:           def.Module,
		FromModulesImage: fromImage,
		Hidden:           def.Hidden,
		Linked:           def.Linked,
		Initialized:      def.Initialized,
	}
	for _, m := range def.Methods {
		mn, err := b.intern(m.Name)
		if err != nil {
			return err
		}
		ms, err := b.intern(m.Signature)
		if err != nil {
			return err
		}
		c.Methods = append(c.Methods, &meta.Method{
			Name:      mn,
			Signature: ms,
			Static:    m.Static,
			Virtual:   m.Virtual,
		})
	}
	for _, fd := range def.Fields {
		fn, err := b.intern(fd.Name)
		if err != nil {
			return err
		}
		fdesc, err := b.intern(fd.Descriptor)
		if err != nil {
			return err
		}
		c.Fields = append(c.Fields, meta.Field{Name: fn, Descriptor: fdesc, Static: fd.Static})
	}

	b.classes[key] = c
	return nil
}

// find resolves a class name the way delegation would: the requesting
// loader first, then its parents. Classes already registered in the
// environment (a base archive, typically) satisfy references the
// snapshot itself does not define.
func (b *builder) find(name *meta.Symbol, l meta.Loader) *meta.Class {
	for cur := l; ; {
		if c, ok := b.classes[classKey{name, cur}]; ok {
			return c
		}
		parent, ok := cur.Parent()
		if !ok {
			break
		}
		cur = parent
	}
	return b.env.FindLoaded(name, l)
}

func (b *builder) findNamed(name string, l meta.Loader) (*meta.Class, error) {
	sym, err := b.intern(name)
	if err != nil {
		return nil, err
	}
	c := b.find(sym, l)
	if c == nil {
		return nil, fmt.Errorf("snapshot references unknown class %s", name)
	}
	return c, nil
}

func (b *builder) lookupDef(def *ClassDef) (*meta.Class, error) {
	return b.findNamed(def.Name, meta.ParseLoader(def.Loader))
}

func (b *builder) link(def *ClassDef) error {
	c, err := b.lookupDef(def)
	if err != nil {
		return err
	}
	l := c.Loader

	if def.Super != "" {
		super, err := b.findNamed(def.Super, l)
		if err != nil {
			return fmt.Errorf("unresolvable supertype of %s: %w", def.Name, err)
		}
		c.Super = super
	}
	for _, in := range def.Interfaces {
		iface, err := b.findNamed(in, l)
		if err != nil {
			return fmt.Errorf("unresolvable supertype of %s: %w", def.Name, err)
		}
		c.Interfaces = append(c.Interfaces, iface)
	}

	if len(def.Pool) > 0 {
		pool := &meta.ConstantPool{
			Holder:  c,
			Entries: make([]meta.PoolEntry, 1, len(def.Pool)+1),
		}
		for i := range def.Pool {
			entry, err := b.poolEntry(c, &def.Pool[i])
			if err != nil {
				return fmt.Errorf("pool entry %d of %s: %w", i+1, def.Name, err)
			}
			pool.Entries = append(pool.Entries, entry)
		}
		c.Pool = pool
	}

	return nil
}

type tableFrame struct {
	class    *meta.Class
	expanded bool
}

// buildDispatchTables derives vtables and itables for every linked class
// in the document, supertypes first regardless of document order. A
// subclass vtable extends its superclass's, so a table built from a
// not-yet-built super would come out short. Explicit stack; hierarchies
// can be deep. Classes inherited from an already-mapped archive keep the
// tables they were decoded with.
func (b *builder) buildDispatchTables() {
	visited := make(map[*meta.Class]bool)
	for _, c := range b.classes {
		st := lane.NewStack()
		for st.Push(tableFrame{class: c}); !st.Empty(); {
			f := st.Pop().(tableFrame)
			k := f.class

			if f.expanded {
				if k.Linked {
					k.BuildDispatchTables()
				}
				continue
			}

			if visited[k] || k.Shared {
				continue
			}
			visited[k] = true

			st.Push(tableFrame{class: k, expanded: true})
			for i := len(k.Interfaces) - 1; i >= 0; i-- {
				st.Push(tableFrame{class: k.Interfaces[i]})
			}
			if k.Super != nil {
				st.Push(tableFrame{class: k.Super})
			}
		}
	}
}

func (b *builder) poolEntry(holder *meta.Class, def *PoolDef) (meta.PoolEntry, error) {
	var e meta.PoolEntry
	var err error

	if def.Class != "" {
		if e.ClassName, err = b.intern(def.Class); err != nil {
			return e, err
		}
	}
	if def.Member != "" {
		if e.MemberName, err = b.intern(def.Member); err != nil {
			return e, err
		}
	}
	if def.Descriptor != "" {
		if e.Descriptor, err = b.intern(def.Descriptor); err != nil {
			return e, err
		}
	}

	switch def.Tag {
	case "class":
		e.Tag = meta.TagClass
	case "unresolved-class", "":
		e.Tag = meta.TagUnresolvedClass
	case "field":
		e.Tag = meta.TagField
	case "method":
		e.Tag = meta.TagMethod
	case "string":
		e.Tag = meta.TagString
		if e.Value, err = b.intern(def.Value); err != nil {
			return e, err
		}
	case "other":
		e.Tag = meta.TagOther
	default:
		return e, fmt.Errorf("unknown tag %q", def.Tag)
	}

	if def.Resolved {
		if e.ClassName == nil {
			return e, fmt.Errorf("resolved entry without a class name")
		}
		target := b.find(e.ClassName, holder.Loader)
		if target == nil {
			return e, fmt.Errorf("resolved entry targets unknown class %s", def.Class)
		}
		e.ResolvedClass = target
		e.Resolved = true
	}
	return e, nil
}

// replay feeds the recorded events through the store in document order,
// so sequence numbers and compile ids come out the same as in the
// original run.
func (b *builder) replay(t *TrainingDef) error {
	for i := range t.Initializations {
		if err := b.replayInit(&t.Initializations[i]); err != nil {
			return err
		}
	}
	for i := range t.Compilations {
		if err := b.replayCompile(&t.Compilations[i]); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) replayInit(def *InitDef) error {
	c, err := b.findNamed(def.Class, meta.ParseLoader(def.Loader))
	if err != nil {
		return fmt.Errorf("initialization of %s: %w", def.Class, err)
	}
	b.store.RecordInitializationStart(c)
	for _, dep := range def.Deps {
		dc, err := b.findNamed(dep, c.Loader)
		if err != nil {
			return fmt.Errorf("initialization dep of %s: %w", def.Class, err)
		}
		b.store.RecordInitDependency(c, dc)
	}
	for _, field := range def.Fields {
		sym, err := b.intern(field)
		if err != nil {
			return err
		}
		b.store.RecordStaticFieldInit(c, sym)
	}
	if def.Done == nil || *def.Done {
		b.store.RecordInitializationEnd(c)
	}
	return nil
}

func (b *builder) replayCompile(def *CompileDef) error {
	c, err := b.findNamed(def.Class, meta.ParseLoader(def.Loader))
	if err != nil {
		return fmt.Errorf("compilation in %s: %w", def.Class, err)
	}
	method := findMethod(c, def.Method, def.Signature)
	if method == nil {
		return fmt.Errorf("compilation of unknown method %s.%s%s", def.Class, def.Method, def.Signature)
	}

	mr := b.store.NoticeCompilation(c, method, def.Level, def.Inlined)
	if def.Inlined {
		return nil
	}

	cr := b.store.BeginCompile(mr, nil, def.Level)
	b.store.RecordCompileStart(cr)
	for _, dep := range def.InitDeps {
		dc, err := b.findNamed(dep, c.Loader)
		if err != nil {
			return fmt.Errorf("compile init dep in %s: %w", def.Class, err)
		}
		b.store.NoticeInitDependency(cr, dc)
	}
	b.store.RecordCompileEnd(cr, def.CodeSize)
	return nil
}

func findMethod(c *meta.Class, name, signature string) *meta.Method {
	for _, m := range c.Methods {
		if m.Name.String() == name && m.Signature.String() == signature {
			return m
		}
	}
	return nil
}

package archive

import (
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/oleiade/lane"
	"go.uber.org/zap"

	"github.com/mabhi256/jarc/internal/loader"
	"github.com/mabhi256/jarc/internal/meta"
	"github.com/mabhi256/jarc/internal/prelink"
	"github.com/mabhi256/jarc/internal/training"
)

// Phase tracks the builder's position in the dump pipeline. Phases only
// ever advance, one step at a time; a phase entered out of order is a
// builder bug and fails as one.
type Phase uint8

const (
	PhaseInit Phase = iota
	PhaseGather
	PhaseReserve
	PhaseCopy
	PhaseResolve
	PhaseSortRelayout
	PhaseAuxTables
	PhaseRelocate
	PhaseWrite
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseGather:
		return "gather-objects"
	case PhaseReserve:
		return "reserve-buffer"
	case PhaseCopy:
		return "copy-metadata"
	case PhaseResolve:
		return "resolve-embedded-pointers"
	case PhaseSortRelayout:
		return "sort-and-relayout"
	case PhaseAuxTables:
		return "finalize-auxiliary-tables"
	case PhaseRelocate:
		return "relocate-to-requested"
	case PhaseWrite:
		return "write"
	case PhaseDone:
		return "done"
	default:
		return fmt.Sprintf("phase(%d)", p)
	}
}

// ErrDumpingDisabled is returned once a previous dump attempt failed.
// The first failure poisons the process: metadata may have been partially
// prepared, so later dumps could silently archive inconsistent state.
var ErrDumpingDisabled = errors.New("archive dumping disabled after earlier failure")

var dumpsDisabled atomic.Bool

// DumpsDisabled reports whether a failed dump has disabled archiving for
// the rest of the process.
func DumpsDisabled() bool { return dumpsDisabled.Load() }

// Config carries the dump parameters.
type Config struct {
	Path   string
	Static bool

	// Base is the mapped base archive a dynamic dump layers on top of.
	// Required when Static is false.
	Base *Image

	// RequestedBase overrides the default mapping address. Ignored for
	// dynamic dumps, which are laid out above their base archive.
	RequestedBase uint64

	// RegionCapacity caps each region. Zero means size to fit.
	RegionCapacity uint64
}

// Builder runs one archive dump from gather to write. A builder is
// single-use; create a fresh one per dump attempt.
type Builder struct {
	cfg   Config
	env   *loader.Environment
	pre   *prelink.Prelinker
	store *training.Store
	log   *zap.Logger

	phase   Phase
	ledger  *Ledger
	regions [regionCount]*region

	gathered    []any // live objects, discovery order
	seen        map[any]bool
	dictionary  []*meta.Class // live archived classes, deterministic order
	preloadSets *prelink.PreloadSet
	poisonMemo  map[*meta.Class]bool

	regionBase [regionCount]uint64
	roots      *RootSet
	rootsInfo  *ObjInfo

	sortVisited map[*meta.Class]bool
}

func New(env *loader.Environment, pre *prelink.Prelinker, store *training.Store, log *zap.Logger, cfg Config) (*Builder, error) {
	if cfg.Path == "" {
		return nil, errors.New("archive path not set")
	}
	if !cfg.Static && cfg.Base == nil {
		return nil, errors.New("dynamic dump requires a base archive")
	}
	if cfg.Static && cfg.Base != nil {
		return nil, errors.New("static dump cannot have a base archive")
	}
	if cfg.RequestedBase == 0 {
		cfg.RequestedBase = DefaultRequestedBase
	}
	if !cfg.Static {
		cfg.RequestedBase = cfg.Base.RequestedTop()
	}
	return &Builder{
		cfg:         cfg,
		env:         env,
		pre:         pre,
		store:       store,
		log:         log.Named("archive"),
		ledger:      NewLedger(),
		seen:        make(map[any]bool),
		poisonMemo:  make(map[*meta.Class]bool),
		sortVisited: make(map[*meta.Class]bool),
	}, nil
}

// Dump runs the whole pipeline. Any failure disables further dumps in
// this process.
func (b *Builder) Dump() (err error) {
	if dumpsDisabled.Load() {
		return ErrDumpingDisabled
	}
	if b.phase != PhaseInit {
		return invariantf("dump", nil, "builder already used (phase %s)", b.phase)
	}
	defer func() {
		if err != nil && !errors.Is(err, ErrNoClasses) {
			dumpsDisabled.Store(true)
			b.log.Error("dump failed, archiving disabled for this process", zap.Error(err))
		}
	}()

	b.env.BeginExclusive()
	defer b.env.EndExclusive()

	if err := b.prepare(); err != nil {
		return fmt.Errorf("preparing constant pools: %w", err)
	}

	steps := []func() error{
		b.gather,
		b.reserve,
		b.copyObjects,
		b.resolvePointers,
		b.sortAndRelayout,
		b.buildAuxTables,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}

	regions, err := b.relocate()
	if err != nil {
		return err
	}
	if err := b.write(regions); err != nil {
		return err
	}
	b.phase = PhaseDone
	b.log.Info("archive written",
		zap.String("path", b.cfg.Path),
		zap.Bool("static", b.cfg.Static),
		zap.Int("objects", b.ledger.Len()),
		zap.Int("classes", len(b.dictionary)))
	return nil
}

func (b *Builder) advance(next Phase) error {
	if next != b.phase+1 {
		return invariantf("phase", nil, "cannot enter %s from %s", next, b.phase)
	}
	b.phase = next
	b.log.Debug("entering phase", zap.Stringer("phase", next))
	return nil
}

// prepare runs dump-time constant resolution over every loaded class.
// This is the preparatory step: it mutates live constant pools, so a
// failure here is what makes later dump attempts unsafe.
func (b *Builder) prepare() error {
	for _, c := range b.loadedSorted() {
		if err := b.pre.ResolveConstants(c, b.cfg.Static); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) loadedSorted() []*meta.Class {
	all := b.env.AllLoadedClasses()
	sort.Slice(all, func(i, j int) bool {
		if all[i].Loader != all[j].Loader {
			return all[i].Loader < all[j].Loader
		}
		return all[i].Name.String() < all[j].Name.String()
	})
	return all
}

// classExcluded reports classes that never go into this archive: hidden
// classes have no stable identity, custom-loader classes have no archived
// dictionary, shared classes already live in the base archive, and any
// subtype of an unarchivable class goes with it, since its hierarchy
// could not be rebuilt at load time.
func (b *Builder) classExcluded(c *meta.Class) bool {
	return c.Shared || b.poisoned(c)
}

type poisonFrame struct {
	class    *meta.Class
	expanded bool
}

// poisoned reports whether c, or anything in its supertype closure, is
// hidden or defined by a custom loader. Shared supertypes stop the walk;
// they were vetted when their own archive was dumped. Memoized; explicit
// stack, class hierarchies can be deep.
func (b *Builder) poisoned(c *meta.Class) bool {
	if v, ok := b.poisonMemo[c]; ok {
		return v
	}
	st := lane.NewStack()
	for st.Push(poisonFrame{class: c}); !st.Empty(); {
		f := st.Pop().(poisonFrame)
		k := f.class

		if f.expanded {
			v := k.Hidden || !k.Loader.IsBuiltin()
			if !v && k.Super != nil && b.poisonMemo[k.Super] {
				v = true
			}
			if !v {
				for _, it := range k.Interfaces {
					if b.poisonMemo[it] {
						v = true
						break
					}
				}
			}
			b.poisonMemo[k] = v
			continue
		}

		if _, ok := b.poisonMemo[k]; ok {
			continue
		}
		if k.Shared {
			b.poisonMemo[k] = false
			continue
		}
		st.Push(poisonFrame{class: k, expanded: true})
		for i := len(k.Interfaces) - 1; i >= 0; i-- {
			st.Push(poisonFrame{class: k.Interfaces[i]})
		}
		if k.Super != nil {
			st.Push(poisonFrame{class: k.Super})
		}
	}
	return b.poisonMemo[c]
}

func (b *Builder) baseHas(obj any) bool {
	return b.cfg.Base != nil && b.cfg.Base.Contains(obj)
}

// gather walks the live graph breadth-first from the archivable
// dictionary classes and the training records, collecting every object
// that will be copied.
func (b *Builder) gather() error {
	if err := b.advance(PhaseGather); err != nil {
		return err
	}

	for _, c := range b.loadedSorted() {
		if !b.classExcluded(c) {
			b.dictionary = append(b.dictionary, c)
		}
	}
	if len(b.dictionary) == 0 {
		return ErrNoClasses
	}

	work := lane.NewQueue()
	for _, c := range b.dictionary {
		work.Enqueue(c)
	}
	for _, r := range b.store.SortedRecords() {
		work.Enqueue(r)
	}

	for !work.Empty() {
		obj := work.Dequeue()
		if b.seen[obj] {
			continue
		}
		if b.baseHas(obj) {
			continue
		}
		if c, ok := obj.(*meta.Class); ok && b.classExcluded(c) {
			continue
		}
		b.seen[obj] = true
		b.gathered = append(b.gathered, obj)

		obj.(meta.Archivable).VisitRefs(func(s meta.Slot) {
			if t := s.Get(); t != nil && !b.seen[t] {
				work.Enqueue(t)
			}
		})
	}

	// The preload sequences are recorded here, before any pool is
	// pruned: the oracle's preload-set acceptance reads the preloaded
	// set the recorder populates, so pruning first would reject every
	// cross-loader resolution.
	sets, err := b.pre.RecordPreloadSets(b.dictionary, !b.cfg.Static)
	if err != nil {
		return err
	}
	b.preloadSets = sets

	b.log.Debug("gathered live metadata",
		zap.Int("objects", len(b.gathered)),
		zap.Int("classes", len(b.dictionary)))
	return nil
}

// reserve sizes the regions. The estimate is exact for the gathered
// objects plus headroom for the auxiliary tables built later; if the
// tables outgrow the headroom, allocation fails with ErrCapacity rather
// than silently relocating into unreserved space.
func (b *Builder) reserve() error {
	if err := b.advance(PhaseReserve); err != nil {
		return err
	}

	var need [regionCount]uint64
	records := 0
	for _, obj := range b.gathered {
		size, err := sizeOfObject(obj)
		if err != nil {
			return err
		}
		need[regionKindOf(obj)] += size
		if _, ok := obj.(training.Record); ok {
			records++
		}
	}

	// Aux tables: the root set, the dictionary array, six preload
	// arrays, and the training array. Every class can appear in the
	// dictionary plus at most one preload sequence; the initiated
	// sequences, unknown until pruning runs, are bounded by the
	// preloaded set.
	aux := uint64(10*objHeaderSize+512) +
		uint64(8*(2*len(b.dictionary)+records+2*b.pre.NumPreloaded()))
	need[RegionRO] += alignUp(aux)

	for k := RegionKind(0); k < regionCount; k++ {
		capacity := need[k]
		if b.cfg.RegionCapacity > 0 {
			capacity = b.cfg.RegionCapacity
		}
		b.regions[k] = newRegion(k, capacity)
	}

	b.regionBase[RegionRW] = b.cfg.RequestedBase
	b.regionBase[RegionRO] = b.regionBase[RegionRW] + alignTo(b.regions[RegionRW].capacity, regionAlign)
	return nil
}

// copyObjects clones every gathered object into the buffer and records
// its placement in the ledger. Clones still reference live metadata when
// this phase ends; resolution rewrites them next.
func (b *Builder) copyObjects() error {
	if err := b.advance(PhaseCopy); err != nil {
		return err
	}

	for _, live := range b.gathered {
		buffered, err := cloneForBuffer(live)
		if err != nil {
			return err
		}
		// Dispatch tables are derived state, so the clone gets a fresh
		// set before its size is measured. The sort phase derives them
		// again from the final method order; the lengths cannot change.
		if c, ok := buffered.(*meta.Class); ok {
			c.BuildDispatchTables()
		}
		if _, err := b.place(live, buffered); err != nil {
			return err
		}
	}

	// Resolved pool entries the oracle rejects are reverted on the
	// buffered copies, so the live pools keep their resolutions.
	for _, c := range b.dictionary {
		if c.Pool == nil {
			continue
		}
		if info, ok := b.ledger.LookupLive(c.Pool); ok {
			b.pre.PruneUnarchivableResolutions(c, info.Buffered.(*meta.ConstantPool))
		}
	}
	return nil
}

func (b *Builder) place(live any, buffered meta.Archivable) (*ObjInfo, error) {
	size, err := sizeOfObject(buffered)
	if err != nil {
		return nil, err
	}
	kind := regionKindOf(buffered)
	off, err := b.regions[kind].alloc(size)
	if err != nil {
		return nil, err
	}
	return b.ledger.Register(live, buffered, kind, off, size), nil
}

func cloneForBuffer(live any) (meta.Archivable, error) {
	switch o := live.(type) {
	case *meta.Symbol:
		return o.Clone(), nil
	case *meta.Class:
		return o.Clone(), nil
	case *meta.Method:
		return o.Clone(), nil
	case *meta.ConstantPool:
		return o.Clone(), nil
	case *training.KlassRecord:
		return o.Clone(), nil
	case *training.MethodRecord:
		return o.Clone(), nil
	case *training.CompileRecord:
		return o.Clone(), nil
	default:
		return nil, fmt.Errorf("unarchivable object type %T", live)
	}
}

// resolvePointers rewrites every reference slot of every buffered object
// from live space into buffered space (or leaves it aimed at the base
// archive). Each object is marked once its slots are safe; the encoder
// later refuses anything unmarked.
func (b *Builder) resolvePointers() error {
	if err := b.advance(PhaseResolve); err != nil {
		return err
	}

	var firstErr error
	for _, info := range b.ledger.Objects() {
		holder := info
		holder.Buffered.VisitRefs(func(s meta.Slot) {
			t := s.Get()
			if t == nil {
				return
			}
			if ti, ok := b.ledger.LookupLive(t); ok {
				s.Set(ti.Buffered)
				return
			}
			if _, ok := b.ledger.LookupBuffered(t); ok {
				return
			}
			if b.baseHas(t) {
				return
			}
			if c, ok := t.(*meta.Class); ok && b.classExcluded(c) {
				// Only training records may reference an excluded
				// class; their edges are diagnostic, so they are
				// severed. Exclusion propagates through supertypes,
				// so a structural edge landing here is a builder bug.
				if _, weak := holder.Buffered.(training.Record); weak {
					s.Set(nil)
					b.log.Debug("severed reference to unarchivable class",
						zap.String("holder", describe(holder.Buffered)),
						zap.String("target", c.ExternalName()))
					return
				}
				if firstErr == nil {
					firstErr = invariantf("resolve", holder.Buffered,
						"structural reference to excluded class %s", c.ExternalName())
				}
				return
			}
			if firstErr == nil {
				firstErr = invariantf("resolve", holder.Buffered,
					"reference to unregistered %s", describe(t))
			}
		})
		if firstErr != nil {
			return firstErr
		}
		b.ledger.Mark(holder.Buffered)
	}
	return nil
}

// buildAuxTables collects the initiated sequences pruning recorded and
// assembles the root set. These objects are born in buffered space, so
// their references are translated at construction time.
func (b *Builder) buildAuxTables() error {
	if err := b.advance(PhaseAuxTables); err != nil {
		return err
	}

	sets := b.preloadSets
	b.pre.RecordInitiatedSets(sets)

	dict, err := b.classArray(b.dictionary)
	if err != nil {
		return err
	}
	boot, err := b.classArray(sets.Boot)
	if err != nil {
		return err
	}
	boot2, err := b.classArray(sets.Boot2)
	if err != nil {
		return err
	}
	platform, err := b.classArray(sets.Platform)
	if err != nil {
		return err
	}
	platformInit, err := b.classArray(sets.PlatformInitiated)
	if err != nil {
		return err
	}
	app, err := b.classArray(sets.App)
	if err != nil {
		return err
	}
	appInit, err := b.classArray(sets.AppInitiated)
	if err != nil {
		return err
	}

	tr := &RecordArray{}
	for _, r := range b.store.SortedRecords() {
		buffered := b.ledger.BufferedFor(r)
		tr.Records = append(tr.Records, buffered.(training.Record))
	}
	trInfo, err := b.place(nil, tr)
	if err != nil {
		return err
	}
	b.ledger.Mark(trInfo.Buffered)

	b.roots = &RootSet{
		Dictionary:        dict,
		Boot:              boot,
		Boot2:             boot2,
		Platform:          platform,
		PlatformInitiated: platformInit,
		App:               app,
		AppInitiated:      appInit,
		Training:          tr,
	}
	b.rootsInfo, err = b.place(nil, b.roots)
	if err != nil {
		return err
	}
	b.ledger.Mark(b.roots)
	return nil
}

// classArray builds a buffer-resident array whose elements are already
// translated into buffered (or base) space.
func (b *Builder) classArray(lives []*meta.Class) (*ClassArray, error) {
	arr := &ClassArray{}
	for _, c := range lives {
		arr.Classes = append(arr.Classes, b.ledger.BufferedFor(c).(*meta.Class))
	}
	info, err := b.place(nil, arr)
	if err != nil {
		return nil, err
	}
	b.ledger.Mark(info.Buffered)
	return arr, nil
}

func (b *Builder) requestedAddr(info *ObjInfo) uint64 {
	return b.regionBase[info.Kind] + info.Offset
}

// addrOf is the encoder's pointer resolver: buffered objects get their
// requested address, base-archive objects keep the address they were
// mapped at, anything else is a relocation bug.
func (b *Builder) addrOf(target any) (uint64, error) {
	if info, ok := b.ledger.LookupBuffered(target); ok {
		return b.requestedAddr(info), nil
	}
	if b.cfg.Base != nil {
		if addr, ok := b.cfg.Base.AddressOf(target); ok {
			return addr, nil
		}
	}
	if _, ok := b.ledger.LookupLive(target); ok {
		return 0, invariantf("relocate", nil, "live pointer to %s leaked into buffer", describe(target))
	}
	return 0, invariantf("relocate", nil, "pointer to unregistered %s", describe(target))
}

// relocate encodes every buffered object at its final offset, with all
// references expressed as requested-space addresses.
func (b *Builder) relocate() ([][]byte, error) {
	if err := b.advance(PhaseRelocate); err != nil {
		return nil, err
	}

	bufs := make([][]byte, regionCount)
	for k := RegionKind(0); k < regionCount; k++ {
		bufs[k] = make([]byte, b.regions[k].used())
	}

	for _, info := range b.ledger.Objects() {
		if !info.Marked {
			return nil, invariantf("relocate", info.Buffered, "pointers were cleared and never re-marked")
		}
		e := &encoder{
			buf:     bufs[info.Kind][info.Offset : info.Offset+info.Size],
			resolve: b.addrOf,
		}
		if err := encodeObject(e, info.Buffered, info.Size); err != nil {
			return nil, err
		}
		if uint64(e.off) > info.Size {
			return nil, invariantf("relocate", info.Buffered,
				"encoded %d bytes into a %d byte slot", e.off, info.Size)
		}
	}
	return bufs, nil
}

func alignTo(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}

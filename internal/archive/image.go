package archive

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"time"

	"github.com/mabhi256/jarc/internal/meta"
	"github.com/mabhi256/jarc/internal/prelink"
	"github.com/mabhi256/jarc/internal/training"
)

// Image is a mapped archive: the decoded object graph plus the address
// bookkeeping a dynamic dump needs to reference this archive's objects.
type Image struct {
	path   string
	header *Header
	base   *Image // non-nil for a dynamic archive

	roots  *RootSet
	byAddr map[uint64]any
	addrOf map[any]uint64
}

// Open reads, validates, and decodes an archive. Validation is two
// gates: the header checksum rejects the file outright, then each region
// checksum must pass before any object in it is decoded. A dynamic
// archive must be opened over the exact base archive it was dumped
// against.
//
// Symbols are interned through symtab as they decode, so archived names
// are pointer-identical with live ones.
func Open(path string, symtab *meta.Symtab, base *Image) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}
	h, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}
	if h.Static() {
		if base != nil {
			return nil, fmt.Errorf("%w: static archive cannot have a base", ErrBaseMismatch)
		}
	} else {
		if base == nil {
			return nil, fmt.Errorf("%w: dynamic archive requires its base archive", ErrBaseMismatch)
		}
		if h.BaseHeaderCRC != base.HeaderCRC() {
			return nil, fmt.Errorf("%w: dumped against header %#x, base has %#x",
				ErrBaseMismatch, h.BaseHeaderCRC, base.HeaderCRC())
		}
	}

	img := &Image{
		path:   path,
		header: h,
		base:   base,
		byAddr: make(map[uint64]any),
		addrOf: make(map[any]uint64),
	}

	regions := make([][]byte, regionCount)
	for i := range h.Regions {
		d := &h.Regions[i]
		if d.FileOffset+d.Size > uint64(len(data)) {
			return nil, fmt.Errorf("%w: %s region extends past end of file", ErrBadRegion, d.Kind)
		}
		buf := data[d.FileOffset : d.FileOffset+d.Size]
		if got := crc32.ChecksumIEEE(buf); got != d.CRC {
			return nil, fmt.Errorf("%w: %s region checksum %#x, stored %#x",
				ErrBadRegion, d.Kind, got, d.CRC)
		}
		regions[d.Kind] = buf
	}

	// Symbols live in the read-only region, so it is scanned first;
	// training records in the read-write region need their key symbols
	// at construction time.
	type pending struct {
		obj     any
		payload []byte
	}
	var todo []pending
	for _, k := range []RegionKind{RegionRO, RegionRW} {
		desc := &h.Regions[k]
		buf := regions[k]
		for off := uint64(0); off < uint64(len(buf)); {
			if off+objHeaderSize > uint64(len(buf)) {
				return nil, fmt.Errorf("%w: truncated object header in %s region", ErrBadRegion, k)
			}
			kind := buf[off]
			size := uint64(binary.LittleEndian.Uint32(buf[off+4:]))
			if size < objHeaderSize || off+size > uint64(len(buf)) {
				return nil, fmt.Errorf("%w: bad object size %d in %s region", ErrBadRegion, size, k)
			}
			addr := desc.RequestedBase + off
			payload := buf[off+objHeaderSize : off+size]

			obj, err := img.instantiate(kind, payload, symtab)
			if err != nil {
				return nil, err
			}
			img.byAddr[addr] = obj
			img.addrOf[obj] = addr
			if kind != objSymbol {
				todo = append(todo, pending{obj, payload})
			}
			off += size
		}
	}

	for _, p := range todo {
		d := &decoder{buf: p.payload, resolve: img.resolveAddr}
		decodePayload(d, p.obj)
		if d.err != nil {
			return nil, fmt.Errorf("decoding %s: %w", describe(p.obj), d.err)
		}
	}

	rootsObj, err := img.resolveAddr(h.RootsAddr)
	if err != nil {
		return nil, fmt.Errorf("resolving root set: %w", err)
	}
	roots, ok := rootsObj.(*RootSet)
	if !ok {
		return nil, fmt.Errorf("%w: root address does not point at a root set", ErrBadRegion)
	}
	img.roots = roots
	return img, nil
}

// instantiate creates the typed shell for one object. Symbols decode
// completely here; training records need their identity key up front;
// everything else is filled in by the second pass.
func (img *Image) instantiate(kind byte, payload []byte, symtab *meta.Symtab) (any, error) {
	switch kind {
	case objSymbol:
		n := binary.LittleEndian.Uint32(payload)
		if uint64(4+n) > uint64(len(payload)) {
			return nil, fmt.Errorf("%w: truncated symbol", ErrBadRegion)
		}
		return symtab.Intern(string(payload[4 : 4+n]))
	case objClass:
		return &meta.Class{Shared: true}, nil
	case objMethod:
		return &meta.Method{}, nil
	case objPool:
		return &meta.ConstantPool{}, nil
	case objKlassRecord:
		syms, err := img.keySymbols(payload, 2)
		if err != nil {
			return nil, err
		}
		return training.NewKlassRecord(syms[0], syms[1]), nil
	case objMethodRecord:
		syms, err := img.keySymbols(payload, 4)
		if err != nil {
			return nil, err
		}
		return training.NewMethodRecord(syms[0], syms[1], syms[2], syms[3]), nil
	case objCompileRecord:
		return &training.CompileRecord{}, nil
	case objClassArray:
		return &ClassArray{}, nil
	case objRecordArray:
		return &RecordArray{}, nil
	case objRootSet:
		return &RootSet{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown object kind %d", ErrBadRegion, kind)
	}
}

func (img *Image) keySymbols(payload []byte, n int) ([]*meta.Symbol, error) {
	if len(payload) < 8*n {
		return nil, fmt.Errorf("%w: truncated record key", ErrBadRegion)
	}
	out := make([]*meta.Symbol, n)
	for i := 0; i < n; i++ {
		addr := binary.LittleEndian.Uint64(payload[8*i:])
		obj, err := img.resolveAddr(addr)
		if err != nil {
			return nil, err
		}
		if obj != nil {
			sym, ok := obj.(*meta.Symbol)
			if !ok {
				return nil, fmt.Errorf("%w: record key is not a symbol", ErrBadRegion)
			}
			out[i] = sym
		}
	}
	return out, nil
}

func (img *Image) resolveAddr(addr uint64) (any, error) {
	if addr == 0 {
		return nil, nil
	}
	if obj, ok := img.byAddr[addr]; ok {
		return obj, nil
	}
	if img.base != nil {
		return img.base.resolveAddr(addr)
	}
	return nil, fmt.Errorf("%w: dangling pointer %#x", ErrBadRegion, addr)
}

// Path returns the file the image was opened from.
func (img *Image) Path() string { return img.path }

// Static reports whether this is a base (static) archive.
func (img *Image) Static() bool { return img.header.Static() }

// HeaderCRC identifies the archive; a dynamic dump stores its base's
// value and mapping verifies the pairing.
func (img *Image) HeaderCRC() uint32 { return img.header.CRC }

// RequestedTop is where address space above this archive begins. A
// dynamic dump uses it as its own requested base.
func (img *Image) RequestedTop() uint64 { return img.header.RequestedTop }

// Header exposes the decoded header for diagnostics.
func (img *Image) Header() *Header { return img.header }

// Contains reports whether obj was decoded from this image or its base.
func (img *Image) Contains(obj any) bool {
	if _, ok := img.addrOf[obj]; ok {
		return true
	}
	return img.base != nil && img.base.Contains(obj)
}

// AddressOf returns the requested-space address of an object from this
// image or its base.
func (img *Image) AddressOf(obj any) (uint64, bool) {
	if addr, ok := img.addrOf[obj]; ok {
		return addr, true
	}
	if img.base != nil {
		return img.base.AddressOf(obj)
	}
	return 0, false
}

// Classes returns the archived dictionary.
func (img *Image) Classes() []*meta.Class {
	return img.roots.Dictionary.Classes
}

// TrainingRecords returns the archived training data in dump order.
func (img *Image) TrainingRecords() []training.Record {
	return img.roots.Training.Records
}

// PreloadSet reconstructs the preload sequences recorded at dump time.
func (img *Image) PreloadSet() *prelink.PreloadSet {
	return &prelink.PreloadSet{
		Boot:              img.roots.Boot.Classes,
		Boot2:             img.roots.Boot2.Classes,
		Platform:          img.roots.Platform.Classes,
		PlatformInitiated: img.roots.PlatformInitiated.Classes,
		App:               img.roots.App.Classes,
		AppInitiated:      img.roots.AppInitiated.Classes,
	}
}

// decoder mirrors encoder over one payload.
type decoder struct {
	buf     []byte
	off     int
	resolve func(uint64) (any, error)
	err     error
}

func (d *decoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf(format, args...)
	}
}

func (d *decoder) u8() byte {
	if d.err != nil || d.off+1 > len(d.buf) {
		d.fail("truncated payload")
		return 0
	}
	v := d.buf[d.off]
	d.off++
	return v
}

func (d *decoder) bool() bool { return d.u8() != 0 }

func (d *decoder) u32() uint32 {
	if d.err != nil || d.off+4 > len(d.buf) {
		d.fail("truncated payload")
		return 0
	}
	v := binary.LittleEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v
}

func (d *decoder) u64() uint64 {
	if d.err != nil || d.off+8 > len(d.buf) {
		d.fail("truncated payload")
		return 0
	}
	v := binary.LittleEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return v
}

func (d *decoder) i64() int64 { return int64(d.u64()) }

func (d *decoder) str() string {
	n := int(d.u32())
	if d.err != nil || d.off+n > len(d.buf) {
		d.fail("truncated string")
		return ""
	}
	s := string(d.buf[d.off : d.off+n])
	d.off += n
	return s
}

func (d *decoder) ref() any {
	addr := d.u64()
	if d.err != nil {
		return nil
	}
	obj, err := d.resolve(addr)
	if err != nil {
		d.fail("%v", err)
		return nil
	}
	return obj
}

func (d *decoder) symbol() *meta.Symbol {
	obj := d.ref()
	if obj == nil {
		return nil
	}
	s, ok := obj.(*meta.Symbol)
	if !ok {
		d.fail("expected symbol, found %s", describe(obj))
		return nil
	}
	return s
}

func (d *decoder) class() *meta.Class {
	obj := d.ref()
	if obj == nil {
		return nil
	}
	c, ok := obj.(*meta.Class)
	if !ok {
		d.fail("expected class, found %s", describe(obj))
		return nil
	}
	return c
}

func (d *decoder) method() *meta.Method {
	obj := d.ref()
	if obj == nil {
		return nil
	}
	m, ok := obj.(*meta.Method)
	if !ok {
		d.fail("expected method, found %s", describe(obj))
		return nil
	}
	return m
}

func (d *decoder) when() time.Time {
	n := d.i64()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func decodePayload(d *decoder, obj any) {
	switch o := obj.(type) {
	case *meta.Method:
		o.Name = d.symbol()
		o.Signature = d.symbol()
		o.Static = d.bool()
		o.Virtual = d.bool()

	case *meta.Class:
		o.Name = d.symbol()
		o.LoaderName = d.symbol()
		o.Super = d.class()
		if p := d.ref(); p != nil {
			o.Pool, _ = p.(*meta.ConstantPool)
		}
		o.Loader = meta.Loader(d.u8())
		o.Hidden = d.bool()
		o.Linked = d.bool()
		o.Initialized = d.bool()
		o.FromModulesImage = d.bool()
		o.Module = d.str()
		for n := d.u32(); n > 0; n-- {
			o.Interfaces = append(o.Interfaces, d.class())
		}
		for n := d.u32(); n > 0; n-- {
			o.Methods = append(o.Methods, d.method())
		}
		for n := d.u32(); n > 0; n-- {
			f := meta.Field{Name: d.symbol(), Descriptor: d.symbol(), Static: d.bool()}
			o.Fields = append(o.Fields, f)
		}
		for n := d.u32(); n > 0; n-- {
			o.VTable = append(o.VTable, d.method())
		}
		if o.Linked && len(o.Interfaces) > 0 {
			o.ITable = make(map[*meta.Class][]*meta.Method, len(o.Interfaces))
			for _, it := range o.Interfaces {
				var slots []*meta.Method
				for n := d.u32(); n > 0; n-- {
					slots = append(slots, d.method())
				}
				o.ITable[it] = slots
			}
		}

	case *meta.ConstantPool:
		o.Holder = d.class()
		for n := d.u32(); n > 0; n-- {
			e := meta.PoolEntry{}
			e.Tag = meta.PoolTag(d.u8())
			e.Resolved = d.bool()
			e.ClassName = d.symbol()
			e.MemberName = d.symbol()
			e.Descriptor = d.symbol()
			e.Value = d.symbol()
			e.ResolvedClass = d.class()
			o.Entries = append(o.Entries, e)
		}

	case *training.KlassRecord:
		d.symbol() // key, consumed at instantiation
		d.symbol()
		o.Holder = d.class()
		o.HasInitTouch = d.bool()
		o.ClinitDone = d.bool()
		o.ClinitSeq = int(d.u32())
		for n := d.u32(); n > 0; n-- {
			fi := training.FieldInit{Name: d.symbol()}
			fi.Sequence = int(d.u32())
			o.FieldInits = append(o.FieldInits, fi)
		}
		for n := d.u32(); n > 0; n-- {
			if kr, ok := d.ref().(*training.KlassRecord); ok {
				o.InitDeps = append(o.InitDeps, kr)
			}
		}
		for n := d.u32(); n > 0; n-- {
			if cr, ok := d.ref().(*training.CompileRecord); ok {
				o.CompDeps = append(o.CompDeps, cr)
			}
		}

	case *training.MethodRecord:
		d.symbol() // key, consumed at instantiation
		d.symbol()
		d.symbol()
		d.symbol()
		o.Klass, _ = d.ref().(*training.KlassRecord)
		o.Compiles, _ = d.ref().(*training.CompileRecord)
		o.Level = int(d.u32())
		o.LevelMask = int(d.u32())
		o.WasInlined = d.bool()
		o.WasToplevel = d.bool()
		o.HighestTopLevel = int(d.u32())
		for i := range o.LastToplevel {
			o.LastToplevel[i], _ = d.ref().(*training.CompileRecord)
		}

	case *training.CompileRecord:
		o.Method, _ = d.ref().(*training.MethodRecord)
		o.TopMethod, _ = d.ref().(*training.MethodRecord)
		o.Next, _ = d.ref().(*training.CompileRecord)
		o.Level = int(d.u32())
		o.CompileID = int(d.u32())
		o.Queued = d.when()
		o.Started = d.when()
		o.Ended = d.when()
		o.CodeSize = int(d.u32())
		for n := d.u32(); n > 0; n-- {
			if kr, ok := d.ref().(*training.KlassRecord); ok {
				o.InitDeps = append(o.InitDeps, kr)
			}
		}

	case *ClassArray:
		for n := d.u32(); n > 0; n-- {
			o.Classes = append(o.Classes, d.class())
		}

	case *RecordArray:
		for n := d.u32(); n > 0; n-- {
			if r, ok := d.ref().(training.Record); ok {
				o.Records = append(o.Records, r)
			}
		}

	case *RootSet:
		o.Dictionary, _ = d.ref().(*ClassArray)
		o.Boot, _ = d.ref().(*ClassArray)
		o.Boot2, _ = d.ref().(*ClassArray)
		o.Platform, _ = d.ref().(*ClassArray)
		o.PlatformInitiated, _ = d.ref().(*ClassArray)
		o.App, _ = d.ref().(*ClassArray)
		o.AppInitiated, _ = d.ref().(*ClassArray)
		o.Training, _ = d.ref().(*RecordArray)
	}
}

package archive

import (
	"encoding/binary"
	"fmt"
	"reflect"
	"time"

	"github.com/mabhi256/jarc/internal/meta"
	"github.com/mabhi256/jarc/internal/training"
)

// Object kinds on the wire. Every archived object starts with an 8-byte
// header: kind, three reserved bytes, and the aligned total size, so a
// region can be walked linearly without understanding payloads.
const (
	objSymbol byte = iota + 1
	objClass
	objMethod
	objPool
	objKlassRecord
	objMethodRecord
	objCompileRecord
	objClassArray
	objRecordArray
	objRootSet
)

const objHeaderSize = 8

// ClassArray is a buffer-resident list of class references, used for the
// dictionary and the preload sequences.
type ClassArray struct {
	Classes []*meta.Class
}

func (a *ClassArray) VisitRefs(visit func(meta.Slot)) {
	for i := range a.Classes {
		visit(meta.RefTo(&a.Classes[i]))
	}
}

// RecordArray is a buffer-resident list of training records.
type RecordArray struct {
	Records []training.Record
}

func (a *RecordArray) VisitRefs(visit func(meta.Slot)) {
	for i := range a.Records {
		visit(meta.RefTo(&a.Records[i]))
	}
}

// RootSet is the single entry point into an archive: everything reachable
// from here is the archive's content.
type RootSet struct {
	Dictionary *ClassArray // every archived class

	Boot              *ClassArray // preload order, java.base only
	Boot2             *ClassArray // remaining boot classes
	Platform          *ClassArray
	PlatformInitiated *ClassArray
	App               *ClassArray
	AppInitiated      *ClassArray

	Training *RecordArray
}

func (r *RootSet) VisitRefs(visit func(meta.Slot)) {
	visit(meta.RefTo(&r.Dictionary))
	visit(meta.RefTo(&r.Boot))
	visit(meta.RefTo(&r.Boot2))
	visit(meta.RefTo(&r.Platform))
	visit(meta.RefTo(&r.PlatformInitiated))
	visit(meta.RefTo(&r.App))
	visit(meta.RefTo(&r.AppInitiated))
	visit(meta.RefTo(&r.Training))
}

// isNilRef reports whether target is nil, including a typed nil pointer
// boxed into the interface (a class with no superclass hands the encoder
// a nil *meta.Class, not a bare nil).
func isNilRef(target any) bool {
	if target == nil {
		return true
	}
	v := reflect.ValueOf(target)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

func describe(obj any) string {
	if isNilRef(obj) {
		return "<nil>"
	}
	switch o := obj.(type) {
	case *meta.Symbol:
		return fmt.Sprintf("symbol %q", o.String())
	case *meta.Class:
		return "class " + o.ExternalName()
	case *meta.Method:
		return fmt.Sprintf("method %s%s", o.Name, o.Signature)
	case *meta.ConstantPool:
		if o.Holder != nil {
			return "constant pool of " + o.Holder.ExternalName()
		}
		return "constant pool"
	case *training.KlassRecord:
		return "training record for class " + o.ClassName().String()
	case *training.MethodRecord:
		return fmt.Sprintf("training record for method %s.%s", o.Key().ClassName, o.Key().MethodName)
	case *training.CompileRecord:
		return fmt.Sprintf("compile record %d", o.CompileID)
	case *ClassArray:
		return fmt.Sprintf("class array of %d", len(o.Classes))
	case *RecordArray:
		return fmt.Sprintf("record array of %d", len(o.Records))
	case *RootSet:
		return "root set"
	default:
		return fmt.Sprintf("%T", obj)
	}
}

func objKindOf(obj any) (byte, error) {
	switch obj.(type) {
	case *meta.Symbol:
		return objSymbol, nil
	case *meta.Class:
		return objClass, nil
	case *meta.Method:
		return objMethod, nil
	case *meta.ConstantPool:
		return objPool, nil
	case *training.KlassRecord:
		return objKlassRecord, nil
	case *training.MethodRecord:
		return objMethodRecord, nil
	case *training.CompileRecord:
		return objCompileRecord, nil
	case *ClassArray:
		return objClassArray, nil
	case *RecordArray:
		return objRecordArray, nil
	case *RootSet:
		return objRootSet, nil
	default:
		return 0, fmt.Errorf("unarchivable object type %T", obj)
	}
}

// regionKindOf places an object: mutable metadata goes read-write,
// everything else read-only.
func regionKindOf(obj any) RegionKind {
	switch obj.(type) {
	case *meta.Class, *meta.ConstantPool,
		*training.KlassRecord, *training.MethodRecord, *training.CompileRecord:
		return RegionRW
	default:
		return RegionRO
	}
}

// encoder serializes one object's payload. With a nil buffer it only
// counts bytes, which is how object sizes are measured before placement;
// measuring and writing share the same code path so they cannot drift.
type encoder struct {
	buf     []byte
	off     int
	resolve func(any) (uint64, error) // nil while measuring
	err     error
}

func (e *encoder) u8(v byte) {
	if e.buf != nil {
		e.buf[e.off] = v
	}
	e.off++
}

func (e *encoder) bool(v bool) {
	if v {
		e.u8(1)
	} else {
		e.u8(0)
	}
}

func (e *encoder) u32(v uint32) {
	if e.buf != nil {
		binary.LittleEndian.PutUint32(e.buf[e.off:], v)
	}
	e.off += 4
}

func (e *encoder) u64(v uint64) {
	if e.buf != nil {
		binary.LittleEndian.PutUint64(e.buf[e.off:], v)
	}
	e.off += 8
}

func (e *encoder) i64(v int64) { e.u64(uint64(v)) }

func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	if e.buf != nil {
		copy(e.buf[e.off:], s)
	}
	e.off += len(s)
}

// ref writes the requested-space address of target, 0 for nil. Payload
// fields arrive as typed pointers, so typed nils count as nil here.
func (e *encoder) ref(target any) {
	if isNilRef(target) {
		e.u64(0)
		return
	}
	if e.resolve == nil {
		e.u64(0) // measuring
		return
	}
	addr, err := e.resolve(target)
	if err != nil && e.err == nil {
		e.err = err
	}
	e.u64(addr)
}

func (e *encoder) when(t time.Time) {
	if t.IsZero() {
		e.i64(0)
		return
	}
	e.i64(t.UnixNano())
}

// encodeObject writes header plus payload. size must come from a prior
// measuring pass over the same object.
func encodeObject(e *encoder, obj any, size uint64) error {
	kind, err := objKindOf(obj)
	if err != nil {
		return err
	}
	e.u8(kind)
	e.u8(0)
	e.u8(0)
	e.u8(0)
	e.u32(uint32(size))
	encodePayload(e, obj)
	return e.err
}

// sizeOfObject measures the encoded size, including header and alignment.
func sizeOfObject(obj any) (uint64, error) {
	if _, err := objKindOf(obj); err != nil {
		return 0, err
	}
	m := &encoder{}
	m.off = objHeaderSize
	encodePayload(m, obj)
	return alignUp(uint64(m.off)), nil
}

func encodePayload(e *encoder, obj any) {
	switch o := obj.(type) {
	case *meta.Symbol:
		e.str(o.String())

	case *meta.Method:
		e.ref(o.Name)
		e.ref(o.Signature)
		e.bool(o.Static)
		e.bool(o.Virtual)

	case *meta.Class:
		e.ref(o.Name)
		e.ref(o.LoaderName)
		e.ref(o.Super)
		e.ref(o.Pool)
		e.u8(byte(o.Loader))
		e.bool(o.Hidden)
		e.bool(o.Linked)
		e.bool(o.Initialized)
		e.bool(o.FromModulesImage)
		e.str(o.Module)
		e.u32(uint32(len(o.Interfaces)))
		for _, it := range o.Interfaces {
			e.ref(it)
		}
		e.u32(uint32(len(o.Methods)))
		for _, m := range o.Methods {
			e.ref(m)
		}
		e.u32(uint32(len(o.Fields)))
		for i := range o.Fields {
			e.ref(o.Fields[i].Name)
			e.ref(o.Fields[i].Descriptor)
			e.bool(o.Fields[i].Static)
		}
		e.u32(uint32(len(o.VTable)))
		for _, m := range o.VTable {
			e.ref(m)
		}
		// itable slots in declared interface order, one per interface
		// method. Only linked classes carry dispatch tables, and slot
		// counts depend only on the interfaces, so the measuring pass
		// agrees with the final encode even though the tables are
		// rebuilt in between.
		if o.Linked {
			for _, it := range o.Interfaces {
				slots := o.ITable[it]
				e.u32(uint32(len(it.Methods)))
				for i := range it.Methods {
					var m *meta.Method
					if i < len(slots) {
						m = slots[i]
					}
					e.ref(m)
				}
			}
		}

	case *meta.ConstantPool:
		e.ref(o.Holder)
		e.u32(uint32(len(o.Entries)))
		for i := range o.Entries {
			en := &o.Entries[i]
			e.u8(byte(en.Tag))
			e.bool(en.Resolved)
			e.ref(en.ClassName)
			e.ref(en.MemberName)
			e.ref(en.Descriptor)
			e.ref(en.Value)
			e.ref(en.ResolvedClass)
		}

	case *training.KlassRecord:
		k := o.Key()
		e.ref(k.ClassName)
		e.ref(k.LoaderName)
		e.ref(o.Holder)
		e.bool(o.HasInitTouch)
		e.bool(o.ClinitDone)
		e.u32(uint32(o.ClinitSeq))
		e.u32(uint32(len(o.FieldInits)))
		for i := range o.FieldInits {
			e.ref(o.FieldInits[i].Name)
			e.u32(uint32(o.FieldInits[i].Sequence))
		}
		e.u32(uint32(len(o.InitDeps)))
		for _, d := range o.InitDeps {
			e.ref(d)
		}
		e.u32(uint32(len(o.CompDeps)))
		for _, d := range o.CompDeps {
			e.ref(d)
		}

	case *training.MethodRecord:
		k := o.Key()
		e.ref(k.ClassName)
		e.ref(k.LoaderName)
		e.ref(k.MethodName)
		e.ref(k.Signature)
		e.ref(o.Klass)
		e.ref(o.Compiles)
		e.u32(uint32(o.Level))
		e.u32(uint32(o.LevelMask))
		e.bool(o.WasInlined)
		e.bool(o.WasToplevel)
		e.u32(uint32(o.HighestTopLevel))
		for _, cr := range o.LastToplevel {
			e.ref(cr)
		}

	case *training.CompileRecord:
		e.ref(o.Method)
		e.ref(o.TopMethod)
		e.ref(o.Next)
		e.u32(uint32(o.Level))
		e.u32(uint32(o.CompileID))
		e.when(o.Queued)
		e.when(o.Started)
		e.when(o.Ended)
		e.u32(uint32(o.CodeSize))
		e.u32(uint32(len(o.InitDeps)))
		for _, d := range o.InitDeps {
			e.ref(d)
		}

	case *ClassArray:
		e.u32(uint32(len(o.Classes)))
		for _, c := range o.Classes {
			e.ref(c)
		}

	case *RecordArray:
		e.u32(uint32(len(o.Records)))
		for _, r := range o.Records {
			e.ref(r)
		}

	case *RootSet:
		e.ref(o.Dictionary)
		e.ref(o.Boot)
		e.ref(o.Boot2)
		e.ref(o.Platform)
		e.ref(o.PlatformInitiated)
		e.ref(o.App)
		e.ref(o.AppInitiated)
		e.ref(o.Training)
	}
}

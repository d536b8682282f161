package training

import (
	"fmt"
	"io"
)

// Dumper writes the store as a sequence of self-closing tags, one per
// entity. Numeric ids are assigned on first mention so later tags can
// cross-reference earlier ones. The format is a human-diffable debug
// artifact, versioned implicitly by field presence.
type Dumper struct {
	w      io.Writer
	ids    map[any]int
	nextID int
	err    error
}

func NewDumper(w io.Writer) *Dumper {
	return &Dumper{
		w:   w,
		ids: make(map[any]int),
	}
}

// Dump serializes every record in the store. Emitting a record can
// materialize dependent records (a compile's init dep may name a class
// that has no record yet), so the worklist is reprocessed until no record
// is left unwritten.
func (d *Dumper) Dump(s *Store) error {
	written := make(map[Record]bool)
	for {
		records := s.SortedRecords()
		progress := false
		for _, r := range records {
			if written[r] {
				continue
			}
			written[r] = true
			progress = true
			switch rec := r.(type) {
			case *KlassRecord:
				d.dumpKlass(rec)
			case *MethodRecord:
				d.dumpMethod(rec)
			}
		}
		if !progress {
			break
		}
	}
	return d.err
}

func (d *Dumper) idOf(v any) (int, bool) {
	if id, ok := d.ids[v]; ok {
		return id, false
	}
	d.nextID++
	d.ids[v] = d.nextID
	return d.nextID, true
}

func (d *Dumper) printf(format string, args ...any) {
	if d.err != nil {
		return
	}
	_, d.err = fmt.Fprintf(d.w, format, args...)
}

func (d *Dumper) klassID(kr *KlassRecord) int {
	id, fresh := d.idOf(kr)
	if fresh {
		d.printf("<klass id='%d' name='%s' loader='%s'/>\n",
			id, kr.ClassName(), kr.LoaderName())
	}
	return id
}

func (d *Dumper) methodID(mr *MethodRecord) int {
	id, fresh := d.idOf(mr)
	if fresh {
		holder := d.klassID(mr.Klass)
		d.printf("<method id='%d' klass='%d' name='%s' signature='%s'/>\n",
			id, holder, mr.key.MethodName, mr.key.Signature)
	}
	return id
}

func (d *Dumper) dumpKlass(kr *KlassRecord) {
	id := d.klassID(kr)
	d.printf("<klass_detail id='%d' clinit_seq='%d' clinit_done='%d' init_touch='%d'/>\n",
		id, kr.ClinitSeq, boolBit(kr.ClinitDone), boolBit(kr.HasInitTouch))
	for _, fi := range kr.FieldInits {
		d.printf("<field_init klass='%d' name='%s' seq='%d'/>\n", id, fi.Name, fi.Sequence)
	}
	for _, dep := range kr.InitDeps {
		d.printf("<init_dep klass='%d' on='%d'/>\n", id, d.klassID(dep))
	}
}

func (d *Dumper) dumpMethod(mr *MethodRecord) {
	id := d.methodID(mr)
	d.printf("<method_detail id='%d' level='%d' level_mask='%d' only_inlined='%d' highest_top='%d'/>\n",
		id, mr.Level, mr.LevelMask, boolBit(mr.OnlyInlined()), mr.HighestTopLevel)
	for cr := mr.Compiles; cr != nil; cr = cr.Next {
		cid, fresh := d.idOf(cr)
		if !fresh {
			continue
		}
		d.printf("<compile id='%d' method='%d' level='%d' compile_id='%d' nm_size='%d' inlined='%d'/>\n",
			cid, id, cr.Level, cr.CompileID, cr.CodeSize, boolBit(cr.Inlined()))
		for _, dep := range cr.InitDeps {
			d.printf("<compile_init_dep compile='%d' klass='%d'/>\n", cid, d.klassID(dep))
		}
	}
}

func boolBit(b bool) int {
	if b {
		return 1
	}
	return 0
}

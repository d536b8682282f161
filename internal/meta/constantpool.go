package meta

// PoolTag discriminates the kinds of constant-pool entries the archive
// pipeline cares about. Everything else is TagOther and passes through
// untouched.
type PoolTag uint8

const (
	TagInvalid PoolTag = iota
	TagUnresolvedClass
	TagClass  // resolved class reference
	TagField  // field reference (class + name + descriptor)
	TagMethod // method reference (class + name + signature)
	TagString
	TagOther
)

func (t PoolTag) String() string {
	switch t {
	case TagUnresolvedClass:
		return "unresolved-class"
	case TagClass:
		return "class"
	case TagField:
		return "field"
	case TagMethod:
		return "method"
	case TagString:
		return "string"
	case TagOther:
		return "other"
	default:
		return "invalid"
	}
}

// PoolEntry is a tagged union. Which fields are meaningful depends on Tag:
//
//	TagUnresolvedClass: ClassName
//	TagClass:           ClassName, ResolvedClass (once resolved)
//	TagField/TagMethod: ClassName, MemberName, Descriptor, ResolvedClass
//	TagString:          Value, Resolved
type PoolEntry struct {
	Tag           PoolTag
	ClassName     *Symbol
	MemberName    *Symbol
	Descriptor    *Symbol
	Value         *Symbol
	ResolvedClass *Class
	Resolved      bool
}

// ConstantPool is owned by exactly one class (its pool holder).
// Entry 0 is unused, as in the class-file format.
type ConstantPool struct {
	Holder  *Class
	Entries []PoolEntry
}

// ResolveClass marks the entry at index as resolved to target. The target
// must already be defined in some loader; callers enforce that.
func (cp *ConstantPool) ResolveClass(index int, target *Class) {
	e := &cp.Entries[index]
	e.Tag = TagClass
	e.ResolvedClass = target
	e.Resolved = true
}

package meta

import "strings"

// Class is the handle for a loaded class. Archived copies are immutable
// snapshots; a class is identified by name + defining loader.
type Class struct {
	Name       *Symbol
	Loader     Loader
	LoaderName *Symbol // name-and-id of the defining loader, for training keys

	Super      *Class
	Interfaces []*Class

	Module           string // named module, or "" for the unnamed module
	FromModulesImage bool   // class bytes came from the platform module image

	Methods []*Method
	Fields  []Field
	Pool    *ConstantPool

	Hidden      bool // dynamically generated, unnamable; identity not stable across runs
	Linked      bool
	Initialized bool
	Shared      bool // already present in a mapped base archive

	// Dispatch tables, valid only while Linked. Re-derived after the
	// archive builder reorders methods.
	VTable []*Method
	ITable map[*Class][]*Method
}

type Field struct {
	Name       *Symbol
	Descriptor *Symbol
	Static     bool
}

// Method carries just enough of a method's identity for archiving:
// dispatch layout depends on method order, which the builder rewrites.
type Method struct {
	Name      *Symbol
	Signature *Symbol
	Static    bool
	Virtual   bool
}

// ExternalName converts the internal slash-separated name to the dotted
// form used in diagnostics.
func (c *Class) ExternalName() string {
	return strings.ReplaceAll(c.Name.String(), "/", ".")
}

// IsSubtypeOf reports whether c is t or a transitive subtype of t, through
// both the superclass chain and declared interfaces.
func (c *Class) IsSubtypeOf(t *Class) bool {
	if c == nil || t == nil {
		return false
	}
	seen := make(map[*Class]bool)
	stack := []*Class{c}
	for len(stack) > 0 {
		k := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if k == t {
			return true
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		if k.Super != nil {
			stack = append(stack, k.Super)
		}
		stack = append(stack, k.Interfaces...)
	}
	return false
}

// InJavaBase reports whether the class belongs to the java.base module.
func (c *Class) InJavaBase() bool {
	return c.Module == "java.base"
}

// FindField resolves a field by name and descriptor through the class and
// its supertypes, the way field resolution walks the hierarchy.
func (c *Class) FindField(name, descriptor *Symbol) (*Field, bool) {
	for k := c; k != nil; k = k.Super {
		for i := range k.Fields {
			f := &k.Fields[i]
			if f.Name == name && f.Descriptor == descriptor {
				return f, true
			}
		}
		for _, iface := range k.Interfaces {
			if f, ok := iface.FindField(name, descriptor); ok {
				return f, true
			}
		}
	}
	return nil, false
}

// BuildDispatchTables derives the vtable and itable from the current
// method order. Only meaningful for linked classes; unlinked classes defer
// dispatch layout to load time.
func (c *Class) BuildDispatchTables() {
	if !c.Linked {
		c.VTable = nil
		c.ITable = nil
		return
	}
	var vt []*Method
	if c.Super != nil && c.Super.Linked {
		vt = append(vt, c.Super.VTable...)
	}
	for _, m := range c.Methods {
		if m.Virtual {
			vt = append(vt, m)
		}
	}
	c.VTable = vt

	it := make(map[*Class][]*Method)
	for _, iface := range c.Interfaces {
		var slots []*Method
		for _, im := range iface.Methods {
			slots = append(slots, c.lookupVirtual(im.Name, im.Signature))
		}
		it[iface] = slots
	}
	c.ITable = it
}

func (c *Class) lookupVirtual(name, sig *Symbol) *Method {
	for k := c; k != nil; k = k.Super {
		for _, m := range k.Methods {
			if m.Virtual && m.Name == name && m.Signature == sig {
				return m
			}
		}
	}
	return nil
}

package meta

import "fmt"

// Symbol is an interned string. All symbols come from a Symtab, so pointer
// comparison is enough to prove equality.
type Symbol struct {
	value string
}

func (s *Symbol) String() string {
	if s == nil {
		return "<nil>"
	}
	return s.value
}

// Symtab interns symbols. A capacity ceiling stands in for the memory limit
// of the runtime symbol table: interning past it fails, and callers must
// propagate that failure rather than swallow it.
type Symtab struct {
	byValue map[string]*Symbol
	ordered []*Symbol
	maxSize int
}

// DefaultSymtabCapacity bounds a single run's symbol table.
const DefaultSymtabCapacity = 1 << 20

func NewSymtab() *Symtab {
	return NewSymtabWithCapacity(DefaultSymtabCapacity)
}

func NewSymtabWithCapacity(maxSize int) *Symtab {
	return &Symtab{
		byValue: make(map[string]*Symbol),
		maxSize: maxSize,
	}
}

// Intern returns the canonical symbol for value, creating it if needed.
func (st *Symtab) Intern(value string) (*Symbol, error) {
	if sym, ok := st.byValue[value]; ok {
		return sym, nil
	}
	if len(st.ordered) >= st.maxSize {
		return nil, fmt.Errorf("symbol table exhausted at %d entries interning %q", st.maxSize, value)
	}
	sym := &Symbol{value: value}
	st.byValue[value] = sym
	st.ordered = append(st.ordered, sym)
	return sym, nil
}

// Lookup returns the canonical symbol for value without creating it.
func (st *Symtab) Lookup(value string) (*Symbol, bool) {
	sym, ok := st.byValue[value]
	return sym, ok
}

// Symbols returns all interned symbols in creation order.
func (st *Symtab) Symbols() []*Symbol {
	return st.ordered
}

func (st *Symtab) Len() int {
	return len(st.ordered)
}

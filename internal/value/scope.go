package value

type binding struct {
	name string
	val  Value
}

// Table is an insertion-ordered name→value mapping with linear lookup.
type Table struct {
	entries []binding
}

func NewTable() *Table {
	return &Table{entries: make([]binding, 0, 32)}
}

// Lookup returns the value bound to name.
func (t *Table) Lookup(name string) (Value, bool) {
	for i := range t.entries {
		if t.entries[i].name == name {
			return t.entries[i].val, true
		}
	}
	return Value{}, false
}

// Set overwrites an existing binding in place or appends a new one.
func (t *Table) Set(name string, v Value) {
	for i := range t.entries {
		if t.entries[i].name == name {
			t.entries[i].val = v
			return
		}
	}
	t.entries = append(t.entries, binding{name: name, val: v})
}

func (t *Table) Len() int {
	return len(t.entries)
}

// Names lists bound names in insertion order.
func (t *Table) Names() []string {
	out := make([]string, len(t.entries))
	for i, b := range t.entries {
		out[i] = b.name
	}
	return out
}

// Stack is a sequence of tables searched most-recent first.
// The bottom table is the global scope.
type Stack struct {
	tables []*Table
}

func NewStack() *Stack {
	return &Stack{tables: []*Table{NewTable()}}
}

func (s *Stack) Global() *Table {
	return s.tables[0]
}

func (s *Stack) Push(t *Table) {
	s.tables = append(s.tables, t)
}

// Pop removes the most recent table. The global table is never removed.
func (s *Stack) Pop() {
	if len(s.tables) > 1 {
		s.tables = s.tables[:len(s.tables)-1]
	}
}

func (s *Stack) Depth() int {
	return len(s.tables)
}

func (s *Stack) Lookup(name string) (Value, bool) {
	for i := len(s.tables) - 1; i >= 0; i-- {
		if v, ok := s.tables[i].Lookup(name); ok {
			return v, true
		}
	}
	return Value{}, false
}

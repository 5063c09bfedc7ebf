package value

import (
	"github.com/xirelogy/go-scm/internal/numeric"
)

type Kind int

const (
	KindNil Kind = iota
	KindInteger
	KindFloat
	KindBool
	KindChar
	KindString
	KindSymbol
	KindPair
	KindProcedure
)

// Value is the tagged union every expression evaluates to.
// Values are immutable once constructed; pairs own their children.
type Value struct {
	Kind Kind
	Num  numeric.Number
	B    bool
	Ch   rune
	// Str holds string contents and symbol names.
	Str  string
	Pair *Pair
	Proc *Procedure
}

// Pair is a cons cell.
type Pair struct {
	First Value
	Rest  Value
}

func Nil() Value { return Value{Kind: KindNil} }

func Int(i int64) Value {
	return Value{Kind: KindInteger, Num: numeric.Int(i)}
}

func Float(f float64) Value {
	return Value{Kind: KindFloat, Num: numeric.Float(f)}
}

// Number wraps n with the kind matching its exactness.
func Number(n numeric.Number) Value {
	if n.IsExact() {
		return Value{Kind: KindInteger, Num: n}
	}
	return Value{Kind: KindFloat, Num: n}
}

func Bool(b bool) Value {
	return Value{Kind: KindBool, B: b}
}

func Char(c rune) Value {
	return Value{Kind: KindChar, Ch: c}
}

func String(s string) Value {
	return Value{Kind: KindString, Str: s}
}

// Symbol is reserved: nothing in the reader produces one.
func Symbol(name string) Value {
	return Value{Kind: KindSymbol, Str: name}
}

func Cons(first, rest Value) Value {
	return Value{Kind: KindPair, Pair: &Pair{First: first, Rest: rest}}
}

// List builds a proper list from items.
func List(items ...Value) Value {
	out := Nil()
	for i := len(items) - 1; i >= 0; i-- {
		out = Cons(items[i], out)
	}
	return out
}

func IsNumber(v Value) bool {
	return v.Kind == KindInteger || v.Kind == KindFloat
}

// Truthy reports whether v counts as true in a conditional. Only #f is false.
func Truthy(v Value) bool {
	if v.Kind == KindBool {
		return v.B
	}
	return true
}

// Equal compares atoms and pairs structurally and procedures by identity.
func Equal(a, b Value) bool {
	if IsNumber(a) && IsNumber(b) {
		return a.Kind == b.Kind && a.Num.Equal(b.Num)
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNil:
		return true
	case KindBool:
		return a.B == b.B
	case KindChar:
		return a.Ch == b.Ch
	case KindString, KindSymbol:
		return a.Str == b.Str
	case KindPair:
		return Equal(a.Pair.First, b.Pair.First) && Equal(a.Pair.Rest, b.Pair.Rest)
	case KindProcedure:
		return a.Proc == b.Proc
	default:
		return false
	}
}

// TypeName reports the dynamic type name for diagnostics.
func TypeName(v Value) string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBool:
		return "boolean"
	case KindChar:
		return "char"
	case KindString:
		return "string"
	case KindSymbol:
		return "symbol"
	case KindPair:
		return "pair"
	case KindProcedure:
		return "procedure"
	default:
		return "unknown"
	}
}

// IsList reports whether v is a proper list.
func IsList(v Value) bool {
	_, ok := ListLength(v)
	return ok
}

// ListLength counts the elements of a proper list.
func ListLength(v Value) (int, bool) {
	n := 0
	for cur := v; ; cur = cur.Pair.Rest {
		switch cur.Kind {
		case KindNil:
			return n, true
		case KindPair:
			n++
		default:
			return 0, false
		}
	}
}

// ListToSlice flattens a proper list.
func ListToSlice(v Value) ([]Value, bool) {
	n, ok := ListLength(v)
	if !ok {
		return nil, false
	}
	out := make([]Value, 0, n)
	for cur := v; cur.Kind == KindPair; cur = cur.Pair.Rest {
		out = append(out, cur.Pair.First)
	}
	return out, true
}

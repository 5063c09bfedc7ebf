package numeric

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Level identifies a rung of the numeric tower.
type Level int

const (
	Exact Level = iota
	Inexact
)

// Number is an exact integer or an inexact float.
// Mixed operations promote exact operands to inexact, never the reverse.
type Number struct {
	level Level
	i     int64
	f     float64
}

func Int(i int64) Number {
	return Number{level: Exact, i: i}
}

func Float(f float64) Number {
	return Number{level: Inexact, f: f}
}

// Parse reads an optionally negative digit run (exact) or digits.digits (inexact).
func Parse(text string) (Number, error) {
	body := strings.TrimPrefix(text, "-")
	if body == "" {
		return Number{}, fmt.Errorf("invalid number %q", text)
	}
	dot := strings.IndexByte(body, '.')
	if dot < 0 {
		if !allDigits(body) {
			return Number{}, fmt.Errorf("invalid number %q", text)
		}
		i, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Number{}, fmt.Errorf("integer %q out of range", text)
		}
		return Int(i), nil
	}
	if !allDigits(body[:dot]) || !allDigits(body[dot+1:]) || dot == 0 || dot == len(body)-1 {
		return Number{}, fmt.Errorf("invalid number %q", text)
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return Number{}, fmt.Errorf("invalid number %q", text)
	}
	return Float(f), nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func (n Number) Level() Level { return n.level }

func (n Number) IsExact() bool { return n.level == Exact }

// Int64 truncates inexact values toward zero.
func (n Number) Int64() int64 {
	if n.level == Exact {
		return n.i
	}
	return int64(n.f)
}

func (n Number) Float64() float64 {
	if n.level == Exact {
		return float64(n.i)
	}
	return n.f
}

func (n Number) toInexact() Number {
	if n.level == Inexact {
		return n
	}
	return Float(float64(n.i))
}

// common brings both operands to the higher of their two levels.
func common(a, b Number) (Number, Number) {
	if a.level == Inexact || b.level == Inexact {
		return a.toInexact(), b.toInexact()
	}
	return a, b
}

func (n Number) Add(o Number) Number {
	a, b := common(n, o)
	if a.level == Exact {
		return Int(a.i + b.i)
	}
	return Float(a.f + b.f)
}

func (n Number) Sub(o Number) Number {
	a, b := common(n, o)
	if a.level == Exact {
		return Int(a.i - b.i)
	}
	return Float(a.f - b.f)
}

func (n Number) Mul(o Number) Number {
	a, b := common(n, o)
	if a.level == Exact {
		return Int(a.i * b.i)
	}
	return Float(a.f * b.f)
}

// Div always yields an inexact result.
func (n Number) Div(o Number) Number {
	return Float(n.Float64() / o.Float64())
}

func (n Number) Neg() Number {
	if n.level == Exact {
		return Int(-n.i)
	}
	return Float(-n.f)
}

func (n Number) Abs() Number {
	if n.level == Exact {
		if n.i < 0 {
			return Int(-n.i)
		}
		return n
	}
	return Float(math.Abs(n.f))
}

func (n Number) Equal(o Number) bool {
	a, b := common(n, o)
	if a.level == Exact {
		return a.i == b.i
	}
	return a.f == b.f
}

func (n Number) Less(o Number) bool {
	a, b := common(n, o)
	if a.level == Exact {
		return a.i < b.i
	}
	return a.f < b.f
}

// String renders exact values as plain integers and inexact values with a decimal point.
func (n Number) String() string {
	if n.level == Exact {
		return strconv.FormatInt(n.i, 10)
	}
	s := strconv.FormatFloat(n.f, 'g', -1, 64)
	if strings.ContainsAny(s, ".eIN") {
		return s
	}
	return s + ".0"
}

package arith

import (
	"github.com/xirelogy/go-scm/internal/numeric"
	"github.com/xirelogy/go-scm/internal/runtime"
	"github.com/xirelogy/go-scm/internal/value"
)

func init() {
	runtime.Register(runtime.Spec{Name: "+", Handler: runAdd})
	runtime.Register(runtime.Spec{Name: "-", Handler: runSub})
	runtime.Register(runtime.Spec{Name: "*", Handler: runMul})
	runtime.Register(runtime.Spec{Name: "/", Handler: runDiv})
	runtime.Register(runtime.Spec{Name: "abs", Handler: runAbs})
}

func fold(name string, args []value.Value, acc numeric.Number, op func(a, b numeric.Number) numeric.Number) (value.Value, error) {
	for i := range args {
		n, err := runtime.ExpectNumber(name, args, i)
		if err != nil {
			return value.Nil(), err
		}
		acc = op(acc, n)
	}
	return value.Number(acc), nil
}

func runAdd(_ value.Context, args []value.Value) (value.Value, error) {
	return fold("+", args, numeric.Int(0), numeric.Number.Add)
}

func runMul(_ value.Context, args []value.Value) (value.Value, error) {
	return fold("*", args, numeric.Int(1), numeric.Number.Mul)
}

// runSub negates a single argument and subtracts the rest from the first otherwise.
func runSub(_ value.Context, args []value.Value) (value.Value, error) {
	if err := runtime.ExpectMinArgs("-", args, 1); err != nil {
		return value.Nil(), err
	}
	first, err := runtime.ExpectNumber("-", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	if len(args) == 1 {
		return value.Number(first.Neg()), nil
	}
	return fold("-", args[1:], first, numeric.Number.Sub)
}

// runDiv always yields an inexact result; a single argument is inverted.
func runDiv(_ value.Context, args []value.Value) (value.Value, error) {
	if err := runtime.ExpectMinArgs("/", args, 1); err != nil {
		return value.Nil(), err
	}
	first, err := runtime.ExpectNumber("/", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	if len(args) == 1 {
		return value.Number(numeric.Int(1).Div(first)), nil
	}
	return fold("/", args[1:], first, numeric.Number.Div)
}

func runAbs(_ value.Context, args []value.Value) (value.Value, error) {
	if err := runtime.ExpectArgs("abs", args, 1); err != nil {
		return value.Nil(), err
	}
	n, err := runtime.ExpectNumber("abs", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	return value.Number(n.Abs()), nil
}

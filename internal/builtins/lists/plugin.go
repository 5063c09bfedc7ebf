package lists

import (
	"github.com/xirelogy/go-scm/internal/runtime"
	"github.com/xirelogy/go-scm/internal/value"
)

func init() {
	runtime.Register(runtime.Spec{Name: "cons", Handler: runCons})
	runtime.Register(runtime.Spec{Name: "car", Handler: runCar})
	runtime.Register(runtime.Spec{Name: "cdr", Handler: runCdr})
	runtime.Register(runtime.Spec{Name: "list", Handler: runList})
	runtime.Register(runtime.Spec{Name: "length", Handler: runLength})
}

func runCons(_ value.Context, args []value.Value) (value.Value, error) {
	if err := runtime.ExpectArgs("cons", args, 2); err != nil {
		return value.Nil(), err
	}
	return value.Cons(args[0], args[1]), nil
}

func runCar(_ value.Context, args []value.Value) (value.Value, error) {
	if err := runtime.ExpectArgs("car", args, 1); err != nil {
		return value.Nil(), err
	}
	p, err := runtime.ExpectPair("car", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	return p.First, nil
}

func runCdr(_ value.Context, args []value.Value) (value.Value, error) {
	if err := runtime.ExpectArgs("cdr", args, 1); err != nil {
		return value.Nil(), err
	}
	p, err := runtime.ExpectPair("cdr", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	return p.Rest, nil
}

func runList(_ value.Context, args []value.Value) (value.Value, error) {
	return value.List(args...), nil
}

func runLength(_ value.Context, args []value.Value) (value.Value, error) {
	if err := runtime.ExpectArgs("length", args, 1); err != nil {
		return value.Nil(), err
	}
	items, err := runtime.ExpectList("length", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	return value.Int(int64(len(items))), nil
}

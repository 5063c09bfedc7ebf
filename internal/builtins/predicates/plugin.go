package predicates

import (
	"github.com/xirelogy/go-scm/internal/runtime"
	"github.com/xirelogy/go-scm/internal/value"
)

func init() {
	register("atom?", func(v value.Value) bool {
		return v.Kind != value.KindPair && v.Kind != value.KindProcedure
	})
	register("bool?", kindIs(value.KindBool))
	register("integer?", kindIs(value.KindInteger))
	register("number?", value.IsNumber)
	register("null?", kindIs(value.KindNil))
	register("pair?", kindIs(value.KindPair))
	register("list?", value.IsList)
	register("procedure?", kindIs(value.KindProcedure))
	register("string?", kindIs(value.KindString))
	register("symbol?", kindIs(value.KindSymbol))
	register("char?", kindIs(value.KindChar))
	register("not", func(v value.Value) bool { return !value.Truthy(v) })
}

func kindIs(k value.Kind) func(value.Value) bool {
	return func(v value.Value) bool { return v.Kind == k }
}

// register installs a one-argument predicate.
func register(name string, pred func(value.Value) bool) {
	runtime.Register(runtime.Spec{
		Name: name,
		Handler: func(_ value.Context, args []value.Value) (value.Value, error) {
			if err := runtime.ExpectArgs(name, args, 1); err != nil {
				return value.Nil(), err
			}
			return value.Bool(pred(args[0])), nil
		},
	})
}

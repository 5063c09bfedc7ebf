package compare

import (
	"github.com/xirelogy/go-scm/internal/numeric"
	"github.com/xirelogy/go-scm/internal/runtime"
	"github.com/xirelogy/go-scm/internal/value"
)

func init() {
	register("=", func(a, b numeric.Number) bool { return a.Equal(b) })
	register("<", func(a, b numeric.Number) bool { return a.Less(b) })
	register(">", func(a, b numeric.Number) bool { return b.Less(a) })
	register("<=", func(a, b numeric.Number) bool { return a.Less(b) || a.Equal(b) })
	register(">=", func(a, b numeric.Number) bool { return b.Less(a) || a.Equal(b) })
}

// register installs a two-argument numeric comparison.
func register(name string, cmp func(a, b numeric.Number) bool) {
	runtime.Register(runtime.Spec{
		Name: name,
		Handler: func(_ value.Context, args []value.Value) (value.Value, error) {
			if err := runtime.ExpectArgs(name, args, 2); err != nil {
				return value.Nil(), err
			}
			a, err := runtime.ExpectNumber(name, args, 0)
			if err != nil {
				return value.Nil(), err
			}
			b, err := runtime.ExpectNumber(name, args, 1)
			if err != nil {
				return value.Nil(), err
			}
			return value.Bool(cmp(a, b)), nil
		},
	})
}

package system

import (
	"fmt"
	"io"
	"strings"

	"github.com/xirelogy/go-scm/internal/runtime"
	"github.com/xirelogy/go-scm/internal/value"
	"github.com/xirelogy/go-scm/internal/vm"
)

func init() {
	runtime.Register(runtime.Spec{Name: "apply", Handler: runApply})
	runtime.Register(runtime.Spec{Name: "display", Handler: runDisplay})
	runtime.Register(runtime.Spec{Name: "newline", Handler: runNewline})
	runtime.Register(runtime.Spec{Name: "error", Handler: runError})
}

// runApply calls a procedure with the elements of a proper list.
func runApply(ctx value.Context, args []value.Value) (value.Value, error) {
	if err := runtime.ExpectArgs("apply", args, 2); err != nil {
		return value.Nil(), err
	}
	proc := args[0]
	if proc.Kind != value.KindProcedure || proc.Proc == nil {
		return value.Nil(), fmt.Errorf("apply: %s is not a procedure: %w", value.TypeName(proc), vm.ErrNotCallable)
	}
	items, err := runtime.ExpectList("apply", args, 1)
	if err != nil {
		return value.Nil(), err
	}
	return ctx.Execute(proc.Proc, items)
}

func runDisplay(ctx value.Context, args []value.Value) (value.Value, error) {
	if err := runtime.ExpectArgs("display", args, 1); err != nil {
		return value.Nil(), err
	}
	if _, err := io.WriteString(ctx.Output(), value.Display(args[0])); err != nil {
		return value.Nil(), err
	}
	return value.Nil(), nil
}

func runNewline(ctx value.Context, args []value.Value) (value.Value, error) {
	if err := runtime.ExpectArgs("newline", args, 0); err != nil {
		return value.Nil(), err
	}
	if _, err := io.WriteString(ctx.Output(), "\n"); err != nil {
		return value.Nil(), err
	}
	return value.Nil(), nil
}

// runError aborts the current form with its displayed arguments as message.
func runError(ctx value.Context, args []value.Value) (value.Value, error) {
	if err := runtime.ExpectMinArgs("error", args, 1); err != nil {
		return value.Nil(), err
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = value.Display(a)
	}
	return value.Nil(), vm.RuntimeErrorf(ctx, "%s", strings.Join(parts, " "))
}

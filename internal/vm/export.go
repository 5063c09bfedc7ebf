package vm

import (
	"fmt"

	"github.com/xirelogy/go-scm/internal/value"
)

// RuntimeErrorf produces a Go error with formatted message, capturing source
// context when ctx is a VM. A %w verb attaches a cause.
func RuntimeErrorf(ctx value.Context, format string, args ...interface{}) error {
	err := fmt.Errorf(format, args...)
	rt, ok := ctx.(*VM)
	if !ok || rt == nil {
		return err
	}
	return rt.newRuntimeError(rt.currentFrame(), err.Error(), err)
}

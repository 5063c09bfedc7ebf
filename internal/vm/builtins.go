package vm

import "github.com/xirelogy/go-scm/internal/value"

// callBuiltin runs a native handler. Failures are reported against the
// calling frame.
func (vm *VM) callBuiltin(proc *value.Procedure, args []value.Value) (value.Value, error) {
	res, err := proc.Builtin(vm, args)
	if err != nil {
		return vm.wrapError(vm.currentFrame(), err)
	}
	return res, nil
}

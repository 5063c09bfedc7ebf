package vm

import (
	"fmt"
	"io"

	"github.com/xirelogy/go-scm/internal/bytecode"
	"github.com/xirelogy/go-scm/internal/value"
)

// Disassemble emits assembly-style output for custom procedures bound in the
// global scope, in definition order.
func (vm *VM) Disassemble(w io.Writer) error {
	if vm == nil {
		return fmt.Errorf("nil VM")
	}
	if w == nil {
		return fmt.Errorf("nil writer")
	}
	dis := bytecode.NewDisassembler(w)
	for _, name := range vm.Globals() {
		v, _ := vm.Global(name)
		if v.Kind != value.KindProcedure || v.Proc == nil || v.Proc.IsBuiltin() {
			continue
		}
		if err := dis.DisassembleProcedure(name, v.Proc); err != nil {
			return err
		}
	}
	return nil
}

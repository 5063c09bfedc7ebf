package value

import "io"

// Context is the engine surface handed to builtins.
type Context interface {
	// Execute invokes a procedure with positional arguments.
	Execute(proc *Procedure, args []Value) (Value, error)
	// Output is where printing builtins write.
	Output() io.Writer
}

// BuiltinFunc is the native calling convention. Builtins validate their own
// argument count and kinds.
type BuiltinFunc func(ctx Context, args []Value) (Value, error)

// Procedure is either a builtin or a custom procedure owning its body.
type Procedure struct {
	Name    string
	Builtin BuiltinFunc
	Params  []string
	Body    []Instruction
}

func (p *Procedure) IsBuiltin() bool {
	return p != nil && p.Builtin != nil
}

func Builtin(name string, fn BuiltinFunc) Value {
	return Value{Kind: KindProcedure, Proc: &Procedure{Name: name, Builtin: fn}}
}

func Closure(name string, params []string, body []Instruction) Value {
	return Value{Kind: KindProcedure, Proc: &Procedure{Name: name, Params: params, Body: body}}
}

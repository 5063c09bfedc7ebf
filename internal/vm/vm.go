package vm

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/xirelogy/go-scm/internal/value"
)

var (
	ErrUnbound          = errors.New("unbound variable")
	ErrNotCallable      = errors.New("not callable")
	ErrArity            = errors.New("wrong number of arguments")
	ErrType             = errors.New("wrong argument type")
	ErrStack            = errors.New("operand stack invariant violated")
	ErrBranch           = errors.New("instruction offset out of range")
	ErrDepth            = errors.New("maximum call depth exceeded")
	ErrInstructionLimit = errors.New("instruction limit exceeded")
)

type frame struct {
	proc *value.Procedure
	args []value.Value
	ip   int
	base int
}

// VM walks instruction vectors from the last element to the first against a
// single global scope.
type VM struct {
	scopes    *value.Stack
	stack     []value.Value
	frames    []*frame
	out       io.Writer
	source    string
	maxDepth  int
	traceHook TraceHook
	instLimit int
	instCount int
	// host is the embedding wrapper; Duplicate does not copy it.
	host any
}

const defaultMaxDepth = 10000

// New constructs a VM with an empty global scope writing to stdout.
func New() *VM {
	return &VM{
		scopes:   value.NewStack(),
		stack:    make([]value.Value, 0, 64),
		frames:   make([]*frame, 0, 16),
		out:      os.Stdout,
		maxDepth: defaultMaxDepth,
	}
}

// SetTraceHook registers a callback for instruction-level tracing.
func (vm *VM) SetTraceHook(h TraceHook) {
	vm.traceHook = h
}

// SetInstructionLimit caps the number of instructions executed per Run (0 for unlimited).
func (vm *VM) SetInstructionLimit(limit int) {
	if limit < 0 {
		limit = 0
	}
	vm.instLimit = limit
}

// SetMaxDepth caps nested custom procedure calls. Non-positive restores the default.
func (vm *VM) SetMaxDepth(depth int) {
	if depth <= 0 {
		depth = defaultMaxDepth
	}
	vm.maxDepth = depth
}

// SetHost records the embedding object that owns this VM.
func (vm *VM) SetHost(h any) {
	vm.host = h
}

// Host returns the object set by SetHost.
func (vm *VM) Host() any {
	return vm.host
}

// SetOutput redirects printing builtins.
func (vm *VM) SetOutput(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	vm.out = w
}

// Output is where printing builtins write.
func (vm *VM) Output() io.Writer {
	return vm.out
}

// SetSourceName labels diagnostics with the name of the code being run.
func (vm *VM) SetSourceName(name string) {
	vm.source = name
}

// ResetState clears transient execution state (stack, frames, counters).
func (vm *VM) ResetState() {
	vm.stack = vm.stack[:0]
	vm.frames = vm.frames[:0]
	vm.instCount = 0
}

// DefineGlobal binds a value into the global scope.
func (vm *VM) DefineGlobal(name string, v value.Value) {
	vm.scopes.Global().Set(name, v)
}

// Global reads a binding from the global scope.
func (vm *VM) Global(name string) (value.Value, bool) {
	return vm.scopes.Global().Lookup(name)
}

// Globals lists global names in definition order.
func (vm *VM) Globals() []string {
	return vm.scopes.Global().Names()
}

// HasProcedure reports whether name is bound to a procedure.
func (vm *VM) HasProcedure(name string) bool {
	v, ok := vm.Global(name)
	return ok && v.Kind == value.KindProcedure
}

// Call invokes a global procedure by name.
func (vm *VM) Call(name string, args []value.Value) (value.Value, error) {
	v, ok := vm.Global(name)
	if !ok {
		return value.Nil(), vm.newRuntimeError(nil, fmt.Sprintf("global %s not found", name), ErrUnbound)
	}
	if v.Kind != value.KindProcedure || v.Proc == nil {
		return value.Nil(), vm.newRuntimeError(nil, fmt.Sprintf("global %s is %s", name, value.TypeName(v)), ErrNotCallable)
	}
	return vm.Run(v.Proc, args)
}

// Run executes proc with arguments on a fresh stack.
func (vm *VM) Run(proc *value.Procedure, args []value.Value) (value.Value, error) {
	vm.ResetState()
	return vm.Execute(proc, args)
}

// Execute invokes a procedure: builtins are called directly, custom
// procedures get a new frame.
func (vm *VM) Execute(proc *value.Procedure, args []value.Value) (value.Value, error) {
	if proc == nil {
		return value.Nil(), vm.newRuntimeError(vm.currentFrame(), "invalid procedure", ErrNotCallable)
	}
	if proc.IsBuiltin() {
		return vm.callBuiltin(proc, args)
	}
	if len(args) != len(proc.Params) {
		return value.Nil(), vm.newRuntimeError(vm.currentFrame(),
			fmt.Sprintf("%s expects %d arguments, got %d", procName(proc), len(proc.Params), len(args)), ErrArity)
	}
	if len(vm.frames) >= vm.maxDepth {
		return value.Nil(), vm.newRuntimeError(vm.currentFrame(),
			fmt.Sprintf("call depth %d exceeded", vm.maxDepth), ErrDepth)
	}

	fr := &frame{proc: proc, args: args, ip: len(proc.Body), base: len(vm.stack)}
	vm.frames = append(vm.frames, fr)
	res, err := vm.run(fr)
	vm.stack = vm.stack[:fr.base]
	vm.frames = vm.frames[:len(vm.frames)-1]
	return res, err
}

func (vm *VM) run(fr *frame) (value.Value, error) {
	body := fr.proc.Body
	for fr.ip = len(body) - 1; fr.ip >= 0; fr.ip-- {
		in := body[fr.ip]
		vm.instCount++
		if vm.instLimit > 0 && vm.instCount > vm.instLimit {
			return vm.errorf(fr, ErrInstructionLimit, "instruction limit %d exceeded", vm.instLimit)
		}
		vm.trace(fr, in)

		switch in.Op {
		case value.OpPushValue:
			vm.push(in.Value)
		case value.OpPushVariable:
			v, ok := vm.resolve(fr, in.Name)
			if !ok {
				return vm.errorf(fr, ErrUnbound, "unbound variable %s", in.Name)
			}
			vm.push(v)
		case value.OpCall:
			if vm.height(fr) < in.Argc {
				return vm.errorf(fr, ErrStack, "stack underflow on call %s: argc=%d stack=%d", in.Name, in.Argc, vm.height(fr))
			}
			args := make([]value.Value, in.Argc)
			for i := range args {
				args[i] = vm.pop()
			}
			callee, ok := vm.resolve(fr, in.Name)
			if !ok {
				if !in.Captured {
					return vm.errorf(fr, ErrUnbound, "unbound procedure %s", in.Name)
				}
				callee = in.Value
			}
			if callee.Kind != value.KindProcedure || callee.Proc == nil {
				return vm.errorf(fr, ErrNotCallable, "%s is %s, not a procedure", in.Name, value.TypeName(callee))
			}
			res, err := vm.Execute(callee.Proc, args)
			if err != nil {
				return vm.wrapError(fr, err)
			}
			vm.push(res)
		case value.OpMakeClosure:
			n := in.Skip
			if n < 0 || n > fr.ip {
				return vm.errorf(fr, ErrBranch, "closure body length %d out of range at %d", n, fr.ip)
			}
			region := vm.capture(fr, body[fr.ip-n:fr.ip], in.Params)
			params := append([]string(nil), in.Params...)
			vm.push(value.Closure(in.Name, params, region))
			fr.ip -= n
		case value.OpBranchIfFalse:
			if vm.height(fr) < 1 {
				return vm.errorf(fr, ErrStack, "stack underflow on branch")
			}
			if in.Skip < 0 || in.Skip > fr.ip {
				return vm.errorf(fr, ErrBranch, "branch skip %d out of range at %d", in.Skip, fr.ip)
			}
			if !value.Truthy(vm.pop()) {
				fr.ip -= in.Skip
			}
		case value.OpBranchAfterTrue:
			if in.Skip < 0 || in.Skip > fr.ip {
				return vm.errorf(fr, ErrBranch, "branch skip %d out of range at %d", in.Skip, fr.ip)
			}
			fr.ip -= in.Skip
		case value.OpAssign:
			if vm.height(fr) < 1 {
				return vm.errorf(fr, ErrStack, "stack underflow on assign %s", in.Name)
			}
			vm.scopes.Global().Set(in.Name, vm.pop())
			vm.push(value.Nil())
		default:
			return vm.errorf(fr, ErrStack, "unknown instruction %s", in.Op)
		}
	}

	if h := vm.height(fr); h != 1 {
		fr.ip = 0
		return vm.errorf(fr, ErrStack, "expected exactly one value after %s, found %d", procName(fr.proc), h)
	}
	return vm.pop(), nil
}

// resolve looks name up in the frame's arguments, then the scope stack.
func (vm *VM) resolve(fr *frame, name string) (value.Value, bool) {
	if fr != nil {
		for i, p := range fr.proc.Params {
			if p == name && i < len(fr.args) {
				return fr.args[i], true
			}
		}
	}
	return vm.scopes.Lookup(name)
}

func (vm *VM) currentFrame() *frame {
	if len(vm.frames) == 0 {
		return nil
	}
	return vm.frames[len(vm.frames)-1]
}

func (vm *VM) height(fr *frame) int {
	return len(vm.stack) - fr.base
}

func (vm *VM) push(v value.Value) {
	vm.stack = append(vm.stack, v)
}

func (vm *VM) pop() value.Value {
	if len(vm.stack) == 0 {
		return value.Nil()
	}
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v
}

func procName(p *value.Procedure) string {
	if p == nil || p.Name == "" {
		return "anonymous procedure"
	}
	return p.Name
}

package scm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	_ "github.com/xirelogy/go-scm/internal/builtins"
	"github.com/xirelogy/go-scm/internal/compiler"
	"github.com/xirelogy/go-scm/internal/runtime"
	"github.com/xirelogy/go-scm/internal/value"
	"github.com/xirelogy/go-scm/internal/vm"
)

var (
	errorType = reflect.TypeOf((*error)(nil)).Elem()
)

// Execution failure causes, usable with errors.Is on a RuntimeError.
var (
	ErrUnbound          = vm.ErrUnbound
	ErrNotCallable      = vm.ErrNotCallable
	ErrArity            = vm.ErrArity
	ErrType             = vm.ErrType
	ErrStack            = vm.ErrStack
	ErrBranch           = vm.ErrBranch
	ErrDepth            = vm.ErrDepth
	ErrInstructionLimit = vm.ErrInstructionLimit
)

// Value is a marshaled scheme value.
// It wraps the internal value.Value representation.
type Value struct {
	v     value.Value
	owner *VM
	call  *hostCall
}

// hostCall is a host function invocation in progress. Procedure handles taken
// from its arguments re-enter the running VM while it is active.
type hostCall struct {
	rt     value.Context
	active atomic.Bool
}

func (v Value) derive(raw value.Value) Value {
	return Value{v: raw, owner: v.owner, call: v.call}
}

// ArgError represents a typed argument validation error for host functions.
type ArgError struct {
	Name string
	Want string
	Got  string
}

func (e ArgError) Error() string {
	switch {
	case e.Name != "" && e.Want != "" && e.Got != "":
		return fmt.Sprintf("argument %q: want %s, got %s", e.Name, e.Want, e.Got)
	case e.Name != "" && e.Want != "":
		return fmt.Sprintf("argument %q: want %s", e.Name, e.Want)
	case e.Want != "" && e.Got != "":
		return fmt.Sprintf("want %s, got %s", e.Want, e.Got)
	default:
		return "argument error"
	}
}

// Marshaler allows custom control over Go→scheme conversion.
type Marshaler interface {
	MarshalScm() (Value, error)
}

// Unmarshaler allows custom control over scheme→Go conversion in Unmarshal.
type Unmarshaler interface {
	UnmarshalScm(Value) error
}

// ValueKind mirrors the runtime kinds for convenient inspection.
type ValueKind int

const (
	ValueNil ValueKind = iota
	ValueInteger
	ValueFloat
	ValueBool
	ValueChar
	ValueString
	ValueSymbol
	ValuePair
	ValueProcedure
)

// SyntaxError is a compile-time failure with source position.
type SyntaxError = compiler.SyntaxError

// IsIncomplete reports whether err is a syntax error caused by the input
// ending inside a form. More input may complete it.
func IsIncomplete(err error) bool {
	return compiler.IsIncomplete(err)
}

// FrameTrace describes a single frame in a runtime error or trace.
type FrameTrace struct {
	Procedure string
	Source    string
	Line      int
	IP        int
}

// RuntimeError is a source-aware execution error surfaced from the VM.
type RuntimeError struct {
	Message string
	Frame   FrameTrace
	Stack   []FrameTrace
	Cause   error
}

func (e *RuntimeError) Error() string {
	parts := []string{}
	if e.Frame.Source != "" {
		if e.Frame.Line > 0 {
			parts = append(parts, fmt.Sprintf("%s:%d", e.Frame.Source, e.Frame.Line))
		} else {
			parts = append(parts, e.Frame.Source)
		}
	} else if e.Frame.Line > 0 {
		parts = append(parts, fmt.Sprintf("line %d", e.Frame.Line))
	}
	if e.Frame.Procedure != "" {
		parts = append(parts, fmt.Sprintf("in %s", e.Frame.Procedure))
	}
	loc := strings.Join(parts, " ")
	if loc != "" {
		return fmt.Sprintf("%s: %s", loc, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying cause (if any) for errors.Is/As.
func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

// TraceInfo captures execution steps for debug hooks.
type TraceInfo struct {
	Op          string
	Instruction string
	Procedure   string
	Source      string
	Line        int
	IP          int
	Depth       int
}

// TraceHook observes instruction dispatch for debugging/profiling.
type TraceHook func(TraceInfo)

func convertRuntimeError(err error) error {
	if err == nil {
		return nil
	}
	var rte *vm.RuntimeError
	if errors.As(err, &rte) {
		return &RuntimeError{
			Message: rte.Message,
			Frame:   frameTraceFromVM(rte.Frame),
			Stack:   stackTraceFromVM(rte.Stack),
			Cause:   rte.Cause,
		}
	}
	return err
}

func frameTraceFromVM(info vm.FrameInfo) FrameTrace {
	return FrameTrace{
		Procedure: info.Procedure,
		Source:    info.Source,
		Line:      info.Line,
		IP:        info.IP,
	}
}

func stackTraceFromVM(stack []vm.FrameInfo) []FrameTrace {
	if len(stack) == 0 {
		return nil
	}
	out := make([]FrameTrace, len(stack))
	for i, fr := range stack {
		out[i] = frameTraceFromVM(fr)
	}
	return out
}

// HostArgs provides typed accessors for host function arguments.
type HostArgs struct {
	args map[string]Value
}

// NewHostArgs wraps the raw argument map for typed access.
func NewHostArgs(args map[string]Value) HostArgs {
	return HostArgs{args: args}
}

// Value returns the raw Value for a named argument.
func (a HostArgs) Value(name string) (Value, error) {
	v, ok := a.args[name]
	if !ok {
		return Value{}, ArgError{Name: name, Want: "present"}
	}
	return v, nil
}

// Int returns an exact integer argument.
func (a HostArgs) Int(name string) (int64, error) {
	v, err := a.Value(name)
	if err != nil {
		return 0, err
	}
	if v.v.Kind != value.KindInteger {
		return 0, ArgError{Name: name, Want: "integer", Got: value.TypeName(v.v)}
	}
	return v.v.Num.Int64(), nil
}

// Float returns a numeric argument, promoting integers.
func (a HostArgs) Float(name string) (float64, error) {
	v, err := a.Value(name)
	if err != nil {
		return 0, err
	}
	f, ok := v.Float()
	if !ok {
		return 0, ArgError{Name: name, Want: "number", Got: value.TypeName(v.v)}
	}
	return f, nil
}

// String returns a string argument.
func (a HostArgs) String(name string) (string, error) {
	v, err := a.Value(name)
	if err != nil {
		return "", err
	}
	s, ok := v.Str()
	if !ok {
		return "", ArgError{Name: name, Want: "string", Got: value.TypeName(v.v)}
	}
	return s, nil
}

// Bool returns a boolean argument.
func (a HostArgs) Bool(name string) (bool, error) {
	v, err := a.Value(name)
	if err != nil {
		return false, err
	}
	b, ok := v.Bool()
	if !ok {
		return false, ArgError{Name: name, Want: "boolean", Got: value.TypeName(v.v)}
	}
	return b, nil
}

// List returns the elements of a proper list argument.
func (a HostArgs) List(name string) ([]Value, error) {
	v, err := a.Value(name)
	if err != nil {
		return nil, err
	}
	items, ok := v.List()
	if !ok {
		return nil, ArgError{Name: name, Want: "list", Got: value.TypeName(v.v)}
	}
	return items, nil
}

// NewValue marshals a Go value. Integers become exact, floats inexact,
// slices proper lists, maps and structs association lists.
func NewValue(val any) (Value, error) {
	mv, err := marshalGoValue(val)
	if err != nil {
		return Value{}, err
	}
	return Value{v: mv}, nil
}

// MustValue is like NewValue but panics on error.
func MustValue(val any) Value {
	v, err := NewValue(val)
	if err != nil {
		panic(err)
	}
	return v
}

// Char builds a character value.
func Char(r rune) Value {
	return Value{v: value.Char(r)}
}

// Symbol builds a symbol value.
func Symbol(name string) Value {
	return Value{v: value.Symbol(name)}
}

// Cons builds a pair.
func Cons(first, rest Value) Value {
	return Value{v: value.Cons(first.v, rest.v)}
}

// Raw converts to plain Go values: nil, int64, float64, bool, rune, string,
// []any for proper lists.
func (v Value) Raw() (any, error) {
	return unmarshalToGo(v.v)
}

// AsProcedure returns a callable handle when the value is a procedure.
func (v Value) AsProcedure() (*ProcedureHandle, bool) {
	if v.v.Kind != value.KindProcedure || v.v.Proc == nil {
		return nil, false
	}
	return &ProcedureHandle{owner: v.owner, call: v.call, proc: v.v.Proc}, true
}

func (v Value) Kind() ValueKind {
	return ValueKind(v.v.Kind)
}

func kindName(k ValueKind) string {
	return value.TypeName(value.Value{Kind: value.Kind(k)})
}

func (k ValueKind) String() string {
	return kindName(k)
}

func (v Value) IsNil() bool {
	return v.v.Kind == value.KindNil
}

// Int returns exact integers.
func (v Value) Int() (int64, bool) {
	if v.v.Kind != value.KindInteger {
		return 0, false
	}
	return v.v.Num.Int64(), true
}

// Float returns any number as float64.
func (v Value) Float() (float64, bool) {
	if !value.IsNumber(v.v) {
		return 0, false
	}
	return v.v.Num.Float64(), true
}

func (v Value) Bool() (bool, bool) {
	if v.v.Kind != value.KindBool {
		return false, false
	}
	return v.v.B, true
}

func (v Value) Char() (rune, bool) {
	if v.v.Kind != value.KindChar {
		return 0, false
	}
	return v.v.Ch, true
}

// Str returns string contents or a symbol name.
func (v Value) Str() (string, bool) {
	if v.v.Kind != value.KindString && v.v.Kind != value.KindSymbol {
		return "", false
	}
	return v.v.Str, true
}

// List flattens a proper list.
func (v Value) List() ([]Value, bool) {
	items, ok := value.ListToSlice(v.v)
	if !ok {
		return nil, false
	}
	out := make([]Value, len(items))
	for i, el := range items {
		out[i] = v.derive(el)
	}
	return out, true
}

// Pair returns both halves of a pair.
func (v Value) Pair() (Value, Value, bool) {
	if v.v.Kind != value.KindPair || v.v.Pair == nil {
		return Value{}, Value{}, false
	}
	return v.derive(v.v.Pair.First), v.derive(v.v.Pair.Rest), true
}

// Display renders the value as `display` prints it.
func (v Value) Display() string {
	return value.Display(v.v)
}

// Write renders the value in read-back form.
func (v Value) Write() string {
	return value.Write(v.v)
}

// Context is the execution context provided to host functions.
type Context struct {
	rt    value.Context
	owner *VM
	call  *hostCall
}

// Output is where the running program prints.
func (c *Context) Output() io.Writer {
	if c == nil || c.rt == nil {
		return io.Discard
	}
	return c.rt.Output()
}

// Apply calls a procedure value from inside a host function.
func (c *Context) Apply(proc Value, args ...Value) (Value, error) {
	if c == nil || c.rt == nil {
		return Value{}, errors.New("nil context")
	}
	if proc.v.Kind != value.KindProcedure || proc.v.Proc == nil {
		return Value{}, fmt.Errorf("apply %s: %w", value.TypeName(proc.v), ErrNotCallable)
	}
	argVals := make([]value.Value, len(args))
	for i, a := range args {
		argVals[i] = a.v
	}
	res, err := c.rt.Execute(proc.v.Proc, argVals)
	if err != nil {
		return Value{}, err
	}
	return Value{v: res, owner: c.owner, call: c.call}, nil
}

// FunctionHandler is the Go-side implementation of a scheme procedure.
// Arguments are provided by name after validation against the declared parameter list.
type FunctionHandler func(ctx *Context, args map[string]Value) (Value, error)

// Function describes a host-provided procedure, including its parameter list and handler.
type Function struct {
	Params  []string
	Handler FunctionHandler
}

// NewFunction creates a host procedure from a parameter list and handler.
func NewFunction(params []string, handler FunctionHandler) *Function {
	return &Function{
		Params:  params,
		Handler: handler,
	}
}

// MarshalFunction wraps a Go func. Parameters are named arg0, arg1, ...; the
// func may return nothing, a value, an error, or a value and an error.
func MarshalFunction(fn any) (*Function, error) {
	return functionFromFunc("function", fn)
}

// toValueWithName binds fn as a builtin. Arguments are owned by the VM that
// runs the call, which differs from owner once the VM has been duplicated.
func (fn *Function) toValueWithName(name string, owner *VM) value.Value {
	native := func(ctx value.Context, args []value.Value) (value.Value, error) {
		if fn == nil || fn.Handler == nil {
			return value.Nil(), errors.New("nil function handler")
		}
		if len(args) != len(fn.Params) {
			return value.Nil(), fmt.Errorf("%s expects %d arguments, got %d: %w", name, len(fn.Params), len(args), ErrArity)
		}
		runner := owner
		if core, ok := ctx.(*vm.VM); ok {
			if w, ok := core.Host().(*VM); ok {
				runner = w
			}
		}
		call := &hostCall{rt: ctx}
		call.active.Store(ctx != nil)
		defer call.active.Store(false)

		argMap := make(map[string]Value, len(fn.Params))
		for i, p := range fn.Params {
			argMap[p] = Value{v: args[i], owner: runner, call: call}
		}
		res, err := fn.Handler(&Context{rt: ctx, owner: runner, call: call}, argMap)
		if err != nil {
			return value.Nil(), err
		}
		return res.v, nil
	}
	return value.Builtin(name, native)
}

func functionFromFunc(name string, fn any) (*Function, error) {
	if fn == nil {
		return nil, errors.New("nil function")
	}
	rv := reflect.ValueOf(fn)
	rt := rv.Type()
	if rt.Kind() != reflect.Func {
		return nil, fmt.Errorf("value of %s is not a function", name)
	}
	if rt.IsVariadic() {
		return nil, fmt.Errorf("function %s must not be variadic", name)
	}
	if rt.NumOut() > 2 {
		return nil, fmt.Errorf("function %s has too many return values (max 2)", name)
	}
	retValIndex := -1
	retErrIndex := -1
	switch rt.NumOut() {
	case 0:
	case 1:
		if rt.Out(0) == errorType {
			retErrIndex = 0
		} else {
			retValIndex = 0
		}
	case 2:
		if rt.Out(1) != errorType {
			return nil, fmt.Errorf("function %s second return value must be error", name)
		}
		retValIndex = 0
		retErrIndex = 1
	}

	paramNames := make([]string, rt.NumIn())
	for i := 0; i < len(paramNames); i++ {
		paramNames[i] = fmt.Sprintf("arg%d", i)
	}

	handler := func(_ *Context, args map[string]Value) (Value, error) {
		inputs := make([]reflect.Value, rt.NumIn())
		for i := 0; i < rt.NumIn(); i++ {
			arg, ok := args[paramNames[i]]
			if !ok {
				return Value{}, ArgError{Name: paramNames[i], Want: "present"}
			}
			val, err := convertValue(arg.v, rt.In(i))
			if err != nil {
				return Value{}, fmt.Errorf("argument %s: %w", paramNames[i], err)
			}
			inputs[i] = val
		}
		results := rv.Call(inputs)
		if retErrIndex >= 0 && !results[retErrIndex].IsNil() {
			return Value{}, results[retErrIndex].Interface().(error)
		}
		if retValIndex >= 0 {
			mv, err := marshalGoValue(results[retValIndex].Interface())
			if err != nil {
				return Value{}, err
			}
			return Value{v: mv}, nil
		}
		return Value{v: value.Nil()}, nil
	}

	return &Function{
		Params:  paramNames,
		Handler: handler,
	}, nil
}

// VM runs scheme programs against one global scope. Calls are serialized:
// a VM runs one program or call at a time.
type VM struct {
	core *vm.VM
	mu   sync.Mutex
	busy bool
}

// NewVM constructs a VM with the builtin library installed.
func NewVM() *VM {
	core := vm.New()
	runtime.Install(core)
	return wrapCore(core)
}

func wrapCore(core *vm.VM) *VM {
	vmc := &VM{core: core}
	core.SetHost(vmc)
	return vmc
}

func (vmc *VM) acquire() error {
	if vmc == nil || vmc.core == nil {
		return errors.New("nil VM")
	}
	vmc.mu.Lock()
	defer vmc.mu.Unlock()
	if vmc.busy {
		return errors.New("VM is busy; concurrent use not allowed")
	}
	vmc.busy = true
	return nil
}

func (vmc *VM) release() {
	vmc.mu.Lock()
	vmc.busy = false
	vmc.mu.Unlock()
}

// Duplicate clones the VM configuration and global state into a new instance.
// The duplicate has independent memory and no in-flight execution state.
func (vmc *VM) Duplicate() (*VM, error) {
	if err := vmc.acquire(); err != nil {
		return nil, err
	}
	defer vmc.release()

	core := vmc.core.Duplicate()
	if core == nil {
		return nil, errors.New("VM duplicate failed")
	}
	return wrapCore(core), nil
}

// SetOutput redirects display/newline output.
func (vmc *VM) SetOutput(w io.Writer) {
	if vmc == nil || vmc.core == nil {
		return
	}
	vmc.core.SetOutput(w)
}

// SetGlobal marshals val and binds it in the global scope.
func (vmc *VM) SetGlobal(name string, val any) error {
	if vmc == nil || vmc.core == nil {
		return errors.New("nil VM")
	}
	if fn, ok := val.(*Function); ok {
		return vmc.SetGlobalFunction(name, fn)
	}
	mv, err := marshalGoValue(val)
	if err != nil {
		return err
	}
	vmc.core.DefineGlobal(name, mv)
	return nil
}

// SetGlobalFunction binds a host procedure to a global name.
func (vmc *VM) SetGlobalFunction(name string, fn *Function) error {
	if vmc == nil || vmc.core == nil {
		return errors.New("nil VM")
	}
	if fn == nil {
		return errors.New("nil function")
	}
	vmc.core.DefineGlobal(name, fn.toValueWithName(name, vmc))
	return nil
}

// Global reads a global binding.
func (vmc *VM) Global(name string) (Value, bool) {
	if vmc == nil || vmc.core == nil {
		return Value{}, false
	}
	v, ok := vmc.core.Global(name)
	if !ok {
		return Value{}, false
	}
	return Value{v: v, owner: vmc}, true
}

// HasProcedure reports whether a global procedure exists with the given name.
func (vmc *VM) HasProcedure(name string) bool {
	if vmc == nil || vmc.core == nil {
		return false
	}
	return vmc.core.HasProcedure(name)
}

// LoadFile runs a script from a filesystem path.
func (vmc *VM) LoadFile(path string) ([]Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return vmc.LoadSource(path, string(data))
}

// LoadSource compiles and runs src form by form. The name is used in
// diagnostics. On failure the values of the forms that completed are
// returned with the error; their definitions stay in effect.
func (vmc *VM) LoadSource(name string, src string) ([]Value, error) {
	if err := vmc.acquire(); err != nil {
		return nil, err
	}
	defer vmc.release()

	c := compiler.New(name, src)
	vmc.core.SetSourceName(name)
	var results []Value
	for {
		form, err := c.Next()
		if err == io.EOF {
			return results, nil
		}
		if err != nil {
			return results, err
		}
		res, err := vmc.core.Run(form.Proc, nil)
		if err != nil {
			return results, convertRuntimeError(err)
		}
		results = append(results, Value{v: res, owner: vmc})
	}
}

// Eval runs src and returns the value of its last form (nil for no forms).
func (vmc *VM) Eval(src string) (Value, error) {
	results, err := vmc.LoadSource("eval", src)
	if err != nil {
		return Value{}, err
	}
	if len(results) == 0 {
		return Value{v: value.Nil(), owner: vmc}, nil
	}
	return results[len(results)-1], nil
}

// Disassemble writes the instruction listing of every global custom procedure.
func (vmc *VM) Disassemble(w io.Writer) error {
	if vmc == nil || vmc.core == nil {
		return errors.New("nil VM")
	}
	return vmc.core.Disassemble(w)
}

// SetInstructionLimit caps the number of instructions a single form or call may execute (0 for unlimited).
func (vmc *VM) SetInstructionLimit(limit int) {
	if vmc == nil || vmc.core == nil {
		return
	}
	if limit < 0 {
		limit = 0
	}
	vmc.core.SetInstructionLimit(limit)
}

// SetMaxDepth caps nested procedure calls (0 restores the default).
func (vmc *VM) SetMaxDepth(depth int) {
	if vmc == nil || vmc.core == nil {
		return
	}
	vmc.core.SetMaxDepth(depth)
}

// SetTraceHook attaches a debug hook that observes instruction dispatch.
func (vmc *VM) SetTraceHook(h TraceHook) {
	if vmc == nil || vmc.core == nil {
		return
	}
	if h == nil {
		vmc.core.SetTraceHook(nil)
		return
	}
	vmc.core.SetTraceHook(func(info vm.TraceInfo) {
		h(TraceInfo{
			Op:          info.Op.String(),
			Instruction: info.Instruction.String(),
			Procedure:   info.Procedure,
			Source:      info.Source,
			Line:        info.Line,
			IP:          info.IP,
			Depth:       info.Depth,
		})
	})
}

// ProcedureHandle represents a procedure value returned from the VM.
type ProcedureHandle struct {
	owner *VM
	call  *hostCall
	proc  *value.Procedure
}

// Call invokes the procedure on its owning VM. A handle taken from host
// function arguments runs inside that call while the handler is active.
func (h *ProcedureHandle) Call(ctx context.Context, args ...Value) (Value, error) {
	if h == nil || h.proc == nil {
		return Value{}, errors.New("nil procedure handle")
	}
	if h.owner == nil {
		return Value{}, errors.New("procedure handle missing VM owner")
	}
	if err := ctx.Err(); err != nil {
		return Value{}, err
	}
	argVals := make([]value.Value, len(args))
	for i, a := range args {
		argVals[i] = a.v
	}
	if h.call != nil && h.call.active.Load() {
		res, err := h.call.rt.Execute(h.proc, argVals)
		if err != nil {
			return Value{}, err
		}
		return Value{v: res, owner: h.owner, call: h.call}, nil
	}
	if err := h.owner.acquire(); err != nil {
		return Value{}, err
	}
	defer h.owner.release()

	res, err := h.owner.core.Run(h.proc, argVals)
	if err != nil {
		return Value{}, convertRuntimeError(err)
	}
	return Value{v: res, owner: h.owner}, nil
}

// CallFuture represents an in-flight VM call.
type CallFuture struct {
	ch <-chan CallResult
}

// CallResult is the outcome of a VM call.
type CallResult struct {
	Value Value
	Err   error
}

// Await waits for completion or context cancellation.
func (f CallFuture) Await(ctx context.Context) (Value, error) {
	select {
	case <-ctx.Done():
		return Value{}, ctx.Err()
	case res := <-f.ch:
		return res.Value, res.Err
	}
}

// CallAsync resolves a global procedure by name and runs it on the VM asynchronously.
func (vmc *VM) CallAsync(ctx context.Context, name string, args []Value) CallFuture {
	ch := make(chan CallResult, 1)
	if err := vmc.acquire(); err != nil {
		ch <- CallResult{Err: err}
		close(ch)
		return CallFuture{ch: ch}
	}

	go func() {
		defer close(ch)
		defer vmc.release()
		select {
		case <-ctx.Done():
			ch <- CallResult{Err: ctx.Err()}
			return
		default:
		}
		argVals := make([]value.Value, len(args))
		for i, a := range args {
			argVals[i] = a.v
		}
		res, err := vmc.core.Call(name, argVals)
		if err != nil {
			ch <- CallResult{Err: convertRuntimeError(err)}
			return
		}
		ch <- CallResult{Value: Value{v: res, owner: vmc}}
	}()
	return CallFuture{ch: ch}
}

func convertValue(src value.Value, targetType reflect.Type) (reflect.Value, error) {
	ptr := reflect.New(targetType)
	if err := assignValue(src, ptr.Elem()); err != nil {
		return reflect.Value{}, err
	}
	return ptr.Elem(), nil
}

// marshalGoValue converts common Go types into value.Value.
func marshalGoValue(val any) (value.Value, error) {
	if m, ok := val.(Marshaler); ok {
		custom, err := m.MarshalScm()
		if err != nil {
			return value.Value{}, err
		}
		return custom.v, nil
	}
	switch v := val.(type) {
	case Value:
		return v.v, nil
	case nil:
		return value.Nil(), nil
	case bool:
		return value.Bool(v), nil
	case int:
		return value.Int(int64(v)), nil
	case int64:
		return value.Int(v), nil
	case float64:
		return value.Float(v), nil
	case string:
		return value.String(v), nil
	case []any:
		return marshalSlice(reflect.ValueOf(v))
	case []Value:
		items := make([]value.Value, len(v))
		for i, el := range v {
			items[i] = el.v
		}
		return value.List(items...), nil
	case *Function:
		return v.toValueWithName("", nil), nil
	default:
		rv := reflect.ValueOf(val)
		if !rv.IsValid() {
			return value.Nil(), nil
		}
		if rv.Kind() == reflect.Pointer {
			if rv.IsNil() {
				return value.Nil(), nil
			}
			return marshalGoValue(rv.Elem().Interface())
		}
		if rv.Kind() == reflect.Interface && !rv.IsNil() {
			return marshalGoValue(rv.Elem().Interface())
		}
		switch rv.Kind() {
		case reflect.Bool:
			return value.Bool(rv.Bool()), nil
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return value.Int(rv.Int()), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			u := rv.Uint()
			if u > math.MaxInt64 {
				return value.Value{}, fmt.Errorf("unsigned value %d overflows integer", u)
			}
			return value.Int(int64(u)), nil
		case reflect.Float32, reflect.Float64:
			return value.Float(rv.Float()), nil
		case reflect.String:
			return value.String(rv.String()), nil
		case reflect.Slice, reflect.Array:
			return marshalSlice(rv)
		case reflect.Map:
			keys := make([]string, 0, rv.Len())
			entries := make(map[string]value.Value, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				key := iter.Key().Interface()
				var keyStr string
				switch k := key.(type) {
				case string:
					keyStr = k
				case fmt.Stringer:
					keyStr = k.String()
				default:
					keyStr = fmt.Sprint(k)
				}
				mv, err := marshalGoValue(iter.Value().Interface())
				if err != nil {
					return value.Value{}, err
				}
				keys = append(keys, keyStr)
				entries[keyStr] = mv
			}
			sort.Strings(keys)
			alist := make([]value.Value, len(keys))
			for i, k := range keys {
				alist[i] = value.Cons(value.String(k), entries[k])
			}
			return value.List(alist...), nil
		case reflect.Struct:
			rt := rv.Type()
			alist := make([]value.Value, 0, rv.NumField())
			for i := 0; i < rv.NumField(); i++ {
				field := rt.Field(i)
				if field.PkgPath != "" { // unexported
					continue
				}
				mv, err := marshalGoValue(rv.Field(i).Interface())
				if err != nil {
					return value.Value{}, err
				}
				alist = append(alist, value.Cons(value.String(field.Name), mv))
			}
			return value.List(alist...), nil
		}
		return value.Value{}, fmt.Errorf("unsupported value type %T", val)
	}
}

func marshalSlice(rv reflect.Value) (value.Value, error) {
	items := make([]value.Value, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		mv, err := marshalGoValue(rv.Index(i).Interface())
		if err != nil {
			return value.Value{}, err
		}
		items[i] = mv
	}
	return value.List(items...), nil
}

// unmarshalToGo converts a value.Value into a Go value for Raw().
func unmarshalToGo(v value.Value) (any, error) {
	switch v.Kind {
	case value.KindNil:
		return nil, nil
	case value.KindBool:
		return v.B, nil
	case value.KindInteger:
		return v.Num.Int64(), nil
	case value.KindFloat:
		return v.Num.Float64(), nil
	case value.KindChar:
		return v.Ch, nil
	case value.KindString, value.KindSymbol:
		return v.Str, nil
	case value.KindPair:
		items, ok := value.ListToSlice(v)
		if !ok {
			return nil, errors.New("Raw() not supported on improper lists; use Pair")
		}
		out := make([]any, len(items))
		for i, el := range items {
			val, err := unmarshalToGo(el)
			if err != nil {
				return nil, err
			}
			out[i] = val
		}
		return out, nil
	case value.KindProcedure:
		return nil, errors.New("Raw() not supported on procedure values; use AsProcedure")
	default:
		return nil, fmt.Errorf("unsupported value kind %v", v.Kind)
	}
}

// Unmarshal assigns a Value into a Go target using reflection.
// Supports primitives, slices, maps and structs (from association lists), and Unmarshaler.
func Unmarshal(val Value, target any) error {
	if target == nil {
		return errors.New("nil target")
	}
	if u, ok := target.(Unmarshaler); ok {
		return u.UnmarshalScm(val)
	}
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New("target must be non-nil pointer")
	}
	return assignValue(val.v, rv.Elem())
}

func assignValue(src value.Value, dst reflect.Value) error {
	if !dst.CanSet() {
		return errors.New("cannot set target")
	}
	switch dst.Kind() {
	case reflect.Interface:
		raw, err := unmarshalToGo(src)
		if err != nil {
			return err
		}
		if raw == nil {
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		dst.Set(reflect.ValueOf(raw))
		return nil
	case reflect.Bool:
		if src.Kind != value.KindBool {
			return ArgError{Want: "boolean", Got: value.TypeName(src)}
		}
		dst.SetBool(src.B)
		return nil
	case reflect.String:
		if src.Kind != value.KindString && src.Kind != value.KindSymbol {
			return ArgError{Want: "string", Got: value.TypeName(src)}
		}
		dst.SetString(src.Str)
		return nil
	case reflect.Int32:
		if src.Kind == value.KindChar {
			dst.SetInt(int64(src.Ch))
			return nil
		}
		return assignInt(src, dst)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int64:
		return assignInt(src, dst)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if src.Kind != value.KindInteger {
			return ArgError{Want: "integer", Got: value.TypeName(src)}
		}
		n := src.Num.Int64()
		if n < 0 || dst.OverflowUint(uint64(n)) {
			return fmt.Errorf("integer %d overflows %s", n, dst.Type())
		}
		dst.SetUint(uint64(n))
		return nil
	case reflect.Float32, reflect.Float64:
		if !value.IsNumber(src) {
			return ArgError{Want: "number", Got: value.TypeName(src)}
		}
		dst.SetFloat(src.Num.Float64())
		return nil
	case reflect.Slice:
		items, ok := value.ListToSlice(src)
		if !ok {
			return ArgError{Want: "list", Got: value.TypeName(src)}
		}
		l := len(items)
		dst.Set(reflect.MakeSlice(dst.Type(), l, l))
		for i := 0; i < l; i++ {
			if err := assignValue(items[i], dst.Index(i)); err != nil {
				return err
			}
		}
		return nil
	case reflect.Array:
		items, ok := value.ListToSlice(src)
		if !ok {
			return ArgError{Want: "list", Got: value.TypeName(src)}
		}
		if len(items) != dst.Len() {
			return fmt.Errorf("list length mismatch: have %d want %d", len(items), dst.Len())
		}
		for i := range items {
			if err := assignValue(items[i], dst.Index(i)); err != nil {
				return err
			}
		}
		return nil
	case reflect.Map:
		if dst.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("map keys must be string")
		}
		entries, err := alistEntries(src)
		if err != nil {
			return err
		}
		dst.Set(reflect.MakeMapWithSize(dst.Type(), len(entries)))
		for _, e := range entries {
			elem := reflect.New(dst.Type().Elem()).Elem()
			if err := assignValue(e.val, elem); err != nil {
				return err
			}
			dst.SetMapIndex(reflect.ValueOf(e.key).Convert(dst.Type().Key()), elem)
		}
		return nil
	case reflect.Struct:
		entries, err := alistEntries(src)
		if err != nil {
			return err
		}
		rt := dst.Type()
		for i := 0; i < rt.NumField(); i++ {
			field := rt.Field(i)
			if field.PkgPath != "" { // unexported
				continue
			}
			for _, e := range entries {
				if e.key != field.Name {
					continue
				}
				if err := assignValue(e.val, dst.Field(i)); err != nil {
					return err
				}
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported unmarshal target kind %s", dst.Kind())
	}
}

func assignInt(src value.Value, dst reflect.Value) error {
	if src.Kind != value.KindInteger {
		return ArgError{Want: "integer", Got: value.TypeName(src)}
	}
	n := src.Num.Int64()
	if dst.OverflowInt(n) {
		return fmt.Errorf("integer %d overflows %s", n, dst.Type())
	}
	dst.SetInt(n)
	return nil
}

type alistEntry struct {
	key string
	val value.Value
}

// alistEntries reads an association list whose keys are strings or symbols.
func alistEntries(src value.Value) ([]alistEntry, error) {
	items, ok := value.ListToSlice(src)
	if !ok {
		return nil, ArgError{Want: "association list", Got: value.TypeName(src)}
	}
	out := make([]alistEntry, len(items))
	for i, item := range items {
		if item.Kind != value.KindPair || item.Pair == nil {
			return nil, ArgError{Want: "pair", Got: value.TypeName(item)}
		}
		key := item.Pair.First
		if key.Kind != value.KindString && key.Kind != value.KindSymbol {
			return nil, ArgError{Want: "string key", Got: value.TypeName(key)}
		}
		out[i] = alistEntry{key: key.Str, val: item.Pair.Rest}
	}
	return out, nil
}

package scm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

type testCustomMarshaler struct{ V string }
type testCustomUnmarshaler struct{ V string }

var _ Marshaler = (*testCustomMarshaler)(nil)
var _ Unmarshaler = (*testCustomUnmarshaler)(nil)

func (c testCustomMarshaler) MarshalScm() (Value, error) {
	return NewValue(map[string]any{"v": c.V})
}

func (c *testCustomUnmarshaler) UnmarshalScm(v Value) error {
	var m map[string]string
	if err := Unmarshal(v, &m); err != nil {
		return err
	}
	val, ok := m["v"]
	if !ok {
		return fmt.Errorf("missing v")
	}
	c.V = val
	return nil
}

type programCase struct {
	Name       string   `yaml:"name"`
	Source     string   `yaml:"source"`
	Values     []string `yaml:"values"`
	Output     string   `yaml:"output"`
	Error      string   `yaml:"error"`
	Cause      string   `yaml:"cause"`
	Incomplete bool     `yaml:"incomplete"`
}

var causes = map[string]error{
	"unbound":      ErrUnbound,
	"not-callable": ErrNotCallable,
	"arity":        ErrArity,
	"type":         ErrType,
	"stack":        ErrStack,
	"branch":       ErrBranch,
	"depth":        ErrDepth,
	"limit":        ErrInstructionLimit,
}

func loadProgramCases(t *testing.T) []programCase {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "programs.yaml"))
	if err != nil {
		t.Fatalf("read fixtures: %v", err)
	}
	var cases []programCase
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cases); err != nil {
		t.Fatalf("decode fixtures: %v", err)
	}
	if len(cases) == 0 {
		t.Fatalf("no fixtures")
	}
	return cases
}

func TestAPIPrograms(t *testing.T) {
	for _, tc := range loadProgramCases(t) {
		t.Run(tc.Name, func(t *testing.T) {
			vm := NewVM()
			var out bytes.Buffer
			vm.SetOutput(&out)

			results, err := vm.LoadSource("prog", tc.Source)

			got := make([]string, len(results))
			for i, r := range results {
				got[i] = r.Write()
			}
			if len(tc.Values) != 0 || len(got) != 0 {
				if !reflect.DeepEqual(got, tc.Values) {
					t.Fatalf("values: expected %q, got %q", tc.Values, got)
				}
			}
			if out.String() != tc.Output {
				t.Fatalf("output: expected %q, got %q", tc.Output, out.String())
			}

			wantErr := tc.Error != "" || tc.Cause != "" || tc.Incomplete
			if !wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected an error")
			}
			if tc.Error != "" && !strings.Contains(err.Error(), tc.Error) {
				t.Fatalf("expected error containing %q, got %q", tc.Error, err.Error())
			}
			if tc.Cause != "" {
				cause, ok := causes[tc.Cause]
				if !ok {
					t.Fatalf("unknown cause %q in fixture", tc.Cause)
				}
				if !errors.Is(err, cause) {
					t.Fatalf("expected cause %v, got %v", cause, err)
				}
			}
			if tc.Incomplete != IsIncomplete(err) {
				t.Fatalf("expected incomplete=%v for %v", tc.Incomplete, err)
			}
		})
	}
}

func TestAPIScriptCall(t *testing.T) {
	vm := NewVM()
	if _, err := vm.LoadSource("inline", `(define (add a b) (+ a b))`); err != nil {
		t.Fatalf("load source: %v", err)
	}
	res, err := vm.CallAsync(context.Background(), "add", []Value{MustValue(2), MustValue(3)}).Await(context.Background())
	if err != nil {
		t.Fatalf("call error: %v", err)
	}
	if v, ok := res.Int(); !ok || v != 5 {
		t.Fatalf("expected 5, got %s", res.Write())
	}
}

func TestAPIEvalReturnsLastForm(t *testing.T) {
	vm := NewVM()
	res, err := vm.Eval(`(define sq (lambda (x) (* x x))) (sq 1.5)`)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if f, ok := res.Float(); !ok || f != 2.25 || res.Kind() != ValueFloat {
		t.Fatalf("expected 2.25, got %s", res.Write())
	}
	empty, err := vm.Eval("  ")
	if err != nil || !empty.IsNil() {
		t.Fatalf("expected nil for empty source, got %s (%v)", empty.Write(), err)
	}
}

func TestAPILoadSourceKeepsEarlierDefinitions(t *testing.T) {
	vm := NewVM()
	results, err := vm.LoadSource("inline", `(define keep 1) (car 5) (define lost 2)`)
	if err == nil {
		t.Fatalf("expected runtime error")
	}
	if len(results) != 1 {
		t.Fatalf("expected one completed form, got %d", len(results))
	}
	if _, ok := vm.Global("keep"); !ok {
		t.Fatalf("definition before the failing form must remain")
	}
	if _, ok := vm.Global("lost"); ok {
		t.Fatalf("forms after the failure must not run")
	}
}

func TestAPIHostFunctionBinding(t *testing.T) {
	vm := NewVM()
	host := NewFunction([]string{"x"}, func(ctx *Context, args map[string]Value) (Value, error) {
		n, _ := args["x"].Int()
		return NewValue(n + 1)
	})
	if err := vm.SetGlobalFunction("inc", host); err != nil {
		t.Fatalf("set global: %v", err)
	}
	if _, err := vm.LoadSource("inline", `(define (run v) (inc v))`); err != nil {
		t.Fatalf("load source: %v", err)
	}
	res, err := vm.CallAsync(context.Background(), "run", []Value{MustValue(4)}).Await(context.Background())
	if err != nil {
		t.Fatalf("call error: %v", err)
	}
	if v, ok := res.Int(); !ok || v != 5 {
		t.Fatalf("expected 5, got %s", res.Write())
	}
}

func TestAPIHostFunctionArity(t *testing.T) {
	vm := NewVM()
	host := NewFunction([]string{"a", "b"}, func(_ *Context, _ map[string]Value) (Value, error) {
		return NewValue(true)
	})
	if err := vm.SetGlobalFunction("pair-host", host); err != nil {
		t.Fatalf("bind: %v", err)
	}
	_, err := vm.Eval(`(pair-host 1)`)
	if !errors.Is(err, ErrArity) {
		t.Fatalf("expected arity error, got %v", err)
	}
}

func TestAPIHostFunctionAppliesProcedures(t *testing.T) {
	vm := NewVM()
	twice := NewFunction([]string{"f", "x"}, func(ctx *Context, args map[string]Value) (Value, error) {
		once, err := ctx.Apply(args["f"], args["x"])
		if err != nil {
			return Value{}, err
		}
		return ctx.Apply(args["f"], once)
	})
	if err := vm.SetGlobalFunction("twice", twice); err != nil {
		t.Fatalf("bind: %v", err)
	}
	res, err := vm.Eval(`(twice (lambda (n) (* n 3)) 2)`)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if v, ok := res.Int(); !ok || v != 18 {
		t.Fatalf("expected 18, got %s", res.Write())
	}

	_, err = vm.Eval(`(twice 4 2)`)
	if !errors.Is(err, ErrNotCallable) {
		t.Fatalf("expected not-callable error, got %v", err)
	}
}

func TestAPIHostFunctionOutput(t *testing.T) {
	vm := NewVM()
	var out bytes.Buffer
	vm.SetOutput(&out)
	shout := NewFunction([]string{"s"}, func(ctx *Context, args map[string]Value) (Value, error) {
		s, err := NewHostArgs(args).String("s")
		if err != nil {
			return Value{}, err
		}
		fmt.Fprint(ctx.Output(), strings.ToUpper(s))
		return Value{}, nil
	})
	if err := vm.SetGlobal("shout", shout); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if _, err := vm.Eval(`(shout "hey")`); err != nil {
		t.Fatalf("eval: %v", err)
	}
	if out.String() != "HEY" {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestAPIHasProcedure(t *testing.T) {
	vm := NewVM()
	if vm.HasProcedure("missing") {
		t.Fatalf("expected missing to be false")
	}
	if !vm.HasProcedure("car") {
		t.Fatalf("expected builtins to be installed")
	}
	if _, err := vm.LoadSource("inline", `(define (present) 1) (define value 2)`); err != nil {
		t.Fatalf("load: %v", err)
	}
	if !vm.HasProcedure("present") {
		t.Fatalf("expected present to be true")
	}
	if vm.HasProcedure("value") {
		t.Fatalf("a non-procedure global is not a procedure")
	}
}

func TestAPIVMDuplicateIsolation(t *testing.T) {
	base := NewVM()
	if _, err := base.LoadSource("inline", `
(define count 0)
(define (bump) (define count (+ count 1)))
`); err != nil {
		t.Fatalf("load source: %v", err)
	}
	dup, err := base.Duplicate()
	if err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	if _, err := dup.CallAsync(context.Background(), "bump", nil).Await(context.Background()); err != nil {
		t.Fatalf("dup bump: %v", err)
	}
	dupCount, _ := dup.Global("count")
	if v, _ := dupCount.Int(); v != 1 {
		t.Fatalf("expected dup count 1, got %s", dupCount.Write())
	}
	baseCount, _ := base.Global("count")
	if v, _ := baseCount.Int(); v != 0 {
		t.Fatalf("expected base count untouched, got %s", baseCount.Write())
	}
	if !dup.HasProcedure("bump") {
		t.Fatalf("duplicate must carry procedures")
	}
}

func TestAPIVMDuplicateRunsHostArgumentsOnDuplicate(t *testing.T) {
	orig := NewVM()
	callme := NewFunction([]string{"f"}, func(ctx *Context, args map[string]Value) (Value, error) {
		proc, ok := args["f"].AsProcedure()
		if !ok {
			return Value{}, fmt.Errorf("expected a procedure, got %s", args["f"].Write())
		}
		return proc.Call(context.Background())
	})
	if err := orig.SetGlobalFunction("callme", callme); err != nil {
		t.Fatalf("bind: %v", err)
	}
	dup, err := orig.Duplicate()
	if err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	res, err := dup.Eval(`(define (thunk) only-in-dup) (define only-in-dup 42) (callme thunk)`)
	if err != nil {
		t.Fatalf("eval on duplicate: %v", err)
	}
	if v, ok := res.Int(); !ok || v != 42 {
		t.Fatalf("expected 42, got %s", res.Write())
	}
	if _, ok := orig.Global("only-in-dup"); ok {
		t.Fatalf("definitions on the duplicate must not reach the original")
	}

	if _, err := orig.Eval(`(define (thunk) only-in-dup) (callme thunk)`); !errors.Is(err, ErrUnbound) {
		t.Fatalf("expected unbound error on the original, got %v", err)
	}
}

func TestAPIProcedureHandle(t *testing.T) {
	vm := NewVM()
	res, err := vm.Eval(`(define (make-scaler k) (lambda (x) (* x k))) (make-scaler 4)`)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	proc, ok := res.AsProcedure()
	if !ok {
		t.Fatalf("expected procedure, got %s", res.Write())
	}
	out, err := proc.Call(context.Background(), MustValue(2.5))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if f, ok := out.Float(); !ok || f != 10 {
		t.Fatalf("expected 10.0, got %s", out.Write())
	}
	if _, ok := MustValue(1).AsProcedure(); ok {
		t.Fatalf("integer must not be a procedure")
	}
}

func TestAPISyntaxErrors(t *testing.T) {
	vm := NewVM()
	_, err := vm.LoadSource("bad", "(define)")
	var se *SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("expected SyntaxError, got %T", err)
	}
	if se.Source != "bad" || se.Pos.Line != 1 {
		t.Fatalf("unexpected location %s:%d", se.Source, se.Pos.Line)
	}
	if IsIncomplete(err) {
		t.Fatalf("complete form reported as incomplete")
	}

	_, err = vm.LoadSource("open", "(display \"unfinished")
	if !IsIncomplete(err) {
		t.Fatalf("expected incomplete input, got %v", err)
	}
}

func TestAPIRuntimeErrorDiagnostics(t *testing.T) {
	vm := NewVM()
	src := `(define (inner lst)
  (car lst))

(define (outer) (inner ()))`
	if _, err := vm.LoadSource("diag", src); err != nil {
		t.Fatalf("load: %v", err)
	}
	_, err := vm.CallAsync(context.Background(), "outer", nil).Await(context.Background())
	if err == nil {
		t.Fatalf("expected runtime error")
	}
	rte, ok := err.(*RuntimeError)
	if !ok {
		t.Fatalf("expected RuntimeError, got %T", err)
	}
	if rte.Frame.Procedure != "inner" {
		t.Fatalf("expected top frame inner, got %q", rte.Frame.Procedure)
	}
	if rte.Frame.Source != "diag" {
		t.Fatalf("expected source diag, got %q", rte.Frame.Source)
	}
	if rte.Frame.Line != 2 {
		t.Fatalf("expected line 2, got %d", rte.Frame.Line)
	}
	if len(rte.Stack) < 2 {
		t.Fatalf("expected at least 2 frames, got %d", len(rte.Stack))
	}
	if rte.Stack[1].Procedure != "outer" {
		t.Fatalf("expected caller outer, got %q", rte.Stack[1].Procedure)
	}
	if !errors.Is(err, ErrType) {
		t.Fatalf("expected type cause, got %v", rte.Cause)
	}
}

func TestAPICallUnknownGlobal(t *testing.T) {
	vm := NewVM()
	_, err := vm.CallAsync(context.Background(), "nowhere", nil).Await(context.Background())
	if !errors.Is(err, ErrUnbound) {
		t.Fatalf("expected unbound error, got %v", err)
	}
}

func TestAPITraceHook(t *testing.T) {
	vm := NewVM()
	if _, err := vm.LoadSource("trace", `(define (demo) (+ 1 2))`); err != nil {
		t.Fatalf("load: %v", err)
	}
	var traces []TraceInfo
	vm.SetTraceHook(func(info TraceInfo) {
		traces = append(traces, info)
	})
	if _, err := vm.CallAsync(context.Background(), "demo", nil).Await(context.Background()); err != nil {
		t.Fatalf("call: %v", err)
	}
	if len(traces) != 3 {
		t.Fatalf("expected 3 trace events, got %d", len(traces))
	}
	for _, tr := range traces {
		if tr.Procedure != "demo" {
			t.Fatalf("expected procedure demo in trace, got %q", tr.Procedure)
		}
		if tr.Source != "trace" {
			t.Fatalf("expected trace source, got %q", tr.Source)
		}
		if tr.Line == 0 {
			t.Fatalf("expected line info in trace")
		}
	}
	if traces[2].Op != "CALL" || traces[2].Instruction != "CALL +/2" {
		t.Fatalf("expected the call to dispatch last, got %s", traces[2].Instruction)
	}
}

func TestAPIInstructionLimit(t *testing.T) {
	vm := NewVM()
	vm.SetInstructionLimit(50)
	if _, err := vm.LoadSource("limit", `(define (spin) (spin))`); err != nil {
		t.Fatalf("load: %v", err)
	}
	_, err := vm.CallAsync(context.Background(), "spin", nil).Await(context.Background())
	if !errors.Is(err, ErrInstructionLimit) {
		t.Fatalf("expected instruction limit error, got %v", err)
	}
	rte, ok := err.(*RuntimeError)
	if !ok {
		t.Fatalf("expected RuntimeError, got %T", err)
	}
	if rte.Frame.Procedure != "spin" {
		t.Fatalf("expected frame spin, got %q", rte.Frame.Procedure)
	}
}

func TestAPIMaxDepth(t *testing.T) {
	vm := NewVM()
	vm.SetMaxDepth(20)
	_, err := vm.Eval(`(define (down n) (if (= n 0) 0 (down (- n 1)))) (down 100)`)
	if !errors.Is(err, ErrDepth) {
		t.Fatalf("expected depth error, got %v", err)
	}
	res, err := vm.Eval(`(down 10)`)
	if err != nil {
		t.Fatalf("shallow recursion failed: %v", err)
	}
	if v, _ := res.Int(); v != 0 {
		t.Fatalf("expected 0, got %s", res.Write())
	}
}

func TestAPIDisassemble(t *testing.T) {
	vm := NewVM()
	if _, err := vm.Eval(`(define (twice x) (* x 2))`); err != nil {
		t.Fatalf("eval: %v", err)
	}
	var out bytes.Buffer
	if err := vm.Disassemble(&out); err != nil {
		t.Fatalf("disassemble: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "proc twice") || !strings.Contains(text, "CALL") {
		t.Fatalf("unexpected listing:\n%s", text)
	}
}

func TestAPIHostArgHelpers(t *testing.T) {
	vm := NewVM()
	host := NewFunction([]string{"x", "y", "flag", "items"}, func(_ *Context, args map[string]Value) (Value, error) {
		h := NewHostArgs(args)
		x, err := h.Float("x")
		if err != nil {
			return Value{}, err
		}
		y, err := h.String("y")
		if err != nil {
			return Value{}, err
		}
		flag, err := h.Bool("flag")
		if err != nil {
			return Value{}, err
		}
		items, err := h.List("items")
		if err != nil {
			return Value{}, err
		}
		return NewValue(fmt.Sprintf("%g:%s:%v:%d", x, y, flag, len(items)))
	})
	if err := vm.SetGlobalFunction("host", host); err != nil {
		t.Fatalf("bind: %v", err)
	}
	val, err := vm.Eval(`(host 1 "two" #t (list 1 2 3))`)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if s, _ := val.Str(); s != "1:two:true:3" {
		t.Fatalf("unexpected result %s", val.Write())
	}

	badHost := NewFunction([]string{"n"}, func(_ *Context, args map[string]Value) (Value, error) {
		_, err := NewHostArgs(args).Int("n")
		return Value{}, err
	})
	if err := vm.SetGlobalFunction("bad", badHost); err != nil {
		t.Fatalf("bind bad: %v", err)
	}
	_, err = vm.Eval(`(bad "oops")`)
	if err == nil {
		t.Fatalf("expected error from bad host arg")
	}
	var argErr ArgError
	if !errors.As(err, &argErr) {
		t.Fatalf("expected ArgError, got %T", err)
	}
	if argErr.Name != "n" || argErr.Want != "integer" || argErr.Got != "string" {
		t.Fatalf("unexpected ArgError %+v", argErr)
	}
}

func TestAPIHostFunctionBlocksVM(t *testing.T) {
	vm := NewVM()
	hostFn := NewFunction([]string{"v"}, func(_ *Context, args map[string]Value) (Value, error) {
		time.Sleep(30 * time.Millisecond)
		return args["v"], nil
	})
	if err := vm.SetGlobalFunction("host", hostFn); err != nil {
		t.Fatalf("bind host: %v", err)
	}
	if _, err := vm.LoadSource("inline", `(define (slow-call x) (host x))`); err != nil {
		t.Fatalf("load: %v", err)
	}

	start := time.Now()
	res, err := vm.CallAsync(context.Background(), "slow-call", []Value{MustValue(42)}).Await(context.Background())
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("call error: %v", err)
	}
	if v, _ := res.Int(); v != 42 {
		t.Fatalf("unexpected result %s", res.Write())
	}
	if elapsed < 25*time.Millisecond {
		t.Fatalf("expected blocking host call; elapsed %v too short", elapsed)
	}
}

func TestAPICallAsyncBusyProtection(t *testing.T) {
	vm := NewVM()
	hostFn := NewFunction(nil, func(_ *Context, _ map[string]Value) (Value, error) {
		time.Sleep(50 * time.Millisecond)
		return NewValue(1)
	})
	if err := vm.SetGlobalFunction("host", hostFn); err != nil {
		t.Fatalf("bind host: %v", err)
	}
	if _, err := vm.LoadSource("inline", `(define (slow) (host))`); err != nil {
		t.Fatalf("load: %v", err)
	}

	fut1 := vm.CallAsync(context.Background(), "slow", nil)
	fut2 := vm.CallAsync(context.Background(), "slow", nil)

	if _, err := fut2.Await(context.Background()); err == nil {
		t.Fatalf("expected busy error on concurrent CallAsync")
	}
	if _, err := vm.Eval(`(slow)`); err == nil {
		t.Fatalf("expected busy error on concurrent Eval")
	}

	val, err := fut1.Await(context.Background())
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if v, ok := val.Int(); !ok || v != 1 {
		t.Fatalf("unexpected result %s", val.Write())
	}
}

func TestAPICallAsyncCancelled(t *testing.T) {
	vm := NewVM()
	if _, err := vm.Eval(`(define (one) 1)`); err != nil {
		t.Fatalf("eval: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := vm.CallAsync(ctx, "one", nil).Await(context.Background())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestAPIMarshalFunction(t *testing.T) {
	vm := NewVM()
	join, err := MarshalFunction(func(sep string, parts []string) string {
		return strings.Join(parts, sep)
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := vm.SetGlobalFunction("join", join); err != nil {
		t.Fatalf("bind: %v", err)
	}
	res, err := vm.Eval(`(join "-" (list "a" "b" "c"))`)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if s, _ := res.Str(); s != "a-b-c" {
		t.Fatalf("unexpected result %s", res.Write())
	}

	failing, err := MarshalFunction(func(n int) (int, error) {
		if n < 0 {
			return 0, errors.New("negative")
		}
		return n * 2, nil
	})
	if err != nil {
		t.Fatalf("marshal failing: %v", err)
	}
	if err := vm.SetGlobalFunction("double", failing); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if res, err := vm.Eval(`(double 21)`); err != nil {
		t.Fatalf("eval double: %v", err)
	} else if v, _ := res.Int(); v != 42 {
		t.Fatalf("expected 42, got %s", res.Write())
	}
	if _, err := vm.Eval(`(double -1)`); err == nil || !strings.Contains(err.Error(), "negative") {
		t.Fatalf("expected host error, got %v", err)
	}
	if _, err := vm.Eval(`(double "x")`); err == nil {
		t.Fatalf("expected conversion error")
	}

	for _, bad := range []any{nil, 42, func(...int) {}, func() (int, int) { return 0, 0 }} {
		if _, err := MarshalFunction(bad); err == nil {
			t.Fatalf("expected error for %T", bad)
		}
	}
}

func TestAPIMarshaling(t *testing.T) {
	type myInt int64
	type sample struct {
		Name  string
		Count uint8
		Tags  []string
	}
	cases := []struct {
		in    any
		write string
	}{
		{nil, "()"},
		{true, "#t"},
		{7, "7"},
		{myInt(-3), "-3"},
		{uint16(9), "9"},
		{2.5, "2.5"},
		{float32(1), "1.0"},
		{"s", `"s"`},
		{Char('z'), "#'z"},
		{Symbol("sym"), "sym"},
		{Cons(MustValue(1), MustValue(2)), "(1 . 2)"},
		{[]int{1, 2}, "(1 2)"},
		{[2]bool{true, false}, "(#t #f)"},
		{[]any{1, "a", []any{}}, `(1 "a" ())`},
		{map[string]int{"b": 2, "a": 1}, `(("a" . 1) ("b" . 2))`},
		{sample{Name: "n", Count: 3, Tags: []string{"x"}}, `(("Name" . "n") ("Count" . 3) ("Tags" "x"))`},
		{testCustomMarshaler{V: "c"}, `(("v" . "c"))`},
	}
	for _, c := range cases {
		v, err := NewValue(c.in)
		if err != nil {
			t.Fatalf("marshal %T: %v", c.in, err)
		}
		if got := v.Write(); got != c.write {
			t.Fatalf("marshal %T: expected %s, got %s", c.in, c.write, got)
		}
	}

	if _, err := NewValue(uint64(1 << 63)); err == nil {
		t.Fatalf("expected overflow error")
	}
	if _, err := NewValue(make(chan int)); err == nil {
		t.Fatalf("expected unsupported type error")
	}
}

func TestAPIUnmarshal(t *testing.T) {
	type sample struct {
		Name   string
		Count  uint8
		Ratio  float64
		Tags   []string
		Letter rune
		hidden int
	}
	vm := NewVM()
	res, err := vm.Eval(`(list (cons "Name" "n") (cons "Count" 3) (cons "Ratio" 1) (cons "Tags" (list "x" "y")) (cons "Letter" #'q))`)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	var s sample
	if err := Unmarshal(res, &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := sample{Name: "n", Count: 3, Ratio: 1, Tags: []string{"x", "y"}, Letter: 'q'}
	if !reflect.DeepEqual(s, want) {
		t.Fatalf("expected %+v, got %+v", want, s)
	}

	var raw any
	if err := Unmarshal(MustValue([]any{1, 2.5, "a", true}), &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	if !reflect.DeepEqual(raw, []any{int64(1), 2.5, "a", true}) {
		t.Fatalf("unexpected raw %#v", raw)
	}

	var custom testCustomUnmarshaler
	if err := Unmarshal(MustValue(testCustomMarshaler{V: "round"}), &custom); err != nil {
		t.Fatalf("custom unmarshal: %v", err)
	}
	if custom.V != "round" {
		t.Fatalf("unexpected custom value %q", custom.V)
	}

	var small int8
	if err := Unmarshal(MustValue(300), &small); err == nil {
		t.Fatalf("expected overflow error")
	}
	var n int
	if err := Unmarshal(MustValue(1.5), &n); err == nil {
		t.Fatalf("expected float to be rejected for int target")
	}
	var arr [3]int
	if err := Unmarshal(MustValue([]int{1, 2}), &arr); err == nil {
		t.Fatalf("expected length mismatch")
	}
	if err := Unmarshal(MustValue(1), n); err == nil {
		t.Fatalf("expected non-pointer target error")
	}
}

func TestAPIValueAccessors(t *testing.T) {
	pair := Cons(MustValue(1), Symbol("tail"))
	first, rest, ok := pair.Pair()
	if !ok {
		t.Fatalf("expected pair")
	}
	if v, _ := first.Int(); v != 1 {
		t.Fatalf("unexpected first %s", first.Write())
	}
	if s, ok := rest.Str(); !ok || s != "tail" || rest.Kind() != ValueSymbol {
		t.Fatalf("unexpected rest %s", rest.Write())
	}
	if _, ok := pair.List(); ok {
		t.Fatalf("improper pair is not a list")
	}
	if _, err := pair.Raw(); err == nil {
		t.Fatalf("expected Raw to reject improper lists")
	}
	if c, ok := Char('k').Char(); !ok || c != 'k' {
		t.Fatalf("unexpected char")
	}
	if b, ok := MustValue(false).Bool(); !ok || b {
		t.Fatalf("unexpected bool")
	}
	if f, ok := MustValue(3).Float(); !ok || f != 3 {
		t.Fatalf("integers must promote to float")
	}
	if _, ok := MustValue(3.0).Int(); ok {
		t.Fatalf("floats must not read as integers")
	}
	if got := MustValue([]any{"a", Char('b')}).Display(); got != "(a b)" {
		t.Fatalf("unexpected display %q", got)
	}
	if ValuePair.String() != "pair" {
		t.Fatalf("unexpected kind name %q", ValuePair.String())
	}
}

func TestAPISetGlobal(t *testing.T) {
	vm := NewVM()
	if err := vm.SetGlobal("limits", []int{3, 4}); err != nil {
		t.Fatalf("set global: %v", err)
	}
	res, err := vm.Eval(`(+ (car limits) (car (cdr limits)))`)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if v, _ := res.Int(); v != 7 {
		t.Fatalf("expected 7, got %s", res.Write())
	}
	if err := vm.SetGlobal("bad", make(chan int)); err == nil {
		t.Fatalf("expected unsupported type error")
	}
}

func TestAPILoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prog.scm")
	if err := os.WriteFile(path, []byte("(define (sq x) (* x x))\n(sq 7)\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	vm := NewVM()
	results, err := vm.LoadFile(path)
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if v, _ := results[1].Int(); v != 49 {
		t.Fatalf("expected 49, got %s", results[1].Write())
	}
	if _, err := vm.LoadFile(filepath.Join(dir, "missing.scm")); err == nil {
		t.Fatalf("expected missing file error")
	}
}

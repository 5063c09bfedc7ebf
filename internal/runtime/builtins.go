package runtime

import (
	"fmt"
	"sort"

	"github.com/xirelogy/go-scm/internal/numeric"
	"github.com/xirelogy/go-scm/internal/value"
	"github.com/xirelogy/go-scm/internal/vm"
)

// Spec describes a built-in procedure and its handler.
type Spec struct {
	Name    string
	Handler value.BuiltinFunc
}

var (
	byName = map[string]Spec{}
	order  []string
)

// Register adds a builtin to the registry. Call it from init.
func Register(spec Spec) {
	if spec.Handler == nil {
		panic(fmt.Sprintf("builtin %s has nil handler", spec.Name))
	}
	if _, exists := byName[spec.Name]; exists {
		panic(fmt.Sprintf("builtin %s already registered", spec.Name))
	}
	byName[spec.Name] = spec
	order = append(order, spec.Name)
}

// LookupByName finds a builtin by its script-visible name.
func LookupByName(name string) (Spec, bool) {
	spec, ok := byName[name]
	return spec, ok
}

// All returns all registered builtins sorted by name.
func All() []Spec {
	out := make([]Spec, 0, len(byName))
	for _, spec := range byName {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Install binds every registered builtin into the VM's global scope in
// registration order, replacing any existing binding of the same name.
func Install(machine *vm.VM) {
	for _, name := range order {
		spec := byName[name]
		machine.DefineGlobal(spec.Name, value.Builtin(spec.Name, spec.Handler))
	}
}

// ExpectArgs checks an exact argument count.
func ExpectArgs(name string, args []value.Value, n int) error {
	if len(args) != n {
		return fmt.Errorf("%s expects %d %s, got %d: %w", name, n, plural(n, "argument"), len(args), vm.ErrArity)
	}
	return nil
}

// ExpectMinArgs checks a lower bound on the argument count.
func ExpectMinArgs(name string, args []value.Value, n int) error {
	if len(args) < n {
		return fmt.Errorf("%s expects at least %d %s, got %d: %w", name, n, plural(n, "argument"), len(args), vm.ErrArity)
	}
	return nil
}

// ExpectNumber extracts the number at position i.
func ExpectNumber(name string, args []value.Value, i int) (numeric.Number, error) {
	v := args[i]
	if !value.IsNumber(v) {
		return numeric.Number{}, fmt.Errorf("%s expects a number as argument %d, got %s: %w", name, i+1, value.TypeName(v), vm.ErrType)
	}
	return v.Num, nil
}

// ExpectList flattens the proper list at position i.
func ExpectList(name string, args []value.Value, i int) ([]value.Value, error) {
	items, ok := value.ListToSlice(args[i])
	if !ok {
		return nil, fmt.Errorf("%s expects a proper list as argument %d, got %s: %w", name, i+1, value.TypeName(args[i]), vm.ErrType)
	}
	return items, nil
}

// ExpectPair extracts the pair at position i.
func ExpectPair(name string, args []value.Value, i int) (*value.Pair, error) {
	v := args[i]
	if v.Kind != value.KindPair || v.Pair == nil {
		return nil, fmt.Errorf("%s expects a pair as argument %d, got %s: %w", name, i+1, value.TypeName(v), vm.ErrType)
	}
	return v.Pair, nil
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

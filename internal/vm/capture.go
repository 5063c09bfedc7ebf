package vm

import "github.com/xirelogy/go-scm/internal/value"

// closureScope is a nested MakeClosure body met while walking a region.
// Its parameters are bound for instructions at index low and above.
type closureScope struct {
	params []string
	low    int
}

// capture copies a closure body, snapshotting free variables that resolve
// now against fr's arguments or the global scope. Names bound by the closure
// itself, or by closures nested in it, are left alone; so are names that do
// not resolve yet, which bind late. Calls to fr's parameters keep the
// argument as a fallback callee for when the name no longer resolves.
func (vm *VM) capture(fr *frame, region []value.Instruction, params []string) []value.Instruction {
	out := make([]value.Instruction, len(region))
	var nested []closureScope

	bound := func(name string) bool {
		if contains(params, name) {
			return true
		}
		for _, s := range nested {
			if contains(s.params, name) {
				return true
			}
		}
		return false
	}

	for i := len(region) - 1; i >= 0; i-- {
		for len(nested) > 0 && nested[len(nested)-1].low > i {
			nested = nested[:len(nested)-1]
		}
		in := region[i]
		switch in.Op {
		case value.OpPushVariable:
			if !bound(in.Name) {
				if v, ok := vm.resolve(fr, in.Name); ok {
					snap := value.PushValue(v)
					snap.Line = in.Line
					in = snap
				}
			}
		case value.OpCall:
			if !in.Captured && !bound(in.Name) && contains(fr.proc.Params, in.Name) {
				if v, ok := vm.resolve(fr, in.Name); ok {
					in.Captured = true
					in.Value = v
				}
			}
		case value.OpMakeClosure:
			in.Params = append([]string(nil), in.Params...)
			nested = append(nested, closureScope{params: in.Params, low: i - in.Skip})
		}
		out[i] = in
	}
	return out
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

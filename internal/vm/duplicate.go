package vm

import "github.com/xirelogy/go-scm/internal/value"

// Duplicate returns a new VM with copied globals and configuration.
// Execution state (stack/frames) is reset in the duplicate.
func (vm *VM) Duplicate() *VM {
	if vm == nil {
		return nil
	}
	dup := New()
	dup.out = vm.out
	dup.source = vm.source
	dup.maxDepth = vm.maxDepth
	dup.traceHook = vm.traceHook
	dup.instLimit = vm.instLimit

	clone := newCloneState()
	global := vm.scopes.Global()
	for _, name := range global.Names() {
		v, _ := global.Lookup(name)
		dup.DefineGlobal(name, clone.cloneValue(v))
	}
	return dup
}

// cloneState keeps shared structure shared in the copy.
type cloneState struct {
	pairs map[*value.Pair]*value.Pair
	procs map[*value.Procedure]*value.Procedure
}

func newCloneState() *cloneState {
	return &cloneState{
		pairs: make(map[*value.Pair]*value.Pair),
		procs: make(map[*value.Procedure]*value.Procedure),
	}
}

func (cs *cloneState) cloneValue(v value.Value) value.Value {
	switch v.Kind {
	case value.KindPair:
		if v.Pair == nil {
			return v
		}
		if p, ok := cs.pairs[v.Pair]; ok {
			return value.Value{Kind: value.KindPair, Pair: p}
		}
		out := &value.Pair{}
		cs.pairs[v.Pair] = out
		out.First = cs.cloneValue(v.Pair.First)
		out.Rest = cs.cloneValue(v.Pair.Rest)
		return value.Value{Kind: value.KindPair, Pair: out}
	case value.KindProcedure:
		if v.Proc == nil {
			return v
		}
		return value.Value{Kind: value.KindProcedure, Proc: cs.cloneProcedure(v.Proc)}
	default:
		return v
	}
}

func (cs *cloneState) cloneProcedure(p *value.Procedure) *value.Procedure {
	if cloned, ok := cs.procs[p]; ok {
		return cloned
	}
	out := &value.Procedure{Name: p.Name, Builtin: p.Builtin}
	cs.procs[p] = out
	if p.Params != nil {
		out.Params = append([]string(nil), p.Params...)
	}
	if p.Body != nil {
		out.Body = make([]value.Instruction, len(p.Body))
		for i, in := range p.Body {
			in.Value = cs.cloneValue(in.Value)
			if in.Params != nil {
				in.Params = append([]string(nil), in.Params...)
			}
			out.Body[i] = in
		}
	}
	return out
}

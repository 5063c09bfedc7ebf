package value

import "fmt"

// Op enumerates instruction kinds.
type Op uint8

const (
	OpPushValue Op = iota
	OpPushVariable
	OpCall
	OpMakeClosure
	OpBranchIfFalse
	OpBranchAfterTrue
	OpAssign
)

func (op Op) String() string {
	switch op {
	case OpPushValue:
		return "PUSH_VALUE"
	case OpPushVariable:
		return "PUSH_VARIABLE"
	case OpCall:
		return "CALL"
	case OpMakeClosure:
		return "MAKE_CLOSURE"
	case OpBranchIfFalse:
		return "BRANCH_IF_FALSE"
	case OpBranchAfterTrue:
		return "BRANCH_AFTER_TRUE"
	case OpAssign:
		return "ASSIGN"
	default:
		return fmt.Sprintf("OP_0x%02X", uint8(op))
	}
}

// Instruction is one unit of a flat instruction vector. Vectors are stored in
// program order and executed from the last element to the first.
type Instruction struct {
	Op Op
	// Value is the pushed constant, or the snapshotted callee of a captured Call.
	Value Value
	// Name is the variable, callee or assignment target.
	Name string
	Argc int
	// Params lists MakeClosure parameter names.
	Params []string
	// Skip is the MakeClosure body length or the number of units a branch skips.
	Skip     int
	Line     int
	Captured bool
}

func PushValue(v Value) Instruction {
	return Instruction{Op: OpPushValue, Value: v}
}

func PushVariable(name string) Instruction {
	return Instruction{Op: OpPushVariable, Name: name}
}

func Call(name string, argc int) Instruction {
	return Instruction{Op: OpCall, Name: name, Argc: argc}
}

func MakeClosure(params []string, bodyLength int) Instruction {
	return Instruction{Op: OpMakeClosure, Params: params, Skip: bodyLength}
}

func BranchIfFalse(skip int) Instruction {
	return Instruction{Op: OpBranchIfFalse, Skip: skip}
}

func BranchAfterTrue(skip int) Instruction {
	return Instruction{Op: OpBranchAfterTrue, Skip: skip}
}

func Assign(name string) Instruction {
	return Instruction{Op: OpAssign, Name: name}
}

func (in Instruction) String() string {
	switch in.Op {
	case OpPushValue:
		return fmt.Sprintf("%s %s", in.Op, Write(in.Value))
	case OpPushVariable, OpAssign:
		return fmt.Sprintf("%s %s", in.Op, in.Name)
	case OpCall:
		if in.Captured {
			return fmt.Sprintf("%s %s/%d [captured]", in.Op, in.Name, in.Argc)
		}
		return fmt.Sprintf("%s %s/%d", in.Op, in.Name, in.Argc)
	case OpMakeClosure:
		return fmt.Sprintf("%s %v %d", in.Op, in.Params, in.Skip)
	case OpBranchIfFalse, OpBranchAfterTrue:
		return fmt.Sprintf("%s %d", in.Op, in.Skip)
	default:
		return in.Op.String()
	}
}

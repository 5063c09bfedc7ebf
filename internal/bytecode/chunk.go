package bytecode

import (
	"github.com/xirelogy/go-scm/internal/token"
	"github.com/xirelogy/go-scm/internal/value"
)

// Form is one compiled top-level form: a zero-parameter procedure whose
// body is the lowered instruction vector.
type Form struct {
	Proc *value.Procedure
	Span token.Span
}

// Module is the compiled form of a source: its top-level forms in order.
type Module struct {
	Source string
	Forms  []*Form
}

// LineAt returns the source line recorded for the instruction at index, or 0.
func LineAt(body []value.Instruction, index int) int {
	if index < 0 || index >= len(body) {
		return 0
	}
	return body[index].Line
}

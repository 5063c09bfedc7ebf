package bytecode

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xirelogy/go-scm/internal/value"
)

// Disassembler formats instruction vectors as a readable assembly-style dump.
type Disassembler struct {
	w       io.Writer
	visited map[*value.Procedure]bool
	printed bool
}

// NewDisassembler constructs a disassembler that writes to w.
func NewDisassembler(w io.Writer) *Disassembler {
	return &Disassembler{
		w:       w,
		visited: make(map[*value.Procedure]bool),
	}
}

// DisassembleForm emits a dump for one compiled top-level form.
func (d *Disassembler) DisassembleForm(label string, form *Form) error {
	if form == nil || form.Proc == nil {
		return fmt.Errorf("nil form")
	}
	if label == "" {
		label = fmt.Sprintf("<form@%d:%d>", form.Span.Start.Line, form.Span.Start.Column)
	}
	return d.DisassembleProcedure(label, form.Proc)
}

// DisassembleProcedure emits a readable dump for a procedure and any
// procedure constants embedded in its body.
func (d *Disassembler) DisassembleProcedure(label string, proc *value.Procedure) error {
	if proc == nil {
		return fmt.Errorf("nil procedure")
	}
	if proc.IsBuiltin() {
		d.PrintNative(label)
		return nil
	}
	if d.visited[proc] {
		return nil
	}
	d.visited[proc] = true
	d.startSection()
	name := label
	if name == "" {
		name = proc.Name
	}
	if name == "" {
		name = "<anon>"
	}
	fmt.Fprintf(d.w, "proc %s (params=[%s], length=%d)\n",
		name, strings.Join(proc.Params, " "), len(proc.Body))
	d.disassembleBody(proc.Body)
	for idx, in := range proc.Body {
		if in.Value.Kind != value.KindProcedure || in.Value.Proc == nil {
			continue
		}
		child := in.Value.Proc
		childName := child.Name
		if childName == "" {
			childName = fmt.Sprintf("<closure@%04d>", idx)
		}
		if err := d.DisassembleProcedure(childName, child); err != nil {
			return err
		}
	}
	return nil
}

// PrintNative emits a header for a builtin procedure.
func (d *Disassembler) PrintNative(name string) {
	d.startSection()
	if name == "" {
		name = "<native>"
	}
	fmt.Fprintf(d.w, "proc %s [builtin]\n", name)
}

func (d *Disassembler) startSection() {
	if d.printed {
		fmt.Fprintln(d.w)
	}
	d.printed = true
}

// disassembleBody lists instructions in storage order; execution runs from
// the bottom of the listing up.
func (d *Disassembler) disassembleBody(body []value.Instruction) {
	for idx, in := range body {
		lineStr := "-"
		if in.Line > 0 {
			lineStr = strconv.Itoa(in.Line)
		}
		operands, comment := describe(idx, in)
		detail := operands
		if comment != "" {
			if detail != "" {
				detail += " "
			}
			detail += "; " + comment
		}
		fmt.Fprintf(d.w, "%04d %4s %-18s", idx, lineStr, in.Op.String())
		if detail != "" {
			fmt.Fprintf(d.w, " %s", detail)
		}
		fmt.Fprintln(d.w)
	}
}

func describe(idx int, in value.Instruction) (string, string) {
	switch in.Op {
	case value.OpPushValue:
		return value.Write(in.Value), ""
	case value.OpPushVariable, value.OpAssign:
		return in.Name, ""
	case value.OpCall:
		operand := fmt.Sprintf("%s %d", in.Name, in.Argc)
		if in.Captured {
			return operand, "captured " + value.Write(in.Value)
		}
		return operand, ""
	case value.OpMakeClosure:
		operand := fmt.Sprintf("[%s] %d", strings.Join(in.Params, " "), in.Skip)
		if in.Skip == 0 {
			return operand, "empty body"
		}
		return operand, fmt.Sprintf("body=%04d..%04d", idx-in.Skip, idx-1)
	case value.OpBranchIfFalse, value.OpBranchAfterTrue:
		target := idx - in.Skip - 1
		if target < 0 {
			return strconv.Itoa(in.Skip), "-> end"
		}
		return strconv.Itoa(in.Skip), fmt.Sprintf("-> %04d", target)
	default:
		return "", ""
	}
}

package vm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xirelogy/go-scm/internal/bytecode"
	"github.com/xirelogy/go-scm/internal/value"
)

// TraceInfo describes a single instruction dispatch for debugging/tracing.
type TraceInfo struct {
	Op          value.Op
	Instruction value.Instruction
	Procedure   string
	Source      string
	Line        int
	IP          int
	Depth       int
}

// TraceHook observes instruction dispatch for debugging/profiling.
type TraceHook func(TraceInfo)

// FrameInfo captures the call frame at the time of an error or trace event.
type FrameInfo struct {
	Procedure string
	Source    string
	Line      int
	IP        int
}

// RuntimeError carries source/stack information for VM failures.
type RuntimeError struct {
	Message string
	Frame   FrameInfo
	Stack   []FrameInfo
	Cause   error
}

func (e *RuntimeError) Error() string {
	locParts := []string{}
	if e.Frame.Source != "" {
		if e.Frame.Line > 0 {
			locParts = append(locParts, fmt.Sprintf("%s:%d", e.Frame.Source, e.Frame.Line))
		} else {
			locParts = append(locParts, e.Frame.Source)
		}
	} else if e.Frame.Line > 0 {
		locParts = append(locParts, fmt.Sprintf("line %d", e.Frame.Line))
	}
	if e.Frame.Procedure != "" {
		locParts = append(locParts, fmt.Sprintf("in %s", e.Frame.Procedure))
	}
	loc := strings.Join(locParts, " ")
	if loc != "" {
		return fmt.Sprintf("%s: %s", loc, e.Message)
	}
	return e.Message
}

// Unwrap exposes the original error, if any.
func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

func (vm *VM) errorf(fr *frame, cause error, format string, args ...interface{}) (value.Value, error) {
	msg := fmt.Sprintf(format, args...)
	return value.Nil(), vm.newRuntimeError(fr, msg, cause)
}

// wrapError attaches frame context to errors raised below fr. Errors that
// already carry it pass through unchanged.
func (vm *VM) wrapError(fr *frame, err error) (value.Value, error) {
	if err == nil {
		return value.Nil(), nil
	}
	var rtErr *RuntimeError
	if errors.As(err, &rtErr) {
		return value.Nil(), err
	}
	return value.Nil(), vm.newRuntimeError(fr, err.Error(), err)
}

func (vm *VM) newRuntimeError(fr *frame, msg string, cause error) *RuntimeError {
	return &RuntimeError{
		Message: msg,
		Frame:   vm.frameInfo(fr),
		Stack:   vm.stackTrace(),
		Cause:   cause,
	}
}

func (vm *VM) trace(fr *frame, in value.Instruction) {
	if vm.traceHook == nil {
		return
	}
	info := vm.frameInfo(fr)
	vm.traceHook(TraceInfo{
		Op:          in.Op,
		Instruction: in,
		Procedure:   info.Procedure,
		Source:      info.Source,
		Line:        info.Line,
		IP:          info.IP,
		Depth:       len(vm.frames),
	})
}

// stackTrace lists active frames innermost first.
func (vm *VM) stackTrace() []FrameInfo {
	if len(vm.frames) == 0 {
		return nil
	}
	trace := make([]FrameInfo, 0, len(vm.frames))
	for i := len(vm.frames) - 1; i >= 0; i-- {
		trace = append(trace, vm.frameInfo(vm.frames[i]))
	}
	return trace
}

func (vm *VM) frameInfo(fr *frame) FrameInfo {
	if fr == nil || fr.proc == nil {
		return FrameInfo{Source: vm.source}
	}
	return FrameInfo{
		Procedure: procName(fr.proc),
		Source:    vm.source,
		Line:      bytecode.LineAt(fr.proc.Body, fr.ip),
		IP:        fr.ip,
	}
}

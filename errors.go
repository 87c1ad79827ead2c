package stackvm

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by recoverable (non-terminating) operations,
// such as module-index resolution performed before a handler ever touches
// the stack. Handlers convert these into a Terminate result; nothing above
// the dispatch loop ever sees a bare error.
var (
	errFrameIndexOutOfBounds = errors.New("frame index out of bounds")
	errReadOnlyDataSection   = errors.New("store attempted against a read-only data section")
	errOperandUnderflow      = errors.New("operand underflow")
	errOutOfBounds           = errors.New("access exceeds declared slot or region length")
)

// TerminateCode identifies why the dispatch loop stopped running a program.
// The numeric values are part of the embedder-facing contract (spec.md §7)
// and must not be renumbered once assigned.
type TerminateCode uint32

const (
	TerminatePanic TerminateCode = iota
	TerminateUnreachable
	TerminateDebug
	TerminateStackOverflow
	TerminateOutOfBounds
	TerminateUnsupportedFloatingPointVariant
	TerminateInvalidOpcode
	TerminateTypeMismatch
	// TerminateOperandUnderflow covers the panic->recover conversion path:
	// spec.md §4.2 specifies pop/peek "fail" on underflow, and §4.7's
	// Termination note says stack bounds failures panic and are converted
	// by the top-level recover.
	TerminateOperandUnderflow
)

func (c TerminateCode) String() string {
	switch c {
	case TerminatePanic:
		return "panic"
	case TerminateUnreachable:
		return "unreachable"
	case TerminateDebug:
		return "debug"
	case TerminateStackOverflow:
		return "stack overflow"
	case TerminateOutOfBounds:
		return "out of bounds"
	case TerminateUnsupportedFloatingPointVariant:
		return "unsupported floating point variant"
	case TerminateInvalidOpcode:
		return "invalid opcode"
	case TerminateTypeMismatch:
		return "type mismatch"
	case TerminateOperandUnderflow:
		return "operand underflow"
	default:
		return fmt.Sprintf("terminate(%d)", uint32(c))
	}
}

// TerminateResult is what Run returns once the dispatch loop stops, whether
// by encountering an explicit terminator, an enforced invariant, a panic
// recovered at the top level, or normal program completion.
type TerminateResult struct {
	Code    TerminateCode
	Payload uint32
	// Err carries the Go-level error that triggered the stop, when the
	// cause originated below the dispatch loop (e.g. a recovered panic).
	// Nil for explicit panic/unreachable/debug instructions, which only
	// ever carry Payload.
	Err error
}

func (r TerminateResult) Error() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %v", r.Code, r.Err)
	}
	if r.Payload != 0 {
		return fmt.Sprintf("%s(%d)", r.Code, r.Payload)
	}
	return r.Code.String()
}

func terminate(code TerminateCode) HandleResult {
	return HandleResult{Kind: resultTerminate, Code: code}
}

func terminateWithPayload(code TerminateCode, payload uint32) HandleResult {
	return HandleResult{Kind: resultTerminate, Code: code, Payload: payload}
}

package stackvm

import "encoding/binary"

// dispatch.go implements the handler table and the cooperative dispatch
// loop from spec.md §4.5, following the same "read opcode, index a flat
// function-pointer table, act on the result" shape as gvm/vm/exec.go's
// main interpreter loop, generalized to the tagged HandleResult union the
// spec requires (Move/Jump/End/Terminate) instead of gvm's direct
// side-effecting switch.

type resultKind uint8

const (
	resultMove resultKind = iota
	resultJump
	resultEnd
	resultTerminate
)

// HandleResult is the value every handler returns; exactly one of its
// fields is meaningful, selected by Kind.
type HandleResult struct {
	Kind    resultKind
	Delta   int32
	Target  ProgramCounter
	Code    TerminateCode
	Payload uint32
}

// Move advances the PC by delta bytes within the current function.
func Move(delta int32) HandleResult { return HandleResult{Kind: resultMove, Delta: delta} }

// Jump replaces the PC wholesale (cross-function return, break out of a
// function frame).
func Jump(pc ProgramCounter) HandleResult { return HandleResult{Kind: resultJump, Target: pc} }

// End is like Jump but additionally signals the dispatch loop driving a
// nested callback invocation to stop (spec.md §4.8 step 5).
func End(pc ProgramCounter) HandleResult { return HandleResult{Kind: resultEnd, Target: pc} }

// handlerFunc is the uniform signature every opcode handler implements.
type handlerFunc func(*ThreadContext) HandleResult

// handlers is the flat, pre-populated dispatch table; unassigned slots are
// left nil and resolved to handleInvalidOpcode at lookup time so the
// table literal doesn't need an explicit fill pass over 0xD00 entries.
var handlers [MaxOpcode]handlerFunc

func register(op Opcode, fn handlerFunc) {
	handlers[op] = fn
}

func init() {
	register(OpNop, handleNop)
	register(OpZero, handleZero)
	register(OpDrop, handleDrop)
	register(OpDuplicate, handleDuplicate)
	register(OpSwap, handleSwap)
	register(OpSelectNez, handleSelectNez)
	register(OpI32Imm, handleI32Imm)
	register(OpI64Imm, handleI64Imm)
	register(OpF32Imm, handleF32Imm)
	register(OpF64Imm, handleF64Imm)

	register(OpBlock, handleBlock)
	register(OpBlockAlt, handleBlockAlt)
	register(OpBlockNez, handleBlockNez)
	register(OpEnd, handleEnd)
	register(OpBreak, handleBreak)
	register(OpBreakAlt, handleBreakAlt)
	register(OpBreakNez, handleBreakNez)
	register(OpRecur, handleRecur)
	register(OpRecurNez, handleRecurNez)

	register(OpCall, handleCall)
	register(OpPanic, handlePanic)
	register(OpUnreachable, handleUnreachable)
	register(OpDebug, handleDebug)

	register(OpHostAddrLocal, handleHostAddrLocal)
	register(OpHostAddrData, handleHostAddrData)
	register(OpHostAddrHeap, handleHostAddrHeap)
	register(OpHostCopyFromHeap, handleHostCopyFromHeap)
	register(OpHostCopyToHeap, handleHostCopyToHeap)
	register(OpHostAddrFunc, handleHostAddrFunc)

	registerDataHandlers()
	registerLocalHandlers()
	registerMathHandlers()
	registerHeapHandlers()
}

func handleInvalidOpcode(ctx *ThreadContext) HandleResult {
	return terminate(TerminateInvalidOpcode)
}

func handlerFor(op Opcode) handlerFunc {
	if int(op) >= len(handlers) || handlers[op] == nil {
		return handleInvalidOpcode
	}
	return handlers[op]
}

// readOpcode reads the 2-byte opcode at pc within the module's code blob.
func readOpcode(code []byte, addr uint32) Opcode {
	return Opcode(binary.LittleEndian.Uint16(code[addr : addr+2]))
}

// Run drives the dispatch loop starting at ctx.PC until a handler returns
// End or Terminate, converting any recovered panic (bounds-check failures
// panic per spec.md §4.7 "Termination") into a TerminateResult the same
// way a Terminate result would have been returned.
func (ctx *ThreadContext) Run() (result TerminateResult) {
	defer func() {
		if r := recover(); r != nil {
			result = panicToTerminateResult(r)
		}
	}()

	for {
		done, r := ctx.step()
		if done {
			return r
		}
	}
}

// Step executes exactly one instruction and reports whether the dispatch
// loop would have stopped there, recovering panics the same way Run does.
// It exists for cmd/stackvm-demo's -debug single-step mode, the counterpart
// to gvm/main.go's ExecNextInstruction-driven stepper; Run itself never
// calls Step; both share the unexported step to avoid duplicating the
// dispatch/PC-update logic.
func (ctx *ThreadContext) Step() (done bool, result TerminateResult) {
	defer func() {
		if r := recover(); r != nil {
			done, result = true, panicToTerminateResult(r)
		}
	}()
	return ctx.step()
}

func (ctx *ThreadContext) step() (done bool, result TerminateResult) {
	mod := ctx.module(ctx.PC.ModuleIndex)
	op := readOpcode(mod.Code, ctx.PC.InstructionAddress)
	hr := handlerFor(op)(ctx)

	switch hr.Kind {
	case resultMove:
		ctx.PC.InstructionAddress = uint32(int64(ctx.PC.InstructionAddress) + int64(hr.Delta))
		return false, TerminateResult{}
	case resultJump:
		ctx.PC = hr.Target
		return false, TerminateResult{}
	case resultEnd:
		ctx.PC = hr.Target
		return true, TerminateResult{Code: terminateOK}
	default: // resultTerminate
		return true, TerminateResult{Code: hr.Code, Payload: hr.Payload}
	}
}

// terminateOK is not part of the public error taxonomy in spec.md §7; it
// marks a dispatch loop that exited via its own End(pc) rather than an
// explicit terminator or a failed invariant. Callers distinguish success
// from failure with TerminateResult.IsOK, not by comparing codes directly.
const terminateOK TerminateCode = 1 << 16

// IsOK reports whether the dispatch loop ended normally.
func (r TerminateResult) IsOK() bool { return r.Code == terminateOK }

func panicToTerminateResult(r interface{}) TerminateResult {
	if err, ok := r.(error); ok {
		return TerminateResult{Code: TerminateOperandUnderflow, Err: err}
	}
	return TerminateResult{Code: TerminatePanic, Err: nil}
}

package stackvm

// handlers_control.go implements the block/break/recur control-flow family
// from spec.md §4.7. These are the handlers that touch frame creation,
// removal and reset directly; everything else in the opcode space is a
// pure stack-in/stack-out operation. Grounded on gvm/vm/exec.go's
// block/jump handling, generalized to the frame-based semantics the spec
// requires instead of gvm's flat jump-table interpreter.

func blockParams(ctx *ThreadContext, typeIndex uint32) (uint16, uint16) {
	t := ctx.module(ctx.PC.ModuleIndex).Types[typeIndex]
	return t.ParamsCount(), t.ResultsCount()
}

func handleBlock(ctx *ThreadContext) HandleResult {
	typeIndex, localListIndex := ctx.paramI32I32()
	params, results := blockParams(ctx, typeIndex)
	if err := ctx.Stack.CreateFrame(params, results, localListIndex, localAllocBytes(ctx, localListIndex), nil); err != nil {
		return terminate(TerminateStackOverflow)
	}
	return Move(12)
}

func handleBlockAlt(ctx *ThreadContext) HandleResult {
	typeIndex, localListIndex, nextInstOffset := ctx.paramI32I32I32()
	cond, err := ctx.Stack.PopI32S()
	if err != nil {
		return terminate(TerminateOperandUnderflow)
	}
	params, results := blockParams(ctx, typeIndex)
	if err := ctx.Stack.CreateFrame(params, results, localListIndex, localAllocBytes(ctx, localListIndex), nil); err != nil {
		return terminate(TerminateStackOverflow)
	}
	if cond == 0 {
		return Move(int32(nextInstOffset))
	}
	return Move(16)
}

func handleBlockNez(ctx *ThreadContext) HandleResult {
	localListIndex, nextInstOffset := ctx.paramI32I32()
	cond, err := ctx.Stack.PopI32S()
	if err != nil {
		return terminate(TerminateOperandUnderflow)
	}
	if cond == 0 {
		return Move(int32(nextInstOffset))
	}
	if err := ctx.Stack.CreateFrame(0, 0, localListIndex, localAllocBytes(ctx, localListIndex), nil); err != nil {
		return terminate(TerminateStackOverflow)
	}
	return Move(12)
}

func localAllocBytes(ctx *ThreadContext, localListIndex uint32) uint32 {
	return ctx.module(ctx.PC.ModuleIndex).LocalVariableLists[localListIndex].AllocateBytes
}

func handleEnd(ctx *ThreadContext) HandleResult {
	return doBreak(ctx, 0, 2)
}

func handleBreak(ctx *ThreadContext) HandleResult {
	layers, nextInstOffset := ctx.paramI16I32()
	return doBreak(ctx, uint32(layers), int32(nextInstOffset))
}

func handleBreakAlt(ctx *ThreadContext) HandleResult {
	nextInstOffset := ctx.paramI32()
	return doBreak(ctx, 0, int32(nextInstOffset))
}

func handleBreakNez(ctx *ThreadContext) HandleResult {
	layers, nextInstOffset := ctx.paramI16I32()
	cond, err := ctx.Stack.PopI32S()
	if err != nil {
		return terminate(TerminateOperandUnderflow)
	}
	if cond == 0 {
		return Move(8)
	}
	return doBreak(ctx, uint32(layers), int32(nextInstOffset))
}

// doBreak implements remove_frames(layers) and the Jump/End selection
// spec.md §4.7's break_ describes.
func doBreak(ctx *ThreadContext, layers uint32, nextInstOffset int32) HandleResult {
	rpc, err := ctx.Stack.RemoveFrames(layers)
	if err != nil {
		return terminate(TerminateOutOfBounds)
	}
	if rpc == nil {
		return Move(nextInstOffset)
	}
	if rpc.HasExitBit() {
		stripped := rpc.WithoutExitBit()
		return End(ProgramCounter{
			ModuleIndex:        stripped.ModuleIndex,
			FunctionIndex:      stripped.FunctionInternalIndex,
			InstructionAddress: stripped.InstructionAddress,
		})
	}
	return Jump(ProgramCounter{
		ModuleIndex:        rpc.ModuleIndex,
		FunctionIndex:      rpc.FunctionInternalIndex,
		InstructionAddress: rpc.InstructionAddress,
	})
}

func handleRecur(ctx *ThreadContext) HandleResult {
	layers, startInstOffset := ctx.paramI16I32()
	return doRecur(ctx, uint32(layers), int32(startInstOffset))
}

func handleRecurNez(ctx *ThreadContext) HandleResult {
	layers, startInstOffset := ctx.paramI16I32()
	cond, err := ctx.Stack.PopI32S()
	if err != nil {
		return terminate(TerminateOperandUnderflow)
	}
	if cond == 0 {
		return Move(8)
	}
	return doRecur(ctx, uint32(layers), int32(startInstOffset))
}

// doRecur implements reset_frames(layers) and the subsequent PC transfer
// spec.md §4.7's recur describes: back to the top of the target function
// if it was a function frame (tail-call elimination), or backwards to the
// instruction after the block's opening otherwise.
func doRecur(ctx *ThreadContext, layers uint32, startInstOffset int32) HandleResult {
	isFunctionFrame, err := ctx.Stack.ResetFrames(layers)
	if err != nil {
		return terminate(TerminateOutOfBounds)
	}
	if isFunctionFrame {
		// The reset frame belongs to the function already executing (recur
		// never crosses a function boundary by construction), so its code
		// start is this function's own CodeOffset.
		codeOffset := ctx.module(ctx.PC.ModuleIndex).Functions[ctx.PC.FunctionIndex].CodeOffset
		delta := int32(codeOffset) - int32(ctx.PC.InstructionAddress)
		return Move(delta)
	}
	return Move(-startInstOffset)
}

func handleCall(ctx *ThreadContext) HandleResult {
	funcPublicIndex := ctx.paramI32()
	mod := ctx.module(ctx.PC.ModuleIndex)
	entry := mod.FunctionPublicIndex[funcPublicIndex]
	target := ctx.module(entry.TargetModuleIndex)
	fn := target.Functions[entry.InternalIndex]
	typ := target.Types[fn.TypeIndex]

	ret := ReturnPC{
		ModuleIndex:           ctx.PC.ModuleIndex,
		FunctionInternalIndex: ctx.PC.FunctionIndex,
		InstructionAddress:    ctx.PC.InstructionAddress + 8,
	}
	localAlloc := target.LocalVariableLists[fn.LocalListIndex].AllocateBytes
	if err := ctx.Stack.CreateFrame(typ.ParamsCount(), typ.ResultsCount(), fn.LocalListIndex, localAlloc, &ret); err != nil {
		return terminate(TerminateStackOverflow)
	}
	return Jump(ProgramCounter{
		ModuleIndex:        entry.TargetModuleIndex,
		FunctionIndex:      entry.InternalIndex,
		InstructionAddress: fn.CodeOffset,
	})
}

func handlePanic(ctx *ThreadContext) HandleResult {
	return terminate(TerminatePanic)
}

func handleUnreachable(ctx *ThreadContext) HandleResult {
	code := ctx.paramI32()
	return terminateWithPayload(TerminateUnreachable, code)
}

func handleDebug(ctx *ThreadContext) HandleResult {
	code := ctx.paramI32()
	return terminateWithPayload(TerminateDebug, code)
}

package stackvm

// handlers_data.go implements the fundamental stack-shuffle opcodes and
// the data-section load/store family in its three addressing modes:
// short (index and offset both immediate), extend (index immediate,
// offset popped), dynamic (module index, public index and offset all
// popped). Grounded on gvm/vm/exec.go's push/pop/dup/swap handlers,
// extended with a width-and-sign table covering all nine load/store
// widths.

func handleNop(ctx *ThreadContext) HandleResult { return Move(2) }

func handleZero(ctx *ThreadContext) HandleResult {
	ctx.Stack.PushI64(0)
	return Move(2)
}

func handleDrop(ctx *ThreadContext) HandleResult {
	if err := ctx.Stack.Drop(); err != nil {
		return terminate(TerminateOperandUnderflow)
	}
	return Move(2)
}

func handleDuplicate(ctx *ThreadContext) HandleResult {
	if err := ctx.Stack.Duplicate(); err != nil {
		return terminate(TerminateOperandUnderflow)
	}
	return Move(2)
}

func handleSwap(ctx *ThreadContext) HandleResult {
	if err := ctx.Stack.Swap(); err != nil {
		return terminate(TerminateOperandUnderflow)
	}
	return Move(2)
}

// handleSelectNez pops test (top), then false-branch, then true-branch
// (bottom), and pushes whichever branch the test selected.
func handleSelectNez(ctx *ThreadContext) HandleResult {
	test, err := ctx.Stack.PopI32S()
	if err != nil {
		return terminate(TerminateOperandUnderflow)
	}
	falseVal, err := ctx.Stack.PopI64()
	if err != nil {
		return terminate(TerminateOperandUnderflow)
	}
	trueVal, err := ctx.Stack.PopI64()
	if err != nil {
		return terminate(TerminateOperandUnderflow)
	}
	if test != 0 {
		ctx.Stack.PushI64(trueVal)
	} else {
		ctx.Stack.PushI64(falseVal)
	}
	return Move(2)
}

func handleI32Imm(ctx *ThreadContext) HandleResult {
	v := ctx.paramI32()
	ctx.Stack.PushI32U(v)
	return Move(8)
}

func handleI64Imm(ctx *ThreadContext) HandleResult {
	hi, lo := ctx.paramI32I32()
	ctx.Stack.PushI64(int64(uint64(hi)<<32 | uint64(lo)))
	return Move(12)
}

func handleF32Imm(ctx *ThreadContext) HandleResult {
	bits := ctx.paramI32()
	ctx.Stack.PushI32U(bits)
	return Move(8)
}

func handleF64Imm(ctx *ThreadContext) HandleResult {
	hi, lo := ctx.paramI32I32()
	ctx.Stack.PushI64(int64(uint64(hi)<<32 | uint64(lo)))
	return Move(12)
}

// --- data load/store, shared core ---

func dataLoad(ctx *ThreadContext, moduleIndex, publicIndex, offset uint32, width opWidth, instrLen uint32) HandleResult {
	accessLength := widthBytes(width)
	accessor, _, item, err := ctx.getTargetDataObject(moduleIndex, publicIndex, offset, accessLength)
	if err != nil {
		return terminate(TerminateOutOfBounds)
	}
	switch width {
	case widthI64:
		ctx.Stack.PushI64(accessor.LoadI64(item, offset))
	case widthF32:
		v, ferr := accessor.LoadF32(item, offset)
		if ferr != nil {
			return terminate(TerminateUnsupportedFloatingPointVariant)
		}
		ctx.Stack.PushF32(v)
	case widthF64:
		v, ferr := accessor.LoadF64(item, offset)
		if ferr != nil {
			return terminate(TerminateUnsupportedFloatingPointVariant)
		}
		ctx.Stack.PushF64(v)
	}
	return Move(int32(instrLen))
}

func dataLoadSigned(ctx *ThreadContext, moduleIndex, publicIndex, offset uint32, width opWidth, signed bool, instrLen uint32) HandleResult {
	accessLength := widthBytes(width)
	accessor, _, item, err := ctx.getTargetDataObject(moduleIndex, publicIndex, offset, accessLength)
	if err != nil {
		return terminate(TerminateOutOfBounds)
	}
	switch width {
	case widthI32:
		if signed {
			ctx.Stack.PushI32S(accessor.LoadI32S(item, offset))
		} else {
			ctx.Stack.PushI32U(accessor.LoadI32U(item, offset))
		}
	case widthI16:
		if signed {
			ctx.Stack.PushI16S(accessor.LoadI16S(item, offset))
		} else {
			ctx.Stack.PushI16U(accessor.LoadI16U(item, offset))
		}
	case widthI8:
		if signed {
			ctx.Stack.PushI8S(accessor.LoadI8S(item, offset))
		} else {
			ctx.Stack.PushI8U(accessor.LoadI8U(item, offset))
		}
	}
	return Move(int32(instrLen))
}

func dataStore(ctx *ThreadContext, moduleIndex, publicIndex, offset uint32, width opWidth, instrLen uint32) HandleResult {
	accessLength := widthBytes(width)
	accessor, _, item, err := ctx.getTargetDataObject(moduleIndex, publicIndex, offset, accessLength)
	if err != nil {
		return terminate(TerminateOutOfBounds)
	}
	switch width {
	case widthI64:
		v, perr := ctx.Stack.PopI64()
		if perr != nil {
			return terminate(TerminateOperandUnderflow)
		}
		accessor.StoreI64(item, offset, v)
	case widthI32:
		v, perr := ctx.Stack.PopI32U()
		if perr != nil {
			return terminate(TerminateOperandUnderflow)
		}
		accessor.StoreI32(item, offset, v)
	case widthI16:
		v, perr := ctx.Stack.PopI32U()
		if perr != nil {
			return terminate(TerminateOperandUnderflow)
		}
		accessor.StoreI16(item, offset, uint16(v))
	case widthI8:
		v, perr := ctx.Stack.PopI32U()
		if perr != nil {
			return terminate(TerminateOperandUnderflow)
		}
		accessor.StoreI8(item, offset, uint8(v))
	case widthF32:
		v, perr := ctx.Stack.PopF32()
		if perr != nil {
			return terminate(TerminateOperandUnderflow)
		}
		accessor.StoreF32(item, offset, v)
	case widthF64:
		v, perr := ctx.Stack.PopF64()
		if perr != nil {
			return terminate(TerminateOperandUnderflow)
		}
		accessor.StoreF64(item, offset, v)
	}
	return Move(int32(instrLen))
}

func widthBytes(w opWidth) uint32 {
	switch w {
	case widthI64, widthF64:
		return 8
	case widthI32, widthF32:
		return 4
	case widthI16:
		return 2
	case widthI8:
		return 1
	default:
		return 8
	}
}

func registerDataHandlers() {
	// short form: public_index and offset both embedded immediates.
	register(OpDataLoadI64, func(ctx *ThreadContext) HandleResult {
		idx, off := ctx.paramI32I32()
		return dataLoad(ctx, ctx.PC.ModuleIndex, idx, off, widthI64, 12)
	})
	register(OpDataLoadI32S, func(ctx *ThreadContext) HandleResult {
		idx, off := ctx.paramI32I32()
		return dataLoadSigned(ctx, ctx.PC.ModuleIndex, idx, off, widthI32, true, 12)
	})
	register(OpDataLoadI32U, func(ctx *ThreadContext) HandleResult {
		idx, off := ctx.paramI32I32()
		return dataLoadSigned(ctx, ctx.PC.ModuleIndex, idx, off, widthI32, false, 12)
	})
	register(OpDataLoadI16S, func(ctx *ThreadContext) HandleResult {
		idx, off := ctx.paramI32I32()
		return dataLoadSigned(ctx, ctx.PC.ModuleIndex, idx, off, widthI16, true, 12)
	})
	register(OpDataLoadI16U, func(ctx *ThreadContext) HandleResult {
		idx, off := ctx.paramI32I32()
		return dataLoadSigned(ctx, ctx.PC.ModuleIndex, idx, off, widthI16, false, 12)
	})
	register(OpDataLoadI8S, func(ctx *ThreadContext) HandleResult {
		idx, off := ctx.paramI32I32()
		return dataLoadSigned(ctx, ctx.PC.ModuleIndex, idx, off, widthI8, true, 12)
	})
	register(OpDataLoadI8U, func(ctx *ThreadContext) HandleResult {
		idx, off := ctx.paramI32I32()
		return dataLoadSigned(ctx, ctx.PC.ModuleIndex, idx, off, widthI8, false, 12)
	})
	register(OpDataLoadF32, func(ctx *ThreadContext) HandleResult {
		idx, off := ctx.paramI32I32()
		return dataLoad(ctx, ctx.PC.ModuleIndex, idx, off, widthF32, 12)
	})
	register(OpDataLoadF64, func(ctx *ThreadContext) HandleResult {
		idx, off := ctx.paramI32I32()
		return dataLoad(ctx, ctx.PC.ModuleIndex, idx, off, widthF64, 12)
	})
	register(OpDataStoreI64, func(ctx *ThreadContext) HandleResult {
		idx, off := ctx.paramI32I32()
		return dataStore(ctx, ctx.PC.ModuleIndex, idx, off, widthI64, 12)
	})
	register(OpDataStoreI32, func(ctx *ThreadContext) HandleResult {
		idx, off := ctx.paramI32I32()
		return dataStore(ctx, ctx.PC.ModuleIndex, idx, off, widthI32, 12)
	})
	register(OpDataStoreI16, func(ctx *ThreadContext) HandleResult {
		idx, off := ctx.paramI32I32()
		return dataStore(ctx, ctx.PC.ModuleIndex, idx, off, widthI16, 12)
	})
	register(OpDataStoreI8, func(ctx *ThreadContext) HandleResult {
		idx, off := ctx.paramI32I32()
		return dataStore(ctx, ctx.PC.ModuleIndex, idx, off, widthI8, 12)
	})
	register(OpDataStoreF32, func(ctx *ThreadContext) HandleResult {
		idx, off := ctx.paramI32I32()
		return dataStore(ctx, ctx.PC.ModuleIndex, idx, off, widthF32, 12)
	})
	register(OpDataStoreF64, func(ctx *ThreadContext) HandleResult {
		idx, off := ctx.paramI32I32()
		return dataStore(ctx, ctx.PC.ModuleIndex, idx, off, widthF64, 12)
	})

	// extend form: public_index is the single embedded immediate, offset
	// is popped from the stack.
	registerDataExtend(OpDataExtendLoadI64, widthI64, true, true)
	registerDataExtend(OpDataExtendLoadI32S, widthI32, true, true)
	registerDataExtend(OpDataExtendLoadI32U, widthI32, false, true)
	registerDataExtend(OpDataExtendLoadI16S, widthI16, true, true)
	registerDataExtend(OpDataExtendLoadI16U, widthI16, false, true)
	registerDataExtend(OpDataExtendLoadI8S, widthI8, true, true)
	registerDataExtend(OpDataExtendLoadI8U, widthI8, false, true)
	registerDataExtend(OpDataExtendLoadF32, widthF32, true, true)
	registerDataExtend(OpDataExtendLoadF64, widthF64, true, true)
	registerDataExtend(OpDataExtendStoreI64, widthI64, true, false)
	registerDataExtend(OpDataExtendStoreI32, widthI32, true, false)
	registerDataExtend(OpDataExtendStoreI16, widthI16, true, false)
	registerDataExtend(OpDataExtendStoreI8, widthI8, true, false)
	registerDataExtend(OpDataExtendStoreF32, widthF32, true, false)
	registerDataExtend(OpDataExtendStoreF64, widthF64, true, false)

	// dynamic form: module_index, public_index and offset all popped.
	registerDataDyn(OpDataDynLoadI64, widthI64, true, true)
	registerDataDyn(OpDataDynLoadI32S, widthI32, true, true)
	registerDataDyn(OpDataDynLoadI32U, widthI32, false, true)
	registerDataDyn(OpDataDynLoadI16S, widthI16, true, true)
	registerDataDyn(OpDataDynLoadI16U, widthI16, false, true)
	registerDataDyn(OpDataDynLoadI8S, widthI8, true, true)
	registerDataDyn(OpDataDynLoadI8U, widthI8, false, true)
	registerDataDyn(OpDataDynLoadF32, widthF32, true, true)
	registerDataDyn(OpDataDynLoadF64, widthF64, true, true)
	registerDataDyn(OpDataDynStoreI64, widthI64, true, false)
	registerDataDyn(OpDataDynStoreI32, widthI32, true, false)
	registerDataDyn(OpDataDynStoreI16, widthI16, true, false)
	registerDataDyn(OpDataDynStoreI8, widthI8, true, false)
	registerDataDyn(OpDataDynStoreF32, widthF32, true, false)
	registerDataDyn(OpDataDynStoreF64, widthF64, true, false)
}

func registerDataExtend(op Opcode, width opWidth, signed bool, isLoad bool) {
	register(op, func(ctx *ThreadContext) HandleResult {
		publicIndex := uint32(ctx.paramI16())
		offset, err := ctx.Stack.PopI32U()
		if err != nil {
			return terminate(TerminateOperandUnderflow)
		}
		if isLoad {
			if width == widthI32 || width == widthI16 || width == widthI8 {
				return dataLoadSigned(ctx, ctx.PC.ModuleIndex, publicIndex, offset, width, signed, 4)
			}
			return dataLoad(ctx, ctx.PC.ModuleIndex, publicIndex, offset, width, 4)
		}
		return dataStore(ctx, ctx.PC.ModuleIndex, publicIndex, offset, width, 4)
	})
}

func registerDataDyn(op Opcode, width opWidth, signed bool, isLoad bool) {
	register(op, func(ctx *ThreadContext) HandleResult {
		offset, err := ctx.Stack.PopI32U()
		if err != nil {
			return terminate(TerminateOperandUnderflow)
		}
		publicIndex, err := ctx.Stack.PopI32U()
		if err != nil {
			return terminate(TerminateOperandUnderflow)
		}
		moduleIndex, err := ctx.Stack.PopI32U()
		if err != nil {
			return terminate(TerminateOperandUnderflow)
		}
		if isLoad {
			if width == widthI32 || width == widthI16 || width == widthI8 {
				return dataLoadSigned(ctx, moduleIndex, publicIndex, offset, width, signed, 2)
			}
			return dataLoad(ctx, moduleIndex, publicIndex, offset, width, 2)
		}
		return dataStore(ctx, moduleIndex, publicIndex, offset, width, 2)
	})
}

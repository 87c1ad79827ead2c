package stackvm

// handlers_local.go mirrors handlers_data.go for the local-variable
// addressing family (spec.md §4.6 "Local load/store handlers are
// analogous but go through the Stack-as-memory"). Short form embeds
// reversed_index, local_variable_index and offset as immediates; extend
// form embeds only local_variable_index, pops the offset, and always
// addresses the current frame (reversed_index 0).

func localLoad(ctx *ThreadContext, reversedIndex, localIndex, offset uint32, width opWidth, instrLen uint32) HandleResult {
	addr, err := ctx.getLocalVariableAddress(reversedIndex, localIndex, offset, widthBytes(width))
	if err != nil {
		return terminate(TerminateOutOfBounds)
	}
	switch width {
	case widthI64:
		ctx.Stack.PushI64(ctx.Stack.ReadLocalI64(addr))
	case widthF32:
		v, ferr := ctx.Stack.ReadLocalF32(addr)
		if ferr != nil {
			return terminate(TerminateUnsupportedFloatingPointVariant)
		}
		ctx.Stack.PushF32(v)
	case widthF64:
		v, ferr := ctx.Stack.ReadLocalF64(addr)
		if ferr != nil {
			return terminate(TerminateUnsupportedFloatingPointVariant)
		}
		ctx.Stack.PushF64(v)
	}
	return Move(int32(instrLen))
}

func localLoadSigned(ctx *ThreadContext, reversedIndex, localIndex, offset uint32, width opWidth, signed bool, instrLen uint32) HandleResult {
	addr, err := ctx.getLocalVariableAddress(reversedIndex, localIndex, offset, widthBytes(width))
	if err != nil {
		return terminate(TerminateOutOfBounds)
	}
	switch width {
	case widthI32:
		if signed {
			ctx.Stack.PushI32S(ctx.Stack.ReadLocalI32S(addr))
		} else {
			ctx.Stack.PushI32U(ctx.Stack.ReadLocalI32U(addr))
		}
	case widthI16:
		if signed {
			ctx.Stack.PushI16S(ctx.Stack.ReadLocalI16S(addr))
		} else {
			ctx.Stack.PushI16U(ctx.Stack.ReadLocalI16U(addr))
		}
	case widthI8:
		if signed {
			ctx.Stack.PushI8S(ctx.Stack.ReadLocalI8S(addr))
		} else {
			ctx.Stack.PushI8U(ctx.Stack.ReadLocalI8U(addr))
		}
	}
	return Move(int32(instrLen))
}

func localStore(ctx *ThreadContext, reversedIndex, localIndex, offset uint32, width opWidth, instrLen uint32) HandleResult {
	addr, err := ctx.getLocalVariableAddress(reversedIndex, localIndex, offset, widthBytes(width))
	if err != nil {
		return terminate(TerminateOutOfBounds)
	}
	switch width {
	case widthI64:
		v, perr := ctx.Stack.PopI64()
		if perr != nil {
			return terminate(TerminateOperandUnderflow)
		}
		ctx.Stack.WriteLocalI64(addr, v)
	case widthI32:
		v, perr := ctx.Stack.PopI32U()
		if perr != nil {
			return terminate(TerminateOperandUnderflow)
		}
		ctx.Stack.WriteLocalI32(addr, v)
	case widthI16:
		v, perr := ctx.Stack.PopI32U()
		if perr != nil {
			return terminate(TerminateOperandUnderflow)
		}
		ctx.Stack.WriteLocalI16(addr, uint16(v))
	case widthI8:
		v, perr := ctx.Stack.PopI32U()
		if perr != nil {
			return terminate(TerminateOperandUnderflow)
		}
		ctx.Stack.WriteLocalI8(addr, uint8(v))
	case widthF32:
		v, perr := ctx.Stack.PopF32()
		if perr != nil {
			return terminate(TerminateOperandUnderflow)
		}
		ctx.Stack.WriteLocalF32(addr, v)
	case widthF64:
		v, perr := ctx.Stack.PopF64()
		if perr != nil {
			return terminate(TerminateOperandUnderflow)
		}
		ctx.Stack.WriteLocalF64(addr, v)
	}
	return Move(int32(instrLen))
}

func registerLocalHandlers() {
	// short form: reversed_index packed into the pad u16, local_variable_index
	// and offset as the two embedded u32 parameters.
	registerLocalShort(OpLocalLoadI64, widthI64, true, true)
	registerLocalShort(OpLocalLoadI32S, widthI32, true, true)
	registerLocalShort(OpLocalLoadI32U, widthI32, false, true)
	registerLocalShort(OpLocalLoadI16S, widthI16, true, true)
	registerLocalShort(OpLocalLoadI16U, widthI16, false, true)
	registerLocalShort(OpLocalLoadI8S, widthI8, true, true)
	registerLocalShort(OpLocalLoadI8U, widthI8, false, true)
	registerLocalShort(OpLocalLoadF32, widthF32, true, true)
	registerLocalShort(OpLocalLoadF64, widthF64, true, true)
	registerLocalShort(OpLocalStoreI64, widthI64, true, false)
	registerLocalShort(OpLocalStoreI32, widthI32, true, false)
	registerLocalShort(OpLocalStoreI16, widthI16, true, false)
	registerLocalShort(OpLocalStoreI8, widthI8, true, false)
	registerLocalShort(OpLocalStoreF32, widthF32, true, false)
	registerLocalShort(OpLocalStoreF64, widthF64, true, false)

	// extend form: local_variable_index embedded, offset popped; always
	// addresses the current (reversed_index == 0) frame.
	registerLocalExtend(OpLocalExtendLoadI64, widthI64, true, true)
	registerLocalExtend(OpLocalExtendLoadI32S, widthI32, true, true)
	registerLocalExtend(OpLocalExtendLoadI32U, widthI32, false, true)
	registerLocalExtend(OpLocalExtendLoadI16S, widthI16, true, true)
	registerLocalExtend(OpLocalExtendLoadI16U, widthI16, false, true)
	registerLocalExtend(OpLocalExtendLoadI8S, widthI8, true, true)
	registerLocalExtend(OpLocalExtendLoadI8U, widthI8, false, true)
	registerLocalExtend(OpLocalExtendLoadF32, widthF32, true, true)
	registerLocalExtend(OpLocalExtendLoadF64, widthF64, true, true)
	registerLocalExtend(OpLocalExtendStoreI64, widthI64, true, false)
	registerLocalExtend(OpLocalExtendStoreI32, widthI32, true, false)
	registerLocalExtend(OpLocalExtendStoreI16, widthI16, true, false)
	registerLocalExtend(OpLocalExtendStoreI8, widthI8, true, false)
	registerLocalExtend(OpLocalExtendStoreF32, widthF32, true, false)
	registerLocalExtend(OpLocalExtendStoreF64, widthF64, true, false)
}

func registerLocalShort(op Opcode, width opWidth, signed bool, isLoad bool) {
	register(op, func(ctx *ThreadContext) HandleResult {
		reversedIndex := uint32(ctx.paramI16())
		localIndex, offset := ctx.paramI32I32()
		if isLoad {
			if width == widthI32 || width == widthI16 || width == widthI8 {
				return localLoadSigned(ctx, reversedIndex, localIndex, offset, width, signed, 12)
			}
			return localLoad(ctx, reversedIndex, localIndex, offset, width, 12)
		}
		return localStore(ctx, reversedIndex, localIndex, offset, width, 12)
	})
}

func registerLocalExtend(op Opcode, width opWidth, signed bool, isLoad bool) {
	register(op, func(ctx *ThreadContext) HandleResult {
		localIndex := uint32(ctx.paramI16())
		offset, err := ctx.Stack.PopI32U()
		if err != nil {
			return terminate(TerminateOperandUnderflow)
		}
		if isLoad {
			if width == widthI32 || width == widthI16 || width == widthI8 {
				return localLoadSigned(ctx, 0, localIndex, offset, width, signed, 4)
			}
			return localLoad(ctx, 0, localIndex, offset, width, 4)
		}
		return localStore(ctx, 0, localIndex, offset, width, 4)
	})
}

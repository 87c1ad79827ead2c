package stackvm

// handlers_math.go implements a representative slice of the
// arithmetic/comparison opcode space, enough for scenarios_test.go's
// end-to-end programs to have real add/sub/mul/div and comparisons to
// execute. They follow the same pop-pop-push, stack-in/stack-out shape as
// gvm/vm/exec.go's arithmetic case arms.

const (
	OpAddI32 Opcode = catArithmetic + iota
	OpSubI32
	OpMulI32
	OpDivI32S
	OpAddI64
	OpSubI64
	OpMulI64
	OpDivI64S
	OpAddF32
	OpSubF32
	OpMulF32
	OpDivF32
	OpAddF64
	OpSubF64
	OpMulF64
	OpDivF64
)

const (
	OpEqzI32 Opcode = catComparison + iota
	OpEqI32
	OpNeI32
	OpLtI32S
	OpGtI32S
)

func registerMathHandlers() {
	register(OpAddI32, binI32(func(a, b int32) int32 { return a + b }))
	register(OpSubI32, binI32(func(a, b int32) int32 { return a - b }))
	register(OpMulI32, binI32(func(a, b int32) int32 { return a * b }))
	register(OpDivI32S, func(ctx *ThreadContext) HandleResult {
		b, err := ctx.Stack.PopI32S()
		if err != nil {
			return terminate(TerminateOperandUnderflow)
		}
		a, err := ctx.Stack.PopI32S()
		if err != nil {
			return terminate(TerminateOperandUnderflow)
		}
		if b == 0 {
			return terminate(TerminatePanic)
		}
		ctx.Stack.PushI32S(a / b)
		return Move(2)
	})

	register(OpAddI64, binI64(func(a, b int64) int64 { return a + b }))
	register(OpSubI64, binI64(func(a, b int64) int64 { return a - b }))
	register(OpMulI64, binI64(func(a, b int64) int64 { return a * b }))
	register(OpDivI64S, func(ctx *ThreadContext) HandleResult {
		b, err := ctx.Stack.PopI64()
		if err != nil {
			return terminate(TerminateOperandUnderflow)
		}
		a, err := ctx.Stack.PopI64()
		if err != nil {
			return terminate(TerminateOperandUnderflow)
		}
		if b == 0 {
			return terminate(TerminatePanic)
		}
		ctx.Stack.PushI64(a / b)
		return Move(2)
	})

	register(OpAddF32, binF32(func(a, b float32) float32 { return a + b }))
	register(OpSubF32, binF32(func(a, b float32) float32 { return a - b }))
	register(OpMulF32, binF32(func(a, b float32) float32 { return a * b }))
	register(OpDivF32, binF32(func(a, b float32) float32 { return a / b }))

	register(OpAddF64, binF64(func(a, b float64) float64 { return a + b }))
	register(OpSubF64, binF64(func(a, b float64) float64 { return a - b }))
	register(OpMulF64, binF64(func(a, b float64) float64 { return a * b }))
	register(OpDivF64, binF64(func(a, b float64) float64 { return a / b }))

	register(OpEqzI32, func(ctx *ThreadContext) HandleResult {
		v, err := ctx.Stack.PopI32S()
		if err != nil {
			return terminate(TerminateOperandUnderflow)
		}
		ctx.Stack.PushI32U(boolToU32(v == 0))
		return Move(2)
	})
	register(OpEqI32, cmpI32(func(a, b int32) bool { return a == b }))
	register(OpNeI32, cmpI32(func(a, b int32) bool { return a != b }))
	register(OpLtI32S, cmpI32(func(a, b int32) bool { return a < b }))
	register(OpGtI32S, cmpI32(func(a, b int32) bool { return a > b }))
}

func binI32(f func(a, b int32) int32) handlerFunc {
	return func(ctx *ThreadContext) HandleResult {
		b, err := ctx.Stack.PopI32S()
		if err != nil {
			return terminate(TerminateOperandUnderflow)
		}
		a, err := ctx.Stack.PopI32S()
		if err != nil {
			return terminate(TerminateOperandUnderflow)
		}
		ctx.Stack.PushI32S(f(a, b))
		return Move(2)
	}
}

func binI64(f func(a, b int64) int64) handlerFunc {
	return func(ctx *ThreadContext) HandleResult {
		b, err := ctx.Stack.PopI64()
		if err != nil {
			return terminate(TerminateOperandUnderflow)
		}
		a, err := ctx.Stack.PopI64()
		if err != nil {
			return terminate(TerminateOperandUnderflow)
		}
		ctx.Stack.PushI64(f(a, b))
		return Move(2)
	}
}

func binF32(f func(a, b float32) float32) handlerFunc {
	return func(ctx *ThreadContext) HandleResult {
		b, err := ctx.Stack.PopF32()
		if err != nil {
			return terminate(TerminateOperandUnderflow)
		}
		a, err := ctx.Stack.PopF32()
		if err != nil {
			return terminate(TerminateOperandUnderflow)
		}
		// Arithmetic results are never validated for NaN/Infinity; only
		// loads from memory are.
		ctx.Stack.PushF32(f(a, b))
		return Move(2)
	}
}

func binF64(f func(a, b float64) float64) handlerFunc {
	return func(ctx *ThreadContext) HandleResult {
		b, err := ctx.Stack.PopF64()
		if err != nil {
			return terminate(TerminateOperandUnderflow)
		}
		a, err := ctx.Stack.PopF64()
		if err != nil {
			return terminate(TerminateOperandUnderflow)
		}
		ctx.Stack.PushF64(f(a, b))
		return Move(2)
	}
}

func cmpI32(f func(a, b int32) bool) handlerFunc {
	return func(ctx *ThreadContext) HandleResult {
		b, err := ctx.Stack.PopI32S()
		if err != nil {
			return terminate(TerminateOperandUnderflow)
		}
		a, err := ctx.Stack.PopI32S()
		if err != nil {
			return terminate(TerminateOperandUnderflow)
		}
		ctx.Stack.PushI32U(boolToU32(f(a, b)))
		return Move(2)
	}
}

func boolToU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

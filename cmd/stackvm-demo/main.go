// Command stackvm-demo exercises the stackvm core end to end, the way
// gvm's main.go assembles and runs a small program from the command line.
// The bytecode assembler and image loader are out of scope for this core
// (spec.md §1), so this demo builds its one sample program in memory with
// internal/asmtest instead of reading a file from disk; everything after
// that point — stack/frame setup, dispatch, recur-based TCO, and the
// -debug single-step stepper — exercises the real library.
package main

import (
	"flag"
	"fmt"
	"os"

	"stackvm"
	"stackvm/internal/asmtest"
)

var (
	initStackSize  = flag.Uint("stack-size", 64*1024, "initial stack size in bytes")
	ensureFreeSize = flag.Uint("stack-ensure-free", 32*1024, "stack frame ensure-free guard in bytes")
	incrementSize  = flag.Uint("stack-increment", 64*1024, "stack growth increment in bytes")
	boundsCheck    = flag.Bool("bounds-check", true, "enable stack operand bounds checking")
	n              = flag.Int("n", 10, "upper bound for the built-in accumulator(n, 0) sample program")
	debug          = flag.Bool("debug", false, "single-step through the sample program, printing each instruction")
)

// buildAccumulator assembles sum(n, acc) -> n+(n-1)+...+1+acc, the same
// recur/break_nez tail-call shape as the accumulator scenario this core's
// tests drive (S4), as the demo's one built-in sample program. Local 0 is
// the loop counter n, local 1 is the running total acc; arguments are
// passed in that order.
func buildAccumulator() (*stackvm.ModuleInstance, uint32) {
	mb := asmtest.NewModuleBuilder()
	typ := mb.AddType(
		[]stackvm.ValueType{stackvm.ValueI32, stackvm.ValueI32},
		[]stackvm.ValueType{stackvm.ValueI32},
	)
	locals := mb.AddLocalList(asmtest.ArgLocals(2), 16)
	fb := mb.AddFunction(typ, locals)

	fb.LocalLoadI32S(0, 1, 0) // acc
	fb.LocalLoadI32S(0, 0, 0) // n
	fb.EqzI32()
	fb.BreakNez(0, 0) // n == 0: return acc, already on the stack
	fb.LocalLoadI32S(0, 0, 0)
	fb.I32Imm(1)
	fb.SubI32() // n-1
	fb.LocalLoadI32S(0, 1, 0)
	fb.LocalLoadI32S(0, 0, 0)
	fb.AddI32()    // acc+n
	fb.Recur(0, 0) // loop back with (n-1, acc+n)

	return mb.Build(), fb.InternalIndex()
}

func runDebug(ctx *stackvm.ThreadContext) stackvm.TerminateResult {
	for step := 0; ; step++ {
		fmt.Printf("step %4d  pc=%d  op=%s\n", step, ctx.PC.InstructionAddress, ctx.CurrentOpcode())
		done, result := ctx.Step()
		if done {
			return result
		}
	}
}

func main() {
	flag.Parse()

	cfg := stackvm.Config{
		InitStackSizeInBytes:            uint32(*initStackSize),
		StackFrameEnsureFreeSizeInBytes: uint32(*ensureFreeSize),
		StackFrameIncrementSizeInBytes:  uint32(*incrementSize),
		EnableBoundsCheck:               *boundsCheck,
	}

	mod, funcIndex := buildAccumulator()
	ctx := stackvm.NewThreadContext(cfg, []*stackvm.ModuleInstance{mod}, nil)

	if !*debug {
		results, result := ctx.ExecuteFunction(0, funcIndex, []int64{int64(*n), 0})
		if !result.IsOK() {
			fmt.Fprintln(os.Stderr, "terminated:", result.Error())
			os.Exit(1)
		}
		fmt.Printf("accumulator(%d, 0) = %d\n", *n, results[0])
		return
	}

	// -debug sets up the same function-frame call ExecuteFunction makes
	// (including its exit-bit convention, see thread.go), but drives the
	// loop with Step so it can print each instruction first.
	fn := mod.Functions[funcIndex]
	typ := mod.Types[fn.TypeIndex]
	ctx.PC = stackvm.ProgramCounter{ModuleIndex: 0, FunctionIndex: funcIndex, InstructionAddress: fn.CodeOffset}
	ctx.Stack.PushI64(int64(*n))
	ctx.Stack.PushI64(0)
	ret := stackvm.ReturnPC{}.WithExitBit()
	localAlloc := mod.LocalVariableLists[fn.LocalListIndex].AllocateBytes
	if err := ctx.Stack.CreateFrame(typ.ParamsCount(), typ.ResultsCount(), fn.LocalListIndex, localAlloc, &ret); err != nil {
		fmt.Fprintln(os.Stderr, "stack overflow setting up the sample call:", err)
		os.Exit(1)
	}

	result := runDebug(ctx)
	if !result.IsOK() {
		fmt.Fprintln(os.Stderr, "terminated:", result.Error())
		os.Exit(1)
	}

	v, err := ctx.Stack.PopI64()
	if err != nil {
		fmt.Fprintln(os.Stderr, "popping result:", err)
		os.Exit(1)
	}
	fmt.Printf("accumulator(%d, 0) = %d\n", *n, v)
}

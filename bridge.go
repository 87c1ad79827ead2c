package stackvm

import (
	"errors"
	"reflect"
	"unsafe"

	"golang.org/x/sys/unix"
)

// bridge.go implements the native-callback bridge surface from spec.md
// §4.8: host_addr_func, the JIT collaborator's interface, and the
// callback re-entry trampoline process_callback_function_call. Grounded
// on the pack's JIT-flavored repos (tetratelabs/wazero's wazevo backend,
// North-C-sonic's internal/jit, xyproto/flapc's code emitters), which all
// reach for golang.org/x/sys/unix's Mmap/Mprotect to get a writable-then-
// executable page for generated machine code; that pattern backs
// ExecutableMemory below. The actual instruction encoding stays external
// (BridgeBuilder), matching spec.md §1's "JIT code generator... out of
// scope: the core treats it as a function build_bridge(...)".

var errTooManyResults = errors.New("bridge function type has more than one result")

// BridgeBuilder is the external JIT collaborator's interface, named
// build_bridge in spec.md §4.8. Given the re-entry trampoline's address
// and the target function's identity, it emits native machine code that:
// accepts arguments per the platform C calling convention, calls
// delegateAddr (process_callback_function_call) with threadCtxAddr and
// the target identity, and returns the single result (if any) in the
// native return register.
type BridgeBuilder interface {
	BuildBridge(delegateAddr, threadCtxAddr uintptr, moduleIndex, funcInternalIndex uint32, params, results []ValueType) (*ExecutableMemory, error)
}

// BridgeFunctionTable is what connects a ThreadContext to its JIT
// collaborator; it only supplies the BridgeBuilder. The native code
// pointers themselves are stored by ThreadContext in a hashmap keyed by
// (module_index, function_internal_index) (thread.go's bridgeFn field),
// one of the two forms spec.md §9 "Bridge-table keying" accepts.
type BridgeFunctionTable interface {
	Builder() BridgeBuilder
}

// staticBridgeFunctionTable is the trivial BridgeFunctionTable
// implementation tests and cmd/stackvm-demo construct directly with a
// fixed builder, the way gvm/main.go wires a single *vm.VM with no
// pluggable backend.
type staticBridgeFunctionTable struct {
	builder BridgeBuilder
}

func NewBridgeFunctionTable(builder BridgeBuilder) BridgeFunctionTable {
	return &staticBridgeFunctionTable{builder: builder}
}

func (t *staticBridgeFunctionTable) Builder() BridgeBuilder { return t.builder }

// ExecutableMemory is a page of memory allocated writable, filled with
// JIT-emitted bytes, then made executable. mmap/mprotect are not exposed
// portably by the standard library; golang.org/x/sys/unix is the
// ecosystem's answer for POSIX targets (see the pack repos cited above).
type ExecutableMemory struct {
	region []byte
	entry  uintptr
}

// AllocateExecutableMemory reserves size bytes as private anonymous
// memory, hands it back writable so the caller can fill it with machine
// code, and leaves activation (MakeExecutable) to the caller once the
// bytes are in place — mirroring the write-then-protect two-step every
// JIT in the pack follows to avoid ever holding a writable+executable
// mapping simultaneously.
func AllocateExecutableMemory(size int) (*ExecutableMemory, error) {
	region, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, err
	}
	return &ExecutableMemory{region: region}, nil
}

// Bytes exposes the writable backing region for the JIT emitter to fill
// before MakeExecutable is called.
func (m *ExecutableMemory) Bytes() []byte { return m.region }

// MakeExecutable flips the region from read-write to read-execute and
// records its entry point. Once called, the region must not be written
// again; callers that need to patch code allocate a fresh region instead.
func (m *ExecutableMemory) MakeExecutable() error {
	if err := unix.Mprotect(m.region, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return err
	}
	m.entry = uintptr(unsafePointerOf(m.region))
	return nil
}

// EntryPoint returns the native code's callable address, valid only
// after MakeExecutable has succeeded.
func (m *ExecutableMemory) EntryPoint() uintptr { return m.entry }

// Release unmaps the region. Nothing in this package calls it:
// ThreadContext keeps only each bridge's entry address, not its
// ExecutableMemory, and has no teardown step that unmaps bridge regions.
func (m *ExecutableMemory) Release() error {
	return unix.Munmap(m.region)
}

func unsafePointerOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

// threadContextAddr gives the JIT collaborator an address it closes the
// trampoline over, so the emitted code can hand it back unchanged to
// processCallbackFunctionCall on every invocation.
func threadContextAddr(ctx *ThreadContext) uintptr {
	return uintptr(unsafe.Pointer(ctx))
}

// processCallbackFunctionCallAddr resolves the re-entry trampoline's own
// address for handing to build_bridge. There is no portable way to obtain
// a callable native pointer to a Go function without cgo; reflect's
// Pointer() returns the function's entry address, which is what every
// build_bridge implementation in this design treats as an opaque token to
// embed in the generated call instruction, not as something it dereferences
// from Go itself.
func processCallbackFunctionCallAddr(ctx *ThreadContext) uintptr {
	return reflect.ValueOf(processCallbackFunctionCall).Pointer()
}

func handleHostAddrFunc(ctx *ThreadContext) HandleResult {
	funcPublicIndex := ctx.paramI32()
	mod := ctx.module(ctx.PC.ModuleIndex)
	entry := mod.FunctionPublicIndex[funcPublicIndex]

	if addr, ok := ctx.findCallbackFunction(entry.TargetModuleIndex, entry.InternalIndex); ok {
		ctx.Stack.PushI64(int64(addr))
		return Move(8)
	}

	target := ctx.module(entry.TargetModuleIndex)
	fn := target.Functions[entry.InternalIndex]
	typ := target.Types[fn.TypeIndex]
	if len(typ.Results) > 1 {
		return terminate(TerminateTypeMismatch)
	}

	builder := ctx.Bridge.Builder()
	delegateAddr := processCallbackFunctionCallAddr(ctx)
	mem, err := builder.BuildBridge(delegateAddr, threadContextAddr(ctx), entry.TargetModuleIndex, entry.InternalIndex, typ.Params, typ.Results)
	if err != nil {
		return terminate(TerminateTypeMismatch)
	}

	nativeAddr := mem.EntryPoint()
	ctx.insertCallbackFunction(entry.TargetModuleIndex, entry.InternalIndex, nativeAddr)
	ctx.Stack.PushI64(int64(nativeAddr))
	return Move(8)
}

// processCallbackFunctionCall is the re-entry point named in spec.md §4.8:
// invoked from native code through a bridge trampoline, it drives a
// nested dispatch loop to execute one VM function and returns its result
// to the caller. argBytes holds the arguments in declaration order,
// 8 bytes per argument regardless of declared width (operand width is
// uniform, spec.md §3).
func processCallbackFunctionCall(ctx *ThreadContext, moduleIndex, funcInternalIndex uint32, argBytes []byte) (uint64, TerminateResult) {
	savedPC := ctx.PC

	mod := ctx.module(moduleIndex)
	fn := mod.Functions[funcInternalIndex]
	typ := mod.Types[fn.TypeIndex]

	ctx.PC = ProgramCounter{ModuleIndex: moduleIndex, FunctionIndex: funcInternalIndex, InstructionAddress: fn.CodeOffset}

	for i := 0; i < len(typ.Params); i++ {
		ctx.Stack.PushI64(int64(readI64(argBytes, uint32(i)*8)))
	}

	ret := ReturnPC{
		ModuleIndex:           savedPC.ModuleIndex | exitCurrentHandlerLoopBit,
		FunctionInternalIndex: savedPC.FunctionIndex,
		InstructionAddress:    savedPC.InstructionAddress,
	}
	localAlloc := mod.LocalVariableLists[fn.LocalListIndex].AllocateBytes
	if err := ctx.Stack.CreateFrame(typ.ParamsCount(), typ.ResultsCount(), fn.LocalListIndex, localAlloc, &ret); err != nil {
		return 0, TerminateResult{Code: TerminateStackOverflow}
	}

	result := ctx.Run()
	if !result.IsOK() {
		return 0, result
	}

	ctx.PC = savedPC

	if len(typ.Results) == 0 {
		return 0, result
	}
	v, err := ctx.Stack.PopI64()
	if err != nil {
		return 0, TerminateResult{Code: TerminateOperandUnderflow, Err: err}
	}
	return uint64(v), result
}

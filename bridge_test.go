package stackvm

// bridge_test.go exercises S7 (spec.md §8): bridge-create a VM function and
// invoke it the way native code would, through processCallbackFunctionCall.
// White-box (package stackvm, not stackvm_test) because the hand-built
// ModuleInstance here is simpler than routing through internal/asmtest,
// which cannot be imported from inside this package without a cycle
// (asmtest itself imports stackvm).

import (
	"encoding/binary"
	"testing"
)

// fakeBridgeBuilder stands in for the external JIT collaborator named
// build_bridge in spec.md §4.8. A real implementation emits machine code
// that calls delegateAddr with threadCtxAddr and the target identity; this
// test has no assembler, so it only exercises the memory-allocation half
// of the contract (ExecutableMemory) and leaves invoking the callback to
// the test calling processCallbackFunctionCall directly, the same entry
// point a real trampoline would call into.
type fakeBridgeBuilder struct {
	calls int
}

func (b *fakeBridgeBuilder) BuildBridge(delegateAddr, threadCtxAddr uintptr, moduleIndex, funcInternalIndex uint32, params, results []ValueType) (*ExecutableMemory, error) {
	b.calls++
	if len(results) > 1 {
		return nil, errTooManyResults
	}
	mem, err := AllocateExecutableMemory(4096)
	if err != nil {
		return nil, err
	}
	if err := mem.MakeExecutable(); err != nil {
		return nil, err
	}
	return mem, nil
}

// buildDoubleModule assembles f1(x:i32) -> i32 { x*2 } by hand: local_load
// i32_s(reversed=0, local=0, offset=0); i32_imm(2); mul_i32; end.
func buildDoubleModule() *ModuleInstance {
	var code []byte
	emit := func(op Opcode, rest ...byte) {
		var head [2]byte
		binary.LittleEndian.PutUint16(head[:], uint16(op))
		code = append(code, head[:]...)
		code = append(code, rest...)
	}
	u16 := func(v uint16) []byte { b := make([]byte, 2); binary.LittleEndian.PutUint16(b, v); return b }
	u32 := func(v uint32) []byte { b := make([]byte, 4); binary.LittleEndian.PutUint32(b, v); return b }

	emit(OpLocalLoadI32S, append(append(u16(0), u32(0)...), u32(0)...)...)
	emit(OpI32Imm, append(u16(0), u32(2)...)...)
	emit(OpMulI32)
	emit(OpEnd)

	typ := TypeItem{Params: []ValueType{ValueI32}, Results: []ValueType{ValueI32}}
	locals := LocalVariableList{
		Descriptors:   []LocalVariableDescriptor{{ValueType: ValueI32, Offset: 0, Length: 8}},
		AllocateBytes: 8,
	}
	fn := FunctionItem{TypeIndex: 0, CodeOffset: 0, LocalListIndex: 0}
	return &ModuleInstance{
		Types:               []TypeItem{typ},
		Functions:           []FunctionItem{fn},
		LocalVariableLists:  []LocalVariableList{locals},
		Code:                code,
		FunctionPublicIndex: []IndexEntry{{TargetModuleIndex: 0, InternalIndex: 0}},
	}
}

// TestBridgeCallbackRoundTrip (S7): host_addr_func resolves and caches a
// native pointer for f1; a caller holding that pointer (stood in for here
// by calling processCallbackFunctionCall directly, as a real trampoline
// would) observes the doubled result.
func TestBridgeCallbackRoundTrip(t *testing.T) {
	mod := buildDoubleModule()
	builder := &fakeBridgeBuilder{}
	ctx := NewThreadContext(DefaultConfig(), []*ModuleInstance{mod}, NewBridgeFunctionTable(builder))

	// host_addr_func(public_index=0) as the only instruction at PC.
	hostAddrCode := make([]byte, 8)
	binary.LittleEndian.PutUint16(hostAddrCode[0:2], uint16(OpHostAddrFunc))
	binary.LittleEndian.PutUint32(hostAddrCode[4:8], 0)
	driver := &ModuleInstance{
		Types:               mod.Types,
		Functions:           mod.Functions,
		LocalVariableLists:  mod.LocalVariableLists,
		Code:                hostAddrCode,
		FunctionPublicIndex: mod.FunctionPublicIndex,
	}
	ctx.Modules = []*ModuleInstance{driver}
	ctx.PC = ProgramCounter{ModuleIndex: 0, FunctionIndex: 0, InstructionAddress: 0}

	result := handleHostAddrFunc(ctx)
	if result.Kind != resultMove {
		t.Fatalf("host_addr_func: unexpected result kind %v", result.Kind)
	}
	if builder.calls != 1 {
		t.Fatalf("expected BuildBridge called once, got %d", builder.calls)
	}
	nativeAddr, err := ctx.Stack.PopI64()
	if err != nil {
		t.Fatalf("popping host_addr_func result: %v", err)
	}
	if nativeAddr == 0 {
		t.Fatalf("host_addr_func pushed a nil native address")
	}

	if _, ok := ctx.findCallbackFunction(0, 0); !ok {
		t.Fatalf("bridge table not populated after host_addr_func")
	}

	// A second host_addr_func for the same target must hit the cache, not
	// call BuildBridge again.
	ctx.PC.InstructionAddress = 0
	handleHostAddrFunc(ctx)
	if builder.calls != 1 {
		t.Fatalf("expected cached lookup, BuildBridge called %d times", builder.calls)
	}
	ctx.Stack.PopI64()

	// Now invoke it the way native code would via the cached trampoline:
	// ctx.Modules is restored to the function's own module so
	// processCallbackFunctionCall resolves function 0 against f1 itself.
	ctx.Modules = []*ModuleInstance{mod}
	var argBytes [8]byte
	binary.LittleEndian.PutUint64(argBytes[:], uint64(int64(21)))
	got, term := processCallbackFunctionCall(ctx, 0, 0, argBytes[:])
	if !term.IsOK() {
		t.Fatalf("unexpected termination: %v", term)
	}
	if int32(got) != 42 {
		t.Fatalf("got %d, want 42", int32(got))
	}
}

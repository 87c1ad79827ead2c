package stackvm

import "testing"

// heap_test.go exercises the heap_load_*/heap_store_* handlers directly,
// the way bridge_test.go drives handleHostAddrFunc directly: there is no
// bytecode assembler for these opcodes in internal/asmtest, so the test
// calls the registered handlers against a hand-built ThreadContext.

func newHeapThreadContext(heapSize uint32) *ThreadContext {
	ctx := NewThreadContext(DefaultConfig(), nil, nil)
	ctx.Heap = NewHeap(heapSize)
	return ctx
}

func TestHeapStoreThenLoadRoundTrip(t *testing.T) {
	ctx := newHeapThreadContext(64)

	// store_i64(addr=8, value=0x1122334455667788): push addr, push value,
	// per heap_store's (operand heap_addr, number) ordering.
	ctx.Stack.PushI64(8)
	ctx.Stack.PushI64(0x1122334455667788)
	if r := handlerFor(OpHeapStoreI64)(ctx); r.Kind == resultTerminate {
		t.Fatalf("heap_store_i64: unexpected terminate %v", r.Code)
	}

	ctx.Stack.PushI64(8)
	r := handlerFor(OpHeapLoadI64)(ctx)
	if r.Kind == resultTerminate {
		t.Fatalf("heap_load_i64: unexpected terminate %v", r.Code)
	}
	v, err := ctx.Stack.PopI64()
	assert(t, err == nil, "PopI64: %v", err)
	assert(t, v == 0x1122334455667788, "round-trip mismatch, got %#x", v)
}

func TestHeapStoreThenLoadNarrowWidths(t *testing.T) {
	ctx := newHeapThreadContext(64)

	ctx.Stack.PushI64(0)
	ctx.Stack.PushI64(int64(int32(-2))) // i8 store keeps only the low 8 bits (0xFE)
	handlerFor(OpHeapStoreI8)(ctx)

	ctx.Stack.PushI64(0)
	handlerFor(OpHeapLoadI8S)(ctx)
	s, _ := ctx.Stack.PopI32S()
	assert(t, s == -2, "signed byte round-trip, got %d", s)

	ctx.Stack.PushI64(0)
	handlerFor(OpHeapLoadI8U)(ctx)
	u, _ := ctx.Stack.PopI32U()
	assert(t, u == 0xFE, "unsigned byte round-trip, got %#x", u)
}

func TestHeapLoadOutOfBoundsTerminates(t *testing.T) {
	ctx := newHeapThreadContext(16)
	ctx.Stack.PushI64(16) // one byte past the end
	r := handlerFor(OpHeapLoadI8U)(ctx)
	assert(t, r.Kind == resultTerminate && r.Code == TerminateOutOfBounds,
		"expected out-of-bounds terminate, got %+v", r)
}

func TestHeapLoadNegativeAddressTerminates(t *testing.T) {
	ctx := newHeapThreadContext(16)
	ctx.Stack.PushI64(-1)
	r := handlerFor(OpHeapLoadI64)(ctx)
	assert(t, r.Kind == resultTerminate && r.Code == TerminateOutOfBounds,
		"expected out-of-bounds terminate for negative address, got %+v", r)
}

// Pops are bounds-checked against the current frame's floor (there is no
// check without a frame), so the handler runs inside a function frame whose
// operand area is empty.
func TestHeapLoadUnderflowTerminates(t *testing.T) {
	ctx := newHeapThreadContext(16)
	if err := ctx.Stack.CreateFrame(0, 0, 0, 0, &ReturnPC{}); err != nil {
		t.Fatalf("CreateFrame: %v", err)
	}
	r := handlerFor(OpHeapLoadI64)(ctx)
	assert(t, r.Kind == resultTerminate && r.Code == TerminateOperandUnderflow,
		"expected operand underflow on an empty operand area, got %+v", r)
}

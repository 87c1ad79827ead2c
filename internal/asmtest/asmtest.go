// Package asmtest is a minimal in-memory module builder standing in for
// the out-of-scope bytecode assembler/loader (spec.md §1). It exists only
// for tests and cmd/stackvm-demo's built-in sample program; it is never
// part of the public library surface.
//
// Grounded on gvm/vm/compile.go's instruction-assembly shape (building a
// []Instruction program directly from source), simplified here to a
// direct byte-emitting builder since there is no textual syntax to
// parse — tests construct programs by calling the per-instruction methods
// (I32Imm, Block, LocalLoadI32S, ...) in order.
package asmtest

import (
	"encoding/binary"
	"math"

	"stackvm"
)

// ModuleBuilder accumulates a single module's types, functions, local
// lists, data sections and code, byte by byte, mirroring the flat
// module-instance shape stackvm.ModuleInstance expects.
type ModuleBuilder struct {
	types     []stackvm.TypeItem
	functions []stackvm.FunctionItem
	locals    []stackvm.LocalVariableList
	dataSecs  []stackvm.DataSection
	code      []byte

	dataPublic []stackvm.IndexEntry
	funcPublic []stackvm.IndexEntry
}

func NewModuleBuilder() *ModuleBuilder {
	return &ModuleBuilder{}
}

// AddType registers a function type and returns its index.
func (m *ModuleBuilder) AddType(params, results []stackvm.ValueType) uint32 {
	m.types = append(m.types, stackvm.TypeItem{Params: params, Results: results})
	return uint32(len(m.types) - 1)
}

// AddLocalList registers a local-variable list (argument slots packed
// first, per spec.md §3) and returns its index.
func (m *ModuleBuilder) AddLocalList(descriptors []stackvm.LocalVariableDescriptor, allocateBytes uint32) uint32 {
	m.locals = append(m.locals, stackvm.LocalVariableList{Descriptors: descriptors, AllocateBytes: allocateBytes})
	return uint32(len(m.locals) - 1)
}

// ArgLocals builds the local-variable list covering just a function's
// n declared i64-operand-width arguments, the common case for the
// scenario tests (every operand is 8 bytes regardless of ValueType).
func ArgLocals(n int) []stackvm.LocalVariableDescriptor {
	descs := make([]stackvm.LocalVariableDescriptor, n)
	for i := range descs {
		descs[i] = stackvm.LocalVariableDescriptor{ValueType: stackvm.ValueI64, Offset: uint32(i) * 8, Length: 8}
	}
	return descs
}

// FuncBuilder emits one function's instruction stream into the owning
// module's shared Code blob.
type FuncBuilder struct {
	m          *ModuleBuilder
	codeOffset uint32
	index      uint32
}

// AddFunction registers a function (type + local list) and returns a
// FuncBuilder positioned at the start of its code.
func (m *ModuleBuilder) AddFunction(typeIndex, localListIndex uint32) *FuncBuilder {
	offset := uint32(len(m.code))
	m.functions = append(m.functions, stackvm.FunctionItem{TypeIndex: typeIndex, CodeOffset: offset, LocalListIndex: localListIndex})
	m.funcPublic = append(m.funcPublic, stackvm.IndexEntry{TargetModuleIndex: 0, InternalIndex: uint32(len(m.functions) - 1)})
	return &FuncBuilder{m: m, codeOffset: offset, index: uint32(len(m.functions) - 1)}
}

// InternalIndex returns this function's internal index within its module.
func (f *FuncBuilder) InternalIndex() uint32 { return f.index }

// Offset returns the current write position within the module's code
// blob, for computing jump/break/recur displacements by hand.
func (f *FuncBuilder) Offset() uint32 { return uint32(len(f.m.code)) }

func (f *FuncBuilder) emit(op stackvm.Opcode, rest ...byte) {
	var head [2]byte
	binary.LittleEndian.PutUint16(head[:], uint16(op))
	f.m.code = append(f.m.code, head[:]...)
	f.m.code = append(f.m.code, rest...)
}

func u16b(v uint16) []byte { b := make([]byte, 2); binary.LittleEndian.PutUint16(b, v); return b }
func u32b(v uint32) []byte { b := make([]byte, 4); binary.LittleEndian.PutUint32(b, v); return b }

func (f *FuncBuilder) emitPad2U32(op stackvm.Opcode, v uint32) {
	f.emit(op, append(u16b(0), u32b(v)...)...)
}

func (f *FuncBuilder) emitPad2U32U32(op stackvm.Opcode, a, b uint32) {
	buf := append(u16b(0), u32b(a)...)
	buf = append(buf, u32b(b)...)
	f.emit(op, buf...)
}

func (f *FuncBuilder) emitPad2U32U32U32(op stackvm.Opcode, a, b, c uint32) {
	buf := append(u16b(0), u32b(a)...)
	buf = append(buf, u32b(b)...)
	buf = append(buf, u32b(c)...)
	f.emit(op, buf...)
}

func (f *FuncBuilder) emitU16U32(op stackvm.Opcode, a uint16, b uint32) {
	f.emit(op, append(u16b(a), u32b(b)...)...)
}

// --- fundamental ---

func (f *FuncBuilder) Nop()       { f.emit(stackvm.OpNop) }
func (f *FuncBuilder) Zero()      { f.emit(stackvm.OpZero) }
func (f *FuncBuilder) Drop()      { f.emit(stackvm.OpDrop) }
func (f *FuncBuilder) Duplicate() { f.emit(stackvm.OpDuplicate) }
func (f *FuncBuilder) Swap()      { f.emit(stackvm.OpSwap) }
func (f *FuncBuilder) SelectNez() { f.emit(stackvm.OpSelectNez) }

func (f *FuncBuilder) I32Imm(v int32) { f.emitPad2U32(stackvm.OpI32Imm, uint32(v)) }
func (f *FuncBuilder) I64Imm(v int64) {
	u := uint64(v)
	f.emitPad2U32U32(stackvm.OpI64Imm, uint32(u>>32), uint32(u))
}
func (f *FuncBuilder) F32Imm(v float32) { f.emitPad2U32(stackvm.OpF32Imm, math.Float32bits(v)) }
func (f *FuncBuilder) F64Imm(v float64) {
	u := math.Float64bits(v)
	f.emitPad2U32U32(stackvm.OpF64Imm, uint32(u>>32), uint32(u))
}

// --- control flow ---

func (f *FuncBuilder) Block(typeIndex, localListIndex uint32) {
	f.emitPad2U32U32(stackvm.OpBlock, typeIndex, localListIndex)
}
func (f *FuncBuilder) BlockAlt(typeIndex, localListIndex uint32, nextInstOffset int32) {
	f.emitPad2U32U32U32(stackvm.OpBlockAlt, typeIndex, localListIndex, uint32(nextInstOffset))
}
func (f *FuncBuilder) BlockNez(localListIndex uint32, nextInstOffset int32) {
	f.emitPad2U32U32(stackvm.OpBlockNez, localListIndex, uint32(nextInstOffset))
}
func (f *FuncBuilder) End() { f.emit(stackvm.OpEnd) }

func (f *FuncBuilder) Break(layers uint16, nextInstOffset int32) {
	f.emitU16U32(stackvm.OpBreak, layers, uint32(nextInstOffset))
}
func (f *FuncBuilder) BreakAlt(nextInstOffset int32) {
	f.emitPad2U32(stackvm.OpBreakAlt, uint32(nextInstOffset))
}
func (f *FuncBuilder) BreakNez(layers uint16, nextInstOffset int32) {
	f.emitU16U32(stackvm.OpBreakNez, layers, uint32(nextInstOffset))
}
func (f *FuncBuilder) Recur(layers uint16, startInstOffset int32) {
	f.emitU16U32(stackvm.OpRecur, layers, uint32(startInstOffset))
}
func (f *FuncBuilder) RecurNez(layers uint16, startInstOffset int32) {
	f.emitU16U32(stackvm.OpRecurNez, layers, uint32(startInstOffset))
}

func (f *FuncBuilder) Call(funcPublicIndex uint32) {
	f.emitPad2U32(stackvm.OpCall, funcPublicIndex)
}

func (f *FuncBuilder) Panic()                  { f.emitPad2U32(stackvm.OpPanic, 0) }
func (f *FuncBuilder) Unreachable(code uint32) { f.emitPad2U32(stackvm.OpUnreachable, code) }
func (f *FuncBuilder) Debug(code uint32)       { f.emitPad2U32(stackvm.OpDebug, code) }

// --- local access (short form) ---

func (f *FuncBuilder) LocalLoadI32S(reversedIndex uint16, localIndex, offset uint32) {
	f.emit(stackvm.OpLocalLoadI32S, append(append(u16b(reversedIndex), u32b(localIndex)...), u32b(offset)...)...)
}
func (f *FuncBuilder) LocalLoadI64(reversedIndex uint16, localIndex, offset uint32) {
	f.emit(stackvm.OpLocalLoadI64, append(append(u16b(reversedIndex), u32b(localIndex)...), u32b(offset)...)...)
}
func (f *FuncBuilder) LocalStoreI32(reversedIndex uint16, localIndex, offset uint32) {
	f.emit(stackvm.OpLocalStoreI32, append(append(u16b(reversedIndex), u32b(localIndex)...), u32b(offset)...)...)
}

// --- data access (short form) ---

func (f *FuncBuilder) DataLoadI64(publicIndex, offset uint32) {
	f.emitPad2U32U32(stackvm.OpDataLoadI64, publicIndex, offset)
}
func (f *FuncBuilder) DataLoadF32(publicIndex, offset uint32) {
	f.emitPad2U32U32(stackvm.OpDataLoadF32, publicIndex, offset)
}
func (f *FuncBuilder) DataStoreI32(publicIndex, offset uint32) {
	f.emitPad2U32U32(stackvm.OpDataStoreI32, publicIndex, offset)
}
func (f *FuncBuilder) DataStoreI16(publicIndex, offset uint32) {
	f.emitPad2U32U32(stackvm.OpDataStoreI16, publicIndex, offset)
}
func (f *FuncBuilder) DataStoreI8(publicIndex, offset uint32) {
	f.emitPad2U32U32(stackvm.OpDataStoreI8, publicIndex, offset)
}

// --- representative math ---

func (f *FuncBuilder) AddI32()  { f.emit(stackvm.OpAddI32) }
func (f *FuncBuilder) SubI32()  { f.emit(stackvm.OpSubI32) }
func (f *FuncBuilder) MulI32()  { f.emit(stackvm.OpMulI32) }
func (f *FuncBuilder) EqzI32()  { f.emit(stackvm.OpEqzI32) }

// --- module assembly ---

// AddDataSection registers a data section (already-built accessor plus
// its item descriptors) and returns the base internal index its items
// occupy; call order across AddDataSection calls determines that base
// (read-only/read-write/uninitialized sections are simply added in the
// order the caller chooses, matching resolveDataInternalIndex's flat scan).
func (m *ModuleBuilder) AddDataSection(kind stackvm.DataSectionKind, accessor stackvm.DataAccessor, items []stackvm.DataItemDescriptor) uint32 {
	base := uint32(0)
	for _, s := range m.dataSecs {
		base += uint32(len(s.Items))
	}
	m.dataSecs = append(m.dataSecs, stackvm.DataSection{Kind: kind, Accessor: accessor, Items: items})
	return base
}

// ExposeData registers a data item as a public index pointing at this
// module's own internal index (no import indirection in these tests).
func (m *ModuleBuilder) ExposeData(internalIndex uint32) uint32 {
	m.dataPublic = append(m.dataPublic, stackvm.IndexEntry{TargetModuleIndex: 0, InternalIndex: internalIndex})
	return uint32(len(m.dataPublic) - 1)
}

// Build finalizes the module instance.
func (m *ModuleBuilder) Build() *stackvm.ModuleInstance {
	return &stackvm.ModuleInstance{
		Types:               m.types,
		Functions:           m.functions,
		LocalVariableLists:  m.locals,
		DataSections:        m.dataSecs,
		Code:                m.code,
		DataPublicIndex:     m.dataPublic,
		FunctionPublicIndex: m.funcPublic,
	}
}

package stackvm

// opcode.go assigns numeric values to the instruction set from spec.md §6
// and classifies each opcode's wire shape (instruction length, whether it
// carries embedded parameters). Grouping by high byte mirrors gvm/vm/bytecode.go's
// Bytecode iota block, extended to a 16-bit space per spec.md's "opcode
// namespace is 16-bit, organized into categories by high byte".

// Opcode identifies one instruction. The numeric values are part of the
// wire format (spec.md §6) and must never be renumbered once assigned.
type Opcode uint16

// category high bytes, per spec.md §6.
const (
	catFundamental Opcode = 0x00 << 8
	catLocal       Opcode = 0x01 << 8
	catData        Opcode = 0x02 << 8
	catHeap        Opcode = 0x03 << 8
	catConversion  Opcode = 0x04 << 8
	catComparison  Opcode = 0x05 << 8
	catArithmetic  Opcode = 0x06 << 8
	catBitwise     Opcode = 0x07 << 8
	catMath        Opcode = 0x08 << 8
	catControl     Opcode = 0x09 << 8
	catCall        Opcode = 0x0A << 8
	catHost        Opcode = 0x0B << 8
)

const (
	// --- fundamental (0x00xx) ---
	OpNop Opcode = catFundamental + iota
	OpZero
	OpDrop
	OpDuplicate
	OpSwap
	OpSelectNez
	OpI32Imm
	OpI64Imm
	OpF32Imm
	OpF64Imm
)

const (
	// --- local access (0x01xx): short, extend, dynamic forms x 9 widths ---
	OpLocalLoadI64 Opcode = catLocal + iota
	OpLocalLoadI32S
	OpLocalLoadI32U
	OpLocalLoadI16S
	OpLocalLoadI16U
	OpLocalLoadI8S
	OpLocalLoadI8U
	OpLocalLoadF32
	OpLocalLoadF64
	OpLocalStoreI64
	OpLocalStoreI32
	OpLocalStoreI16
	OpLocalStoreI8
	OpLocalStoreF32
	OpLocalStoreF64

	OpLocalExtendLoadI64
	OpLocalExtendLoadI32S
	OpLocalExtendLoadI32U
	OpLocalExtendLoadI16S
	OpLocalExtendLoadI16U
	OpLocalExtendLoadI8S
	OpLocalExtendLoadI8U
	OpLocalExtendLoadF32
	OpLocalExtendLoadF64
	OpLocalExtendStoreI64
	OpLocalExtendStoreI32
	OpLocalExtendStoreI16
	OpLocalExtendStoreI8
	OpLocalExtendStoreF32
	OpLocalExtendStoreF64
)

const (
	// --- data access (0x02xx): short, extend, dynamic forms ---
	OpDataLoadI64 Opcode = catData + iota
	OpDataLoadI32S
	OpDataLoadI32U
	OpDataLoadI16S
	OpDataLoadI16U
	OpDataLoadI8S
	OpDataLoadI8U
	OpDataLoadF32
	OpDataLoadF64
	OpDataStoreI64
	OpDataStoreI32
	OpDataStoreI16
	OpDataStoreI8
	OpDataStoreF32
	OpDataStoreF64

	OpDataExtendLoadI64
	OpDataExtendLoadI32S
	OpDataExtendLoadI32U
	OpDataExtendLoadI16S
	OpDataExtendLoadI16U
	OpDataExtendLoadI8S
	OpDataExtendLoadI8U
	OpDataExtendLoadF32
	OpDataExtendLoadF64
	OpDataExtendStoreI64
	OpDataExtendStoreI32
	OpDataExtendStoreI16
	OpDataExtendStoreI8
	OpDataExtendStoreF32
	OpDataExtendStoreF64

	OpDataDynLoadI64
	OpDataDynLoadI32S
	OpDataDynLoadI32U
	OpDataDynLoadI16S
	OpDataDynLoadI16U
	OpDataDynLoadI8S
	OpDataDynLoadI8U
	OpDataDynLoadF32
	OpDataDynLoadF64
	OpDataDynStoreI64
	OpDataDynStoreI32
	OpDataDynStoreI16
	OpDataDynStoreI8
	OpDataDynStoreF32
	OpDataDynStoreF64
)

const (
	// --- heap access (0x03xx) ---
	OpHeapLoadI64 Opcode = catHeap + iota
	OpHeapLoadI32S
	OpHeapLoadI32U
	OpHeapLoadI16S
	OpHeapLoadI16U
	OpHeapLoadI8S
	OpHeapLoadI8U
	OpHeapLoadF32
	OpHeapLoadF64
	OpHeapStoreI64
	OpHeapStoreI32
	OpHeapStoreI16
	OpHeapStoreI8
	OpHeapStoreF32
	OpHeapStoreF64
)

const (
	// --- control flow (0x09xx) ---
	OpEnd Opcode = catControl + iota
	OpBlock
	OpBlockAlt
	OpBlockNez
	OpBreak
	OpBreakAlt
	OpBreakNez
	OpRecur
	OpRecurNez
)

const (
	// --- function call (0x0Axx) ---
	OpCall Opcode = catCall + iota
	OpDynCall
	OpEnvCall
	OpSysCall
	OpExtCall
)

const (
	// --- host & bridge (0x0Bxx) ---
	OpPanic Opcode = catHost + iota
	OpUnreachable
	OpDebug
	OpHostAddrLocal
	OpHostAddrData
	OpHostAddrHeap
	OpHostCopyFromHeap
	OpHostCopyToHeap
	OpHostAddrFunc
)

// MaxOpcode bounds the flat handler table; spec.md §6 requires the opcode
// namespace stay at or below 0xD00.
const MaxOpcode = 0x0D00

// InstructionLength returns the total byte length (including the 2-byte
// opcode) of an instruction, per spec.md §6's instruction shapes. The
// handlers do not call it; each returns a literal Move delta equal to the
// length listed here.
func InstructionLength(op Opcode) uint32 {
	switch {
	case op == OpNop || op == OpZero || op == OpDrop || op == OpDuplicate ||
		op == OpSwap || op == OpSelectNez || op == OpEnd:
		return 2
	case op == OpI32Imm || op == OpF32Imm:
		return 8
	case op == OpI64Imm || op == OpF64Imm:
		return 12
	case op == OpBlock:
		return 12 // [opcode:u16][pad:u16][type_index:u32][local_list_index:u32]
	case op == OpBlockAlt:
		return 16 // [opcode][pad][type_index][local_list_index][next_inst_offset]
	case op == OpBlockNez:
		return 12 // [opcode][pad][local_list_index][next_inst_offset]
	case op == OpBreak || op == OpBreakNez || op == OpRecur || op == OpRecurNez:
		return 8 // [opcode:u16][layers:u16][offset:u32]
	case op == OpBreakAlt:
		return 8 // [opcode:u16][pad:u16][next_inst_offset:u32]
	case op == OpCall:
		return 8 // [opcode:u16][pad:u16][function_public_index:u32]
	case isLocalShort(op) || isDataShort(op):
		return 12 // [opcode:u16][reversed_index or pad:u16][local_var_index or public_index:u32][offset:u32]
	case isLocalExtend(op) || isDataExtend(op):
		return 4 // [opcode:u16][local_var_index or public_index:u16]; offset popped from stack
	case isDataDyn(op):
		return 2 // module_index, public_index, offset all popped from the stack
	case isHeap(op):
		return 2 // heap address popped from the stack
	case op == OpPanic || op == OpUnreachable || op == OpDebug:
		return 8 // [opcode:u16][pad:u16][code:u32]
	case op == OpHostAddrLocal:
		return 8 // [opcode:u16][reversed_index:u16][local_var_index:u16]; offset popped from stack
	case op == OpHostAddrData || op == OpHostAddrFunc:
		return 8 // [opcode:u16][pad:u16][public_index:u32]
	case op == OpHostAddrHeap || op == OpHostCopyFromHeap || op == OpHostCopyToHeap:
		return 2 // operands on stack
	case op == OpDynCall || op == OpEnvCall || op == OpSysCall || op == OpExtCall:
		return 8
	default:
		return 2
	}
}

func isLocalShort(op Opcode) bool {
	return op >= OpLocalLoadI64 && op <= OpLocalStoreF64
}
func isLocalExtend(op Opcode) bool {
	return op >= OpLocalExtendLoadI64 && op <= OpLocalExtendStoreF64
}
func isDataShort(op Opcode) bool {
	return op >= OpDataLoadI64 && op <= OpDataStoreF64
}
func isDataExtend(op Opcode) bool {
	return op >= OpDataExtendLoadI64 && op <= OpDataExtendStoreF64
}
func isDataDyn(op Opcode) bool {
	return op >= OpDataDynLoadI64 && op <= OpDataDynStoreF64
}
func isHeap(op Opcode) bool {
	return op >= OpHeapLoadI64 && op <= OpHeapStoreF64
}

// AccessWidth returns the byte width a load/store opcode addresses (1, 2,
// 4, or 8). The handlers compute access_length for bounds checking
// (spec.md §4.4's get_target_data_object / get_local_variable_address_...)
// with widthBytes on their own opWidth instead; nothing calls AccessWidth.
func AccessWidth(op Opcode) uint32 {
	switch opBaseWidth(op) {
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

type opWidth int

const (
	widthI64 opWidth = iota
	widthI32
	widthI16
	widthI8
	widthF32
	widthF64
)

// opBaseWidth classifies an opcode by the width/type suffix shared by the
// load/store instruction families (local, data, heap); the three
// addressing-mode families repeat the same suffix ordering within each
// group of 15 (9 loads + 6 stores), so width is recovered by remainder.
func opBaseWidth(op Opcode) opWidth {
	var base Opcode
	switch {
	case isLocalShort(op):
		base = op - OpLocalLoadI64
	case isLocalExtend(op):
		base = op - OpLocalExtendLoadI64
	case isDataShort(op):
		base = op - OpDataLoadI64
	case isDataExtend(op):
		base = op - OpDataExtendLoadI64
	case isDataDyn(op):
		base = op - OpDataDynLoadI64
	case isHeap(op):
		base = op - OpHeapLoadI64
	default:
		return widthI64
	}
	// load order: i64, i32_s, i32_u, i16_s, i16_u, i8_s, i8_u, f32, f64 (9)
	// store order: i64, i32, i16, i8, f32, f64 (6)
	switch {
	case base == 0 || base == 9:
		return widthI64
	case base == 1 || base == 2 || base == 10:
		return widthI32
	case base == 3 || base == 4 || base == 11:
		return widthI16
	case base == 5 || base == 6 || base == 12:
		return widthI8
	case base == 7 || base == 13:
		return widthF32
	case base == 8 || base == 14:
		return widthF64
	default:
		return widthI64
	}
}

// String names the opcode for diagnostics (terminate payload formatting,
// test failure messages) — never part of the wire format.
func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return "unknown"
}

var opcodeNames = map[Opcode]string{
	OpNop: "nop", OpZero: "zero", OpDrop: "drop", OpDuplicate: "duplicate",
	OpSwap: "swap", OpSelectNez: "select_nez",
	OpI32Imm: "i32_imm", OpI64Imm: "i64_imm", OpF32Imm: "f32_imm", OpF64Imm: "f64_imm",
	OpEnd: "end", OpBlock: "block", OpBlockAlt: "block_alt", OpBlockNez: "block_nez",
	OpBreak: "break_", OpBreakAlt: "break_alt", OpBreakNez: "break_nez",
	OpRecur: "recur", OpRecurNez: "recur_nez",
	OpCall: "call", OpDynCall: "dyncall", OpEnvCall: "envcall", OpSysCall: "syscall", OpExtCall: "extcall",
	OpPanic: "panic", OpUnreachable: "unreachable", OpDebug: "debug",
	OpHostAddrLocal: "host_addr_local", OpHostAddrData: "host_addr_data", OpHostAddrHeap: "host_addr_heap",
	OpHostCopyFromHeap: "host_copy_from_heap", OpHostCopyToHeap: "host_copy_to_heap", OpHostAddrFunc: "host_addr_func",
}

package stackvm

// module.go models the slice of a loaded module instance this core needs
// to touch: type/function/local-variable-list/data-section metadata and
// the public-index tables that resolve imports. Populating these from a
// bytecode image is the loader/linker's job, out of scope here; tests
// and cmd/stackvm-demo build ModuleInstance values directly (see
// internal/asmtest), the way gvm's CompileSource produces a []Instruction
// program directly rather than through a separate linking stage.

// ValueType is the native width/interpretation a param or result carries.
// Every operand slot on the stack is 8 bytes regardless of ValueType; this
// only matters for picking the right width-specific load/store and for
// bridge/native-ABI marshalling.
type ValueType uint8

const (
	ValueI32 ValueType = iota
	ValueI64
	ValueF32
	ValueF64
)

func (v ValueType) String() string {
	switch v {
	case ValueI32:
		return "i32"
	case ValueI64:
		return "i64"
	case ValueF32:
		return "f32"
	case ValueF64:
		return "f64"
	default:
		return "unknown"
	}
}

// TypeItem is a function type: its parameter and result value types.
type TypeItem struct {
	Params  []ValueType
	Results []ValueType
}

func (t TypeItem) ParamsCount() uint16  { return uint16(len(t.Params)) }
func (t TypeItem) ResultsCount() uint16 { return uint16(len(t.Results)) }

// FunctionItem locates one function's code within its module's Code blob
// and names the type it was declared with.
type FunctionItem struct {
	TypeIndex      uint32
	CodeOffset     uint32
	LocalListIndex uint32
}

// LocalVariableDescriptor describes one local slot's placement within a
// frame's local-variable area (argument slots are descriptors too, packed
// first in the frame's local-variable area).
type LocalVariableDescriptor struct {
	ValueType ValueType
	Offset    uint32
	Length    uint32
}

// LocalVariableList is one entry of the module's local-variable-list
// section; FrameInfo.LocalListIndex names one of these.
type LocalVariableList struct {
	Descriptors   []LocalVariableDescriptor
	AllocateBytes uint32
}

// DataSectionKind distinguishes the three polymorphic data-object
// variants: read-only, read-write, and uninitialized.
type DataSectionKind int

const (
	DataSectionReadOnly DataSectionKind = iota
	DataSectionReadWrite
	DataSectionUninitialized
)

// DataItemDescriptor records one data item's placement and declared length
// within its owning section's buffer.
type DataItemDescriptor struct {
	Offset uint32
	Length uint32
	Align  uint32
}

// DataSection pairs a section's accessor implementation with the item
// descriptors that back it.
type DataSection struct {
	Kind     DataSectionKind
	Accessor DataAccessor
	Items    []DataItemDescriptor
}

// IndexEntry resolves one public (flat, import-inclusive) index to the
// module that actually defines the item and that module's internal index
// for it. Local (non-imported) items simply point back at their own
// module ("Public index" / "Internal index").
type IndexEntry struct {
	TargetModuleIndex uint32
	InternalIndex     uint32
}

// ModuleInstance is the immutable-once-loaded per-module state the core
// reads. Code holds every function's bytecode concatenated together;
// FunctionItem.CodeOffset is the byte offset of a function's first
// instruction within Code.
type ModuleInstance struct {
	Types               []TypeItem
	Functions           []FunctionItem
	LocalVariableLists  []LocalVariableList
	DataSections        []DataSection
	Code                []byte
	DataPublicIndex     []IndexEntry
	FunctionPublicIndex []IndexEntry
}

// resolveDataInternalIndex maps a module-internal data index (flat across
// all of that module's data sections, read-only first, then read-write,
// then uninitialized — the order DataSections is populated in) to the
// owning section and the item's index within it.
func (m *ModuleInstance) resolveDataInternalIndex(internalIndex uint32) (*DataSection, uint32, bool) {
	remaining := internalIndex
	for i := range m.DataSections {
		sec := &m.DataSections[i]
		n := uint32(len(sec.Items))
		if remaining < n {
			return sec, remaining, true
		}
		remaining -= n
	}
	return nil, 0, false
}

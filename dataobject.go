package stackvm

// dataobject.go implements the per-section data object accessor: the
// same width/sign load-store capability set over three backing-buffer
// variants {read-only, initialized read-write, uninitialized}. All
// three share the width primitives in memory.go, the
// way gvm's single stack buffer shares uint32FromBytes/uint32ToBytes with
// every other width-aware operation in the VM.

// DataAccessor is the capability set every data-section variant
// implements: width-and-sign-specific load/store indexed by an item index
// local to that accessor (not the module-wide internal index — see
// ModuleInstance.resolveDataInternalIndex) plus a byte offset within that
// item. Bounds checking against the item's declared length happens one
// layer up, in ThreadContext.getTargetDataObject, before these are called.
type DataAccessor interface {
	LoadI64(item, offset uint32) int64
	LoadI32S(item, offset uint32) int32
	LoadI32U(item, offset uint32) uint32
	LoadI16S(item, offset uint32) int16
	LoadI16U(item, offset uint32) uint16
	LoadI8S(item, offset uint32) int8
	LoadI8U(item, offset uint32) uint8
	LoadF32(item, offset uint32) (float32, error)
	LoadF64(item, offset uint32) (float64, error)

	StoreI64(item, offset uint32, v int64)
	StoreI32(item, offset uint32, v uint32)
	StoreI16(item, offset uint32, v uint16)
	StoreI8(item, offset uint32, v uint8)
	StoreF32(item, offset uint32, v float32)
	StoreF64(item, offset uint32, v float64)
}

// baseDataAccessor holds the buffer and per-item descriptors shared by all
// three variants; each variant embeds it and only differs in whether
// Store* is permitted.
type baseDataAccessor struct {
	buffer []byte
	items  []DataItemDescriptor
}

func (b *baseDataAccessor) abs(item, offset uint32) uint32 {
	return b.items[item].Offset + offset
}

func (b *baseDataAccessor) LoadI64(item, offset uint32) int64 {
	return readI64(b.buffer, b.abs(item, offset))
}
func (b *baseDataAccessor) LoadI32S(item, offset uint32) int32 {
	return readI32S(b.buffer, b.abs(item, offset))
}
func (b *baseDataAccessor) LoadI32U(item, offset uint32) uint32 {
	return readI32U(b.buffer, b.abs(item, offset))
}
func (b *baseDataAccessor) LoadI16S(item, offset uint32) int16 {
	return readI16S(b.buffer, b.abs(item, offset))
}
func (b *baseDataAccessor) LoadI16U(item, offset uint32) uint16 {
	return readI16U(b.buffer, b.abs(item, offset))
}
func (b *baseDataAccessor) LoadI8S(item, offset uint32) int8 {
	return readI8S(b.buffer, b.abs(item, offset))
}
func (b *baseDataAccessor) LoadI8U(item, offset uint32) uint8 {
	return readI8U(b.buffer, b.abs(item, offset))
}
func (b *baseDataAccessor) LoadF32(item, offset uint32) (float32, error) {
	return readF32(b.buffer, b.abs(item, offset))
}
func (b *baseDataAccessor) LoadF64(item, offset uint32) (float64, error) {
	return readF64(b.buffer, b.abs(item, offset))
}

func (b *baseDataAccessor) storeI64(item, offset uint32, v int64) {
	writeI64(b.buffer, b.abs(item, offset), v)
}
func (b *baseDataAccessor) storeI32(item, offset uint32, v uint32) {
	writeI32(b.buffer, b.abs(item, offset), v)
}
func (b *baseDataAccessor) storeI16(item, offset uint32, v uint16) {
	writeI16(b.buffer, b.abs(item, offset), v)
}
func (b *baseDataAccessor) storeI8(item, offset uint32, v uint8) {
	writeI8(b.buffer, b.abs(item, offset), v)
}
func (b *baseDataAccessor) storeF32(item, offset uint32, v float32) {
	writeF32(b.buffer, b.abs(item, offset), v)
}
func (b *baseDataAccessor) storeF64(item, offset uint32, v float64) {
	writeF64(b.buffer, b.abs(item, offset), v)
}

// ReadOnlyDataSection backs a module's constant data. The load/store
// resolver in thread.go (getTargetDataObject) returns a section's accessor
// without checking its Kind, so a data store aimed at a read-only item
// does reach Store* here. Each Store* panics with errReadOnlyDataSection
// and writes nothing; Run and Step recover the panic into a
// TerminateResult.
type ReadOnlyDataSection struct{ baseDataAccessor }

func NewReadOnlyDataSection(buffer []byte, items []DataItemDescriptor) *ReadOnlyDataSection {
	return &ReadOnlyDataSection{baseDataAccessor{buffer: buffer, items: items}}
}

func (r *ReadOnlyDataSection) StoreI64(uint32, uint32, int64)   { panic(errReadOnlyDataSection) }
func (r *ReadOnlyDataSection) StoreI32(uint32, uint32, uint32)  { panic(errReadOnlyDataSection) }
func (r *ReadOnlyDataSection) StoreI16(uint32, uint32, uint16)  { panic(errReadOnlyDataSection) }
func (r *ReadOnlyDataSection) StoreI8(uint32, uint32, uint8)    { panic(errReadOnlyDataSection) }
func (r *ReadOnlyDataSection) StoreF32(uint32, uint32, float32) { panic(errReadOnlyDataSection) }
func (r *ReadOnlyDataSection) StoreF64(uint32, uint32, float64) { panic(errReadOnlyDataSection) }

// ReadWriteDataSection backs a module's mutable initialized data.
type ReadWriteDataSection struct{ baseDataAccessor }

func NewReadWriteDataSection(buffer []byte, items []DataItemDescriptor) *ReadWriteDataSection {
	return &ReadWriteDataSection{baseDataAccessor{buffer: buffer, items: items}}
}

func (r *ReadWriteDataSection) StoreI64(item, offset uint32, v int64)   { r.storeI64(item, offset, v) }
func (r *ReadWriteDataSection) StoreI32(item, offset uint32, v uint32)  { r.storeI32(item, offset, v) }
func (r *ReadWriteDataSection) StoreI16(item, offset uint32, v uint16)  { r.storeI16(item, offset, v) }
func (r *ReadWriteDataSection) StoreI8(item, offset uint32, v uint8)    { r.storeI8(item, offset, v) }
func (r *ReadWriteDataSection) StoreF32(item, offset uint32, v float32) { r.storeF32(item, offset, v) }
func (r *ReadWriteDataSection) StoreF64(item, offset uint32, v float64) { r.storeF64(item, offset, v) }

// UninitializedDataSection backs a module's BSS-like data: zero-initialized
// on creation, otherwise identical to ReadWriteDataSection.
type UninitializedDataSection struct{ baseDataAccessor }

// NewUninitializedDataSection allocates totalBytes of zeroed storage
// (Go's make already zero-fills on creation).
func NewUninitializedDataSection(totalBytes uint32, items []DataItemDescriptor) *UninitializedDataSection {
	return &UninitializedDataSection{baseDataAccessor{buffer: make([]byte, totalBytes), items: items}}
}

func (r *UninitializedDataSection) StoreI64(item, offset uint32, v int64)   { r.storeI64(item, offset, v) }
func (r *UninitializedDataSection) StoreI32(item, offset uint32, v uint32)  { r.storeI32(item, offset, v) }
func (r *UninitializedDataSection) StoreI16(item, offset uint32, v uint16)  { r.storeI16(item, offset, v) }
func (r *UninitializedDataSection) StoreI8(item, offset uint32, v uint8)    { r.storeI8(item, offset, v) }
func (r *UninitializedDataSection) StoreF32(item, offset uint32, v float32) { r.storeF32(item, offset, v) }
func (r *UninitializedDataSection) StoreF64(item, offset uint32, v float64) { r.storeF64(item, offset, v) }

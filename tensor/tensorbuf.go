package tensor

// TensorBuf is a logical memory region identified by an integer id. It is
// owned by exactly one op graph (the Model that created it) and is
// referenced by one or more Tensor views. The buffer's physical binding
// is filled in later by the buffer planner (C4); until then Addr is nil.
// The cross-rank stream id is set by whoever creates the buffer.
type TensorBuf struct {
	ID    int
	Bytes int64

	// Physical fields, filled by the buffer planner. Addr is nil until
	// planning assigns this buffer an arena offset (or resolves an import).
	Addr *PhysicalAddress

	// StreamID is the cross-rank transfer key (sid in spec terms), or -1
	// if this buffer never crosses a rank boundary. It mirrors the sid
	// carried by any Tensor view marked Exported, but lives on the buffer
	// because multiple tensors can share one buffer and the sid is a
	// buffer-level publish/subscribe key, not a per-view one.
	StreamID int
}

// PhysicalAddress is the device-resident location a TensorBuf has been
// bound to, either locally allocated or imported from a remote rank.
type PhysicalAddress struct {
	GPUID  int
	Offset int64
}

// NewTensorBuf creates a TensorBuf with the given byte size and id. The
// stream id defaults to -1 (local-only); set StreamID to change it.
func NewTensorBuf(bytes int64, id int) *TensorBuf {
	return &TensorBuf{ID: id, Bytes: bytes, StreamID: -1}
}

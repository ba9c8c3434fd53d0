package gpusched

//go:generate go tool enumer -type=ErrorKind -json -transform=snake errors.go

// ErrorKind identifies which fatal condition aborted Schedule.
type ErrorKind int

const (
	ShapeInvalid ErrorKind = iota
	CyclicGraph
	OutOfDeviceMemory
	ImportUnresolved
	ExportConflict
	PackerInfeasible
	CodegenUnsupported
	ProfilerTimeout
)

// SchedError is the error type every fatal Schedule failure is wrapped
// in. Context carries whatever identifying detail the failing phase had
// on hand (tensor/op/buffer ids, sids, depths) for diagnostics.
type SchedError struct {
	Kind    ErrorKind
	Context map[string]any
	Cause   error
}

func (e *SchedError) Error() string {
	if e.Cause != nil {
		return e.Kind.String() + ": " + e.Cause.Error()
	}
	return e.Kind.String()
}

func (e *SchedError) Unwrap() error {
	return e.Cause
}

// newSchedError wraps cause under kind with the given context, or
// returns nil if cause is nil.
func newSchedError(kind ErrorKind, cause error, context map[string]any) error {
	if cause == nil {
		return nil
	}
	return &SchedError{Kind: kind, Context: context, Cause: cause}
}

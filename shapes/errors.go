package shapes

import "github.com/pkg/errors"

// ErrShapeInvalid is the sentinel cause wrapped by every shape-validation
// failure in this package; callers can test with errors.Is.
var ErrShapeInvalid = errors.New("ShapeInvalid")

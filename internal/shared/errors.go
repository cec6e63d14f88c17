package shared

import "errors"

// ErrInvalidState indicates a document transition that its status forbids.
var ErrInvalidState = errors.New("invalid document state")

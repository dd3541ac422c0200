package core

import "errors"

// ErrInvalidPinIndex is returned by ports built with StrictPins when a pin
// index falls outside the port. Other ports log and ignore the access.
var ErrInvalidPinIndex = errors.New("invalid pin index")

// MaxPins is the largest port width; status views are 64-bit masks
const MaxPins = 64

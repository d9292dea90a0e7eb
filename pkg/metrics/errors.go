package metrics

import (
	"errors"
)

// Sentinel kinds for metrics errors.
var (
	ErrInvalidOptions = errors.New("invalid metrics options")
)

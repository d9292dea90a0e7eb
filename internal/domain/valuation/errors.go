package valuation

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrInvalidConfiguration = errors.New("invalid model configuration")
	ErrModelExecution       = errors.New("model execution failed")
)

// ConfigurationError reports an unusable Configuration. It is fatal at startup.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid model configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrInvalidConfiguration }

// ModelExecutionError reports a failure while computing a valuation.
type ModelExecutionError struct {
	DataID string
	Model  string
	Cause  error
}

func (e *ModelExecutionError) Error() string {
	return fmt.Sprintf("model %s failed for data_id %s: %v", e.Model, e.DataID, e.Cause)
}

// Diagnostic returns the underlying failure text without the envelope.
func (e *ModelExecutionError) Diagnostic() string {
	if e.Cause == nil {
		return ErrModelExecution.Error()
	}
	return e.Cause.Error()
}

func (e *ModelExecutionError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrModelExecution}
	}
	return []error{ErrModelExecution, e.Cause}
}

package toolexecutor

import (
	"errors"
	"fmt"
)

var (
	// ErrToolNotFound is returned when a call names an unregistered tool.
	ErrToolNotFound = errors.New("tool not found")

	// ErrRegistrySealed is returned by Register after Seal.
	ErrRegistrySealed = errors.New("tool registry is sealed")
)

// ToolExecutionError reports a failed invocation of a registered tool:
// invalid arguments, a handler error, a timeout or a handler panic.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}

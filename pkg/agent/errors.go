package agent

import "fmt"

// ModelInvocationError reports a failed call to the language model. It ends
// the run; the loop never retries.
type ModelInvocationError struct {
	Provider string
	Err      error
}

func (e *ModelInvocationError) Error() string {
	return fmt.Sprintf("model invocation failed (%s): %v", e.Provider, e.Err)
}

func (e *ModelInvocationError) Unwrap() error {
	return e.Err
}

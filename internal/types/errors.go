package types

import "fmt"

// InvalidInputError rejects bad user input (out-of-range coordinate,
// unparseable timestamp) before any provider call is made.
type InvalidInputError struct {
	Msg string
}

func (e InvalidInputError) Error() string {
	return e.Msg
}

// ProviderError wraps a failed or malformed response from an external
// collaborator (directions, weather).
type ProviderError struct {
	Provider string
	Msg      string
	Err      error
}

func (e ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %v: %v", e.Provider, e.Msg, e.Err.Error())
	}
	return fmt.Sprintf("%v: %v", e.Provider, e.Msg)
}

func (e ProviderError) Unwrap() error {
	return e.Err
}

// ModelSchemaError means the engineered feature table does not match what the
// trained model expects. This must fail loudly, never default.
type ModelSchemaError struct {
	Msg string
}

func (e ModelSchemaError) Error() string {
	return e.Msg
}

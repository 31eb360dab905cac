package llm

import (
	"fmt"
)

// TransportError is a network failure or timeout talking to the model endpoint.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "model transport: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// StatusError is a non-2xx answer from the model endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("model endpoint returned HTTP %d: %s", e.Code, e.Body)
}

// QualityError is a well-formed response that is too short to be useful.
type QualityError struct {
	Length int
	Min    int
}

func (e *QualityError) Error() string {
	return fmt.Sprintf("model response too short: %d chars, want at least %d", e.Length, e.Min)
}

// ExhaustedError is returned once every attempt has failed. Last is the
// failure of the final attempt.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("model call failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

package fireeye

import "fmt"

// APIError is a non-2xx answer from the appliance.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fireeye api error (status %d): %s", e.StatusCode, e.Message)
}

// NetworkError is a failure to reach the appliance or read its answer.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

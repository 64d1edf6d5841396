package dataconnect

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidPRM          = errors.New("invalid prm")
	ErrInvalidRedirectURI  = errors.New("invalid redirect uri")
	ErrInvalidClientID     = errors.New("invalid client id")
	ErrInvalidClientSecret = errors.New("invalid client secret")

	// ErrAccessDenied is returned when the API answers with anything but a 200.
	ErrAccessDenied = errors.New("access denied")
	// ErrInvalidToken is returned when the token endpoint answers 200 without
	// any token data.
	ErrInvalidToken = errors.New("invalid token")
)

// RequestError is returned once every attempt of a call has failed. Err is
// the failure of the last attempt.
type RequestError struct {
	Method   string
	URL      string
	Attempts int
	Err      error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s %s failed after %d attempts: %v", e.Method, e.URL, e.Attempts, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// statusError records an unexpected status code. It always matches
// ErrAccessDenied.
type statusError struct {
	StatusCode int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: status %d", ErrAccessDenied, e.StatusCode)
}

func (e *statusError) Is(target error) bool {
	return target == ErrAccessDenied
}

// StatusCode returns the HTTP status that caused err, or 0 if err did not come
// from an unexpected response.
func StatusCode(err error) int {
	var se *statusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

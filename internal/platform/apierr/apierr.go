package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error is the error type every layer returns when the failure must reach a
// client with a specific status. Details is copied verbatim into the JSON
// envelope; RetryAfter becomes a Retry-After header.
type Error struct {
	Status     int
	Code       string
	Err        error
	Details    map[string]any
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by code so callers can compare against the
// package-level kinds with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return t.Code != "" && t.Code == e.Code && t.Err == nil
}

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// WithDetails returns e after merging kv into its details.
func (e *Error) WithDetails(kv map[string]any) *Error {
	if e == nil || len(kv) == 0 {
		return e
	}
	if e.Details == nil {
		e.Details = make(map[string]any, len(kv))
	}
	for k, v := range kv {
		e.Details[k] = v
	}
	return e
}

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) && ae != nil {
		return ae, true
	}
	return nil, false
}

// StatusOf returns the HTTP status carried by err, 500 when none.
func StatusOf(err error) int {
	if ae, ok := As(err); ok && ae.Status != 0 {
		return ae.Status
	}
	return http.StatusInternalServerError
}

// CodeOf returns the code carried by err, "internal_error" when none.
func CodeOf(err error) string {
	if ae, ok := As(err); ok && ae.Code != "" {
		return ae.Code
	}
	return "internal_error"
}

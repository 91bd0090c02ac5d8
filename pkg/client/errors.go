package client

import "fmt"

// AuthError - credentials or refresh token were rejected by the vendor cloud.
// Not retried automatically; the caller needs a full re-login.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: authentication rejected: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: authentication rejected, re-login required", e.Op)
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransientError - network timeout, connection failure or 5xx response.
// Safe to retry on the next scheduled poll.
type TransientError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: server responded with status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ProtocolError - unexpected status code or malformed top-level JSON
type ProtocolError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: malformed response: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// PartialDataError - a nested JSON-encoded field could not be parsed.
// The field is dropped; the rest of the record stays usable.
type PartialDataError struct {
	Field string
	Err   error
}

func (e *PartialDataError) Error() string {
	return fmt.Sprintf("field %q dropped: %v", e.Field, e.Err)
}

func (e *PartialDataError) Unwrap() error { return e.Err }

// MFARequiredError - login requires a multi-factor challenge response
type MFARequiredError struct {
	Session   string
	Challenge string
	Username  string
}

func (e *MFARequiredError) Error() string {
	return fmt.Sprintf("MFA challenge %s required", e.Challenge)
}

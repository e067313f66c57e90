package remote

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuthenticationFailed means the ERP refused the configured credentials.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrMissingCredentials means the credential set is incomplete for the selected scheme.
	ErrMissingCredentials = errors.New("missing credentials")
	// ErrRemoteUnavailable covers transport failures, timeouts and an open circuit.
	ErrRemoteUnavailable = errors.New("remote unavailable")
	// ErrRemoteRejected matches every *RejectedError.
	ErrRemoteRejected = errors.New("remote rejected request")
)

// RejectedError is an application-level refusal: a non-2xx status or success:false.
type RejectedError struct {
	StatusCode int
	Message    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("remote rejected request (status %d): %s", e.StatusCode, e.Message)
}

// Is makes errors.Is(err, ErrRemoteRejected) true for every RejectedError.
func (e *RejectedError) Is(target error) bool { return target == ErrRemoteRejected }

// IsTransient reports whether err is likely to succeed on a later attempt:
// transport failures, throttling and server-side faults.
func IsTransient(err error) bool {
	if errors.Is(err, ErrRemoteUnavailable) {
		return true
	}
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return rejected.StatusCode == http.StatusTooManyRequests || rejected.StatusCode >= http.StatusInternalServerError
	}
	return false
}

package types

import "errors"

// Error classes used across the sync path. Validation errors are the
// caller's bug and are never retried; auth errors trigger the
// re-authentication flow; transient errors are absorbed by the next
// scheduled cycle. A consistency violation should be unreachable given
// the identity rules and is treated as a fatal bug, not a retry target.
var (
	ErrAuth        = errors.New("authentication failed")
	ErrTransient   = errors.New("transient failure")
	ErrRejected    = errors.New("request rejected")
	ErrConsistency = errors.New("consistency violation")
)

// IsAuthError reports whether err belongs to the auth class.
func IsAuthError(err error) bool { return errors.Is(err, ErrAuth) }

// IsTransient reports whether err belongs to the transient IO class.
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }

// IsValidation reports whether err is a malformed-input error, either
// caught locally or rejected by the server with a 4xx.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidAccountKey) || errors.Is(err, ErrRejected)
}

package domain

import "errors"

// Sentinel errors returned by domain services. Route handlers map these to
// HTTP status codes in one place (internal/httpapi/responder.go); services
// themselves never know about HTTP.
var (
	// ErrUnauthenticated means no valid session was attached to the request.
	ErrUnauthenticated = errors.New("domain: unauthenticated")
	// ErrForbidden means AccessPolicy denied the action, or a CSRF check failed.
	ErrForbidden = errors.New("domain: forbidden")
	// ErrNotFound means the requested resource does not exist.
	ErrNotFound = errors.New("domain: not found")
	// ErrConflict means a uniqueness constraint was violated (username, employee_id, email).
	ErrConflict = errors.New("domain: conflict")
	// ErrRateLimited means the caller exceeded a rate-limit bucket.
	ErrRateLimited = errors.New("domain: rate limited")
	// ErrLocked means the account is in a lockout window.
	ErrLocked = errors.New("domain: account locked")
	// ErrBusy means the write queue is under pressure and shed the request.
	ErrBusy = errors.New("domain: busy")
	// ErrInvalidCredentials is returned for any login failure, deliberately
	// generic so callers cannot distinguish "unknown user" from "bad password".
	ErrInvalidCredentials = errors.New("domain: invalid credentials")
	// ErrPasswordReused means the candidate digest matches a recent history entry.
	ErrPasswordReused = errors.New("domain: password recently used")
	// ErrInvalidTransition means a package status transition is not allowed
	// from the package's current state.
	ErrInvalidTransition = errors.New("domain: invalid status transition")
	// ErrRecipientInactive means the recipient cannot receive new packages.
	ErrRecipientInactive = errors.New("domain: recipient inactive")
	// ErrOpenPackages means a recipient cannot be deactivated while they still
	// have packages in a non-terminal state.
	ErrOpenPackages = errors.New("domain: recipient has open packages")
)

// ValidationError captures field level validation issues that callers can
// surface to users without leaking internal identifiers.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil || len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

package service

import "errors"

var (
	// ErrInvalidCredentials hides whether the username or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized means no usable caller identity is available.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidSession means a bearer token was presented but the backend rejected it.
	ErrInvalidSession = errors.New("invalid session")
	// ErrForbidden means the caller is authenticated but lacks the admin role.
	ErrForbidden = errors.New("admin access required")
	// ErrCannotDeleteSelf stops an admin from deleting their own account through the admin routes.
	ErrCannotDeleteSelf = errors.New("cannot delete your own account")
	// ErrCannotChangeOwnRole stops an admin from demoting themselves.
	ErrCannotChangeOwnRole = errors.New("cannot change your own role")
)

// ValidationError carries a message that is safe to show to the caller verbatim.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(msg string) error {
	return &ValidationError{Message: msg}
}

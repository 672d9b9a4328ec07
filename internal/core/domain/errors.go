package domain

import "errors"

var (
	ErrUserNotFound = errors.New("user not found")
	ErrRoleNotFound = errors.New("role not found")
	// ErrConflict is returned when a unique column (username, email, role name)
	// already holds the submitted value.
	ErrConflict = errors.New("resource already exists")
)

// IsDomainError reports whether err is an expected business outcome rather than
// an infrastructure failure. Domain outcomes are never retried and never count
// against a circuit breaker.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrRoleNotFound) ||
		errors.Is(err, ErrConflict)
}

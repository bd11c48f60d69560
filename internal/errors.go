package internal

import (
	"errors"
	"fmt"
)

// Error kinds. Handlers map these to HTTP status codes.
var (
	ErrValidation = errors.New("validation error")
	ErrAuth       = errors.New("unauthorized")
	ErrNotFound   = errors.New("not found")
	ErrDomain     = errors.New("operation rejected")
	ErrStorage    = errors.New("storage error")
	ErrUpstream   = errors.New("upstream error")
)

var (
	ErrInvalidURL        = fmt.Errorf("%w: invalid URL, provide a valid URL with http:// or https://", ErrValidation)
	ErrInvalidObjectID   = fmt.Errorf("%w: invalid object ID", ErrValidation)
	ErrShortIDExists     = fmt.Errorf("%w: short id already exists", ErrDomain)
	ErrAccountIDExists   = fmt.Errorf("%w: account id already exists", ErrDomain)
	ErrLinkNotFound      = fmt.Errorf("%w: link not found", ErrNotFound)
	ErrAccountNotFound   = fmt.Errorf("%w: user not found", ErrNotFound)
	ErrSessionNotFound   = fmt.Errorf("%w: session not found", ErrNotFound)
	ErrAnalyticsNotFound = fmt.Errorf("%w: no analytics found", ErrNotFound)
	ErrSessionInvalid    = fmt.Errorf("%w: session has been revoked", ErrAuth)
	ErrCannotDeleteSelf  = fmt.Errorf("%w: you cannot delete your own account from admin panel", ErrDomain)
	ErrCannotDeleteAdmin = fmt.Errorf("%w: cannot delete admin accounts", ErrDomain)
	ErrCannotToggleSelf  = fmt.Errorf("%w: you cannot change your own admin status", ErrDomain)
	ErrNoChange          = fmt.Errorf("%w: no changes were made", ErrDomain)
)

// StorageError wraps a persistence failure so callers can match it with ErrStorage
// while keeping the driver error in the chain.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

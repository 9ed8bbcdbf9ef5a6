package session

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrNotSignedIn      = errors.New("not signed in")
	ErrNotAdmin         = errors.New("admin access required")
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotVerified      = errors.New("identity not verified")
	ErrInvalidAdminCode = errors.New("invalid admin code")
	ErrClosed           = errors.New("session closed")
)

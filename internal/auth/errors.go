package auth

import "errors"

var (
	// ErrTokenInvalid is returned for a malformed, expired or wrongly
	// signed token.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrUnknownScope is returned for a scope other than read or write.
	ErrUnknownScope = errors.New("auth: unknown scope")
)

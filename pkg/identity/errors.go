package identity

import "errors"

var (
	ErrMissingToken      = errors.New("identity: missing token")
	ErrInvalidToken      = errors.New("identity: invalid token")
	ErrInvalidUser       = errors.New("identity: token carries no user id")
	ErrMissingSigningKey = errors.New("identity: missing signing key")
)

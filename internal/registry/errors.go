package registry

import "errors"

var (
	ErrEmptyIdentity     = errors.New("identity cannot be empty")
	ErrAlreadyRegistered = errors.New("identity is already registered")
)

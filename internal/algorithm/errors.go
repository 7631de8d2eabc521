package algorithm

import "errors"

// Domain errors returned by the registry and the components built on it.
// Callers branch with errors.Is; HTTP handlers map them onto status codes.
var (
	ErrInvalidSpec     = errors.New("invalid algorithm spec")
	ErrAlreadyExists   = errors.New("algorithm already exists")
	ErrNotFound        = errors.New("algorithm not found")
	ErrNothingToUpdate = errors.New("nothing to update")
)

package service

import "errors"

// Auth errors map to 401 and 403 at the HTTP boundary.
var (
	ErrUnauthorized = errors.New("missing or unknown credentials")
	ErrForbidden    = errors.New("credentials lack the required tier")
)

// Tier is the access level a credential grants.
type Tier int

const (
	// TierNone means the credential was not recognized.
	TierNone Tier = iota
	// TierRead allows the admin read operations.
	TierRead
	// TierWrite allows every admin operation.
	TierWrite
)

// Authorizer resolves a bearer token to a tier.
type Authorizer interface {
	TierOf(token string) Tier
}

// StaticTokens authorizes against two fixed tokens from configuration.
type StaticTokens struct {
	Admin  string
	Reader string
}

// TierOf returns the tier for the token; an empty configured token never
// matches.
func (s StaticTokens) TierOf(token string) Tier {
	if token == "" {
		return TierNone
	}
	switch token {
	case s.Admin:
		return TierWrite
	case s.Reader:
		return TierRead
	}
	return TierNone
}

// authorize checks that the token reaches the required tier.
func authorize(auth Authorizer, token string, required Tier) error {
	tier := auth.TierOf(token)
	if tier == TierNone {
		return ErrUnauthorized
	}
	if tier < required {
		return ErrForbidden
	}
	return nil
}

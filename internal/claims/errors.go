package claims

import "errors"

var (
	// ErrNotFound is returned when the record does not exist.
	ErrNotFound = errors.New("analysis not found")
	// ErrAlreadyClaimed is returned once a record has an owner.
	ErrAlreadyClaimed = errors.New("analysis already claimed")
	// ErrInvalidToken is returned when the supplied claim token does not match.
	ErrInvalidToken = errors.New("invalid claim token")
	// ErrAccountNotFound is returned when the claiming account does not exist.
	ErrAccountNotFound = errors.New("account not found")
)

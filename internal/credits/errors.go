package credits

import "errors"

var (
	// ErrInsufficientCredit is returned when a debit finds a zero balance after the daily refresh.
	ErrInsufficientCredit = errors.New("insufficient credit")
	ErrNotFound           = errors.New("account not found")
	ErrInvalidInput       = errors.New("invalid input")
)

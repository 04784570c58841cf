package ledger

import "errors"

var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrInvalidAccountID = errors.New("account id must not be empty")
	ErrUnknownTier      = errors.New("unknown tier")
	ErrInvalidPayment   = errors.New("invalid payment")
)

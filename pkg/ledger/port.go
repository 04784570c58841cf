package ledger

import (
	"context"
	"time"
)

// Store is the backing store of the ledger. IncrementUsage must be a single
// atomic step on the store side so that concurrent consumers never lose an
// increment.
type Store interface {
	// GetAccount returns ErrAccountNotFound when no record exists.
	GetAccount(ctx context.Context, id string) (Account, error)
	// IncrementUsage adds one request to the account, creating it from seed
	// first when absent, and stamps the last used time.
	IncrementUsage(ctx context.Context, seed Account, at time.Time) (Account, error)
	// UpdateAccount applies u. With a nil seed a missing account yields
	// ErrAccountNotFound, otherwise the account is created from seed first.
	UpdateAccount(ctx context.Context, id string, u Update, seed *Account, at time.Time) (Account, error)
	AppendPayment(ctx context.Context, p Payment) error
	ListPayments(ctx context.Context, accountID string) ([]Payment, error)
}

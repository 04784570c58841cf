package ledger

import (
	"context"
	"slices"
	"sync"
	"time"
)

type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]Account
	payments map[string][]Payment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]Account),
		payments: make(map[string][]Payment),
	}
}

func (s *MemoryStore) GetAccount(ctx context.Context, id string) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return acc, nil
}

func (s *MemoryStore) IncrementUsage(ctx context.Context, seed Account, at time.Time) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[seed.ID]
	if !ok {
		acc = seed
	}
	acc.RequestsUsed++
	acc.LastUsedAt = at
	acc.UpdatedAt = at
	s.accounts[seed.ID] = acc
	return acc, nil
}

func (s *MemoryStore) UpdateAccount(ctx context.Context, id string, u Update, seed *Account, at time.Time) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		if seed == nil {
			return Account{}, ErrAccountNotFound
		}
		acc = *seed
	}
	acc = u.apply(acc)
	acc.UpdatedAt = at
	s.accounts[id] = acc
	return acc, nil
}

func (s *MemoryStore) AppendPayment(ctx context.Context, p Payment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.payments[p.AccountID] = append(s.payments[p.AccountID], p)
	return nil
}

func (s *MemoryStore) ListPayments(ctx context.Context, accountID string) ([]Payment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.payments[accountID]), nil
}

package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github/martinmaurice/llmgate/pkg/config"
)

// Service is the usage ledger. CanConsume and Consume are separate calls, so
// two concurrent requests may both pass CanConsume for the last remaining
// slot and push the used count past the limit by the number of requests in
// flight. Consume itself never loses an increment.
type Service struct {
	store Store
	cfg   config.LedgerConfig
	now   func() time.Time
}

type Option func(s *Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(store Store, cfg config.LedgerConfig, opts ...Option) *Service {
	s := &Service{
		store: store,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) seed(accountID string) Account {
	now := s.now()
	return Account{
		ID:            accountID,
		Tier:          s.cfg.DefaultTier,
		RequestsLimit: s.cfg.DefaultLimit(),
		Status:        StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// GetQuota returns the account quota, or the default tier quota when the
// account has no record yet. It never creates a record.
func (s *Service) GetQuota(ctx context.Context, accountID string) (Quota, error) {
	if accountID == "" {
		return Quota{}, ErrInvalidAccountID
	}

	acc, err := s.store.GetAccount(ctx, accountID)
	if errors.Is(err, ErrAccountNotFound) {
		return quotaOf(s.seed(accountID)), nil
	}
	if err != nil {
		return Quota{}, fmt.Errorf("get account: %w", err)
	}
	return quotaOf(acc), nil
}

// CanConsume reports whether one more request fits in the quota. Suspended
// accounts can never consume.
func (s *Service) CanConsume(ctx context.Context, accountID string) (bool, error) {
	q, err := s.GetQuota(ctx, accountID)
	if err != nil {
		return false, err
	}
	if q.Status == StatusSuspended {
		return false, nil
	}
	return q.Used < q.Limit, nil
}

// Consume records one request. The first consume of an unknown account
// creates it on the default tier.
func (s *Service) Consume(ctx context.Context, accountID string) (Quota, error) {
	if accountID == "" {
		return Quota{}, ErrInvalidAccountID
	}

	acc, err := s.store.IncrementUsage(ctx, s.seed(accountID), s.now())
	if err != nil {
		return Quota{}, fmt.Errorf("increment usage: %w", err)
	}
	return quotaOf(acc), nil
}

// SetTier moves the account to tier and sets its limit from the tier table.
// Unknown accounts are created.
func (s *Service) SetTier(ctx context.Context, accountID, tier string) (Quota, error) {
	if accountID == "" {
		return Quota{}, ErrInvalidAccountID
	}

	limit, ok := s.cfg.Tiers[tier]
	if !ok {
		return Quota{}, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}

	seed := s.seed(accountID)
	acc, err := s.store.UpdateAccount(ctx, accountID, Update{Tier: &tier, RequestsLimit: &limit}, &seed, s.now())
	if err != nil {
		return Quota{}, fmt.Errorf("set tier: %w", err)
	}

	slog.Info("account tier changed", "account_id", accountID, "tier", tier, "limit", limit)
	return quotaOf(acc), nil
}

func (s *Service) SetStatus(ctx context.Context, accountID string, status Status) (Quota, error) {
	if accountID == "" {
		return Quota{}, ErrInvalidAccountID
	}
	if !status.IsValid() {
		return Quota{}, fmt.Errorf("unknown status %q", status)
	}

	acc, err := s.store.UpdateAccount(ctx, accountID, Update{Status: &status}, nil, s.now())
	if err != nil {
		return Quota{}, fmt.Errorf("set status: %w", err)
	}

	slog.Info("account status changed", "account_id", accountID, "status", status)
	return quotaOf(acc), nil
}

// ResetUsage zeroes the used counter. It is called on billing cycle
// boundaries.
func (s *Service) ResetUsage(ctx context.Context, accountID string) (Quota, error) {
	if accountID == "" {
		return Quota{}, ErrInvalidAccountID
	}

	acc, err := s.store.UpdateAccount(ctx, accountID, Update{ResetUsage: true}, nil, s.now())
	if err != nil {
		return Quota{}, fmt.Errorf("reset usage: %w", err)
	}
	return quotaOf(acc), nil
}

// RecordPayment appends a payment event. A payment naming a tier also moves
// the account to that tier.
func (s *Service) RecordPayment(ctx context.Context, p Payment) (Payment, error) {
	if p.AccountID == "" {
		return Payment{}, ErrInvalidAccountID
	}
	if p.Amount <= 0 {
		return Payment{}, fmt.Errorf("%w: amount must be positive", ErrInvalidPayment)
	}
	p.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))
	if len(p.Currency) != 3 {
		return Payment{}, fmt.Errorf("%w: currency must be a 3 letter code", ErrInvalidPayment)
	}
	if p.Tier != "" {
		if _, ok := s.cfg.Tiers[p.Tier]; !ok {
			return Payment{}, fmt.Errorf("%w: %q", ErrUnknownTier, p.Tier)
		}
	}

	p.ID = uuid.NewString()
	p.CreatedAt = s.now()
	if err := s.store.AppendPayment(ctx, p); err != nil {
		return Payment{}, fmt.Errorf("append payment: %w", err)
	}

	if p.Tier != "" {
		if _, err := s.SetTier(ctx, p.AccountID, p.Tier); err != nil {
			return p, err
		}
	}

	slog.Info("payment recorded", "account_id", p.AccountID, "payment_id", p.ID, "amount", p.Amount, "currency", p.Currency)
	return p, nil
}

func (s *Service) ListPayments(ctx context.Context, accountID string) ([]Payment, error) {
	if accountID == "" {
		return nil, ErrInvalidAccountID
	}

	payments, err := s.store.ListPayments(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

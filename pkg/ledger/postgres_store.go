package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const accountColumns = `id, tier, requests_used, requests_limit, status, last_used_at, created_at, updated_at`

type PostgresStore struct {
	DB *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{DB: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (Account, error) {
	var (
		acc        Account
		status     string
		lastUsedAt sql.NullTime
	)
	if err := row.Scan(
		&acc.ID,
		&acc.Tier,
		&acc.RequestsUsed,
		&acc.RequestsLimit,
		&status,
		&lastUsedAt,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	); err != nil {
		return Account{}, err
	}
	acc.Status = Status(status)
	if lastUsedAt.Valid {
		acc.LastUsedAt = lastUsedAt.Time
	}
	return acc, nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, id string) (Account, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	acc, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("select account: %w", err)
	}
	return acc, nil
}

// IncrementUsage relies on the row lock taken by INSERT ... ON CONFLICT DO
// UPDATE, so concurrent increments are serialized by Postgres.
func (s *PostgresStore) IncrementUsage(ctx context.Context, seed Account, at time.Time) (Account, error) {
	row := s.DB.QueryRowContext(ctx, `
INSERT INTO accounts (id, tier, requests_used, requests_limit, status, last_used_at, created_at, updated_at)
VALUES ($1, $2, 1, $3, $4, $5, $6, $5)
ON CONFLICT (id) DO UPDATE SET
    requests_used = accounts.requests_used + 1,
    last_used_at = EXCLUDED.last_used_at,
    updated_at = EXCLUDED.updated_at
RETURNING `+accountColumns,
		seed.ID, seed.Tier, seed.RequestsLimit, string(seed.Status), at, seed.CreatedAt)

	acc, err := scanAccount(row)
	if err != nil {
		return Account{}, fmt.Errorf("increment usage: %w", err)
	}
	return acc, nil
}

func (s *PostgresStore) UpdateAccount(ctx context.Context, id string, u Update, seed *Account, at time.Time) (Account, error) {
	var (
		tier   sql.NullString
		limit  sql.NullInt64
		status sql.NullString
	)
	if u.Tier != nil {
		tier = sql.NullString{String: *u.Tier, Valid: true}
	}
	if u.RequestsLimit != nil {
		limit = sql.NullInt64{Int64: *u.RequestsLimit, Valid: true}
	}
	if u.Status != nil {
		status = sql.NullString{String: string(*u.Status), Valid: true}
	}

	var row *sql.Row
	if seed == nil {
		row = s.DB.QueryRowContext(ctx, `
UPDATE accounts SET
    tier = COALESCE($2, tier),
    requests_limit = COALESCE($3, requests_limit),
    status = COALESCE($4, status),
    requests_used = CASE WHEN $5 THEN 0 ELSE requests_used END,
    updated_at = $6
WHERE id = $1
RETURNING `+accountColumns,
			id, tier, limit, status, u.ResetUsage, at)
	} else {
		created := u.apply(*seed)
		row = s.DB.QueryRowContext(ctx, `
INSERT INTO accounts (id, tier, requests_used, requests_limit, status, created_at, updated_at)
VALUES ($1, $2, 0, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
    tier = COALESCE($7, accounts.tier),
    requests_limit = COALESCE($8, accounts.requests_limit),
    status = COALESCE($9, accounts.status),
    requests_used = CASE WHEN $10 THEN 0 ELSE accounts.requests_used END,
    updated_at = EXCLUDED.updated_at
RETURNING `+accountColumns,
			id, created.Tier, created.RequestsLimit, string(created.Status), seed.CreatedAt, at,
			tier, limit, status, u.ResetUsage)
	}

	acc, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("update account: %w", err)
	}
	return acc, nil
}

func (s *PostgresStore) AppendPayment(ctx context.Context, p Payment) error {
	var tier sql.NullString
	if p.Tier != "" {
		tier = sql.NullString{String: p.Tier, Valid: true}
	}

	_, err := s.DB.ExecContext(ctx, `
INSERT INTO payments (id, account_id, amount, currency, tier, reference, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.AccountID, p.Amount, p.Currency, tier, p.Reference, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListPayments(ctx context.Context, accountID string) ([]Payment, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, account_id, amount, currency, tier, reference, created_at
FROM payments
WHERE account_id = $1
ORDER BY created_at, id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("select payments: %w", err)
	}
	defer rows.Close()

	payments := make([]Payment, 0)
	for rows.Next() {
		var (
			p    Payment
			tier sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.AccountID, &p.Amount, &p.Currency, &tier, &p.Reference, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		p.Tier = tier.String
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

package ledger

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	accountKeyPrefix = "ledger:account:"
	paymentKeyPrefix = "ledger:payments:"
)

//go:embed redis_lua/update_account.lua
var updateAccountScriptSource string

var updateAccountScript = redis.NewScript(updateAccountScriptSource)

type RedisStore struct {
	dB *redis.Client
}

func NewRedisStore(db *redis.Client) *RedisStore {
	return &RedisStore{dB: db}
}

type redisAccount struct {
	Tier          string `redis:"tier"`
	RequestsUsed  int64  `redis:"requests_used"`
	RequestsLimit int64  `redis:"requests_limit"`
	Status        string `redis:"status"`
	LastUsedAt    int64  `redis:"last_used_at"`
	CreatedAt     int64  `redis:"created_at"`
	UpdatedAt     int64  `redis:"updated_at"`
}

func (ra redisAccount) toAccount(id string) Account {
	acc := Account{
		ID:            id,
		Tier:          ra.Tier,
		RequestsUsed:  ra.RequestsUsed,
		RequestsLimit: ra.RequestsLimit,
		Status:        Status(ra.Status),
		CreatedAt:     time.UnixMilli(ra.CreatedAt).UTC(),
		UpdatedAt:     time.UnixMilli(ra.UpdatedAt).UTC(),
	}
	if ra.LastUsedAt > 0 {
		acc.LastUsedAt = time.UnixMilli(ra.LastUsedAt).UTC()
	}
	return acc
}

func accountKey(id string) string {
	return accountKeyPrefix + id
}

func paymentKey(accountID string) string {
	return paymentKeyPrefix + accountID
}

func (r *RedisStore) GetAccount(ctx context.Context, id string) (Account, error) {
	res := r.dB.HGetAll(ctx, accountKey(id))
	fields, err := res.Result()
	if err != nil {
		return Account{}, err
	}
	if len(fields) == 0 {
		return Account{}, ErrAccountNotFound
	}

	var ra redisAccount
	if err := res.Scan(&ra); err != nil {
		return Account{}, fmt.Errorf("scan account %s: %w", id, err)
	}
	return ra.toAccount(id), nil
}

// IncrementUsage seeds the missing fields, bumps the counter with HINCRBY and
// reads the result back inside one MULTI/EXEC transaction.
func (r *RedisStore) IncrementUsage(ctx context.Context, seed Account, at time.Time) (Account, error) {
	key := accountKey(seed.ID)

	var all *redis.MapStringStringCmd
	_, err := r.dB.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, "tier", seed.Tier)
		pipe.HSetNX(ctx, key, "requests_limit", seed.RequestsLimit)
		pipe.HSetNX(ctx, key, "status", string(seed.Status))
		pipe.HSetNX(ctx, key, "created_at", seed.CreatedAt.UnixMilli())
		pipe.HIncrBy(ctx, key, "requests_used", 1)
		pipe.HSet(ctx, key, "last_used_at", at.UnixMilli(), "updated_at", at.UnixMilli())
		all = pipe.HGetAll(ctx, key)
		return nil
	})
	if err != nil {
		return Account{}, err
	}

	var ra redisAccount
	if err := all.Scan(&ra); err != nil {
		return Account{}, fmt.Errorf("scan account %s: %w", seed.ID, err)
	}
	return ra.toAccount(seed.ID), nil
}

func (r *RedisStore) UpdateAccount(ctx context.Context, id string, u Update, seed *Account, at time.Time) (Account, error) {
	mustExist := "1"
	seedTier, seedLimit, seedStatus, seedCreatedAt := "", "0", "", "0"
	if seed != nil {
		mustExist = "0"
		seedTier = seed.Tier
		seedLimit = strconv.FormatInt(seed.RequestsLimit, 10)
		seedStatus = string(seed.Status)
		seedCreatedAt = strconv.FormatInt(seed.CreatedAt.UnixMilli(), 10)
	}

	var newTier, newLimit, newStatus, reset string
	if u.Tier != nil {
		newTier = *u.Tier
	}
	if u.RequestsLimit != nil {
		newLimit = strconv.FormatInt(*u.RequestsLimit, 10)
	}
	if u.Status != nil {
		newStatus = string(*u.Status)
	}
	if u.ResetUsage {
		reset = "1"
	}

	found, err := updateAccountScript.Run(
		ctx,
		r.dB,
		[]string{accountKey(id)},
		mustExist,
		at.UnixMilli(),
		seedTier,
		seedLimit,
		seedStatus,
		seedCreatedAt,
		newTier,
		newLimit,
		newStatus,
		reset,
	).Int()
	if err != nil {
		return Account{}, err
	}
	if found == 0 {
		return Account{}, ErrAccountNotFound
	}

	return r.GetAccount(ctx, id)
}

func (r *RedisStore) AppendPayment(ctx context.Context, p Payment) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return r.dB.RPush(ctx, paymentKey(p.AccountID), b).Err()
}

func (r *RedisStore) ListPayments(ctx context.Context, accountID string) ([]Payment, error) {
	raw, err := r.dB.LRange(ctx, paymentKey(accountID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	payments := make([]Payment, 0, len(raw))
	for _, item := range raw {
		var p Payment
		if err := json.Unmarshal([]byte(item), &p); err != nil {
			return nil, fmt.Errorf("decode payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, nil
}

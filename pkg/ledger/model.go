package ledger

import "time"

type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusSuspended
}

type Account struct {
	ID            string
	Tier          string
	RequestsUsed  int64
	RequestsLimit int64
	Status        Status
	LastUsedAt    time.Time // zero until the first consume
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Quota is the read model of an account served to callers.
type Quota struct {
	AccountID string `json:"accountId"`
	Tier      string `json:"tier"`
	Status    Status `json:"status"`
	Used      int64  `json:"used"`
	Limit     int64  `json:"limit"`
	Remaining int64  `json:"remaining"`
}

func quotaOf(a Account) Quota {
	return Quota{
		AccountID: a.ID,
		Tier:      a.Tier,
		Status:    a.Status,
		Used:      a.RequestsUsed,
		Limit:     a.RequestsLimit,
		Remaining: max(0, a.RequestsLimit-a.RequestsUsed),
	}
}

// Payment is an immutable payment event. Amount is in minor currency units.
type Payment struct {
	ID        string    `json:"id"`
	AccountID string    `json:"accountId"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Tier      string    `json:"tier,omitempty"`
	Reference string    `json:"reference,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Update lists the account fields to change. Nil fields are left untouched.
type Update struct {
	Tier          *string
	RequestsLimit *int64
	Status        *Status
	ResetUsage    bool
}

func (u Update) apply(a Account) Account {
	if u.Tier != nil {
		a.Tier = *u.Tier
	}
	if u.RequestsLimit != nil {
		a.RequestsLimit = *u.RequestsLimit
	}
	if u.Status != nil {
		a.Status = *u.Status
	}
	if u.ResetUsage {
		a.RequestsUsed = 0
	}
	return a
}

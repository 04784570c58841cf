package rate_limiter

import "time"

type RateLimiter interface {
	Admit(key string) (Decision, error)
}

type Storer interface {
	CheckAndUpdateFixedWindow(key string, maxRequests int, window time.Duration) (Decision, error)
}

// Admitter admits or denies a client key against one limiter group. An error
// means the storage could not decide, not that the key is over its limit.
type Admitter interface {
	Admit(key string) (Decision, error)
}

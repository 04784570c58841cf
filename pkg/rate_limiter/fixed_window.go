package rate_limiter

import "time"

type FixedWindowHandler interface {
	CheckAndUpdateFixedWindow(key string, maxRequests int, window time.Duration) (Decision, error)
}

type FixedWindow struct {
	MaxRequests      int           // requests admitted per window
	Window           time.Duration // window length, also the idle time after which a window is dropped
	rateLimitHandler FixedWindowHandler
}

func NewFixedWindow(handler FixedWindowHandler, options *FixedWindow) RateLimiter {
	options.rateLimitHandler = handler
	return options
}

func (fw *FixedWindow) Admit(key string) (Decision, error) {
	return fw.rateLimitHandler.CheckAndUpdateFixedWindow(key, fw.MaxRequests, fw.Window)
}

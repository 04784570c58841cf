package rate_limiter

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type MemoryStorage struct {
	windows sync.Map // key -> *fixedWindow
	now     func() time.Time
}

type fixedWindow struct {
	mu      sync.Mutex
	start   time.Time
	size    time.Duration
	count   int
	evicted bool
}

type MemoryStorageOption func(m *MemoryStorage)

func WithClock(now func() time.Time) MemoryStorageOption {
	return func(m *MemoryStorage) {
		m.now = now
	}
}

func NewMemoryStorage(opts ...MemoryStorageOption) *MemoryStorage {
	m := &MemoryStorage{now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CheckAndUpdateFixedWindow resets an expired window and counts the request
// under the window's own lock, so no caller can observe a reset window that
// has not been incremented yet.
func (m *MemoryStorage) CheckAndUpdateFixedWindow(key string, maxRequests int, window time.Duration) (Decision, error) {
	for {
		w := m.load(key)

		w.mu.Lock()
		if w.evicted {
			// swept between load and lock, retry on a fresh window
			w.mu.Unlock()
			continue
		}

		now := m.now()
		if w.start.IsZero() || !now.Before(w.start.Add(window)) {
			slog.Debug("starting new window", "key", key)
			w.start = now
			w.count = 0
		}
		w.size = window
		w.count++

		d := Decision{
			Allowed:   w.count <= maxRequests,
			Limit:     maxRequests,
			Remaining: max(0, maxRequests-w.count),
			ResetAt:   w.start.Add(window),
		}
		if !d.Allowed {
			d.RetryAfter = d.ResetAt.Sub(now)
		}
		w.mu.Unlock()

		return d, nil
	}
}

func (m *MemoryStorage) load(key string) *fixedWindow {
	if v, ok := m.windows.Load(key); ok {
		return v.(*fixedWindow)
	}
	v, _ := m.windows.LoadOrStore(key, &fixedWindow{})
	return v.(*fixedWindow)
}

// Sweep drops every window whose period is over. It returns the number of
// removed windows.
func (m *MemoryStorage) Sweep() int {
	removed := 0
	now := m.now()
	m.windows.Range(func(k, v any) bool {
		w := v.(*fixedWindow)
		w.mu.Lock()
		if !w.start.IsZero() && !now.Before(w.start.Add(w.size)) {
			w.evicted = true
			m.windows.CompareAndDelete(k, w)
			removed++
		}
		w.mu.Unlock()
		return true
	})
	return removed
}

// StartSweeper runs Sweep every interval until ctx is done.
func (m *MemoryStorage) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if removed := m.Sweep(); removed > 0 {
					slog.Debug("expired windows removed", "count", removed)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	slog.Info("rate limiter window sweeper started", "interval", interval)
}

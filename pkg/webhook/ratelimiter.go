package webhook

import (
	"sync"
	"time"
)

const rateWindow = time.Minute

// RateLimiter implements per-IP rate limiting with a sliding one minute window
type RateLimiter struct {
	limits            map[string]*RateLimitState
	maxRequestsPerMin int
	mu                sync.Mutex
	cleanupInterval   time.Duration
	stopCleanup       chan struct{}
	stopOnce          sync.Once
	now               func() time.Time
}

// NewRateLimiter creates a rate limiter and starts its cleanup loop
func NewRateLimiter(maxRequestsPerMinute int) *RateLimiter {
	rl := &RateLimiter{
		limits:            make(map[string]*RateLimitState),
		maxRequestsPerMin: maxRequestsPerMinute,
		cleanupInterval:   5 * time.Minute,
		stopCleanup:       make(chan struct{}),
		now:               time.Now,
	}
	go rl.runCleanup()
	return rl
}

// prune drops timestamps that fell out of the window
func prune(requests []int64, now int64) []int64 {
	cutoff := now - rateWindow.Milliseconds()
	valid := requests[:0]
	for _, t := range requests {
		if t > cutoff {
			valid = append(valid, t)
		}
	}
	return valid
}

// CheckLimit records a request from ip and reports whether it is allowed
func (rl *RateLimiter) CheckLimit(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now().UnixMilli()
	state, exists := rl.limits[ip]
	if !exists {
		state = &RateLimitState{}
		rl.limits[ip] = state
	}

	state.Requests = prune(state.Requests, now)
	if len(state.Requests) >= rl.maxRequestsPerMin {
		return false
	}
	state.Requests = append(state.Requests, now)
	return true
}

// GetRetryAfter returns the seconds until ip may send again
func (rl *RateLimiter) GetRetryAfter(ip string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	state, exists := rl.limits[ip]
	if !exists || len(state.Requests) == 0 {
		return 0
	}

	retryAfterMs := rateWindow.Milliseconds() - (rl.now().UnixMilli() - state.Requests[0])
	if retryAfterMs < 0 {
		return 0
	}
	// round up
	return int((retryAfterMs + 999) / 1000)
}

func (rl *RateLimiter) runCleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanup forgets IPs with no requests in the window
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now().UnixMilli()
	for ip, state := range rl.limits {
		state.Requests = prune(state.Requests, now)
		if len(state.Requests) == 0 {
			delete(rl.limits, ip)
		}
	}
}

// Stop stops the cleanup goroutine; it is safe to call more than once
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCleanup) })
}

package safety

import (
	"context"
	"sync"
	"time"
)

// RateLimiter implements token bucket rate limiting
type RateLimiter struct {
	capacity   int // Maximum number of tokens
	tokens     int // Current number of tokens
	refillRate int // Tokens added per second
	lastRefill time.Time
	mutex      sync.Mutex
	name       string
}

// NewRateLimiter creates a new rate limiter starting at full capacity
func NewRateLimiter(name string, capacity, refillRate int) *RateLimiter {
	return &RateLimiter{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
		name:       name,
	}
}

// Allow checks if an operation is allowed under the rate limit
func (rl *RateLimiter) Allow() bool {
	return rl.AllowN(1)
}

// AllowN checks if N operations are allowed under the rate limit
func (rl *RateLimiter) AllowN(n int) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	rl.refillTokens()

	if rl.tokens >= n {
		rl.tokens -= n
		return true
	}

	return false
}

// Wait blocks until an operation is allowed or ctx is done
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		if rl.Allow() {
			return nil
		}

		waitTime := rl.waitTime(1)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
}

func (rl *RateLimiter) refillTokens() {
	now := time.Now()
	elapsed := now.Sub(rl.lastRefill)

	if elapsed < time.Second {
		return
	}

	tokensToAdd := int(elapsed.Seconds()) * rl.refillRate
	if tokensToAdd > 0 {
		rl.tokens += tokensToAdd
		if rl.tokens > rl.capacity {
			rl.tokens = rl.capacity
		}
		rl.lastRefill = now
	}
}

func (rl *RateLimiter) waitTime(n int) time.Duration {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	rl.refillTokens()

	if rl.tokens >= n {
		return 0
	}

	tokensNeeded := n - rl.tokens
	secondsToWait := float64(tokensNeeded) / float64(rl.refillRate)

	// Small buffer to account for timing precision
	return time.Duration(secondsToWait*1000+100) * time.Millisecond
}

// GetStats returns current statistics about the rate limiter
func (rl *RateLimiter) GetStats() RateLimiterStats {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	rl.refillTokens()

	return RateLimiterStats{
		Name:       rl.name,
		Capacity:   rl.capacity,
		Tokens:     rl.tokens,
		RefillRate: rl.refillRate,
		LastRefill: rl.lastRefill,
	}
}

// RateLimiterStats holds statistics about a rate limiter
type RateLimiterStats struct {
	Name       string
	Capacity   int
	Tokens     int
	RefillRate int
	LastRefill time.Time
}

// RateLimiterManager manages the per-concern rate limiters (trading,
// market data, position data) shared by a guarded broker.
type RateLimiterManager struct {
	limiters map[string]*RateLimiter
	mutex    sync.RWMutex
}

// NewRateLimiterManager creates a new rate limiter manager
func NewRateLimiterManager() *RateLimiterManager {
	return &RateLimiterManager{
		limiters: make(map[string]*RateLimiter),
	}
}

// GetOrCreate gets an existing rate limiter or creates a new one
func (rlm *RateLimiterManager) GetOrCreate(name string, capacity, refillRate int) *RateLimiter {
	rlm.mutex.RLock()
	if rl, exists := rlm.limiters[name]; exists {
		rlm.mutex.RUnlock()
		return rl
	}
	rlm.mutex.RUnlock()

	rlm.mutex.Lock()
	defer rlm.mutex.Unlock()

	// Double-check after acquiring write lock
	if rl, exists := rlm.limiters[name]; exists {
		return rl
	}

	rl := NewRateLimiter(name, capacity, refillRate)
	rlm.limiters[name] = rl
	return rl
}

// GetStats returns statistics for all rate limiters
func (rlm *RateLimiterManager) GetStats() []RateLimiterStats {
	rlm.mutex.RLock()
	defer rlm.mutex.RUnlock()

	stats := make([]RateLimiterStats, 0, len(rlm.limiters))
	for _, rl := range rlm.limiters {
		stats = append(stats, rl.GetStats())
	}
	return stats
}

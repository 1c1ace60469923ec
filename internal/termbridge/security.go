package termbridge

import (
	"sync"
	"time"
)

// Limits applied to client messages.
const (
	// DefaultMaxInputSize caps a single input message; larger ones are dropped.
	DefaultMaxInputSize = 64 * 1024

	// MaxTermCols is the maximum allowed terminal width.
	MaxTermCols = 500
	// MaxTermRows is the maximum allowed terminal height.
	MaxTermRows = 200

	// DefaultCols and DefaultRows size the terminal until the client resizes.
	DefaultCols = 80
	DefaultRows = 24

	// MessageRateLimit is the sustained number of messages per second a
	// client may send.
	MessageRateLimit = 200
	// MessageRateBurst is the burst allowance, enough for a large paste.
	MessageRateBurst = 400
)

// ClampSize bounds a requested size to the allowed maximums. Zero dimensions
// fall back to the defaults.
func ClampSize(cols, rows int) Size {
	if cols <= 0 {
		cols = DefaultCols
	}
	if rows <= 0 {
		rows = DefaultRows
	}
	if cols > MaxTermCols {
		cols = MaxTermCols
	}
	if rows > MaxTermRows {
		rows = MaxTermRows
	}
	return Size{Cols: uint16(cols), Rows: uint16(rows)}
}

// RateLimiter is a token bucket for client messages.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	now        func() time.Time
}

// NewRateLimiter creates a rate limiter with the given rate (tokens/sec) and burst size.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	return &RateLimiter{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: rate,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// Allow reports whether a message is permitted, consuming one token.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	rl.lastRefill = now

	rl.tokens += elapsed * rl.refillRate
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}

	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}

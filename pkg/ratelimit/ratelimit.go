package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Limiter enforces a sliding-window token budget for model calls.
// Callers reserve an estimated token count before the request and
// correct it with the actual usage afterwards, so the window reflects
// real spend rather than guesses.
type Limiter struct {
	tokensPerMinute int
	window          time.Duration
	safetyMargin    float64
	minInterval     time.Duration
	defaultEstimate int
	logger          *zap.Logger

	mu           sync.Mutex
	records      []*usageRecord
	lastRequest  time.Time
	blockedUntil time.Time
}

type usageRecord struct {
	at     time.Time
	tokens int
}

type Config struct {
	TokensPerMinute int
	Window          time.Duration
	SafetyMargin    float64
	MinInterval     time.Duration
	DefaultEstimate int
	Logger          *zap.Logger
}

func NewLimiter(cfg Config) *Limiter {
	if cfg.TokensPerMinute == 0 {
		cfg.TokensPerMinute = 450000
	}
	if cfg.Window == 0 {
		cfg.Window = time.Minute
	}
	if cfg.SafetyMargin == 0 {
		cfg.SafetyMargin = 0.85
	}
	if cfg.MinInterval == 0 {
		cfg.MinInterval = 100 * time.Millisecond
	}
	if cfg.DefaultEstimate == 0 {
		cfg.DefaultEstimate = 8000
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Limiter{
		tokensPerMinute: cfg.TokensPerMinute,
		window:          cfg.Window,
		safetyMargin:    cfg.SafetyMargin,
		minInterval:     cfg.MinInterval,
		defaultEstimate: cfg.DefaultEstimate,
		logger:          cfg.Logger,
	}
}

// Acquire blocks until the estimated spend fits inside the window budget,
// then registers a reservation. The returned reservation must be corrected
// with Record once the actual token usage is known.
func (l *Limiter) Acquire(ctx context.Context, estimatedTokens int) (*Reservation, error) {
	if estimatedTokens <= 0 {
		estimatedTokens = l.defaultEstimate
	}

	for {
		wait, res := l.reserve(estimatedTokens)
		if res != nil {
			return res, nil
		}

		l.logger.Debug("Token budget exhausted, waiting",
			zap.Duration("wait", wait),
			zap.Int("estimated_tokens", estimatedTokens),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (l *Limiter) reserve(estimated int) (time.Duration, *Reservation) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.prune(now)

	if now.Before(l.blockedUntil) {
		return l.blockedUntil.Sub(now), nil
	}

	if !l.lastRequest.IsZero() {
		if since := now.Sub(l.lastRequest); since < l.minInterval {
			return l.minInterval - since, nil
		}
	}

	limit := int(float64(l.tokensPerMinute) * l.safetyMargin)
	used := 0
	for _, r := range l.records {
		used += r.tokens
	}

	if used+estimated > limit && len(l.records) > 0 {
		wait := l.records[0].at.Add(l.window).Sub(now) + 50*time.Millisecond
		if wait < 50*time.Millisecond {
			wait = 50 * time.Millisecond
		}
		return wait, nil
	}

	rec := &usageRecord{at: now, tokens: estimated}
	l.records = append(l.records, rec)
	l.lastRequest = now
	return 0, &Reservation{limiter: l, record: rec}
}

func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	kept := l.records[:0]
	for _, r := range l.records {
		if r.at.After(cutoff) {
			kept = append(kept, r)
		}
	}
	l.records = kept
}

// HandleRateLimited should be called when the upstream returns a 429.
// It gates all reservations until the retry window has passed.
func (l *Limiter) HandleRateLimited(retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if retryAfter <= 0 {
		retryAfter = l.window / 2
	}
	l.blockedUntil = time.Now().Add(retryAfter)
	l.logger.Warn("Upstream rate limit hit, gating requests",
		zap.Duration("retry_after", retryAfter),
	)
}

// Usage reports the tokens currently counted in the window and the
// effective limit after the safety margin.
func (l *Limiter) Usage() (used, limit int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(time.Now())
	for _, r := range l.records {
		used += r.tokens
	}
	return used, int(float64(l.tokensPerMinute) * l.safetyMargin)
}

type Reservation struct {
	limiter *Limiter
	record  *usageRecord
}

// Record replaces the reservation's estimate with the actual token count.
func (r *Reservation) Record(actualTokens int) {
	if r == nil || actualTokens <= 0 {
		return
	}

	r.limiter.mu.Lock()
	defer r.limiter.mu.Unlock()
	r.record.tokens = actualTokens
}

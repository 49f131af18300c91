package middleware

import (
	"time"

	"github.com/minebot-bridge-go/internal/models"
	"github.com/minebot-bridge-go/internal/services/cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimitStats is the rate limiter's health snapshot.
type RateLimitStats struct {
	TrackedPlayers    int        `json:"trackedPlayers"`
	CooldownMs        int64      `json:"cooldownMs"`
	RateLimitTTLMs    int64      `json:"rateLimitTtlMs"`
	CleanupIntervalMs int64      `json:"cleanupIntervalMs"`
	CleanupRuns       int64      `json:"cleanupRuns"`
	StaleEvictions    int64      `json:"staleEvictions"`
	LastCleanupAt     *time.Time `json:"lastCleanupAt"`
}

// CooldownLimiter enforces a per-player cooldown between requests. Entries
// share the TTL sweep discipline of the session cache but carry no capacity
// bound; the TTL only bounds memory, it is independent of the cooldown
// window itself.
type CooldownLimiter struct {
	cooldown time.Duration
	cache    *cache.Cache[*models.RateLimitEntry]
	now      func() time.Time
	logger   *logrus.Logger
}

// NewCooldownLimiter builds a limiter with an injected clock.
func NewCooldownLimiter(cooldown, ttl time.Duration, now func() time.Time, logger *logrus.Logger) *CooldownLimiter {
	return &CooldownLimiter{
		cooldown: cooldown,
		cache: cache.New[*models.RateLimitEntry](cache.Config{
			Name: "rate-limits",
			TTL:  ttl,
		}, now, logger),
		now:    now,
		logger: logger,
	}
}

// Allow reports whether the player may proceed, recording the request time
// when it does. A denied request does not extend the entry's life.
func (l *CooldownLimiter) Allow(playerUUID string) bool {
	now := l.now()
	if entry, ok := l.cache.Peek(playerUUID); ok && now.Sub(entry.LastRequestAt) < l.cooldown {
		l.logger.WithField("playerUUID", playerUUID).Debug("Rate limited")
		return false
	}
	l.cache.Touch(playerUUID, &models.RateLimitEntry{LastRequestAt: now})
	return true
}

// Reset forgets one player's cooldown state.
func (l *CooldownLimiter) Reset(playerUUID string) {
	l.cache.Delete(playerUUID)
}

// Stats snapshots the limiter for the health endpoint.
func (l *CooldownLimiter) Stats() RateLimitStats {
	cs := l.cache.Stats()
	return RateLimitStats{
		TrackedPlayers:    cs.Entries,
		CooldownMs:        l.cooldown.Milliseconds(),
		RateLimitTTLMs:    cs.TTLMillis,
		CleanupIntervalMs: cs.CleanupInterval,
		CleanupRuns:       cs.CleanupRuns,
		StaleEvictions:    cs.StaleEvictions,
		LastCleanupAt:     cs.LastCleanupAt,
	}
}

// Sweep runs one eviction pass at the given instant.
func (l *CooldownLimiter) Sweep(now time.Time) {
	l.cache.Sweep(now)
}

// Close stops the cache's periodic sweeper.
func (l *CooldownLimiter) Close() {
	l.cache.Close()
}

// GlobalLimiter is a process-wide token bucket in front of the per-player
// cooldown, protecting the backend from aggregate bursts.
type GlobalLimiter struct {
	enabled bool
	limiter *rate.Limiter
	logger  *logrus.Logger
}

// NewGlobalLimiter builds a limiter allowing rps requests per second with
// the given burst. rps <= 0 disables it.
func NewGlobalLimiter(rps float64, burst int, logger *logrus.Logger) *GlobalLimiter {
	if rps <= 0 {
		return &GlobalLimiter{enabled: false}
	}
	return &GlobalLimiter{
		enabled: true,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger,
	}
}

// Allow reports whether a request may proceed.
func (g *GlobalLimiter) Allow() bool {
	if !g.enabled {
		return true
	}
	allowed := g.limiter.Allow()
	if !allowed {
		g.logger.Warn("Global rate limit exceeded")
	}
	return allowed
}

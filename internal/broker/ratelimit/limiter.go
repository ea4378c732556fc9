// Package ratelimit bounds request volume per identity and per endpoint
// class within a sliding window. Each class has its own window limit so
// heavy media use cannot starve sync-token issuance, and vice versa.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/driftnotes/driftsync/internal/common"
	"github.com/driftnotes/driftsync/internal/logging"
)

// Endpoint is the endpoint class a request is accounted against.
type Endpoint string

const (
	EndpointSyncToken    Endpoint = "sync_token"
	EndpointMediaPresign Endpoint = "media_presign"
)

type window struct {
	startedAt time.Time
	count     int
}

// Limiter tracks fixed-size sliding windows per (endpoint class, subject)
// key. Counters are updated under one mutex: concurrent requests from the
// same identity must never lose an increment.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*window

	windowSize time.Duration
	limits     map[Endpoint]int

	syncAllowed  atomic.Int64
	syncLimited  atomic.Int64
	mediaAllowed atomic.Int64
	mediaLimited atomic.Int64

	logger logging.Logger
	now    func() time.Time
}

// Snapshot is the exported allow/deny counter state, served by /healthz.
type Snapshot struct {
	SyncAllowed  int64 `json:"sync_allowed"`
	SyncLimited  int64 `json:"sync_limited"`
	MediaAllowed int64 `json:"media_allowed"`
	MediaLimited int64 `json:"media_limited"`
}

// New builds a Limiter with independent caps per endpoint class.
func New(windowSize time.Duration, syncLimit, mediaLimit int, logger logging.Logger) *Limiter {
	return &Limiter{
		buckets:    make(map[string]*window),
		windowSize: windowSize,
		limits: map[Endpoint]int{
			EndpointSyncToken:    syncLimit,
			EndpointMediaPresign: mediaLimit,
		},
		logger: logger.With("module", "rate_limiter"),
		now:    time.Now,
	}
}

// Check accounts one request for the given class and subject. It returns
// nil when the request is allowed, or a RateLimitedError carrying the
// remaining window time. It has no side effects other than the counter:
// callers run it before any credential-minting work.
func (l *Limiter) Check(ctx context.Context, endpoint Endpoint, subject string) error {
	limit, ok := l.limits[endpoint]
	if !ok {
		return fmt.Errorf("%w: unknown endpoint class %q", common.ErrInternal, endpoint)
	}

	key := string(endpoint) + ":" + subject
	now := l.now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &window{startedAt: now}
		l.buckets[key] = b
	}

	// Buckets older than one window restart at zero.
	if now.Sub(b.startedAt) >= l.windowSize {
		b.startedAt = now
		b.count = 0
	}

	if b.count >= limit {
		retryAfter := l.windowSize - now.Sub(b.startedAt)
		l.mu.Unlock()

		l.markLimited(endpoint)
		l.logger.Warn(ctx, "rate limit exceeded",
			"endpoint", string(endpoint),
			"retry_after", retryAfter.Round(time.Second).String(),
		)
		return &common.RateLimitedError{RetryAfter: retryAfter}
	}

	b.count++
	l.mu.Unlock()

	l.markAllowed(endpoint)
	return nil
}

// MetricsSnapshot returns the cumulative allow/deny counters.
func (l *Limiter) MetricsSnapshot() Snapshot {
	return Snapshot{
		SyncAllowed:  l.syncAllowed.Load(),
		SyncLimited:  l.syncLimited.Load(),
		MediaAllowed: l.mediaAllowed.Load(),
		MediaLimited: l.mediaLimited.Load(),
	}
}

func (l *Limiter) markAllowed(endpoint Endpoint) {
	switch endpoint {
	case EndpointSyncToken:
		l.syncAllowed.Add(1)
	case EndpointMediaPresign:
		l.mediaAllowed.Add(1)
	}
}

func (l *Limiter) markLimited(endpoint Endpoint) {
	switch endpoint {
	case EndpointSyncToken:
		l.syncLimited.Add(1)
	case EndpointMediaPresign:
		l.mediaLimited.Add(1)
	}
}

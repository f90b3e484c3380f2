package ratelimit

// ratelimit bounds failed authentication/upload attempts per client identifier,
// within a fixed window anchored to the first failure. State lives in the
// rate-limits collection, so it survives across serverless-style invocations.
// Expired entries are garbage collected on the read path; there is no
// background sweeper.

import (
	"context"
	"strconv"
	"time"

	"github.com/atlasvans/siteapi/pkg/kvstore"
	"github.com/atlasvans/siteapi/pkg/pwdhash"
	"github.com/atlasvans/siteapi/server/seclog"
	"github.com/cyclopcam/logs"
)

const DefaultMaxAttempts = 5
const DefaultWindow = 15 * time.Minute

func WindowFromMinutes(minutes int) time.Duration {
	return time.Duration(minutes) * time.Minute
}

// Entry is one client's failure counter. Times are unix seconds.
type Entry struct {
	Count        int   `json:"count"`
	FirstAttempt int64 `json:"first_attempt"`
	LastAttempt  int64 `json:"last_attempt"`
}

var collection = kvstore.NewCollection("rate-limits", func() map[string]Entry { return map[string]Entry{} })

type CheckResult struct {
	Allowed          bool
	Attempts         int
	RemainingMinutes int
}

type Limiter struct {
	log         logs.Log
	store       *kvstore.Store
	events      seclog.Sink
	maxAttempts int
	window      time.Duration
}

func NewLimiter(log logs.Log, store *kvstore.Store, events seclog.Sink, maxAttempts int, window time.Duration) *Limiter {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		log:         log,
		store:       store,
		events:      events,
		maxAttempts: maxAttempts,
		window:      window,
	}
}

// IdentifierFor derives a stable opaque bucket key from client IP, user agent,
// and (for login attempts) the username. The whole pipeline is one-way, because
// identifiers end up persisted in the rate-limits collection.
func IdentifierFor(clientIP, userAgent, username string) string {
	raw := clientIP + "|" + pwdhash.HashIdentifierShort(userAgent, 8)
	if username != "" {
		raw += "|" + username
	}
	return pwdhash.HashIdentifier(raw)
}

func (l *Limiter) expired(e Entry, now time.Time) bool {
	return now.Unix()-e.FirstAttempt >= int64(l.window/time.Second)
}

// Check reports whether the identifier may make another attempt. As a side
// effect, every entry whose window has elapsed is purged.
func (l *Limiter) Check(ctx context.Context, identifier string) CheckResult {
	now := time.Now()
	result, err := kvstore.Update(ctx, l.store, collection, func(entries *map[string]Entry) (CheckResult, error) {
		for id, e := range *entries {
			if l.expired(e, now) {
				delete(*entries, id)
			}
		}
		e, ok := (*entries)[identifier]
		if !ok {
			return CheckResult{Allowed: true, Attempts: 0}, nil
		}
		if e.Count >= l.maxAttempts {
			windowEnd := time.Unix(e.FirstAttempt, 0).Add(l.window)
			remaining := int((time.Until(windowEnd) + time.Minute - 1) / time.Minute)
			if remaining < 1 {
				remaining = 1
			}
			return CheckResult{Allowed: false, Attempts: e.Count, RemainingMinutes: remaining}, nil
		}
		return CheckResult{Allowed: true, Attempts: e.Count}, nil
	})
	if err != nil {
		// If we can't persist the purge, fall back to allowing the attempt.
		// Failing closed here would lock every client out on a storage outage.
		l.log.Errorf("Rate limit check failed: %v", err)
		return CheckResult{Allowed: true}
	}
	return result
}

// RecordAttempt updates the identifier's counter. A single success forgives all
// prior failures. When a failure pushes the counter to the limit, we emit a
// rate-limit-block security event.
func (l *Limiter) RecordAttempt(ctx context.Context, identifier string, success bool) {
	now := time.Now()
	hitLimit, err := kvstore.Update(ctx, l.store, collection, func(entries *map[string]Entry) (bool, error) {
		if success {
			delete(*entries, identifier)
			return false, nil
		}
		e, ok := (*entries)[identifier]
		if !ok || l.expired(e, now) {
			e = Entry{Count: 1, FirstAttempt: now.Unix(), LastAttempt: now.Unix()}
		} else {
			e.Count++
			e.LastAttempt = now.Unix()
		}
		(*entries)[identifier] = e
		return e.Count == l.maxAttempts, nil
	})
	if err != nil {
		l.log.Errorf("Failed to record rate limit attempt: %v", err)
		return
	}
	if hitLimit {
		l.events.Emit(ctx, seclog.Event{
			Type:   seclog.EventRateLimitBlock,
			Detail: "identifier " + identifier[:12] + " blocked after " + strconv.Itoa(l.maxAttempts) + " failures",
		})
	}
}

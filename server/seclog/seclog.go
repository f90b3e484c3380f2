package seclog

// seclog is an append-only record of security-relevant events (logins, lockouts,
// password changes). It exists for after-the-fact inspection, so emission is
// best-effort and never fails the operation that triggered it.

import (
	"context"
	"time"

	"github.com/atlasvans/siteapi/pkg/kvstore"
	"github.com/cyclopcam/logs"
)

type EventType string

const (
	EventLoginSuccess   EventType = "login_success"
	EventLoginFailure   EventType = "login_failure"
	EventRateLimitBlock EventType = "rate_limit_block"
	EventPasswordChange EventType = "password_change"
	EventLogout         EventType = "logout"
	EventUnauthorized   EventType = "unauthorized"
)

type Event struct {
	Time     time.Time `json:"time"`
	Type     EventType `json:"type"`
	Username string    `json:"username,omitempty"`
	IP       string    `json:"ip,omitempty"`
	Detail   string    `json:"detail,omitempty"`
}

// Sink receives security events. Implementations must not block on failure.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// Keep the most recent events only. Old events fall off the end.
const maxStoredEvents = 500

var collection = kvstore.NewCollection("security-events", func() []Event { return []Event{} })

// StoreSink persists events into the security-events collection.
type StoreSink struct {
	log   logs.Log
	store *kvstore.Store
}

func NewStoreSink(log logs.Log, store *kvstore.Store) *StoreSink {
	return &StoreSink{
		log:   log,
		store: store,
	}
}

func (s *StoreSink) Emit(ctx context.Context, ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	s.log.Infof("Security event %v user:%v ip:%v %v", ev.Type, ev.Username, ev.IP, ev.Detail)
	_, err := kvstore.Update(ctx, s.store, collection, func(events *[]Event) (int, error) {
		*events = append(*events, ev)
		if len(*events) > maxStoredEvents {
			*events = (*events)[len(*events)-maxStoredEvents:]
		}
		return len(*events), nil
	})
	if err != nil {
		s.log.Warnf("Failed to persist security event %v: %v", ev.Type, err)
	}
}

// Recent returns the stored events, newest last.
func (s *StoreSink) Recent(ctx context.Context) []Event {
	return kvstore.Read(ctx, s.store, collection)
}

// NullSink discards all events. Useful in tests.
type NullSink struct{}

func (NullSink) Emit(ctx context.Context, ev Event) {}

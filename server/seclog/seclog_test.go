package seclog

import (
	"context"
	"fmt"
	"testing"

	"github.com/atlasvans/siteapi/pkg/kvstore"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func newTestSink(t *testing.T) *StoreSink {
	backend, err := kvstore.NewFileBackend(logs.NewTestingLog(t), t.TempDir())
	require.NoError(t, err)
	return NewStoreSink(logs.NewTestingLog(t), kvstore.NewStore(logs.NewTestingLog(t), backend))
}

func TestEmitAndRecent(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()

	sink.Emit(ctx, Event{Type: EventLoginFailure, Username: "admin", IP: "10.0.0.1"})
	sink.Emit(ctx, Event{Type: EventLoginSuccess, Username: "admin", IP: "10.0.0.1"})

	events := sink.Recent(ctx)
	require.Len(t, events, 2)
	require.Equal(t, EventLoginFailure, events[0].Type)
	require.Equal(t, EventLoginSuccess, events[1].Type)
	require.False(t, events[0].Time.IsZero())
}

func TestRetentionCap(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()

	for i := 0; i < maxStoredEvents+25; i++ {
		sink.Emit(ctx, Event{Type: EventLogout, Detail: fmt.Sprintf("event %v", i)})
	}

	events := sink.Recent(ctx)
	require.Len(t, events, maxStoredEvents)
	// The oldest events fell off the front
	require.Equal(t, fmt.Sprintf("event %v", 25), events[0].Detail)
}

package kvstore

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	root := t.TempDir()
	backend, err := NewFileBackend(logs.NewTestingLog(t), root)
	require.NoError(t, err)
	return NewStore(logs.NewTestingLog(t), backend), root
}

func TestReadMissingReturnsDefault(t *testing.T) {
	store, _ := newTestStore(t)
	c := NewCollection("things", func() []string { return []string{} })
	value := Read(context.Background(), store, c)
	require.NotNil(t, value)
	require.Len(t, value, 0)
}

func TestWriteReadRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	c := NewCollection("things", func() []string { return []string{} })
	require.NoError(t, Write(context.Background(), store, c, []string{"a", "b"}))
	value := Read(context.Background(), store, c)
	require.Equal(t, []string{"a", "b"}, value)
}

func TestCorruptDocumentDegradesToDefault(t *testing.T) {
	store, root := newTestStore(t)
	c := NewCollection("things", func() []string { return []string{"default"} })
	require.NoError(t, os.WriteFile(filepath.Join(root, "things.json"), []byte("{not json"), 0600))
	value := Read(context.Background(), store, c)
	require.Equal(t, []string{"default"}, value)
}

func TestDocumentFilePermissions(t *testing.T) {
	store, root := newTestStore(t)
	c := NewCollection("secrets", func() []int { return []int{} })
	require.NoError(t, Write(context.Background(), store, c, []int{1}))
	st, err := os.Stat(filepath.Join(root, "secrets.json"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), st.Mode().Perm())
}

// No lost updates when many goroutines increment through Update
func TestUpdateIsAtomic(t *testing.T) {
	store, _ := newTestStore(t)
	c := NewCollection("counter", func() int { return 0 })

	const n = 25
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Update(context.Background(), store, c, func(value *int) (int, error) {
				*value++
				return *value, nil
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, n, Read(context.Background(), store, c))
}

func TestUpdateMutatorErrorLeavesStateUnchanged(t *testing.T) {
	store, _ := newTestStore(t)
	c := NewCollection("counter", func() int { return 0 })
	require.NoError(t, Write(context.Background(), store, c, 7))

	_, err := Update(context.Background(), store, c, func(value *int) (int, error) {
		*value = 99
		return 0, context.Canceled
	})
	require.Error(t, err)
	require.Equal(t, 7, Read(context.Background(), store, c))
}

func TestUpdatesOnDifferentKeysDoNotBlock(t *testing.T) {
	store, _ := newTestStore(t)
	a := NewCollection("aaa", func() int { return 0 })
	b := NewCollection("bbb", func() int { return 0 })

	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		Update(context.Background(), store, a, func(value *int) (int, error) {
			<-release
			return 0, nil
		})
		close(done)
	}()

	// While 'aaa' is held, 'bbb' must proceed immediately
	_, err := Update(context.Background(), store, b, func(value *int) (int, error) {
		*value = 1
		return 1, nil
	})
	require.NoError(t, err)

	close(release)
	<-done
}

// A writer whose context is canceled while waiting for the lock must abort
// without touching the stored state, and must not disturb the holder's lock.
func TestCanceledContextDoesNotBypassLock(t *testing.T) {
	store, _ := newTestStore(t)
	c := NewCollection("counter", func() int { return 0 })
	ctx := context.Background()
	require.NoError(t, Write(ctx, store, c, 7))

	// Hold the lock, as a writer mid-critical-section would
	require.NoError(t, store.lock(ctx, c.Key))

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Update(canceled, store, c, func(value *int) (int, error) {
		*value = 99
		return *value, nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, Write(canceled, store, c, 99), context.Canceled)

	// The holder's token is still in place: a fresh writer must wait for it
	acquired := make(chan struct{})
	go func() {
		store.lock(context.Background(), c.Key)
		close(acquired)
	}()
	select {
	case <-acquired:
		t.Fatal("Lock was acquired while still held")
	case <-time.After(50 * time.Millisecond):
	}
	store.unlock(c.Key)
	<-acquired
	store.unlock(c.Key)

	require.Equal(t, 7, Read(ctx, store, c))
}

func TestBlobRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.WriteBlob(ctx, "uploads/x.bin", []byte{1, 2, 3}))
	raw, err := store.ReadBlob(ctx, "uploads/x.bin")
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, raw)
	require.NoError(t, store.DeleteBlob(ctx, "uploads/x.bin"))
	_, err = store.ReadBlob(ctx, "uploads/x.bin")
	require.ErrorIs(t, err, ErrNotExist)
}

func TestPathTraversalRejected(t *testing.T) {
	store, _ := newTestStore(t)
	err := store.WriteBlob(context.Background(), "../escape.bin", []byte{1})
	require.Error(t, err)
}

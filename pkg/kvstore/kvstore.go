package kvstore

// kvstore is a tiny document store. Each named collection is one JSON document,
// persisted through a pluggable Backend (local files, GCS, or S3). The store
// serializes writers per collection within this process. Writers in other
// processes are not coordinated; that is an accepted limitation of the file
// backend, and the object store backends bring their own durability story.

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/cyclopcam/logs"
)

// ErrNotExist is returned by a Backend when the named document is absent.
// Callers of Read never see it; Read degrades to the collection default.
var ErrNotExist = errors.New("kvstore: key does not exist")

// How long a writer will wait for the per-collection lock before forcing it open.
// The forced open exists so that an abandoned critical section can't wedge the
// store permanently.
const LockTimeout = 10 * time.Second

// Backend is an abstraction of durable byte storage (eg local disk, GCS, S3)
type Backend interface {
	Read(ctx context.Context, name string) ([]byte, error)
	Write(ctx context.Context, name string, data []byte) error
	Delete(ctx context.Context, name string) error
}

// Collection declares a named JSON document, with its default value for when
// the document does not exist yet (or cannot be read).
type Collection[T any] struct {
	Key     string
	Default func() T
}

func NewCollection[T any](key string, def func() T) Collection[T] {
	return Collection[T]{Key: key, Default: def}
}

// Store provides read, write, and atomic read-modify-write over collections.
type Store struct {
	log     logs.Log
	backend Backend

	semsLock sync.Mutex
	sems     map[string]chan struct{}
}

func NewStore(log logs.Log, backend Backend) *Store {
	return &Store{
		log:     log,
		backend: backend,
		sems:    map[string]chan struct{}{},
	}
}

func (s *Store) sem(key string) chan struct{} {
	s.semsLock.Lock()
	defer s.semsLock.Unlock()
	sem := s.sems[key]
	if sem == nil {
		sem = make(chan struct{}, 1)
		s.sems[key] = sem
	}
	return sem
}

// lock acquires the per-collection semaphore. If the current holder doesn't
// release it within LockTimeout, we barge in, so a crashed holder can delay
// writers but never deadlock them. A canceled context aborts the wait without
// acquiring, and the caller must not proceed.
func (s *Store) lock(ctx context.Context, key string) error {
	sem := s.sem(key)
	timeout := time.NewTimer(LockTimeout)
	defer timeout.Stop()
	select {
	case sem <- struct{}{}:
		return nil
	case <-timeout.C:
		s.log.Warnf("Lock on collection %v not released within %v. Forcing open.", key, LockTimeout)
		return nil
	case <-ctx.Done():
		s.log.Warnf("Abandoning lock wait on collection %v: %v", key, ctx.Err())
		return ctx.Err()
	}
}

func (s *Store) unlock(key string) {
	// The drain-style release keeps us balanced after a forced open.
	select {
	case <-s.sem(key):
	default:
	}
}

// ReadBlob reads raw bytes (eg an uploaded image) from the backend.
func (s *Store) ReadBlob(ctx context.Context, name string) ([]byte, error) {
	return s.backend.Read(ctx, name)
}

// WriteBlob writes raw bytes to the backend.
func (s *Store) WriteBlob(ctx context.Context, name string, data []byte) error {
	return s.backend.Write(ctx, name, data)
}

// DeleteBlob removes raw bytes from the backend.
func (s *Store) DeleteBlob(ctx context.Context, name string) error {
	return s.backend.Delete(ctx, name)
}

func documentName(key string) string {
	return key + ".json"
}

func readRaw[T any](ctx context.Context, s *Store, c Collection[T]) T {
	value := c.Default()
	raw, err := s.backend.Read(ctx, documentName(c.Key))
	if err != nil {
		if !errors.Is(err, ErrNotExist) {
			// Operational failure. Degrade to the default rather than propagate,
			// but always leave a trace in the log.
			s.log.Errorf("Read of collection %v failed: %v", c.Key, err)
		}
		return value
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		s.log.Errorf("Collection %v is not parseable (%v). Using default.", c.Key, err)
		return c.Default()
	}
	return value
}

func writeRaw[T any](ctx context.Context, s *Store, c Collection[T], value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		// A marshal failure is a caller bug, not an operational failure
		panic(err)
	}
	if err := s.backend.Write(ctx, documentName(c.Key), raw); err != nil {
		s.log.Errorf("Write of collection %v failed: %v", c.Key, err)
		return err
	}
	return nil
}

// Read returns the current value of the collection, or its default if the
// document does not exist or cannot be read. Read never fails.
func Read[T any](ctx context.Context, s *Store, c Collection[T]) T {
	if err := s.lock(ctx, c.Key); err != nil {
		return c.Default()
	}
	defer s.unlock(c.Key)
	return readRaw(ctx, s, c)
}

// Write blindly replaces the collection's value. An error means the mutation
// did not happen, and the stored state is unchanged.
func Write[T any](ctx context.Context, s *Store, c Collection[T], value T) error {
	if err := s.lock(ctx, c.Key); err != nil {
		return err
	}
	defer s.unlock(c.Key)
	return writeRaw(ctx, s, c, value)
}

// Update performs an atomic read-modify-write on the collection. The mutator
// receives the current value (or the default), and its result is returned to
// the caller once the new value has been persisted. Updates against the same
// collection are mutually exclusive within this process; updates against
// different collections proceed in parallel.
func Update[T any, R any](ctx context.Context, s *Store, c Collection[T], mutate func(value *T) (R, error)) (R, error) {
	if err := s.lock(ctx, c.Key); err != nil {
		var zero R
		return zero, err
	}
	defer s.unlock(c.Key)

	value := readRaw(ctx, s, c)
	result, err := mutate(&value)
	if err != nil {
		var zero R
		return zero, err
	}
	if err := writeRaw(ctx, s, c, value); err != nil {
		var zero R
		return zero, err
	}
	return result, nil
}

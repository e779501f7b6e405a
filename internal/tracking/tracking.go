// Package tracking keeps the set of render requests an export is still
// waiting on. An export is complete when its set is empty.
package tracking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rendis/ambrosia/internal/store"
)

// DefaultTTL bounds how long an unanswered render request is tracked.
const DefaultTTL = 1800 * time.Second

// Set tracks outstanding notification IDs per export.
type Set interface {
	// Add records a pending render request. Adding twice refreshes its TTL.
	Add(ctx context.Context, exportID, notificationID string) error
	// Remove drops a request. Removing an absent entry is a no-op.
	Remove(ctx context.Context, exportID, notificationID string) error
	// IsCompleted reports whether no live entries remain for the export.
	IsCompleted(ctx context.Context, exportID string) (bool, error)
}

// Option configures a tracking set.
type Option func(*options)

type options struct {
	ttl time.Duration
	now func() time.Time
}

// WithTTL overrides the per-entry expiry.
func WithTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.ttl = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{ttl: DefaultTTL, now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// StoreSet persists tracking entries in the export store so that any
// worker sharing the database observes the same set.
type StoreSet struct {
	store store.Store
	opts  options
}

// NewStoreSet creates a Set backed by the store's tracking table.
func NewStoreSet(s store.Store, opts ...Option) *StoreSet {
	return &StoreSet{store: s, opts: buildOptions(opts)}
}

func (t *StoreSet) Add(ctx context.Context, exportID, notificationID string) error {
	if err := t.store.AddTracking(ctx, exportID, notificationID, t.opts.now().Add(t.opts.ttl)); err != nil {
		return fmt.Errorf("track %s/%s: %w", exportID, notificationID, err)
	}
	return nil
}

func (t *StoreSet) Remove(ctx context.Context, exportID, notificationID string) error {
	if err := t.store.RemoveTracking(ctx, exportID, notificationID); err != nil {
		return fmt.Errorf("untrack %s/%s: %w", exportID, notificationID, err)
	}
	return nil
}

func (t *StoreSet) IsCompleted(ctx context.Context, exportID string) (bool, error) {
	n, err := t.store.CountTracking(ctx, exportID, t.opts.now())
	if err != nil {
		return false, fmt.Errorf("count tracking for %s: %w", exportID, err)
	}
	return n == 0, nil
}

// Purge removes expired entries and returns how many were dropped.
func (t *StoreSet) Purge(ctx context.Context) (int64, error) {
	return t.store.PurgeTracking(ctx, t.opts.now())
}

// MemorySet is a process-local Set.
type MemorySet struct {
	mu      sync.Mutex
	entries map[string]map[string]time.Time
	opts    options
}

// NewMemorySet creates an in-memory Set.
func NewMemorySet(opts ...Option) *MemorySet {
	return &MemorySet{entries: make(map[string]map[string]time.Time), opts: buildOptions(opts)}
}

func (m *MemorySet) Add(_ context.Context, exportID, notificationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.entries[exportID]
	if !ok {
		set = make(map[string]time.Time)
		m.entries[exportID] = set
	}
	set[notificationID] = m.opts.now().Add(m.opts.ttl)
	return nil
}

func (m *MemorySet) Remove(_ context.Context, exportID, notificationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.entries[exportID]; ok {
		delete(set, notificationID)
		if len(set) == 0 {
			delete(m.entries, exportID)
		}
	}
	return nil
}

func (m *MemorySet) IsCompleted(_ context.Context, exportID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.opts.now()
	for _, exp := range m.entries[exportID] {
		if exp.After(now) {
			return false, nil
		}
	}
	return true, nil
}

var (
	_ Set = (*StoreSet)(nil)
	_ Set = (*MemorySet)(nil)
)

// Package convstore provides per-identity conversation state storage.
//
// Records are ephemeral by design: conversation state lives in memory and is
// bounded by an optional idle TTL rather than persisted. The store serializes
// all access per identity so concurrent events for the same phone number
// cannot interleave a read-modify-write cycle; distinct identities never
// contend with each other beyond the map lookup.
package convstore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/StudyLine/internal/models"
)

// Store defines conversation state access. Get creates a fresh record in the
// initial state for unseen identities. Update runs the mutator inside the
// identity's critical section and returns a snapshot of the result.
type Store interface {
	Get(ctx context.Context, identity string) (*models.ConversationRecord, error)
	// Peek returns a snapshot without creating a record; nil for unseen identities.
	Peek(ctx context.Context, identity string) (*models.ConversationRecord, error)
	Save(ctx context.Context, identity string, record *models.ConversationRecord) error
	Update(ctx context.Context, identity string, fn func(*models.ConversationRecord) error) (*models.ConversationRecord, error)
}

// Constants for InMemoryStore configuration.
const (
	// DefaultJanitorInterval is how often the idle sweep runs when a TTL is set.
	DefaultJanitorInterval = 1 * time.Minute
)

// Opts holds configuration options for the in-memory store.
type Opts struct {
	IdleTTL         time.Duration // reset conversations idle longer than this; 0 disables the sweep
	JanitorInterval time.Duration
}

// Option defines a configuration option for the in-memory store.
type Option func(*Opts)

// WithIdleTTL enables the idle-reset sweep with the given TTL.
func WithIdleTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.IdleTTL = ttl }
}

// WithJanitorInterval overrides how often the idle sweep runs.
func WithJanitorInterval(interval time.Duration) Option {
	return func(o *Opts) { o.JanitorInterval = interval }
}

type entry struct {
	mu  sync.Mutex
	rec *models.ConversationRecord
}

// InMemoryStore implements Store with a map of per-identity entries, each
// guarded by its own mutex.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*entry
	opts    Opts
}

// NewInMemoryStore creates an in-memory conversation store.
func NewInMemoryStore(options ...Option) *InMemoryStore {
	opts := Opts{JanitorInterval: DefaultJanitorInterval}
	for _, opt := range options {
		opt(&opts)
	}
	slog.Debug("convstore.NewInMemoryStore: created", "idle_ttl", opts.IdleTTL, "janitor_interval", opts.JanitorInterval)
	return &InMemoryStore{entries: make(map[string]*entry), opts: opts}
}

// lookup returns the entry for identity, creating a fresh initial record if
// the identity has not been seen before.
func (s *InMemoryStore) lookup(identity string) *entry {
	s.mu.RLock()
	e, ok := s.entries[identity]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[identity]; ok {
		return e
	}
	e = &entry{rec: models.NewConversationRecord(identity)}
	s.entries[identity] = e
	slog.Debug("convstore: created record", "identity", identity)
	return e
}

// Get returns a snapshot of the identity's record, creating one if absent.
func (s *InMemoryStore) Get(ctx context.Context, identity string) (*models.ConversationRecord, error) {
	if identity == "" {
		return nil, models.ErrEmptyIdentity
	}
	e := s.lookup(identity)
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(e.rec), nil
}

// Peek returns a snapshot of the identity's record, or nil if the identity
// has never been seen. Unlike Get it has no side effects.
func (s *InMemoryStore) Peek(ctx context.Context, identity string) (*models.ConversationRecord, error) {
	if identity == "" {
		return nil, models.ErrEmptyIdentity
	}
	s.mu.RLock()
	e, ok := s.entries[identity]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(e.rec), nil
}

// Save atomically replaces the identity's record.
func (s *InMemoryStore) Save(ctx context.Context, identity string, record *models.ConversationRecord) error {
	if identity == "" {
		return models.ErrEmptyIdentity
	}
	e := s.lookup(identity)
	e.mu.Lock()
	defer e.mu.Unlock()
	rec := snapshot(record)
	rec.UpdatedAt = time.Now()
	e.rec = rec
	return nil
}

// Update runs fn on the identity's record inside its critical section. The
// record is saved only if fn returns nil; the returned snapshot reflects the
// committed state either way.
func (s *InMemoryStore) Update(ctx context.Context, identity string, fn func(*models.ConversationRecord) error) (*models.ConversationRecord, error) {
	if identity == "" {
		return nil, models.ErrEmptyIdentity
	}
	e := s.lookup(identity)
	e.mu.Lock()
	defer e.mu.Unlock()

	working := snapshot(e.rec)
	if err := fn(working); err != nil {
		return snapshot(e.rec), err
	}
	working.UpdatedAt = time.Now()
	e.rec = working
	return snapshot(working), nil
}

// StartJanitor launches the idle-reset sweep. It is a no-op when no TTL is
// configured. The sweep stops when ctx is cancelled.
func (s *InMemoryStore) StartJanitor(ctx context.Context) {
	if s.opts.IdleTTL <= 0 {
		slog.Debug("convstore.StartJanitor: no idle TTL configured, sweep disabled")
		return
	}

	go func() {
		ticker := time.NewTicker(s.opts.JanitorInterval)
		defer ticker.Stop()
		slog.Info("convstore janitor started", "idle_ttl", s.opts.IdleTTL)
		for {
			select {
			case <-ticker.C:
				s.sweepIdle(time.Now())
			case <-ctx.Done():
				slog.Debug("convstore janitor stopping")
				return
			}
		}
	}()
}

// sweepIdle resets conversations stuck mid-flow past the idle TTL. Live-chat
// sessions are left alone; ending those is the operator's call.
func (s *InMemoryStore) sweepIdle(now time.Time) {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		rec := e.rec
		idle := now.Sub(rec.UpdatedAt)
		if idle > s.opts.IdleTTL && !rec.LiveChat &&
			rec.State != models.StateInitial && rec.State != models.StateIdle {
			slog.Info("convstore janitor resetting idle conversation",
				"identity", rec.Identity, "state", rec.State, "idle", idle)
			rec.State = models.StateIdle
			rec.ClearFlows()
			rec.UpdatedAt = now
		}
		e.mu.Unlock()
	}
}

// snapshot deep-copies a record so callers outside the critical section can
// never alias the stored message log.
func snapshot(r *models.ConversationRecord) *models.ConversationRecord {
	cp := *r
	if r.MessageLog != nil {
		cp.MessageLog = make([]models.MessageEntry, len(r.MessageLog))
		copy(cp.MessageLog, r.MessageLog)
	}
	if r.ChatStartedAt != nil {
		t := *r.ChatStartedAt
		cp.ChatStartedAt = &t
	}
	return &cp
}

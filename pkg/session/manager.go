package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/callflow/internal/logging"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
	"github.com/aretw0/callflow/pkg/syncer"
	"github.com/google/uuid"
)

// DefaultLockTTL bounds how long a distributed save lock is held.
const DefaultLockTTL = 30 * time.Second

// DefaultIdleTimeout is how long an unused session stays registered.
const DefaultIdleTimeout = 30 * time.Minute

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// managed is a registered session and when it was last addressed.
type managed struct {
	session  *FlowSession
	lastUsed time.Time
}

// Manager keeps the open FlowSessions of a server and serialises saves per
// document key. It uses reference counting to garbage collect unused locks.
//
// Clients should close their sessions. Sessions left clean and unused for the
// idle timeout are evicted when the next one opens; sessions holding unsaved
// edits are kept until closed.
type Manager struct {
	cfg Config

	mu       sync.Mutex
	locks    map[string]*lockEntry
	sessions map[string]*managed

	locker      ports.DistributedLocker
	lockTTL     time.Duration
	idleTimeout time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking of saves.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL overrides DefaultLockTTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithIdleTimeout overrides DefaultIdleTimeout. Zero disables eviction.
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.idleTimeout = d
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager opening flows with cfg. cfg.History is ignored:
// managed sessions are addressed by id, not by a shared location.
func NewManager(cfg Config, opts ...Option) *Manager {
	m := &Manager{
		locks:    make(map[string]*lockEntry),
		sessions:    make(map[string]*managed),
		lockTTL:     DefaultLockTTL,
		idleTimeout: DefaultIdleTimeout,
		now:         time.Now,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	cfg.History = nil
	if cfg.Logger == nil {
		cfg.Logger = m.logger
	}
	m.cfg = cfg
	return m
}

// Open opens the flow at location and registers it under a new session id.
func (m *Manager) Open(ctx context.Context, location string) (string, *FlowSession, error) {
	s, err := Open(ctx, m.cfg, location)
	if err != nil {
		return "", nil, err
	}

	m.EvictIdle()

	id := uuid.NewString()
	m.mu.Lock()
	m.sessions[id] = &managed{session: s, lastUsed: m.now()}
	m.mu.Unlock()

	m.logger.Info("session opened", "session_id", id, "identity", s.Identity())
	return id, s, nil
}

// Get returns the session registered under id.
func (m *Manager) Get(id string) (*FlowSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	entry.lastUsed = m.now()
	return entry.session, nil
}

// EvictIdle forgets clean sessions unused for longer than the idle timeout and
// returns their ids.
func (m *Manager) EvictIdle() []string {
	if m.idleTimeout <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.idleTimeout)
	var evicted []string
	for id, entry := range m.sessions {
		if !entry.lastUsed.Before(cutoff) {
			continue
		}
		if entry.session.Dirty() {
			m.logger.Warn("idle session kept, it has unsaved edits", "session_id", id, "identity", entry.session.Identity())
			continue
		}
		delete(m.sessions, id)
		evicted = append(evicted, id)
		m.logger.Info("idle session evicted", "session_id", id, "identity", entry.session.Identity())
	}
	sort.Strings(evicted)
	return evicted
}

// List returns the ids of the open sessions, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Save commits the session's edits while holding the lock of its document key,
// so sessions on the same document never interleave version read and write.
// A nil creds uses the configured credential store.
func (m *Manager) Save(ctx context.Context, id string, creds ports.CredentialStore) (syncer.Result, error) {
	s, err := m.Get(id)
	if err != nil {
		return syncer.Result{}, err
	}
	if creds == nil {
		creds = m.cfg.Creds
	}

	var res syncer.Result
	err = m.WithLock(ctx, s.Key(), func(ctx context.Context) error {
		var err error
		res, err = s.SaveWith(ctx, creds)
		return err
	})
	return res, err
}

// Close closes and forgets the session. See FlowSession.Close.
func (m *Manager) Close(ctx context.Context, id string, confirm ports.Confirmer) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	if err := s.Close(ctx, confirm); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	m.logger.Info("session closed", "session_id", id)
	return nil
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(key) after unlocking.
func (m *Manager) acquire(key string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		entry = &lockEntry{}
		m.locks[key] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, key)
	}
}

// WithLock executes fn while holding the local and, when configured, the
// distributed lock for a document key.
func (m *Manager) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	entry := m.acquire(key)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(key)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, key, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"key", key,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

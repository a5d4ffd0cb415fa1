// Package syncer commits an edited flow document to a versioned store using a
// compare-and-swap precondition.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/aretw0/callflow/internal/logging"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
)

// State is the observable save state of an open flow.
type State string

const (
	StateClean  State = "clean"
	StateDirty  State = "dirty"
	StateSaving State = "saving"
	StateError  State = "save_error"
)

// Snapshot is the serialized document a save commits.
type Snapshot struct {
	Key        string
	Body       []byte
	Generation uint64
}

// Source is the open flow being saved.
type Source interface {
	// Dirty reports whether there are unsaved edits.
	Dirty() bool
	// Snapshot serializes the live document.
	Snapshot() (Snapshot, error)
	// Commit records a successful write of the snapshot taken at generation
	// and reports whether the flow is now clean.
	Commit(generation uint64, version string) bool
}

// Result describes a finished save.
type Result struct {
	// Skipped is true when there was nothing to save.
	Skipped bool `json:"skipped"`
	// Version is the new version token of the stored document.
	Version string `json:"version,omitempty"`
	// Clean is false when edits were made while the save was in flight.
	Clean bool `json:"clean"`
	// ExitEditMode tells the caller to leave edit mode after success.
	ExitEditMode bool `json:"exit_edit_mode"`
}

// Syncer is the sync engine of one open flow. At most one save runs at a time.
type Syncer struct {
	docs     ports.DocumentStore
	creds    ports.CredentialStore
	prompter ports.CredentialPrompter
	logger   *slog.Logger
	observer domain.Observer
	identity string

	exitEditOnSave bool

	inFlight atomic.Bool
	mu       sync.Mutex
	lastErr  error
}

// Option configures the Syncer.
type Option func(*Syncer)

// WithPrompter sets how a missing credential is requested.
func WithPrompter(p ports.CredentialPrompter) Option {
	return func(s *Syncer) {
		s.prompter = p
	}
}

// WithLogger configures a logger for the Syncer.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Syncer) {
		s.logger = logger
	}
}

// WithObserver registers a callback for save events.
func WithObserver(o domain.Observer) Option {
	return func(s *Syncer) {
		s.observer = o
	}
}

// WithIdentity labels emitted events with the flow identity.
func WithIdentity(identity string) Option {
	return func(s *Syncer) {
		s.identity = identity
	}
}

// WithExitEditOnSave makes a successful save ask the caller to leave edit mode.
func WithExitEditOnSave(exit bool) Option {
	return func(s *Syncer) {
		s.exitEditOnSave = exit
	}
}

// New creates a Syncer writing to docs with credentials from creds.
func New(docs ports.DocumentStore, creds ports.CredentialStore, opts ...Option) *Syncer {
	s := &Syncer{
		docs:   docs,
		creds:  creds,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Saving reports whether a save is in flight.
func (s *Syncer) Saving() bool {
	return s.inFlight.Load()
}

// LastError returns the error of the last failed save, cleared on success.
func (s *Syncer) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// State derives the save state given the current dirty flag.
func (s *Syncer) State(dirty bool) State {
	switch {
	case s.Saving():
		return StateSaving
	case !dirty:
		return StateClean
	case s.LastError() != nil:
		return StateError
	default:
		return StateDirty
	}
}

// Save commits src when it is dirty.
//
// A missing credential suspends the save while the prompter asks for one; the
// same save then resumes. The write is conditional on the version read just
// before it, so a concurrent change elsewhere surfaces as a *domain.ConflictError
// and is never overwritten. A rejected credential is purged from the store.
// Failures leave src dirty. A second call while one is in flight returns
// domain.ErrSaveInFlight.
func (s *Syncer) Save(ctx context.Context, src Source) (Result, error) {
	return s.SaveWith(ctx, src, s.creds)
}

// SaveWith is Save using creds instead of the configured credential store.
// Network surfaces use it to write with the caller's own bearer credential.
func (s *Syncer) SaveWith(ctx context.Context, src Source, creds ports.CredentialStore) (Result, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return Result{}, domain.ErrSaveInFlight
	}
	defer s.inFlight.Store(false)

	if !src.Dirty() {
		return Result{Skipped: true, Clean: true}, nil
	}

	res, err := s.save(ctx, src, creds)
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	return res, err
}

func (s *Syncer) save(ctx context.Context, src Source, creds ports.CredentialStore) (Result, error) {
	credential, err := s.credential(ctx, creds)
	if err != nil {
		return Result{}, s.fail("", err)
	}

	snap, err := src.Snapshot()
	if err != nil {
		return Result{}, s.fail(snap.Key, fmt.Errorf("encode document: %w", err))
	}

	s.emit(domain.EventSaveStarted, "", nil)
	s.logger.Debug("save started", "key", snap.Key, "generation", snap.Generation)

	expected, err := s.docs.Version(ctx, snap.Key)
	if errors.Is(err, domain.ErrDocumentNotFound) {
		expected = ""
	} else if err != nil {
		return Result{}, s.fail(snap.Key, fmt.Errorf("read version: %w", err))
	}

	version, err := s.docs.Put(ctx, ports.PutRequest{
		Key:        snap.Key,
		Body:       snap.Body,
		IfMatch:    expected,
		Credential: credential,
	})
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			s.purge(creds)
		}
		return Result{}, s.fail(snap.Key, err)
	}

	clean := src.Commit(snap.Generation, version)
	s.logger.Info("flow saved", "key", snap.Key, "version", version, "clean", clean)
	s.emit(domain.EventSaveSucceeded, version, nil)

	return Result{
		Version:      version,
		Clean:        clean,
		ExitEditMode: s.exitEditOnSave,
	}, nil
}

func (s *Syncer) credential(ctx context.Context, creds ports.CredentialStore) (string, error) {
	token, err := creds.Credential()
	if err != nil {
		return "", fmt.Errorf("read credential: %w", err)
	}
	if token != "" {
		return token, nil
	}
	if s.prompter == nil {
		return "", domain.ErrCredentialRequired
	}

	token, err = s.prompter.RequestCredential(ctx)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", domain.ErrCredentialRequired
	}
	if err := creds.SetCredential(token); err != nil {
		return "", fmt.Errorf("store credential: %w", err)
	}
	return token, nil
}

func (s *Syncer) purge(creds ports.CredentialStore) {
	if err := creds.ClearCredential(); err != nil {
		s.logger.Error("failed to clear rejected credential", "err", err)
		return
	}
	s.logger.Warn("credential rejected, cleared", "identity", s.identity)
	s.emit(domain.EventCredentialPurged, "", nil)
}

func (s *Syncer) fail(key string, err error) error {
	s.logger.Warn("save failed", "key", key, "err", err)
	s.emit(domain.EventSaveFailed, "", err)
	return err
}

func (s *Syncer) emit(t domain.EventType, version string, err error) {
	if s.observer == nil {
		return
	}
	ev := domain.NewEvent(t, s.identity)
	ev.Version = version
	ev.Err = err
	s.observer(ev)
}

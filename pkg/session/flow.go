package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/callflow/internal/logging"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/editor"
	"github.com/aretw0/callflow/pkg/graph"
	"github.com/aretw0/callflow/pkg/navigation"
	"github.com/aretw0/callflow/pkg/ports"
	"github.com/aretw0/callflow/pkg/syncer"
)

// Config holds the collaborators and policies of a FlowSession.
type Config struct {
	Docs       ports.DocumentStore
	Creds      ports.CredentialStore
	Prompter   ports.CredentialPrompter
	History    ports.History
	Collection string

	// ExitEditOnSave leaves edit mode after a successful save.
	ExitEditOnSave bool

	Logger   *slog.Logger
	Observer domain.Observer
}

// FlowSession is one opened flow. All methods are safe for concurrent use;
// a save runs without holding the session lock so edits may continue while
// it is in flight.
type FlowSession struct {
	mu sync.Mutex

	cfg      Config
	identity string
	key      string
	subject  domain.Attributes
	version  string

	store  *graph.Store
	nav    *navigation.Navigator
	editor *editor.Editor
	syncer *syncer.Syncer
	logger *slog.Logger
}

// Open fetches the flow named by location fresh from the store and positions
// navigation on it. location is a "lead/<identity>[/<node>]" token.
func Open(ctx context.Context, cfg Config, location string) (*FlowSession, error) {
	loc, err := domain.ParseLocation(location)
	if err != nil {
		return nil, err
	}
	if cfg.Docs == nil || cfg.Creds == nil {
		return nil, fmt.Errorf("open %s: document and credential stores are required", loc.Identity)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}

	s := &FlowSession{
		cfg:      cfg,
		identity: loc.Identity,
		key:      domain.LeadKey(cfg.Collection, loc.Identity),
		store:    graph.New(nil),
		logger:   cfg.Logger.With("identity", loc.Identity),
	}

	navOpts := []navigation.Option{navigation.WithLogger(s.logger), navigation.WithObserver(cfg.Observer)}
	if cfg.History != nil {
		navOpts = append(navOpts, navigation.WithHistory(cfg.History))
	}
	s.nav = navigation.New(s.store, s.identity, navOpts...)

	s.editor = editor.New(s.store, s.nav,
		editor.WithReload(s.reloadLocked),
		editor.WithLogger(s.logger),
		editor.WithObserver(cfg.Observer),
		editor.WithIdentity(s.identity),
	)
	s.syncer = syncer.New(cfg.Docs, cfg.Creds,
		syncer.WithPrompter(cfg.Prompter),
		syncer.WithLogger(s.logger),
		syncer.WithObserver(cfg.Observer),
		syncer.WithIdentity(s.identity),
		syncer.WithExitEditOnSave(cfg.ExitEditOnSave),
	)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(ctx, location); err != nil {
		return nil, err
	}
	s.emit(domain.EventFlowOpened)
	return s, nil
}

// Identity returns the slug of the opened flow.
func (s *FlowSession) Identity() string {
	return s.identity
}

// Key returns the store key the flow is read from and saved to.
func (s *FlowSession) Key() string {
	return s.key
}

// Dirty reports whether the flow has unsaved edits.
func (s *FlowSession) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editor.Dirty()
}

// Navigate follows to nodeID. Unknown ids are ignored and reported as false.
func (s *FlowSession) Navigate(nodeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nav.NavigateTo(nodeID, false)
}

// Choose follows the branch at index of the current node.
func (s *FlowSession) Choose(index int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nav.CurrentNode()
	if !ok {
		return false, domain.ErrNoFlowData
	}
	if index < 0 || index >= len(node.Branches) {
		return false, fmt.Errorf("%w: %d", domain.ErrBranchNotFound, index)
	}
	return s.nav.NavigateTo(node.Branches[index].To, false), nil
}

// StartOver returns to the start node with a fresh trail.
func (s *FlowSession) StartOver() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nav.StartOver()
}

// Back steps one entry up the breadcrumb trail.
func (s *FlowSession) Back() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nav.Back()
}

// ToggleBriefing opens or collapses the briefing panel.
func (s *FlowSession) ToggleBriefing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nav.ToggleBriefing()
}

// EnterEdit activates edit mode.
func (s *FlowSession) EnterEdit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editor.Enter()
}

// ExitEdit leaves edit mode, asking confirm before discarding unsaved edits.
func (s *FlowSession) ExitEdit(ctx context.Context, confirm ports.Confirmer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editor.Exit(ctx, confirm)
}

// SetLabel renames the current node.
func (s *FlowSession) SetLabel(label string) error {
	return s.edit(func(e *editor.Editor) error { return e.SetLabel(label) })
}

// SetSay replaces the utterance of the current node.
func (s *FlowSession) SetSay(say string) error {
	return s.edit(func(e *editor.Editor) error { return e.SetSay(say) })
}

// SetNote replaces the coaching note of the current node.
func (s *FlowSession) SetNote(note string) error {
	return s.edit(func(e *editor.Editor) error { return e.SetNote(note) })
}

// SetContext replaces the briefing.
func (s *FlowSession) SetContext(text string) error {
	return s.edit(func(e *editor.Editor) error { return e.SetContext(text) })
}

// AddBranch appends a placeholder branch to the current node.
func (s *FlowSession) AddBranch() error {
	return s.edit(func(e *editor.Editor) error { return e.AddBranch() })
}

// DeleteBranch removes a branch of the current node.
func (s *FlowSession) DeleteBranch(index int) error {
	return s.edit(func(e *editor.Editor) error { return e.DeleteBranch(index) })
}

// SetBranchLabel renames a branch of the current node.
func (s *FlowSession) SetBranchLabel(index int, label string) error {
	return s.edit(func(e *editor.Editor) error { return e.SetBranchLabel(index, label) })
}

// RetargetBranch points a branch of the current node to another node.
func (s *FlowSession) RetargetBranch(index int, to string) error {
	return s.edit(func(e *editor.Editor) error { return e.RetargetBranch(index, to) })
}

// AddNode creates a node and navigates to it.
func (s *FlowSession) AddNode(id string) error {
	return s.edit(func(e *editor.Editor) error { return e.AddNode(id) })
}

// RetargetOptions lists the node ids a branch can point to, sorted.
func (s *FlowSession) RetargetOptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editor.RetargetOptions()
}

// Save commits the edits with the configured credential store.
// See syncer.Syncer.Save.
func (s *FlowSession) Save(ctx context.Context) (syncer.Result, error) {
	return s.SaveWith(ctx, s.cfg.Creds)
}

// SaveWith commits the edits with credentials from creds.
func (s *FlowSession) SaveWith(ctx context.Context, creds ports.CredentialStore) (syncer.Result, error) {
	res, err := s.syncer.SaveWith(ctx, source{s}, creds)
	if err == nil && !res.Skipped && res.ExitEditMode {
		s.mu.Lock()
		s.editor.Leave()
		s.mu.Unlock()
	}
	return res, err
}

// Reload re-fetches the document, asking confirm first when there are unsaved
// edits. The current node is kept when it still exists.
func (s *FlowSession) Reload(ctx context.Context, confirm ports.Confirmer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.editor.Dirty() {
		return s.editor.Discard(ctx, confirm)
	}
	return s.reloadLocked(ctx)
}

// Close releases the flow. Unsaved edits require confirmation; a declined
// prompt returns domain.ErrUnsavedChanges and the session stays usable.
func (s *FlowSession) Close(ctx context.Context, confirm ports.Confirmer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.editor.Dirty() {
		if confirm == nil || !confirm.Confirm(ctx, editor.DiscardPrompt) {
			return domain.ErrUnsavedChanges
		}
	}
	s.logger.Debug("flow closed")
	return nil
}

func (s *FlowSession) edit(fn func(*editor.Editor) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.editor)
}

func (s *FlowSession) reloadLocked(ctx context.Context) error {
	if err := s.load(ctx, s.nav.Location()); err != nil {
		return err
	}
	s.editor.Reset()
	s.emit(domain.EventFlowReloaded)
	return nil
}

// load replaces the graph with a fresh copy from the store and re-resolves
// the position from location. A copy that cannot be navigated leaves the
// session untouched.
func (s *FlowSession) load(ctx context.Context, location string) error {
	obj, err := s.cfg.Docs.Get(ctx, s.key)
	if err != nil {
		return fmt.Errorf("load %s: %w", s.identity, err)
	}
	doc, err := domain.ParseDocument(s.identity, obj.Body)
	if err != nil {
		return fmt.Errorf("load %s: %w", s.identity, err)
	}
	if _, ok := navigation.InitialNode(doc.Flow, s.identity, location); !ok {
		return domain.ErrNoFlowData
	}

	s.subject = doc.Subject
	s.version = obj.Version
	s.store.Replace(doc.Flow)
	if err := s.nav.Open(location); err != nil {
		return err
	}
	s.logger.Debug("flow loaded", "key", s.key, "version", obj.Version, "nodes", doc.Flow.Len())
	return nil
}

func (s *FlowSession) emit(t domain.EventType) {
	if s.cfg.Observer == nil {
		return
	}
	ev := domain.NewEvent(t, s.identity)
	ev.NodeID = s.nav.Current()
	ev.Version = s.version
	s.cfg.Observer(ev)
}

// source exposes the session to the sync engine. Each call takes the session
// lock on its own, so the write itself runs unlocked.
type source struct {
	s *FlowSession
}

func (src source) Dirty() bool {
	src.s.mu.Lock()
	defer src.s.mu.Unlock()
	return src.s.editor.Dirty()
}

func (src source) Snapshot() (syncer.Snapshot, error) {
	s := src.s
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := &domain.FlowDocument{Identity: s.identity, Subject: s.subject, Flow: s.store.Graph()}
	body, err := doc.MarshalJSON()
	if err != nil {
		return syncer.Snapshot{Key: s.key}, err
	}
	return syncer.Snapshot{Key: s.key, Body: body, Generation: s.editor.Generation()}, nil
}

func (src source) Commit(generation uint64, version string) bool {
	s := src.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = version
	return s.editor.MarkSaved(generation)
}

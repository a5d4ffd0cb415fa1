// Package editor implements in-place editing of an open call flow.
//
// Edit mode is a toggle over the live graph, not a copy: every mutation is
// applied to the graph store immediately and marks the session dirty. There is
// no staging buffer and no undo; discarding changes reloads the document.
package editor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/aretw0/callflow/internal/logging"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/graph"
	"github.com/aretw0/callflow/pkg/navigation"
	"github.com/aretw0/callflow/pkg/ports"
)

// DiscardPrompt is the confirmation shown before unsaved edits are dropped.
const DiscardPrompt = "Discard unsaved changes?"

// ReloadFunc re-fetches the document from the remote store, replacing the graph.
type ReloadFunc func(ctx context.Context) error

// Editor is the edit engine of one open flow.
type Editor struct {
	store    *graph.Store
	nav      *navigation.Navigator
	reload   ReloadFunc
	logger   *slog.Logger
	observer domain.Observer
	identity string

	editMode   bool
	dirty      bool
	generation uint64
}

// Option configures the Editor.
type Option func(*Editor)

// WithReload sets how discarded edits are dropped.
func WithReload(fn ReloadFunc) Option {
	return func(e *Editor) {
		e.reload = fn
	}
}

// WithLogger configures a logger for the Editor.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Editor) {
		e.logger = logger
	}
}

// WithObserver registers a callback for edit events.
func WithObserver(o domain.Observer) Option {
	return func(e *Editor) {
		e.observer = o
	}
}

// WithIdentity labels emitted events with the flow identity.
func WithIdentity(identity string) Option {
	return func(e *Editor) {
		e.identity = identity
	}
}

// New creates an Editor over store, navigating with nav.
func New(store *graph.Store, nav *navigation.Navigator, opts ...Option) *Editor {
	e := &Editor{
		store:  store,
		nav:    nav,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EditMode reports whether edit mode is active.
func (e *Editor) EditMode() bool {
	return e.editMode
}

// Dirty reports whether there are unsaved edits.
func (e *Editor) Dirty() bool {
	return e.dirty
}

// Generation increases with every mutation. A save uses it to tell whether
// edits happened while it was in flight.
func (e *Editor) Generation() uint64 {
	return e.generation
}

// MarkSaved clears the dirty flag if no edit happened after generation was read.
// It reports whether the flag was cleared.
func (e *Editor) MarkSaved(generation uint64) bool {
	if generation != e.generation {
		return false
	}
	e.dirty = false
	return true
}

// Reset drops edit state after the graph was replaced by a fresh copy.
func (e *Editor) Reset() {
	e.dirty = false
	e.generation++
}

// Enter activates edit mode.
func (e *Editor) Enter() {
	if e.editMode {
		return
	}
	e.editMode = true
	e.emit(domain.EventModeChanged, "enter")
}

// Leave deactivates edit mode without touching the graph.
func (e *Editor) Leave() {
	if !e.editMode {
		return
	}
	e.editMode = false
	e.emit(domain.EventModeChanged, "leave")
}

// Exit leaves edit mode. With unsaved edits the user must confirm; on
// confirmation the document is reloaded, dropping the edits. A declined prompt
// keeps edit mode and returns domain.ErrUnsavedChanges.
func (e *Editor) Exit(ctx context.Context, confirm ports.Confirmer) error {
	if !e.editMode {
		return nil
	}
	if e.dirty {
		if err := e.Discard(ctx, confirm); err != nil {
			return err
		}
	}
	e.Leave()
	return nil
}

// Discard drops unsaved edits by reloading, after confirmation.
func (e *Editor) Discard(ctx context.Context, confirm ports.Confirmer) error {
	if !e.dirty {
		return nil
	}
	if confirm == nil || !confirm.Confirm(ctx, DiscardPrompt) {
		return domain.ErrUnsavedChanges
	}
	if e.reload == nil {
		return fmt.Errorf("discard: no reload configured")
	}
	if err := e.reload(ctx); err != nil {
		return fmt.Errorf("discard: %w", err)
	}
	e.Reset()
	e.logger.Info("edits discarded", "identity", e.identity)
	return nil
}

// SetLabel renames the current node and patches breadcrumb entries for it.
func (e *Editor) SetLabel(label string) error {
	id, err := e.target()
	if err != nil {
		return err
	}
	if err := e.store.RenameLabel(id, label); err != nil {
		return err
	}
	e.nav.SyncLabel(id, label)
	e.touch("label", id)
	return nil
}

// SetSay replaces the utterance of the current node.
func (e *Editor) SetSay(say string) error {
	id, err := e.target()
	if err != nil {
		return err
	}
	if err := e.store.SetSay(id, say); err != nil {
		return err
	}
	e.touch("say", id)
	return nil
}

// SetNote replaces the coaching note of the current node.
func (e *Editor) SetNote(note string) error {
	id, err := e.target()
	if err != nil {
		return err
	}
	if err := e.store.SetNote(id, note); err != nil {
		return err
	}
	e.touch("note", id)
	return nil
}

// SetContext replaces the briefing of the flow.
func (e *Editor) SetContext(text string) error {
	if !e.editMode {
		return domain.ErrNotEditing
	}
	e.store.SetContext(text)
	e.touch("context", "")
	return nil
}

// AddBranch appends a placeholder branch looping back to the current node.
func (e *Editor) AddBranch() error {
	id, err := e.target()
	if err != nil {
		return err
	}
	if err := e.store.AddBranch(id, domain.Branch{Label: domain.DefaultBranchLabel, To: id}); err != nil {
		return err
	}
	e.touch("add_branch", id)
	return nil
}

// DeleteBranch removes the branch at index from the current node.
func (e *Editor) DeleteBranch(index int) error {
	id, err := e.target()
	if err != nil {
		return err
	}
	if err := e.store.DeleteBranch(id, index); err != nil {
		return err
	}
	e.touch("delete_branch", id)
	return nil
}

// SetBranchLabel renames the branch at index of the current node.
func (e *Editor) SetBranchLabel(index int, label string) error {
	id, err := e.target()
	if err != nil {
		return err
	}
	if err := e.store.RelabelBranch(id, index, label); err != nil {
		return err
	}
	e.touch("branch_label", id)
	return nil
}

// RetargetOptions lists every known node id, sorted for the picker.
func (e *Editor) RetargetOptions() []string {
	ids := e.store.ListNodeIDs()
	sort.Strings(ids)
	return ids
}

// RetargetBranch points the branch at index of the current node to another node.
func (e *Editor) RetargetBranch(index int, to string) error {
	id, err := e.target()
	if err != nil {
		return err
	}
	if err := e.store.RetargetBranch(id, index, to); err != nil {
		return err
	}
	e.touch("retarget_branch", id)
	return nil
}

// AddNode creates an empty node and navigates to it. Empty or existing ids
// are rejected without touching the graph or the dirty flag.
func (e *Editor) AddNode(id string) error {
	if !e.editMode {
		return domain.ErrNotEditing
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.ErrInvalidNodeID
	}
	if _, exists := e.store.GetNode(id); exists {
		return fmt.Errorf("%w: %q", domain.ErrDuplicateNode, id)
	}

	e.store.SetNode(id, &domain.Node{Branches: []domain.Branch{}})
	e.touch("add_node", id)
	e.nav.NavigateTo(id, false)
	return nil
}

func (e *Editor) target() (string, error) {
	if !e.editMode {
		return "", domain.ErrNotEditing
	}
	id := e.nav.Current()
	if id == "" {
		return "", domain.ErrNoFlowData
	}
	return id, nil
}

func (e *Editor) touch(op, nodeID string) {
	e.dirty = true
	e.generation++
	e.logger.Debug("edited", "identity", e.identity, "op", op, "node", nodeID)
	if e.observer != nil {
		ev := domain.NewEvent(domain.EventEdited, e.identity)
		ev.Op = op
		ev.NodeID = nodeID
		e.observer(ev)
	}
}

func (e *Editor) emit(t domain.EventType, op string) {
	if e.observer != nil {
		ev := domain.NewEvent(t, e.identity)
		ev.Op = op
		e.observer(ev)
	}
}

// Package navigation tracks the active node and the breadcrumb trail of an
// open call flow, and keeps the addressable location token in step with it.
package navigation

import (
	"log/slog"

	"github.com/aretw0/callflow/internal/logging"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/graph"
	"github.com/aretw0/callflow/pkg/ports"
)

// Crumb is one breadcrumb entry. Label is a copy of the node label taken at
// navigation time; SyncLabel keeps it current after edits.
type Crumb struct {
	NodeID string `json:"node_id"`
	Label  string `json:"label"`
}

// Navigator is the navigation state machine over the graph store.
type Navigator struct {
	store    *graph.Store
	identity string
	history  ports.History
	logger   *slog.Logger
	observer domain.Observer

	trail        []Crumb
	current      string
	briefingOpen bool
	published    bool
}

// Option configures the Navigator.
type Option func(*Navigator)

// WithHistory publishes location tokens to h.
func WithHistory(h ports.History) Option {
	return func(n *Navigator) {
		n.history = h
	}
}

// WithLogger configures a logger for the Navigator.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Navigator) {
		n.logger = logger
	}
}

// WithObserver registers a callback for navigation events.
func WithObserver(o domain.Observer) Option {
	return func(n *Navigator) {
		n.observer = o
	}
}

// New creates a Navigator for the flow identified by identity.
func New(store *graph.Store, identity string, opts ...Option) *Navigator {
	n := &Navigator{
		store:    store,
		identity: identity,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Open positions the navigator for a freshly opened flow. The initial node is
// the node named by the location token when it exists, otherwise the start
// node. It fails closed with domain.ErrNoFlowData when neither resolves.
func (n *Navigator) Open(location string) error {
	n.trail = nil
	n.current = ""
	n.published = false
	n.briefingOpen = n.store.Context() != ""

	target, ok := InitialNode(n.store.Graph(), n.identity, location)
	if !ok {
		return domain.ErrNoFlowData
	}
	if !n.NavigateTo(target, true) {
		return domain.ErrNoFlowData
	}
	return nil
}

// InitialNode resolves where a flow opens: the node named by location when it
// belongs to identity and exists in g, otherwise g's start node. It reports
// false when neither exists.
func InitialNode(g *domain.FlowGraph, identity, location string) (string, bool) {
	if g == nil {
		return "", false
	}
	if loc, err := domain.ParseLocation(location); err == nil && loc.Identity == identity && loc.NodeID != "" {
		if g.Has(loc.NodeID) {
			return loc.NodeID, true
		}
	}
	return g.Start, g.Has(g.Start)
}

// NavigateTo moves to nodeID and reports whether the state changed.
// Unknown ids are ignored (dangling branch targets do nothing).
//
// An initial navigation resets the trail to the single target entry. Otherwise a
// node already on the trail truncates it back to that entry and a new node is
// appended, so the trail never holds an id twice.
func (n *Navigator) NavigateTo(nodeID string, initial bool) bool {
	node, ok := n.store.GetNode(nodeID)
	if !ok {
		n.logger.Debug("navigation ignored, node not found", "identity", n.identity, "node", nodeID)
		return false
	}

	if initial {
		n.trail = []Crumb{{NodeID: nodeID, Label: node.Label}}
	} else if i := n.indexOf(nodeID); i >= 0 {
		n.trail = n.trail[:i+1]
	} else {
		n.trail = append(n.trail, Crumb{NodeID: nodeID, Label: node.Label})
	}
	n.current = nodeID

	n.publish()

	if !initial {
		n.briefingOpen = false
	}

	n.logger.Debug("navigated", "identity", n.identity, "node", nodeID, "initial", initial, "depth", len(n.trail))
	if n.observer != nil {
		ev := domain.NewEvent(domain.EventNavigated, n.identity)
		ev.NodeID = nodeID
		n.observer(ev)
	}
	return true
}

// StartOver returns to the start node with a fresh trail.
func (n *Navigator) StartOver() bool {
	return n.NavigateTo(n.store.Start(), true)
}

// Back moves to the previous trail entry, if any.
func (n *Navigator) Back() bool {
	if len(n.trail) < 2 {
		return false
	}
	return n.NavigateTo(n.trail[len(n.trail)-2].NodeID, false)
}

// SyncLabel patches the label of every trail entry for nodeID.
func (n *Navigator) SyncLabel(nodeID, label string) {
	for i := range n.trail {
		if n.trail[i].NodeID == nodeID {
			n.trail[i].Label = label
		}
	}
}

// Trail returns a copy of the breadcrumb trail.
func (n *Navigator) Trail() []Crumb {
	return append([]Crumb(nil), n.trail...)
}

// Current returns the id of the active node, or "" before Open.
func (n *Navigator) Current() string {
	return n.current
}

// CurrentNode returns the live active node.
func (n *Navigator) CurrentNode() (*domain.Node, bool) {
	if n.current == "" {
		return nil, false
	}
	return n.store.GetNode(n.current)
}

// Location returns the token of the current position.
func (n *Navigator) Location() string {
	return domain.Location{Identity: n.identity, NodeID: n.current}.String()
}

// BriefingOpen reports whether the context panel is expanded.
func (n *Navigator) BriefingOpen() bool {
	return n.briefingOpen
}

// ToggleBriefing flips the context panel.
func (n *Navigator) ToggleBriefing() {
	n.briefingOpen = !n.briefingOpen
}

func (n *Navigator) indexOf(nodeID string) int {
	for i, c := range n.trail {
		if c.NodeID == nodeID {
			return i
		}
	}
	return -1
}

// publish pushes one addressable entry on the first move into the flow and
// replaces it afterwards, so "back" leaves the flow instead of stepping nodes.
// A history already addressing this flow (a deep link) is replaced, not pushed.
func (n *Navigator) publish() {
	if n.history == nil {
		return
	}
	token := n.Location()
	if n.published {
		n.history.Replace(token)
		return
	}
	n.published = true

	if loc, err := domain.ParseLocation(n.history.Current()); err == nil && loc.Identity == n.identity {
		n.history.Replace(token)
		return
	}
	n.history.Push(token)
}

// Package graph holds the single flow graph of an open call flow and the
// in-place mutations the edit engine applies to it.
package graph

import (
	"fmt"

	"github.com/aretw0/callflow/pkg/domain"
)

// Store owns the node and branch data of the currently open flow.
// Navigation and editing hold ids into it, never copies, so every mutation is
// visible immediately. Store performs no validation beyond addressing: keeping
// ids non-empty and unique is the caller's job.
type Store struct {
	graph *domain.FlowGraph
}

// New wraps a graph. A nil graph is replaced by an empty one.
func New(g *domain.FlowGraph) *Store {
	if g == nil {
		g = domain.NewFlowGraph("")
	}
	return &Store{graph: g}
}

// Graph returns the live graph.
func (s *Store) Graph() *domain.FlowGraph {
	return s.graph
}

// Replace swaps the whole graph, used when a document is reloaded.
func (s *Store) Replace(g *domain.FlowGraph) {
	if g == nil {
		g = domain.NewFlowGraph("")
	}
	s.graph = g
}

// GetNode returns the live node for id.
func (s *Store) GetNode(id string) (*domain.Node, bool) {
	return s.graph.Node(id)
}

// ListNodeIDs returns ids in the order edits created them.
func (s *Store) ListNodeIDs() []string {
	return s.graph.NodeIDs()
}

// Start returns the id of the initial node.
func (s *Store) Start() string {
	return s.graph.Start
}

// Context returns the briefing text.
func (s *Store) Context() string {
	return s.graph.Context
}

// SetNode creates or overwrites a node.
func (s *Store) SetNode(id string, n *domain.Node) {
	s.graph.Put(id, n)
}

// SetContext replaces the briefing text.
func (s *Store) SetContext(text string) {
	s.graph.Context = text
}

// RenameLabel sets the caption of a node.
func (s *Store) RenameLabel(id, label string) error {
	n, err := s.node(id)
	if err != nil {
		return err
	}
	n.Label = label
	return nil
}

// SetSay sets the scripted utterance of a node.
func (s *Store) SetSay(id, say string) error {
	n, err := s.node(id)
	if err != nil {
		return err
	}
	n.Say = say
	return nil
}

// SetNote sets the coaching note of a node.
func (s *Store) SetNote(id, note string) error {
	n, err := s.node(id)
	if err != nil {
		return err
	}
	n.Note = note
	return nil
}

// AddBranch appends a branch to a node.
func (s *Store) AddBranch(id string, b domain.Branch) error {
	n, err := s.node(id)
	if err != nil {
		return err
	}
	n.Branches = append(n.Branches, b)
	return nil
}

// DeleteBranch removes the branch at index. The remaining order is kept and
// deleting the last branch leaves an empty, non-nil sequence.
func (s *Store) DeleteBranch(id string, index int) error {
	n, err := s.branchOwner(id, index)
	if err != nil {
		return err
	}
	n.Branches = append(n.Branches[:index:index], n.Branches[index+1:]...)
	if n.Branches == nil {
		n.Branches = []domain.Branch{}
	}
	return nil
}

// RetargetBranch points the branch at index to another node id.
// No reachability or cycle check is done: self-loops and dangling targets are legal.
func (s *Store) RetargetBranch(id string, index int, to string) error {
	n, err := s.branchOwner(id, index)
	if err != nil {
		return err
	}
	n.Branches[index].To = to
	return nil
}

// RelabelBranch sets the caption of the branch at index.
func (s *Store) RelabelBranch(id string, index int, label string) error {
	n, err := s.branchOwner(id, index)
	if err != nil {
		return err
	}
	n.Branches[index].Label = label
	return nil
}

func (s *Store) node(id string) (*domain.Node, error) {
	n, ok := s.graph.Node(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrNodeNotFound, id)
	}
	return n, nil
}

func (s *Store) branchOwner(id string, index int) (*domain.Node, error) {
	n, err := s.node(id)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(n.Branches) {
		return nil, fmt.Errorf("%w: %q has no branch %d", domain.ErrBranchNotFound, id, index)
	}
	return n, nil
}

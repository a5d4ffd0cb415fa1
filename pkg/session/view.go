package session

import (
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/navigation"
	"github.com/aretw0/callflow/pkg/syncer"
)

// BranchView is one response button of the current node.
type BranchView struct {
	Index int    `json:"index"`
	Label string `json:"label"`
	To    string `json:"to"`
	// Dangling is true when the target node does not exist.
	Dangling bool `json:"dangling,omitempty"`
}

// NodeView is the current node as a renderer shows it.
type NodeView struct {
	ID       string       `json:"id"`
	Label    string       `json:"label"`
	Say      string       `json:"say"`
	Note     string       `json:"note,omitempty"`
	Branches []BranchView `json:"branches"`
	Terminal bool         `json:"terminal"`
}

// View is a consistent snapshot of a FlowSession for the presentation layer.
type View struct {
	Identity     string             `json:"identity"`
	Location     string             `json:"location"`
	Version      string             `json:"version,omitempty"`
	Subject      map[string]any     `json:"subject,omitempty"`
	Context      string             `json:"context,omitempty"`
	BriefingOpen bool               `json:"briefing_open"`
	Trail        []navigation.Crumb `json:"trail"`
	Node         *NodeView          `json:"node,omitempty"`
	NodeIDs      []string           `json:"node_ids"`
	EditMode     bool               `json:"edit_mode"`
	Dirty        bool               `json:"dirty"`
	SaveState    syncer.State       `json:"save_state"`
	Error        string             `json:"error,omitempty"`
}

// View snapshots the session.
func (s *FlowSession) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	dirty := s.editor.Dirty()
	v := View{
		Identity:     s.identity,
		Location:     s.nav.Location(),
		Version:      s.version,
		Subject:      s.subject.Map(),
		Context:      s.store.Context(),
		BriefingOpen: s.nav.BriefingOpen(),
		Trail:        s.nav.Trail(),
		NodeIDs:      s.store.ListNodeIDs(),
		EditMode:     s.editor.EditMode(),
		Dirty:        dirty,
		SaveState:    s.syncer.State(dirty),
	}
	if err := s.syncer.LastError(); err != nil && dirty {
		v.Error = domain.Describe(err)
	}

	if node, ok := s.nav.CurrentNode(); ok {
		nv := &NodeView{
			ID:       s.nav.Current(),
			Label:    node.Label,
			Say:      node.Say,
			Note:     node.Note,
			Branches: make([]BranchView, 0, len(node.Branches)),
			Terminal: node.Terminal(),
		}
		for i, b := range node.Branches {
			_, known := s.store.GetNode(b.To)
			nv.Branches = append(nv.Branches, BranchView{Index: i, Label: b.Label, To: b.To, Dangling: !known})
		}
		v.Node = nv
	}
	return v
}

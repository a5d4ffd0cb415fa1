package domain

// DefaultBranchLabel is the caption given to branches created in edit mode.
const DefaultBranchLabel = "New response"

// Branch is a caller-response option linking one node to another (or itself).
// A branch may point at a node that does not exist; that is tolerated until navigated.
type Branch struct {
	Label string `json:"label" mapstructure:"label"`
	To    string `json:"to" mapstructure:"to"`
}

// Node represents one stage of the conversation.
type Node struct {
	// Label is the short caption, also used as the breadcrumb label.
	Label string `json:"label" mapstructure:"label"`

	// Say is the scripted utterance for this stage (may be empty).
	Say string `json:"say" mapstructure:"say"`

	// Note is coaching text, never spoken.
	Note string `json:"note,omitempty" mapstructure:"note"`

	// Branches is ordered. An empty sequence marks a terminal node.
	Branches []Branch `json:"branches" mapstructure:"branches"`
}

// Terminal reports whether the node has no outgoing branches.
func (n *Node) Terminal() bool {
	return len(n.Branches) == 0
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	c := *n
	c.Branches = append([]Branch(nil), n.Branches...)
	return &c
}

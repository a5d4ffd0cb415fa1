package dsl

import "github.com/aretw0/callflow/pkg/domain"

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	id      string
	node    domain.Node
	builder *Builder
}

// Label sets the caption, also used as the breadcrumb label. Defaults to the id.
func (n *NodeBuilder) Label(label string) *NodeBuilder {
	n.node.Label = label
	return n
}

// Say sets the scripted utterance.
func (n *NodeBuilder) Say(say string) *NodeBuilder {
	n.node.Say = say
	return n
}

// Note sets the coaching text.
func (n *NodeBuilder) Note(note string) *NodeBuilder {
	n.node.Note = note
	return n
}

// Branch appends a caller response leading to target.
func (n *NodeBuilder) Branch(label, target string) *NodeBuilder {
	n.node.Branches = append(n.node.Branches, domain.Branch{Label: label, To: target})
	return n
}

// Loop appends a response that stays on this node.
func (n *NodeBuilder) Loop(label string) *NodeBuilder {
	return n.Branch(label, n.id)
}

// Terminal removes every branch, ending the flow here.
func (n *NodeBuilder) Terminal() *NodeBuilder {
	n.node.Branches = []domain.Branch{}
	return n
}

// Done returns to the flow builder for chaining.
func (n *NodeBuilder) Done() *Builder {
	return n.builder
}

// Build returns a copy of the node.
// This is primarily used by the Builder, but exposed for advanced usage.
func (n *NodeBuilder) Build() *domain.Node {
	c := n.node
	return c.Clone()
}

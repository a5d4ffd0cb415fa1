package dsl

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/callflow/pkg/domain"
)

// Builder manages the flow construction.
type Builder struct {
	start   string
	context string
	subject domain.Attributes
	order   []string
	nodes   map[string]*NodeBuilder
	err     error
}

// New creates a flow builder whose navigation starts at start.
func New(start string) *Builder {
	return &Builder{
		start: start,
		nodes: make(map[string]*NodeBuilder),
	}
}

// Context sets the briefing shown before navigation.
func (b *Builder) Context(text string) *Builder {
	b.context = text
	return b
}

// Subject appends a subject attribute. Values are JSON encoded.
func (b *Builder) Subject(key string, value any) *Builder {
	raw, err := json.Marshal(value)
	if err != nil {
		b.fail(fmt.Errorf("subject %q: %w", key, err))
		return b
	}
	b.subject = append(b.subject, domain.Attribute{Key: key, Value: raw})
	return b
}

// Add creates a new node in the flow.
// If the node already exists, it returns the existing builder.
func (b *Builder) Add(id string) *NodeBuilder {
	if nb, ok := b.nodes[id]; ok {
		return nb
	}
	nb := &NodeBuilder{
		id:      id,
		node:    domain.Node{Label: id, Branches: []domain.Branch{}},
		builder: b,
	}
	b.nodes[id] = nb
	b.order = append(b.order, id)
	return nb
}

// Build compiles the flow graph. The start node must exist; branches may
// dangle, as they may in stored documents.
func (b *Builder) Build() (*domain.FlowGraph, error) {
	if b.err != nil {
		return nil, b.err
	}
	g := domain.NewFlowGraph(b.start)
	g.Context = b.context
	for _, id := range b.order {
		if id == "" {
			return nil, domain.ErrInvalidNodeID
		}
		g.Put(id, b.nodes[id].Build())
	}
	if !g.Navigable() {
		return nil, fmt.Errorf("%w: start %q", domain.ErrNodeNotFound, b.start)
	}
	return g, nil
}

// Document compiles the full lead document.
func (b *Builder) Document(identity string) (*domain.FlowDocument, error) {
	g, err := b.Build()
	if err != nil {
		return nil, err
	}
	return &domain.FlowDocument{Identity: identity, Subject: b.subject, Flow: g}, nil
}

// JSON compiles the stored document body.
func (b *Builder) JSON() ([]byte, error) {
	doc, err := b.Document("")
	if err != nil {
		return nil, err
	}
	return doc.MarshalJSON()
}

// MustJSON is like JSON but panics on error. Intended for tests and fixtures.
func (b *Builder) MustJSON() []byte {
	body, err := b.JSON()
	if err != nil {
		panic(err)
	}
	return body
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

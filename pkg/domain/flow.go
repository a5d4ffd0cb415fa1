package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/buger/jsonparser"
)

// FlowGraph is one conversation flow: a briefing, a start node and the nodes.
// Node ids keep the order in which they were inserted; serialization preserves it.
type FlowGraph struct {
	// Context is the free-text briefing shown before navigation starts.
	Context string

	// Start is the id of the initial node.
	Start string

	nodes map[string]*Node
	order []string
}

// NewFlowGraph creates an empty graph starting at the given node id.
func NewFlowGraph(start string) *FlowGraph {
	return &FlowGraph{
		Start: start,
		nodes: make(map[string]*Node),
	}
}

// Node returns the live node for id. Mutating it mutates the graph.
func (g *FlowGraph) Node(id string) (*Node, bool) {
	if g == nil || g.nodes == nil {
		return nil, false
	}
	n, ok := g.nodes[id]
	return n, ok
}

// Has reports whether a node with the given id exists.
func (g *FlowGraph) Has(id string) bool {
	_, ok := g.Node(id)
	return ok
}

// NodeIDs returns the node ids in insertion order.
func (g *FlowGraph) NodeIDs() []string {
	if g == nil {
		return nil
	}
	return append([]string(nil), g.order...)
}

// Len returns the number of nodes.
func (g *FlowGraph) Len() int {
	if g == nil {
		return 0
	}
	return len(g.order)
}

// Put creates or overwrites a node. Overwriting keeps the original position.
func (g *FlowGraph) Put(id string, n *Node) {
	if g.nodes == nil {
		g.nodes = make(map[string]*Node)
	}
	if _, exists := g.nodes[id]; !exists {
		g.order = append(g.order, id)
	}
	g.nodes[id] = n
}

// Navigable reports whether Start references an existing node.
func (g *FlowGraph) Navigable() bool {
	return g != nil && g.Start != "" && g.Has(g.Start)
}

// Clone returns a deep copy of the graph.
func (g *FlowGraph) Clone() *FlowGraph {
	c := NewFlowGraph(g.Start)
	c.Context = g.Context
	for _, id := range g.order {
		c.Put(id, g.nodes[id].Clone())
	}
	return c
}

// MarshalJSON writes {"context","start","nodes"} with nodes in insertion order.
func (g *FlowGraph) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	if err := writeField(&buf, "context", g.Context); err != nil {
		return nil, err
	}
	buf.WriteByte(',')
	if err := writeField(&buf, "start", g.Start); err != nil {
		return nil, err
	}
	buf.WriteString(`,"nodes":{`)

	for i, id := range g.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		node := g.nodes[id]
		if node.Branches == nil {
			node = node.Clone()
			node.Branches = []Branch{}
		}
		if err := writeField(&buf, id, node); err != nil {
			return nil, err
		}
	}

	buf.WriteString("}}")
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a graph, keeping the document order of the node ids.
func (g *FlowGraph) UnmarshalJSON(data []byte) error {
	*g = FlowGraph{nodes: make(map[string]*Node)}

	return jsonparser.ObjectEach(data, func(key, value []byte, dataType jsonparser.ValueType, _ int) error {
		switch string(key) {
		case "context":
			s, err := parseString(value, dataType)
			if err != nil {
				return fmt.Errorf("flow context: %w", err)
			}
			g.Context = s
		case "start":
			s, err := parseString(value, dataType)
			if err != nil {
				return fmt.Errorf("flow start: %w", err)
			}
			g.Start = s
		case "nodes":
			if dataType != jsonparser.Object {
				return nil
			}
			return jsonparser.ObjectEach(value, func(k, v []byte, t jsonparser.ValueType, _ int) error {
				id, err := jsonparser.ParseString(k)
				if err != nil {
					return fmt.Errorf("node id: %w", err)
				}
				if t != jsonparser.Object {
					// Navigation treats it as absent.
					return nil
				}
				var node Node
				if err := json.Unmarshal(v, &node); err != nil {
					return fmt.Errorf("node %q: %w", id, err)
				}
				g.Put(id, &node)
				return nil
			})
		}
		return nil
	})
}

func parseString(value []byte, dataType jsonparser.ValueType) (string, error) {
	switch dataType {
	case jsonparser.String:
		return jsonparser.ParseString(value)
	case jsonparser.Null:
		return "", nil
	default:
		return "", fmt.Errorf("expected string, got %v", dataType)
	}
}

func writeField(buf *bytes.Buffer, key string, value any) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	v, err := json.Marshal(value)
	if err != nil {
		return err
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	return nil
}

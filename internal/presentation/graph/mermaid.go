// Package graph exports call flows as Mermaid flowcharts.
package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/callflow/pkg/domain"
)

// GraphOverlay contains dynamic state data to visualize on the graph.
type GraphOverlay struct {
	VisitedNodes []string
	CurrentNode  string
}

// GenerateMermaid produces a Mermaid flowchart for a flow graph.
// It applies semantic styling:
// - Start: ((Circle))
// - Terminal (no branches): ([Stadium])
// - Default: [Rectangle]
// Branches pointing at unknown nodes end in a dashed {{missing}} hexagon.
// It also applies overlay styles (Visited/Current) if provided.
func GenerateMermaid(g *domain.FlowGraph, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	if g == nil {
		return sb.String()
	}

	missing := make(map[string]bool)
	for _, id := range g.NodeIDs() {
		node, _ := g.Node(id)
		safeID := sanitizeMermaidID(id)

		opener, closer := "[", "]"
		switch {
		case id == g.Start:
			opener, closer = "((", "))"
		case node.Terminal():
			opener, closer = "([", "])"
		}

		text := escapeLabel(id)
		if node.Label != "" && node.Label != id {
			text = escapeLabel(node.Label) + "<br/><small>" + escapeLabel(id) + "</small>"
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, text, closer))

		for _, b := range node.Branches {
			safeTo := sanitizeMermaidID(b.To)
			if !g.Has(b.To) {
				missing[b.To] = true
			}
			arrow := "-->"
			if b.Label != "" {
				arrow = fmt.Sprintf("-- \"%s\" -->", escapeLabel(b.Label))
			}
			sb.WriteString(fmt.Sprintf("    %s %s %s\n", safeID, arrow, safeTo))
		}
	}

	if len(missing) > 0 {
		sb.WriteString("\n    classDef missing stroke-dasharray: 5 5,stroke:#dc2626,color:#dc2626;\n")
		for _, id := range g.NodeIDs() {
			node, _ := g.Node(id)
			for _, b := range node.Branches {
				if missing[b.To] {
					safeTo := sanitizeMermaidID(b.To)
					sb.WriteString(fmt.Sprintf("    %s{{\"%s ⚠\"}}:::missing\n", safeTo, escapeLabel(b.To)))
					delete(missing, b.To)
				}
			}
		}
	}

	// Apply Overlay Styles
	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			if id == overlay.CurrentNode || !g.Has(id) {
				continue
			}
			safeID := sanitizeMermaidID(id)
			if !visitedSet[safeID] {
				visitedSet[safeID] = true
				sb.WriteString(fmt.Sprintf("    class %s visited;\n", safeID))
			}
		}

		if overlay.CurrentNode != "" && g.Has(overlay.CurrentNode) {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeMermaidID(overlay.CurrentNode)))
		}
	}

	return sb.String()
}

// sanitizeMermaidID prefixes ids so reserved words like "end" never reach Mermaid.
func sanitizeMermaidID(id string) string {
	var sb strings.Builder
	sb.WriteString("n_")
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

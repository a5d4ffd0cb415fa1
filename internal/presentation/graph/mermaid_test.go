package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/callflow/internal/presentation/graph"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func sampleFlow() *domain.FlowGraph {
	g := domain.NewFlowGraph("greet")
	g.Put("greet", &domain.Node{Label: "Greeting", Branches: []domain.Branch{
		{Label: `Says "yes"`, To: "pitch/main"},
		{Label: "Hangs up", To: "gone"},
	}})
	g.Put("pitch/main", &domain.Node{Label: "Pitch", Branches: []domain.Branch{{Label: "Done", To: "end"}}})
	g.Put("end", &domain.Node{Label: "end"})
	return g
}

func TestGenerateMermaid(t *testing.T) {
	got := graph.GenerateMermaid(sampleFlow(), nil)

	for _, want := range []string{
		"graph TD\n",
		`n_greet(("Greeting<br/><small>greet</small>"))`,
		`n_pitch_main["Pitch<br/><small>pitch/main</small>"]`,
		`n_end(["end"])`,
		`n_greet -- "Says 'yes'" --> n_pitch_main`,
		`n_pitch_main -- "Done" --> n_end`,
		`n_gone{{"gone ⚠"}}:::missing`,
	} {
		assert.Contains(t, got, want)
	}
	assert.NotContains(t, got, "Overlay")
	assert.Equal(t, 1, strings.Count(got, "n_gone{{"))
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	got := graph.GenerateMermaid(sampleFlow(), &graph.GraphOverlay{
		VisitedNodes: []string{"greet", "pitch/main", "greet", "ghost"},
		CurrentNode:  "pitch/main",
	})

	assert.Contains(t, got, "class n_greet visited;")
	assert.Equal(t, 1, strings.Count(got, "class n_greet visited;"))
	assert.Contains(t, got, "class n_pitch_main current;")
	assert.NotContains(t, got, "class n_pitch_main visited;")
	assert.NotContains(t, got, "n_ghost")
}

func TestGenerateMermaid_Nil(t *testing.T) {
	assert.Equal(t, "graph TD\n", graph.GenerateMermaid(nil, nil))
}

package navigation_test

import (
	"math/rand"
	"testing"

	"github.com/aretw0/callflow/pkg/adapters/memory"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/graph"
	"github.com/aretw0/callflow/pkg/navigation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func acmeStore() *graph.Store {
	g := domain.NewFlowGraph("greet")
	g.Context = "Met at the expo."
	g.Put("greet", &domain.Node{Label: "Greeting", Say: "Hi", Branches: []domain.Branch{{Label: "Interested", To: "pitch"}}})
	g.Put("pitch", &domain.Node{Label: "Pitch", Say: "Here's the deal", Branches: []domain.Branch{}})
	return graph.New(g)
}

func TestNavigator_Scenario(t *testing.T) {
	history := memory.NewHistory("")
	nav := navigation.New(acmeStore(), "acme", navigation.WithHistory(history))

	require.NoError(t, nav.Open("lead/acme"))
	assert.Equal(t, []navigation.Crumb{{NodeID: "greet", Label: "Greeting"}}, nav.Trail())
	assert.True(t, nav.BriefingOpen(), "briefing starts open when context is present")

	assert.True(t, nav.NavigateTo("pitch", false))
	assert.Equal(t, []navigation.Crumb{
		{NodeID: "greet", Label: "Greeting"},
		{NodeID: "pitch", Label: "Pitch"},
	}, nav.Trail())
	assert.Equal(t, "lead/acme/pitch", history.Current())
	assert.False(t, nav.BriefingOpen(), "non-initial navigation collapses the briefing")

	assert.True(t, nav.NavigateTo("greet", false))
	assert.Equal(t, []navigation.Crumb{{NodeID: "greet", Label: "Greeting"}}, nav.Trail())
	assert.Equal(t, "lead/acme/greet", history.Current())
}

func TestNavigator_HistoryPushesOnceThenReplaces(t *testing.T) {
	history := memory.NewHistory("")
	nav := navigation.New(acmeStore(), "acme", navigation.WithHistory(history))

	require.NoError(t, nav.Open(""))
	nav.NavigateTo("pitch", false)
	nav.NavigateTo("greet", false)
	nav.StartOver()

	assert.Equal(t, 1, history.Len(), "in-flow moves must not create history entries")
	assert.Equal(t, "lead/acme/greet", history.Current())
}

func TestNavigator_DeepLinkReplacesExistingEntry(t *testing.T) {
	history := memory.NewHistory("lead/acme/pitch")
	nav := navigation.New(acmeStore(), "acme", navigation.WithHistory(history))

	require.NoError(t, nav.Open(history.Current()))
	assert.Equal(t, "pitch", nav.Current())
	assert.Equal(t, []navigation.Crumb{{NodeID: "pitch", Label: "Pitch"}}, nav.Trail())
	assert.Equal(t, 1, history.Len())
}

func TestNavigator_OpenFallsBackToStart(t *testing.T) {
	nav := navigation.New(acmeStore(), "acme")

	require.NoError(t, nav.Open("lead/acme/deleted-node"))
	assert.Equal(t, "greet", nav.Current())

	require.NoError(t, nav.Open("lead/other/pitch"))
	assert.Equal(t, "greet", nav.Current(), "a token for another flow must not position this one")
}

func TestNavigator_OpenWithoutFlowData(t *testing.T) {
	g := domain.NewFlowGraph("missing")
	g.Put("orphan", &domain.Node{Label: "Orphan"})
	nav := navigation.New(graph.New(g), "acme")

	assert.ErrorIs(t, nav.Open("lead/acme"), domain.ErrNoFlowData)
	assert.Empty(t, nav.Trail())
	_, ok := nav.CurrentNode()
	assert.False(t, ok)
}

func TestNavigator_DanglingTargetIgnored(t *testing.T) {
	nav := navigation.New(acmeStore(), "acme")
	require.NoError(t, nav.Open(""))

	assert.False(t, nav.NavigateTo("nowhere", false))
	assert.Equal(t, "greet", nav.Current())
	assert.Len(t, nav.Trail(), 1)
}

func TestNavigator_InitialAlwaysSingleEntry(t *testing.T) {
	nav := navigation.New(acmeStore(), "acme")
	require.NoError(t, nav.Open(""))
	nav.NavigateTo("pitch", false)

	require.True(t, nav.NavigateTo("pitch", true))
	assert.Equal(t, []navigation.Crumb{{NodeID: "pitch", Label: "Pitch"}}, nav.Trail())
}

func TestNavigator_SyncLabel(t *testing.T) {
	store := acmeStore()
	nav := navigation.New(store, "acme")
	require.NoError(t, nav.Open(""))
	nav.NavigateTo("pitch", false)

	require.NoError(t, store.RenameLabel("greet", "Hello"))
	nav.SyncLabel("greet", "Hello")

	assert.Equal(t, "Hello", nav.Trail()[0].Label)
	assert.Equal(t, "Pitch", nav.Trail()[1].Label)
}

func TestNavigator_Back(t *testing.T) {
	nav := navigation.New(acmeStore(), "acme")
	require.NoError(t, nav.Open(""))
	assert.False(t, nav.Back())

	nav.NavigateTo("pitch", false)
	assert.True(t, nav.Back())
	assert.Equal(t, "greet", nav.Current())
}

func TestNavigator_TrailNeverRepeats(t *testing.T) {
	g := domain.NewFlowGraph("a")
	ids := []string{"a", "b", "c", "d", "e"}
	for _, id := range ids {
		g.Put(id, &domain.Node{Label: id})
	}
	nav := navigation.New(graph.New(g), "loop")
	require.NoError(t, nav.Open(""))

	r := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		nav.NavigateTo(ids[r.Intn(len(ids))], r.Intn(20) == 0)

		seen := make(map[string]bool)
		for _, c := range nav.Trail() {
			require.False(t, seen[c.NodeID], "node %q appears twice in %v", c.NodeID, nav.Trail())
			seen[c.NodeID] = true
		}
		assert.Equal(t, nav.Current(), nav.Trail()[len(nav.Trail())-1].NodeID)
	}
}

func TestInitialNode(t *testing.T) {
	g := acmeStore().Graph()

	tests := []struct {
		name     string
		graph    *domain.FlowGraph
		location string
		want     string
		ok       bool
	}{
		{"start", g, "lead/acme", "greet", true},
		{"named node", g, "lead/acme/pitch", "pitch", true},
		{"unknown node falls back", g, "lead/acme/nope", "greet", true},
		{"other lead ignored", g, "lead/globex/pitch", "greet", true},
		{"missing start", domain.NewFlowGraph("gone"), "lead/acme", "gone", false},
		{"nil graph", nil, "lead/acme", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := navigation.InitialNode(tt.graph, "acme", tt.location)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

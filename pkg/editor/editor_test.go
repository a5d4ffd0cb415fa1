package editor_test

import (
	"context"
	"testing"

	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/editor"
	"github.com/aretw0/callflow/pkg/graph"
	"github.com/aretw0/callflow/pkg/navigation"
	"github.com/aretw0/callflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture() *domain.FlowGraph {
	g := domain.NewFlowGraph("greet")
	g.Put("greet", &domain.Node{Label: "Greeting", Say: "Hi", Branches: []domain.Branch{{Label: "Interested", To: "pitch"}}})
	g.Put("pitch", &domain.Node{Label: "Pitch", Say: "Here's the deal", Branches: []domain.Branch{{Label: "Done", To: "close"}}})
	g.Put("close", &domain.Node{Label: "Close", Branches: []domain.Branch{}})
	return g
}

func setup(t *testing.T, opts ...editor.Option) (*graph.Store, *navigation.Navigator, *editor.Editor) {
	t.Helper()
	store := graph.New(fixture())
	nav := navigation.New(store, "acme")
	require.NoError(t, nav.Open("lead/acme"))
	return store, nav, editor.New(store, nav, opts...)
}

func TestEditor_RequiresEditMode(t *testing.T) {
	_, _, ed := setup(t)

	assert.ErrorIs(t, ed.SetSay("x"), domain.ErrNotEditing)
	assert.ErrorIs(t, ed.AddNode("new"), domain.ErrNotEditing)
	assert.False(t, ed.Dirty())
}

func TestEditor_LabelEditSyncsBreadcrumb(t *testing.T) {
	store, nav, ed := setup(t)
	ed.Enter()
	nav.NavigateTo("pitch", false)

	require.NoError(t, ed.SetLabel("Offer"))

	n, _ := store.GetNode("pitch")
	assert.Equal(t, "Offer", n.Label)
	assert.Equal(t, "Offer", nav.Trail()[1].Label)
	assert.True(t, ed.Dirty())
}

func TestEditor_AddBranchLoopsBack(t *testing.T) {
	store, _, ed := setup(t)
	ed.Enter()

	require.NoError(t, ed.AddBranch())

	n, _ := store.GetNode("greet")
	require.Len(t, n.Branches, 2)
	assert.Equal(t, domain.Branch{Label: domain.DefaultBranchLabel, To: "greet"}, n.Branches[1])
}

func TestEditor_DeleteOnlyBranchMakesTerminal(t *testing.T) {
	store, nav, ed := setup(t)
	ed.Enter()
	nav.NavigateTo("pitch", false)

	require.NoError(t, ed.DeleteBranch(0))

	n, _ := store.GetNode("pitch")
	assert.True(t, n.Terminal())
	assert.ErrorIs(t, ed.DeleteBranch(0), domain.ErrBranchNotFound)
}

func TestEditor_RetargetOptionsSorted(t *testing.T) {
	_, _, ed := setup(t)
	assert.Equal(t, []string{"close", "greet", "pitch"}, ed.RetargetOptions())
}

func TestEditor_RetargetBranch(t *testing.T) {
	store, _, ed := setup(t)
	ed.Enter()

	require.NoError(t, ed.RetargetBranch(0, "close"))
	require.NoError(t, ed.SetBranchLabel(0, "Skip ahead"))

	n, _ := store.GetNode("greet")
	assert.Equal(t, domain.Branch{Label: "Skip ahead", To: "close"}, n.Branches[0])
}

func TestEditor_AddNode(t *testing.T) {
	store, nav, ed := setup(t)
	ed.Enter()

	require.NoError(t, ed.AddNode("  objection  "))

	n, ok := store.GetNode("objection")
	require.True(t, ok)
	assert.Empty(t, n.Label)
	assert.NotNil(t, n.Branches)
	assert.Equal(t, "objection", nav.Current())
	assert.Len(t, nav.Trail(), 2, "adding a node is a non-initial move")
	assert.True(t, ed.Dirty())
}

func TestEditor_AddNodeRejectsInvalidIDs(t *testing.T) {
	store, _, ed := setup(t)
	ed.Enter()

	assert.ErrorIs(t, ed.AddNode("   "), domain.ErrInvalidNodeID)
	assert.ErrorIs(t, ed.AddNode("pitch"), domain.ErrDuplicateNode)

	n, _ := store.GetNode("pitch")
	assert.Equal(t, "Pitch", n.Label, "existing node must be untouched")
	assert.False(t, ed.Dirty())
	assert.Equal(t, 3, store.Graph().Len())
}

func TestEditor_ExitWithoutEditsLeaves(t *testing.T) {
	_, _, ed := setup(t)
	ed.Enter()

	require.NoError(t, ed.Exit(context.Background(), ports.NeverConfirm))
	assert.False(t, ed.EditMode())
}

func TestEditor_ExitDeclinedKeepsEdits(t *testing.T) {
	reloads := 0
	store, _, ed := setup(t, editor.WithReload(func(context.Context) error {
		reloads++
		return nil
	}))
	ed.Enter()
	require.NoError(t, ed.SetSay("Hello there"))

	err := ed.Exit(context.Background(), ports.NeverConfirm)
	assert.ErrorIs(t, err, domain.ErrUnsavedChanges)
	assert.True(t, ed.EditMode())
	assert.True(t, ed.Dirty())
	assert.Zero(t, reloads)

	n, _ := store.GetNode("greet")
	assert.Equal(t, "Hello there", n.Say)
}

func TestEditor_ExitConfirmedReloads(t *testing.T) {
	var store *graph.Store
	store, _, ed := setup(t, editor.WithReload(func(context.Context) error {
		store.Replace(fixture())
		return nil
	}))
	ed.Enter()
	require.NoError(t, ed.SetSay("Hello there"))

	require.NoError(t, ed.Exit(context.Background(), ports.AlwaysConfirm))
	assert.False(t, ed.EditMode())
	assert.False(t, ed.Dirty())

	n, _ := store.GetNode("greet")
	assert.Equal(t, "Hi", n.Say)
}

func TestEditor_MarkSavedHonoursGeneration(t *testing.T) {
	_, _, ed := setup(t)
	ed.Enter()
	require.NoError(t, ed.SetNote("call back"))

	gen := ed.Generation()
	require.NoError(t, ed.SetContext("updated"))

	assert.False(t, ed.MarkSaved(gen), "an edit during the save keeps the session dirty")
	assert.True(t, ed.Dirty())
	assert.True(t, ed.MarkSaved(ed.Generation()))
	assert.False(t, ed.Dirty())
}

func TestEditor_EmitsEvents(t *testing.T) {
	var ops []string
	_, _, ed := setup(t, editor.WithObserver(func(e domain.Event) {
		ops = append(ops, string(e.Type)+":"+e.Op)
	}))

	ed.Enter()
	require.NoError(t, ed.SetSay("x"))
	assert.Equal(t, []string{"mode_changed:enter", "edited:say"}, ops)
}

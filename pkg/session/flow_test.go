package session_test

import (
	"context"
	"testing"

	"github.com/aretw0/callflow/pkg/adapters/memory"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/navigation"
	"github.com/aretw0/callflow/pkg/ports"
	"github.com/aretw0/callflow/pkg/session"
	"github.com/aretw0/callflow/pkg/syncer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const acmeKey = "sales/leads/acme"

const acmeDoc = `{
  "slug": "acme",
  "name": "Ana Souza",
  "company": "Acme",
  "flow": {
    "context": "Met at the expo.",
    "start": "greet",
    "nodes": {
      "greet": {"label": "Greeting", "say": "Hi", "branches": [{"label": "Interested", "to": "pitch"}]},
      "pitch": {"label": "Pitch", "say": "Here's the deal", "branches": []}
    }
  }
}`

func newConfig(docs ports.DocumentStore) session.Config {
	return session.Config{
		Docs:       docs,
		Creds:      memory.NewCredentials("tok"),
		History:    memory.NewHistory(""),
		Collection: "sales",
	}
}

func seeded() *memory.Store {
	docs := memory.NewStore()
	docs.Seed(acmeKey, []byte(acmeDoc))
	return docs
}

func TestFlowSession_Scenario(t *testing.T) {
	ctx := context.Background()
	cfg := newConfig(seeded())

	s, err := session.Open(ctx, cfg, "lead/acme")
	require.NoError(t, err)

	v := s.View()
	assert.Equal(t, []navigation.Crumb{{NodeID: "greet", Label: "Greeting"}}, v.Trail)
	assert.Equal(t, "Ana Souza", v.Subject["name"])
	assert.NotContains(t, v.Subject, "slug")
	assert.True(t, v.BriefingOpen)

	ok, err := s.Choose(0)
	require.NoError(t, err)
	assert.True(t, ok)

	v = s.View()
	assert.Equal(t, "lead/acme/pitch", v.Location)
	assert.Equal(t, "lead/acme/pitch", cfg.History.Current())
	assert.True(t, v.Node.Terminal)
	assert.Empty(t, v.Node.Branches)
	assert.False(t, v.BriefingOpen)

	assert.True(t, s.Navigate("greet"))
	assert.Len(t, s.View().Trail, 1)
}

func TestFlowSession_OpenFailures(t *testing.T) {
	ctx := context.Background()
	docs := seeded()
	docs.Seed("sales/leads/empty", []byte(`{"name":"No Flow"}`))
	docs.Seed("sales/leads/broken", []byte(`{"flow":{"start":"missing","nodes":{}}}`))

	_, err := session.Open(ctx, newConfig(docs), "lead/ghost")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)

	_, err = session.Open(ctx, newConfig(docs), "lead/empty")
	assert.ErrorIs(t, err, domain.ErrNoFlowData)

	_, err = session.Open(ctx, newConfig(docs), "lead/broken")
	assert.ErrorIs(t, err, domain.ErrNoFlowData)

	_, err = session.Open(ctx, newConfig(docs), "not-a-location")
	assert.ErrorIs(t, err, domain.ErrInvalidLocation)
}

func TestFlowSession_DeepLink(t *testing.T) {
	s, err := session.Open(context.Background(), newConfig(seeded()), "lead/acme/pitch")
	require.NoError(t, err)
	assert.Equal(t, "pitch", s.View().Node.ID)
}

func TestFlowSession_EditAndSave(t *testing.T) {
	ctx := context.Background()
	docs := seeded()
	s, err := session.Open(ctx, newConfig(docs), "lead/acme")
	require.NoError(t, err)

	assert.ErrorIs(t, s.AddBranch(), domain.ErrNotEditing)

	s.EnterEdit()
	require.NoError(t, s.SetLabel("Hello"))
	require.NoError(t, s.AddNode("objection"))
	assert.Equal(t, syncer.StateDirty, s.View().SaveState)

	res, err := s.Save(ctx)
	require.NoError(t, err)
	assert.True(t, res.Clean)

	v := s.View()
	assert.False(t, v.Dirty)
	assert.True(t, v.EditMode, "edit mode is kept after save by default")
	assert.Equal(t, res.Version, v.Version)

	obj, err := docs.Get(ctx, acmeKey)
	require.NoError(t, err)
	assert.NotContains(t, string(obj.Body), `"slug"`)

	reopened, err := session.Open(ctx, newConfig(docs), "lead/acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"greet", "pitch", "objection"}, reopened.View().NodeIDs)
	assert.Equal(t, "Hello", reopened.View().Trail[0].Label)
}

func TestFlowSession_ExitEditOnSave(t *testing.T) {
	ctx := context.Background()
	cfg := newConfig(seeded())
	cfg.ExitEditOnSave = true
	s, err := session.Open(ctx, cfg, "lead/acme")
	require.NoError(t, err)

	s.EnterEdit()
	require.NoError(t, s.SetSay("Hello"))
	_, err = s.Save(ctx)
	require.NoError(t, err)
	assert.False(t, s.View().EditMode)
}

func TestFlowSession_SequentialSavesFromTwoSessions(t *testing.T) {
	ctx := context.Background()
	docs := seeded()
	a, err := session.Open(ctx, newConfig(docs), "lead/acme")
	require.NoError(t, err)
	b, err := session.Open(ctx, newConfig(docs), "lead/acme")
	require.NoError(t, err)

	a.EnterEdit()
	b.EnterEdit()
	require.NoError(t, a.SetSay("from a"))
	require.NoError(t, b.SetSay("from b"))

	_, err = a.Save(ctx)
	require.NoError(t, err)

	// The precondition is the version read at save time, so a save that
	// starts after another one finished does not conflict.
	_, err = b.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, "from b", nodeSay(t, docs, "greet"))
}

func TestFlowSession_ConflictKeepsLocalGraph(t *testing.T) {
	ctx := context.Background()
	docs := seeded()
	store := &raceStore{Store: docs}
	s, err := session.Open(ctx, newConfig(store), "lead/acme")
	require.NoError(t, err)

	s.EnterEdit()
	require.NoError(t, s.SetSay("mine"))
	store.intercept = func() {
		docs.Seed(acmeKey, []byte(`{"flow":{"start":"greet","nodes":{"greet":{"label":"Theirs","say":"theirs","branches":[]}}}}`))
	}

	_, err = s.Save(ctx)
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	v := s.View()
	assert.True(t, v.Dirty)
	assert.Equal(t, "mine", v.Node.Say)
	assert.Equal(t, syncer.StateError, v.SaveState)
	assert.Contains(t, v.Error, "changed elsewhere")

	require.NoError(t, s.Reload(ctx, ports.AlwaysConfirm))
	v = s.View()
	assert.False(t, v.Dirty)
	assert.Equal(t, "theirs", v.Node.Say)
	assert.Empty(t, v.Error)
}

func TestFlowSession_CloseRequiresConfirmationWhenDirty(t *testing.T) {
	ctx := context.Background()
	s, err := session.Open(ctx, newConfig(seeded()), "lead/acme")
	require.NoError(t, err)

	require.NoError(t, s.Close(ctx, ports.NeverConfirm), "clean session closes freely")

	s.EnterEdit()
	require.NoError(t, s.SetNote("call back"))
	assert.ErrorIs(t, s.Close(ctx, ports.NeverConfirm), domain.ErrUnsavedChanges)
	assert.NoError(t, s.Close(ctx, ports.AlwaysConfirm))
}

func TestFlowSession_DiscardReloadsFreshCopy(t *testing.T) {
	ctx := context.Background()
	docs := seeded()
	s, err := session.Open(ctx, newConfig(docs), "lead/acme/pitch")
	require.NoError(t, err)

	s.EnterEdit()
	require.NoError(t, s.SetSay("draft"))
	require.NoError(t, s.ExitEdit(ctx, ports.AlwaysConfirm))

	v := s.View()
	assert.False(t, v.EditMode)
	assert.False(t, v.Dirty)
	assert.Equal(t, "Here's the deal", v.Node.Say)
	assert.Equal(t, "pitch", v.Node.ID, "position survives the reload")
}

func TestFlowSession_DiscardKeepsSessionWhenFreshCopyIsUnnavigable(t *testing.T) {
	ctx := context.Background()
	docs := seeded()
	s, err := session.Open(ctx, newConfig(docs), "lead/acme/pitch")
	require.NoError(t, err)

	s.EnterEdit()
	require.NoError(t, s.SetSay("draft"))
	docs.Seed(acmeKey, []byte(`{"name":"Ana Souza","flow":{"start":"gone","nodes":{"other":{"label":"Other"}}}}`))

	err = s.ExitEdit(ctx, ports.AlwaysConfirm)
	assert.ErrorIs(t, err, domain.ErrNoFlowData)

	v := s.View()
	assert.True(t, v.EditMode)
	assert.True(t, v.Dirty)
	require.NotNil(t, v.Node)
	assert.Equal(t, "pitch", v.Node.ID)
	assert.Equal(t, "draft", v.Node.Say)
	assert.Equal(t, []string{"greet", "pitch"}, v.NodeIDs)
	assert.Equal(t, []navigation.Crumb{{NodeID: "pitch", Label: "Pitch"}}, v.Trail)
	assert.Equal(t, "Ana Souza", v.Subject["name"])

	assert.ErrorIs(t, s.Reload(ctx, ports.AlwaysConfirm), domain.ErrNoFlowData)
	assert.True(t, s.StartOver())
	assert.Equal(t, "greet", s.View().Node.ID)
}

func nodeSay(t *testing.T, docs *memory.Store, id string) string {
	t.Helper()
	obj, err := docs.Get(context.Background(), acmeKey)
	require.NoError(t, err)
	doc, err := domain.ParseDocument("acme", obj.Body)
	require.NoError(t, err)
	n, ok := doc.Flow.Node(id)
	require.True(t, ok)
	return n.Say
}

// raceStore runs intercept once, between the version read and the write.
type raceStore struct {
	*memory.Store
	intercept func()
}

func (r *raceStore) Put(ctx context.Context, req ports.PutRequest) (string, error) {
	if r.intercept != nil {
		r.intercept()
		r.intercept = nil
	}
	return r.Store.Put(ctx, req)
}

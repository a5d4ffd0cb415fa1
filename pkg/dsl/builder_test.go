package dsl

import (
	"testing"

	"github.com/aretw0/callflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_SimpleFlow(t *testing.T) {
	b := New("greet").Context("Met at the expo.")
	b.Add("greet").
		Label("Greeting").
		Say("Hi!").
		Note("Smile.").
		Branch("Interested", "pitch").
		Loop("Repeat please")
	b.Add("pitch").Label("Pitch").Say("Here's the deal")

	g, err := b.Build()
	require.NoError(t, err)

	assert.Equal(t, "greet", g.Start)
	assert.Equal(t, "Met at the expo.", g.Context)
	assert.Equal(t, []string{"greet", "pitch"}, g.NodeIDs())

	greet, ok := g.Node("greet")
	require.True(t, ok)
	assert.Equal(t, "Smile.", greet.Note)
	assert.Equal(t, []domain.Branch{
		{Label: "Interested", To: "pitch"},
		{Label: "Repeat please", To: "greet"},
	}, greet.Branches)

	pitch, _ := g.Node("pitch")
	assert.True(t, pitch.Terminal())
}

func TestBuilder_AddReturnsExisting(t *testing.T) {
	b := New("a")
	b.Add("a").Label("First")
	b.Add("a").Say("again")

	g, err := b.Build()
	require.NoError(t, err)
	n, _ := g.Node("a")
	assert.Equal(t, "First", n.Label)
	assert.Equal(t, "again", n.Say)
	assert.Equal(t, 1, g.Len())
}

func TestBuilder_DefaultLabelIsID(t *testing.T) {
	g, err := New("intro").Add("intro").Done().Build()
	require.NoError(t, err)
	n, _ := g.Node("intro")
	assert.Equal(t, "intro", n.Label)
}

func TestBuilder_Errors(t *testing.T) {
	_, err := New("missing").Add("other").Done().Build()
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)

	_, err = New("").Add("").Done().Build()
	assert.ErrorIs(t, err, domain.ErrInvalidNodeID)

	_, err = New("a").Subject("bad", make(chan int)).Add("a").Done().Build()
	assert.Error(t, err)
}

func TestBuilder_BuildIsolatesNodes(t *testing.T) {
	b := New("a")
	nb := b.Add("a").Branch("x", "b")

	g, err := b.Build()
	require.NoError(t, err)
	nb.Branch("y", "c")

	n, _ := g.Node("a")
	assert.Len(t, n.Branches, 1)
}

func TestBuilder_JSONRoundTrip(t *testing.T) {
	body, err := New("greet").
		Subject("name", "Ana Souza").
		Subject("company", "Acme").
		Add("greet").Label("Greeting").Branch("Busy", "callback").Done().
		Add("callback").Label("Call back").Terminal().Done().
		JSON()
	require.NoError(t, err)

	doc, err := domain.ParseDocument("acme", body)
	require.NoError(t, err)
	assert.Equal(t, "Ana Souza", doc.Subject.String("name"))
	assert.Equal(t, "Acme", doc.Subject.String("company"))
	require.NotNil(t, doc.Flow)
	assert.Equal(t, []string{"greet", "callback"}, doc.Flow.NodeIDs())
	assert.Equal(t, "greet", doc.Flow.Start)
}

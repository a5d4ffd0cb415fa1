package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/callflow/pkg/catalog"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/dsl"
	"github.com/aretw0/callflow/pkg/ports"
)

// DemoIdentity is the lead written by RunSeed.
const DemoIdentity = "demo"

// DemoFlow is a small discovery call used to try the tool.
func DemoFlow() *dsl.Builder {
	b := dsl.New("opener").
		Subject("name", "Jordan Reyes").
		Subject("title", "Head of Operations").
		Subject("company", "Demo Corp").
		Subject("location", "Austin, TX").
		Subject("phone", "+1 512-555-0142").
		Context("Downloaded the pricing guide last week. Runs a team of 12.")

	b.Add("opener").Label("Opener").
		Say("Hi Jordan, this is Sam from Callflow. Did I catch you at a bad time?").
		Branch("Now is fine", "discovery").
		Branch("Bad time", "callback").
		Branch("Not interested", "objection")
	b.Add("discovery").Label("Discovery").
		Say("How does your team track call scripts today?").
		Note("Listen for spreadsheets or shared docs.").
		Branch("Spreadsheets", "pitch").
		Branch("Another tool", "objection")
	b.Add("objection").Label("Objection").
		Say("Totally fair. What would have to be true for this to be worth 10 minutes?").
		Branch("Gives a reason", "pitch").
		Branch("Hangs up", "wrap")
	b.Add("pitch").Label("Pitch").
		Say("Teams like yours keep one live script per lead and edit it during the call.").
		Branch("Book a demo", "wrap")
	b.Add("callback").Label("Call back").
		Say("No problem. When is a better time?").
		Branch("Gives a time", "wrap")
	b.Add("wrap").Label("Wrap up").
		Say("Thanks for your time, Jordan.").
		Terminal()
	return b
}

// RunSeed creates the demo lead and refreshes the index. An existing demo
// lead is left untouched.
func RunSeed(ctx context.Context, app *App, out io.Writer) error {
	token, err := app.Creds.Credential()
	if err != nil {
		return err
	}
	body, err := DemoFlow().JSON()
	if err != nil {
		return err
	}

	key := domain.LeadKey(app.Config.Collection, DemoIdentity)
	_, err = app.Backend.Store.Put(ctx, ports.PutRequest{Key: key, Body: body, Credential: token})
	switch {
	case errors.Is(err, domain.ErrVersionConflict):
		printSystemMessage(out, "Lead '%s' already exists.", DemoIdentity)
	case err != nil:
		return fmt.Errorf("write %s: %w", key, err)
	default:
		printSystemMessage(out, "Created lead '%s'.", DemoIdentity)
	}
	return RunReindex(ctx, app, out)
}

// RunReindex rebuilds the collection index from the lead documents and writes
// it with a compare-and-swap on the index's current version.
func RunReindex(ctx context.Context, app *App, out io.Writer) error {
	lister, ok := app.Backend.Store.(ports.Lister)
	if !ok {
		return fmt.Errorf("the %s backend cannot list documents", app.Config.Store.Backend)
	}
	summaries, err := catalog.Rebuild(ctx, app.Backend.Store, lister, app.Config.Collection)
	if err != nil {
		return err
	}
	body, err := catalog.Encode(summaries)
	if err != nil {
		return err
	}

	key := domain.IndexKey(app.Config.Collection)
	version, err := app.Backend.Store.Version(ctx, key)
	if err != nil && !errors.Is(err, domain.ErrDocumentNotFound) {
		return err
	}
	token, err := app.Creds.Credential()
	if err != nil {
		return err
	}
	if _, err := app.Backend.Store.Put(ctx, ports.PutRequest{
		Key:        key,
		Body:       body,
		IfMatch:    version,
		Credential: token,
	}); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	printSystemMessage(out, "Indexed %d leads.", len(summaries))
	return nil
}

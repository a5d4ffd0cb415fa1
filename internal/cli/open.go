package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/aretw0/callflow"
	"github.com/aretw0/callflow/internal/gate"
	"github.com/aretw0/callflow/internal/presentation/tui"
	"github.com/aretw0/callflow/pkg/adapters/memory"
	"github.com/aretw0/callflow/pkg/domain"
)

// OpenOptions configures an interactive session.
type OpenOptions struct {
	// Location is a lead identity or location token. Empty asks for one.
	Location string
	// Plain disables the banner and styled rendering.
	Plain    bool
	WordWrap int
}

// RunOpen gates the device, opens a flow and drives it from in until quit.
func RunOpen(ctx context.Context, app *App, opts OpenOptions, in io.Reader, out io.Writer) error {
	if !opts.Plain {
		tui.PrintBanner(out)
	}

	p := NewPrompter(in, out)
	if err := EnsureUnlocked(gate.New(app.Config.GateHash, app.Creds), p); err != nil {
		return err
	}

	location := opts.Location
	if location == "" {
		if err := RunList(ctx, app, "", out); err != nil {
			return err
		}
		answer, err := p.ReadLine("Open lead: ")
		if err != nil {
			return handleExecutionError(err)
		}
		location = answer
	}
	location = NormalizeLocation(location)

	client := app.Client(
		callflow.WithPrompter(p),
		callflow.WithHistory(memory.NewHistory(location)),
		callflow.WithObserver(func(e domain.Event) {
			app.Logger.Debug("event", "type", e.Type, "identity", e.Identity, "node", e.NodeID)
		}),
	)
	flow, err := client.Open(ctx, location)
	if err != nil {
		return fmt.Errorf("could not load lead %s: %w", location, err)
	}

	runner := callflow.NewRunner(p.Reader(), out)
	if !opts.Plain {
		wrap := opts.WordWrap
		if wrap <= 0 {
			wrap = 80
		}
		r, err := tui.NewRenderer(wrap)
		if err != nil {
			return err
		}
		runner.Renderer = r.Render
	}

	printSystemMessage(out, "Opened '%s'. Type help for commands.", flow.Identity())
	return handleExecutionError(runner.Run(ctx, flow))
}

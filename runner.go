package callflow

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
	"github.com/aretw0/callflow/pkg/session"
)

// ViewRenderer turns a session snapshot into terminal output.
// This allows for styled rendering without coupling the core package.
type ViewRenderer func(session.View) string

// Runner drives a FlowSession from line commands read from Input.
// This allows for easy testing and integration with different frontends.
type Runner struct {
	Input    io.Reader
	Output   io.Writer
	Renderer ViewRenderer
}

// NewRunner creates a Runner over the given IO with the plain renderer.
func NewRunner(in io.Reader, out io.Writer) *Runner {
	return &Runner{Input: in, Output: out, Renderer: PlainView}
}

const runnerHelp = `Commands:
  <n>              follow response n
  g <node>         jump to a breadcrumb or node
  b                back one step        s   start over
  c                toggle briefing      r   reload
  e                enter edit mode      x   exit edit mode
  w                save                 q   quit
Edit mode:
  label|say|note|context <text>
  +b               add response         -b <n>        delete response
  bl <n> <text>    rename response      bt <n> [node] retarget response
  +n <id>          add node`

// Run executes the command loop until quit or end of input.
func (r *Runner) Run(ctx context.Context, flow *session.FlowSession) error {
	if r.Input == nil {
		return fmt.Errorf("input reader must be set (use os.Stdin)")
	}
	if r.Output == nil {
		return fmt.Errorf("output writer must be set (use os.Stdout)")
	}
	render := r.Renderer
	if render == nil {
		render = PlainView
	}

	lines := bufio.NewReader(r.Input)
	confirm := ports.ConfirmFunc(func(_ context.Context, prompt string) bool {
		fmt.Fprintf(r.Output, "%s [y/N] ", prompt)
		answer, err := lines.ReadString('\n')
		if err != nil && answer == "" {
			return false
		}
		answer = strings.ToLower(strings.TrimSpace(answer))
		return answer == "y" || answer == "yes"
	})

	redraw := true
	for {
		if redraw {
			fmt.Fprintln(r.Output, strings.TrimRight(render(flow.View()), "\n"))
		}
		fmt.Fprint(r.Output, "> ")

		text, err := lines.ReadString('\n')
		if err != nil && text == "" {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("input error: %w", err)
		}

		cmd, arg := splitCommand(strings.TrimSpace(text))
		if cmd == "q" || cmd == "quit" || cmd == "exit" {
			if err := flow.Close(ctx, confirm); err != nil {
				fmt.Fprintln(r.Output, domain.Describe(err))
				continue
			}
			fmt.Fprintln(r.Output, "Bye!")
			return nil
		}

		redraw, err = r.dispatch(ctx, flow, confirm, cmd, arg)
		if err != nil {
			fmt.Fprintln(r.Output, domain.Describe(err))
		}
	}
}

// dispatch applies one command and reports whether the view should be redrawn.
func (r *Runner) dispatch(ctx context.Context, flow *session.FlowSession, confirm ports.Confirmer, cmd, arg string) (bool, error) {
	if n, err := strconv.Atoi(cmd); err == nil {
		return flow.Choose(n - 1)
	}

	switch cmd {
	case "":
		return true, nil
	case "?", "h", "help":
		fmt.Fprintln(r.Output, runnerHelp)
		return false, nil
	case "g":
		if !flow.Navigate(arg) {
			return false, fmt.Errorf("%w: %q", domain.ErrNodeNotFound, arg)
		}
		return true, nil
	case "b":
		return flow.Back(), nil
	case "s":
		flow.StartOver()
		return true, nil
	case "c":
		flow.ToggleBriefing()
		return true, nil
	case "r":
		return true, flow.Reload(ctx, confirm)
	case "e":
		flow.EnterEdit()
		return true, nil
	case "x":
		return true, flow.ExitEdit(ctx, confirm)
	case "w":
		res, err := flow.Save(ctx)
		if err != nil {
			return true, err
		}
		switch {
		case res.Skipped:
			fmt.Fprintln(r.Output, "Nothing to save.")
		case res.Clean:
			fmt.Fprintln(r.Output, "Saved!")
		default:
			fmt.Fprintln(r.Output, "Saved, with newer edits still pending.")
		}
		return true, nil
	case "label":
		return true, flow.SetLabel(arg)
	case "say":
		return true, flow.SetSay(arg)
	case "note":
		return true, flow.SetNote(arg)
	case "context":
		return true, flow.SetContext(arg)
	case "+b":
		return true, flow.AddBranch()
	case "-b":
		i, err := index(arg)
		if err != nil {
			return false, err
		}
		return true, flow.DeleteBranch(i)
	case "bl":
		n, rest := splitCommand(arg)
		i, err := index(n)
		if err != nil {
			return false, err
		}
		return true, flow.SetBranchLabel(i, rest)
	case "bt":
		n, to := splitCommand(arg)
		i, err := index(n)
		if err != nil {
			return false, err
		}
		if to == "" {
			fmt.Fprintln(r.Output, "Targets: "+strings.Join(flow.RetargetOptions(), ", "))
			return false, nil
		}
		return true, flow.RetargetBranch(i, to)
	case "+n":
		return true, flow.AddNode(arg)
	default:
		return false, fmt.Errorf("unknown command %q (type help)", cmd)
	}
}

func splitCommand(line string) (string, string) {
	cmd, arg, _ := strings.Cut(line, " ")
	return cmd, strings.TrimSpace(arg)
}

// index converts a 1-based response number.
func index(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %q", domain.ErrBranchNotFound, s)
	}
	return n - 1, nil
}

// PlainView renders a snapshot without styling.
func PlainView(v session.View) string {
	var b strings.Builder
	if name, _ := v.Subject["name"].(string); name != "" {
		fmt.Fprintf(&b, "%s\n", name)
	}
	if v.Context != "" {
		if v.BriefingOpen {
			fmt.Fprintf(&b, "[context] %s\n", v.Context)
		} else {
			b.WriteString("[context hidden, c to show]\n")
		}
	}

	crumbs := make([]string, 0, len(v.Trail))
	for _, c := range v.Trail {
		crumbs = append(crumbs, c.Label)
	}
	fmt.Fprintf(&b, "%s\n", strings.Join(crumbs, " > "))

	if v.Node == nil {
		b.WriteString("No call flow data available for this lead.\n")
		return b.String()
	}
	if v.EditMode {
		fmt.Fprintf(&b, "[editing %s]\n", v.Node.ID)
	}
	if v.Node.Say != "" {
		fmt.Fprintf(&b, "SAY: %s\n", v.Node.Say)
	}
	if v.Node.Note != "" {
		fmt.Fprintf(&b, "NOTE: %s\n", v.Node.Note)
	}
	if v.Node.Terminal {
		b.WriteString("End of flow. (s) Start Over\n")
	}
	for _, br := range v.Node.Branches {
		fmt.Fprintf(&b, "  %d) %s", br.Index+1, br.Label)
		if v.EditMode {
			fmt.Fprintf(&b, " -> %s", br.To)
		}
		b.WriteString("\n")
	}
	if v.Dirty {
		fmt.Fprintf(&b, "* unsaved changes (%s)\n", v.SaveState)
	}
	if v.Error != "" {
		fmt.Fprintf(&b, "! %s\n", v.Error)
	}
	return b.String()
}

// Package tui renders session views for the terminal.
package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/callflow/pkg/session"
	"github.com/aretw0/callflow/pkg/syncer"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

var (
	dirtyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#f59e0b")).Bold(true)
	savingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#38bdf8"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ef4444")).Bold(true)
	editStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#000000")).Background(lipgloss.Color("#fde047")).Padding(0, 1)
)

// Renderer draws a session.View as styled markdown.
type Renderer struct {
	md *glamour.TermRenderer
}

// NewRenderer creates a Renderer. Word wrap 0 keeps glamour's default width.
func NewRenderer(wordWrap int) (*Renderer, error) {
	opts := []glamour.TermRendererOption{glamour.WithAutoStyle()}
	if wordWrap > 0 {
		opts = append(opts, glamour.WithWordWrap(wordWrap))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, fmt.Errorf("init markdown renderer: %w", err)
	}
	return &Renderer{md: r}, nil
}

// Render draws v. It falls back to the raw markdown when styling fails.
func (r *Renderer) Render(v session.View) string {
	md := Markdown(v)
	out, err := r.md.Render(md)
	if err != nil {
		out = md
	}
	if status := StatusLine(v); status != "" {
		out = strings.TrimRight(out, "\n") + "\n" + status + "\n"
	}
	return out
}

// Markdown builds the unstyled document for v.
func Markdown(v session.View) string {
	var b strings.Builder

	name, _ := v.Subject["name"].(string)
	if name == "" {
		name = v.Identity
	}
	fmt.Fprintf(&b, "# %s\n\n", escape(name))

	title, _ := v.Subject["title"].(string)
	org, _ := v.Subject["company"].(string)
	if line := joinNonEmpty(" — ", title, org); line != "" {
		fmt.Fprintf(&b, "**%s**\n\n", escape(line))
	}
	phone, _ := v.Subject["phone"].(string)
	if phone == "" {
		phone, _ = v.Subject["company_phone"].(string)
	}
	if phone != "" {
		fmt.Fprintf(&b, "☎ [%s](tel:%s)\n\n", FormatPhone(phone), DialString(phone))
	}

	if v.Context != "" {
		if v.BriefingOpen {
			b.WriteString("▼ **CONTEXT**\n\n")
			for _, line := range strings.Split(v.Context, "\n") {
				fmt.Fprintf(&b, "> %s\n", line)
			}
			b.WriteString("\n")
		} else {
			b.WriteString("▶ **CONTEXT** _(c to expand)_\n\n")
		}
	}

	if len(v.Trail) > 0 {
		crumbs := make([]string, len(v.Trail))
		for i, c := range v.Trail {
			crumbs[i] = escape(c.Label)
			if i == len(v.Trail)-1 {
				crumbs[i] = "**" + crumbs[i] + "**"
			}
		}
		fmt.Fprintf(&b, "%s\n\n", strings.Join(crumbs, " › "))
	}

	if v.Node == nil {
		b.WriteString("_No call flow data available for this lead._\n")
		return b.String()
	}
	n := v.Node

	if v.EditMode {
		fmt.Fprintf(&b, "## %s `%s`\n\n", escape(n.Label), n.ID)
		fmt.Fprintf(&b, "- **label**: %s\n- **say**: %s\n- **note**: %s\n\n", escape(n.Label), escape(n.Say), escape(n.Note))
	} else {
		fmt.Fprintf(&b, "## %s\n\n", escape(n.Label))
		if n.Say != "" {
			fmt.Fprintf(&b, "%s\n\n", escape(n.Say))
		}
		if n.Note != "" {
			fmt.Fprintf(&b, "_%s_\n\n", escape(n.Note))
		}
	}

	if n.Terminal {
		b.WriteString("**End of flow**\n\n")
	}
	for _, br := range n.Branches {
		fmt.Fprintf(&b, "%d. %s", br.Index+1, escape(br.Label))
		if v.EditMode {
			fmt.Fprintf(&b, " → `%s`", br.To)
			if br.Dangling {
				b.WriteString(" ⚠ missing")
			}
		}
		b.WriteString("\n")
	}
	if len(n.Branches) > 0 {
		b.WriteString("\n")
	}

	if v.EditMode && len(v.NodeIDs) > 0 {
		targets := append([]string(nil), v.NodeIDs...)
		sort.Strings(targets)
		fmt.Fprintf(&b, "Targets: %s\n\n", "`"+strings.Join(targets, "` `")+"`")
	}
	b.WriteString("↺ Start Over _(s)_\n")
	return b.String()
}

// StatusLine summarises edit mode, dirty state and the last error.
func StatusLine(v session.View) string {
	var parts []string
	if v.EditMode {
		parts = append(parts, editStyle.Render("EDIT"))
	}
	switch v.SaveState {
	case syncer.StateSaving:
		parts = append(parts, savingStyle.Render("saving…"))
	case syncer.StateDirty:
		parts = append(parts, dirtyStyle.Render("● unsaved changes"))
	case syncer.StateError:
		parts = append(parts, errorStyle.Render("✗ save failed"))
	}
	if v.Error != "" {
		parts = append(parts, errorStyle.Render(v.Error))
	}
	return strings.Join(parts, "  ")
}

func joinNonEmpty(sep string, parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}

var mdEscaper = strings.NewReplacer(`*`, `\*`, `_`, `\_`, "`", "\\`", `[`, `\[`, `]`, `\]`)

func escape(s string) string {
	return mdEscaper.Replace(s)
}

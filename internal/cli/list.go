package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/aretw0/callflow/internal/presentation/graph"
	"github.com/aretw0/callflow/internal/presentation/tui"
	"github.com/aretw0/callflow/pkg/catalog"
	"github.com/aretw0/callflow/pkg/domain"
)

// RunList prints the leads matching query, grouped by organization.
func RunList(ctx context.Context, app *App, query string, out io.Writer) error {
	summaries, err := catalog.Load(ctx, app.Backend.Store, app.Config.Collection)
	if err != nil {
		return fmt.Errorf("could not load lead index: %w", err)
	}
	summaries = catalog.Filter(summaries, query)
	if len(summaries) == 0 {
		fmt.Fprintln(out, "No leads found")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, g := range catalog.GroupByOrganization(summaries) {
		fmt.Fprintf(tw, "%s\n", g.Organization)
		for _, s := range g.Subjects {
			meta := joinNonEmpty(" · ", s.Title, s.Location)
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", s.Identity, s.Name, meta, tui.FormatPhone(s.ContactNumber()))
		}
	}
	return tw.Flush()
}

// RunGraph prints the Mermaid diagram of a lead's flow. A node in the location
// is highlighted as current.
func RunGraph(ctx context.Context, app *App, location string, out io.Writer) error {
	loc, err := domain.ParseLocation(NormalizeLocation(location))
	if err != nil {
		return err
	}
	doc, err := app.Document(ctx, loc.Identity)
	if err != nil {
		return err
	}
	if doc.Flow == nil {
		return domain.ErrNoFlowData
	}

	var overlay *graph.GraphOverlay
	if loc.NodeID != "" {
		overlay = &graph.GraphOverlay{
			VisitedNodes: []string{doc.Flow.Start},
			CurrentNode:  loc.NodeID,
		}
	}
	_, err = fmt.Fprint(out, graph.GenerateMermaid(doc.Flow, overlay))
	return err
}

func joinNonEmpty(sep string, parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

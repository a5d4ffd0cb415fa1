/*
Package callflow renders and edits branching call scripts ("call flows") and
commits edits to a versioned document store with optimistic concurrency.

# Concept

A call flow is a graph of scripted stages for one lead. Each stage says
something and offers the caller's possible responses as branches. While on a
call the user walks the graph; the breadcrumb trail shows the path taken and
revisiting a stage collapses the trail back to it.

Edit mode mutates the open graph in place and marks it dirty. Save writes the
whole document back with a compare-and-swap precondition on the version token
read just before the write, so a concurrent change is reported instead of
overwritten. Discarding edits reloads the document.

# Usage

	docs := memory.NewStore()
	creds := memory.NewCredentials("secret")

	client := callflow.New(docs, creds, callflow.WithCollection("sales"))
	flow, err := client.Open(ctx, "lead/acme")
	if err != nil {
		log.Fatal(domain.Describe(err))
	}

	flow.Choose(0)          // follow the first response
	flow.EnterEdit()
	flow.SetSay("Hi there") // marks the flow dirty
	if _, err := flow.Save(ctx); err != nil {
		log.Println(domain.Describe(err))
	}

The interactive terminal loop lives in Runner; network surfaces (HTTP, MCP)
share sessions through session.Manager.
*/
package callflow

package callflow_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/callflow"
	"github.com/aretw0/callflow/pkg/adapters/memory"
)

// ExampleClient_Open walks a flow held in an in-memory store.
func ExampleClient_Open() {
	docs := memory.NewStore()
	docs.Seed("sales/leads/acme", []byte(`{"flow":{"start":"greet","nodes":{
		"greet":{"label":"Greeting","say":"Hi","branches":[{"label":"Interested","to":"pitch"}]},
		"pitch":{"label":"Pitch","say":"Here's the deal","branches":[]}}}}`))

	client := callflow.New(docs, memory.NewCredentials(""), callflow.WithCollection("sales"))
	flow, err := client.Open(context.Background(), "lead/acme")
	if err != nil {
		log.Fatal(err)
	}

	if _, err := flow.Choose(0); err != nil {
		log.Fatal(err)
	}
	v := flow.View()
	fmt.Println(v.Location)
	for _, c := range v.Trail {
		fmt.Println(c.NodeID, c.Label)
	}
	// Output:
	// lead/acme/pitch
	// greet Greeting
	// pitch Pitch
}

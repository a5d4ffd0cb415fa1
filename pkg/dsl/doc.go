/*
Package dsl provides a fluent builder for call flows.

It lets tests, seeders and tools construct a lead document in Go instead of
hand-writing JSON:

	body, err := dsl.New("greet").
		Subject("name", "Ana Souza").
		Subject("company", "Acme").
		Context("Met at the expo.").
		Add("greet").Label("Greeting").Say("Hi, this is Bea.").
			Branch("Interested", "pitch").
			Branch("Busy", "callback").
		Done().
		Add("pitch").Label("Pitch").Say("Here's the deal.").Done().
		Add("callback").Label("Call back").Terminal().Done().
		JSON()

The result is the stored document body, ready for a DocumentStore Put.
*/
package dsl

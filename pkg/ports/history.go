package ports

// History is the persisted, addressable location (browser history, a state file, ...).
type History interface {
	// Push creates a new addressable entry.
	Push(token string)
	// Replace overwrites the current entry without creating a new one.
	Replace(token string)
	// Current returns the current token, or "".
	Current() string
}

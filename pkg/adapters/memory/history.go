package memory

import "sync"

// History implements ports.History as an in-memory stack of entries.
type History struct {
	mu      sync.Mutex
	entries []string
}

// NewHistory creates a history whose current entry is initial (may be empty).
func NewHistory(initial string) *History {
	h := &History{}
	if initial != "" {
		h.entries = []string{initial}
	}
	return h
}

func (h *History) Push(token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, token)
}

func (h *History) Replace(token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) == 0 {
		h.entries = []string{token}
		return
	}
	h.entries[len(h.entries)-1] = token
}

func (h *History) Current() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) == 0 {
		return ""
	}
	return h.entries[len(h.entries)-1]
}

// Back pops the current entry and returns the new current one.
func (h *History) Back() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) > 0 {
		h.entries = h.entries[:len(h.entries)-1]
	}
	if len(h.entries) == 0 {
		return ""
	}
	return h.entries[len(h.entries)-1]
}

// Len returns the number of addressable entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

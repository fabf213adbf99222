package config

import "sync"

// Holder provides thread-safe access to a mutable *Resolved. Watch mode
// reloads configuration when the config file changes; every run started
// afterwards reads the new snapshot through the same Holder.
type Holder struct {
	mu  sync.RWMutex
	cfg *Resolved
}

// NewHolder creates a Holder with the initial resolved config.
func NewHolder(cfg *Resolved) *Holder {
	return &Holder{cfg: cfg}
}

// Config returns the current config snapshot. Thread-safe (read lock).
func (h *Holder) Config() *Resolved {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.cfg
}

// Update replaces the config. Thread-safe (write lock).
func (h *Holder) Update(cfg *Resolved) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.cfg = cfg
}

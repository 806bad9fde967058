package uiprotect

import (
	"sync"
	"time"

	"github.com/uilibs/uiprotect/internal/metrics"
)

// serverDerivedFields are controller-computed and must never be
// suppressed even if a local write races them into the echo window.
var serverDerivedFields = map[string]struct{}{
	"lastSeen":     {},
	"upSince":      {},
	"uptime":       {},
	"stats":        {},
	"storageStats": {},
	"systemInfo":   {},
}

type ignoreKey struct {
	deviceID string
	path     string
}

// ignoreTable suppresses the websocket echo of self-initiated writes.
// Entries are keyed by (device id, field path), live for the configured
// TTL and are consumed on first hit so a later genuine change to the
// same field still notifies.
type ignoreTable struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[ignoreKey]time.Time
	now     func() time.Time
}

func newIgnoreTable(ttl time.Duration) *ignoreTable {
	return &ignoreTable{
		ttl:     ttl,
		entries: map[ignoreKey]time.Time{},
		now:     time.Now,
	}
}

// Register records field paths about to be written to the controller.
func (t *ignoreTable) Register(deviceID string, paths []string) {
	deadline := t.now().Add(t.ttl)
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, path := range paths {
		if _, derived := serverDerivedFields[path]; derived {
			continue
		}
		t.entries[ignoreKey{deviceID, path}] = deadline
	}
}

// Consume implements data.EchoFilter. A hit removes the entry.
func (t *ignoreTable) Consume(deviceID, path string) bool {
	if _, derived := serverDerivedFields[path]; derived {
		return false
	}
	key := ignoreKey{deviceID, path}
	t.mu.Lock()
	defer t.mu.Unlock()
	deadline, ok := t.entries[key]
	if !ok {
		return false
	}
	delete(t.entries, key)
	if t.now().After(deadline) {
		return false
	}
	metrics.RecordEchoSuppressed()
	return true
}

// sweep drops expired entries. Called opportunistically from the write
// path; the table stays small either way.
func (t *ignoreTable) sweep() {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, deadline := range t.entries {
		if now.After(deadline) {
			delete(t.entries, key)
		}
	}
}

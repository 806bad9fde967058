package uiprotect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func frozenIgnoreTable(ttl time.Duration) (*ignoreTable, *time.Time) {
	t := newIgnoreTable(ttl)
	now := time.Unix(1700000000, 0)
	t.now = func() time.Time { return now }
	return t, &now
}

func TestIgnoreConsumeOnce(t *testing.T) {
	tbl, _ := frozenIgnoreTable(2 * time.Second)
	tbl.Register("cam1", []string{"recordingSettings.mode"})

	assert.True(t, tbl.Consume("cam1", "recordingSettings.mode"))
	// Consumed on first hit; the next genuine change notifies.
	assert.False(t, tbl.Consume("cam1", "recordingSettings.mode"))
}

func TestIgnoreKeyedByDeviceAndPath(t *testing.T) {
	tbl, _ := frozenIgnoreTable(2 * time.Second)
	tbl.Register("cam1", []string{"name"})

	assert.False(t, tbl.Consume("cam2", "name"))
	assert.False(t, tbl.Consume("cam1", "micVolume"))
	assert.True(t, tbl.Consume("cam1", "name"))
}

func TestIgnoreExpiry(t *testing.T) {
	tbl, now := frozenIgnoreTable(2 * time.Second)
	tbl.Register("cam1", []string{"name"})

	*now = now.Add(3 * time.Second)
	assert.False(t, tbl.Consume("cam1", "name"))
}

func TestIgnoreServerDerivedNeverSuppressed(t *testing.T) {
	tbl, _ := frozenIgnoreTable(2 * time.Second)
	tbl.Register("cam1", []string{"lastSeen", "upSince", "uptime", "stats", "name"})

	assert.False(t, tbl.Consume("cam1", "lastSeen"))
	assert.False(t, tbl.Consume("cam1", "upSince"))
	assert.False(t, tbl.Consume("cam1", "stats"))
	assert.True(t, tbl.Consume("cam1", "name"))
}

func TestIgnoreSweep(t *testing.T) {
	tbl, now := frozenIgnoreTable(2 * time.Second)
	tbl.Register("cam1", []string{"name"})
	tbl.Register("cam2", []string{"name"})

	*now = now.Add(5 * time.Second)
	tbl.Register("cam3", []string{"name"})
	tbl.sweep()

	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	assert.Len(t, tbl.entries, 1)
}

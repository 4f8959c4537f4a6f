package cleanup

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitscribe/internal/config"
	"gitscribe/internal/workspace"
)

func newTestRegistry(t *testing.T) *workspace.Registry {
	t.Helper()
	reg, err := workspace.NewRegistry(t.TempDir())
	require.NoError(t, err)
	return reg
}

// backdate rewrites the persisted last-access time for a session and
// reopens the registry so the change takes effect.
func backdate(t *testing.T, reg *workspace.Registry, id string, at time.Time) *workspace.Registry {
	t.Helper()
	file := filepath.Join(reg.Root(), ".sessions", "sessions.json")
	data, err := os.ReadFile(file)
	require.NoError(t, err)

	var sessions map[string]*workspace.Session
	require.NoError(t, json.Unmarshal(data, &sessions))
	require.Contains(t, sessions, id)
	sessions[id].LastAccess = at

	data, err = json.Marshal(sessions)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(file, data, 0o644))

	reopened, err := workspace.NewRegistry(reg.Root())
	require.NoError(t, err)
	return reopened
}

func TestSweepRemovesExpiredSessions(t *testing.T) {
	reg := newTestRegistry(t)
	id, _, err := reg.Create("alice", false)
	require.NoError(t, err)
	_, _, err = reg.Create("bob", false)
	require.NoError(t, err)

	reg = backdate(t, reg, id, time.Now().Add(-48*time.Hour))

	s := NewScheduler(reg, nil, nil, config.CleanupConfig{
		SessionTimeoutHours:  24,
		MaxDiskUsageGB:       10,
		CheckIntervalMinutes: 30,
	})
	status := s.Sweep(context.Background())

	assert.Equal(t, 1, status.ExpiredSessions)
	assert.Equal(t, 1, reg.Count())
	_, err = reg.Resolve(id)
	assert.ErrorIs(t, err, workspace.ErrSessionNotFound)
}

func TestSweepRemovesInvalidSessions(t *testing.T) {
	reg := newTestRegistry(t)
	id, path, err := reg.Create("carol", false)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(path))

	s := NewScheduler(reg, nil, nil, config.CleanupConfig{SessionTimeoutHours: 24})
	status := s.Sweep(context.Background())

	assert.Equal(t, 1, status.InvalidSessions)
	_, ok := reg.Get(id)
	assert.False(t, ok)
}

func TestSweepEnforcesDiskBudget(t *testing.T) {
	reg := newTestRegistry(t)

	oldID, oldPath, err := reg.Create("old-user", false)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(oldPath, "big.bin"), make([]byte, 600*1024), 0o644))
	reg = backdate(t, reg, oldID, time.Now().Add(-time.Hour))

	newID, newPath, err := reg.Create("new-user", false)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(newPath, "big.bin"), make([]byte, 600*1024), 0o644))

	// Budget of one megabyte forces eviction of the least recently used.
	s := NewScheduler(reg, nil, nil, config.CleanupConfig{
		SessionTimeoutHours: 24,
		MaxDiskUsageGB:      1.0 / 1024,
	})
	status := s.Sweep(context.Background())

	assert.GreaterOrEqual(t, status.EvictedSessions, 1)
	_, ok := reg.Get(oldID)
	assert.False(t, ok, "least recently used session is evicted first")
	_, ok = reg.Get(newID)
	assert.True(t, ok)
}

func TestStartStop(t *testing.T) {
	reg := newTestRegistry(t)
	s := NewScheduler(reg, nil, nil, config.CleanupConfig{CheckIntervalMinutes: 60})

	s.Start(context.Background())
	assert.True(t, s.Status().Running)

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.False(t, s.Status().Running)

	// Stopping twice is harmless.
	s.Stop()
}

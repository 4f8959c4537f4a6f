package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitscribe/pkg/logging"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))
	return dir
}

func TestBootstrapWiresEverything(t *testing.T) {
	ws := t.TempDir()
	dir := writeConfig(t, `
server:
  port: 0
workspace:
  root: `+ws+`
`)

	svcs, err := Bootstrap(context.Background(), Options{ConfigPath: dir, LogLevel: logging.LevelWarn})
	require.Error(t, err, "port 0 must be rejected")
	assert.Nil(t, svcs)
}

func TestBootstrapDefaults(t *testing.T) {
	ws := t.TempDir()
	dir := writeConfig(t, `
workspace:
  root: `+ws+`
`)

	svcs, err := Bootstrap(context.Background(), Options{ConfigPath: dir, LogLevel: logging.LevelWarn})
	require.NoError(t, err)
	defer svcs.Tokens.Close()

	assert.NotNil(t, svcs.Registry)
	assert.NotNil(t, svcs.Auth)
	assert.NotNil(t, svcs.Git)
	assert.NotNil(t, svcs.Files)
	assert.NotNil(t, svcs.Posts)
	assert.NotNil(t, svcs.Scheduler)
	assert.NotNil(t, svcs.Server)
	assert.Equal(t, ws, svcs.Config.Workspace.Root)
	assert.Equal(t, "memory", svcs.Config.TokenStore.Backend)
}

func TestBootstrapUnknownTokenBackend(t *testing.T) {
	ws := t.TempDir()
	dir := writeConfig(t, `
workspace:
  root: `+ws+`
tokenStore:
  backend: vault
`)

	_, err := Bootstrap(context.Background(), Options{ConfigPath: dir, LogLevel: logging.LevelWarn})
	assert.Error(t, err)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ws := t.TempDir()
	dir := writeConfig(t, `
server:
  host: 127.0.0.1
  port: 39713
workspace:
  root: `+ws+`
`)

	svcs, err := Bootstrap(context.Background(), Options{ConfigPath: dir, LogLevel: logging.LevelWarn})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svcs.Run(ctx) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

package deploy

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestValidateCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("deploy scripts are shell scripts")
	}
	dir := t.TempDir()
	script := writeScript(t, dir, "deploy.sh", "exit 0")

	assert.NoError(t, ValidateCommand(script, dir))
	assert.NoError(t, ValidateCommand(script+" --fast", dir))

	cases := []struct {
		name    string
		command string
	}{
		{"empty", ""},
		{"relative path", "deploy.sh"},
		{"missing file", filepath.Join(dir, "nope.sh")},
		{"pipe", script + " | cat"},
		{"semicolon", script + "; rm -rf /"},
		{"subshell", script + " $(whoami)"},
		{"backtick", script + " `whoami`"},
		{"redirect", script + " > /tmp/out"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, ValidateCommand(tc.command, dir), ErrCommandRejected)
		})
	}
}

func TestValidateCommandOutsideAllowedDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("deploy scripts are shell scripts")
	}
	allowed := t.TempDir()
	elsewhere := t.TempDir()
	script := writeScript(t, elsewhere, "deploy.sh", "exit 0")

	assert.ErrorIs(t, ValidateCommand(script, allowed), ErrCommandRejected)
}

func TestValidateCommandNotExecutable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o644))

	assert.ErrorIs(t, ValidateCommand(path, dir), ErrCommandRejected)
}

func TestRunnerExecutesCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("deploy scripts are shell scripts")
	}
	dir := t.TempDir()
	marker := filepath.Join(dir, "ran.txt")
	script := writeScript(t, dir, "deploy.sh", `echo "$1" > `+marker)

	r := NewRunner(script, dir)
	require.True(t, r.Enabled())

	ws := t.TempDir()
	r.Run(context.Background(), ws)

	require.Eventually(t, func() bool {
		_, err := os.Stat(marker)
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)

	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Contains(t, string(data), ws)
}

func TestRunnerDisabled(t *testing.T) {
	r := NewRunner("", "")
	assert.False(t, r.Enabled())
	r.Run(context.Background(), t.TempDir())
}

func TestRunnerSkipsRejectedCommand(t *testing.T) {
	r := NewRunner("/does/not/exist.sh", "/does/not")
	r.Run(context.Background(), t.TempDir())
}

package testutil

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// BinaryPath returns the path of the qtask binary under test.
func BinaryPath() string {
	if path := os.Getenv("QTASK_BINARY"); path != "" {
		return path
	}
	if _, err := os.Stat("qtask"); err == nil {
		return "./qtask"
	}
	if _, err := os.Stat("../qtask"); err == nil {
		return "../qtask"
	}
	binPath := filepath.Join("..", "bin", "qtask")
	if _, err := os.Stat(binPath); err == nil {
		return binPath
	}
	return "./qtask"
}

// WritePipeline stores content as a pipeline file in a temporary directory.
func WritePipeline(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// Command prepares a qtask invocation with combined output captured.
func Command(ctx context.Context, args ...string) (*exec.Cmd, *bytes.Buffer) {
	cmd := exec.CommandContext(ctx, BinaryPath(), args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.Env = os.Environ()
	return cmd, &out
}

// Run executes qtask and returns its combined output.
func Run(ctx context.Context, args ...string) (string, error) {
	cmd, out := Command(ctx, args...)
	err := cmd.Run()
	return out.String(), err
}

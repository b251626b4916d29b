package commands

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchFiles(t *testing.T) {
	dir := t.TempDir()
	schema := filepath.Join(dir, "schema.yaml")
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(schema, []byte("models: []\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	runs := make(chan struct{}, 8)
	done := make(chan error, 1)
	go func() {
		done <- watchFiles(ctx, slog.New(slog.DiscardHandler), []string{"", schema}, func() error {
			runs <- struct{}{}
			return nil
		})
	}()

	wait := func() bool {
		select {
		case <-runs:
			return true
		case <-time.After(5 * time.Second):
			return false
		}
	}
	require.True(t, wait(), "initial run")

	require.NoError(t, os.WriteFile(other, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(schema, []byte("models: [{name: A}]\n"), 0o644))
	require.True(t, wait(), "run after change")

	select {
	case <-runs:
		t.Fatal("unrelated file triggered a run")
	case <-time.After(3 * debounce):
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

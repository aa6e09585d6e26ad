package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchPublishesFileChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "counter.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: counter\nstate:\n  count: 1\n  label: clicks\ncomputed:\n  doubled:\n    expr: count * 2\n"), 0o644))

	out := &lockedBuffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- runWatch(ctx, cmd, &RootOptions{Format: "text"}, path, func() { close(ready) })
	}()

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not start")
	}
	assert.Contains(t, out.String(), "store counter (version 0)")

	require.NoError(t, os.WriteFile(path, []byte("name: counter\nstate:\n  count: 5\n  label: clicks\n"), 0o644))

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "doubled: 10")
	}, 5*time.Second, 20*time.Millisecond)
	assert.Contains(t, out.String(), "changed: [count")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

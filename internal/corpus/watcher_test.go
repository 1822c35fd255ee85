package corpus

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestWatcher_InvalidatesOnWrite(t *testing.T) {
	defer goleak.VerifyNone(t)

	c, dir := newTestCache(t, map[string]string{"book": "before"})
	ctx, cancel := context.WithCancel(context.Background())

	lines, err := c.Lines(ctx, "book")
	require.NoError(t, err)
	require.Equal(t, []string{"before"}, lines)

	w, err := NewWatcher(c, nil)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "book.txt"), []byte("after"), 0o644))

	assert.Eventually(t, func() bool {
		return c.Len() == 0
	}, 2*time.Second, 10*time.Millisecond)

	lines, err = c.Lines(ctx, "book")
	require.NoError(t, err)
	assert.Equal(t, []string{"after"}, lines)

	cancel()
	<-done
	require.NoError(t, w.Close())
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	defer goleak.VerifyNone(t)

	c, dir := newTestCache(t, map[string]string{"book": "x"})
	ctx := context.Background()
	_, err := c.Lines(ctx, "book")
	require.NoError(t, err)

	w, err := NewWatcher(c, nil)
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("y"), 0o644))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, c.Len())

	// Closing the watcher ends Run through the closed event channel.
	require.NoError(t, w.Close())
	<-done
}

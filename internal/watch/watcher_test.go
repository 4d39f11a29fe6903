package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDebounce = 50 * time.Millisecond

func startWatcher(t *testing.T, paths []string, rebuild RebuildFunc, opts ...Option) {
	t.Helper()
	w, err := New(paths, rebuild, append([]Option{WithDebounce(testDebounce)}, opts...)...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	select {
	case <-w.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not become ready")
	}
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestWatcherCoalescesBurst(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	write(t, filepath.Join(src, "pdf.js"), "a")

	var builds atomic.Int32
	startWatcher(t, []string{src}, func(context.Context) error {
		builds.Add(1)
		return nil
	})

	for i := range 5 {
		write(t, filepath.Join(src, "pdf.js"), string(rune('a'+i)))
	}

	require.Eventually(t, func() bool { return builds.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(4 * testDebounce)
	assert.Equal(t, int32(1), builds.Load())
}

func TestWatcherIgnoresBuildDirectory(t *testing.T) {
	root := t.TempDir()
	build := filepath.Join(root, "build")
	write(t, filepath.Join(build, "generic", "pdf.js"), "old")

	var builds atomic.Int32
	startWatcher(t, []string{root}, func(context.Context) error {
		builds.Add(1)
		return nil
	}, WithIgnore(build))

	write(t, filepath.Join(build, "generic", "pdf.js"), "new")
	time.Sleep(6 * testDebounce)
	assert.Equal(t, int32(0), builds.Load())

	write(t, filepath.Join(root, "pdfjs.config"), "{}")
	require.Eventually(t, func() bool { return builds.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	src := t.TempDir()

	var builds atomic.Int32
	startWatcher(t, []string{src}, func(context.Context) error {
		builds.Add(1)
		return nil
	})

	require.NoError(t, os.Mkdir(filepath.Join(src, "display"), 0o750))
	require.Eventually(t, func() bool { return builds.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	write(t, filepath.Join(src, "display", "api.js"), "x")
	require.Eventually(t, func() bool { return builds.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcherSingleFileAndFailures(t *testing.T) {
	root := t.TempDir()
	cfg := filepath.Join(root, "assetforge.yaml")
	write(t, cfg, "version: \"1\"\n")

	var builds atomic.Int32
	startWatcher(t, []string{cfg, filepath.Join(root, "missing")}, func(context.Context) error {
		builds.Add(1)
		return errors.New("bundle failed")
	})

	// siblings of a watched file are not relevant
	write(t, filepath.Join(root, "notes.txt"), "x")
	time.Sleep(6 * testDebounce)
	assert.Equal(t, int32(0), builds.Load())

	write(t, cfg, "version: \"1\"\n# edited\n")
	require.Eventually(t, func() bool { return builds.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	// a failed rebuild keeps the watcher alive
	write(t, cfg, "version: \"1\"\n# edited again\n")
	require.Eventually(t, func() bool { return builds.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestNewRequiresRebuild(t *testing.T) {
	_, err := New(nil, nil)
	require.Error(t, err)
}

package config

import (
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	watchBefore = "call:\n  provider: openai\n  model: gpt-4o-mini\n"
	watchAfter  = "call:\n  provider: anthropic\n  model: claude-sonnet-4-0\n"
)

func fastDebounce(o *WatcherOptions) { o.Debounce = 10 * time.Millisecond }

func TestWatcher_Reload(t *testing.T) {
	path := writeFile(t, "call.yaml", watchBefore)

	w, err := NewWatcher(path, fastDebounce)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	assert.Equal(t, "openai", w.Current().Call.Provider)

	var (
		mu       sync.Mutex
		observed [][2]string
	)
	w.OnChange(func(_, _ *File) { panic("broken listener") })
	w.OnChange(func(old, next *File) {
		mu.Lock()
		defer mu.Unlock()
		observed = append(observed, [2]string{old.Call.Provider, next.Call.Provider})
	})

	require.NoError(t, os.WriteFile(path, []byte(watchAfter), 0o600))

	require.Eventually(t, func() bool {
		return w.Current().Call.Provider == "anthropic"
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(observed) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, [2]string{"openai", "anthropic"}, observed[0], "a panicking callback does not block the others")
	mu.Unlock()
}

func TestWatcher_InvalidKeepsPrevious(t *testing.T) {
	path := writeFile(t, "call.yaml", watchBefore)

	var failures atomic.Int32
	w, err := NewWatcher(path, fastDebounce, func(o *WatcherOptions) {
		o.OnError = func(error) { failures.Add(1) }
	})
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	require.NoError(t, os.WriteFile(path, []byte("call:\n  provider: openai\n"), 0o600))

	require.Eventually(t, func() bool { return failures.Load() > 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "gpt-4o-mini", w.Current().Call.Model)
}

func TestWatcher_Errors(t *testing.T) {
	_, err := NewWatcher(writeFile(t, "call.yaml", "call: {}\n"))
	assertConfigError(t, err, "call.provider")

	path := writeFile(t, "call.yaml", watchBefore)
	w, err := NewWatcher(path)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}

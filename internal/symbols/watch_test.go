package symbols

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWatchFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestWatchProviderLoadsInitialList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "symbols.yaml")
	writeWatchFile(t, path, "symbols:\n  - btc\n  - ETHUSDT\n")

	p, err := NewWatchProvider(path)
	require.NoError(t, err)

	got, err := p.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, got)
	assert.Equal(t, "watch:"+path, p.Name())
}

func TestWatchProviderRejectsMissingFile(t *testing.T) {
	_, err := NewWatchProvider(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestWatchProviderRejectsEmptyList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "symbols.yaml")
	writeWatchFile(t, path, "symbols: []\n")

	_, err := NewWatchProvider(path)
	require.Error(t, err)
}

func TestWatchProviderKeepsListOnBrokenEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "symbols.yaml")
	writeWatchFile(t, path, "symbols:\n  - btc\n")

	p, err := NewWatchProvider(path)
	require.NoError(t, err)

	// Simulate the reload path directly: a broken file must not wipe the
	// list that is already being served.
	writeWatchFile(t, path, "symbols: {not a list\n")
	require.Error(t, p.reload())

	got, err := p.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT"}, got)
}

package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	store, err := Load(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)

	settings := store.Get()
	assert.Equal(t, defaultModel, settings.Model)
	assert.Equal(t, defaultMaxContext, settings.MaxContext)
	assert.Equal(t, "local", settings.Speech.Backend)
	require.Len(t, settings.Commands, 4)
	assert.Equal(t, "tldr", settings.Commands[0].Name)
}

func TestStore_SetPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	store, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, store.Set("model", "claude-opus-4-20250514"))
	assert.Equal(t, "claude-opus-4-20250514", store.Get().Model)

	// A fresh store reads the persisted value.
	reread, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "claude-opus-4-20250514", reread.Get().Model)
}

func TestStore_SubscribeWithoutWatch(t *testing.T) {
	store, err := Load(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)

	// No Watch: Set alone must still reach listeners.
	updates := make(chan Settings, 8)
	store.Subscribe(func(s Settings) { updates <- s })

	require.NoError(t, store.Set("max_context", 5000))

	select {
	case s := <-updates:
		assert.Equal(t, 5000, s.MaxContext)
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification without a file watcher")
	}
}

func TestStore_WatchNotifiesOnce(t *testing.T) {
	store, err := Load(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)
	require.NoError(t, store.Watch())
	defer store.Close()

	updates := make(chan Settings, 8)
	store.Subscribe(func(s Settings) { updates <- s })

	require.NoError(t, store.Set("max_context", 5000))

	select {
	case s := <-updates:
		assert.Equal(t, 5000, s.MaxContext)
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification")
	}

	// The fsnotify event for the same write must not deliver a duplicate.
	select {
	case s := <-updates:
		t.Fatalf("duplicate notification: %+v", s)
	case <-time.After(300 * time.Millisecond):
	}
}

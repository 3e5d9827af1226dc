package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/fleetguard/storage/memory"
)

func TestRepositoryStore(t *testing.T) {
	store := NewRepositoryStore(memory.NewRepository())

	_, ok, err := store.LoadLastActivity()
	require.NoError(t, err)
	assert.False(t, ok, "empty repository has no activity")

	at := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	require.NoError(t, store.SaveLastActivity(at))
	require.NoError(t, store.SaveLastActivity(at.Add(time.Minute)))

	got, ok, err := store.LoadLastActivity()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(at.Add(time.Minute)), "last write wins")
}

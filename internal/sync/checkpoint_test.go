package sync

import (
	"context"
	"testing"
	"time"

	"canvas-grade-sync/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCheckpointStore_RoundTrip(t *testing.T) {
	store := NewMemoryCheckpointStore(time.Hour)
	ctx := context.Background()

	missing, err := store.Get(ctx, 1, model.ScopeAll)
	require.NoError(t, err)
	assert.Nil(t, missing)

	saved := &model.Checkpoint{
		AttemptID:          "attempt-1",
		ProcessedCanvasIDs: []string{"101", "102"},
		Counts:             model.SyncResult{CoursesProcessed: 2},
		ProgressPercent:    20,
	}
	require.NoError(t, store.Save(ctx, 1, model.ScopeAll, saved))

	loaded, err := store.Get(ctx, 1, model.ScopeAll)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, saved.AttemptID, loaded.AttemptID)
	assert.Equal(t, map[string]bool{"101": true, "102": true}, loaded.ProcessedSet())

	// Scoped per (owner, scope).
	other, err := store.Get(ctx, 1, model.ScopeTerm)
	require.NoError(t, err)
	assert.Nil(t, other)

	require.NoError(t, store.Clear(ctx, 1, model.ScopeAll))
	cleared, err := store.Get(ctx, 1, model.ScopeAll)
	require.NoError(t, err)
	assert.Nil(t, cleared)
}

func TestMemoryCheckpointStore_Expiry(t *testing.T) {
	store := NewMemoryCheckpointStore(10 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, 1, model.ScopeAll, &model.Checkpoint{AttemptID: "attempt-1"}))
	time.Sleep(20 * time.Millisecond)

	loaded, err := store.Get(ctx, 1, model.ScopeAll)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

package datastore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/eventlog-migrator/internal/datastore/entities"
	"github.com/tphakala/eventlog-migrator/internal/errors"
)

func setupStateManager(t *testing.T) *StateManager {
	t.Helper()
	sm := NewStateManager(openTestDB(t, "target.db"))
	require.NoError(t, sm.Initialize(context.Background()))
	return sm
}

func TestStateManager_InitializeIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	sm := setupStateManager(t)
	require.NoError(t, sm.StoreCheckpoint(ctx, 10))
	require.NoError(t, sm.Initialize(ctx))

	checkpoint, err := sm.LoadCheckpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), checkpoint, "re-initializing must not reset the checkpoint")
}

func TestStateManager_CheckpointStartsEmpty(t *testing.T) {
	t.Parallel()

	sm := setupStateManager(t)
	checkpoint, err := sm.LoadCheckpoint(context.Background())
	require.NoError(t, err)
	assert.Equal(t, entities.NoCheckpoint, checkpoint)
}

func TestStateManager_CheckpointIsMonotonic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sm := setupStateManager(t)

	require.NoError(t, sm.StoreCheckpoint(ctx, 100))
	require.NoError(t, sm.StoreCheckpoint(ctx, 50))
	require.NoError(t, sm.StoreCheckpoint(ctx, 100))

	checkpoint, err := sm.LoadCheckpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(100), checkpoint)

	require.NoError(t, sm.StoreCheckpoint(ctx, 101))
	checkpoint, err = sm.LoadCheckpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(101), checkpoint)
}

func TestStateManager_RunLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sm := setupStateManager(t)

	require.NoError(t, sm.BeginRun(ctx, "run-1"))

	err := sm.BeginRun(ctx, "run-2")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))

	require.NoError(t, sm.FinishRun(ctx, &RunSummary{
		RunID:            "run-1",
		Status:           entities.RunStatusFailed,
		Converted:        7,
		SkippedNoMapping: 2,
		Failed:           1,
		Duplicates:       3,
		Err:              errors.NewStd("one record failed"),
	}))

	state, err := sm.GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, entities.RunStatusFailed, state.Status)
	assert.Equal(t, "run-1", state.RunID)
	assert.Equal(t, int64(7), state.Converted)
	assert.Equal(t, int64(2), state.SkippedNoMapping)
	assert.Equal(t, int64(1), state.Failed)
	assert.Equal(t, int64(3), state.Duplicates)
	assert.Equal(t, "one record failed", state.ErrorMessage)
	require.NotNil(t, state.CompletedAt)
	assert.False(t, state.IsActive())

	// The next run resets counters.
	require.NoError(t, sm.BeginRun(ctx, "run-2"))
	state, err = sm.GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), state.Converted)
	assert.Nil(t, state.CompletedAt)
	assert.True(t, state.IsActive())
}

func TestStateManager_FinishRunRequiresOwner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sm := setupStateManager(t)

	require.NoError(t, sm.BeginRun(ctx, "run-1"))
	err := sm.FinishRun(ctx, &RunSummary{RunID: "other", Status: entities.RunStatusCompleted})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))
}

func TestStateManager_RecoverStaleRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sm := setupStateManager(t)

	recovered, err := sm.RecoverStaleRun(ctx)
	require.NoError(t, err)
	assert.False(t, recovered)

	require.NoError(t, sm.BeginRun(ctx, "crashed"))
	recovered, err = sm.RecoverStaleRun(ctx)
	require.NoError(t, err)
	assert.True(t, recovered)

	state, err := sm.GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, entities.RunStatusInterrupted, state.Status)
	require.NoError(t, sm.BeginRun(ctx, "next"))
}

func TestStateManager_Failures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sm := setupStateManager(t)

	require.NoError(t, sm.RecordFailures(ctx, nil))
	require.NoError(t, sm.RecordFailures(ctx, []entities.MigrationFailure{
		{RunID: "run-1", RecordID: 9, Type: "Order", Outcome: "failed", Reason: "boom"},
		{RunID: "run-1", RecordID: 3, Type: "Order", Outcome: "malformed", Reason: "bad xml"},
		{RunID: "run-2", RecordID: 1, Type: "Order", Outcome: "failed"},
	}))

	failures, err := sm.Failures(ctx, "run-1", 0)
	require.NoError(t, err)
	require.Len(t, failures, 2)
	assert.Equal(t, int64(3), failures[0].RecordID)
	assert.Equal(t, int64(9), failures[1].RecordID)

	limited, err := sm.Failures(ctx, "run-1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

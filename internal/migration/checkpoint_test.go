package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tphakala/eventlog-migrator/internal/conf"
	"github.com/tphakala/eventlog-migrator/internal/datastore/entities"
)

func TestCheckpointTracker_ConfirmedPrefix(t *testing.T) {
	t.Parallel()

	tr := NewCheckpointTracker(conf.CheckpointConfirmed, entities.NoCheckpoint)
	s0 := tr.Register(10)
	s1 := tr.Register(20)
	s2 := tr.Register(30)

	assert.Equal(t, int64(30), tr.Read())
	assert.Equal(t, entities.NoCheckpoint, tr.Value())

	tr.Complete(s2, 30)
	assert.Equal(t, entities.NoCheckpoint, tr.Value(), "out of order completion must wait for the prefix")

	tr.Complete(s0, 10)
	assert.Equal(t, int64(10), tr.Value())

	tr.Complete(s1, 20)
	assert.Equal(t, int64(30), tr.Value())
	assert.False(t, tr.Blocked())
}

func TestCheckpointTracker_FailureBlocks(t *testing.T) {
	t.Parallel()

	tr := NewCheckpointTracker(conf.CheckpointConfirmed, 5)
	s0 := tr.Register(10)
	s1 := tr.Register(20)
	s2 := tr.Register(30)

	tr.Complete(s0, 10)
	tr.Complete(s1, entities.NoCheckpoint)
	tr.Complete(s2, 30)

	assert.Equal(t, int64(10), tr.Value())
	assert.True(t, tr.Blocked())

	tr.Complete(99, 99)
	assert.Equal(t, int64(10), tr.Value())
}

func TestCheckpointTracker_ReadMode(t *testing.T) {
	t.Parallel()

	tr := NewCheckpointTracker(conf.CheckpointRead, 5)
	assert.Equal(t, int64(5), tr.Value())

	s0 := tr.Register(10)
	tr.Register(20)
	tr.Complete(s0, entities.NoCheckpoint)

	assert.Equal(t, int64(20), tr.Value(), "read mode follows the read cursor")
	assert.Equal(t, int64(5), tr.Confirmed())
}

func TestCheckpointTracker_NeverMovesBackwards(t *testing.T) {
	t.Parallel()

	tr := NewCheckpointTracker(conf.CheckpointConfirmed, 100)
	s := tr.Register(50)
	tr.Complete(s, 50)
	assert.Equal(t, int64(100), tr.Value())
}

func TestCheckpointTracker_StopsBeforeUnsettledItem(t *testing.T) {
	t.Parallel()

	tr := NewCheckpointTracker(conf.CheckpointConfirmed, entities.NoCheckpoint)
	s0 := tr.Register(10)
	s1 := tr.Register(20)
	s2 := tr.Register(30)

	tr.Complete(s0, 10)
	tr.Complete(s2, 30)
	tr.Complete(s1, 14) // item 15 was skipped

	assert.Equal(t, int64(14), tr.Value())
	assert.True(t, tr.Blocked())
	assert.Equal(t, int64(30), tr.Read())
}

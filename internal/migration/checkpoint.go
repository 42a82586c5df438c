package migration

import (
	"sync"

	"github.com/tphakala/eventlog-migrator/internal/conf"
	"github.com/tphakala/eventlog-migrator/internal/datastore/entities"
)

// CheckpointTracker computes the checkpoint value to persist.
//
// In read mode the checkpoint follows the last id handed to the dispatcher,
// so a crash can skip sub-batches that were queued but never written. In
// confirmed mode it is the id of the last settled item of the longest
// settled prefix, in submission order. The first item that is not settled
// (no mapping, or lost to a store error) holds the checkpoint back for the
// rest of the run, so the next run reads it again.
type CheckpointTracker struct {
	confirmedMode bool

	mu        sync.Mutex
	read      int64
	confirmed int64
	next      uint64 // next sequence number to hand out
	low       uint64 // lowest sequence number not yet confirmed
	blocked   bool
	pending   map[uint64]pendingBatch
}

type pendingBatch struct {
	lastID  int64
	settled int64 // last id of the settled prefix
	done    bool
}

// NewCheckpointTracker starts tracking from start.
func NewCheckpointTracker(mode string, start int64) *CheckpointTracker {
	return &CheckpointTracker{
		confirmedMode: mode != conf.CheckpointRead,
		read:          start,
		confirmed:     start,
		pending:       make(map[uint64]pendingBatch),
	}
}

// Register assigns the next sequence number to a sub-batch ending at lastID.
// Sub-batches must be registered in ascending id order.
func (t *CheckpointTracker) Register(lastID int64) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	seq := t.next
	t.next++
	t.pending[seq] = pendingBatch{lastID: lastID}
	if lastID > t.read {
		t.read = lastID
	}
	return seq
}

// Complete marks sub-batch seq as finished with its items settled up to and
// including settledThrough. NoCheckpoint means no item was settled.
func (t *CheckpointTracker) Complete(seq uint64, settledThrough int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.pending[seq]
	if !ok {
		return
	}
	p.done = true
	p.settled = settledThrough
	t.pending[seq] = p

	for !t.blocked {
		head, ok := t.pending[t.low]
		if !ok || !head.done {
			return
		}
		if head.settled < head.lastID {
			if head.settled > t.confirmed {
				t.confirmed = head.settled
			}
			t.blocked = true
			return
		}
		if head.lastID > t.confirmed {
			t.confirmed = head.lastID
		}
		delete(t.pending, t.low)
		t.low++
	}
}

// Read returns the last id handed to the dispatcher.
func (t *CheckpointTracker) Read() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.read
}

// Confirmed returns the last id of the completed prefix.
func (t *CheckpointTracker) Confirmed() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.confirmed
}

// Value returns the checkpoint for the configured mode.
func (t *CheckpointTracker) Value() int64 {
	if t.confirmedMode {
		return t.Confirmed()
	}
	return t.Read()
}

// Blocked reports whether an unsettled item stopped the confirmed
// checkpoint from advancing.
func (t *CheckpointTracker) Blocked() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.blocked
}

// HasCheckpoint reports whether id denotes a processed record.
func HasCheckpoint(id int64) bool {
	return id != entities.NoCheckpoint
}

package migration

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/eventlog-migrator/internal/datastore/entities"
	"github.com/tphakala/eventlog-migrator/internal/testutil"
)

// blockingHandler blocks every sub-batch with Seq < blockBelow until release
// is closed and records which sub-batches ran.
type blockingHandler struct {
	blockBelow uint64
	release    chan struct{}
	started    chan uint64

	mu   sync.Mutex
	done []uint64
}

func newBlockingHandler(blockBelow uint64) *blockingHandler {
	return &blockingHandler{
		blockBelow: blockBelow,
		release:    make(chan struct{}),
		started:    make(chan uint64, 64),
	}
}

func (h *blockingHandler) handle(_ context.Context, b SubBatch) {
	h.started <- b.Seq
	if b.Seq < h.blockBelow {
		<-h.release
	}
	h.mu.Lock()
	h.done = append(h.done, b.Seq)
	h.mu.Unlock()
}

func (h *blockingHandler) processed() []uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]uint64(nil), h.done...)
}

func batchOf(seq uint64) SubBatch {
	return SubBatch{Seq: seq, Items: []entities.ConversionItem{{RecordID: int64(seq) + 1}}}
}

func waitStarted(t *testing.T, h *blockingHandler, want uint64) {
	t.Helper()
	got := testutil.Receive(t, h.started, testutil.DefaultTestTimeout, fmt.Sprintf("sub-batch %d never started", want))
	require.Equal(t, want, got)
}

func TestDispatcher_CallerRunsWhenSaturated(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newBlockingHandler(1)
	d := NewDispatcher(DispatcherConfig{Workers: 1, MaxWorkers: 1, QueueCapacity: 1, Handler: h.handle, Logger: quietLogger()})
	ctx := t.Context()

	require.NoError(t, d.Submit(ctx, batchOf(0)))
	waitStarted(t, h, 0) // the only worker is now busy

	require.NoError(t, d.Submit(ctx, batchOf(1))) // fills the queue
	assert.Equal(t, 1, d.QueueLen())

	// Queue full and no room for a burst worker: the caller runs it.
	require.NoError(t, d.Submit(ctx, batchOf(2)))
	waitStarted(t, h, 2)
	assert.Equal(t, int64(1), d.CallerRuns())
	assert.Equal(t, []uint64{2}, h.processed(), "caller-run work finishes before Submit returns")
	assert.Equal(t, 1, d.QueueLen(), "the queue never grows beyond its capacity")

	close(h.release)
	require.NoError(t, d.Shutdown(5*time.Second))
	assert.ElementsMatch(t, []uint64{0, 1, 2}, h.processed())
	assert.Zero(t, d.Abandoned())
}

func TestDispatcher_BurstWorkerBeforeCallerRuns(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newBlockingHandler(1)
	d := NewDispatcher(DispatcherConfig{Workers: 1, MaxWorkers: 2, QueueCapacity: 1, Handler: h.handle, Logger: quietLogger()})
	ctx := t.Context()

	require.NoError(t, d.Submit(ctx, batchOf(0)))
	waitStarted(t, h, 0)
	require.NoError(t, d.Submit(ctx, batchOf(1)))
	require.NoError(t, d.Submit(ctx, batchOf(2)))

	assert.Zero(t, d.CallerRuns())

	close(h.release)
	require.NoError(t, d.Shutdown(5*time.Second))
	assert.ElementsMatch(t, []uint64{0, 1, 2}, h.processed())
}

func TestDispatcher_DrainTimeoutAbandonsQueued(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newBlockingHandler(1)
	d := NewDispatcher(DispatcherConfig{Workers: 1, MaxWorkers: 1, QueueCapacity: 2, Handler: h.handle, Logger: quietLogger()})
	ctx := t.Context()

	require.NoError(t, d.Submit(ctx, batchOf(0)))
	waitStarted(t, h, 0)
	require.NoError(t, d.Submit(ctx, batchOf(1)))
	require.NoError(t, d.Submit(ctx, batchOf(2)))

	err := d.Shutdown(50 * time.Millisecond)
	require.ErrorIs(t, err, ErrDrainTimeout)
	assert.Equal(t, int64(2), d.Abandoned())

	assert.ErrorIs(t, d.Submit(ctx, batchOf(3)), ErrPipelineStopped)
	assert.NoError(t, d.Shutdown(time.Second), "second shutdown is a no-op")

	// Let the in-flight sub-batch finish so no goroutine outlives the test.
	close(h.release)
	require.Eventually(t, func() bool { return len(h.processed()) == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []uint64{0}, h.processed())
}

func TestDispatcher_ManySubBatches(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var mu sync.Mutex
	seen := make(map[uint64]int)
	d := NewDispatcher(DispatcherConfig{
		Workers:       4,
		MaxWorkers:    8,
		QueueCapacity: 3,
		Logger:        quietLogger(),
		Handler: func(_ context.Context, b SubBatch) {
			time.Sleep(time.Millisecond)
			mu.Lock()
			seen[b.Seq]++
			mu.Unlock()
		},
	})

	for i := range uint64(200) {
		require.NoError(t, d.Submit(t.Context(), batchOf(i)))
		assert.LessOrEqual(t, d.QueueLen(), 3)
	}
	require.NoError(t, d.Shutdown(10*time.Second))

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 200)
	for seq, n := range seen {
		assert.Equal(t, 1, n, "sub-batch %d ran more than once", seq)
	}
}

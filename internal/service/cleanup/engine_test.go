package cleanup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetpipe/internal/server/storage"
	"assetpipe/internal/server/storage/storagetest"
)

var baseTime = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

type captureNotifier struct {
	mu     sync.Mutex
	events []string
	runs   []Run
}

func (c *captureNotifier) Publish(eventType string, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, eventType)
	if run, ok := payload.(Run); ok {
		c.runs = append(c.runs, run)
	}
}

func TestCleanup_OnlyOlderThanThreshold(t *testing.T) {
	t.Parallel()

	mem := storagetest.NewMemory()
	old := mem.AddIncomplete("assets/2026/09/a.mp4", baseTime.Add(-2*time.Hour))
	fresh := mem.AddIncomplete("assets/2026/10/b.mp4", baseTime.Add(-30*time.Minute))
	engine := NewEngine(mem, WithClock(func() time.Time { return baseTime }))

	res, err := engine.Cleanup(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, 1, res.Cleaned)
	assert.Equal(t, 0, res.Failed)
	require.Len(t, res.Details, 1)
	assert.Equal(t, Detail{ObjectKey: "assets/2026/09/a.mp4", UploadID: old, Success: true}, res.Details[0])

	left, err := engine.ListIncomplete(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, fresh, left[0].UploadID)
}

func TestCleanup_NoThresholdTakesEverything(t *testing.T) {
	t.Parallel()

	mem := storagetest.NewMemory()
	mem.AddIncomplete("a/1.jpg", baseTime)
	mem.AddIncomplete("a/2.jpg", baseTime.Add(-time.Minute))
	engine := NewEngine(mem, WithClock(func() time.Time { return baseTime }))

	res, err := engine.Cleanup(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 2, res.Cleaned)
}

func TestCleanup_PartialFailure(t *testing.T) {
	t.Parallel()

	mem := storagetest.NewMemory()
	first := mem.AddIncomplete("a/1.jpg", baseTime.Add(-48*time.Hour))
	mem.AddIncomplete("a/2.jpg", baseTime.Add(-48*time.Hour))
	third := mem.AddIncomplete("a/3.jpg", baseTime.Add(-48*time.Hour))
	mem.FailAbort(first, errors.New("connection reset"))
	mem.FailAbort(third, storage.ErrUploadNotFound)

	notifier := &captureNotifier{}
	engine := NewEngine(mem, WithClock(func() time.Time { return baseTime }), WithNotifier(notifier))

	res, err := engine.Cleanup(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.Cleaned)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 3, mem.Calls("AbortMultipartUpload"))

	var failed []Detail
	for _, d := range res.Details {
		if !d.Success {
			failed = append(failed, d)
		}
	}
	require.Len(t, failed, 1)
	assert.Equal(t, "a/1.jpg", failed[0].ObjectKey)
	assert.Equal(t, "connection reset", failed[0].Error)

	assert.Equal(t, []string{EventRunFinished}, notifier.events)
	runs, err := engine.Recorder().List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, TriggerManual, runs[0].Trigger)
	assert.Equal(t, res, runs[0].Result)
}

type failingList struct{ storage.Provider }

func (failingList) ListMultipartUploads(ctx context.Context) ([]storage.IncompleteUpload, error) {
	return nil, errors.New("list denied")
}

func TestCleanup_ListFailureIsRecorded(t *testing.T) {
	t.Parallel()

	engine := NewEngine(failingList{storagetest.NewMemory()})
	_, err := engine.Cleanup(context.Background(), time.Hour)
	require.Error(t, err)

	runs, err := engine.Recorder().List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "list denied", runs[0].Error)
}

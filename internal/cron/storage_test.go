package cron

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/ruletoggle/internal/logger"
)

func testJob(id string) Job {
	return Job{
		ID:        id,
		Type:      JobTypeRecurring,
		Schedule:  "0 0 * * *",
		Payload:   json.RawMessage(`{"schema":1}`),
		CreatedAt: time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
	}
}

func TestStorage_LoadMissing(t *testing.T) {
	storage := NewStorage(t.TempDir(), logger.Discard())

	jobs, err := storage.Load()
	assert.NoError(t, err)
	assert.NotNil(t, jobs)
	assert.Empty(t, jobs)
}

func TestStorage_UpsertRemove(t *testing.T) {
	storage := NewStorage(t.TempDir(), logger.Discard())

	require.NoError(t, storage.Upsert(testJob("a")))
	require.NoError(t, storage.Upsert(testJob("b")))

	updated := testJob("a")
	updated.Schedule = "0 12 * * *"
	require.NoError(t, storage.Upsert(updated))

	jobs, err := storage.Load()
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "0 12 * * *", jobs[0].Schedule)
	assert.Equal(t, "b", jobs[1].ID)

	require.NoError(t, storage.Remove("a", "missing"))
	jobs, err = storage.Load()
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "b", jobs[0].ID)

	// Unknown IDs leave the file alone.
	require.NoError(t, storage.Remove("missing"))
	jobs, err = storage.Load()
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestStorage_SkipsCorruptLines(t *testing.T) {
	storage := NewStorage(t.TempDir(), logger.Discard())
	require.NoError(t, storage.Upsert(testJob("a")))

	f, err := os.OpenFile(storage.Path(), os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("not json\n\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	jobs, err := storage.Load()
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "a", jobs[0].ID)
}

func TestStorage_List(t *testing.T) {
	storage := NewStorage(t.TempDir(), nil)
	require.NoError(t, storage.Upsert(testJob("a")))

	jobs, err := storage.List(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "a", jobs[0].ID)
}

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilsley/anonmirror/apps/mirror/internal/ledger"
	"github.com/tilsley/anonmirror/apps/mirror/internal/ledger/store"
)

// newRedisRecorder starts a miniredis server and returns a RedisRecorder backed by it.
// The server is stopped automatically when the test ends.
func newRedisRecorder(t *testing.T) *store.RedisRecorder {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return store.NewRedisRecorder(rdb)
}

var started = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func runEvents(runID string) []ledger.Event {
	return []ledger.Event{
		{RunID: runID, Type: ledger.EventRunStarted, Repo: "MyRepo", At: started},
		{RunID: runID, Type: ledger.EventFileDownloaded, Repo: "MyRepo", Path: "/a.txt", Bytes: 10, At: started.Add(time.Second)},
		{RunID: runID, Type: ledger.EventFileSkipped, Repo: "MyRepo", Path: "/sub/b.txt", At: started.Add(2 * time.Second)},
		{RunID: runID, Type: ledger.EventRunCompleted, Repo: "MyRepo", At: started.Add(time.Minute)},
	}
}

// ─── Record / Summary ─────────────────────────────────────────────────────────

func TestRedis_RecordThenSummary(t *testing.T) {
	r := newRedisRecorder(t)
	ctx := context.Background()
	for _, e := range runEvents("run-1") {
		require.NoError(t, r.Record(ctx, e))
	}

	s, err := r.Summary(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "MyRepo", s.Repo)
	assert.Equal(t, ledger.StatusCompleted, s.Status)
	assert.Equal(t, 1, s.Downloaded)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, int64(10), s.Bytes)
	assert.True(t, started.Equal(s.StartedAt))
	require.NotNil(t, s.FinishedAt)
	assert.True(t, started.Add(time.Minute).Equal(*s.FinishedAt))
}

func TestRedis_SummaryMatchesFold(t *testing.T) {
	r := newRedisRecorder(t)
	ctx := context.Background()

	var want ledger.Summary
	for _, e := range runEvents("run-1") {
		require.NoError(t, r.Record(ctx, e))
		want.Apply(e)
	}

	got, err := r.Summary(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, want.Downloaded, got.Downloaded)
	assert.Equal(t, want.Skipped, got.Skipped)
	assert.Equal(t, want.Bytes, got.Bytes)
	assert.Equal(t, want.Status, got.Status)
}

func TestRedis_Failed(t *testing.T) {
	r := newRedisRecorder(t)
	ctx := context.Background()
	require.NoError(t, r.Record(ctx, ledger.Event{RunID: "run-f", Type: ledger.EventRunStarted, Repo: "X", At: started}))
	require.NoError(t, r.Record(ctx, ledger.Event{RunID: "run-f", Type: ledger.EventRunFailed, Error: "fetch file /a: 404", At: started}))

	s, err := r.Summary(ctx, "run-f")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusFailed, s.Status)
	assert.Equal(t, "fetch file /a: 404", s.Error)
}

func TestRedis_UnknownRunReturnsNil(t *testing.T) {
	s, err := newRedisRecorder(t).Summary(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, s)
}

// ─── Events / RecentRuns ──────────────────────────────────────────────────────

func TestRedis_EventsInOrder(t *testing.T) {
	r := newRedisRecorder(t)
	ctx := context.Background()
	for _, e := range runEvents("run-1") {
		require.NoError(t, r.Record(ctx, e))
	}

	events, err := r.Events(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, ledger.EventRunStarted, events[0].Type)
	assert.Equal(t, "/a.txt", events[1].Path)
	assert.Equal(t, ledger.EventRunCompleted, events[3].Type)
}

func TestRedis_RecentRunsNewestFirst(t *testing.T) {
	r := newRedisRecorder(t)
	ctx := context.Background()
	require.NoError(t, r.Record(ctx, ledger.Event{RunID: "old", Type: ledger.EventRunStarted, At: started}))
	require.NoError(t, r.Record(ctx, ledger.Event{RunID: "new", Type: ledger.EventRunStarted, At: started.Add(time.Hour)}))

	ids, err := r.RecentRuns(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "old"}, ids)
}

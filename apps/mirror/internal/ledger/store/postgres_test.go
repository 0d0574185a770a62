package store_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilsley/anonmirror/apps/mirror/internal/ledger"
	"github.com/tilsley/anonmirror/apps/mirror/internal/ledger/store"
	"github.com/tilsley/anonmirror/apps/mirror/internal/ledger/store/pgmigrations"
	pgplatform "github.com/tilsley/anonmirror/apps/mirror/internal/platform/postgres"
)

// newPGRecorder creates a PGRecorder backed by a real PostgreSQL instance.
// Skips if POSTGRES_URL is not set.
func newPGRecorder(t *testing.T) *store.PGRecorder {
	t.Helper()
	pgURL := os.Getenv("POSTGRES_URL")
	if pgURL == "" {
		t.Skip("POSTGRES_URL not set, skipping Postgres integration tests")
	}
	pool, err := pgplatform.New(context.Background(), pgURL, pgmigrations.FS)
	require.NoError(t, err)
	t.Cleanup(func() {
		cleanupPG(t, pool)
		pool.Close()
	})
	return store.NewPGRecorder(pool)
}

func cleanupPG(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `DELETE FROM mirror_events`)
	require.NoError(t, err)
}

func TestPG_RecordThenSummary(t *testing.T) {
	r := newPGRecorder(t)
	ctx := context.Background()
	for _, e := range runEvents("pg-run") {
		require.NoError(t, r.Record(ctx, e))
	}

	s, err := r.Summary(ctx, "pg-run")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "MyRepo", s.Repo)
	assert.Equal(t, ledger.StatusCompleted, s.Status)
	assert.Equal(t, 1, s.Downloaded)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, int64(10), s.Bytes)
	assert.True(t, started.Equal(s.StartedAt))
	require.NotNil(t, s.FinishedAt)
}

func TestPG_EventsInOrder(t *testing.T) {
	r := newPGRecorder(t)
	ctx := context.Background()
	for _, e := range runEvents("pg-run") {
		require.NoError(t, r.Record(ctx, e))
	}

	events, err := r.Events(ctx, "pg-run")
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, ledger.EventRunStarted, events[0].Type)
	assert.Equal(t, "/sub/b.txt", events[2].Path)
}

func TestPG_UnknownRunReturnsNil(t *testing.T) {
	s, err := newPGRecorder(t).Summary(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, s)
}

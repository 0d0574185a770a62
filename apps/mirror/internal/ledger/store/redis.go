// Package store holds the persistent ledger.Recorder implementations.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tilsley/anonmirror/apps/mirror/internal/ledger"
)

const (
	redisRunsKey   = "mirror:runs"
	redisKeyPrefix = "mirror:run:"
)

// Compile-time check: *RedisRecorder implements ledger.Recorder.
var _ ledger.Recorder = (*RedisRecorder)(nil)

// RedisRecorder keeps one event list and one summary hash per run, plus a
// sorted index of runs by start time.
type RedisRecorder struct {
	rdb *redis.Client
}

// NewRedisRecorder creates a new RedisRecorder.
func NewRedisRecorder(rdb *redis.Client) *RedisRecorder {
	return &RedisRecorder{rdb: rdb}
}

func eventsKey(runID string) string  { return redisKeyPrefix + runID + ":events" }
func summaryKey(runID string) string { return redisKeyPrefix + runID + ":summary" }

// Record appends e to the run's event list and updates its summary hash in a
// single transaction.
func (r *RedisRecorder) Record(ctx context.Context, e ledger.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	sk := summaryKey(e.RunID)
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, eventsKey(e.RunID), data)
		switch e.Type {
		case ledger.EventRunStarted:
			p.HSet(ctx, sk,
				"runId", e.RunID,
				"repo", e.Repo,
				"status", ledger.StatusRunning,
				"startedAt", e.At.UTC().Format(time.RFC3339Nano),
			)
			p.ZAdd(ctx, redisRunsKey, redis.Z{Score: float64(e.At.Unix()), Member: e.RunID})
		case ledger.EventFileDownloaded:
			p.HIncrBy(ctx, sk, "downloaded", 1)
			p.HIncrBy(ctx, sk, "bytes", e.Bytes)
		case ledger.EventFileSkipped:
			p.HIncrBy(ctx, sk, "skipped", 1)
		case ledger.EventRunFailed:
			p.HSet(ctx, sk,
				"status", ledger.StatusFailed,
				"error", e.Error,
				"finishedAt", e.At.UTC().Format(time.RFC3339Nano),
			)
		case ledger.EventRunCompleted:
			p.HSet(ctx, sk,
				"status", ledger.StatusCompleted,
				"finishedAt", e.At.UTC().Format(time.RFC3339Nano),
			)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record %s for run %q: %w", e.Type, e.RunID, err)
	}
	return nil
}

// Summary reads the run's summary hash, returning nil if the run is unknown.
func (r *RedisRecorder) Summary(ctx context.Context, runID string) (*ledger.Summary, error) {
	h, err := r.rdb.HGetAll(ctx, summaryKey(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get summary %q: %w", runID, err)
	}
	if len(h) == 0 {
		return nil, nil //nolint:nilnil // caller checks nil value to detect "not found"
	}

	s := &ledger.Summary{
		RunID:  runID,
		Repo:   h["repo"],
		Status: h["status"],
		Error:  h["error"],
	}
	if s.Downloaded, err = atoiOrZero(h["downloaded"]); err != nil {
		return nil, fmt.Errorf("summary %q downloaded: %w", runID, err)
	}
	if s.Skipped, err = atoiOrZero(h["skipped"]); err != nil {
		return nil, fmt.Errorf("summary %q skipped: %w", runID, err)
	}
	if v := h["bytes"]; v != "" {
		if s.Bytes, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("summary %q bytes: %w", runID, err)
		}
	}
	if v := h["startedAt"]; v != "" {
		if s.StartedAt, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return nil, fmt.Errorf("summary %q startedAt: %w", runID, err)
		}
	}
	if v := h["finishedAt"]; v != "" {
		at, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("summary %q finishedAt: %w", runID, err)
		}
		s.FinishedAt = &at
	}
	return s, nil
}

// Events returns every event recorded for runID in order.
func (r *RedisRecorder) Events(ctx context.Context, runID string) ([]ledger.Event, error) {
	vals, err := r.rdb.LRange(ctx, eventsKey(runID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list events %q: %w", runID, err)
	}
	events := make([]ledger.Event, 0, len(vals))
	for _, v := range vals {
		var e ledger.Event
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			return nil, fmt.Errorf("unmarshal event for %q: %w", runID, err)
		}
		events = append(events, e)
	}
	return events, nil
}

// RecentRuns returns up to limit run IDs, newest first.
func (r *RedisRecorder) RecentRuns(ctx context.Context, limit int64) ([]string, error) {
	ids, err := r.rdb.ZRevRange(ctx, redisRunsKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return ids, nil
}

func atoiOrZero(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

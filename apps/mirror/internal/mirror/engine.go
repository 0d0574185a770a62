// Package mirror copies a remote repository tree onto local disk.
//
// A run fetches the tree, creates every directory, then visits the files in
// walk order. A file whose local path already exists is skipped without a
// request or a pause; any other file is downloaded, written whole, and
// followed by one limiter delay. The first error aborts the run, and because
// presence on disk is the only resume signal, running again picks up where
// the failed run stopped.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/tilsley/anonmirror/apps/mirror/internal/ledger"
	"github.com/tilsley/anonmirror/apps/mirror/internal/ratelimit"
	"github.com/tilsley/anonmirror/apps/mirror/internal/remote"
	"github.com/tilsley/anonmirror/apps/mirror/internal/structure"
	"github.com/tilsley/anonmirror/pkg/repotree"
)

const instrName = "github.com/tilsley/anonmirror/mirror"

// FileMode is the permission used for every written file.
const FileMode os.FileMode = 0o644

// Outcome is what happened to a single file.
type Outcome string

// File outcomes.
const (
	Downloaded Outcome = "downloaded"
	Skipped    Outcome = "skipped"
)

// Stats counts the files a run touched.
type Stats struct {
	RunID      string
	Downloaded int
	Skipped    int
	Bytes      int64
}

// Engine mirrors repositories into a destination directory.
type Engine struct {
	client  remote.Client
	dest    string
	log     *slog.Logger
	limiter ratelimit.Limiter
	ledger  ledger.Recorder
	now     func() time.Time
	newID   func() string

	tracer     trace.Tracer
	downloaded metric.Int64Counter
	skipped    metric.Int64Counter
	bytes      metric.Int64Counter
	fetchMs    metric.Float64Histogram
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.log = l } }

// WithLimiter sets the pause taken after each download. The default is a
// ratelimit.Jitter with its default bounds.
func WithLimiter(l ratelimit.Limiter) Option { return func(e *Engine) { e.limiter = l } }

// WithLedger sets where run events are recorded. The default is ledger.Nop.
func WithLedger(r ledger.Recorder) Option { return func(e *Engine) { e.ledger = r } }

// WithClock sets the time source used for ledger timestamps.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithRunIDs sets the generator for run IDs. The default is a random UUID.
func WithRunIDs(newID func() string) Option { return func(e *Engine) { e.newID = newID } }

// New creates an Engine that reads through client and writes under dest.
// An empty dest means the current directory.
func New(client remote.Client, dest string, opts ...Option) *Engine {
	e := &Engine{
		client:  client,
		dest:    dest,
		log:     slog.Default(),
		limiter: ratelimit.Jitter{},
		ledger:  ledger.Nop{},
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.tracer = otel.Tracer(instrName)
	m := otel.Meter(instrName)
	e.downloaded, _ = m.Int64Counter("anonmirror.files.downloaded",
		metric.WithDescription("Number of files downloaded"))
	e.skipped, _ = m.Int64Counter("anonmirror.files.skipped",
		metric.WithDescription("Number of files skipped because they already exist locally"))
	e.bytes, _ = m.Int64Counter("anonmirror.bytes.downloaded",
		metric.WithDescription("Bytes written to disk"),
		metric.WithUnit("By"))
	e.fetchMs, _ = m.Float64Histogram("anonmirror.fetch.duration",
		metric.WithDescription("File fetch duration in milliseconds"),
		metric.WithUnit("ms"))
	return e
}

// Root returns the local root for repo under the engine's destination.
func (e *Engine) Root(repo remote.Repo) (structure.Root, error) {
	return structure.NewRoot(e.dest, repo.Name)
}

// NewRunID returns a fresh run ID from the engine's generator.
func (e *Engine) NewRunID() string { return e.newID() }

// Run fetches the tree of repo, builds its directories and mirrors its files.
// A repo name that cannot be a local directory fails before any request.
func (e *Engine) Run(ctx context.Context, repo remote.Repo) (_ Stats, err error) {
	runID := e.newID()
	log := e.log.With("run", runID, "repo", repo.String())

	ctx, span := e.tracer.Start(ctx, "mirror.Run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("repo", repo.String()),
	))
	defer func() { endSpan(span, err) }()

	e.RecordRun(ctx, runID, repo, ledger.EventRunStarted, nil)
	defer func() { e.finishRun(ctx, runID, repo, err) }()

	root, err := e.Root(repo)
	if err != nil {
		return Stats{RunID: runID}, err
	}

	tree, err := e.client.FetchTree(ctx, repo)
	if err != nil {
		return Stats{RunID: runID}, err
	}
	ts := tree.Stats()
	log.Info("fetched tree", "dirs", ts.Dirs, "files", ts.Files, "bytes", ts.Bytes)

	if err := structure.Build(root, tree); err != nil {
		return Stats{RunID: runID}, err
	}

	return e.mirror(ctx, runID, repo, root, tree)
}

// Mirror downloads every file of tree that is not already present under the
// repo's root. Directories must already exist; see structure.Build. The run is
// bracketed in the ledger the same way Run brackets it.
func (e *Engine) Mirror(ctx context.Context, repo remote.Repo, tree repotree.Tree) (_ Stats, err error) {
	runID := e.newID()
	e.RecordRun(ctx, runID, repo, ledger.EventRunStarted, nil)
	defer func() { e.finishRun(ctx, runID, repo, err) }()

	root, err := e.Root(repo)
	if err != nil {
		return Stats{RunID: runID}, err
	}
	return e.mirror(ctx, runID, repo, root, tree)
}

// finishRun writes the terminal event for err.
func (e *Engine) finishRun(ctx context.Context, runID string, repo remote.Repo, err error) {
	if err != nil {
		e.RecordRun(ctx, runID, repo, ledger.EventRunFailed, err)
		return
	}
	e.RecordRun(ctx, runID, repo, ledger.EventRunCompleted, nil)
}

func (e *Engine) mirror(ctx context.Context, runID string, repo remote.Repo, root structure.Root, tree repotree.Tree) (Stats, error) {
	stats := Stats{RunID: runID}
	err := tree.Walk(func(entry repotree.Entry) error {
		if !entry.IsFile() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		outcome, n, err := e.mirrorFile(ctx, runID, repo, root, entry.Segments)
		if err != nil {
			return err
		}
		if outcome == Skipped {
			stats.Skipped++
			return nil
		}
		stats.Downloaded++
		stats.Bytes += n
		return e.limiter.Delay(ctx)
	})
	return stats, err
}

// MirrorFile ensures the file at segments exists locally, downloading it if it
// is absent. It does not pause afterwards; pacing is the caller's job.
func (e *Engine) MirrorFile(ctx context.Context, runID string, repo remote.Repo, segments []string) (Outcome, int64, error) {
	root, err := e.Root(repo)
	if err != nil {
		return "", 0, err
	}
	return e.mirrorFile(ctx, runID, repo, root, segments)
}

func (e *Engine) mirrorFile(ctx context.Context, runID string, repo remote.Repo, root structure.Root, segments []string) (_ Outcome, _ int64, err error) {
	remotePath := repotree.Entry{Segments: segments}.RemotePath()
	local, err := root.File(segments)
	if err != nil {
		return "", 0, fmt.Errorf("file %s: %w", remotePath, err)
	}

	ctx, span := e.tracer.Start(ctx, "mirror.File", trace.WithAttributes(
		attribute.String("file.path", remotePath),
	))
	defer func() { endSpan(span, err) }()

	_, statErr := os.Stat(local)
	switch {
	case statErr == nil:
		e.log.Info("already exists", "path", remotePath)
		span.SetAttributes(attribute.String("outcome", string(Skipped)))
		e.skipped.Add(ctx, 1)
		e.record(ctx, ledger.Event{RunID: runID, Type: ledger.EventFileSkipped, Repo: repo.String(), Path: remotePath})
		return Skipped, 0, nil
	case !errors.Is(statErr, fs.ErrNotExist):
		return "", 0, statErr
	}

	e.log.Info("downloading", "path", remotePath)
	start := time.Now()
	data, err := e.client.FetchFile(ctx, repo, remotePath)
	e.fetchMs.Record(ctx, float64(time.Since(start).Milliseconds()))
	if err != nil {
		return "", 0, err
	}
	if err := os.WriteFile(local, data, FileMode); err != nil {
		return "", 0, err
	}

	n := int64(len(data))
	span.SetAttributes(attribute.String("outcome", string(Downloaded)), attribute.Int64("file.bytes", n))
	e.downloaded.Add(ctx, 1)
	e.bytes.Add(ctx, n)
	e.log.Debug("downloaded", "path", remotePath, "bytes", n)
	e.record(ctx, ledger.Event{RunID: runID, Type: ledger.EventFileDownloaded, Repo: repo.String(), Path: remotePath, Bytes: n})
	return Downloaded, n, nil
}

// RecordRun writes a run-level ledger event. cause is stored on run_failed.
func (e *Engine) RecordRun(ctx context.Context, runID string, repo remote.Repo, typ ledger.EventType, cause error) {
	ev := ledger.Event{RunID: runID, Type: typ, Repo: repo.String()}
	if cause != nil {
		ev.Error = cause.Error()
	}
	// A cancelled run still gets its terminal event.
	e.record(context.WithoutCancel(ctx), ev)
}

// record writes to the ledger. Ledger failures never abort a run.
func (e *Engine) record(ctx context.Context, ev ledger.Event) {
	if ev.At.IsZero() {
		ev.At = e.now()
	}
	if err := e.ledger.Record(ctx, ev); err != nil {
		e.log.Warn("ledger write failed", "event", ev.Type, "path", ev.Path, "error", err)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/alecthomas/kong"
	"github.com/redis/go-redis/v9"

	ghadapter "github.com/tilsley/anonmirror/apps/mirror/internal/adapters/github"
	"github.com/tilsley/anonmirror/apps/mirror/internal/config"
	"github.com/tilsley/anonmirror/apps/mirror/internal/execution"
	"github.com/tilsley/anonmirror/apps/mirror/internal/ledger"
	"github.com/tilsley/anonmirror/apps/mirror/internal/ledger/store"
	"github.com/tilsley/anonmirror/apps/mirror/internal/ledger/store/pgmigrations"
	"github.com/tilsley/anonmirror/apps/mirror/internal/mirror"
	"github.com/tilsley/anonmirror/apps/mirror/internal/platform/anon"
	ghplatform "github.com/tilsley/anonmirror/apps/mirror/internal/platform/github"
	"github.com/tilsley/anonmirror/apps/mirror/internal/platform/postgres"
	temporalplatform "github.com/tilsley/anonmirror/apps/mirror/internal/platform/temporal"
	"github.com/tilsley/anonmirror/apps/mirror/internal/ratelimit"
	"github.com/tilsley/anonmirror/apps/mirror/internal/remote"
	"github.com/tilsley/anonmirror/pkg/logging"
	"github.com/tilsley/anonmirror/pkg/repotree"
	"github.com/tilsley/anonmirror/pkg/telemetry"
)

const (
	exitOK    = 0
	exitFail  = 1
	exitInput = 2

	serviceName         = "anonmirror"
	defaultTemporalHost = "localhost:7233"
	progressInterval    = 30 * time.Second
)

// CLI is the command line of the mirror binary.
type CLI struct {
	URL string `arg:"" name:"url" help:"Repository URL: https://<host>/r/<name> or https://github.com/<owner>/<repo>."`

	Dest      string        `help:"Directory the repository folder is created in." default:"." type:"path"`
	Config    string        `help:"YAML configuration profile." placeholder:"FILE"`
	NoDelay   bool          `help:"Do not pause between downloads."`
	MinDelay  time.Duration `help:"Lower bound of the pause after each download (overrides config)."`
	MaxDelay  time.Duration `help:"Upper bound of the pause after each download (overrides config)."`
	PrintTree bool          `help:"Print the remote tree and exit without writing anything."`
	Temporal  bool          `help:"Run the mirror as a durable Temporal workflow."`
	Verbose   bool          `help:"Enable debug logging." short:"v"`
}

// inputError marks a failure caused by the invocation rather than the run.
type inputError struct{ err error }

func (e inputError) Error() string { return e.err.Error() }
func (e inputError) Unwrap() error { return e.err }

// run parses args, executes the mirror and returns the process exit status.
// Failures are printed to stderr as "err: <message>".
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var cli CLI
	exited, exitCode := false, exitOK
	parser, err := kong.New(&cli,
		kong.Name("anonmirror"),
		kong.Description("Mirror an anonymized repository onto local disk."),
		kong.Writers(stdout, stderr),
		kong.Exit(func(code int) { exited, exitCode = true, code }),
	)
	if err != nil {
		fmt.Fprintf(stderr, "err: %v\n", err)
		return exitFail
	}
	_, err = parser.Parse(args)
	if exited {
		return exitCode
	}
	if err != nil {
		fmt.Fprintf(stderr, "err: %v\n", err)
		return exitInput
	}

	log := logging.NewWithWriter(stderr, logging.FormatText)
	if cli.Verbose {
		log = logging.WithLevel(stderr, logging.FormatText, slog.LevelDebug)
	}

	if err := cli.Run(ctx, log, stdout); err != nil {
		fmt.Fprintf(stderr, "err: %v\n", err)
		var ie inputError
		if errors.As(err, &ie) {
			return exitInput
		}
		return exitFail
	}
	return exitOK
}

// Run mirrors the repository named by c.URL.
func (c *CLI) Run(ctx context.Context, log *slog.Logger, stdout io.Writer) error {
	repo, err := remote.ParseRepoURL(c.URL)
	if err != nil {
		return inputError{err}
	}

	cfg, err := config.Load(c.Config)
	if err != nil {
		return inputError{err}
	}
	if c.MinDelay != 0 || c.MaxDelay != 0 {
		cfg.Delay = config.Delay{Min: c.MinDelay, Max: c.MaxDelay}
		if cfg.Delay.Max == 0 {
			cfg.Delay.Max = cfg.Delay.Min
		}
		if err := cfg.Validate(); err != nil {
			return inputError{err}
		}
	}

	shutdown, err := telemetry.Start(ctx, telemetry.Setup{Enabled: cfg.OTelEnabled, Service: serviceName})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			log.Error("telemetry shutdown failed", "error", err)
		}
	}()

	client, err := newRemote(cfg)
	if err != nil {
		return err
	}

	if c.PrintTree {
		tree, err := client.FetchTree(ctx, repo)
		if err != nil {
			return err
		}
		return repotree.Render(stdout, repo.Name, tree)
	}

	rec, closeLedger, err := openLedger(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeLedger()

	var limiter ratelimit.Limiter = ratelimit.NewJitter(cfg.Delay.Min, cfg.Delay.Max)
	if c.NoDelay {
		limiter = ratelimit.None{}
	}
	engine := mirror.New(client, c.Dest,
		mirror.WithLogger(log),
		mirror.WithLimiter(limiter),
		mirror.WithLedger(rec),
	)

	if c.Temporal {
		return c.runDurable(ctx, log, cfg, engine, client, repo)
	}

	stats, err := engine.Run(ctx, repo)
	if err != nil {
		return err
	}
	log.Info("mirror complete", "run", stats.RunID, "downloaded", stats.Downloaded, "skipped", stats.Skipped, "bytes", stats.Bytes)
	logSummary(ctx, log, rec, stats.RunID)
	return nil
}

// runDurable hosts a worker in-process and drives the mirror through it.
func (c *CLI) runDurable(ctx context.Context, log *slog.Logger, cfg config.Config, engine *mirror.Engine, client remote.Client, repo remote.Repo) error {
	hostPort := cfg.TemporalHostPort
	if hostPort == "" {
		hostPort = defaultTemporalHost
	}
	tc, err := temporalplatform.Dial(hostPort, log)
	if err != nil {
		return err
	}
	defer tc.Close()

	w, err := temporalplatform.NewWorker(tc, execution.NewActivities(engine, client, log), cfg.OTelEnabled)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return fmt.Errorf("temporal worker: %w", err)
	}
	defer w.Stop()
	log.Info("temporal worker started", "taskQueue", temporalplatform.TaskQueue)

	launcher := temporalplatform.NewLauncher(tc)
	in := execution.MirrorInput{
		RunID:    engine.NewRunID(),
		Repo:     repo,
		MinDelay: cfg.Delay.Min,
		MaxDelay: cfg.Delay.Max,
		NoDelay:  c.NoDelay,
	}
	wr, err := launcher.Start(ctx, in)
	if err != nil {
		return err
	}
	log.Info("workflow started", "workflowId", wr.GetID(), "run", in.RunID)

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go watchProgress(watchCtx, log, launcher, wr.GetID())

	var res execution.MirrorResult
	if err := wr.Get(ctx, &res); err != nil {
		return fmt.Errorf("workflow %s: %w", wr.GetID(), err)
	}
	log.Info("mirror complete", "run", res.RunID, "downloaded", res.Downloaded, "skipped", res.Skipped, "bytes", res.Bytes, "paused", res.Paused)
	return nil
}

func watchProgress(ctx context.Context, log *slog.Logger, l *temporalplatform.Launcher, workflowID string) {
	t := time.NewTicker(progressInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			st, err := l.Status(ctx, workflowID)
			if err != nil || st.Progress == nil {
				continue
			}
			p := st.Progress
			log.Info("progress", "state", st.State, "files", p.Files, "downloaded", p.Downloaded, "skipped", p.Skipped, "current", p.Current)
		}
	}
}

// newRemote routes anonymized repos to the anon client and github.com repos
// to the GitHub adapter.
func newRemote(cfg config.Config) (*remote.Mux, error) {
	ac, err := anon.NewClient(cfg.BaseURL, cfg.Headers.HTTPHeader(), anon.WithTimeout(cfg.RequestTimeout))
	if err != nil {
		return nil, err
	}

	mux := remote.NewMux().Handle(remote.SourceAnon, ac)
	if cfg.UsesGitHubApp() {
		gh, err := ghplatform.NewAppClient(cfg.GitHub.AppID, cfg.GitHub.InstallationID, cfg.GitHub.PrivateKeyPath, cfg.GitHub.BaseURL)
		if err != nil {
			return nil, err
		}
		return mux.Handle(remote.SourceGitHub, ghadapter.New(gh)), nil
	}
	gh, err := ghplatform.NewTokenClient(cfg.GitHub.Token, cfg.GitHub.BaseURL)
	if err != nil {
		return nil, err
	}
	return mux.Handle(remote.SourceGitHub, ghadapter.New(gh)), nil
}

// openLedger picks Redis, then Postgres, then no ledger at all.
func openLedger(ctx context.Context, cfg config.Config, log *slog.Logger) (ledger.Recorder, func(), error) {
	switch {
	case cfg.RedisAddr != "":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		log.Debug("ledger", "store", "redis", "addr", cfg.RedisAddr)
		return store.NewRedisRecorder(rdb), func() { _ = rdb.Close() }, nil
	case cfg.PostgresURL != "":
		pool, err := postgres.New(ctx, cfg.PostgresURL, pgmigrations.FS)
		if err != nil {
			return nil, nil, fmt.Errorf("ledger: %w", err)
		}
		log.Debug("ledger", "store", "postgres")
		return store.NewPGRecorder(pool), pool.Close, nil
	default:
		return ledger.Nop{}, func() {}, nil
	}
}

func logSummary(ctx context.Context, log *slog.Logger, rec ledger.Recorder, runID string) {
	s, err := rec.Summary(ctx, runID)
	if err != nil {
		log.Warn("ledger summary failed", "run", runID, "error", err)
		return
	}
	if s == nil {
		return
	}
	log.Debug("ledger summary", "run", s.RunID, "status", s.Status, "downloaded", s.Downloaded, "skipped", s.Skipped, "bytes", s.Bytes)
}

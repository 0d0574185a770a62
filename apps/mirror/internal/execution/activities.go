package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.temporal.io/sdk/temporal"

	"github.com/tilsley/anonmirror/apps/mirror/internal/mirror"
	"github.com/tilsley/anonmirror/apps/mirror/internal/remote"
	"github.com/tilsley/anonmirror/apps/mirror/internal/structure"
	"github.com/tilsley/anonmirror/pkg/repotree"
)

const instrName = "github.com/tilsley/anonmirror/execution"

// MaxTreePayload is the largest encoded tree FetchTree hands to the workflow.
// It matches the Temporal server's default blob size limit; larger trees must
// be mirrored without --temporal.
const MaxTreePayload = 2 << 20

// ErrTypeTreeTooLarge is the application error type FetchTree returns when
// the tree exceeds MaxTreePayload.
const ErrTypeTreeTooLarge = "TreeTooLarge"

// Activities groups the Temporal activity methods. Dependencies are injected
// at worker startup.
type Activities struct {
	engine *mirror.Engine
	client remote.Client
	log    *slog.Logger
}

// NewActivities creates an Activities backed by engine for disk work and
// client for tree reads.
func NewActivities(engine *mirror.Engine, client remote.Client, log *slog.Logger) *Activities {
	return &Activities{engine: engine, client: client, log: log}
}

// FetchTree reads the remote tree of the repo.
func (a *Activities) FetchTree(ctx context.Context, in FetchTreeInput) (repotree.Tree, error) {
	ctx, span := otel.Tracer(instrName).Start(ctx, "FetchTree",
		trace.WithAttributes(
			attribute.String("run.id", in.RunID),
			attribute.String("repo", in.Repo.String()),
		),
	)
	defer span.End()

	tree, err := a.client.FetchTree(ctx, in.Repo)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s := tree.Stats()
	a.log.Info("fetched tree", "run", in.RunID, "repo", in.Repo.String(), "dirs", s.Dirs, "files", s.Files, "bytes", s.Bytes)

	encoded, err := json.Marshal(tree)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("encode tree: %w", err)
	}
	if len(encoded) > MaxTreePayload {
		err := temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("tree of %s is %d bytes encoded, over the %d byte payload limit", in.Repo, len(encoded), MaxTreePayload),
			ErrTypeTreeTooLarge, nil)
		span.RecordError(err)
		return nil, err
	}
	return tree, nil
}

// BuildStructure reads the tree of the repo and creates the repo root and
// every directory in it.
func (a *Activities) BuildStructure(ctx context.Context, in BuildStructureInput) error {
	ctx, span := otel.Tracer(instrName).Start(ctx, "BuildStructure",
		trace.WithAttributes(
			attribute.String("run.id", in.RunID),
			attribute.String("repo", in.Repo.String()),
		),
	)
	defer span.End()

	root, err := a.engine.Root(in.Repo)
	if err != nil {
		span.RecordError(err)
		return err
	}
	tree, err := a.client.FetchTree(ctx, in.Repo)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if err := structure.Build(root, tree); err != nil {
		span.RecordError(err)
		return fmt.Errorf("build %s: %w", root.Path(), err)
	}
	return nil
}

// DownloadFile mirrors a single file, skipping it when it already exists.
func (a *Activities) DownloadFile(ctx context.Context, in DownloadFileInput) (DownloadFileResult, error) {
	outcome, n, err := a.engine.MirrorFile(ctx, in.RunID, in.Repo, in.Segments)
	if err != nil {
		return DownloadFileResult{}, err
	}
	return DownloadFileResult{Outcome: outcome, Bytes: n}, nil
}

// RecordRun writes a run-level ledger event.
func (a *Activities) RecordRun(ctx context.Context, in RecordRunInput) error {
	var cause error
	if in.Error != "" {
		cause = errors.New(in.Error)
	}
	a.engine.RecordRun(ctx, in.RunID, in.Repo, in.Type, cause)
	return nil
}

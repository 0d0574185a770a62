// Package execution runs a mirror as a Temporal workflow so that a long,
// heavily throttled download survives process restarts.
package execution

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/tilsley/anonmirror/apps/mirror/internal/ledger"
	"github.com/tilsley/anonmirror/apps/mirror/internal/mirror"
	"github.com/tilsley/anonmirror/apps/mirror/internal/ratelimit"
	"github.com/tilsley/anonmirror/pkg/repotree"
)

// MirrorWorkflow mirrors one repository.
//
//  1. FetchTree reads the remote tree. Its encoded size must stay under
//     MaxTreePayload.
//  2. BuildStructure reads the tree again on the worker and creates every
//     directory, so only one tree payload is stored in history.
//  3. DownloadFile runs once per file in walk order. After each download the
//     workflow sleeps for a jittered delay drawn inside a SideEffect, so the
//     pause is durable and replays identically.
//
// Activities are never retried: the first failure ends the workflow, and a
// new run resumes from what is already on disk.
func MirrorWorkflow(ctx workflow.Context, in MirrorInput) (MirrorResult, error) {
	log := workflow.GetLogger(ctx)
	res := MirrorResult{RunID: in.RunID, Repo: in.Repo.String(), Status: StatusRunning}

	if err := workflow.SetQueryHandler(ctx, ProgressQuery, func() (MirrorResult, error) {
		return res, nil
	}); err != nil {
		return MirrorResult{}, fmt.Errorf("register query handler: %w", err)
	}

	actCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		TaskQueue:           workflow.GetInfo(ctx).TaskQueueName,
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	recordRun := func(typ ledger.EventType, cause error) {
		rctx, _ := workflow.NewDisconnectedContext(actCtx)
		input := RecordRunInput{RunID: in.RunID, Repo: in.Repo, Type: typ}
		if cause != nil {
			input.Error = cause.Error()
		}
		if err := workflow.ExecuteActivity(rctx, ActivityRecordRun, input).Get(rctx, nil); err != nil {
			log.Warn("ledger write failed", "event", typ, "error", err)
		}
	}

	recordRun(ledger.EventRunStarted, nil)
	if err := mirrorTree(ctx, actCtx, in, &res); err != nil {
		res.Status = StatusFailed
		recordRun(ledger.EventRunFailed, err)
		return MirrorResult{}, err
	}
	res.Status = StatusCompleted
	res.Current = ""
	recordRun(ledger.EventRunCompleted, nil)
	return res, nil
}

// mirrorTree updates *progress as it goes so the query handler sees live counts.
func mirrorTree(ctx, actCtx workflow.Context, in MirrorInput, progress *MirrorResult) error {
	var tree repotree.Tree
	if err := workflow.ExecuteActivity(actCtx, ActivityFetchTree, FetchTreeInput{RunID: in.RunID, Repo: in.Repo}).Get(ctx, &tree); err != nil {
		return fmt.Errorf("fetch tree: %w", err)
	}
	files := fileSegments(tree)
	progress.Files = len(files)

	if err := workflow.ExecuteActivity(actCtx, ActivityBuildStructure, BuildStructureInput{RunID: in.RunID, Repo: in.Repo}).Get(ctx, nil); err != nil {
		return fmt.Errorf("build structure: %w", err)
	}

	jitter := ratelimit.Jitter{Min: in.MinDelay, Max: in.MaxDelay}
	for _, segs := range files {
		progress.Current = repotree.Entry{Segments: segs}.RemotePath()

		var out DownloadFileResult
		input := DownloadFileInput{RunID: in.RunID, Repo: in.Repo, Segments: segs}
		if err := workflow.ExecuteActivity(actCtx, ActivityDownloadFile, input).Get(ctx, &out); err != nil {
			return fmt.Errorf("download %s: %w", progress.Current, err)
		}
		if out.Outcome == mirror.Skipped {
			progress.Skipped++
			continue
		}
		progress.Downloaded++
		progress.Bytes += out.Bytes

		if in.NoDelay {
			continue
		}
		var d time.Duration
		if err := workflow.SideEffect(ctx, func(workflow.Context) any {
			return jitter.Next()
		}).Get(&d); err != nil {
			return fmt.Errorf("draw delay: %w", err)
		}
		if err := workflow.Sleep(ctx, d); err != nil {
			return err
		}
		progress.Paused += d
	}
	return nil
}

func fileSegments(t repotree.Tree) [][]string {
	var out [][]string
	_ = t.Walk(func(e repotree.Entry) error {
		if e.IsFile() {
			out = append(out, e.Segments)
		}
		return nil
	})
	return out
}

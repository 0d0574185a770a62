// Package temporalplatform starts and inspects mirror workflows on Temporal.
package temporalplatform

import (
	"context"
	"fmt"
	"log/slog"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/interceptor"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	otelcontrib "go.temporal.io/sdk/contrib/opentelemetry"

	"github.com/tilsley/anonmirror/apps/mirror/internal/execution"
)

// TaskQueue is the queue the mirror worker polls.
const TaskQueue = "anonmirror"

// Workflow run states reported by Status.
const (
	StateRunning   = "RUNNING"
	StateCompleted = "COMPLETED"
	StateFailed    = "FAILED"
	StateUnknown   = "UNKNOWN"
)

// Status is a snapshot of a mirror workflow.
type Status struct {
	State    string
	Progress *execution.MirrorResult
}

// Launcher starts mirror workflows and reads their progress.
type Launcher struct {
	c client.Client
}

// NewLauncher creates a Launcher over an existing Temporal client.
func NewLauncher(c client.Client) *Launcher {
	return &Launcher{c: c}
}

// WorkflowID is the deterministic workflow ID for a run.
func WorkflowID(in execution.MirrorInput) string {
	return "mirror-" + in.Repo.String() + "-" + in.RunID
}

// Start begins a MirrorWorkflow on TaskQueue.
func (l *Launcher) Start(ctx context.Context, in execution.MirrorInput) (client.WorkflowRun, error) {
	run, err := l.c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        WorkflowID(in),
		TaskQueue: TaskQueue,
	}, execution.WorkflowName, in)
	if err != nil {
		return nil, fmt.Errorf("start workflow %q: %w", execution.WorkflowName, err)
	}
	return run, nil
}

// Status describes the workflow and, while it runs, queries live progress.
func (l *Launcher) Status(ctx context.Context, workflowID string) (*Status, error) {
	desc, err := l.c.DescribeWorkflowExecution(ctx, workflowID, "")
	if err != nil {
		return nil, fmt.Errorf("describe workflow %q: %w", workflowID, err)
	}
	st := &Status{State: MapStatus(desc.GetWorkflowExecutionInfo().GetStatus())}
	if st.State != StateRunning {
		return st, nil
	}

	val, err := l.c.QueryWorkflow(ctx, workflowID, "", execution.ProgressQuery)
	if err != nil {
		return st, nil //nolint:nilerr // progress is best effort while the workflow starts up
	}
	var p execution.MirrorResult
	if err := val.Get(&p); err == nil {
		st.Progress = &p
	}
	return st, nil
}

// MapStatus folds Temporal's execution states into the four Launcher states.
func MapStatus(s enumspb.WorkflowExecutionStatus) string {
	switch s {
	case enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING:
		return StateRunning
	case enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		return StateCompleted
	case enumspb.WORKFLOW_EXECUTION_STATUS_FAILED,
		enumspb.WORKFLOW_EXECUTION_STATUS_CANCELED,
		enumspb.WORKFLOW_EXECUTION_STATUS_TERMINATED,
		enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT:
		return StateFailed
	case enumspb.WORKFLOW_EXECUTION_STATUS_UNSPECIFIED,
		enumspb.WORKFLOW_EXECUTION_STATUS_CONTINUED_AS_NEW:
		return StateUnknown
	default:
		return StateUnknown
	}
}

// NewWorker builds a worker on TaskQueue with the mirror workflow and acts
// registered. Tracing adds the OpenTelemetry interceptor.
func NewWorker(c client.Client, acts *execution.Activities, tracing bool) (worker.Worker, error) {
	opts := worker.Options{}
	if tracing {
		ti, err := otelcontrib.NewTracingInterceptor(otelcontrib.TracerOptions{})
		if err != nil {
			return nil, fmt.Errorf("temporal tracing interceptor: %w", err)
		}
		opts.Interceptors = []interceptor.WorkerInterceptor{ti}
	}

	w := worker.New(c, TaskQueue, opts)
	w.RegisterWorkflowWithOptions(execution.MirrorWorkflow, workflow.RegisterOptions{Name: execution.WorkflowName})
	w.RegisterActivity(acts)
	return w, nil
}

// Dial connects to Temporal at hostPort, logging through log.
func Dial(hostPort string, log *slog.Logger) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort: hostPort,
		Logger:   tlog.NewStructuredLogger(log),
	})
	if err != nil {
		return nil, fmt.Errorf("temporal dial %s: %w", hostPort, err)
	}
	return c, nil
}

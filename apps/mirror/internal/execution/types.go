package execution

import (
	"time"

	"github.com/tilsley/anonmirror/apps/mirror/internal/ledger"
	"github.com/tilsley/anonmirror/apps/mirror/internal/mirror"
	"github.com/tilsley/anonmirror/apps/mirror/internal/remote"
)

// Names under which the workflow, its query and its activities are registered.
const (
	WorkflowName  = "MirrorWorkflow"
	ProgressQuery = "progress"

	ActivityFetchTree      = "FetchTree"
	ActivityBuildStructure = "BuildStructure"
	ActivityDownloadFile   = "DownloadFile"
	ActivityRecordRun      = "RecordRun"
)

// Result statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// MirrorInput starts a MirrorWorkflow.
type MirrorInput struct {
	RunID    string        `json:"runId"`
	Repo     remote.Repo   `json:"repo"`
	MinDelay time.Duration `json:"minDelay"`
	MaxDelay time.Duration `json:"maxDelay"`
	NoDelay  bool          `json:"noDelay,omitempty"`
}

// MirrorResult is both the workflow result and the progress query answer.
type MirrorResult struct {
	RunID      string        `json:"runId"`
	Repo       string        `json:"repo"`
	Status     string        `json:"status"`
	Files      int           `json:"files"`
	Downloaded int           `json:"downloaded"`
	Skipped    int           `json:"skipped"`
	Bytes      int64         `json:"bytes"`
	Paused     time.Duration `json:"paused"`
	Current    string        `json:"current,omitempty"`
}

// FetchTreeInput is the input for the FetchTree activity.
type FetchTreeInput struct {
	RunID string      `json:"runId"`
	Repo  remote.Repo `json:"repo"`
}

// BuildStructureInput is the input for the BuildStructure activity. The
// activity reads the tree itself so it crosses the payload boundary once.
type BuildStructureInput struct {
	RunID string      `json:"runId"`
	Repo  remote.Repo `json:"repo"`
}

// DownloadFileInput is the input for the DownloadFile activity.
type DownloadFileInput struct {
	RunID    string      `json:"runId"`
	Repo     remote.Repo `json:"repo"`
	Segments []string    `json:"segments"`
}

// DownloadFileResult is the output of the DownloadFile activity.
type DownloadFileResult struct {
	Outcome mirror.Outcome `json:"outcome"`
	Bytes   int64          `json:"bytes"`
}

// RecordRunInput is the input for the RecordRun activity.
type RecordRunInput struct {
	RunID string           `json:"runId"`
	Repo  remote.Repo      `json:"repo"`
	Type  ledger.EventType `json:"type"`
	Error string           `json:"error,omitempty"`
}

package execution_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/tilsley/anonmirror/apps/mirror/internal/execution"
	"github.com/tilsley/anonmirror/apps/mirror/internal/ledger"
	"github.com/tilsley/anonmirror/apps/mirror/internal/mirror"
	"github.com/tilsley/anonmirror/apps/mirror/internal/ratelimit"
	"github.com/tilsley/anonmirror/apps/mirror/internal/remote"
	"github.com/tilsley/anonmirror/pkg/repotree"
)

type stubClient struct {
	tree        repotree.Tree
	files       map[string]string
	fetched     int
	treeFetches int
}

func (s *stubClient) FetchTree(context.Context, remote.Repo) (repotree.Tree, error) {
	s.treeFetches++
	return s.tree, nil
}

func (s *stubClient) FetchFile(_ context.Context, _ remote.Repo, p string) ([]byte, error) {
	s.fetched++
	return []byte(s.files[p]), nil
}

func newRealActivities(t *testing.T) (*execution.Activities, *stubClient, *ledger.Memory, string) {
	t.Helper()
	dest := t.TempDir()
	client := &stubClient{
		tree:  scenarioTree(),
		files: map[string]string{"/a.txt": "A", "/c.txt": "CCC", "/sub/b.txt": "BB"},
	}
	mem := ledger.NewMemory()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := mirror.New(client, dest,
		mirror.WithLogger(log),
		mirror.WithLimiter(ratelimit.None{}),
		mirror.WithLedger(mem),
	)
	return execution.NewActivities(engine, client, log), client, mem, dest
}

func TestActivities_EndToEnd(t *testing.T) {
	acts, client, mem, dest := newRealActivities(t)
	ts := &testsuite.WorkflowTestSuite{}
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivity(acts)

	val, err := env.ExecuteActivity(acts.FetchTree, execution.FetchTreeInput{RunID: "run-1", Repo: repo})
	require.NoError(t, err)
	var tree repotree.Tree
	require.NoError(t, val.Get(&tree))
	assert.Equal(t, []string{"a.txt", "c.txt", "sub"}, tree.Names())

	_, err = env.ExecuteActivity(acts.BuildStructure, execution.BuildStructureInput{RunID: "run-1", Repo: repo})
	require.NoError(t, err)
	assert.Equal(t, 2, client.treeFetches)
	info, err := os.Stat(filepath.Join(dest, "X", "sub"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	in := execution.DownloadFileInput{RunID: "run-1", Repo: repo, Segments: []string{"sub", "b.txt"}}
	val, err = env.ExecuteActivity(acts.DownloadFile, in)
	require.NoError(t, err)
	var out execution.DownloadFileResult
	require.NoError(t, val.Get(&out))
	assert.Equal(t, execution.DownloadFileResult{Outcome: mirror.Downloaded, Bytes: 2}, out)

	b, err := os.ReadFile(filepath.Join(dest, "X", "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "BB", string(b))

	val, err = env.ExecuteActivity(acts.DownloadFile, in)
	require.NoError(t, err)
	require.NoError(t, val.Get(&out))
	assert.Equal(t, mirror.Skipped, out.Outcome)
	assert.Equal(t, 1, client.fetched)

	_, err = env.ExecuteActivity(acts.RecordRun, execution.RecordRunInput{
		RunID: "run-1", Repo: repo, Type: ledger.EventRunFailed, Error: "boom",
	})
	require.NoError(t, err)

	s, err := mem.Summary(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusFailed, s.Status)
	assert.Equal(t, "boom", s.Error)
	assert.Equal(t, 1, s.Downloaded)
	assert.Equal(t, 1, s.Skipped)
}

func TestFetchTree_RejectsOversizedTree(t *testing.T) {
	acts, client, _, _ := newRealActivities(t)
	long := strings.Repeat("n", 1024)
	client.tree = repotree.Tree{}
	for i := 0; i < 2100; i++ {
		client.tree[fmt.Sprintf("%s-%04d", long, i)] = repotree.File{Size: 1}
	}

	ts := &testsuite.WorkflowTestSuite{}
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivity(acts)

	_, err := env.ExecuteActivity(acts.FetchTree, execution.FetchTreeInput{RunID: "run-1", Repo: repo})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payload limit")

	var appErr *temporal.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, execution.ErrTypeTreeTooLarge, appErr.Type())
	assert.True(t, appErr.NonRetryable())
}

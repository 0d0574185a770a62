// Package github implements remote.Client for github.com repositories using
// the official go-github library. Wire it up with an authenticated
// *github.Client from platform/github.
package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gogithub "github.com/google/go-github/v75/github"

	"github.com/tilsley/anonmirror/apps/mirror/internal/remote"
	"github.com/tilsley/anonmirror/pkg/repotree"
)

// Compile-time check: *Adapter implements remote.Client.
var _ remote.Client = (*Adapter)(nil)

// ErrTruncatedTree is returned when GitHub cannot list the whole tree in one response.
var ErrTruncatedTree = errors.New("github tree listing truncated")

// Adapter reads a repository's default branch through the Git Trees and
// Contents APIs.
type Adapter struct {
	gh *gogithub.Client
}

// New creates an Adapter from an authenticated *github.Client.
func New(gh *gogithub.Client) *Adapter {
	return &Adapter{gh: gh}
}

// FetchTree lists the default branch recursively. Blobs become files and trees
// become directories. Submodule entries are left out.
func (a *Adapter) FetchTree(ctx context.Context, repo remote.Repo) (repotree.Tree, error) {
	path := "/" + repo.String()

	r, _, err := a.gh.Repositories.Get(ctx, repo.Owner, repo.Name)
	if err != nil {
		return nil, &remote.FetchError{Op: remote.OpFetchStructure, Path: path, Err: fmt.Errorf("get repository: %w", err)}
	}
	branch := r.GetDefaultBranch()

	gt, _, err := a.gh.Git.GetTree(ctx, repo.Owner, repo.Name, branch, true)
	if err != nil {
		return nil, &remote.FetchError{Op: remote.OpFetchStructure, Path: path, Err: fmt.Errorf("get tree %s: %w", branch, err)}
	}
	if gt.GetTruncated() {
		return nil, &remote.FetchError{Op: remote.OpFetchStructure, Path: path, Err: ErrTruncatedTree}
	}

	tree := repotree.Tree{}
	for _, e := range gt.Entries {
		var node repotree.Node
		switch e.GetType() {
		case "blob":
			node = repotree.File{Size: int64(e.GetSize())}
		case "tree":
			node = repotree.Dir{Children: repotree.Tree{}}
		default:
			continue
		}
		if err := tree.Insert(strings.Split(e.GetPath(), "/"), node); err != nil {
			return nil, &remote.FetchError{Op: remote.OpFetchStructure, Path: path, Err: err}
		}
	}
	return tree, nil
}

// FetchFile downloads remotePath from the default branch.
func (a *Adapter) FetchFile(ctx context.Context, repo remote.Repo, remotePath string) ([]byte, error) {
	rc, _, err := a.gh.Repositories.DownloadContents(ctx, repo.Owner, repo.Name, strings.TrimPrefix(remotePath, "/"), nil)
	if err != nil {
		return nil, &remote.FetchError{Op: remote.OpFetchFile, Path: remotePath, Err: err}
	}
	defer func() { //nolint:errcheck // body close errors are non-actionable after reading
		_ = rc.Close()
	}()

	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, &remote.FetchError{Op: remote.OpFetchFile, Path: remotePath, Err: err}
	}
	return b, nil
}

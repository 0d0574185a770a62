// Package remote defines the port the mirror engine uses to read a hosted
// repository, plus the input URL parsing that selects which host to read.
package remote

import (
	"context"

	"github.com/tilsley/anonmirror/pkg/repotree"
)

// Client is the port the mirror engine depends on to read a remote repository.
// remotePath is rooted at "/" and uses "/" separators.
type Client interface {
	FetchTree(ctx context.Context, repo Repo) (repotree.Tree, error)
	FetchFile(ctx context.Context, repo Repo, remotePath string) ([]byte, error)
}

// Compile-time check: *Mux implements Client.
var _ Client = (*Mux)(nil)

// Mux routes each call to the Client registered for the repo's Source.
type Mux struct {
	clients map[Source]Client
}

// NewMux creates an empty Mux.
func NewMux() *Mux {
	return &Mux{clients: make(map[Source]Client)}
}

// Handle registers c for src, replacing any previous registration.
func (m *Mux) Handle(src Source, c Client) *Mux {
	m.clients[src] = c
	return m
}

// FetchTree implements Client.
func (m *Mux) FetchTree(ctx context.Context, repo Repo) (repotree.Tree, error) {
	c, err := m.client(repo.Source)
	if err != nil {
		return nil, err
	}
	return c.FetchTree(ctx, repo)
}

// FetchFile implements Client.
func (m *Mux) FetchFile(ctx context.Context, repo Repo, remotePath string) ([]byte, error) {
	c, err := m.client(repo.Source)
	if err != nil {
		return nil, err
	}
	return c.FetchFile(ctx, repo, remotePath)
}

func (m *Mux) client(src Source) (Client, error) {
	c, ok := m.clients[src]
	if !ok {
		return nil, UnsupportedSourceError{Source: src}
	}
	return c, nil
}

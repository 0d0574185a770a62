// Package server is an in-memory stand-in for the anonymized repository
// service, used for local end-to-end runs of the mirror.
package server

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tilsley/anonmirror/pkg/repotree"
)

// Store holds repositories keyed by name. Paths are slash separated and
// relative to the repository root.
type Store struct {
	mu    sync.RWMutex
	files map[string]map[string][]byte
	dirs  map[string]map[string]bool
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		files: make(map[string]map[string][]byte),
		dirs:  make(map[string]map[string]bool),
	}
}

// PutFile stores content at p in repo, replacing any previous content.
func (s *Store) PutFile(repo, p string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.files[repo] == nil {
		s.files[repo] = make(map[string][]byte)
	}
	s.files[repo][clean(p)] = content
}

// PutDir records a directory so that it appears in the tree even when empty.
// An empty p registers repo itself.
func (s *Store) PutDir(repo, p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dirs[repo] == nil {
		s.dirs[repo] = make(map[string]bool)
	}
	s.dirs[repo][clean(p)] = true
}

// Repos lists the stored repository names in order.
func (s *Store) Repos() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]bool{}
	for r := range s.files {
		seen[r] = true
	}
	for r := range s.dirs {
		seen[r] = true
	}
	out := make([]string, 0, len(seen))
	for r := range seen {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Tree builds the repository tree the service would return. ok is false for
// an unknown repo.
func (s *Store) Tree(repo string) (_ repotree.Tree, ok bool, _ error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	files, hasFiles := s.files[repo]
	dirs, hasDirs := s.dirs[repo]
	if !hasFiles && !hasDirs {
		return nil, false, nil
	}

	t := repotree.Tree{}
	for d := range dirs {
		if d == "" {
			continue
		}
		if err := t.Insert(strings.Split(d, "/"), repotree.Dir{Children: repotree.Tree{}}); err != nil {
			return nil, true, err
		}
	}
	for p, content := range files {
		if err := t.Insert(strings.Split(p, "/"), repotree.File{Size: int64(len(content))}); err != nil {
			return nil, true, err
		}
	}
	return t, true, nil
}

// File returns the content at p in repo.
func (s *Store) File(repo, p string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.files[repo][clean(p)]
	return content, ok
}

// LoadDir adds every subdirectory of root as a repository named after it.
func (s *Store) LoadDir(root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("seed dir: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := s.loadRepo(e.Name(), filepath.Join(root, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) loadRepo(repo, dir string) error {
	s.PutDir(repo, "")
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil || rel == "." {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			s.PutDir(repo, rel)
			return nil
		}
		content, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		s.PutFile(repo, rel, content)
		return nil
	})
}

func clean(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

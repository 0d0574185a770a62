// Package repotree models the file/directory layout of a hosted repository as
// returned by the remote tree endpoint.
//
// The wire shape is a nested JSON object keyed by path segment. An object that
// carries a numeric "size" member is a file; every other object is a directory
// whose members are its children:
//
//	{"a.txt": {"size": 10}, "sub": {"b.txt": {"size": 5}}}
//
// Decoding resolves each member into a Dir or a File once, so callers switch on
// the concrete type instead of probing for fields.
package repotree

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// MaxDepth bounds directory nesting accepted from the wire.
const MaxDepth = 512

// ErrTooDeep is returned when a decoded tree nests deeper than MaxDepth.
var ErrTooDeep = errors.New("tree exceeds maximum depth")

// Node is either a Dir or a File.
type Node interface {
	isNode()
}

// Dir is a directory node. Its children are keyed by path segment.
type Dir struct {
	Children Tree
}

// File is a leaf node. Size is the remote byte count and is informational only.
type File struct {
	Size int64
}

func (Dir) isNode()  {}
func (File) isNode() {}

// Tree maps a path segment to a child node. The root Tree has no name.
type Tree map[string]Node

// Entry is a node visited by Walk, with the segments leading to it from the root.
type Entry struct {
	Segments []string
	Node     Node
}

// Name returns the last path segment of the entry.
func (e Entry) Name() string {
	if len(e.Segments) == 0 {
		return ""
	}
	return e.Segments[len(e.Segments)-1]
}

// RemotePath returns the slash-separated path of the entry rooted at "/".
func (e Entry) RemotePath() string {
	return "/" + strings.Join(e.Segments, "/")
}

// IsFile reports whether the entry is a file leaf.
func (e Entry) IsFile() bool {
	_, ok := e.Node.(File)
	return ok
}

// SkipDir can be returned from a WalkFunc to skip the children of a directory.
var SkipDir = errors.New("skip this directory")

// WalkFunc is called for every node visited by Walk.
type WalkFunc func(e Entry) error

// Walk visits every node depth-first, parents before children and siblings in
// name order. It uses an explicit stack, so nesting depth is not limited by the
// goroutine stack. A non-nil error from fn stops the walk and is returned,
// except SkipDir which only prunes the current directory.
func (t Tree) Walk(fn WalkFunc) error {
	stack := pushChildren(nil, nil, t)
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		err := fn(e)
		if errors.Is(err, SkipDir) {
			continue
		}
		if err != nil {
			return err
		}
		if d, ok := e.Node.(Dir); ok {
			stack = pushChildren(stack, e.Segments, d.Children)
		}
	}
	return nil
}

// pushChildren appends the children of t in reverse name order so that popping
// yields them in name order.
func pushChildren(stack []Entry, prefix []string, t Tree) []Entry {
	names := t.Names()
	for i := len(names) - 1; i >= 0; i-- {
		segs := make([]string, len(prefix)+1)
		copy(segs, prefix)
		segs[len(prefix)] = names[i]
		stack = append(stack, Entry{Segments: segs, Node: t[names[i]]})
	}
	return stack
}

// Names returns the keys of t in sorted order.
func (t Tree) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stats summarises a tree.
type Stats struct {
	Dirs  int
	Files int
	Bytes int64
}

// Stats counts directories, files and the total advertised file size.
func (t Tree) Stats() Stats {
	var s Stats
	_ = t.Walk(func(e Entry) error {
		switch n := e.Node.(type) {
		case Dir:
			s.Dirs++
		case File:
			s.Files++
			s.Bytes += n.Size
		}
		return nil
	})
	return s
}

// Insert places node at the given segments, creating intermediate directories.
// Inserting a Dir where a Dir already exists keeps the existing children.
func (t Tree) Insert(segments []string, node Node) error {
	if len(segments) == 0 {
		return errors.New("insert: empty path")
	}
	cur := t
	for i, seg := range segments[:len(segments)-1] {
		existing, ok := cur[seg]
		if !ok {
			d := Dir{Children: Tree{}}
			cur[seg] = d
			cur = d.Children
			continue
		}
		d, isDir := existing.(Dir)
		if !isDir {
			return fmt.Errorf("insert %s: %q is a file", strings.Join(segments, "/"), strings.Join(segments[:i+1], "/"))
		}
		if d.Children == nil {
			d.Children = Tree{}
			cur[seg] = d
		}
		cur = d.Children
	}

	last := segments[len(segments)-1]
	if _, isDir := node.(Dir); isDir {
		if existing, ok := cur[last].(Dir); ok && existing.Children != nil {
			return nil
		}
	}
	cur[last] = node
	return nil
}

// Package structure maps repository tree entries onto the local filesystem
// and materializes the directory skeleton of a mirror.
package structure

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// UnsafePathError is returned when a tree segment would escape the mirror root
// or cannot be used as a single path element.
type UnsafePathError struct {
	Segment string
	Reason  string
}

// Error implements the error interface.
func (e *UnsafePathError) Error() string {
	return fmt.Sprintf("unsafe path segment %q: %s", e.Segment, e.Reason)
}

// Root anchors every local path of one mirror under <dest>/<repo name>.
type Root struct {
	dir string
}

// NewRoot returns the Root for repoName beneath dest. An empty dest means the
// current directory.
func NewRoot(dest, repoName string) (Root, error) {
	if err := checkSegment(repoName); err != nil {
		return Root{}, err
	}
	if dest == "" {
		dest = "."
	}
	abs, err := filepath.Abs(dest)
	if err != nil {
		return Root{}, fmt.Errorf("resolve destination %s: %w", dest, err)
	}
	return Root{dir: filepath.Join(abs, repoName)}, nil
}

// Path returns the absolute mirror root directory.
func (r Root) Path() string { return r.dir }

// Dir returns the local directory for a tree directory. Segments are used verbatim.
func (r Root) Dir(segments []string) (string, error) {
	for _, s := range segments {
		if err := checkSegment(s); err != nil {
			return "", err
		}
	}
	return filepath.Join(append([]string{r.dir}, segments...)...), nil
}

// File returns the local path for a tree file. Directory segments are used
// verbatim and the file name is encoded with EncodeFileName.
func (r Root) File(segments []string) (string, error) {
	if len(segments) == 0 {
		return "", errors.New("file path has no segments")
	}
	dir, err := r.Dir(segments[:len(segments)-1])
	if err != nil {
		return "", err
	}
	name := segments[len(segments)-1]
	if err := checkSegment(name); err != nil {
		return "", err
	}
	return filepath.Join(dir, EncodeFileName(name)), nil
}

func checkSegment(s string) error {
	switch {
	case s == "":
		return &UnsafePathError{Segment: s, Reason: "empty"}
	case s == "." || s == "..":
		return &UnsafePathError{Segment: s, Reason: "relative reference"}
	case strings.ContainsAny(s, `/\`):
		return &UnsafePathError{Segment: s, Reason: "contains a path separator"}
	case strings.ContainsRune(s, 0):
		return &UnsafePathError{Segment: s, Reason: "contains NUL"}
	}
	return nil
}

package structure

import (
	"fmt"
	"os"

	"github.com/tilsley/anonmirror/pkg/repotree"
)

// DirMode is the permission used for every created directory.
const DirMode os.FileMode = 0o755

// Build creates the mirror root and one directory per Dir node of t. Files are
// not touched. Existing directories are left as they are.
func Build(root Root, t repotree.Tree) error {
	if err := os.MkdirAll(root.Path(), DirMode); err != nil {
		return err
	}
	return t.Walk(func(e repotree.Entry) error {
		if _, ok := e.Node.(repotree.Dir); !ok {
			return nil
		}
		dir, err := root.Dir(e.Segments)
		if err != nil {
			return fmt.Errorf("directory %s: %w", e.RemotePath(), err)
		}
		return os.MkdirAll(dir, DirMode)
	})
}

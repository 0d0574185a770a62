package repotree

import (
	"fmt"
	"io"

	"github.com/ddddddO/gtree"
)

// Render writes t as an indented tree under rootName. Files are annotated with
// their advertised size.
func Render(w io.Writer, rootName string, t Tree) error {
	root := gtree.NewRoot(rootName)

	type frame struct {
		node *gtree.Node
		tree Tree
	}
	stack := []frame{{node: root, tree: t}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, name := range f.tree.Names() {
			switch n := f.tree[name].(type) {
			case Dir:
				stack = append(stack, frame{node: f.node.Add(name), tree: n.Children})
			case File:
				f.node.Add(fmt.Sprintf("%s (%d B)", name, n.Size))
			}
		}
	}

	if err := gtree.OutputFromRoot(w, root); err != nil {
		return fmt.Errorf("render tree: %w", err)
	}
	return nil
}

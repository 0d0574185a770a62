package repotree

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// UnmarshalJSON decodes the nested-object wire shape into Dir and File nodes.
func (t *Tree) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decode tree: %w", err)
	}
	if fields == nil {
		return fmt.Errorf("decode tree: expected object, got %s", preview(data))
	}
	tree, err := decodeTree(fields, 0)
	if err != nil {
		return err
	}
	*t = tree
	return nil
}

func decodeTree(fields map[string]json.RawMessage, depth int) (Tree, error) {
	if depth > MaxDepth {
		return nil, ErrTooDeep
	}
	tree := make(Tree, len(fields))
	for name, raw := range fields {
		node, err := decodeNode(raw, depth+1)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		tree[name] = node
	}
	return tree, nil
}

func decodeNode(raw json.RawMessage, depth int) (Node, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode node: %w", err)
	}
	if fields == nil {
		return nil, fmt.Errorf("decode node: expected object, got %s", preview(raw))
	}

	// A child directory that happens to be named "size" is an object. Any other
	// size value marks a file; a non-numeric one carries no size.
	if size, ok := fields["size"]; ok && !isObject(size) {
		if !isNumber(size) {
			return File{}, nil
		}
		n, err := decodeSize(size)
		if err != nil {
			return nil, err
		}
		return File{Size: n}, nil
	}

	children, err := decodeTree(fields, depth)
	if err != nil {
		return nil, err
	}
	return Dir{Children: children}, nil
}

func decodeSize(raw json.RawMessage) (int64, error) {
	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return 0, fmt.Errorf("decode size: %w", err)
	}
	if n, err := num.Int64(); err == nil {
		return n, nil
	}
	f, err := num.Float64()
	if err != nil {
		return 0, fmt.Errorf("decode size %s: %w", num, err)
	}
	return int64(f), nil
}

func isNumber(raw json.RawMessage) bool {
	b := bytes.TrimSpace(raw)
	if len(b) == 0 {
		return false
	}
	return b[0] == '-' || (b[0] >= '0' && b[0] <= '9')
}

func isObject(raw json.RawMessage) bool {
	b := bytes.TrimSpace(raw)
	return len(b) > 0 && b[0] == '{'
}

func preview(data []byte) string {
	const max = 32
	b := bytes.TrimSpace(data)
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}

// MarshalJSON encodes the tree in the same wire shape UnmarshalJSON accepts.
func (t Tree) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]Node(t))
}

// MarshalJSON encodes a directory as the object of its children.
func (d Dir) MarshalJSON() ([]byte, error) {
	return d.Children.MarshalJSON()
}

// MarshalJSON encodes a file as {"size": n}.
func (f File) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Size int64 `json:"size"`
	}{Size: f.Size})
}

package listing

import (
	"context"
	"path"
)

// TreeNode is one node of a lazily expanded directory tree. Children
// nil means the node was never loaded; an empty non-nil slice means it
// was loaded and the directory is empty. Consumers rely on that
// distinction to decide whether an expand control is shown.
type TreeNode struct {
	Entry    *Entry      `json:"entry"`
	Children []*TreeNode `json:"children,omitempty"`

	loaded bool
}

// NewTree roots a tree at dir without listing anything yet.
func NewTree(dir string) *TreeNode {
	dir = cleanDir(dir)
	name := path.Base(dir)
	if dir == "/" {
		name = "/"
	}
	return &TreeNode{
		Entry: &Entry{Name: name, Path: dir, Kind: KindFolder},
	}
}

// Loaded reports whether this node's children were ever listed.
func (n *TreeNode) Loaded() bool {
	return n.loaded
}

// Load lists the node's directory once. Reloading is a no-op; use
// Reload to refresh.
func (n *TreeNode) Load(ctx context.Context, l *Lister) error {
	if n.loaded {
		return nil
	}
	return n.Reload(ctx, l)
}

// Reload re-lists the node's directory and rebuilds its child nodes.
// Child subtrees are not carried over.
func (n *TreeNode) Reload(ctx context.Context, l *Lister) error {
	entries, err := l.List(ctx, n.Entry.Path)
	if err != nil {
		return err
	}
	children := make([]*TreeNode, 0, len(entries))
	for _, e := range entries {
		children = append(children, &TreeNode{Entry: e})
	}
	n.Children = children
	n.loaded = true
	return nil
}

// Expand loads the subtree below n up to depth levels (depth 1 is just
// n's own children). Files are skipped, only folders recurse.
func (n *TreeNode) Expand(ctx context.Context, l *Lister, depth int) error {
	if depth <= 0 {
		return nil
	}
	if err := n.Load(ctx, l); err != nil {
		return err
	}
	if depth == 1 {
		return nil
	}
	for _, c := range n.Children {
		if !c.Entry.IsDir() {
			continue
		}
		if err := c.Expand(ctx, l, depth-1); err != nil {
			return err
		}
	}
	return nil
}

// Flatten walks the loaded tree depth first and returns every entry
// below n, not including n itself.
func (n *TreeNode) Flatten() []*Entry {
	var out []*Entry
	for _, c := range n.Children {
		out = append(out, c.Entry)
		if c.Entry.IsDir() {
			out = append(out, c.Flatten()...)
		}
	}
	return out
}

// Find returns the loaded node for p, or nil when p was never loaded
// into this subtree.
func (n *TreeNode) Find(p string) *TreeNode {
	if n.Entry.Path == p {
		return n
	}
	for _, c := range n.Children {
		if found := c.Find(p); found != nil {
			return found
		}
	}
	return nil
}

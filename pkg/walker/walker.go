package walker

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"k8s.io/klog/v2"

	"github.com/srodi/cglens/pkg/types"
)

// Visitor is called once for every node below the walk root, after the node has been
// linked to its parent.
type Visitor interface {
	Visit(ctx context.Context, node *types.Node) error
}

// VisitorFunc adapts a function to Visitor.
type VisitorFunc func(ctx context.Context, node *types.Node) error

func (f VisitorFunc) Visit(ctx context.Context, node *types.Node) error { return f(ctx, node) }

// LinkOnly builds the tree without attaching any metrics.
var LinkOnly Visitor = VisitorFunc(func(context.Context, *types.Node) error { return nil })

// Tree is the result of a walk.
type Tree struct {
	Root *types.Node
	// Nodes holds every visited descendant in pre-order.
	Nodes []*types.Node
}

// Walker performs a bounded pre-order traversal of a cgroup directory tree.
type Walker struct {
	fs       afero.Fs
	mount    string
	root     string
	maxDepth int
	files    bool
}

// Option customizes a Walker.
type Option func(*Walker)

// WithMaxDepth limits the walk to depth levels below the root; 0 visits nothing but the root.
// A negative depth leaves the walk unbounded.
func WithMaxDepth(depth int) Option {
	return func(w *Walker) { w.maxDepth = depth }
}

// WithFiles links the control files of every visited cgroup as leaf nodes. File nodes are
// not passed to the visitor and are not part of Tree.Nodes.
func WithFiles() Option {
	return func(w *Walker) { w.files = true }
}

// New returns a walker rooted at mount/cgroup.
func New(fs afero.Fs, mount, cgroup string, opts ...Option) *Walker {
	mount = filepath.Clean(mount)
	w := &Walker{
		fs:       fs,
		mount:    mount,
		root:     filepath.Join(mount, cgroup),
		maxDepth: -1,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Root is the absolute path the walk starts from.
func (w *Walker) Root() string { return w.root }

// Mount is the cgroup mount point node names are relative to.
func (w *Walker) Mount() string { return w.mount }

// maxSeparators is the separator count at which a directory is too deep to visit.
func (w *Walker) maxSeparators() int {
	if w.maxDepth < 0 {
		return -1
	}
	return separatorCount(w.root) + w.maxDepth + 1
}

// Walk traverses the tree, calling visitor for each descendant of the root. A nil visitor
// behaves like LinkOnly.
func (w *Walker) Walk(ctx context.Context, visitor Visitor) (*Tree, error) {
	if visitor == nil {
		visitor = LinkOnly
	}
	if rel, err := filepath.Rel(w.mount, w.root); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, &types.TraversalError{Path: w.root, Err: errors.Errorf("not below cgroup mount %s", w.mount)}
	}

	info, err := w.fs.Stat(w.root)
	if err != nil {
		return nil, &types.TraversalError{Path: w.root, Err: err}
	}
	if !info.IsDir() {
		return nil, &types.TraversalError{Path: w.root, Err: errors.New("not a directory")}
	}

	links := newLinker(w.mount, w.root)
	tree := &Tree{Root: links.root}
	limit := w.maxSeparators()

	walkErr := afero.Walk(w.fs, w.root, func(path string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == w.root {
				return &types.TraversalError{Path: path, Err: err}
			}
			if os.IsNotExist(err) {
				klog.V(2).Infof("cgroup %s vanished during walk", path)
				return nil
			}
			return &types.TraversalError{Path: path, Err: err}
		}
		if !info.IsDir() {
			if w.files && filepath.Dir(path) != w.root {
				_, err := links.linkFile(path)
				return err
			}
			return nil
		}
		if path == w.root {
			return nil
		}
		if limit >= 0 && separatorCount(path) >= limit {
			klog.V(4).Infof("skipping %s: deeper than %d levels", path, w.maxDepth)
			return filepath.SkipDir
		}

		node, err := links.link(path)
		if err != nil {
			return err
		}
		tree.Nodes = append(tree.Nodes, node)

		return visitor.Visit(ctx, node)
	})
	if walkErr != nil {
		return nil, walkErr
	}

	return tree, nil
}

// linker resolves parents through a path index filled as nodes are created.
type linker struct {
	mount string
	root  *types.Node
	index map[string]*types.Node
}

func newLinker(mount, root string) *linker {
	rootNode := types.NewNode(mount, root)
	return &linker{
		mount: mount,
		root:  rootNode,
		index: map[string]*types.Node{root: rootNode},
	}
}

// link creates the node for path and appends it to its parent's children.
func (l *linker) link(path string) (*types.Node, error) {
	parentPath := filepath.Dir(path)
	parent, ok := l.index[parentPath]
	if !ok {
		return nil, &types.TraversalError{
			Path: path,
			Err:  errors.Errorf("failed to find parent cgroup %s", parentPath),
		}
	}

	node := types.NewNode(l.mount, path)
	parent.AddChild(node)
	l.index[path] = node
	return node, nil
}

// linkFile attaches a control file below its already linked cgroup.
func (l *linker) linkFile(path string) (*types.Node, error) {
	parent, ok := l.index[filepath.Dir(path)]
	if !ok {
		return nil, &types.TraversalError{
			Path: path,
			Err:  errors.Errorf("failed to find cgroup of file %s", path),
		}
	}
	node := types.NewNode(l.mount, path)
	node.File = true
	parent.AddChild(node)
	return node, nil
}

func separatorCount(path string) int {
	return strings.Count(path, string(filepath.Separator))
}

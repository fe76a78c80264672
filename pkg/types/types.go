package types

import (
	"path/filepath"
	"strings"
)

// DefaultLimit of zero means every retained row is displayed.
const DefaultLimit = 0

// Node is one control group in a walked hierarchy.
type Node struct {
	// Path is absolute and unique within a walk.
	Path string
	// Name is the path relative to the cgroup mount, "/" for the mount itself.
	Name     string
	Children []*Node
	Parent   *Node
	Metrics  map[string]string
	// File marks a control file shown as a leaf; it is never visited.
	File bool
}

// NewNode builds a detached node for path below mount.
func NewNode(mount, path string) *Node {
	return &Node{
		Path:    path,
		Name:    RelativeName(mount, path),
		Metrics: make(map[string]string),
	}
}

// AddChild appends child and sets its parent back reference.
func (n *Node) AddChild(child *Node) {
	child.Parent = n
	n.Children = append(n.Children, child)
}

// BaseName is the last path element used as a tree label.
func (n *Node) BaseName() string {
	base := filepath.Base(n.Name)
	if base == "." || base == "" {
		return "/"
	}
	return base
}

// Find does a depth-first search for path among n's descendants.
func (n *Node) Find(path string) *Node {
	for _, child := range n.Children {
		if child.Path == path {
			return child
		}
		if found := child.Find(path); found != nil {
			return found
		}
	}
	return nil
}

// RelativeName strips base from path and always returns a rooted name.
func RelativeName(base, path string) string {
	rel := strings.TrimPrefix(path, base)
	rel = strings.TrimLeft(rel, "/")
	return "/" + rel
}

// ProcessRecord is one pidstat sample tagged with the cgroup it was found in.
type ProcessRecord struct {
	PID     int
	Command string
	Stats   map[string]string
	Cgroup  string
	// KernelThread is set when the kernel flags the task PF_KTHREAD.
	KernelThread bool
}

// StatResult distinguishes a measured process from one that exited before it could be measured.
type StatResult struct {
	Record ProcessRecord
	Found  bool
}

// Unavailable is the result for a process that vanished between enumeration and measurement.
func Unavailable(pid int) StatResult {
	return StatResult{Record: ProcessRecord{PID: pid}}
}

// RealtimeBudget is a node's realtime CPU allotment.
type RealtimeBudget struct {
	RuntimeUs  int64
	PeriodUs   int64
	Configured bool
}

// Percentage returns runtime/period as a percentage, zero when unconfigured.
func (b RealtimeBudget) Percentage() float64 {
	if !b.Configured || b.PeriodUs <= 0 {
		return 0
	}
	return float64(b.RuntimeUs) * 100 / float64(b.PeriodUs)
}

// RealtimeEntry pairs a node with the budget read for it.
type RealtimeEntry struct {
	Node   *Node
	Cgroup string
	Budget RealtimeBudget
}

package render

import (
	"bufio"
	"io"

	"github.com/srodi/cglens/pkg/types"
)

// Glyphs draws tree branches.
type Glyphs struct {
	Pipe, Tee, Elbow, Blank string
}

var (
	Unicode = Glyphs{Pipe: "│   ", Tee: "├── ", Elbow: "└── ", Blank: "    "}
	ASCII   = Glyphs{Pipe: "|   ", Tee: "|-- ", Elbow: "`-- ", Blank: "    "}
)

// LabelFunc names a node in the tree.
type LabelFunc func(n *types.Node) string

// NameLabel labels nodes with their last path element.
func NameLabel(n *types.Node) string { return n.BaseName() }

// Tree pretty-prints root and its descendants in child order.
func Tree(w io.Writer, root *types.Node, label LabelFunc, glyphs Glyphs) error {
	if label == nil {
		label = NameLabel
	}
	bw := bufio.NewWriter(w)
	bw.WriteString(label(root))
	bw.WriteByte('\n')
	writeChildren(bw, root, "", label, glyphs)
	return bw.Flush()
}

func writeChildren(bw *bufio.Writer, n *types.Node, prefix string, label LabelFunc, g Glyphs) {
	for i, child := range n.Children {
		last := i == len(n.Children)-1
		branch, next := g.Tee, g.Pipe
		if last {
			branch, next = g.Elbow, g.Blank
		}
		bw.WriteString(prefix + branch + label(child))
		bw.WriteByte('\n')
		writeChildren(bw, child, prefix+next, label, g)
	}
}

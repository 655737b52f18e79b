package tree

import (
	"errors"
	"io"
	"strings"

	"github.com/mickamy/spxplain/internal/plantree"
)

const indent = "   "

type frame struct {
	node   *plantree.Node
	prefix string
	isLast bool
	isRoot bool
}

// Render prints one line per node in depth-first pre-order:
//
//	 RELATIONAL Distributed Union
//	    +- RELATIONAL Local Distributed Union
//	    |   \- RELATIONAL Table Scan
//	    \- SCALAR Constant
//
// Pending nodes are kept on an explicit stack so deep plans do not grow the call stack.
func Render(w io.Writer, root *plantree.Node) error {
	if w == nil {
		return errors.New("tree: writer is nil")
	}
	if root == nil {
		return errors.New("tree: empty plan")
	}

	var line strings.Builder
	stack := []frame{{node: root, isLast: true, isRoot: true}}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		line.Reset()
		line.WriteString(cur.prefix)
		line.WriteString(stub(cur.isLast, cur.isRoot))
		line.WriteByte(' ')
		line.WriteString(cur.node.Record.Kind)
		line.WriteByte(' ')
		line.WriteString(cur.node.Record.DisplayName)
		line.WriteByte('\n')
		if _, err := io.WriteString(w, line.String()); err != nil {
			return err
		}

		// The bar links this node's later siblings; a last child leaves the column blank.
		childPrefix := cur.prefix + "|" + indent
		if cur.isLast {
			childPrefix = cur.prefix + " " + indent
		}
		children := cur.node.Children
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, frame{
				node:   children[i],
				prefix: childPrefix,
				isLast: i == len(children)-1,
			})
		}
	}
	return nil
}

func stub(isLast, isRoot bool) string {
	switch {
	case isRoot:
		return ""
	case isLast:
		return `\-`
	default:
		return "+-"
	}
}

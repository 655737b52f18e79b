package plantree

import (
	"errors"
	"fmt"

	"github.com/mickamy/spxplain/internal/model"
)

var (
	// ErrMalformedPlan reports plan nodes that do not form a tree in topological order.
	ErrMalformedPlan = errors.New("malformed plan")
	// ErrMissingRoot reports a plan without an indexless root record.
	ErrMissingRoot = errors.New("plan has no root node")
)

// Node is one operator in the plan tree. Children keep the order of the
// record's child links.
type Node struct {
	Record   model.PlanNodeRecord
	Children []*Node
}

// Build converts plan nodes into a tree and returns its root.
//
// Records are consumed from last to first so every child is built before the
// parent that links to it. The scan stops at the first record without an index,
// which is the root.
func Build(records []model.PlanNodeRecord) (*Node, error) {
	built := make(map[int]*Node, len(records))
	attached := make(map[int]struct{}, len(records))

	for i := len(records) - 1; i >= 0; i-- {
		record := records[i]
		node := &Node{Record: record}
		if len(record.ChildLinks) > 0 {
			node.Children = make([]*Node, 0, len(record.ChildLinks))
		}
		for _, link := range record.ChildLinks {
			child, ok := built[link.ChildIndex]
			if !ok {
				return nil, fmt.Errorf("%w: %s references unknown child %d", ErrMalformedPlan, describe(record), link.ChildIndex)
			}
			if _, dup := attached[link.ChildIndex]; dup {
				return nil, fmt.Errorf("%w: child %d linked more than once", ErrMalformedPlan, link.ChildIndex)
			}
			attached[link.ChildIndex] = struct{}{}
			node.Children = append(node.Children, child)
		}

		if record.Index == nil {
			return node, nil
		}
		if _, dup := built[*record.Index]; dup {
			return nil, fmt.Errorf("%w: duplicate index %d", ErrMalformedPlan, *record.Index)
		}
		built[*record.Index] = node
	}

	return nil, ErrMissingRoot
}

// Len returns the number of nodes in the subtree rooted at n.
func (n *Node) Len() int {
	if n == nil {
		return 0
	}
	total := 0
	stack := []*Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		total++
		stack = append(stack, cur.Children...)
	}
	return total
}

func describe(record model.PlanNodeRecord) string {
	if record.Index == nil {
		return fmt.Sprintf("root node %q", record.DisplayName)
	}
	return fmt.Sprintf("node %d (%q)", *record.Index, record.DisplayName)
}

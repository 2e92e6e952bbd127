package optimizer

import (
	"fmt"
	"strings"

	"github.com/cube2222/octoplan/plan"
)

// Pattern is the shape of a subtree which triggers a rule.
// A leaf pattern matches any node, a pattern with no children matches any node of its kind.
type Pattern struct {
	OpType   plan.OpType
	Children []*Pattern

	leaf bool
}

// Leaf matches any node.
func Leaf() *Pattern {
	return &Pattern{leaf: true}
}

// Kind matches any node of the given kind, regardless of its children.
func Kind(opType plan.OpType) *Pattern {
	return &Pattern{OpType: opType}
}

// Match matches a node of the given kind whose children match the child patterns.
func Match(opType plan.OpType, children ...*Pattern) *Pattern {
	return &Pattern{OpType: opType, Children: children}
}

func (pt *Pattern) IsLeaf() bool {
	return pt.leaf
}

func (pt *Pattern) Matches(n *plan.Node) bool {
	if pt.leaf {
		return true
	}
	if n.OpType() != pt.OpType {
		return false
	}
	if len(pt.Children) == 0 {
		return true
	}
	if n.ChildCount() != len(pt.Children) {
		return false
	}
	for i, child := range pt.Children {
		if !child.Matches(n.Child(i)) {
			return false
		}
	}
	return true
}

func (pt *Pattern) String() string {
	if pt.leaf {
		return "_"
	}
	if len(pt.Children) == 0 {
		return pt.OpType.String()
	}
	children := make([]string, len(pt.Children))
	for i := range pt.Children {
		children[i] = pt.Children[i].String()
	}
	return fmt.Sprintf("%s(%s)", pt.OpType, strings.Join(children, ", "))
}

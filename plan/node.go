package plan

import (
	"fmt"
)

// Node is a tree node owning exactly one operator and its ordered children.
// Children and operator are only mutated through the Set* methods,
// which invalidate the cached NodeInfo of this node.
type Node struct {
	id       int
	op       Op
	children []*Node

	info *ExtendedNodeInfo
}

// ID is stable for the lifetime of the node and unique within its plan.
func (n *Node) ID() int {
	return n.id
}

func (n *Node) Op() Op {
	return n.op
}

func (n *Node) OpType() OpType {
	return n.op.OpType
}

func (n *Node) ChildCount() int {
	return len(n.children)
}

func (n *Node) Child(i int) *Node {
	return n.children[i]
}

func (n *Node) Child0() *Node {
	return n.children[0]
}

func (n *Node) Child1() *Node {
	return n.children[1]
}

func (n *Node) Child2() *Node {
	return n.children[2]
}

// Children returns a copy of the child list.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

func (n *Node) SetChild(i int, child *Node) {
	n.children[i] = child
	n.info = nil
}

func (n *Node) SetChildren(children ...*Node) {
	checkArity(n.op.OpType, len(children))
	n.children = append([]*Node(nil), children...)
	n.info = nil
}

// AppendChild is only valid for variable arity operators.
func (n *Node) AppendChild(child *Node) {
	if n.op.OpType.expectedArity() != -1 {
		panic(fmt.Sprintf("can't append a child to %s", n.op.OpType))
	}
	n.children = append(n.children, child)
	n.info = nil
}

// RemoveChild is only valid for variable arity operators.
func (n *Node) RemoveChild(i int) {
	if n.op.OpType.expectedArity() != -1 {
		panic(fmt.Sprintf("can't remove a child from %s", n.op.OpType))
	}
	n.children = append(n.children[:i:i], n.children[i+1:]...)
	n.info = nil
}

func (n *Node) SetOp(op Op) {
	checkArity(op.OpType, len(n.children))
	n.op = op
	n.info = nil
}

// IsStale reports whether the node's analysis must be recomputed before use.
func (n *Node) IsStale() bool {
	return n.info == nil
}

func (n *Node) String() string {
	return Dump(n)
}

func checkArity(opType OpType, count int) {
	if err := ValidateArity(opType, count); err != nil {
		panic(err.Error())
	}
}

// ValidateArity checks a child count against the operator kind, for trees built from external input.
func ValidateArity(opType OpType, count int) error {
	arity := opType.expectedArity()
	if arity == -1 {
		if opType == OpTypeCase && (count < 3 || count%2 == 0) {
			return fmt.Errorf("invalid child count %d for %s", count, opType)
		}
		return nil
	}
	if arity != count {
		return fmt.Errorf("invalid child count %d for %s, expected %d", count, opType, arity)
	}
	return nil
}

package optimizer

import (
	"github.com/cube2222/octoplan/plan"
)

// subtreeID identifies a subtree in a given position.
// A subtree which hasn't changed since it was last stabilized in the same position is skipped.
type subtreeID struct {
	nodeID     int
	hash       uint64
	parentID   int
	childIndex int
}

type processor struct {
	ctx       *Context
	rules     *ruleTable
	processed map[subtreeID]bool
	steps     int
}

func newProcessor(ctx *Context, rules *ruleTable) *processor {
	pr := &processor{
		ctx:       ctx,
		rules:     rules,
		processed: make(map[subtreeID]bool),
	}
	ctx.processor = pr
	return pr
}

// applyToTree rewrites the tree to a fixed point and reports whether any rule fired.
func (pr *processor) applyToTree(root *plan.Node) (*plan.Node, bool) {
	before := pr.steps
	out := pr.applyToSubtree(root, nil, -1)
	return out, pr.steps > before
}

func (pr *processor) newSubtreeID(n, parent *plan.Node, childIndex int) subtreeID {
	parentID := -1
	if parent != nil {
		parentID = parent.ID()
	}
	return subtreeID{
		nodeID:     n.ID(),
		hash:       pr.ctx.plan.GetNodeInfo(n).HashValue,
		parentID:   parentID,
		childIndex: childIndex,
	}
}

func (pr *processor) applyToSubtree(n, parent *plan.Node, childIndex int) *plan.Node {
	local := make(map[subtreeID]bool)
	for {
		pr.ctx.preProcessSubTree(n)
		id := pr.newSubtreeID(n, parent, childIndex)
		if pr.processed[id] {
			break
		}
		if local[id] {
			// We're back at a shape we've already seen here, stop cycling.
			pr.processed[id] = true
			break
		}
		local[id] = true

		for i := 0; i < n.ChildCount(); i++ {
			child := n.Child(i)
			newChild := pr.applyToSubtree(child, n, i)
			if newChild != child {
				n.SetChild(i, newChild)
			}
		}

		// Children may have changed in place.
		pr.ctx.preProcess(n)
		newNode, changed := pr.applyToNode(n)
		if !changed {
			pr.processed[pr.newSubtreeID(n, parent, childIndex)] = true
			break
		}
		pr.ctx.postProcessSubTree(n)
		n = newNode
	}
	pr.ctx.postProcessSubTree(n)
	return n
}

func (pr *processor) applyToNode(n *plan.Node) (*plan.Node, bool) {
	rules := pr.rules[n.OpType()]
	if len(rules) == 0 {
		return n, false
	}
	for _, rule := range rules {
		if !rule.Pattern.Matches(n) {
			continue
		}
		pr.ctx.stats.recordMatch(rule.Name)
		newNode, changed := rule.Apply(pr.ctx, n)
		if !changed {
			continue
		}
		pr.steps++
		pr.ctx.stats.recordChange(rule.Name)
		pr.ctx.postProcess(newNode, rule)
		return newNode, true
	}
	return n, false
}

package optimizer

import (
	"github.com/cube2222/octoplan/plan"
)

// distinctOpOfKeys removes a Distinct whose input is already unique on a subset of the distinct keys.
var distinctOpOfKeys = &Rule{
	Name:    "DistinctOpOfKeys",
	Pattern: Match(plan.OpTypeDistinct, Leaf()),
	Apply: func(ctx *Context, n *plan.Node) (*plan.Node, bool) {
		inputInfo := ctx.plan.GetExtendedNodeInfo(n.Child0())
		keys := n.Op().Distinct.Keys
		if inputInfo.Keys == nil || !inputInfo.Keys.IsSubsetOf(keys) {
			return n, false
		}
		return ctx.plan.Project(n.Child0(), ctx.plan.VarDefList(), keys.Copy()), true
	},
}

var distinctRules = []*Rule{
	distinctOpOfKeys,
}

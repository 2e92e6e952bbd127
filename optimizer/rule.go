package optimizer

import (
	"fmt"

	"github.com/cube2222/octoplan/plan"
)

// Rule is a local rewrite. Apply returns the replacement of the matched node and whether
// anything changed. A rule which doesn't fire must return the node unchanged and false.
type Rule struct {
	Name    string
	Pattern *Pattern
	Apply   func(ctx *Context, n *plan.Node) (*plan.Node, bool)
}

func (r *Rule) RootOpType() plan.OpType {
	if r.Pattern.IsLeaf() {
		panic(fmt.Sprintf("rule %s has a leaf pattern at the root", r.Name))
	}
	return r.Pattern.OpType
}

func (r *Rule) String() string {
	return fmt.Sprintf("%s: %s", r.Name, r.Pattern)
}

// ruleTable holds the rules applicable to each op kind, in priority order.
type ruleTable [plan.OpTypeCount][]*Rule

func buildRuleTable(disabled map[string]bool, ruleLists ...[]*Rule) *ruleTable {
	var table ruleTable
	seen := make(map[*Rule]bool)
	for _, rules := range ruleLists {
		for _, rule := range rules {
			if seen[rule] || disabled[rule.Name] {
				continue
			}
			seen[rule] = true
			opType := rule.RootOpType()
			table[opType] = append(table[opType], rule)
		}
	}
	return &table
}

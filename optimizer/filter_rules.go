package optimizer

import (
	"github.com/cube2222/octoplan/octoplan"
	"github.com/cube2222/octoplan/plan"
)

// getPushdownPredicate splits the filter predicate into the part which only references columns,
// and the residual. Columns default to the definitions of the filter input.
// Either part may be nil.
func getPushdownPredicate(ctx *Context, filter *plan.Node, columns *plan.VarSet) (pushdown, residual *plan.Node) {
	if columns == nil && ctx.plan.GetExtendedNodeInfo(filter).ExternalReferences.IsEmpty() {
		return filter.Child1(), nil
	}
	if columns == nil {
		columns = ctx.plan.GetExtendedNodeInfo(filter.Child0()).Definitions
	}
	single, other := plan.NewPredicate(ctx.plan, filter.Child1()).GetSingleTablePredicates(columns)
	return single.BuildAndTree(), other.BuildAndTree()
}

// withResidualFilter puts a filter with the residual predicate over n, if there's any residual.
func withResidualFilter(ctx *Context, n, residual *plan.Node) *plan.Node {
	if residual == nil {
		return n
	}
	return ctx.plan.Filter(n, residual)
}

var filterOverFilter = &Rule{
	Name:    "FilterOverFilter",
	Pattern: Match(plan.OpTypeFilter, Match(plan.OpTypeFilter, Leaf(), Leaf()), Leaf()),
	Apply: func(ctx *Context, n *plan.Node) (*plan.Node, bool) {
		child := n.Child0()
		predicate := ctx.plan.And(child.Child1(), n.Child1())
		return ctx.plan.Filter(child.Child0(), predicate), true
	},
}

var filterOverProject = &Rule{
	Name:    "FilterOverProject",
	Pattern: Match(plan.OpTypeFilter, Match(plan.OpTypeProject, Leaf(), Leaf()), Leaf()),
	Apply: func(ctx *Context, n *plan.Node) (*plan.Node, bool) {
		predicate := n.Child1()
		// Handled by FilterWithConstantPredicate.
		if predicate.OpType() == plan.OpTypeConstantPredicate {
			return n, false
		}
		varRefMap := make(map[*plan.Var]int)
		if !ctx.IsScalarOpTree(predicate, varRefMap) {
			return n, false
		}
		project := n.Child0()
		varMap := ctx.GetVarMap(project.Child1(), varRefMap)
		if varMap == nil {
			return n, false
		}
		remapped := ctx.ReMap(predicate, varMap)
		filter := ctx.plan.Filter(project.Child0(), remapped)
		return ctx.plan.CreateNode(project.Op(), filter, project.Child1()), true
	},
}

func newFilterOverSetOpRule(name string, opType plan.OpType) *Rule {
	return &Rule{
		Name:    name,
		Pattern: Match(plan.OpTypeFilter, Match(opType, Leaf(), Leaf()), Leaf()),
		Apply:   applyFilterOverSetOp,
	}
}

var (
	filterOverUnionAll  = newFilterOverSetOpRule("FilterOverUnionAll", plan.OpTypeUnionAll)
	filterOverIntersect = newFilterOverSetOpRule("FilterOverIntersect", plan.OpTypeIntersect)
	filterOverExcept    = newFilterOverSetOpRule("FilterOverExcept", plan.OpTypeExcept)
)

// applyFilterOverSetOp pushes the pushable part of the predicate into every branch,
// rewritten in terms of the branch variables. Except only filters its left branch.
func applyFilterOverSetOp(ctx *Context, n *plan.Node) (*plan.Node, bool) {
	pushdown, residual := getPushdownPredicate(ctx, n, nil)
	if pushdown == nil {
		return n, false
	}
	if !ctx.IsScalarOpTree(pushdown, nil) {
		return n, false
	}

	setOpNode := n.Child0()
	setOp := setOpNode.Op().SetOp
	branches := setOpNode.Children()
	filteredBranches := 2
	if setOpNode.OpType() == plan.OpTypeExcept {
		filteredBranches = 1
	}
	for i := 0; i < filteredBranches; i++ {
		remapMap := make(map[*plan.Var]*plan.Node, len(setOp.VarMaps[i]))
		for _, output := range setOp.VarMaps[i].Keys() {
			remapMap[output] = ctx.plan.VarRef(setOp.VarMaps[i][output])
		}
		predicate := pushdown
		if i < filteredBranches-1 {
			predicate = ctx.Copy(predicate)
		}
		predicate = ctx.ReMap(predicate, remapMap)
		branches[i] = ctx.ApplyToSubtree(ctx.plan.Filter(branches[i], predicate))
	}

	newSetOp := ctx.plan.CreateNode(setOpNode.Op(), branches...)
	return withResidualFilter(ctx, newSetOp, residual), true
}

var filterOverDistinct = &Rule{
	Name:    "FilterOverDistinct",
	Pattern: Match(plan.OpTypeFilter, Match(plan.OpTypeDistinct, Leaf()), Leaf()),
	Apply: func(ctx *Context, n *plan.Node) (*plan.Node, bool) {
		pushdown, residual := getPushdownPredicate(ctx, n, nil)
		if pushdown == nil {
			return n, false
		}
		distinct := n.Child0()
		filter := ctx.plan.Filter(distinct.Child0(), pushdown)
		newDistinct := ctx.plan.CreateNode(distinct.Op(), filter)
		return withResidualFilter(ctx, newDistinct, residual), true
	},
}

var filterOverGroupBy = &Rule{
	Name:    "FilterOverGroupBy",
	Pattern: Match(plan.OpTypeFilter, Match(plan.OpTypeGroupBy, Leaf(), Leaf(), Leaf()), Leaf()),
	Apply: func(ctx *Context, n *plan.Node) (*plan.Node, bool) {
		groupBy := n.Child0()
		// Without keys the GroupBy yields a row even for an empty input.
		if groupBy.Op().GroupBy.Keys.IsEmpty() {
			return n, false
		}
		varRefMap := make(map[*plan.Var]int)
		if !ctx.IsScalarOpTree(n.Child1(), varRefMap) {
			return n, false
		}

		// Only predicates over the grouping keys may be evaluated before grouping.
		pushdown, residual := getPushdownPredicate(ctx, n, groupBy.Op().GroupBy.Keys)
		if pushdown == nil {
			return n, false
		}
		varMap := ctx.GetVarMap(groupBy.Child1(), varRefMap)
		if varMap == nil {
			return n, false
		}
		remapped := ctx.ReMap(pushdown, varMap)

		filter := ctx.plan.Filter(groupBy.Child0(), remapped)
		newGroupBy := ctx.plan.CreateNode(groupBy.Op(), filter, groupBy.Child1(), groupBy.Child2())
		return withResidualFilter(ctx, newGroupBy, residual), true
	},
}

var filterOverCrossJoin = &Rule{
	Name:    "FilterOverCrossJoin",
	Pattern: Match(plan.OpTypeFilter, Match(plan.OpTypeCrossJoin, Leaf(), Leaf()), Leaf()),
	Apply:   applyFilterOverJoin,
}

var filterOverInnerJoin = &Rule{
	Name:    "FilterOverInnerJoin",
	Pattern: Match(plan.OpTypeFilter, Match(plan.OpTypeInnerJoin, Leaf(), Leaf(), Leaf()), Leaf()),
	Apply:   applyFilterOverJoin,
}

var filterOverLeftOuterJoin = &Rule{
	Name:    "FilterOverLeftOuterJoin",
	Pattern: Match(plan.OpTypeFilter, Match(plan.OpTypeLeftOuterJoin, Leaf(), Leaf(), Leaf()), Leaf()),
	Apply:   applyFilterOverJoin,
}

// applyFilterOverJoin pushes single-input predicates into the join inputs and folds
// equi-join predicates into the join condition. A left outer join becomes an inner join
// when the predicate rejects the nulls it would produce for its right input.
func applyFilterOverJoin(ctx *Context, n *plan.Node) (*plan.Node, bool) {
	if ctx.IsFilterPushdownSuppressed(n) {
		return n, false
	}
	join := n.Child0()
	joinType := join.OpType()
	left := join.Child0()
	right := join.Child1()
	leftInfo := ctx.plan.GetExtendedNodeInfo(left)
	rightInfo := ctx.plan.GetExtendedNodeInfo(right)
	needsTransformation := false

	predicate := plan.NewPredicate(ctx.plan, n.Child1())
	if joinType == plan.OpTypeLeftOuterJoin && !predicate.PreservesNulls(rightInfo.Definitions, ctx.options.AnsiNullSemantics) {
		joinType = plan.OpTypeInnerJoin
		needsTransformation = true
	}

	// Filtering directly over a scan doesn't make it any cheaper.
	var leftPredicate, rightPredicate *plan.Node
	if left.OpType() != plan.OpTypeScanTable {
		var single *plan.Predicate
		single, predicate = predicate.GetSingleTablePredicates(leftInfo.Definitions)
		leftPredicate = single.BuildAndTree()
	}
	if right.OpType() != plan.OpTypeScanTable && joinType != plan.OpTypeLeftOuterJoin {
		var single *plan.Predicate
		single, predicate = predicate.GetSingleTablePredicates(rightInfo.Definitions)
		rightPredicate = single.BuildAndTree()
	}

	var joinPredicate *plan.Node
	if joinType == plan.OpTypeCrossJoin || joinType == plan.OpTypeInnerJoin {
		var equiJoin *plan.Predicate
		equiJoin, predicate = predicate.GetJoinPredicates(leftInfo.Definitions, rightInfo.Definitions)
		joinPredicate = equiJoin.BuildAndTree()
	}

	if leftPredicate != nil {
		left = ctx.ApplyToSubtree(ctx.plan.Filter(left, leftPredicate))
		needsTransformation = true
	}
	if rightPredicate != nil {
		right = ctx.ApplyToSubtree(ctx.plan.Filter(right, rightPredicate))
		needsTransformation = true
	}

	if joinPredicate != nil {
		needsTransformation = true
		if joinType == plan.OpTypeCrossJoin {
			joinType = plan.OpTypeInnerJoin
		} else {
			joinPredicate = ctx.plan.And(join.Child2(), joinPredicate)
		}
	} else if joinType != plan.OpTypeCrossJoin {
		joinPredicate = join.Child2()
	}

	// Reporting a change without one would make us loop forever.
	if !needsTransformation {
		return n, false
	}

	var newJoin *plan.Node
	switch joinType {
	case plan.OpTypeCrossJoin:
		newJoin = ctx.plan.CrossJoin(left, right)
	case plan.OpTypeInnerJoin:
		newJoin = ctx.plan.InnerJoin(left, right, joinPredicate)
	case plan.OpTypeLeftOuterJoin:
		newJoin = ctx.plan.LeftOuterJoin(left, right, joinPredicate)
	default:
		panic("unexhaustive join type match")
	}

	residual := predicate.BuildAndTree()
	if residual == nil {
		return newJoin, true
	}
	out := ctx.plan.Filter(newJoin, residual)
	// Whatever remains can't be pushed into this join, don't try again.
	ctx.SuppressFilterPushdown(out)
	return out, true
}

var filterOverOuterApply = &Rule{
	Name:    "FilterOverOuterApply",
	Pattern: Match(plan.OpTypeFilter, Match(plan.OpTypeOuterApply, Leaf(), Leaf()), Leaf()),
	Apply: func(ctx *Context, n *plan.Node) (*plan.Node, bool) {
		apply := n.Child0()
		rightInfo := ctx.plan.GetExtendedNodeInfo(apply.Child1())
		predicate := plan.NewPredicate(ctx.plan, n.Child1())
		if predicate.PreservesNulls(rightInfo.Definitions, ctx.options.AnsiNullSemantics) {
			return n, false
		}
		crossApply := ctx.plan.CrossApply(apply.Child0(), apply.Child1())
		return ctx.plan.Filter(crossApply, n.Child1()), true
	},
}

var filterWithConstantPredicate = &Rule{
	Name:    "FilterWithConstantPredicate",
	Pattern: Match(plan.OpTypeFilter, Leaf(), Kind(plan.OpTypeConstantPredicate)),
	Apply: func(ctx *Context, n *plan.Node) (*plan.Node, bool) {
		if n.Child1().Op().IsTrue() {
			return n.Child0(), true
		}

		// The filter yields no rows, so its input can be replaced by an empty relation
		// defining null stand-ins for all of the input's variables.
		input := n.Child0()
		if input.OpType() == plan.OpTypeSingleRowTable ||
			input.OpType() == plan.OpTypeProject && input.Child0().OpType() == plan.OpTypeSingleRowTable {
			return n, false
		}

		inputInfo := ctx.plan.GetExtendedNodeInfo(input)
		outputs := ctx.plan.Vars.NewVarSet()
		var defs []*plan.Node
		for _, v := range inputInfo.Definitions.Vars() {
			def, newVar := ctx.plan.ComputedVarDef(ctx.plan.Null(v.Type))
			ctx.AddVarMapping(v, newVar)
			outputs.Add(newVar)
			defs = append(defs, def)
		}
		if outputs.IsEmpty() {
			def, newVar := ctx.plan.ComputedVarDef(ctx.plan.Null(octoplan.Boolean))
			outputs.Add(newVar)
			defs = append(defs, def)
		}

		filter := ctx.plan.Filter(ctx.plan.SingleRowTable(), n.Child1())
		return ctx.plan.Project(filter, ctx.plan.VarDefList(defs...), outputs), true
	},
}

var filterRules = []*Rule{
	filterWithConstantPredicate,
	filterOverCrossJoin,
	filterOverDistinct,
	filterOverExcept,
	filterOverFilter,
	filterOverGroupBy,
	filterOverInnerJoin,
	filterOverIntersect,
	filterOverLeftOuterJoin,
	filterOverProject,
	filterOverUnionAll,
	filterOverOuterApply,
}

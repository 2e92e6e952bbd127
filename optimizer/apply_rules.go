package optimizer

import (
	"github.com/cube2222/octoplan/octoplan"
	"github.com/cube2222/octoplan/plan"
)

var crossApplyOverFilter = &Rule{
	Name:    "CrossApplyOverFilter",
	Pattern: Match(plan.OpTypeCrossApply, Leaf(), Match(plan.OpTypeFilter, Leaf(), Leaf())),
	Apply:   applyOverFilter,
}

var outerApplyOverFilter = &Rule{
	Name:    "OuterApplyOverFilter",
	Pattern: Match(plan.OpTypeOuterApply, Leaf(), Match(plan.OpTypeFilter, Leaf(), Leaf())),
	Apply:   applyOverFilter,
}

// applyOverFilter turns CrossApply(X, Filter(Y, p)) into InnerJoin(X, Y, p)
// and OuterApply(X, Filter(Y, p)) into LeftOuterJoin(X, Y, p), if only the predicate references X.
func applyOverFilter(ctx *Context, n *plan.Node) (*plan.Node, bool) {
	filter := n.Child1()
	filterInputInfo := ctx.plan.GetNodeInfo(filter.Child0())
	leftInfo := ctx.plan.GetExtendedNodeInfo(n.Child0())
	if filterInputInfo.ExternalReferences.Overlaps(leftInfo.Definitions) {
		return n, false
	}
	if n.OpType() == plan.OpTypeCrossApply {
		return ctx.plan.InnerJoin(n.Child0(), filter.Child0(), filter.Child1()), true
	}
	return ctx.plan.LeftOuterJoin(n.Child0(), filter.Child0(), filter.Child1()), true
}

var outerApplyOverProjectInternalConstantOverFilter = &Rule{
	Name: "OuterApplyOverProjectInternalConstantOverFilter",
	Pattern: Match(plan.OpTypeOuterApply,
		Leaf(),
		Match(plan.OpTypeProject,
			Match(plan.OpTypeFilter, Leaf(), Leaf()),
			Match(plan.OpTypeVarDefList,
				Match(plan.OpTypeVarDef, Kind(plan.OpTypeInternalConstant)),
			),
		),
	),
	Apply: outerApplyOverDummyProjectOverFilter,
}

var outerApplyOverProjectNullSentinelOverFilter = &Rule{
	Name: "OuterApplyOverProjectNullSentinelOverFilter",
	Pattern: Match(plan.OpTypeOuterApply,
		Leaf(),
		Match(plan.OpTypeProject,
			Match(plan.OpTypeFilter, Leaf(), Leaf()),
			Match(plan.OpTypeVarDefList,
				Match(plan.OpTypeVarDef, Kind(plan.OpTypeNullSentinel)),
			),
		),
	),
	Apply: outerApplyOverDummyProjectOverFilter,
}

// outerApplyOverDummyProjectOverFilter turns OuterApply(X, Project(Filter(Y, p), c := constant))
// into Project(LeftOuterJoin(X, Y, p), c := CASE WHEN sentinel IS NULL THEN NULL ELSE constant END),
// using a non-nullable variable of Y as the sentinel.
// Without a sentinel it becomes LeftOuterJoin(X, Project(Y, c := constant), p).
func outerApplyOverDummyProjectOverFilter(ctx *Context, n *plan.Node) (*plan.Node, bool) {
	project := n.Child1()
	outputs := project.Op().Project.Outputs
	filter := project.Child0()
	filterInput := filter.Child0()
	filterInputInfo := ctx.plan.GetExtendedNodeInfo(filterInput)
	leftInfo := ctx.plan.GetExtendedNodeInfo(n.Child0())

	if outputs.Overlaps(leftInfo.Definitions) || filterInputInfo.ExternalReferences.Overlaps(leftInfo.Definitions) {
		return n, false
	}

	sentinel, sentinelIsInt32 := TryGetInt32Var(filterInputInfo.NonNullableDefinitions.Vars())
	if !sentinelIsInt32 {
		sentinel = filterInputInfo.NonNullableDefinitions.First()
	}

	if sentinel == nil {
		// The project has to stay below the join, exposing whatever the predicate needs.
		newOutputs := outputs.Copy()
		predicateRefs := ctx.plan.GetNodeInfo(filter.Child1()).ExternalReferences.Copy()
		predicateRefs.Intersect(filterInputInfo.Definitions)
		newOutputs.Union(predicateRefs)
		newProject := ctx.plan.Project(filterInput, project.Child1(), newOutputs)
		return ctx.plan.LeftOuterJoin(n.Child0(), newProject, filter.Child1()), true
	}

	varDef := project.Child1().Child0()
	var definition *plan.Node
	if varDef.Child0().OpType() == plan.OpTypeNullSentinel && sentinelIsInt32 && ctx.CanChangeNullSentinelValue() {
		definition = ctx.plan.VarRef(sentinel)
	} else {
		definition = ctx.BuildNullIfExpression(sentinel, varDef.Child0())
	}
	defs := ctx.plan.VarDefList(ctx.plan.VarDef(varDef.Op().VarDef.Var, definition))

	join := ctx.plan.LeftOuterJoin(n.Child0(), filterInput, filter.Child1())
	newOutputs := plan.Union(outputs, ctx.plan.GetExtendedNodeInfo(join).Definitions)
	return ctx.plan.Project(join, defs, newOutputs), true
}

var crossApplyOverProject = &Rule{
	Name:    "CrossApplyOverProject",
	Pattern: Match(plan.OpTypeCrossApply, Leaf(), Match(plan.OpTypeProject, Leaf(), Leaf())),
	Apply: func(ctx *Context, n *plan.Node) (*plan.Node, bool) {
		project := n.Child1()
		outputs := plan.Union(project.Op().Project.Outputs, ctx.plan.GetExtendedNodeInfo(n).Definitions)
		apply := ctx.plan.CrossApply(n.Child0(), project.Child0())
		return ctx.plan.Project(apply, project.Child1(), outputs), true
	},
}

var outerApplyOverProject = &Rule{
	Name:    "OuterApplyOverProject",
	Pattern: Match(plan.OpTypeOuterApply, Leaf(), Match(plan.OpTypeProject, Leaf(), Leaf())),
	Apply:   applyOuterApplyOverProject,
}

// applyOuterApplyOverProject turns OuterApply(X, Project(Y, defs)) into Project(OuterApply(X, Y'), defs').
// Definitions which aren't plain references to Y are wrapped so that they're null
// whenever the sentinel is, that is for rows of X without a match. The sentinel is a
// non-nullable variable of Y, or a constant added by a dummy project Y' over Y.
func applyOuterApplyOverProject(ctx *Context, n *plan.Node) (*plan.Node, bool) {
	project := n.Child1()
	varDefList := project.Child1()
	input := project.Child0()
	inputInfo := ctx.plan.GetExtendedNodeInfo(input)
	sentinel := inputInfo.NonNullableDefinitions.First()

	// This is the shape we'd build ourselves, so we'd loop forever.
	if sentinel == nil && varDefList.ChildCount() == 1 {
		switch varDefList.Child0().Child0().OpType() {
		case plan.OpTypeInternalConstant, plan.OpTypeNullSentinel:
			return n, false
		}
	}

	var dummyProject *plan.Node
	var sentinelDefinition *plan.Node
	defs := make([]*plan.Node, varDefList.ChildCount())
	for i, varDef := range varDefList.Children() {
		expr := varDef.Child0()
		if expr.OpType() == plan.OpTypeVarRef && inputInfo.Definitions.Has(expr.Op().VarRef.Var) {
			defs[i] = varDef
			continue
		}
		if sentinel == nil {
			sentinelDefinition = ctx.plan.InternalConstant(octoplan.NewInt32(1))
			var sentinelDef *plan.Node
			sentinelDef, sentinel = ctx.plan.ComputedVarDef(sentinelDefinition)
			dummyOutputs := plan.Union(ctx.plan.Vars.NewVarSet(sentinel), inputInfo.Definitions)
			dummyProject = ctx.plan.Project(input, ctx.plan.VarDefList(sentinelDef), dummyOutputs)
		}

		var definition *plan.Node
		if sentinelDefinition != nil &&
			(plan.IsEquivalent(sentinelDefinition, expr) || expr.OpType() == plan.OpTypeNullSentinel) {
			definition = ctx.plan.VarRef(sentinel)
		} else {
			definition = ctx.BuildNullIfExpression(sentinel, expr)
		}
		defs[i] = ctx.plan.VarDef(varDef.Op().VarDef.Var, definition)
	}

	right := input
	if dummyProject != nil {
		right = dummyProject
	}
	apply := ctx.plan.OuterApply(n.Child0(), right)
	outputs := plan.Union(project.Op().Project.Outputs, ctx.plan.GetExtendedNodeInfo(n.Child0()).Definitions)
	return ctx.plan.Project(apply, ctx.plan.VarDefList(defs...), outputs), true
}

var crossApplyOverAnything = &Rule{
	Name:    "CrossApplyOverAnything",
	Pattern: Match(plan.OpTypeCrossApply, Leaf(), Leaf()),
	Apply:   applyOverAnything,
}

var outerApplyOverAnything = &Rule{
	Name:    "OuterApplyOverAnything",
	Pattern: Match(plan.OpTypeOuterApply, Leaf(), Leaf()),
	Apply:   applyOverAnything,
}

// applyOverAnything turns CrossApply(X, Y) into CrossJoin(X, Y)
// and OuterApply(X, Y) into LeftOuterJoin(X, Y, true), if Y doesn't reference X.
// An outer apply whose right input always yields a row is a cross apply.
func applyOverAnything(ctx *Context, n *plan.Node) (*plan.Node, bool) {
	left := n.Child0()
	right := n.Child1()
	leftInfo := ctx.plan.GetExtendedNodeInfo(left)
	rightInfo := ctx.plan.GetExtendedNodeInfo(right)

	opType := n.OpType()
	convertedToCrossApply := false
	if opType == plan.OpTypeOuterApply && rightInfo.MinRows >= plan.RowCountOne {
		opType = plan.OpTypeCrossApply
		convertedToCrossApply = true
	}

	if rightInfo.ExternalReferences.Overlaps(leftInfo.Definitions) {
		if convertedToCrossApply {
			return ctx.plan.CrossApply(left, right), true
		}
		return n, false
	}

	if opType == plan.OpTypeCrossApply {
		return ctx.plan.CrossJoin(left, right), true
	}
	return ctx.plan.LeftOuterJoin(left, right, ctx.plan.True()), true
}

var crossApplyIntoScalarSubquery = &Rule{
	Name:    "CrossApplyIntoScalarSubquery",
	Pattern: Match(plan.OpTypeCrossApply, Leaf(), Leaf()),
	Apply:   applyIntoScalarSubquery,
}

var outerApplyIntoScalarSubquery = &Rule{
	Name:    "OuterApplyIntoScalarSubquery",
	Pattern: Match(plan.OpTypeOuterApply, Leaf(), Leaf()),
	Apply:   applyIntoScalarSubquery,
}

// applyIntoScalarSubquery turns Apply(X, Y) into Project(X, v := Element(Y))
// when Y yields a single column and at most one row (exactly one for a cross apply).
func applyIntoScalarSubquery(ctx *Context, n *plan.Node) (*plan.Node, bool) {
	right := n.Child1()
	if !canRewriteApplyIntoScalarSubquery(ctx, n.OpType(), right) {
		return n, false
	}
	leftInfo := ctx.plan.GetExtendedNodeInfo(n.Child0())
	oldVar := ctx.plan.GetExtendedNodeInfo(right).Definitions.First()

	// The subquery gets its own definitions, so that remapping oldVar
	// to the element var doesn't touch references inside of it.
	ctx.RemapSubtree(right)
	subquery, _ := ctx.plan.CopySubtree(right)

	def, newVar := ctx.plan.ComputedVarDef(ctx.plan.Element(subquery, oldVar.Type))
	outputs := leftInfo.Definitions.Copy()
	outputs.Add(newVar)
	ctx.AddVarMapping(oldVar, newVar)
	return ctx.plan.Project(n.Child0(), ctx.plan.VarDefList(def), outputs), true
}

func canRewriteApplyIntoScalarSubquery(ctx *Context, applyType plan.OpType, right *plan.Node) bool {
	info := ctx.plan.GetExtendedNodeInfo(right)
	if info.Definitions.Len() != 1 {
		return false
	}
	if info.MaxRows != plan.RowCountOne {
		return false
	}
	if applyType == plan.OpTypeCrossApply && info.MinRows != plan.RowCountOne {
		return false
	}
	// Definitions may be narrower than what the relation really outputs, e.g. for scans.
	return countOutputs(right) == 1
}

// countOutputs returns the number of columns a relational subtree really produces.
func countOutputs(n *plan.Node) int {
	op := n.Op()
	switch op.OpType {
	case plan.OpTypeScanTable:
		return len(op.ScanTable.Table.Columns)
	case plan.OpTypeSingleRowTable:
		return 0
	case plan.OpTypeUnionAll, plan.OpTypeIntersect, plan.OpTypeExcept:
		return op.SetOp.Outputs.Len()
	case plan.OpTypeProject:
		return op.Project.Outputs.Len()
	case plan.OpTypeGroupBy:
		return op.GroupBy.Outputs.Len()
	case plan.OpTypeDistinct:
		return op.Distinct.Keys.Len()
	case plan.OpTypeFilter, plan.OpTypeSort, plan.OpTypeConstrainedSort:
		return countOutputs(n.Child0())
	}
	count := 0
	for i := 0; i < n.ChildCount(); i++ {
		if n.Child(i).OpType().IsRelational() {
			count += countOutputs(n.Child(i))
		}
	}
	return count
}

var crossApplyOverLeftOuterJoinOverSingleRowTable = &Rule{
	Name: "CrossApplyOverLeftOuterJoinOverSingleRowTable",
	Pattern: Match(plan.OpTypeCrossApply,
		Leaf(),
		Match(plan.OpTypeLeftOuterJoin, Kind(plan.OpTypeSingleRowTable), Leaf(), Kind(plan.OpTypeConstantPredicate)),
	),
	Apply: func(ctx *Context, n *plan.Node) (*plan.Node, bool) {
		join := n.Child1()
		if join.Child2().Op().IsFalse() {
			return n, false
		}
		return ctx.plan.OuterApply(n.Child0(), join.Child1()), true
	},
}

var applyRules = []*Rule{
	crossApplyOverAnything,
	crossApplyOverFilter,
	crossApplyOverProject,
	outerApplyOverAnything,
	outerApplyOverProjectInternalConstantOverFilter,
	outerApplyOverProjectNullSentinelOverFilter,
	outerApplyOverProject,
	outerApplyOverFilter,
	crossApplyOverLeftOuterJoinOverSingleRowTable,
	crossApplyIntoScalarSubquery,
	outerApplyIntoScalarSubquery,
}

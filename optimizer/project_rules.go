package optimizer

import (
	"github.com/cube2222/octoplan/plan"
)

// projectOverProject merges two stacked projections, inlining the child's definitions
// into the parent's expressions.
var projectOverProject = &Rule{
	Name:    "ProjectOverProject",
	Pattern: Match(plan.OpTypeProject, Match(plan.OpTypeProject, Leaf(), Leaf()), Leaf()),
	Apply: func(ctx *Context, n *plan.Node) (*plan.Node, bool) {
		child := n.Child0()
		varRefMap := make(map[*plan.Var]int)
		for _, def := range n.Child1().Children() {
			if !ctx.IsScalarOpTree(def.Child0(), varRefMap) {
				return n, false
			}
		}
		varMap := ctx.GetVarMap(child.Child1(), varRefMap)
		if varMap == nil {
			return n, false
		}

		var defs []*plan.Node
		for _, def := range n.Child1().Children() {
			defs = append(defs, ctx.plan.VarDef(def.Op().VarDef.Var, ctx.ReMap(def.Child0(), varMap)))
		}
		// Child definitions we still expose have to be computed here now.
		outputs := n.Op().Project.Outputs
		for _, def := range child.Child1().Children() {
			if outputs.Has(def.Op().VarDef.Var) {
				defs = append(defs, def)
			}
		}
		return ctx.plan.CreateNode(n.Op(), child.Child0(), ctx.plan.VarDefList(defs...)), true
	},
}

var projectWithNoLocalDefinitions = &Rule{
	Name:    "ProjectWithNoLocalDefinitions",
	Pattern: Match(plan.OpTypeProject, Leaf(), Kind(plan.OpTypeVarDefList)),
	Apply: func(ctx *Context, n *plan.Node) (*plan.Node, bool) {
		if n.Child1().ChildCount() != 0 {
			return n, false
		}
		return n.Child0(), true
	},
}

// projectWithSimpleVarRedefinitions drops definitions of the form v := w, where w is
// visible from the input, and replaces v by w everywhere.
var projectWithSimpleVarRedefinitions = &Rule{
	Name:    "ProjectWithSimpleVarRedefinitions",
	Pattern: Match(plan.OpTypeProject, Leaf(), Kind(plan.OpTypeVarDefList)),
	Apply: func(ctx *Context, n *plan.Node) (*plan.Node, bool) {
		inputInfo := ctx.plan.GetExtendedNodeInfo(n.Child0())
		isSimpleRedefinition := func(def *plan.Node) bool {
			expr := def.Child0()
			return expr.OpType() == plan.OpTypeVarRef && inputInfo.Definitions.Has(expr.Op().VarRef.Var)
		}

		found := false
		for _, def := range n.Child1().Children() {
			if isSimpleRedefinition(def) {
				found = true
				break
			}
		}
		if !found {
			return n, false
		}

		outputs := n.Op().Project.Outputs.Copy()
		var defs []*plan.Node
		for _, def := range n.Child1().Children() {
			if !isSimpleRedefinition(def) {
				defs = append(defs, def)
				continue
			}
			v := def.Op().VarDef.Var
			w := def.Child0().Op().VarRef.Var
			outputs.Remove(v)
			outputs.Add(w)
			ctx.AddVarMapping(v, w)
		}
		return ctx.plan.Project(n.Child0(), ctx.plan.VarDefList(defs...), outputs), true
	},
}

// projectOpWithNullSentinel replaces null sentinel definitions by an existing non-nullable
// Int32 variable, from the input or defined by this projection as a constant.
var projectOpWithNullSentinel = &Rule{
	Name:    "ProjectOpWithNullSentinel",
	Pattern: Match(plan.OpTypeProject, Leaf(), Kind(plan.OpTypeVarDefList)),
	Apply: func(ctx *Context, n *plan.Node) (*plan.Node, bool) {
		varDefList := n.Child1()
		hasNullSentinel := false
		for _, def := range varDefList.Children() {
			if def.Child0().OpType() == plan.OpTypeNullSentinel {
				hasNullSentinel = true
				break
			}
		}
		if !hasNullSentinel || !ctx.CanChangeNullSentinelValue() {
			return n, false
		}

		inputInfo := ctx.plan.GetExtendedNodeInfo(n.Child0())
		sentinel, ok := TryGetInt32Var(inputInfo.NonNullableDefinitions.Vars())
		if !ok {
			var constants []*plan.Var
			for _, def := range varDefList.Children() {
				switch def.Child0().OpType() {
				case plan.OpTypeConstant, plan.OpTypeInternalConstant, plan.OpTypeNullSentinel:
					if !def.Child0().Op().Constant.Value.IsNull() {
						constants = append(constants, def.Op().VarDef.Var)
					}
				}
			}
			if sentinel, ok = TryGetInt32Var(constants); !ok {
				return n, false
			}
		}

		outputs := n.Op().Project.Outputs.Copy()
		var defs []*plan.Node
		modified := false
		for _, def := range varDefList.Children() {
			v := def.Op().VarDef.Var
			if def.Child0().OpType() != plan.OpTypeNullSentinel || v == sentinel {
				defs = append(defs, def)
				continue
			}
			if outputs.Has(v) {
				outputs.Remove(v)
				outputs.Add(sentinel)
			}
			ctx.AddVarMapping(v, sentinel)
			modified = true
		}
		if !modified {
			return n, false
		}
		return ctx.plan.Project(n.Child0(), ctx.plan.VarDefList(defs...), outputs), true
	},
}

var projectRules = []*Rule{
	projectOverProject,
	projectWithNoLocalDefinitions,
	projectWithSimpleVarRedefinitions,
	projectOpWithNullSentinel,
}

package optimizer

import (
	"log"

	"github.com/oklog/ulid/v2"

	"github.com/cube2222/octoplan/octoplan"
	"github.com/cube2222/octoplan/plan"
)

// Context is the state shared by all rules during a single invocation.
type Context struct {
	plan    *plan.Plan
	options Options

	remapper     *varRemapper
	suppressions map[int]bool
	ancestors    []*plan.Node

	processor *processor
	stats     *Stats

	projectionPruningRequired bool
	nullabilityRulesRequired  bool
}

func newContext(p *plan.Plan, options Options, invocationID ulid.ULID) *Context {
	return &Context{
		plan:         p,
		options:      options,
		remapper:     newVarRemapper(p),
		suppressions: make(map[int]bool),
		stats:        newStats(invocationID),
	}
}

func (ctx *Context) Plan() *plan.Plan {
	return ctx.plan
}

func (ctx *Context) Options() Options {
	return ctx.options
}

// ProjectionPruningRequired reports whether a rule left behind outputs which may now be unused.
func (ctx *Context) ProjectionPruningRequired() bool {
	return ctx.projectionPruningRequired
}

// NullabilityRulesRequired reports whether a rule exposed new nullability facts.
func (ctx *Context) NullabilityRulesRequired() bool {
	return ctx.nullabilityRulesRequired
}

// AddVarMapping records that every reference to oldVar must become a reference to newVar.
// References are rewritten lazily, when the referencing subtree is visited.
func (ctx *Context) AddVarMapping(oldVar, newVar *plan.Var) {
	ctx.remapper.addMapping(oldVar, newVar)
}

// RemapSubtree eagerly applies the recorded variable mappings to a subtree.
func (ctx *Context) RemapSubtree(n *plan.Node) {
	ctx.remapper.remapSubtree(n)
}

// ReMap replaces references to the variables in varMap by copies of their defining expressions.
// The expression must be scalar. The returned node replaces n.
func (ctx *Context) ReMap(n *plan.Node, varMap map[*plan.Var]*plan.Node) *plan.Node {
	if !n.OpType().IsScalar() {
		log.Panicf("expected a scalar op, found %s", n.OpType())
	}
	if n.OpType() == plan.OpTypeVarRef {
		if expr, ok := varMap[n.Op().VarRef.Var]; ok {
			return ctx.Copy(expr)
		}
		return n
	}
	for i := 0; i < n.ChildCount(); i++ {
		n.SetChild(i, ctx.ReMap(n.Child(i), varMap))
	}
	ctx.plan.RecomputeNodeInfo(n)
	return n
}

// Copy duplicates a subtree. Variables defined inside it are redefined.
func (ctx *Context) Copy(n *plan.Node) *plan.Node {
	if n.OpType() == plan.OpTypeVarRef {
		return ctx.plan.VarRef(n.Op().VarRef.Var)
	}
	out, _ := ctx.plan.CopySubtree(n)
	return out
}

// IsScalarOpTree reports whether the subtree consists of scalar operators only.
// When varRefMap is not nil, it's filled with reference counts of the visited variables.
func (ctx *Context) IsScalarOpTree(n *plan.Node, varRefMap map[*plan.Var]int) bool {
	_, ok := isScalarOpTree(n, varRefMap)
	return ok
}

func isScalarOpTree(n *plan.Node, varRefMap map[*plan.Var]int) (nonLeafCount int, ok bool) {
	if !n.OpType().IsScalar() {
		return 0, false
	}
	if varRefMap != nil && n.OpType() == plan.OpTypeVarRef {
		varRefMap[n.Op().VarRef.Var]++
	}
	if n.ChildCount() > 0 {
		nonLeafCount++
	}
	for i := 0; i < n.ChildCount(); i++ {
		count, ok := isScalarOpTree(n.Child(i), varRefMap)
		if !ok {
			return 0, false
		}
		nonLeafCount += count
	}
	return nonLeafCount, true
}

// GetVarMap maps each variable defined in the VarDefList to its defining expression.
// It returns nil when a definition isn't a scalar tree, or when a large definition
// is referenced more than twice according to varRefMap.
func (ctx *Context) GetVarMap(varDefList *plan.Node, varRefMap map[*plan.Var]int) map[*plan.Var]*plan.Node {
	out := make(map[*plan.Var]*plan.Node, varDefList.ChildCount())
	for _, def := range varDefList.Children() {
		nonLeafCount, ok := isScalarOpTree(def.Child0(), nil)
		if !ok {
			return nil
		}
		if nonLeafCount > ctx.options.MaxScalarTreeSize && varRefMap != nil && varRefMap[def.Op().VarDef.Var] > 2 {
			return nil
		}
		if existing, ok := out[def.Op().VarDef.Var]; ok && existing != def.Child0() {
			log.Panicf("variable %s defined twice", def.Op().VarDef.Var)
		}
		out[def.Op().VarDef.Var] = def.Child0()
	}
	return out
}

// IsNonNullable checks the relational ancestors, innermost first, for a proof that v is never null.
func (ctx *Context) IsNonNullable(v *plan.Var) bool {
	for i := len(ctx.ancestors) - 1; i >= 0; i-- {
		ancestor := ctx.ancestors[i]
		ctx.plan.RecomputeNodeInfo(ancestor)
		info := ctx.plan.GetExtendedNodeInfo(ancestor)
		if info.NonNullableVisibleDefinitions.Has(v) {
			return true
		}
		if info.LocalDefinitions.Has(v) {
			return false
		}
	}
	return false
}

// CanChangeNullSentinelValue reports whether a null sentinel's non-null value may be replaced
// by an arbitrary non-null value. That's unsafe below operators comparing rows by value.
func (ctx *Context) CanChangeNullSentinelValue() bool {
	for _, ancestor := range ctx.ancestors {
		if isUnsafeForNullSentinelChange(ancestor.OpType()) {
			return false
		}
	}
	for _, ancestor := range ctx.ancestors {
		if !ancestor.OpType().IsApply() {
			continue
		}
		right := ancestor.Child1()
		if !ctx.isAncestor(right) && containsUnsafeForNullSentinelChange(right) {
			return false
		}
	}
	return true
}

func (ctx *Context) isAncestor(n *plan.Node) bool {
	for _, ancestor := range ctx.ancestors {
		if ancestor == n {
			return true
		}
	}
	return false
}

func isUnsafeForNullSentinelChange(opType plan.OpType) bool {
	switch opType {
	case plan.OpTypeDistinct, plan.OpTypeGroupBy, plan.OpTypeIntersect, plan.OpTypeExcept:
		return true
	}
	return false
}

func containsUnsafeForNullSentinelChange(n *plan.Node) bool {
	if isUnsafeForNullSentinelChange(n.OpType()) {
		return true
	}
	for i := 0; i < n.ChildCount(); i++ {
		if containsUnsafeForNullSentinelChange(n.Child(i)) {
			return true
		}
	}
	return false
}

// BuildNullIfExpression builds `CASE WHEN sentinel IS NULL THEN NULL ELSE expr END`.
func (ctx *Context) BuildNullIfExpression(sentinel *plan.Var, expr *plan.Node) *plan.Node {
	t := expr.Op().ScalarType
	return ctx.plan.Case(
		t,
		ctx.plan.IsNull(ctx.plan.VarRef(sentinel)),
		ctx.plan.Null(t),
		expr,
	)
}

// SuppressFilterPushdown keeps filter pushdown rules from firing on the given node.
func (ctx *Context) SuppressFilterPushdown(n *plan.Node) {
	ctx.suppressions[n.ID()] = true
}

func (ctx *Context) IsFilterPushdownSuppressed(n *plan.Node) bool {
	return ctx.suppressions[n.ID()]
}

// TryGetInt32Var returns the first Int32 variable of the list.
func TryGetInt32Var(vars []*plan.Var) (*plan.Var, bool) {
	for _, v := range vars {
		if v.Type.TypeID == octoplan.TypeIDInt32 {
			return v, true
		}
	}
	return nil, false
}

// ApplyToSubtree runs the current rule set over a subtree built by a rule,
// returning its stabilized replacement.
func (ctx *Context) ApplyToSubtree(n *plan.Node) *plan.Node {
	return ctx.processor.applyToSubtree(n, nil, -1)
}

func (ctx *Context) preProcess(n *plan.Node) {
	ctx.remapper.remapNode(n)
	ctx.plan.RecomputeNodeInfo(n)
}

func (ctx *Context) preProcessSubTree(n *plan.Node) {
	if n.OpType().IsRelational() {
		ctx.ancestors = append(ctx.ancestors, n)
	}
	if ctx.remapper.remapped.IsEmpty() {
		return
	}
	if ctx.plan.GetNodeInfo(n).ExternalReferences.Overlaps(ctx.remapper.remapped) {
		ctx.remapper.remapSubtree(n)
	}
}

func (ctx *Context) postProcessSubTree(n *plan.Node) {
	if !n.OpType().IsRelational() {
		return
	}
	if len(ctx.ancestors) == 0 {
		panic("relational ancestor stack is empty")
	}
	if popped := ctx.ancestors[len(ctx.ancestors)-1]; popped != n {
		log.Panicf("popped ancestor %d is not the processed subtree root %d", popped.ID(), n.ID())
	}
	ctx.ancestors = ctx.ancestors[:len(ctx.ancestors)-1]
}

func (ctx *Context) postProcess(n *plan.Node, rule *Rule) {
	if rulesRequiringProjectionPruning[rule.Name] {
		ctx.projectionPruningRequired = true
	}
	if rulesRequiringNullabilityRules[rule.Name] {
		ctx.nullabilityRulesRequired = true
	}
	if ctx.options.Verbose {
		log.Printf("optimizer %s: applied %s, produced node %d", ctx.stats.InvocationID, rule.Name, n.ID())
	}
	ctx.plan.RecomputeNodeInfo(n)
}

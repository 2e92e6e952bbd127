package optimizer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/cube2222/octoplan/octoplan"
	"github.com/cube2222/octoplan/plan"
)

type fixture struct {
	p          *plan.Plan
	t1, t2     *plan.Table
	a, b, c, d *plan.Var
}

func newFixture() *fixture {
	p := plan.New()
	t1 := p.NewTable("t1",
		plan.ColumnDef{Name: "a", Type: octoplan.Int64, NotNull: true, Key: true},
		plan.ColumnDef{Name: "b", Type: octoplan.String},
	)
	t2 := p.NewTable("t2",
		plan.ColumnDef{Name: "c", Type: octoplan.Int64, NotNull: true},
		plan.ColumnDef{Name: "d", Type: octoplan.String},
	)
	return &fixture{
		p:  p,
		t1: t1,
		t2: t2,
		a:  t1.Columns[0],
		b:  t1.Columns[1],
		c:  t2.Columns[0],
		d:  t2.Columns[1],
	}
}

func (f *fixture) int(x int64) *plan.Node {
	return f.p.Constant(octoplan.NewInt64(x))
}

func (f *fixture) str(s string) *plan.Node {
	return f.p.Constant(octoplan.NewString(s))
}

func (f *fixture) ref(v *plan.Var) *plan.Node {
	return f.p.VarRef(v)
}

// sorted wraps a scan so that filters pushed into a join have somewhere to go.
func (f *fixture) sorted(table *plan.Table) *plan.Node {
	return f.p.Sort(f.p.ScanTable(table))
}

func (f *fixture) database() database {
	null := octoplan.NewNull()
	return database{
		"t1": {
			{octoplan.NewInt64(1), octoplan.NewString("x")},
			{octoplan.NewInt64(2), octoplan.NewString("y")},
			{octoplan.NewInt64(3), null},
			{octoplan.NewInt64(4), octoplan.NewString("x")},
		},
		"t2": {
			{octoplan.NewInt64(1), octoplan.NewString("p")},
			{octoplan.NewInt64(1), octoplan.NewString("q")},
			{octoplan.NewInt64(5), null},
		},
	}
}

// newTestContext prepares a context able to run rules directly, outside of Apply.
func newTestContext(p *plan.Plan, group RuleGroup) *Context {
	ctx := newContext(p, DefaultOptions(), ulid.ULID{})
	newProcessor(ctx, buildRuleTable(nil, group.rules()...))
	return ctx
}

// simplify runs all rules over a detached subtree.
func simplify(p *plan.Plan, n *plan.Node) *plan.Node {
	ctx := newTestContext(p, RuleGroupAll)
	return ctx.processor.applyToSubtree(n, nil, -1)
}

type row map[*plan.Var]octoplan.Value

// database holds the rows of each table, keyed by table name, in column order.
type database map[string][][]octoplan.Value

// evaluator is a naive interpreter used to check that rewrites preserve results.
type evaluator struct {
	p    *plan.Plan
	data database
}

func merge(rows ...row) row {
	out := row{}
	for _, r := range rows {
		for v, value := range r {
			out[v] = value
		}
	}
	return out
}

func nulls(vars *plan.VarSet) row {
	out := row{}
	for _, v := range vars.Vars() {
		out[v] = octoplan.NewNull()
	}
	return out
}

func (e *evaluator) relation(n *plan.Node, outer row) []row {
	var out []row
	switch n.OpType() {
	case plan.OpTypeScanTable:
		table := n.Op().ScanTable.Table
		for _, values := range e.data[table.Name] {
			r := row{}
			for i, column := range table.Columns {
				r[column] = values[i]
			}
			out = append(out, r)
		}

	case plan.OpTypeSingleRowTable:
		out = append(out, row{})

	case plan.OpTypeSort:
		out = e.relation(n.Child0(), outer)

	case plan.OpTypeFilter:
		for _, r := range e.relation(n.Child0(), outer) {
			if e.isTrue(n.Child1(), merge(outer, r)) {
				out = append(out, r)
			}
		}

	case plan.OpTypeProject:
		outputs := n.Op().Project.Outputs
		for _, r := range e.relation(n.Child0(), outer) {
			env := merge(outer, r)
			projected := row{}
			for _, v := range outputs.Vars() {
				if value, ok := r[v]; ok {
					projected[v] = value
				}
			}
			for _, def := range n.Child1().Children() {
				if v := def.Op().VarDef.Var; outputs.Has(v) {
					projected[v] = e.scalar(def.Child0(), env)
				}
			}
			out = append(out, projected)
		}

	case plan.OpTypeCrossJoin, plan.OpTypeInnerJoin, plan.OpTypeLeftOuterJoin:
		rightDefinitions := e.p.GetExtendedNodeInfo(n.Child1()).Definitions
		rightRows := e.relation(n.Child1(), outer)
		for _, l := range e.relation(n.Child0(), outer) {
			matched := false
			for _, r := range rightRows {
				joined := merge(l, r)
				if n.OpType() != plan.OpTypeCrossJoin && !e.isTrue(n.Child2(), merge(outer, joined)) {
					continue
				}
				matched = true
				out = append(out, joined)
			}
			if !matched && n.OpType() == plan.OpTypeLeftOuterJoin {
				out = append(out, merge(l, nulls(rightDefinitions)))
			}
		}

	case plan.OpTypeCrossApply, plan.OpTypeOuterApply:
		rightDefinitions := e.p.GetExtendedNodeInfo(n.Child1()).Definitions
		for _, l := range e.relation(n.Child0(), outer) {
			rightRows := e.relation(n.Child1(), merge(outer, l))
			for _, r := range rightRows {
				out = append(out, merge(l, r))
			}
			if len(rightRows) == 0 && n.OpType() == plan.OpTypeOuterApply {
				out = append(out, merge(l, nulls(rightDefinitions)))
			}
		}

	case plan.OpTypeUnionAll:
		setOp := n.Op().SetOp
		for i := 0; i < 2; i++ {
			for _, r := range e.relation(n.Child(i), outer) {
				mapped := row{}
				for _, v := range setOp.Outputs.Vars() {
					mapped[v] = r[setOp.VarMaps[i][v]]
				}
				out = append(out, mapped)
			}
		}

	case plan.OpTypeIntersect, plan.OpTypeExcept:
		setOp := n.Op().SetOp
		outputs := setOp.Outputs.Vars()
		branch := func(i int) []row {
			var rows []row
			for _, r := range e.relation(n.Child(i), outer) {
				mapped := row{}
				for _, v := range outputs {
					mapped[v] = r[setOp.VarMaps[i][v]]
				}
				rows = append(rows, mapped)
			}
			return rows
		}
		right := make(map[string]bool)
		for _, r := range branch(1) {
			right[formatRow(r, outputs)] = true
		}
		keep := n.OpType() == plan.OpTypeIntersect
		seen := make(map[string]bool)
		for _, r := range branch(0) {
			key := formatRow(r, outputs)
			if seen[key] || right[key] != keep {
				continue
			}
			seen[key] = true
			out = append(out, r)
		}

	case plan.OpTypeDistinct:
		keys := n.Op().Distinct.Keys.Vars()
		seen := make(map[string]bool)
		for _, r := range e.relation(n.Child0(), outer) {
			key := formatRow(r, keys)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, r)
		}

	default:
		panic(fmt.Sprintf("can't evaluate %s", n.OpType()))
	}
	return out
}

func (e *evaluator) isTrue(n *plan.Node, env row) bool {
	value := e.scalar(n, env)
	return !value.IsNull() && value.Boolean
}

func (e *evaluator) scalar(n *plan.Node, env row) octoplan.Value {
	switch n.OpType() {
	case plan.OpTypeVarRef:
		value, ok := env[n.Op().VarRef.Var]
		if !ok {
			panic(fmt.Sprintf("unbound variable %s", n.Op().VarRef.Var))
		}
		return value

	case plan.OpTypeConstant, plan.OpTypeNull, plan.OpTypeInternalConstant,
		plan.OpTypeNullSentinel, plan.OpTypeConstantPredicate:
		return n.Op().Constant.Value

	case plan.OpTypeEQ, plan.OpTypeNE, plan.OpTypeLT, plan.OpTypeGT, plan.OpTypeLE, plan.OpTypeGE:
		left, right := e.scalar(n.Child0(), env), e.scalar(n.Child1(), env)
		if left.IsNull() || right.IsNull() {
			return octoplan.NewNull()
		}
		cmp := left.Compare(right)
		switch n.OpType() {
		case plan.OpTypeEQ:
			return octoplan.NewBoolean(cmp == 0)
		case plan.OpTypeNE:
			return octoplan.NewBoolean(cmp != 0)
		case plan.OpTypeLT:
			return octoplan.NewBoolean(cmp < 0)
		case plan.OpTypeGT:
			return octoplan.NewBoolean(cmp > 0)
		case plan.OpTypeLE:
			return octoplan.NewBoolean(cmp <= 0)
		default:
			return octoplan.NewBoolean(cmp >= 0)
		}

	case plan.OpTypePlus:
		left, right := e.scalar(n.Child0(), env), e.scalar(n.Child1(), env)
		if left.IsNull() || right.IsNull() {
			return octoplan.NewNull()
		}
		return octoplan.NewInt64(left.Int + right.Int)

	case plan.OpTypeAnd, plan.OpTypeOr:
		left, right := e.scalar(n.Child0(), env), e.scalar(n.Child1(), env)
		// The dominating value wins over null.
		dominating := n.OpType() == plan.OpTypeOr
		if (!left.IsNull() && left.Boolean == dominating) || (!right.IsNull() && right.Boolean == dominating) {
			return octoplan.NewBoolean(dominating)
		}
		if left.IsNull() || right.IsNull() {
			return octoplan.NewNull()
		}
		return octoplan.NewBoolean(!dominating)

	case plan.OpTypeNot:
		arg := e.scalar(n.Child0(), env)
		if arg.IsNull() {
			return arg
		}
		return octoplan.NewBoolean(!arg.Boolean)

	case plan.OpTypeIsNull:
		return octoplan.NewBoolean(e.scalar(n.Child0(), env).IsNull())

	case plan.OpTypeCase:
		for i := 0; i+1 < n.ChildCount(); i += 2 {
			if e.isTrue(n.Child(i), env) {
				return e.scalar(n.Child(i+1), env)
			}
		}
		return e.scalar(n.Child(n.ChildCount()-1), env)

	case plan.OpTypeElement:
		rows := e.relation(n.Child0(), env)
		if len(rows) == 0 {
			return octoplan.NewNull()
		}
		return rows[0][e.p.GetExtendedNodeInfo(n.Child0()).Definitions.First()]
	}
	panic(fmt.Sprintf("can't evaluate %s", n.OpType()))
}

func formatRow(r row, vars []*plan.Var) string {
	parts := make([]string, len(vars))
	for i, v := range vars {
		value, ok := r[v]
		if !ok {
			parts[i] = "?"
			continue
		}
		parts[i] = value.String()
	}
	return strings.Join(parts, "|")
}

// results evaluates the tree and renders the given columns of every row, in sorted order.
func (e *evaluator) results(n *plan.Node, vars ...*plan.Var) []string {
	var out []string
	for _, r := range e.relation(n, row{}) {
		out = append(out, formatRow(r, vars))
	}
	sort.Strings(out)
	return out
}

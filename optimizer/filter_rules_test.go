package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cube2222/octoplan/octoplan"
	"github.com/cube2222/octoplan/plan"
)

func TestFilterOverJoin(t *testing.T) {
	tests := []struct {
		name     string
		build    func(f *fixture) *plan.Node
		expected func(f *fixture) *plan.Node
	}{
		{
			name: "cross join with predicates for both sides and an equi-join",
			build: func(f *fixture) *plan.Node {
				p := f.p
				return p.Filter(
					p.CrossJoin(f.sorted(f.t1), f.sorted(f.t2)),
					p.And(
						p.And(p.Eq(f.ref(f.a), f.ref(f.c)), p.Eq(f.ref(f.b), f.str("x"))),
						p.Not(p.IsNull(f.ref(f.d))),
					),
				)
			},
			expected: func(f *fixture) *plan.Node {
				p := f.p
				return p.InnerJoin(
					p.Filter(f.sorted(f.t1), p.Eq(f.ref(f.b), f.str("x"))),
					p.Filter(f.sorted(f.t2), p.Not(p.IsNull(f.ref(f.d)))),
					p.Eq(f.ref(f.a), f.ref(f.c)),
				)
			},
		},
		{
			name: "left outer join becomes an inner join",
			build: func(f *fixture) *plan.Node {
				p := f.p
				return p.Filter(
					p.LeftOuterJoin(f.sorted(f.t1), f.sorted(f.t2), p.Eq(f.ref(f.a), f.ref(f.c))),
					p.Eq(f.ref(f.d), f.str("q")),
				)
			},
			expected: func(f *fixture) *plan.Node {
				p := f.p
				return p.InnerJoin(
					f.sorted(f.t1),
					p.Filter(f.sorted(f.t2), p.Eq(f.ref(f.d), f.str("q"))),
					p.Eq(f.ref(f.a), f.ref(f.c)),
				)
			},
		},
		{
			name: "left outer join keeps null preserving predicates above",
			build: func(f *fixture) *plan.Node {
				p := f.p
				return p.Filter(
					p.LeftOuterJoin(f.sorted(f.t1), f.sorted(f.t2), p.Eq(f.ref(f.a), f.ref(f.c))),
					p.And(p.Eq(f.ref(f.b), f.str("x")), p.IsNull(f.ref(f.d))),
				)
			},
			expected: func(f *fixture) *plan.Node {
				p := f.p
				return p.Filter(
					p.LeftOuterJoin(
						p.Filter(f.sorted(f.t1), p.Eq(f.ref(f.b), f.str("x"))),
						f.sorted(f.t2),
						p.Eq(f.ref(f.a), f.ref(f.c)),
					),
					p.IsNull(f.ref(f.d)),
				)
			},
		},
		{
			name: "inner join merges the join condition",
			build: func(f *fixture) *plan.Node {
				p := f.p
				return p.Filter(
					p.InnerJoin(f.sorted(f.t1), f.sorted(f.t2), p.Compare(plan.OpTypeLT, f.ref(f.a), f.int(3))),
					p.Eq(f.ref(f.a), f.ref(f.c)),
				)
			},
			expected: func(f *fixture) *plan.Node {
				p := f.p
				return p.InnerJoin(
					f.sorted(f.t1),
					f.sorted(f.t2),
					p.And(p.Compare(plan.OpTypeLT, f.ref(f.a), f.int(3)), p.Eq(f.ref(f.a), f.ref(f.c))),
				)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			p := f.p
			e := &evaluator{p: p, data: f.database()}

			p.Root = tt.build(f)
			before := e.results(p.Root, f.a, f.b, f.c, f.d)

			assert.True(t, Apply(p, RuleGroupAll))
			assert.Equal(t, plan.Dump(tt.expected(f)), plan.Dump(p.Root))
			assert.Equal(t, before, e.results(p.Root, f.a, f.b, f.c, f.d))

			assert.False(t, Apply(p, RuleGroupAll))
		})
	}
}

func TestFilterOverLeftOuterJoinRequestsNullabilityRules(t *testing.T) {
	f := newFixture()
	p := f.p

	p.Root = p.Filter(
		p.LeftOuterJoin(f.sorted(f.t1), f.sorted(f.t2), p.Eq(f.ref(f.a), f.ref(f.c))),
		p.Eq(f.ref(f.d), f.str("q")),
	)
	_, stats := ApplyWithStats(p, RuleGroupAll)
	assert.True(t, stats.NullabilityRulesRequired)
	assert.False(t, stats.ProjectionPruningRequired)
}

func TestFilterOverJoinWithoutAnsiNulls(t *testing.T) {
	f := newFixture()
	p := f.p

	p.Root = p.Filter(
		p.LeftOuterJoin(f.sorted(f.t1), f.sorted(f.t2), p.Eq(f.ref(f.a), f.ref(f.c))),
		p.Eq(f.ref(f.d), f.str("q")),
	)
	assert.False(t, Apply(p, RuleGroupAll, WithAnsiNullSemantics(false)))
	assert.Equal(t, plan.OpTypeLeftOuterJoin, p.Root.Child0().OpType())
}

func TestFilterOverProject(t *testing.T) {
	f := newFixture()
	p := f.p
	e := &evaluator{p: p, data: f.database()}

	def, v := p.ComputedVarDef(p.Arithmetic(plan.OpTypePlus, f.ref(f.a), f.int(1)))
	defs := p.VarDefList(def)
	p.Root = p.Filter(
		p.Project(f.sorted(f.t1), defs, p.Vars.NewVarSet(f.a, f.b, v)),
		p.Compare(plan.OpTypeGT, f.ref(v), f.int(2)),
	)
	before := e.results(p.Root, f.a, f.b, v)

	assert.True(t, Apply(p, RuleGroupAll))
	require.Equal(t, plan.OpTypeProject, p.Root.OpType())
	assert.Same(t, defs, p.Root.Child1())
	filter := p.Root.Child0()
	require.Equal(t, plan.OpTypeFilter, filter.OpType())
	assert.False(t, p.GetNodeInfo(filter.Child1()).ExternalReferences.Has(v))

	assert.Equal(t, before, e.results(p.Root, f.a, f.b, v))
	assert.Equal(t, []string{"2|'y'|3", "3|<null>|4", "4|'x'|5"}, before)

	assert.False(t, Apply(p, RuleGroupAll))
}

func TestFilterOverUnionAll(t *testing.T) {
	f := newFixture()
	p := f.p
	e := &evaluator{p: p, data: f.database()}

	u1 := p.Vars.NewSetOpVar(octoplan.Int64)
	u2 := p.Vars.NewSetOpVar(octoplan.String)
	union := p.SetOp(
		plan.OpTypeUnionAll,
		f.sorted(f.t1),
		f.sorted(f.t2),
		p.Vars.NewVarSet(u1, u2),
		plan.VarMap{u1: f.a, u2: f.b},
		plan.VarMap{u1: f.c, u2: f.d},
	)
	p.Root = p.Filter(union, p.Eq(f.ref(u2), f.str("x")))
	before := e.results(p.Root, u1, u2)

	assert.True(t, Apply(p, RuleGroupAll))
	require.Equal(t, plan.OpTypeUnionAll, p.Root.OpType())
	for i := 0; i < 2; i++ {
		assert.Equal(t, plan.OpTypeFilter, p.Root.Child(i).OpType())
	}
	assert.Equal(t, before, e.results(p.Root, u1, u2))
	assert.Equal(t, []string{"1|'x'", "4|'x'"}, before)

	assert.False(t, Apply(p, RuleGroupAll))
}

func TestFilterOverExcept(t *testing.T) {
	f := newFixture()
	p := f.p
	e := &evaluator{p: p, data: f.database()}

	u1 := p.Vars.NewSetOpVar(octoplan.Int64)
	except := p.SetOp(
		plan.OpTypeExcept,
		f.sorted(f.t1),
		f.sorted(f.t2),
		p.Vars.NewVarSet(u1),
		plan.VarMap{u1: f.a},
		plan.VarMap{u1: f.c},
	)
	p.Root = p.Filter(except, p.Compare(plan.OpTypeLE, f.ref(u1), f.int(2)))
	before := e.results(p.Root, u1)

	assert.True(t, Apply(p, RuleGroupAll))
	require.Equal(t, plan.OpTypeExcept, p.Root.OpType())
	assert.Equal(t, plan.OpTypeFilter, p.Root.Child0().OpType())
	assert.Equal(t, plan.OpTypeSort, p.Root.Child1().OpType())
	assert.Equal(t, before, e.results(p.Root, u1))
	assert.Equal(t, []string{"2"}, before)

	assert.False(t, Apply(p, RuleGroupAll))
}

func TestFilterOverIntersect(t *testing.T) {
	f := newFixture()
	p := f.p
	e := &evaluator{p: p, data: f.database()}

	u1 := p.Vars.NewSetOpVar(octoplan.Int64)
	intersect := p.SetOp(
		plan.OpTypeIntersect,
		f.sorted(f.t1),
		f.sorted(f.t2),
		p.Vars.NewVarSet(u1),
		plan.VarMap{u1: f.a},
		plan.VarMap{u1: f.c},
	)
	p.Root = p.Filter(intersect, p.Compare(plan.OpTypeLE, f.ref(u1), f.int(2)))
	before := e.results(p.Root, u1)

	assert.True(t, Apply(p, RuleGroupAll))
	require.Equal(t, plan.OpTypeIntersect, p.Root.OpType())
	// Both branches get their own copy of the predicate, over their own columns.
	left, right := p.Root.Child0(), p.Root.Child1()
	require.Equal(t, plan.OpTypeFilter, left.OpType())
	require.Equal(t, plan.OpTypeFilter, right.OpType())
	assert.Equal(t, plan.Dump(p.Compare(plan.OpTypeLE, f.ref(f.a), f.int(2))), plan.Dump(left.Child1()))
	assert.Equal(t, plan.Dump(p.Compare(plan.OpTypeLE, f.ref(f.c), f.int(2))), plan.Dump(right.Child1()))
	assert.NotSame(t, left.Child1(), right.Child1())

	assert.Equal(t, before, e.results(p.Root, u1))
	assert.Equal(t, []string{"1"}, before)

	assert.False(t, Apply(p, RuleGroupAll))
}

func TestFilterOverGroupBy(t *testing.T) {
	f := newFixture()
	p := f.p

	keyDef, key := p.ComputedVarDef(f.ref(f.d))
	countDef, count := p.ComputedVarDef(p.Aggregate("count", octoplan.Int64, f.ref(f.c)))
	groupBy := p.GroupBy(
		p.ScanTable(f.t2),
		p.VarDefList(keyDef),
		p.VarDefList(countDef),
		p.Vars.NewVarSet(key),
		p.Vars.NewVarSet(key, count),
	)
	p.Root = p.Filter(groupBy, p.And(
		p.Eq(f.ref(key), f.str("q")),
		p.Compare(plan.OpTypeGT, f.ref(count), f.int(1)),
	))

	assert.True(t, Apply(p, RuleGroupAll))

	// The aggregate can only be filtered after grouping.
	require.Equal(t, plan.OpTypeFilter, p.Root.OpType())
	assert.Equal(t, plan.OpTypeGT, p.Root.Child1().OpType())
	require.Equal(t, plan.OpTypeGroupBy, p.Root.Child0().OpType())
	pushed := p.Root.Child0().Child0()
	require.Equal(t, plan.OpTypeFilter, pushed.OpType())
	assert.Equal(t, plan.Dump(p.Eq(f.ref(f.d), f.str("q"))), plan.Dump(pushed.Child1()))

	assert.False(t, Apply(p, RuleGroupAll))
}

func TestFilterOverGroupByWithoutKeys(t *testing.T) {
	f := newFixture()
	p := f.p

	// Without grouping keys there's a single output row even for an empty input,
	// so no predicate may be evaluated before aggregation.
	countDef, count := p.ComputedVarDef(p.Aggregate("count", octoplan.Int64, f.ref(f.a)))
	groupBy := p.GroupBy(
		p.ScanTable(f.t1),
		p.VarDefList(),
		p.VarDefList(countDef),
		p.Vars.NewVarSet(),
		p.Vars.NewVarSet(count),
	)
	n := p.Filter(groupBy, p.Eq(p.Cast(f.int(1), octoplan.Int64), f.int(2)))
	ctx := newTestContext(p, RuleGroupAll)

	out, changed := filterOverGroupBy.Apply(ctx, n)
	assert.False(t, changed)
	assert.Same(t, n, out)
	assert.Same(t, groupBy, out.Child0())
	assert.Equal(t, plan.OpTypeScanTable, groupBy.Child0().OpType())
}

func TestFilterOverDistinct(t *testing.T) {
	f := newFixture()
	p := f.p

	p.Root = p.Filter(
		p.Distinct(p.ScanTable(f.t2), p.Vars.NewVarSet(f.c, f.d)),
		p.Eq(f.ref(f.d), f.str("q")),
	)
	assert.True(t, Apply(p, RuleGroupAll))
	require.Equal(t, plan.OpTypeDistinct, p.Root.OpType())
	assert.Equal(t, plan.OpTypeFilter, p.Root.Child0().OpType())
	assert.False(t, Apply(p, RuleGroupAll))
}

func TestFilterOverOuterApply(t *testing.T) {
	f := newFixture()
	ctx := newTestContext(f.p, RuleGroupAll)
	p := f.p

	apply := p.OuterApply(p.ScanTable(f.t1), p.Filter(p.ScanTable(f.t2), p.Eq(f.ref(f.c), f.ref(f.a))))
	n := p.Filter(apply, p.Eq(f.ref(f.d), f.str("q")))
	out, changed := filterOverOuterApply.Apply(ctx, n)
	require.True(t, changed)
	assert.Equal(t, plan.OpTypeCrossApply, out.Child0().OpType())

	n = p.Filter(apply, p.IsNull(f.ref(f.d)))
	_, changed = filterOverOuterApply.Apply(ctx, n)
	assert.False(t, changed)
}

func TestFilterWithConstantPredicate(t *testing.T) {
	f := newFixture()
	p := f.p

	scan := p.ScanTable(f.t1)
	p.Root = p.Filter(scan, p.True())
	assert.True(t, Apply(p, RuleGroupAll))
	assert.Same(t, scan, p.Root)

	// References above the empty relation are remapped to its null definitions.
	p.Root = p.Filter(
		p.Filter(p.ScanTable(f.t1), p.Eq(f.ref(f.a), f.int(1))),
		p.Eq(f.int(1), f.int(2)),
	)
	assert.True(t, Apply(p, RuleGroupAll))
	require.Equal(t, plan.OpTypeProject, p.Root.OpType())
	info := p.GetExtendedNodeInfo(p.Root)
	assert.Equal(t, plan.RowCountZero, info.MaxRows)
	assert.Equal(t, 2, info.Definitions.Len())
	assert.False(t, info.Definitions.Has(f.a))
}

package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cube2222/octoplan/octoplan"
	"github.com/cube2222/octoplan/plan"
)

func TestApplyOverAnything(t *testing.T) {
	tests := []struct {
		name    string
		right   func(f *fixture) *plan.Node
		applies bool
	}{
		{
			name: "independent",
			right: func(f *fixture) *plan.Node {
				return f.p.ScanTable(f.t2)
			},
			applies: true,
		},
		{
			name: "dependent",
			right: func(f *fixture) *plan.Node {
				return f.p.Filter(f.p.ScanTable(f.t2), f.p.Eq(f.ref(f.c), f.ref(f.a)))
			},
			applies: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			ctx := newTestContext(f.p, RuleGroupAll)

			n := f.p.CrossApply(f.p.ScanTable(f.t1), tt.right(f))
			out, changed := crossApplyOverAnything.Apply(ctx, n)
			assert.Equal(t, tt.applies, changed)
			if tt.applies {
				assert.Equal(t, plan.OpTypeCrossJoin, out.OpType())
			} else {
				assert.Same(t, n, out)
			}
		})
	}
}

func TestOuterApplyOverAnything(t *testing.T) {
	f := newFixture()
	p := f.p

	p.Root = p.OuterApply(p.ScanTable(f.t1), p.ScanTable(f.t2))
	assert.True(t, Apply(p, RuleGroupAll))
	require.Equal(t, plan.OpTypeLeftOuterJoin, p.Root.OpType())
	assert.True(t, p.Root.Child2().Op().IsTrue())
	assert.False(t, Apply(p, RuleGroupAll))

	// The right side always yields a row, so unmatched rows can't happen.
	p.Root = p.OuterApply(p.ScanTable(f.t1), p.SingleRowTable())
	assert.True(t, Apply(p, RuleGroupAll))
	assert.Equal(t, plan.OpTypeCrossJoin, p.Root.OpType())
	assert.False(t, Apply(p, RuleGroupAll))
}

func TestApplyOverFilter(t *testing.T) {
	tests := []struct {
		name     string
		apply    func(p *plan.Plan, left, right *plan.Node) *plan.Node
		expected plan.OpType
	}{
		{
			name:     "cross apply",
			apply:    (*plan.Plan).CrossApply,
			expected: plan.OpTypeInnerJoin,
		},
		{
			name:     "outer apply",
			apply:    (*plan.Plan).OuterApply,
			expected: plan.OpTypeLeftOuterJoin,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			p := f.p
			e := &evaluator{p: p, data: f.database()}

			p.Root = tt.apply(p, f.sorted(f.t1), p.Filter(p.ScanTable(f.t2), p.Eq(f.ref(f.c), f.ref(f.a))))
			expected := e.results(p.Root, f.a, f.b, f.c, f.d)

			assert.True(t, Apply(p, RuleGroupAll))
			assert.Equal(t, tt.expected, p.Root.OpType())
			assert.Equal(t, expected, e.results(p.Root, f.a, f.b, f.c, f.d))

			assert.False(t, Apply(p, RuleGroupAll))
		})
	}
}

func TestOuterApplyOverProject(t *testing.T) {
	f := newFixture()
	p := f.p
	e := &evaluator{p: p, data: f.database()}

	def, v := p.ComputedVarDef(f.int(7))
	p.Root = p.OuterApply(
		f.sorted(f.t1),
		p.Project(
			p.Filter(p.ScanTable(f.t2), p.Eq(f.ref(f.c), f.ref(f.a))),
			p.VarDefList(def),
			p.Vars.NewVarSet(f.c, v),
		),
	)
	expected := e.results(p.Root, f.a, f.b, f.c, v)

	changed, stats := ApplyWithStats(p, RuleGroupAll)
	assert.True(t, changed)
	assert.True(t, stats.ProjectionPruningRequired)

	require.Equal(t, plan.OpTypeProject, p.Root.OpType())
	assert.Equal(t, plan.OpTypeLeftOuterJoin, p.Root.Child0().OpType())
	// The constant must be null for rows of t1 without a match.
	definition := p.Root.Child1().Child0().Child0()
	assert.Equal(t, plan.OpTypeCase, definition.OpType())

	assert.Equal(t, expected, e.results(p.Root, f.a, f.b, f.c, v))
	assert.Contains(t, expected, "2|'y'|<null>|<null>")

	assert.False(t, Apply(p, RuleGroupAll))
}

func TestOuterApplyOverProjectWithoutNonNullableInput(t *testing.T) {
	f := newFixture()
	p := f.p
	e := &evaluator{p: p, data: f.database()}

	// t3 has no non-nullable column to serve as the sentinel, so one has to be added.
	t3 := p.NewTable("t3", plan.ColumnDef{Name: "e", Type: octoplan.String})
	e.data["t3"] = [][]octoplan.Value{
		{octoplan.NewString("x")},
		{octoplan.NewString("x")},
		{octoplan.NewNull()},
	}
	computed := p.Arithmetic(plan.OpTypePlus, f.ref(f.a), f.int(1))
	def, v := p.ComputedVarDef(computed)
	p.Root = p.OuterApply(
		f.sorted(f.t1),
		p.Project(
			p.Filter(p.ScanTable(t3), p.Eq(f.ref(t3.Columns[0]), f.ref(f.b))),
			p.VarDefList(def),
			p.Vars.NewVarSet(v),
		),
	)
	expected := e.results(p.Root, f.a, f.b, v)

	assert.True(t, Apply(p, RuleGroupAll))
	assert.Equal(t, plan.OpTypeProject, p.Root.OpType())
	assert.Equal(t, plan.OpTypeLeftOuterJoin, p.Root.Child0().OpType())
	assert.Equal(t, expected, e.results(p.Root, f.a, f.b, v))
	assert.Contains(t, expected, "2|'y'|<null>")
}

func TestApplyIntoScalarSubquery(t *testing.T) {
	f := newFixture()
	p := f.p

	countDef, count := p.ComputedVarDef(p.Aggregate("count", octoplan.Int64, f.ref(f.c)))
	p.Root = p.CrossApply(
		p.ScanTable(f.t1),
		p.GroupBy(
			p.Filter(p.ScanTable(f.t2), p.Eq(f.ref(f.c), f.ref(f.a))),
			p.VarDefList(),
			p.VarDefList(countDef),
			p.Vars.NewVarSet(),
			p.Vars.NewVarSet(count),
		),
	)

	changed, stats := ApplyWithStats(p, RuleGroupAll)
	assert.True(t, changed)
	assert.True(t, stats.ProjectionPruningRequired)

	require.Equal(t, plan.OpTypeProject, p.Root.OpType())
	assert.Equal(t, plan.OpTypeScanTable, p.Root.Child0().OpType())
	element := p.Root.Child1().Child0().Child0()
	require.Equal(t, plan.OpTypeElement, element.OpType())
	assert.Equal(t, plan.OpTypeGroupBy, element.Child0().OpType())

	info := p.GetExtendedNodeInfo(p.Root)
	assert.True(t, info.ExternalReferences.IsEmpty())
	assert.False(t, info.Definitions.Has(count))
	assert.Equal(t, 3, info.Definitions.Len())
}

func TestApplyIntoScalarSubqueryRowBounds(t *testing.T) {
	tests := []struct {
		name    string
		apply   func(p *plan.Plan, left, right *plan.Node) *plan.Node
		limit   int64
		applies bool
	}{
		{
			name:    "outer apply over at most one row",
			apply:   (*plan.Plan).OuterApply,
			limit:   1,
			applies: true,
		},
		{
			name:    "cross apply over at most one row",
			apply:   (*plan.Plan).CrossApply,
			limit:   1,
			applies: false,
		},
		{
			name:    "outer apply over many rows",
			apply:   (*plan.Plan).OuterApply,
			limit:   2,
			applies: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			p := f.p
			ctx := newTestContext(p, RuleGroupAll)

			right := p.Project(
				p.ConstrainedSort(p.Filter(p.ScanTable(f.t2), p.Eq(f.ref(f.c), f.ref(f.a))), f.int(0), f.int(tt.limit)),
				p.VarDefList(),
				p.Vars.NewVarSet(f.c),
			)
			n := tt.apply(p, p.ScanTable(f.t1), right)
			rule := outerApplyIntoScalarSubquery
			if n.OpType() == plan.OpTypeCrossApply {
				rule = crossApplyIntoScalarSubquery
			}
			out, changed := rule.Apply(ctx, n)
			assert.Equal(t, tt.applies, changed)
			if tt.applies {
				assert.Equal(t, plan.OpTypeProject, out.OpType())
			}
		})
	}
}

func TestCrossApplyOverLeftOuterJoinOverSingleRowTable(t *testing.T) {
	f := newFixture()
	ctx := newTestContext(f.p, RuleGroupAll)
	p := f.p

	right := p.Filter(p.ScanTable(f.t2), p.Eq(f.ref(f.c), f.ref(f.a)))
	n := p.CrossApply(p.ScanTable(f.t1), p.LeftOuterJoin(p.SingleRowTable(), right, p.True()))
	out, changed := crossApplyOverLeftOuterJoinOverSingleRowTable.Apply(ctx, n)
	require.True(t, changed)
	assert.Equal(t, plan.OpTypeOuterApply, out.OpType())
	assert.Same(t, right, out.Child1())

	n = p.CrossApply(p.ScanTable(f.t1), p.LeftOuterJoin(p.SingleRowTable(), right, p.False()))
	_, changed = crossApplyOverLeftOuterJoinOverSingleRowTable.Apply(ctx, n)
	assert.False(t, changed)
}

func TestOuterApplyOverProjectInternalConstantOverFilter(t *testing.T) {
	f := newFixture()
	p := f.p

	def, v := p.ComputedVarDef(p.InternalConstant(octoplan.NewInt32(1)))
	n := p.OuterApply(
		p.ScanTable(f.t1),
		p.Project(
			p.Filter(p.ScanTable(f.t2), p.Eq(f.ref(f.c), f.ref(f.a))),
			p.VarDefList(def),
			p.Vars.NewVarSet(v),
		),
	)
	ctx := newTestContext(p, RuleGroupAll)

	out, changed := outerApplyOverProjectInternalConstantOverFilter.Apply(ctx, n)
	require.True(t, changed)
	require.Equal(t, plan.OpTypeProject, out.OpType())
	assert.Equal(t, plan.OpTypeLeftOuterJoin, out.Child0().OpType())

	// t2.c is the non-nullable sentinel telling matched rows apart.
	definition := out.Child1().Child0().Child0()
	require.Equal(t, plan.OpTypeCase, definition.OpType())
	assert.Equal(t, plan.OpTypeIsNull, definition.Child0().OpType())
	assert.Equal(t, f.c, definition.Child0().Child0().Op().VarRef.Var)

	outputs := out.Op().Project.Outputs
	assert.True(t, outputs.Has(v))
	assert.True(t, outputs.Has(f.a))
	assert.True(t, outputs.Has(f.c))
}

func TestOuterApplyOverDummyProjectRequiresIndependentInput(t *testing.T) {
	f := newFixture()
	p := f.p

	def, v := p.ComputedVarDef(p.InternalConstant(octoplan.NewInt32(1)))
	// The filter input itself depends on t1, so there is no join to build.
	n := p.OuterApply(
		p.ScanTable(f.t1),
		p.Project(
			p.Filter(
				p.Filter(p.ScanTable(f.t2), p.Eq(f.ref(f.d), f.ref(f.b))),
				p.Eq(f.ref(f.c), f.ref(f.a)),
			),
			p.VarDefList(def),
			p.Vars.NewVarSet(v),
		),
	)
	ctx := newTestContext(p, RuleGroupAll)

	out, changed := outerApplyOverProjectInternalConstantOverFilter.Apply(ctx, n)
	assert.False(t, changed)
	assert.Same(t, n, out)
}

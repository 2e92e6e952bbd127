package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cube2222/octoplan/octoplan"
)

func TestPredicate_RoundTrip(t *testing.T) {
	f := newFixture()
	p := f.p

	x := p.Eq(p.VarRef(f.a), f.int(1))
	y := p.Compare(OpTypeLT, p.VarRef(f.c), f.int(3))
	z := p.IsNull(p.VarRef(f.b))

	pred := NewPredicate(p, p.And(p.And(x, y), z))
	assert.Equal(t, []*Node{x, y, z}, pred.Parts())

	rebuilt := pred.BuildAndTree()
	assert.Equal(t, []*Node{x, y, z}, NewPredicate(p, rebuilt).Parts())

	assert.Nil(t, NewPredicate(p, nil).BuildAndTree())
	assert.Equal(t, x, NewPredicate(p, x).BuildAndTree())
}

func TestPredicate_GetSingleTablePredicates(t *testing.T) {
	f := newFixture()
	p := f.p

	leftOnly := p.Eq(p.VarRef(f.a), f.int(1))
	rightOnly := p.Eq(p.VarRef(f.c), f.int(2))
	both := p.Compare(OpTypeLT, p.VarRef(f.b), p.VarRef(f.d))
	constant := p.True()

	pred := NewPredicate(p, p.And(p.And(leftOnly, rightOnly), p.And(both, constant)))
	single, other := pred.GetSingleTablePredicates(p.Vars.NewVarSet(f.a, f.b))
	assert.Equal(t, []*Node{leftOnly, constant}, single.Parts())
	assert.Equal(t, []*Node{rightOnly, both}, other.Parts())
}

func TestPredicate_GetJoinPredicates(t *testing.T) {
	f := newFixture()
	p := f.p

	equi := p.Eq(p.VarRef(f.c), p.VarRef(f.a))
	sameSide := p.Eq(p.VarRef(f.a), p.VarRef(f.b))
	nonEqui := p.Compare(OpTypeLT, p.VarRef(f.a), p.VarRef(f.c))

	pred := NewPredicate(p, p.And(p.And(equi, sameSide), nonEqui))
	join, other := pred.GetJoinPredicates(p.Vars.NewVarSet(f.a, f.b), p.Vars.NewVarSet(f.c, f.d))
	assert.Equal(t, []*Node{equi}, join.Parts())
	assert.Equal(t, []*Node{sameSide, nonEqui}, other.Parts())

	left, right, ok := IsEquiJoinPredicate(equi, p.Vars.NewVarSet(f.a, f.b), p.Vars.NewVarSet(f.c, f.d))
	assert.True(t, ok)
	assert.Equal(t, f.a, left)
	assert.Equal(t, f.c, right)
}

func TestPredicate_PreservesNulls(t *testing.T) {
	f := newFixture()
	p := f.p
	rightColumns := p.Vars.NewVarSet(f.c, f.d)
	str := func(s string) *Node {
		return p.Constant(octoplan.NewString(s))
	}

	tests := []struct {
		name      string
		predicate *Node
		ansi      bool
		want      bool
	}{
		{
			name:      "comparison over right column",
			predicate: p.Eq(p.VarRef(f.c), f.int(3)),
			ansi:      true,
			want:      false,
		},
		{
			name:      "comparison over right column without ansi semantics",
			predicate: p.Eq(p.VarRef(f.c), f.int(3)),
			ansi:      false,
			want:      true,
		},
		{
			name:      "comparison over left column",
			predicate: p.Eq(p.VarRef(f.a), f.int(3)),
			ansi:      true,
			want:      true,
		},
		{
			name:      "is null over right column",
			predicate: p.IsNull(p.VarRef(f.d)),
			ansi:      true,
			want:      true,
		},
		{
			name:      "is not null over right column",
			predicate: p.Not(p.IsNull(p.VarRef(f.d))),
			ansi:      false,
			want:      false,
		},
		{
			name:      "like with constant pattern",
			predicate: p.Like(p.VarRef(f.d), str("ab%"), p.Null(octoplan.String)),
			ansi:      true,
			want:      false,
		},
		{
			name:      "like with column pattern",
			predicate: p.Like(p.VarRef(f.d), p.VarRef(f.b), p.Null(octoplan.String)),
			ansi:      true,
			want:      false,
		},
		{
			name:      "like with cast pattern",
			predicate: p.Like(p.VarRef(f.d), p.Cast(p.VarRef(f.a), octoplan.String), p.Null(octoplan.String)),
			ansi:      true,
			want:      true,
		},
		{
			name:      "like over left column with column pattern",
			predicate: p.Like(p.VarRef(f.b), p.VarRef(f.d), p.Null(octoplan.String)),
			ansi:      true,
			want:      true,
		},
		{
			name:      "like with null pattern",
			predicate: p.Like(p.VarRef(f.d), p.Null(octoplan.String), p.Null(octoplan.String)),
			ansi:      true,
			want:      true,
		},
		{
			name:      "disjunction",
			predicate: p.Or(p.Eq(p.VarRef(f.c), f.int(3)), p.IsNull(p.VarRef(f.c))),
			ansi:      true,
			want:      true,
		},
		{
			name:      "conjunction with one rejecting part",
			predicate: p.And(p.IsNull(p.VarRef(f.b)), p.Compare(OpTypeGT, f.int(1), p.VarRef(f.c))),
			ansi:      true,
			want:      false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewPredicate(p, tt.predicate).PreservesNulls(rightColumns, tt.ansi))
		})
	}
}

func TestPredicate_SatisfiesKey(t *testing.T) {
	f := newFixture()
	p := f.p
	keys := p.Vars.NewVarSet(f.a)
	definitions := p.Vars.NewVarSet(f.a, f.b)

	assert.True(t, NewPredicate(p, p.Eq(f.int(1), p.VarRef(f.a))).SatisfiesKey(keys, definitions))
	assert.True(t, NewPredicate(p, p.Eq(p.VarRef(f.a), p.VarRef(f.c))).SatisfiesKey(keys, definitions))
	assert.False(t, NewPredicate(p, p.Eq(p.VarRef(f.a), p.VarRef(f.b))).SatisfiesKey(keys, definitions))
	assert.False(t, NewPredicate(p, p.Compare(OpTypeLT, p.VarRef(f.a), f.int(1))).SatisfiesKey(keys, definitions))
	assert.False(t, NewPredicate(p, p.Eq(p.VarRef(f.a), f.int(1))).SatisfiesKey(p.Vars.NewVarSet(), definitions))
}

func TestPredicate_ConstantChecks(t *testing.T) {
	p := New()
	assert.True(t, NewPredicate(p, nil).IsTrue())
	assert.True(t, NewPredicate(p, p.And(p.True(), p.True())).IsTrue())
	assert.True(t, NewPredicate(p, p.And(p.True(), p.False())).IsFalse())
	assert.False(t, NewPredicate(p, p.True()).IsFalse())
}

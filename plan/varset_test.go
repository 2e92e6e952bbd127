package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cube2222/octoplan/octoplan"
)

func TestVarSet(t *testing.T) {
	r := NewRegistry()
	a := r.NewColumnVar("a", octoplan.Int64)
	b := r.NewColumnVar("b", octoplan.Int64)
	c := r.NewColumnVar("c", octoplan.String)

	s := r.NewVarSet(a, b)
	assert.True(t, s.Has(a))
	assert.False(t, s.Has(c))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, "{a#0, b#1}", s.String())

	other := NewVarSet(b, c)
	assert.True(t, s.Overlaps(other))
	assert.False(t, s.Overlaps(NewVarSet(c)))

	union := s.Copy()
	union.Union(other)
	assert.Equal(t, []*Var{a, b, c}, union.Vars())
	assert.Equal(t, []*Var{a, b}, s.Vars())

	minus := s.Copy()
	minus.Minus(other)
	assert.Equal(t, []*Var{a}, minus.Vars())

	intersection := s.Copy()
	intersection.Intersect(other)
	assert.Equal(t, []*Var{b}, intersection.Vars())
	assert.True(t, intersection.IsSubsetOf(s))
	assert.False(t, s.IsSubsetOf(intersection))

	assert.Equal(t, a, s.First())
	s.Remove(a)
	assert.Equal(t, b, s.First())
	assert.True(t, s.Equals(intersection))
}

func TestVarSet_Empty(t *testing.T) {
	r := NewRegistry()
	a := r.NewComputedVar(octoplan.Boolean)

	empty := NewVarSet()
	assert.True(t, empty.IsEmpty())
	assert.Nil(t, empty.Vars())
	assert.Nil(t, empty.First())
	assert.True(t, empty.IsSubsetOf(r.NewVarSet(a)))
	assert.Equal(t, "{}", empty.String())

	u := Union(empty, r.NewVarSet(a))
	assert.Equal(t, []*Var{a}, u.Vars())
}

func TestVarMap_Keys(t *testing.T) {
	r := NewRegistry()
	a := r.NewComputedVar(octoplan.Int64)
	b := r.NewComputedVar(octoplan.Int64)
	c := r.NewComputedVar(octoplan.Int64)

	m := VarMap{c: a, a: b, b: c}
	assert.Equal(t, []*Var{a, b, c}, m.Keys())
	assert.Equal(t, "{v0 -> v1, v1 -> v2, v2 -> v0}", m.String())

	cp := m.Copy()
	delete(cp, a)
	assert.Len(t, m, 3)
}

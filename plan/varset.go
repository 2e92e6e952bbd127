package plan

import (
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/tools/container/intsets"
)

// VarSet is a mutable set of variables. Enumeration is in ascending variable ID order.
// A VarSet must not be copied by value, use Copy.
type VarSet struct {
	registry *Registry
	ids      intsets.Sparse
}

func newVarSet(r *Registry) *VarSet {
	return &VarSet{registry: r}
}

// NewVarSet creates a set holding the given variables.
// The registry is taken from the variables themselves.
func NewVarSet(vars ...*Var) *VarSet {
	s := &VarSet{}
	for _, v := range vars {
		s.Add(v)
	}
	return s
}

func (s *VarSet) bind(r *Registry) {
	if s.registry == nil {
		s.registry = r
	}
}

func (s *VarSet) Add(v *Var) {
	s.bind(v.registry)
	s.ids.Insert(v.ID)
}

func (s *VarSet) Remove(v *Var) {
	s.ids.Remove(v.ID)
}

func (s *VarSet) Has(v *Var) bool {
	return s.ids.Has(v.ID)
}

func (s *VarSet) Len() int {
	return s.ids.Len()
}

func (s *VarSet) IsEmpty() bool {
	return s.ids.IsEmpty()
}

// Union adds all variables of other to s.
func (s *VarSet) Union(other *VarSet) {
	s.bind(other.registry)
	s.ids.UnionWith(&other.ids)
}

// Minus removes all variables of other from s.
func (s *VarSet) Minus(other *VarSet) {
	s.ids.DifferenceWith(&other.ids)
}

// Intersect retains only the variables also present in other.
func (s *VarSet) Intersect(other *VarSet) {
	s.ids.IntersectionWith(&other.ids)
}

func (s *VarSet) Overlaps(other *VarSet) bool {
	return s.ids.Intersects(&other.ids)
}

func (s *VarSet) IsSubsetOf(other *VarSet) bool {
	return s.ids.SubsetOf(&other.ids)
}

func (s *VarSet) Equals(other *VarSet) bool {
	return s.ids.Equals(&other.ids)
}

func (s *VarSet) Copy() *VarSet {
	out := &VarSet{registry: s.registry}
	out.ids.Copy(&s.ids)
	return out
}

func (s *VarSet) Vars() []*Var {
	if s.ids.IsEmpty() {
		return nil
	}
	ids := s.ids.AppendTo(nil)
	out := make([]*Var, len(ids))
	for i, id := range ids {
		out[i] = s.registry.Var(id)
	}
	return out
}

// First returns the variable with the smallest ID, or nil for an empty set.
func (s *VarSet) First() *Var {
	if s.ids.IsEmpty() {
		return nil
	}
	return s.registry.Var(s.ids.Min())
}

func (s *VarSet) String() string {
	var sb strings.Builder
	sb.WriteString("{")
	for i, v := range s.Vars() {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(v.String())
	}
	sb.WriteString("}")
	return sb.String()
}

// Union returns a new set holding the variables of all given sets.
func Union(sets ...*VarSet) *VarSet {
	out := &VarSet{}
	for _, s := range sets {
		out.Union(s)
	}
	return out
}

// VarMap associates variables with variables.
type VarMap map[*Var]*Var

// Keys returns the mapped variables in ascending ID order.
func (m VarMap) Keys() []*Var {
	keys := maps.Keys(m)
	slices.SortFunc(keys, func(a, b *Var) bool {
		return a.ID < b.ID
	})
	return keys
}

func (m VarMap) Copy() VarMap {
	return maps.Clone(m)
}

func (m VarMap) String() string {
	var sb strings.Builder
	sb.WriteString("{")
	for i, k := range m.Keys() {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(k.String())
		sb.WriteString(" -> ")
		sb.WriteString(m[k].String())
	}
	sb.WriteString("}")
	return sb.String()
}

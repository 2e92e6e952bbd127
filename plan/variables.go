package plan

import (
	"fmt"
	"log"

	"github.com/cube2222/octoplan/octoplan"
)

type VarKind int

const (
	VarKindParameter VarKind = iota
	VarKindColumn
	VarKindComputed
	VarKindSetOp
)

func (k VarKind) String() string {
	switch k {
	case VarKindParameter:
		return "parameter"
	case VarKindColumn:
		return "column"
	case VarKindComputed:
		return "computed"
	case VarKindSetOp:
		return "setop"
	}
	panic("unexhaustive var kind match")
}

// Var is a typed logical value slot. Vars are compared by identity.
type Var struct {
	ID   int
	Kind VarKind
	Type octoplan.Type
	// Name is set for parameters and columns.
	Name string

	registry *Registry
}

func (v *Var) String() string {
	if v.Name != "" {
		return fmt.Sprintf("%s#%d", v.Name, v.ID)
	}
	return fmt.Sprintf("v%d", v.ID)
}

// Registry allocates variables for a single plan.
type Registry struct {
	vars []*Var
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) newVar(kind VarKind, name string, t octoplan.Type) *Var {
	v := &Var{
		ID:       len(r.vars),
		Kind:     kind,
		Type:     t,
		Name:     name,
		registry: r,
	}
	r.vars = append(r.vars, v)
	return v
}

func (r *Registry) NewParameterVar(name string, t octoplan.Type) *Var {
	return r.newVar(VarKindParameter, name, t)
}

func (r *Registry) NewColumnVar(name string, t octoplan.Type) *Var {
	return r.newVar(VarKindColumn, name, t)
}

func (r *Registry) NewComputedVar(t octoplan.Type) *Var {
	return r.newVar(VarKindComputed, "", t)
}

func (r *Registry) NewSetOpVar(t octoplan.Type) *Var {
	return r.newVar(VarKindSetOp, "", t)
}

// NewVarLike allocates a fresh variable of the same kind, name and type as v.
func (r *Registry) NewVarLike(v *Var) *Var {
	return r.newVar(v.Kind, v.Name, v.Type)
}

func (r *Registry) Var(id int) *Var {
	if id < 0 || id >= len(r.vars) {
		log.Panicf("variable %d is not registered", id)
	}
	return r.vars[id]
}

func (r *Registry) Len() int {
	return len(r.vars)
}

// NewVarSet creates an empty set bound to this registry.
func (r *Registry) NewVarSet(vars ...*Var) *VarSet {
	s := newVarSet(r)
	for _, v := range vars {
		s.Add(v)
	}
	return s
}

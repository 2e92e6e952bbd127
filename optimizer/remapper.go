package optimizer

import (
	"github.com/cube2222/octoplan/plan"
)

// varRemapper replaces references to superseded variables.
// Mappings are followed transitively.
type varRemapper struct {
	p        *plan.Plan
	mappings plan.VarMap
	remapped *plan.VarSet
}

func newVarRemapper(p *plan.Plan) *varRemapper {
	return &varRemapper{
		p:        p,
		mappings: plan.VarMap{},
		remapped: p.Vars.NewVarSet(),
	}
}

func (r *varRemapper) addMapping(oldVar, newVar *plan.Var) {
	if oldVar == newVar {
		return
	}
	r.mappings[oldVar] = newVar
	r.remapped.Add(oldVar)
}

func (r *varRemapper) lookup(v *plan.Var) *plan.Var {
	seen := 0
	for {
		next, ok := r.mappings[v]
		if !ok {
			return v
		}
		v = next
		seen++
		if seen > len(r.mappings) {
			panic("cyclic variable remapping")
		}
	}
}

func (r *varRemapper) remapSet(s *plan.VarSet) (*plan.VarSet, bool) {
	if s == nil || !s.Overlaps(r.remapped) {
		return s, false
	}
	out := r.p.Vars.NewVarSet()
	for _, v := range s.Vars() {
		out.Add(r.lookup(v))
	}
	return out, true
}

// remapNode rewrites the node's own operator. Children are left untouched.
func (r *varRemapper) remapNode(n *plan.Node) bool {
	op := n.Op()
	changed := false
	switch op.OpType {
	case plan.OpTypeVarRef:
		if v := r.lookup(op.VarRef.Var); v != op.VarRef.Var {
			op = plan.NewVarRefOp(v)
			changed = true
		}

	case plan.OpTypeProject:
		if outputs, ok := r.remapSet(op.Project.Outputs); ok {
			op = plan.NewProjectOp(outputs)
			changed = true
		}

	case plan.OpTypeDistinct:
		if keys, ok := r.remapSet(op.Distinct.Keys); ok {
			op = plan.NewDistinctOp(keys)
			changed = true
		}

	case plan.OpTypeGroupBy:
		keys, keysChanged := r.remapSet(op.GroupBy.Keys)
		outputs, outputsChanged := r.remapSet(op.GroupBy.Outputs)
		if keysChanged || outputsChanged {
			op = plan.NewGroupByOp(keys, outputs)
			changed = true
		}

	case plan.OpTypeUnionAll, plan.OpTypeIntersect, plan.OpTypeExcept:
		var maps [2]plan.VarMap
		for i, varMap := range op.SetOp.VarMaps {
			maps[i] = plan.VarMap{}
			for _, k := range varMap.Keys() {
				maps[i][k] = r.lookup(varMap[k])
				if maps[i][k] != varMap[k] {
					changed = true
				}
			}
		}
		if changed {
			op = plan.NewSetOp(op.OpType, op.SetOp.Outputs, maps[0], maps[1])
		}

	case plan.OpTypeSort, plan.OpTypeConstrainedSort:
		keys := make([]plan.SortKey, len(op.Sort.Keys))
		for i, key := range op.Sort.Keys {
			keys[i] = plan.SortKey{Var: r.lookup(key.Var), Ascending: key.Ascending}
			if keys[i].Var != key.Var {
				changed = true
			}
		}
		if changed {
			if op.OpType == plan.OpTypeSort {
				op = plan.NewSortOp(keys)
			} else {
				op = plan.NewConstrainedSortOp(keys)
			}
		}
	}
	if changed {
		n.SetOp(op)
	}
	return changed
}

// remapSubtree rewrites the whole subtree, recomputing the analysis of every node on a changed path.
func (r *varRemapper) remapSubtree(n *plan.Node) bool {
	if len(r.mappings) == 0 {
		return false
	}
	changed := false
	for i := 0; i < n.ChildCount(); i++ {
		if r.remapSubtree(n.Child(i)) {
			changed = true
		}
	}
	if r.remapNode(n) {
		changed = true
	}
	if changed {
		r.p.RecomputeNodeInfo(n)
	}
	return changed
}

package plan

// CopySubtree returns a deep copy of n. Every variable defined inside the subtree
// is replaced by a fresh one, references are rewritten accordingly.
// The returned map associates the original definitions with their replacements.
func (p *Plan) CopySubtree(n *Node) (*Node, VarMap) {
	c := &copier{
		plan:   p,
		varMap: VarMap{},
	}
	return c.copyNode(n), c.varMap
}

type copier struct {
	plan   *Plan
	varMap VarMap
}

func (c *copier) copyNode(n *Node) *Node {
	children := make([]*Node, len(n.children))
	for i := range n.children {
		children[i] = c.copyNode(n.children[i])
	}
	return c.plan.CreateNode(c.copyOp(n.op), children...)
}

func (c *copier) fresh(v *Var) *Var {
	out := c.plan.Vars.NewVarLike(v)
	c.varMap[v] = out
	return out
}

func (c *copier) remap(v *Var) *Var {
	if out, ok := c.varMap[v]; ok {
		return out
	}
	return v
}

func (c *copier) remapSet(s *VarSet) *VarSet {
	if s == nil {
		return nil
	}
	out := c.plan.Vars.NewVarSet()
	for _, v := range s.Vars() {
		out.Add(c.remap(v))
	}
	return out
}

// copyOp runs after the children are copied, so all definitions below are already mapped.
func (c *copier) copyOp(op Op) Op {
	out := Op{
		OpType:     op.OpType,
		ScalarType: op.ScalarType,
	}
	switch op.OpType {
	case OpTypeScanTable:
		table := op.ScanTable.Table
		newTable := &Table{
			Name: table.Name,
		}
		for _, column := range table.Columns {
			newTable.Columns = append(newTable.Columns, c.fresh(column))
		}
		newTable.NonNullable = c.remapSet(table.NonNullable)
		newTable.Keys = c.remapSet(table.Keys)
		out.ScanTable = &ScanTable{Table: newTable}

	case OpTypeProject:
		out.Project = &Project{Outputs: c.remapSet(op.Project.Outputs)}

	case OpTypeUnionAll, OpTypeIntersect, OpTypeExcept:
		setOp := &SetOp{Outputs: c.plan.Vars.NewVarSet()}
		for i := range setOp.VarMaps {
			setOp.VarMaps[i] = VarMap{}
		}
		for _, v := range op.SetOp.Outputs.Vars() {
			newVar := c.fresh(v)
			setOp.Outputs.Add(newVar)
			for i, m := range op.SetOp.VarMaps {
				setOp.VarMaps[i][newVar] = c.remap(m[v])
			}
		}
		out.SetOp = setOp

	case OpTypeDistinct:
		out.Distinct = &Distinct{Keys: c.remapSet(op.Distinct.Keys)}

	case OpTypeGroupBy:
		out.GroupBy = &GroupBy{
			Keys:    c.remapSet(op.GroupBy.Keys),
			Outputs: c.remapSet(op.GroupBy.Outputs),
		}

	case OpTypeSort, OpTypeConstrainedSort:
		keys := make([]SortKey, len(op.Sort.Keys))
		for i, key := range op.Sort.Keys {
			keys[i] = SortKey{Var: c.remap(key.Var), Ascending: key.Ascending}
		}
		out.Sort = &Sort{Keys: keys}

	case OpTypeVarDef:
		out.VarDef = &VarDef{Var: c.fresh(op.VarDef.Var)}

	case OpTypeVarRef:
		out.VarRef = &VarRef{Var: c.remap(op.VarRef.Var)}

	case OpTypeConstant, OpTypeNull, OpTypeInternalConstant, OpTypeNullSentinel, OpTypeConstantPredicate:
		constant := *op.Constant
		out.Constant = &constant

	case OpTypeAggregate:
		aggregate := *op.Aggregate
		out.Aggregate = &aggregate
	}
	return out
}

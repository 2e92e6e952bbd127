package plan

// Predicate is a conjunction of parts, obtained by flattening nested And nodes.
// It's a transient view, built for a single rewrite and discarded afterwards.
type Predicate struct {
	plan  *Plan
	parts []*Node
}

func NewPredicate(p *Plan, root *Node) *Predicate {
	out := &Predicate{plan: p}
	if root != nil {
		out.AddPart(root)
	}
	return out
}

// AddPart appends a conjunct, flattening it if it's an And itself.
func (pr *Predicate) AddPart(n *Node) {
	if n.op.OpType == OpTypeAnd {
		pr.AddPart(n.children[0])
		pr.AddPart(n.children[1])
		return
	}
	pr.parts = append(pr.parts, n)
}

func (pr *Predicate) Parts() []*Node {
	return pr.parts
}

func (pr *Predicate) IsEmpty() bool {
	return len(pr.parts) == 0
}

// BuildAndTree rebuilds a left-deep And tree. Returns nil for an empty predicate.
func (pr *Predicate) BuildAndTree() *Node {
	var out *Node
	for _, part := range pr.parts {
		if out == nil {
			out = part
			continue
		}
		out = pr.plan.And(out, part)
	}
	return out
}

// IsTrue reports whether the predicate has no parts or only constant true parts.
func (pr *Predicate) IsTrue() bool {
	for _, part := range pr.parts {
		if !part.op.IsTrue() {
			return false
		}
	}
	return true
}

// IsFalse reports whether any part is the constant false predicate.
func (pr *Predicate) IsFalse() bool {
	for _, part := range pr.parts {
		if part.op.IsFalse() {
			return true
		}
	}
	return false
}

// GetSingleTablePredicates splits off the parts which only reference tableDefinitions.
// Parts referencing nothing at all are included.
func (pr *Predicate) GetSingleTablePredicates(tableDefinitions *VarSet) (single, other *Predicate) {
	single = NewPredicate(pr.plan, nil)
	other = NewPredicate(pr.plan, nil)
	for _, part := range pr.parts {
		if pr.plan.GetNodeInfo(part).ExternalReferences.IsSubsetOf(tableDefinitions) {
			single.parts = append(single.parts, part)
		} else {
			other.parts = append(other.parts, part)
		}
	}
	return single, other
}

// GetJoinPredicates splits off the `VarRef = VarRef` parts which have one side in each definition set.
func (pr *Predicate) GetJoinPredicates(leftDefinitions, rightDefinitions *VarSet) (join, other *Predicate) {
	join = NewPredicate(pr.plan, nil)
	other = NewPredicate(pr.plan, nil)
	for _, part := range pr.parts {
		if _, _, ok := IsEquiJoinPredicate(part, leftDefinitions, rightDefinitions); ok {
			join.parts = append(join.parts, part)
		} else {
			other.parts = append(other.parts, part)
		}
	}
	return join, other
}

// IsEquiJoinPredicate checks whether n is `VarRef = VarRef` with one side defined on each side.
// The returned vars are ordered left, right.
func IsEquiJoinPredicate(n *Node, leftDefinitions, rightDefinitions *VarSet) (left, right *Var, ok bool) {
	if n.op.OpType != OpTypeEQ {
		return nil, nil, false
	}
	if n.children[0].op.OpType != OpTypeVarRef || n.children[1].op.OpType != OpTypeVarRef {
		return nil, nil, false
	}
	a := n.children[0].op.VarRef.Var
	b := n.children[1].op.VarRef.Var
	switch {
	case leftDefinitions.Has(a) && rightDefinitions.Has(b):
		return a, b, true
	case leftDefinitions.Has(b) && rightDefinitions.Has(a):
		return b, a, true
	}
	return nil, nil, false
}

// SatisfiesKey reports whether every key var is equated to an expression
// which doesn't reference any of the given definitions.
func (pr *Predicate) SatisfiesKey(keyVars, definitions *VarSet) bool {
	if keyVars.IsEmpty() {
		return false
	}
	missing := keyVars.Copy()
	for _, part := range pr.parts {
		if part.op.OpType != OpTypeEQ {
			continue
		}
		if keyVar, ok := pr.isKeyPredicate(part.children[0], part.children[1], keyVars, definitions); ok {
			missing.Remove(keyVar)
		} else if keyVar, ok := pr.isKeyPredicate(part.children[1], part.children[0], keyVars, definitions); ok {
			missing.Remove(keyVar)
		}
	}
	return missing.IsEmpty()
}

func (pr *Predicate) isKeyPredicate(left, right *Node, keyVars, definitions *VarSet) (*Var, bool) {
	if left.op.OpType != OpTypeVarRef {
		return nil, false
	}
	keyVar := left.op.VarRef.Var
	if !keyVars.Has(keyVar) {
		return nil, false
	}
	if pr.plan.GetNodeInfo(right).ExternalReferences.Overlaps(definitions) {
		return nil, false
	}
	return keyVar, true
}

// PreservesNulls reports whether rows with nulls in tableColumns may survive the predicate.
// It returns false as soon as one part is known to reject such rows.
// Without ANSI null semantics comparisons may match nulls, so only `NOT IS NULL` counts.
func (pr *Predicate) PreservesNulls(tableColumns *VarSet, ansiNullSemantics bool) bool {
	for _, part := range pr.parts {
		if !preservesNulls(part, tableColumns, ansiNullSemantics) {
			return false
		}
	}
	return true
}

func preservesNulls(part *Node, tableColumns *VarSet, ansiNullSemantics bool) bool {
	isTableVarRef := func(n *Node) bool {
		return n.op.OpType == OpTypeVarRef && tableColumns.Has(n.op.VarRef.Var)
	}

	switch part.op.OpType {
	case OpTypeEQ, OpTypeNE, OpTypeLT, OpTypeGT, OpTypeLE, OpTypeGE:
		if !ansiNullSemantics {
			return true
		}
		return !isTableVarRef(part.children[0]) && !isTableVarRef(part.children[1])

	case OpTypeLike:
		if !ansiNullSemantics {
			return true
		}
		switch pattern := part.children[1]; pattern.op.OpType {
		case OpTypeVarRef:
		case OpTypeConstant, OpTypeInternalConstant:
			if pattern.op.Constant.Value.IsNull() {
				return true
			}
		default:
			return true
		}
		return !isTableVarRef(part.children[0])

	case OpTypeNot:
		arg := part.children[0]
		if arg.op.OpType == OpTypeIsNull {
			return !isTableVarRef(arg.children[0])
		}
		return true
	}
	return true
}

package plan

import (
	"fmt"
)

type RowCount int

const (
	RowCountZero RowCount = iota
	RowCountOne
	RowCountUnbounded
)

func (c RowCount) String() string {
	switch c {
	case RowCountZero:
		return "0"
	case RowCountOne:
		return "1"
	case RowCountUnbounded:
		return "n"
	}
	panic("unexhaustive row count match")
}

func minRowCount(a, b RowCount) RowCount {
	if a < b {
		return a
	}
	return b
}

func maxRowCount(a, b RowCount) RowCount {
	if a > b {
		return a
	}
	return b
}

// NodeInfo is the analysis available for every node.
type NodeInfo struct {
	// ExternalReferences are the variables used but not defined by the subtree.
	ExternalReferences *VarSet
	HashValue          uint64
}

// ExtendedNodeInfo adds relational properties to NodeInfo.
type ExtendedNodeInfo struct {
	NodeInfo

	Definitions      *VarSet
	LocalDefinitions *VarSet
	// NonNullableDefinitions are the definitions proven to never be null.
	NonNullableDefinitions *VarSet
	// NonNullableVisibleDefinitions are the non-nullable definitions of the inputs,
	// visible to the operator's own expressions.
	NonNullableVisibleDefinitions *VarSet
	// Keys is nil when no key is known. An empty key means at most one row.
	Keys    *VarSet
	MinRows RowCount
	MaxRows RowCount
}

func (p *Plan) GetNodeInfo(n *Node) *NodeInfo {
	return &p.info(n).NodeInfo
}

// GetExtendedNodeInfo is only valid for relational nodes.
func (p *Plan) GetExtendedNodeInfo(n *Node) *ExtendedNodeInfo {
	if !n.op.OpType.IsRelational() {
		panic(fmt.Sprintf("extended node info requested for non-relational op %s", n.op.OpType))
	}
	return p.info(n)
}

// RecomputeNodeInfo rebuilds the node's analysis from its children's.
// Must be called after mutating payloads reachable from the node's Op.
func (p *Plan) RecomputeNodeInfo(n *Node) {
	n.info = p.computeNodeInfo(n)
}

func (p *Plan) info(n *Node) *ExtendedNodeInfo {
	if n.info == nil {
		n.info = p.computeNodeInfo(n)
	}
	return n.info
}

func (p *Plan) computeNodeInfo(n *Node) *ExtendedNodeInfo {
	info := &ExtendedNodeInfo{
		NodeInfo: NodeInfo{
			ExternalReferences: p.Vars.NewVarSet(),
		},
		Definitions:                   p.Vars.NewVarSet(),
		LocalDefinitions:              p.Vars.NewVarSet(),
		NonNullableDefinitions:        p.Vars.NewVarSet(),
		NonNullableVisibleDefinitions: p.Vars.NewVarSet(),
		MinRows:                       RowCountZero,
		MaxRows:                       RowCountUnbounded,
	}
	info.HashValue = p.hashNode(n)

	op := n.op
	switch op.OpType {
	case OpTypeVarRef:
		info.ExternalReferences.Add(op.VarRef.Var)

	case OpTypeVarDef:
		info.ExternalReferences.Union(p.info(n.children[0]).ExternalReferences)
		info.Definitions.Add(op.VarDef.Var)
		info.LocalDefinitions.Add(op.VarDef.Var)

	case OpTypeVarDefList:
		for _, child := range n.children {
			childInfo := p.info(child)
			info.ExternalReferences.Union(childInfo.ExternalReferences)
			info.Definitions.Union(childInfo.Definitions)
			info.LocalDefinitions.Union(childInfo.LocalDefinitions)
		}

	case OpTypeScanTable:
		table := op.ScanTable.Table
		for _, column := range table.Columns {
			info.Definitions.Add(column)
		}
		info.LocalDefinitions.Union(info.Definitions)
		if table.NonNullable != nil {
			info.NonNullableDefinitions.Union(table.NonNullable)
		}
		if table.Keys != nil {
			info.Keys = table.Keys.Copy()
		}

	case OpTypeSingleRowTable:
		info.Keys = p.Vars.NewVarSet()
		info.MinRows = RowCountOne
		info.MaxRows = RowCountOne

	case OpTypeFilter:
		input := p.info(n.children[0])
		p.inheritRelational(info, input)
		p.addExternalReferences(info, input, p.info(n.children[1]))
		info.MinRows = RowCountZero
		if n.children[1].op.IsFalse() {
			info.MaxRows = RowCountZero
		}

	case OpTypeProject:
		input := p.info(n.children[0])
		defs := p.info(n.children[1])
		outputs := op.Project.Outputs

		info.Definitions.Union(outputs)
		info.LocalDefinitions.Union(defs.LocalDefinitions)
		p.addExternalReferences(info, input, defs)

		info.NonNullableVisibleDefinitions.Union(input.NonNullableDefinitions)
		info.NonNullableDefinitions.Union(input.NonNullableDefinitions)
		for _, def := range n.children[1].children {
			if isNonNullableExpression(def.children[0], input.NonNullableDefinitions) {
				info.NonNullableDefinitions.Add(def.op.VarDef.Var)
			}
		}
		info.NonNullableDefinitions.Intersect(outputs)

		if input.Keys != nil && input.Keys.IsSubsetOf(outputs) {
			info.Keys = input.Keys.Copy()
		}
		info.MinRows = input.MinRows
		info.MaxRows = input.MaxRows

	case OpTypeGroupBy:
		input := p.info(n.children[0])
		keyDefs := p.info(n.children[1])
		aggregateDefs := p.info(n.children[2])

		info.Definitions.Union(op.GroupBy.Outputs)
		info.LocalDefinitions.Union(keyDefs.LocalDefinitions)
		info.LocalDefinitions.Union(aggregateDefs.LocalDefinitions)
		p.addExternalReferences(info, input, keyDefs)
		p.addExternalReferences(info, input, aggregateDefs)

		info.NonNullableVisibleDefinitions.Union(input.NonNullableDefinitions)
		for _, key := range op.GroupBy.Keys.Vars() {
			if input.NonNullableDefinitions.Has(key) {
				info.NonNullableDefinitions.Add(key)
			}
		}
		for _, def := range n.children[1].children {
			if isNonNullableExpression(def.children[0], input.NonNullableDefinitions) {
				info.NonNullableDefinitions.Add(def.op.VarDef.Var)
			}
		}
		info.NonNullableDefinitions.Intersect(op.GroupBy.Outputs)

		info.Keys = op.GroupBy.Keys.Copy()
		if op.GroupBy.Keys.IsEmpty() {
			info.MinRows = RowCountOne
			info.MaxRows = RowCountOne
		} else {
			if input.MinRows == RowCountOne {
				info.MinRows = RowCountOne
			}
			info.MaxRows = input.MaxRows
		}

	case OpTypeCrossJoin, OpTypeInnerJoin, OpTypeLeftOuterJoin:
		left := p.info(n.children[0])
		right := p.info(n.children[1])

		info.Definitions.Union(left.Definitions)
		info.Definitions.Union(right.Definitions)
		info.ExternalReferences.Union(left.ExternalReferences)
		info.ExternalReferences.Union(right.ExternalReferences)
		if op.OpType != OpTypeCrossJoin {
			predicateRefs := p.info(n.children[2]).ExternalReferences.Copy()
			predicateRefs.Minus(info.Definitions)
			info.ExternalReferences.Union(predicateRefs)
		}

		info.NonNullableDefinitions.Union(left.NonNullableDefinitions)
		if op.OpType != OpTypeLeftOuterJoin {
			info.NonNullableDefinitions.Union(right.NonNullableDefinitions)
		}
		info.NonNullableVisibleDefinitions.Union(left.NonNullableDefinitions)
		info.NonNullableVisibleDefinitions.Union(right.NonNullableDefinitions)
		if left.Keys != nil && right.Keys != nil {
			info.Keys = Union(left.Keys, right.Keys)
		}

		switch op.OpType {
		case OpTypeCrossJoin:
			info.MinRows = minRowCount(left.MinRows, right.MinRows)
			info.MaxRows = joinMaxRows(left.MaxRows, right.MaxRows)
		case OpTypeInnerJoin:
			info.MinRows = RowCountZero
			info.MaxRows = joinMaxRows(left.MaxRows, right.MaxRows)
			if n.children[2].op.IsFalse() {
				info.MaxRows = RowCountZero
			}
		case OpTypeLeftOuterJoin:
			info.MinRows = left.MinRows
			info.MaxRows = left.MaxRows
			if right.MaxRows > RowCountOne {
				info.MaxRows = joinMaxRows(left.MaxRows, right.MaxRows)
			}
		}

	case OpTypeCrossApply, OpTypeOuterApply:
		left := p.info(n.children[0])
		right := p.info(n.children[1])

		info.Definitions.Union(left.Definitions)
		info.Definitions.Union(right.Definitions)
		info.ExternalReferences.Union(left.ExternalReferences)
		rightRefs := right.ExternalReferences.Copy()
		rightRefs.Minus(left.Definitions)
		info.ExternalReferences.Union(rightRefs)

		info.NonNullableDefinitions.Union(left.NonNullableDefinitions)
		if op.OpType == OpTypeCrossApply {
			info.NonNullableDefinitions.Union(right.NonNullableDefinitions)
		}
		info.NonNullableVisibleDefinitions.Union(left.NonNullableDefinitions)
		info.NonNullableVisibleDefinitions.Union(right.NonNullableDefinitions)
		if left.Keys != nil && right.Keys != nil {
			info.Keys = Union(left.Keys, right.Keys)
		}

		if op.OpType == OpTypeCrossApply {
			info.MaxRows = joinMaxRows(left.MaxRows, right.MaxRows)
			if right.MinRows == RowCountOne {
				info.MinRows = left.MinRows
			}
		} else {
			info.MinRows = left.MinRows
			info.MaxRows = left.MaxRows
			if right.MaxRows > RowCountOne {
				info.MaxRows = joinMaxRows(left.MaxRows, right.MaxRows)
			}
		}

	case OpTypeUnionAll, OpTypeIntersect, OpTypeExcept:
		left := p.info(n.children[0])
		right := p.info(n.children[1])
		setOp := op.SetOp

		info.Definitions.Union(setOp.Outputs)
		info.LocalDefinitions.Union(setOp.Outputs)
		info.ExternalReferences.Union(left.ExternalReferences)
		info.ExternalReferences.Union(right.ExternalReferences)

		for _, v := range setOp.Outputs.Vars() {
			leftNonNullable := left.NonNullableDefinitions.Has(setOp.VarMaps[0][v])
			rightNonNullable := right.NonNullableDefinitions.Has(setOp.VarMaps[1][v])
			var nonNullable bool
			switch op.OpType {
			case OpTypeUnionAll:
				nonNullable = leftNonNullable && rightNonNullable
			case OpTypeIntersect:
				nonNullable = leftNonNullable || rightNonNullable
			case OpTypeExcept:
				nonNullable = leftNonNullable
			}
			if nonNullable {
				info.NonNullableDefinitions.Add(v)
			}
		}

		switch op.OpType {
		case OpTypeUnionAll:
			info.MinRows = maxRowCount(left.MinRows, right.MinRows)
			if left.MaxRows == RowCountZero {
				info.MaxRows = right.MaxRows
			} else if right.MaxRows == RowCountZero {
				info.MaxRows = left.MaxRows
			}
		case OpTypeIntersect:
			info.Keys = setOp.Outputs.Copy()
			info.MaxRows = minRowCount(left.MaxRows, right.MaxRows)
		case OpTypeExcept:
			info.Keys = setOp.Outputs.Copy()
			info.MaxRows = left.MaxRows
		}

	case OpTypeDistinct:
		input := p.info(n.children[0])
		keys := op.Distinct.Keys

		info.Definitions.Union(keys)
		info.ExternalReferences.Union(input.ExternalReferences)
		info.NonNullableDefinitions.Union(input.NonNullableDefinitions)
		info.NonNullableDefinitions.Intersect(keys)
		info.NonNullableVisibleDefinitions.Union(input.NonNullableDefinitions)
		info.Keys = keys.Copy()
		info.MinRows = input.MinRows
		info.MaxRows = input.MaxRows

	case OpTypeSort:
		input := p.info(n.children[0])
		p.inheritRelational(info, input)
		info.ExternalReferences.Union(input.ExternalReferences)
		info.MinRows = input.MinRows
		info.MaxRows = input.MaxRows

	case OpTypeConstrainedSort:
		input := p.info(n.children[0])
		p.inheritRelational(info, input)
		p.addExternalReferences(info, input, p.info(n.children[1]))
		p.addExternalReferences(info, input, p.info(n.children[2]))
		info.MinRows = RowCountZero
		info.MaxRows = input.MaxRows
		if limit, ok := integerConstant(n.children[2]); ok && limit >= 0 && limit <= 1 {
			info.MaxRows = RowCount(limit)
		}

	default:
		if !op.OpType.IsScalar() {
			panic(fmt.Sprintf("unexhaustive op type match: %s", op.OpType))
		}
		for _, child := range n.children {
			info.ExternalReferences.Union(p.info(child).ExternalReferences)
		}
	}

	return info
}

func (p *Plan) inheritRelational(info, input *ExtendedNodeInfo) {
	info.Definitions.Union(input.Definitions)
	info.NonNullableDefinitions.Union(input.NonNullableDefinitions)
	info.NonNullableVisibleDefinitions.Union(input.NonNullableDefinitions)
	if input.Keys != nil {
		info.Keys = input.Keys.Copy()
	}
}

// addExternalReferences adds the input's external references and the
// references of an expression subtree which the input doesn't define.
func (p *Plan) addExternalReferences(info, input, expr *ExtendedNodeInfo) {
	info.ExternalReferences.Union(input.ExternalReferences)
	refs := expr.ExternalReferences.Copy()
	refs.Minus(input.Definitions)
	info.ExternalReferences.Union(refs)
}

func joinMaxRows(left, right RowCount) RowCount {
	if left == RowCountZero || right == RowCountZero {
		return RowCountZero
	}
	if left == RowCountOne && right == RowCountOne {
		return RowCountOne
	}
	return RowCountUnbounded
}

func isNonNullableExpression(expr *Node, nonNullableInputs *VarSet) bool {
	switch expr.op.OpType {
	case OpTypeConstant:
		return !expr.op.Constant.Value.IsNull()
	case OpTypeInternalConstant, OpTypeNullSentinel, OpTypeConstantPredicate:
		return true
	case OpTypeVarRef:
		return nonNullableInputs.Has(expr.op.VarRef.Var)
	}
	return false
}

func integerConstant(n *Node) (int64, bool) {
	switch n.op.OpType {
	case OpTypeConstant, OpTypeInternalConstant:
		if n.op.Constant.Value.Type.IsInteger() {
			return n.op.Constant.Value.Int, true
		}
	}
	return 0, false
}

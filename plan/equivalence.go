package plan

import (
	"encoding/binary"
	"math"

	"github.com/dchest/siphash"
)

const (
	hashKey0 = 0x6f63746f706c616e
	hashKey1 = 0x7265777269746573
)

// hashNode combines the operator payload with the children's hashes.
// Equal hashes don't imply equivalence, use IsEquivalent.
func (p *Plan) hashNode(n *Node) uint64 {
	buf := make([]byte, 0, 64)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(n.op.OpType))
	buf = appendOpPayload(buf, n.op)
	for _, child := range n.children {
		buf = binary.LittleEndian.AppendUint64(buf, p.info(child).HashValue)
	}
	return siphash.Hash(hashKey0, hashKey1, buf)
}

func appendOpPayload(buf []byte, op Op) []byte {
	appendInt := func(buf []byte, x int) []byte {
		return binary.LittleEndian.AppendUint64(buf, uint64(x))
	}
	appendSet := func(buf []byte, s *VarSet) []byte {
		for _, v := range s.Vars() {
			buf = appendInt(buf, v.ID)
		}
		return appendInt(buf, -1)
	}

	buf = appendInt(buf, int(op.ScalarType.TypeID))
	switch {
	case op.ScanTable != nil:
		buf = append(buf, op.ScanTable.Table.Name...)
		for _, column := range op.ScanTable.Table.Columns {
			buf = appendInt(buf, column.ID)
		}
	case op.Project != nil:
		buf = appendSet(buf, op.Project.Outputs)
	case op.SetOp != nil:
		buf = appendSet(buf, op.SetOp.Outputs)
		for _, m := range op.SetOp.VarMaps {
			for _, k := range m.Keys() {
				buf = appendInt(buf, k.ID)
				buf = appendInt(buf, m[k].ID)
			}
		}
	case op.Distinct != nil:
		buf = appendSet(buf, op.Distinct.Keys)
	case op.GroupBy != nil:
		buf = appendSet(buf, op.GroupBy.Keys)
		buf = appendSet(buf, op.GroupBy.Outputs)
	case op.Sort != nil:
		for _, key := range op.Sort.Keys {
			buf = appendInt(buf, key.Var.ID)
			if key.Ascending {
				buf = append(buf, 1)
			}
		}
	case op.VarDef != nil:
		buf = appendInt(buf, op.VarDef.Var.ID)
	case op.VarRef != nil:
		buf = appendInt(buf, op.VarRef.Var.ID)
	case op.Constant != nil:
		value := op.Constant.Value
		buf = appendInt(buf, int(value.Type.TypeID))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(value.Int))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(value.Float))
		buf = append(buf, value.Str...)
		if value.Boolean {
			buf = append(buf, 1)
		}
		buf = binary.LittleEndian.AppendUint64(buf, uint64(value.Time.UnixNano()))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(value.Duration))
	case op.Aggregate != nil:
		buf = append(buf, op.Aggregate.Name...)
	}
	return buf
}

// IsEquivalent reports whether two subtrees are structurally identical,
// referencing the same variables.
func IsEquivalent(a, b *Node) bool {
	if a == b {
		return true
	}
	if !a.op.isEquivalent(b.op) || len(a.children) != len(b.children) {
		return false
	}
	for i := range a.children {
		if !IsEquivalent(a.children[i], b.children[i]) {
			return false
		}
	}
	return true
}

func (op Op) isEquivalent(other Op) bool {
	if op.OpType != other.OpType || !op.ScalarType.Equals(other.ScalarType) {
		return false
	}
	switch op.OpType {
	case OpTypeScanTable:
		return op.ScanTable.Table == other.ScanTable.Table
	case OpTypeProject:
		return op.Project.Outputs.Equals(other.Project.Outputs)
	case OpTypeUnionAll, OpTypeIntersect, OpTypeExcept:
		if !op.SetOp.Outputs.Equals(other.SetOp.Outputs) {
			return false
		}
		for i := range op.SetOp.VarMaps {
			if len(op.SetOp.VarMaps[i]) != len(other.SetOp.VarMaps[i]) {
				return false
			}
			for k, v := range op.SetOp.VarMaps[i] {
				if other.SetOp.VarMaps[i][k] != v {
					return false
				}
			}
		}
		return true
	case OpTypeDistinct:
		return op.Distinct.Keys.Equals(other.Distinct.Keys)
	case OpTypeGroupBy:
		return op.GroupBy.Keys.Equals(other.GroupBy.Keys) && op.GroupBy.Outputs.Equals(other.GroupBy.Outputs)
	case OpTypeSort, OpTypeConstrainedSort:
		if len(op.Sort.Keys) != len(other.Sort.Keys) {
			return false
		}
		for i := range op.Sort.Keys {
			if op.Sort.Keys[i] != other.Sort.Keys[i] {
				return false
			}
		}
		return true
	case OpTypeVarDef:
		return op.VarDef.Var == other.VarDef.Var
	case OpTypeVarRef:
		return op.VarRef.Var == other.VarRef.Var
	case OpTypeConstant, OpTypeNull, OpTypeInternalConstant, OpTypeNullSentinel, OpTypeConstantPredicate:
		return op.Constant.Value.Equals(other.Constant.Value)
	case OpTypeAggregate:
		return op.Aggregate.Name == other.Aggregate.Name
	}
	return true
}

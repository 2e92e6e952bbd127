package plan

import (
	"fmt"
	"strings"

	"github.com/kr/text"

	"github.com/cube2222/octoplan/graph"
)

// Dump renders the subtree as indented text, one operator per line.
func Dump(n *Node) string {
	var sb strings.Builder
	sb.WriteString(describeOp(n.op))
	sb.WriteString("\n")
	for _, child := range n.children {
		sb.WriteString(text.Indent(Dump(child), "  "))
	}
	return sb.String()
}

func describeOp(op Op) string {
	name := op.OpType.String()
	switch op.OpType {
	case OpTypeScanTable:
		columns := make([]string, len(op.ScanTable.Table.Columns))
		for i, column := range op.ScanTable.Table.Columns {
			columns[i] = column.String()
		}
		return fmt.Sprintf("%s %s(%s)", name, op.ScanTable.Table.Name, strings.Join(columns, ", "))
	case OpTypeProject:
		return fmt.Sprintf("%s outputs=%s", name, op.Project.Outputs)
	case OpTypeUnionAll, OpTypeIntersect, OpTypeExcept:
		return fmt.Sprintf("%s outputs=%s left=%s right=%s", name, op.SetOp.Outputs, op.SetOp.VarMaps[0], op.SetOp.VarMaps[1])
	case OpTypeDistinct:
		return fmt.Sprintf("%s keys=%s", name, op.Distinct.Keys)
	case OpTypeGroupBy:
		return fmt.Sprintf("%s keys=%s outputs=%s", name, op.GroupBy.Keys, op.GroupBy.Outputs)
	case OpTypeSort, OpTypeConstrainedSort:
		return fmt.Sprintf("%s %s", name, describeSortKeys(op.Sort.Keys))
	case OpTypeVarDef:
		return fmt.Sprintf("%s %s", name, op.VarDef.Var)
	case OpTypeVarRef:
		return fmt.Sprintf("%s %s", name, op.VarRef.Var)
	case OpTypeConstant, OpTypeInternalConstant, OpTypeConstantPredicate:
		return fmt.Sprintf("%s %s", name, op.Constant.Value)
	case OpTypeNull, OpTypeCast, OpTypeSoftCast:
		return fmt.Sprintf("%s %s", name, op.ScalarType)
	case OpTypeAggregate:
		return fmt.Sprintf("%s %s", name, op.Aggregate.Name)
	}
	return name
}

func describeSortKeys(keys []SortKey) string {
	parts := make([]string, len(keys))
	for i, key := range keys {
		direction := "desc"
		if key.Ascending {
			direction = "asc"
		}
		parts[i] = fmt.Sprintf("%s %s", key.Var, direction)
	}
	return strings.Join(parts, ", ")
}

// Describe builds an explain graph of the subtree.
// With withInfo set, relational nodes are annotated with their analysis.
func (p *Plan) Describe(n *Node, withInfo bool) *graph.Node {
	out := graph.NewNode(n.op.OpType.String())
	switch n.op.OpType {
	case OpTypeScanTable:
		out.AddField("table", n.op.ScanTable.Table.Name)
	case OpTypeProject:
		out.AddField("outputs", n.op.Project.Outputs.String())
	case OpTypeUnionAll, OpTypeIntersect, OpTypeExcept:
		out.AddField("outputs", n.op.SetOp.Outputs.String())
		out.AddField("left_map", n.op.SetOp.VarMaps[0].String())
		out.AddField("right_map", n.op.SetOp.VarMaps[1].String())
	case OpTypeDistinct:
		out.AddField("keys", n.op.Distinct.Keys.String())
	case OpTypeGroupBy:
		out.AddField("keys", n.op.GroupBy.Keys.String())
		out.AddField("outputs", n.op.GroupBy.Outputs.String())
	case OpTypeSort, OpTypeConstrainedSort:
		out.AddField("keys", describeSortKeys(n.op.Sort.Keys))
	case OpTypeVarDef:
		out.AddField("var", n.op.VarDef.Var.String())
	case OpTypeVarRef:
		out.AddField("var", n.op.VarRef.Var.String())
	case OpTypeConstant, OpTypeInternalConstant, OpTypeConstantPredicate:
		out.AddField("value", n.op.Constant.Value.String())
	case OpTypeAggregate:
		out.AddField("function", n.op.Aggregate.Name)
	}
	if n.op.OpType.IsScalar() {
		out.AddField("type", n.op.ScalarType.String())
	}
	if withInfo && n.op.OpType.IsRelational() {
		info := p.GetExtendedNodeInfo(n)
		out.AddField("definitions", info.Definitions.String())
		out.AddField("external", info.ExternalReferences.String())
		out.AddField("non_nullable", info.NonNullableDefinitions.String())
		if info.Keys != nil {
			out.AddField("keys", info.Keys.String())
		}
		out.AddField("rows", fmt.Sprintf("%s..%s", info.MinRows, info.MaxRows))
	}

	names := childNames(n)
	for i, child := range n.children {
		out.AddChild(names[i], p.Describe(child, withInfo))
	}
	return out
}

func childNames(n *Node) []string {
	switch n.op.OpType {
	case OpTypeFilter:
		return []string{"input", "predicate"}
	case OpTypeProject:
		return []string{"input", "definitions"}
	case OpTypeCrossJoin, OpTypeCrossApply, OpTypeOuterApply, OpTypeUnionAll, OpTypeIntersect, OpTypeExcept:
		return []string{"left", "right"}
	case OpTypeInnerJoin, OpTypeLeftOuterJoin:
		return []string{"left", "right", "predicate"}
	case OpTypeGroupBy:
		return []string{"input", "keys", "aggregates"}
	case OpTypeConstrainedSort:
		return []string{"input", "skip", "limit"}
	case OpTypeLike:
		return []string{"string", "pattern", "escape"}
	case OpTypeCase:
		names := make([]string, len(n.children))
		for i := 0; i+1 < len(n.children); i += 2 {
			names[i] = fmt.Sprintf("when_%d", i/2)
			names[i+1] = fmt.Sprintf("then_%d", i/2)
		}
		names[len(names)-1] = "else"
		return names
	}
	names := make([]string, len(n.children))
	for i := range names {
		names[i] = fmt.Sprintf("arg_%d", i)
	}
	return names
}

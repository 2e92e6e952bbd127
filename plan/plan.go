package plan

import (
	"github.com/cube2222/octoplan/octoplan"
)

// Plan owns an operator tree and the variables it references.
type Plan struct {
	Vars *Registry
	Root *Node

	nextNodeID int
}

func New() *Plan {
	return &Plan{
		Vars: NewRegistry(),
	}
}

// CreateNode allocates a node with a fresh ID. The child count must match the operator.
func (p *Plan) CreateNode(op Op, children ...*Node) *Node {
	checkArity(op.OpType, len(children))
	n := &Node{
		id:       p.nextNodeID,
		op:       op,
		children: append([]*Node(nil), children...),
	}
	p.nextNodeID++
	return n
}

// NodeCount returns the number of nodes ever created by this plan.
func (p *Plan) NodeCount() int {
	return p.nextNodeID
}

type ColumnDef struct {
	Name    string
	Type    octoplan.Type
	NotNull bool
	Key     bool
}

// NewTable creates table metadata with a fresh column variable per column.
func (p *Plan) NewTable(name string, columns ...ColumnDef) *Table {
	table := &Table{
		Name:        name,
		NonNullable: p.Vars.NewVarSet(),
	}
	var keys *VarSet
	for _, column := range columns {
		v := p.Vars.NewColumnVar(name+"."+column.Name, column.Type)
		table.Columns = append(table.Columns, v)
		if column.NotNull {
			table.NonNullable.Add(v)
		}
		if column.Key {
			if keys == nil {
				keys = p.Vars.NewVarSet()
			}
			keys.Add(v)
		}
	}
	table.Keys = keys
	return table
}

func (p *Plan) ScanTable(table *Table) *Node {
	return p.CreateNode(NewScanTableOp(table))
}

func (p *Plan) SingleRowTable() *Node {
	return p.CreateNode(NewSingleRowTableOp())
}

func (p *Plan) Filter(input, predicate *Node) *Node {
	return p.CreateNode(NewFilterOp(), input, predicate)
}

// Project creates a projection exposing outputs, which should include all vars defined in defs.
func (p *Plan) Project(input, defs *Node, outputs *VarSet) *Node {
	return p.CreateNode(NewProjectOp(outputs), input, defs)
}

func (p *Plan) VarDefList(defs ...*Node) *Node {
	return p.CreateNode(NewVarDefListOp(), defs...)
}

func (p *Plan) VarDef(v *Var, expr *Node) *Node {
	return p.CreateNode(NewVarDefOp(v), expr)
}

// ComputedVarDef allocates a computed variable typed like expr and defines it.
func (p *Plan) ComputedVarDef(expr *Node) (*Node, *Var) {
	v := p.Vars.NewComputedVar(expr.op.ScalarType)
	return p.VarDef(v, expr), v
}

func (p *Plan) CrossJoin(left, right *Node) *Node {
	return p.CreateNode(NewCrossJoinOp(), left, right)
}

func (p *Plan) InnerJoin(left, right, predicate *Node) *Node {
	return p.CreateNode(NewInnerJoinOp(), left, right, predicate)
}

func (p *Plan) LeftOuterJoin(left, right, predicate *Node) *Node {
	return p.CreateNode(NewLeftOuterJoinOp(), left, right, predicate)
}

func (p *Plan) CrossApply(left, right *Node) *Node {
	return p.CreateNode(NewCrossApplyOp(), left, right)
}

func (p *Plan) OuterApply(left, right *Node) *Node {
	return p.CreateNode(NewOuterApplyOp(), left, right)
}

func (p *Plan) SetOp(opType OpType, left, right *Node, outputs *VarSet, leftMap, rightMap VarMap) *Node {
	return p.CreateNode(NewSetOp(opType, outputs, leftMap, rightMap), left, right)
}

func (p *Plan) Distinct(input *Node, keys *VarSet) *Node {
	return p.CreateNode(NewDistinctOp(keys), input)
}

func (p *Plan) GroupBy(input, keyDefs, aggregateDefs *Node, keys, outputs *VarSet) *Node {
	return p.CreateNode(NewGroupByOp(keys, outputs), input, keyDefs, aggregateDefs)
}

func (p *Plan) Sort(input *Node, keys ...SortKey) *Node {
	return p.CreateNode(NewSortOp(keys), input)
}

func (p *Plan) ConstrainedSort(input, skip, limit *Node, keys ...SortKey) *Node {
	return p.CreateNode(NewConstrainedSortOp(keys), input, skip, limit)
}

func (p *Plan) VarRef(v *Var) *Node {
	return p.CreateNode(NewVarRefOp(v))
}

func (p *Plan) Constant(value octoplan.Value) *Node {
	return p.CreateNode(NewConstantOp(value))
}

func (p *Plan) Null(t octoplan.Type) *Node {
	return p.CreateNode(NewNullOp(t))
}

func (p *Plan) InternalConstant(value octoplan.Value) *Node {
	return p.CreateNode(NewInternalConstantOp(value))
}

func (p *Plan) NullSentinel() *Node {
	return p.CreateNode(NewNullSentinelOp())
}

func (p *Plan) True() *Node {
	return p.CreateNode(NewConstantPredicateOp(true))
}

func (p *Plan) False() *Node {
	return p.CreateNode(NewConstantPredicateOp(false))
}

func (p *Plan) Compare(opType OpType, left, right *Node) *Node {
	return p.CreateNode(NewScalarOp(opType, octoplan.Boolean), left, right)
}

func (p *Plan) Eq(left, right *Node) *Node {
	return p.Compare(OpTypeEQ, left, right)
}

func (p *Plan) Arithmetic(opType OpType, left, right *Node) *Node {
	return p.CreateNode(NewScalarOp(opType, left.op.ScalarType), left, right)
}

func (p *Plan) And(left, right *Node) *Node {
	return p.CreateNode(NewScalarOp(OpTypeAnd, octoplan.Boolean), left, right)
}

func (p *Plan) Or(left, right *Node) *Node {
	return p.CreateNode(NewScalarOp(OpTypeOr, octoplan.Boolean), left, right)
}

func (p *Plan) Not(arg *Node) *Node {
	return p.CreateNode(NewScalarOp(OpTypeNot, octoplan.Boolean), arg)
}

func (p *Plan) IsNull(arg *Node) *Node {
	return p.CreateNode(NewScalarOp(OpTypeIsNull, octoplan.Boolean), arg)
}

func (p *Plan) Like(str, pattern, escape *Node) *Node {
	return p.CreateNode(NewScalarOp(OpTypeLike, octoplan.Boolean), str, pattern, escape)
}

// Case expects alternating when/then children followed by the else child.
func (p *Plan) Case(t octoplan.Type, children ...*Node) *Node {
	return p.CreateNode(NewScalarOp(OpTypeCase, t), children...)
}

func (p *Plan) Cast(arg *Node, t octoplan.Type) *Node {
	return p.CreateNode(NewScalarOp(OpTypeCast, t), arg)
}

func (p *Plan) SoftCast(arg *Node, t octoplan.Type) *Node {
	return p.CreateNode(NewScalarOp(OpTypeSoftCast, t), arg)
}

// Element extracts the single value of a single row, single column relation.
func (p *Plan) Element(input *Node, t octoplan.Type) *Node {
	return p.CreateNode(NewScalarOp(OpTypeElement, t), input)
}

func (p *Plan) Aggregate(name string, t octoplan.Type, args ...*Node) *Node {
	return p.CreateNode(NewAggregateOp(name, t), args...)
}

package plan

import (
	"fmt"

	"github.com/cube2222/octoplan/octoplan"
)

type OpType int

const (
	// Relational operators.
	OpTypeScanTable OpType = iota
	OpTypeFilter
	OpTypeProject
	OpTypeCrossJoin
	OpTypeInnerJoin
	OpTypeLeftOuterJoin
	OpTypeCrossApply
	OpTypeOuterApply
	OpTypeUnionAll
	OpTypeIntersect
	OpTypeExcept
	OpTypeDistinct
	OpTypeGroupBy
	OpTypeSort
	OpTypeConstrainedSort
	OpTypeSingleRowTable

	// Ancillary operators.
	OpTypeVarDefList
	OpTypeVarDef

	// Scalar operators.
	OpTypeVarRef
	OpTypeConstant
	OpTypeNull
	OpTypeInternalConstant
	OpTypeNullSentinel
	OpTypeConstantPredicate
	OpTypeEQ
	OpTypeNE
	OpTypeLT
	OpTypeGT
	OpTypeLE
	OpTypeGE
	OpTypePlus
	OpTypeMinus
	OpTypeMultiply
	OpTypeDivide
	OpTypeModulo
	OpTypeUnaryMinus
	OpTypeAnd
	OpTypeOr
	OpTypeNot
	OpTypeIsNull
	OpTypeLike
	OpTypeCase
	OpTypeCast
	OpTypeSoftCast
	OpTypeElement
	OpTypeAggregate

	opTypeCount
)

// OpTypeCount is the number of operator kinds.
const OpTypeCount = int(opTypeCount)

var opTypeNames = [...]string{
	OpTypeScanTable:         "ScanTable",
	OpTypeFilter:            "Filter",
	OpTypeProject:           "Project",
	OpTypeCrossJoin:         "CrossJoin",
	OpTypeInnerJoin:         "InnerJoin",
	OpTypeLeftOuterJoin:     "LeftOuterJoin",
	OpTypeCrossApply:        "CrossApply",
	OpTypeOuterApply:        "OuterApply",
	OpTypeUnionAll:          "UnionAll",
	OpTypeIntersect:         "Intersect",
	OpTypeExcept:            "Except",
	OpTypeDistinct:          "Distinct",
	OpTypeGroupBy:           "GroupBy",
	OpTypeSort:              "Sort",
	OpTypeConstrainedSort:   "ConstrainedSort",
	OpTypeSingleRowTable:    "SingleRowTable",
	OpTypeVarDefList:        "VarDefList",
	OpTypeVarDef:            "VarDef",
	OpTypeVarRef:            "VarRef",
	OpTypeConstant:          "Constant",
	OpTypeNull:              "Null",
	OpTypeInternalConstant:  "InternalConstant",
	OpTypeNullSentinel:      "NullSentinel",
	OpTypeConstantPredicate: "ConstantPredicate",
	OpTypeEQ:                "EQ",
	OpTypeNE:                "NE",
	OpTypeLT:                "LT",
	OpTypeGT:                "GT",
	OpTypeLE:                "LE",
	OpTypeGE:                "GE",
	OpTypePlus:              "Plus",
	OpTypeMinus:             "Minus",
	OpTypeMultiply:          "Multiply",
	OpTypeDivide:            "Divide",
	OpTypeModulo:            "Modulo",
	OpTypeUnaryMinus:        "UnaryMinus",
	OpTypeAnd:               "And",
	OpTypeOr:                "Or",
	OpTypeNot:               "Not",
	OpTypeIsNull:            "IsNull",
	OpTypeLike:              "Like",
	OpTypeCase:              "Case",
	OpTypeCast:              "Cast",
	OpTypeSoftCast:          "SoftCast",
	OpTypeElement:           "Element",
	OpTypeAggregate:         "Aggregate",
}

func (t OpType) String() string {
	if t < 0 || t >= opTypeCount {
		panic(fmt.Sprintf("unexhaustive op type match: %d", int(t)))
	}
	return opTypeNames[t]
}

// IsRelational reports whether the operator produces a relation.
func (t OpType) IsRelational() bool {
	return t <= OpTypeSingleRowTable
}

func (t OpType) IsScalar() bool {
	return t >= OpTypeVarRef && t < opTypeCount
}

func (t OpType) IsJoin() bool {
	return t == OpTypeCrossJoin || t == OpTypeInnerJoin || t == OpTypeLeftOuterJoin
}

func (t OpType) IsApply() bool {
	return t == OpTypeCrossApply || t == OpTypeOuterApply
}

func (t OpType) IsSetOp() bool {
	return t == OpTypeUnionAll || t == OpTypeIntersect || t == OpTypeExcept
}

func (t OpType) IsComparison() bool {
	return t >= OpTypeEQ && t <= OpTypeGE
}

func (t OpType) IsConstant() bool {
	switch t {
	case OpTypeConstant, OpTypeNull, OpTypeInternalConstant, OpTypeNullSentinel, OpTypeConstantPredicate:
		return true
	}
	return false
}

// Op is a tagged operator. Exactly the payload matching OpType is set,
// payload-less kinds carry none. Scalar operators carry their result type.
type Op struct {
	OpType     OpType
	ScalarType octoplan.Type

	ScanTable *ScanTable
	Project   *Project
	SetOp     *SetOp
	Distinct  *Distinct
	GroupBy   *GroupBy
	Sort      *Sort
	VarDef    *VarDef
	VarRef    *VarRef
	Constant  *Constant
	Aggregate *Aggregate
}

// Table is the metadata of a scanned table.
type Table struct {
	Name        string
	Columns     []*Var
	NonNullable *VarSet
	// Keys is nil when the table has no known key.
	Keys *VarSet
}

type ScanTable struct {
	Table *Table
}

type Project struct {
	Outputs *VarSet
}

type SetOp struct {
	Outputs *VarSet
	// VarMaps has one entry per branch, mapping output vars to branch vars.
	VarMaps [2]VarMap
}

type Distinct struct {
	Keys *VarSet
}

type GroupBy struct {
	Keys    *VarSet
	Outputs *VarSet
}

type SortKey struct {
	Var       *Var
	Ascending bool
}

type Sort struct {
	Keys []SortKey
}

type VarDef struct {
	Var *Var
}

type VarRef struct {
	Var *Var
}

type Constant struct {
	Value octoplan.Value
}

type Aggregate struct {
	Name string
}

func NewScanTableOp(table *Table) Op {
	return Op{OpType: OpTypeScanTable, ScanTable: &ScanTable{Table: table}}
}

func NewFilterOp() Op {
	return Op{OpType: OpTypeFilter}
}

func NewProjectOp(outputs *VarSet) Op {
	return Op{OpType: OpTypeProject, Project: &Project{Outputs: outputs}}
}

func NewCrossJoinOp() Op {
	return Op{OpType: OpTypeCrossJoin}
}

func NewInnerJoinOp() Op {
	return Op{OpType: OpTypeInnerJoin}
}

func NewLeftOuterJoinOp() Op {
	return Op{OpType: OpTypeLeftOuterJoin}
}

func NewCrossApplyOp() Op {
	return Op{OpType: OpTypeCrossApply}
}

func NewOuterApplyOp() Op {
	return Op{OpType: OpTypeOuterApply}
}

func NewSetOp(opType OpType, outputs *VarSet, leftMap, rightMap VarMap) Op {
	if !opType.IsSetOp() {
		panic(fmt.Sprintf("%s is not a set operator", opType))
	}
	return Op{OpType: opType, SetOp: &SetOp{Outputs: outputs, VarMaps: [2]VarMap{leftMap, rightMap}}}
}

func NewDistinctOp(keys *VarSet) Op {
	return Op{OpType: OpTypeDistinct, Distinct: &Distinct{Keys: keys}}
}

func NewGroupByOp(keys, outputs *VarSet) Op {
	return Op{OpType: OpTypeGroupBy, GroupBy: &GroupBy{Keys: keys, Outputs: outputs}}
}

func NewSortOp(keys []SortKey) Op {
	return Op{OpType: OpTypeSort, Sort: &Sort{Keys: keys}}
}

func NewConstrainedSortOp(keys []SortKey) Op {
	return Op{OpType: OpTypeConstrainedSort, Sort: &Sort{Keys: keys}}
}

func NewSingleRowTableOp() Op {
	return Op{OpType: OpTypeSingleRowTable}
}

func NewVarDefListOp() Op {
	return Op{OpType: OpTypeVarDefList}
}

func NewVarDefOp(v *Var) Op {
	return Op{OpType: OpTypeVarDef, VarDef: &VarDef{Var: v}}
}

func NewVarRefOp(v *Var) Op {
	return Op{OpType: OpTypeVarRef, ScalarType: v.Type, VarRef: &VarRef{Var: v}}
}

func NewConstantOp(value octoplan.Value) Op {
	return Op{OpType: OpTypeConstant, ScalarType: value.Type, Constant: &Constant{Value: value}}
}

func NewNullOp(t octoplan.Type) Op {
	return Op{OpType: OpTypeNull, ScalarType: t, Constant: &Constant{Value: octoplan.NewNull()}}
}

// NewInternalConstantOp creates a constant introduced by the compiler rather than the query.
func NewInternalConstantOp(value octoplan.Value) Op {
	return Op{OpType: OpTypeInternalConstant, ScalarType: value.Type, Constant: &Constant{Value: value}}
}

// NewNullSentinelOp creates a constant column whose nullness marks unmatched outer rows.
func NewNullSentinelOp() Op {
	return Op{OpType: OpTypeNullSentinel, ScalarType: octoplan.Int32, Constant: &Constant{Value: octoplan.NewInt32(1)}}
}

func NewConstantPredicateOp(value bool) Op {
	return Op{OpType: OpTypeConstantPredicate, ScalarType: octoplan.Boolean, Constant: &Constant{Value: octoplan.NewBoolean(value)}}
}

// NewScalarOp creates a payload-less scalar operator.
func NewScalarOp(opType OpType, t octoplan.Type) Op {
	if !opType.IsScalar() {
		panic(fmt.Sprintf("%s is not a scalar operator", opType))
	}
	return Op{OpType: opType, ScalarType: t}
}

func NewAggregateOp(name string, t octoplan.Type) Op {
	return Op{OpType: OpTypeAggregate, ScalarType: t, Aggregate: &Aggregate{Name: name}}
}

// IsTrue reports whether the op is the constant true predicate.
func (op Op) IsTrue() bool {
	return op.OpType == OpTypeConstantPredicate && op.Constant.Value.Boolean
}

// IsFalse reports whether the op is the constant false predicate.
func (op Op) IsFalse() bool {
	return op.OpType == OpTypeConstantPredicate && !op.Constant.Value.Boolean
}

// expectedArity returns the required child count of an op kind, or -1 if it's variable.
func (t OpType) expectedArity() int {
	switch t {
	case OpTypeScanTable, OpTypeSingleRowTable, OpTypeVarRef, OpTypeConstant, OpTypeNull,
		OpTypeInternalConstant, OpTypeNullSentinel, OpTypeConstantPredicate:
		return 0
	case OpTypeDistinct, OpTypeSort, OpTypeVarDef, OpTypeNot, OpTypeIsNull, OpTypeCast,
		OpTypeSoftCast, OpTypeElement, OpTypeUnaryMinus:
		return 1
	case OpTypeFilter, OpTypeProject, OpTypeCrossJoin, OpTypeCrossApply, OpTypeOuterApply,
		OpTypeUnionAll, OpTypeIntersect, OpTypeExcept, OpTypeEQ, OpTypeNE, OpTypeLT, OpTypeGT,
		OpTypeLE, OpTypeGE, OpTypePlus, OpTypeMinus, OpTypeMultiply, OpTypeDivide, OpTypeModulo,
		OpTypeAnd, OpTypeOr:
		return 2
	case OpTypeInnerJoin, OpTypeLeftOuterJoin, OpTypeGroupBy, OpTypeConstrainedSort, OpTypeLike:
		return 3
	case OpTypeVarDefList, OpTypeCase, OpTypeAggregate:
		return -1
	}
	panic(fmt.Sprintf("unexhaustive op type match: %s", t))
}

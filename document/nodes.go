package document

import (
	"github.com/pkg/errors"
	"github.com/valyala/fastjson"

	"github.com/cube2222/octoplan/octoplan"
	"github.com/cube2222/octoplan/plan"
)

func (d *decoder) decodeNode(v *fastjson.Value) (*plan.Node, error) {
	name := string(v.GetStringBytes("op"))
	opType, ok := opTypesByName[name]
	switch {
	case name == "true" || name == "false":
		opType, ok = plan.OpTypeConstantPredicate, true
	case !ok:
		return nil, errors.Errorf("unknown op: %q", name)
	}

	var children []*plan.Node
	for i, child := range v.GetArray("children") {
		n, err := d.decodeNode(child)
		if err != nil {
			return nil, errors.Wrapf(err, "couldn't decode child %d of %s", i, name)
		}
		children = append(children, n)
	}
	if err := plan.ValidateArity(opType, len(children)); err != nil {
		return nil, err
	}
	if err := checkChildKinds(opType, children); err != nil {
		return nil, err
	}

	op, err := d.decodeOp(opType, name, v, children)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't decode %s", name)
	}
	return d.doc.Plan.CreateNode(op, children...), nil
}

func (d *decoder) decodeOp(opType plan.OpType, name string, v *fastjson.Value, children []*plan.Node) (plan.Op, error) {
	switch opType {
	case plan.OpTypeScanTable:
		tableName := string(v.GetStringBytes("table"))
		table, ok := d.doc.Tables[tableName]
		if !ok {
			return plan.Op{}, errors.Errorf("undeclared table %q", tableName)
		}
		return plan.NewScanTableOp(table), nil

	case plan.OpTypeSingleRowTable:
		return plan.NewSingleRowTableOp(), nil
	case plan.OpTypeFilter:
		return plan.NewFilterOp(), nil
	case plan.OpTypeCrossJoin:
		return plan.NewCrossJoinOp(), nil
	case plan.OpTypeInnerJoin:
		return plan.NewInnerJoinOp(), nil
	case plan.OpTypeLeftOuterJoin:
		return plan.NewLeftOuterJoinOp(), nil
	case plan.OpTypeCrossApply:
		return plan.NewCrossApplyOp(), nil
	case plan.OpTypeOuterApply:
		return plan.NewOuterApplyOp(), nil
	case plan.OpTypeVarDefList:
		return plan.NewVarDefListOp(), nil
	case plan.OpTypeNullSentinel:
		return plan.NewNullSentinelOp(), nil

	case plan.OpTypeProject:
		outputs, err := d.decodeVarSet(v, "outputs")
		if err != nil {
			return plan.Op{}, err
		}
		return plan.NewProjectOp(outputs), nil

	case plan.OpTypeUnionAll, plan.OpTypeIntersect, plan.OpTypeExcept:
		outputs, err := d.decodeVarSet(v, "outputs")
		if err != nil {
			return plan.Op{}, err
		}
		maps := v.GetArray("maps")
		if len(maps) != 2 {
			return plan.Op{}, errors.Errorf("expected 2 variable maps, got %d", len(maps))
		}
		var varMaps [2]plan.VarMap
		for i := range varMaps {
			if varMaps[i], err = d.decodeVarMap(maps[i]); err != nil {
				return plan.Op{}, errors.Wrapf(err, "couldn't decode variable map %d", i)
			}
			for _, output := range outputs.Vars() {
				if _, ok := varMaps[i][output]; !ok {
					return plan.Op{}, errors.Errorf("variable map %d doesn't map %s", i, output)
				}
			}
		}
		return plan.NewSetOp(opType, outputs, varMaps[0], varMaps[1]), nil

	case plan.OpTypeDistinct:
		keys, err := d.decodeVarSet(v, "keys")
		if err != nil {
			return plan.Op{}, err
		}
		return plan.NewDistinctOp(keys), nil

	case plan.OpTypeGroupBy:
		keys, err := d.decodeVarSet(v, "keys")
		if err != nil {
			return plan.Op{}, err
		}
		outputs, err := d.decodeVarSet(v, "outputs")
		if err != nil {
			return plan.Op{}, err
		}
		return plan.NewGroupByOp(keys, outputs), nil

	case plan.OpTypeSort, plan.OpTypeConstrainedSort:
		keys, err := d.decodeSortKeys(v)
		if err != nil {
			return plan.Op{}, err
		}
		if opType == plan.OpTypeSort {
			return plan.NewSortOp(keys), nil
		}
		return plan.NewConstrainedSortOp(keys), nil

	case plan.OpTypeVarDef, plan.OpTypeVarRef:
		variable, err := d.decodeVarField(v, "var")
		if err != nil {
			return plan.Op{}, err
		}
		if opType == plan.OpTypeVarDef {
			return plan.NewVarDefOp(variable), nil
		}
		return plan.NewVarRefOp(variable), nil

	case plan.OpTypeConstant, plan.OpTypeInternalConstant:
		t, err := d.decodeType(v)
		if err != nil {
			return plan.Op{}, err
		}
		value, err := d.decodeValue(t, v.Get("value"))
		if err != nil {
			return plan.Op{}, err
		}
		if opType == plan.OpTypeConstant {
			return plan.NewConstantOp(value), nil
		}
		return plan.NewInternalConstantOp(value), nil

	case plan.OpTypeNull:
		t, err := d.decodeType(v)
		if err != nil {
			return plan.Op{}, err
		}
		return plan.NewNullOp(t), nil

	case plan.OpTypeConstantPredicate:
		if name != "constantpredicate" {
			return plan.NewConstantPredicateOp(name == "true"), nil
		}
		raw := v.Get("value")
		if raw == nil {
			return plan.Op{}, errors.New("missing predicate value")
		}
		value, err := raw.Bool()
		if err != nil {
			return plan.Op{}, errors.Wrap(err, "invalid predicate value")
		}
		return plan.NewConstantPredicateOp(value), nil

	case plan.OpTypeAggregate:
		aggregate := string(v.GetStringBytes("name"))
		if aggregate == "" {
			return plan.Op{}, errors.New("aggregate has no name")
		}
		t, err := d.decodeType(v)
		if err != nil {
			return plan.Op{}, err
		}
		return plan.NewAggregateOp(aggregate, t), nil
	}

	// The remaining scalar operators only differ in their result type.
	var t octoplan.Type
	switch {
	case opType.IsComparison(), opType == plan.OpTypeAnd, opType == plan.OpTypeOr,
		opType == plan.OpTypeNot, opType == plan.OpTypeIsNull, opType == plan.OpTypeLike:
		t = octoplan.Boolean
	case v.Exists("type"):
		var err error
		if t, err = d.decodeType(v); err != nil {
			return plan.Op{}, err
		}
	case opType == plan.OpTypeCase:
		t = children[1].Op().ScalarType
	case opType == plan.OpTypeCast, opType == plan.OpTypeSoftCast, opType == plan.OpTypeElement:
		return plan.Op{}, errors.Errorf("%s needs a type", name)
	default:
		t = children[0].Op().ScalarType
	}
	return plan.NewScalarOp(opType, t), nil
}

// checkChildKinds rejects trees which put relational operators where scalar ones are expected, and vice versa.
func checkChildKinds(opType plan.OpType, children []*plan.Node) error {
	expect := func(i int, ok bool, what string) error {
		if !ok {
			return errors.Errorf("child %d of %s must be %s, got %s", i, opType, what, children[i].OpType())
		}
		return nil
	}
	relational := func(i int) error {
		return expect(i, children[i].OpType().IsRelational(), "relational")
	}
	scalar := func(i int) error {
		return expect(i, children[i].OpType().IsScalar(), "scalar")
	}
	kind := func(i int, want plan.OpType) error {
		return expect(i, children[i].OpType() == want, want.String())
	}

	var errs []error
	switch opType {
	case plan.OpTypeFilter:
		errs = append(errs, relational(0), scalar(1))
	case plan.OpTypeProject:
		errs = append(errs, relational(0), kind(1, plan.OpTypeVarDefList))
	case plan.OpTypeGroupBy:
		errs = append(errs, relational(0), kind(1, plan.OpTypeVarDefList), kind(2, plan.OpTypeVarDefList))
	case plan.OpTypeInnerJoin, plan.OpTypeLeftOuterJoin:
		errs = append(errs, relational(0), relational(1), scalar(2))
	case plan.OpTypeConstrainedSort:
		errs = append(errs, relational(0), scalar(1), scalar(2))
	case plan.OpTypeVarDefList:
		for i := range children {
			errs = append(errs, kind(i, plan.OpTypeVarDef))
		}
	case plan.OpTypeElement:
		errs = append(errs, relational(0))
	default:
		for i := range children {
			if opType.IsRelational() {
				errs = append(errs, relational(i))
			} else {
				errs = append(errs, scalar(i))
			}
		}
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

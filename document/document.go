package document

import (
	"strings"
	"time"

	"github.com/Masterminds/semver"
	"github.com/dchest/siphash"
	"github.com/pkg/errors"
	"github.com/valyala/fastjson"

	"github.com/cube2222/octoplan/octoplan"
	"github.com/cube2222/octoplan/plan"
)

var ErrUnsupportedVersion = errors.New("unsupported document version")

// SupportedVersions is the constraint a document's version has to satisfy.
const SupportedVersions = "^1.0"

var supportedVersions = func() *semver.Constraints {
	constraint, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		panic(err)
	}
	return constraint
}()

// Document is a decoded operator tree together with the names it was declared with.
type Document struct {
	Version *semver.Version
	// Group is the rule group requested by the document, empty if unspecified.
	Group  string
	Plan   *plan.Plan
	Tables map[string]*plan.Table
	Vars   map[string]*plan.Var
}

var opTypesByName = func() map[string]plan.OpType {
	out := make(map[string]plan.OpType, plan.OpTypeCount)
	for i := 0; i < plan.OpTypeCount; i++ {
		opType := plan.OpType(i)
		out[strings.ToLower(opType.String())] = opType
	}
	return out
}()

type decoder struct {
	doc *Document
}

// Decode reads a JSON tree document.
func Decode(data []byte) (*Document, error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't parse json")
	}
	if v.Type() != fastjson.TypeObject {
		return nil, errors.Errorf("expected JSON object, got %s", v.Type())
	}

	version, err := semver.NewVersion(string(v.GetStringBytes("version")))
	if err != nil {
		return nil, errors.Wrap(err, "couldn't parse document version")
	}
	if !supportedVersions.Check(version) {
		return nil, errors.Wrapf(ErrUnsupportedVersion, "version %s doesn't satisfy %s", version, SupportedVersions)
	}

	d := &decoder{
		doc: &Document{
			Version: version,
			Group:   string(v.GetStringBytes("group")),
			Plan:    plan.New(),
			Tables:  make(map[string]*plan.Table),
			Vars:    make(map[string]*plan.Var),
		},
	}
	for i, table := range v.GetArray("tables") {
		if err := d.decodeTable(table); err != nil {
			return nil, errors.Wrapf(err, "couldn't decode table %d", i)
		}
	}
	for i, parameter := range v.GetArray("parameters") {
		if err := d.decodeVar(parameter, plan.VarKindParameter); err != nil {
			return nil, errors.Wrapf(err, "couldn't decode parameter %d", i)
		}
	}
	for i, variable := range v.GetArray("vars") {
		kind := plan.VarKindComputed
		if string(variable.GetStringBytes("kind")) == "setop" {
			kind = plan.VarKindSetOp
		}
		if err := d.decodeVar(variable, kind); err != nil {
			return nil, errors.Wrapf(err, "couldn't decode variable %d", i)
		}
	}

	root := v.Get("root")
	if root == nil {
		return nil, errors.New("document has no root")
	}
	d.doc.Plan.Root, err = d.decodeNode(root)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't decode root")
	}
	if !d.doc.Plan.Root.OpType().IsRelational() {
		return nil, errors.Errorf("root must be a relational operator, got %s", d.doc.Plan.Root.OpType())
	}
	return d.doc, nil
}

func (d *decoder) decodeType(v *fastjson.Value) (octoplan.Type, error) {
	name := v.GetStringBytes("type")
	if name == nil {
		return octoplan.Type{}, errors.New("missing type")
	}
	return octoplan.ParseType(string(name))
}

func (d *decoder) decodeTable(v *fastjson.Value) error {
	name := string(v.GetStringBytes("name"))
	if name == "" {
		return errors.New("table has no name")
	}
	if _, ok := d.doc.Tables[name]; ok {
		return errors.Errorf("table %s declared twice", name)
	}

	var columns []plan.ColumnDef
	for _, column := range v.GetArray("columns") {
		t, err := d.decodeType(column)
		if err != nil {
			return errors.Wrapf(err, "couldn't decode type of column %s", column.GetStringBytes("name"))
		}
		columns = append(columns, plan.ColumnDef{
			Name:    string(column.GetStringBytes("name")),
			Type:    t,
			NotNull: column.GetBool("notNull"),
			Key:     column.GetBool("key"),
		})
	}

	table := d.doc.Plan.NewTable(name, columns...)
	for _, column := range table.Columns {
		if err := d.register(column.Name, column); err != nil {
			return err
		}
	}
	d.doc.Tables[name] = table
	return nil
}

func (d *decoder) decodeVar(v *fastjson.Value, kind plan.VarKind) error {
	name := string(v.GetStringBytes("name"))
	if name == "" {
		return errors.New("variable has no name")
	}
	t, err := d.decodeType(v)
	if err != nil {
		return errors.Wrapf(err, "couldn't decode type of %s", name)
	}

	vars := d.doc.Plan.Vars
	var out *plan.Var
	switch kind {
	case plan.VarKindParameter:
		out = vars.NewParameterVar(name, t)
	case plan.VarKindSetOp:
		out = vars.NewSetOpVar(t)
	default:
		out = vars.NewComputedVar(t)
	}
	return d.register(name, out)
}

func (d *decoder) register(name string, v *plan.Var) error {
	if _, ok := d.doc.Vars[name]; ok {
		return errors.Errorf("variable %s declared twice", name)
	}
	d.doc.Vars[name] = v
	return nil
}

func (d *decoder) lookupVar(name string) (*plan.Var, error) {
	v, ok := d.doc.Vars[name]
	if !ok {
		return nil, errors.Errorf("undeclared variable %s", name)
	}
	return v, nil
}

func (d *decoder) decodeVarField(v *fastjson.Value, field string) (*plan.Var, error) {
	name := v.GetStringBytes(field)
	if name == nil {
		return nil, errors.Errorf("missing %s", field)
	}
	return d.lookupVar(string(name))
}

func (d *decoder) decodeVarSet(v *fastjson.Value, field string) (*plan.VarSet, error) {
	if !v.Exists(field) {
		return nil, errors.Errorf("missing %s", field)
	}
	out := d.doc.Plan.Vars.NewVarSet()
	for _, item := range v.GetArray(field) {
		name, err := item.StringBytes()
		if err != nil {
			return nil, errors.Wrapf(err, "invalid %s", field)
		}
		variable, err := d.lookupVar(string(name))
		if err != nil {
			return nil, err
		}
		out.Add(variable)
	}
	return out, nil
}

func (d *decoder) decodeVarMap(v *fastjson.Value) (plan.VarMap, error) {
	obj, err := v.Object()
	if err != nil {
		return nil, errors.Wrap(err, "variable map must be an object")
	}
	out := plan.VarMap{}
	obj.Visit(func(key []byte, value *fastjson.Value) {
		if err != nil {
			return
		}
		var output, input *plan.Var
		if output, err = d.lookupVar(string(key)); err != nil {
			return
		}
		name, nameErr := value.StringBytes()
		if nameErr != nil {
			err = errors.Wrapf(nameErr, "invalid mapping of %s", key)
			return
		}
		if input, err = d.lookupVar(string(name)); err != nil {
			return
		}
		out[output] = input
	})
	return out, err
}

func (d *decoder) decodeSortKeys(v *fastjson.Value) ([]plan.SortKey, error) {
	var out []plan.SortKey
	for _, key := range v.GetArray("keys") {
		variable, err := d.decodeVarField(key, "var")
		if err != nil {
			return nil, errors.Wrap(err, "invalid sort key")
		}
		ascending := true
		if key.Exists("ascending") {
			ascending = key.GetBool("ascending")
		}
		out = append(out, plan.SortKey{Var: variable, Ascending: ascending})
	}
	return out, nil
}

func (d *decoder) decodeValue(t octoplan.Type, v *fastjson.Value) (octoplan.Value, error) {
	if v == nil || v.Type() == fastjson.TypeNull {
		return octoplan.NewNull(), nil
	}

	switch t.TypeID {
	case octoplan.TypeIDInt32, octoplan.TypeIDInt64:
		i, err := v.Int64()
		if err != nil {
			return octoplan.Value{}, errors.Wrap(err, "invalid integer")
		}
		if t.TypeID == octoplan.TypeIDInt32 {
			return octoplan.NewInt32(int32(i)), nil
		}
		return octoplan.NewInt64(i), nil
	case octoplan.TypeIDFloat:
		f, err := v.Float64()
		if err != nil {
			return octoplan.Value{}, errors.Wrap(err, "invalid float")
		}
		return octoplan.NewFloat(f), nil
	case octoplan.TypeIDBoolean:
		b, err := v.Bool()
		if err != nil {
			return octoplan.Value{}, errors.Wrap(err, "invalid boolean")
		}
		return octoplan.NewBoolean(b), nil
	case octoplan.TypeIDString:
		s, err := v.StringBytes()
		if err != nil {
			return octoplan.Value{}, errors.Wrap(err, "invalid string")
		}
		return octoplan.NewString(string(s)), nil
	case octoplan.TypeIDTime:
		s, err := v.StringBytes()
		if err != nil {
			return octoplan.Value{}, errors.Wrap(err, "invalid time")
		}
		parsed, err := time.Parse(time.RFC3339Nano, string(s))
		if err != nil {
			return octoplan.Value{}, errors.Wrap(err, "invalid time")
		}
		return octoplan.NewTime(parsed), nil
	case octoplan.TypeIDDuration:
		s, err := v.StringBytes()
		if err != nil {
			return octoplan.Value{}, errors.Wrap(err, "invalid duration")
		}
		parsed, err := time.ParseDuration(string(s))
		if err != nil {
			return octoplan.Value{}, errors.Wrap(err, "invalid duration")
		}
		return octoplan.NewDuration(parsed), nil
	}
	return octoplan.Value{}, errors.Errorf("constants of type %s aren't supported", t)
}

// Fingerprint identifies a document irrespective of its formatting.
func Fingerprint(data []byte) (uint64, error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(data)
	if err != nil {
		return 0, errors.Wrap(err, "couldn't parse json")
	}
	return siphash.Hash(fingerprintKey0, fingerprintKey1, v.MarshalTo(nil)), nil
}

const (
	fingerprintKey0 = 0x646f63756d656e74
	fingerprintKey1 = 0x6f6374706c616e31
)

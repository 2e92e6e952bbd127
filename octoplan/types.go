package octoplan

import (
	"github.com/pkg/errors"
)

type TypeID int

const (
	TypeIDNull TypeID = iota
	TypeIDBoolean
	TypeIDInt32
	TypeIDInt64
	TypeIDFloat
	TypeIDString
	TypeIDTime
	TypeIDDuration
	TypeIDAny
)

// Type is the scalar type of a variable or scalar operator result.
// Structured types are erased before trees reach the rewrite engine.
type Type struct {
	TypeID TypeID
}

var (
	Null     = Type{TypeID: TypeIDNull}
	Boolean  = Type{TypeID: TypeIDBoolean}
	Int32    = Type{TypeID: TypeIDInt32}
	Int64    = Type{TypeID: TypeIDInt64}
	Float    = Type{TypeID: TypeIDFloat}
	String   = Type{TypeID: TypeIDString}
	Time     = Type{TypeID: TypeIDTime}
	Duration = Type{TypeID: TypeIDDuration}
	Any      = Type{TypeID: TypeIDAny}
)

func (t Type) String() string {
	switch t.TypeID {
	case TypeIDNull:
		return "NULL"
	case TypeIDBoolean:
		return "Boolean"
	case TypeIDInt32:
		return "Int32"
	case TypeIDInt64:
		return "Int64"
	case TypeIDFloat:
		return "Float"
	case TypeIDString:
		return "String"
	case TypeIDTime:
		return "Time"
	case TypeIDDuration:
		return "Duration"
	case TypeIDAny:
		return "Any"
	}
	panic("impossible, type switch bug")
}

// IsInteger reports whether values of this type are integral numbers.
func (t Type) IsInteger() bool {
	return t.TypeID == TypeIDInt32 || t.TypeID == TypeIDInt64
}

func (t Type) Equals(other Type) bool {
	return t.TypeID == other.TypeID
}

var typesByName = map[string]Type{
	"null":     Null,
	"boolean":  Boolean,
	"bool":     Boolean,
	"int32":    Int32,
	"int":      Int64,
	"int64":    Int64,
	"float":    Float,
	"string":   String,
	"time":     Time,
	"duration": Duration,
	"any":      Any,
}

// ParseType resolves a type name as used in tree documents.
func ParseType(name string) (Type, error) {
	t, ok := typesByName[name]
	if !ok {
		return Type{}, errors.Errorf("unknown type: %s", name)
	}
	return t, nil
}

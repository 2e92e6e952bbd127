package octoplan

import (
	"fmt"
	"strconv"
	"time"
)

// Value is a literal carried by constant operators.
type Value struct {
	Type     Type
	Int      int64
	Float    float64
	Boolean  bool
	Str      string
	Time     time.Time
	Duration time.Duration
}

func NewNull() Value {
	return Value{
		Type: Null,
	}
}

func NewBoolean(value bool) Value {
	return Value{
		Type:    Boolean,
		Boolean: value,
	}
}

func NewInt32(value int32) Value {
	return Value{
		Type: Int32,
		Int:  int64(value),
	}
}

func NewInt64(value int64) Value {
	return Value{
		Type: Int64,
		Int:  value,
	}
}

func NewFloat(value float64) Value {
	return Value{
		Type:  Float,
		Float: value,
	}
}

func NewString(value string) Value {
	return Value{
		Type: String,
		Str:  value,
	}
}

func NewTime(value time.Time) Value {
	return Value{
		Type: Time,
		Time: value,
	}
}

func NewDuration(value time.Duration) Value {
	return Value{
		Type:     Duration,
		Duration: value,
	}
}

func (value Value) IsNull() bool {
	return value.Type.TypeID == TypeIDNull
}

// Compare orders values of the same type. Integers of different widths compare by value.
func (value Value) Compare(other Value) int {
	if value.Type.IsInteger() && other.Type.IsInteger() {
		return compareInts(value.Int, other.Int)
	}
	if value.Type.TypeID != other.Type.TypeID {
		if value.Type.TypeID < other.Type.TypeID {
			return -1
		} else {
			return 1
		}
	}

	switch value.Type.TypeID {
	case TypeIDNull:
		return 0

	case TypeIDFloat:
		if value.Float < other.Float {
			return -1
		} else if value.Float > other.Float {
			return 1
		} else {
			return 0
		}

	case TypeIDBoolean:
		if value.Boolean == other.Boolean {
			return 0
		} else if !value.Boolean {
			return -1
		} else {
			return 1
		}

	case TypeIDString:
		if value.Str < other.Str {
			return -1
		} else if value.Str > other.Str {
			return 1
		} else {
			return 0
		}

	case TypeIDTime:
		if value.Time.Before(other.Time) {
			return -1
		} else if value.Time.After(other.Time) {
			return 1
		} else {
			return 0
		}

	case TypeIDDuration:
		if value.Duration < other.Duration {
			return -1
		} else if value.Duration > other.Duration {
			return 1
		} else {
			return 0
		}

	case TypeIDAny:
		panic("can't have any type as concrete value instance")
	default:
		panic("impossible, type switch bug")
	}
}

func compareInts(a, b int64) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}

// Equals is strict: both type and contents must match.
func (value Value) Equals(other Value) bool {
	if value.Type.TypeID != other.Type.TypeID {
		return false
	}
	return value.Compare(other) == 0
}

func (value Value) String() string {
	switch value.Type.TypeID {
	case TypeIDNull:
		return "<null>"
	case TypeIDBoolean:
		return strconv.FormatBool(value.Boolean)
	case TypeIDInt32, TypeIDInt64:
		return strconv.FormatInt(value.Int, 10)
	case TypeIDFloat:
		return strconv.FormatFloat(value.Float, 'f', -1, 64)
	case TypeIDString:
		return fmt.Sprintf("'%s'", value.Str)
	case TypeIDTime:
		return value.Time.Format(time.RFC3339Nano)
	case TypeIDDuration:
		return value.Duration.String()
	case TypeIDAny:
		return "<any>"
	default:
		panic("impossible, type switch bug")
	}
}

package validator

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/InfraSecConsult/upnp-control-go/lib/model"
)

// ConstraintKind tags the variant of a Constraint. A validator holds at most
// one constraint per kind.
type ConstraintKind int

const (
	ConstraintType ConstraintKind = iota
	ConstraintRange
	ConstraintEnum
)

// constraintOrder is the order constraints are applied in.
var constraintOrder = []ConstraintKind{ConstraintType, ConstraintRange, ConstraintEnum}

func (k ConstraintKind) String() string {
	switch k {
	case ConstraintType:
		return "type"
	case ConstraintRange:
		return "range"
	case ConstraintEnum:
		return "enum"
	}
	return "unknown"
}

// Constraint is one rule an argument value must satisfy.
// The set of implementations is closed: TypeConstraint, RangeConstraint and EnumConstraint.
type Constraint interface {
	Kind() ConstraintKind
	// check returns a description of the violation, or "" when value passes
	check(value any) string
}

// TypeConstraint accepts values whose native kind is one of Kinds.
type TypeConstraint struct {
	UPnPType string
	Kinds    []Kind
}

// NewTypeConstraint maps a UPnP data type to its accepted kinds. Unrecognized
// types fail here rather than at validation time.
func NewTypeConstraint(upnpType string) (TypeConstraint, error) {
	kinds, ok := KindsForType(upnpType)
	if !ok {
		return TypeConstraint{}, &model.SchemaError{DataType: upnpType, Reason: "unrecognized UPnP type"}
	}
	return TypeConstraint{UPnPType: strings.TrimSpace(upnpType), Kinds: kinds}, nil
}

func (c TypeConstraint) Kind() ConstraintKind { return ConstraintType }

func (c TypeConstraint) check(value any) string {
	got := KindOf(value)
	for _, k := range c.Kinds {
		if k == got {
			return ""
		}
	}
	names := make([]string, len(c.Kinds))
	for i, k := range c.Kinds {
		names[i] = k.String()
	}
	return fmt.Sprintf("is the wrong type (%s). Should be one of: %s", got, strings.Join(names, ", "))
}

// RangeConstraint accepts numbers in [Min, Max] that land on Min + k*Step.
type RangeConstraint struct {
	Min  float64
	Max  float64
	Step float64
}

// NewRangeConstraint builds an inclusive range. Step must be positive.
func NewRangeConstraint(min, max, step float64) (RangeConstraint, error) {
	if step <= 0 || math.IsNaN(step) {
		return RangeConstraint{}, &model.SchemaError{Reason: fmt.Sprintf("range step must be positive, got %v", step)}
	}
	if min > max {
		return RangeConstraint{}, &model.SchemaError{Reason: fmt.Sprintf("range minimum %v exceeds maximum %v", min, max)}
	}
	return RangeConstraint{Min: min, Max: max, Step: step}, nil
}

func (c RangeConstraint) Kind() ConstraintKind { return ConstraintRange }

// Contains reports whether n is inside the range and on a step boundary.
func (c RangeConstraint) Contains(n float64) bool {
	if n < c.Min || n > c.Max {
		return false
	}
	if isWhole(n) && isWhole(c.Min) && isWhole(c.Step) {
		return (int64(n)-int64(c.Min))%int64(c.Step) == 0
	}
	q := (n - c.Min) / c.Step
	return math.Abs(q-math.Round(q)) < 1e-9
}

func (c RangeConstraint) String() string {
	return fmt.Sprintf("%s..%s step %s", formatNumber(c.Min), formatNumber(c.Max), formatNumber(c.Step))
}

func (c RangeConstraint) check(value any) string {
	n, ok := toFloat(value)
	if !ok {
		return fmt.Sprintf("is not numeric, allowed range of values: %s", c)
	}
	if !c.Contains(n) {
		return fmt.Sprintf("is not in allowed range of values: %s", c)
	}
	return ""
}

// EnumConstraint accepts values whose text form is one of Values.
type EnumConstraint struct {
	Values []string
}

// NewEnumConstraint keeps the declared order of the allowed values.
func NewEnumConstraint(values ...string) EnumConstraint {
	out := make([]string, len(values))
	copy(out, values)
	return EnumConstraint{Values: out}
}

func (c EnumConstraint) Kind() ConstraintKind { return ConstraintEnum }

// Contains reports whether value is one of the allowed values.
func (c EnumConstraint) Contains(value any) bool {
	text := textOf(value)
	for _, v := range c.Values {
		if v == text {
			return true
		}
	}
	return false
}

func (c EnumConstraint) check(value any) string {
	if c.Contains(value) {
		return ""
	}
	return fmt.Sprintf("is not in list of allowed values: [%s]", strings.Join(c.Values, ", "))
}

func textOf(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(value)
}

func toFloat(value any) (float64, bool) {
	if value == nil {
		return 0, false
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), true
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	}
	return 0, false
}

func isWhole(f float64) bool {
	return f == math.Trunc(f) && math.Abs(f) < 1<<53
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

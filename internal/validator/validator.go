// Package validator checks action argument values against the constraints a
// UPnP service declares for the related state variable.
package validator

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/InfraSecConsult/upnp-control-go/lib/model"
)

// Validator is an immutable set of constraints, at most one per ConstraintKind.
// The zero value accepts everything.
type Validator struct {
	constraints map[ConstraintKind]Constraint
}

// Build registers the given constraints in order. A constraint of a kind that
// is already registered replaces the earlier one.
func Build(constraints ...Constraint) *Validator {
	v := &Validator{constraints: make(map[ConstraintKind]Constraint, len(constraints))}
	for _, c := range constraints {
		if c == nil {
			continue
		}
		v.constraints[c.Kind()] = c
	}
	return v
}

// Validate applies every registered constraint. The first violation is
// returned as a *model.ValidationError. The value is never modified.
func (v *Validator) Validate(value any) error {
	if v == nil {
		return nil
	}
	for _, kind := range constraintOrder {
		c, ok := v.constraints[kind]
		if !ok {
			continue
		}
		if msg := c.check(value); msg != "" {
			return &model.ValidationError{Value: value, Constraint: msg}
		}
	}
	return nil
}

// Constraints returns the registered constraints in application order.
func (v *Validator) Constraints() []Constraint {
	if v == nil {
		return nil
	}
	out := make([]Constraint, 0, len(v.constraints))
	for _, kind := range constraintOrder {
		if c, ok := v.constraints[kind]; ok {
			out = append(out, c)
		}
	}
	return out
}

// RequiredKinds returns the native kinds accepted by the type constraint.
func (v *Validator) RequiredKinds() ([]Kind, bool) {
	tc, ok := v.typeConstraint()
	if !ok {
		return nil, false
	}
	out := make([]Kind, len(tc.Kinds))
	copy(out, tc.Kinds)
	return out, true
}

// DataType returns the declared UPnP data type, if any.
func (v *Validator) DataType() (string, bool) {
	tc, ok := v.typeConstraint()
	return tc.UPnPType, ok
}

// AllowedValues returns the enumeration in declared order.
func (v *Validator) AllowedValues() ([]string, bool) {
	if v == nil {
		return nil, false
	}
	c, ok := v.constraints[ConstraintEnum]
	if !ok {
		return nil, false
	}
	values := c.(EnumConstraint).Values
	out := make([]string, len(values))
	copy(out, values)
	return out, true
}

// ValidRange returns the numeric range constraint.
func (v *Validator) ValidRange() (RangeConstraint, bool) {
	if v == nil {
		return RangeConstraint{}, false
	}
	c, ok := v.constraints[ConstraintRange]
	if !ok {
		return RangeConstraint{}, false
	}
	return c.(RangeConstraint), true
}

func (v *Validator) typeConstraint() (TypeConstraint, bool) {
	if v == nil {
		return TypeConstraint{}, false
	}
	c, ok := v.constraints[ConstraintType]
	if !ok {
		return TypeConstraint{}, false
	}
	return c.(TypeConstraint), true
}

// temporalLayouts are the ISO 8601 forms used by the UPnP date and time types.
var temporalLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"15:04:05Z07:00",
	"15:04:05",
}

// ParseTemporal parses the date, dateTime and time representations UPnP uses.
func ParseTemporal(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range temporalLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not an ISO 8601 date or time", raw)
}

// ParseBoolean accepts the spellings UPnP allows for boolean values.
func ParseBoolean(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes":
		return true, nil
	case "0", "false", "no":
		return false, nil
	}
	return false, fmt.Errorf("%q is not a boolean", raw)
}

// Coerce converts a textual value into the native kind the type constraint
// expects. Without a type constraint the text is returned unchanged. The
// result is not validated.
func (v *Validator) Coerce(raw string) (any, error) {
	kinds, ok := v.RequiredKinds()
	if !ok || len(kinds) == 0 {
		return raw, nil
	}
	switch kinds[0] {
	case KindInteger:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer: %w", raw, err)
		}
		return n, nil
	case KindFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number: %w", raw, err)
		}
		return f, nil
	case KindBoolean:
		return ParseBoolean(raw)
	case KindTemporal:
		return ParseTemporal(raw)
	case KindSequence:
		if raw == "" {
			return []string{}, nil
		}
		parts := strings.Split(raw, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
	return raw, nil
}

// Builder collects constraints fluently. The first construction error sticks
// and is reported by Build.
type Builder struct {
	constraints []Constraint
	err         error
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Type adds a type constraint for the given UPnP data type.
func (b *Builder) Type(upnpType string) *Builder {
	c, err := NewTypeConstraint(upnpType)
	return b.add(c, err)
}

// InRange adds an inclusive numeric range with the given step.
func (b *Builder) InRange(min, max, step float64) *Builder {
	c, err := NewRangeConstraint(min, max, step)
	return b.add(c, err)
}

// AllowedValues adds an enumeration constraint.
func (b *Builder) AllowedValues(values ...string) *Builder {
	return b.add(NewEnumConstraint(values...), nil)
}

func (b *Builder) add(c Constraint, err error) *Builder {
	if b.err != nil {
		return b
	}
	if err != nil {
		b.err = err
		return b
	}
	b.constraints = append(b.constraints, c)
	return b
}

// Build returns the validator, or the first error raised while adding constraints.
func (b *Builder) Build() (*Validator, error) {
	if b.err != nil {
		return nil, b.err
	}
	return Build(b.constraints...), nil
}

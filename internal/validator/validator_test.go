package validator

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InfraSecConsult/upnp-control-go/lib/model"
)

func mustRange(t *testing.T, min, max, step float64) RangeConstraint {
	t.Helper()
	c, err := NewRangeConstraint(min, max, step)
	require.NoError(t, err)
	return c
}

func mustType(t *testing.T, upnpType string) TypeConstraint {
	t.Helper()
	c, err := NewTypeConstraint(upnpType)
	require.NoError(t, err)
	return c
}

// TestValidator_Validate_NoConstraints tests that an empty validator accepts anything
func TestValidator_Validate_NoConstraints(t *testing.T) {
	v := Build()
	for _, value := range []any{nil, 1, "x", 3.5, true, time.Now(), []int{1}} {
		assert.NoError(t, v.Validate(value))
	}

	var zero *Validator
	assert.NoError(t, zero.Validate("anything"))
}

// TestValidator_Validate_Range tests inclusive bounds and step alignment
func TestValidator_Validate_Range(t *testing.T) {
	v := Build(mustRange(t, 0, 100, 5))

	tests := []struct {
		value any
		ok    bool
	}{
		{0, true},
		{5, true},
		{100, true},
		{int64(45), true},
		{uint8(95), true},
		{50.0, true},
		{3, false},
		{-5, false},
		{101, false},
		{105, false},
		{52.5, false},
		{"5", false},
	}

	for _, tt := range tests {
		err := v.Validate(tt.value)
		if tt.ok {
			assert.NoError(t, err, "value %v", tt.value)
			continue
		}
		var ve *model.ValidationError
		require.ErrorAs(t, err, &ve, "value %v", tt.value)
		assert.Equal(t, tt.value, ve.Value)
	}
}

// TestValidator_Validate_RangeProperty tests that a value passes iff it is in
// bounds and lands on min + k*step
func TestValidator_Validate_RangeProperty(t *testing.T) {
	ranges := []struct{ min, max, step int }{
		{0, 100, 1},
		{-10, 10, 3},
		{7, 64, 7},
		{1, 1, 1},
	}

	for _, r := range ranges {
		v := Build(mustRange(t, float64(r.min), float64(r.max), float64(r.step)))
		for n := r.min - 20; n <= r.max+20; n++ {
			want := n >= r.min && n <= r.max && (n-r.min)%r.step == 0
			err := v.Validate(n)
			assert.Equal(t, want, err == nil, "range %v value %d", r, n)
		}
	}
}

// TestValidator_Validate_FractionalStep tests ranges with a non integral step
func TestValidator_Validate_FractionalStep(t *testing.T) {
	v := Build(mustRange(t, 0, 1, 0.1))

	assert.NoError(t, v.Validate(0.3))
	assert.NoError(t, v.Validate(0.7))
	assert.NoError(t, v.Validate(1))
	assert.Error(t, v.Validate(0.25))
	assert.Error(t, v.Validate(1.1))
}

// TestNewRangeConstraint_Invalid tests that degenerate ranges are rejected
func TestNewRangeConstraint_Invalid(t *testing.T) {
	var se *model.SchemaError

	_, err := NewRangeConstraint(0, 10, 0)
	assert.ErrorAs(t, err, &se)

	_, err = NewRangeConstraint(0, 10, -1)
	assert.ErrorAs(t, err, &se)

	_, err = NewRangeConstraint(10, 0, 1)
	assert.ErrorAs(t, err, &se)
}

// TestValidator_Validate_Enum tests membership regardless of declared order
func TestValidator_Validate_Enum(t *testing.T) {
	values := []string{"Master", "LF", "RF"}
	reversed := []string{"RF", "LF", "Master"}

	for _, list := range [][]string{values, reversed} {
		v := Build(NewEnumConstraint(list...))
		for _, ok := range values {
			assert.NoError(t, v.Validate(ok))
		}
		assert.Error(t, v.Validate("master"))
		assert.Error(t, v.Validate(""))
	}

	numeric := Build(NewEnumConstraint("1", "2"))
	assert.NoError(t, numeric.Validate(2))
	assert.Error(t, numeric.Validate(3))
}

// TestValidator_Validate_Type tests the kind mapping of every recognized UPnP type
func TestValidator_Validate_Type(t *testing.T) {
	samples := map[Kind]any{
		KindInteger:  42,
		KindFloat:    4.2,
		KindText:     "text",
		KindBoolean:  true,
		KindTemporal: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		KindSequence: []string{"a", "b"},
	}

	for _, upnpType := range KnownTypes() {
		c := mustType(t, upnpType)
		require.NotEmpty(t, c.Kinds, upnpType)
		v := Build(c)

		for kind, sample := range samples {
			want := false
			for _, k := range c.Kinds {
				if k == kind {
					want = true
				}
			}
			err := v.Validate(sample)
			assert.Equal(t, want, err == nil, "type %s sample kind %s", upnpType, kind)
		}
	}
}

// TestNewTypeConstraint_Unrecognized tests that unknown types fail at construction
func TestNewTypeConstraint_Unrecognized(t *testing.T) {
	for _, upnpType := range []string{"", "integer", "UI4", "string2", "fixed.14"} {
		_, err := NewTypeConstraint(upnpType)
		var se *model.SchemaError
		require.ErrorAs(t, err, &se, upnpType)
		assert.Equal(t, upnpType, se.DataType)
	}
}

// TestKindOf tests native value classification
func TestKindOf(t *testing.T) {
	assert.Equal(t, KindInteger, KindOf(int8(1)))
	assert.Equal(t, KindInteger, KindOf(uint64(1)))
	assert.Equal(t, KindFloat, KindOf(float32(1)))
	assert.Equal(t, KindText, KindOf("x"))
	assert.Equal(t, KindText, KindOf([]byte("x")))
	assert.Equal(t, KindBoolean, KindOf(false))
	assert.Equal(t, KindTemporal, KindOf(time.Now()))
	assert.Equal(t, KindSequence, KindOf([]int{1}))
	assert.Equal(t, KindSequence, KindOf([2]string{}))
	assert.Equal(t, KindUnknown, KindOf(nil))
	assert.Equal(t, KindUnknown, KindOf(map[string]int{}))
}

// TestBuild_LastWriteWins tests that a repeated constraint kind replaces the earlier one
func TestBuild_LastWriteWins(t *testing.T) {
	v := Build(NewEnumConstraint("a"), NewEnumConstraint("b"))
	assert.NoError(t, v.Validate("b"))
	assert.Error(t, v.Validate("a"))

	values, ok := v.AllowedValues()
	require.True(t, ok)
	assert.Equal(t, []string{"b"}, values)
	assert.Len(t, v.Constraints(), 1)
}

// TestValidator_Validate_Order tests that the type constraint is checked first
func TestValidator_Validate_Order(t *testing.T) {
	v := Build(NewEnumConstraint("5"), mustRange(t, 0, 10, 1), mustType(t, "string"))

	err := v.Validate(5)
	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Constraint, "wrong type")
	assert.Contains(t, err.Error(), "5")
}

// TestValidator_Introspection tests the constraint accessors
func TestValidator_Introspection(t *testing.T) {
	empty := Build()
	_, ok := empty.RequiredKinds()
	assert.False(t, ok)
	_, ok = empty.AllowedValues()
	assert.False(t, ok)
	_, ok = empty.ValidRange()
	assert.False(t, ok)

	v, err := NewBuilder().Type("ui2").InRange(0, 100, 1).AllowedValues("0", "50").Build()
	require.NoError(t, err)

	kinds, ok := v.RequiredKinds()
	require.True(t, ok)
	assert.Equal(t, []Kind{KindInteger}, kinds)

	dataType, ok := v.DataType()
	require.True(t, ok)
	assert.Equal(t, "ui2", dataType)

	r, ok := v.ValidRange()
	require.True(t, ok)
	assert.Equal(t, RangeConstraint{Min: 0, Max: 100, Step: 1}, r)
	assert.Equal(t, "0..100 step 1", r.String())

	values, ok := v.AllowedValues()
	require.True(t, ok)
	assert.Equal(t, []string{"0", "50"}, values)
}

// TestBuilder_Build_Error tests that the first construction error is reported
func TestBuilder_Build_Error(t *testing.T) {
	_, err := NewBuilder().Type("nope").InRange(0, 1, 1).Build()
	var se *model.SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "nope", se.DataType)

	_, err = NewBuilder().Type("ui1").InRange(0, 1, 0).Build()
	assert.ErrorAs(t, err, &se)
}

// TestValidator_Coerce tests conversion of textual input to native kinds
func TestValidator_Coerce(t *testing.T) {
	tests := []struct {
		upnpType string
		raw      string
		want     any
	}{
		{"ui2", "10", int64(10)},
		{"i4", " -3 ", int64(-3)},
		{"r8", "0.5", 0.5},
		{"boolean", "1", true},
		{"bool", "no", false},
		{"string", "Master", "Master"},
		{"date", "2024-05-01", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		{"dateTime", "2024-05-01T10:30:00", time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)},
		{"list", "a, b,c", []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.upnpType+"/"+tt.raw, func(t *testing.T) {
			v := Build(mustType(t, tt.upnpType))
			got, err := v.Coerce(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, v.Validate(got))
		})
	}

	_, err := Build(mustType(t, "ui4")).Coerce("ten")
	assert.Error(t, err)
	_, err = Build(mustType(t, "boolean")).Coerce("maybe")
	assert.Error(t, err)

	raw, err := Build().Coerce("as-is")
	require.NoError(t, err)
	assert.Equal(t, "as-is", raw)
}

// TestValidationError_Unwrap tests that validation errors are recognized by errors.As
func TestValidationError_Unwrap(t *testing.T) {
	err := Build(NewEnumConstraint("x")).Validate("y")
	var ve *model.ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Contains(t, err.Error(), "y is not in list of allowed values: [x]")
}

package validator

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/InfraSecConsult/upnp-control-go/lib/helper"
	"github.com/InfraSecConsult/upnp-control-go/lib/model"
)

// AllowedValueRange is the allowedValueRange element of a state variable.
type AllowedValueRange struct {
	Minimum string `xml:"minimum"`
	Maximum string `xml:"maximum"`
	Step    string `xml:"step"`
}

// StateVariable is one entry of an SCPD serviceStateTable. It is also the
// shape accepted by FromSchema for a bare argument schema fragment.
type StateVariable struct {
	Name              string             `xml:"name"`
	SendEvents        string             `xml:"sendEvents,attr"`
	DataType          string             `xml:"dataType"`
	DefaultValue      string             `xml:"defaultValue"`
	AllowedValueRange *AllowedValueRange `xml:"allowedValueRange"`
	AllowedValues     []string           `xml:"allowedValueList>allowedValue"`
}

// Evented reports whether the device sends events for this variable.
func (s StateVariable) Evented() bool {
	return !strings.EqualFold(strings.TrimSpace(s.SendEvents), "no")
}

// FromSchema builds a validator from an XML fragment holding dataType and the
// optional allowedValueRange and allowedValueList elements.
func FromSchema(fragment []byte) (*Validator, error) {
	var sv StateVariable
	if err := helper.NewXMLDecoder(bytes.NewReader(fragment)).Decode(&sv); err != nil {
		return nil, &model.SchemaError{Reason: "malformed schema fragment", Err: err}
	}
	return FromStateVariable(sv)
}

// FromStateVariable builds a validator from a decoded state variable. The data
// type is required. When both a range and a value list are declared both apply.
func FromStateVariable(sv StateVariable) (*Validator, error) {
	dataType := strings.TrimSpace(sv.DataType)
	if dataType == "" {
		return nil, &model.SchemaError{Reason: "missing dataType"}
	}

	b := NewBuilder().Type(dataType)
	if b.err != nil {
		return nil, b.err
	}

	if r := sv.AllowedValueRange; r != nil {
		min, err := parseBound(dataType, "minimum", r.Minimum)
		if err != nil {
			return nil, err
		}
		max, err := parseBound(dataType, "maximum", r.Maximum)
		if err != nil {
			return nil, err
		}
		step := 1.0
		if strings.TrimSpace(r.Step) != "" {
			if step, err = parseBound(dataType, "step", r.Step); err != nil {
				return nil, err
			}
		}
		b.InRange(min, max, step)
	}

	if len(sv.AllowedValues) > 0 {
		values := make([]string, len(sv.AllowedValues))
		for i, v := range sv.AllowedValues {
			values[i] = strings.TrimSpace(v)
		}
		b.AllowedValues(values...)
	}

	v, err := b.Build()
	if err != nil {
		if se, ok := err.(*model.SchemaError); ok && se.DataType == "" {
			se.DataType = dataType
		}
		return nil, err
	}
	return v, nil
}

func parseBound(dataType, name, raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, &model.SchemaError{DataType: dataType, Reason: fmt.Sprintf("allowedValueRange without %s", name)}
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &model.SchemaError{DataType: dataType, Reason: fmt.Sprintf("bad %s %q", name, raw), Err: err}
	}
	return f, nil
}

// Argument is one entry of an action's argumentList.
type Argument struct {
	Name                 string `xml:"name"`
	Direction            string `xml:"direction"`
	RelatedStateVariable string `xml:"relatedStateVariable"`
}

// ActionDescription is one entry of an SCPD actionList.
type ActionDescription struct {
	Name      string     `xml:"name"`
	Arguments []Argument `xml:"argumentList>argument"`
}

// ServiceDescription is a parsed SCPD document.
type ServiceDescription struct {
	ActionList []ActionDescription `xml:"actionList>action"`
	StateTable []StateVariable     `xml:"serviceStateTable>stateVariable"`
}

// ParseServiceDescription decodes an SCPD document.
func ParseServiceDescription(r io.Reader) (*ServiceDescription, error) {
	var sd ServiceDescription
	if err := helper.NewXMLDecoder(r).Decode(&sd); err != nil {
		return nil, fmt.Errorf("failed to decode service description: %w", err)
	}
	for i := range sd.ActionList {
		a := &sd.ActionList[i]
		a.Name = strings.TrimSpace(a.Name)
		for j := range a.Arguments {
			arg := &a.Arguments[j]
			arg.Name = strings.TrimSpace(arg.Name)
			arg.Direction = strings.ToLower(strings.TrimSpace(arg.Direction))
			arg.RelatedStateVariable = strings.TrimSpace(arg.RelatedStateVariable)
		}
	}
	for i := range sd.StateTable {
		sd.StateTable[i].Name = strings.TrimSpace(sd.StateTable[i].Name)
	}
	return &sd, nil
}

// StateVariable looks up a state variable by name.
func (sd *ServiceDescription) StateVariable(name string) (StateVariable, bool) {
	for _, sv := range sd.StateTable {
		if sv.Name == name {
			return sv, true
		}
	}
	return StateVariable{}, false
}

// Actions binds every argument to the validator of its related state variable.
// Only referenced state variables are turned into validators. An argument
// whose state variable is missing from the table gets an unconstrained
// validator. An action with an argument whose state variable has an unusable
// schema is left out of the map, and the returned error joins one error per
// action left out. The map holds every usable action even when err != nil.
func (sd *ServiceDescription) Actions() (map[string]*Action, error) {
	validators := make(map[string]*Validator)
	validatorFor := func(name string) (*Validator, error) {
		if v, ok := validators[name]; ok {
			return v, nil
		}
		sv, ok := sd.StateVariable(name)
		if !ok {
			return nil, nil
		}
		v, err := FromStateVariable(sv)
		if err != nil {
			return nil, fmt.Errorf("state variable %s: %w", name, err)
		}
		validators[name] = v
		return v, nil
	}

	var errs []error
	actions := make(map[string]*Action, len(sd.ActionList))
	for _, ad := range sd.ActionList {
		a, err := bindAction(ad, validatorFor)
		if err != nil {
			errs = append(errs, fmt.Errorf("action %s: %w", ad.Name, err))
			continue
		}
		actions[a.Name] = a
	}
	return actions, errors.Join(errs...)
}

func bindAction(ad ActionDescription, validatorFor func(string) (*Validator, error)) (*Action, error) {
	a := &Action{Name: ad.Name, Arguments: make(map[string]*Validator, len(ad.Arguments))}
	for _, arg := range ad.Arguments {
		v, err := validatorFor(arg.RelatedStateVariable)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", arg.Name, err)
		}
		if v == nil {
			log.Debug().
				Str("action", ad.Name).
				Str("argument", arg.Name).
				Str("state_variable", arg.RelatedStateVariable).
				Msg("Related state variable not declared, argument is unconstrained")
			v = Build()
		}
		a.Arguments[arg.Name] = v
		if arg.Direction == "out" {
			a.Out = append(a.Out, arg.Name)
		} else {
			a.In = append(a.In, arg.Name)
		}
	}
	return a, nil
}

// Action is a callable action with a validator per argument.
type Action struct {
	Name      string
	Arguments map[string]*Validator
	In        []string // input argument names in declared order
	Out       []string // output argument names in declared order
}

// IsInput reports whether name is an input argument of the action.
func (a *Action) IsInput(name string) bool {
	for _, in := range a.In {
		if in == name {
			return true
		}
	}
	return false
}

// Validate checks value against the named input argument.
func (a *Action) Validate(name string, value any) error {
	v, ok := a.Arguments[name]
	if !ok || !a.IsInput(name) {
		return fmt.Errorf("%w %q for action %s", model.ErrUnknownArgument, name, a.Name)
	}
	if err := v.Validate(value); err != nil {
		if ve, ok := err.(*model.ValidationError); ok {
			ve.Argument = name
		}
		return err
	}
	return nil
}

package validator

import (
	"reflect"
	"sort"
	"strings"
	"time"
)

// Kind is the native category of a Go value an argument may carry
type Kind int

const (
	KindUnknown Kind = iota
	KindInteger
	KindFloat
	KindText
	KindBoolean
	KindTemporal
	KindSequence
)

var kindNames = map[Kind]string{
	KindUnknown:  "unknown",
	KindInteger:  "integer",
	KindFloat:    "float",
	KindText:     "text",
	KindBoolean:  "boolean",
	KindTemporal: "temporal",
	KindSequence: "sequence",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// upnpTypeKinds maps UPnP primitive data types to the native kinds they accept.
var upnpTypeKinds = map[string][]Kind{
	"ui1":         {KindInteger},
	"ui2":         {KindInteger},
	"ui4":         {KindInteger},
	"i1":          {KindInteger},
	"i2":          {KindInteger},
	"i4":          {KindInteger},
	"int":         {KindInteger},
	"r4":          {KindFloat},
	"r8":          {KindFloat},
	"number":      {KindFloat},
	"fixed.14.4":  {KindFloat},
	"float":       {KindFloat},
	"char":        {KindText},
	"string":      {KindText},
	"bin.base64":  {KindText},
	"bin.hex":     {KindText},
	"uri":         {KindText},
	"uuid":        {KindText},
	"bool":        {KindBoolean},
	"boolean":     {KindBoolean},
	"date":        {KindTemporal},
	"dateTime":    {KindTemporal},
	"dateTime.tz": {KindTemporal},
	"time":        {KindTemporal},
	"time.tz":     {KindTemporal},
	"list":        {KindSequence},
}

// KindsForType returns the native kinds accepted by a UPnP data type.
func KindsForType(upnpType string) ([]Kind, bool) {
	kinds, ok := upnpTypeKinds[strings.TrimSpace(upnpType)]
	if !ok {
		return nil, false
	}
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out, true
}

// KnownTypes lists every recognized UPnP data type, sorted.
func KnownTypes() []string {
	types := make([]string, 0, len(upnpTypeKinds))
	for t := range upnpTypeKinds {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

var timeType = reflect.TypeOf(time.Time{})

// KindOf classifies a Go value. Byte slices count as text since binary UPnP
// types travel as encoded strings.
func KindOf(value any) Kind {
	if value == nil {
		return KindUnknown
	}
	v := reflect.ValueOf(value)
	if v.Type() == timeType {
		return KindTemporal
	}
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return KindInteger
	case reflect.Float32, reflect.Float64:
		return KindFloat
	case reflect.String:
		return KindText
	case reflect.Bool:
		return KindBoolean
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return KindText
		}
		return KindSequence
	}
	return KindUnknown
}

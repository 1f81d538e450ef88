package soap

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	EnvelopeNamespace = "http://schemas.xmlsoap.org/soap/envelope/"
	EncodingNamespace = "http://schemas.xmlsoap.org/soap/encoding/"
)

// Arg is one action argument. Devices read arguments positionally more often
// than they should, so Args keeps the caller's order.
type Arg struct {
	Name  string
	Value any
}

// Args is an ordered argument list.
type Args []Arg

// Add appends an argument and returns the extended list.
func (a Args) Add(name string, value any) Args {
	return append(a, Arg{Name: name, Value: value})
}

// Get returns the value of the first argument with the given name.
func (a Args) Get(name string) (any, bool) {
	for _, arg := range a {
		if arg.Name == name {
			return arg.Value, true
		}
	}
	return nil, false
}

// ArgumentName renders an argument name the way UPnP action arguments are
// spelled: first rune upper-cased, the rest untouched.
func ArgumentName(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}

// FormatValue renders an argument value as element text.
func FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case bool:
		if v {
			return "1"
		}
		return "0"
	case time.Time:
		return v.Format(time.RFC3339)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []string:
		return strings.Join(v, ",")
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(value)
}

// BuildEnvelope renders the SOAP 1.1 request body for an action call.
func BuildEnvelope(serviceType, action string, args Args) ([]byte, error) {
	if !validElementName(action) {
		return nil, fmt.Errorf("invalid action name %q", action)
	}

	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
	buf.WriteString(`<s:Envelope xmlns:s="` + EnvelopeNamespace + `" s:encodingStyle="` + EncodingNamespace + `">`)
	buf.WriteString(`<s:Body>`)
	buf.WriteString(`<u:` + action + ` xmlns:u="`)
	if err := xml.EscapeText(&buf, []byte(serviceType)); err != nil {
		return nil, err
	}
	buf.WriteString(`">`)

	for _, arg := range args {
		name := ArgumentName(arg.Name)
		if !validElementName(name) {
			return nil, fmt.Errorf("invalid argument name %q", arg.Name)
		}
		buf.WriteString("<" + name + ">")
		if err := xml.EscapeText(&buf, []byte(FormatValue(arg.Value))); err != nil {
			return nil, err
		}
		buf.WriteString("</" + name + ">")
	}

	buf.WriteString(`</u:` + action + `>`)
	buf.WriteString(`</s:Body></s:Envelope>`)
	return buf.Bytes(), nil
}

// SOAPAction returns the SOAPACTION header value, quotes included.
func SOAPAction(serviceType, action string) string {
	return `"` + serviceType + "#" + action + `"`
}

func validElementName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case i > 0 && (r == '-' || r == '.' || unicode.IsDigit(r)):
		default:
			return false
		}
	}
	return true
}

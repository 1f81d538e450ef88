package soap

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/InfraSecConsult/upnp-control-go/lib/helper"
	"github.com/InfraSecConsult/upnp-control-go/lib/model"
)

// Response is the decoded body of a successful action call.
type Response struct {
	Action string         `json:"action" yaml:"action"`
	Values map[string]any `json:"values" yaml:"values"`
	Names  []string       `json:"-" yaml:"-"` // output names in document order
	Raw    []byte         `json:"-" yaml:"-"`
}

// String returns the text of an output value, or "" when it is missing.
func (r *Response) String(name string) string {
	v, ok := r.Values[name]
	if !ok {
		return ""
	}
	return FormatValue(v)
}

type element struct {
	XMLName  xml.Name
	Text     string    `xml:",chardata"`
	Children []element `xml:",any"`
}

type fault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
	Detail struct {
		UPnPError struct {
			ErrorCode        int    `xml:"errorCode"`
			ErrorDescription string `xml:"errorDescription"`
		} `xml:"UPnPError"`
	} `xml:"detail"`
}

type envelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Fault    *fault    `xml:"Fault"`
		Elements []element `xml:",any"`
	} `xml:"Body"`
}

func decodeEnvelope(raw []byte) (*envelope, error) {
	var env envelope
	if err := helper.NewXMLDecoder(bytes.NewReader(raw)).Decode(&env); err != nil {
		return nil, err
	}
	return &env, nil
}

func (f *fault) toError() *model.RemoteFaultError {
	return &model.RemoteFaultError{
		FaultCode:            strings.TrimSpace(f.Code),
		FaultString:          strings.TrimSpace(f.String),
		UPnPErrorCode:        f.Detail.UPnPError.ErrorCode,
		UPnPErrorDescription: strings.TrimSpace(f.Detail.UPnPError.ErrorDescription),
	}
}

// parseResponse reads the output arguments out of the action response element.
func parseResponse(action string, env *envelope, raw []byte, typecast bool) (*Response, error) {
	resp := &Response{Action: action, Values: map[string]any{}, Raw: raw}
	if len(env.Body.Elements) == 0 {
		return resp, nil
	}

	body := env.Body.Elements[0]
	if want := action + "Response"; body.XMLName.Local != want {
		return nil, fmt.Errorf("unexpected response element %s, want %s", body.XMLName.Local, want)
	}

	for _, child := range body.Children {
		name := child.XMLName.Local
		if _, seen := resp.Values[name]; !seen {
			resp.Names = append(resp.Names, name)
		}
		if typecast {
			resp.Values[name] = typecastValue(child.Text)
		} else {
			resp.Values[name] = child.Text
		}
	}
	return resp, nil
}

var (
	datePattern     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	dateTimePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})?$`)
)

// typecastValue turns boolean words and ISO dates into native values. Numbers
// stay text, since "0" and "1" are as likely to be IDs as booleans.
func typecastValue(text string) any {
	switch text {
	case "true":
		return true
	case "false":
		return false
	}
	if datePattern.MatchString(text) {
		if t, err := time.Parse("2006-01-02", text); err == nil {
			return t
		}
	}
	if dateTimePattern.MatchString(text) {
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
			if t, err := time.Parse(layout, text); err == nil {
				return t
			}
		}
	}
	return text
}

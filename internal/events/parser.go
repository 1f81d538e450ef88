package events

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/InfraSecConsult/upnp-control-go/lib/helper"
	"github.com/InfraSecConsult/upnp-control-go/lib/model"
)

// Parser turns a NOTIFY body into a notification. The listener fills in the
// header fields afterwards.
type Parser interface {
	Parse(body []byte) (model.Notification, error)
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(body []byte) (model.Notification, error)

func (f ParserFunc) Parse(body []byte) (model.Notification, error) {
	return f(body)
}

var (
	// DefaultParser extracts the children of every e:property element of an
	// e:propertyset document into Properties.
	DefaultParser Parser = ParserFunc(parsePropertySet)

	// PassthroughParser leaves the body untouched and extracts nothing.
	PassthroughParser Parser = ParserFunc(func(body []byte) (model.Notification, error) {
		return model.Notification{Body: body}, nil
	})
)

// ParsePropertySet returns the property changes carried by a GENA event body.
// A repeated property keeps its last value. Values are the concatenated text
// of the property element. An empty body carries no changes.
func ParsePropertySet(body []byte) (model.PropertyChange, error) {
	changes := model.PropertyChange{}
	if len(bytes.TrimSpace(body)) == 0 {
		return changes, nil
	}
	d := helper.NewXMLDecoder(bytes.NewReader(body))

	// element path from the document root
	var path []xml.Name
	var name string
	var text strings.Builder
	sawRoot := false

	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed event body: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			sawRoot = true
			path = append(path, t.Name)
			if len(path) == 3 && inPropertySet(path) {
				name = t.Name.Local
				text.Reset()
			}
		case xml.CharData:
			if len(path) >= 3 && inPropertySet(path) {
				text.Write(t)
			}
		case xml.EndElement:
			if len(path) == 3 && inPropertySet(path) {
				changes[name] = text.String()
			}
			path = path[:len(path)-1]
		}
	}

	if !sawRoot {
		return nil, errors.New("event body has no root element")
	}
	return changes, nil
}

func inPropertySet(path []xml.Name) bool {
	return path[0].Space == model.EventXMLNamespace && path[0].Local == "propertyset" &&
		path[1].Space == model.EventXMLNamespace && path[1].Local == "property"
}

func parsePropertySet(body []byte) (model.Notification, error) {
	changes, err := ParsePropertySet(body)
	if err != nil {
		return model.Notification{}, err
	}
	return model.Notification{Properties: changes, Body: body}, nil
}

// Package controlpoint binds a discovered service to its action schema and
// control endpoint.
package controlpoint

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/InfraSecConsult/upnp-control-go/internal/soap"
	"github.com/InfraSecConsult/upnp-control-go/internal/validator"
	"github.com/InfraSecConsult/upnp-control-go/lib/helper"
	"github.com/InfraSecConsult/upnp-control-go/lib/model"
)

// Options configure how a service is opened and called.
type Options struct {
	HTTPClient          *http.Client // nil selects an instrumented default
	CallOptions         soap.CallOptions
	AdvancedTypecasting bool
	Cookies             []*http.Cookie
}

// ControlPoint calls actions of one service, validating arguments first.
type ControlPoint struct {
	definition  model.ServiceDefinition
	service     model.ServiceDescription
	controlURL  string
	scpdURL     string
	eventSubURL string
	actions     map[string]*validator.Action
	client      *soap.Client
	http        *http.Client
}

// Open fetches the device description found at def.Location and the service's
// SCPD, then prepares a SOAP client for the control URL.
func Open(ctx context.Context, def model.ServiceDefinition, opts Options) (*ControlPoint, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = helper.NewHTTPClient(0)
	}
	root, err := FetchDescription(ctx, httpClient, def.Location)
	if err != nil {
		return nil, err
	}
	return OpenDescribed(ctx, def, root, opts)
}

// OpenDescribed is Open for a description document the caller already holds.
func OpenDescribed(ctx context.Context, def model.ServiceDefinition, root *model.RootDescription, opts Options) (*ControlPoint, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = helper.NewHTTPClient(0)
	}

	service, ok := root.Device.FindService(def.ServiceType)
	if !ok {
		return nil, fmt.Errorf("%w %s in description at %s", model.ErrUnknownService, def.ServiceType, def.Location)
	}

	base := def.Location
	if root.URLBase != "" {
		base = root.URLBase
	}

	var err error
	cp := &ControlPoint{definition: def, service: service, http: httpClient}
	if cp.controlURL, err = helper.ResolveReference(base, service.ControlURL); err != nil {
		return nil, fmt.Errorf("control URL of %s: %w", def.ServiceType, err)
	}
	if cp.scpdURL, err = helper.ResolveReference(base, service.SCPDURL); err != nil {
		return nil, fmt.Errorf("SCPD URL of %s: %w", def.ServiceType, err)
	}
	if service.EventSubURL != "" {
		if cp.eventSubURL, err = helper.ResolveReference(base, service.EventSubURL); err != nil {
			return nil, fmt.Errorf("event URL of %s: %w", def.ServiceType, err)
		}
	}

	raw, err := fetch(ctx, httpClient, cp.scpdURL)
	if err != nil {
		return nil, err
	}
	scpd, err := validator.ParseServiceDescription(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	if cp.actions, err = scpd.Actions(); err != nil {
		log.Warn().Err(err).Str("service_type", def.ServiceType).Msg("Some actions have unusable argument schemas and are unavailable")
	}

	cp.client = soap.NewClient(soap.Options{
		Endpoint:            cp.controlURL,
		ServiceType:         def.ServiceType,
		CallOptions:         opts.CallOptions,
		AdvancedTypecasting: opts.AdvancedTypecasting,
		Cookies:             opts.Cookies,
	}, httpClient)

	log.Debug().
		Str("service_type", def.ServiceType).
		Str("control_url", cp.controlURL).
		Int("actions", len(cp.actions)).
		Msg("Opened service")

	return cp, nil
}

// ServiceType returns the URN of the service.
func (cp *ControlPoint) ServiceType() string { return cp.definition.ServiceType }

// ServiceID returns the serviceId from the device description.
func (cp *ControlPoint) ServiceID() string { return cp.service.ServiceID }

// ControlURL returns the absolute control URL.
func (cp *ControlPoint) ControlURL() string { return cp.controlURL }

// SCPDURL returns the absolute service description URL.
func (cp *ControlPoint) SCPDURL() string { return cp.scpdURL }

// EventSubURL returns the absolute event subscription URL, "" if the service has none.
func (cp *ControlPoint) EventSubURL() string { return cp.eventSubURL }

// Actions returns the action names, sorted.
func (cp *ControlPoint) Actions() []string {
	names := make([]string, 0, len(cp.actions))
	for name := range cp.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Action returns the named action.
func (cp *ControlPoint) Action(name string) (*validator.Action, bool) {
	a, ok := cp.actions[name]
	return a, ok
}

// Call validates every argument against the action schema and invokes the action.
// Argument names may be given with a lower-case first letter.
func (cp *ControlPoint) Call(ctx context.Context, action string, args soap.Args) (*soap.Response, error) {
	act, ok := cp.actions[action]
	if !ok {
		return nil, fmt.Errorf("%w %q on %s", model.ErrUnknownAction, action, cp.ServiceType())
	}

	for _, arg := range args {
		name := arg.Name
		if _, ok := act.Arguments[name]; !ok {
			name = soap.ArgumentName(name)
		}
		if err := act.Validate(name, arg.Value); err != nil {
			return nil, err
		}
	}

	return cp.client.Call(ctx, action, args)
}

// Coerce converts textual input for an argument into the native kind its
// state variable declares.
func (cp *ControlPoint) Coerce(action, argument, raw string) (any, error) {
	act, ok := cp.actions[action]
	if !ok {
		return nil, fmt.Errorf("%w %q on %s", model.ErrUnknownAction, action, cp.ServiceType())
	}
	v, ok := act.Arguments[argument]
	if !ok {
		v, ok = act.Arguments[soap.ArgumentName(argument)]
	}
	if !ok {
		return nil, fmt.Errorf("%w %q for action %s", model.ErrUnknownArgument, argument, action)
	}
	return v.Coerce(raw)
}

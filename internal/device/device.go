// Package device turns SSDP discovery records into devices with resolvable services.
package device

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/InfraSecConsult/upnp-control-go/internal/controlpoint"
	"github.com/InfraSecConsult/upnp-control-go/lib/helper"
	"github.com/InfraSecConsult/upnp-control-go/lib/model"
)

// Option configures a Device.
type Option func(*Device)

// WithHTTPClient sets the client used to fetch the description document.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Device) {
		d.http = c
	}
}

// Device is one UPnP device and the services it advertised. The service list
// is fixed at construction; lookups are safe for concurrent use.
type Device struct {
	uuid        string
	definitions []model.ServiceDefinition
	http        *http.Client

	host        helper.Lazy[string]
	description helper.Lazy[*model.RootDescription]
}

// FromDiscoveryRecords keeps the service advertisements among records, one
// per service type, first seen wins.
func FromDiscoveryRecords(uuid string, records []model.DiscoveryRecord, opts ...Option) *Device {
	seen := model.NewSet[string]()
	var definitions []model.ServiceDefinition
	for _, r := range records {
		if !r.IsService() || !seen.Add(r.ServiceType) {
			continue
		}
		definitions = append(definitions, model.ServiceDefinition{ServiceType: r.ServiceType, Location: r.Location})
	}

	d := &Device{uuid: uuid, definitions: definitions}
	for _, opt := range opts {
		opt(d)
	}
	if d.http == nil {
		d.http = helper.NewHTTPClient(0)
	}
	return d
}

// UUID returns the device identifier the records were grouped under.
func (d *Device) UUID() string {
	return d.uuid
}

// ServiceDefinitions returns the definitions in first-seen order.
func (d *Device) ServiceDefinitions() []model.ServiceDefinition {
	return append([]model.ServiceDefinition(nil), d.definitions...)
}

// Host returns the host of the first definition's location.
func (d *Device) Host() (string, error) {
	return d.host.Get(func() (string, error) {
		if len(d.definitions) == 0 {
			return "", &model.ResolutionError{UUID: d.uuid, What: "host", Err: model.ErrNoServiceDefinitions}
		}
		host, err := helper.HostFromLocation(d.definitions[0].Location)
		if err != nil {
			return "", &model.ResolutionError{UUID: d.uuid, What: "host", Err: err}
		}
		return host, nil
	})
}

// Description returns the device element of the description document. A
// failed fetch is logged and yields nil without an error so that callers can
// still invoke actions. The only error is a device without definitions.
func (d *Device) Description(ctx context.Context) (*model.DeviceDescription, error) {
	root, err := d.root(ctx)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, nil
	}
	return &root.Device, nil
}

func (d *Device) root(ctx context.Context) (*model.RootDescription, error) {
	if len(d.definitions) == 0 {
		return nil, &model.ResolutionError{UUID: d.uuid, What: "description", Err: model.ErrNoServiceDefinitions}
	}

	location := d.definitions[0].Location
	root, err := d.description.Get(func() (*model.RootDescription, error) {
		return controlpoint.FetchDescription(ctx, d.http, location)
	})
	if err != nil {
		log.Warn().Err(err).Str("uuid", d.uuid).Str("location", location).Msg("Failed to fetch device description")
		return nil, nil
	}
	return root, nil
}

// FriendlyName returns the friendlyName of the device, "" when unknown.
func (d *Device) FriendlyName(ctx context.Context) string {
	desc, err := d.Description(ctx)
	if err != nil || desc == nil {
		return ""
	}
	return desc.FriendlyName
}

// ServiceDefinition looks up the definition for a service type.
func (d *Device) ServiceDefinition(urn string) (model.ServiceDefinition, bool) {
	for _, def := range d.definitions {
		if def.ServiceType == urn {
			return def, true
		}
	}
	return model.ServiceDefinition{}, false
}

// AllServices returns the advertised service types in first-seen order.
func (d *Device) AllServices() []string {
	out := make([]string, len(d.definitions))
	for i, def := range d.definitions {
		out[i] = def.ServiceType
	}
	return out
}

// HasService reports whether the device advertised urn.
func (d *Device) HasService(urn string) bool {
	_, ok := d.ServiceDefinition(urn)
	return ok
}

// Service opens a control point for urn, reusing the cached description when
// one was fetched.
func (d *Device) Service(ctx context.Context, urn string, opts controlpoint.Options) (*controlpoint.ControlPoint, error) {
	def, ok := d.ServiceDefinition(urn)
	if !ok {
		return nil, fmt.Errorf("%w %s on device %s", model.ErrUnknownService, urn, d.uuid)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = d.http
	}
	if root, cached := d.description.Peek(); cached && def.Location == d.definitions[0].Location {
		return controlpoint.OpenDescribed(ctx, def, root, opts)
	}
	return controlpoint.Open(ctx, def, opts)
}

// Record snapshots the device for storage. Description fields stay empty
// when the description cannot be fetched.
func (d *Device) Record(ctx context.Context) model.DeviceRecord {
	rec := model.DeviceRecord{UUID: d.uuid, Services: d.ServiceDefinitions()}
	if host, err := d.Host(); err == nil {
		rec.Host = host
	}
	if desc, err := d.Description(ctx); err == nil && desc != nil {
		rec.FriendlyName = desc.FriendlyName
		rec.Manufacturer = desc.Manufacturer
		rec.ModelName = desc.ModelName
	}
	return rec
}

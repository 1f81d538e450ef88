package model

import (
	"strings"
	"time"
)

// ServiceMarker identifies service type advertisements, as opposed to
// root device, device type and bare uuid advertisements.
const ServiceMarker = ":service:"

// DiscoveryRecord is one SSDP search response or alive notification.
type DiscoveryRecord struct {
	ServiceType string    `json:"st"`       // ST header, or NT for NOTIFY
	Location    string    `json:"location"` // Device description URL
	USN         string    `json:"usn,omitempty"`
	Server      string    `json:"server,omitempty"`
	Source      string    `json:"source,omitempty"` // Address the record came from
	SeenAt      time.Time `json:"seen_at,omitempty"`
}

// IsService reports whether the record advertises a service type.
func (r DiscoveryRecord) IsService() bool {
	return strings.Contains(r.ServiceType, ServiceMarker)
}

// ServiceDefinition binds a service type to the description URL that advertised it.
type ServiceDefinition struct {
	ServiceType string `json:"st" yaml:"st"`
	Location    string `json:"location" yaml:"location"`
}

package model

import "time"

// DeviceRecord is the persisted view of a discovered UPnP device.
type DeviceRecord struct {
	UUID         string              `json:"uuid" yaml:"uuid"`
	Host         string              `json:"host,omitempty" yaml:"host,omitempty"`
	FriendlyName string              `json:"friendly_name,omitempty" yaml:"friendly_name,omitempty"`
	Manufacturer string              `json:"manufacturer,omitempty" yaml:"manufacturer,omitempty"`
	ModelName    string              `json:"model_name,omitempty" yaml:"model_name,omitempty"`
	FirstSeen    time.Time           `json:"first_seen" yaml:"first_seen"`
	LastSeen     time.Time           `json:"last_seen" yaml:"last_seen"`
	Services     []ServiceDefinition `json:"services,omitempty" yaml:"services,omitempty"`
}

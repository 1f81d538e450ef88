package repository

import (
	"github.com/InfraSecConsult/upnp-control-go/lib/model"
)

// EventFilter narrows the events returned by Events. Zero values match everything.
type EventFilter struct {
	SID   string
	Limit int
}

// Repository defines the contract for storing discovered devices and received events.
type Repository interface {
	// Device operations
	SaveDevice(device *model.DeviceRecord) error
	GetDevice(uuid string) (*model.DeviceRecord, error)
	Devices() ([]*model.DeviceRecord, error)
	ServiceDefinitions(uuid string) ([]model.ServiceDefinition, error)

	// Event operations
	AddEvent(n model.Notification) error
	Events(filter EventFilter) ([]model.Notification, error)

	Close() error
}

package testutil

import (
	"sync"

	"github.com/InfraSecConsult/upnp-control-go/internal/repository"
	"github.com/InfraSecConsult/upnp-control-go/lib/model"
)

// MockRepository keeps everything in memory. Errors set on the struct are
// returned by the matching operation.
type MockRepository struct {
	mu          sync.Mutex
	DeviceList  []*model.DeviceRecord
	EventList   []model.Notification
	SaveErr     error
	AddEventErr error
	CloseCalled bool
}

var _ repository.Repository = (*MockRepository)(nil)

func (m *MockRepository) SaveDevice(device *model.DeviceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	for i, d := range m.DeviceList {
		if d.UUID == device.UUID {
			m.DeviceList[i] = device
			return nil
		}
	}
	m.DeviceList = append(m.DeviceList, device)
	return nil
}

func (m *MockRepository) GetDevice(uuid string) (*model.DeviceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.DeviceList {
		if d.UUID == uuid {
			return d, nil
		}
	}
	return nil, repository.ErrDeviceNotFound
}

func (m *MockRepository) Devices() ([]*model.DeviceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.DeviceRecord(nil), m.DeviceList...), nil
}

func (m *MockRepository) ServiceDefinitions(uuid string) ([]model.ServiceDefinition, error) {
	d, err := m.GetDevice(uuid)
	if err != nil {
		return nil, nil
	}
	return d.Services, nil
}

func (m *MockRepository) AddEvent(n model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AddEventErr != nil {
		return m.AddEventErr
	}
	m.EventList = append(m.EventList, n)
	return nil
}

func (m *MockRepository) Events(filter repository.EventFilter) ([]model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Notification
	for _, n := range m.EventList {
		if filter.SID == "" || n.SID == filter.SID {
			out = append(out, n)
		}
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out, nil
}

func (m *MockRepository) Close() error {
	m.CloseCalled = true
	return nil
}

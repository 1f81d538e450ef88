package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InfraSecConsult/upnp-control-go/lib/model"
)

const (
	renderingControl = "urn:schemas-upnp-org:service:RenderingControl:1"
	avTransport      = "urn:schemas-upnp-org:service:AVTransport:1"
)

func newTestRepository(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

// TestSQLiteRepository_SaveDevice tests inserting a device with its services
func TestSQLiteRepository_SaveDevice(t *testing.T) {
	repo := newTestRepository(t)
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	err := repo.SaveDevice(&model.DeviceRecord{
		UUID:         "uuid:1",
		Host:         "192.168.1.10",
		FriendlyName: "Living Room",
		FirstSeen:    ts,
		LastSeen:     ts,
		Services: []model.ServiceDefinition{
			{ServiceType: renderingControl, Location: "http://192.168.1.10/desc.xml"},
			{ServiceType: avTransport, Location: "http://192.168.1.10/desc.xml"},
		},
	})
	require.NoError(t, err)

	device, err := repo.GetDevice("uuid:1")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.10", device.Host)
	assert.Equal(t, "Living Room", device.FriendlyName)
	assert.True(t, ts.Equal(device.FirstSeen))
	require.Len(t, device.Services, 2)
	assert.Equal(t, renderingControl, device.Services[0].ServiceType)
	assert.Equal(t, avTransport, device.Services[1].ServiceType)
}

// TestSQLiteRepository_SaveDevice_Upsert tests that repeated saves merge into one row
func TestSQLiteRepository_SaveDevice_Upsert(t *testing.T) {
	repo := newTestRepository(t)
	first := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	later := first.Add(time.Hour)

	require.NoError(t, repo.SaveDevice(&model.DeviceRecord{
		UUID:         "uuid:1",
		FriendlyName: "Living Room",
		FirstSeen:    first,
		LastSeen:     first,
		Services:     []model.ServiceDefinition{{ServiceType: renderingControl, Location: "http://a/desc.xml"}},
	}))
	require.NoError(t, repo.SaveDevice(&model.DeviceRecord{
		UUID:      "uuid:1",
		Host:      "192.168.1.10",
		FirstSeen: later,
		LastSeen:  later,
		Services: []model.ServiceDefinition{
			{ServiceType: renderingControl, Location: "http://b/desc.xml"},
			{ServiceType: avTransport, Location: "http://b/desc.xml"},
		},
	}))

	devices, err := repo.Devices()
	require.NoError(t, err)
	require.Len(t, devices, 1)

	device := devices[0]
	assert.Equal(t, "Living Room", device.FriendlyName)
	assert.Equal(t, "192.168.1.10", device.Host)
	assert.True(t, first.Equal(device.FirstSeen))
	assert.True(t, later.Equal(device.LastSeen))
	assert.Equal(t, []model.ServiceDefinition{
		{ServiceType: renderingControl, Location: "http://a/desc.xml"},
		{ServiceType: avTransport, Location: "http://b/desc.xml"},
	}, device.Services)
}

// TestSQLiteRepository_SaveDevice_Invalid tests that a device needs a uuid
func TestSQLiteRepository_SaveDevice_Invalid(t *testing.T) {
	repo := newTestRepository(t)
	assert.Error(t, repo.SaveDevice(nil))
	assert.Error(t, repo.SaveDevice(&model.DeviceRecord{}))
}

// TestSQLiteRepository_GetDevice_NotFound tests the lookup of an unknown device
func TestSQLiteRepository_GetDevice_NotFound(t *testing.T) {
	repo := newTestRepository(t)
	_, err := repo.GetDevice("uuid:missing")
	assert.True(t, errors.Is(err, ErrDeviceNotFound))

	defs, err := repo.ServiceDefinitions("uuid:missing")
	require.NoError(t, err)
	assert.Empty(t, defs)
}

// TestSQLiteRepository_Events tests storing and filtering notifications
func TestSQLiteRepository_Events(t *testing.T) {
	repo := newTestRepository(t)
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for i, sid := range []string{"uuid:a", "uuid:b", "uuid:a", "uuid:a"} {
		require.NoError(t, repo.AddEvent(model.Notification{
			SID:        sid,
			Seq:        uint32(i),
			NT:         "upnp:event",
			NTS:        "upnp:propchange",
			Properties: model.PropertyChange{"Volume": "1"},
			Body:       []byte("<e:propertyset/>"),
			RemoteAddr: "192.168.1.10:49152",
			ReceivedAt: ts.Add(time.Duration(i) * time.Second),
		}))
	}

	all, err := repo.Events(EventFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, uint32(0), all[0].Seq)
	assert.Equal(t, uint32(3), all[3].Seq)
	assert.Equal(t, model.PropertyChange{"Volume": "1"}, all[0].Properties)
	assert.Equal(t, []byte("<e:propertyset/>"), all[0].Body)
	assert.Equal(t, "192.168.1.10:49152", all[0].RemoteAddr)
	assert.True(t, ts.Equal(all[0].ReceivedAt))

	bySID, err := repo.Events(EventFilter{SID: "uuid:a"})
	require.NoError(t, err)
	require.Len(t, bySID, 3)

	latest, err := repo.Events(EventFilter{SID: "uuid:a", Limit: 2})
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, uint32(2), latest[0].Seq)
	assert.Equal(t, uint32(3), latest[1].Seq)
}

// TestSQLiteRepository_AddEvent_Passthrough tests events stored without properties
func TestSQLiteRepository_AddEvent_Passthrough(t *testing.T) {
	repo := newTestRepository(t)
	require.NoError(t, repo.AddEvent(model.Notification{SID: "uuid:a", Body: []byte("raw")}))

	events, err := repo.Events(EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Nil(t, events[0].Properties)
	assert.Equal(t, []byte("raw"), events[0].Body)
	assert.False(t, events[0].ReceivedAt.IsZero())
}

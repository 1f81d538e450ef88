package device

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InfraSecConsult/upnp-control-go/internal/controlpoint"
	"github.com/InfraSecConsult/upnp-control-go/internal/testutil"
	"github.com/InfraSecConsult/upnp-control-go/lib/model"
)

// TestFromDiscoveryRecords_Example tests the canonical dedup and exclusion example
func TestFromDiscoveryRecords_Example(t *testing.T) {
	records := []model.DiscoveryRecord{
		{ServiceType: "urn:schemas-upnp-org:service:A:1", Location: "http://10.0.0.5:80/A"},
		{ServiceType: "urn:schemas-upnp-org:service:A:1", Location: "http://10.0.0.5:80/A-dup"},
		{ServiceType: "upnp:rootdevice", Location: "http://10.0.0.5:80/root"},
	}

	d := FromDiscoveryRecords("uuid:dev", records)

	require.Equal(t, []model.ServiceDefinition{
		{ServiceType: "urn:schemas-upnp-org:service:A:1", Location: "http://10.0.0.5:80/A"},
	}, d.ServiceDefinitions())

	host, err := d.Host()
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", host)
	assert.Equal(t, "uuid:dev", d.UUID())
}

// TestFromDiscoveryRecords_Dedup tests one definition per service type in first-seen order
func TestFromDiscoveryRecords_Dedup(t *testing.T) {
	types := []string{
		"urn:schemas-upnp-org:service:AVTransport:1",
		"urn:schemas-upnp-org:service:RenderingControl:1",
		"urn:schemas-upnp-org:service:ConnectionManager:1",
	}

	var records []model.DiscoveryRecord
	for round := 0; round < 3; round++ {
		for i, st := range types {
			records = append(records, model.DiscoveryRecord{
				ServiceType: st,
				Location:    fmt.Sprintf("http://10.0.0.5:1400/round%d/%d", round, i),
			})
		}
		records = append(records,
			model.DiscoveryRecord{ServiceType: "upnp:rootdevice", Location: "http://10.0.0.5:1400/root"},
			model.DiscoveryRecord{ServiceType: "uuid:dev", Location: "http://10.0.0.5:1400/root"},
			model.DiscoveryRecord{ServiceType: "urn:schemas-upnp-org:device:MediaRenderer:1", Location: "http://10.0.0.5:1400/root"},
		)
	}

	d := FromDiscoveryRecords("uuid:dev", records)
	defs := d.ServiceDefinitions()
	require.Len(t, defs, len(types))
	for i, def := range defs {
		assert.Equal(t, types[i], def.ServiceType)
		assert.Equal(t, fmt.Sprintf("http://10.0.0.5:1400/round0/%d", i), def.Location)
	}
	assert.Equal(t, types, d.AllServices())
}

// TestFromDiscoveryRecords_RootOnly tests that non-service records produce no definitions
func TestFromDiscoveryRecords_RootOnly(t *testing.T) {
	d := FromDiscoveryRecords("uuid:dev", []model.DiscoveryRecord{
		{ServiceType: "upnp:rootdevice", Location: "http://10.0.0.5/root"},
	})
	assert.Empty(t, d.ServiceDefinitions())
	assert.Empty(t, d.AllServices())

	_, err := d.Host()
	var re *model.ResolutionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "host", re.What)
	assert.True(t, errors.Is(err, model.ErrNoServiceDefinitions))

	desc, err := d.Description(context.Background())
	assert.Nil(t, desc)
	assert.True(t, errors.Is(err, model.ErrNoServiceDefinitions))
}

// TestDevice_Host_BadLocation tests a location without a host
func TestDevice_Host_BadLocation(t *testing.T) {
	d := FromDiscoveryRecords("uuid:dev", []model.DiscoveryRecord{
		{ServiceType: "urn:schemas-upnp-org:service:A:1", Location: "/relative/only"},
	})
	_, err := d.Host()
	var re *model.ResolutionError
	assert.ErrorAs(t, err, &re)
}

// TestDevice_Lookups tests the pure service lookups
func TestDevice_Lookups(t *testing.T) {
	d := FromDiscoveryRecords("uuid:dev", []model.DiscoveryRecord{
		{ServiceType: "urn:schemas-upnp-org:service:A:1", Location: "http://10.0.0.5/A"},
		{ServiceType: "urn:schemas-upnp-org:service:B:1", Location: "http://10.0.0.5/B"},
	})

	def, ok := d.ServiceDefinition("urn:schemas-upnp-org:service:B:1")
	require.True(t, ok)
	assert.Equal(t, "http://10.0.0.5/B", def.Location)

	_, ok = d.ServiceDefinition("urn:schemas-upnp-org:service:C:1")
	assert.False(t, ok)
	assert.True(t, d.HasService("urn:schemas-upnp-org:service:A:1"))
	assert.False(t, d.HasService("urn:schemas-upnp-org:service:C:1"))
}

func fakeDevice(t *testing.T, dev *testutil.FakeDevice) *Device {
	return FromDiscoveryRecords(testutil.FakeUDN, []model.DiscoveryRecord{
		{ServiceType: testutil.FakeRenderingControl, Location: dev.Location()},
		{ServiceType: testutil.FakeAVTransport, Location: dev.Location()},
	}, WithHTTPClient(dev.Server.Client()))
}

// TestDevice_Description tests the lazy, fetch-once description
func TestDevice_Description(t *testing.T) {
	dev := testutil.NewFakeDevice()
	defer dev.Close()
	d := fakeDevice(t, dev)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			desc, err := d.Description(context.Background())
			assert.NoError(t, err)
			if assert.NotNil(t, desc) {
				assert.Equal(t, testutil.FakeUDN, desc.UDN)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, dev.DescriptionRequests())
	assert.Equal(t, testutil.FakeFriendlyName, d.FriendlyName(context.Background()))
	assert.Equal(t, 1, dev.DescriptionRequests())
}

// TestDevice_Description_Failure tests that fetch failures yield no description and no error
func TestDevice_Description_Failure(t *testing.T) {
	dev := testutil.NewFakeDevice()
	defer dev.Close()
	dev.SetDescriptionStatus(http.StatusInternalServerError)
	d := fakeDevice(t, dev)

	desc, err := d.Description(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, desc)
	assert.Equal(t, "", d.FriendlyName(context.Background()))

	dev.SetDescriptionStatus(0)
	desc, err = d.Description(context.Background())
	require.NoError(t, err)
	require.NotNil(t, desc)
	assert.Equal(t, "Renderer 2000", desc.ModelName)
}

// TestDevice_Service tests opening a control point from a device
func TestDevice_Service(t *testing.T) {
	dev := testutil.NewFakeDevice()
	defer dev.Close()
	d := fakeDevice(t, dev)

	_, err := d.Description(context.Background())
	require.NoError(t, err)

	cp, err := d.Service(context.Background(), testutil.FakeAVTransport, controlpoint.Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Play", "Stop"}, cp.Actions())
	assert.Equal(t, 1, dev.DescriptionRequests())

	_, err = d.Service(context.Background(), "urn:schemas-upnp-org:service:ContentDirectory:1", controlpoint.Options{})
	assert.True(t, errors.Is(err, model.ErrUnknownService))
}

// TestDevice_Record tests the storage snapshot of a device
func TestDevice_Record(t *testing.T) {
	dev := testutil.NewFakeDevice()
	defer dev.Close()
	d := fakeDevice(t, dev)

	rec := d.Record(context.Background())
	assert.Equal(t, testutil.FakeUDN, rec.UUID)
	assert.Equal(t, "127.0.0.1", rec.Host)
	assert.Equal(t, testutil.FakeFriendlyName, rec.FriendlyName)
	assert.Equal(t, "Acme", rec.Manufacturer)
	assert.Equal(t, "Renderer 2000", rec.ModelName)
	assert.Len(t, rec.Services, 2)

	dev.SetDescriptionStatus(http.StatusNotFound)
	bare := fakeDevice(t, dev).Record(context.Background())
	assert.Empty(t, bare.FriendlyName)
	assert.Len(t, bare.Services, 2)
}

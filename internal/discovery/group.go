package discovery

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/InfraSecConsult/upnp-control-go/internal/device"
	"github.com/InfraSecConsult/upnp-control-go/lib/model"
)

// DeviceRecords are the records advertised by one device.
type DeviceRecords struct {
	UUID    string
	Records []model.DiscoveryRecord
}

// DeviceID returns the device part of a USN ("uuid:<id>::<type>"), normalized
// to lower case when it is a well-formed UUID. Records without a USN are keyed
// by their location.
func DeviceID(rec model.DiscoveryRecord) string {
	usn := strings.TrimSpace(rec.USN)
	if usn == "" {
		return "location:" + rec.Location
	}
	id, _, _ := strings.Cut(usn, "::")
	raw := strings.TrimPrefix(id, "uuid:")
	if u, err := uuid.Parse(raw); err == nil {
		return "uuid:" + u.String()
	}
	return id
}

// GroupByDevice splits records per device, keeping first-seen order of both
// devices and records.
func GroupByDevice(records []model.DiscoveryRecord) []DeviceRecords {
	index := map[string]int{}
	var groups []DeviceRecords
	for _, rec := range records {
		id := DeviceID(rec)
		i, ok := index[id]
		if !ok {
			i = len(groups)
			index[id] = i
			groups = append(groups, DeviceRecords{UUID: id})
		}
		groups[i].Records = append(groups[i].Records, rec)
	}
	return groups
}

// Devices groups records and resolves each group into a device. Groups that
// advertise no service are dropped.
func Devices(records []model.DiscoveryRecord, client *http.Client) []*device.Device {
	var out []*device.Device
	for _, g := range GroupByDevice(records) {
		var opts []device.Option
		if client != nil {
			opts = append(opts, device.WithHTTPClient(client))
		}
		d := device.FromDiscoveryRecords(g.UUID, g.Records, opts...)
		if len(d.AllServices()) == 0 {
			continue
		}
		out = append(out, d)
	}
	return out
}

package main

import (
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/InfraSecConsult/upnp-control-go/internal/device"
	"github.com/InfraSecConsult/upnp-control-go/internal/discovery"
	"github.com/InfraSecConsult/upnp-control-go/lib/model"
)

func newDiscoverCmd(provider *DependencyProvider, out func(*cobra.Command) printer) *cobra.Command {
	var (
		target   string
		mx       int
		timeout  time.Duration
		iface    string
		pcapFile string
		save     bool
		describe bool
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find UPnP devices with an SSDP search or in a capture file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			flags := cmd.Flags()
			if !flags.Changed("target") {
				target = provider.Config.Discovery.Target
			}
			if !flags.Changed("timeout") {
				timeout = provider.Config.Discovery.Timeout
			}

			var (
				records []model.DiscoveryRecord
				err     error
			)
			if pcapFile != "" {
				records, err = discovery.ReadCapture(pcapFile)
			} else {
				records, err = provider.search(ctx, discovery.SearchOptions{
					Target:    target,
					MX:        mx,
					Timeout:   timeout,
					Interface: iface,
				})
			}
			if err != nil {
				return err
			}
			log.Debug().Int("records", len(records)).Msg("Collected discovery records")

			devices := make([]model.DeviceRecord, 0)
			for _, g := range discovery.GroupByDevice(records) {
				d := device.FromDiscoveryRecords(g.UUID, g.Records, device.WithHTTPClient(provider.httpClient()))
				if len(d.ServiceDefinitions()) == 0 {
					continue
				}
				rec := model.DeviceRecord{UUID: d.UUID(), Services: d.ServiceDefinitions()}
				if describe {
					rec = d.Record(ctx)
				} else if host, err := d.Host(); err == nil {
					rec.Host = host
				}
				rec.FirstSeen, rec.LastSeen = seenRange(g.Records)
				devices = append(devices, rec)
			}

			if save {
				repo, release, err := provider.repository()
				if err != nil {
					return err
				}
				defer release()
				for i := range devices {
					if err := repo.SaveDevice(&devices[i]); err != nil {
						return err
					}
				}
				log.Info().Int("devices", len(devices)).Msg("Saved discovered devices")
			}

			return out(cmd).print(devices, func(t *table) {
				t.row("UUID", "HOST", "NAME", "SERVICES")
				for _, d := range devices {
					t.row(d.UUID, d.Host, d.FriendlyName, strconv.Itoa(len(d.Services)))
				}
			})
		},
	}
	cmd.Flags().StringVar(&target, "target", "ssdp:all", "Search target (ST header)")
	cmd.Flags().IntVar(&mx, "mx", 2, "Maximum seconds devices may wait before answering")
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "How long to collect responses")
	cmd.Flags().StringVar(&iface, "interface", "", "Network interface for the multicast search")
	cmd.Flags().StringVar(&pcapFile, "pcap", "", "Read SSDP traffic from a pcap or pcapng file instead of searching")
	cmd.Flags().BoolVar(&save, "save", false, "Store the discovered devices in the database")
	cmd.Flags().BoolVar(&describe, "describe", true, "Fetch device descriptions for names and models")
	return cmd
}

// seenRange returns the earliest and latest sighting of a device.
func seenRange(records []model.DiscoveryRecord) (first, last time.Time) {
	for _, r := range records {
		if r.SeenAt.IsZero() {
			continue
		}
		if first.IsZero() || r.SeenAt.Before(first) {
			first = r.SeenAt
		}
		if r.SeenAt.After(last) {
			last = r.SeenAt
		}
	}
	return first, last
}

package main

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/InfraSecConsult/upnp-control-go/internal/repository"
	"github.com/InfraSecConsult/upnp-control-go/lib/model"
)

func newDevicesCmd(provider *DependencyProvider, out func(*cobra.Command) printer) *cobra.Command {
	var showServices bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List devices stored by discover --save",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, release, err := provider.repository()
			if err != nil {
				return err
			}
			defer release()

			devices, err := repo.Devices()
			if err != nil {
				return err
			}
			if devices == nil {
				devices = []*model.DeviceRecord{}
			}
			return out(cmd).print(devices, func(t *table) {
				t.row("UUID", "HOST", "NAME", "MODEL", "LAST SEEN")
				for _, d := range devices {
					t.row(d.UUID, d.Host, d.FriendlyName, strings.TrimSpace(d.Manufacturer+" "+d.ModelName), formatTime(d.LastSeen))
					if showServices {
						for _, s := range d.Services {
							t.row("", "  "+s.ServiceType, s.Location, "", "")
						}
					}
				}
			})
		},
	}
	cmd.Flags().BoolVar(&showServices, "services", false, "Also list each device's services")
	return cmd
}

type eventView struct {
	SID        string               `json:"sid" yaml:"sid"`
	Seq        uint32               `json:"seq" yaml:"seq"`
	Properties model.PropertyChange `json:"properties,omitempty" yaml:"properties,omitempty"`
	RemoteAddr string               `json:"remote_addr,omitempty" yaml:"remote_addr,omitempty"`
	ReceivedAt time.Time            `json:"received_at" yaml:"received_at"`
}

func printEvents(p printer, notifications []model.Notification) error {
	views := make([]eventView, len(notifications))
	for i, n := range notifications {
		views[i] = eventView{SID: n.SID, Seq: n.Seq, Properties: n.Properties, RemoteAddr: n.RemoteAddr, ReceivedAt: n.ReceivedAt}
	}
	return p.print(views, func(t *table) {
		t.row("RECEIVED", "SID", "SEQ", "PROPERTIES")
		for _, v := range views {
			t.row(formatTime(v.ReceivedAt), v.SID, strconv.FormatUint(uint64(v.Seq), 10), formatProperties(v.Properties))
		}
	})
}

func newEventsCmd(provider *DependencyProvider, out func(*cobra.Command) printer) *cobra.Command {
	var filter repository.EventFilter

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List events stored by listen --store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, release, err := provider.repository()
			if err != nil {
				return err
			}
			defer release()

			notifications, err := repo.Events(filter)
			if err != nil {
				return err
			}
			return printEvents(out(cmd), notifications)
		},
	}
	cmd.Flags().StringVar(&filter.SID, "sid", "", "Only events of this subscription")
	cmd.Flags().IntVar(&filter.Limit, "limit", 20, "Show at most this many of the latest events, 0 for all")
	return cmd
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

// formatProperties renders a property change as sorted name=value pairs.
func formatProperties(props model.PropertyChange) string {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	pairs := make([]string, len(names))
	for i, name := range names {
		pairs[i] = name + "=" + props[name]
	}
	return strings.Join(pairs, " ")
}

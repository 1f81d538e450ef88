package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/InfraSecConsult/upnp-control-go/internal/controlpoint"
	"github.com/InfraSecConsult/upnp-control-go/internal/soap"
	"github.com/InfraSecConsult/upnp-control-go/lib/model"
)

const retryInitialInterval = 200 * time.Millisecond

func newDescribeCmd(provider *DependencyProvider, out func(*cobra.Command) printer) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <location>",
		Short: "Show the device description found at a LOCATION URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := controlpoint.FetchDescription(cmd.Context(), provider.httpClient(), args[0])
			if err != nil {
				return err
			}
			return out(cmd).print(root.Device, func(t *table) {
				t.row("DEVICE", "TYPE", "UDN")
				describeDevice(t, root.Device, "")
			})
		},
	}
}

func describeDevice(t *table, d model.DeviceDescription, indent string) {
	t.row(indent+d.FriendlyName, d.DeviceType, d.UDN)
	for _, s := range d.Services {
		t.row(indent+"  "+s.ServiceID, s.ServiceType, s.ControlURL)
	}
	for _, child := range d.Devices {
		describeDevice(t, child, indent+"  ")
	}
}

// openService opens the control point for urn advertised at location.
func openService(ctx context.Context, provider *DependencyProvider, location, urn string) (*controlpoint.ControlPoint, error) {
	return controlpoint.Open(ctx, model.ServiceDefinition{ServiceType: urn, Location: location}, controlpoint.Options{
		HTTPClient:  provider.httpClient(),
		CallOptions: soap.CallOptions{Timeout: provider.Config.HTTP.Timeout},
	})
}

type argumentView struct {
	Name          string   `json:"name" yaml:"name"`
	Direction     string   `json:"direction" yaml:"direction"`
	DataType      string   `json:"data_type,omitempty" yaml:"data_type,omitempty"`
	Range         string   `json:"range,omitempty" yaml:"range,omitempty"`
	AllowedValues []string `json:"allowed_values,omitempty" yaml:"allowed_values,omitempty"`
}

type actionView struct {
	Name      string         `json:"name" yaml:"name"`
	Arguments []argumentView `json:"arguments" yaml:"arguments"`
}

func newActionsCmd(provider *DependencyProvider, out func(*cobra.Command) printer) *cobra.Command {
	return &cobra.Command{
		Use:   "actions <location> <service-type>",
		Short: "List the actions of a service and their argument constraints",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cp, err := openService(cmd.Context(), provider, args[0], args[1])
			if err != nil {
				return err
			}

			views := make([]actionView, 0)
			for _, name := range cp.Actions() {
				act, _ := cp.Action(name)
				view := actionView{Name: name, Arguments: make([]argumentView, 0, len(act.Arguments))}
				for _, dir := range []struct {
					label string
					names []string
				}{{"in", act.In}, {"out", act.Out}} {
					for _, arg := range dir.names {
						v := act.Arguments[arg]
						av := argumentView{Name: arg, Direction: dir.label}
						av.DataType, _ = v.DataType()
						if r, ok := v.ValidRange(); ok {
							av.Range = r.String()
						}
						av.AllowedValues, _ = v.AllowedValues()
						view.Arguments = append(view.Arguments, av)
					}
				}
				views = append(views, view)
			}

			return out(cmd).print(views, func(t *table) {
				t.row("ACTION", "ARGUMENT", "DIRECTION", "TYPE", "CONSTRAINT")
				for _, a := range views {
					if len(a.Arguments) == 0 {
						t.row(a.Name, "", "", "", "")
					}
					for _, arg := range a.Arguments {
						constraint := arg.Range
						if len(arg.AllowedValues) > 0 {
							constraint = strings.TrimSpace(constraint + " [" + strings.Join(arg.AllowedValues, ", ") + "]")
						}
						t.row(a.Name, arg.Name, arg.Direction, arg.DataType, constraint)
					}
				}
			})
		},
	}
}

func newCallCmd(provider *DependencyProvider, out func(*cobra.Command) printer) *cobra.Command {
	var retries uint

	cmd := &cobra.Command{
		Use:   "call <location> <service-type> <action> [Name=Value ...]",
		Short: "Validate arguments and invoke an action",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("retries") {
				retries = provider.Config.HTTP.CallRetries
			}
			ctx := cmd.Context()
			cp, err := openService(ctx, provider, args[0], args[1])
			if err != nil {
				return err
			}
			action := args[2]

			var callArgs soap.Args
			for _, pair := range args[3:] {
				name, raw, ok := strings.Cut(pair, "=")
				if !ok || name == "" {
					return fmt.Errorf("argument %q is not of the form Name=Value", pair)
				}
				value, err := cp.Coerce(action, name, raw)
				if err != nil {
					return err
				}
				callArgs = callArgs.Add(name, value)
			}

			resp, err := callWithRetry(ctx, cp, action, callArgs, retries)
			if err != nil {
				return err
			}
			return out(cmd).print(resp.Values, func(t *table) {
				t.row("NAME", "VALUE")
				for _, name := range resp.Names {
					t.row(name, resp.String(name))
				}
			})
		},
	}
	cmd.Flags().UintVar(&retries, "retries", 0, "Retries on transport errors, with exponential backoff")
	return cmd
}

// callWithRetry retries transport failures only. Faults and validation
// errors are returned at once.
func callWithRetry(ctx context.Context, cp *controlpoint.ControlPoint, action string, args soap.Args, retries uint) (*soap.Response, error) {
	if retries == 0 {
		return cp.Call(ctx, action, args)
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = retryInitialInterval

	operation := func() (*soap.Response, error) {
		resp, err := cp.Call(ctx, action, args)
		if err == nil {
			return resp, nil
		}
		var te *model.TransportError
		if errors.As(err, &te) {
			log.Warn().Err(err).Str("action", action).Msg("Call failed, retrying")
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	return backoff.Retry(
		ctx,
		operation,
		backoff.WithMaxTries(retries+1),
		backoff.WithBackOff(expBackoff),
	)
}

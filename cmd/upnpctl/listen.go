package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/InfraSecConsult/upnp-control-go/internal/controlpoint"
	"github.com/InfraSecConsult/upnp-control-go/internal/events"
	"github.com/InfraSecConsult/upnp-control-go/internal/sink"
)

const shutdownTimeout = 5 * time.Second

func newListenCmd(provider *DependencyProvider, out func(*cobra.Command) printer) *cobra.Command {
	var (
		port        int
		bindAddress string
		location    string
		serviceType string
		subTimeout  time.Duration
		duration    time.Duration
		store       bool
		mqttBroker  string
		mqttTopic   string
		passthrough bool
	)

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Receive event notifications, optionally subscribing to a service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := provider.Config
			flags := cmd.Flags()
			if !flags.Changed("port") {
				port = cfg.Listener.Port
			}
			if !flags.Changed("bind") {
				bindAddress = cfg.Listener.BindAddress
			}
			if flags.Changed("mqtt-broker") {
				cfg.MQTT.Broker = mqttBroker
			}
			if !flags.Changed("mqtt-topic") {
				mqttTopic = cfg.MQTT.Topic
			}
			if (location == "") != (serviceType == "") {
				return fmt.Errorf("--subscribe and --service must be given together")
			}

			recorder := events.NewRecorder(events.DefaultRecorderSize)
			callbacks := []events.Callback{recorder}
			if store {
				repo, release, err := provider.repository()
				if err != nil {
					return err
				}
				defer release()
				callbacks = append(callbacks, sink.NewStore(repo))
			}
			pub, release, err := provider.publisher()
			if err != nil {
				return err
			}
			defer release()
			if pub != nil {
				callbacks = append(callbacks, sink.NewForwarder(pub, mqttTopic))
			}

			opts := []events.Option{
				events.WithListenPort(port),
				events.WithBindAddress(bindAddress),
				events.WithCallback(sink.FanOut(callbacks...)),
			}
			if provider.CallbackAddress != nil {
				opts = append(opts, events.WithAddressProvider(provider.CallbackAddress))
			}
			if passthrough {
				opts = append(opts, events.WithParser(events.PassthroughParser))
			}
			listener := events.NewListener(opts...)

			callbackURL, err := listener.Listen()
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := listener.Shutdown(ctx); err != nil {
					log.Warn().Err(err).Msg("Failed to stop listener")
				}
			}()
			fmt.Fprintf(cmd.ErrOrStderr(), "Listening on %s\n", callbackURL)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			if location != "" {
				cp, err := openService(ctx, provider, location, serviceType)
				if err != nil {
					return err
				}
				sub, err := cp.Subscribe(ctx, callbackURL, subTimeout)
				if err != nil {
					return err
				}
				defer unsubscribe(cp, sub.SID)
			}

			<-ctx.Done()
			return printEvents(out(cmd), recorder.Notifications())
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "Port to listen on, 0 picks a free one")
	cmd.Flags().StringVar(&bindAddress, "bind", events.DefaultBindAddress, "Address to bind the listener to")
	cmd.Flags().StringVar(&location, "subscribe", "", "Description LOCATION of the device to subscribe to")
	cmd.Flags().StringVar(&serviceType, "service", "", "Service type to subscribe to")
	cmd.Flags().DurationVar(&subTimeout, "subscription-timeout", controlpoint.DefaultSubscriptionTimeout, "Requested subscription duration")
	cmd.Flags().DurationVar(&duration, "duration", 0, "Stop after this long, 0 waits for an interrupt")
	cmd.Flags().BoolVar(&store, "store", false, "Store received events in the database")
	cmd.Flags().StringVar(&mqttBroker, "mqtt-broker", "", "Forward events to this MQTT broker, e.g. tcp://localhost:1883")
	cmd.Flags().StringVar(&mqttTopic, "mqtt-topic", sink.DefaultTopic, "Topic prefix for forwarded events")
	cmd.Flags().BoolVar(&passthrough, "raw", false, "Keep bodies unparsed")
	return cmd
}

func unsubscribe(cp *controlpoint.ControlPoint, sid string) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := cp.Unsubscribe(ctx, sid); err != nil {
		log.Warn().Err(err).Str("sid", sid).Msg("Failed to unsubscribe")
	}
}

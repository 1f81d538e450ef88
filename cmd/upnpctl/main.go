package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/InfraSecConsult/upnp-control-go/internal/config"
	"github.com/InfraSecConsult/upnp-control-go/internal/discovery"
	"github.com/InfraSecConsult/upnp-control-go/internal/events"
	"github.com/InfraSecConsult/upnp-control-go/internal/logging"
	"github.com/InfraSecConsult/upnp-control-go/internal/repository"
	"github.com/InfraSecConsult/upnp-control-go/internal/sink"
	"github.com/InfraSecConsult/upnp-control-go/internal/version"
	"github.com/InfraSecConsult/upnp-control-go/lib/helper"
	"github.com/InfraSecConsult/upnp-control-go/lib/model"
)

// DependencyProvider allows injection for testability. Nil fields are
// replaced by real implementations built from the configuration.
type DependencyProvider struct {
	Config          *config.Config
	Repository      repository.Repository
	HTTPClient      *http.Client
	Search          func(ctx context.Context, opts discovery.SearchOptions) ([]model.DiscoveryRecord, error)
	Publisher       sink.Publisher
	CallbackAddress events.AddressProvider
}

func (p *DependencyProvider) httpClient() *http.Client {
	if p.HTTPClient == nil {
		p.HTTPClient = helper.NewHTTPClient(p.Config.HTTP.Timeout)
	}
	return p.HTTPClient
}

// repository returns the injected repository, or opens the SQLite database.
// The returned function releases what was opened here.
func (p *DependencyProvider) repository() (repository.Repository, func(), error) {
	if p.Repository != nil {
		return p.Repository, func() {}, nil
	}
	repo, err := repository.NewSQLiteRepository(p.Config.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	log.Debug().Str("path", p.Config.Database.Path).Msg("Opened database")
	return repo, func() {
		if err := repo.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database")
		}
	}, nil
}

func (p *DependencyProvider) search(ctx context.Context, opts discovery.SearchOptions) ([]model.DiscoveryRecord, error) {
	if p.Search != nil {
		return p.Search(ctx, opts)
	}
	return discovery.Search(ctx, opts)
}

// publisher returns nil when no broker is configured.
func (p *DependencyProvider) publisher() (sink.Publisher, func(), error) {
	if p.Publisher != nil {
		return p.Publisher, func() {}, nil
	}
	if p.Config.MQTT.Broker == "" {
		return nil, func() {}, nil
	}
	pub, err := sink.ConnectMQTT(sink.MQTTOptions{
		Broker:   p.Config.MQTT.Broker,
		ClientID: p.Config.MQTT.ClientID,
		Username: p.Config.MQTT.Username,
		Password: p.Config.MQTT.Password,
		QoS:      p.Config.MQTT.QoS,
	})
	if err != nil {
		return nil, nil, err
	}
	return pub, func() { pub.Close() }, nil
}

// newRootCmd wires up the CLI with the given dependencies
func newRootCmd(provider *DependencyProvider) *cobra.Command {
	var (
		outputFormat string
		logLevel     string
		logFormat    string
		dbPath       string
	)

	rootCmd := &cobra.Command{
		Use:           "upnpctl",
		Short:         "upnpctl - discover and control UPnP devices",
		Version:       version.GetFullVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if provider.Config == nil {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				provider.Config = cfg
			}
			flags := cmd.Flags()
			if flags.Changed("log-level") {
				provider.Config.Logging.Level = logLevel
			}
			if flags.Changed("log-format") {
				provider.Config.Logging.Format = logFormat
			}
			if flags.Changed("db-path") {
				provider.Config.Database.Path = dbPath
			}
			logging.Setup(provider.Config.Logging.Level, provider.Config.Logging.Format, cmd.ErrOrStderr())

			switch outputFormat {
			case formatTable, formatJSON, formatYAML:
				return nil
			}
			return fmt.Errorf("unknown output format %q (table, json, yaml)", outputFormat)
		},
	}
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&outputFormat, "format", formatTable, "Output format: table, json, yaml")
	pf.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	pf.StringVar(&logFormat, "log-format", logging.ConsoleFormat, "Log format: console, json")
	pf.StringVar(&dbPath, "db-path", "upnp.sqlite", "Path to the SQLite database file")

	out := func(cmd *cobra.Command) printer {
		return printer{w: cmd.OutOrStdout(), format: outputFormat}
	}

	rootCmd.AddCommand(
		newDiscoverCmd(provider, out),
		newDescribeCmd(provider, out),
		newActionsCmd(provider, out),
		newCallCmd(provider, out),
		newListenCmd(provider, out),
		newDevicesCmd(provider, out),
		newEventsCmd(provider, out),
		newVersionCmd(out),
	)
	return rootCmd
}

func newVersionCmd(out func(*cobra.Command) printer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			return out(cmd).print(info, func(t *table) {
				t.row(info.String())
			})
		},
	}
}

func main() {
	provider := &DependencyProvider{}
	rootCmd := newRootCmd(provider)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// Package config loads runtime settings from UPNP_* environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable name.
const Prefix = "UPNP"

type (
	Config struct {
		Logging   Logging   `json:"logging"`
		Database  Database  `json:"database"`
		HTTP      HTTP      `json:"http"`
		Discovery Discovery `json:"discovery"`
		Listener  Listener  `json:"listener"`
		MQTT      MQTT      `json:"mqtt"`
	}

	Logging struct {
		Level  string `envconfig:"LOG_LEVEL" default:"info" json:"level"`
		Format string `envconfig:"LOG_FORMAT" default:"console" json:"format"`
	}

	Database struct {
		Path string `envconfig:"DB_PATH" default:"upnp.sqlite" json:"path"`
	}

	HTTP struct {
		Timeout     time.Duration `envconfig:"HTTP_TIMEOUT" default:"5s" json:"timeout"`
		CallRetries uint          `envconfig:"CALL_RETRIES" default:"0" json:"call_retries"`
	}

	Discovery struct {
		Timeout time.Duration `envconfig:"SEARCH_TIMEOUT" default:"3s" json:"timeout"`
		Target  string        `envconfig:"SEARCH_TARGET" default:"ssdp:all" json:"target"`
	}

	Listener struct {
		Port        int    `envconfig:"LISTEN_PORT" default:"0" json:"port"`
		BindAddress string `envconfig:"BIND_ADDRESS" default:"0.0.0.0" json:"bind_address"`
	}

	MQTT struct {
		Broker   string `envconfig:"MQTT_BROKER" default:"" json:"broker,omitempty"`
		Topic    string `envconfig:"MQTT_TOPIC" default:"upnp/events" json:"topic"`
		ClientID string `envconfig:"MQTT_CLIENT_ID" default:"" json:"client_id,omitempty"`
		Username string `envconfig:"MQTT_USERNAME" default:"" json:"username,omitempty"`
		Password string `envconfig:"MQTT_PASSWORD" default:"" json:"-"`
		QoS      uint8  `envconfig:"MQTT_QOS" default:"0" json:"qos"`
	}
)

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process(Prefix, cfg); err != nil {
		return nil, fmt.Errorf("unable to parse configuration: %w", err)
	}
	if cfg.MQTT.QoS > 2 {
		return nil, fmt.Errorf("unable to parse configuration: mqtt qos %d out of range", cfg.MQTT.QoS)
	}
	return cfg, nil
}

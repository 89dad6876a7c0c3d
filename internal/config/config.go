// Package config provides client and service configuration loaded from
// environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/morezero/pkgservice-client/pkg/rpc"
	"github.com/morezero/pkgservice-client/pkg/simulator"
	"github.com/morezero/pkgservice-client/pkg/transport"
)

const logPrefix = "config:LoadConfig"

// TransportEmbedded runs a simulated service in the client process.
const TransportEmbedded = "embedded"

// Config holds pkgservice configuration.
type Config struct {
	// COMMS: connect to standalone NATS at COMMSURL.
	COMMSURL  string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	COMMSName string `envconfig:"SERVICE_NAME" default:"pkgservice"`

	// Client transport: nats, ws or embedded.
	Transport string `envconfig:"PKGSVC_TRANSPORT" default:"nats"`
	WSURL     string `envconfig:"PKGSVC_WS_URL" default:"ws://127.0.0.1:8080/ws"`

	// Subject overrides (empty = commsutil defaults)
	RequestSubject string `envconfig:"PKGSVC_REQUEST_SUBJECT"`
	EventsSubject  string `envconfig:"PKGSVC_EVENTS_SUBJECT"`

	// Timeouts and reconnect policy
	RequestTimeout     time.Duration `envconfig:"PKGSVC_REQUEST_TIMEOUT" default:"25s"`
	ReconnectInitial   time.Duration `envconfig:"PKGSVC_RECONNECT_INITIAL" default:"500ms"`
	ReconnectMax       time.Duration `envconfig:"PKGSVC_RECONNECT_MAX" default:"30s"`
	MaxReconnects      int           `envconfig:"PKGSVC_MAX_RECONNECTS" default:"-1"`
	SubscriptionBuffer int           `envconfig:"PKGSVC_SUBSCRIPTION_BUFFER" default:"64"`

	// Catalog
	CatalogFile string `envconfig:"PKGSVC_CATALOG_FILE"`

	// Simulated downloads
	DownloadSteps int           `envconfig:"PKGSVC_DOWNLOAD_STEPS" default:"10"`
	DownloadTick  time.Duration `envconfig:"PKGSVC_DOWNLOAD_TICK" default:"200ms"`
	Version       string        `envconfig:"PKGSVC_VERSION" default:"dev"`

	// Database (empty = in-memory install store)
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"migrations"`

	// HTTP health and websocket gateway
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ValidateForClient checks required config when running the client.
func (c *Config) ValidateForClient() error {
	switch c.Transport {
	case transport.KindNATS:
		if c.COMMSURL == "" {
			return fmt.Errorf("%s - COMMS_URL is required for the nats transport", logPrefix)
		}
	case transport.KindWebSocket:
		if c.WSURL == "" {
			return fmt.Errorf("%s - PKGSVC_WS_URL is required for the ws transport", logPrefix)
		}
	case TransportEmbedded:
	default:
		return fmt.Errorf("%s - PKGSVC_TRANSPORT must be nats, ws or embedded, got %q", logPrefix, c.Transport)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s - PKGSVC_REQUEST_TIMEOUT must be positive", logPrefix)
	}
	if c.ReconnectInitial <= 0 || c.ReconnectMax < c.ReconnectInitial {
		return fmt.Errorf("%s - PKGSVC_RECONNECT_INITIAL must be positive and not above PKGSVC_RECONNECT_MAX", logPrefix)
	}
	if c.SubscriptionBuffer < 0 {
		return fmt.Errorf("%s - PKGSVC_SUBSCRIPTION_BUFFER must not be negative", logPrefix)
	}
	return nil
}

// ValidateForServe checks required config when running the simulated service.
func (c *Config) ValidateForServe() error {
	if c.COMMSURL == "" {
		return fmt.Errorf("%s - COMMS_URL is required for serve", logPrefix)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s - PKGSVC_REQUEST_TIMEOUT must be positive", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	if c.DownloadSteps <= 0 || c.DownloadTick <= 0 {
		return fmt.Errorf("%s - PKGSVC_DOWNLOAD_STEPS and PKGSVC_DOWNLOAD_TICK must be positive", logPrefix)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, clear, seed).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}

// Backoff returns the reconnect policy.
func (c *Config) Backoff() transport.Backoff {
	return transport.Backoff{Initial: c.ReconnectInitial, Max: c.ReconnectMax, Multiplier: 2}
}

// TransportOptions returns the session options for the configured transport.
func (c *Config) TransportOptions() transport.Options {
	return transport.Options{
		Kind: c.Transport,
		NATS: transport.NATSOptions{
			URL:            c.COMMSURL,
			Name:           c.COMMSName,
			RequestSubject: c.RequestSubject,
			EventsSubject:  c.EventsSubject,
			Backoff:        c.Backoff(),
			MaxReconnects:  c.MaxReconnects,
		},
		WS: transport.WSOptions{
			URL:           c.WSURL,
			Backoff:       c.Backoff(),
			MaxReconnects: c.MaxReconnects,
		},
	}
}

// ClientOptions returns the rpc client options.
func (c *Config) ClientOptions() []rpc.Option {
	opts := []rpc.Option{
		rpc.WithDefaultTimeout(c.RequestTimeout),
		rpc.WithResubscribeBackoff(c.Backoff()),
	}
	if c.SubscriptionBuffer > 0 {
		opts = append(opts, rpc.WithSubscriptionBuffer(c.SubscriptionBuffer))
	}
	return opts
}

// SimulatorConfig returns the simulated service settings.
func (c *Config) SimulatorConfig() simulator.Config {
	cfg := simulator.DefaultConfig()
	cfg.Steps = c.DownloadSteps
	cfg.Tick = c.DownloadTick
	cfg.Version = c.Version
	return cfg
}

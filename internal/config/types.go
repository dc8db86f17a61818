package config

import (
	"fmt"
	"time"
)

// Config is the top-level switchgear configuration document,
// corresponding to spec.md §6.
type Config struct {
	LnurlService     LnurlServiceConfig     `yaml:"lnurl-service"`
	DiscoveryService DiscoveryServiceConfig `yaml:"discovery-service"`
	OfferService     OfferServiceConfig     `yaml:"offer-service"`
	Store            StoreConfig            `yaml:"store"`
}

func (c *Config) Validate() error {
	if len(c.LnurlService.Partitions) == 0 {
		return fmt.Errorf("lnurl-service.partitions must list at least one partition")
	}
	if c.LnurlService.Address == "" {
		return fmt.Errorf("lnurl-service.address is required")
	}
	if c.DiscoveryService.Address == "" {
		return fmt.Errorf("discovery-service.address is required")
	}
	if c.OfferService.Address == "" {
		return fmt.Errorf("offer-service.address is required")
	}
	return nil
}

type TLSConfig struct {
	CertPath string `yaml:"cert-path"`
	KeyPath  string `yaml:"key-path"`
}

func (t TLSConfig) Enabled() bool {
	return t.CertPath != "" && t.KeyPath != ""
}

// BackoffConfig corresponds to spec.md §4.3/§6 backoff shapes.
type BackoffConfig struct {
	Type                string        `yaml:"type" env-default:"exponential"`
	InitialInterval     time.Duration `yaml:"initial-interval" env-default:"500ms"`
	RandomizationFactor float64       `yaml:"randomization-factor" env-default:"0.5"`
	Multiplier          float64       `yaml:"multiplier" env-default:"1.5"`
	MaxInterval         time.Duration `yaml:"max-interval" env-default:"10s"`
	MaxElapsedTime      time.Duration `yaml:"max-elapsed-time" env-default:"30s"`
}

// SelectionConfig corresponds to spec.md §4.2/§6 backend-selection.
type SelectionConfig struct {
	Type          string `yaml:"type" env-default:"round-robin"`
	MaxIterations int    `yaml:"max-iterations" env-default:"20"`
}

type LnurlServiceConfig struct {
	Partitions                         []string        `yaml:"partitions"`
	Address                             string          `yaml:"address"`
	TLS                                 TLSConfig       `yaml:"tls"`
	HealthCheckFrequencySecs            float64         `yaml:"health-check-frequency-secs" env-default:"10"`
	ParallelHealthCheck                 bool            `yaml:"parallel-health-check" env-default:"true"`
	HealthCheckConsecutiveSuccess       int             `yaml:"health-check-consecutive-success-to-healthy" env-default:"2"`
	HealthCheckConsecutiveFailure       int             `yaml:"health-check-consecutive-failure-to-unhealthy" env-default:"3"`
	BackendUpdateFrequencySecs          float64         `yaml:"backend-update-frequency-secs" env-default:"15"`
	InvoiceExpirySecs                   int             `yaml:"invoice-expiry-secs" env-default:"3600"`
	LnClientTimeoutSecs                 float64         `yaml:"ln-client-timeout-secs" env-default:"5"`
	AllowedHosts                        []string        `yaml:"allowed-hosts"`
	Backoff                             BackoffConfig   `yaml:"backoff"`
	BackendSelection                    SelectionConfig `yaml:"backend-selection"`
	SelectionCapacityBias               float64         `yaml:"selection-capacity-bias" env-default:"0"`
	CommentAllowed                      int             `yaml:"comment-allowed" env-default:"0"`
	Bech32QRScale                       int             `yaml:"bech32-qr-scale" env-default:"4"`
	Bech32QRLight                       string          `yaml:"bech32-qr-light" env-default:"#FFFFFF"`
	Bech32QRDark                        string          `yaml:"bech32-qr-dark" env-default:"#000000"`
}

func (l LnurlServiceConfig) HealthCheckFrequency() time.Duration {
	return time.Duration(l.HealthCheckFrequencySecs * float64(time.Second))
}

func (l LnurlServiceConfig) BackendUpdateFrequency() time.Duration {
	return time.Duration(l.BackendUpdateFrequencySecs * float64(time.Second))
}

func (l LnurlServiceConfig) LnClientTimeout() time.Duration {
	return time.Duration(l.LnClientTimeoutSecs * float64(time.Second))
}

type DiscoveryServiceConfig struct {
	Address      string    `yaml:"address"`
	TLS          TLSConfig `yaml:"tls"`
	AuthAuthority string   `yaml:"auth-authority"`
	MaxPageSize  int       `yaml:"max-page-size" env-default:"100"`
}

type OfferServiceConfig struct {
	Address       string    `yaml:"address"`
	TLS           TLSConfig `yaml:"tls"`
	AuthAuthority string    `yaml:"auth-authority"`
	MaxPageSize   int       `yaml:"max-page-size" env-default:"100"`
}

// StoreConfig is the `store` section: one sub-config per entity kind
// (discovery backends, offers — which also governs metadata storage).
type StoreConfig struct {
	Discover EntityStoreConfig `yaml:"discover"`
	Offer    EntityStoreConfig `yaml:"offer"`
}

// EntityStoreConfig carries the nested fields for every store.type.
// Only the fields relevant to the selected Type are consulted.
type EntityStoreConfig struct {
	Type     string         `yaml:"type" env-default:"memory"`
	Database DatabaseConfig `yaml:"database"`
	HTTP     HTTPStoreConfig `yaml:"http"`
}

type DatabaseConfig struct {
	Dialect      string `yaml:"dialect" env-default:"postgres"` // postgres | sqlite | mysql
	DSN          string `yaml:"dsn"`
	MaxConns     int    `yaml:"max-connections" env-default:"10"`
	ChangeBusURL string `yaml:"change-bus-url"`
}

type HTTPStoreConfig struct {
	BaseURL          string `yaml:"base-url"`
	TokenFile        string `yaml:"authorization-token-file"`
	TrustedRootsFile string `yaml:"trusted-roots-file"`
}

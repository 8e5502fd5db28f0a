// internal/common/config/config.go
package config

import "time"

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig               `mapstructure:"app"`
	Nostr     NostrConfig             `mapstructure:"nostr"`
	Relays    RelaysConfig            `mapstructure:"relays"`
	Service   ServiceConfig           `mapstructure:"service"`
	Database  DatabaseConfig          `mapstructure:"database"`
	Workers   map[string]WorkerConfig `mapstructure:"workers"`
	Discovery DiscoveryConfig         `mapstructure:"discovery"`
	Logging   LoggingConfig           `mapstructure:"logging"`
	Telemetry TelemetryConfig         `mapstructure:"telemetry"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// NostrConfig holds the service identity. PrivateKey is hex or nsec.
type NostrConfig struct {
	PrivateKey     string `mapstructure:"private_key"`
	VerifyIncoming bool   `mapstructure:"verify_incoming"`
}

// RelaysConfig lists where requests are heard, where the service announces
// itself, and the single upstream source queried for hot content.
type RelaysConfig struct {
	Listen         []string `mapstructure:"listen"`
	Announce       []string `mapstructure:"announce"`
	Upstream       string   `mapstructure:"upstream"`
	DialTimeout    int      `mapstructure:"dial_timeout"`    // milliseconds
	PublishTimeout int      `mapstructure:"publish_timeout"` // milliseconds
}

// ServiceConfig drives the self-announcement and profile metadata.
type ServiceConfig struct {
	Name           string `mapstructure:"name"`
	Identifier     string `mapstructure:"identifier"`
	About          string `mapstructure:"about"`
	PictureURL     string `mapstructure:"picture_url"`
	NIP05          string `mapstructure:"nip05"`
	LUD16          string `mapstructure:"lud16"`
	Amount         string `mapstructure:"amount"`
	DescriptorPath string `mapstructure:"descriptor_path"`
	Announce       bool   `mapstructure:"announce"`
	UpdateProfile  bool   `mapstructure:"update_profile"`
}

type DatabaseConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig is optional. An empty address keeps the duplicate-delivery
// guard in memory.
type RedisConfig struct {
	Address   string `mapstructure:"address"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds, whole-job budget
}

// DiscoveryConfig holds the hot-content query settings.
type DiscoveryConfig struct {
	DefaultMaxResults int    `mapstructure:"default_max_results"`
	MaxResultsCeiling int    `mapstructure:"max_results_ceiling"`
	QueryTimeout      int    `mapstructure:"query_timeout"` // milliseconds
	SearchDirective   string `mapstructure:"search_directive"`
	TargetKind        int    `mapstructure:"target_kind"`
	DedupTTL          int    `mapstructure:"dedup_ttl"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// TelemetryConfig holds the health/metrics listener and the optional trace
// collector endpoint.
type TelemetryConfig struct {
	MetricsAddr    string `mapstructure:"metrics_addr"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

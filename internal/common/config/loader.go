// internal/common/config/loader.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DiscoverHotVideosWorker is the worker key under `workers:`.
const DiscoverHotVideosWorker = "discover-hot-videos"

// DefaultRelays is used for both listening and announcing when no list is
// configured.
var DefaultRelays = []string{
	"wss://relay.divine.video",
	"wss://relay.damus.io",
	"wss://nos.lol",
	"wss://relay.primal.net",
	"wss://relay.ditto.pub",
}

const (
	DefaultUpstreamRelay = "wss://relay.divine.video"
	DefaultServiceName   = "What's Hot on diVine"
	DefaultIdentifier    = "divine-hot-videos"
	DefaultAbout         = "Discover what's hot on diVine! This DVM returns trending short-form videos from the diVine platform, ranked by engagement and recency."
	DefaultPictureURL    = "https://divine.video/logo.png"
)

// Load reads configs/config.yaml, the environment overlay
// config.<APP_ENVIRONMENT>.yaml, .env and the process environment.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // optional overlay

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("nostr.verify_incoming", true)
	v.SetDefault("service.announce", true)
	v.SetDefault("service.update_profile", true)
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideEmptyConfig(&cfg)
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// loadEnvFile loads the first .env found walking up to the project root.
func loadEnvFile() string {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return path
			}
		}
	}
	return ""
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// expandEnvVars resolves ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig honours the environment variable names the service
// has always been deployed with.
func overrideEmptyConfig(cfg *Config) {
	setIfEmpty(&cfg.Nostr.PrivateKey, "NOSTR_PRIVATE_KEY")
	setIfEmpty(&cfg.Service.Name, "DVM_NAME")
	setIfEmpty(&cfg.Service.Identifier, "DVM_IDENTIFIER")
	setIfEmpty(&cfg.Service.About, "DVM_ABOUT")
	setIfEmpty(&cfg.Service.PictureURL, "DVM_PICTURE_URL")
	setIfEmpty(&cfg.Service.NIP05, "DVM_NIP05")
	setIfEmpty(&cfg.Service.LUD16, "DVM_LUD16")
	setIfEmpty(&cfg.Service.Amount, "DVM_AMOUNT")
	setIfEmpty(&cfg.Relays.Upstream, "DIVINE_RELAY")
	setIfEmpty(&cfg.Database.Redis.Address, "REDIS_ADDRESS")

	if len(cfg.Relays.Listen) == 0 {
		cfg.Relays.Listen = ParseRelayList(os.Getenv("RELAY_LIST"))
	}
	if len(cfg.Relays.Announce) == 0 {
		cfg.Relays.Announce = ParseRelayList(os.Getenv("ANNOUNCE_RELAY_LIST"))
	}

	if cfg.Discovery.DefaultMaxResults == 0 {
		if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv("MAX_RESULTS"))); err == nil && n > 0 {
			cfg.Discovery.DefaultMaxResults = n
		}
	}
}

func setIfEmpty(field *string, envKey string) {
	if *field != "" {
		return
	}
	if val := strings.TrimSpace(os.Getenv(envKey)); val != "" {
		*field = val
	}
}

// ParseRelayList splits a comma-separated relay list, dropping blanks.
func ParseRelayList(value string) []string {
	var out []string
	for _, r := range strings.Split(value, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "divine-dvm"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}

	if len(cfg.Relays.Listen) == 0 {
		cfg.Relays.Listen = append([]string(nil), DefaultRelays...)
	}
	if len(cfg.Relays.Announce) == 0 {
		cfg.Relays.Announce = append([]string(nil), DefaultRelays...)
	}
	if cfg.Relays.Upstream == "" {
		cfg.Relays.Upstream = DefaultUpstreamRelay
	}
	if cfg.Relays.DialTimeout == 0 {
		cfg.Relays.DialTimeout = 10000
	}
	if cfg.Relays.PublishTimeout == 0 {
		cfg.Relays.PublishTimeout = 5000
	}

	if cfg.Service.Name == "" {
		cfg.Service.Name = DefaultServiceName
	}
	if cfg.Service.Identifier == "" {
		cfg.Service.Identifier = DefaultIdentifier
	}
	if cfg.Service.About == "" {
		cfg.Service.About = DefaultAbout
	}
	if cfg.Service.PictureURL == "" {
		cfg.Service.PictureURL = DefaultPictureURL
	}
	if cfg.Service.Amount == "" {
		cfg.Service.Amount = "free"
	}

	if cfg.Database.Redis.KeyPrefix == "" {
		cfg.Database.Redis.KeyPrefix = "dvm"
	}

	if cfg.Discovery.DefaultMaxResults == 0 {
		cfg.Discovery.DefaultMaxResults = 20
	}
	if cfg.Discovery.MaxResultsCeiling == 0 {
		cfg.Discovery.MaxResultsCeiling = 100
	}
	if cfg.Discovery.QueryTimeout == 0 {
		cfg.Discovery.QueryTimeout = 5000
	}
	if cfg.Discovery.SearchDirective == "" {
		cfg.Discovery.SearchDirective = "sort:hot"
	}
	if cfg.Discovery.TargetKind == 0 {
		cfg.Discovery.TargetKind = 34236
	}
	if cfg.Discovery.DedupTTL == 0 {
		cfg.Discovery.DedupTTL = 600
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Telemetry.MetricsAddr == "" {
		cfg.Telemetry.MetricsAddr = ":8080"
	}

	if cfg.Workers == nil {
		cfg.Workers = make(map[string]WorkerConfig)
	}
	if _, ok := cfg.Workers[DiscoverHotVideosWorker]; !ok {
		cfg.Workers[DiscoverHotVideosWorker] = WorkerConfig{Enabled: true}
	}
	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 10
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		cfg.Workers[key] = worker
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Nostr.PrivateKey == "" {
		return fmt.Errorf("nostr.private_key is required (or NOSTR_PRIVATE_KEY)")
	}

	for _, r := range cfg.Relays.Listen {
		if err := validateRelayURL(r); err != nil {
			return fmt.Errorf("relays.listen: %w", err)
		}
	}
	for _, r := range cfg.Relays.Announce {
		if err := validateRelayURL(r); err != nil {
			return fmt.Errorf("relays.announce: %w", err)
		}
	}
	if err := validateRelayURL(cfg.Relays.Upstream); err != nil {
		return fmt.Errorf("relays.upstream: %w", err)
	}

	d := cfg.Discovery
	if d.DefaultMaxResults < 1 {
		return fmt.Errorf("discovery.default_max_results must be positive")
	}
	if d.MaxResultsCeiling < 1 {
		return fmt.Errorf("discovery.max_results_ceiling must be positive")
	}
	if d.DefaultMaxResults > d.MaxResultsCeiling {
		return fmt.Errorf("discovery.default_max_results (%d) exceeds max_results_ceiling (%d)",
			d.DefaultMaxResults, d.MaxResultsCeiling)
	}
	if d.QueryTimeout < 0 {
		return fmt.Errorf("discovery.query_timeout must be positive")
	}
	if d.DedupTTL < 1 {
		return fmt.Errorf("discovery.dedup_ttl must be at least 1 second")
	}
	return nil
}

func validateRelayURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid relay url %q: %w", raw, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("relay url %q must use ws or wss", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("relay url %q has no host", raw)
	}
	return nil
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}
	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 10,
		Timeout:       30000,
	}
}

// IsWorkerEnabled checks if a specific worker is enabled
func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}

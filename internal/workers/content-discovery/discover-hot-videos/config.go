package discoverhotvideos

import (
	"fmt"
	"time"

	"divine-dvm/internal/common/config"
)

type Config struct {
	Enabled           bool          `mapstructure:"enabled"`
	MaxJobsActive     int           `mapstructure:"max_jobs_active"`
	Timeout           time.Duration `mapstructure:"timeout"`
	DefaultMaxResults int           `mapstructure:"default_max_results"`
	MaxResultsCeiling int           `mapstructure:"max_results_ceiling"`
	QueryTimeout      time.Duration `mapstructure:"query_timeout"`
	PublishTimeout    time.Duration `mapstructure:"publish_timeout"`
	SearchDirective   string        `mapstructure:"search_directive"`
	TargetKind        int           `mapstructure:"target_kind"`
	UpstreamRelay     string        `mapstructure:"upstream_relay"`
}

func DefaultConfig() *Config {
	return &Config{
		Enabled:           true,
		MaxJobsActive:     10,
		Timeout:           30 * time.Second,
		DefaultMaxResults: 20,
		MaxResultsCeiling: 100,
		QueryTimeout:      5 * time.Second,
		PublishTimeout:    5 * time.Second,
		SearchDirective:   "sort:hot",
		TargetKind:        34236,
		UpstreamRelay:     config.DefaultUpstreamRelay,
	}
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxJobsActive <= 0 {
		return fmt.Errorf("max_jobs_active must be positive")
	}
	if c.DefaultMaxResults <= 0 {
		return fmt.Errorf("default_max_results must be positive")
	}
	if c.MaxResultsCeiling < c.DefaultMaxResults {
		return fmt.Errorf("max_results_ceiling (%d) is below default_max_results (%d)",
			c.MaxResultsCeiling, c.DefaultMaxResults)
	}
	if c.QueryTimeout <= 0 {
		return fmt.Errorf("query_timeout must be positive")
	}
	if c.PublishTimeout <= 0 {
		return fmt.Errorf("publish_timeout must be positive")
	}
	if c.SearchDirective == "" {
		return fmt.Errorf("search_directive is required")
	}
	if c.UpstreamRelay == "" {
		return fmt.Errorf("upstream_relay is required")
	}
	return nil
}

func createConfigFromAppConfig(appConfig *config.Config, customConfig *Config) *Config {
	if customConfig != nil {
		return customConfig
	}

	cfg := DefaultConfig()
	if appConfig == nil {
		return cfg
	}

	if workerCfg, exists := appConfig.Workers[TaskType]; exists {
		cfg.Enabled = workerCfg.Enabled
		if workerCfg.MaxJobsActive > 0 {
			cfg.MaxJobsActive = workerCfg.MaxJobsActive
		}
		if workerCfg.Timeout > 0 {
			cfg.Timeout = config.GetDuration(workerCfg.Timeout)
		}
	}

	d := appConfig.Discovery
	if d.DefaultMaxResults > 0 {
		cfg.DefaultMaxResults = d.DefaultMaxResults
	}
	if d.MaxResultsCeiling > 0 {
		cfg.MaxResultsCeiling = d.MaxResultsCeiling
	}
	if d.QueryTimeout > 0 {
		cfg.QueryTimeout = config.GetDuration(d.QueryTimeout)
	}
	if d.SearchDirective != "" {
		cfg.SearchDirective = d.SearchDirective
	}
	if d.TargetKind > 0 {
		cfg.TargetKind = d.TargetKind
	}
	if appConfig.Relays.PublishTimeout > 0 {
		cfg.PublishTimeout = config.GetDuration(appConfig.Relays.PublishTimeout)
	}
	if appConfig.Relays.Upstream != "" {
		cfg.UpstreamRelay = appConfig.Relays.Upstream
	}
	return cfg
}

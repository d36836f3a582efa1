// Package config loads pipeline configuration from an optional YAML file
// with environment-variable expansion and override, the same way the
// teacher's config package layers a YAML file underneath secrets that
// must come from the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded by cmd/ingest-server and
// cmd/worker-runner (cmd/scale-firmware takes flags only and does not
// load it). Not every binary uses every section, but sharing one struct
// keeps env/flag precedence rules in one place.
type Config struct {
	Framework FrameworkConfig `yaml:"framework"`
	Store     StoreConfig     `yaml:"store"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Worker    WorkerConfig    `yaml:"worker"`
	Capture   CaptureConfig   `yaml:"capture"`
}

// FrameworkConfig contains general process settings.
type FrameworkConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// StoreConfig contains the Postgres/Supabase connection settings. URL and
// ServiceRoleKey are populated from SB_URL/SUPABASE_URL and
// SB_SERVICE_ROLE_KEY/SUPABASE_SERVICE_ROLE_KEY respectively if unset.
type StoreConfig struct {
	URL            string        `yaml:"url"`
	ServiceRoleKey string        `yaml:"service_role_key"`
	Timeout        time.Duration `yaml:"timeout"`
}

// IngestConfig contains the ingest endpoint's settings.
type IngestConfig struct {
	ListenAddr          string `yaml:"listen_addr"`
	FunctionSecret      string `yaml:"function_secret"`
	DefaultHouseholdID  string `yaml:"default_household_id"`
}

// WorkerConfig contains the worker loop's settings.
type WorkerConfig struct {
	ListenAddr              string `yaml:"listen_addr"`
	FunctionSecretProcessor string `yaml:"function_secret_processor"`
	DefaultBatchSize        int    `yaml:"default_batch_size"`
	ConsensusHistorySize    int    `yaml:"consensus_history_size"`
	ConsensusBandKg         float64 `yaml:"consensus_band_kg"`
}

// CaptureConfig contains event-capture state machine constants (§4.D).
// Nothing in this module reads it: cmd/scale-firmware runs with
// capture.DefaultConfig().
type CaptureConfig struct {
	IdlePollMs           int64   `yaml:"idle_poll_ms"`
	TriggerKg            float64 `yaml:"trigger_kg"`
	ReleaseKg            float64 `yaml:"release_kg"`
	BelowHoldMs          int64   `yaml:"below_hold_ms"`
	ActiveMaxMs          int64   `yaml:"active_max_ms"`
	MaxSamples           int     `yaml:"max_samples"`
	ArmBandKg            float64 `yaml:"arm_band_kg"`
	ArmStableMs          int64   `yaml:"arm_stable_ms"`
	RiseMinKg            float64 `yaml:"rise_min_kg"`
	PostActiveCooldownMs int64   `yaml:"post_active_cooldown_ms"`
}

// DefaultConfig returns the reference-design defaults from spec.md §4.D
// and reasonable operational defaults for everything else.
func DefaultConfig() *Config {
	return &Config{
		Framework: FrameworkConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsAddr: ":9100",
		},
		Store: StoreConfig{
			Timeout: 7 * time.Second,
		},
		Ingest: IngestConfig{
			ListenAddr: ":8080",
		},
		Worker: WorkerConfig{
			ListenAddr:           ":8081",
			DefaultBatchSize:     25,
			ConsensusHistorySize: 10,
			ConsensusBandKg:      1.0,
		},
		Capture: CaptureConfig{
			IdlePollMs:           200,
			TriggerKg:            4.00,
			ReleaseKg:            3.00,
			BelowHoldMs:          2000,
			ActiveMaxMs:          90000,
			MaxSamples:           6000,
			ArmBandKg:            1.0,
			ArmStableMs:          2500,
			RiseMinKg:            0.20,
			PostActiveCooldownMs: 4000,
		},
	}
}

// Load reads path (if it exists) as YAML over DefaultConfig, expanding
// ${VAR} references against the environment, then applies the named
// environment variables over whatever the file set — env always wins,
// matching spec.md §6's environment-configuration contract.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}
			expanded := []byte(os.ExpandEnv(string(data)))
			if err := yaml.Unmarshal(expanded, cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat config file: %w", err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

func applyEnv(cfg *Config) {
	if v := firstEnv("SB_URL", "SUPABASE_URL"); v != "" {
		cfg.Store.URL = v
	}
	if v := firstEnv("SB_SERVICE_ROLE_KEY", "SUPABASE_SERVICE_ROLE_KEY"); v != "" {
		cfg.Store.ServiceRoleKey = v
	}
	if v := os.Getenv("FUNCTION_SECRET"); v != "" {
		cfg.Ingest.FunctionSecret = v
	}
	if v := os.Getenv("FUNCTION_SECRET_PROCESSOR"); v != "" {
		cfg.Worker.FunctionSecretProcessor = v
	}
	if v := os.Getenv("DEFAULT_HOUSEHOLD_ID"); v != "" {
		cfg.Ingest.DefaultHouseholdID = v
	}
}

// Save writes cfg to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ValidateIngest reports the first missing setting required to run the
// ingest server. cmd/ingest-server returns this error and does not start;
// no HTTP 500 response is produced for a missing secret.
func (c *Config) ValidateIngest() error {
	if c.Store.URL == "" {
		return fmt.Errorf("missing SB_URL/SUPABASE_URL")
	}
	if c.Store.ServiceRoleKey == "" {
		return fmt.Errorf("missing SB_SERVICE_ROLE_KEY/SUPABASE_SERVICE_ROLE_KEY")
	}
	if c.Ingest.FunctionSecret == "" {
		return fmt.Errorf("missing FUNCTION_SECRET")
	}
	return nil
}

// ValidateWorker reports the first missing secret required to run the
// worker server.
func (c *Config) ValidateWorker() error {
	if c.Store.URL == "" {
		return fmt.Errorf("missing SB_URL/SUPABASE_URL")
	}
	if c.Store.ServiceRoleKey == "" {
		return fmt.Errorf("missing SB_SERVICE_ROLE_KEY/SUPABASE_SERVICE_ROLE_KEY")
	}
	if c.Worker.FunctionSecretProcessor == "" {
		return fmt.Errorf("missing FUNCTION_SECRET_PROCESSOR")
	}
	return nil
}

// Package config manages the branchd configuration file. It handles
// loading, saving, and defaults for the control-plane daemon.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config is the full branchd configuration surface.
type Config struct {
	Listen      string `toml:"listen"`
	DataDir     string `toml:"data_dir"`
	WeaviateURL string `toml:"weaviate_url"`
	AuthToken   string `toml:"auth_token"`
	LogLevel    string `toml:"log_level"`
	LogFormat   string `toml:"log_format"`

	AutoMerge AutoMergeConfig `toml:"automerge"`
	Shadow    ShadowConfig    `toml:"shadow"`
	Risk      RiskConfig      `toml:"risk"`
	Alerts    AlertsConfig    `toml:"alerts"`
	NATS      NATSConfig      `toml:"nats"`
	Diff      DiffConfig      `toml:"diff"`
}

// AutoMergeConfig controls automatic branch promotion.
type AutoMergeConfig struct {
	Enabled            bool `toml:"enabled"`
	RequireValidation  bool `toml:"require_validation"`
	RequireNoConflicts bool `toml:"require_no_conflicts"`
}

// ShadowConfig controls the shadow index switch protocol.
type ShadowConfig struct {
	AutoSwitch              bool     `toml:"auto_switch"`
	ValidationChecks        []string `toml:"validation_checks"`
	BackupBeforeSwitch      bool     `toml:"backup_before_switch"`
	SwitchTimeoutSeconds    int      `toml:"switch_timeout_seconds"`
	RecordCountTolerancePct float64  `toml:"record_count_tolerance_pct"`
	SizeDeltaTolerancePct   float64  `toml:"size_delta_tolerance_pct"`
}

// RiskConfig holds the classification and decision thresholds.
type RiskConfig struct {
	AutoMergeConfidenceThreshold float64             `toml:"auto_merge_confidence_threshold"`
	MaxCriticalConflictsForAuto  int                 `toml:"max_critical_conflicts_for_auto_merge"`
	MaxHighConflictsForAuto      int                 `toml:"max_high_conflicts_for_auto_merge"`
	CriticalServices             []string            `toml:"critical_services"`
	RevenueImpactingEntities     []string            `toml:"revenue_impacting_entities"`
	ComplianceSensitiveEntities  []string            `toml:"compliance_sensitive_entities"`
	ServiceMap                   map[string][]string `toml:"service_map"`
}

// AlertsConfig lists alert webhook destinations.
type AlertsConfig struct {
	WebhookURLs []string `toml:"webhook_urls"`
}

// NATSConfig controls the optional NATS event subscription.
type NATSConfig struct {
	URL     string `toml:"url"`
	Subject string `toml:"subject"`
}

// DiffConfig points at the external diff engine.
type DiffConfig struct {
	URL string `toml:"url"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Listen:      "0.0.0.0:8730",
		DataDir:     "/var/lib/branchd",
		WeaviateURL: "http://localhost:8080",
		LogLevel:    "info",
		LogFormat:   "json",
		AutoMerge: AutoMergeConfig{
			Enabled:            true,
			RequireValidation:  true,
			RequireNoConflicts: true,
		},
		Shadow: ShadowConfig{
			AutoSwitch:              true,
			ValidationChecks:        []string{"RECORD_COUNT_VALIDATION", "SIZE_VALIDATION"},
			BackupBeforeSwitch:      true,
			SwitchTimeoutSeconds:    30,
			RecordCountTolerancePct: 0,
			SizeDeltaTolerancePct:   100,
		},
		Risk: RiskConfig{
			AutoMergeConfidenceThreshold: 0.8,
			MaxCriticalConflictsForAuto:  0,
			MaxHighConflictsForAuto:      5,
		},
		NATS: NATSConfig{
			Subject: "indexing.events.>",
		},
	}
}

// Load reads the configuration from the given path, applying defaults for
// anything unset. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to the given path.
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// BranchDBPath returns the path to the bbolt branch database.
func (c *Config) BranchDBPath() string {
	return c.DataDir + "/branchd.db"
}

// AuditDBPath returns the path to the sqlite audit database.
func (c *Config) AuditDBPath() string {
	return c.DataDir + "/audit.db"
}

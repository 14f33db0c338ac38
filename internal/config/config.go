package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
)

type (
	Config struct {
		Gateway     GatewayConfig            `yaml:"gateway"`
		Logging     LoggingConfig            `yaml:"logging"`
		Aggregator  AggregatorConfig         `yaml:"aggregator"`
		Detector    DetectorConfig           `yaml:"detector"`
		Archive     ArchiveConfig            `yaml:"archive"`
		AI          AIConfig                 `yaml:"ai"`
		Maintenance MaintenanceConfig        `yaml:"maintenance"`
		Channels    map[string]ChannelConfig `yaml:"channels"`
	}

	GatewayConfig struct {
		Bind string `yaml:"bind"` // metrics and health endpoint, e.g. 127.0.0.1:9180
	}

	LoggingConfig struct {
		Level      string `yaml:"level"`  // debug, info, warn, error
		Format     string `yaml:"format"` // json, text
		Output     string `yaml:"output"` // stdout, file, both
		File       string `yaml:"file"`
		MaxSize    int    `yaml:"max_size"` // MB
		MaxBackups int    `yaml:"max_backups"`
		MaxAge     int    `yaml:"max_age"` // days
	}

	AggregatorConfig struct {
		BatchWindowMS int `yaml:"batch_window_ms"`
		MaxBatchSize  int `yaml:"max_batch_size"`
		MaxLocks      int `yaml:"max_locks"`
	}

	DetectorConfig struct {
		Stage1WaitMS int `yaml:"stage1_wait_ms"`
		Stage2WaitMS int `yaml:"stage2_wait_ms"`
	}

	ArchiveConfig struct {
		DBPath          string `yaml:"db_path"`
		PagesDir        string `yaml:"pages_dir"`
		FetchTimeoutSec int    `yaml:"fetch_timeout_sec"`
		MaxPageBytes    int64  `yaml:"max_page_bytes"`
	}

	AIConfig struct {
		Enabled     bool    `yaml:"enabled"`
		BaseURL     string  `yaml:"base_url"`
		APIKey      string  `yaml:"api_key"`
		Model       string  `yaml:"model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float64 `yaml:"temperature"`
	}

	MaintenanceConfig struct {
		Enabled       *bool  `yaml:"enabled"`
		Schedule      string `yaml:"schedule"` // cron spec
		WaitRetention string `yaml:"wait_retention"`
	}

	ChannelConfig struct {
		ID      string         `yaml:"-"`
		Type    string         `yaml:"type"` // telegram
		Enabled bool           `yaml:"enabled"`
		Config  map[string]any `yaml:"config"`
	}
)

// UpdateByName replaces one named section of the config in place.
func (c *Config) UpdateByName(name string, value any) error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	normalizedName := strings.ToLower(strings.TrimSpace(name))
	if normalizedName == "" {
		return fmt.Errorf("name is required")
	}

	switch normalizedName {
	case "config":
		typed, ok := value.(*Config)
		if !ok || typed == nil {
			return fmt.Errorf("name 'config' requires *Config")
		}
		*c = *typed
	case "gateway":
		typed, ok := value.(*GatewayConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'gateway' requires *GatewayConfig")
		}
		c.Gateway = *typed
	case "logging":
		typed, ok := value.(*LoggingConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'logging' requires *LoggingConfig")
		}
		c.Logging = *typed
	case "aggregator":
		typed, ok := value.(*AggregatorConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'aggregator' requires *AggregatorConfig")
		}
		c.Aggregator = *typed
	case "detector":
		typed, ok := value.(*DetectorConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'detector' requires *DetectorConfig")
		}
		c.Detector = *typed
	case "archive":
		typed, ok := value.(*ArchiveConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'archive' requires *ArchiveConfig")
		}
		c.Archive = *typed
	case "ai":
		typed, ok := value.(*AIConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'ai' requires *AIConfig")
		}
		c.AI = *typed
	case "maintenance":
		typed, ok := value.(*MaintenanceConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'maintenance' requires *MaintenanceConfig")
		}
		c.Maintenance = *typed
	case "channels":
		typed, ok := value.(*map[string]ChannelConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'channels' requires *map[string]ChannelConfig")
		}
		next := make(map[string]ChannelConfig, len(*typed))
		for k, v := range *typed {
			next[k] = v
		}
		c.Channels = next
	default:
		return fmt.Errorf("unsupported config name: %s", name)
	}

	return nil
}

// Clone .
func (c *Config) Clone() (*Config, error) {
	if c == nil {
		return nil, fmt.Errorf("config is nil")
	}

	raw, err := sonic.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	var cloned Config
	if err := sonic.Unmarshal(raw, &cloned); err != nil {
		return nil, fmt.Errorf("unmarshal config clone: %w", err)
	}

	return &cloned, nil
}

// Hash .
func (c *Config) Hash() string {
	json := sonic.Config{SortMapKeys: true, UseNumber: true}.Froze()
	raw, _ := json.Marshal(c)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

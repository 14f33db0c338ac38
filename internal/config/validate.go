package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/packratbot/packrat/internal/consts"
)

const (
	defaultBatchWindowMS = 200
	defaultMaxBatchSize  = 100
	defaultMaxLocks      = 100

	defaultStage1WaitMS = 1000
	defaultStage2WaitMS = 5000

	defaultFetchTimeoutSec = 20
	defaultMaxPageBytes    = 8 << 20

	defaultMaintenanceSchedule = "@every 10m"
	defaultWaitRetention       = "30m"
)

// Validate fills defaults and rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config cannot be nil")
	}

	c.Gateway.Bind = strings.TrimSpace(c.Gateway.Bind)
	if c.Gateway.Bind == "" {
		c.Gateway.Bind = "127.0.0.1:9180"
	}

	if c.Aggregator.BatchWindowMS <= 0 {
		c.Aggregator.BatchWindowMS = defaultBatchWindowMS
	}
	if c.Aggregator.MaxBatchSize <= 0 {
		c.Aggregator.MaxBatchSize = defaultMaxBatchSize
	}
	if c.Aggregator.MaxLocks <= 0 {
		c.Aggregator.MaxLocks = defaultMaxLocks
	}

	if c.Detector.Stage1WaitMS <= 0 {
		c.Detector.Stage1WaitMS = defaultStage1WaitMS
	}
	if c.Detector.Stage2WaitMS <= 0 {
		c.Detector.Stage2WaitMS = defaultStage2WaitMS
	}
	if c.Detector.Stage2WaitMS < c.Detector.Stage1WaitMS {
		return fmt.Errorf("detector.stage2_wait_ms (%d) must not be shorter than stage1_wait_ms (%d)",
			c.Detector.Stage2WaitMS, c.Detector.Stage1WaitMS)
	}

	c.Archive.DBPath = strings.TrimSpace(c.Archive.DBPath)
	if c.Archive.DBPath == "" {
		c.Archive.DBPath = consts.DefaultArchiveDBPath()
	}
	c.Archive.PagesDir = strings.TrimSpace(c.Archive.PagesDir)
	if c.Archive.PagesDir == "" {
		c.Archive.PagesDir = consts.DefaultPagesDir()
	}
	if c.Archive.FetchTimeoutSec <= 0 {
		c.Archive.FetchTimeoutSec = defaultFetchTimeoutSec
	}
	if c.Archive.MaxPageBytes <= 0 {
		c.Archive.MaxPageBytes = defaultMaxPageBytes
	}

	if c.AI.Enabled {
		if strings.TrimSpace(c.AI.APIKey) == "" {
			return errors.New("ai.api_key is required when ai.enabled=true")
		}
		if strings.TrimSpace(c.AI.Model) == "" {
			return errors.New("ai.model is required when ai.enabled=true")
		}
	}

	if c.Maintenance.Enabled == nil {
		enabled := true
		c.Maintenance.Enabled = &enabled
	}
	c.Maintenance.Schedule = strings.TrimSpace(c.Maintenance.Schedule)
	if c.Maintenance.Schedule == "" {
		c.Maintenance.Schedule = defaultMaintenanceSchedule
	}
	c.Maintenance.WaitRetention = strings.TrimSpace(c.Maintenance.WaitRetention)
	if c.Maintenance.WaitRetention == "" {
		c.Maintenance.WaitRetention = defaultWaitRetention
	}
	if _, err := time.ParseDuration(c.Maintenance.WaitRetention); err != nil {
		return fmt.Errorf("invalid maintenance.wait_retention: %w", err)
	}

	normalizedChannels := make(map[string]ChannelConfig, len(c.Channels))
	for key, one := range c.Channels {
		channelID := strings.TrimSpace(key)
		if channelID == "" {
			return errors.New("channel id cannot be empty")
		}
		one.ID = channelID

		one.Type = strings.TrimSpace(one.Type)
		if one.Type == "" {
			return fmt.Errorf("channels[%s]: type is required", channelID)
		}
		normalizedChannels[channelID] = one
	}
	c.Channels = normalizedChannels
	return nil
}

// Default is the config written on first run.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{Bind: "127.0.0.1:9180"},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Aggregator: AggregatorConfig{
			BatchWindowMS: defaultBatchWindowMS,
			MaxBatchSize:  defaultMaxBatchSize,
			MaxLocks:      defaultMaxLocks,
		},
		Detector: DetectorConfig{
			Stage1WaitMS: defaultStage1WaitMS,
			Stage2WaitMS: defaultStage2WaitMS,
		},
		Archive: ArchiveConfig{
			DBPath:          consts.DefaultArchiveDBPath(),
			PagesDir:        consts.DefaultPagesDir(),
			FetchTimeoutSec: defaultFetchTimeoutSec,
			MaxPageBytes:    defaultMaxPageBytes,
		},
		Channels: map[string]ChannelConfig{
			"tg-main": {
				Type:    "telegram",
				Enabled: false,
				Config: map[string]any{
					"token": "REPLACE_ME",
				},
			},
		},
	}
}

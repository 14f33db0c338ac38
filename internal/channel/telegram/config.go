package telegram

import (
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/gg/gconv"
)

type Config struct {
	Token        string // Telegram Bot Token
	WebhookURL   string
	WebhookPort  int
	PollTimeout  time.Duration
	AllowedUsers []int64 // empty means every sender is accepted
}

func (c *Config) Validate() error {
	if c.Token == "" {
		return errors.New("telegram bot token cannot be empty")
	}
	if c.PollTimeout == 0 {
		c.PollTimeout = 30 * time.Second
	}
	return nil
}

func ParseConfig(configMap map[string]any) (*Config, error) {
	config := &Config{}

	token := gconv.To[string](configMap["token"])
	if token == "" {
		return nil, errors.New("telegram token is required")
	}
	config.Token = token

	if webhookURL := gconv.To[string](configMap["webhook_url"]); webhookURL != "" {
		config.WebhookURL = webhookURL
	}
	if webhookPort := gconv.To[int](configMap["webhook_port"]); webhookPort > 0 {
		config.WebhookPort = webhookPort
	}

	if pollTimeout := gconv.To[int](configMap["poll_timeout"]); pollTimeout > 0 {
		config.PollTimeout = time.Duration(pollTimeout) * time.Second
	} else {
		config.PollTimeout = 30 * time.Second
	}

	if allowedUsersRaw, ok := configMap["allowed_users"].([]any); ok && len(allowedUsersRaw) > 0 {
		config.AllowedUsers = make([]int64, 0, len(allowedUsersRaw))
		for _, u := range allowedUsersRaw {
			userID := gconv.To[int64](u)
			if userID == 0 {
				return nil, fmt.Errorf("invalid user ID: %v", u)
			}
			config.AllowedUsers = append(config.AllowedUsers, userID)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telegram config: %w", err)
	}

	return config, nil
}

package telegram

import (
	"testing"
	"time"
)

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(map[string]any{
		"token":         "123456:ABC-token",
		"poll_timeout":  10,
		"allowed_users": []any{111, "222"},
	})
	if err != nil {
		t.Fatalf("ParseConfig() error: %v", err)
	}
	if cfg.Token != "123456:ABC-token" {
		t.Errorf("token = %q", cfg.Token)
	}
	if cfg.PollTimeout != 10*time.Second {
		t.Errorf("poll timeout = %v, want 10s", cfg.PollTimeout)
	}
	if len(cfg.AllowedUsers) != 2 || cfg.AllowedUsers[0] != 111 || cfg.AllowedUsers[1] != 222 {
		t.Errorf("allowed users = %v", cfg.AllowedUsers)
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := ParseConfig(map[string]any{"token": "t"})
	if err != nil {
		t.Fatalf("ParseConfig() error: %v", err)
	}
	if cfg.PollTimeout != 30*time.Second {
		t.Errorf("poll timeout = %v, want 30s default", cfg.PollTimeout)
	}
	if cfg.AllowedUsers != nil {
		t.Errorf("allowed users = %v, want nil", cfg.AllowedUsers)
	}
}

func TestParseConfig_Invalid(t *testing.T) {
	if _, err := ParseConfig(map[string]any{}); err == nil {
		t.Error("ParseConfig() accepted a config without token")
	}
	if _, err := ParseConfig(map[string]any{
		"token":         "t",
		"allowed_users": []any{"not-a-number"},
	}); err == nil {
		t.Error("ParseConfig() accepted a non-numeric allowed user")
	}
}

package cronjob

import (
	"context"
	"testing"
	"time"

	"github.com/packratbot/packrat/internal/batch"
	"github.com/packratbot/packrat/internal/config"
)

func TestNewMaintenance_Disabled(t *testing.T) {
	disabled := false
	m, err := NewMaintenance(config.MaintenanceConfig{
		Enabled:       &disabled,
		Schedule:      "@every 10m",
		WaitRetention: "30m",
	}, nil, nil)
	if err != nil {
		t.Fatalf("NewMaintenance() error: %v", err)
	}
	if m != nil {
		t.Error("disabled maintenance should be nil")
	}

	// nil receiver is the disabled state; lifecycle calls are no-ops
	m.Start(context.Background())
	m.Stop()
}

func TestNewMaintenance_RejectsBadConfig(t *testing.T) {
	det := batch.NewForwardDetector(time.Second, 5*time.Second)

	if _, err := NewMaintenance(config.MaintenanceConfig{
		Schedule:      "@every 10m",
		WaitRetention: "soon",
	}, det, nil); err == nil {
		t.Error("NewMaintenance() accepted an unparseable wait retention")
	}

	if _, err := NewMaintenance(config.MaintenanceConfig{
		Schedule:      "not a schedule",
		WaitRetention: "30m",
	}, det, nil); err == nil {
		t.Error("NewMaintenance() accepted an invalid schedule")
	}
}

package application

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ALERTS_CONFIG", "")
	t.Setenv("ALERTS_SPEED_LIMIT_KMH", "")
	t.Setenv("ALERTS_DEFAULT_RADIUS_M", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.SpeedLimitKmh != 110 {
		t.Fatalf("speed limit = %v", cfg.SpeedLimitKmh)
	}
	if cfg.DefaultRadiusM != 500 {
		t.Fatalf("default radius = %v", cfg.DefaultRadiusM)
	}
	if len(cfg.Geofences) != 0 {
		t.Fatalf("geofences = %v", cfg.Geofences)
	}
}

func TestLoadConfigFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.yaml")
	raw := `
speed_limit_kmh: 90
default_radius_m: 250
geofences:
  - site_id: site-1
    name: Depot
    lat: 52.52
    lng: 13.405
    radius_m: 1200
  - site_id: site-2
    name: Quarry
    lat: 52.6
    lng: 13.5
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ALERTS_CONFIG", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.SpeedLimitKmh != 90 {
		t.Fatalf("speed limit = %v", cfg.SpeedLimitKmh)
	}
	if len(cfg.Geofences) != 2 {
		t.Fatalf("geofences = %v", cfg.Geofences)
	}
	if cfg.Geofences[0].RadiusM != 1200 {
		t.Fatalf("explicit radius = %v", cfg.Geofences[0].RadiusM)
	}
	if cfg.Geofences[1].RadiusM != 250 {
		t.Fatalf("zone without radius must fall back to default, got %v", cfg.Geofences[1].RadiusM)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Setenv("ALERTS_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := LoadConfig(); err == nil {
		t.Fatal("missing config file must error")
	}
}

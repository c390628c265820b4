package application

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	alerts "fleet-cloud/internal/alerts/domain"
)

// Config defines the alerts worker rule set. Geofence zones listed here are
// merged with the sites table at wiring time.
type Config struct {
	SpeedLimitKmh  float64           `yaml:"speed_limit_kmh"`
	DefaultRadiusM float64           `yaml:"default_radius_m"`
	Geofences      []alerts.Geofence `yaml:"geofences"`
}

// LoadConfig loads config from yaml (ALERTS_CONFIG) or env with defaults.
func LoadConfig() (Config, error) {
	cfg := Config{
		SpeedLimitKmh:  getenvFloatDefault("ALERTS_SPEED_LIMIT_KMH", 110),
		DefaultRadiusM: getenvFloatDefault("ALERTS_DEFAULT_RADIUS_M", 500),
	}

	if path := os.Getenv("ALERTS_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.SpeedLimitKmh <= 0 {
		cfg.SpeedLimitKmh = 110
	}
	for i := range cfg.Geofences {
		if cfg.Geofences[i].RadiusM <= 0 {
			cfg.Geofences[i].RadiusM = cfg.DefaultRadiusM
		}
	}
	return cfg, nil
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// Package config loads daemon configuration from a YAML file with an
// environment variable overlay. Env vars win over file values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all daemon configuration.
type Config struct {
	Cubo Cloud `yaml:"cubo"`
	MQTT MQTT  `yaml:"mqtt"`
	HTTP HTTP  `yaml:"http"`
	Data Data  `yaml:"data"`
	Log  Log   `yaml:"log"`
}

// Cloud holds vendor cloud and polling configuration.
type Cloud struct {
	APIBase        string   `yaml:"api_base"`
	MobileAPIBase  string   `yaml:"mobile_api_base"`
	PollInterval   Duration `yaml:"poll_interval"`
	HoursBack      int      `yaml:"hours_back"`
	AlertsCount    int      `yaml:"alerts_count"`
	DownloadImages bool     `yaml:"download_images"`
}

// Duration wraps time.Duration so YAML values like "90s" parse.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}

	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MQTT holds broker and discovery configuration.
type MQTT struct {
	Enabled         bool   `yaml:"enabled"`
	BrokerURL       string `yaml:"broker_url"`
	ClientID        string `yaml:"client_id"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	TopicPrefix     string `yaml:"topic_prefix"`
	DiscoveryPrefix string `yaml:"discovery_prefix"`
}

// HTTP holds the read-only API server configuration.
type HTTP struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Data holds local storage paths.
type Data struct {
	Dir       string `yaml:"dir"`
	ImagesDir string `yaml:"images_dir"`
}

// Log holds logging configuration.
type Log struct {
	Level string `yaml:"level"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() Config {
	return Config{
		Cubo: Cloud{
			PollInterval: Duration(60 * time.Second),
			HoursBack:    24,
			AlertsCount:  5,
		},
		MQTT: MQTT{
			ClientID:        "cubod",
			TopicPrefix:     "cubo",
			DiscoveryPrefix: "homeassistant",
		},
		HTTP: HTTP{
			Addr: ":8585",
		},
		Data: Data{
			Dir:       "/data",
			ImagesDir: "/data/images",
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Load reads configuration from a YAML file at path, then overlays
// environment variables. A missing file is fine, the defaults apply.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)

	if cfg.Cubo.PollInterval.Std() < time.Second {
		return cfg, fmt.Errorf("config: poll_interval %s below 1s", cfg.Cubo.PollInterval)
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CUBO_API_BASE"); v != "" {
		cfg.Cubo.APIBase = v
	}
	if v := os.Getenv("CUBO_MOBILE_API_BASE"); v != "" {
		cfg.Cubo.MobileAPIBase = v
	}
	if v := os.Getenv("CUBO_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cubo.PollInterval = Duration(d)
		}
	}
	if v := os.Getenv("CUBO_HOURS_BACK"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cubo.HoursBack = n
		}
	}
	if v := os.Getenv("CUBO_ALERTS_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cubo.AlertsCount = n
		}
	}
	if v := os.Getenv("CUBO_DOWNLOAD_IMAGES"); v != "" {
		cfg.Cubo.DownloadImages = parseBool(v)
	}
	if v := os.Getenv("CUBO_MQTT_ENABLED"); v != "" {
		cfg.MQTT.Enabled = parseBool(v)
	}
	if v := os.Getenv("CUBO_MQTT_BROKER_URL"); v != "" {
		cfg.MQTT.BrokerURL = v
	}
	if v := os.Getenv("CUBO_MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.ClientID = v
	}
	if v := os.Getenv("CUBO_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("CUBO_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("CUBO_MQTT_TOPIC_PREFIX"); v != "" {
		cfg.MQTT.TopicPrefix = v
	}
	if v := os.Getenv("CUBO_MQTT_DISCOVERY_PREFIX"); v != "" {
		cfg.MQTT.DiscoveryPrefix = v
	}
	if v := os.Getenv("CUBO_HTTP_ENABLED"); v != "" {
		cfg.HTTP.Enabled = parseBool(v)
	}
	if v := os.Getenv("CUBO_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("CUBO_DATA_DIR"); v != "" {
		cfg.Data.Dir = v
	}
	if v := os.Getenv("CUBO_IMAGES_DIR"); v != "" {
		cfg.Data.ImagesDir = v
	}
	if v := os.Getenv("CUBO_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	b, _ := strconv.ParseBool(s)
	return b
}

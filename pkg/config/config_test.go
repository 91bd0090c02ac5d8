package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubohome/cubod/pkg/config"
)

func TestDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 60*time.Second, cfg.Cubo.PollInterval.Std())
	assert.Equal(t, 24, cfg.Cubo.HoursBack)
	assert.Equal(t, 5, cfg.Cubo.AlertsCount)
	assert.Equal(t, "homeassistant", cfg.MQTT.DiscoveryPrefix)
	assert.Equal(t, ":8585", cfg.HTTP.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cubod.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cubo:
  poll_interval: 90s
  alerts_count: 10
  download_images: true
mqtt:
  enabled: true
  broker_url: tcp://broker:1883
log:
  level: debug
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.Cubo.PollInterval.Std())
	assert.Equal(t, 10, cfg.Cubo.AlertsCount)
	assert.True(t, cfg.Cubo.DownloadImages)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.BrokerURL)
	assert.Equal(t, "debug", cfg.Log.Level)

	// untouched keys keep their defaults
	assert.Equal(t, 24, cfg.Cubo.HoursBack)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cubod.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cubo:\n  poll_interval: 90s\n"), 0o644))

	t.Setenv("CUBO_POLL_INTERVAL", "2m")
	t.Setenv("CUBO_MQTT_BROKER_URL", "tcp://env-broker:1883")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.Cubo.PollInterval.Std())
	assert.Equal(t, "tcp://env-broker:1883", cfg.MQTT.BrokerURL)
}

func TestMissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, cfg.Cubo.PollInterval.Std())
}

func TestMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cubod.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cubo: [broken"), 0o644))

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestPollIntervalLowerBound(t *testing.T) {
	t.Setenv("CUBO_POLL_INTERVAL", "100ms")

	_, err := config.Load("")
	assert.Error(t, err)
}

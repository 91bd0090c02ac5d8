package app

import (
	"time"

	"github.com/cubohome/cubod/pkg/mqtt"
)

// Opts - application run options
type Opts struct {
	DataDir        string
	PollInterval   time.Duration
	HoursBack      int
	AlertsCount    int
	DownloadImages bool
	ImagesDir      string

	// MQTT is nil when the bridge is disabled
	MQTT *mqtt.Opts

	// HTTPAddr is empty when the API server is disabled
	HTTPAddr string

	// APIBase / MobileAPIBase override the production endpoints, mainly for tests
	APIBase       string
	MobileAPIBase string
}

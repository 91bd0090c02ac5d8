// Package app wires the client, normalizers, state manager and outputs into
// the polling daemon.
package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cubohome/cubod/pkg/alert"
	"github.com/cubohome/cubod/pkg/camera"
	"github.com/cubohome/cubod/pkg/client"
	"github.com/cubohome/cubod/pkg/httpapi"
	"github.com/cubohome/cubod/pkg/images"
	"github.com/cubohome/cubod/pkg/mqtt"
	"github.com/cubohome/cubod/pkg/session"
	"github.com/cubohome/cubod/pkg/utils"
)

// App - application container
type App struct {
	Opts           Opts
	SessionStore   *session.Store
	StateManager   *camera.StateManager
	RestClient     *client.CuboClient
	MQTTConnection *mqtt.Connection
	ImageStore     *images.Store

	mu            sync.RWMutex
	recentAlerts  map[string][]alert.Record
	subscriptions []client.Subscription
	lullabies     []client.Lullaby
}

// NewApp - constructor
func NewApp(opts Opts) (*App, error) {
	sessionStore := session.NewStore(opts.DataDir)
	if err := sessionStore.Load(); err != nil {
		return nil, err
	}

	restClient := client.NewCuboClient(sessionStore)
	if opts.APIBase != "" {
		restClient.APIBase = opts.APIBase
	}
	if opts.MobileAPIBase != "" {
		restClient.MobileAPIBase = opts.MobileAPIBase
	}

	instance := &App{
		Opts:         opts,
		SessionStore: sessionStore,
		StateManager: camera.NewStateManager(),
		RestClient:   restClient,
		recentAlerts: make(map[string][]alert.Record),
	}

	if opts.MQTT != nil {
		instance.MQTTConnection = mqtt.NewConnection(*opts.MQTT)
	}

	if opts.DownloadImages {
		store, err := images.NewStore(opts.ImagesDir, restClient)
		if err != nil {
			return nil, err
		}
		instance.ImageStore = store
	}

	return instance, nil
}

// Run - application main loop
func (app *App) Run(ctx utils.GracefulContext) {
	if app.SessionStore.Pair().AccessToken == "" {
		log.Error().Msg("No stored credentials, run the login command first")
		ctx.Fail(errors.New("no stored credentials"))
		return
	}

	cameras, err := app.fetchCameras()
	if err != nil {
		log.Error().Err(err).Msg("Unable to fetch cameras on startup")
		ctx.Fail(err)
		return
	}

	devices := app.applyCameras(cameras)
	if len(devices) == 0 {
		log.Error().Msg("Account has no cameras")
		ctx.Fail(errors.New("account has no cameras"))
		return
	}

	for name, deviceID := range camera.DeviceMap(cameras) {
		log.Info().Str("baby", name).Str("device_id", deviceID).Msg("Watching camera")
	}

	// MQTT
	if app.MQTTConnection != nil {
		mqttDevices := make([]mqtt.Device, 0, len(devices))
		for _, details := range devices {
			mqttDevices = append(mqttDevices, mqtt.Device{DeviceID: details.DeviceID, BabyName: details.BabyName})
		}

		ctx.RunAsChild(func(childCtx utils.GracefulContext) {
			app.MQTTConnection.Run(mqttDevices, app.StateManager, childCtx)
		})
	}

	// HTTP API
	if app.Opts.HTTPAddr != "" {
		server := httpapi.NewServer(app.Opts.HTTPAddr, app)
		ctx.RunAsChild(server.Run)
	}

	// Static song catalog, fetched once
	app.refreshLullabies()

	// Account-scoped poll units
	ctx.RunAsChild(func(childCtx utils.GracefulContext) {
		app.pollLoop("cameras", childCtx, app.pollCameras)
	})
	ctx.RunAsChild(func(childCtx utils.GracefulContext) {
		app.pollLoop("subscriptions", childCtx, app.pollSubscriptions)
	})

	// Per-camera poll units
	for _, details := range devices {
		deviceID := details.DeviceID

		ctx.RunAsChild(func(childCtx utils.GracefulContext) {
			app.pollLoop("camera-state-"+deviceID, childCtx, func() error {
				return app.pollCameraState(deviceID)
			})
		})

		ctx.RunAsChild(func(childCtx utils.GracefulContext) {
			app.runAlertsLoop(deviceID, childCtx)
		})
	}

	<-ctx.Done()
}

// pollLoop runs the poll function on the configured interval until cancelled.
// The first run happens immediately.
func (app *App) pollLoop(name string, ctx utils.GracefulContext, poll func() error) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			if err := poll(); err != nil {
				logPollFailure(name, err)
			}

			timer.Reset(app.Opts.PollInterval)
		case <-ctx.Done():
			return
		}
	}
}

// logPollFailure sorts the error taxonomy into log levels. Every failure is
// survivable; the next tick tries again.
func logPollFailure(name string, err error) {
	var authErr *client.AuthError
	var transientErr *client.TransientError

	switch {
	case errors.As(err, &authErr):
		log.Error().Str("poller", name).Err(err).Msg("Authentication rejected, re-login required")
	case errors.As(err, &transientErr):
		log.Warn().Str("poller", name).Err(err).Msg("Poll failed, will retry on next tick")
	default:
		log.Error().Str("poller", name).Err(err).Msg("Poll failed")
	}
}

func (app *App) fetchCameras() (*client.CamerasResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), client.RequestTimeout)
	defer cancel()

	return app.RestClient.FetchCameras(ctx)
}

// applyCameras pushes baby info snapshots for every known device and returns
// the merged details
func (app *App) applyCameras(cameras *client.CamerasResponse) []*camera.Details {
	var devices []*camera.Details

	for i := range cameras.Data {
		details := camera.BuildDetails(cameras, cameras.Data[i].DeviceID)
		if details == nil {
			continue
		}

		devices = append(devices, details)

		name := details.BabyName
		if name == "" {
			name = details.DeviceID
		}

		app.StateManager.Update(details.DeviceID, camera.SectionBabyInfo, camera.SensorState{
			State:      name,
			Attributes: details.Attributes(),
			Available:  true,
		})
	}

	return devices
}

func (app *App) pollCameras() error {
	cameras, err := app.fetchCameras()
	if err != nil {
		for _, deviceID := range app.StateManager.DeviceIDs() {
			app.StateManager.MarkUnavailable(deviceID, camera.SectionBabyInfo)
		}
		return err
	}

	app.applyCameras(cameras)
	return nil
}

func (app *App) pollCameraState(deviceID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), client.RequestTimeout)
	defer cancel()

	state, err := app.RestClient.FetchCameraState(ctx, deviceID)
	if err != nil {
		app.StateManager.MarkUnavailable(deviceID, camera.SectionCameraState)
		return err
	}

	app.StateManager.Update(deviceID, camera.SectionCameraState, camera.SensorState{
		State:      state.State,
		Attributes: camera.StateAttributes(state),
		Available:  true,
	})

	return nil
}

func (app *App) pollSubscriptions() error {
	ctx, cancel := context.WithTimeout(context.Background(), client.RequestTimeout)
	defer cancel()

	subscriptions, err := app.RestClient.FetchSubscriptions(ctx)
	if err != nil {
		for _, deviceID := range app.StateManager.DeviceIDs() {
			app.StateManager.MarkUnavailable(deviceID, camera.SectionSubscription)
		}
		return err
	}

	app.mu.Lock()
	app.subscriptions = subscriptions
	app.mu.Unlock()

	for _, subscription := range subscriptions {
		if subscription.DeviceID == "" {
			continue
		}

		app.StateManager.Update(subscription.DeviceID, camera.SectionSubscription, camera.SensorState{
			State: subscription.Status,
			Attributes: map[string]interface{}{
				"service_id":         subscription.ServiceID,
				"status":             subscription.Status,
				"kind":               subscription.Kind,
				"platform":           subscription.Platform,
				"service_start_date": subscription.ServiceStartDate,
				"service_end_date":   subscription.ServiceEndDate,
				"auto_renewal":       subscription.AutoRenewal,
				"order_id":           subscription.OrderID,
			},
			Available: true,
		})
	}

	return nil
}

// runAlertsLoop walks the timeline feed forward, starting HoursBack in the
// past and advancing past the newest alert seen on each tick
func (app *App) runAlertsLoop(deviceID string, ctx utils.GracefulContext) {
	since := time.Now().Add(-time.Duration(app.Opts.HoursBack) * time.Hour).Unix()

	app.pollLoop("alerts-"+deviceID, ctx, func() error {
		next, err := app.pollAlerts(deviceID, since)
		if err != nil {
			return err
		}

		since = next
		return nil
	})
}

func (app *App) pollAlerts(deviceID string, since int64) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
	defer cancel()

	records, err := alert.FetchLatest(ctx, app.RestClient, deviceID, since, app.Opts.AlertsCount)
	if err != nil {
		app.StateManager.MarkUnavailable(deviceID, camera.SectionLastAlert)
		return since, err
	}

	if len(records) == 0 {
		return since, nil
	}

	app.mergeRecentAlerts(deviceID, records)

	latest := records[0]
	app.StateManager.Update(deviceID, camera.SectionLastAlert, camera.SensorState{
		State:      latest.Type,
		Attributes: latest.Attributes(),
		Available:  true,
	})

	if app.ImageStore != nil {
		app.downloadAlertImages(ctx, deviceID, records)
	}

	// records are sorted newest first
	return int64(latest.TS) + 1, nil
}

func (app *App) mergeRecentAlerts(deviceID string, records []alert.Record) {
	app.mu.Lock()
	defer app.mu.Unlock()

	merged := append(records, app.recentAlerts[deviceID]...)
	alert.SortByTimestamp(merged)

	if app.Opts.AlertsCount > 0 && len(merged) > app.Opts.AlertsCount {
		merged = merged[:app.Opts.AlertsCount]
	}

	app.recentAlerts[deviceID] = merged
}

func (app *App) downloadAlertImages(ctx context.Context, deviceID string, records []alert.Record) {
	for _, record := range records {
		if record.ImageURL == "" {
			continue
		}

		if _, err := app.ImageStore.Fetch(ctx, deviceID, record.ID, record.ImageURL); err != nil {
			log.Warn().Str("device_id", deviceID).Str("alert_id", record.ID).Err(err).Msg("Unable to download alert image")
		}
	}
}

func (app *App) refreshLullabies() {
	ctx, cancel := context.WithTimeout(context.Background(), client.RequestTimeout)
	defer cancel()

	lullabies, err := app.RestClient.FetchLullabies(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Unable to fetch lullaby catalog")
		return
	}

	app.mu.Lock()
	app.lullabies = lullabies
	app.mu.Unlock()
}

// DeviceIDs implements httpapi.Source
func (app *App) DeviceIDs() []string {
	return app.StateManager.DeviceIDs()
}

// Snapshot implements httpapi.Source
func (app *App) Snapshot(deviceID string) camera.Snapshot {
	return app.StateManager.Snapshot(deviceID)
}

// RecentAlerts implements httpapi.Source
func (app *App) RecentAlerts(deviceID string) []alert.Record {
	app.mu.RLock()
	defer app.mu.RUnlock()

	records := make([]alert.Record, len(app.recentAlerts[deviceID]))
	copy(records, app.recentAlerts[deviceID])
	return records
}

// Subscriptions implements httpapi.Source
func (app *App) Subscriptions() []client.Subscription {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.subscriptions
}

// Lullabies implements httpapi.Source
func (app *App) Lullabies() []client.Lullaby {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.lullabies
}

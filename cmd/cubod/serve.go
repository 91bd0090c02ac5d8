package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cubohome/cubod/pkg/app"
	"github.com/cubohome/cubod/pkg/config"
	"github.com/cubohome/cubod/pkg/mqtt"
	"github.com/cubohome/cubod/pkg/utils"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the polling daemon",
	Long: `Run the polling daemon.

The daemon polls the CuboAI cloud on a fixed interval and publishes sensor
updates until interrupted (Ctrl+C) or it receives SIGTERM. Run the login
command first to store credentials.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	setLogLevel(cfg.Log.Level)
	log.Info().Str("version", version).Msg("Starting cubod")

	opts := app.Opts{
		DataDir:        cfg.Data.Dir,
		PollInterval:   cfg.Cubo.PollInterval.Std(),
		HoursBack:      cfg.Cubo.HoursBack,
		AlertsCount:    cfg.Cubo.AlertsCount,
		DownloadImages: cfg.Cubo.DownloadImages,
		ImagesDir:      cfg.Data.ImagesDir,
		APIBase:        cfg.Cubo.APIBase,
		MobileAPIBase:  cfg.Cubo.MobileAPIBase,
	}

	if cfg.MQTT.Enabled {
		opts.MQTT = &mqtt.Opts{
			BrokerURL:       cfg.MQTT.BrokerURL,
			ClientID:        cfg.MQTT.ClientID,
			Username:        cfg.MQTT.Username,
			Password:        cfg.MQTT.Password,
			TopicPrefix:     cfg.MQTT.TopicPrefix,
			DiscoveryPrefix: cfg.MQTT.DiscoveryPrefix,
		}
	}

	if cfg.HTTP.Enabled {
		opts.HTTPAddr = cfg.HTTP.Addr
	}

	instance, err := app.NewApp(opts)
	if err != nil {
		return err
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	runner := utils.RunWithGracefulCancel(instance.Run)

	runnerDone := make(chan error, 1)
	go func() {
		runnerDone <- runner.Wait()
	}()

	select {
	case err := <-runnerDone:
		return err
	case <-interrupt:
	}

	log.Warn().Msg("Received interrupt signal, terminating")

	waitForCleanup := make(chan struct{}, 1)

	go func() {
		runner.Cancel()
		close(waitForCleanup)
	}()

	select {
	case <-interrupt:
		log.Fatal().Msg("Received another interrupt signal, forcing termination without clean up")
	case <-waitForCleanup:
		log.Info().Msg("Clean exit")
	}

	return nil
}

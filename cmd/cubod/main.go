// Package main is the entry point for the cubod daemon.
//
// cubod authenticates against the CuboAI cloud, polls the vendor API and
// exposes camera data as Home Assistant sensors over MQTT and a read-only
// HTTP API.
//
// Usage:
//
//	cubod login -c config.yaml  # Interactive login, stores tokens
//	cubod serve -c config.yaml  # Run the polling daemon
//	cubod version               # Show version info
package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cubohome/cubod/pkg/utils"
)

var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "cubod",
	Short: "CuboAI baby monitor cloud poller",
	Long: `cubod polls the CuboAI baby monitor cloud and publishes camera
state, baby info, alerts and subscription status as Home Assistant sensors
via MQTT auto-discovery, plus an optional read-only HTTP API.

Quick start:
  1. cubod login -c cubod.yaml
  2. cubod serve -c cubod.yaml`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("cubod %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.AddCommand(versionCmd)

	cobra.OnInitialize(initLogger)
}

// Set logger for application bootstrap, level is adjusted once config is read
func initLogger() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC822}
	log.Logger = log.Output(consoleWriter)

	utils.LoadDotEnvFile()
}

func setLogLevel(levelStr string) {
	logLevel, _ := zerolog.ParseLevel(levelStr)
	if logLevel == zerolog.NoLevel {
		log.Fatal().Str("value", levelStr).Msg("Unknown log level specified")
	}

	zerolog.SetGlobalLevel(logLevel)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

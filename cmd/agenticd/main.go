// Command agenticd is the agentic run subsystem's process entrypoint.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dembrane/agentic/pkg/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "agenticd",
	Short:   "agenticd runs the agentic run subsystem's HTTP API and background workers",
	Version: version.Full(),
}

func init() {
	rootCmd.PersistentFlags().String("env-file", ".env", "Path to a .env file to load before reading environment variables")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func initLogging() {
	levelFlag, _ := rootCmd.PersistentFlags().GetString("log-level")
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelFlag)); err != nil {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	envFile, _ := rootCmd.PersistentFlags().GetString("env-file")
	if err := godotenv.Load(envFile); err != nil {
		slog.Debug("no .env file loaded", "path", envFile, "error", err)
	} else {
		slog.Info("loaded environment file", "path", envFile)
	}
}

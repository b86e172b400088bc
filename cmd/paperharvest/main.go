// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the paperharvest CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/paperharvest/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets secrets.Secrets

var logger zerolog.Logger

// rootCmd is the base command for the paperharvest CLI.
var rootCmd = &cobra.Command{
	Use:   "paperharvest",
	Short: "Harvest academic papers and collect their PDFs",
	Long: `paperharvest queries bibliographic databases (PubMed, medRxiv, bioRxiv)
with a boolean term query, merges the results across databases, and stores
them in a local SQLite database. A second stage resolves and downloads the
papers' PDF files using per-publisher URL heuristics.

Each stage is a subcommand: search harvests papers, download fetches
their PDFs.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; environment variables win when both exist.
		_ = godotenv.Load()

		verbose, _ := cmd.Flags().GetBool("verbose")
		level := zerolog.InfoLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			Level(level).With().Timestamp().Logger()

		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := s.Keys()
			sort.Strings(keys)
			logger.Debug().Strs("keys", keys).Msg("loaded secrets")
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./paperharvest.yaml or ~/.config/paperharvest/config.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("paperharvest")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "paperharvest"))
		}
	}

	viper.SetEnvPrefix("PAPERHARVEST")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the litriage CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/litriage/internal/secrets"
	"github.com/pdiddy/litriage/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// secretDefault returns the secret value for key if it exists, or fallback otherwise.
func secretDefault(key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if v, ok := loadedSecrets[key]; ok {
		return v
	}
	return ""
}

// rootCmd is the base command for the litriage CLI.
var rootCmd = &cobra.Command{
	Use:   "litriage",
	Short: "Triage and extract biomedical case literature",
	Long: `litriage turns a bibliographic search into structured case data in two
stages. The triage stage fetches candidate records from PubMed or Europe PMC,
classifies and scores them against a concept vocabulary, collapses duplicates,
and emits a ranked curated collection. The extract stage runs configured
extraction agents over each curated document and stores the resulting reports.

Each stage is a subcommand: triage, extract, and report.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./litriage.yaml or ~/.config/litriage/config.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("litriage")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "litriage"))
		}
	}

	viper.SetEnvPrefix("LITRIAGE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// pipelineConfig unmarshals the loaded configuration and fills defaults.
func pipelineConfig() (types.PipelineConfig, error) {
	var cfg types.PipelineConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing configuration: %w", err)
	}
	cfg.Source.APIKey = secretDefault("ncbi-api-key", cfg.Source.APIKey)
	cfg.Source.Email = secretDefault("europepmc-email", cfg.Source.Email)
	cfg.ApplyDefaults()
	if len(cfg.Extraction.Agents) == 0 {
		cfg.Extraction.Agents = defaultAgents()
		cfg.ApplyDefaults()
	}
	return cfg, nil
}

// defaultAgents is the agent table used when the config file does not
// provide one.
func defaultAgents() []types.AgentConfig {
	return []types.AgentConfig{
		{ID: "demographics", Required: true, Importance: 1, MaxRetries: 2},
		{ID: "genetics", Required: true, Importance: 2, MaxRetries: 2},
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

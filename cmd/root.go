package cmd

import (
	"fmt"

	"github.com/psds-microservice/field-service/internal/application"
	"github.com/psds-microservice/field-service/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "field-service",
	Short:        "Elevator field service: maintenance tickets and AI troubleshooting assistant",
	RunE:         runAPI,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(apiCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(reindexManualCmd)
}

// loadConfig читает .env и окружение, проверяет конфиг и настраивает логгер.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	application.SetupLogger(cfg)
	return cfg, nil
}

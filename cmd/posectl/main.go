package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/danmuck/posectl/internal/logging"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "posectl.toml"

var (
	configPath string
	baseURL    string
)

var rootCmd = &cobra.Command{
	Use:   "posectl",
	Short: "Capture pose sessions and upload them to a collector",
	Long: `posectl - buffer pose/hand landmark sessions and deliver them to a collector

Sessions are uploaded with a bounded retry loop: every attempt has its own
timeout and failed attempts back off exponentially. A session is only
discarded after the collector confirms it.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "client config path (TOML)")
	rootCmd.PersistentFlags().StringVar(&baseURL, "url", "", "collector base URL (overrides config)")
}

func main() {
	logging.ConfigureRuntime()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "posectl: %v\n", err)
		os.Exit(1)
	}
}

// resolveConfig loads the config file when present. A missing default file
// falls back to built-in defaults; a missing explicit file is an error.
func resolveConfig(cmd *cobra.Command) (clientConfig, error) {
	cfg := defaultClientConfig()
	if _, err := os.Stat(configPath); err == nil {
		loaded, err := loadClientConfig(configPath)
		if err != nil {
			return clientConfig{}, err
		}
		cfg = loaded
	} else if !errors.Is(err, os.ErrNotExist) || cmd.Flags().Changed("config") {
		return clientConfig{}, fmt.Errorf("config %s: %w", configPath, err)
	}
	if baseURL != "" {
		cfg.Upload.BaseURL = baseURL
	}
	cfg.Upload = cfg.Upload.WithDefaults()
	if err := cfg.Upload.Validate(); err != nil {
		return clientConfig{}, err
	}
	return cfg, nil
}

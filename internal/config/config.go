package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	FormatJSON = "json"
	FormatCBOR = "cbor"
)

type CollectorConfig struct {
	Name          string   `toml:"name"`
	Addr          string   `toml:"addr"`
	CorsOrigins   []string `toml:"cors_origins"`
	StorageDir    string   `toml:"storage_dir"`
	StorageFormat string   `toml:"storage_format"`
	MaxBodyBytes  int64    `toml:"max_body_bytes"`
}

func DefaultCollectorConfig() CollectorConfig {
	return CollectorConfig{
		Name:          "collector",
		Addr:          ":8000",
		StorageDir:    "local/sessions",
		StorageFormat: FormatJSON,
		MaxBodyBytes:  64 << 20,
	}
}

func LoadCollectorConfig(path string) (CollectorConfig, error) {
	cfg := DefaultCollectorConfig()
	if err := loadToml(path, &cfg); err != nil {
		return CollectorConfig{}, err
	}
	cfg = cfg.withDefaults()
	if err := ValidateCollectorConfig(cfg); err != nil {
		return CollectorConfig{}, err
	}
	return cfg, nil
}

func (c CollectorConfig) withDefaults() CollectorConfig {
	def := DefaultCollectorConfig()
	if strings.TrimSpace(c.Name) == "" {
		c.Name = def.Name
	}
	if strings.TrimSpace(c.Addr) == "" {
		c.Addr = def.Addr
	}
	if strings.TrimSpace(c.StorageDir) == "" {
		c.StorageDir = def.StorageDir
	}
	c.StorageFormat = strings.ToLower(strings.TrimSpace(c.StorageFormat))
	if c.StorageFormat == "" {
		c.StorageFormat = def.StorageFormat
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = def.MaxBodyBytes
	}
	return c
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateCollectorConfig(cfg CollectorConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("collector config missing name")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("collector config missing addr")
	}
	if strings.TrimSpace(cfg.StorageDir) == "" {
		return fmt.Errorf("collector config missing storage_dir")
	}
	switch cfg.StorageFormat {
	case FormatJSON, FormatCBOR:
	default:
		return fmt.Errorf("collector config storage_format %q unsupported", cfg.StorageFormat)
	}
	if cfg.MaxBodyBytes < 0 {
		return fmt.Errorf("collector config max_body_bytes must be positive")
	}
	for i, origin := range cfg.CorsOrigins {
		if strings.TrimSpace(origin) == "" {
			return fmt.Errorf("cors_origins[%d] is empty", i)
		}
	}
	return nil
}

package main

import (
	"os"

	"github.com/danmuck/posectl/internal/collector"
	"github.com/danmuck/posectl/internal/config"
	"github.com/danmuck/posectl/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"
)

func main() {
	configPath := flag.StringP("config", "c", "cmd/collectorctl/config.toml", "collector config path (TOML)")
	addr := flag.String("addr", "", "listen address (overrides config)")
	storageDir := flag.String("storage-dir", "", "session storage directory (overrides config)")
	release := flag.Bool("release", false, "run gin in release mode")
	initConfig := flag.Bool("init", false, "write a config template to --config and exit")
	flag.Parse()

	if *initConfig {
		if err := config.WriteTemplate(*configPath, config.KindCollector, false); err != nil {
			log.Fatal().Err(err).Msg("failed to write config template")
		}
		log.Info().Str("path", *configPath).Msg("wrote collector config template")
		return
	}

	if *release {
		gin.SetMode(gin.ReleaseMode)
	}

	cfg, err := config.LoadCollectorConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load collector config")
	}
	observability.InitLogger("collector", cfg.Name)
	log.Info().Str("path", *configPath).Msg("loaded collector config")
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *storageDir != "" {
		cfg.StorageDir = *storageDir
	}

	store, err := collector.NewFileStore(cfg.StorageDir, cfg.StorageFormat)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open session store")
	}
	server := collector.Appear(cfg, store)
	log.Info().
		Str("id", server.ID).
		Str("addr", server.Addr).
		Str("storage", cfg.StorageDir).
		Str("format", store.Format()).
		Msg("collector started")
	if err := server.Serve(); err != nil {
		log.Error().Err(err).Msg("collector stopped")
		os.Exit(1)
	}
}

package main

import (
	"flag"

	"github.com/rs/zerolog/log"

	"dingbot/internal/pkg/logger"
	"dingbot/internal/platform/config"
	"dingbot/internal/platform/database"
	"dingbot/migrations"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg.Logging)

	db, err := database.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open robot registry")
	}
	defer db.Close()

	if err := database.Migrate(db, migrations.FS, "global"); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	log.Info().Msg("migration completed successfully")
}

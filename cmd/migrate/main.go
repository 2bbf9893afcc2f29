package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"

	"breakfear-decoder/internal/common/config"
	"breakfear-decoder/internal/common/logger"
)

func main() {
	var (
		databaseURL    string
		migrationsPath string
		command        string
	)
	flag.StringVar(&databaseURL, "database", "", "Database URL (defaults to DATABASE_URL, then the configured postgres)")
	flag.StringVar(&migrationsPath, "path", "migrations", "Path to migrations directory")
	flag.StringVar(&command, "command", "up", "Migration command: up, down, version, force")
	flag.Parse()

	log := logger.New("info", "console", "stdout")
	defer log.Sync()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		cfg, err := config.Load()
		if err != nil {
			log.Fatal("database URL not given and config failed to load", zap.Error(err))
		}
		if cfg.Database.Postgres.Host == "" {
			log.Fatal("database URL is required: use -database, DATABASE_URL or database.postgres in config")
		}
		databaseURL = cfg.Database.Postgres.GetURL()
	}

	log.Info("connecting to database", zap.String("migrations", migrationsPath))
	m, err := migrate.New(fmt.Sprintf("file://%s", migrationsPath), databaseURL)
	if err != nil {
		log.Fatal("failed to create migration instance", zap.Error(err))
	}
	defer m.Close()

	switch command {
	case "up":
		err = m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("no migrations to run, database is up to date")
			return
		}
		if err != nil {
			log.Fatal("failed to run migrations", zap.Error(err))
		}
		log.Info("migrations completed")

	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatal("failed to roll back migrations", zap.Error(err))
		}
		log.Info("rollback completed")

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			log.Fatal("failed to get version", zap.Error(err))
		}
		log.Info("current version", zap.Uint("version", version), zap.Bool("dirty", dirty))

	case "force":
		if flag.NArg() < 1 {
			log.Fatal("force requires a version number: -command force <version>")
		}
		var version int
		if _, err := fmt.Sscanf(flag.Arg(0), "%d", &version); err != nil {
			log.Fatal("invalid version number", zap.Error(err))
		}
		if err := m.Force(version); err != nil {
			log.Fatal("failed to force version", zap.Error(err))
		}
		log.Info("forced version", zap.Int("version", version))

	default:
		log.Fatal("unknown command, use up, down, version or force", zap.String("command", command))
	}
}

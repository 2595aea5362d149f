package repository

import (
	"database/sql"
	"fmt"

	"github.com/pressly/goose"

	"github.com/comitanigiacomo/kanso-progress-engine/internal/logger"

	_ "github.com/lib/pq"
)

// Migrate applies every pending goose migration found in dir.
func Migrate(dsn, dir string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("repository: open migration connection: %w", err)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("repository: goose dialect: %w", err)
	}
	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("repository: migrate: %w", err)
	}

	version, err := goose.GetDBVersion(db)
	if err == nil {
		logger.Info("database migrated", "version", version, "dir", dir)
	}
	return nil
}

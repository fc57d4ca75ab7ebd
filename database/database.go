package database

import (
	"context"
	"fmt"

	"github.com/sagarc03/stashbox"
	"github.com/sagarc03/stashbox/database/postgres"
	"github.com/sagarc03/stashbox/database/sqlite"
)

// Database is a connected metadata backend.
type Database interface {
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Validate(ctx context.Context) error
	GetRepo() stashbox.ObjectRepo
	Close() error
}

// Config holds the configuration for connecting to a metadata backend.
type Config struct {
	// Type specifies the database type: "sqlite" or "postgres"
	Type string `mapstructure:"type" validate:"required,oneof=sqlite postgres"`
	// DSN is the data source name (connection string)
	DSN    string          `mapstructure:"dsn" validate:"required"`
	Tables stashbox.Tables `mapstructure:"tables"`
}

// Connect opens the configured backend. It validates the table names but
// does not migrate; call Migrate or Validate on the result.
func Connect(ctx context.Context, cfg Config) (Database, error) {
	if cfg.Type != "sqlite" && cfg.Type != "postgres" {
		return nil, fmt.Errorf("unsupported database type: %q", cfg.Type)
	}

	if err := cfg.Tables.Validate(); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if cfg.Type == "postgres" {
		db, err := postgres.Connect(ctx, cfg.DSN, cfg.Tables)
		if err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := sqlite.Connect(ctx, cfg.DSN, cfg.Tables)
	if err != nil {
		return nil, err
	}
	return db, nil
}

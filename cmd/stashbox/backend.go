package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"os"

	"github.com/sagarc03/stashbox"
	"github.com/sagarc03/stashbox/config"
	"github.com/sagarc03/stashbox/database"
	"github.com/sagarc03/stashbox/filesystem"
)

// backend bundles the metadata database and the blob store every
// subcommand works against.
type backend struct {
	db    database.Database
	root  *os.Root
	blobs *filesystem.Store
}

// openDatabase connects, optionally migrates, and checks the schema.
func openDatabase(ctx context.Context, cfg *config.Config, migrate bool) (database.Database, error) {
	db, err := database.Connect(ctx, cfg.Database.Config)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err = db.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if migrate {
		if err = db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		slog.Info("database migration complete")
	}

	if err = db.Validate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("validate database schema: %w", err)
	}

	slog.Debug("connected to database", "type", cfg.Database.Type)
	return db, nil
}

// openBackend opens the database and the storage root. The storage
// directory is created when create is set, otherwise it must exist.
func openBackend(ctx context.Context, cfg *config.Config, migrate, create bool) (*backend, error) {
	if create {
		if err := os.MkdirAll(cfg.Storage.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	} else if _, err := os.Stat(cfg.Storage.Path); os.IsNotExist(err) {
		return nil, fmt.Errorf("storage directory does not exist: %s", cfg.Storage.Path)
	}

	root, err := os.OpenRoot(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open storage root: %w", err)
	}

	db, err := openDatabase(ctx, cfg, migrate)
	if err != nil {
		_ = root.Close()
		return nil, err
	}

	return &backend{db: db, root: root, blobs: filesystem.NewBlobStore(root)}, nil
}

func (b *backend) Close() {
	if err := b.db.Close(); err != nil {
		slog.Warn("failed to close database", "err", err)
	}
	if err := b.root.Close(); err != nil {
		slog.Warn("failed to close storage root", "err", err)
	}
}

// service builds the storage service. Commands that redeem their own tokens
// straight away fall back to a random key when no token secret is set.
func (b *backend) service(cfg *config.Config) (*stashbox.StorageService, error) {
	secret := []byte(cfg.Token.Secret)
	if len(secret) == 0 {
		secret = make([]byte, stashbox.MinSecretLength)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate token secret: %w", err)
		}
	}

	signer, err := stashbox.NewTokenSigner(secret)
	if err != nil {
		return nil, fmt.Errorf("create token signer: %w", err)
	}

	service, err := stashbox.NewStorageService(b.db.GetRepo(), b.blobs, signer, cfg.Service.StorageService())
	if err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}
	return service, nil
}

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sagarc03/stashbox/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the metadata schema",
	Long: `Create the objects table and its indexes if they are missing,
then check that the live schema matches what stashbox expects.

Run this before 'stashbox serve' when database.auto_migrate is off.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	db, err := openDatabase(cmd.Context(), cfg, true)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	slog.Info("schema is up to date", "type", cfg.Database.Type, "table", cfg.Database.Tables.Objects)
	return nil
}

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sagarc03/stashbox/config"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Version: version,
	Use:     "stashbox",
	Short:   "Blob store with signed upload and download URLs",
	Long: `Stashbox stores opaque blobs for owners, addressed by bucket and key.
Clients ask for a short-lived presigned URL, write the content to it once,
and later fetch it through a signed download URL.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		files, _ := cmd.Flags().GetStringSlice("config")

		cfg, err := config.Load(files, cmd.Flags())
		if err != nil {
			return err
		}

		setupLogging(cfg.Env, cfg.Log.Level)
		cmd.SetContext(config.WithContext(cmd.Context(), cfg))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringSlice("config", nil, "config file paths, merged left to right (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("db-type", "", "database type: sqlite, postgres (default: sqlite, env: STASHBOX_DATABASE_TYPE)")
	rootCmd.PersistentFlags().String("db-dsn", "", "database connection string (default: stashbox.db, env: STASHBOX_DATABASE_DSN)")
	rootCmd.PersistentFlags().String("storage-path", "", "blob directory path (default: ./data, env: STASHBOX_STORAGE_PATH)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error (default: info, env: STASHBOX_LOG_LEVEL)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sagarc03/stashbox"
	"github.com/sagarc03/stashbox/config"
)

var removeCmd = &cobra.Command{
	Use:   "remove [flags] <key1> [key2] ...",
	Short: "Delete objects from a bucket",
	Long: `Soft-delete objects of an owner by marking them for removal.

This command marks records as deleted in the metadata database. Blob
removal happens later via 'stashbox cleanup'.

Examples:
  # Remove a single object
  stashbox remove --owner u1 --bucket avatars u1.png

  # Remove multiple objects
  stashbox remove --owner u1 --bucket docs a.txt b.txt c.txt

  # Remove every object under a prefix
  stashbox remove --owner u1 --bucket photos --prefix 2024/

  # Remove quietly (suppress per-object output)
  stashbox remove --owner u1 --bucket docs -q a.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRemove,
}

var (
	removeOwner  string
	removeBucket string
	removePrefix bool
	removeQuiet  bool
)

func init() {
	removeCmd.Flags().StringVar(&removeOwner, "owner", "", "owner id the objects belong to")
	removeCmd.Flags().StringVar(&removeBucket, "bucket", "", "bucket to delete from")
	removeCmd.Flags().BoolVarP(&removePrefix, "prefix", "p", false, "treat arguments as key prefixes and remove all matching objects")
	removeCmd.Flags().BoolVarP(&removeQuiet, "quiet", "q", false, "suppress per-object output")
	_ = removeCmd.MarkFlagRequired("owner")
	_ = removeCmd.MarkFlagRequired("bucket")
	rootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	b, err := openBackend(ctx, cfg, false, false)
	if err != nil {
		return err
	}
	defer b.Close()

	service, err := b.service(cfg)
	if err != nil {
		return err
	}

	removed := 0
	notFound := 0

	for _, arg := range args {
		if removePrefix {
			count, nfCount, prefixErr := removeByPrefix(ctx, service, removeOwner, removeBucket, arg)
			if prefixErr != nil {
				return prefixErr
			}
			removed += count
			notFound += nfCount
			continue
		}

		deleteErr := service.Delete(ctx, removeOwner, removeBucket, arg)
		if errors.Is(deleteErr, stashbox.ErrNotFound) {
			notFound++
			if !removeQuiet {
				slog.Warn("not found", "bucket", removeBucket, "key", arg)
			}
			continue
		}
		if deleteErr != nil {
			return fmt.Errorf("remove %s: %w", arg, deleteErr)
		}
		removed++
		if !removeQuiet {
			slog.Info("removed", "bucket", removeBucket, "key", arg)
		}
	}

	slog.Info("remove complete", "removed", removed, "not_found", notFound)
	return nil
}

// removeByPrefix removes all active objects whose key starts with prefix.
// Returns the count of removed objects, not found count, and any error.
func removeByPrefix(ctx context.Context, service *stashbox.StorageService, ownerID, bucket, prefix string) (removed, notFound int, err error) {
	cursor := ""

	for {
		result, listErr := service.List(ctx, ownerID, stashbox.ListQuery{
			Bucket:    bucket,
			KeyPrefix: prefix,
			Limit:     100,
			Cursor:    cursor,
		})
		if listErr != nil {
			return removed, notFound, fmt.Errorf("list prefix %s: %w", prefix, listErr)
		}

		for _, item := range result.Items {
			deleteErr := service.Delete(ctx, ownerID, bucket, item.Key)
			if errors.Is(deleteErr, stashbox.ErrNotFound) {
				notFound++
				if !removeQuiet {
					slog.Warn("not found", "bucket", bucket, "key", item.Key)
				}
				continue
			}
			if deleteErr != nil {
				return removed, notFound, fmt.Errorf("remove %s: %w", item.Key, deleteErr)
			}
			removed++
			if !removeQuiet {
				slog.Info("removed", "bucket", bucket, "key", item.Key)
			}
		}

		if result.NextCursor == "" {
			break
		}
		cursor = result.NextCursor
	}

	return removed, notFound, nil
}

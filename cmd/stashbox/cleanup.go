package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sagarc03/stashbox"
	"github.com/sagarc03/stashbox/config"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove the blobs of deleted objects",
	Long: `Permanently remove the blobs of soft-deleted objects.

This command processes every object that has been deleted but whose blob
is still on disk. For each one it:
  1. Deletes the blob from the storage directory
  2. Marks the metadata record as cleaned up

With --report-orphans it then lists blobs that need an operator: blobs
no record references, and blobs whose record is still pending because
activation failed after the content was written. They are only
reported, never removed.

Run this periodically to reclaim storage space from deleted objects.`,
	RunE: runCleanup,
}

var (
	cleanupLimit         int
	cleanupOwner         string
	cleanupReportOrphans bool
)

func init() {
	cleanupCmd.Flags().IntVar(&cleanupLimit, "limit", 100, "number of records fetched per batch")
	cleanupCmd.Flags().StringVar(&cleanupOwner, "owner", "", "only clean up objects of this owner")
	cleanupCmd.Flags().BoolVar(&cleanupReportOrphans, "report-orphans", false, "print blobs with no record or a record stuck in pending")
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
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

	slog.Info("starting cleanup", "limit", cleanupLimit, "owner", cleanupOwner)

	cleaned, err := service.Tombstone(ctx, stashbox.ListQuery{OwnerID: cleanupOwner, Limit: cleanupLimit})
	if err != nil {
		return fmt.Errorf("tombstone: %w", err)
	}

	slog.Info("cleanup complete", "blobs_removed", cleaned)

	if !cleanupReportOrphans {
		return nil
	}

	orphans, err := reportOrphans(ctx, b.db.GetRepo(), b.blobs, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	slog.Info("orphan scan complete", "orphans", orphans)
	return nil
}

// reportOrphans writes "id<TAB>path<TAB>reason" for every blob that needs
// an operator and returns how many it found. reason is "unreferenced" when
// no record points at the blob and "pending" when its record never became
// active, which happens when activation and the compensating delete both
// failed.
func reportOrphans(ctx context.Context, repo stashbox.ObjectRepo, blobs stashbox.BlobStore, out io.Writer) (int, error) {
	all, err := blobs.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list blobs: %w", err)
	}

	found := 0
	for _, blob := range all {
		reason := ""
		obj, err := repo.FindByBlobID(ctx, blob.ID)
		switch {
		case errors.Is(err, stashbox.ErrNotFound):
			reason = "unreferenced"
		case err != nil:
			return found, fmt.Errorf("find blob %s: %w", blob.ID, err)
		case obj.Status == stashbox.StatusPending:
			reason = "pending"
		default:
			continue
		}

		found++
		if _, err := fmt.Fprintf(out, "%s\t%s\t%s\n", blob.ID, blob.Path, reason); err != nil {
			return found, err
		}
	}

	return found, nil
}

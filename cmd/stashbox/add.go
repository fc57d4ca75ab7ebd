package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sagarc03/stashbox"
	"github.com/sagarc03/stashbox/config"
)

var addCmd = &cobra.Command{
	Use:   "add [flags] <file1> [file2] ...",
	Short: "Import local files into a bucket",
	Long: `Import files from local paths into stashbox for an owner.

Each file goes through the same reserve, write and activate steps as an
API upload. Keys are the file names, or paths relative to the directory
given with -r, below the optional --dest prefix.

Examples:
  # Add a single file
  stashbox add --owner u1 --bucket avatars /path/to/u1.png

  # Add with a key prefix
  stashbox add --owner u1 --bucket photos --dest 2024/ /path/to/photo.jpg

  # Add a directory recursively
  stashbox add --owner u1 --bucket assets -r /path/to/assets

  # Skip keys that already exist
  stashbox add --owner u1 --bucket assets --no-clobber /path/to/file.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdd,
}

var (
	addOwner     string
	addBucket    string
	addDest      string
	addRecursive bool
	addNoClobber bool
	addQuiet     bool
)

func init() {
	addCmd.Flags().StringVar(&addOwner, "owner", "", "owner id the objects belong to")
	addCmd.Flags().StringVar(&addBucket, "bucket", "", "destination bucket")
	addCmd.Flags().StringVarP(&addDest, "dest", "d", "", "key prefix in the bucket")
	addCmd.Flags().BoolVarP(&addRecursive, "recursive", "r", false, "recursively add directories")
	addCmd.Flags().BoolVarP(&addNoClobber, "no-clobber", "n", false, "skip existing keys instead of failing")
	addCmd.Flags().BoolVarP(&addQuiet, "quiet", "q", false, "suppress per-file output")
	_ = addCmd.MarkFlagRequired("owner")
	_ = addCmd.MarkFlagRequired("bucket")
	rootCmd.AddCommand(addCmd)
}

// fileEntry represents a file to be added with its source path and key.
type fileEntry struct {
	sourcePath string
	key        string
}

func runAdd(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	b, err := openBackend(ctx, cfg, false, true)
	if err != nil {
		return err
	}
	defer b.Close()

	service, err := b.service(cfg)
	if err != nil {
		return err
	}

	// Collect files from all arguments
	var files []fileEntry
	for _, arg := range args {
		entries, collectErr := collectFiles(arg, addRecursive, addDest)
		if collectErr != nil {
			return fmt.Errorf("collect files from %s: %w", arg, collectErr)
		}
		files = append(files, entries...)
	}

	if len(files) == 0 {
		slog.Info("no files to add")
		return nil
	}

	added := 0
	skipped := 0

	for _, entry := range files {
		obj, addErr := addFile(ctx, service, addOwner, addBucket, entry)
		if errors.Is(addErr, stashbox.ErrConflict) && addNoClobber {
			skipped++
			if !addQuiet {
				slog.Info("skipped (exists)", "bucket", addBucket, "key", entry.key)
			}
			continue
		}
		if addErr != nil {
			return fmt.Errorf("add %s: %w", entry.key, addErr)
		}

		added++
		if !addQuiet {
			slog.Info("added", "bucket", obj.Bucket, "key", obj.Key, "mime_type", obj.MimeType, "size", *obj.Size)
		}
	}

	slog.Info("add complete", "added", added, "skipped", skipped)
	return nil
}

// addFile reserves entry.key and redeems the upload token right away.
func addFile(ctx context.Context, service *stashbox.StorageService, ownerID, bucket string, entry fileEntry) (stashbox.Object, error) {
	f, err := os.Open(entry.sourcePath)
	if err != nil {
		return stashbox.Object{}, err
	}
	defer func() { _ = f.Close() }()

	ticket, err := service.InitUpload(ctx, ownerID, stashbox.InitUploadRequest{
		Bucket:   bucket,
		Key:      entry.key,
		MimeType: detectContentType(entry.sourcePath),
	})
	if err != nil {
		return stashbox.Object{}, err
	}

	token := strings.TrimPrefix(ticket.PresignedURL, stashbox.DefaultUploadPath)
	return service.Upload(ctx, token, f)
}

// collectFiles gathers files from a path, optionally recursively.
// Returns a list of file entries with source paths and keys.
func collectFiles(path string, recursive bool, destPrefix string) ([]fileEntry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	// Normalize dest prefix - ensure it ends with / if non-empty
	destPrefix = strings.TrimPrefix(destPrefix, "/")
	if destPrefix != "" && !strings.HasSuffix(destPrefix, "/") {
		destPrefix += "/"
	}

	if !info.IsDir() {
		return []fileEntry{{sourcePath: path, key: destPrefix + filepath.Base(path)}}, nil
	}

	if !recursive {
		return nil, fmt.Errorf("%s is a directory (use -r to add recursively)", path)
	}

	var entries []fileEntry
	walkErr := filepath.WalkDir(path, func(walkPath string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if d.IsDir() {
			return nil
		}

		relPath, relErr := filepath.Rel(path, walkPath)
		if relErr != nil {
			return relErr
		}

		entries = append(entries, fileEntry{
			sourcePath: walkPath,
			key:        destPrefix + filepath.ToSlash(relPath),
		})
		return nil
	})

	if walkErr != nil {
		return nil, walkErr
	}

	return entries, nil
}

// detectContentType determines the MIME type from a file's extension.
func detectContentType(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return "application/octet-stream"
	}

	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		return "application/octet-stream"
	}

	return contentType
}

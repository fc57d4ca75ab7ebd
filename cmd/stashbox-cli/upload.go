package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sagarc03/stashbox/clientcli"
)

var (
	uploadRecursive   bool
	uploadContentType string
	uploadMetadata    string
)

var uploadCmd = &cobra.Command{
	Use:   "upload <local-path> <bucket>[/<key>]",
	Short: "Upload files to a bucket",
	Long: `Upload files to a bucket.

Each file is reserved with init-upload and then written once to the
presigned URL the server returns. Without a key the local path is used.
With -r the key is a prefix for the relative paths of the directory.

Examples:
  stashbox-cli upload ./u1.png avatars/u1.png
  stashbox-cli upload ./notes.txt docs
  stashbox-cli upload -r ./images/ media/images/
  stashbox-cli upload --metadata '{"width":64}' ./u1.png avatars/u1.png`,
	Args: cobra.ExactArgs(2),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().BoolVarP(&uploadRecursive, "recursive", "r", false, "upload directory recursively")
	uploadCmd.Flags().StringVar(&uploadContentType, "content-type", "", "override the detected mime type")
	uploadCmd.Flags().StringVar(&uploadMetadata, "metadata", "", "JSON object stored with the object")
}

func runUpload(cmd *cobra.Command, args []string) error {
	bucket, key, err := splitRemote(args[1])
	if err != nil {
		return err
	}

	var metadata map[string]any
	if uploadMetadata != "" {
		if err := json.Unmarshal([]byte(uploadMetadata), &metadata); err != nil {
			return fmt.Errorf("parse --metadata: %w", err)
		}
	}

	client, err := getClient()
	if err != nil {
		return err
	}

	results, err := client.Upload(cmd.Context(), clientcli.UploadOptions{
		LocalPath:   args[0],
		Bucket:      bucket,
		Key:         key,
		ContentType: uploadContentType,
		Metadata:    metadata,
		Recursive:   uploadRecursive,
	})
	if err != nil {
		return handleError(os.Stderr, err)
	}

	if err := getFormatter().FormatUpload(os.Stdout, results); err != nil {
		return err
	}

	for i := range results {
		if results[i].Err != nil {
			return &exitError{code: 1}
		}
	}

	return nil
}

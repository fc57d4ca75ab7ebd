package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sagarc03/stashbox/clientcli"
)

var (
	downloadOutput string
	downloadStdout bool
)

var downloadCmd = &cobra.Command{
	Use:   "download <bucket>/<key> [local-path]",
	Short: "Download an object",
	Long: `Download an object.

The CLI asks the server for a short-lived download URL and fetches it.

Examples:
  stashbox-cli download avatars/u1.png
  stashbox-cli download avatars/u1.png ./u1-copy.png
  stashbox-cli download --stdout configs/app.json | jq .
  stashbox-cli download -o ./output.txt docs/notes.txt`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runDownload,
}

func init() {
	downloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "output file path")
	downloadCmd.Flags().BoolVar(&downloadStdout, "stdout", false, "write to stdout")
}

func runDownload(cmd *cobra.Command, args []string) error {
	bucket, key, err := splitRemote(args[0])
	if err != nil {
		return err
	}

	localPath := ""
	if len(args) > 1 {
		localPath = args[1]
	}
	if downloadOutput != "" {
		localPath = downloadOutput
	}
	if downloadStdout {
		localPath = "-"
	}

	client, err := getClient()
	if err != nil {
		return err
	}

	result, reader, err := client.Download(cmd.Context(), clientcli.DownloadOptions{
		Bucket:    bucket,
		Key:       key,
		LocalPath: localPath,
	})
	if err != nil {
		return handleError(os.Stderr, err)
	}

	if reader != nil {
		defer func() { _ = reader.Close() }()
		if _, err := io.Copy(os.Stdout, reader); err != nil {
			return err
		}
		// Metadata goes to stderr so stdout stays the raw content
		if jsonOutput {
			return getFormatter().FormatDownload(os.Stderr, result)
		}
		return nil
	}

	return getFormatter().FormatDownload(os.Stdout, result)
}

package main

import (
	"os"

	"github.com/spf13/cobra"
)

var urlCmd = &cobra.Command{
	Use:   "url <bucket>/<key>",
	Short: "Print a signed download URL",
	Long: `Print a short-lived download URL for an object.

Anyone holding the URL can fetch the object until it expires.

Examples:
  stashbox-cli url avatars/u1.png
  curl -o u1.png "$(stashbox-cli url -q avatars/u1.png)"`,
	Args: cobra.ExactArgs(1),
	RunE: runURL,
}

func runURL(cmd *cobra.Command, args []string) error {
	bucket, key, err := splitRemote(args[0])
	if err != nil {
		return err
	}

	client, err := getClient()
	if err != nil {
		return err
	}

	ticket, err := client.GetObject(cmd.Context(), bucket, key)
	if err != nil {
		return handleError(os.Stderr, err)
	}

	return getFormatter().FormatURL(os.Stdout, client.ResolveURL(ticket.DownloadURL), ticket.ExpiresAt)
}

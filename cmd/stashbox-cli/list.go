package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sagarc03/stashbox/clientcli"
)

var (
	listLimit  int
	listAll    bool
	listCursor string
)

var listCmd = &cobra.Command{
	Use:   "list [<bucket>[/<prefix>]]",
	Short: "List your objects",
	Long: `List the objects you own, oldest first.

Without an argument every bucket is listed.

Examples:
  stashbox-cli list
  stashbox-cli list avatars
  stashbox-cli list photos/2024/ --limit 10
  stashbox-cli list docs --all
  stashbox-cli list docs --cursor "eyJjcmVhdGVkX2F0Ijoi..."`,
	Args: cobra.MaximumNArgs(1),
	RunE: runList,
}

func init() {
	listCmd.Flags().IntVarP(&listLimit, "limit", "l", clientcli.DefaultListLimit, "max results per page (max: 1000)")
	listCmd.Flags().BoolVar(&listAll, "all", false, "fetch all pages")
	listCmd.Flags().StringVar(&listCursor, "cursor", "", "pagination cursor")
}

func runList(cmd *cobra.Command, args []string) error {
	var bucket, prefix string
	if len(args) > 0 {
		var err error
		if bucket, prefix, err = splitRemote(args[0]); err != nil {
			return err
		}
	}

	client, err := getClient()
	if err != nil {
		return err
	}

	result, err := client.List(cmd.Context(), clientcli.ListOptions{
		Bucket: bucket,
		Prefix: prefix,
		Limit:  listLimit,
		Cursor: listCursor,
		All:    listAll,
	})
	if err != nil {
		return handleError(os.Stderr, err)
	}

	return getFormatter().FormatList(os.Stdout, result)
}

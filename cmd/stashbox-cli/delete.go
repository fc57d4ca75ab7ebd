package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sagarc03/stashbox/clientcli"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <bucket> <key> [key...]",
	Short: "Delete objects from a bucket",
	Long: `Delete one or more objects from a bucket.

The server keeps the blob until an operator runs 'stashbox cleanup'.

Examples:
  stashbox-cli delete avatars u1.png
  stashbox-cli delete docs old/a.txt old/b.txt old/c.txt
  stashbox-cli delete -q tmp scratch.bin`,
	Args: cobra.MinimumNArgs(2),
	RunE: runDelete,
}

func runDelete(cmd *cobra.Command, args []string) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	results, err := client.Delete(cmd.Context(), clientcli.DeleteOptions{
		Bucket: args[0],
		Keys:   args[1:],
	})
	if err != nil {
		return handleError(os.Stderr, err)
	}

	if err := getFormatter().FormatDelete(os.Stdout, results); err != nil {
		return err
	}

	if clientcli.HasDeleteErrors(results) {
		return &exitError{code: 1}
	}

	return nil
}

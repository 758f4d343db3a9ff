package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cinesync/backend/internal/search"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex-users",
	Short: "Rebuild the user search index from the document store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := openContainer(ctx)
		if err != nil {
			return err
		}
		defer c.Cleanup(ctx)

		client := c.Search()
		if client == nil {
			return errors.New("ELASTICSEARCH_URL is not set or the cluster is unreachable")
		}
		n, err := search.Reindex(ctx, c.Store(), client)
		if err != nil {
			return err
		}
		if output == "json" {
			fmt.Fprintf(cmd.OutOrStdout(), "{\"indexed\":%d}\n", n)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Indexed %d users\n", n)
		return nil
	},
}

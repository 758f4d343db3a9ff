package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile-comments",
	Short: "Rewrite every review's commentCount from its comments",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := openContainer(ctx)
		if err != nil {
			return err
		}
		defer c.Cleanup(ctx)

		fixed, err := c.Reviews().ReconcileAll(ctx)
		if err != nil {
			return err
		}
		if output == "json" {
			fmt.Fprintf(cmd.OutOrStdout(), "{\"fixed\":%d}\n", fixed)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Reconciled comment counts, %d reviews fixed\n", fixed)
		return nil
	},
}

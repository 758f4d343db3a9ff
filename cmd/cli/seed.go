package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cinesync/backend/internal/seed"
)

var seedOpts = seed.DevOptions()

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Fill the store with fake users, follows, reviews, lists and clubs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := openContainer(ctx)
		if err != nil {
			return err
		}
		defer c.Cleanup(ctx)

		summary, err := seed.NewSeeder(c.Store()).Run(ctx, seedOpts)
		if err != nil {
			return err
		}
		if err := c.Triggers().WaitIdle(time.Minute); err != nil {
			return fmt.Errorf("awards still pending: %w", err)
		}

		if output == "json" {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(summary)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Seeded %d users, %d follows, %d reviews, %d comments, %d lists, %d clubs, %d posts\n",
			summary.Users, summary.Follows, summary.Reviews, summary.Comments, summary.Lists, summary.Clubs, summary.Posts)
		return nil
	},
}

func init() {
	f := seedCmd.Flags()
	f.IntVar(&seedOpts.Users, "users", seedOpts.Users, "Number of users")
	f.IntVar(&seedOpts.FollowsPerUser, "follows", seedOpts.FollowsPerUser, "Follows per user")
	f.IntVar(&seedOpts.ReviewsPerUser, "reviews", seedOpts.ReviewsPerUser, "Reviews per user")
	f.IntVar(&seedOpts.CommentsPerUser, "comments", seedOpts.CommentsPerUser, "Comments per user")
	f.IntVar(&seedOpts.ListsPerUser, "lists", seedOpts.ListsPerUser, "Lists per user")
	f.IntVar(&seedOpts.Clubs, "clubs", seedOpts.Clubs, "Number of clubs")
}

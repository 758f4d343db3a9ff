package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cinesync/backend/internal/docstore"
	"github.com/cinesync/backend/internal/models"
	"github.com/cinesync/backend/internal/progression"
)

var badgesCmd = &cobra.Command{
	Use:   "badges <uid>",
	Short: "Print a user's badge shelf",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := openContainer(ctx)
		if err != nil {
			return err
		}
		defer c.Cleanup(ctx)

		snap, err := c.Store().Get(ctx, docstore.Doc(models.CollUsers, args[0]))
		if err != nil {
			return fmt.Errorf("user %s: %w", args[0], err)
		}
		var u models.User
		if err := snap.DataTo(&u); err != nil {
			return err
		}
		return printShelf(cmd.OutOrStdout(), &u)
	},
}

var levelCmd = &cobra.Command{
	Use:   "level <xp>",
	Short: "Print the level and progress for an XP total",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		xp, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || xp < 0 {
			return fmt.Errorf("xp must be a non-negative integer")
		}
		return printLevel(cmd.OutOrStdout(), xp)
	},
}

func printLevel(w io.Writer, xp int64) error {
	p := progression.Progress(xp)
	if output == "json" {
		return json.NewEncoder(w).Encode(p)
	}
	_, err := fmt.Fprintf(w, "Level %d (%d XP), %.0f%% of the way from %d to %d\n", p.Level, p.XP, p.Percent, p.Current, p.Next)
	return err
}

func printShelf(w io.Writer, u *models.User) error {
	shelf := progression.EvolutionaryBadgeView(models.BadgeCatalog, u.Badges, u.Stats)
	if output == "json" {
		return json.NewEncoder(w).Encode(map[string]any{
			"uid":        u.UID,
			"level":      progression.Progress(u.XP),
			"categories": shelf,
		})
	}

	fmt.Fprintf(w, "@%s  level %d  %d XP\n\n", u.Username, progression.Level(u.XP), u.XP)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tBADGE\tSTATUS\tPROGRESS")
	for _, v := range shelf {
		status := "locked"
		switch {
		case v.IsMax:
			status = "max"
		case v.Earned:
			status = "earned"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\n", v.Type, v.Badge.Name, status, v.Progress.Current, v.Progress.Target)
	}
	return tw.Flush()
}

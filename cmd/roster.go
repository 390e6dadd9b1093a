package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newRosterCommand() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "roster",
		Short: "Validate a roster file and print the starting grid",
		RunE: func(cmd *cobra.Command, args []string) error {
			roster, err := loadRoster(path)
			if err != nil {
				return fmt.Errorf("load roster: %s", err)
			}
			if err := roster.Validate(); err != nil {
				return fmt.Errorf("invalid roster: %s", err)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s, %d laps, pit loss %.1fs\n\n", roster.Track.Name, roster.Track.TotalLaps, roster.Track.PitLoss)
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "GRID\tCAR\tTEAM\tTYRE")
			for _, c := range roster.Grid() {
				name := c.Code
				if c.Hero {
					name += " *"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", humanize.Ordinal(c.Grid), name, c.Team, c.Compound)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&path, "roster", "", "Roster YAML file, defaults to the embedded grid")
	return cmd
}

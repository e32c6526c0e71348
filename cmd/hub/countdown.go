package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/jobhub-dev/jobhub/internal/rewards"
)

func newCountdownCmd(c *cli) *cobra.Command {
	var (
		watch  bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "countdown",
		Short: "Time left until the next reward snapshot",
		Long: `Print the countdown to the next monthly reward snapshot (05:00 UTC on
the 1st). With --watch the countdown is reprinted every second until
interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			show := func(s rewards.Status) {
				if asJSON {
					data, _ := json.Marshal(s)
					fmt.Fprintln(c.out, string(data))
					return
				}
				fmt.Fprint(c.out, formatStatus(s))
			}
			if !watch {
				show(rewards.StatusAt(time.Now()))
				return nil
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			rewards.Tick(ctx, nil, time.Second, show)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "update every second")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func formatStatus(s rewards.Status) string {
	line := fmt.Sprintf("  next snapshot  %s  (%s)\n", s.Countdown, s.NextSnapshot.Format(time.RFC3339))
	switch {
	case s.First:
		line += "  first snapshot window is open\n"
	case s.Live:
		line += "  rewards are live\n"
	}
	return line
}

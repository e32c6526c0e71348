package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

func newStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Health and state of a running hub",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ac := c.admin()
			ok, msg := ac.Health(cmd.Context())
			if !ok {
				fmt.Fprintf(c.out, "  %-14s unreachable (%s)\n", c.hubURL, msg)
				return nil
			}
			state, err := ac.State(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintln(c.out)
			fmt.Fprintf(c.out, "  %-14s %s\n", "HUB", c.hubURL)
			fmt.Fprintf(c.out, "  %-14s %s\n", "HEALTH", "healthy")
			fmt.Fprintf(c.out, "  %-14s %d\n", "SESSIONS", gjson.GetBytes(state, "sessions.#").Int())
			fmt.Fprintf(c.out, "  %-14s %d\n", "CACHE KEYS", gjson.GetBytes(state, "cache.#").Int())
			fmt.Fprintf(c.out, "  %-14s %t\n", "MAINTENANCE", gjson.GetBytes(state, "maintenance").Bool())
			fmt.Fprintf(c.out, "  %-14s %s\n", "NEXT SNAPSHOT", gjson.GetBytes(state, "rewards.countdown").String())
			fmt.Fprintln(c.out)
			return nil
		},
	}
}

func newInvalidateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <prefix>...",
		Short: "Mark cached keys stale on a running hub",
		Long: `Mark every cache key starting with one of the prefixes stale, so the
next read refetches it.

Examples:
  hub invalidate /jobs
  hub invalidate /rewards /wallet`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := c.admin().Invalidate(cmd.Context(), args...)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Invalidated %d key(s)\n", n)
			return nil
		},
	}
}

func newSessionsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions on a running hub",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := c.admin().Sessions(cmd.Context())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(c.out, "No sessions")
				return nil
			}
			fmt.Fprintf(c.out, "  %-42s %-20s %-6s %s\n", "ID", "LAST SEEN", "DRAFT", "OPEN")
			fmt.Fprintf(c.out, "  %-42s %-20s %-6s %s\n", "--", "---------", "-----", "----")
			for _, s := range list {
				fmt.Fprintf(c.out, "  %-42s %-20s %-6t %s\n",
					s.ID, s.LastSeen.Format("2006-01-02 15:04:05"), s.HasDraft, strings.Join(s.OpenModals, ","))
			}
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "end <id>",
		Short: "End one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.admin().EndSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Ended %s\n", args[0])
			return nil
		},
	})
	return cmd
}

func newMaintenanceCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:       "maintenance on|off",
		Short:     "Toggle maintenance mode on a running hub",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			on := args[0] == "on"
			if err := c.admin().SetMaintenance(cmd.Context(), on); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Maintenance mode %s\n", args[0])
			return nil
		},
	}
}

func newConfigCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *c.cfg
			if cfg.AdminToken != "" {
				cfg.AdminToken = "<redacted>"
			}
			if cfg.Maintenance.Code != "" {
				cfg.Maintenance.Code = "<redacted>"
			}
			data, err := yaml.Marshal(&cfg)
			if err != nil {
				return err
			}
			_, err = c.out.Write(data)
			return err
		},
	}
}

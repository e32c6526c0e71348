package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jobhub-dev/jobhub/internal/api"
	"github.com/jobhub-dev/jobhub/internal/cache"
)

// hooks builds API hooks for one command run, authenticated when --token
// is set.
func (c *cli) hooks() (*api.Hooks, func(), error) {
	ch := cache.New()
	client := api.NewClient(api.Config{BaseURL: c.cfg.API.BaseURL, Timeout: c.cfg.API.Timeout})
	h := api.NewHooks(client, ch, nil, api.WithoutRetry())
	if c.token != "" {
		var err error
		if h, err = h.WithToken(c.token); err != nil {
			ch.Close()
			return nil, nil, fmt.Errorf("reading --token: %w", err)
		}
	}
	return h, ch.Close, nil
}

func newJobsCmd(c *cli) *cobra.Command {
	var mine bool
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, done, err := c.hooks()
			if err != nil {
				return err
			}
			defer done()

			var jobs []api.Job
			if mine {
				jobs, err = h.MyJobs(cmd.Context())
			} else {
				jobs, err = h.Jobs(cmd.Context())
			}
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Fprintln(c.out, "No jobs found")
				return nil
			}
			fmt.Fprintf(c.out, "  %-24s %-30s %-6s %s\n", "ID", "NAME", "STEPS", "PRICE")
			fmt.Fprintf(c.out, "  %-24s %-30s %-6s %s\n", "--", "----", "-----", "-----")
			for _, j := range jobs {
				fmt.Fprintf(c.out, "  %-24s %-30s %-6d %s\n", j.ID, j.Name, len(j.Resources), j.Price)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&mine, "mine", false, "only jobs owned by the --token user")
	return cmd
}

func newJobCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "job <id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, done, err := c.hooks()
			if err != nil {
				return err
			}
			defer done()

			j, err := h.Job(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "  %s  %s\n", j.ID, j.Name)
			if j.Description != "" {
				fmt.Fprintf(c.out, "  %s\n", j.Description)
			}
			for _, r := range j.Resources {
				fmt.Fprintf(c.out, "  %2d. %s\n", r.Position, firstNonEmpty(r.Slug, r.ResourceID))
			}
			return nil
		},
	}
}

func newResourcesCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "resources",
		Short: "List resources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, done, err := c.hooks()
			if err != nil {
				return err
			}
			defer done()

			list, err := h.Resources(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "  %-28s %-11s %-10s %s\n", "SLUG", "TYPE", "PRICE", "NAME")
			fmt.Fprintf(c.out, "  %-28s %-11s %-10s %s\n", "----", "----", "-----", "----")
			for _, r := range list {
				fmt.Fprintf(c.out, "  %-28s %-11s %-10s %s\n", r.Slug, r.Type, r.Price, r.Name)
			}
			return nil
		},
	}
}

func newWalletCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "wallet",
		Short: "Show the --token user's wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, done, err := c.hooks()
			if err != nil {
				return err
			}
			defer done()

			w, err := h.Wallet(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "  address  %s\n  balance  %s %s\n  network  %s\n", w.Address, w.Balance, w.Currency, w.Network)
			return nil
		},
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/jobhub-dev/jobhub/internal/client"
	"github.com/jobhub-dev/jobhub/internal/config"
)

// cli carries the loaded configuration and global flags to every command.
type cli struct {
	out io.Writer
	cfg *config.Config

	configPath string
	envFile    string
	apiURL     string
	hubURL     string
	adminToken string
	token      string
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}

	root := &cobra.Command{
		Use:           "hub",
		Short:         "jobhub service and operator CLI",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load()
		},
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "config file (default is $HOME/.jobhub/config.yaml)")
	flags.StringVar(&c.envFile, "env-file", ".env", "dotenv file read before HUB_* variables")
	flags.StringVar(&c.apiURL, "api", "", "marketplace API base URL (overrides config)")
	flags.StringVar(&c.hubURL, "hub", "http://localhost:8080", "base URL of a running hub for admin commands")
	flags.StringVar(&c.adminToken, "admin-token", "", "admin token (overrides config)")
	flags.StringVar(&c.token, "token", "", "identity token for user-scoped reads")

	root.AddCommand(
		newServeCmd(c),
		newCountdownCmd(c),
		newTestEndpointCmd(c),
		newJobsCmd(c),
		newJobCmd(c),
		newResourcesCmd(c),
		newWalletCmd(c),
		newStatusCmd(c),
		newInvalidateCmd(c),
		newSessionsCmd(c),
		newMaintenanceCmd(c),
		newConfigCmd(c),
	)
	return root
}

func (c *cli) load() error {
	path := c.configPath
	if path == "" {
		p, err := config.Path()
		if err != nil {
			return err
		}
		path = p
	}
	cfg, err := config.LoadFrom(path, c.envFile)
	if err != nil {
		return err
	}
	if c.apiURL != "" {
		cfg.API.BaseURL = c.apiURL
	}
	if c.adminToken != "" {
		cfg.AdminToken = c.adminToken
	}
	c.cfg = cfg
	return nil
}

func (c *cli) admin() *client.AdminClient {
	return client.New(c.hubURL, c.cfg.AdminToken)
}

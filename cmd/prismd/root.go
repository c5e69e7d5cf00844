package main

import (
	"github.com/spf13/cobra"

	"github.com/prismwall/prismd/internal/config"
	"github.com/prismwall/prismd/internal/httpapi"
)

type app struct {
	configPath string
	cfg        config.Config
}

func (a *app) client() *httpapi.Client {
	return httpapi.NewClient(a.cfg.SocketPath)
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "prismd",
		Short:         "Wallpaper access broker",
		Long:          "prismd serves the current lock and home wallpapers to local apps the user has approved.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to prismd.toml")

	root.AddCommand(newServeCmd(a))
	root.AddCommand(newGrantsCmd(a))
	root.AddCommand(newApproveCmd(a))
	root.AddCommand(newWallpapersCmd(a))
	root.AddCommand(newStateCmd(a))
	root.AddCommand(newNotificationsCmd(a))

	return root
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/prismwall/prismd/internal/prism/types"
)

func newGrantsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grants",
		Short: "List and change caller access",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := a.client().Grants(cmd.Context())
			if err != nil {
				return err
			}
			return printGrants(cmd.OutOrStdout(), list)
		},
	}

	set := func(use, short string, allowed bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <identity>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				g, err := a.client().SetAccess(cmd.Context(), args[0], allowed)
				if err != nil {
					return err
				}
				return printGrants(cmd.OutOrStdout(), []types.CallerGrant{g})
			},
		}
	}
	cmd.AddCommand(set("allow", "Allow a caller that has requested access", true))
	cmd.AddCommand(set("deny", "Revoke a caller's access", false))

	return cmd
}

func printGrants(w io.Writer, list []types.CallerGrant) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "IDENTITY\tALLOWED\tREQUESTS\tLAST ACCESS")
	for _, g := range list {
		fmt.Fprintf(tw, "%s\t%t\t%d\t%s\n", g.Identity, g.Allowed, g.RequestCount, g.LastAccessed.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func newApproveCmd(a *app) *cobra.Command {
	var id int
	var caller string

	cmd := &cobra.Command{
		Use:   "approve",
		Short: "Approve a pending access prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.client().Approve(cmd.Context(), types.ApprovalMessage{
				Action:         types.ApprovalAction,
				NotificationID: id,
				Caller:         caller,
			})
		},
	}
	cmd.Flags().IntVar(&id, "id", 0, "notification id from the prompt")
	cmd.Flags().StringVar(&caller, "caller", "", "caller identity from the prompt")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("caller")
	return cmd
}

func newWallpapersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "wallpapers",
		Short: "Show the wallpaper collection as the daemon sees it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows, err := a.client().Wallpapers(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tKEY\tURI")
			for _, r := range rows {
				uri := "-"
				if r.URI != nil {
					uri = *r.URI
				}
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", r.RowID, r.Type, r.Key, uri)
			}
			return tw.Flush()
		},
	}
}

func newStateCmd(a *app) *cobra.Command {
	var sync bool

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Print the daemon's current state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := a.client()
			if sync {
				if err := c.Sync(cmd.Context()); err != nil {
					return err
				}
			}
			st, err := c.State(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		},
	}
	cmd.Flags().BoolVar(&sync, "sync", false, "request a refresh first")
	return cmd
}

func newNotificationsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "notifications on|off",
		Short:     "Turn approval prompts on or off",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			on, err := parseSwitch(args[0])
			if err != nil {
				return err
			}
			return a.client().SetNotifications(cmd.Context(), on)
		},
	}
}

func parseSwitch(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("expected on or off, got %q", v)
	}
	return b, nil
}

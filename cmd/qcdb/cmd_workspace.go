package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"qcdb/internal/workspace"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init [name]",
		Short: "Create a workspace",
		Long: `Create a workspace at ~/.qcdb/<name>/ with default settings.yaml, an
empty database and a reports directory. Without a name, the --workspace
value is used.

Errors if the workspace already exists.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := a.workspaceName
			if len(args) == 1 {
				name = args[0]
			}
			ws, err := workspace.Init(name)
			if err != nil {
				return err
			}
			st, err := ws.OpenStore(a.logger)
			if err != nil {
				return err
			}
			if err := st.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created workspace %q at %s\n", name, ws.Dir)
			return nil
		},
	}
}

func newWorkspacesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workspaces",
		Short: "List workspaces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := workspace.List()
			if err != nil {
				return err
			}
			for _, n := range names {
				marker := " "
				if n == a.workspaceName {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, n)
			}
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "remove <name>",
		Short: "Delete a workspace and everything in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := workspace.Remove(args[0]); err != nil {
				return err
			}
			a.logger.Info("removed workspace", zap.String("name", args[0]))
			fmt.Fprintf(cmd.OutOrStdout(), "removed workspace %q\n", args[0])
			return nil
		},
	})
	return cmd
}

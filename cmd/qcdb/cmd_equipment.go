package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTypeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "type",
		Short: "Manage equipment types",
	}

	var description string
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Add an equipment type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.openEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			typ, err := e.store.CreateEquipmentType(cmd.Context(), args[0], description)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added equipment type %q (id %d)\n", typ.Name, typ.ID)
			return nil
		},
	}
	add.Flags().StringVar(&description, "description", "", "Free-text description")

	list := &cobra.Command{
		Use:   "list",
		Short: "List equipment types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.openEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			types, err := e.store.ListEquipmentTypes(cmd.Context())
			if err != nil {
				return err
			}
			var rows [][]string
			for _, t := range types {
				rows = append(rows, []string{fmt.Sprint(t.ID), t.Name, t.Description})
			}
			return writeTable(cmd.OutOrStdout(), []string{"ID", "NAME", "DESCRIPTION"}, rows)
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage equipment configurations",
		Long: `A configuration is a variant of an equipment type (for example a tool with
two chambers instead of four). Exceptions and overrides attach to a
configuration and are selected with --config TYPE/NAME.`,
	}

	var description string
	add := &cobra.Command{
		Use:   "add <type> <name>",
		Short: "Add a configuration to an equipment type",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.openEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			ctx := cmd.Context()
			typ, err := e.store.GetEquipmentTypeByName(ctx, args[0])
			if err != nil {
				return err
			}
			cfg, err := e.store.CreateConfiguration(ctx, typ.ID, args[1], description)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added configuration %s/%s (id %d)\n", cfg.TypeName, cfg.Name, cfg.ID)
			return nil
		},
	}
	add.Flags().StringVar(&description, "description", "", "Free-text description")

	var typeName string
	list := &cobra.Command{
		Use:   "list",
		Short: "List configurations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.openEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			ctx := cmd.Context()
			var typeID int64
			if typeName != "" {
				typ, err := e.store.GetEquipmentTypeByName(ctx, typeName)
				if err != nil {
					return err
				}
				typeID = typ.ID
			}
			cfgs, err := e.store.ListConfigurations(ctx, typeID)
			if err != nil {
				return err
			}
			var rows [][]string
			for _, c := range cfgs {
				rows = append(rows, []string{fmt.Sprint(c.ID), c.TypeName + "/" + c.Name, c.Description})
			}
			return writeTable(cmd.OutOrStdout(), []string{"ID", "CONFIGURATION", "DESCRIPTION"}, rows)
		},
	}
	list.Flags().StringVar(&typeName, "type", "", "Only configurations of this equipment type")

	cmd.AddCommand(add, list)
	return cmd
}

package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"qcdb/internal/checklist"
)

func newItemCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "item",
		Short: "Manage QC checklist items",
	}
	cmd.AddCommand(
		newItemAddCmd(a),
		newItemListCmd(a),
		newItemImportCmd(a),
		newItemExportCmd(a),
		newItemActiveCmd(a, "disable", "Exclude an item from inspections without deleting it", false),
		newItemActiveCmd(a, "enable", "Include a disabled item in inspections again", true),
		newItemRemoveCmd(a),
	)
	return cmd
}

func newItemAddCmd(a *app) *cobra.Command {
	var (
		it       checklist.Item
		lo, hi   float64
		check    string
		severity string
		inactive bool
	)
	cmd := &cobra.Command{
		Use:   "add <item-name>",
		Short: "Add or update a checklist item",
		Long: `Add a checklist item, or update it when an item with the same name exists.

The check type defaults to auto: --min/--max make a range check, an
--expected boolean word (ON, true, 1...) a boolean check, any other
--expected value an exact check, and no spec an existence check.
--expected may be a JSON array such as '["A","B"]' to accept several values.`,
		Example: `  qcdb item add Temp_Setpoint --min 340 --max 360 --severity critical --category Heater
  qcdb item add Pump_Enable --expected ON
  qcdb item add Recipe_Mode --expected '["Auto","Semi"]' --pattern 'PM?_Recipe_Mode'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			it.ItemName = args[0]
			if cmd.Flags().Changed("min") {
				it.SpecMin = &lo
			}
			if cmd.Flags().Changed("max") {
				it.SpecMax = &hi
			}
			it.CheckType = checklist.CheckType(check)
			it.Severity = checklist.Severity(severity)
			it.IsActive = !inactive

			e, err := a.openEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			saved, err := e.store.UpsertItem(cmd.Context(), it)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved item %q (id %d): %s [%s, %s]\n",
				saved.ItemName, saved.ID, saved.SpecDisplay(), saved.EffectiveCheck(), saved.Severity)
			return nil
		},
	}
	f := cmd.Flags()
	f.Float64Var(&lo, "min", 0, "Lower spec limit (inclusive)")
	f.Float64Var(&hi, "max", 0, "Upper spec limit (inclusive)")
	f.StringVar(&it.ExpectedValue, "expected", "", "Expected value, or a JSON array of accepted values")
	f.StringVar(&check, "check", "auto", "Check type: auto, range, exact, boolean, existence")
	f.StringVar(&severity, "severity", "MEDIUM", "Severity: CRITICAL, HIGH, MEDIUM, LOW")
	f.StringVar(&it.Category, "category", "", "Category used for grouping results")
	f.StringVar(&it.Pattern, "pattern", "", "Glob matching alternative dump item names")
	f.BoolVar(&it.Required, "required", false, "Fail inspections of dumps that lack this item")
	f.StringVar(&it.Description, "description", "", "Free-text description")
	f.BoolVar(&inactive, "inactive", false, "Store the item disabled")
	return cmd
}

func newItemListCmd(a *app) *cobra.Command {
	var (
		all      bool
		category string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List checklist items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.openEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			items, err := e.store.ListItems(cmd.Context(), !all)
			if err != nil {
				return err
			}
			var rows [][]string
			for _, it := range items {
				if category != "" && it.Category != category {
					continue
				}
				flags := ""
				if it.Required {
					flags += "R"
				}
				if !it.IsActive {
					flags += "-"
				}
				rows = append(rows, []string{
					strconv.FormatInt(it.ID, 10), it.ItemName, it.SpecDisplay(),
					string(it.EffectiveCheck()), string(it.Severity), it.Category, flags,
				})
			}
			return writeTable(cmd.OutOrStdout(),
				[]string{"ID", "ITEM", "SPEC", "CHECK", "SEVERITY", "CATEGORY", "FLAGS"}, rows)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include disabled items")
	cmd.Flags().StringVar(&category, "category", "", "Only items in this category")
	return cmd
}

func newItemImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml|->",
		Short: "Import checklist items from YAML",
		Long: `Import checklist items from a YAML document:

  version: 1
  items:
    - item_name: Temp_Setpoint
      spec_min: 340
      spec_max: 360
      severity: CRITICAL

Existing items with the same name are updated. The import is atomic: one
invalid item rejects the whole file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			items, err := checklist.ReadYAML(r)
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			e, err := a.openEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			n, err := e.store.ImportItems(cmd.Context(), items)
			if err != nil {
				return err
			}
			a.logger.Info("imported checklist", zap.String("file", args[0]), zap.Int("items", n))
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d item(s)\n", n)
			return nil
		},
	}
}

func newItemExportCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "export [file.yaml]",
		Short: "Export checklist items as YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.openEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			items, err := e.store.ListItems(cmd.Context(), !all)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				return checklist.WriteYAML(cmd.OutOrStdout(), items)
			}
			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			if err := checklist.WriteYAML(f, items); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d item(s) to %s\n", len(items), args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", true, "Include disabled items")
	return cmd
}

func newItemActiveCmd(a *app, verb, short string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <item-name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.openEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			if err := e.store.SetItemActive(cmd.Context(), args[0], active); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%sd item %q\n", verb, args[0])
			return nil
		},
	}
}

func newItemRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <item-name>",
		Short: "Delete a checklist item with its exceptions and overrides",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.openEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			if err := e.store.DeleteItem(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed item %q\n", args[0])
			return nil
		},
	}
}

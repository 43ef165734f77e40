package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"qcdb/internal/checklist"
	"qcdb/internal/prompt"
)

// interactive reports whether stdin is a terminal we can prompt on.
func (a *app) interactive() bool {
	f, ok := a.in.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

func currentUser() string {
	for _, k := range []string{"USER", "USERNAME", "LOGNAME"} {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func newExceptionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exception",
		Short: "Manage per-configuration exceptions",
		Long: `An exception excludes one checklist item from inspections of one equipment
configuration. Every exception needs a reason.`,
	}

	var (
		configRef string
		reason    string
		createdBy string
	)
	add := &cobra.Command{
		Use:   "add <item-name>",
		Short: "Exclude an item for a configuration",
		Long: `Exclude an item from inspections run with --config TYPE/NAME.

Without --reason the reason is asked for interactively.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(reason) == "" {
				if !a.interactive() {
					return fmt.Errorf("%w (pass --reason)", checklist.ErrNoReason)
				}
				answers, err := prompt.Ask([]prompt.Question{
					{Key: "reason", Prompt: "Reason for excluding " + args[0], Required: true},
					{Key: "by", Prompt: "Created by", Default: createdBy},
				})
				if err != nil {
					return err
				}
				reason, createdBy = answers["reason"], answers["by"]
			}

			e, err := a.openEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			ctx := cmd.Context()
			cfg, err := resolveConfiguration(ctx, e.store, configRef)
			if err != nil {
				return err
			}
			it, err := e.store.GetItemByName(ctx, args[0])
			if err != nil {
				return err
			}
			exc, err := e.store.AddException(ctx, checklist.Exception{
				ConfigurationID: cfg.ID,
				ItemID:          it.ID,
				Reason:          reason,
				CreatedBy:       createdBy,
				CreatedAt:       time.Now(),
			})
			if err != nil {
				return err
			}
			a.logger.Info("added exception",
				zap.String("configuration", configRef), zap.String("item", it.ItemName), zap.String("by", createdBy))
			fmt.Fprintf(cmd.OutOrStdout(), "excluded %q for %s: %s\n", exc.ItemName, configRef, exc.Reason)
			return nil
		},
	}
	add.Flags().StringVar(&configRef, "config", "", "Configuration as TYPE/NAME (required)")
	add.Flags().StringVar(&reason, "reason", "", "Why the item does not apply")
	add.Flags().StringVar(&createdBy, "by", currentUser(), "Who approved the exception")
	_ = add.MarkFlagRequired("config")

	var listRef string
	list := &cobra.Command{
		Use:   "list",
		Short: "List exceptions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.openEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			ctx := cmd.Context()
			var cfgID int64
			if listRef != "" {
				cfg, err := resolveConfiguration(ctx, e.store, listRef)
				if err != nil {
					return err
				}
				cfgID = cfg.ID
			}
			excs, err := e.store.ListExceptions(ctx, cfgID)
			if err != nil {
				return err
			}
			names, err := configNames(cmd, e)
			if err != nil {
				return err
			}
			var rows [][]string
			for _, x := range excs {
				rows = append(rows, []string{
					names[x.ConfigurationID], x.ItemName, x.Reason, x.CreatedBy,
					x.CreatedAt.Local().Format("2006-01-02"),
				})
			}
			return writeTable(cmd.OutOrStdout(), []string{"CONFIGURATION", "ITEM", "REASON", "BY", "CREATED"}, rows)
		},
	}
	list.Flags().StringVar(&listRef, "config", "", "Only this configuration (TYPE/NAME)")

	var removeRef string
	remove := &cobra.Command{
		Use:   "remove <item-name>",
		Short: "Remove an exception",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.openEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			ctx := cmd.Context()
			cfg, err := resolveConfiguration(ctx, e.store, removeRef)
			if err != nil {
				return err
			}
			it, err := e.store.GetItemByName(ctx, args[0])
			if err != nil {
				return err
			}
			if err := e.store.RemoveException(ctx, cfg.ID, it.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed exception for %q on %s\n", it.ItemName, removeRef)
			return nil
		},
	}
	remove.Flags().StringVar(&removeRef, "config", "", "Configuration as TYPE/NAME (required)")
	_ = remove.MarkFlagRequired("config")

	cmd.AddCommand(add, list, remove)
	return cmd
}

// configNames maps configuration IDs to "TYPE/NAME".
func configNames(cmd *cobra.Command, e *env) (map[int64]string, error) {
	cfgs, err := e.store.ListConfigurations(cmd.Context(), 0)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]string, len(cfgs))
	for _, c := range cfgs {
		out[c.ID] = c.TypeName + "/" + c.Name
	}
	return out, nil
}

func newOverrideCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "override",
		Short: "Manage per-configuration spec overrides",
		Long: `An override replaces the spec of one checklist item for one equipment
configuration. Only the given fields are replaced.`,
	}

	var (
		configRef string
		lo, hi    float64
		expected  string
	)
	set := &cobra.Command{
		Use:     "set <item-name>",
		Short:   "Set an override",
		Example: `  qcdb override set Heater_Temp --config ETCH-300/2PM-LL --max 380`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			if !f.Changed("min") && !f.Changed("max") && !f.Changed("expected") {
				return fmt.Errorf("override needs at least one of --min, --max, --expected")
			}
			e, err := a.openEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			ctx := cmd.Context()
			cfg, err := resolveConfiguration(ctx, e.store, configRef)
			if err != nil {
				return err
			}
			it, err := e.store.GetItemByName(ctx, args[0])
			if err != nil {
				return err
			}
			o := checklist.Override{ConfigurationID: cfg.ID, ItemID: it.ID}
			if f.Changed("min") {
				o.SpecMin = &lo
			}
			if f.Changed("max") {
				o.SpecMax = &hi
			}
			if f.Changed("expected") {
				o.ExpectedValue = &expected
			}
			if err := e.store.SetOverride(ctx, o); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "override for %q on %s: %s\n", it.ItemName, configRef, o.Apply(*it).SpecDisplay())
			return nil
		},
	}
	set.Flags().StringVar(&configRef, "config", "", "Configuration as TYPE/NAME (required)")
	set.Flags().Float64Var(&lo, "min", 0, "Replacement lower spec limit")
	set.Flags().Float64Var(&hi, "max", 0, "Replacement upper spec limit")
	set.Flags().StringVar(&expected, "expected", "", "Replacement expected value")
	_ = set.MarkFlagRequired("config")

	var listRef string
	list := &cobra.Command{
		Use:   "list",
		Short: "List overrides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.openEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			ctx := cmd.Context()
			var cfgID int64
			if listRef != "" {
				cfg, err := resolveConfiguration(ctx, e.store, listRef)
				if err != nil {
					return err
				}
				cfgID = cfg.ID
			}
			ovs, err := e.store.ListOverrides(ctx, cfgID)
			if err != nil {
				return err
			}
			names, err := configNames(cmd, e)
			if err != nil {
				return err
			}
			var rows [][]string
			for _, o := range ovs {
				it, err := e.store.GetItem(ctx, o.ItemID)
				if err != nil {
					return err
				}
				rows = append(rows, []string{
					names[o.ConfigurationID], it.ItemName, it.SpecDisplay(), o.Apply(*it).SpecDisplay(),
					strconv.FormatInt(o.ItemID, 10),
				})
			}
			return writeTable(cmd.OutOrStdout(), []string{"CONFIGURATION", "ITEM", "SPEC", "OVERRIDE", "ITEM ID"}, rows)
		},
	}
	list.Flags().StringVar(&listRef, "config", "", "Only this configuration (TYPE/NAME)")

	var removeRef string
	remove := &cobra.Command{
		Use:   "remove <item-name>",
		Short: "Remove an override",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.openEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			ctx := cmd.Context()
			cfg, err := resolveConfiguration(ctx, e.store, removeRef)
			if err != nil {
				return err
			}
			it, err := e.store.GetItemByName(ctx, args[0])
			if err != nil {
				return err
			}
			if err := e.store.RemoveOverride(ctx, cfg.ID, it.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed override for %q on %s\n", it.ItemName, removeRef)
			return nil
		},
	}
	remove.Flags().StringVar(&removeRef, "config", "", "Configuration as TYPE/NAME (required)")
	_ = remove.MarkFlagRequired("config")

	cmd.AddCommand(set, list, remove)
	return cmd
}

package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"qcdb/internal/checklist"
	"qcdb/internal/compare"
	"qcdb/internal/defaultdb"
	"qcdb/internal/dump"
)

func parseDumps(paths []string) ([]*dump.File, error) {
	files := make([]*dump.File, 0, len(paths))
	for _, p := range paths {
		f, err := dump.ParseFile(p)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

func formatSpec(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'g', -1, 64)
}

// ---------------------------------------------------------------------------
// parse
// ---------------------------------------------------------------------------

func newParseCmd(a *app) *cobra.Command {
	var asYAML bool
	cmd := &cobra.Command{
		Use:   "parse <dump>",
		Short: "Parse a dump and show its parameters and skipped lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := dump.ParseFile(args[0])
			if err != nil && !errors.Is(err, dump.ErrEmpty) {
				return err
			}
			w := cmd.OutOrStdout()
			if asYAML {
				enc := yaml.NewEncoder(w)
				enc.SetIndent(2)
				if err := enc.Encode(f); err != nil {
					return err
				}
				if err := enc.Close(); err != nil {
					return err
				}
			} else {
				var rows [][]string
				for _, r := range f.Records {
					rows = append(rows, []string{
						strconv.Itoa(r.Line), r.Module, r.Part, r.ItemName, r.ItemType, r.Value,
						formatSpec(r.MinSpec), formatSpec(r.MaxSpec),
					})
				}
				if err := writeTable(w, []string{"LINE", "MODULE", "PART", "ITEM", "TYPE", "VALUE", "MIN", "MAX"}, rows); err != nil {
					return err
				}
				for _, warn := range f.Warnings {
					fmt.Fprintf(w, "warning: %s\n", warn)
				}
				fmt.Fprintf(w, "%d parameter(s), %d warning(s)\n", len(f.Records), len(f.Warnings))
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Print the parsed dump as YAML")
	return cmd
}

// ---------------------------------------------------------------------------
// compare
// ---------------------------------------------------------------------------

func newCompareCmd(a *app) *cobra.Command {
	var (
		diffOnly bool
		typeName string
	)
	cmd := &cobra.Command{
		Use:   "compare <dump>...",
		Short: "Compare dumps side by side, or one dump against the Default DB",
		Long: `With several dumps, print every parameter with its value in each dump.
With --type, compare each dump against the Default DB of that equipment
type instead.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := parseDumps(args)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()

			if typeName != "" {
				e, err := a.openEnv()
				if err != nil {
					return err
				}
				defer e.Close()
				typ, err := e.store.GetEquipmentTypeByName(cmd.Context(), typeName)
				if err != nil {
					return err
				}
				defaults, err := e.store.ListDefaultValues(cmd.Context(), typ.ID)
				if err != nil {
					return err
				}
				if len(defaults) == 0 {
					return fmt.Errorf("equipment type %q has no Default DB (run 'qcdb defaultdb build')", typeName)
				}
				for i, f := range files {
					if i > 0 {
						fmt.Fprintln(w)
					}
					rep := compare.AgainstDefault(f, defaults)
					var rows [][]string
					for _, r := range rep.Rows {
						if diffOnly && r.Status == compare.StatusMatch {
							continue
						}
						rows = append(rows, []string{r.ItemName, r.Default, r.Value, string(r.Status)})
					}
					fmt.Fprintf(w, "%s vs %s Default DB\n", f.Name, typeName)
					if err := writeTable(w, []string{"ITEM", "DEFAULT", "VALUE", "STATUS"}, rows); err != nil {
						return err
					}
					fmt.Fprintf(w, "match %d, mismatch %d, missing %d, extra %d\n",
						rep.Counts[compare.StatusMatch], rep.Counts[compare.StatusMismatch],
						rep.Counts[compare.StatusMissing], rep.Counts[compare.StatusExtra])
				}
				return nil
			}

			if len(files) < 2 {
				return fmt.Errorf("compare needs at least two dumps, or --type")
			}
			m := compare.Files(files...)
			if diffOnly {
				m = m.OnlyDiffs()
			}
			headers := append([]string{"ITEM"}, m.Files...)
			headers = append(headers, "")
			var rows [][]string
			for _, r := range m.Rows {
				row := []string{r.ItemName}
				for i, v := range r.Values {
					if !r.Present[i] {
						v = "-"
					}
					row = append(row, v)
				}
				var mark []string
				if r.Differs {
					mark = append(mark, "differs")
				}
				if len(r.Missing) > 0 {
					mark = append(mark, "missing")
				}
				rows = append(rows, append(row, strings.Join(mark, ",")))
			}
			return writeTable(w, headers, rows)
		},
	}
	cmd.Flags().BoolVar(&diffOnly, "diff", false, "Only show differing or missing parameters")
	cmd.Flags().StringVar(&typeName, "type", "", "Compare against this equipment type's Default DB")
	return cmd
}

// ---------------------------------------------------------------------------
// defaultdb
// ---------------------------------------------------------------------------

func newDefaultDBCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "defaultdb",
		Short: "Build and inspect the Default DB of an equipment type",
	}

	var (
		typeName        string
		sigma           float64
		minConfidence   float64
		apply           bool
		includeUnstable bool
		checklistOut    string
	)
	build := &cobra.Command{
		Use:   "build <dump>...",
		Short: "Derive Default DB values from reference dumps",
		Long: `Derive expected values from reference dumps of one equipment type.

For every parameter the modal value and its confidence (share of dumps
carrying it) are computed; numeric parameters also get mean, standard
deviation and a suggested spec range of mean ± sigma·stddev, unless the
dumps carry MinSpec/MaxSpec columns.

Without --apply the candidates are only printed. --checklist writes the
stable candidates as a checklist YAML file for 'qcdb item import'.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := parseDumps(args)
			if err != nil {
				return err
			}
			cands := defaultdb.Build(files, defaultdb.Options{
				Sigma:         sigma,
				MinConfidence: minConfidence,
				Logger:        a.logger,
			})
			w := cmd.OutOrStdout()
			var rows [][]string
			for _, c := range cands {
				flag := ""
				if c.Unstable {
					flag = "unstable"
				}
				rows = append(rows, []string{
					c.ItemName, c.Value, formatSpec(c.SpecMin), formatSpec(c.SpecMax),
					fmt.Sprintf("%d/%d", c.Occurrences, c.TotalFiles), fmt.Sprintf("%.2f", c.Confidence), flag,
				})
			}
			if err := writeTable(w, []string{"ITEM", "VALUE", "MIN", "MAX", "SEEN", "CONFIDENCE", ""}, rows); err != nil {
				return err
			}

			if checklistOut != "" {
				items := defaultdb.ToChecklist(cands)
				f, err := os.Create(checklistOut)
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
				fmt.Fprintf(w, "wrote %d checklist item(s) to %s\n", len(items), checklistOut)
			}

			if !apply {
				return nil
			}
			if typeName == "" {
				return fmt.Errorf("--apply needs --type")
			}
			e, err := a.openEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			typ, err := e.store.GetEquipmentTypeByName(cmd.Context(), typeName)
			if err != nil {
				return err
			}
			n, err := defaultdb.Apply(cmd.Context(), e.store, typ.ID, cands, includeUnstable)
			if err != nil {
				return err
			}
			a.logger.Info("updated default db", zap.String("type", typeName), zap.Int("values", n), zap.Int("dumps", len(files)))
			fmt.Fprintf(w, "saved %d default value(s) for %s\n", n, typeName)
			return nil
		},
	}
	bf := build.Flags()
	bf.StringVar(&typeName, "type", "", "Equipment type to save the Default DB for")
	bf.Float64Var(&sigma, "sigma", 3, "Spec range half-width in standard deviations")
	bf.Float64Var(&minConfidence, "min-confidence", 0.5, "Confidence below which a value is unstable")
	bf.BoolVar(&apply, "apply", false, "Save the values to the Default DB")
	bf.BoolVar(&includeUnstable, "include-unstable", false, "Also save unstable values")
	bf.StringVar(&checklistOut, "checklist", "", "Write stable values as checklist YAML to this file")

	var listType string
	list := &cobra.Command{
		Use:   "list",
		Short: "List the Default DB of an equipment type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.openEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			typ, err := e.store.GetEquipmentTypeByName(cmd.Context(), listType)
			if err != nil {
				return err
			}
			vals, err := e.store.ListDefaultValues(cmd.Context(), typ.ID)
			if err != nil {
				return err
			}
			var rows [][]string
			for _, v := range vals {
				rows = append(rows, []string{
					v.ItemName, v.Value, formatSpec(v.SpecMin), formatSpec(v.SpecMax),
					fmt.Sprintf("%d/%d", v.OccurrenceCount, v.TotalFiles), fmt.Sprintf("%.2f", v.Confidence),
				})
			}
			return writeTable(cmd.OutOrStdout(), []string{"ITEM", "VALUE", "MIN", "MAX", "SEEN", "CONFIDENCE"}, rows)
		},
	}
	list.Flags().StringVar(&listType, "type", "", "Equipment type (required)")
	_ = list.MarkFlagRequired("type")

	var clearType string
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the Default DB of an equipment type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.openEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			typ, err := e.store.GetEquipmentTypeByName(cmd.Context(), clearType)
			if err != nil {
				return err
			}
			n, err := e.store.DeleteDefaultValues(cmd.Context(), typ.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d default value(s) for %s\n", n, clearType)
			return nil
		},
	}
	clearCmd.Flags().StringVar(&clearType, "type", "", "Equipment type (required)")
	_ = clearCmd.MarkFlagRequired("type")

	cmd.AddCommand(build, list, clearCmd)
	return cmd
}

package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"qcdb/internal/report"
	"qcdb/internal/watch"
)

// ---------------------------------------------------------------------------
// inspect
// ---------------------------------------------------------------------------

func newInspectCmd(a *app) *cobra.Command {
	var (
		configRef string
		format    string
		workers   int
		noSave    bool
		noReport  bool
	)
	cmd := &cobra.Command{
		Use:   "inspect <dump>...",
		Short: "Run a QC inspection of one or more dumps",
		Long: `Inspect parameter dumps against the active QC checklist.

With --config TYPE/NAME, that configuration's exceptions and overrides apply.
Each result is saved to the inspection history and a report is written to
the workspace reports directory. Several dumps are inspected in parallel.

Exits non-zero when any verdict is FAIL.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.openEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			ctx := cmd.Context()

			if format == "" {
				format = e.settings.Report.Format
			}
			rf, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			cfg, err := resolveConfiguration(ctx, e.store, configRef)
			if err != nil {
				return err
			}
			var cfgID int64
			if cfg != nil {
				cfgID = cfg.ID
			}
			in, err := newInspector(e, cfgID, rf, a.logger)
			if err != nil {
				return err
			}
			in.save, in.writeRep = !noSave, !noReport
			if err := in.load(ctx); err != nil {
				return err
			}

			if workers <= 0 {
				workers = e.settings.Inspection.Workers
			}
			outcomes, err := inspectAll(ctx, in, args, workers)
			if err != nil {
				return err
			}
			return printOutcomes(cmd.OutOrStdout(), outcomes, a.styled())
		},
	}
	f := cmd.Flags()
	f.StringVar(&configRef, "config", "", "Configuration as TYPE/NAME")
	f.StringVar(&format, "format", "", "Report file format: text, markdown, yaml (default from settings)")
	f.IntVar(&workers, "workers", 0, "Parallel inspections (default from settings)")
	f.BoolVar(&noSave, "no-save", false, "Do not record results in the history")
	f.BoolVar(&noReport, "no-report", false, "Do not write report files")
	return cmd
}

// inspectAll inspects paths with at most workers in flight. Outcomes keep
// the order of paths. Only cancellation aborts the batch.
func inspectAll(ctx context.Context, in *inspector, paths []string, workers int) ([]outcome, error) {
	outcomes := make([]outcome, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = in.inspectFile(gctx, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// printOutcomes renders each outcome and returns errInspectionFailed when any
// verdict failed, or an error when any file could not be inspected.
func printOutcomes(w io.Writer, outcomes []outcome, styled bool) error {
	failed, broken := 0, 0
	for i, o := range outcomes {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if o.Err != nil {
			broken++
			fmt.Fprintf(w, "%s: error: %v\n", o.Path, o.Err)
			continue
		}
		if err := report.Text(w, o.Result, styled); err != nil {
			return err
		}
		if len(o.Warnings) > 0 {
			fmt.Fprintf(w, "%d dump line(s) skipped; run 'qcdb parse %s' for details\n", len(o.Warnings), o.Path)
		}
		if o.Report != "" {
			fmt.Fprintf(w, "report: %s\n", o.Report)
		}
		if !o.Result.Pass {
			failed++
		}
	}
	if len(outcomes) > 1 {
		fmt.Fprintf(w, "\n%d dump(s): %d passed, %d failed, %d error(s)\n",
			len(outcomes), len(outcomes)-failed-broken, failed, broken)
	}
	if broken > 0 {
		return fmt.Errorf("%d dump(s) could not be inspected", broken)
	}
	if failed > 0 {
		return errInspectionFailed
	}
	return nil
}

// ---------------------------------------------------------------------------
// history
// ---------------------------------------------------------------------------

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past inspections, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.openEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			recs, err := e.store.ListInspections(cmd.Context(), limit)
			if err != nil {
				return err
			}
			var rows [][]string
			for _, r := range recs {
				status := "PASS"
				if !r.Pass {
					status = "FAIL"
				}
				rows = append(rows, []string{
					r.ID, r.InspectedAt.Local().Format("2006-01-02 15:04"), r.Source, status,
					strconv.Itoa(r.Passed), strconv.Itoa(r.Failed), fmt.Sprintf("%.1f%%", r.PassRate),
				})
			}
			return writeTable(cmd.OutOrStdout(), []string{"ID", "INSPECTED", "SOURCE", "STATUS", "PASSED", "FAILED", "RATE"}, rows)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of inspections to show (0 for all)")

	var format string
	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a stored inspection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.openEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			res, err := e.store.GetInspection(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			rf, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			if rf == report.FormatText {
				return report.Text(cmd.OutOrStdout(), res, a.styled())
			}
			data, err := report.Render(res, rf)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	show.Flags().StringVar(&format, "format", "text", "Output format: text, markdown, yaml")
	cmd.AddCommand(show)
	return cmd
}

// ---------------------------------------------------------------------------
// report
// ---------------------------------------------------------------------------

func newReportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Work with written inspection reports",
	}

	var description string
	export := &cobra.Command{
		Use:   "export <dir>",
		Short: "Copy all reports into <dir>/<workspace>-reports with an index",
		Long: `Copy every report file into <dir>/<workspace>-reports/ and write index.md
listing the markdown reports with their verdicts.

Errors if the target directory already exists.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.openEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			title := description
			if title == "" {
				title = "QC reports: " + e.ws.Name
			}
			index, err := report.Index(e.ws.ReportsDir(), title)
			if err != nil {
				return err
			}
			target, err := e.ws.ExportReports(args[0], index)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported reports to %s\n", target)
			return nil
		},
	}
	export.Flags().StringVar(&description, "title", "", "Index heading")

	cmd.AddCommand(export)
	return cmd
}

// ---------------------------------------------------------------------------
// watch
// ---------------------------------------------------------------------------

func newWatchCmd(a *app) *cobra.Command {
	var (
		configRef string
		existing  bool
	)
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Inspect dumps as they arrive in a directory",
		Long: `Watch a directory tree and inspect every dump file matching the
watch.patterns setting once it stops changing for watch.debounce.

The checklist is reloaded before each inspection, so edits apply without a
restart. Stop with Ctrl+C.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.openEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			ctx := cmd.Context()

			rf, err := report.ParseFormat(e.settings.Report.Format)
			if err != nil {
				return err
			}
			debounce, err := e.settings.DebounceDuration()
			if err != nil {
				return err
			}
			cfg, err := resolveConfiguration(ctx, e.store, configRef)
			if err != nil {
				return err
			}
			var cfgID int64
			if cfg != nil {
				cfgID = cfg.ID
			}
			in, err := newInspector(e, cfgID, rf, a.logger)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			opts := []watch.Option{
				watch.WithLogger(a.logger),
				watch.WithDebounce(debounce),
				watch.WithMatcher(e.settings.WatchMatches),
			}
			if existing {
				opts = append(opts, watch.WithExisting())
			}
			watcher := watch.New(func(ctx context.Context, path string) error {
				if err := in.load(ctx); err != nil {
					return err
				}
				o := in.inspectFile(ctx, path)
				if o.Err != nil {
					fmt.Fprintf(w, "%s  %s  error: %v\n", time.Now().Format("15:04:05"), filepath.Base(path), o.Err)
					return o.Err
				}
				fmt.Fprintf(w, "%s  %s  %s  %d passed, %d failed  %s\n",
					time.Now().Format("15:04:05"), filepath.Base(path), o.Result.Status(),
					o.Result.Summary.Passed, o.Result.Summary.Failed, o.Report)
				return nil
			}, opts...)

			fmt.Fprintf(w, "watching %s (Ctrl+C to stop)\n", args[0])
			a.logger.Debug("watch patterns", zap.Strings("patterns", e.settings.Watch.Patterns))
			return watcher.Run(ctx, args[0])
		},
	}
	cmd.Flags().StringVar(&configRef, "config", "", "Configuration as TYPE/NAME")
	cmd.Flags().BoolVar(&existing, "existing", false, "Also inspect matching files already present")
	return cmd
}

// Command qcdb manages QC checklists and Default DBs for equipment
// parameter dumps, and runs QC inspections against them.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"qcdb/internal/settings"
	"qcdb/internal/store"
	"qcdb/internal/workspace"
)

// errInspectionFailed is returned when at least one inspection verdict is
// FAIL, so the process exits non-zero.
var errInspectionFailed = errors.New("inspection failed")

// app holds global flags and shared state for one command invocation.
type app struct {
	workspaceName string
	verbose       bool
	logFormat     string
	plain         bool

	logger *zap.Logger
	in     io.Reader
	out    io.Writer
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "qcdb",
		Short: "QC checklist and Default DB manager for equipment parameter dumps",
		Long: `qcdb keeps a QC checklist of equipment parameters with specs, a Default DB
of expected values per equipment type, and the history of QC inspections.

State lives in a workspace at ~/.qcdb/<workspace>/ (settings.yaml, qc.db,
reports/). Select it with --workspace or QCDB_WORKSPACE.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initLogger()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.SetIn(a.in)
	root.SetOut(a.out)

	defaultWS := os.Getenv("QCDB_WORKSPACE")
	if defaultWS == "" {
		defaultWS = "default"
	}
	root.PersistentFlags().StringVarP(&a.workspaceName, "workspace", "w", defaultWS, "Workspace name")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "json", "Log encoding: json or console")
	root.PersistentFlags().BoolVar(&a.plain, "plain", false, "Disable colored terminal output")

	root.AddCommand(
		newInitCmd(a),
		newWorkspacesCmd(a),
		newTypeCmd(a),
		newConfigCmd(a),
		newItemCmd(a),
		newExceptionCmd(a),
		newOverrideCmd(a),
		newParseCmd(a),
		newCompareCmd(a),
		newDefaultDBCmd(a),
		newInspectCmd(a),
		newHistoryCmd(a),
		newReportCmd(a),
		newWatchCmd(a),
	)
	return root
}

// initLogger builds the process logger from the global flags.
func (a *app) initLogger() error {
	var config zap.Config
	switch a.logFormat {
	case "json", "":
		config = zap.NewProductionConfig()
	case "console":
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	default:
		return fmt.Errorf("unknown --log-format %q (want json or console)", a.logFormat)
	}
	if a.verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger.With(zap.String("workspace", a.workspaceName))
	return nil
}

// styled reports whether output goes to a terminal that should get colors.
func (a *app) styled() bool {
	if a.plain || os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := a.out.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

// ---------------------------------------------------------------------------
// Workspace helpers
// ---------------------------------------------------------------------------

// env is an opened workspace with its settings and store.
type env struct {
	ws       *workspace.Workspace
	settings *settings.Settings
	store    *store.Store
}

func (e *env) Close() error { return e.store.Close() }

func (a *app) openEnv() (*env, error) {
	ws, err := workspace.Open(a.workspaceName)
	if err != nil {
		return nil, err
	}
	s, err := ws.LoadSettings()
	if err != nil {
		return nil, err
	}
	st, err := ws.OpenStore(a.logger)
	if err != nil {
		return nil, err
	}
	return &env{ws: ws, settings: s, store: st}, nil
}

// resolveConfiguration looks up "TYPE/NAME". Empty means no configuration.
func resolveConfiguration(ctx context.Context, st *store.Store, ref string) (*store.Configuration, error) {
	if ref == "" {
		return nil, nil
	}
	typeName, name, ok := strings.Cut(ref, "/")
	if !ok || typeName == "" || name == "" {
		return nil, fmt.Errorf("configuration %q: want TYPE/NAME", ref)
	}
	cfg, err := st.FindConfiguration(ctx, typeName, name)
	if err != nil {
		return nil, fmt.Errorf("configuration %q: %w", ref, err)
	}
	return cfg, nil
}

// writeTable prints a borderless, left-aligned listing.
func writeTable(w io.Writer, headers []string, rows [][]string) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "(none)")
		return err
	}
	t := table.New().
		Border(lipgloss.HiddenBorder()).
		BorderTop(false).BorderBottom(false).
		BorderLeft(false).BorderRight(false).
		BorderHeader(false).BorderColumn(false).
		StyleFunc(func(row, col int) lipgloss.Style {
			return lipgloss.NewStyle().PaddingRight(2)
		}).
		Headers(headers...).
		Rows(rows...)
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func main() {
	a := &app{in: os.Stdin, out: os.Stdout}
	ctx, cancel := signalContext(context.Background())
	err := newRootCmd(a).ExecuteContext(ctx)
	cancel()
	if err != nil {
		if !errors.Is(err, errInspectionFailed) {
			fmt.Fprintln(os.Stderr, "qcdb:", err)
		}
		os.Exit(1)
	}
}

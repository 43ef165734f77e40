package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

// run executes the CLI with args against a fresh command tree and returns
// stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	a := &app{in: strings.NewReader(""), out: &out}
	root := newRootCmd(a)
	root.SetArgs(append([]string{"--log-format", "console"}, args...))
	root.SetErr(&out)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	if err != nil {
		t.Fatalf("qcdb %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func withTempHome(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)
	t.Setenv("QCDB_HOME", "")
	t.Setenv("QCDB_WORKSPACE", "")
	return tmp
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// ---------------------------------------------------------------------------
// Command tree
// ---------------------------------------------------------------------------

// TestHelpContainsAllCommands verifies every registered command appears in
// the root help with its short description.
func TestHelpContainsAllCommands(t *testing.T) {
	root := newRootCmd(&app{in: strings.NewReader(""), out: &bytes.Buffer{}})
	help := root.UsageString()
	for _, cmd := range root.Commands() {
		if cmd.Hidden || cmd.Name() == "help" || cmd.Name() == "completion" {
			continue
		}
		if !strings.Contains(help, cmd.Name()) {
			t.Errorf("help output missing command %q", cmd.Name())
		}
		if !strings.Contains(help, cmd.Short) {
			t.Errorf("help output missing short description %q", cmd.Short)
		}
	}
}

// TestEveryCommandDocumented walks the tree: every command has a short
// description and runnable leaves have a usage line.
func TestEveryCommandDocumented(t *testing.T) {
	root := newRootCmd(&app{in: strings.NewReader(""), out: &bytes.Buffer{}})
	var walk func(c *cobra.Command)
	walk = func(c *cobra.Command) {
		if c.Short == "" {
			t.Errorf("command %q has no short description", c.CommandPath())
		}
		if c.Runnable() && c.Use == "" {
			t.Errorf("command %q has no usage", c.CommandPath())
		}
		for _, sub := range c.Commands() {
			walk(sub)
		}
	}
	walk(root)

	for _, path := range [][]string{
		{"init"}, {"workspaces"}, {"type", "add"}, {"type", "list"},
		{"config", "add"}, {"config", "list"},
		{"item", "add"}, {"item", "list"}, {"item", "import"}, {"item", "export"},
		{"item", "disable"}, {"item", "remove"},
		{"exception", "add"}, {"exception", "list"}, {"exception", "remove"},
		{"override", "set"}, {"parse"}, {"compare"}, {"defaultdb", "build"},
		{"inspect"}, {"history"}, {"watch"},
	} {
		if c, _, err := root.Find(path); err != nil || c.Name() != path[len(path)-1] {
			t.Errorf("command %q not registered", strings.Join(path, " "))
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	withTempHome(t)
	if _, err := run(t, "no-such-command"); err == nil {
		t.Fatal("expected error for unknown command")
	}
}

func TestBadLogFormat(t *testing.T) {
	withTempHome(t)
	if _, err := run(t, "--log-format", "xml", "workspaces"); err == nil || !strings.Contains(err.Error(), "log-format") {
		t.Fatalf("expected log-format error, got %v", err)
	}
}

func TestMissingWorkspace(t *testing.T) {
	withTempHome(t)
	_, err := run(t, "-w", "nope", "item", "list")
	if err == nil || !strings.Contains(err.Error(), "qcdb init nope") {
		t.Fatalf("expected hint to run init, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// End to end
// ---------------------------------------------------------------------------

const checklistYAML = `version: 1
items:
  - item_name: Temp_Setpoint
    spec_min: 340
    spec_max: 360
    severity: CRITICAL
    category: Heater
  - item_name: Pump_Enable
    expected_value: "ON"
    severity: HIGH
  - item_name: Heater_Zone2
    spec_max: 10
`

const dumpText = "# tool dump\n" +
	"Module\tPart\tItemName\tItemType\tItemValue\tDescription\n" +
	"PM1\tHeater\tTemp_Setpoint\tfloat\t350\tsetpoint\n" +
	"PM1\tPump\tPump_Enable\tbool\tON\t\n" +
	"PM1\tHeater\tHeater_Zone2\tfloat\t12\tzone 2\n" +
	"PM1\tMisc\tUnknown_X\tint\t1\t\n"

func TestInspectWorkflow(t *testing.T) {
	home := withTempHome(t)
	dir := t.TempDir()
	clPath := writeFile(t, dir, "checklist.yaml", checklistYAML)
	dumpPath := writeFile(t, dir, "etch01.txt", dumpText)

	out := mustRun(t, "init", "fab")
	if !strings.Contains(out, filepath.Join(home, ".qcdb", "fab")) {
		t.Errorf("init output = %q", out)
	}
	if _, err := run(t, "init", "fab"); err == nil {
		t.Error("expected duplicate init to fail")
	}
	if out := mustRun(t, "-w", "fab", "workspaces"); !strings.Contains(out, "* fab") {
		t.Errorf("workspaces = %q", out)
	}

	mustRun(t, "-w", "fab", "type", "add", "ETCH-300")
	mustRun(t, "-w", "fab", "config", "add", "ETCH-300", "2PM-LL")
	if out := mustRun(t, "-w", "fab", "item", "import", clPath); !strings.Contains(out, "imported 3 item(s)") {
		t.Errorf("import = %q", out)
	}
	if out := mustRun(t, "-w", "fab", "item", "list"); !strings.Contains(out, "340 ~ 360") {
		t.Errorf("item list = %q", out)
	}

	// Without a configuration Heater_Zone2 = 12 fails.
	out, err := run(t, "-w", "fab", "inspect", dumpPath)
	if !errors.Is(err, errInspectionFailed) {
		t.Fatalf("inspect without config: err = %v\n%s", err, out)
	}
	for _, want := range []string{"Verdict: FAIL", "12 is above maximum 10", "Unmatched (1): Unknown_X", "report: "} {
		if !strings.Contains(out, want) {
			t.Errorf("inspect output missing %q:\n%s", want, out)
		}
	}

	// Exception add without --reason and no terminal must refuse.
	if _, err := run(t, "-w", "fab", "exception", "add", "Heater_Zone2", "--config", "ETCH-300/2PM-LL"); err == nil {
		t.Error("expected exception without reason to fail")
	}
	mustRun(t, "-w", "fab", "exception", "add", "Heater_Zone2", "--config", "ETCH-300/2PM-LL",
		"--reason", "single zone variant", "--by", "kim")
	if out := mustRun(t, "-w", "fab", "exception", "list"); !strings.Contains(out, "single zone variant") {
		t.Errorf("exception list = %q", out)
	}

	out = mustRun(t, "-w", "fab", "inspect", dumpPath, "--config", "ETCH-300/2PM-LL", "--format", "markdown")
	for _, want := range []string{"Verdict: PASS", "Excepted (1): Heater_Zone2", ".md"} {
		if !strings.Contains(out, want) {
			t.Errorf("inspect with config missing %q:\n%s", want, out)
		}
	}

	// An override on the configuration applies too.
	mustRun(t, "-w", "fab", "override", "set", "Temp_Setpoint", "--config", "ETCH-300/2PM-LL", "--max", "345")
	out, err = run(t, "-w", "fab", "inspect", dumpPath, "--config", "ETCH-300/2PM-LL", "--no-save", "--no-report")
	if !errors.Is(err, errInspectionFailed) || !strings.Contains(out, "350 is above maximum 345") {
		t.Errorf("override not applied: err=%v\n%s", err, out)
	}

	hist := mustRun(t, "-w", "fab", "history")
	if strings.Count(hist, "etch01.txt") != 2 {
		t.Errorf("history should list the two saved inspections:\n%s", hist)
	}

	reports, err := os.ReadDir(filepath.Join(home, ".qcdb", "fab", "reports"))
	if err != nil || len(reports) != 2 {
		t.Errorf("expected 2 report files, got %d (%v)", len(reports), err)
	}
	exportDir := t.TempDir()
	mustRun(t, "-w", "fab", "report", "export", exportDir)
	index, err := os.ReadFile(filepath.Join(exportDir, "fab-reports", "index.md"))
	if err != nil || !strings.Contains(string(index), "| etch01.txt | PASS |") {
		t.Errorf("export index = %q, %v", index, err)
	}
}

func TestInspectBatch(t *testing.T) {
	withTempHome(t)
	dir := t.TempDir()
	clPath := writeFile(t, dir, "checklist.yaml", checklistYAML)
	good := writeFile(t, dir, "good.txt", strings.ReplaceAll(dumpText, "\t12\t", "\t8\t"))
	bad := writeFile(t, dir, "bad.txt", dumpText)
	empty := writeFile(t, dir, "empty.txt", "# nothing\n")

	mustRun(t, "init", "b")
	mustRun(t, "-w", "b", "item", "import", clPath)

	out, err := run(t, "-w", "b", "inspect", good, bad, "--no-save", "--no-report", "--workers", "2")
	if !errors.Is(err, errInspectionFailed) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(out, "2 dump(s): 1 passed, 1 failed, 0 error(s)") {
		t.Errorf("batch summary missing:\n%s", out)
	}
	if strings.Index(out, "good.txt") > strings.Index(out, "bad.txt") {
		t.Error("outcomes must keep argument order")
	}

	out, err = run(t, "-w", "b", "inspect", good, empty, "--no-save", "--no-report")
	if err == nil || errors.Is(err, errInspectionFailed) {
		t.Fatalf("expected file error, got %v", err)
	}
	if !strings.Contains(out, "empty.txt: error:") {
		t.Errorf("missing per-file error:\n%s", out)
	}
}

func TestParseCompareAndDefaultDB(t *testing.T) {
	withTempHome(t)
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", dumpText)
	b := writeFile(t, dir, "b.txt", strings.ReplaceAll(dumpText, "\t350\t", "\t352\t"))
	c := writeFile(t, dir, "c.txt", strings.ReplaceAll(dumpText, "\t350\t", "\t348\t"))

	out := mustRun(t, "parse", a)
	if !strings.Contains(out, "4 parameter(s), 0 warning(s)") {
		t.Errorf("parse = %q", out)
	}

	out = mustRun(t, "compare", "--diff", a, b)
	if !strings.Contains(out, "Temp_Setpoint") || strings.Contains(out, "Pump_Enable") {
		t.Errorf("compare --diff = %q", out)
	}
	if _, err := run(t, "compare", a); err == nil {
		t.Error("compare of one dump without --type should fail")
	}

	mustRun(t, "init", "d")
	mustRun(t, "-w", "d", "type", "add", "ETCH-300")
	clOut := filepath.Join(dir, "derived.yaml")
	out = mustRun(t, "-w", "d", "defaultdb", "build", a, b, c, "--type", "ETCH-300", "--apply", "--checklist", clOut)
	if !strings.Contains(out, "saved 4 default value(s) for ETCH-300") {
		t.Errorf("defaultdb build = %q", out)
	}
	if out := mustRun(t, "-w", "d", "defaultdb", "list", "--type", "ETCH-300"); !strings.Contains(out, "344") {
		t.Errorf("defaultdb list should show the derived range:\n%s", out)
	}
	if out := mustRun(t, "-w", "d", "item", "import", clOut); !strings.Contains(out, "imported 4 item(s)") {
		t.Errorf("derived checklist import = %q", out)
	}

	out = mustRun(t, "-w", "d", "compare", a, "--type", "ETCH-300")
	if !strings.Contains(out, "match 4, mismatch 0, missing 0, extra 0") {
		t.Errorf("compare against default = %q", out)
	}
}

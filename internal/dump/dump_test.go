package dump

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

const sample = "\xEF\xBB\xBFModule\tPart\tItemName\tItemType\tItemValue\tDescription\tMinSpec\tMaxSpec\n" +
	"# exported by tool v3\n" +
	"Chamber\tPM1\tTemp_Setpoint\tdouble\t350.5\tHeater setpoint\t340\t360\n" +
	"Chamber\tPM1\tPump_Enable\tbool\tON\tPump\n" +
	"\n" +
	"Robot\tTM\tSerial\tstring\tSN-001\r\n" +
	"bad line without tabs\n" +
	"Chamber\tPM2\tTemp_Setpoint\tdouble\t351\tduplicate\n" +
	"Chamber\tPM1\tGas_Flow\tdouble\t12\tflow\tabc\t-\n"

func TestParse(t *testing.T) {
	f, err := Parse(strings.NewReader(sample), "eq1.txt")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	lo, hi := 340.0, 360.0
	want := []Record{
		{Line: 3, Module: "Chamber", Part: "PM1", ItemName: "Temp_Setpoint", ItemType: "double", Value: "350.5", Description: "Heater setpoint", MinSpec: &lo, MaxSpec: &hi},
		{Line: 4, Module: "Chamber", Part: "PM1", ItemName: "Pump_Enable", ItemType: "bool", Value: "ON", Description: "Pump"},
		{Line: 6, Module: "Robot", Part: "TM", ItemName: "Serial", ItemType: "string", Value: "SN-001"},
		{Line: 9, Module: "Chamber", Part: "PM1", ItemName: "Gas_Flow", ItemType: "double", Value: "12", Description: "flow"},
	}
	if diff := cmp.Diff(want, f.Records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}

	// bad line, duplicate, non-numeric MinSpec.
	if len(f.Warnings) != 3 {
		t.Fatalf("expected 3 warnings, got %d: %v", len(f.Warnings), f.Warnings)
	}
	if f.Warnings[0].Line != 7 || f.Warnings[1].Line != 8 || f.Warnings[2].Line != 9 {
		t.Errorf("unexpected warning lines: %v", f.Warnings)
	}
	if !strings.Contains(f.Warnings[1].Message, "duplicate") {
		t.Errorf("expected duplicate warning, got %q", f.Warnings[1].Message)
	}
}

func TestValuesFirstOccurrenceWins(t *testing.T) {
	f, err := Parse(strings.NewReader(sample), "eq1.txt")
	if err != nil {
		t.Fatal(err)
	}
	got := f.Values()
	want := map[string]string{
		"Temp_Setpoint": "350.5",
		"Pump_Enable":   "ON",
		"Serial":        "SN-001",
		"Gas_Flow":      "12",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestParseEmpty(t *testing.T) {
	tests := []string{
		"",
		"# only a comment\n\n",
		"Module\tPart\tItemName\tItemType\tItemValue\n",
		"too\tfew\tcols\n",
	}
	for _, in := range tests {
		_, err := Parse(strings.NewReader(in), "empty.txt")
		if !errors.Is(err, ErrEmpty) {
			t.Errorf("Parse(%q) err = %v, want ErrEmpty", in, err)
		}
	}
}

func TestHeaderOnlySkippedBeforeFirstRecord(t *testing.T) {
	in := "A\tB\tX\tint\t1\n" +
		"A\tB\tItemName\tstring\tliteral\n"
	f, err := Parse(strings.NewReader(in), "h.txt")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := f.Lookup("ItemName"); !ok {
		t.Error("a row named ItemName after the first record must be kept")
	}
}

func TestParseFileAndNames(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tool.txt")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if f.Name != "tool.txt" {
		t.Errorf("Name = %q, want tool.txt", f.Name)
	}
	want := []string{"Gas_Flow", "Pump_Enable", "Serial", "Temp_Setpoint"}
	if diff := cmp.Diff(want, f.Names()); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}

	if _, err := ParseFile(filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLookupOnHandBuiltFile(t *testing.T) {
	f := &File{Records: []Record{{ItemName: "A", Value: "1"}, {ItemName: "A", Value: "2"}}}
	rec, ok := f.Lookup("A")
	if !ok || rec.Value != "1" {
		t.Errorf("Lookup(A) = %+v, %v; want first record", rec, ok)
	}
	if diff := cmp.Diff([]string{"A", "A"}, f.Names(), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("names mismatch: %s", diff)
	}
}

func TestOverlongLineIsWarning(t *testing.T) {
	in := "A\tB\tFirst\tint\t1\n" +
		"A\tB\tHuge\tstring\t" + strings.Repeat("x", maxLineBytes+10) + "\n" +
		"A\tB\tLast\tint\t3"
	f, err := Parse(strings.NewReader(in), "long.txt")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if diff := cmp.Diff([]string{"First", "Last"}, f.Names()); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
	if len(f.Warnings) != 1 || f.Warnings[0].Line != 2 || !strings.Contains(f.Warnings[0].Message, "longer than") {
		t.Errorf("unexpected warnings: %v", f.Warnings)
	}
	if rec, ok := f.Lookup("Last"); !ok || rec.Line != 3 {
		t.Errorf("Lookup(Last) = %+v, %v", rec, ok)
	}
}

func TestLookupConcurrent(t *testing.T) {
	f := &File{Records: []Record{{ItemName: "A", Value: "1"}, {ItemName: "B", Value: "2"}}}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rec, ok := f.Lookup("B"); !ok || rec.Value != "2" {
				t.Errorf("Lookup(B) = %+v, %v", rec, ok)
			}
		}()
	}
	wg.Wait()
}

package defaultdb

import (
	"context"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"qcdb/internal/checklist"
	"qcdb/internal/dump"
	"qcdb/internal/store"
)

func mustParse(t *testing.T, name string, lines ...string) *dump.File {
	t.Helper()
	f, err := dump.Parse(strings.NewReader(strings.Join(lines, "\n")), name)
	if err != nil {
		t.Fatalf("parse %s: %v", name, err)
	}
	return f
}

func sampleFiles(t *testing.T) []*dump.File {
	return []*dump.File{
		mustParse(t, "t1.txt",
			"PM1\tHeater\tTemp\tfloat\t350\tsetpoint",
			"PM1\tCtrl\tMode\tstring\tAuto\t",
			"PM1\tGas\tGas_Flow\tfloat\t10\tsccm\t5\t15",
		),
		mustParse(t, "t2.txt",
			"PM1\tHeater\tTemp\tfloat\t352\tsetpoint",
			"PM1\tCtrl\tMode\tstring\tAuto\t",
		),
		mustParse(t, "t3.txt",
			"PM1\tHeater\tTemp\tfloat\t348\tsetpoint",
			"PM1\tCtrl\tMode\tstring\tManual\t",
			"LL\tRobot\tSerial\tstring\tABC\t",
		),
	}
}

func byName(cands []Candidate) map[string]Candidate {
	m := make(map[string]Candidate, len(cands))
	for _, c := range cands {
		m[c.ItemName] = c
	}
	return m
}

func TestBuild(t *testing.T) {
	cands := Build(sampleFiles(t), Options{})
	names := make([]string, 0, len(cands))
	for _, c := range cands {
		names = append(names, c.ItemName)
	}
	if diff := cmp.Diff([]string{"Gas_Flow", "Mode", "Serial", "Temp"}, names); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}
	m := byName(cands)

	temp := m["Temp"]
	if !temp.Numeric || temp.Mean != 350 || temp.StdDev != 2 || temp.Min != 348 || temp.Max != 352 {
		t.Errorf("Temp stats = %+v", temp)
	}
	if temp.SpecSource != "stats" || *temp.SpecMin != 344 || *temp.SpecMax != 356 {
		t.Errorf("Temp spec = %v..%v (%s)", *temp.SpecMin, *temp.SpecMax, temp.SpecSource)
	}
	if temp.Confidence != 1 || temp.Unstable {
		t.Errorf("Temp confidence = %v unstable=%v", temp.Confidence, temp.Unstable)
	}
	if temp.Module != "PM1" || temp.Part != "Heater" {
		t.Errorf("Temp location = %s/%s", temp.Module, temp.Part)
	}

	mode := m["Mode"]
	if mode.Numeric || mode.Value != "Auto" || mode.Confidence != 0.667 || mode.Unstable {
		t.Errorf("Mode = %+v", mode)
	}
	if diff := cmp.Diff([]string{"Auto", "Manual"}, mode.Values); diff != "" {
		t.Errorf("Mode values (-want +got):\n%s", diff)
	}
	if mode.SpecMin != nil || mode.SpecMax != nil {
		t.Error("Mode should have no spec range")
	}

	gas := m["Gas_Flow"]
	if gas.SpecSource != "dump" || *gas.SpecMin != 5 || *gas.SpecMax != 15 {
		t.Errorf("Gas_Flow spec = %+v", gas)
	}
	if gas.Occurrences != 1 || gas.TotalFiles != 3 || !gas.Unstable {
		t.Errorf("Gas_Flow occurrence = %d/%d unstable=%v", gas.Occurrences, gas.TotalFiles, gas.Unstable)
	}

	if !m["Serial"].Unstable {
		t.Error("Serial seen in one of three files should be unstable")
	}
}

func TestBuildOptions(t *testing.T) {
	cands := Build(sampleFiles(t), Options{Sigma: 1, MinConfidence: 0.3})
	m := byName(cands)
	temp := m["Temp"]
	if *temp.SpecMin != 348 || *temp.SpecMax != 352 {
		t.Errorf("Temp 1-sigma spec = %v..%v", *temp.SpecMin, *temp.SpecMax)
	}
	if m["Serial"].Unstable {
		t.Error("Serial at 0.333 should be stable with MinConfidence 0.3")
	}
}

func TestModalTieBreak(t *testing.T) {
	val, vals := modal(map[string]int{"B": 2, "A": 2, "C": 1})
	if val != "A" {
		t.Errorf("modal = %q, want A", val)
	}
	if len(vals) != 3 {
		t.Errorf("values = %v", vals)
	}
}

func TestBuildSingleNumericSample(t *testing.T) {
	cands := Build([]*dump.File{mustParse(t, "one.txt", "M\tP\tX\tint\t7\t")}, Options{})
	c := cands[0]
	if !c.Numeric || c.StdDev != 0 || math.IsNaN(c.Mean) {
		t.Errorf("single sample stats = %+v", c)
	}
	if c.SpecMin != nil {
		t.Error("one sample should not produce a stats range")
	}
	if c.Confidence != 1 {
		t.Errorf("confidence = %v", c.Confidence)
	}
}

func TestBuildRoundsStatistics(t *testing.T) {
	files := []*dump.File{
		mustParse(t, "a.txt", "PM1\tVac\tLevel\tint\t1\t"),
		mustParse(t, "b.txt", "PM1\tVac\tLevel\tint\t2\t"),
		mustParse(t, "c.txt", "PM1\tVac\tLevel\tint\t2\t"),
	}
	cands := Build(files, Options{})
	if len(cands) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(cands))
	}
	c := cands[0]
	got := []float64{c.Mean, c.StdDev, c.Min, c.Max, *c.SpecMin, *c.SpecMax}
	want := []float64{1.667, 0.577, 1, 2, -0.065, 3.399}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mean, stddev, min, max, spec range mismatch (-want +got):\n%s", diff)
	}

	items := ToChecklist(cands)
	if len(items) != 1 || *items[0].SpecMin != -0.065 || *items[0].SpecMax != 3.399 {
		t.Errorf("checklist item should carry the rounded range: %+v", items)
	}
}

func TestToChecklist(t *testing.T) {
	items := ToChecklist(Build(sampleFiles(t), Options{}))
	if len(items) != 2 {
		t.Fatalf("expected 2 stable items, got %d: %+v", len(items), items)
	}
	for _, it := range items {
		if err := it.Validate(); err != nil {
			t.Errorf("%s: %v", it.ItemName, err)
		}
	}
	if items[0].ItemName != "Mode" || items[0].CheckType != checklist.CheckExact || items[0].ExpectedValue != "Auto" {
		t.Errorf("Mode item = %+v", items[0])
	}
	if items[1].ItemName != "Temp" || items[1].CheckType != checklist.CheckRange {
		t.Errorf("Temp item = %+v", items[1])
	}
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(filepath.Join(t.TempDir(), "qc.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	typ, err := s.CreateEquipmentType(ctx, "ETCH", "")
	if err != nil {
		t.Fatal(err)
	}

	cands := Build(sampleFiles(t), Options{})
	n, err := Apply(ctx, s, typ.ID, cands, false)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if n != 2 {
		t.Errorf("Apply wrote %d rows, want 2", n)
	}
	n, err = Apply(ctx, s, typ.ID, cands, true)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("Apply with unstable wrote %d rows, want 4", n)
	}
	vals, err := s.ListDefaultValues(ctx, typ.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 4 {
		t.Errorf("stored %d default values", len(vals))
	}
}

package compare

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"qcdb/internal/dump"
	"qcdb/internal/store"
)

func file(name string, kv ...string) *dump.File {
	f := &dump.File{Name: name}
	for i := 0; i+1 < len(kv); i += 2 {
		f.Records = append(f.Records, dump.Record{ItemName: kv[i], Value: kv[i+1]})
	}
	return f
}

func f64(v float64) *float64 { return &v }

func TestEqual(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"1", "1.0", true},
		{" Auto ", "Auto", true},
		{"Auto", "auto", false},
		{"1e3", "1000", true},
		{"0x10", "16", false},
		{"", "0", false},
	}
	for _, tt := range tests {
		if got := Equal(tt.a, tt.b); got != tt.want {
			t.Errorf("Equal(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestFiles(t *testing.T) {
	m := Files(
		file("a.txt", "Temp", "350", "Mode", "Auto", "Note", ""),
		file("b.txt", "Temp", "350.0", "Mode", "Manual"),
		file("c.txt", "Temp", "350", "Mode", "Auto", "Note", "x", "Serial", "S1"),
	)
	want := &Matrix{
		Files: []string{"a.txt", "b.txt", "c.txt"},
		Rows: []Row{
			{ItemName: "Mode", Values: []string{"Auto", "Manual", "Auto"}, Present: []bool{true, true, true}, Differs: true},
			{ItemName: "Note", Values: []string{"", "", "x"}, Present: []bool{true, false, true}, Missing: []string{"b.txt"}},
			{ItemName: "Serial", Values: []string{"", "", "S1"}, Present: []bool{false, false, true}, Missing: []string{"a.txt", "b.txt"}},
			{ItemName: "Temp", Values: []string{"350", "350.0", "350"}, Present: []bool{true, true, true}},
		},
	}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("Files mismatch (-want +got):\n%s", diff)
	}

	diffs := m.OnlyDiffs()
	var names []string
	for _, r := range diffs.Rows {
		names = append(names, r.ItemName)
	}
	if diff := cmp.Diff([]string{"Mode", "Note", "Serial"}, names); diff != "" {
		t.Errorf("OnlyDiffs (-want +got):\n%s", diff)
	}
}

func TestAgainstDefault(t *testing.T) {
	defaults := []store.DefaultValue{
		{ItemName: "Temp", Value: "350", SpecMin: f64(340), SpecMax: f64(360)},
		{ItemName: "Pressure", Value: "5", SpecMax: f64(10)},
		{ItemName: "Mode", Value: "Auto"},
		{ItemName: "Serial", Value: "S1"},
	}
	rep := AgainstDefault(file("t.txt", "Temp", "355", "Pressure", "high", "Mode", "Auto", "Extra_Item", "1"), defaults)

	yes, no := true, false
	want := []DefaultRow{
		{ItemName: "Extra_Item", Value: "1", Status: StatusExtra},
		{ItemName: "Mode", Default: "Auto", Value: "Auto", Status: StatusMatch},
		{ItemName: "Pressure", Default: "5", Value: "high", Status: StatusMismatch, InRange: &no},
		{ItemName: "Serial", Default: "S1", Status: StatusMissing},
		{ItemName: "Temp", Default: "350", Value: "355", Status: StatusMatch, InRange: &yes},
	}
	if diff := cmp.Diff(want, rep.Rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
	wantCounts := map[Status]int{StatusMatch: 2, StatusMismatch: 1, StatusMissing: 1, StatusExtra: 1}
	if diff := cmp.Diff(wantCounts, rep.Counts); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
}

package checklist

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func f64(v float64) *float64 { return &v }
func str(s string) *string    { return &s }

// ---------------------------------------------------------------------------
// EffectiveCheck / SpecDisplay
// ---------------------------------------------------------------------------

func TestEffectiveCheckAndSpecDisplay(t *testing.T) {
	tests := []struct {
		name      string
		item      Item
		wantCheck CheckType
		wantSpec  string
	}{
		{"both bounds", Item{SpecMin: f64(0.5), SpecMax: f64(1.5)}, CheckRange, "0.5 ~ 1.5"},
		{"min only", Item{SpecMin: f64(3)}, CheckRange, ">= 3"},
		{"max only", Item{SpecMax: f64(100)}, CheckRange, "<= 100"},
		{"boolean literal", Item{ExpectedValue: "ON"}, CheckBoolean, "ON"},
		{"exact string", Item{ExpectedValue: "Auto"}, CheckExact, "Auto"},
		{"json set", Item{ExpectedValue: `["A","B"]`}, CheckExact, "one of [A, B]"},
		{"existence", Item{}, CheckExistence, "(exists)"},
		{"explicit overrides auto", Item{CheckType: CheckExistence, SpecMin: f64(1)}, CheckExistence, "(exists)"},
		{"explicit exact on boolean-looking value", Item{CheckType: CheckExact, ExpectedValue: "1"}, CheckExact, "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.item.EffectiveCheck(); got != tt.wantCheck {
				t.Errorf("EffectiveCheck() = %q, want %q", got, tt.wantCheck)
			}
			if got := tt.item.SpecDisplay(); got != tt.wantSpec {
				t.Errorf("SpecDisplay() = %q, want %q", got, tt.wantSpec)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Validate
// ---------------------------------------------------------------------------

func TestItemValidate(t *testing.T) {
	tests := []struct {
		name    string
		item    Item
		wantErr string
	}{
		{"ok range", Item{ItemName: "T", SpecMin: f64(1), SpecMax: f64(2)}, ""},
		{"ok existence", Item{ItemName: "T"}, ""},
		{"missing name", Item{ItemName: "  "}, "item_name is required"},
		{"min above max", Item{ItemName: "T", SpecMin: f64(5), SpecMax: f64(2)}, "greater than spec_max"},
		{"bad severity", Item{ItemName: "T", Severity: "URGENT"}, "unknown severity"},
		{"bad check type", Item{ItemName: "T", CheckType: "fuzzy"}, "unknown check type"},
		{"bad json set", Item{ItemName: "T", ExpectedValue: `["A",`}, "JSON string array"},
		{"range without bounds", Item{ItemName: "T", CheckType: CheckRange}, "needs spec_min or spec_max"},
		{"exact without expected", Item{ItemName: "T", CheckType: CheckExact}, "needs expected_value"},
		{"bad pattern", Item{ItemName: "T", Pattern: "Temp_[a"}, "invalid pattern"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.item.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestExceptionRequiresReason(t *testing.T) {
	e := Exception{ConfigurationID: 1, ItemID: 2, Reason: "   "}
	if err := e.Validate(); !errors.Is(err, ErrNoReason) {
		t.Fatalf("Validate() = %v, want ErrNoReason", err)
	}
	e.Reason = "heater removed on this variant"
	if err := e.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (Exception{Reason: "x"}).Validate(); err == nil {
		t.Fatal("expected error for exception without target")
	}
}

func TestOverrideApply(t *testing.T) {
	base := Item{ItemName: "T", SpecMin: f64(1), SpecMax: f64(2), ExpectedValue: "x"}
	got := Override{SpecMax: f64(5), ExpectedValue: str("y")}.Apply(base)
	if *got.SpecMin != 1 || *got.SpecMax != 5 || got.ExpectedValue != "y" {
		t.Errorf("Apply() = %+v", got)
	}
	if *base.SpecMax != 2 || base.ExpectedValue != "x" {
		t.Error("Apply must not mutate the original item")
	}
}

// ---------------------------------------------------------------------------
// Evaluate
// ---------------------------------------------------------------------------

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		item     Item
		value    string
		wantPass bool
		wantMsg  string
	}{
		{"range inside", Item{SpecMin: f64(0.5), SpecMax: f64(1.5)}, "1.0", true, "within spec"},
		{"range inclusive bound", Item{SpecMin: f64(0.5), SpecMax: f64(1.5)}, "1.5", true, "within spec"},
		{"range below", Item{SpecMin: f64(0.5), SpecMax: f64(1.5)}, "0.4", false, "below minimum 0.5"},
		{"range above", Item{SpecMin: f64(0.5), SpecMax: f64(1.5)}, " 2 ", false, "above maximum 1.5"},
		{"range not numeric", Item{SpecMin: f64(0.5)}, "abc", false, `value "abc" is not numeric`},
		{"range empty", Item{SpecMax: f64(3)}, "", false, "value is empty"},
		{"range NaN", Item{SpecMin: f64(0.5), SpecMax: f64(1.5)}, "NaN", false, `value "NaN" is not numeric`},
		{"range lowercase nan", Item{SpecMin: f64(0.5), SpecMax: f64(1.5)}, "nan", false, `value "nan" is not numeric`},
		{"range infinite without max", Item{SpecMin: f64(0.5)}, "+Inf", false, `value "+Inf" is not numeric`},
		{"exact case-insensitive", Item{ExpectedValue: "Auto"}, "AUTO", true, "matches expected value"},
		{"exact mismatch", Item{ExpectedValue: "Auto"}, "Manual", false, `expected "Auto", got "Manual"`},
		{"exact set member", Item{ExpectedValue: `["A","B"]`}, "b", true, "matches expected value"},
		{"exact set miss", Item{ExpectedValue: `["A","B"]`}, "C", false, "is not one of"},
		{"boolean normalized", Item{ExpectedValue: "ON"}, "1", true, "matches expected value"},
		{"boolean mismatch", Item{ExpectedValue: "true"}, "off", false, "expected true"},
		{"boolean garbage", Item{ExpectedValue: "true"}, "maybe", false, "not a boolean"},
		{"existence present", Item{}, "x", true, "value present"},
		{"existence blank", Item{}, "  ", false, "value is empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pass, msg := Evaluate(tt.item, tt.value)
			if pass != tt.wantPass {
				t.Errorf("pass = %v, want %v (msg %q)", pass, tt.wantPass, msg)
			}
			if !strings.Contains(msg, tt.wantMsg) {
				t.Errorf("msg = %q, want it to contain %q", msg, tt.wantMsg)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// YAML import / export
// ---------------------------------------------------------------------------

func TestYAMLRoundTripDefaultsActive(t *testing.T) {
	in := `version: 1
items:
  - item_name: Temp_Setpoint
    spec_min: 340
    spec_max: 360
    severity: critical
    required: true
  - item_name: Pump_Enable
    expected_value: "ON"
    is_active: false
`
	items, err := ReadYAML(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadYAML: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if !items[0].IsActive || items[1].IsActive {
		t.Errorf("is_active defaults wrong: %v %v", items[0].IsActive, items[1].IsActive)
	}

	var buf bytes.Buffer
	if err := WriteYAML(&buf, items); err != nil {
		t.Fatalf("WriteYAML: %v", err)
	}
	again, err := ReadYAML(&buf)
	if err != nil {
		t.Fatalf("ReadYAML(round trip): %v", err)
	}
	if diff := cmp.Diff(items, again); diff != "" {
		t.Errorf("round trip mismatch (-first +second):\n%s", diff)
	}
}

func TestReadYAMLRejectsDuplicatesAndBadItems(t *testing.T) {
	dup := "items:\n  - item_name: A\n  - item_name: A\n"
	if _, err := ReadYAML(strings.NewReader(dup)); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("expected duplicate error, got %v", err)
	}
	bad := "items:\n  - item_name: A\n    spec_min: 3\n    spec_max: 1\n"
	if _, err := ReadYAML(strings.NewReader(bad)); err == nil {
		t.Error("expected validation error for min > max")
	}
	future := "version: 2\nitems: []\n"
	if _, err := ReadYAML(strings.NewReader(future)); err == nil {
		t.Error("expected error for unsupported version")
	}
}

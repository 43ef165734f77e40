package checklist

// evaluate.go — the four comparison modes.

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Evaluate compares value against the item's effective check and returns the
// outcome with a human-readable message. It never returns an error: bad
// values fail with an explanatory message.
func Evaluate(it Item, value string) (pass bool, msg string) {
	v := strings.TrimSpace(value)
	switch it.EffectiveCheck() {
	case CheckRange:
		return evalRange(it, v)
	case CheckBoolean:
		return evalBoolean(it, v)
	case CheckExact:
		return evalExact(it, v)
	default:
		if v == "" {
			return false, "value is empty"
		}
		return true, "value present"
	}
}

func evalRange(it Item, v string) (bool, string) {
	if v == "" {
		return false, "value is empty"
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return false, fmt.Sprintf("value %q is not numeric", v)
	}
	if it.SpecMin != nil && f < *it.SpecMin {
		return false, fmt.Sprintf("%s is below minimum %s", formatFloat(f), formatFloat(*it.SpecMin))
	}
	if it.SpecMax != nil && f > *it.SpecMax {
		return false, fmt.Sprintf("%s is above maximum %s", formatFloat(f), formatFloat(*it.SpecMax))
	}
	return true, "within spec"
}

func evalExact(it Item, v string) (bool, string) {
	set, err := it.ExpectedValues()
	if err != nil {
		return false, err.Error()
	}
	for _, want := range set {
		if strings.EqualFold(strings.TrimSpace(want), v) {
			return true, "matches expected value"
		}
	}
	if len(set) == 1 {
		return false, fmt.Sprintf("expected %q, got %q", set[0], v)
	}
	return false, fmt.Sprintf("%q is not one of %q", v, set)
}

func evalBoolean(it Item, v string) (bool, string) {
	got, ok := parseBool(v)
	if !ok {
		return false, fmt.Sprintf("value %q is not a boolean", v)
	}
	set, err := it.ExpectedValues()
	if err != nil {
		return false, err.Error()
	}
	for _, s := range set {
		want, ok := parseBool(s)
		if !ok {
			continue
		}
		if want == got {
			return true, "matches expected value"
		}
	}
	return false, fmt.Sprintf("expected %s, got %q", it.SpecDisplay(), v)
}

// parseBool recognizes the boolean spellings found in equipment dumps.
func parseBool(s string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on", "enabled", "enable", "y", "t":
		return true, true
	case "0", "false", "no", "off", "disabled", "disable", "n", "f":
		return false, true
	}
	return false, false
}

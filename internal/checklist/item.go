// Package checklist holds the QC checklist model and the inspection engine
// that evaluates equipment dump values against it.
package checklist

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// ---------------------------------------------------------------------------
// Enumerations
// ---------------------------------------------------------------------------

// CheckType selects how a value is compared against an item's spec.
type CheckType string

const (
	CheckAuto      CheckType = "auto"
	CheckRange     CheckType = "range"
	CheckExact     CheckType = "exact"
	CheckBoolean   CheckType = "boolean"
	CheckExistence CheckType = "existence"
)

// ParseCheckType parses a check type name. Empty means auto.
func ParseCheckType(s string) (CheckType, error) {
	switch c := CheckType(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return CheckAuto, nil
	case CheckAuto, CheckRange, CheckExact, CheckBoolean, CheckExistence:
		return c, nil
	}
	return "", fmt.Errorf("unknown check type %q", s)
}

// Severity ranks how serious a failed item is.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// Severities lists all severities from most to least serious.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// ParseSeverity parses a severity name case-insensitively. Empty means MEDIUM.
func ParseSeverity(s string) (Severity, error) {
	switch v := Severity(strings.ToUpper(strings.TrimSpace(s))); v {
	case "":
		return SeverityMedium, nil
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return v, nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

// ---------------------------------------------------------------------------
// Item
// ---------------------------------------------------------------------------

// Item is one checklist entry. ItemName is the unique key.
type Item struct {
	ID            int64     `yaml:"id,omitempty"`
	ItemName      string    `yaml:"item_name"`
	SpecMin       *float64  `yaml:"spec_min,omitempty"`
	SpecMax       *float64  `yaml:"spec_max,omitempty"`
	ExpectedValue string    `yaml:"expected_value,omitempty"`
	CheckType     CheckType `yaml:"check_type,omitempty"`
	Category      string    `yaml:"category,omitempty"`
	Severity      Severity  `yaml:"severity,omitempty"`
	Pattern       string    `yaml:"pattern,omitempty"`
	Required      bool      `yaml:"required,omitempty"`
	IsActive      bool      `yaml:"is_active"`
	Description   string    `yaml:"description,omitempty"`
}

// Validate reports data problems that would make the item unusable.
func (it Item) Validate() error {
	if strings.TrimSpace(it.ItemName) == "" {
		return errors.New("item_name is required")
	}
	if it.SpecMin != nil && it.SpecMax != nil && *it.SpecMin > *it.SpecMax {
		return fmt.Errorf("%s: spec_min %s is greater than spec_max %s",
			it.ItemName, formatFloat(*it.SpecMin), formatFloat(*it.SpecMax))
	}
	if _, err := ParseCheckType(string(it.CheckType)); err != nil {
		return fmt.Errorf("%s: %w", it.ItemName, err)
	}
	if _, err := ParseSeverity(string(it.Severity)); err != nil {
		return fmt.Errorf("%s: %w", it.ItemName, err)
	}
	if _, err := it.ExpectedValues(); err != nil {
		return fmt.Errorf("%s: %w", it.ItemName, err)
	}
	if it.Pattern != "" && !doublestar.ValidatePattern(it.Pattern) {
		return fmt.Errorf("%s: invalid pattern %q", it.ItemName, it.Pattern)
	}
	switch it.EffectiveCheck() {
	case CheckRange:
		if it.SpecMin == nil && it.SpecMax == nil {
			return fmt.Errorf("%s: range check needs spec_min or spec_max", it.ItemName)
		}
	case CheckExact, CheckBoolean:
		if it.ExpectedValue == "" {
			return fmt.Errorf("%s: %s check needs expected_value", it.ItemName, it.EffectiveCheck())
		}
	}
	return nil
}

// Normalize canonicalizes the enumerated fields and trims the name. It
// returns the first parse error.
func (it *Item) Normalize() error {
	it.ItemName = strings.TrimSpace(it.ItemName)
	ct, err := ParseCheckType(string(it.CheckType))
	if err != nil {
		return err
	}
	sev, err := ParseSeverity(string(it.Severity))
	if err != nil {
		return err
	}
	it.CheckType, it.Severity = ct, sev
	return nil
}

// EffectiveCheck resolves CheckAuto from the spec fields that are set.
func (it Item) EffectiveCheck() CheckType {
	if it.CheckType != "" && it.CheckType != CheckAuto {
		return it.CheckType
	}
	switch {
	case it.SpecMin != nil || it.SpecMax != nil:
		return CheckRange
	case it.ExpectedValue != "":
		if _, ok := parseBool(it.ExpectedValue); ok {
			return CheckBoolean
		}
		return CheckExact
	default:
		return CheckExistence
	}
}

// SeverityOrDefault returns the item's severity in canonical upper case,
// MEDIUM when unset. Unknown names are upper-cased and kept.
func (it Item) SeverityOrDefault() Severity {
	sev, err := ParseSeverity(string(it.Severity))
	if err != nil {
		return Severity(strings.ToUpper(strings.TrimSpace(string(it.Severity))))
	}
	return sev
}

// ExpectedValues decodes ExpectedValue. A value starting with '[' is a JSON
// array of acceptable strings; anything else is a single acceptable value.
func (it Item) ExpectedValues() ([]string, error) {
	v := strings.TrimSpace(it.ExpectedValue)
	if v == "" {
		return nil, nil
	}
	if !strings.HasPrefix(v, "[") {
		return []string{v}, nil
	}
	var set []string
	if err := json.Unmarshal([]byte(v), &set); err != nil {
		return nil, fmt.Errorf("expected_value is not a JSON string array: %w", err)
	}
	return set, nil
}

// SpecDisplay renders the item's spec for reports.
func (it Item) SpecDisplay() string {
	switch it.EffectiveCheck() {
	case CheckRange:
		switch {
		case it.SpecMin != nil && it.SpecMax != nil:
			return formatFloat(*it.SpecMin) + " ~ " + formatFloat(*it.SpecMax)
		case it.SpecMin != nil:
			return ">= " + formatFloat(*it.SpecMin)
		case it.SpecMax != nil:
			return "<= " + formatFloat(*it.SpecMax)
		}
		return "(no bounds)"
	case CheckExact, CheckBoolean:
		set, err := it.ExpectedValues()
		if err != nil {
			return it.ExpectedValue
		}
		if len(set) == 1 {
			return set[0]
		}
		return "one of [" + strings.Join(set, ", ") + "]"
	default:
		return "(exists)"
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ---------------------------------------------------------------------------
// Per-configuration adjustments
// ---------------------------------------------------------------------------

// ErrNoReason is returned when an exception is recorded without a reason.
var ErrNoReason = errors.New("exception reason is required")

// Exception excludes a checklist item from inspection for one equipment
// configuration.
type Exception struct {
	ID              int64     `yaml:"id,omitempty"`
	ConfigurationID int64     `yaml:"configuration_id"`
	ItemID          int64     `yaml:"item_id"`
	ItemName        string    `yaml:"item_name,omitempty"`
	Reason          string    `yaml:"reason"`
	CreatedBy       string    `yaml:"created_by,omitempty"`
	CreatedAt       time.Time `yaml:"created_at"`
}

// Validate checks that the exception names its target and carries a reason.
func (e Exception) Validate() error {
	if e.ConfigurationID == 0 || e.ItemID == 0 {
		return errors.New("exception needs a configuration and an item")
	}
	if strings.TrimSpace(e.Reason) == "" {
		return ErrNoReason
	}
	return nil
}

// Override replaces an item's spec for one equipment configuration. Nil
// fields keep the item's own value.
type Override struct {
	ConfigurationID int64    `yaml:"configuration_id"`
	ItemID          int64    `yaml:"item_id"`
	SpecMin         *float64 `yaml:"spec_min,omitempty"`
	SpecMax         *float64 `yaml:"spec_max,omitempty"`
	ExpectedValue   *string  `yaml:"expected_value,omitempty"`
}

// Apply returns a copy of it with the override's fields substituted.
func (o Override) Apply(it Item) Item {
	if o.SpecMin != nil {
		it.SpecMin = o.SpecMin
	}
	if o.SpecMax != nil {
		it.SpecMax = o.SpecMax
	}
	if o.ExpectedValue != nil {
		it.ExpectedValue = *o.ExpectedValue
	}
	return it
}

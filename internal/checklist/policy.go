package checklist

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
)

// MatchMode controls how dump item names fall back to checklist names when
// there is no exact match.
type MatchMode string

const (
	// MatchExact accepts only identical names.
	MatchExact MatchMode = "exact"
	// MatchCaseInsensitive additionally accepts names equal after lowering.
	MatchCaseInsensitive MatchMode = "case_insensitive"
	// MatchContains additionally accepts substring containment in either
	// direction, after lowering.
	MatchContains MatchMode = "contains"
)

// VerdictMode selects how the overall verdict is derived.
type VerdictMode string

const (
	// VerdictStrict passes only when no item failed.
	VerdictStrict VerdictMode = "strict"
	// VerdictThreshold passes on pass rate and a severity-weighted
	// failure cap. Any CRITICAL failure fails the inspection.
	VerdictThreshold VerdictMode = "threshold"
)

// Policy configures matching and verdict rules.
type Policy struct {
	MatchMode           MatchMode            `yaml:"match_mode"`
	Verdict             VerdictMode          `yaml:"verdict"`
	PassRateThreshold   float64              `yaml:"pass_rate_threshold"`
	MaxWeightedFailures float64              `yaml:"max_weighted_failures"`
	SeverityWeights     map[Severity]float64 `yaml:"severity_weights,omitempty"`
	Ignore              []string             `yaml:"ignore,omitempty"`
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		MatchMode:           MatchCaseInsensitive,
		Verdict:             VerdictStrict,
		PassRateThreshold:   95,
		MaxWeightedFailures: 10,
		SeverityWeights: map[Severity]float64{
			SeverityCritical: 10,
			SeverityHigh:     5,
			SeverityMedium:   2,
			SeverityLow:      1,
		},
	}
}

// Validate rejects unknown modes, out-of-range thresholds and bad globs.
func (p Policy) Validate() error {
	switch p.MatchMode {
	case MatchExact, MatchCaseInsensitive, MatchContains:
	default:
		return fmt.Errorf("unknown match mode %q", p.MatchMode)
	}
	switch p.Verdict {
	case VerdictStrict, VerdictThreshold:
	default:
		return fmt.Errorf("unknown verdict mode %q", p.Verdict)
	}
	if p.PassRateThreshold < 0 || p.PassRateThreshold > 100 {
		return fmt.Errorf("pass_rate_threshold %v must be between 0 and 100", p.PassRateThreshold)
	}
	if p.MaxWeightedFailures < 0 {
		return fmt.Errorf("max_weighted_failures %v must not be negative", p.MaxWeightedFailures)
	}
	for sev := range p.SeverityWeights {
		if _, err := ParseSeverity(string(sev)); err != nil {
			return fmt.Errorf("severity_weights: %w", err)
		}
	}
	for _, g := range p.Ignore {
		if !doublestar.ValidatePattern(g) {
			return fmt.Errorf("invalid ignore pattern %q", g)
		}
	}
	return nil
}

// weight returns the failure weight for a severity. Severities absent from
// the map fall back to the defaults.
func (p Policy) weight(s Severity) float64 {
	if w, ok := p.SeverityWeights[s]; ok {
		return w
	}
	return DefaultPolicy().SeverityWeights[s]
}

// ignored reports whether a dump item name matches an ignore glob.
func (p Policy) ignored(name string) bool {
	for _, g := range p.Ignore {
		if ok, _ := doublestar.Match(g, name); ok {
			return true
		}
	}
	return false
}

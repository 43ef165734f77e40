// Package settings loads workspace configuration from settings.yaml.
//
// Every field is optional; a missing file or field falls back to Default().
// Item-name globs use doublestar syntax, so "PM*/Debug_**" and "Debug_*" both
// work.
package settings

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"qcdb/internal/checklist"
)

// FileName is the settings file name inside a workspace.
const FileName = "settings.yaml"

// Settings holds workspace configuration.
type Settings struct {
	Inspection Inspection `yaml:"inspection"`
	Watch      Watch      `yaml:"watch"`
	Report     Report     `yaml:"report"`
}

// Inspection configures matching and verdict rules.
type Inspection struct {
	// MatchMode is exact, case_insensitive or contains.
	MatchMode string `yaml:"match_mode,omitempty"`
	// Verdict is strict or threshold.
	Verdict             string             `yaml:"verdict,omitempty"`
	PassRateThreshold   *float64           `yaml:"pass_rate_threshold,omitempty"`
	MaxWeightedFailures *float64           `yaml:"max_weighted_failures,omitempty"`
	SeverityWeights     map[string]float64 `yaml:"severity_weights,omitempty"`
	// Ignore lists item-name globs that are never inspected.
	// Example: ["Debug_*", "*_Counter"]
	Ignore []string `yaml:"ignore,omitempty"`
	// Workers bounds parallel inspections of several dumps.
	Workers int `yaml:"workers,omitempty"`
}

// Watch configures the dump-directory watcher.
type Watch struct {
	Patterns []string `yaml:"patterns,omitempty"`
	Debounce string   `yaml:"debounce,omitempty"`
}

// Report configures report output.
type Report struct {
	// Format is text, markdown or yaml.
	Format string `yaml:"format,omitempty"`
}

// Default returns the built-in settings.
func Default() *Settings {
	p := checklist.DefaultPolicy()
	return &Settings{
		Inspection: Inspection{
			MatchMode:           string(p.MatchMode),
			Verdict:             string(p.Verdict),
			PassRateThreshold:   &p.PassRateThreshold,
			MaxWeightedFailures: &p.MaxWeightedFailures,
			Workers:             4,
		},
		Watch: Watch{
			Patterns: []string{"**/*.txt"},
			Debounce: "500ms",
		},
		Report: Report{Format: "text"},
	}
}

// Load reads settings from path. A missing file yields Default(). Fields
// absent from the file keep their defaults.
func Load(path string) (*Settings, error) {
	s := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Save writes settings to path.
func Save(path string, s *Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Validate checks enumerations, durations and globs.
func (s *Settings) Validate() error {
	if _, err := s.Policy(); err != nil {
		return err
	}
	if _, err := s.DebounceDuration(); err != nil {
		return err
	}
	for _, p := range s.Watch.Patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("watch: invalid pattern %q", p)
		}
	}
	switch s.Report.Format {
	case "", "text", "markdown", "yaml":
	default:
		return fmt.Errorf("report: unknown format %q", s.Report.Format)
	}
	if s.Inspection.Workers < 0 {
		return fmt.Errorf("inspection: workers must not be negative")
	}
	return nil
}

// Policy converts the inspection settings into a checklist policy.
func (s *Settings) Policy() (checklist.Policy, error) {
	p := checklist.DefaultPolicy()
	in := s.Inspection
	if in.MatchMode != "" {
		p.MatchMode = checklist.MatchMode(strings.ToLower(in.MatchMode))
	}
	if in.Verdict != "" {
		p.Verdict = checklist.VerdictMode(strings.ToLower(in.Verdict))
	}
	if in.PassRateThreshold != nil {
		p.PassRateThreshold = *in.PassRateThreshold
	}
	if in.MaxWeightedFailures != nil {
		p.MaxWeightedFailures = *in.MaxWeightedFailures
	}
	for name, w := range in.SeverityWeights {
		sev, err := checklist.ParseSeverity(name)
		if err != nil {
			return p, fmt.Errorf("inspection: severity_weights: %w", err)
		}
		p.SeverityWeights[sev] = w
	}
	p.Ignore = append([]string(nil), in.Ignore...)
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("inspection: %w", err)
	}
	return p, nil
}

// DebounceDuration parses Watch.Debounce. Empty means 500ms.
func (s *Settings) DebounceDuration() (time.Duration, error) {
	if s.Watch.Debounce == "" {
		return 500 * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s.Watch.Debounce)
	if err != nil {
		return 0, fmt.Errorf("watch: debounce: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("watch: debounce must not be negative")
	}
	return d, nil
}

// WatchMatches reports whether relPath (forward-slash, relative to the
// watched directory) matches a watch pattern. With no patterns every file
// matches.
func (s *Settings) WatchMatches(relPath string) bool {
	if len(s.Watch.Patterns) == 0 {
		return true
	}
	for _, p := range s.Watch.Patterns {
		if ok, _ := doublestar.Match(p, relPath); ok {
			return true
		}
	}
	return false
}

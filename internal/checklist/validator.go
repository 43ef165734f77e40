package checklist

// validator.go — QC inspection engine.
//
// Inspect walks every value of a dump in sorted name order, resolves the
// checklist item it belongs to, evaluates it and aggregates the outcome:
//
//	ignore glob → match item → exception? → override → evaluate → tally
//
// Required items that were never matched are reported as missing. The
// verdict is derived from the tallies according to the Policy.

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Input is everything one inspection needs.
type Input struct {
	// Source names the inspected dump (file name or path).
	Source string
	// ConfigurationID selects exceptions and overrides. Zero means none.
	ConfigurationID int64
	Items           []Item
	Exceptions      []Exception
	Overrides       []Override
	// Data is the flat ItemName → Value bag from the dump.
	Data map[string]string
}

// ItemResult is the outcome for one evaluated value.
type ItemResult struct {
	ItemID     int64     `yaml:"item_id"`
	ItemName   string    `yaml:"item_name"`
	FileItem   string    `yaml:"file_item"`
	Value      string    `yaml:"value"`
	Spec       string    `yaml:"spec"`
	Check      CheckType `yaml:"check"`
	Pass       bool      `yaml:"pass"`
	Message    string    `yaml:"message"`
	Severity   Severity  `yaml:"severity"`
	Category   string    `yaml:"category,omitempty"`
	Overridden bool      `yaml:"overridden,omitempty"`
	Missing    bool      `yaml:"missing,omitempty"`
}

// Tally counts passes and failures in one bucket.
type Tally struct {
	Passed int `yaml:"passed"`
	Failed int `yaml:"failed"`
}

// Summary aggregates an inspection.
type Summary struct {
	Total            int                `yaml:"total"`
	Matched          int                `yaml:"matched"`
	Unmatched        int                `yaml:"unmatched"`
	Excepted         int                `yaml:"excepted"`
	Ignored          int                `yaml:"ignored"`
	Missing          int                `yaml:"missing"`
	Passed           int                `yaml:"passed"`
	Failed           int                `yaml:"failed"`
	PassRate         float64            `yaml:"pass_rate"`
	WeightedFailures float64            `yaml:"weighted_failures"`
	BySeverity       map[Severity]Tally `yaml:"by_severity,omitempty"`
	ByCategory       map[string]Tally   `yaml:"by_category,omitempty"`
}

// Result is a complete inspection record.
type Result struct {
	ID              string       `yaml:"id"`
	Source          string       `yaml:"source"`
	ConfigurationID int64        `yaml:"configuration_id,omitempty"`
	InspectedAt     time.Time    `yaml:"inspected_at"`
	Verdict         VerdictMode  `yaml:"verdict_mode"`
	Pass            bool         `yaml:"pass"`
	Reasons         []string     `yaml:"reasons,omitempty"`
	Summary         Summary      `yaml:"summary"`
	Results         []ItemResult `yaml:"results"`
	Unmatched       []string     `yaml:"unmatched,omitempty"`
	Excepted        []string     `yaml:"excepted,omitempty"`
}

// Status returns "PASS" or "FAIL".
func (r *Result) Status() string {
	if r.Pass {
		return "PASS"
	}
	return "FAIL"
}

// Failures returns only the failed item results.
func (r *Result) Failures() []ItemResult {
	var out []ItemResult
	for _, ir := range r.Results {
		if !ir.Pass {
			out = append(out, ir)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Validator
// ---------------------------------------------------------------------------

// Validator runs inspections under a fixed Policy. It is safe for concurrent
// use; Inspect does not mutate the Validator.
type Validator struct {
	policy Policy
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures a Validator.
type Option func(*Validator)

// WithPolicy sets the matching and verdict policy.
func WithPolicy(p Policy) Option {
	return func(v *Validator) { v.policy = p }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(v *Validator) { v.logger = l }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// WithIDFunc overrides inspection ID generation, for tests.
func WithIDFunc(f func() string) Option {
	return func(v *Validator) { v.newID = f }
}

// NewValidator builds a Validator. It fails when the policy is invalid.
func NewValidator(opts ...Option) (*Validator, error) {
	v := &Validator{
		policy: DefaultPolicy(),
		logger: zap.NewNop(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, o := range opts {
		o(v)
	}
	if err := v.policy.Validate(); err != nil {
		return nil, fmt.Errorf("checklist policy: %w", err)
	}
	return v, nil
}

// Policy returns the validator's policy.
func (v *Validator) Policy() Policy { return v.policy }

// Inspect evaluates in.Data against the active checklist items.
func (v *Validator) Inspect(ctx context.Context, in Input) (*Result, error) {
	idx := newIndex(in.Items)

	excluded := make(map[int64]bool)
	overrides := make(map[int64]Override)
	if in.ConfigurationID != 0 {
		for _, e := range in.Exceptions {
			if e.ConfigurationID == in.ConfigurationID {
				excluded[e.ItemID] = true
			}
		}
		for _, o := range in.Overrides {
			if o.ConfigurationID == in.ConfigurationID {
				overrides[o.ItemID] = o
			}
		}
	}

	res := &Result{
		ID:              v.newID(),
		Source:          in.Source,
		ConfigurationID: in.ConfigurationID,
		InspectedAt:     v.now().UTC(),
		Verdict:         v.policy.Verdict,
	}
	sum := &res.Summary
	sum.Total = len(in.Data)

	names := make([]string, 0, len(in.Data))
	for name := range in.Data {
		names = append(names, name)
	}
	sort.Strings(names)

	seen := make(map[*Item]bool)
	exceptedSeen := make(map[*Item]bool)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if v.policy.ignored(name) {
			sum.Ignored++
			v.logger.Debug("ignored item", zap.String("item", name))
			continue
		}
		it := idx.find(name, v.policy.MatchMode)
		if it == nil {
			sum.Unmatched++
			res.Unmatched = append(res.Unmatched, name)
			continue
		}
		seen[it] = true
		if excluded[it.ID] {
			sum.Excepted++
			if !exceptedSeen[it] {
				exceptedSeen[it] = true
				res.Excepted = append(res.Excepted, it.ItemName)
			}
			v.logger.Debug("excepted item", zap.String("item", it.ItemName), zap.Int64("configuration_id", in.ConfigurationID))
			continue
		}
		sum.Matched++

		eff := *it
		o, overridden := overrides[it.ID]
		if overridden {
			eff = o.Apply(eff)
		}
		pass, msg := Evaluate(eff, in.Data[name])
		res.Results = append(res.Results, ItemResult{
			ItemID:     it.ID,
			ItemName:   it.ItemName,
			FileItem:   name,
			Value:      in.Data[name],
			Spec:       eff.SpecDisplay(),
			Check:      eff.EffectiveCheck(),
			Pass:       pass,
			Message:    msg,
			Severity:   it.SeverityOrDefault(),
			Category:   it.Category,
			Overridden: overridden,
		})
	}

	for _, it := range idx.items {
		if !it.Required || seen[it] || excluded[it.ID] {
			continue
		}
		sum.Missing++
		eff := *it
		if o, ok := overrides[it.ID]; ok {
			eff = o.Apply(eff)
		}
		res.Results = append(res.Results, ItemResult{
			ItemID:   it.ID,
			ItemName: it.ItemName,
			Spec:     eff.SpecDisplay(),
			Check:    eff.EffectiveCheck(),
			Message:  "missing from file",
			Severity: it.SeverityOrDefault(),
			Category: it.Category,
			Missing:  true,
		})
	}
	sort.SliceStable(res.Results, func(i, j int) bool {
		if res.Results[i].ItemName != res.Results[j].ItemName {
			return res.Results[i].ItemName < res.Results[j].ItemName
		}
		return res.Results[i].FileItem < res.Results[j].FileItem
	})
	sort.Strings(res.Excepted)

	v.tally(res)
	v.decide(res)

	v.logger.Info("inspection complete",
		zap.String("id", res.ID),
		zap.String("source", res.Source),
		zap.Int("matched", sum.Matched),
		zap.Int("failed", sum.Failed),
		zap.String("verdict", res.Status()))
	return res, nil
}

// tally fills pass/fail counts, breakdowns and derived rates.
func (v *Validator) tally(res *Result) {
	sum := &res.Summary
	sum.BySeverity = make(map[Severity]Tally)
	sum.ByCategory = make(map[string]Tally)
	for _, ir := range res.Results {
		sev := sum.BySeverity[ir.Severity]
		cat := sum.ByCategory[ir.Category]
		if ir.Pass {
			sum.Passed++
			sev.Passed++
			cat.Passed++
		} else {
			sum.Failed++
			sev.Failed++
			cat.Failed++
			sum.WeightedFailures += v.policy.weight(ir.Severity)
		}
		sum.BySeverity[ir.Severity] = sev
		sum.ByCategory[ir.Category] = cat
	}
	if evaluated := sum.Passed + sum.Failed; evaluated > 0 {
		sum.PassRate = float64(sum.Passed) * 100 / float64(evaluated)
	}
}

// decide sets Pass and Reasons according to the verdict mode.
func (v *Validator) decide(res *Result) {
	sum := res.Summary
	if sum.Passed+sum.Failed == 0 {
		res.Reasons = append(res.Reasons, "no checklist item matched the file")
		return
	}
	switch v.policy.Verdict {
	case VerdictThreshold:
		if sum.PassRate < v.policy.PassRateThreshold {
			res.Reasons = append(res.Reasons, fmt.Sprintf("pass rate %.1f%% is below threshold %.1f%%",
				sum.PassRate, v.policy.PassRateThreshold))
		}
		if sum.WeightedFailures > v.policy.MaxWeightedFailures {
			res.Reasons = append(res.Reasons, fmt.Sprintf("weighted failures %.1f exceed limit %.1f",
				sum.WeightedFailures, v.policy.MaxWeightedFailures))
		}
		if n := sum.BySeverity[SeverityCritical].Failed; n > 0 {
			res.Reasons = append(res.Reasons, fmt.Sprintf("%d critical item(s) failed", n))
		}
	default:
		if sum.Failed > 0 {
			res.Reasons = append(res.Reasons, fmt.Sprintf("%d item(s) failed", sum.Failed))
		}
	}
	res.Pass = len(res.Reasons) == 0
}

// ---------------------------------------------------------------------------
// Name matching
// ---------------------------------------------------------------------------

// index resolves dump item names to active checklist items.
type index struct {
	items    []*Item // active items sorted by ID
	exact    map[string]*Item
	lower    map[string]*Item
	patterns []*Item
}

func newIndex(items []Item) *index {
	idx := &index{
		exact: make(map[string]*Item),
		lower: make(map[string]*Item),
	}
	for i := range items {
		if !items[i].IsActive {
			continue
		}
		it := items[i]
		idx.items = append(idx.items, &it)
	}
	sort.SliceStable(idx.items, func(i, j int) bool { return idx.items[i].ID < idx.items[j].ID })
	for _, it := range idx.items {
		if _, dup := idx.exact[it.ItemName]; !dup {
			idx.exact[it.ItemName] = it
		}
		key := strings.ToLower(it.ItemName)
		if _, dup := idx.lower[key]; !dup {
			idx.lower[key] = it
		}
		if it.Pattern != "" {
			idx.patterns = append(idx.patterns, it)
		}
	}
	return idx
}

// find returns the item for a dump name, or nil. Exact match wins; then the
// mode's fallback; then item patterns. Among several fallback candidates the
// longest item name wins, ties going to the lowest ID.
func (idx *index) find(name string, mode MatchMode) *Item {
	if it, ok := idx.exact[name]; ok {
		return it
	}
	lname := strings.ToLower(name)
	if mode == MatchCaseInsensitive || mode == MatchContains {
		if it, ok := idx.lower[lname]; ok {
			return it
		}
	}
	var best *Item
	consider := func(it *Item) {
		if best == nil || len(it.ItemName) > len(best.ItemName) {
			best = it
		}
	}
	if mode == MatchContains && lname != "" {
		for _, it := range idx.items {
			lit := strings.ToLower(it.ItemName)
			if lit == "" {
				continue
			}
			if strings.Contains(lname, lit) || strings.Contains(lit, lname) {
				consider(it)
			}
		}
		if best != nil {
			return best
		}
	}
	for _, it := range idx.patterns {
		if ok, _ := doublestar.Match(it.Pattern, name); ok {
			consider(it)
		}
	}
	return best
}

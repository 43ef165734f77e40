// Package defaultdb derives Default DB candidates from several dumps of the
// same equipment type.
//
// Each item name seen in any dump becomes a Candidate carrying the modal
// value, how consistently it appears, and for numeric items summary
// statistics with a suggested spec range.
package defaultdb

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"qcdb/internal/checklist"
	"qcdb/internal/dump"
	"qcdb/internal/store"
)

// Options tunes candidate generation.
type Options struct {
	// Sigma is k in the suggested range mean ± k·stddev. Zero means 3.
	Sigma float64
	// MinConfidence flags candidates below it as unstable. Zero means 0.5.
	MinConfidence float64
	Logger        *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Sigma <= 0 {
		o.Sigma = 3
	}
	if o.MinConfidence <= 0 {
		o.MinConfidence = 0.5
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Candidate is one proposed Default DB entry.
type Candidate struct {
	ItemName    string   `yaml:"item_name"`
	Module      string   `yaml:"module,omitempty"`
	Part        string   `yaml:"part,omitempty"`
	Value       string   `yaml:"value"`
	Values      []string `yaml:"values"`
	Occurrences int      `yaml:"occurrences"`
	TotalFiles  int      `yaml:"total_files"`
	// Confidence is the share of files carrying the modal value. For items
	// with a spec range it is the share of files carrying the item at all.
	Confidence float64 `yaml:"confidence"`
	Unstable   bool    `yaml:"unstable,omitempty"`

	Numeric bool    `yaml:"numeric,omitempty"`
	Mean    float64 `yaml:"mean,omitempty"`
	StdDev  float64 `yaml:"stddev,omitempty"`
	Min     float64 `yaml:"min,omitempty"`
	Max     float64 `yaml:"max,omitempty"`

	SpecMin *float64 `yaml:"spec_min,omitempty"`
	SpecMax *float64 `yaml:"spec_max,omitempty"`
	// SpecSource is "dump" when the range came from MinSpec/MaxSpec columns
	// and "stats" when it was derived from the observed values.
	SpecSource string `yaml:"spec_source,omitempty"`
}

// observation accumulates one item across files.
type observation struct {
	first   dump.Record
	counts  map[string]int
	samples []float64
	numeric bool
	n       int
	specMin *float64
	specMax *float64
}

// Build computes candidates from files. Candidates are sorted by item name.
func Build(files []*dump.File, opts Options) []Candidate {
	opts = opts.withDefaults()
	obs := make(map[string]*observation)
	for _, f := range files {
		for name, value := range f.Values() {
			rec, _ := f.Lookup(name)
			o, ok := obs[name]
			if !ok {
				o = &observation{first: rec, counts: make(map[string]int), numeric: true}
				obs[name] = o
			}
			o.n++
			o.counts[value]++
			if v, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
				o.samples = append(o.samples, v)
			} else {
				o.numeric = false
			}
			if o.specMin == nil && rec.MinSpec != nil {
				o.specMin = rec.MinSpec
			}
			if o.specMax == nil && rec.MaxSpec != nil {
				o.specMax = rec.MaxSpec
			}
		}
	}

	out := make([]Candidate, 0, len(obs))
	for name, o := range obs {
		c := Candidate{
			ItemName:    name,
			Module:      o.first.Module,
			Part:        o.first.Part,
			Occurrences: o.n,
			TotalFiles:  len(files),
		}
		c.Value, c.Values = modal(o.counts)
		if o.numeric && len(o.samples) > 0 {
			c.Numeric = true
			mean, sd := stat.MeanStdDev(o.samples, nil)
			if len(o.samples) < 2 {
				sd = 0
			}
			c.Mean, c.StdDev = round3(mean), round3(sd)
			c.Min = round3(floats.Min(o.samples))
			c.Max = round3(floats.Max(o.samples))
			if o.specMin == nil && o.specMax == nil && len(o.samples) >= 2 {
				lo := round3(mean - opts.Sigma*sd)
				hi := round3(mean + opts.Sigma*sd)
				c.SpecMin, c.SpecMax, c.SpecSource = &lo, &hi, "stats"
			}
		}
		if o.specMin != nil || o.specMax != nil {
			c.SpecMin, c.SpecMax, c.SpecSource = o.specMin, o.specMax, "dump"
		}
		if c.TotalFiles > 0 {
			hits := o.counts[c.Value]
			if c.SpecSource != "" {
				hits = o.n
			}
			c.Confidence = round3(float64(hits) / float64(c.TotalFiles))
		}
		c.Unstable = c.Confidence < opts.MinConfidence
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemName < out[j].ItemName })

	unstable := 0
	for _, c := range out {
		if c.Unstable {
			unstable++
		}
	}
	opts.Logger.Debug("built default candidates",
		zap.Int("files", len(files)), zap.Int("items", len(out)), zap.Int("unstable", unstable))
	return out
}

// modal returns the most frequent value (ties broken by the smaller string)
// and all distinct values in sorted order.
func modal(counts map[string]int) (string, []string) {
	values := make([]string, 0, len(counts))
	for v := range counts {
		values = append(values, v)
	}
	sort.Strings(values)
	best := ""
	bestN := -1
	for _, v := range values {
		if counts[v] > bestN {
			best, bestN = v, counts[v]
		}
	}
	return best, values
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// ---------------------------------------------------------------------------
// Sinks
// ---------------------------------------------------------------------------

// Apply saves candidates as the Default DB of an equipment type. Unstable
// candidates are skipped unless includeUnstable is set. It returns the
// number of rows written.
func Apply(ctx context.Context, s *store.Store, typeID int64, cands []Candidate, includeUnstable bool) (int, error) {
	now := time.Now().UTC()
	var rows []store.DefaultValue
	for _, c := range cands {
		if c.Unstable && !includeUnstable {
			continue
		}
		rows = append(rows, store.DefaultValue{
			TypeID:          typeID,
			ItemName:        c.ItemName,
			Value:           c.Value,
			SpecMin:         c.SpecMin,
			SpecMax:         c.SpecMax,
			Module:          c.Module,
			Part:            c.Part,
			OccurrenceCount: c.Occurrences,
			TotalFiles:      c.TotalFiles,
			Confidence:      c.Confidence,
			UpdatedAt:       now,
		})
	}
	if err := s.UpsertDefaultValues(ctx, rows); err != nil {
		return 0, fmt.Errorf("apply default values: %w", err)
	}
	return len(rows), nil
}

// ToChecklist converts stable candidates into checklist items. Items with a
// spec range become range checks; the rest expect the modal value.
func ToChecklist(cands []Candidate) []checklist.Item {
	var items []checklist.Item
	for _, c := range cands {
		if c.Unstable {
			continue
		}
		it := checklist.Item{
			ItemName: c.ItemName,
			Category: c.Module,
			Severity: checklist.SeverityMedium,
			IsActive: true,
		}
		if c.SpecMin != nil || c.SpecMax != nil {
			it.CheckType = checklist.CheckRange
			it.SpecMin, it.SpecMax = c.SpecMin, c.SpecMax
		} else {
			it.CheckType = checklist.CheckExact
			it.ExpectedValue = c.Value
		}
		items = append(items, it)
	}
	return items
}

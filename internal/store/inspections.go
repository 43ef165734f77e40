package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"qcdb/internal/checklist"
)

// inspectedAtLayout is fixed-width so inspected_at sorts as text.
const inspectedAtLayout = "2006-01-02T15:04:05.000000000Z"

// InspectionRecord is the history row of one inspection.
type InspectionRecord struct {
	ID              string    `yaml:"id"`
	Source          string    `yaml:"source"`
	ConfigurationID int64     `yaml:"configuration_id,omitempty"`
	InspectedAt     time.Time `yaml:"inspected_at"`
	Pass            bool      `yaml:"pass"`
	Passed          int       `yaml:"passed"`
	Failed          int       `yaml:"failed"`
	PassRate        float64   `yaml:"pass_rate"`
}

// SaveInspection records a result. The full result is kept as YAML so it
// can be re-rendered later.
func (s *Store) SaveInspection(ctx context.Context, r *checklist.Result) error {
	blob, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal inspection: %w", err)
	}
	var cfg sql.NullInt64
	if r.ConfigurationID != 0 {
		cfg = sql.NullInt64{Int64: r.ConfigurationID, Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO inspections (id, source, configuration_id, inspected_at, pass, passed, failed, pass_rate, result_yaml)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Source, cfg, r.InspectedAt.UTC().Format(inspectedAtLayout), boolInt(r.Pass),
		r.Summary.Passed, r.Summary.Failed, r.Summary.PassRate, string(blob))
	if err != nil {
		return classify(err, "save inspection "+r.ID)
	}
	return nil
}

// ListInspections returns the most recent inspections first. limit <= 0
// returns all.
func (s *Store) ListInspections(ctx context.Context, limit int) ([]InspectionRecord, error) {
	q := `SELECT id, source, configuration_id, inspected_at, pass, passed, failed, pass_rate
		FROM inspections ORDER BY inspected_at DESC, id`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list inspections: %w", err)
	}
	defer rows.Close()
	var out []InspectionRecord
	for rows.Next() {
		var (
			rec  InspectionRecord
			cfg  sql.NullInt64
			at   string
			pass int
		)
		if err := rows.Scan(&rec.ID, &rec.Source, &cfg, &at, &pass, &rec.Passed, &rec.Failed, &rec.PassRate); err != nil {
			return nil, fmt.Errorf("scan inspection: %w", err)
		}
		rec.ConfigurationID = cfg.Int64
		rec.Pass = pass != 0
		if rec.InspectedAt, err = time.Parse(inspectedAtLayout, at); err != nil {
			return nil, fmt.Errorf("inspection %s time: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetInspection returns the full stored result of an inspection.
func (s *Store) GetInspection(ctx context.Context, id string) (*checklist.Result, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `SELECT result_yaml FROM inspections WHERE id = ?`, id).Scan(&blob)
	if err != nil {
		return nil, classify(err, "inspection "+id)
	}
	var r checklist.Result
	if err := yaml.Unmarshal([]byte(blob), &r); err != nil {
		return nil, fmt.Errorf("decode inspection %s: %w", id, err)
	}
	return &r, nil
}

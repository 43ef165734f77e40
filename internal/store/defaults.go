package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DefaultValue is the expected value of one parameter for an equipment type,
// as learned from reference dumps.
type DefaultValue struct {
	ID              int64     `yaml:"id,omitempty"`
	TypeID          int64     `yaml:"type_id"`
	ItemName        string    `yaml:"item_name"`
	Value           string    `yaml:"value"`
	SpecMin         *float64  `yaml:"spec_min,omitempty"`
	SpecMax         *float64  `yaml:"spec_max,omitempty"`
	Module          string    `yaml:"module,omitempty"`
	Part            string    `yaml:"part,omitempty"`
	OccurrenceCount int       `yaml:"occurrence_count"`
	TotalFiles      int       `yaml:"total_files"`
	Confidence      float64   `yaml:"confidence"`
	UpdatedAt       time.Time `yaml:"updated_at"`
}

// UpsertDefaultValues stores values for an equipment type in one
// transaction, replacing existing rows with the same item name.
func (s *Store) UpsertDefaultValues(ctx context.Context, values []DefaultValue) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin default values: %w", err)
	}
	defer tx.Rollback()
	now := time.Now().UTC()
	for _, v := range values {
		if v.UpdatedAt.IsZero() {
			v.UpdatedAt = now
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO default_values (type_id, item_name, value, spec_min, spec_max, module, part,
				occurrence_count, total_files, confidence, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (type_id, item_name) DO UPDATE SET
				value = excluded.value,
				spec_min = excluded.spec_min,
				spec_max = excluded.spec_max,
				module = excluded.module,
				part = excluded.part,
				occurrence_count = excluded.occurrence_count,
				total_files = excluded.total_files,
				confidence = excluded.confidence,
				updated_at = excluded.updated_at`,
			v.TypeID, v.ItemName, v.Value, nullFloat(v.SpecMin), nullFloat(v.SpecMax), v.Module, v.Part,
			v.OccurrenceCount, v.TotalFiles, v.Confidence, v.UpdatedAt.Format(time.RFC3339))
		if err != nil {
			return classify(err, "upsert default value "+v.ItemName)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit default values: %w", err)
	}
	return nil
}

// ListDefaultValues returns the Default DB of an equipment type ordered by
// item name.
func (s *Store) ListDefaultValues(ctx context.Context, typeID int64) ([]DefaultValue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type_id, item_name, value, spec_min, spec_max, module, part,
			occurrence_count, total_files, confidence, updated_at
		FROM default_values WHERE type_id = ? ORDER BY item_name`, typeID)
	if err != nil {
		return nil, fmt.Errorf("list default values: %w", err)
	}
	defer rows.Close()
	var out []DefaultValue
	for rows.Next() {
		var (
			v       DefaultValue
			lo, hi  sql.NullFloat64
			updated string
		)
		if err := rows.Scan(&v.ID, &v.TypeID, &v.ItemName, &v.Value, &lo, &hi, &v.Module, &v.Part,
			&v.OccurrenceCount, &v.TotalFiles, &v.Confidence, &updated); err != nil {
			return nil, fmt.Errorf("scan default value: %w", err)
		}
		v.SpecMin, v.SpecMax = floatPtr(lo), floatPtr(hi)
		if v.UpdatedAt, err = time.Parse(time.RFC3339, updated); err != nil {
			return nil, fmt.Errorf("default value %s updated_at: %w", v.ItemName, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// DeleteDefaultValues clears the Default DB of an equipment type and returns
// the number of rows removed.
func (s *Store) DeleteDefaultValues(ctx context.Context, typeID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM default_values WHERE type_id = ?`, typeID)
	if err != nil {
		return 0, fmt.Errorf("delete default values: %w", err)
	}
	return res.RowsAffected()
}

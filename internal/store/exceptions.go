package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"qcdb/internal/checklist"
)

// AddException excludes an item from inspection for a configuration. The
// reason is mandatory.
func (s *Store) AddException(ctx context.Context, e checklist.Exception) (*checklist.Exception, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO exceptions (configuration_id, item_id, reason, created_by, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.ConfigurationID, e.ItemID, strings.TrimSpace(e.Reason), e.CreatedBy, e.CreatedAt.Format(time.RFC3339))
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return nil, fmt.Errorf("exception target: %w", ErrNotFound)
		}
		return nil, classify(err, "add exception")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("add exception: %w", err)
	}
	s.logger.Info("exception added",
		zap.Int64("configuration_id", e.ConfigurationID),
		zap.Int64("item_id", e.ItemID),
		zap.String("created_by", e.CreatedBy))
	return s.getException(ctx, id)
}

const exceptionSelect = `
	SELECT e.id, e.configuration_id, e.item_id, i.item_name, e.reason, e.created_by, e.created_at
	FROM exceptions e JOIN checklist_items i ON i.id = e.item_id`

func scanException(sc interface{ Scan(...any) error }) (*checklist.Exception, error) {
	var (
		e       checklist.Exception
		created string
	)
	if err := sc.Scan(&e.ID, &e.ConfigurationID, &e.ItemID, &e.ItemName, &e.Reason, &e.CreatedBy, &created); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, created)
	if err != nil {
		return nil, fmt.Errorf("exception %d created_at: %w", e.ID, err)
	}
	e.CreatedAt = t
	return &e, nil
}

func (s *Store) getException(ctx context.Context, id int64) (*checklist.Exception, error) {
	e, err := scanException(s.db.QueryRowContext(ctx, exceptionSelect+` WHERE e.id = ?`, id))
	if err != nil {
		return nil, classify(err, fmt.Sprintf("exception %d", id))
	}
	return e, nil
}

// RemoveException deletes the exception for (configurationID, itemID).
func (s *Store) RemoveException(ctx context.Context, configurationID, itemID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM exceptions WHERE configuration_id = ? AND item_id = ?`, configurationID, itemID)
	if err != nil {
		return fmt.Errorf("remove exception: %w", err)
	}
	return requireAffected(res, "exception")
}

// ListExceptions returns the exceptions of one configuration ordered by item
// name. configurationID 0 lists all.
func (s *Store) ListExceptions(ctx context.Context, configurationID int64) ([]checklist.Exception, error) {
	q := exceptionSelect
	var args []any
	if configurationID != 0 {
		q += ` WHERE e.configuration_id = ?`
		args = append(args, configurationID)
	}
	q += ` ORDER BY e.configuration_id, i.item_name`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list exceptions: %w", err)
	}
	defer rows.Close()
	var out []checklist.Exception
	for rows.Next() {
		e, err := scanException(rows)
		if err != nil {
			return nil, fmt.Errorf("scan exception: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Overrides
// ---------------------------------------------------------------------------

// SetOverride stores or replaces the override for (configuration, item).
func (s *Store) SetOverride(ctx context.Context, o checklist.Override) error {
	if o.SpecMin != nil && o.SpecMax != nil && *o.SpecMin > *o.SpecMax {
		return fmt.Errorf("override spec_min is greater than spec_max")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO overrides (configuration_id, item_id, spec_min, spec_max, expected_value)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (configuration_id, item_id) DO UPDATE SET
			spec_min = excluded.spec_min,
			spec_max = excluded.spec_max,
			expected_value = excluded.expected_value`,
		o.ConfigurationID, o.ItemID, nullFloat(o.SpecMin), nullFloat(o.SpecMax), nullString(o.ExpectedValue))
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return fmt.Errorf("override target: %w", ErrNotFound)
		}
		return fmt.Errorf("set override: %w", err)
	}
	return nil
}

// RemoveOverride deletes the override for (configurationID, itemID).
func (s *Store) RemoveOverride(ctx context.Context, configurationID, itemID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM overrides WHERE configuration_id = ? AND item_id = ?`, configurationID, itemID)
	if err != nil {
		return fmt.Errorf("remove override: %w", err)
	}
	return requireAffected(res, "override")
}

// ListOverrides returns the overrides of one configuration.
// configurationID 0 lists all.
func (s *Store) ListOverrides(ctx context.Context, configurationID int64) ([]checklist.Override, error) {
	q := `SELECT configuration_id, item_id, spec_min, spec_max, expected_value FROM overrides`
	var args []any
	if configurationID != 0 {
		q += ` WHERE configuration_id = ?`
		args = append(args, configurationID)
	}
	q += ` ORDER BY configuration_id, item_id`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	defer rows.Close()
	var out []checklist.Override
	for rows.Next() {
		var (
			o      checklist.Override
			lo, hi sql.NullFloat64
			exp    sql.NullString
		)
		if err := rows.Scan(&o.ConfigurationID, &o.ItemID, &lo, &hi, &exp); err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		o.SpecMin, o.SpecMax, o.ExpectedValue = floatPtr(lo), floatPtr(hi), stringPtr(exp)
		out = append(out, o)
	}
	return out, rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"qcdb/internal/checklist"
)

const itemColumns = `id, item_name, spec_min, spec_max, expected_value, check_type,
	category, severity, pattern, required, is_active, description`

func scanItem(sc interface{ Scan(...any) error }) (*checklist.Item, error) {
	var (
		it               checklist.Item
		lo, hi           sql.NullFloat64
		check, sev       string
		required, active int
	)
	err := sc.Scan(&it.ID, &it.ItemName, &lo, &hi, &it.ExpectedValue, &check,
		&it.Category, &sev, &it.Pattern, &required, &active, &it.Description)
	if err != nil {
		return nil, err
	}
	it.SpecMin, it.SpecMax = floatPtr(lo), floatPtr(hi)
	it.CheckType = checklist.CheckType(check)
	it.Severity = checklist.Severity(sev)
	it.Required = required != 0
	it.IsActive = active != 0
	return &it, nil
}

const upsertItemSQL = `
	INSERT INTO checklist_items (item_name, spec_min, spec_max, expected_value, check_type,
		category, severity, pattern, required, is_active, description)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (item_name) DO UPDATE SET
		spec_min = excluded.spec_min,
		spec_max = excluded.spec_max,
		expected_value = excluded.expected_value,
		check_type = excluded.check_type,
		category = excluded.category,
		severity = excluded.severity,
		pattern = excluded.pattern,
		required = excluded.required,
		is_active = excluded.is_active,
		description = excluded.description`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertItem(ctx context.Context, ex execer, it checklist.Item) error {
	if err := it.Normalize(); err != nil {
		return fmt.Errorf("item %s: %w", it.ItemName, err)
	}
	if err := it.Validate(); err != nil {
		return err
	}
	_, err := ex.ExecContext(ctx, upsertItemSQL,
		it.ItemName, nullFloat(it.SpecMin), nullFloat(it.SpecMax), it.ExpectedValue, string(it.CheckType),
		it.Category, string(it.Severity), it.Pattern, boolInt(it.Required), boolInt(it.IsActive), it.Description)
	return classify(err, "upsert item "+it.ItemName)
}

// UpsertItem inserts an item or updates the existing item with the same
// ItemName. The stored item, with its ID, is returned.
func (s *Store) UpsertItem(ctx context.Context, it checklist.Item) (*checklist.Item, error) {
	if err := upsertItem(ctx, s.db, it); err != nil {
		return nil, err
	}
	return s.GetItemByName(ctx, strings.TrimSpace(it.ItemName))
}

// GetItem returns the item with the given ID.
func (s *Store) GetItem(ctx context.Context, id int64) (*checklist.Item, error) {
	it, err := scanItem(s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM checklist_items WHERE id = ?`, id))
	if err != nil {
		return nil, classify(err, fmt.Sprintf("item %d", id))
	}
	return it, nil
}

// GetItemByName returns the item with the given name.
func (s *Store) GetItemByName(ctx context.Context, name string) (*checklist.Item, error) {
	it, err := scanItem(s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM checklist_items WHERE item_name = ?`, name))
	if err != nil {
		return nil, classify(err, "item "+name)
	}
	return it, nil
}

// ListItems returns checklist items ordered by name.
func (s *Store) ListItems(ctx context.Context, activeOnly bool) ([]checklist.Item, error) {
	q := `SELECT ` + itemColumns + ` FROM checklist_items`
	if activeOnly {
		q += ` WHERE is_active = 1`
	}
	q += ` ORDER BY item_name`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()
	var out []checklist.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

// SetItemActive enables or disables an item without deleting it.
func (s *Store) SetItemActive(ctx context.Context, name string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE checklist_items SET is_active = ? WHERE item_name = ?`, boolInt(active), name)
	if err != nil {
		return fmt.Errorf("set item %s active: %w", name, err)
	}
	return requireAffected(res, "item "+name)
}

// DeleteItem removes an item together with its exceptions and overrides.
func (s *Store) DeleteItem(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM checklist_items WHERE item_name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete item %s: %w", name, err)
	}
	return requireAffected(res, "item "+name)
}

// ImportItems upserts items in one transaction. Either all are stored or
// none.
func (s *Store) ImportItems(ctx context.Context, items []checklist.Item) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()
	for _, it := range items {
		if err := upsertItem(ctx, tx, it); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	s.logger.Info("imported checklist items", zap.Int("count", len(items)))
	return len(items), nil
}

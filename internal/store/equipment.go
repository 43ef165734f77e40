package store

import (
	"context"
	"fmt"
	"strings"
)

// EquipmentType is a family of tools sharing one Default DB.
type EquipmentType struct {
	ID          int64  `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
}

// Configuration is a variant of an equipment type. Exceptions and overrides
// attach to configurations.
type Configuration struct {
	ID          int64  `yaml:"id"`
	TypeID      int64  `yaml:"type_id"`
	TypeName    string `yaml:"type_name"`
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
}

// CreateEquipmentType inserts a new equipment type.
func (s *Store) CreateEquipmentType(ctx context.Context, name, description string) (*EquipmentType, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("equipment type name is required")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO equipment_types (name, description) VALUES (?, ?)`, name, description)
	if err != nil {
		return nil, classify(err, "create equipment type "+name)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create equipment type: %w", err)
	}
	return &EquipmentType{ID: id, Name: name, Description: description}, nil
}

// GetEquipmentTypeByName looks an equipment type up by name.
func (s *Store) GetEquipmentTypeByName(ctx context.Context, name string) (*EquipmentType, error) {
	var t EquipmentType
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description FROM equipment_types WHERE name = ?`, name).
		Scan(&t.ID, &t.Name, &t.Description)
	if err != nil {
		return nil, classify(err, "equipment type "+name)
	}
	return &t, nil
}

// ListEquipmentTypes returns all equipment types ordered by name.
func (s *Store) ListEquipmentTypes(ctx context.Context) ([]EquipmentType, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description FROM equipment_types ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list equipment types: %w", err)
	}
	defer rows.Close()
	var out []EquipmentType
	for rows.Next() {
		var t EquipmentType
		if err := rows.Scan(&t.ID, &t.Name, &t.Description); err != nil {
			return nil, fmt.Errorf("scan equipment type: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CreateConfiguration adds a configuration to an equipment type.
func (s *Store) CreateConfiguration(ctx context.Context, typeID int64, name, description string) (*Configuration, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("configuration name is required")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO configurations (type_id, name, description) VALUES (?, ?, ?)`, typeID, name, description)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return nil, fmt.Errorf("equipment type %d: %w", typeID, ErrNotFound)
		}
		return nil, classify(err, "create configuration "+name)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create configuration: %w", err)
	}
	return s.GetConfiguration(ctx, id)
}

const configurationSelect = `
	SELECT c.id, c.type_id, t.name, c.name, c.description
	FROM configurations c JOIN equipment_types t ON t.id = c.type_id`

func scanConfiguration(sc interface{ Scan(...any) error }) (*Configuration, error) {
	var c Configuration
	if err := sc.Scan(&c.ID, &c.TypeID, &c.TypeName, &c.Name, &c.Description); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetConfiguration returns a configuration by ID.
func (s *Store) GetConfiguration(ctx context.Context, id int64) (*Configuration, error) {
	c, err := scanConfiguration(s.db.QueryRowContext(ctx, configurationSelect+` WHERE c.id = ?`, id))
	if err != nil {
		return nil, classify(err, fmt.Sprintf("configuration %d", id))
	}
	return c, nil
}

// FindConfiguration returns the configuration named name under typeName.
func (s *Store) FindConfiguration(ctx context.Context, typeName, name string) (*Configuration, error) {
	c, err := scanConfiguration(s.db.QueryRowContext(ctx,
		configurationSelect+` WHERE t.name = ? AND c.name = ?`, typeName, name))
	if err != nil {
		return nil, classify(err, fmt.Sprintf("configuration %s/%s", typeName, name))
	}
	return c, nil
}

// ListConfigurations returns configurations, optionally restricted to one
// equipment type (typeID 0 lists all).
func (s *Store) ListConfigurations(ctx context.Context, typeID int64) ([]Configuration, error) {
	q := configurationSelect
	var args []any
	if typeID != 0 {
		q += ` WHERE c.type_id = ?`
		args = append(args, typeID)
	}
	q += ` ORDER BY t.name, c.name`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list configurations: %w", err)
	}
	defer rows.Close()
	var out []Configuration
	for rows.Next() {
		c, err := scanConfiguration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan configuration: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

package checklist

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Document is the YAML file layout for checklist import and export.
type Document struct {
	Version int    `yaml:"version"`
	Items   []Item `yaml:"items"`
}

// ReadYAML decodes a checklist document and validates every item. Items
// that omit is_active are active.
func ReadYAML(r io.Reader) ([]Item, error) {
	var raw struct {
		Version int         `yaml:"version"`
		Items   []yaml.Node `yaml:"items"`
	}
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode checklist: %w", err)
	}
	if raw.Version > 1 {
		return nil, fmt.Errorf("unsupported checklist version %d", raw.Version)
	}
	items := make([]Item, 0, len(raw.Items))
	seen := make(map[string]bool)
	for i := range raw.Items {
		node := &raw.Items[i]
		var it Item
		if err := node.Decode(&it); err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
		if !hasKey(node, "is_active") {
			it.IsActive = true
		}
		if err := it.Normalize(); err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
		if err := it.Validate(); err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
		if seen[it.ItemName] {
			return nil, fmt.Errorf("item %d: duplicate item_name %q", i+1, it.ItemName)
		}
		seen[it.ItemName] = true
		items = append(items, it)
	}
	return items, nil
}

func hasKey(n *yaml.Node, key string) bool {
	if n.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return true
		}
	}
	return false
}

// WriteYAML encodes items as a version 1 checklist document.
func WriteYAML(w io.Writer, items []Item) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	doc := Document{Version: 1, Items: make([]Item, len(items))}
	for i, it := range items {
		it.ID = 0
		doc.Items[i] = it
	}
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode checklist: %w", err)
	}
	return enc.Close()
}

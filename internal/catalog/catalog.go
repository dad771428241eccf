// Package catalog models the input work items: the catalog entries that
// need copy decks generated. Items arrive as a JSON snapshot exported by
// the upstream catalog system; this package only reads them.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"copyforge/internal/deck"
)

// WorkItem is one catalog entry to generate copy for. ExistingFields
// carries sections already populated upstream; in augment mode those are
// preserved byte-for-byte and only the missing ones are generated.
type WorkItem struct {
	ID             string                        `json:"id"`
	DisplayName    string                        `json:"display_name"`
	SourceURL      string                        `json:"source_url"`
	ExistingFields map[deck.SectionKind]string `json:"existing_fields,omitempty"`
}

// MissingSections returns the section kinds not already populated, in
// canonical order.
func (w WorkItem) MissingSections() []deck.SectionKind {
	var out []deck.SectionKind
	for _, kind := range deck.AllKinds() {
		if v, ok := w.ExistingFields[kind]; !ok || v == "" {
			out = append(out, kind)
		}
	}
	return out
}

// Load reads a WorkItem snapshot file: a JSON array of items. Duplicate
// ids and items without an id or source URL are rejected up front so the
// pipeline never leases a malformed item.
func Load(path string) ([]WorkItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read items %s: %w", path, err)
	}

	var items []WorkItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse items %s: %w", path, err)
	}

	seen := make(map[string]bool, len(items))
	for i, item := range items {
		if item.ID == "" {
			return nil, fmt.Errorf("item %d: missing id", i)
		}
		if item.SourceURL == "" {
			return nil, fmt.Errorf("item %s: missing source_url", item.ID)
		}
		if seen[item.ID] {
			return nil, fmt.Errorf("duplicate item id %s", item.ID)
		}
		seen[item.ID] = true
		for kind := range item.ExistingFields {
			if !deck.Valid(kind) {
				return nil, fmt.Errorf("item %s: unknown section %q", item.ID, kind)
			}
		}
	}
	return items, nil
}

// Index maps items by id for random access during recovery passes.
func Index(items []WorkItem) map[string]WorkItem {
	m := make(map[string]WorkItem, len(items))
	for _, item := range items {
		m[item.ID] = item
	}
	return m
}

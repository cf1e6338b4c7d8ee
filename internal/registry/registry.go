// Package registry maps content categories to target mailing lists.
package registry

import (
	"errors"

	"sympabridge/internal/models"
)

// ErrUnknownCategory means no list is configured for the category.
// Not retryable: no later sweep will resolve it without operator action.
var ErrUnknownCategory = errors.New("no mailing list configured for category")

// Registry is a read-only category lookup, built once per run from the
// content store's registry table.
type Registry struct {
	entries map[string]models.ListRegistryEntry
}

func New(entries []models.ListRegistryEntry) *Registry {
	m := make(map[string]models.ListRegistryEntry, len(entries))
	for _, e := range entries {
		m[e.Category] = e
	}
	return &Registry{entries: m}
}

// Resolve returns the list entry for an exact category match. There is
// no default list.
func (r *Registry) Resolve(category string) (models.ListRegistryEntry, error) {
	e, ok := r.entries[category]
	if !ok {
		return models.ListRegistryEntry{}, ErrUnknownCategory
	}
	return e, nil
}

func (r *Registry) Len() int {
	return len(r.entries)
}

package config

import (
	"encoding/json"
	"fmt"

	"github.com/banshee-data/roadtrip/internal/subject"
)

// DefaultCatalogPath is the path to the restaurant catalog.
const DefaultCatalogPath = "config/restaurants.json"

// LoadCatalog loads the restaurant catalog, a JSON array of subjects.
// Entries must have a name and names must map to distinct keys; entries
// without a filter are kept and skipped by the pipeline.
func LoadCatalog(path string) ([]subject.Subject, error) {
	data, err := readJSONFile(path)
	if err != nil {
		return nil, err
	}

	var subjects []subject.Subject
	if err := json.Unmarshal(data, &subjects); err != nil {
		return nil, fmt.Errorf("failed to parse catalog JSON: %w", err)
	}
	if err := ValidateCatalog(subjects); err != nil {
		return nil, err
	}
	return subjects, nil
}

// ValidateCatalog checks that every subject has a usable, unique key.
func ValidateCatalog(subjects []subject.Subject) error {
	seen := make(map[string]string, len(subjects))
	for i, s := range subjects {
		key := s.Key()
		if !subject.ValidKey(key) {
			return fmt.Errorf("catalog entry %d (%q): name does not produce a key", i, s.Name)
		}
		if prev, dup := seen[key]; dup {
			return fmt.Errorf("catalog entries %q and %q share key %q", prev, s.Name, key)
		}
		seen[key] = s.Name
	}
	return nil
}

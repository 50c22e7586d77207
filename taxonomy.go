package tableseg

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// taxonomyFile is the on-disk taxonomy shape: either a flat list of
// entries or a map keyed by concept id.
type taxonomyFile struct {
	Concepts []ConceptEntry          `json:"concepts" yaml:"concepts"`
	ByID     map[string]ConceptEntry `json:"-" yaml:"-"`
}

// LoadTaxonomy reads a concept taxonomy from a YAML or JSON file. The
// format is chosen by extension (.yaml/.yml vs anything else). Entries are
// returned sorted by id so runs are deterministic regardless of map order
// in the source file.
func LoadTaxonomy(path string) ([]ConceptEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read taxonomy file")
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		return parseTaxonomyYAML(data)
	}
	return parseTaxonomyJSON(data)
}

func parseTaxonomyYAML(data []byte) ([]ConceptEntry, error) {
	var file taxonomyFile
	if err := yaml.Unmarshal(data, &file); err == nil && len(file.Concepts) > 0 {
		return finishTaxonomy(file.Concepts)
	}

	var byID map[string]ConceptEntry
	if err := yaml.Unmarshal(data, &byID); err != nil {
		return nil, errors.Wrap(err, "failed to parse taxonomy YAML")
	}
	return finishTaxonomy(entriesFromMap(byID))
}

func parseTaxonomyJSON(data []byte) ([]ConceptEntry, error) {
	var file taxonomyFile
	if err := json.Unmarshal(data, &file); err == nil && len(file.Concepts) > 0 {
		return finishTaxonomy(file.Concepts)
	}

	// The original taxonomy format is a JSON object keyed by concept id.
	var byID map[string]ConceptEntry
	if err := json.Unmarshal(data, &byID); err != nil {
		return nil, errors.Wrap(err, "failed to parse taxonomy JSON")
	}
	return finishTaxonomy(entriesFromMap(byID))
}

func entriesFromMap(byID map[string]ConceptEntry) []ConceptEntry {
	entries := make([]ConceptEntry, 0, len(byID))
	for id, entry := range byID {
		if entry.ID == "" {
			entry.ID = id
		}
		entries = append(entries, entry)
	}
	return entries
}

// finishTaxonomy validates ids and sorts entries for determinism.
func finishTaxonomy(entries []ConceptEntry) ([]ConceptEntry, error) {
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			return nil, errors.New("taxonomy entry missing id")
		}
		if seen[e.ID] {
			return nil, errors.Errorf("duplicate concept id %q", e.ID)
		}
		seen[e.ID] = true
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

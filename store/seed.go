package store

import (
	"fmt"
	"os"

	"github.com/akolotov/crhoy-bot/model"
	"gopkg.in/yaml.v3"
)

// seedDocument mirrors the on-disk shape of a Smart-Category seed file: a
// YAML mapping whose `categories` key holds a list of
// `{name, description, ignore}` records.
type seedDocument struct {
	Categories []seedEntry `yaml:"categories"`
}

type seedEntry struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Ignore      bool   `yaml:"ignore"`
}

// LoadSmartCategorySeed reads the static initial Smart-Category catalog from
// a YAML file (e.g. `config/smart_categories.seed.yaml`) for SeedSmartCategories
// to upsert at startup. Always includes the reserved __unknown__ sentinel,
// appended after the file's own entries so a seed file is never required to
// know about it.
func LoadSmartCategorySeed(path string) ([]model.SmartCategory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("store: read smart category seed %s: %w", path, err)
	}

	var doc seedDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("store: parse smart category seed %s: %w", path, err)
	}

	seeds := make([]model.SmartCategory, 0, len(doc.Categories)+1)
	for _, e := range doc.Categories {
		seeds = append(seeds, model.SmartCategory{Name: e.Name, Description: e.Description, Ignore: e.Ignore})
	}
	seeds = append(seeds, model.SmartCategory{Name: model.UnknownCategory, Description: "Reserved category for articles classified as unrelated to the focal region.", Ignore: true})
	return seeds, nil
}

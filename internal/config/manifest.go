package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ManifestEntry is one subscription in the startup manifest.
type ManifestEntry struct {
	Dataset  string   `yaml:"dataset"`
	Schema   string   `yaml:"schema"`
	Symbols  []string `yaml:"symbols"`
	SType    string   `yaml:"stype"`
	Snapshot bool     `yaml:"snapshot"`
}

// LoadManifest reads a YAML subscription manifest:
//
//	subscriptions:
//	  - dataset: EQUS.MINI
//	    schema: mbp-1
//	    symbols: [AAPL, MSFT]
//	    snapshot: true
func LoadManifest(path string) ([]ManifestEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read subscriptions manifest: %w", err)
	}

	var doc struct {
		Subscriptions []ManifestEntry `yaml:"subscriptions"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse subscriptions manifest: %w", err)
	}

	for i, entry := range doc.Subscriptions {
		if entry.Schema == "" {
			return nil, fmt.Errorf("subscriptions manifest entry %d: schema is required", i)
		}
		if len(entry.Symbols) == 0 {
			return nil, fmt.Errorf("subscriptions manifest entry %d: symbols are required", i)
		}
	}
	return doc.Subscriptions, nil
}

package faq

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var seedBank []byte

const seedSource = "seed"

type bankFile struct {
	Entries []Entry `yaml:"entries"`
}

// LoadBank reads an FAQ bank from a YAML file, or the built-in seed bank when
// path is empty.
func LoadBank(path string) ([]Entry, error) {
	if path == "" {
		return ParseBank(seedBank, seedSource)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading FAQ bank: %w", err)
	}
	return ParseBank(data, path)
}

// ParseBank decodes and validates a YAML FAQ bank. source is recorded on
// every entry.
func ParseBank(data []byte, source string) ([]Entry, error) {
	var bf bankFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return nil, fmt.Errorf("parsing FAQ bank %s: %w", source, err)
	}
	for i := range bf.Entries {
		if err := Validate(&bf.Entries[i]); err != nil {
			return nil, fmt.Errorf("FAQ bank %s entry %d: %w", source, i+1, err)
		}
		bf.Entries[i].Source = source
	}
	return bf.Entries, nil
}

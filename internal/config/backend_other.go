//go:build !darwin

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

func defaultDataDir() string {
	return filepath.Join(xdgDir("XDG_DATA_HOME", ".local", "share"), "storemate")
}

func apiKeyHint(account string) string {
	return " or " + secretsFilePath() + " (" + keychainService + "/" + account + ")"
}

// xdgDir resolves an XDG base directory, falling back to a path under $HOME
// and finally to the working directory.
func xdgDir(env string, fallback ...string) string {
	if dir := os.Getenv(env); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(append([]string{home}, fallback...)...)
}

func configFilePath() string {
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), "storemate", "config.yaml")
}

// yamlBackend keeps config as a flat YAML mapping of dotted keys.
type yamlBackend struct {
	path   string
	values map[string]string
}

func newPlatformBackend() Backend {
	b := &yamlBackend{path: configFilePath(), values: map[string]string{}}
	if err := b.load(); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] %v. Using default values.\n", err)
	}
	return b
}

func (b *yamlBackend) load() error {
	data, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not read config file %s: %w", b.path, err)
	}
	// Decode through yaml.Node so hand-written numbers and booleans
	// come back as their literal text.
	var doc map[string]yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("could not parse config file %s: %w", b.path, err)
	}
	for k, n := range doc {
		if n.Kind != yaml.ScalarNode {
			return fmt.Errorf("config key %s in %s is not a scalar", k, b.path)
		}
		b.values[k] = n.Value
	}
	return nil
}

func (b *yamlBackend) save() error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(b.values)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(b.path, data, 0o600)
}

func (b *yamlBackend) Lookup(key string) (string, bool, error) {
	v, ok := b.values[key]
	return v, ok, nil
}

func (b *yamlBackend) Store(key, raw string) error {
	b.values[key] = raw
	return b.save()
}

func (b *yamlBackend) Remove(key string) error {
	if _, ok := b.values[key]; !ok {
		return nil
	}
	delete(b.values, key)
	return b.save()
}

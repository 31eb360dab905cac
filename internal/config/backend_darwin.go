//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const defaultsDomain = "com.storemate.app"

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "storemate-data"
	}
	return filepath.Join(home, "Library", "Application Support", "storemate")
}

func apiKeyHint(account string) string {
	return " or macOS Keychain (service: " + keychainService + ", account: " + account + ")"
}

// defaultsBackend stores keys in the UserDefaults domain via the defaults CLI.
// Every value is written with -string.
type defaultsBackend struct {
	domain string
}

func newPlatformBackend() Backend {
	return defaultsBackend{domain: defaultsDomain}
}

func (b defaultsBackend) run(args ...string) (string, error) {
	out, err := exec.Command("defaults", args...).CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

func (b defaultsBackend) Lookup(key string) (string, bool, error) {
	out, err := b.run("read", b.domain, key)
	if err == nil {
		return out, true, nil
	}
	// defaults exits 1 when the domain or key does not exist.
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return "", false, nil
	}
	return "", false, fmt.Errorf("defaults read %s: %w: %s", key, err, out)
}

func (b defaultsBackend) Store(key, raw string) error {
	if out, err := b.run("write", b.domain, key, "-string", raw); err != nil {
		return fmt.Errorf("defaults write %s: %w: %s", key, err, out)
	}
	return nil
}

func (b defaultsBackend) Remove(key string) error {
	if _, ok, err := b.Lookup(key); err != nil || !ok {
		return err
	}
	if out, err := b.run("delete", b.domain, key); err != nil {
		return fmt.Errorf("defaults delete %s: %w: %s", key, err, out)
	}
	return nil
}

package config

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	keychainService = "storemate"
	apiTokenAccount = "api_token"
)

type platformKeychain struct{}

// NewKeychain returns the platform secret store: macOS Keychain on darwin,
// a 0600 JSON secrets file elsewhere.
func NewKeychain() Keychain {
	return platformKeychain{}
}

func (platformKeychain) Get(service, account string) (string, error) {
	v, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(v)), nil
}

func (platformKeychain) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}

// GetAPIToken returns the bearer token guarding the management API,
// generating and storing a new one on first use.
func GetAPIToken(kc Keychain) (string, error) {
	if tok, err := kc.Get(keychainService, apiTokenAccount); err == nil && tok != "" {
		return tok, nil
	}
	tok := strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := kc.Set(keychainService, apiTokenAccount, tok); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return tok, nil
}

// SetSecret stores a secret config key (e.g. deepseek_api_key) in the platform secret store.
func SetSecret(kc Keychain, key, value string) error {
	for _, s := range specs {
		if s.key == key && s.secret {
			return kc.Set(keychainService, key, value)
		}
	}
	return fmt.Errorf("unknown secret key: %q", key)
}

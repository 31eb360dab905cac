// Package profile manages the store profile: a small set of operator-managed
// facts injected into system prompts.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/kalambet/storemate/internal/storage"
)

// ProfileStore defines the storage operations the Manager needs.
// Implemented by storage.Store.
type ProfileStore interface {
	SetProfileKey(key, value string) error
	DeleteProfileKey(key string) error
	GetAllProfileKeys() (map[string]string, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Manager provides cached, structured access to the store profile in SQLite.
type Manager struct {
	store ProfileStore
	clock Clock
	ttl   time.Duration

	mu       sync.RWMutex
	cached   *Profile
	cachedAt time.Time
}

// NewManager creates a Manager with a 60-second cache TTL.
func NewManager(store ProfileStore) *Manager {
	return NewManagerWithClock(store, realClock{}, 60*time.Second)
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store ProfileStore, clock Clock, ttl time.Duration) *Manager {
	return &Manager{store: store, clock: clock, ttl: ttl}
}

// GetProfile reads the profile from storage (or cache). Returns a zero-value
// Profile on an empty store.
func (m *Manager) GetProfile() (Profile, error) {
	m.mu.RLock()
	if m.fresh() {
		p := clone(m.cached)
		m.mu.RUnlock()
		return p, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fresh() {
		return clone(m.cached), nil
	}

	keys, err := m.store.GetAllProfileKeys()
	if err != nil {
		return Profile{}, fmt.Errorf("loading profile keys: %w", err)
	}
	p := buildProfile(keys)
	m.cached = &p
	m.cachedAt = m.clock.Now()
	return clone(&p), nil
}

func (m *Manager) fresh() bool {
	return m.cached != nil && m.clock.Now().Before(m.cachedAt.Add(m.ttl))
}

// SetField persists one profile key and invalidates the cache. For notes the
// value is appended to the list; an empty value clears the key.
func (m *Manager) SetField(key, value string) error {
	if !slices.Contains(Keys, key) {
		return fmt.Errorf("unknown profile key %q (valid: %s)", key, strings.Join(Keys, ", "))
	}
	value = strings.TrimSpace(value)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cached = nil

	if value == "" {
		if err := m.store.DeleteProfileKey(key); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("clearing profile key %q: %w", key, err)
		}
		return nil
	}

	if key == KeyNotes {
		keys, err := m.store.GetAllProfileKeys()
		if err != nil {
			return fmt.Errorf("loading profile keys: %w", err)
		}
		notes := buildProfile(keys).Notes
		b, err := json.Marshal(append(notes, value))
		if err != nil {
			return fmt.Errorf("encoding notes: %w", err)
		}
		value = string(b)
	}

	if err := m.store.SetProfileKey(key, value); err != nil {
		return fmt.Errorf("setting profile key %q: %w", key, err)
	}
	return nil
}

// GetSummary returns the profile as prompt text, or "" when nothing is set.
func (m *Manager) GetSummary() (string, error) {
	p, err := m.GetProfile()
	if err != nil {
		return "", fmt.Errorf("getting profile for summary: %w", err)
	}
	return Summarize(p), nil
}

// maxSummaryChars caps the summary to stay under ~500 tokens (4 chars/token).
const maxSummaryChars = 2000

// Summarize renders p as one "label: value" line per set field.
func Summarize(p Profile) string {
	values := map[string]string{
		KeyName:     p.Name,
		KeyNiche:    p.Niche,
		KeyPlatform: p.Platform,
		KeyCurrency: p.Currency,
		KeyAudience: p.Audience,
		KeyShipping: p.Shipping,
		KeyReturns:  p.Returns,
		KeyNotes:    strings.Join(p.Notes, "; "),
	}
	var lines []string
	for _, k := range Keys {
		if v := values[k]; v != "" {
			lines = append(lines, labels[k]+": "+v)
		}
	}
	summary := strings.Join(lines, "\n")
	if len(summary) > maxSummaryChars {
		end := maxSummaryChars
		for end > 0 && !utf8.RuneStart(summary[end]) {
			end--
		}
		summary = summary[:end]
	}
	return summary
}

func clone(p *Profile) Profile {
	if p == nil {
		return Profile{}
	}
	cp := *p
	cp.Notes = slices.Clone(p.Notes)
	return cp
}

func buildProfile(keys map[string]string) Profile {
	p := Profile{
		Name:     keys[KeyName],
		Niche:    keys[KeyNiche],
		Platform: keys[KeyPlatform],
		Currency: keys[KeyCurrency],
		Audience: keys[KeyAudience],
		Shipping: keys[KeyShipping],
		Returns:  keys[KeyReturns],
	}
	if v, ok := keys[KeyNotes]; ok {
		if err := json.Unmarshal([]byte(v), &p.Notes); err != nil {
			slog.Warn("malformed profile key, skipping", "key", KeyNotes, "error", err)
		}
	}
	return p
}

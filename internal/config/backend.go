package config

// Backend persists non-secret config keys as raw strings. Typing happens
// when values are applied, so a backend never needs to know a key's kind.
type Backend interface {
	Lookup(key string) (raw string, ok bool, err error)
	Store(key, raw string) error
	Remove(key string) error
}

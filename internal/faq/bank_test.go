package faq

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadBank_Seed(t *testing.T) {
	entries, err := LoadBank("")
	if err != nil {
		t.Fatalf("LoadBank: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("seed bank has %d entries, want 5", len(entries))
	}
	seen := map[string]bool{}
	for _, e := range entries {
		if e.ID == "" || seen[e.ID] {
			t.Errorf("bad or duplicate id %q", e.ID)
		}
		seen[e.ID] = true
		if e.Source != "seed" {
			t.Errorf("%s: Source = %q, want seed", e.ID, e.Source)
		}
		if len(e.Examples) != 3 {
			t.Errorf("%s: %d examples, want 3", e.ID, len(e.Examples))
		}
	}
	if entries[2].Category != Products || entries[2].Intent != IntentProductManagement {
		t.Errorf("inventory entry = %s/%s", entries[2].Category, entries[2].Intent)
	}
}

func TestLoadBank_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.yaml")
	content := `entries:
  - question: מה שעות הפעילות של שירות הלקוחות?
    answer: א-ה 9:00-17:00
    intent: customer_service
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := LoadBank(path)
	if err != nil {
		t.Fatalf("LoadBank: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Category != Customers {
		t.Errorf("Category = %q, want customers (classified)", entries[0].Category)
	}
	if entries[0].Source != path {
		t.Errorf("Source = %q, want %q", entries[0].Source, path)
	}
}

func TestParseBank_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":         "entries: [",
		"missing answer":   "entries:\n  - question: q\n",
		"unknown category": "entries:\n  - question: q\n    answer: a\n    category: shipping\n",
	}
	for name, data := range tests {
		if _, err := ParseBank([]byte(data), "test"); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestEmbeddingRoundTrip(t *testing.T) {
	v := []float32{0.25, -1.5, 3}
	got, err := DecodeEmbedding(EncodeEmbedding(v))
	if err != nil {
		t.Fatal(err)
	}
	for i := range v {
		if got[i] != v[i] {
			t.Errorf("got[%d] = %v, want %v", i, got[i], v[i])
		}
	}
	if _, err := DecodeEmbedding([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}

package faq

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kalambet/storemate/internal/ollama"
)

func TestOllamaEmbedder_LoadSendsOneBatch(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if req.Model != "nomic-embed-text" {
			t.Errorf("model = %q", req.Model)
		}
		out := struct {
			Embeddings [][]float32 `json:"embeddings"`
		}{}
		for i := range req.Input {
			out.Embeddings = append(out.Embeddings, []float32{1, float32(i)})
		}
		json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	ix := NewIndex(NewOllamaEmbedder(ollama.New(srv.URL), "nomic-embed-text"), 0.5, 3)
	n, err := ix.Load(context.Background(), []Entry{
		{ID: "a", Question: "מה המחיר?", Answer: "x"},
		{ID: "b", Question: "איפה ההזמנה?", Answer: "y"},
		{ID: "c", Question: "כמה במלאי?", Answer: "z"},
	})
	if err != nil || n != 3 {
		t.Fatalf("Load = %d, %v; want 3, nil", n, err)
	}
	if requests != 1 {
		t.Errorf("embed requests = %d, want 1", requests)
	}
}

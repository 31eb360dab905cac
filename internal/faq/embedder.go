package faq

import (
	"context"
	"fmt"

	"github.com/kalambet/storemate/internal/ollama"
)

// OllamaEmbedder embeds text with a local Ollama model.
type OllamaEmbedder struct {
	client *ollama.Client
	model  string
}

// NewOllamaEmbedder creates an Embedder backed by the given Ollama client and model.
func NewOllamaEmbedder(client *ollama.Client, model string) *OllamaEmbedder {
	return &OllamaEmbedder{client: client, model: model}
}

// Embed returns the embedding vector for text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.client.Embed(ctx, e.model, text)
	if err != nil {
		return nil, fmt.Errorf("embedding with %s: %w", e.model, err)
	}
	return vec, nil
}

// EmbedBatch embeds texts in one request, preserving order.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := e.client.EmbedBatch(ctx, e.model, texts)
	if err != nil {
		return nil, fmt.Errorf("batch embedding with %s: %w", e.model, err)
	}
	return vecs, nil
}

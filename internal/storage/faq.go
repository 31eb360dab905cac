package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kalambet/storemate/internal/faq"
)

// SaveFAQEntry inserts or replaces an operator-added entry. The embedding is
// stored when present.
func (s *Store) SaveFAQEntry(ctx context.Context, e faq.Entry) error {
	keywords, err := json.Marshal(nonNil(e.Keywords))
	if err != nil {
		return fmt.Errorf("encoding keywords: %w", err)
	}
	examples, err := json.Marshal(nonNil(e.Examples))
	if err != nil {
		return fmt.Errorf("encoding examples: %w", err)
	}
	var blob []byte
	if len(e.Embedding) > 0 {
		blob = faq.EncodeEmbedding(e.Embedding)
	}
	now := s.now().Format(timeLayout)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO faq_entries (id, question, answer, category, intent, keywords, examples, embedding, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			question = excluded.question, answer = excluded.answer, category = excluded.category,
			intent = excluded.intent, keywords = excluded.keywords, examples = excluded.examples,
			embedding = excluded.embedding, updated_at = excluded.updated_at`,
		e.ID, e.Question, e.Answer, string(e.Category), string(e.Intent),
		string(keywords), string(examples), blob, now, now,
	)
	if err != nil {
		return fmt.Errorf("saving faq entry %s: %w", e.ID, err)
	}
	return nil
}

// UpdateFAQEmbedding stores the embedding of an existing entry.
func (s *Store) UpdateFAQEmbedding(ctx context.Context, id string, vec []float32) error {
	res, err := s.db.ExecContext(ctx, `UPDATE faq_entries SET embedding = ?, updated_at = ? WHERE id = ?`,
		faq.EncodeEmbedding(vec), s.now().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("updating embedding for %s: %w", id, err)
	}
	return checkAffected(res)
}

const faqColumns = `id, question, answer, category, intent, keywords, examples, embedding`

func (s *Store) GetFAQEntry(ctx context.Context, id string) (faq.Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+faqColumns+` FROM faq_entries WHERE id = ?`, id)
	e, err := scanFAQEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return faq.Entry{}, ErrNotFound
	}
	return e, err
}

// ListFAQEntries returns all operator-added entries in insertion order.
func (s *Store) ListFAQEntries(ctx context.Context) ([]faq.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+faqColumns+` FROM faq_entries ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing faq entries: %w", err)
	}
	defer rows.Close()

	var out []faq.Entry
	for rows.Next() {
		e, err := scanFAQEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) DeleteFAQEntry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM faq_entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting faq entry %s: %w", id, err)
	}
	return checkAffected(res)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFAQEntry(sc scanner) (faq.Entry, error) {
	var e faq.Entry
	var category, intent, keywords, examples string
	var blob []byte
	if err := sc.Scan(&e.ID, &e.Question, &e.Answer, &category, &intent, &keywords, &examples, &blob); err != nil {
		return faq.Entry{}, err
	}
	e.Category = faq.Category(category)
	e.Intent = faq.Intent(intent)
	e.Source = "operator"
	if err := json.Unmarshal([]byte(keywords), &e.Keywords); err != nil {
		return faq.Entry{}, fmt.Errorf("decoding keywords of %s: %w", e.ID, err)
	}
	if err := json.Unmarshal([]byte(examples), &e.Examples); err != nil {
		return faq.Entry{}, fmt.Errorf("decoding examples of %s: %w", e.ID, err)
	}
	if len(blob) > 0 {
		vec, err := faq.DecodeEmbedding(blob)
		if err != nil {
			return faq.Entry{}, fmt.Errorf("decoding embedding of %s: %w", e.ID, err)
		}
		e.Embedding = vec
	}
	return e, nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/storemate/internal/faq"
	"github.com/kalambet/storemate/internal/ingest"
)

func handleListFAQ(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries := deps.Index.Entries()
		if entries == nil {
			entries = []faq.Entry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

// FAQEntryResponse is an entry with its publication state: "indexed" once
// searchable, "pending" while its embedding job has not run.
type FAQEntryResponse struct {
	faq.Entry
	Status string `json:"status"`
}

func handleGetFAQ(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if e, ok := deps.Index.Get(id); ok {
			writeJSON(w, http.StatusOK, FAQEntryResponse{Entry: e, Status: "indexed"})
			return
		}
		e, err := deps.Store.GetFAQEntry(r.Context(), id)
		switch {
		case isNotFound(err):
			httpError(w, http.StatusNotFound, "not_found", "faq entry not found")
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load entry: %v", err)
		default:
			writeJSON(w, http.StatusOK, FAQEntryResponse{Entry: e, Status: "pending"})
		}
	}
}

func handleAddFAQ(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var e faq.Entry
		if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		e.ID = ""

		saved, err := ingest.Submit(r.Context(), deps.Store, e)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"id":       saved.ID,
			"category": string(saved.Category),
			"status":   "queued",
		})
	}
}

func handleSearchFAQ(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		if q == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}
		topK := parseIntParam(r, "top_k", deps.Index.TopK(), 50)
		threshold := parseFloatParam(r, "threshold", deps.Index.Threshold())

		matches, err := deps.Index.Search(r.Context(), q, topK, threshold)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "search failed: %v", err)
			return
		}
		if matches == nil {
			matches = []faq.Match{}
		}
		writeJSON(w, http.StatusOK, matches)
	}
}

func handleFAQStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Index.Stats())
	}
}

// handleDeleteFAQ removes an entry from storage and then from the live
// index. Storage goes first so the embed worker can see the delete.
// Bundled entries come back on restart.
func handleDeleteFAQ(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Store.DeleteFAQEntry(r.Context(), id)
		removed := deps.Index.Remove(id)
		switch {
		case err != nil && !isNotFound(err):
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete entry: %v", err)
			return
		case err != nil && !removed:
			httpError(w, http.StatusNotFound, "not_found", "faq entry not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

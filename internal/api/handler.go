package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/storemate/internal/cache"
	"github.com/kalambet/storemate/internal/conversation"
	"github.com/kalambet/storemate/internal/faq"
	"github.com/kalambet/storemate/internal/metrics"
	"github.com/kalambet/storemate/internal/pipeline"
	"github.com/kalambet/storemate/internal/profile"
	"github.com/kalambet/storemate/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Resolver answers operator messages.
type Resolver interface {
	Resolve(ctx context.Context, message, conversationID string) (pipeline.Resolution, error)
}

// Deps holds everything the HTTP and MCP layers need.
type Deps struct {
	Resolver Resolver
	Store    *storage.Store
	Index    *faq.Index
	Cache    *cache.Cache
	History  *conversation.Store
	Metrics  *metrics.Collector
	Profile  *profile.Manager
	Gatherer prometheus.Gatherer
	Token    string
}

// NewHandler returns the storemate HTTP API. /health and /metrics are open;
// everything else requires the bearer token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(RequireToken(deps.Token))

		r.Post("/v1/messages", handleMessage(deps))

		r.Get("/faq", handleListFAQ(deps))
		r.Post("/faq", handleAddFAQ(deps))
		r.Get("/faq/search", handleSearchFAQ(deps))
		r.Get("/faq/stats", handleFAQStats(deps))
		r.Get("/faq/{id}", handleGetFAQ(deps))
		r.Delete("/faq/{id}", handleDeleteFAQ(deps))

		r.Get("/stats", handleStats(deps))
		r.Delete("/cache", handleClearCache(deps))
		r.Get("/conversations/{id}", handleGetConversation(deps))
		r.Delete("/conversations/{id}", handleClearConversation(deps))

		r.Get("/profile", handleGetProfile(deps))
		r.Patch("/profile", handlePatchProfile(deps))
	})

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"faq_entries": deps.Index.Len(),
		})
	}
}

// MessageRequest is the body of POST /v1/messages.
type MessageRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

// MessageResponse is the reply to POST /v1/messages.
type MessageResponse struct {
	Response string `json:"response"`
	Source   string `json:"source"`
	TaskType string `json:"task_type,omitempty"`
	MatchID  string `json:"match_id,omitempty"`
}

func handleMessage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req MessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.ConversationID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "conversation_id is required")
			return
		}
		if req.Message == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}

		res, err := deps.Resolver.Resolve(r.Context(), req.Message, req.ConversationID)
		if err != nil && res.Text == "" {
			// The client went away; there is nobody to answer.
			if r.Context().Err() != nil {
				return
			}
			res.Text = pipeline.Apology
			res.Source = metrics.SourceFallback
		}

		writeJSON(w, http.StatusOK, MessageResponse{
			Response: res.Text,
			Source:   string(res.Source),
			TaskType: string(res.TaskType),
			MatchID:  res.MatchID,
		})
	}
}

func handleStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var samples []metrics.Sample
		if r.URL.Query().Has("limit") {
			limit := parseIntParam(r, "limit", 100, 10000)
			var err error
			samples, err = deps.Store.RecentSamples(r.Context(), limit)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to load samples: %v", err)
				return
			}
		} else {
			samples = deps.Metrics.Recent(0)
		}

		jobs, err := deps.Store.CountJobs(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count jobs: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"performance":    metrics.Summarize(samples),
			"cache":          deps.Cache.Stats(),
			"conversations":  len(deps.History.Conversations()),
			"messages_total": deps.Metrics.Total(),
			"faq_embed_jobs": jobs,
		})
	}
}

// ConversationResponse is the reply to GET /conversations/{id}.
type ConversationResponse struct {
	ID            string              `json:"id"`
	TurnCount     int                 `json:"turn_count"`
	LastTask      string              `json:"last_task,omitempty"`
	DominantTopic string              `json:"dominant_topic,omitempty"`
	Turns         []conversation.Turn `json:"turns"`
}

func handleGetConversation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		n := deps.History.Len(id)
		if n == 0 {
			httpError(w, http.StatusNotFound, "not_found", "conversation not found")
			return
		}
		limit := parseIntParam(r, "limit", 0, conversation.DefaultMaxTurns)
		sum := deps.History.Context(id, limit)
		writeJSON(w, http.StatusOK, ConversationResponse{
			ID:            id,
			TurnCount:     n,
			LastTask:      string(sum.LastTask),
			DominantTopic: string(sum.DominantTopic),
			Turns:         sum.Turns,
		})
	}
}

func handleClearCache(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Cache.ClearAll()
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	}
}

func handleClearConversation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		deps.Cache.Clear(id)
		deps.History.Clear(id)
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	}
}

func handleGetProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := deps.Profile.GetProfile()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get profile: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handlePatchProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var fields map[string]string
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		for key, value := range fields {
			if err := deps.Profile.SetField(key, value); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "failed to set field %q: %v", key, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	}
}

func parseIntParam(r *http.Request, name string, def, max int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 {
		return def
	}
	if max > 0 && v > max {
		return max
	}
	return v
}

func parseFloatParam(r *http.Request, name string, def float64) float64 {
	v, err := strconv.ParseFloat(r.URL.Query().Get(name), 64)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}

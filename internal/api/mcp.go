package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/storemate/internal/faq"
	"github.com/kalambet/storemate/internal/ingest"
	"github.com/kalambet/storemate/internal/metrics"
)

const mcpConversationID = "mcp"

// NewMCPServer creates an MCP server exposing the assistant, the FAQ bank and
// the performance report as tools.
func NewMCPServer(deps Deps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"storemate",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("storemate: Hebrew-speaking assistant for online store operators, backed by a curated FAQ bank."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask_store_assistant",
			mcp.WithDescription("Ask the store assistant a question. Answers come from the FAQ bank, the response cache or the language model."),
			mcp.WithString("message", mcp.Description("The operator's message, usually in Hebrew"), mcp.Required()),
			mcp.WithString("conversation_id", mcp.Description("Conversation to continue (default \"mcp\")")),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("search_faq",
			mcp.WithDescription("Search the FAQ bank by semantic similarity."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default: configured top-k)")),
		),
		mcpSearchFAQ(deps),
	)

	s.AddTool(
		mcp.NewTool("add_faq_entry",
			mcp.WithDescription("Queue a new FAQ entry for embedding and indexing."),
			mcp.WithString("question", mcp.Description("Canonical question"), mcp.Required()),
			mcp.WithString("answer", mcp.Description("Approved answer"), mcp.Required()),
			mcp.WithString("category", mcp.Description("One of: "+joinCategories()), mcp.Required()),
			mcp.WithString("intent", mcp.Description("Intent label (default general_inquiry)")),
			mcp.WithArray("examples", mcp.Description("Alternative phrasings of the question")),
		),
		mcpAddFAQ(deps),
	)

	s.AddTool(
		mcp.NewTool("performance_report",
			mcp.WithDescription("Summarize response times, cache hit rate and task distribution over recent messages."),
		),
		mcpPerformanceReport(deps),
	)

	s.AddTool(
		mcp.NewTool("set_store_profile",
			mcp.WithDescription("Update a field of the store profile used to personalize answers."),
			mcp.WithString("key", mcp.Description("Profile field (name, niche, platform, currency, audience, shipping, returns, notes)"), mcp.Required()),
			mcp.WithString("value", mcp.Description("Value to set; empty clears the field"), mcp.Required()),
		),
		mcpSetProfile(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"store://profile",
			"Store Profile",
			mcp.WithResourceDescription("Current store profile as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceProfile(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"store://faq/stats",
			"FAQ Bank Statistics",
			mcp.WithResourceDescription("Entry counts per category and intent"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceFAQStats(deps),
	)

	return s
}

func joinCategories() string {
	names := make([]string, len(faq.Categories))
	for i, c := range faq.Categories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

func mcpAsk(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}
		conv := req.GetString("conversation_id", mcpConversationID)
		if conv == "" {
			conv = mcpConversationID
		}

		res, err := deps.Resolver.Resolve(ctx, message, conv)
		if err != nil && res.Text == "" {
			return mcpError(fmt.Sprintf("resolution failed: %v", err)), nil
		}
		return mcpText(res.Text), nil
	}
}

func mcpSearchFAQ(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", deps.Index.TopK())
		if limit <= 0 {
			limit = deps.Index.TopK()
		}
		if limit > 50 {
			limit = 50
		}

		matches, err := deps.Index.Search(ctx, query, limit, deps.Index.Threshold())
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(matches) == 0 {
			return mcpText("[]"), nil
		}

		type matchResult struct {
			ID       string  `json:"id"`
			Question string  `json:"question"`
			Answer   string  `json:"answer"`
			Category string  `json:"category"`
			Score    float64 `json:"score"`
		}
		results := make([]matchResult, len(matches))
		for i, m := range matches {
			results[i] = matchResult{
				ID:       m.Entry.ID,
				Question: m.Entry.Question,
				Answer:   m.Entry.Answer,
				Category: string(m.Entry.Category),
				Score:    m.Score,
			}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAddFAQ(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}
		answer, err := req.RequireString("answer")
		if err != nil {
			return mcpError("answer is required"), nil
		}
		category, err := req.RequireString("category")
		if err != nil {
			return mcpError("category is required"), nil
		}

		e := faq.Entry{
			Question: question,
			Answer:   answer,
			Category: faq.Category(category),
			Intent:   faq.Intent(req.GetString("intent", string(faq.IntentGeneral))),
			Examples: req.GetStringSlice("examples", nil),
		}
		saved, err := ingest.Submit(ctx, deps.Store, e)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpText(fmt.Sprintf("Queued FAQ entry %s", saved.ID)), nil
	}
}

func mcpPerformanceReport(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		report := metrics.Summarize(deps.Metrics.Recent(0))
		b, err := json.Marshal(report)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal report: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSetProfile(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}
		value := req.GetString("value", "")

		if err := deps.Profile.SetField(key, value); err != nil {
			return mcpError(fmt.Sprintf("failed to set profile field: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Set %s = %s", key, value)), nil
	}
}

func mcpResourceProfile(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		p, err := deps.Profile.GetProfile()
		if err != nil {
			return nil, fmt.Errorf("failed to get profile: %w", err)
		}
		return jsonResource(req.Params.URI, p)
	}
}

func mcpResourceFAQStats(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return jsonResource(req.Params.URI, deps.Index.Stats())
	}
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

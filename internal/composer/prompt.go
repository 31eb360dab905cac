// Package composer builds the chat messages sent to the model for one
// operator message.
package composer

import (
	"fmt"
	"strings"

	"github.com/kalambet/storemate/internal/conversation"
	"github.com/kalambet/storemate/internal/faq"
	"github.com/kalambet/storemate/internal/llm"
	"github.com/kalambet/storemate/internal/task"
)

const defaultMaxContextTokens = 1500

// Composer assembles system prompts from the task template, the store
// profile and a budgeted conversation-context block.
type Composer struct {
	MaxContextTokens int
}

// New creates a Composer with the given token budget for the conversation
// block. If maxContextTokens <= 0, the default (1500) is used.
func New(maxContextTokens int) *Composer {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	return &Composer{MaxContextTokens: maxContextTokens}
}

// Build returns [system, user] for a model-answered message.
func (c *Composer) Build(t task.Type, ctx conversation.Summary, profileSummary, message string) []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: c.System(t, ctx, profileSummary)},
		{Role: llm.RoleUser, Content: message},
	}
}

// System returns the system prompt for task type t.
func (c *Composer) System(t task.Type, ctx conversation.Summary, profileSummary string) string {
	var sb strings.Builder
	sb.WriteString(persona)
	sb.WriteString("\n\n")
	sb.WriteString(focusFor(t))
	sb.WriteString("\n\n")
	sb.WriteString(noLiveData)
	c.writeShared(&sb, ctx, profileSummary)
	return sb.String()
}

// Grounded returns [system, user] asking the model to adapt an approved FAQ
// answer to the operator's wording and conversation.
func (c *Composer) Grounded(m faq.Match, ctx conversation.Summary, profileSummary, message string) []llm.Message {
	var sb strings.Builder
	sb.WriteString(persona)
	sb.WriteString("\n\n")
	sb.WriteString(groundingRules)
	sb.WriteString("\n\n[תשובה מאושרת מהמאגר]\n")
	fmt.Fprintf(&sb, "שאלה: %s\n", m.Entry.Question)
	sb.WriteString(m.Entry.Answer)
	sb.WriteString("\n\n")
	sb.WriteString(noLiveData)
	c.writeShared(&sb, ctx, profileSummary)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: sb.String()},
		{Role: llm.RoleUser, Content: message},
	}
}

func (c *Composer) writeShared(sb *strings.Builder, ctx conversation.Summary, profileSummary string) {
	if profileSummary != "" {
		sb.WriteString("\n\n[פרופיל החנות]\n")
		sb.WriteString(profileSummary)
	}
	if block := c.contextBlock(ctx); block != "" {
		sb.WriteString("\n\n")
		sb.WriteString(block)
	}
	sb.WriteString("\n\n")
	sb.WriteString(clarification)
}

// contextBlock renders the conversation summary. Turns are added newest
// first until the token budget runs out, then printed in order.
func (c *Composer) contextBlock(ctx conversation.Summary) string {
	if ctx.Empty() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("[הקשר השיחה]\n")
	if ctx.DominantTopic != "" {
		fmt.Fprintf(&sb, "נושא מרכזי: %s\n", topicLabel(ctx.DominantTopic))
	}
	if ctx.LastUserMessage != "" {
		fmt.Fprintf(&sb, "ההודעה הקודמת של המשתמש: %s\n", ctx.LastUserMessage)
	}

	remaining := c.MaxContextTokens - EstimateTokens(sb.String())
	var lines []string
	for i := len(ctx.Turns) - 1; i >= 0; i-- {
		line := formatTurn(ctx.Turns[i])
		tokens := EstimateTokens(line)
		if tokens > remaining {
			break
		}
		lines = append(lines, line)
		remaining -= tokens
	}
	if len(lines) > 0 {
		sb.WriteString("תורות אחרונים:\n")
		for i := len(lines) - 1; i >= 0; i-- {
			sb.WriteString(lines[i])
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatTurn(t conversation.Turn) string {
	who := "עוזר"
	if t.Speaker == conversation.User {
		who = "משתמש"
	}
	return fmt.Sprintf("- %s: %s\n", who, strings.TrimSpace(t.Text))
}

// EstimateTokens provides a rough token count using 4 bytes per token.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

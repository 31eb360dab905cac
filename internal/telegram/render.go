package telegram

import (
	"bytes"
	"log/slog"
	"regexp"
	"strings"

	"github.com/leonid-shevtsov/telegold"
	"github.com/yuin/goldmark"
)

// Telegram rejects messages over 4096 characters.
const maxMessageRunes = 4000

var markdown = goldmark.New(goldmark.WithRenderer(telegold.NewRenderer()))

// renderHTML converts Markdown to the HTML subset Telegram accepts. On
// failure the text is returned unchanged.
func renderHTML(text string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		slog.Warn("telegram: markdown conversion failed", "error", err)
		return text
	}
	return strings.TrimSpace(buf.String())
}

var (
	codeFence = regexp.MustCompile("```[a-zA-Z]*\\n([\\s\\S]*?)```")
	heading   = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	link      = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
)

// stripMarkdown drops Markdown markers for the plain-text fallback.
func stripMarkdown(text string) string {
	text = codeFence.ReplaceAllString(text, "$1")
	for _, m := range []string{"**", "__", "~~", "`"} {
		text = strings.ReplaceAll(text, m, "")
	}
	text = heading.ReplaceAllString(text, "")
	return link.ReplaceAllString(text, "$1 ($2)")
}

// splitMessage cuts text into chunks of at most limit runes, preferring
// paragraph, then line, then word boundaries.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > limit {
		cut := limit
		window := string(runes[:limit])
		for _, sep := range []string{"\n\n", "\n", " "} {
			if i := strings.LastIndex(window, sep); i > len(window)/2 {
				cut = len([]rune(window[:i+len(sep)]))
				break
			}
		}
		chunks = append(chunks, strings.TrimSpace(string(runes[:cut])))
		runes = []rune(strings.TrimSpace(string(runes[cut:])))
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

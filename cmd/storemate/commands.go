package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/kalambet/storemate/internal/api"
	"github.com/kalambet/storemate/internal/cache"
	"github.com/kalambet/storemate/internal/config"
	"github.com/kalambet/storemate/internal/faq"
	"github.com/kalambet/storemate/internal/metrics"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Ask the assistant a question",
	Long: `Ask the assistant a question through the running server.

Examples:
  storemate ask "איך אני יכול להגדיל את המכירות?"
  storemate ask --conversation shop-1 "ומה לגבי קופונים?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conv, _ := cmd.Flags().GetString("conversation")
		showSource, _ := cmd.Flags().GetBool("verbose")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/messages", api.MessageRequest{
			ConversationID: conv,
			Message:        strings.Join(args, " "),
		})
		if err != nil {
			return err
		}

		var result api.MessageResponse
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Response)
		if showSource {
			printStatus("Source", "%s", result.Source)
			printStatus("Task", "%s", result.TaskType)
			if result.MatchID != "" {
				printStatus("FAQ entry", "%s", result.MatchID)
			}
		}
		return nil
	},
}

func init() {
	askCmd.Flags().String("conversation", "cli", "conversation ID to continue")
	askCmd.Flags().BoolP("verbose", "v", false, "show where the answer came from")
}

// --- faq ---

var faqCmd = &cobra.Command{
	Use:   "faq",
	Short: "Manage the FAQ bank",
}

var faqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed FAQ entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		category, _ := cmd.Flags().GetString("category")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/faq")
		if err != nil {
			return err
		}

		var entries []faq.Entry
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}

		shown := 0
		for _, e := range entries {
			if category != "" && string(e.Category) != category {
				continue
			}
			fmt.Printf("%s  %-10s %s\n", colorize(colorCyan, shortID(e.ID)), e.Category, truncate(e.Question, 80))
			shown++
		}
		if shown == 0 {
			fmt.Println("No FAQ entries found.")
		}
		return nil
	},
}

var faqAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an FAQ entry",
	Long: `Add an FAQ entry. The entry is embedded in the background and becomes
searchable within a few seconds.

Examples:
  storemate faq add --question "איך מגדירים משלוח חינם?" --answer "..." --category customers
  storemate faq add --question "..." --answer "..." --examples "משלוח חינם,free shipping"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		question, _ := cmd.Flags().GetString("question")
		answer, _ := cmd.Flags().GetString("answer")
		category, _ := cmd.Flags().GetString("category")
		intent, _ := cmd.Flags().GetString("intent")
		examples, _ := cmd.Flags().GetString("examples")

		if question == "" || answer == "" {
			return fmt.Errorf("--question and --answer are required")
		}

		entry := faq.Entry{
			Question: question,
			Answer:   answer,
			Category: faq.Category(category),
			Intent:   faq.Intent(intent),
			Examples: splitList(examples),
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/faq", entry)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Queued FAQ entry %s (%s)", result["id"], result["category"])
		return nil
	},
}

var faqSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the FAQ bank by similarity",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/faq/search?q=%s&top_k=%d", url.QueryEscape(query), limit)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var matches []faq.Match
		if err := decodeJSON(resp, &matches); err != nil {
			return err
		}

		if len(matches) == 0 {
			fmt.Println("No matching entries.")
			return nil
		}

		for i, m := range matches {
			fmt.Printf("\n%s [score: %.3f] %s\n", colorize(colorBold, fmt.Sprintf("Match %d", i+1)), m.Score, m.Entry.Category)
			fmt.Printf("  ש: %s\n", m.Entry.Question)
			fmt.Printf("  ת: %s\n", truncate(m.Entry.Answer, 300))
		}
		return nil
	},
}

var faqStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show FAQ bank statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/faq/stats")
		if err != nil {
			return err
		}

		var stats faq.Stats
		if err := decodeJSON(resp, &stats); err != nil {
			return err
		}

		printStatus("Entries", "%d", stats.Total)
		printStatus("Examples per entry", "%.1f", stats.AvgExamples)
		for _, c := range faq.Categories {
			if n := stats.Categories[c]; n > 0 {
				printStatus("  "+string(c), "%d", n)
			}
		}
		return nil
	},
}

var faqDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Remove an FAQ entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/faq/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			if isStatus(err, http.StatusNotFound) {
				return fmt.Errorf("no FAQ entry with id %s", args[0])
			}
			return err
		}

		printSuccess("Deleted FAQ entry %s", args[0])
		return nil
	},
}

func init() {
	faqListCmd.Flags().String("category", "", "only show entries in this category")

	faqAddCmd.Flags().String("question", "", "canonical question")
	faqAddCmd.Flags().String("answer", "", "approved answer")
	faqAddCmd.Flags().String("category", "", "category (default: detected from the question)")
	faqAddCmd.Flags().String("intent", "", "intent label (default: general)")
	faqAddCmd.Flags().String("examples", "", "comma-separated alternative phrasings")

	faqSearchCmd.Flags().Int("limit", 3, "maximum number of results")

	faqCmd.AddCommand(faqListCmd, faqAddCmd, faqSearchCmd, faqStatsCmd, faqDeleteCmd)
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show response performance statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("persisted")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/stats"
		if limit > 0 {
			path = fmt.Sprintf("/stats?limit=%d", limit)
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var stats struct {
			Performance   metrics.Report `json:"performance"`
			Cache         cache.Stats    `json:"cache"`
			Conversations int            `json:"conversations"`
		}
		if err := decodeJSON(resp, &stats); err != nil {
			return err
		}

		printReport(stats.Performance)
		printStatus("Active conversations", "%d", stats.Conversations)
		printStatus("Cached responses", "%d (hit rate %.1f%%)", stats.Cache.Size, stats.Cache.HitRate*100)
		return nil
	},
}

func init() {
	statsCmd.Flags().Int("persisted", 0, "summarize the last N persisted samples instead of the live window")
}

func printReport(r metrics.Report) {
	if r.Count == 0 {
		fmt.Println("No messages recorded yet.")
		return
	}
	printStatus("Messages", "%d", r.Count)
	printStatus("Avg response time", "%s", r.AvgTotalTime)
	printStatus("Median response time", "%s", r.MedianTotalTime)
	printStatus("Max response time", "%s", r.MaxTotalTime)
	printStatus("Avg model time", "%s", r.AvgAPICallTime)
	printStatus("Cache hit rate", "%.1f%%", r.CacheHitRate*100)
	printStatus("Avg attempts", "%.2f", r.AvgAttempts)
	printStatus("Avg response length", "%.0f", r.AvgResponseLength)
	for _, k := range sortedKeys(r.Sources) {
		printStatus("  source "+k, "%d", r.Sources[k])
	}
	for _, k := range sortedKeys(r.TaskTypes) {
		printStatus("  task "+k, "%d", r.TaskTypes[k])
	}
}

// --- conversation ---

var conversationCmd = &cobra.Command{
	Use:   "conversation",
	Short: "Manage conversations",
}

var conversationClearCmd = &cobra.Command{
	Use:   "clear <id>",
	Short: "Forget a conversation's history and cached answers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/conversations/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Cleared conversation %s", args[0])
		return nil
	},
}

func init() {
	conversationCmd.AddCommand(conversationClearCmd)
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage the store profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the store profile as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/profile")
		if err != nil {
			return err
		}

		var profile any
		if err := decodeJSON(resp, &profile); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(profile)
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a store profile field (empty value clears it)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.patch(cmd.Context(), "/profile", map[string]string{key: value})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	profileCmd.AddCommand(profileShowCmd, profileSetCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		for _, k := range config.SecretKeys() {
			state := "not set"
			if secretSet(cfg, k) {
				state = "set"
			}
			fmt.Printf("  %s = <%s>\n", colorize(colorBold, k), state)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value and fall back to its default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret <key> <value>",
	Short: "Store an API key or bot token in the secret store",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetSecret(config.NewKeychain(), args[0], args[1]); err != nil {
			return err
		}
		printSuccess("Stored %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configUnsetCmd, configSetSecretCmd)
}

func secretSet(cfg config.Config, key string) bool {
	switch key {
	case "deepseek_api_key":
		return cfg.LLM.APIKey != ""
	case "telegram_token":
		return cfg.Telegram.Token != ""
	}
	return false
}

// --- helpers ---

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

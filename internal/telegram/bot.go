package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	processingNotice = "🤔 מעבד את הבקשה שלך... אנא המתן"

	welcomeTemplate = `שלום %s! 👋

אני העוזר החכם שלך לניהול החנות. אני יכול לעזור לך עם:
🛍️ ניהול מוצרים והזמנות
📊 דוחות מכירות וביצועים
🎯 שיווק וקידום מכירות
👥 שירות לקוחות
🔧 תמיכה טכנית

פשוט שאל אותי כל שאלה בנושאים אלו ואשמח לעזור!

לרשימת הפקודות הזמינות, הקלד /help`

	helpText = `הנה מה שאני יכול לעזור לך איתו:

📦 **ניהול מוצרים**
- מידע על מוצרים
- הוספת/עריכת מוצרים
- ניהול מלאי

🛒 **הזמנות**
- סטטוס הזמנות
- עדכון הזמנות
- מעקב משלוחים

📊 **דוחות וניתוח**
- דוחות מכירות
- ניתוח ביצועים
- מגמות ותובנות

🎯 **שיווק וקידום**
- יצירת מבצעים
- ניהול קופונים
- אסטרטגיות קידום

👥 **שירות לקוחות**
- טיפול בפניות
- החזרות וזיכויים
- שאלות נפוצות

פשוט שאל אותי כל שאלה בנושאים אלו ואשמח לעזור!`
)

// Handler answers a message within a conversation. It always returns text.
type Handler interface {
	Handle(ctx context.Context, message, conversationID string) string
}

// API is the part of the Bot API the bot uses.
type API interface {
	GetMe(ctx context.Context) (User, error)
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error)
	SendMessage(ctx context.Context, chatID int64, text, parseMode string) (Message, error)
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
}

// Bot polls for messages and answers each in its own goroutine, using the
// chat ID as the conversation ID.
type Bot struct {
	api         API
	handler     Handler
	logger      *slog.Logger
	pollTimeout time.Duration
	retryDelay  time.Duration

	offset int64
	wg     sync.WaitGroup
}

// NewBot creates a Bot.
func NewBot(api API, handler Handler) *Bot {
	return &Bot{
		api:         api,
		handler:     handler,
		logger:      slog.Default().With("component", "telegram"),
		pollTimeout: 30 * time.Second,
		retryDelay:  5 * time.Second,
	}
}

// Run polls until ctx is cancelled, then waits for in-flight messages.
func (b *Bot) Run(ctx context.Context) error {
	me, err := b.api.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("verifying bot token: %w", err)
	}
	b.logger.Info("telegram bot started", "username", me.Username)
	defer b.wg.Wait()

	for {
		if err := b.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.logger.Warn("getUpdates failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(b.retryDelay):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// poll fetches one batch of updates and dispatches their messages.
func (b *Bot) poll(ctx context.Context) error {
	updates, err := b.api.GetUpdates(ctx, b.offset, b.pollTimeout)
	if err != nil {
		return err
	}
	for _, u := range updates {
		if u.UpdateID >= b.offset {
			b.offset = u.UpdateID + 1
		}
		if u.Message == nil || u.Message.Text == "" {
			continue
		}
		msg := *u.Message
		b.wg.Go(func() { b.handleMessage(ctx, msg) })
	}
	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg Message) {
	chatID := msg.Chat.ID
	log := b.logger.With("chat_id", chatID)

	switch command(msg.Text) {
	case "/start":
		name := ""
		if msg.From != nil {
			name = msg.From.FirstName
		}
		b.reply(ctx, chatID, fmt.Sprintf(welcomeTemplate, name))
		return
	case "/help":
		b.reply(ctx, chatID, helpText)
		return
	}

	log.Info("message received", "length", len([]rune(msg.Text)))

	notice, err := b.api.SendMessage(ctx, chatID, processingNotice, "")
	if err != nil {
		log.Warn("failed to send processing notice", "error", err)
	}

	answer := b.handler.Handle(ctx, msg.Text, strconv.FormatInt(chatID, 10))

	if err == nil {
		if err := b.api.DeleteMessage(ctx, chatID, notice.MessageID); err != nil {
			log.Warn("failed to delete processing notice", "error", err)
		}
	}

	b.reply(ctx, chatID, answer)
	log.Info("answer sent", "length", len([]rune(answer)))
}

// command returns the bot command at the start of text, without a @botname
// suffix, or "" when text is not a command.
func command(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd, _, _ := strings.Cut(strings.Fields(text)[0], "@")
	return cmd
}

// reply sends text as Telegram HTML, chunked, retrying a chunk as plain text
// when Telegram rejects the markup.
func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	for _, chunk := range splitMessage(text, maxMessageRunes) {
		_, err := b.api.SendMessage(ctx, chatID, renderHTML(chunk), "HTML")
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.parseFailure() {
			_, err = b.api.SendMessage(ctx, chatID, stripMarkdown(chunk), "")
		}
		if err != nil {
			b.logger.Error("failed to send reply", "chat_id", chatID, "error", err)
			return
		}
	}
}

// Package pipeline resolves one operator message into a reply: cache check,
// FAQ similarity search, task classification, prompt composition, model call
// and finalization.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kalambet/storemate/internal/composer"
	"github.com/kalambet/storemate/internal/conversation"
	"github.com/kalambet/storemate/internal/faq"
	"github.com/kalambet/storemate/internal/llm"
	"github.com/kalambet/storemate/internal/logging"
	"github.com/kalambet/storemate/internal/metrics"
	"github.com/kalambet/storemate/internal/task"
)

// Apology is returned when a message cannot be answered. It never carries
// error details.
const Apology = "מצטער, נתקלתי בבעיה בעיבוד הבקשה שלך. אנא נסה שוב או נסח את השאלה בצורה אחרת."

// EmptyPrompt is returned for a blank message.
const EmptyPrompt = "לא קיבלתי שאלה. במה אפשר לעזור בניהול החנות? 🙂"

const defaultCallTimeout = 2 * time.Minute

// ResponseCache is the per-conversation response cache.
type ResponseCache interface {
	Get(conv, key string) (string, bool)
	Set(conv, key, value string)
}

// History is the per-conversation turn store.
type History interface {
	Append(id, userText, systemText string, taskType task.Type)
	LastTask(id string) task.Type
	Context(id string, limit int) conversation.Summary
}

// Searcher finds FAQ entries similar to a message.
type Searcher interface {
	SearchDefault(ctx context.Context, query string) ([]faq.Match, error)
}

// ModelCaller is the retrying model client.
type ModelCaller interface {
	Call(ctx context.Context, messages []llm.Message, params task.Params) (llm.Result, error)
}

// ProfileSource supplies the store profile injected into prompts.
type ProfileSource interface {
	GetSummary() (string, error)
}

// Deps are the collaborators of a Resolver. Profile and Recorder may be nil.
type Deps struct {
	Cache    ResponseCache
	History  History
	Index    Searcher
	Model    ModelCaller
	Composer *composer.Composer
	Profile  ProfileSource
	Recorder metrics.Recorder
}

// Options tune a Resolver.
type Options struct {
	// Model is the model identifier passed with every call.
	Model string
	// ContextTurns limits the turns summarized into the prompt.
	ContextTurns int
	// RefineFAQ rewrites matched FAQ answers through the model.
	RefineFAQ bool
	// CallTimeout bounds one model call including retries.
	CallTimeout time.Duration
}

// Resolution is the outcome of one message.
type Resolution struct {
	Text     string
	Source   metrics.Source
	TaskType task.Type
	// MatchID is the FAQ entry used, if any.
	MatchID string
	Sample  metrics.Sample
}

// Resolver runs the resolution state machine. It is safe for concurrent use.
type Resolver struct {
	deps Deps
	opts Options
	now  func() time.Time
}

// New creates a Resolver.
func New(deps Deps, opts Options) *Resolver {
	if deps.Composer == nil {
		deps.Composer = composer.New(0)
	}
	if deps.Recorder == nil {
		deps.Recorder = metrics.Nop{}
	}
	if opts.Model == "" {
		opts.Model = task.DefaultModel
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	return &Resolver{deps: deps, opts: opts, now: time.Now}
}

// Handle resolves message and always returns user-safe text.
func (r *Resolver) Handle(ctx context.Context, message, conversationID string) string {
	res, err := r.Resolve(ctx, message, conversationID)
	if err != nil && res.Text == "" {
		return Apology
	}
	return res.Text
}

// Resolve runs the pipeline for message in conversationID. On a model
// failure it returns the apology text together with the error. If ctx is
// done before finalization nothing is cached or appended to history.
func (r *Resolver) Resolve(ctx context.Context, message, conversationID string) (Resolution, error) {
	if strings.TrimSpace(message) == "" {
		return Resolution{Text: EmptyPrompt, Source: metrics.SourceFallback}, nil
	}

	ctx = logging.With(ctx, logging.From(ctx).With("conversation", conversationID))

	st := &state{
		start: r.now(),
		sample: metrics.Sample{
			ConversationID: conversationID,
		},
	}

	// CacheCheck
	if cached, ok := r.deps.Cache.Get(conversationID, message); ok {
		st.sample.CacheLookupTime = r.now().Sub(st.start)
		st.sample.CacheHit = true
		return r.finalize(ctx, st, message, conversationID, Resolution{
			Text:     cached,
			Source:   metrics.SourceCache,
			TaskType: r.deps.History.LastTask(conversationID),
		}, false)
	}
	st.sample.CacheLookupTime = r.now().Sub(st.start)

	summary := r.deps.History.Context(conversationID, r.opts.ContextTurns)
	taskType := task.Classify(message, r.deps.History.LastTask(conversationID))
	profileSummary := r.profileSummary()

	// SimilaritySearch
	matches, err := r.deps.Index.SearchDefault(ctx, message)
	if err != nil {
		r.deps.Recorder.Failure("similarity", err)
	}
	if len(matches) > 0 {
		best := matches[0]
		res := Resolution{
			Text:     best.Entry.Answer,
			Source:   metrics.SourceFAQ,
			TaskType: taskType,
			MatchID:  best.Entry.ID,
		}
		if r.opts.RefineFAQ {
			msgs := r.deps.Composer.Grounded(best, summary, profileSummary, message)
			result, err := r.invoke(ctx, st, msgs, taskType)
			switch {
			case err != nil:
				r.deps.Recorder.Failure("refine", err)
			case strings.TrimSpace(result.Text) != "":
				res.Text = result.Text
				res.Source = metrics.SourceFAQRefined
			}
		}
		logging.From(ctx).Debug("answered from faq", "entry", best.Entry.ID, "score", best.Score)
		return r.finalize(ctx, st, message, conversationID, res, true)
	}

	// Classify -> Compose -> Invoke
	msgs := r.deps.Composer.Build(taskType, summary, profileSummary, message)
	result, err := r.invoke(ctx, st, msgs, taskType)
	if err != nil {
		r.deps.Recorder.Failure("invoke", err)
		res := Resolution{Text: Apology, Source: metrics.SourceFallback, TaskType: task.Error}
		if ctx.Err() == nil {
			st.sample.TaskType = task.Error
			st.sample.Source = metrics.SourceFallback
			st.sample.ResponseLength = utf8.RuneCountInString(Apology)
			st.sample.TotalTime = r.now().Sub(st.start)
			st.sample.Timestamp = r.now()
			r.deps.Recorder.Record(ctx, st.sample)
		}
		res.Sample = st.sample
		return res, fmt.Errorf("resolving message: %w", err)
	}

	return r.finalize(ctx, st, message, conversationID, Resolution{
		Text:     result.Text,
		Source:   metrics.SourceModel,
		TaskType: taskType,
	}, true)
}

type state struct {
	start  time.Time
	sample metrics.Sample
}

// invoke calls the model detached from ctx cancellation so that a caller
// going away does not abort a call mid-backoff. The result is discarded by
// finalize if ctx is done by then.
func (r *Resolver) invoke(ctx context.Context, st *state, msgs []llm.Message, t task.Type) (llm.Result, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.CallTimeout)
	defer cancel()

	began := r.now()
	result, err := r.deps.Model.Call(callCtx, msgs, task.ParamsFor(t, r.opts.Model))
	st.sample.APICallTime += r.now().Sub(began)
	st.sample.AttemptCount += result.Attempts
	if err == nil && result.BelowMinimum {
		logging.From(ctx).Info("model answer below minimum length kept", "attempts", result.Attempts)
	}
	return result, err
}

func (r *Resolver) finalize(ctx context.Context, st *state, message, conversationID string, res Resolution, write bool) (Resolution, error) {
	if err := ctx.Err(); err != nil {
		return Resolution{}, fmt.Errorf("resolution abandoned: %w", err)
	}
	if write {
		r.deps.Cache.Set(conversationID, message, res.Text)
		r.deps.History.Append(conversationID, message, res.Text, res.TaskType)
	}

	st.sample.TaskType = res.TaskType
	st.sample.Source = res.Source
	st.sample.ResponseLength = utf8.RuneCountInString(res.Text)
	st.sample.TotalTime = r.now().Sub(st.start)
	st.sample.Timestamp = r.now()
	r.deps.Recorder.Record(ctx, st.sample)

	res.Sample = st.sample
	return res, nil
}

func (r *Resolver) profileSummary() string {
	if r.deps.Profile == nil {
		return ""
	}
	s, err := r.deps.Profile.GetSummary()
	if err != nil {
		r.deps.Recorder.Failure("profile", err)
		return ""
	}
	return s
}

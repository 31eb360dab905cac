// Package conversation keeps per-conversation turn history in memory and
// derives a context summary for prompt construction.
package conversation

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/storemate/internal/faq"
	"github.com/kalambet/storemate/internal/task"
)

// Speaker identifies who produced a turn.
type Speaker string

const (
	User   Speaker = "user"
	System Speaker = "system"
)

// DefaultMaxTurns bounds the history kept per conversation.
const DefaultMaxTurns = 200

// continuationTokens is the largest keyword-free user turn treated as a
// continuation of the current topic.
const continuationTokens = 5

// Turn is one message in a conversation. Turns are append-only; Seq is the
// turn's position since the conversation started and survives trimming.
type Turn struct {
	Seq     int       `json:"seq"`
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// Summary is the derived view of recent turns used to build prompts.
type Summary struct {
	Turns           []Turn         `json:"turns"`
	Topics          []faq.Category `json:"topics,omitempty"`
	DominantTopic   faq.Category   `json:"dominant_topic,omitempty"`
	LastUserMessage string         `json:"last_user_message,omitempty"`
	LastTask        task.Type      `json:"last_task,omitempty"`
}

// Empty reports whether the summary carries no history.
func (s Summary) Empty() bool {
	return len(s.Turns) == 0
}

type record struct {
	mu       sync.Mutex
	turns    []Turn
	nextSeq  int
	lastTask task.Type
}

// Store is an arena of conversation records keyed by conversation ID. The
// arena lock only guards lookup and creation; each record has its own lock.
type Store struct {
	maxTurns int
	now      func() time.Time

	mu      sync.RWMutex
	records map[string]*record
}

// NewStore creates a Store keeping at most maxTurns turns per conversation.
// maxTurns <= 0 uses DefaultMaxTurns.
func NewStore(maxTurns int) *Store {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Store{
		maxTurns: maxTurns,
		now:      time.Now,
		records:  make(map[string]*record),
	}
}

func (s *Store) record(id string, create bool) *record {
	s.mu.RLock()
	r := s.records[id]
	s.mu.RUnlock()
	if r != nil || !create {
		return r
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r = s.records[id]; r == nil {
		r = &record{}
		s.records[id] = r
	}
	return r
}

// Append records a user message and the system reply as one unit, together
// with the task type the message was resolved as.
func (s *Store) Append(id, userText, systemText string, taskType task.Type) {
	r := s.record(id, true)
	now := s.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns,
		Turn{Seq: r.nextSeq, Speaker: User, Text: userText, At: now},
		Turn{Seq: r.nextSeq + 1, Speaker: System, Text: systemText, At: now},
	)
	r.nextSeq += 2
	if over := len(r.turns) - s.maxTurns; over > 0 {
		// Drop whole pairs so history always starts with a user turn.
		over += over % 2
		r.turns = append([]Turn(nil), r.turns[over:]...)
	}
	if taskType != "" {
		r.lastTask = taskType
	}
}

// LastTask returns the task type of the most recent resolution in id.
func (s *Store) LastTask(id string) task.Type {
	r := s.record(id, false)
	if r == nil {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastTask
}

// Context summarizes the last limit turns of id. An unknown id yields an
// empty Summary. limit <= 0 means all turns.
func (s *Store) Context(id string, limit int) Summary {
	r := s.record(id, false)
	if r == nil {
		return Summary{}
	}

	r.mu.Lock()
	turns := r.turns
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	turns = append([]Turn(nil), turns...)
	lastTask := r.lastTask
	r.mu.Unlock()

	sum := Summary{Turns: turns, LastTask: lastTask}
	for _, t := range turns {
		if t.Speaker != User {
			continue
		}
		sum.LastUserMessage = t.Text
		if topic, ok := detectTopic(t.Text); ok {
			sum.Topics = append(sum.Topics, topic)
		}
	}
	sum.DominantTopic = dominant(sum.Topics)
	return sum
}

// detectTopic classifies a user turn. Short keyword-free turns continue the
// current topic and report ok=false.
func detectTopic(text string) (faq.Category, bool) {
	category, hits := faq.MatchCategory(text)
	if hits == 0 && len(strings.Fields(text)) <= continuationTokens {
		return "", false
	}
	return category, true
}

// dominant returns the most frequent topic; ties go to the earliest seen.
func dominant(topics []faq.Category) faq.Category {
	var (
		best      faq.Category
		bestCount int
		counts    = make(map[faq.Category]int)
	)
	for _, t := range topics {
		counts[t]++
	}
	for _, t := range topics {
		if counts[t] > bestCount {
			best, bestCount = t, counts[t]
		}
	}
	return best
}

// Len returns the number of turns stored for id.
func (s *Store) Len(id string) int {
	r := s.record(id, false)
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.turns)
}

// Clear forgets conversation id.
func (s *Store) Clear(id string) {
	s.mu.Lock()
	delete(s.records, id)
	s.mu.Unlock()
}

// Conversations returns the known conversation IDs, sorted.
func (s *Store) Conversations() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

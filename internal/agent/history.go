package agent

import (
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/nextlevelbuilder/localcoder/internal/providers"
)

// TrimPolicy decides which messages of a history survive between turns.
// Implementations return a suffix of msgs.
type TrimPolicy interface {
	Trim(msgs []providers.Message) []providers.Message
}

// TrimFunc adapts a function to TrimPolicy.
type TrimFunc func(msgs []providers.Message) []providers.Message

func (f TrimFunc) Trim(msgs []providers.Message) []providers.Message { return f(msgs) }

// KeepLastTurns keeps the last n user/assistant pairs (2n messages).
// n <= 0 keeps everything.
func KeepLastTurns(n int) TrimPolicy {
	return TrimFunc(func(msgs []providers.Message) []providers.Message {
		if n <= 0 || len(msgs) <= 2*n {
			return msgs
		}
		return msgs[len(msgs)-2*n:]
	})
}

// TokenBudget drops the oldest messages, a turn at a time, until the
// estimated token count fits maxTokens. The newest turn is always kept.
func TokenBudget(maxTokens int, counter TokenCounter) TrimPolicy {
	return TrimFunc(func(msgs []providers.Message) []providers.Message {
		if maxTokens <= 0 {
			return msgs
		}
		total := CountMessages(counter, msgs)
		for len(msgs) > 2 && total > maxTokens {
			drop := 2
			if msgs[0].Role != providers.RoleUser || msgs[1].Role != providers.RoleAssistant {
				drop = 1
			}
			total -= CountMessages(counter, msgs[:drop])
			msgs = msgs[drop:]
		}
		return msgs
	})
}

// Chain applies policies in order.
func Chain(policies ...TrimPolicy) TrimPolicy {
	return TrimFunc(func(msgs []providers.Message) []providers.Message {
		for _, p := range policies {
			if p != nil {
				msgs = p.Trim(msgs)
			}
		}
		return msgs
	})
}

// History is the conversation carried across chat turns: only user prompts
// and final assistant answers, never tool traffic.
type History struct {
	mu     sync.Mutex
	msgs   []providers.Message
	policy TrimPolicy
}

func NewHistory(policy TrimPolicy, msgs ...providers.Message) *History {
	h := &History{policy: policy}
	h.msgs = append(h.msgs, msgs...)
	return h
}

// AddTurn records one exchange and applies the trim policy.
func (h *History) AddTurn(user, assistant string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, UserMessage(user), AssistantMessage(assistant))
	if h.policy != nil {
		trimmed := h.policy.Trim(h.msgs)
		h.msgs = append([]providers.Message(nil), trimmed...)
	}
}

// Messages returns a copy of the history.
func (h *History) Messages() []providers.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]providers.Message(nil), h.msgs...)
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.msgs)
}

// Turns counts completed exchanges.
func (h *History) Turns() int { return h.Len() / 2 }

func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = nil
}

// Transcript builds the transcript for a new turn: the system prompt (if
// any), the history, then the new user message.
func (h *History) Transcript(system, user string) *Transcript {
	t := NewTranscript()
	if system != "" {
		t.Append(SystemMessage(system))
	}
	t.Append(h.Messages()...)
	t.Append(UserMessage(user))
	return t
}

// TokenCounter estimates how many tokens a text costs.
type TokenCounter interface {
	Count(text string) int
}

// perMessageTokens approximates the chat-template framing around each message.
const perMessageTokens = 4

// CountMessages estimates the tokens of msgs.
func CountMessages(counter TokenCounter, msgs []providers.Message) int {
	if counter == nil {
		counter = EstimateCounter{}
	}
	total := 0
	for _, m := range msgs {
		total += perMessageTokens + counter.Count(m.Content)
	}
	return total
}

// EstimateCounter counts one token per four characters.
type EstimateCounter struct{}

func (EstimateCounter) Count(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + charsPerTokenEstimate - 1) / charsPerTokenEstimate
}

// TiktokenCounter counts with the cl100k_base BPE. The encoding is loaded on
// first use; when it cannot be loaded (no cache, offline) the character
// estimate is used instead.
type TiktokenCounter struct {
	once     sync.Once
	encoding *tiktoken.Tiktoken
}

func NewTiktokenCounter() *TiktokenCounter {
	return &TiktokenCounter{}
}

func (c *TiktokenCounter) Count(text string) int {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			slog.Debug("agent: tiktoken unavailable, estimating tokens", "error", err)
			return
		}
		c.encoding = enc
	})
	if c.encoding == nil {
		return EstimateCounter{}.Count(text)
	}
	return len(c.encoding.Encode(text, nil, nil))
}

package agent

import "github.com/nextlevelbuilder/localcoder/internal/providers"

// Transcript is the ordered message sequence of one conversation. The loop
// only appends to it; trimming is the caller's job between invocations.
type Transcript struct {
	msgs []providers.Message
}

func NewTranscript(msgs ...providers.Message) *Transcript {
	t := &Transcript{}
	t.msgs = append(t.msgs, msgs...)
	return t
}

func (t *Transcript) Append(msgs ...providers.Message) {
	t.msgs = append(t.msgs, msgs...)
}

// Messages returns a copy of the messages.
func (t *Transcript) Messages() []providers.Message {
	out := make([]providers.Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}

func (t *Transcript) Len() int {
	if t == nil {
		return 0
	}
	return len(t.msgs)
}

// Last returns the final message, if any.
func (t *Transcript) Last() (providers.Message, bool) {
	if t.Len() == 0 {
		return providers.Message{}, false
	}
	return t.msgs[len(t.msgs)-1], true
}

// LastUser returns the content of the most recent user message.
func (t *Transcript) LastUser() string {
	for i := len(t.msgs) - 1; i >= 0; i-- {
		if t.msgs[i].Role == providers.RoleUser {
			return t.msgs[i].Content
		}
	}
	return ""
}

func SystemMessage(content string) providers.Message {
	return providers.Message{Role: providers.RoleSystem, Content: content}
}

func UserMessage(content string) providers.Message {
	return providers.Message{Role: providers.RoleUser, Content: content}
}

func AssistantMessage(content string) providers.Message {
	return providers.Message{Role: providers.RoleAssistant, Content: content}
}

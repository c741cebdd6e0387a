package agent

// EventType names a loop progress event.
type EventType string

const (
	EventRunStarted      EventType = "run.started"
	EventLLMCall         EventType = "llm.call"
	EventToolCall        EventType = "tool.call"
	EventToolResult      EventType = "tool.result"
	EventInlineRecovered EventType = "inline.recovered"
	EventNudge           EventType = "nudge"
	EventForced          EventType = "forced"
	EventRunCompleted    EventType = "run.completed"
)

// previewChars bounds Event.Preview.
const previewChars = 120

// Event reports loop progress to the OnEvent callback. Only the fields
// relevant to Type are set.
type Event struct {
	Type       EventType
	RunID      string
	Iteration  int                    // llm.call, nudge, inline.recovered
	ToolName   string                 // tool.call, tool.result
	ToolCallID string                 // tool.call, tool.result
	Args       map[string]interface{} // tool.call
	Preview    string                 // tool.result: first 120 characters
	Truncated  bool                   // tool.result: Preview is shorter than the result
	IsError    bool                   // tool.result
	Count      int                    // inline.recovered: number of calls
	Content    string                 // run.completed: final answer
}

func (l *Loop) emit(ev Event) {
	if l.onEvent != nil {
		l.onEvent(ev)
	}
}

func preview(s string) (string, bool) {
	runes := []rune(s)
	if len(runes) <= previewChars {
		return s, false
	}
	return string(runes[:previewChars]), true
}

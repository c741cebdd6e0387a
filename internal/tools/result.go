package tools

import "errors"

// Sentinel errors carried on Result.Err.
var (
	ErrUnknownTool    = errors.New("unknown tool")
	ErrWriteCancelled = errors.New("write cancelled by user")
)

// EmptyResultPlaceholder replaces empty tool output before it reaches the
// transcript; some backends misbehave on empty tool messages.
const EmptyResultPlaceholder = "(empty result)"

// Result is the unified return type from tool execution.
type Result struct {
	ForLLM  string `json:"for_llm"`            // content sent to the model
	ForUser string `json:"for_user,omitempty"` // content shown to the user
	IsError bool   `json:"is_error"`           // marks error
	Err     error  `json:"-"`                  // internal error (not serialized)
}

func NewResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM}
}

func ErrorResult(message string) *Result {
	return &Result{ForLLM: message, IsError: true}
}

func UserResult(content string) *Result {
	return &Result{ForLLM: content, ForUser: content}
}

func (r *Result) WithError(err error) *Result {
	r.Err = err
	return r
}

// Text returns the model-facing content, never empty. A nil result, or one
// with no text, yields EmptyResultPlaceholder; an error with no text yields
// the error message.
func (r *Result) Text() string {
	if r == nil {
		return EmptyResultPlaceholder
	}
	if r.ForLLM != "" {
		return r.ForLLM
	}
	if r.Err != nil {
		return "Error: " + r.Err.Error()
	}
	return EmptyResultPlaceholder
}

package agent

import (
	"context"
	"errors"

	"github.com/nextlevelbuilder/localcoder/internal/providers"
	"github.com/nextlevelbuilder/localcoder/internal/tools"
)

// Agent is the core abstraction for an agent execution loop.
// Implemented by *Loop.
type Agent interface {
	ID() string
	Run(ctx context.Context, req RunRequest) (*RunResult, error)
	IsRunning() bool
	Model() string
}

// Executor dispatches a tool call by name. *tools.Registry satisfies it.
type Executor interface {
	Execute(ctx context.Context, name string, args map[string]interface{}) *tools.Result
}

var (
	// ErrEmptyTranscript is returned by Run when there is nothing to answer.
	ErrEmptyTranscript = errors.New("transcript is empty")
	// ErrInputBlocked is returned by Run when the input guard rejects the
	// latest user message.
	ErrInputBlocked = errors.New("input blocked by injection guard")
)

// RunRequest is the input to one loop invocation.
type RunRequest struct {
	Transcript    *Transcript
	Tools         []providers.ToolDefinition // empty: no catalog is offered
	MaxIterations int                        // <=0: loop default
	MaxTokens     int                        // response token budget, 0 lets the backend decide
	Executor      Executor                   // nil: the loop's executor
}

// RunResult summarises a finished invocation.
type RunResult struct {
	Content    string `json:"content"`
	Iterations int    `json:"iterations"` // backend calls, forced call included
	ToolCalls  int    `json:"tool_calls"`
	Forced     bool   `json:"forced"`
}

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/localcoder/internal/config"
	"github.com/nextlevelbuilder/localcoder/internal/providers"
	"github.com/nextlevelbuilder/localcoder/internal/tools"
)

// DefaultMaxIterations bounds the tool-calling rounds of one Run.
const DefaultMaxIterations = 10

// Messages the loop writes into the transcript.
const (
	NudgeMessage           = "You must respond. If you need filesystem information, call the appropriate tool (e.g. list_directory, read_file). Otherwise provide your answer now."
	ForceConclusionMessage = "Please provide your final answer now based on what you have learned."
)

const tracerName = "github.com/nextlevelbuilder/localcoder/internal/agent"

// LoopConfig configures a Loop.
type LoopConfig struct {
	ID            string
	Provider      providers.Provider
	Executor      Executor // nil: every tool call reports that no executor is connected
	Model         string   // empty: provider default
	MaxIterations int
	Temperature   float64
	OnEvent       func(Event)
	Tracer        trace.Tracer

	// Input guard: "log", "warn" (default), "block" or "off".
	InputGuard      *InputGuard
	InjectionAction string

	// Pruning of old tool results in the backend view of the transcript.
	ContextWindow int
	Pruning       config.PruningConfig
}

// Loop drives the model through tool calls until it produces an answer or
// the iteration budget runs out. A Loop keeps no state between runs beyond
// its configuration and may run concurrently on separate transcripts.
type Loop struct {
	id              string
	provider        providers.Provider
	executor        Executor
	model           string
	maxIterations   int
	temperature     float64
	onEvent         func(Event)
	tracer          trace.Tracer
	inputGuard      *InputGuard
	injectionAction string
	contextWindow   int
	pruning         config.PruningConfig
	running         atomic.Int32
}

func NewLoop(cfg LoopConfig) *Loop {
	l := &Loop{
		id:            cfg.ID,
		provider:      cfg.Provider,
		executor:      cfg.Executor,
		model:         cfg.Model,
		maxIterations: cfg.MaxIterations,
		temperature:   cfg.Temperature,
		onEvent:       cfg.OnEvent,
		tracer:        cfg.Tracer,
		contextWindow: cfg.ContextWindow,
		pruning:       cfg.Pruning,
	}
	if l.maxIterations <= 0 {
		l.maxIterations = DefaultMaxIterations
	}
	if l.model == "" && l.provider != nil {
		l.model = l.provider.DefaultModel()
	}
	if l.tracer == nil {
		l.tracer = otel.Tracer(tracerName)
	}

	switch cfg.InjectionAction {
	case config.InjectionLog, config.InjectionWarn, config.InjectionBlock, config.InjectionOff:
		l.injectionAction = cfg.InjectionAction
	default:
		l.injectionAction = config.InjectionWarn
	}
	if l.injectionAction != config.InjectionOff {
		l.inputGuard = cfg.InputGuard
		if l.inputGuard == nil {
			l.inputGuard = NewInputGuard()
		}
	}
	return l
}

func (l *Loop) ID() string      { return l.id }
func (l *Loop) Model() string   { return l.model }
func (l *Loop) IsRunning() bool { return l.running.Load() > 0 }

// Run executes one invocation over req.Transcript, appending the assistant
// and tool messages it produces. The only error after the precondition and
// guard checks is a failed backend call.
func (l *Loop) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if req.Transcript.Len() == 0 {
		return nil, ErrEmptyTranscript
	}
	if err := l.guardInput(req.Transcript.LastUser()); err != nil {
		return nil, err
	}

	maxIter := req.MaxIterations
	if maxIter <= 0 {
		maxIter = l.maxIterations
	}
	exec := req.Executor
	if exec == nil {
		exec = l.executor
	}

	l.running.Add(1)
	defer l.running.Add(-1)

	runID := uuid.NewString()
	ctx, span := l.tracer.Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("localcoder.run_id", runID),
		attribute.String("gen_ai.request.model", l.model),
		attribute.Int("localcoder.max_iterations", maxIter),
		attribute.Int("localcoder.tools", len(req.Tools)),
	))
	defer span.End()

	start := time.Now()
	l.emit(Event{Type: EventRunStarted, RunID: runID})
	result := &RunResult{}
	transcript := req.Transcript

	for iter := 1; iter <= maxIter; iter++ {
		l.emit(Event{Type: EventLLMCall, RunID: runID, Iteration: iter})
		resp, err := l.chat(ctx, transcript, req.Tools, req.MaxTokens, iter)
		result.Iterations++
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("model call failed: %w", err)
		}

		calls := resp.ToolCalls
		content := resp.Content
		if len(calls) == 0 {
			if recovered := RecoverInlineToolCalls(content); len(recovered) > 0 {
				slog.Debug("agent: recovered inline tool calls", "run_id", runID, "count", len(recovered))
				l.emit(Event{Type: EventInlineRecovered, RunID: runID, Iteration: iter, Count: len(recovered)})
				calls, content = recovered, ""
			} else if content != "" {
				transcript.Append(AssistantMessage(content))
				result.Content = content
				l.finish(span, runID, result, start)
				return result, nil
			} else {
				slog.Debug("agent: empty response, nudging", "run_id", runID, "iteration", iter)
				l.emit(Event{Type: EventNudge, RunID: runID, Iteration: iter})
				transcript.Append(AssistantMessage(""), UserMessage(NudgeMessage))
				continue
			}
		}

		calls = normalizeCallIDs(calls, iter)
		transcript.Append(providers.Message{
			Role:      providers.RoleAssistant,
			Content:   content,
			ToolCalls: calls,
		})
		for _, tc := range calls {
			text := l.dispatch(ctx, exec, runID, tc)
			transcript.Append(providers.Message{
				Role:       providers.RoleTool,
				Content:    text,
				ToolCallID: tc.ID,
			})
			result.ToolCalls++
		}
	}

	// Budget exhausted: one more call without tools for a best-effort answer.
	slog.Debug("agent: iteration budget exhausted, forcing conclusion", "run_id", runID, "max_iterations", maxIter)
	l.emit(Event{Type: EventForced, RunID: runID})
	transcript.Append(UserMessage(ForceConclusionMessage))
	resp, err := l.chat(ctx, transcript, nil, req.MaxTokens, maxIter+1)
	result.Iterations++
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("model call failed: %w", err)
	}
	transcript.Append(AssistantMessage(resp.Content))
	result.Content = resp.Content
	result.Forced = true
	l.finish(span, runID, result, start)
	return result, nil
}

func (l *Loop) finish(span trace.Span, runID string, result *RunResult, start time.Time) {
	span.SetAttributes(
		attribute.Int("localcoder.iterations", result.Iterations),
		attribute.Int("localcoder.tool_calls", result.ToolCalls),
		attribute.Bool("localcoder.forced", result.Forced),
	)
	slog.Debug("agent: run completed",
		"run_id", runID,
		"iterations", result.Iterations,
		"tool_calls", result.ToolCalls,
		"forced", result.Forced,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	l.emit(Event{Type: EventRunCompleted, RunID: runID, Content: result.Content})
}

// chat performs one backend call. tools is nil on the forced call.
func (l *Loop) chat(ctx context.Context, transcript *Transcript, catalog []providers.ToolDefinition, maxTokens, iter int) (*providers.ChatResponse, error) {
	ctx, span := l.tracer.Start(ctx, "llm.chat", trace.WithAttributes(
		attribute.String("gen_ai.request.model", l.model),
		attribute.Int("localcoder.iteration", iter),
		attribute.Int("localcoder.messages", transcript.Len()),
	))
	defer span.End()

	opts := map[string]interface{}{}
	if maxTokens > 0 {
		opts[providers.OptMaxTokens] = maxTokens
	}
	if l.temperature > 0 {
		opts[providers.OptTemperature] = l.temperature
	}
	req := providers.ChatRequest{
		Messages: pruneToolResults(transcript.Messages(), l.contextWindow, l.pruning),
		Model:    l.model,
		Options:  opts,
	}
	if len(catalog) > 0 {
		req.Tools = catalog
	}

	resp, err := l.provider.Chat(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if resp == nil {
		resp = &providers.ChatResponse{}
	}
	span.SetAttributes(
		attribute.String("gen_ai.response.finish_reason", resp.FinishReason),
		attribute.Int("localcoder.tool_calls", len(resp.ToolCalls)),
	)
	if resp.Usage != nil {
		span.SetAttributes(
			attribute.Int("gen_ai.usage.input_tokens", resp.Usage.PromptTokens),
			attribute.Int("gen_ai.usage.output_tokens", resp.Usage.CompletionTokens),
		)
	}
	return resp, nil
}

// dispatch runs one tool call and returns the text for its tool message,
// never empty.
func (l *Loop) dispatch(ctx context.Context, exec Executor, runID string, tc providers.ToolCall) string {
	name := tc.Function.Name
	ctx, span := l.tracer.Start(ctx, "tool.execute", trace.WithAttributes(
		attribute.String("localcoder.tool.name", name),
		attribute.String("localcoder.tool.call_id", tc.ID),
	))
	defer span.End()

	args, ok := ParseArguments(tc.Function.Arguments)
	if !ok {
		slog.Debug("agent: unparseable tool arguments, using empty map",
			"tool", name, "raw", truncate(tc.Function.Arguments.Text(), 200))
	}
	l.emit(Event{Type: EventToolCall, RunID: runID, ToolName: name, ToolCallID: tc.ID, Args: args})

	var (
		text    string
		isError bool
	)
	if exec == nil {
		text = fmt.Sprintf("Error: no tool executor connected, cannot call tool '%s'", name)
		isError = true
	} else {
		res := exec.Execute(ctx, name, args)
		text = res.Text()
		if res != nil {
			isError = res.IsError
			if res.Err != nil {
				span.RecordError(res.Err)
			}
		}
	}
	if text == "" {
		text = tools.EmptyResultPlaceholder
	}
	if isError {
		span.SetStatus(codes.Error, truncate(text, 200))
	}

	p, cut := preview(text)
	l.emit(Event{Type: EventToolResult, RunID: runID, ToolName: name, ToolCallID: tc.ID, Preview: p, Truncated: cut, IsError: isError})
	return text
}

// normalizeCallIDs gives every call a unique id. Missing or repeated ids are
// replaced with call_<iteration>_<position>. The input slice is not modified.
func normalizeCallIDs(calls []providers.ToolCall, iter int) []providers.ToolCall {
	out := make([]providers.ToolCall, len(calls))
	seen := make(map[string]bool, len(calls))
	for i, tc := range calls {
		if tc.ID == "" || seen[tc.ID] {
			tc.ID = fmt.Sprintf("call_%d_%d", iter, i)
		}
		if tc.Type == "" {
			tc.Type = "function"
		}
		seen[tc.ID] = true
		out[i] = tc
	}
	return out
}

// guardInput scans the latest user message according to the injection action.
func (l *Loop) guardInput(msg string) error {
	if l.inputGuard == nil || msg == "" {
		return nil
	}
	matches := l.inputGuard.Scan(msg)
	if len(matches) == 0 {
		return nil
	}
	switch l.injectionAction {
	case config.InjectionBlock:
		slog.Warn("security.injection_blocked", "agent", l.id, "patterns", matches)
		return fmt.Errorf("%w: %s", ErrInputBlocked, strings.Join(matches, ", "))
	case config.InjectionLog:
		slog.Info("security.injection_detected", "agent", l.id, "patterns", matches)
	default:
		slog.Warn("security.injection_detected", "agent", l.id, "patterns", matches)
	}
	return nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/localcoder/internal/agent"
	"github.com/nextlevelbuilder/localcoder/internal/config"
	"github.com/nextlevelbuilder/localcoder/internal/providers"
)

// formatAgentError turns a failed run into one line for the user. Raw
// server payloads are logged, not shown.
func formatAgentError(err error) string {
	if errors.Is(err, context.Canceled) {
		return "Cancelled."
	}
	if errors.Is(err, agent.ErrInputBlocked) {
		return "⚠️ Input blocked: it looks like a prompt injection attempt (agent.injectionAction is \"block\")."
	}
	if errors.Is(err, config.ErrModelNotFound) {
		return "⚠️ Model file not found. Set one with: localcoder models --set <path.gguf>"
	}

	raw := err.Error()
	lower := strings.ToLower(raw)

	// 1. Timeout ("context deadline exceeded" must not read as overflow)
	if isTimeoutError(err, lower) {
		return "⚠️ The model server timed out. Please try again."
	}

	// 2. Context overflow
	if isContextOverflowError(lower) {
		return "⚠️ Context overflow, the conversation no longer fits the model's context window. Try /clear or raise model.contextSize."
	}

	// 3. Model file missing when the managed server starts
	if strings.Contains(lower, "model file not found") {
		return "⚠️ Model file not found. Set one with: localcoder models --set <path.gguf>"
	}

	// 4. Backend not running or not starting
	if isBackendUnreachable(lower) {
		return "⚠️ Cannot reach the model server. Check model.serverURL, or that llama-server is installed (run: localcoder doctor)."
	}

	// 5. Other server replies
	var httpErr *providers.HTTPError
	if errors.As(err, &httpErr) {
		slog.Warn("model server error", "status", httpErr.Status, "body", httpErr.Body)
		return fmt.Sprintf("⚠️ The model server returned HTTP %d. Run with -v for details.", httpErr.Status)
	}

	slog.Warn("unclassified agent error", "error", raw)
	return "⚠️ Error: " + raw
}

// isContextOverflowError checks for context window overflow patterns,
// including llama.cpp's "exceeds the available context size".
func isContextOverflowError(lower string) bool {
	return containsAny(lower,
		"exceeds the available context size",
		"context length exceeded",
		"maximum context length",
		"prompt is too long",
		"context_length_exceeded",
	) || (strings.Contains(lower, "context") && !strings.Contains(lower, "deadline exceeded") &&
		containsAny(lower, "overflow", "too large", "too long", "exceeded"))
}

func isTimeoutError(err error, lower string) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		containsAny(lower, "timeout", "timed out", "deadline exceeded")
}

func isBackendUnreachable(lower string) bool {
	return containsAny(lower,
		"connection refused",
		"no such host",
		"connection reset",
		"llama-server did not become ready",
		"executable file not found",
		"start llama-server",
	)
}

// containsAny returns true if s contains any of the given substrings.
func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

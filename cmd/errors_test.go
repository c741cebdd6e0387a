package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/localcoder/internal/agent"
	"github.com/nextlevelbuilder/localcoder/internal/config"
	"github.com/nextlevelbuilder/localcoder/internal/providers"
)

func TestFormatAgentError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"cancelled", fmt.Errorf("run: %w", context.Canceled), "Cancelled."},
		{"blocked", agent.ErrInputBlocked, "Input blocked"},
		{"model missing", fmt.Errorf("%w: /x.gguf", config.ErrModelNotFound), "Model file not found"},
		{"llama overflow", errors.New("request (9000 tokens) exceeds the available context size (8192 tokens)"), "Context overflow"},
		{"generic overflow", errors.New("Context length exceeded"), "Context overflow"},
		{"refused", errors.New("dial tcp 127.0.0.1:8088: connect: connection refused"), "Cannot reach the model server"},
		{"no binary", errors.New(`start llama-server: exec: "llama-server": executable file not found in $PATH`), "Cannot reach the model server"},
		{"deadline", fmt.Errorf("chat: %w", context.DeadlineExceeded), "timed out"},
		{"client timeout", errors.New(`Post "http://127.0.0.1:8088/v1/chat/completions": context deadline exceeded (Client.Timeout exceeded while awaiting headers)`), "timed out"},
		{"deadline text", errors.New("model call failed: context deadline exceeded"), "timed out"},
		{"http", &providers.HTTPError{Status: 500, Body: "boom"}, "HTTP 500"},
		{"other", errors.New("something odd"), "Error: something odd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatAgentError(tt.err)
			if !strings.Contains(got, tt.want) {
				t.Errorf("formatAgentError(%v) = %q, want it to contain %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsContextOverflowError(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"context deadline exceeded", false},
		{"the request exceeds the available context size", true},
		{"context window overflow", true},
		{"connection refused", false},
	}
	for _, tt := range tests {
		if got := isContextOverflowError(tt.msg); got != tt.want {
			t.Errorf("isContextOverflowError(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}

func TestContainsAny(t *testing.T) {
	if !containsAny("connection reset by peer", "timeout", "connection reset") {
		t.Error("expected a match")
	}
	if containsAny("all good") {
		t.Error("no substrings must not match")
	}
}

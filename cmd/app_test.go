package cmd

import (
	"context"
	"testing"

	"github.com/nextlevelbuilder/localcoder/internal/providers"
)

type closingProvider struct {
	closed int
}

func (p *closingProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	return &providers.ChatResponse{Content: "ok"}, nil
}
func (p *closingProvider) DefaultModel() string { return "local" }
func (p *closingProvider) Name() string         { return "fake" }
func (p *closingProvider) Close() error {
	p.closed++
	return nil
}

func TestSharedProvider_RetireWaitsForRuns(t *testing.T) {
	inner := &closingProvider{}
	p := &sharedProvider{Provider: inner}

	p.acquire()
	p.acquire()
	if err := p.retire(); err != nil {
		t.Fatalf("retire: %v", err)
	}
	if inner.closed != 0 {
		t.Fatal("provider closed while runs still hold it")
	}

	p.release()
	if inner.closed != 0 {
		t.Fatal("provider closed before the last run released it")
	}
	p.release()
	if inner.closed != 1 {
		t.Errorf("closed %d times after last release, want 1", inner.closed)
	}

	if err := p.retire(); err != nil || inner.closed != 1 {
		t.Errorf("second retire must be a no-op, closed=%d err=%v", inner.closed, err)
	}
}

func TestSharedProvider_RetireIdleClosesNow(t *testing.T) {
	inner := &closingProvider{}
	p := &sharedProvider{Provider: inner}
	if err := p.retire(); err != nil {
		t.Fatalf("retire: %v", err)
	}
	if inner.closed != 1 {
		t.Errorf("idle provider closed %d times, want 1", inner.closed)
	}
}

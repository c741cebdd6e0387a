package providers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestLlamaServer_Args(t *testing.T) {
	s := NewLlamaServer(LlamaServerConfig{
		ModelPath:   "/models/qwen.gguf",
		ContextSize: 8192,
		GPULayers:   -1,
		ExtraArgs:   []string{"--threads", "8"},
	})

	got := strings.Join(s.Args(), " ")
	for _, want := range []string{
		"-m /models/qwen.gguf",
		"--port 8088",
		"--ctx-size 8192",
		"--n-gpu-layers -1",
		"--jinja",
		"--threads 8",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("args %q missing %q", got, want)
		}
	}
	if s.BaseURL() != "http://127.0.0.1:8088/v1" {
		t.Errorf("unexpected base URL %s", s.BaseURL())
	}
}

func TestLlamaServer_StartMissingModel(t *testing.T) {
	s := NewLlamaServer(LlamaServerConfig{ModelPath: t.TempDir() + "/missing.gguf"})
	if err := s.Start(context.Background()); err == nil {
		t.Error("expected error for missing model file")
	}
	if s.Running() {
		t.Error("server should not be running")
	}
	// Close on a never-started server is a no-op.
	if err := s.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestWaitHealthy_BecomesReady(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := waitHealthy(ctx, srv.URL, make(chan struct{})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() < 3 {
		t.Errorf("expected at least 3 polls, got %d", calls.Load())
	}
}

func TestWaitHealthy_ProcessExited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	exited := make(chan struct{})
	close(exited)
	if err := waitHealthy(context.Background(), srv.URL, exited); err == nil {
		t.Error("expected error when the process has exited")
	}
}

func TestTailWriter_KeepsTail(t *testing.T) {
	var buf bytes.Buffer
	w := &tailWriter{buf: &buf, max: 4}
	w.Write([]byte("abc"))
	w.Write([]byte("defg"))
	if buf.String() != "defg" {
		t.Errorf("expected tail defg, got %q", buf.String())
	}
}

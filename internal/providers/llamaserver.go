package providers

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// LlamaServerConfig describes a llama.cpp server process managed by localcoder.
type LlamaServerConfig struct {
	Binary       string // default "llama-server"
	ModelPath    string
	ContextSize  int
	GPULayers    int
	Port         int
	ExtraArgs    []string
	StartTimeout time.Duration // default 2m
}

// LlamaServer starts llama-server on first use and stops it on Close.
type LlamaServer struct {
	cfg LlamaServerConfig

	mu     sync.Mutex
	cmd    *exec.Cmd
	done   chan struct{}
	stderr *bytes.Buffer
}

// NewLlamaServer creates an unstarted server handle.
func NewLlamaServer(cfg LlamaServerConfig) *LlamaServer {
	if cfg.Binary == "" {
		cfg.Binary = "llama-server"
	}
	if cfg.Port <= 0 {
		cfg.Port = 8088
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = 2 * time.Minute
	}
	return &LlamaServer{cfg: cfg}
}

// BaseURL is the OpenAI-compatible API root of the managed server.
func (s *LlamaServer) BaseURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d/v1", s.cfg.Port)
}

// Args returns the llama-server command line (without the binary).
func (s *LlamaServer) Args() []string {
	args := []string{
		"-m", s.cfg.ModelPath,
		"--port", strconv.Itoa(s.cfg.Port),
		"--host", "127.0.0.1",
		"--jinja",
	}
	if s.cfg.ContextSize > 0 {
		args = append(args, "--ctx-size", strconv.Itoa(s.cfg.ContextSize))
	}
	args = append(args, "--n-gpu-layers", strconv.Itoa(s.cfg.GPULayers))
	return append(args, s.cfg.ExtraArgs...)
}

// Running reports whether the process is alive.
func (s *LlamaServer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningLocked()
}

func (s *LlamaServer) runningLocked() bool {
	if s.cmd == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Start launches the server if it is not already running and blocks until
// /health reports ready.
func (s *LlamaServer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runningLocked() {
		return nil
	}
	if _, err := os.Stat(s.cfg.ModelPath); err != nil {
		return fmt.Errorf("model file not found: %s", s.cfg.ModelPath)
	}

	cmd := exec.Command(s.cfg.Binary, s.Args()...)
	s.stderr = &bytes.Buffer{}
	cmd.Stderr = &tailWriter{buf: s.stderr, max: 8 * 1024}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", s.cfg.Binary, err)
	}

	done := make(chan struct{})
	go func() {
		cmd.Wait()
		close(done)
	}()
	s.cmd = cmd
	s.done = done

	slog.Info("llama-server: starting", "pid", cmd.Process.Pid, "model", s.cfg.ModelPath, "port", s.cfg.Port)

	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.StartTimeout)
	defer cancel()
	if err := waitHealthy(waitCtx, s.healthURL(), done); err != nil {
		s.stopLocked()
		return fmt.Errorf("llama-server did not become ready: %w (stderr: %s)", err, truncateBody(s.stderr.String(), 300))
	}

	slog.Info("llama-server: ready", "url", s.BaseURL())
	return nil
}

// Close stops the managed process. Safe to call when never started.
func (s *LlamaServer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	return nil
}

func (s *LlamaServer) stopLocked() {
	if !s.runningLocked() {
		s.cmd = nil
		return
	}
	s.cmd.Process.Kill()
	<-s.done
	slog.Info("llama-server: stopped")
	s.cmd = nil
}

func (s *LlamaServer) healthURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d/health", s.cfg.Port)
}

// waitHealthy polls url with exponential backoff until it answers 200, the
// process exits, or ctx ends.
func waitHealthy(ctx context.Context, url string, exited <-chan struct{}) error {
	client := &http.Client{Timeout: 2 * time.Second}
	for attempt := 0; ; attempt++ {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		timer := time.NewTimer(backoffWithJitter(100*time.Millisecond, 2*time.Second, attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-exited:
			timer.Stop()
			return fmt.Errorf("process exited")
		case <-timer.C:
		}
	}
}

// tailWriter keeps at most max trailing bytes.
type tailWriter struct {
	buf *bytes.Buffer
	max int
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	if over := w.buf.Len() - w.max; over > 0 {
		w.buf.Next(over)
	}
	return len(p), nil
}

// ManagedProvider is an OpenAIProvider backed by a LlamaServer it starts
// lazily on the first Chat call.
type ManagedProvider struct {
	*OpenAIProvider
	server *LlamaServer
}

// NewManagedProvider wires an HTTP client to a managed server.
func NewManagedProvider(name, model string, server *LlamaServer) *ManagedProvider {
	return &ManagedProvider{
		OpenAIProvider: NewOpenAIProvider(name, "", server.BaseURL(), model),
		server:         server,
	}
}

func (p *ManagedProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := p.server.Start(ctx); err != nil {
		return nil, err
	}
	return p.OpenAIProvider.Chat(ctx, req)
}

// Close stops the managed server.
func (p *ManagedProvider) Close() error {
	return p.server.Close()
}

package sessions

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/localcoder/internal/providers"
)

func openTestStore(t *testing.T, maxMessages int) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "sessions.db"), maxMessages)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_AppendAndLoad(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 0)
	id := NewID()

	turn, err := s.AppendTurn(ctx, id, "What does main.go do?", "It starts the CLI.")
	if err != nil {
		t.Fatal(err)
	}
	if turn != 1 {
		t.Errorf("turn = %d, want 1", turn)
	}
	if turn, _ = s.AppendTurn(ctx, id, "and config.go?", "It loads settings."); turn != 2 {
		t.Errorf("turn = %d, want 2", turn)
	}

	sess, err := s.Load(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	want := []providers.Message{
		{Role: providers.RoleUser, Content: "What does main.go do?"},
		{Role: providers.RoleAssistant, Content: "It starts the CLI."},
		{Role: providers.RoleUser, Content: "and config.go?"},
		{Role: providers.RoleAssistant, Content: "It loads settings."},
	}
	if len(sess.Messages) != len(want) {
		t.Fatalf("got %d messages", len(sess.Messages))
	}
	for i, m := range want {
		if sess.Messages[i].Role != m.Role || sess.Messages[i].Content != m.Content {
			t.Errorf("message %d = %+v, want %+v", i, sess.Messages[i], m)
		}
	}
	if sess.Title != "What does main.go do?" {
		t.Errorf("title should come from the first prompt, got %q", sess.Title)
	}
	if sess.Turns() != 2 {
		t.Errorf("turns = %d", sess.Turns())
	}
}

func TestStore_CapsMessages(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 20)
	id := NewID()
	var turn int
	for i := 0; i < 15; i++ {
		var err error
		turn, err = s.AppendTurn(ctx, id, fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
		if err != nil {
			t.Fatal(err)
		}
	}
	if turn != 10 {
		t.Errorf("turn = %d, want 10", turn)
	}
	sess, err := s.Load(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.Messages) != 20 {
		t.Fatalf("got %d messages, want 20", len(sess.Messages))
	}
	if sess.Messages[0].Content != "q5" || sess.Messages[19].Content != "a14" {
		t.Errorf("wrong window: first=%q last=%q", sess.Messages[0].Content, sess.Messages[19].Content)
	}
}

func TestStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 0)

	if _, err := s.Load(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load: expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete: expected ErrNotFound, got %v", err)
	}
	if err := s.Reset(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Reset: expected ErrNotFound, got %v", err)
	}
	if ok, err := s.Exists(ctx, "missing"); err != nil || ok {
		t.Errorf("Exists = %v, %v", ok, err)
	}
}

func TestStore_ResetAndDelete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 0)
	id := NewID()
	if _, err := s.AppendTurn(ctx, id, "q", "a"); err != nil {
		t.Fatal(err)
	}

	if err := s.Reset(ctx, id); err != nil {
		t.Fatal(err)
	}
	sess, err := s.Load(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.Messages) != 0 {
		t.Errorf("reset should clear messages, got %d", len(sess.Messages))
	}

	if err := s.Delete(ctx, id); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Exists(ctx, id); ok {
		t.Error("session should be gone")
	}
}

func TestStore_List(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 0)
	for _, id := range []string{"aaa", "bbb", "ccc"} {
		if _, err := s.AppendTurn(ctx, id, "prompt "+id, "answer"); err != nil {
			t.Fatal(err)
		}
	}
	// Touch aaa so it becomes the most recent.
	if _, err := s.AppendTurn(ctx, "aaa", "again", "ok"); err != nil {
		t.Fatal(err)
	}

	all, err := s.List(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d sessions", len(all))
	}
	if all[0].ID != "aaa" || all[0].Messages != 4 {
		t.Errorf("most recent first: got %+v", all[0])
	}

	limited, err := s.List(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("limit ignored: %d", len(limited))
	}
}

func TestStore_ResolveID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 0)
	for _, id := range []string{"abc123", "abd456"} {
		if _, err := s.AppendTurn(ctx, id, "q", "a"); err != nil {
			t.Fatal(err)
		}
	}

	if got, err := s.ResolveID(ctx, "abc"); err != nil || got != "abc123" {
		t.Errorf("ResolveID(abc) = %q, %v", got, err)
	}
	if got, err := s.ResolveID(ctx, "abd456"); err != nil || got != "abd456" {
		t.Errorf("full id = %q, %v", got, err)
	}
	if _, err := s.ResolveID(ctx, "ab"); err == nil || !strings.Contains(err.Error(), "ambiguous") {
		t.Errorf("expected ambiguity error, got %v", err)
	}
	if _, err := s.ResolveID(ctx, "zzz"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTitle(t *testing.T) {
	tests := []struct{ in, want string }{
		{"  hello  ", "hello"},
		{"first line\nsecond", "first line"},
		{strings.Repeat("x", 80), strings.Repeat("x", 57) + "..."},
	}
	for _, tt := range tests {
		if got := title(tt.in); got != tt.want {
			t.Errorf("title(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

package orchestrator

import (
	"testing"

	"github.com/familyassistant/core/internal/providers"
)

func TestMemoryHistoryStore_GetAppendRoundTrip(t *testing.T) {
	s := NewMemoryHistoryStore()

	if got := s.Get("conv1"); len(got) != 0 {
		t.Fatalf("Get on empty store = %v, want empty", got)
	}

	s.Append("conv1", providers.Message{Role: "user", Content: "hi"})
	s.Append("conv1", providers.Message{Role: "assistant", Content: "hello"})

	got := s.Get("conv1")
	if len(got) != 2 {
		t.Fatalf("len(Get) = %d, want 2", len(got))
	}
	if got[0].Content != "hi" || got[1].Content != "hello" {
		t.Errorf("Get = %+v", got)
	}
}

func TestMemoryHistoryStore_GetReturnsDefensiveCopy(t *testing.T) {
	s := NewMemoryHistoryStore()
	s.Append("conv1", providers.Message{Role: "user", Content: "original"})

	got := s.Get("conv1")
	got[0].Content = "mutated"

	again := s.Get("conv1")
	if again[0].Content != "original" {
		t.Errorf("mutating Get's result leaked into the store: %q", again[0].Content)
	}
}

func TestMemoryHistoryStore_IsolatesConversations(t *testing.T) {
	s := NewMemoryHistoryStore()
	s.Append("a", providers.Message{Role: "user", Content: "for a"})
	s.Append("b", providers.Message{Role: "user", Content: "for b"})

	if len(s.Get("a")) != 1 || len(s.Get("b")) != 1 {
		t.Fatalf("conversations should be isolated: a=%v b=%v", s.Get("a"), s.Get("b"))
	}
	if s.Get("a")[0].Content == s.Get("b")[0].Content {
		t.Error("conversations should not share content")
	}
}

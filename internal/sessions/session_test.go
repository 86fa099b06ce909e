package sessions

import (
	"testing"
	"time"
)

func TestAppend_OrderAndActivity(t *testing.T) {
	s := newSession("CA1", "+1", "+2", time.Now().Add(-time.Minute))
	before := s.LastActivity()

	s.Append(RoleUser, "what is the weather")
	s.Append(RoleAssistant, "I don't have weather data")

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[0].Content != "what is the weather" {
		t.Fatalf("unexpected first message: %+v", msgs[0])
	}
	if msgs[1].Role != RoleAssistant || msgs[1].Content != "I don't have weather data" {
		t.Fatalf("unexpected second message: %+v", msgs[1])
	}
	if msgs[0].Timestamp.IsZero() || msgs[1].Timestamp.IsZero() {
		t.Fatal("messages must carry timestamps")
	}
	if !s.LastActivity().After(before) {
		t.Fatal("append must refresh last activity")
	}
}

func TestHistory(t *testing.T) {
	s := newSession("CA1", "+1", "+2", time.Now())

	if got := s.History(false); len(got) != 0 {
		t.Fatalf("empty session: expected no turns, got %d", len(got))
	}
	if got := s.History(true); len(got) != 0 {
		t.Fatalf("empty session with excludeLast: expected no turns, got %d", len(got))
	}

	s.Append(RoleUser, "first")
	s.Append(RoleAssistant, "second")
	s.Append(RoleUser, "third")

	full := s.History(false)
	if len(full) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(full))
	}
	if full[2].Content != "third" {
		t.Fatalf("unexpected last turn: %+v", full[2])
	}

	trimmed := s.History(true)
	if len(trimmed) != 2 {
		t.Fatalf("excludeLast: expected len(messages)-1 == 2, got %d", len(trimmed))
	}
	if trimmed[1].Role != RoleAssistant || trimmed[1].Content != "second" {
		t.Fatalf("excludeLast must drop the newest message, got %+v", trimmed[1])
	}
}

func TestHistory_SingleMessageExcludeLast(t *testing.T) {
	s := newSession("CA1", "+1", "+2", time.Now())
	s.Append(RoleUser, "only")

	if got := s.History(true); len(got) != 0 {
		t.Fatalf("expected empty history, got %d turns", len(got))
	}
}

func TestMessages_ReturnsCopy(t *testing.T) {
	s := newSession("CA1", "+1", "+2", time.Now())
	s.Append(RoleUser, "original")

	msgs := s.Messages()
	msgs[0].Content = "mutated"

	if s.Messages()[0].Content != "original" {
		t.Fatal("Messages must return a copy")
	}
}

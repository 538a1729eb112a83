package archive

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestMemoryStoreListNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	for i := 0; i < 5; i++ {
		turn := NewTurn("s1")
		turn.UserMessage = fmt.Sprintf("q-%d", i)
		if err := store.SaveTurn(context.Background(), turn); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	turns, err := store.ListBySession(context.Background(), "s1", 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	if turns[0].UserMessage != "q-4" || turns[2].UserMessage != "q-2" {
		t.Fatalf("turns should be newest first: %v, %v", turns[0].UserMessage, turns[2].UserMessage)
	}
}

func TestMemoryStoreIsolatesSessions(t *testing.T) {
	store := NewMemoryStore()
	a := NewTurn("a")
	b := NewTurn("b")
	_ = store.SaveTurn(context.Background(), a)
	_ = store.SaveTurn(context.Background(), b)

	turns, err := store.ListBySession(context.Background(), "a", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(turns) != 1 || turns[0].SessionID != "a" {
		t.Fatalf("unexpected turns for session a: %+v", turns)
	}
}

func TestMemoryStoreListRecentSpansSessions(t *testing.T) {
	store := NewMemoryStore()
	base := time.Now().UTC()
	for i := 0; i < 4; i++ {
		turn := NewTurn(fmt.Sprintf("s-%d", i%2))
		turn.UserMessage = fmt.Sprintf("q-%d", i)
		turn.CreatedAt = base.Add(time.Duration(i) * time.Second)
		_ = store.SaveTurn(context.Background(), turn)
	}

	turns, err := store.ListRecent(context.Background(), 3)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	if turns[0].UserMessage != "q-3" || turns[1].UserMessage != "q-2" {
		t.Fatalf("turns should be newest first: %v, %v", turns[0].UserMessage, turns[1].UserMessage)
	}
	if turns[0].SessionID == turns[1].SessionID {
		t.Fatalf("recent listing should cross session boundaries: %+v", turns)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	turn := NewTurn("s1")
	turn.AssistantMessage = "original"
	_ = store.SaveTurn(context.Background(), turn)

	turns, _ := store.ListBySession(context.Background(), "s1", 0)
	turns[0].AssistantMessage = "mutated"

	again, _ := store.ListBySession(context.Background(), "s1", 0)
	if again[0].AssistantMessage != "original" {
		t.Fatalf("archive leaked mutable state")
	}
}

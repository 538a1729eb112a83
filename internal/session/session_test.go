package session

import (
	"context"
	stdErrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	apperrors "ChainAgent/internal/errors"
)

func TestAppendDropsOldestBeyondCap(t *testing.T) {
	s := New("")
	for i := 0; i < 55; i++ {
		s.Append(50, NewMessage(RoleUser, fmt.Sprintf("msg-%d", i)))
	}
	if len(s.Messages) != 50 {
		t.Fatalf("expected history capped at 50, got %d", len(s.Messages))
	}
	if s.Messages[0].Content != "msg-5" {
		t.Fatalf("oldest messages should be dropped first, head is %q", s.Messages[0].Content)
	}
	if s.Messages[49].Content != "msg-54" {
		t.Fatalf("newest message must survive, tail is %q", s.Messages[49].Content)
	}
}

func TestAppendBatchLargerThanCap(t *testing.T) {
	s := New("")
	batch := make([]Message, 60)
	for i := range batch {
		batch[i] = NewMessage(RoleUser, fmt.Sprintf("msg-%d", i))
	}
	s.Append(50, batch...)
	if len(s.Messages) != 50 {
		t.Fatalf("expected 50 messages, got %d", len(s.Messages))
	}
	if s.Messages[0].Content != "msg-10" {
		t.Fatalf("unexpected head after oversized batch: %q", s.Messages[0].Content)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	current := time.Now()
	store.now = func() time.Time { return current }

	s := New("0xabc")
	if err := store.Save(context.Background(), s); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := store.Get(context.Background(), s.ID); err != nil {
		t.Fatalf("get before expiry: %v", err)
	}

	current = current.Add(2 * time.Hour)
	_, err := store.Get(context.Background(), s.ID)
	if apperrors.CodeOf(err) != apperrors.CodeSessionNotFound {
		t.Fatalf("expired session should be SESSION_NOT_FOUND, got %v", err)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	s := New("")
	s.Append(0, NewMessage(RoleUser, "hello"))
	if err := store.Save(context.Background(), s); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Get(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	loaded.Messages[0].Content = "mutated"

	again, err := store.Get(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if again.Messages[0].Content != "hello" {
		t.Fatalf("stored session leaked mutable state")
	}
}

func TestManagerAppendIsSerialised(t *testing.T) {
	mgr := NewManager(NewMemoryStore(time.Hour), 0)
	s, err := mgr.Create(context.Background(), "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const writers = 8
	const perWriter = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				if _, err := mgr.Append(context.Background(), s.ID, NewMessage(RoleUser, fmt.Sprintf("w%d-%d", n, j))); err != nil {
					t.Errorf("append: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()

	final, err := mgr.Get(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(final.Messages) != writers*perWriter {
		t.Fatalf("lost writes: expected %d messages, got %d", writers*perWriter, len(final.Messages))
	}
}

func TestManagerAppendMissingSession(t *testing.T) {
	mgr := NewManager(NewMemoryStore(time.Hour), 50)
	_, err := mgr.Append(context.Background(), "no-such-session", NewMessage(RoleUser, "hi"))
	if !stdErrors.Is(err, apperrors.New(apperrors.CodeSessionNotFound, "")) {
		t.Fatalf("expected SESSION_NOT_FOUND, got %v", err)
	}
}

package conversation_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/zhouzirui/z-coach/internal/model/coach"
	"github.com/zhouzirui/z-coach/internal/service/conversation"
)

func exerciseStore(t *testing.T, store conversation.Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := store.Create(ctx, ""); !errors.Is(err, conversation.ErrUserRequired) {
		t.Fatalf("expected ErrUserRequired, got %v", err)
	}

	conv, err := store.Create(ctx, "user-1")
	if err != nil {
		t.Fatalf("Create err: %v", err)
	}

	got, err := store.Get(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Get err: %v", err)
	}
	if got.UserID != "user-1" {
		t.Fatalf("unexpected user: %s", got.UserID)
	}

	turns := []coach.Message{
		{Role: coach.RoleUser, Content: "How many files failed?"},
		{Role: coach.RoleAssistant, Content: "Two uploads failed validation.", AudioURL: "s3://bucket/reply.mp3"},
		{Role: coach.RoleUser, Content: "Which ones?"},
	}
	for _, msg := range turns {
		stored, err := store.Append(ctx, conv.ID, msg)
		if err != nil {
			t.Fatalf("Append err: %v", err)
		}
		if stored.ID == "" || stored.Timestamp.IsZero() {
			t.Fatalf("expected id and timestamp, got %+v", stored)
		}
	}

	all, err := store.Messages(ctx, conv.ID, 0)
	if err != nil {
		t.Fatalf("Messages err: %v", err)
	}
	if len(all) != len(turns) {
		t.Fatalf("expected %d messages, got %d", len(turns), len(all))
	}
	for i := range turns {
		if all[i].Content != turns[i].Content || all[i].Role != turns[i].Role {
			t.Fatalf("message %d out of order: %+v", i, all[i])
		}
	}
	if all[1].AudioURL != "s3://bucket/reply.mp3" {
		t.Fatalf("audio reference lost: %+v", all[1])
	}

	recent, err := store.Messages(ctx, conv.ID, 2)
	if err != nil {
		t.Fatalf("Messages err: %v", err)
	}
	if len(recent) != 2 || recent[1].Content != "Which ones?" {
		t.Fatalf("unexpected recent window: %+v", recent)
	}

	if _, err := store.Append(ctx, conv.ID, coach.Message{Role: "system", Content: "x"}); !errors.Is(err, conversation.ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage for bad role, got %v", err)
	}
	if _, err := store.Append(ctx, conv.ID, coach.Message{Role: coach.RoleUser}); !errors.Is(err, conversation.ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage for empty content, got %v", err)
	}
	if _, err := store.Append(ctx, "missing", coach.Message{Role: coach.RoleUser, Content: "hi"}); !errors.Is(err, conversation.ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, conversation.ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, conversation.NewMemoryStore())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := conversation.NewMemoryStore()
	ctx := context.Background()
	conv, _ := store.Create(ctx, "user-1")
	_, _ = store.Append(ctx, conv.ID, coach.Message{Role: coach.RoleUser, Content: "hi"})

	msgs, _ := store.Messages(ctx, conv.ID, 0)
	msgs[0].Content = "mutated"

	again, _ := store.Messages(ctx, conv.ID, 0)
	if again[0].Content != "hi" {
		t.Fatal("caller mutation leaked into the store")
	}
}

func TestGormStore(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	store, err := conversation.OpenPostgres(dsn)
	if err != nil {
		t.Fatalf("OpenPostgres err: %v", err)
	}
	defer store.Close()

	exerciseStore(t, store)
}

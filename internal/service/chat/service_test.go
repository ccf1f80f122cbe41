package chat_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	chat "github.com/mri-lab/mri-console/internal/service/chat"
)

func echo(q string) string { return "answer: " + q }

func TestServiceAskCreatesHistory(t *testing.T) {
	svc := chat.NewService(echo)
	ctx := context.Background()

	resp, err := svc.Ask(ctx, "doctor", "", "  膝关节MRI显示半月板损伤怎么办？  ")
	if err != nil {
		t.Fatalf("Ask err: %v", err)
	}
	if resp.ChatHistoryID == "" || resp.Response != "answer: 膝关节MRI显示半月板损伤怎么办？" {
		t.Fatalf("unexpected response %+v", resp)
	}

	if _, err := svc.Ask(ctx, "doctor", resp.ChatHistoryID, "需要手术吗"); err != nil {
		t.Fatalf("Ask err: %v", err)
	}

	list := svc.List(ctx, "doctor")
	if len(list) != 1 {
		t.Fatalf("expected 1 history, got %d", len(list))
	}
	if list[0].MessageCount != 4 {
		t.Fatalf("expected 4 messages, got %d", list[0].MessageCount)
	}
	if list[0].Title != "膝关节MRI显示半月板损伤怎么办？" {
		t.Fatalf("unexpected title %q", list[0].Title)
	}

	detail, err := svc.Get(ctx, "doctor", resp.ChatHistoryID)
	if err != nil {
		t.Fatalf("Get err: %v", err)
	}
	if !detail.Messages[0].IsUser || detail.Messages[1].IsUser {
		t.Fatalf("unexpected message order %+v", detail.Messages)
	}
	if svc.Count() != 2 {
		t.Fatalf("expected 2 answered questions, got %d", svc.Count())
	}
}

func TestServiceTitleIsTruncated(t *testing.T) {
	svc := chat.NewService(echo)
	ctx := context.Background()
	long := strings.Repeat("脑", 30)

	if _, err := svc.Ask(ctx, "doctor", "", long); err != nil {
		t.Fatalf("Ask err: %v", err)
	}
	title := svc.List(ctx, "doctor")[0].Title
	if title != strings.Repeat("脑", chat.TitleLimit)+"..." {
		t.Fatalf("unexpected title %q", title)
	}
}

func TestServiceHistoriesAreScopedToOwner(t *testing.T) {
	svc := chat.NewService(echo)
	ctx := context.Background()

	resp, _ := svc.Ask(ctx, "doctor", "", "q")
	if len(svc.List(ctx, "admin")) != 0 {
		t.Fatal("expected no histories for another user")
	}
	if _, err := svc.Get(ctx, "admin", resp.ChatHistoryID); !errors.Is(err, chat.ErrHistoryNotFound) {
		t.Fatalf("expected ErrHistoryNotFound, got %v", err)
	}
	if _, err := svc.Ask(ctx, "admin", resp.ChatHistoryID, "q"); !errors.Is(err, chat.ErrHistoryNotFound) {
		t.Fatalf("expected ErrHistoryNotFound, got %v", err)
	}
}

func TestServiceDelete(t *testing.T) {
	svc := chat.NewService(echo)
	ctx := context.Background()

	resp, _ := svc.Ask(ctx, "doctor", "", "q")
	if err := svc.Delete(ctx, "doctor", resp.ChatHistoryID); err != nil {
		t.Fatalf("Delete err: %v", err)
	}
	if err := svc.Delete(ctx, "doctor", resp.ChatHistoryID); !errors.Is(err, chat.ErrHistoryNotFound) {
		t.Fatalf("expected ErrHistoryNotFound, got %v", err)
	}
}

func TestServiceRejectsEmptyQuestion(t *testing.T) {
	svc := chat.NewService(nil)
	if _, err := svc.Ask(context.Background(), "doctor", "", "   "); !errors.Is(err, chat.ErrEmptyQuestion) {
		t.Fatalf("expected ErrEmptyQuestion, got %v", err)
	}
}

func TestServiceRecent(t *testing.T) {
	svc := chat.NewService(echo)
	ctx := context.Background()
	svc.Ask(ctx, "doctor", "", "q1")
	svc.Ask(ctx, "admin", "", "q2")

	recent := svc.Recent(ctx, 1)
	if len(recent) != 1 {
		t.Fatalf("expected 1 recent entry, got %d", len(recent))
	}
	if !strings.HasPrefix(recent[0].Answer, "answer: ") {
		t.Fatalf("unexpected answer %q", recent[0].Answer)
	}
}

package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mri-lab/mri-console/internal/model/chat"
	"github.com/mri-lab/mri-console/internal/model/dashboard"
)

var (
	ErrEmptyQuestion   = errors.New("问题不能为空")
	ErrHistoryNotFound = errors.New("chat history not found")
)

// TitleLimit caps a conversation title, taken from its first question.
const TitleLimit = 20

// Responder produces the assistant's answer for a question.
type Responder func(question string) string

// CannedResponder answers with a fixed reasoning block followed by advice.
func CannedResponder(question string) string {
	return fmt.Sprintf("<think>\n1. 识别问题：%s\n2. 结合常见MRI表现进行分析\n3. 给出就医建议\n</think>\n"+
		"关于“%s”，建议结合临床症状与影像学检查综合判断，如有不适请及时就医。", question, question)
}

type conversation struct {
	id        string
	owner     string
	title     string
	messages  []chat.Message
	updatedAt time.Time
}

// Service encapsulates conversation state management.
type Service struct {
	mu            sync.RWMutex
	conversations map[string]*conversation
	answer        Responder
	now           func() time.Time
}

// NewService bootstraps the in-memory store. A nil responder uses CannedResponder.
func NewService(answer Responder) *Service {
	if answer == nil {
		answer = CannedResponder
	}
	return &Service{
		conversations: make(map[string]*conversation),
		answer:        answer,
		now:           time.Now,
	}
}

// Ask answers a question. An empty historyID starts a new conversation
// titled after the question.
func (s *Service) Ask(_ context.Context, owner, historyID, text string) (chat.AskResponse, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return chat.AskResponse{}, ErrEmptyQuestion
	}
	answer := s.answer(text)

	s.mu.Lock()
	defer s.mu.Unlock()

	var conv *conversation
	if historyID == "" {
		conv = &conversation{
			id:       uuid.NewString(),
			owner:    owner,
			title:    titleFor(text),
			messages: make([]chat.Message, 0, 16),
		}
		s.conversations[conv.id] = conv
	} else {
		c, ok := s.conversations[historyID]
		if !ok || c.owner != owner {
			return chat.AskResponse{}, ErrHistoryNotFound
		}
		conv = c
	}

	conv.messages = append(conv.messages,
		chat.Message{IsUser: true, Content: text},
		chat.Message{IsUser: false, Content: answer},
	)
	conv.updatedAt = s.now().UTC()

	return chat.AskResponse{Response: answer, ChatHistoryID: conv.id}, nil
}

// List returns owner's conversations, most recently updated first.
func (s *Service) List(_ context.Context, owner string) []chat.History {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]chat.History, 0, len(s.conversations))
	for _, c := range s.conversations {
		if c.owner != owner {
			continue
		}
		out = append(out, chat.History{
			ID:           c.id,
			Title:        c.title,
			UpdatedAt:    c.updatedAt,
			MessageCount: len(c.messages),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

// Get returns a conversation with a copy of its transcript.
func (s *Service) Get(_ context.Context, owner, id string) (chat.Detail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[id]
	if !ok || c.owner != owner {
		return chat.Detail{}, ErrHistoryNotFound
	}
	copied := make([]chat.Message, len(c.messages))
	copy(copied, c.messages)
	return chat.Detail{ID: c.id, Title: c.title, Messages: copied, UpdatedAt: c.updatedAt}, nil
}

func (s *Service) Delete(_ context.Context, owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok || c.owner != owner {
		return ErrHistoryNotFound
	}
	delete(s.conversations, id)
	return nil
}

// Recent lists the latest question/answer pairs across all owners.
func (s *Service) Recent(_ context.Context, limit int) []dashboard.RecentQA {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []dashboard.RecentQA
	for _, c := range s.conversations {
		n := len(c.messages)
		if n < 2 {
			continue
		}
		out = append(out, dashboard.RecentQA{
			ID:        c.id,
			Question:  c.messages[n-2].Content,
			Answer:    c.messages[n-1].Content,
			CreatedAt: c.updatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Count returns the number of answered questions.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, c := range s.conversations {
		total += len(c.messages) / 2
	}
	return total
}

func titleFor(text string) string {
	r := []rune(text)
	if len(r) <= TitleLimit {
		return text
	}
	return string(r[:TitleLimit]) + "..."
}

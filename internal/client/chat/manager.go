// Package chat manages the medical Q&A conversation and its history list.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mri-lab/mri-console/internal/analysis/reasoning"
	"github.com/mri-lab/mri-console/internal/client/transport"
	"github.com/mri-lab/mri-console/internal/logger"
	model "github.com/mri-lab/mri-console/internal/model/chat"
)

// 系统提示文案。
const (
	MsgWelcome       = "您好！我是您的AI医疗助手。请问有什么可以帮您？"
	MsgEmptySession  = "此会话没有消息记录"
	MsgDeleted       = "当前会话已被删除"
	MsgCleared       = "所有会话记录已清空"
	MsgDeleteFailed  = "删除会话记录失败，请稍后重试"
	MsgClearFailed   = "清空会话记录失败，请稍后重试"
	MsgHistoryFailed = "加载历史记录失败，请稍后重试"
)

var ErrNothingToRetry = errors.New("no question to retry")

// API is the subset of the backend the manager needs.
type API interface {
	Ask(ctx context.Context, text, historyID string) (model.AskResponse, error)
	ChatHistories(ctx context.Context) ([]model.History, error)
	ChatHistory(ctx context.Context, id string) (model.Detail, error)
	DeleteChatHistory(ctx context.Context, id string) error
}

type TurnKind int

const (
	TurnUser TurnKind = iota
	TurnAssistant
	TurnSystem
	TurnError
)

// Turn is one rendered transcript entry.
type Turn struct {
	Kind     TurnKind
	Text     string
	Thinking []string
	// Retry marks an error turn that offers to resend the last question.
	Retry bool
}

// View renders the conversation.
type View interface {
	ClearTranscript()
	AppendTurn(turn Turn)
	SetThinking(on bool)
	RenderHistories(groups []Group)
}

type Options struct {
	API    API
	View   View
	Logger *zap.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Manager holds the active conversation. An empty id means no conversation
// is loaded.
type Manager struct {
	api    API
	view   View
	logger *zap.Logger
	now    func() time.Time

	mu           sync.Mutex
	activeID     string
	lastQuestion string
	histories    []model.History
	filter       string
}

func NewManager(opts Options) *Manager {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		api:    opts.API,
		view:   opts.View,
		logger: logger.OrNop(opts.Logger).Named("chat"),
		now:    now,
	}
}

// ActiveID returns the loaded conversation id, or "".
func (m *Manager) ActiveID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID
}

// StartNewChat drops the active conversation and clears the transcript.
func (m *Manager) StartNewChat() {
	m.mu.Lock()
	m.activeID = ""
	m.mu.Unlock()

	m.view.ClearTranscript()
	m.view.AppendTurn(Turn{Kind: TurnAssistant, Text: MsgWelcome})
}

// LoadChatHistoryDetail replaces the transcript with a stored conversation.
// On failure the current state is left untouched.
func (m *Manager) LoadChatHistoryDetail(ctx context.Context, id string) error {
	detail, err := m.api.ChatHistory(ctx, id)
	if err != nil {
		m.logger.Warn("load chat history failed", zap.String("history_id", id), zap.Error(err))
		if !errors.Is(err, transport.ErrSessionExpired) {
			m.view.AppendTurn(Turn{Kind: TurnError, Text: fmt.Sprintf("加载会话失败: %v", err)})
		}
		return err
	}

	m.mu.Lock()
	m.activeID = id
	m.mu.Unlock()

	m.view.ClearTranscript()
	if len(detail.Messages) == 0 {
		m.view.AppendTurn(Turn{Kind: TurnSystem, Text: MsgEmptySession})
		return nil
	}
	for _, msg := range detail.Messages {
		m.view.AppendTurn(toTurn(msg))
	}
	return nil
}

func toTurn(msg model.Message) Turn {
	if msg.IsUser {
		return Turn{Kind: TurnUser, Text: msg.Content}
	}
	parts := reasoning.Split(msg.Content)
	return Turn{Kind: TurnAssistant, Text: parts.Answer, Thinking: parts.Thinking}
}

// SendMessage asks a question in the active conversation. Blank text is
// ignored. The first answer of a new conversation adopts the id the backend
// created.
func (m *Manager) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	m.mu.Lock()
	m.lastQuestion = text
	historyID := m.activeID
	m.mu.Unlock()

	m.view.AppendTurn(Turn{Kind: TurnUser, Text: text})
	return m.ask(ctx, text, historyID)
}

// Retry resends the last question without echoing it again.
func (m *Manager) Retry(ctx context.Context) error {
	m.mu.Lock()
	text, historyID := m.lastQuestion, m.activeID
	m.mu.Unlock()
	if text == "" {
		return ErrNothingToRetry
	}
	return m.ask(ctx, text, historyID)
}

func (m *Manager) ask(ctx context.Context, text, historyID string) error {
	m.view.SetThinking(true)
	resp, err := m.api.Ask(ctx, text, historyID)
	m.view.SetThinking(false)

	if err != nil {
		m.logger.Warn("ask failed", zap.Error(err))
		if !errors.Is(err, transport.ErrSessionExpired) {
			m.view.AppendTurn(Turn{Kind: TurnError, Text: fmt.Sprintf("请求发生错误: %v", err), Retry: true})
		}
		return err
	}

	m.view.AppendTurn(toTurn(model.Message{Content: resp.Response}))

	adopted := false
	m.mu.Lock()
	if m.activeID == "" && resp.ChatHistoryID != "" {
		m.activeID = resp.ChatHistoryID
		adopted = true
	}
	m.mu.Unlock()

	if adopted {
		m.logger.Debug("conversation created", zap.String("history_id", resp.ChatHistoryID))
		if err := m.RefreshHistories(ctx); err != nil {
			m.logger.Warn("refresh histories failed", zap.Error(err))
		}
	}
	return nil
}

// DeleteHistory removes one conversation and refreshes the list.
func (m *Manager) DeleteHistory(ctx context.Context, id string) error {
	if err := m.api.DeleteChatHistory(ctx, id); err != nil {
		m.logger.Warn("delete chat history failed", zap.String("history_id", id), zap.Error(err))
		m.view.AppendTurn(Turn{Kind: TurnSystem, Text: MsgDeleteFailed})
		return err
	}

	m.mu.Lock()
	wasActive := m.activeID == id
	if wasActive {
		m.activeID = ""
	}
	m.mu.Unlock()

	if wasActive {
		m.view.ClearTranscript()
		m.view.AppendTurn(Turn{Kind: TurnSystem, Text: MsgDeleted})
	}
	return m.RefreshHistories(ctx)
}

// ClearAll deletes every known conversation concurrently, then resets.
func (m *Manager) ClearAll(ctx context.Context) error {
	m.mu.Lock()
	ids := make([]string, len(m.histories))
	for i, h := range m.histories {
		ids[i] = h.ID
	}
	m.mu.Unlock()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := m.api.DeleteChatHistory(ctx, id); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("delete %s: %w", id, err))
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		m.logger.Warn("clear chat histories failed", zap.Error(err))
		m.view.AppendTurn(Turn{Kind: TurnSystem, Text: MsgClearFailed})
		return err
	}

	m.mu.Lock()
	m.activeID = ""
	m.mu.Unlock()

	m.view.ClearTranscript()
	refreshErr := m.RefreshHistories(ctx)
	m.view.AppendTurn(Turn{Kind: TurnSystem, Text: MsgCleared})
	return refreshErr
}

// RefreshHistories reloads the list and renders it through the filter.
func (m *Manager) RefreshHistories(ctx context.Context) error {
	histories, err := m.api.ChatHistories(ctx)
	if err != nil {
		m.logger.Warn("load chat histories failed", zap.Error(err))
		if !errors.Is(err, transport.ErrSessionExpired) {
			m.view.AppendTurn(Turn{Kind: TurnSystem, Text: MsgHistoryFailed})
		}
		return err
	}

	m.mu.Lock()
	m.histories = histories
	m.mu.Unlock()
	m.render()
	return nil
}

// SetFilter narrows the rendered list by title.
func (m *Manager) SetFilter(query string) {
	m.mu.Lock()
	m.filter = query
	m.mu.Unlock()
	m.render()
}

// Histories returns the last loaded list, unfiltered.
func (m *Manager) Histories() []model.History {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.History(nil), m.histories...)
}

func (m *Manager) render() {
	m.mu.Lock()
	filtered := Filter(m.histories, m.filter)
	m.mu.Unlock()
	m.view.RenderHistories(GroupHistories(filtered, m.now()))
}

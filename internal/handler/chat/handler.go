package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mri-lab/mri-console/internal/middleware"
	"github.com/mri-lab/mri-console/internal/model/chat"
	chatService "github.com/mri-lab/mri-console/internal/service/chat"
	"github.com/mri-lab/mri-console/pkg/utils"
)

// Synthesizer turns answer text into MP3 audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Handler 医疗问答的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
	tts     Synthesizer
	logger  *zap.Logger
}

// New 创建问答处理器
func New(chatSvc *chatService.Service, tts Synthesizer, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{chatSvc: chatSvc, tts: tts, logger: log.Named("medical")}
}

// RegisterRoutes 注册问答相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/medical/ask", h.handleAsk)
	r.Get("/medical/chat-history", h.handleListHistories)
	r.Get("/medical/chat-history/{id}", h.handleGetHistory)
	r.Delete("/medical/chat-history/{id}", h.handleDeleteHistory)
	r.Post("/medical/text-to-speech", h.handleTextToSpeech)
}

func owner(r *http.Request) string {
	p, _ := middleware.PrincipalFrom(r.Context())
	return p.Username
}

// handleAsk 回答问题，首个问题创建新会话
func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	var payload chat.AskRequest
	if !utils.DecodeJSON(w, r, &payload) {
		return
	}

	resp, err := h.chatSvc.Ask(r.Context(), owner(r), payload.ChatHistoryID, payload.Text)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, chatService.ErrEmptyQuestion):
			status = http.StatusBadRequest
		case errors.Is(err, chatService.ErrHistoryNotFound):
			status = http.StatusNotFound
		}
		utils.RespondError(w, status, err.Error())
		return
	}

	h.logger.Debug("answered", zap.String("history_id", resp.ChatHistoryID))
	utils.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListHistories(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.chatSvc.List(r.Context(), owner(r)))
}

func (h *Handler) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	detail, err := h.chatSvc.Get(r.Context(), owner(r), chi.URLParam(r, "id"))
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, detail)
}

func (h *Handler) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.Delete(r.Context(), owner(r), chi.URLParam(r, "id")); err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"message": "聊天历史已删除"})
}

// handleTextToSpeech 合成回答音频
func (h *Handler) handleTextToSpeech(w http.ResponseWriter, r *http.Request) {
	var payload chat.SpeechRequest
	if !utils.DecodeJSON(w, r, &payload) {
		return
	}
	if strings.TrimSpace(payload.Text) == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	audio, err := h.tts.Synthesize(r.Context(), payload.Text)
	if err != nil {
		h.logger.Error("text to speech failed", zap.Error(err))
		utils.RespondError(w, http.StatusBadGateway, "语音合成失败")
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	w.Write(audio)
}

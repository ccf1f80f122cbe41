package auth

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	authService "github.com/mri-lab/mri-console/internal/service/auth"
	"github.com/mri-lab/mri-console/pkg/utils"
)

// Handler 登录与注册
type Handler struct {
	svc    *authService.Service
	logger *zap.Logger
}

func New(svc *authService.Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, logger: log.Named("auth")}
}

// RegisterRoutes 注册认证路由，均无需令牌
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/token", h.handleToken)
	r.Post("/auth/register", h.handleRegister)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Username    string `json:"username"`
	Role        string `json:"role"`
}

// handleToken 使用表单用户名密码换取令牌
func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid form body")
		return
	}

	user, err := h.svc.Authenticate(r.Context(), r.PostForm.Get("username"), r.PostForm.Get("password"))
	if err != nil {
		w.Header().Set("WWW-Authenticate", "Bearer")
		utils.RespondError(w, http.StatusUnauthorized, err.Error())
		return
	}

	token, err := h.svc.IssueToken(user)
	if err != nil {
		h.logger.Error("issue token failed", zap.String("username", user.Username), zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	h.logger.Info("login", zap.String("username", user.Username), zap.String("role", string(user.Role)))
	utils.RespondJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		Username:    user.Username,
		Role:        string(user.Role),
	})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in authService.RegisterInput
	if !utils.DecodeJSON(w, r, &in) {
		return
	}

	user, err := h.svc.Register(r.Context(), in)
	switch {
	case errors.Is(err, authService.ErrInvalidAdminKey):
		utils.RespondError(w, http.StatusForbidden, err.Error())
		return
	case err != nil:
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, user)
}

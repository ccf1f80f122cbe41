package reconstruction

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mri-lab/mri-console/internal/handler/ws"
	"github.com/mri-lab/mri-console/internal/middleware"
	reconService "github.com/mri-lab/mri-console/internal/service/reconstruction"
	"github.com/mri-lab/mri-console/pkg/utils"
)

const maxUpload = 32 << 20

// Publisher pushes job events to a user's live connections.
type Publisher interface {
	SendUser(username string, ev ws.Event) int
}

// Handler 图像重建接口
type Handler struct {
	svc    *reconService.Service
	events Publisher
	logger *zap.Logger
}

func New(svc *reconService.Service, events Publisher, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, events: events, logger: log.Named("reconstruction")}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/reconstruction/models", h.handleModels)
	r.Get("/models/{id}", h.handleModel)
	r.Post("/reconstruction/", h.handleReconstruct)
	r.Get("/reconstruction/results/{id}", h.handleResult)
	r.Get("/reconstruction-history", h.handleHistory)
}

func (h *Handler) handleModels(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.svc.Models(r.Context()))
}

func (h *Handler) handleModel(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Model(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, m)
}

// handleReconstruct 接收上传图像并重建，过程中通过 WebSocket 推送进度
func (h *Handler) handleReconstruct(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	modelID := r.FormValue("model_id")
	file, header, err := r.FormFile("file")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	user, _ := middleware.PrincipalFrom(r.Context())
	taskID := uuid.NewString()
	publish := func(ev ws.Event) {
		if h.events != nil {
			h.events.SendUser(user.Username, ev)
		}
	}

	_, modelErr := h.svc.Model(r.Context(), modelID)
	publish(ws.ModelLoadedEvent(modelID, modelErr == nil, modelMessage(modelErr)))
	publish(ws.ProgressEvent(taskID, 0, "processing", "开始重建"))

	result, err := h.svc.Reconstruct(r.Context(), modelID, header.Filename, data)
	if err != nil {
		publish(ws.ProgressEvent(taskID, 0, "failed", err.Error()))
		status := http.StatusInternalServerError
		if errors.Is(err, reconService.ErrModelNotFound) || errors.Is(err, reconService.ErrEmptyUpload) {
			status = http.StatusBadRequest
		}
		utils.RespondError(w, status, err.Error())
		return
	}

	publish(ws.ProgressEvent(taskID, 100, "completed", "重建完成"))
	publish(ws.ReconstructionCompleteEvent(taskID, result.ResultID, "重建完成"))

	h.logger.Info("reconstructed",
		zap.String("task_id", taskID),
		zap.String("model_id", modelID),
		zap.String("result_id", result.ResultID),
		zap.Int("bytes", len(data)),
	)
	utils.RespondJSON(w, http.StatusOK, result)
}

func modelMessage(err error) string {
	if err != nil {
		return err.Error()
	}
	return "模型加载成功"
}

func (h *Handler) handleResult(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Result(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	utils.RespondJSON(w, http.StatusOK, h.svc.History(r.Context(), page, size))
}

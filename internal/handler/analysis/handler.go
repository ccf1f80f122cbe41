package analysis

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	model "github.com/mri-lab/mri-console/internal/model/analysis"
	analysisService "github.com/mri-lab/mri-console/internal/service/analysis"
	"github.com/mri-lab/mri-console/pkg/utils"
)

const maxUpload = 32 << 20

// Handler 医学影像分析接口
type Handler struct {
	svc    *analysisService.Service
	logger *zap.Logger
}

func New(svc *analysisService.Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, logger: log.Named("analysis")}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/medical-analysis", func(r chi.Router) {
		r.Post("/analyze/{taskID}", h.handleAnalyze)
		r.Post("/analyze-upload", h.handleAnalyzeUpload)
		r.Get("/analysis/{taskID}", h.handleGet)
		r.Get("/report/{taskID}", h.handleReport)
	})
}

func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	result := h.svc.Analyze(r.Context(), taskID)
	utils.RespondJSON(w, http.StatusOK, model.Envelope{Success: true, Message: "分析完成", TaskID: taskID, Results: &result})
}

func (h *Handler) handleAnalyzeUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil || len(data) == 0 {
		utils.RespondJSON(w, http.StatusOK, model.Envelope{Success: false, Message: "上传文件为空"})
		return
	}

	taskID, result := h.svc.AnalyzeUpload(r.Context(), data)
	h.logger.Info("analyzed upload", zap.String("task_id", taskID), zap.Int("lesions", result.LesionDetection.LesionsCount))
	utils.RespondJSON(w, http.StatusOK, model.Envelope{Success: true, Message: "分析完成", TaskID: taskID, Results: &result})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	result, err := h.svc.Get(r.Context(), taskID)
	if err != nil {
		utils.RespondJSON(w, http.StatusOK, model.Envelope{Success: false, Message: err.Error(), TaskID: taskID})
		return
	}
	utils.RespondJSON(w, http.StatusOK, model.Envelope{Success: true, TaskID: taskID, Results: &result})
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("report_format")
	if format == "" {
		format = "markdown"
	}

	content, err := h.svc.Report(r.Context(), chi.URLParam(r, "taskID"), format)
	if err != nil {
		status := http.StatusNotFound
		if errors.Is(err, analysisService.ErrUnsupportedFormat) {
			status = http.StatusBadRequest
		}
		utils.RespondJSON(w, status, model.Report{Success: false, Message: err.Error(), Format: format})
		return
	}
	utils.RespondJSON(w, http.StatusOK, model.Report{Success: true, Format: format, Content: content})
}

package training

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mri-lab/mri-console/internal/model/job"
	trainingService "github.com/mri-lab/mri-console/internal/service/training"
	"github.com/mri-lab/mri-console/pkg/utils"
)

// Handler 在线训练与旧版训练接口，共用同一个模拟器
type Handler struct {
	sim    *trainingService.Simulator
	logger *zap.Logger
}

func New(sim *trainingService.Simulator, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{sim: sim, logger: log.Named("training")}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/online-training", func(r chi.Router) {
		r.Post("/", h.handleStart)
		r.Get("/status/{taskID}", h.handleStatus)
		r.Post("/stop/{taskID}", h.handleStop)
		r.Get("/check-model/{taskID}", h.handleCheckModel)
		r.Get("/download/{taskID}", h.handleDownload)
	})
	r.Route("/training", func(r chi.Router) {
		r.Post("/start", h.handleStart)
		r.Get("/progress/{taskID}", h.handleLegacyProgress)
	})
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var params job.TrainingParams
	if !utils.DecodeJSON(w, r, &params) {
		return
	}

	taskID, err := h.sim.Start(r.Context(), params)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.Info("training started", zap.String("task_id", taskID), zap.String("model", params.ModelName), zap.Int("epochs", params.Epochs))
	utils.RespondJSON(w, http.StatusOK, map[string]string{"task_id": taskID, "message": "训练任务已提交"})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.sim.Status(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, st)
}

// legacyProgress is the older progress shape: a single loss value and
// plain logs, without the loss series.
type legacyProgress struct {
	TaskID       string       `json:"task_id"`
	Status       job.Status   `json:"status"`
	Progress     float64      `json:"progress"`
	CurrentEpoch int          `json:"current_epoch"`
	TotalEpochs  int          `json:"total_epochs"`
	Loss         *float64     `json:"loss,omitempty"`
	Logs         []string     `json:"logs,omitempty"`
	Metrics      *job.Metrics `json:"metrics,omitempty"`
	Error        string       `json:"error,omitempty"`
	ModelPath    string       `json:"model_path,omitempty"`
}

func (h *Handler) handleLegacyProgress(w http.ResponseWriter, r *http.Request) {
	st, err := h.sim.Status(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, legacyProgress{
		TaskID:       st.TaskID,
		Status:       st.Status,
		Progress:     st.Progress,
		CurrentEpoch: st.CurrentEpoch,
		TotalEpochs:  st.TotalEpochs,
		Loss:         st.CurrentLoss,
		Logs:         st.LogMessages,
		Metrics:      st.Metrics,
		Error:        st.Error,
		ModelPath:    st.ModelPath,
	})
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if err := h.sim.Stop(r.Context(), taskID); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, trainingService.ErrJobNotFound) {
			status = http.StatusNotFound
		}
		utils.RespondError(w, status, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"task_id": taskID, "status": string(job.StatusStopping)})
}

func (h *Handler) handleCheckModel(w http.ResponseWriter, r *http.Request) {
	ready, err := h.sim.ModelReady(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"exists": ready})
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	data, name, err := h.sim.Model(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		status := http.StatusNotFound
		if errors.Is(err, trainingService.ErrModelNotReady) {
			status = http.StatusConflict
		}
		utils.RespondError(w, status, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

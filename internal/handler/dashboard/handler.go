package dashboard

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mri-lab/mri-console/internal/model/dashboard"
	chatService "github.com/mri-lab/mri-console/internal/service/chat"
	reconService "github.com/mri-lab/mri-console/internal/service/reconstruction"
	trainingService "github.com/mri-lab/mri-console/internal/service/training"
	"github.com/mri-lab/mri-console/pkg/utils"
)

const recentLimit = 5

// Handler 数据看板接口，汇总其他服务的数据
type Handler struct {
	recon    *reconService.Service
	chat     *chatService.Service
	training *trainingService.Simulator
	// Usage reports storage, cpu and memory percentages.
	Usage func() (storage, cpu, memory float64)
}

func New(recon *reconService.Service, chat *chatService.Service, training *trainingService.Simulator) *Handler {
	return &Handler{
		recon:    recon,
		chat:     chat,
		training: training,
		Usage:    func() (float64, float64, float64) { return 42.5, 18.0, 63.2 },
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/dashboard", func(r chi.Router) {
		r.Get("/stats", h.handleStats)
		r.Get("/recent-reconstructions", h.handleRecentReconstructions)
		r.Get("/recent-qa", h.handleRecentQA)
		r.Get("/reconstruction/{id}", h.handleReconstruction)
	})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	count, psnr, ssim := h.recon.Totals()
	storage, cpu, memory := h.Usage()
	utils.RespondJSON(w, http.StatusOK, dashboard.Stats{
		TotalReconstructions: count,
		TotalQuestions:       h.chat.Count(),
		TotalModels:          len(h.recon.Models(r.Context())) + h.training.Completed(),
		AveragePSNR:          psnr,
		AverageSSIM:          ssim,
		StorageUsage:         storage,
		CPUUsage:             cpu,
		MemoryUsage:          memory,
	})
}

func (h *Handler) handleRecentReconstructions(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.recon.Recent(r.Context(), recentLimit))
}

func (h *Handler) handleRecentQA(w http.ResponseWriter, r *http.Request) {
	recent := h.chat.Recent(r.Context(), recentLimit)
	if recent == nil {
		recent = []dashboard.RecentQA{}
	}
	utils.RespondJSON(w, http.StatusOK, recent)
}

func (h *Handler) handleReconstruction(w http.ResponseWriter, r *http.Request) {
	result, err := h.recon.Result(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, result)
}

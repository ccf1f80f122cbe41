package dashboard

import (
	"time"

	"github.com/mri-lab/mri-console/internal/model/reconstruction"
)

// Stats 数据看板汇总。
type Stats struct {
	TotalReconstructions int     `json:"total_reconstructions"`
	TotalQuestions       int     `json:"total_questions"`
	TotalModels          int     `json:"total_models"`
	AveragePSNR          float64 `json:"average_psnr"`
	AverageSSIM          float64 `json:"average_ssim"`
	StorageUsage         float64 `json:"storage_usage"`
	CPUUsage             float64 `json:"cpu_usage"`
	MemoryUsage          float64 `json:"memory_usage"`
}

// RecentReconstruction 最近的重建记录。
type RecentReconstruction struct {
	ID            string                 `json:"id"`
	ModelName     string                 `json:"model_name"`
	Status        string                 `json:"status"`
	Metrics       reconstruction.Metrics `json:"metrics"`
	ExecutionTime float64                `json:"execution_time"`
	CreatedAt     time.Time              `json:"created_at"`
}

// RecentQA 最近的问答记录。
type RecentQA struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

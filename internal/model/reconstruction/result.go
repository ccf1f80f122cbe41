package reconstruction

import "time"

// Metrics 重建质量指标。
type Metrics struct {
	PSNR float64 `json:"psnr"`
	SSIM float64 `json:"ssim"`
	NSE  float64 `json:"nse"`
}

// Result 单次重建的结果。ReconstructedImage 为 base64 编码的 PNG。
type Result struct {
	Success            bool    `json:"success"`
	Message            string  `json:"message,omitempty"`
	ResultID           string  `json:"result_id"`
	ReconstructedImage string  `json:"reconstructed_image,omitempty"`
	Metrics            Metrics `json:"metrics"`
	ExecutionTime      float64 `json:"execution_time"`
	HistoryID          string  `json:"history_id,omitempty"`
}

// Model 可选的重建模型。
type Model struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Type        string    `json:"type,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// HistoryRecord 重建历史中的一条记录。
type HistoryRecord struct {
	ID            string    `json:"id"`
	ModelID       string    `json:"model_id"`
	Filename      string    `json:"filename"`
	Status        string    `json:"status"`
	Metrics       Metrics   `json:"metrics"`
	ExecutionTime float64   `json:"execution_time"`
	CreatedAt     time.Time `json:"created_at"`
}

// HistoryPage 分页的重建历史。
type HistoryPage struct {
	Records  []HistoryRecord `json:"records"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

// TotalPages is ceil(Total / PageSize).
func (p HistoryPage) TotalPages() int {
	if p.PageSize <= 0 {
		return 0
	}
	return (p.Total + p.PageSize - 1) / p.PageSize
}

package job

// Status is the lifecycle state of a reconstruction or training job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStopping  Status = "stopping"
	StatusStopped   Status = "stopped"
)

// Terminal reports whether no further transitions happen after s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusStopped:
		return true
	default:
		return false
	}
}

// Metrics are image quality metrics reported by reconstruction and training.
type Metrics struct {
	PSNR float64 `json:"psnr"`
	SSIM float64 `json:"ssim"`
	NSE  float64 `json:"nse,omitempty"`
}

// Snapshot is one normalized status observation of a job. Both training APIs
// are decoded into it.
type Snapshot struct {
	TaskID       string
	Status       Status
	Progress     float64
	CurrentEpoch int
	TotalEpochs  int
	Loss         *float64
	// LossHistory is non-nil only when the backend sent the whole series.
	LossHistory []float64
	Logs        []string
	Metrics     *Metrics
	Error       string
	ModelPath   string
}

// TrainingParams 在线训练提交参数。
type TrainingParams struct {
	ModelName    string  `json:"model_name"`
	Epochs       int     `json:"epochs"`
	BatchSize    int     `json:"batch_size"`
	LearningRate float64 `json:"learning_rate"`
	DatasetPath  string  `json:"dataset_path,omitempty"`
}

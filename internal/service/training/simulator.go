// Package training simulates model training jobs for the stand-in backend.
// Every status read advances a running job by one epoch.
package training

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mri-lab/mri-console/internal/model/job"
)

var (
	ErrJobNotFound   = errors.New("training task not found")
	ErrNotRunning    = errors.New("training task is not running")
	ErrModelNotReady = errors.New("model file is not ready")
	ErrInvalidParams = errors.New("model_name is required")
)

const DefaultEpochs = 10

// Status is one status read. LogMessages holds only the lines produced
// since the previous read.
type Status struct {
	TaskID       string       `json:"task_id"`
	Status       job.Status   `json:"status"`
	Progress     float64      `json:"progress"`
	CurrentEpoch int          `json:"current_epoch"`
	TotalEpochs  int          `json:"total_epochs"`
	CurrentLoss  *float64     `json:"current_loss,omitempty"`
	LossHistory  []float64    `json:"loss_history"`
	LogMessages  []string     `json:"log_messages,omitempty"`
	Metrics      *job.Metrics `json:"metrics,omitempty"`
	Error        string       `json:"error,omitempty"`
	ModelPath    string       `json:"model_path,omitempty"`
}

type task struct {
	id      string
	params  job.TrainingParams
	status  job.Status
	epoch   int
	losses  []float64
	pending []string
	metrics *job.Metrics
}

// Simulator 内存训练任务模拟器。
type Simulator struct {
	mu    sync.Mutex
	tasks map[string]*task
}

func NewSimulator() *Simulator {
	return &Simulator{tasks: make(map[string]*task)}
}

// Start registers a pending job.
func (s *Simulator) Start(_ context.Context, params job.TrainingParams) (string, error) {
	if strings.TrimSpace(params.ModelName) == "" {
		return "", ErrInvalidParams
	}
	if params.Epochs <= 0 {
		params.Epochs = DefaultEpochs
	}

	t := &task{
		id:      uuid.NewString(),
		params:  params,
		status:  job.StatusPending,
		pending: []string{fmt.Sprintf("已提交训练任务: %s", params.ModelName)},
	}

	s.mu.Lock()
	s.tasks[t.id] = t
	s.mu.Unlock()
	return t.id, nil
}

// Status advances the job one step and reports it.
func (s *Simulator) Status(_ context.Context, taskID string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return Status{}, ErrJobNotFound
	}
	t.advance()
	return t.snapshot(), nil
}

// Stop moves a live job to stopping; the next read finishes it as stopped.
func (s *Simulator) Stop(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return ErrJobNotFound
	}
	if t.status != job.StatusPending && t.status != job.StatusRunning {
		return ErrNotRunning
	}
	t.status = job.StatusStopping
	t.log("收到停止请求，正在停止训练...")
	return nil
}

// ModelReady reports whether the job completed and has a model file.
func (s *Simulator) ModelReady(_ context.Context, taskID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return false, ErrJobNotFound
	}
	return t.status == job.StatusCompleted, nil
}

// Model returns the trained weights and their file name.
func (s *Simulator) Model(ctx context.Context, taskID string) ([]byte, string, error) {
	ready, err := s.ModelReady(ctx, taskID)
	if err != nil {
		return nil, "", err
	}
	if !ready {
		return nil, "", ErrModelNotReady
	}

	s.mu.Lock()
	t := s.tasks[taskID]
	name := modelFile(t)
	data := fmt.Appendf(nil, "model=%s epochs=%d loss=%.6f\n", t.params.ModelName, t.params.Epochs, t.losses[len(t.losses)-1])
	s.mu.Unlock()
	return data, name, nil
}

// Completed counts finished jobs.
func (s *Simulator) Completed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if t.status == job.StatusCompleted {
			n++
		}
	}
	return n
}

func (t *task) log(line string) {
	t.pending = append(t.pending, line)
}

func (t *task) advance() {
	switch t.status {
	case job.StatusPending:
		t.status = job.StatusRunning
		t.log(fmt.Sprintf("开始训练模型 %s，共 %d 轮", t.params.ModelName, t.params.Epochs))
	case job.StatusRunning:
		t.epoch++
		loss := epochLoss(t.epoch)
		t.losses = append(t.losses, loss)
		t.log(fmt.Sprintf("Epoch %d/%d, loss: %.6f", t.epoch, t.params.Epochs, loss))
		if t.epoch >= t.params.Epochs {
			t.status = job.StatusCompleted
			t.metrics = &job.Metrics{PSNR: 28 + float64(t.epoch)*0.3, SSIM: math.Min(0.99, 0.8+float64(t.epoch)*0.01)}
			t.log("训练完成，模型已保存: " + modelFile(t))
		}
	case job.StatusStopping:
		t.status = job.StatusStopped
		t.log("训练已停止")
	}
}

func (t *task) snapshot() Status {
	st := Status{
		TaskID:       t.id,
		Status:       t.status,
		Progress:     float64(t.epoch) / float64(t.params.Epochs) * 100,
		CurrentEpoch: t.epoch,
		TotalEpochs:  t.params.Epochs,
		LossHistory:  append([]float64{}, t.losses...),
		LogMessages:  t.pending,
		Metrics:      t.metrics,
	}
	if n := len(t.losses); n > 0 {
		loss := t.losses[n-1]
		st.CurrentLoss = &loss
	}
	if t.status == job.StatusCompleted {
		st.ModelPath = "models/" + modelFile(t)
	}
	t.pending = nil
	return st
}

func epochLoss(epoch int) float64 {
	return math.Round(1/float64(epoch+1)*1e6) / 1e6
}

func modelFile(t *task) string {
	return fmt.Sprintf("%s_%s.pth", t.params.ModelName, t.id[:8])
}

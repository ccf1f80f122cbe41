// Package monitor polls a training job once per interval and drives a View
// until the job reaches a terminal status.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mri-lab/mri-console/internal/logger"
	"github.com/mri-lab/mri-console/internal/metrics"
	"github.com/mri-lab/mri-console/internal/model/job"
)

const (
	DefaultInterval = time.Second
	// SeriesWindow caps the chart when points are appended one at a time.
	SeriesWindow = 100
)

var (
	ErrNoControls    = errors.New("monitor has no job controls")
	ErrNoTask        = errors.New("monitor has no task")
	ErrModelNotReady = errors.New("trained model is not available yet")
)

// 终态日志文案。
const (
	MsgCompleted = "训练已完成！您现在可以下载模型或前往MRI重建页面使用它。"
	MsgFailed    = "训练失败，请检查日志了解详情。"
	MsgStopped   = "训练已手动停止。"
)

// Color is the progress bar colour class.
type Color string

const (
	ColorNeutral Color = "neutral"
	ColorWarning Color = "warning"
	ColorDanger  Color = "danger"
)

// ColorFor maps a percentage to its bar colour.
func ColorFor(percent float64) Color {
	switch {
	case percent > 90:
		return ColorDanger
	case percent > 70:
		return ColorWarning
	default:
		return ColorNeutral
	}
}

// Actions are the enabled states of the job buttons.
type Actions struct {
	Stop     bool
	Download bool
}

// View renders monitor output.
type View interface {
	SetStatus(status job.Status)
	SetProgress(percent float64, color Color)
	SetMetric(epoch, totalEpochs int, loss *float64)
	AppendLogs(lines []string)
	SetSeries(points []float64)
	SetActions(actions Actions)
	AppendError(message string)
}

// Source fetches one status snapshot.
type Source func(ctx context.Context, taskID string) (job.Snapshot, error)

// Controls are the job endpoints beyond status polling.
type Controls interface {
	StopOnlineTraining(ctx context.Context, taskID string) error
	CheckModel(ctx context.Context, taskID string) (bool, error)
	DownloadModel(ctx context.Context, taskID string) (io.ReadCloser, string, error)
}

type Options struct {
	Source   Source
	View     View
	Controls Controls
	Interval time.Duration
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// Monitor runs at most one polling loop at a time.
type Monitor struct {
	opts   Options
	logger *zap.Logger

	mu     sync.Mutex
	taskID string
	cancel context.CancelFunc
	done   chan struct{}
	err    error
	series []float64
}

func New(opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Monitor{
		opts:   opts,
		logger: logger.OrNop(opts.Logger).Named("monitor"),
	}
}

// Start begins polling taskID, stopping any previous loop first.
func (m *Monitor) Start(ctx context.Context, taskID string) {
	m.Stop()

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	m.mu.Lock()
	m.taskID = taskID
	m.cancel = cancel
	m.done = done
	m.err = nil
	m.series = nil
	m.mu.Unlock()

	m.opts.View.SetSeries(nil)
	m.opts.View.SetActions(Actions{Stop: true})
	m.logger.Info("polling started", zap.String("task_id", taskID))

	go m.loop(loopCtx, taskID, done)
}

// Stop cancels the active loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether a loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Wait blocks until the current loop exits and returns the fetch error that
// ended it, if any.
func (m *Monitor) Wait() error {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// TaskID returns the task of the latest Start.
func (m *Monitor) TaskID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.taskID
}

func (m *Monitor) loop(ctx context.Context, taskID string, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snap, err := m.opts.Source(ctx, taskID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.opts.Metrics.PollTick("error")
			m.logger.Warn("status poll failed", zap.String("task_id", taskID), zap.Error(err))
			m.opts.View.AppendError(fmt.Sprintf("获取训练状态失败: %v", err))

			m.mu.Lock()
			m.err = err
			m.mu.Unlock()
			return
		}
		m.opts.Metrics.PollTick("ok")

		m.apply(snap)
		if snap.Status.Terminal() {
			m.finalize(snap)
			return
		}
	}
}

func (m *Monitor) apply(snap job.Snapshot) {
	v := m.opts.View
	v.SetStatus(snap.Status)
	v.SetProgress(snap.Progress, ColorFor(snap.Progress))
	v.SetMetric(snap.CurrentEpoch, snap.TotalEpochs, snap.Loss)
	if len(snap.Logs) > 0 {
		v.AppendLogs(snap.Logs)
	}

	m.mu.Lock()
	switch {
	case len(snap.LossHistory) > 0:
		m.series = append([]float64(nil), snap.LossHistory...)
	case snap.Loss != nil:
		m.series = append(m.series, *snap.Loss)
		if len(m.series) > SeriesWindow {
			m.series = append([]float64(nil), m.series[len(m.series)-SeriesWindow:]...)
		}
	}
	points := append([]float64(nil), m.series...)
	m.mu.Unlock()
	v.SetSeries(points)

	if snap.Status == job.StatusStopping {
		v.SetActions(Actions{})
	}
}

func (m *Monitor) finalize(snap job.Snapshot) {
	v := m.opts.View
	switch snap.Status {
	case job.StatusCompleted:
		v.SetActions(Actions{Download: true})
		v.AppendLogs([]string{MsgCompleted})
	case job.StatusFailed:
		v.SetActions(Actions{})
		msg := snap.Error
		if msg == "" {
			msg = MsgFailed
		}
		v.AppendError(msg)
	case job.StatusStopped:
		v.SetActions(Actions{})
		v.AppendLogs([]string{MsgStopped})
	}
	m.logger.Info("polling finished", zap.String("task_id", snap.TaskID), zap.String("status", string(snap.Status)))
}

// StopJob asks the backend to stop the current job. Polling continues until
// the job reports stopped.
func (m *Monitor) StopJob(ctx context.Context) error {
	if m.opts.Controls == nil {
		return ErrNoControls
	}
	taskID := m.TaskID()
	if taskID == "" {
		return ErrNoTask
	}
	if err := m.opts.Controls.StopOnlineTraining(ctx, taskID); err != nil {
		m.opts.View.AppendError(fmt.Sprintf("停止训练失败: %v", err))
		return fmt.Errorf("stop job %s: %w", taskID, err)
	}
	m.opts.View.SetStatus(job.StatusStopping)
	m.opts.View.SetActions(Actions{})
	return nil
}

// Download writes the trained model to w and returns its file name.
func (m *Monitor) Download(ctx context.Context, w io.Writer) (string, error) {
	if m.opts.Controls == nil {
		return "", ErrNoControls
	}
	taskID := m.TaskID()
	if taskID == "" {
		return "", ErrNoTask
	}

	ok, err := m.opts.Controls.CheckModel(ctx, taskID)
	if err != nil {
		return "", fmt.Errorf("check model %s: %w", taskID, err)
	}
	if !ok {
		return "", ErrModelNotReady
	}

	body, name, err := m.opts.Controls.DownloadModel(ctx, taskID)
	if err != nil {
		return "", fmt.Errorf("download model %s: %w", taskID, err)
	}
	defer body.Close()

	if _, err := io.Copy(w, body); err != nil {
		return "", fmt.Errorf("write model %s: %w", name, err)
	}
	return name, nil
}

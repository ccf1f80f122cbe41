package monitor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mri-lab/mri-console/internal/model/job"
)

type recordingView struct {
	mu       sync.Mutex
	statuses []job.Status
	colors   []Color
	logs     []string
	series   []float64
	actions  []Actions
	errs     []string
}

func (v *recordingView) SetStatus(s job.Status) {
	v.mu.Lock()
	v.statuses = append(v.statuses, s)
	v.mu.Unlock()
}

func (v *recordingView) SetProgress(_ float64, c Color) {
	v.mu.Lock()
	v.colors = append(v.colors, c)
	v.mu.Unlock()
}

func (v *recordingView) SetMetric(int, int, *float64) {}

func (v *recordingView) AppendLogs(lines []string) {
	v.mu.Lock()
	v.logs = append(v.logs, lines...)
	v.mu.Unlock()
}

func (v *recordingView) SetSeries(points []float64) {
	v.mu.Lock()
	v.series = points
	v.mu.Unlock()
}

func (v *recordingView) SetActions(a Actions) {
	v.mu.Lock()
	v.actions = append(v.actions, a)
	v.mu.Unlock()
}

func (v *recordingView) AppendError(msg string) {
	v.mu.Lock()
	v.errs = append(v.errs, msg)
	v.mu.Unlock()
}

func (v *recordingView) lastActions() Actions {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.actions[len(v.actions)-1]
}

func loss(v float64) *float64 { return &v }

// scripted returns snaps in order and repeats the last one.
func scripted(calls *atomic.Int32, snaps ...job.Snapshot) Source {
	return func(ctx context.Context, taskID string) (job.Snapshot, error) {
		n := int(calls.Add(1))
		if n > len(snaps) {
			n = len(snaps)
		}
		s := snaps[n-1]
		s.TaskID = taskID
		return s, nil
	}
}

func TestColorFor(t *testing.T) {
	cases := map[float64]Color{0: ColorNeutral, 70: ColorNeutral, 70.5: ColorWarning, 90: ColorWarning, 91: ColorDanger, 100: ColorDanger}
	for p, want := range cases {
		if got := ColorFor(p); got != want {
			t.Fatalf("expected %s for %v, got %s", want, p, got)
		}
	}
}

func TestMonitorStopsAtCompleted(t *testing.T) {
	var calls atomic.Int32
	view := &recordingView{}
	m := New(Options{
		View:     view,
		Interval: 5 * time.Millisecond,
		Source: scripted(&calls,
			job.Snapshot{Status: job.StatusRunning, Progress: 50, Loss: loss(0.5), Logs: []string{"epoch 1"}},
			job.Snapshot{Status: job.StatusRunning, Progress: 80, Loss: loss(0.4)},
			job.Snapshot{Status: job.StatusCompleted, Progress: 100, Loss: loss(0.3)},
		),
	})

	m.Start(context.Background(), "t1")
	if err := m.Wait(); err != nil {
		t.Fatalf("expected nil wait error, got %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 status requests, got %d", got)
	}
	if m.Running() {
		t.Fatal("expected loop to be stopped")
	}

	view.mu.Lock()
	defer view.mu.Unlock()
	if view.actions[0] != (Actions{Stop: true}) {
		t.Fatalf("expected stop enabled at start, got %+v", view.actions[0])
	}
	if last := view.actions[len(view.actions)-1]; last != (Actions{Download: true}) {
		t.Fatalf("expected download enabled at completion, got %+v", last)
	}
	wantColors := []Color{ColorNeutral, ColorWarning, ColorDanger}
	for i, c := range wantColors {
		if view.colors[i] != c {
			t.Fatalf("expected colors %v, got %v", wantColors, view.colors)
		}
	}
	if len(view.series) != 3 || view.series[2] != 0.3 {
		t.Fatalf("expected 3 series points, got %v", view.series)
	}
	if view.logs[0] != "epoch 1" || view.logs[len(view.logs)-1] != MsgCompleted {
		t.Fatalf("unexpected logs %v", view.logs)
	}
}

func TestMonitorFailedShowsError(t *testing.T) {
	var calls atomic.Int32
	view := &recordingView{}
	m := New(Options{
		View:     view,
		Interval: 5 * time.Millisecond,
		Source:   scripted(&calls, job.Snapshot{Status: job.StatusFailed, Error: "CUDA out of memory"}),
	})

	m.Start(context.Background(), "t1")
	m.Wait()

	if view.lastActions() != (Actions{}) {
		t.Fatalf("expected all actions disabled, got %+v", view.lastActions())
	}
	view.mu.Lock()
	defer view.mu.Unlock()
	if len(view.errs) != 1 || view.errs[0] != "CUDA out of memory" {
		t.Fatalf("expected backend error appended, got %v", view.errs)
	}
}

func TestMonitorFetchErrorStopsLoop(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("boom")
	view := &recordingView{}
	m := New(Options{
		View:     view,
		Interval: 5 * time.Millisecond,
		Source: func(ctx context.Context, taskID string) (job.Snapshot, error) {
			if calls.Add(1) == 2 {
				return job.Snapshot{}, boom
			}
			return job.Snapshot{Status: job.StatusRunning, Progress: 10}, nil
		},
	})

	m.Start(context.Background(), "t1")
	if err := m.Wait(); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected no retry after error, got %d requests", got)
	}
	view.mu.Lock()
	defer view.mu.Unlock()
	if len(view.errs) != 1 || !strings.Contains(view.errs[0], "boom") {
		t.Fatalf("expected error entry, got %v", view.errs)
	}
}

func TestStartReplacesPreviousLoop(t *testing.T) {
	var first, second atomic.Int32
	m := New(Options{
		View:     &recordingView{},
		Interval: 5 * time.Millisecond,
		Source: func(ctx context.Context, taskID string) (job.Snapshot, error) {
			if taskID == "a" {
				first.Add(1)
			} else {
				second.Add(1)
			}
			return job.Snapshot{Status: job.StatusRunning}, nil
		},
	})

	m.Start(context.Background(), "a")
	time.Sleep(20 * time.Millisecond)
	m.Start(context.Background(), "b")
	before := first.Load()
	time.Sleep(30 * time.Millisecond)
	m.Stop()

	if first.Load() != before {
		t.Fatalf("expected first loop stopped, requests went %d -> %d", before, first.Load())
	}
	if second.Load() == 0 {
		t.Fatal("expected second loop to poll")
	}
	if m.Running() {
		t.Fatal("expected no loop after Stop")
	}
}

func TestSeriesWindowAndFullHistory(t *testing.T) {
	view := &recordingView{}
	m := New(Options{View: view})

	for i := 0; i < SeriesWindow+5; i++ {
		m.apply(job.Snapshot{Status: job.StatusRunning, Loss: loss(float64(i))})
	}
	if len(view.series) != SeriesWindow || view.series[0] != 5 || view.series[SeriesWindow-1] != float64(SeriesWindow+4) {
		t.Fatalf("expected window of last %d points, got len %d first %v", SeriesWindow, len(view.series), view.series[0])
	}

	m.apply(job.Snapshot{Status: job.StatusRunning, LossHistory: []float64{3, 2, 1}})
	if len(view.series) != 3 || view.series[0] != 3 {
		t.Fatalf("expected full history to replace series, got %v", view.series)
	}

	m.apply(job.Snapshot{Status: job.StatusStopping})
	if view.lastActions() != (Actions{}) {
		t.Fatalf("expected actions disabled while stopping, got %+v", view.lastActions())
	}
}

func TestEmptyHistoryAppendsCurrentLoss(t *testing.T) {
	view := &recordingView{}
	m := New(Options{View: view})

	m.apply(job.Snapshot{Status: job.StatusRunning, Loss: loss(0.5), LossHistory: []float64{}})
	m.apply(job.Snapshot{Status: job.StatusCompleted, Loss: loss(0.4), LossHistory: []float64{}})

	if len(view.series) != 2 || view.series[0] != 0.5 || view.series[1] != 0.4 {
		t.Fatalf("expected two appended points, got %v", view.series)
	}
}

type fakeControls struct {
	stopped string
	ready   bool
}

func (f *fakeControls) StopOnlineTraining(_ context.Context, id string) error {
	f.stopped = id
	return nil
}

func (f *fakeControls) CheckModel(context.Context, string) (bool, error) { return f.ready, nil }

func (f *fakeControls) DownloadModel(_ context.Context, id string) (io.ReadCloser, string, error) {
	return io.NopCloser(strings.NewReader("weights")), "model_" + id + ".pth", nil
}

func TestStopJobAndDownload(t *testing.T) {
	var calls atomic.Int32
	view := &recordingView{}
	ctrl := &fakeControls{}
	m := New(Options{
		View:     view,
		Controls: ctrl,
		Interval: time.Hour,
		Source:   scripted(&calls, job.Snapshot{Status: job.StatusRunning}),
	})
	m.Start(context.Background(), "t7")
	defer m.Stop()

	if err := m.StopJob(context.Background()); err != nil {
		t.Fatalf("StopJob err: %v", err)
	}
	if ctrl.stopped != "t7" {
		t.Fatalf("expected stop for t7, got %q", ctrl.stopped)
	}
	view.mu.Lock()
	status := view.statuses[len(view.statuses)-1]
	view.mu.Unlock()
	if status != job.StatusStopping {
		t.Fatalf("expected stopping status, got %s", status)
	}

	var buf bytes.Buffer
	if _, err := m.Download(context.Background(), &buf); !errors.Is(err, ErrModelNotReady) {
		t.Fatalf("expected ErrModelNotReady, got %v", err)
	}
	ctrl.ready = true
	name, err := m.Download(context.Background(), &buf)
	if err != nil {
		t.Fatalf("Download err: %v", err)
	}
	if name != "model_t7.pth" || buf.String() != "weights" {
		t.Fatalf("unexpected download %s %q", name, buf.String())
	}
}

func TestStopJobWithoutControls(t *testing.T) {
	m := New(Options{View: &recordingView{}})
	if err := m.StopJob(context.Background()); !errors.Is(err, ErrNoControls) {
		t.Fatalf("expected ErrNoControls, got %v", err)
	}
}

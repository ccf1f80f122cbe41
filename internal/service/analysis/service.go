// Package analysis serves canned medical image analysis results.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/google/uuid"

	model "github.com/mri-lab/mri-console/internal/model/analysis"
)

var (
	ErrNotFound          = errors.New("分析结果不存在")
	ErrUnsupportedFormat = errors.New("不支持的报告格式")
)

// Service 分析结果的内存存储。
type Service struct {
	mu      sync.RWMutex
	results map[string]model.Result
}

func NewService() *Service {
	return &Service{results: make(map[string]model.Result)}
}

// Analyze produces and stores the analysis for taskID.
func (s *Service) Analyze(_ context.Context, taskID string) model.Result {
	r := cannedResult(taskID)
	s.mu.Lock()
	s.results[taskID] = r
	s.mu.Unlock()
	return r
}

// AnalyzeUpload analyzes an uploaded image under a fresh task id.
func (s *Service) AnalyzeUpload(ctx context.Context, data []byte) (string, model.Result) {
	h := fnv.New32a()
	h.Write(data)
	taskID := fmt.Sprintf("upload-%08x-%s", h.Sum32(), uuid.NewString()[:8])
	return taskID, s.Analyze(ctx, taskID)
}

func (s *Service) Get(_ context.Context, taskID string) (model.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[taskID]
	if !ok {
		return model.Result{}, ErrNotFound
	}
	return r, nil
}

// Report renders a stored analysis. Only markdown is supported.
func (s *Service) Report(ctx context.Context, taskID, format string) (string, error) {
	if format == "" {
		format = "markdown"
	}
	if format != "markdown" {
		return "", ErrUnsupportedFormat
	}
	r, err := s.Get(ctx, taskID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# MRI分析报告\n\n任务: `%s`\n\n", taskID)
	fmt.Fprintf(&b, "## 诊断\n\n%s\n\n", r.Diagnosis)
	fmt.Fprintf(&b, "## 体积分析\n\n| 项目 | 数值 |\n|---|---|\n| 总体积 | %.1f |\n| 灰质 | %.1f |\n| 白质 | %.1f |\n| 脑脊液 | %.1f |\n\n",
		r.VolumeAnalysis.TotalVolume, r.VolumeAnalysis.GrayMatter, r.VolumeAnalysis.WhiteMatter, r.VolumeAnalysis.CSF)
	fmt.Fprintf(&b, "## 病灶检测\n\n发现 %d 处病灶，置信度 %.2f\n\n", r.LesionDetection.LesionsCount, r.LesionDetection.Confidence)
	if len(r.Abnormalities) > 0 {
		b.WriteString("## 异常\n\n")
		for _, a := range r.Abnormalities {
			fmt.Fprintf(&b, "- %s\n", a)
		}
	}
	return b.String(), nil
}

func cannedResult(taskID string) model.Result {
	h := fnv.New32a()
	h.Write([]byte(taskID))
	sum := h.Sum32()
	lesions := int(sum % 3)

	r := model.Result{
		Diagnosis:  "未见明显异常",
		AlertLevel: model.AlertNormal,
		VolumeAnalysis: model.VolumeAnalysis{
			TotalVolume: 1400 + float64(sum%100),
			GrayMatter:  650 + float64(sum%40),
			WhiteMatter: 550 + float64(sum%30),
			CSF:         150 + float64(sum%20),
		},
		LesionDetection: model.LesionDetection{
			LesionsCount: lesions,
			Confidence:   0.9,
		},
		MotionDetection: model.MotionDetection{Severity: "none", Confidence: 0.95},
		Abnormalities:   []string{},
		VisualizationData: model.VisualizationData{
			BrainMesh: &model.Mesh{
				Vertices: [][3]float64{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
				Faces:    [][3]int{{0, 1, 2}, {0, 1, 3}, {0, 2, 3}, {1, 2, 3}},
			},
		},
	}
	if lesions > 0 {
		r.Diagnosis = fmt.Sprintf("发现 %d 处疑似病灶，建议进一步检查", lesions)
		r.AlertLevel = model.AlertWarning
		if lesions > 1 {
			r.AlertLevel = model.AlertAlert
		}
		r.LesionDetection.TotalVolume = float64(lesions) * 1.2
		r.LesionDetection.Abnormal = true
		r.Abnormalities = append(r.Abnormalities, "白质高信号")
		r.VisualizationData.LesionMesh = &model.Mesh{
			Vertices: [][3]float64{{0.2, 0.2, 0.2}, {0.3, 0.2, 0.2}, {0.2, 0.3, 0.2}},
			Faces:    [][3]int{{0, 1, 2}},
		}
	}
	return r
}

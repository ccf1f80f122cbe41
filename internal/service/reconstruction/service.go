// Package reconstruction produces deterministic reconstruction results for
// the stand-in backend and keeps their history.
package reconstruction

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mri-lab/mri-console/internal/model/dashboard"
	model "github.com/mri-lab/mri-console/internal/model/reconstruction"
)

var (
	ErrModelNotFound  = errors.New("模型不存在")
	ErrResultNotFound = errors.New("重建结果不存在")
	ErrEmptyUpload    = errors.New("上传文件为空")
)

const DefaultPageSize = 10

var seedModels = []model.Model{
	{ID: "unet", Name: "U-Net", Description: "基础U-Net欠采样重建模型", Type: "cnn"},
	{ID: "cascade", Name: "CascadeNet", Description: "级联数据一致性网络", Type: "cnn"},
	{ID: "kiki", Name: "KIKI-Net", Description: "k空间与图像域交替重建", Type: "hybrid"},
}

type record struct {
	result  model.Result
	history model.HistoryRecord
	model   string
}

// Service 重建结果与历史的内存存储。
type Service struct {
	mu      sync.RWMutex
	models  []model.Model
	results map[string]*record
	order   []string
	now     func() time.Time
}

func NewService() *Service {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	models := make([]model.Model, len(seedModels))
	copy(models, seedModels)
	for i := range models {
		models[i].CreatedAt = created
	}
	return &Service{
		models:  models,
		results: make(map[string]*record),
		now:     time.Now,
	}
}

func (s *Service) Models(_ context.Context) []model.Model {
	out := make([]model.Model, len(s.models))
	copy(out, s.models)
	return out
}

func (s *Service) Model(_ context.Context, id string) (model.Model, error) {
	for _, m := range s.models {
		if m.ID == id {
			return m, nil
		}
	}
	return model.Model{}, ErrModelNotFound
}

// Reconstruct derives metrics and a preview from the upload bytes, so the
// same input always yields the same result.
func (s *Service) Reconstruct(ctx context.Context, modelID, filename string, data []byte) (model.Result, error) {
	m, err := s.Model(ctx, modelID)
	if err != nil {
		return model.Result{}, err
	}
	if len(data) == 0 {
		return model.Result{}, ErrEmptyUpload
	}

	h := fnv.New64a()
	h.Write([]byte(modelID))
	h.Write(data)
	sum := h.Sum64()

	preview, err := renderPreview(sum)
	if err != nil {
		return model.Result{}, err
	}

	metrics := model.Metrics{
		PSNR: 28 + float64(sum%1000)/100,
		SSIM: 0.85 + float64(sum%100)/1000,
		NSE:  0.01 + float64(sum%50)/1000,
	}
	id := uuid.NewString()
	historyID := uuid.NewString()
	result := model.Result{
		Success:            true,
		Message:            "重建完成",
		ResultID:           id,
		ReconstructedImage: preview,
		Metrics:            metrics,
		ExecutionTime:      1 + float64(sum%300)/100,
		HistoryID:          historyID,
	}

	s.mu.Lock()
	s.results[id] = &record{
		result: result,
		model:  m.Name,
		history: model.HistoryRecord{
			ID:            historyID,
			ModelID:       modelID,
			Filename:      filename,
			Status:        "completed",
			Metrics:       metrics,
			ExecutionTime: result.ExecutionTime,
			CreatedAt:     s.now().UTC(),
		},
	}
	s.order = append(s.order, id)
	s.mu.Unlock()

	return result, nil
}

func (s *Service) Result(_ context.Context, id string) (model.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.results[id]; ok {
		return r.result, nil
	}
	for _, r := range s.results {
		if r.history.ID == id {
			return r.result, nil
		}
	}
	return model.Result{}, ErrResultNotFound
}

// History pages through records, newest first. Page is 1-based.
func (s *Service) History(_ context.Context, page, pageSize int) model.HistoryPage {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.newestFirst()
	out := model.HistoryPage{Records: []model.HistoryRecord{}, Total: len(all), Page: page, PageSize: pageSize}
	start := (page - 1) * pageSize
	if start >= len(all) {
		return out
	}
	end := min(start+pageSize, len(all))
	for _, r := range all[start:end] {
		out.Records = append(out.Records, r.history)
	}
	return out
}

func (s *Service) Recent(_ context.Context, limit int) []dashboard.RecentReconstruction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []dashboard.RecentReconstruction{}
	for _, r := range s.newestFirst() {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, dashboard.RecentReconstruction{
			ID:            r.result.ResultID,
			ModelName:     r.model,
			Status:        r.history.Status,
			Metrics:       r.result.Metrics,
			ExecutionTime: r.result.ExecutionTime,
			CreatedAt:     r.history.CreatedAt,
		})
	}
	return out
}

// Totals returns the record count and average PSNR/SSIM.
func (s *Service) Totals() (count int, psnr, ssim float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.results {
		psnr += r.result.Metrics.PSNR
		ssim += r.result.Metrics.SSIM
	}
	count = len(s.results)
	if count > 0 {
		psnr /= float64(count)
		ssim /= float64(count)
	}
	return count, psnr, ssim
}

func (s *Service) newestFirst() []*record {
	out := make([]*record, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.results[s.order[i]])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].history.CreatedAt.After(out[j].history.CreatedAt) })
	return out
}

// renderPreview draws a small grayscale gradient seeded by sum.
func renderPreview(sum uint64) (string, error) {
	const size = 16
	img := image.NewGray(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			v := uint8((uint64(x*y)*8 + sum) % 256)
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

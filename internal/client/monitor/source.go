package monitor

import (
	"context"

	"github.com/mri-lab/mri-console/internal/model/job"
)

type onlineStatus interface {
	OnlineTrainingStatus(ctx context.Context, taskID string) (job.Snapshot, error)
}

type legacyProgress interface {
	TrainingProgress(ctx context.Context, taskID string) (job.Snapshot, error)
}

// OnlineTrainingSource polls /api/online-training/status/{id}.
func OnlineTrainingSource(c onlineStatus) Source {
	return c.OnlineTrainingStatus
}

// LegacyTrainingSource polls /api/training/progress/{id}.
func LegacyTrainingSource(c legacyProgress) Source {
	return c.TrainingProgress
}

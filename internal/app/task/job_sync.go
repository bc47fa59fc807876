/*
 * @Description: 定时对账所有任务目录
 * @Author: 安知鱼
 * @Date: 2026-09-11 09:40:12
 * @LastEditTime: 2026-09-11 10:12:50
 * @LastEditors: 安知鱼
 */
// internal/app/task/job_sync.go
package task

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redink-ai/redink/pkg/constant"
	"github.com/redink-ai/redink/pkg/domain/model"
)

// BatchSyncer 由历史记录服务实现
type BatchSyncer interface {
	SyncAll(ctx context.Context) (*model.BatchSyncResult, error)
}

// SyncAllJob 周期性地把任务目录中的图片同步回历史记录
type SyncAllJob struct {
	parent  context.Context
	syncer  BatchSyncer
	logger  *slog.Logger
	timeout time.Duration
}

// NewSyncAllJob 是任务的构造函数，parent 取消后正在进行的对账会尽快结束
func NewSyncAllJob(parent context.Context, syncer BatchSyncer, logger *slog.Logger) *SyncAllJob {
	return &SyncAllJob{parent: parent, syncer: syncer, logger: logger, timeout: 10 * time.Minute}
}

func (j *SyncAllJob) Run() {
	if j.parent.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(j.parent, j.timeout)
	defer cancel()

	result, err := j.syncer.SyncAll(ctx)
	switch {
	case errors.Is(err, constant.ErrNotFound):
		j.logger.Info("History directory does not exist yet, skipping sync")
		return
	case errors.Is(err, constant.ErrConflict):
		j.logger.Warn("Another batch sync is running, skipping this round")
		return
	case err != nil:
		j.logger.Error("Batch sync failed", slog.Any("error", err))
		return
	}
	j.logger.Info("Batch sync completed",
		slog.Int("total", result.TotalTasks),
		slog.Int("synced", result.Synced),
		slog.Int("failed", result.Failed),
		slog.Int("orphans", len(result.OrphanTasks)),
		slog.Bool("interrupted", result.Interrupted),
	)
}

func (j *SyncAllJob) Name() string {
	return "SyncAllJob"
}

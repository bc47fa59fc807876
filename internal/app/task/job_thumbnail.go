/*
 * @Description:
 * @Author: 安知鱼
 * @Date: 2025-07-10 15:24:00
 * @LastEditTime: 2026-09-11 10:03:29
 * @LastEditors: 安知鱼
 */
// internal/app/task/job_thumbnail.go
package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ThumbnailMaker 由缩略图生成器实现
type ThumbnailMaker interface {
	Ensure(ctx context.Context, taskDir, filename string) (string, error)
}

// ThumbnailGenerationJob 负责为单张图片生成缩略图
type ThumbnailGenerationJob struct {
	maker    ThumbnailMaker
	logger   *slog.Logger
	taskDir  string
	filename string
}

// NewThumbnailGenerationJob 是任务的构造函数
func NewThumbnailGenerationJob(maker ThumbnailMaker, logger *slog.Logger, taskDir, filename string) *ThumbnailGenerationJob {
	return &ThumbnailGenerationJob{maker: maker, logger: logger, taskDir: taskDir, filename: filename}
}

// Run 是 Job 接口要求实现的方法
func (j *ThumbnailGenerationJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if _, err := j.maker.Ensure(ctx, j.taskDir, j.filename); err != nil {
		j.logger.Warn("Thumbnail generation failed", slog.String("file", j.filename), slog.Any("error", err))
	}
}

// Name 方法让日志包装器可以打印出更有意义的任务名
func (j *ThumbnailGenerationJob) Name() string {
	return fmt.Sprintf("ThumbnailGenerationJob(%s)", j.filename)
}

/*
 * @Description: 定时任务与后台任务队列
 * @Author: 安知鱼
 * @Date: 2025-07-12 16:09:46
 * @LastEditTime: 2026-09-11 10:20:00
 * @LastEditors: 安知鱼
 */
package task

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/robfig/cron/v3"
)

// Scheduler 封装了 cron 实例和一个固定大小的后台任务队列。
type Scheduler struct {
	// ctx 在 Stop 时取消，正在运行的批量对账会在两个任务之间退出
	ctx       context.Context
	cancel    context.CancelFunc
	cron      *cron.Cron
	logger    *slog.Logger
	syncer    BatchSyncer
	thumbs    ThumbnailMaker
	syncCron  string
	jobQueue  chan Job
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewScheduler 是 Scheduler 的构造函数。syncCron 为空时不注册批量对账任务。
func NewScheduler(syncer BatchSyncer, thumbs ThumbnailMaker, syncCron string) *Scheduler {
	slogHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(slogHandler).With("system", "cron")

	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(
			NewPanicRecoveryWrapper(logger),
			NewLoggingWrapper(logger),
			cron.DelayIfStillRunning(cron.DefaultLogger),
		),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		ctx:      ctx,
		cancel:   cancel,
		cron:     c,
		logger:   logger,
		syncer:   syncer,
		thumbs:   thumbs,
		syncCron: syncCron,
		jobQueue: make(chan Job, 256),
	}
	s.startWorkerPool()
	return s
}

func (s *Scheduler) startWorkerPool() {
	workerCount := runtime.NumCPU()
	if workerCount > 4 {
		workerCount = 4
	}
	chain := cron.NewChain(NewPanicRecoveryWrapper(s.logger), NewLoggingWrapper(s.logger))
	for i := 0; i < workerCount; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for job := range s.jobQueue {
				chain.Then(job).Run()
			}
		}()
	}
}

// RegisterJobs 在调度器中注册所有定时任务。
func (s *Scheduler) RegisterJobs() error {
	if s.syncCron == "" || s.syncer == nil {
		s.logger.Info("Batch sync job disabled")
		return nil
	}
	if _, err := s.cron.AddJob(s.syncCron, NewSyncAllJob(s.ctx, s.syncer, s.logger)); err != nil {
		return fmt.Errorf("注册定时对账任务失败 (表达式: %s): %w", s.syncCron, err)
	}
	s.logger.Info("-> Successfully registered 'SyncAllJob'", "schedule", s.syncCron)
	return nil
}

// DispatchThumbnail 把缩略图生成放入后台队列，队列满时丢弃并返回 false。
func (s *Scheduler) DispatchThumbnail(taskDir, filename string) bool {
	if s.thumbs == nil {
		return false
	}
	return s.Dispatch(NewThumbnailGenerationJob(s.thumbs, s.logger, taskDir, filename))
}

// Dispatch 非阻塞地投递一个后台任务
func (s *Scheduler) Dispatch(job Job) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case s.jobQueue <- job:
		return true
	default:
		s.logger.Warn("Job queue is full, dropping job", "job_name", job.Name())
		return false
	}
}

// Start 启动 cron 调度器。
func (s *Scheduler) Start() {
	s.logger.Info("Cron scheduler started.")
	s.cron.Start()
}

// Stop 取消正在运行的定时任务，停止 cron 并等待队列中的任务执行完。
func (s *Scheduler) Stop() {
	s.closeOnce.Do(func() {
		s.logger.Info("Stopping cron scheduler...")
		s.cancel()
		ctx := s.cron.Stop()
		<-ctx.Done()
		close(s.jobQueue)
		s.wg.Wait()
		s.logger.Info("Cron scheduler gracefully stopped.")
	})
}

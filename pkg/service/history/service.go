/*
 * @Description: 历史记录服务
 * @Author: 安知鱼
 * @Date: 2026-08-23 10:12:45
 * @LastEditTime: 2026-09-07 11:30:02
 * @LastEditors: 安知鱼
 */
package history

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"strings"
	"time"

	"github.com/redink-ai/redink/internal/pkg/event"
	"github.com/redink-ai/redink/internal/pkg/pathutil"
	"github.com/redink-ai/redink/pkg/constant"
	"github.com/redink-ai/redink/pkg/domain/model"
	"github.com/redink-ai/redink/pkg/domain/repository"
	"github.com/redink-ai/redink/pkg/idgen"
	"github.com/redink-ai/redink/pkg/service/utility"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	SearchLimit     = 50
)

// CreateRequest 新建记录的参数
type CreateRequest struct {
	Title   string
	Outline model.Outline
	TaskID  *string
	UserID  *uint
}

// ImagesUpdate 图片列表更新，Generated 中的 nil 会被存为空字符串以保留位置
type ImagesUpdate struct {
	TaskID    *string   `json:"task_id"`
	Generated []*string `json:"generated"`
}

// UpdateRequest 所有字段可选，各自独立替换对应的子状态
type UpdateRequest struct {
	Outline   *model.Outline `json:"outline"`
	Images    *ImagesUpdate  `json:"images"`
	Status    *string        `json:"status"`
	Thumbnail *string        `json:"thumbnail"`
}

// Service 定义了历史记录相关的业务逻辑接口
type Service interface {
	Create(ctx context.Context, req *CreateRequest) (string, error)
	Get(ctx context.Context, id string) (*model.HistoryRecord, error)
	// Update 记录不存在时返回 false 而不是错误
	Update(ctx context.Context, id string, req *UpdateRequest) (bool, error)
	// Delete 记录不存在时返回 false；任务目录尽力删除，失败只记日志
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, opts model.HistoryListOptions) (*model.HistoryListResult, error)
	Search(ctx context.Context, keyword string, userID *uint) ([]*model.HistoryRecord, error)
	Statistics(ctx context.Context, userID *uint) (*model.HistoryStatistics, error)

	// SyncTask 用任务目录中的图片对账对应的记录
	SyncTask(ctx context.Context, taskID string) (*model.SyncResult, error)
	// SyncAll 逐个对账所有任务目录，ctx 取消时在任务之间停止
	SyncAll(ctx context.Context) (*model.BatchSyncResult, error)
	// TaskDir 返回任务目录的绝对路径，taskID 会先经过校验
	TaskDir(taskID string) (string, error)
}

type serviceImpl struct {
	repo      repository.HistoryRepository
	txManager repository.TransactionManager
	bus       *event.EventBus
	locker    *utility.KeyedLocker
	root      string
	now       func() time.Time
}

// Option 服务可选项
type Option func(*serviceImpl)

// WithClock 替换时钟，测试用
func WithClock(now func() time.Time) Option {
	return func(s *serviceImpl) { s.now = now }
}

// WithEventBus 发布记录与对账事件
func WithEventBus(bus *event.EventBus) Option {
	return func(s *serviceImpl) { s.bus = bus }
}

// NewService 创建历史记录服务，root 是存放任务目录的根目录
func NewService(repo repository.HistoryRepository, txManager repository.TransactionManager, root string, opts ...Option) Service {
	s := &serviceImpl{
		repo:      repo,
		txManager: txManager,
		locker:    utility.NewKeyedLocker(),
		root:      root,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *serviceImpl) publish(topic event.Topic, payload interface{}) {
	if s.bus != nil {
		s.bus.Publish(topic, payload)
	}
}

// stamp 保证 updated_at 不会倒退，即使系统时钟被回拨
func (s *serviceImpl) stamp(prev time.Time) time.Time {
	now := s.now().UTC().Truncate(time.Microsecond)
	if now.Before(prev) {
		return prev
	}
	return now
}

// normalizePages 按位置重新编号，保证 (record_id, page_index) 唯一
func normalizePages(pages []model.OutlinePage) []model.OutlinePage {
	out := make([]model.OutlinePage, len(pages))
	for i, p := range pages {
		out[i] = model.OutlinePage{Index: i, Type: model.ParsePageType(string(p.Type)), Content: p.Content}
	}
	return out
}

func persistenceErr(action string, err error) error {
	return fmt.Errorf("%w: %s: %v", constant.ErrPersistence, action, err)
}

func (s *serviceImpl) Create(ctx context.Context, req *CreateRequest) (string, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return "", constant.Validationf("标题不能为空")
	}
	if req.TaskID != nil {
		if err := pathutil.ValidateSegment(*req.TaskID, "task_id"); err != nil {
			return "", err
		}
	}

	now := s.stamp(time.Time{})
	rec := &model.HistoryRecord{
		ID:          idgen.NewRecordID(),
		UserID:      req.UserID,
		Title:       title,
		Status:      model.RecordStatusDraft,
		TaskID:      req.TaskID,
		OutlineText: req.Outline.Raw,
		Pages:       normalizePages(req.Outline.Pages),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.txManager.Do(ctx, func(repos repository.Repositories) error {
		return repos.History.Create(ctx, rec)
	})
	if err != nil {
		log.Printf("❌ [历史记录] 创建失败: %v", err)
		return "", persistenceErr("创建历史记录失败", err)
	}

	log.Printf("✅ [历史记录] 创建记录: %s", rec.ID)
	s.publish(event.RecordCreated, event.RecordPayload{RecordID: rec.ID, TaskID: derefString(rec.TaskID)})
	return rec.ID, nil
}

func (s *serviceImpl) Get(ctx context.Context, id string) (*model.HistoryRecord, error) {
	if strings.TrimSpace(id) == "" {
		return nil, constant.Validationf("记录ID不能为空")
	}
	rec, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, constant.ErrNotFound) {
			return nil, fmt.Errorf("%w: 历史记录不存在: %s", constant.ErrNotFound, id)
		}
		return nil, err
	}
	return rec, nil
}

func (s *serviceImpl) Update(ctx context.Context, id string, req *UpdateRequest) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, constant.Validationf("记录ID不能为空")
	}
	var status *model.RecordStatus
	if req.Status != nil {
		st, err := model.ParseRecordStatus(*req.Status)
		if err != nil {
			return false, constant.Validationf("%v", err)
		}
		status = &st
	}
	if req.Images != nil && req.Images.TaskID != nil && *req.Images.TaskID != "" {
		if err := pathutil.ValidateSegment(*req.Images.TaskID, "task_id"); err != nil {
			return false, err
		}
	}

	found := true
	err := s.txManager.Do(ctx, func(repos repository.Repositories) error {
		rec, err := repos.History.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, constant.ErrNotFound) {
				found = false
				return nil
			}
			return err
		}

		upd := repository.RecordUpdate{Status: status, Thumbnail: req.Thumbnail, UpdatedAt: s.stamp(rec.UpdatedAt)}

		if req.Outline != nil {
			if err := repos.History.ReplacePages(ctx, id, req.Outline.Raw, normalizePages(req.Outline.Pages)); err != nil {
				return err
			}
		}

		if req.Images != nil {
			if req.Images.TaskID != nil && *req.Images.TaskID != "" {
				upd.TaskID = req.Images.TaskID
			}
			// 空列表视为不修改，保持既有行为
			if len(req.Images.Generated) > 0 {
				if err := repos.History.ReplaceImages(ctx, id, coerceFilenames(req.Images.Generated)); err != nil {
					return err
				}
			}
		}

		return repos.History.UpdateFields(ctx, id, upd)
	})
	if err != nil {
		log.Printf("❌ [历史记录] 更新失败: %s, %v", id, err)
		return false, persistenceErr("更新历史记录失败", err)
	}
	if found {
		log.Printf("[历史记录] 更新记录: %s", id)
	}
	return found, nil
}

func coerceFilenames(in []*string) []string {
	out := make([]string, len(in))
	for i, name := range in {
		if name != nil {
			out[i] = *name
		}
	}
	return out
}

func (s *serviceImpl) Delete(ctx context.Context, id string) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, constant.Validationf("记录ID不能为空")
	}
	rec, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, constant.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	if rec.TaskID != nil && *rec.TaskID != "" {
		s.removeTaskDir(*rec.TaskID)
	}

	var deleted bool
	err = s.txManager.Do(ctx, func(repos repository.Repositories) error {
		var derr error
		deleted, derr = repos.History.Delete(ctx, id)
		return derr
	})
	if err != nil {
		log.Printf("❌ [历史记录] 删除失败: %s, %v", id, err)
		return false, persistenceErr("删除历史记录失败", err)
	}
	if deleted {
		log.Printf("✅ [历史记录] 删除记录: %s", id)
		s.publish(event.RecordDeleted, event.RecordPayload{RecordID: id, TaskID: derefString(rec.TaskID)})
	}
	return deleted, nil
}

func (s *serviceImpl) removeTaskDir(taskID string) {
	dir, err := s.TaskDir(taskID)
	if err != nil {
		log.Printf("⚠️  [历史记录] 跳过非法任务目录 %q: %v", taskID, err)
		return
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		log.Printf("⚠️  [历史记录] 删除任务目录失败: %s, %v", dir, err)
		return
	}
	log.Printf("[历史记录] 已删除任务目录: %s", dir)
}

func (s *serviceImpl) List(ctx context.Context, opts model.HistoryListOptions) (*model.HistoryListResult, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PageSize < 1 {
		opts.PageSize = DefaultPageSize
	}
	if opts.PageSize > MaxPageSize {
		opts.PageSize = MaxPageSize
	}

	records, total, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &model.HistoryListResult{
		Records:    records,
		Total:      total,
		Page:       opts.Page,
		PageSize:   opts.PageSize,
		TotalPages: int(math.Ceil(float64(total) / float64(opts.PageSize))),
	}, nil
}

func (s *serviceImpl) Search(ctx context.Context, keyword string, userID *uint) ([]*model.HistoryRecord, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, constant.Validationf("搜索关键词不能为空")
	}
	return s.repo.Search(ctx, keyword, userID, SearchLimit)
}

func (s *serviceImpl) Statistics(ctx context.Context, userID *uint) (*model.HistoryStatistics, error) {
	counts, err := s.repo.CountByStatus(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats := &model.HistoryStatistics{ByStatus: make(map[model.RecordStatus]int64, len(model.AllRecordStatuses))}
	for _, st := range model.AllRecordStatuses {
		stats.ByStatus[st] = 0
	}
	for st, n := range counts {
		stats.ByStatus[st] = n
		stats.Total += n
	}
	return stats, nil
}

func (s *serviceImpl) TaskDir(taskID string) (string, error) {
	return pathutil.SafeJoin(s.root, taskID)
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

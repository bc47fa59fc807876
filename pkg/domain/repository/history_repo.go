/*
 * @Description: 历史记录仓储接口
 * @Author: 安知鱼
 * @Date: 2026-08-21 15:40:22
 */
package repository

import (
	"context"
	"time"

	"github.com/redink-ai/redink/pkg/domain/model"
)

// RecordUpdate 描述对记录主表的部分更新，nil 字段保持不变
type RecordUpdate struct {
	Title          *string
	TaskID         *string
	Status         *model.RecordStatus
	Thumbnail      *string
	ClearThumbnail bool
	UpdatedAt      time.Time
}

// HistoryRepository 定义了历史记录数据仓库的接口。
// 查询不到记录时返回 constant.ErrNotFound。
type HistoryRepository interface {
	// Create 写入记录及其页面
	Create(ctx context.Context, record *model.HistoryRecord) error

	// FindByID 获取记录，包含页面和图片
	FindByID(ctx context.Context, id string) (*model.HistoryRecord, error)

	// FindByTaskID 根据任务ID获取记录，包含页面和图片
	FindByTaskID(ctx context.Context, taskID string) (*model.HistoryRecord, error)

	// UpdateFields 更新主表字段
	UpdateFields(ctx context.Context, id string, upd RecordUpdate) error

	// ReplacePages 用新大纲整体替换页面
	ReplacePages(ctx context.Context, id string, raw string, pages []model.OutlinePage) error

	// ReplaceImages 用新文件名列表整体替换图片，按位置编号
	ReplaceImages(ctx context.Context, id string, filenames []string) error

	// Delete 删除记录及其页面和图片，返回是否存在
	Delete(ctx context.Context, id string) (bool, error)

	// List 分页查询，按创建时间倒序
	List(ctx context.Context, opts model.HistoryListOptions) ([]*model.HistoryRecord, int64, error)

	// Search 按标题模糊搜索（忽略大小写）
	Search(ctx context.Context, keyword string, userID *uint, limit int) ([]*model.HistoryRecord, error)

	// CountByStatus 按状态统计数量
	CountByStatus(ctx context.Context, userID *uint) (map[model.RecordStatus]int64, error)

	// AssignOwnerless 把没有归属的记录划给指定用户，返回受影响行数
	AssignOwnerless(ctx context.Context, userID uint) (int64, error)
}

/*
 * @Description: 历史记录领域模型（大纲页面 + 任务图片）
 * @Author: 安知鱼
 * @Date: 2026-08-21 14:03:10
 * @LastEditTime: 2026-09-06 18:20:41
 * @LastEditors: 安知鱼
 */
package model

import (
	"fmt"
	"time"
)

// RecordStatus 历史记录状态
type RecordStatus string

const (
	RecordStatusDraft      RecordStatus = "draft"
	RecordStatusGenerating RecordStatus = "generating"
	RecordStatusCompleted  RecordStatus = "completed"
	RecordStatusPartial    RecordStatus = "partial"
)

// AllRecordStatuses 按展示顺序列出所有状态
var AllRecordStatuses = []RecordStatus{
	RecordStatusDraft, RecordStatusGenerating, RecordStatusCompleted, RecordStatusPartial,
}

// ParseRecordStatus 校验并转换状态字符串
func ParseRecordStatus(s string) (RecordStatus, error) {
	for _, st := range AllRecordStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("未知的记录状态: %q", s)
}

// PageType 大纲页面类型
type PageType string

const (
	PageTypeCover   PageType = "cover"
	PageTypeContent PageType = "content"
	PageTypeSummary PageType = "summary"
)

// ParsePageType 未识别的类型统一按 content 处理
func ParsePageType(s string) PageType {
	switch PageType(s) {
	case PageTypeCover, PageTypeSummary:
		return PageType(s)
	default:
		return PageTypeContent
	}
}

// OutlinePage 大纲中的一页
type OutlinePage struct {
	Index   int      `json:"index"`
	Type    PageType `json:"type"`
	Content string   `json:"content"`
}

// Outline 原始大纲文本及解析后的页面
type Outline struct {
	Raw   string        `json:"raw"`
	Pages []OutlinePage `json:"pages"`
}

// TaskImages 一次图片生成任务的产物，Generated 按页序排列
type TaskImages struct {
	TaskID    string   `json:"task_id"`
	Generated []string `json:"generated"`
}

// HistoryRecord 历史记录领域模型
type HistoryRecord struct {
	ID          string        `json:"id"`
	UserID      *uint         `json:"user_id,omitempty"`
	Title       string        `json:"title"`
	Status      RecordStatus  `json:"status"`
	Thumbnail   *string       `json:"thumbnail"`
	TaskID      *string       `json:"task_id"`
	OutlineText string        `json:"-"`
	Pages       []OutlinePage `json:"-"`
	Images      []string      `json:"-"`
	PageCount   int           `json:"page_count"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// HistoryRecordDetail 单条记录的完整视图
type HistoryRecordDetail struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	Status    RecordStatus `json:"status"`
	Thumbnail *string      `json:"thumbnail"`
	Outline   Outline      `json:"outline"`
	Images    TaskImages   `json:"images"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// ToDetail 转换为完整视图
func (r *HistoryRecord) ToDetail() *HistoryRecordDetail {
	taskID := ""
	if r.TaskID != nil {
		taskID = *r.TaskID
	}
	pages := r.Pages
	if pages == nil {
		pages = []OutlinePage{}
	}
	images := r.Images
	if images == nil {
		images = []string{}
	}
	return &HistoryRecordDetail{
		ID:        r.ID,
		Title:     r.Title,
		Status:    r.Status,
		Thumbnail: r.Thumbnail,
		Outline:   Outline{Raw: r.OutlineText, Pages: pages},
		Images:    TaskImages{TaskID: taskID, Generated: images},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// HistoryListOptions 列表查询参数
type HistoryListOptions struct {
	Page     int
	PageSize int
	Status   *RecordStatus
	UserID   *uint
}

// HistoryListResult 分页结果
type HistoryListResult struct {
	Records    []*HistoryRecord `json:"records"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalPages int              `json:"total_pages"`
}

// HistoryStatistics 按状态统计
type HistoryStatistics struct {
	Total    int64                  `json:"total"`
	ByStatus map[RecordStatus]int64 `json:"by_status"`
}

// SyncResult 单个任务目录的对账结果
type SyncResult struct {
	RecordID    string       `json:"record_id,omitempty"`
	TaskID      string       `json:"task_id"`
	ImagesCount int          `json:"images_count"`
	Images      []string     `json:"images"`
	Status      RecordStatus `json:"status"`
	NoRecord    bool         `json:"no_record"`
}

// TaskSyncOutcome 批量对账中的单个任务结果
type TaskSyncOutcome struct {
	TaskID string      `json:"task_id"`
	Result *SyncResult `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// BatchSyncResult 批量对账汇总
type BatchSyncResult struct {
	TotalTasks  int               `json:"total_tasks"`
	Synced      int               `json:"synced"`
	Failed      int               `json:"failed"`
	OrphanTasks []string          `json:"orphan_tasks"`
	Results     []TaskSyncOutcome `json:"results"`
	Interrupted bool              `json:"interrupted"`
}

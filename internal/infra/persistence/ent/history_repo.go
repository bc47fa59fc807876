/*
 * @Description: 历史记录仓储实现
 * @Author: 安知鱼
 * @Date: 2026-08-21 16:42:19
 * @LastEditTime: 2026-09-06 18:22:57
 * @LastEditors: 安知鱼
 */
package ent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/redink-ai/redink/pkg/constant"
	"github.com/redink-ai/redink/pkg/domain/model"
	"github.com/redink-ai/redink/pkg/domain/repository"
)

const (
	tableHistoryRecords = "history_records"
	tableOutlinePages   = "outline_pages"
	tableTaskImages     = "task_images"
)

var recordColumns = []string{
	"id", "user_id", "title", "status", "thumbnail", "task_id", "outline_text", "created_at", "updated_at",
}

type historyRepo struct {
	base
}

// NewHistoryRepo 是 historyRepo 的构造函数。
func NewHistoryRepo(db *sql.DB, dialectName string) repository.HistoryRepository {
	return &historyRepo{base{q: db, dialect: dialectName}}
}

func (r *historyRepo) Create(ctx context.Context, rec *model.HistoryRecord) error {
	ins := r.sb().Insert(tableHistoryRecords).
		Columns(recordColumns...).
		Values(
			rec.ID, nullableUint(rec.UserID), rec.Title, string(rec.Status),
			nullableString(rec.Thumbnail), nullableString(rec.TaskID), rec.OutlineText,
			r.timeArg(rec.CreatedAt), r.timeArg(rec.UpdatedAt),
		)
	if _, err := r.exec(ctx, ins); err != nil {
		return fmt.Errorf("写入历史记录失败: %w", err)
	}
	return r.insertPages(ctx, rec.ID, rec.Pages)
}

func (r *historyRepo) FindByID(ctx context.Context, id string) (*model.HistoryRecord, error) {
	return r.findOne(ctx, entsql.EQ("id", id))
}

func (r *historyRepo) FindByTaskID(ctx context.Context, taskID string) (*model.HistoryRecord, error) {
	return r.findOne(ctx, entsql.EQ("task_id", taskID))
}

func (r *historyRepo) findOne(ctx context.Context, pred *entsql.Predicate) (*model.HistoryRecord, error) {
	sel := r.sb().Select(recordColumns...).
		From(entsql.Table(tableHistoryRecords)).
		Where(pred).
		OrderBy(entsql.Desc("created_at")).
		Limit(1)

	rec, err := scanRecord(r.queryRow(ctx, sel))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, constant.ErrNotFound
		}
		return nil, fmt.Errorf("查询历史记录失败: %w", err)
	}

	if rec.Pages, err = r.loadPages(ctx, rec.ID); err != nil {
		return nil, err
	}
	if rec.Images, err = r.loadImages(ctx, rec.ID); err != nil {
		return nil, err
	}
	rec.PageCount = len(rec.Pages)
	return rec, nil
}

func (r *historyRepo) UpdateFields(ctx context.Context, id string, upd repository.RecordUpdate) error {
	stmt := r.sb().Update(tableHistoryRecords).
		Set("updated_at", r.timeArg(upd.UpdatedAt)).
		Where(entsql.EQ("id", id))
	if upd.Title != nil {
		stmt.Set("title", *upd.Title)
	}
	if upd.TaskID != nil {
		stmt.Set("task_id", *upd.TaskID)
	}
	if upd.Status != nil {
		stmt.Set("status", string(*upd.Status))
	}
	switch {
	case upd.ClearThumbnail:
		stmt.SetNull("thumbnail")
	case upd.Thumbnail != nil:
		stmt.Set("thumbnail", *upd.Thumbnail)
	}
	if _, err := r.exec(ctx, stmt); err != nil {
		return fmt.Errorf("更新历史记录失败: %w", err)
	}
	return nil
}

func (r *historyRepo) ReplacePages(ctx context.Context, id string, raw string, pages []model.OutlinePage) error {
	upd := r.sb().Update(tableHistoryRecords).Set("outline_text", raw).Where(entsql.EQ("id", id))
	if _, err := r.exec(ctx, upd); err != nil {
		return fmt.Errorf("更新大纲文本失败: %w", err)
	}
	del := r.sb().Delete(tableOutlinePages).Where(entsql.EQ("record_id", id))
	if _, err := r.exec(ctx, del); err != nil {
		return fmt.Errorf("清理旧页面失败: %w", err)
	}
	return r.insertPages(ctx, id, pages)
}

func (r *historyRepo) ReplaceImages(ctx context.Context, id string, filenames []string) error {
	del := r.sb().Delete(tableTaskImages).Where(entsql.EQ("record_id", id))
	if _, err := r.exec(ctx, del); err != nil {
		return fmt.Errorf("清理旧图片失败: %w", err)
	}
	if len(filenames) == 0 {
		return nil
	}
	ins := r.sb().Insert(tableTaskImages).Columns("record_id", "image_index", "filename")
	for i, name := range filenames {
		ins.Values(id, i, name)
	}
	if _, err := r.exec(ctx, ins); err != nil {
		return fmt.Errorf("写入图片列表失败: %w", err)
	}
	return nil
}

// Delete 显式删除子表，不依赖数据库是否开启了外键级联
func (r *historyRepo) Delete(ctx context.Context, id string) (bool, error) {
	for _, table := range []string{tableOutlinePages, tableTaskImages} {
		if _, err := r.exec(ctx, r.sb().Delete(table).Where(entsql.EQ("record_id", id))); err != nil {
			return false, fmt.Errorf("删除 %s 失败: %w", table, err)
		}
	}
	res, err := r.exec(ctx, r.sb().Delete(tableHistoryRecords).Where(entsql.EQ("id", id)))
	if err != nil {
		return false, fmt.Errorf("删除历史记录失败: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *historyRepo) List(ctx context.Context, opts model.HistoryListOptions) ([]*model.HistoryRecord, int64, error) {
	var preds []*entsql.Predicate
	if opts.Status != nil {
		preds = append(preds, entsql.EQ("status", string(*opts.Status)))
	}
	if opts.UserID != nil {
		preds = append(preds, entsql.EQ("user_id", int64(*opts.UserID)))
	}

	total, err := r.count(ctx, tableHistoryRecords, preds...)
	if err != nil {
		return nil, 0, fmt.Errorf("统计历史记录失败: %w", err)
	}
	if total == 0 {
		return []*model.HistoryRecord{}, 0, nil
	}

	sel := r.sb().Select(recordColumns...).
		From(entsql.Table(tableHistoryRecords)).
		OrderBy(entsql.Desc("created_at")).
		Limit(opts.PageSize).
		Offset((opts.Page - 1) * opts.PageSize)
	if p := and(preds...); p != nil {
		sel.Where(p)
	}

	records, err := r.queryRecords(ctx, sel)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (r *historyRepo) Search(ctx context.Context, keyword string, userID *uint, limit int) ([]*model.HistoryRecord, error) {
	preds := []*entsql.Predicate{entsql.ContainsFold("title", keyword)}
	if userID != nil {
		preds = append(preds, entsql.EQ("user_id", int64(*userID)))
	}
	sel := r.sb().Select(recordColumns...).
		From(entsql.Table(tableHistoryRecords)).
		Where(and(preds...)).
		OrderBy(entsql.Desc("created_at")).
		Limit(limit)
	return r.queryRecords(ctx, sel)
}

func (r *historyRepo) CountByStatus(ctx context.Context, userID *uint) (map[model.RecordStatus]int64, error) {
	sel := r.sb().Select("status", entsql.As(entsql.Count("*"), "cnt")).
		From(entsql.Table(tableHistoryRecords)).
		GroupBy("status")
	if userID != nil {
		sel.Where(entsql.EQ("user_id", int64(*userID)))
	}

	rows, err := r.query(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("按状态统计失败: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.RecordStatus]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[model.RecordStatus(status)] = n
	}
	return counts, rows.Err()
}

func (r *historyRepo) AssignOwnerless(ctx context.Context, userID uint) (int64, error) {
	stmt := r.sb().Update(tableHistoryRecords).
		Set("user_id", int64(userID)).
		Where(entsql.IsNull("user_id"))
	res, err := r.exec(ctx, stmt)
	if err != nil {
		return 0, fmt.Errorf("分配无主记录失败: %w", err)
	}
	return res.RowsAffected()
}

func (r *historyRepo) insertPages(ctx context.Context, recordID string, pages []model.OutlinePage) error {
	if len(pages) == 0 {
		return nil
	}
	ins := r.sb().Insert(tableOutlinePages).Columns("record_id", "page_index", "page_type", "content")
	for _, p := range pages {
		ins.Values(recordID, p.Index, string(p.Type), p.Content)
	}
	if _, err := r.exec(ctx, ins); err != nil {
		return fmt.Errorf("写入大纲页面失败: %w", err)
	}
	return nil
}

func (r *historyRepo) loadPages(ctx context.Context, recordID string) ([]model.OutlinePage, error) {
	sel := r.sb().Select("page_index", "page_type", "content").
		From(entsql.Table(tableOutlinePages)).
		Where(entsql.EQ("record_id", recordID)).
		OrderBy("page_index")
	rows, err := r.query(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("查询大纲页面失败: %w", err)
	}
	defer rows.Close()

	pages := []model.OutlinePage{}
	for rows.Next() {
		var p model.OutlinePage
		var pageType string
		if err := rows.Scan(&p.Index, &pageType, &p.Content); err != nil {
			return nil, err
		}
		p.Type = model.ParsePageType(pageType)
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

func (r *historyRepo) loadImages(ctx context.Context, recordID string) ([]string, error) {
	sel := r.sb().Select("filename").
		From(entsql.Table(tableTaskImages)).
		Where(entsql.EQ("record_id", recordID)).
		OrderBy("image_index")
	rows, err := r.query(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("查询图片列表失败: %w", err)
	}
	defer rows.Close()

	images := []string{}
	for rows.Next() {
		var name sql.NullString
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		images = append(images, name.String)
	}
	return images, rows.Err()
}

// queryRecords 查询主表并批量补齐页数
func (r *historyRepo) queryRecords(ctx context.Context, sel *entsql.Selector) ([]*model.HistoryRecord, error) {
	rows, err := r.query(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("查询历史记录失败: %w", err)
	}
	defer rows.Close()

	records := []*model.HistoryRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if len(records) == 0 {
		return records, nil
	}
	ids := make([]any, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	counts, err := r.pageCounts(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		rec.PageCount = counts[rec.ID]
	}
	return records, nil
}

func (r *historyRepo) pageCounts(ctx context.Context, ids []any) (map[string]int, error) {
	sel := r.sb().Select("record_id", entsql.As(entsql.Count("*"), "cnt")).
		From(entsql.Table(tableOutlinePages)).
		Where(entsql.In("record_id", ids...)).
		GroupBy("record_id")
	rows, err := r.query(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("统计页数失败: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int, len(ids))
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(s rowScanner) (*model.HistoryRecord, error) {
	var (
		rec       model.HistoryRecord
		userID    sql.NullInt64
		status    string
		thumbnail sql.NullString
		taskID    sql.NullString
		outline   sql.NullString
		createdAt nullTime
		updatedAt nullTime
	)
	if err := s.Scan(&rec.ID, &userID, &rec.Title, &status, &thumbnail, &taskID, &outline, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	rec.UserID = uintPtr(userID)
	rec.Status = model.RecordStatus(status)
	rec.Thumbnail = stringPtr(thumbnail)
	rec.TaskID = stringPtr(taskID)
	rec.OutlineText = outline.String
	rec.CreatedAt = createdAt.Time
	rec.UpdatedAt = updatedAt.Time
	return &rec, nil
}

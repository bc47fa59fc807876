/*
 * @Description: 任务目录与历史记录的对账
 * @Author: 安知鱼
 * @Date: 2026-08-24 09:05:37
 * @LastEditTime: 2026-09-07 14:48:10
 * @LastEditors: 安知鱼
 */
package history

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gofrs/flock"

	"github.com/redink-ai/redink/internal/pkg/event"
	"github.com/redink-ai/redink/internal/pkg/pathutil"
	"github.com/redink-ai/redink/pkg/constant"
	"github.com/redink-ai/redink/pkg/domain/model"
	"github.com/redink-ai/redink/pkg/domain/repository"
)

const (
	// ThumbnailPrefix 缩略图文件前缀，对账时忽略
	ThumbnailPrefix = "thumb_"
	// unnumberedSortKey 文件名前缀不是数字时的排序键
	unnumberedSortKey = 999
	syncLockFile      = ".sync.lock"
)

var imageExtensions = []string{".png", ".jpg", ".jpeg"}

// IsImageFile 扩展名区分大小写，只认小写
func IsImageFile(name string) bool {
	for _, ext := range imageExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// imageSortKey 取第一个 "." 之前的整数，解析失败时排在最后
func imageSortKey(name string) int {
	prefix, _, _ := strings.Cut(name, ".")
	n, err := strconv.Atoi(prefix)
	if err != nil {
		return unnumberedSortKey
	}
	return n
}

// ScanTaskImages 列出任务目录下的页面图片并按页序排序。
// 非数字文件名的相对顺序沿用目录列举顺序。
func ScanTaskImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	images := []string{}
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ThumbnailPrefix) || !IsImageFile(name) {
			continue
		}
		images = append(images, name)
	}
	sort.SliceStable(images, func(i, j int) bool {
		return imageSortKey(images[i]) < imageSortKey(images[j])
	})
	return images, nil
}

// DeriveStatus 根据实际图片数和页面数得出记录状态
func DeriveStatus(actual, expected int) model.RecordStatus {
	switch {
	case actual == 0:
		return model.RecordStatusDraft
	case actual >= expected:
		return model.RecordStatusCompleted
	default:
		return model.RecordStatusPartial
	}
}

func (s *serviceImpl) SyncTask(ctx context.Context, taskID string) (*model.SyncResult, error) {
	if err := pathutil.ValidateSegment(taskID, "task_id"); err != nil {
		return nil, err
	}
	dir, err := s.TaskDir(taskID)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: 任务目录不存在: %s", constant.ErrNotFound, taskID)
	}

	unlock := s.locker.Lock(taskID)
	defer unlock()

	images, err := ScanTaskImages(dir)
	if err != nil {
		return nil, fmt.Errorf("扫描任务失败: %w", err)
	}

	result := &model.SyncResult{TaskID: taskID, ImagesCount: len(images), Images: images}

	rec, err := s.repo.FindByTaskID(ctx, taskID)
	if errors.Is(err, constant.ErrNotFound) {
		result.NoRecord = true
		result.Status = DeriveStatus(len(images), 0)
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	result.RecordID = rec.ID
	result.Status = DeriveStatus(len(images), len(rec.Pages))

	upd := repository.RecordUpdate{Status: &result.Status, UpdatedAt: s.stamp(rec.UpdatedAt)}
	if len(images) > 0 {
		upd.Thumbnail = &images[0]
	} else {
		upd.ClearThumbnail = true
	}

	err = s.txManager.Do(ctx, func(repos repository.Repositories) error {
		if err := repos.History.ReplaceImages(ctx, rec.ID, images); err != nil {
			return err
		}
		return repos.History.UpdateFields(ctx, rec.ID, upd)
	})
	if err != nil {
		return nil, persistenceErr("同步任务图片失败", err)
	}

	log.Printf("[同步] 任务 %s: %d 张图片, 状态 %s", taskID, len(images), result.Status)
	s.publish(event.TaskSynced, event.TaskSyncedPayload{RecordID: rec.ID, TaskID: taskID, TaskDir: dir, Images: images})
	return result, nil
}

func (s *serviceImpl) SyncAll(ctx context.Context) (*model.BatchSyncResult, error) {
	info, err := os.Stat(s.root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: 历史记录目录不存在: %s", constant.ErrNotFound, s.root)
	}

	lock := flock.New(filepath.Join(s.root, syncLockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("获取同步锁失败: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: 另一个同步任务正在进行", constant.ErrConflict)
	}
	defer lock.Unlock()

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("扫描历史记录目录失败: %w", err)
	}

	batch := &model.BatchSyncResult{OrphanTasks: []string{}, Results: []model.TaskSyncOutcome{}}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if ctx.Err() != nil {
			batch.Interrupted = true
			log.Printf("⚠️  [同步] 批量同步被中断，已处理 %d 个任务", batch.TotalTasks)
			break
		}

		taskID := e.Name()
		batch.TotalTasks++
		res, err := s.SyncTask(ctx, taskID)
		if err != nil {
			batch.Failed++
			batch.Results = append(batch.Results, model.TaskSyncOutcome{TaskID: taskID, Error: err.Error()})
			log.Printf("❌ [同步] 任务 %s 同步失败: %v", taskID, err)
			continue
		}
		if res.NoRecord {
			batch.OrphanTasks = append(batch.OrphanTasks, taskID)
		} else {
			batch.Synced++
		}
		batch.Results = append(batch.Results, model.TaskSyncOutcome{TaskID: taskID, Result: res})
	}

	log.Printf("[同步] 批量同步完成: 共 %d, 成功 %d, 失败 %d, 孤立 %d",
		batch.TotalTasks, batch.Synced, batch.Failed, len(batch.OrphanTasks))
	return batch, nil
}

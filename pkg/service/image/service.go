/*
 * @Description: 按大纲页面批量生成图片
 * @Author: 安知鱼
 * @Date: 2026-08-27 10:12:45
 * @LastEditTime: 2026-09-11 16:30:08
 * @LastEditors: 安知鱼
 */
package image

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/redink-ai/redink/internal/infra/storage"
	"github.com/redink-ai/redink/pkg/constant"
	"github.com/redink-ai/redink/pkg/domain/model"
	"github.com/redink-ai/redink/pkg/idgen"
	"github.com/redink-ai/redink/pkg/service/history"
	"github.com/redink-ai/redink/pkg/service/provider"
)

// HighConcurrencyLimit 开启 high_concurrency 时同时生成的页数
const HighConcurrencyLimit = 4

// stylePrompt 非 short_prompt 模式下拼接在页面内容之前
const stylePrompt = "请生成一张小红书风格的竖版配图（3:4），画面精致、色彩明亮，文字清晰可读。本页内容如下：\n\n"

// ImageClientSource 提供当前激活的图片生成客户端
type ImageClientSource interface {
	ImageClient(ctx context.Context) (provider.ImageGenerator, provider.Settings, error)
}

// RecordStore 是生成流程需要的历史记录能力
type RecordStore interface {
	Get(ctx context.Context, id string) (*model.HistoryRecord, error)
	Update(ctx context.Context, id string, req *history.UpdateRequest) (bool, error)
	SyncTask(ctx context.Context, taskID string) (*model.SyncResult, error)
}

// GenerateRequest 图片生成参数。Pages 为空时生成所有页面。
type GenerateRequest struct {
	RecordID  string
	UserID    *uint
	Pages     []int
	RefImages [][]byte
}

// PageResult 单页生成结果
type PageResult struct {
	Index    int    `json:"index"`
	Filename string `json:"filename,omitempty"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// GenerateResult 一次生成的汇总
type GenerateResult struct {
	RecordID string            `json:"record_id"`
	TaskID   string            `json:"task_id"`
	Pages    []PageResult      `json:"pages"`
	Failed   int               `json:"failed"`
	Sync     *model.SyncResult `json:"sync"`
}

// Service 图片生成服务接口
type Service interface {
	GenerateForRecord(ctx context.Context, req *GenerateRequest) (*GenerateResult, error)
}

type serviceImpl struct {
	images  ImageClientSource
	records RecordStore
	store   storage.TaskStorage
}

// NewService 是图片生成服务的构造函数
func NewService(images ImageClientSource, records RecordStore, store storage.TaskStorage) Service {
	return &serviceImpl{images: images, records: records, store: store}
}

// BuildImagePrompt 拼接单页的生成提示词
func BuildImagePrompt(page model.OutlinePage, shortPrompt bool) string {
	if shortPrompt {
		return page.Content
	}
	return stylePrompt + page.Content
}

// OwnedBy 记录无主或属于该用户时返回 true
func OwnedBy(rec *model.HistoryRecord, userID *uint) bool {
	return userID == nil || rec.UserID == nil || *rec.UserID == *userID
}

func (s *serviceImpl) GenerateForRecord(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	if req.RecordID == "" {
		return nil, constant.Validationf("record_id 不能为空")
	}
	rec, err := s.records.Get(ctx, req.RecordID)
	if err != nil {
		return nil, err
	}
	if !OwnedBy(rec, req.UserID) {
		return nil, constant.ErrNotFound
	}
	pages, err := selectPages(rec.Pages, req.Pages)
	if err != nil {
		return nil, err
	}

	client, settings, err := s.images.ImageClient(ctx)
	if err != nil {
		return nil, err
	}
	opts, _ := provider.ImageOptionsOf(settings)

	taskID := idgen.NewTaskID()
	if rec.TaskID != nil && *rec.TaskID != "" {
		taskID = *rec.TaskID
	}
	if _, err := s.store.EnsureTaskDir(taskID); err != nil {
		return nil, err
	}

	generating := string(model.RecordStatusGenerating)
	if _, err := s.records.Update(ctx, rec.ID, &history.UpdateRequest{
		Status: &generating,
		Images: &history.ImagesUpdate{TaskID: &taskID},
	}); err != nil {
		return nil, err
	}

	log.Printf("[图片] 记录 %s 开始生成 %d 页 (任务: %s, 服务商: %s, 并发: %v)",
		rec.ID, len(pages), taskID, settings.Conn().Name, opts.HighConcurrency)

	results := make([]PageResult, len(pages))
	var mu sync.Mutex
	failed := 0
	render := func(ctx context.Context, i int) {
		page := pages[i]
		res := PageResult{Index: page.Index}
		filename, err := s.renderPage(ctx, client, settings.Conn().Name, taskID, page, opts.ShortPrompt, req.RefImages)
		if err != nil {
			res.Error = err.Error()
			mu.Lock()
			failed++
			mu.Unlock()
			log.Printf("[图片] 记录 %s 第 %d 页生成失败: %v", rec.ID, page.Index, err)
		} else {
			res.Success = true
			res.Filename = filename
		}
		results[i] = res
	}

	if opts.HighConcurrency {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(HighConcurrencyLimit)
		for i := range pages {
			g.Go(func() error {
				render(gctx, i)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range pages {
			render(ctx, i)
		}
	}

	// 生成结果以目录为准，对账会重新计算状态和缩略图
	syncResult, err := s.records.SyncTask(context.WithoutCancel(ctx), taskID)
	if err != nil {
		return nil, fmt.Errorf("生成完成但对账失败: %w", err)
	}

	return &GenerateResult{
		RecordID: rec.ID,
		TaskID:   taskID,
		Pages:    results,
		Failed:   failed,
		Sync:     syncResult,
	}, nil
}

func (s *serviceImpl) renderPage(ctx context.Context, client provider.ImageGenerator, providerName, taskID string, page model.OutlinePage, shortPrompt bool, refs [][]byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := client.GenerateImage(ctx, BuildImagePrompt(page, shortPrompt), refs)
	if err != nil {
		return "", provider.NewProviderError(providerName, err)
	}
	if len(data) == 0 {
		return "", provider.NewProviderError(providerName, errors.New("服务商返回了空图片"))
	}
	filename := strconv.Itoa(page.Index) + ".png"
	if _, err := s.store.WriteImage(ctx, taskID, filename, data); err != nil {
		return "", err
	}
	return filename, nil
}

// selectPages 按请求的页码筛选页面，未指定时返回全部
func selectPages(all []model.OutlinePage, wanted []int) ([]model.OutlinePage, error) {
	if len(all) == 0 {
		return nil, constant.Validationf("该记录没有大纲页面，无法生成图片")
	}
	if len(wanted) == 0 {
		return all, nil
	}
	byIndex := make(map[int]model.OutlinePage, len(all))
	for _, p := range all {
		byIndex[p.Index] = p
	}
	seen := make(map[int]bool, len(wanted))
	out := make([]model.OutlinePage, 0, len(wanted))
	for _, idx := range wanted {
		p, ok := byIndex[idx]
		if !ok {
			return nil, constant.Validationf("页码不存在: %d", idx)
		}
		if seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, p)
	}
	return out, nil
}

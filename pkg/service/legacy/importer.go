/*
 * @Description: 从旧版文件存储（JSON 历史记录、YAML 服务商配置）导入数据库
 * @Author: 安知鱼
 * @Date: 2026-08-29 21:03:17
 * @LastEditTime: 2026-09-12 09:26:40
 * @LastEditors: 安知鱼
 */
package legacy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/redink-ai/redink/internal/infra/storage"
	"github.com/redink-ai/redink/internal/pkg/pathutil"
	"github.com/redink-ai/redink/pkg/domain/model"
	"github.com/redink-ai/redink/pkg/domain/repository"
	"github.com/redink-ai/redink/pkg/service/provider"
)

const (
	indexFile         = "index.json"
	textProvidersFile = "text_providers.yaml"
	imgProvidersFile  = "image_providers.yaml"
	backupTimeLayout  = "20060102_150405"
)

// 旧版 isoformat 时间没有时区，按 UTC 处理
var legacyTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

type legacyIndex struct {
	Records []struct {
		ID string `json:"id"`
	} `json:"records"`
}

type legacyRecord struct {
	Title     string  `json:"title"`
	Status    string  `json:"status"`
	Thumbnail *string `json:"thumbnail"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
	Outline   struct {
		Raw   string `json:"raw"`
		Pages []struct {
			Index   *int   `json:"index"`
			Type    string `json:"type"`
			Content string `json:"content"`
		} `json:"pages"`
	} `json:"outline"`
	Images struct {
		TaskID    *string   `json:"task_id"`
		Generated []*string `json:"generated"`
	} `json:"images"`
}

type legacyProviders struct {
	ActiveProvider string                    `yaml:"active_provider"`
	Providers      map[string]map[string]any `yaml:"providers"`
}

// Report 一次导入的结果
type Report struct {
	Records   int      `json:"records"`
	Providers int      `json:"providers"`
	Failed    []string `json:"failed,omitempty"`
	BackupDir string   `json:"backup_dir,omitempty"`
}

// Summary 返回一行导入摘要，失败时附带失败的记录ID或文件名
func (r *Report) Summary() string {
	msg := fmt.Sprintf("已导入 %d 条历史记录、%d 个服务商配置，失败 %d", r.Records, r.Providers, len(r.Failed))
	if len(r.Failed) > 0 {
		msg += fmt.Sprintf(" %v", r.Failed)
	}
	return msg
}

// Importer 把旧版文件数据导入数据库。表中已有数据时对应部分会被跳过。
type Importer struct {
	txManager   repository.TransactionManager
	historyDir  string
	providerDir string
	now         func() time.Time
}

// NewImporter 是 Importer 的构造函数
func NewImporter(txManager repository.TransactionManager, historyDir, providerDir string) *Importer {
	return &Importer{txManager: txManager, historyDir: historyDir, providerDir: providerDir, now: time.Now}
}

// Run 依次导入历史记录和服务商配置，并备份被导入的源文件
func (im *Importer) Run(ctx context.Context) (*Report, error) {
	report := &Report{}
	var imported []string

	files, err := im.importHistory(ctx, report)
	if err != nil {
		return report, err
	}
	imported = append(imported, files...)

	files, err = im.importProviders(ctx, report)
	if err != nil {
		return report, err
	}
	imported = append(imported, files...)

	if len(imported) == 0 {
		return report, nil
	}
	dir, err := im.backup(imported)
	if err != nil {
		log.Printf("[迁移] ⚠️ 备份旧数据文件失败: %v", err)
		return report, nil
	}
	report.BackupDir = dir
	log.Printf("[迁移] ✅ 备份完成: %s", dir)
	return report, nil
}

func (im *Importer) importHistory(ctx context.Context, report *Report) ([]string, error) {
	indexPath := filepath.Join(im.historyDir, indexFile)
	raw, err := os.ReadFile(indexPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取 %s 失败: %w", indexPath, err)
	}

	var existing int64
	if err := im.txManager.Do(ctx, func(repos repository.Repositories) error {
		_, total, err := repos.History.List(ctx, model.HistoryListOptions{Page: 1, PageSize: 1})
		existing = total
		return err
	}); err != nil {
		return nil, err
	}
	if existing > 0 {
		log.Printf("[迁移] 数据库已有 %d 条历史记录，跳过历史记录导入", existing)
		return nil, nil
	}

	var index legacyIndex
	if err := json.Unmarshal(raw, &index); err != nil {
		return nil, fmt.Errorf("解析 %s 失败: %w", indexPath, err)
	}

	sources := []string{indexPath}
	for _, meta := range index.Records {
		if meta.ID == "" {
			continue
		}
		if err := pathutil.ValidateSegment(meta.ID, "record_id"); err != nil {
			report.Failed = append(report.Failed, meta.ID)
			continue
		}
		recordPath := filepath.Join(im.historyDir, meta.ID+".json")
		rec, err := readRecord(meta.ID, recordPath, im.now())
		if err != nil {
			log.Printf("[迁移] ⚠️ 跳过记录 %s: %v", meta.ID, err)
			report.Failed = append(report.Failed, meta.ID)
			continue
		}
		if err := im.txManager.Do(ctx, func(repos repository.Repositories) error {
			if err := repos.History.Create(ctx, rec); err != nil {
				return err
			}
			return repos.History.ReplaceImages(ctx, rec.ID, rec.Images)
		}); err != nil {
			log.Printf("[迁移] ❌ 导入记录失败 %s: %v", meta.ID, err)
			report.Failed = append(report.Failed, meta.ID)
			continue
		}
		report.Records++
		sources = append(sources, recordPath)
	}
	log.Printf("[迁移] ✅ 历史记录导入完成: 共 %d 条", report.Records)
	return sources, nil
}

func readRecord(id, path string, now time.Time) (*model.HistoryRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lr legacyRecord
	if err := json.Unmarshal(raw, &lr); err != nil {
		return nil, fmt.Errorf("解析记录文件失败: %w", err)
	}

	status, err := model.ParseRecordStatus(lr.Status)
	if err != nil {
		status = model.RecordStatusDraft
	}
	rec := &model.HistoryRecord{
		ID:          id,
		Title:       lr.Title,
		Status:      status,
		Thumbnail:   lr.Thumbnail,
		TaskID:      lr.Images.TaskID,
		OutlineText: lr.Outline.Raw,
		CreatedAt:   parseLegacyTime(lr.CreatedAt, now),
		UpdatedAt:   parseLegacyTime(lr.UpdatedAt, now),
	}
	if rec.TaskID != nil {
		if err := pathutil.ValidateSegment(*rec.TaskID, "task_id"); err != nil {
			return nil, err
		}
	}
	seen := make(map[int]bool, len(lr.Outline.Pages))
	for i, p := range lr.Outline.Pages {
		idx := i
		if p.Index != nil && !seen[*p.Index] {
			idx = *p.Index
		}
		if seen[idx] {
			return nil, fmt.Errorf("页码重复: %d", idx)
		}
		seen[idx] = true
		rec.Pages = append(rec.Pages, model.OutlinePage{Index: idx, Type: model.ParsePageType(p.Type), Content: p.Content})
	}
	rec.Images = make([]string, 0, len(lr.Images.Generated))
	for _, name := range lr.Images.Generated {
		if name == nil {
			rec.Images = append(rec.Images, "")
			continue
		}
		rec.Images = append(rec.Images, *name)
	}
	return rec, nil
}

func parseLegacyTime(s string, fallback time.Time) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range legacyTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC()
		}
	}
	return fallback.UTC()
}

func (im *Importer) importProviders(ctx context.Context, report *Report) ([]string, error) {
	type source struct {
		category model.ProviderCategory
		path     string
	}
	var found []source
	for _, s := range []source{
		{model.CategoryText, filepath.Join(im.providerDir, textProvidersFile)},
		{model.CategoryImage, filepath.Join(im.providerDir, imgProvidersFile)},
	} {
		if _, err := os.Stat(s.path); err == nil {
			found = append(found, s)
		}
	}
	if len(found) == 0 {
		return nil, nil
	}

	var existing int64
	if err := im.txManager.Do(ctx, func(repos repository.Repositories) error {
		n, err := repos.Provider.Count(ctx)
		existing = n
		return err
	}); err != nil {
		return nil, err
	}
	if existing > 0 {
		log.Printf("[迁移] 数据库已有 %d 条服务商配置，跳过配置导入", existing)
		return nil, nil
	}

	var sources []string
	for _, s := range found {
		n, err := im.importProviderFile(ctx, s.category, s.path)
		if err != nil {
			log.Printf("[迁移] ❌ 导入 %s 失败: %v", filepath.Base(s.path), err)
			report.Failed = append(report.Failed, filepath.Base(s.path))
			continue
		}
		report.Providers += n
		sources = append(sources, s.path)
		log.Printf("[迁移] ✅ %s 导入完成: %d 个", filepath.Base(s.path), n)
	}
	return sources, nil
}

func (im *Importer) importProviderFile(ctx context.Context, category model.ProviderCategory, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var lp legacyProviders
	if err := yaml.Unmarshal(raw, &lp); err != nil {
		return 0, fmt.Errorf("解析 YAML 失败: %w", err)
	}

	defaultType := provider.TypeOpenAICompatible
	if category == model.CategoryImage {
		defaultType = provider.TypeGoogleGenAI
	}

	count := 0
	err = im.txManager.Do(ctx, func(repos repository.Repositories) error {
		for name, fields := range lp.Providers {
			typ := defaultType
			if s, ok := fields["type"].(string); ok && s != "" {
				parsed, perr := provider.ParseProviderType(s)
				if perr != nil {
					return fmt.Errorf("服务商 %s: %w", name, perr)
				}
				typ = parsed
			}
			if !typ.Supports(category) {
				return fmt.Errorf("服务商 %s: 类型 %s 不能用于%s", name, typ, category)
			}
			cfg := &model.ProviderConfig{
				Category:    category,
				Name:        name,
				Type:        string(typ),
				APIKey:      stringField(fields, "api_key"),
				BaseURL:     stringField(fields, "base_url"),
				Model:       stringField(fields, "model"),
				ExtraConfig: provider.FilterExtras(category, fields),
			}
			if err := repos.Provider.Upsert(ctx, cfg); err != nil {
				return err
			}
			count++
		}
		if _, ok := lp.Providers[lp.ActiveProvider]; ok {
			return repos.Provider.SetActive(ctx, category, lp.ActiveProvider)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key]; ok && v != nil {
		return strings.TrimSpace(fmt.Sprint(v))
	}
	return ""
}

// backup 把源文件复制到 {historyDir}/../backup/<时间戳>/
func (im *Importer) backup(files []string) (string, error) {
	dir := filepath.Join(filepath.Dir(filepath.Clean(im.historyDir)), "backup", im.now().Format(backupTimeLayout))
	for _, f := range files {
		if err := storage.CopyFile(f, filepath.Join(dir, filepath.Base(f))); err != nil {
			return "", err
		}
	}
	return dir, nil
}

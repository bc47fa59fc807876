// pkg/service/preview/service.go
package preview

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/redink-ai/redink/pkg/constant"
	"github.com/redink-ai/redink/pkg/domain/model"
)

const (
	cacheCapacity = 500
	cacheTTL      = 30 * time.Minute
)

// RecordReader 读取单条历史记录
type RecordReader interface {
	Get(ctx context.Context, id string) (*model.HistoryRecord, error)
}

// PagePreview 单页的渲染结果
type PagePreview struct {
	Index int            `json:"index"`
	Type  model.PageType `json:"type"`
	HTML  string         `json:"html"`
}

// RecordPreview 整条记录的预览
type RecordPreview struct {
	RecordID string        `json:"record_id"`
	Title    string        `json:"title"`
	Pages    []PagePreview `json:"pages"`
}

// Service 把大纲页面的 Markdown 渲染为经过过滤的 HTML
type Service struct {
	records  RecordReader
	mdParser goldmark.Markdown
	policy   *bluemonday.Policy
	cache    *LRUCache
}

// NewService 创建一个新的预览服务实例
func NewService(records RecordReader) *Service {
	mdParser := goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Linkify, extension.Strikethrough, extension.Table),
		goldmark.WithRendererOptions(gmhtml.WithHardWraps(), gmhtml.WithXHTML()),
	)

	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("code", "span", "p")

	return &Service{
		records:  records,
		mdParser: mdParser,
		policy:   policy,
		cache:    NewLRUCache(cacheCapacity, cacheTTL),
	}
}

// ToHTML 渲染 Markdown 并过滤危险标签，结果按内容哈希缓存
func (s *Service) ToHTML(content string) (string, error) {
	key := computeCacheKey(content)
	if cached, ok := s.cache.Get(key); ok {
		return cached, nil
	}
	var buf bytes.Buffer
	if err := s.mdParser.Convert([]byte(content), &buf); err != nil {
		return "", fmt.Errorf("渲染 Markdown 失败: %w", err)
	}
	safe := s.policy.Sanitize(buf.String())
	s.cache.Set(key, safe)
	return safe, nil
}

// Record 渲染一条记录的所有页面，userID 不为空时只允许访问自己的记录
func (s *Service) Record(ctx context.Context, id string, userID *uint) (*RecordPreview, error) {
	rec, err := s.records.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if userID != nil && rec.UserID != nil && *rec.UserID != *userID {
		return nil, fmt.Errorf("%w: 历史记录不存在: %s", constant.ErrNotFound, id)
	}

	out := &RecordPreview{RecordID: rec.ID, Title: rec.Title, Pages: make([]PagePreview, 0, len(rec.Pages))}
	for _, page := range rec.Pages {
		html, err := s.ToHTML(stripTypeMarker(page.Content))
		if err != nil {
			return nil, err
		}
		out.Pages = append(out.Pages, PagePreview{Index: page.Index, Type: page.Type, HTML: html})
	}
	return out, nil
}

// stripTypeMarker 去掉首行的 [封面] 这类类型标记，标记已体现在 Type 字段中
func stripTypeMarker(content string) string {
	trimmed := strings.TrimLeft(content, " \t\r\n")
	if !strings.HasPrefix(trimmed, "[") {
		return content
	}
	end := strings.Index(trimmed, "]")
	if end < 0 || strings.ContainsAny(trimmed[:end], "\n") {
		return content
	}
	return strings.TrimLeft(trimmed[end+1:], " \t\r\n")
}

/*
 * @Description: 大纲生成服务
 * @Author: 安知鱼
 * @Date: 2026-08-25 15:20:08
 * @LastEditTime: 2026-09-08 15:47:31
 * @LastEditors: 安知鱼
 */
package outline

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/redink-ai/redink/pkg/constant"
	"github.com/redink-ai/redink/pkg/domain/model"
	"github.com/redink-ai/redink/pkg/service/history"
	"github.com/redink-ai/redink/pkg/service/provider"
)

//go:embed prompts/outline_prompt.txt
var defaultPromptTemplate string

const topicPlaceholder = "{topic}"

// MaxTopicLength 主题最大字符数
const MaxTopicLength = 500

// TextClientSource 提供当前激活的文本生成客户端
type TextClientSource interface {
	TextClient(ctx context.Context) (provider.TextGenerator, provider.Settings, error)
}

// RecordCreator 保存生成结果
type RecordCreator interface {
	Create(ctx context.Context, req *history.CreateRequest) (string, error)
}

// GenerateRequest 大纲生成参数，Images 为可选的参考图片
type GenerateRequest struct {
	Topic  string
	Images [][]byte
	UserID *uint
}

// GenerateResult 大纲生成结果
type GenerateResult struct {
	RecordID  string              `json:"record_id"`
	Outline   string              `json:"outline"`
	Pages     []model.OutlinePage `json:"pages"`
	HasImages bool                `json:"has_images"`
}

// Service 大纲生成服务接口
type Service interface {
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error)
}

type serviceImpl struct {
	texts    TextClientSource
	records  RecordCreator
	template string
}

// NewService 创建大纲生成服务，template 为空时使用内置模板
func NewService(texts TextClientSource, records RecordCreator, template string) Service {
	if strings.TrimSpace(template) == "" {
		template = defaultPromptTemplate
	}
	return &serviceImpl{texts: texts, records: records, template: template}
}

// LoadPromptTemplate 读取模板文件，文件不存在或为空时返回内置模板
func LoadPromptTemplate(path string) string {
	if path == "" {
		return defaultPromptTemplate
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("⚠️  [大纲] 读取提示词模板失败，使用内置模板: %v", err)
		return defaultPromptTemplate
	}
	if strings.TrimSpace(string(data)) == "" {
		return defaultPromptTemplate
	}
	return string(data)
}

// BuildPrompt 用主题填充模板，有参考图片时追加说明
func BuildPrompt(template, topic string, imageCount int) string {
	prompt := strings.ReplaceAll(template, topicPlaceholder, topic)
	if imageCount > 0 {
		prompt += fmt.Sprintf("\n\n注意：用户提供了 %d 张参考图片，请在生成大纲时考虑这些图片的内容和风格。"+
			"这些图片可能是产品图、个人照片或场景图，请根据图片内容来优化大纲，使生成的内容与图片相关联。", imageCount)
	}
	return prompt
}

func (s *serviceImpl) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return nil, constant.Validationf("主题不能为空")
	}
	if n := len([]rune(topic)); n > MaxTopicLength {
		return nil, constant.Validationf("主题过长（%d 字），最多 %d 字", n, MaxTopicLength)
	}

	client, settings, err := s.texts.TextClient(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	prompt := BuildPrompt(s.template, topic, len(req.Images))
	log.Printf("[大纲] 开始生成: topic=%q, provider=%s, model=%s, images=%d, prompt_len=%d",
		topic, settings.Conn().Name, settings.Conn().Model, len(req.Images), len(prompt))

	text, err := client.Generate(ctx, prompt, req.Images)
	if err != nil {
		perr := provider.NewProviderError(settings.Conn().Name, err)
		log.Printf("❌ [大纲] 生成失败 (%s): %v", perr.Title(), err)
		return nil, perr
	}

	pages := Parse(text)
	if len(pages) == 0 {
		return nil, provider.NewProviderError(settings.Conn().Name, errors.New("模型返回了空的大纲"))
	}

	recordID, err := s.records.Create(ctx, &history.CreateRequest{
		Title:   topic,
		Outline: model.Outline{Raw: text, Pages: pages},
		UserID:  req.UserID,
	})
	if err != nil {
		return nil, err
	}

	log.Printf("✅ [大纲] 生成完成: %d 页, 耗时 %.2fs, record=%s", len(pages), time.Since(start).Seconds(), recordID)
	return &GenerateResult{
		RecordID:  recordID,
		Outline:   text,
		Pages:     pages,
		HasImages: len(req.Images) > 0,
	}, nil
}

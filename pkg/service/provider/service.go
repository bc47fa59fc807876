/*
 * @Description: 服务商配置服务
 * @Author: 安知鱼
 * @Date: 2026-08-22 18:02:11
 * @LastEditTime: 2026-09-05 21:17:44
 * @LastEditors: 安知鱼
 */
package provider

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/redink-ai/redink/pkg/constant"
	"github.com/redink-ai/redink/pkg/domain/model"
	"github.com/redink-ai/redink/pkg/domain/repository"
)

// connectionTestPrompt 连接测试时发送的提示词，期望模型原样回复
const connectionTestPrompt = "请回复'你好，红墨'"

// CategoryUpdate 某个类别的完整配置，providers 以名称为键
type CategoryUpdate struct {
	ActiveProvider string                    `json:"active_provider"`
	Providers      map[string]map[string]any `json:"providers"`
}

// UpdateConfigRequest 两个类别均为可选
type UpdateConfigRequest struct {
	TextGeneration  *CategoryUpdate `json:"text_generation"`
	ImageGeneration *CategoryUpdate `json:"image_generation"`
}

// CategoryView 返回给前端的类别配置，api_key 已遮盖
type CategoryView struct {
	ActiveProvider string                    `json:"active_provider"`
	Providers      map[string]map[string]any `json:"providers"`
}

// ConfigView 全部配置
type ConfigView struct {
	TextGeneration  CategoryView `json:"text_generation"`
	ImageGeneration CategoryView `json:"image_generation"`
}

// TestConnectionRequest 连接测试参数，api_key 为空时从已保存的配置读取
type TestConnectionRequest struct {
	Type         string `json:"type"`
	ProviderName string `json:"provider_name"`
	APIKey       string `json:"api_key"`
	BaseURL      string `json:"base_url"`
	Model        string `json:"model"`
}

// TestResult 连接测试结果
type TestResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// CategoryStatus 启动自检结果
type CategoryStatus struct {
	Category model.ProviderCategory `json:"category"`
	Provider string                 `json:"provider,omitempty"`
	Ready    bool                   `json:"ready"`
	Message  string                 `json:"message,omitempty"`
}

// Service 定义了服务商配置的业务接口
type Service interface {
	// ResolveText / ResolveImage 返回当前激活且校验通过的配置
	ResolveText(ctx context.Context) (Settings, error)
	ResolveImage(ctx context.Context) (Settings, error)
	// TextClient / ImageClient 解析配置并构造客户端
	TextClient(ctx context.Context) (TextGenerator, Settings, error)
	ImageClient(ctx context.Context) (ImageGenerator, Settings, error)

	GetConfig(ctx context.Context) (*ConfigView, error)
	UpdateConfig(ctx context.Context, req *UpdateConfigRequest) error
	TestConnection(ctx context.Context, req *TestConnectionRequest) (*TestResult, error)
	ValidateOnStartup(ctx context.Context) []CategoryStatus
}

type serviceImpl struct {
	repo      repository.ProviderConfigRepository
	txManager repository.TransactionManager
	cache     *ConfigCache
	factory   ClientFactory
}

// NewService 创建服务商配置服务
func NewService(repo repository.ProviderConfigRepository, txManager repository.TransactionManager, cache *ConfigCache, factory ClientFactory) Service {
	return &serviceImpl{repo: repo, txManager: txManager, cache: cache, factory: factory}
}

func (s *serviceImpl) resolve(ctx context.Context, category model.ProviderCategory) (Settings, error) {
	snap, err := s.cache.Get(ctx, category)
	if err != nil {
		return nil, err
	}
	return Resolve(snap, "")
}

func (s *serviceImpl) ResolveText(ctx context.Context) (Settings, error) {
	return s.resolve(ctx, model.CategoryText)
}

func (s *serviceImpl) ResolveImage(ctx context.Context) (Settings, error) {
	return s.resolve(ctx, model.CategoryImage)
}

func (s *serviceImpl) TextClient(ctx context.Context) (TextGenerator, Settings, error) {
	settings, err := s.ResolveText(ctx)
	if err != nil {
		return nil, nil, err
	}
	client, err := s.factory.Text(settings)
	if err != nil {
		return nil, nil, constant.NewConfigurationError(err.Error(), "检查文本服务商类型")
	}
	log.Printf("[配置] 使用文本服务商: %s (type=%s)", settings.Conn().Name, settings.Type())
	return client, settings, nil
}

func (s *serviceImpl) ImageClient(ctx context.Context) (ImageGenerator, Settings, error) {
	settings, err := s.ResolveImage(ctx)
	if err != nil {
		return nil, nil, err
	}
	client, err := s.factory.Image(settings)
	if err != nil {
		return nil, nil, constant.NewConfigurationError(err.Error(), "检查图片服务商类型")
	}
	log.Printf("[配置] 使用图片服务商: %s (type=%s)", settings.Conn().Name, settings.Type())
	return client, settings, nil
}

func (s *serviceImpl) GetConfig(ctx context.Context) (*ConfigView, error) {
	text, err := s.cache.Get(ctx, model.CategoryText)
	if err != nil {
		return nil, err
	}
	image, err := s.cache.Get(ctx, model.CategoryImage)
	if err != nil {
		return nil, err
	}
	return &ConfigView{
		TextGeneration:  categoryView(text),
		ImageGeneration: categoryView(image),
	}, nil
}

func categoryView(snap *Snapshot) CategoryView {
	view := CategoryView{ActiveProvider: snap.Active, Providers: make(map[string]map[string]any, len(snap.Providers))}
	for _, p := range snap.Providers {
		item := map[string]any{
			"type":           p.Type,
			"api_key":        "",
			"api_key_masked": model.MaskAPIKey(p.APIKey),
			"base_url":       p.BaseURL,
			"model":          p.Model,
		}
		for k, v := range p.ExtraConfig {
			item[k] = v
		}
		view.Providers[p.Name] = item
	}
	return view
}

func (s *serviceImpl) UpdateConfig(ctx context.Context, req *UpdateConfigRequest) error {
	updates := map[model.ProviderCategory]*CategoryUpdate{
		model.CategoryText:  req.TextGeneration,
		model.CategoryImage: req.ImageGeneration,
	}

	err := s.txManager.Do(ctx, func(repos repository.Repositories) error {
		for _, category := range []model.ProviderCategory{model.CategoryText, model.CategoryImage} {
			upd := updates[category]
			if upd == nil {
				continue
			}
			if err := applyCategoryUpdate(ctx, repos.Provider, category, upd); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, constant.ErrValidation) {
			return err
		}
		return fmt.Errorf("%w: 保存服务商配置失败: %v", constant.ErrPersistence, err)
	}

	s.cache.Invalidate(ctx)
	return nil
}

func applyCategoryUpdate(ctx context.Context, repo repository.ProviderConfigRepository, category model.ProviderCategory, upd *CategoryUpdate) error {
	names := make([]string, 0, len(upd.Providers))
	for name := range upd.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			return constant.Validationf("服务商名称不能为空")
		}
		fields := upd.Providers[name]

		ptype, err := ParseProviderType(stringField(fields, "type"))
		if err != nil {
			return constant.Validationf("服务商 %s: %v", name, err)
		}
		if !ptype.Supports(category) {
			return constant.Validationf("服务商 %s: 类型 %s 不能用于%s", name, ptype, categoryLabels[category])
		}

		existing, err := repo.FindByName(ctx, category, name)
		if err != nil && !errors.Is(err, constant.ErrNotFound) {
			return err
		}

		apiKey := stringField(fields, "api_key")
		if existing != nil && (apiKey == "" || apiKey == model.MaskAPIKey(existing.APIKey)) {
			apiKey = existing.APIKey
		}

		cfg := &model.ProviderConfig{
			Category:    category,
			Name:        name,
			Type:        string(ptype),
			APIKey:      apiKey,
			BaseURL:     stringField(fields, "base_url"),
			Model:       stringField(fields, "model"),
			ExtraConfig: FilterExtras(category, fields),
		}
		if err := repo.Upsert(ctx, cfg); err != nil {
			return err
		}
	}

	if _, err := repo.DeleteExcept(ctx, category, names); err != nil {
		return err
	}

	active := strings.TrimSpace(upd.ActiveProvider)
	if active != "" {
		if _, ok := upd.Providers[active]; !ok {
			return constant.Validationf("激活的服务商 %s 不在配置列表中", active)
		}
	}
	return repo.SetActive(ctx, category, active)
}

// stringField 读取字符串字段，非字符串值（例如前端传来的布尔占位）视为空
func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func (s *serviceImpl) TestConnection(ctx context.Context, req *TestConnectionRequest) (*TestResult, error) {
	ptype, err := ParseProviderType(req.Type)
	if err != nil {
		return nil, constant.Validationf("%v", err)
	}
	category := model.CategoryText
	if ptype.Supports(model.CategoryImage) {
		category = model.CategoryImage
	}

	cfg := &model.ProviderConfig{
		Category: category,
		Name:     req.ProviderName,
		Type:     string(ptype),
		APIKey:   strings.TrimSpace(req.APIKey),
		BaseURL:  strings.TrimSpace(req.BaseURL),
		Model:    strings.TrimSpace(req.Model),
	}

	if cfg.APIKey == "" && req.ProviderName != "" {
		saved, err := s.repo.FindByName(ctx, category, req.ProviderName)
		if err != nil && !errors.Is(err, constant.ErrNotFound) {
			return nil, err
		}
		if saved != nil {
			cfg.APIKey = saved.APIKey
			if cfg.BaseURL == "" {
				cfg.BaseURL = saved.BaseURL
			}
			if cfg.Model == "" {
				cfg.Model = saved.Model
			}
			cfg.ExtraConfig = saved.ExtraConfig
		}
	}
	if cfg.APIKey == "" {
		return nil, constant.Validationf("API Key 未配置")
	}

	settings, err := FromConfig(cfg)
	if err != nil {
		return nil, constant.Validationf("%v", err)
	}

	if category == model.CategoryImage {
		client, err := s.factory.Image(settings)
		if err != nil {
			return nil, constant.Validationf("%v", err)
		}
		if err := client.Ping(ctx); err != nil {
			return nil, NewProviderError(req.ProviderName, fmt.Errorf("连接测试失败: %w", err))
		}
		return &TestResult{Success: true, Message: "连接成功！仅代表连接稳定，不确定是否可以稳定支持图片生成"}, nil
	}

	client, err := s.factory.Text(settings)
	if err != nil {
		return nil, constant.Validationf("%v", err)
	}
	reply, err := client.Generate(ctx, connectionTestPrompt, nil)
	if err != nil {
		return nil, NewProviderError(req.ProviderName, fmt.Errorf("连接测试失败: %w", err))
	}
	return checkReply(reply), nil
}

func checkReply(reply string) *TestResult {
	preview := []rune(reply)
	if len(preview) > 100 {
		preview = preview[:100]
	}
	if strings.Contains(reply, "你好") && strings.Contains(reply, "红墨") {
		return &TestResult{Success: true, Message: "连接成功！响应: " + string(preview)}
	}
	return &TestResult{Success: true, Message: "连接成功，但响应内容不符合预期: " + string(preview)}
}

// ValidateOnStartup 启动时检查两个类别是否都有可用的服务商，只记录日志不阻止启动
func (s *serviceImpl) ValidateOnStartup(ctx context.Context) []CategoryStatus {
	var out []CategoryStatus
	for _, category := range []model.ProviderCategory{model.CategoryText, model.CategoryImage} {
		st := CategoryStatus{Category: category}
		settings, err := s.resolve(ctx, category)
		if err != nil {
			st.Message = err.Error()
			log.Printf("⚠️  [配置] %s服务商不可用: %v", categoryLabels[category], err)
		} else {
			st.Ready = true
			st.Provider = settings.Conn().Name
			log.Printf("✅ [配置] %s服务商: %s (type=%s, model=%s)", categoryLabels[category],
				settings.Conn().Name, settings.Type(), settings.Conn().Model)
		}
		out = append(out, st)
	}
	return out
}

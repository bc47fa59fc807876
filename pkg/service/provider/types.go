/*
 * @Description: 服务商类型与各类型的配置结构
 * @Author: 安知鱼
 * @Date: 2026-08-22 13:05:33
 * @LastEditTime: 2026-09-05 17:40:26
 * @LastEditors: 安知鱼
 */
package provider

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/redink-ai/redink/pkg/domain/model"
)

// ProviderType 服务商类型，集合是封闭的
type ProviderType string

const (
	TypeGoogleGenAI      ProviderType = "google_genai"
	TypeGoogleGemini     ProviderType = "google_gemini"
	TypeOpenAICompatible ProviderType = "openai_compatible"
	TypeImageAPI         ProviderType = "image_api"
)

// 默认参数
const (
	DefaultTextModel       = "gemini-2.0-flash-exp"
	DefaultTemperature     = 1.0
	DefaultMaxOutputTokens = 8000
	DefaultImageModel      = "imagen-3.0-generate-002"
	DefaultImageSize       = "1024x1536"
	DefaultAspectRatio     = "3:4"

	// GeminiOpenAIBaseURL 是 Gemini 的 OpenAI 兼容入口
	GeminiOpenAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
)

// ParseProviderType 校验类型字符串，未知类型直接报错
func ParseProviderType(s string) (ProviderType, error) {
	switch t := ProviderType(strings.TrimSpace(s)); t {
	case TypeGoogleGenAI, TypeGoogleGemini, TypeOpenAICompatible, TypeImageAPI:
		return t, nil
	}
	return "", fmt.Errorf("不支持的服务商类型: %q", s)
}

// Supports 判断该类型能否用于指定类别
func (t ProviderType) Supports(category model.ProviderCategory) bool {
	switch category {
	case model.CategoryText:
		return t == TypeGoogleGemini || t == TypeOpenAICompatible
	case model.CategoryImage:
		return t == TypeGoogleGenAI || t == TypeImageAPI
	}
	return false
}

// Connection 所有类型共有的连接信息
type Connection struct {
	Name    string
	APIKey  string
	BaseURL string
	Model   string
}

// TextOptions 文本生成参数
type TextOptions struct {
	Temperature     float64
	MaxOutputTokens int
}

// ImageOptions 图片生成参数
type ImageOptions struct {
	HighConcurrency    bool
	ShortPrompt        bool
	DefaultAspectRatio string
	ImageSize          string
	EndpointType       string
}

// Settings 是各服务商类型配置的公共接口，只能由本包内的类型实现
type Settings interface {
	Type() ProviderType
	Conn() Connection
	sealed()
}

// GoogleGeminiText 通过 Gemini 生成大纲
type GoogleGeminiText struct {
	Connection
	TextOptions
}

// OpenAICompatibleText 任意 OpenAI 兼容的文本接口
type OpenAICompatibleText struct {
	Connection
	TextOptions
}

// GoogleGenAIImage 通过 Google GenAI (Imagen) 生成图片
type GoogleGenAIImage struct {
	Connection
	ImageOptions
}

// ImageAPI OpenAI 兼容的图片接口，EndpointType 为 images 或 chat
type ImageAPI struct {
	Connection
	ImageOptions
}

func (GoogleGeminiText) Type() ProviderType     { return TypeGoogleGemini }
func (OpenAICompatibleText) Type() ProviderType { return TypeOpenAICompatible }
func (GoogleGenAIImage) Type() ProviderType     { return TypeGoogleGenAI }
func (ImageAPI) Type() ProviderType             { return TypeImageAPI }

func (s GoogleGeminiText) Conn() Connection     { return s.Connection }
func (s OpenAICompatibleText) Conn() Connection { return s.Connection }
func (s GoogleGenAIImage) Conn() Connection     { return s.Connection }
func (s ImageAPI) Conn() Connection             { return s.Connection }

func (GoogleGeminiText) sealed()     {}
func (OpenAICompatibleText) sealed() {}
func (GoogleGenAIImage) sealed()     {}
func (ImageAPI) sealed()             {}

// TextOptionsOf 返回文本类型的生成参数
func TextOptionsOf(s Settings) (TextOptions, bool) {
	switch v := s.(type) {
	case GoogleGeminiText:
		return v.TextOptions, true
	case OpenAICompatibleText:
		return v.TextOptions, true
	}
	return TextOptions{}, false
}

// ImageOptionsOf 返回图片类型的生成参数
func ImageOptionsOf(s Settings) (ImageOptions, bool) {
	switch v := s.(type) {
	case GoogleGenAIImage:
		return v.ImageOptions, true
	case ImageAPI:
		return v.ImageOptions, true
	}
	return ImageOptions{}, false
}

// 允许写入 extra_config 的字段
var allowedExtras = map[model.ProviderCategory][]string{
	model.CategoryText:  {"temperature", "max_output_tokens"},
	model.CategoryImage: {"high_concurrency", "short_prompt", "default_aspect_ratio", "image_size", "endpoint_type"},
}

// FilterExtras 只保留该类别认可的额外字段，空值丢弃
func FilterExtras(category model.ProviderCategory, in map[string]any) model.JSONMap {
	out := model.JSONMap{}
	for _, key := range allowedExtras[category] {
		v, ok := in[key]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		out[key] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// FromConfig 把数据库中的一条配置转换为具体类型的 Settings
func FromConfig(cfg *model.ProviderConfig) (Settings, error) {
	t, err := ParseProviderType(cfg.Type)
	if err != nil {
		return nil, err
	}
	if !t.Supports(cfg.Category) {
		return nil, fmt.Errorf("服务商类型 %s 不能用于 %s 类别", t, cfg.Category)
	}

	conn := Connection{
		Name:    cfg.Name,
		APIKey:  strings.TrimSpace(cfg.APIKey),
		BaseURL: strings.TrimSpace(cfg.BaseURL),
		Model:   strings.TrimSpace(cfg.Model),
	}
	extra := cfg.ExtraConfig

	switch t {
	case TypeGoogleGemini, TypeOpenAICompatible:
		if conn.Model == "" {
			conn.Model = DefaultTextModel
		}
		opts := TextOptions{
			Temperature:     floatExtra(extra, "temperature", DefaultTemperature),
			MaxOutputTokens: intExtra(extra, "max_output_tokens", DefaultMaxOutputTokens),
		}
		if t == TypeGoogleGemini {
			return GoogleGeminiText{Connection: conn, TextOptions: opts}, nil
		}
		return OpenAICompatibleText{Connection: conn, TextOptions: opts}, nil
	default:
		if conn.Model == "" {
			conn.Model = DefaultImageModel
		}
		opts := ImageOptions{
			HighConcurrency:    boolExtra(extra, "high_concurrency"),
			ShortPrompt:        boolExtra(extra, "short_prompt"),
			DefaultAspectRatio: stringExtra(extra, "default_aspect_ratio", DefaultAspectRatio),
			ImageSize:          stringExtra(extra, "image_size", DefaultImageSize),
			EndpointType:       stringExtra(extra, "endpoint_type", "images"),
		}
		if t == TypeGoogleGenAI {
			return GoogleGenAIImage{Connection: conn, ImageOptions: opts}, nil
		}
		return ImageAPI{Connection: conn, ImageOptions: opts}, nil
	}
}

func floatExtra(m model.JSONMap, key string, def float64) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

func intExtra(m model.JSONMap, key string, def int) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func boolExtra(m model.JSONMap, key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(v))
		return b
	case float64:
		return v != 0
	}
	return false
}

func stringExtra(m model.JSONMap, key, def string) string {
	if v, ok := m[key].(string); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

/*
 * @Description: 文本 / 图片生成客户端（基于 openai-go）
 * @Author: 安知鱼
 * @Date: 2026-08-23 14:12:55
 * @LastEditTime: 2026-09-05 20:31:07
 * @LastEditors: 安知鱼
 */
package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// TextGenerator 文本生成能力
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, refs [][]byte) (string, error)
}

// ImageGenerator 图片生成能力，返回原始图片字节
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string, refs [][]byte) ([]byte, error)
	// Ping 只验证连通性和密钥，不消耗生成额度
	Ping(ctx context.Context) error
}

// ClientFactory 按 Settings 构造客户端，测试中可替换
type ClientFactory interface {
	Text(s Settings) (TextGenerator, error)
	Image(s Settings) (ImageGenerator, error)
}

// OpenAIClientFactory 所有类型都走 OpenAI 兼容协议，Google 类型默认指向 Gemini 的兼容入口
type OpenAIClientFactory struct {
	HTTPClient *http.Client
}

// NewOpenAIClientFactory 创建默认的客户端工厂
func NewOpenAIClientFactory() *OpenAIClientFactory {
	return &OpenAIClientFactory{HTTPClient: &http.Client{Timeout: 5 * time.Minute}}
}

func (f *OpenAIClientFactory) requestOptions(s Settings) []option.RequestOption {
	conn := s.Conn()
	opts := []option.RequestOption{
		option.WithAPIKey(conn.APIKey),
		option.WithMaxRetries(1),
	}
	if f.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(f.HTTPClient))
	}
	baseURL := conn.BaseURL
	if baseURL == "" && (s.Type() == TypeGoogleGemini || s.Type() == TypeGoogleGenAI) {
		baseURL = GeminiOpenAIBaseURL
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(normalizeBaseURL(baseURL)))
	}
	return opts
}

func (f *OpenAIClientFactory) Text(s Settings) (TextGenerator, error) {
	textOpts, ok := TextOptionsOf(s)
	if !ok {
		return nil, fmt.Errorf("服务商类型 %s 不支持文本生成", s.Type())
	}
	return &openAIText{
		client: openai.NewClient(f.requestOptions(s)...),
		model:  s.Conn().Model,
		opts:   textOpts,
	}, nil
}

func (f *OpenAIClientFactory) Image(s Settings) (ImageGenerator, error) {
	imgOpts, ok := ImageOptionsOf(s)
	if !ok {
		return nil, fmt.Errorf("服务商类型 %s 不支持图片生成", s.Type())
	}
	return &openAIImage{
		client:     openai.NewClient(f.requestOptions(s)...),
		httpClient: f.HTTPClient,
		model:      s.Conn().Model,
		opts:       imgOpts,
	}, nil
}

// normalizeBaseURL 兼容用户填写不带 /v1 的地址
func normalizeBaseURL(u string) string {
	u = strings.TrimRight(strings.TrimSpace(u), "/")
	if strings.HasSuffix(u, "/v1") || strings.HasSuffix(u, "/openai") || strings.Contains(u, "/v1beta") {
		return u + "/"
	}
	return u + "/v1/"
}

type openAIText struct {
	client openai.Client
	model  string
	opts   TextOptions
}

func (t *openAIText) Generate(ctx context.Context, prompt string, refs [][]byte) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(t.model),
		Messages: []openai.ChatCompletionMessageParamUnion{userMessage(prompt, refs)},
	}
	if t.opts.Temperature > 0 {
		params.Temperature = openai.Float(t.opts.Temperature)
	}
	if t.opts.MaxOutputTokens > 0 {
		params.MaxTokens = openai.Int(int64(t.opts.MaxOutputTokens))
	}

	resp, err := t.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func userMessage(prompt string, refs [][]byte) openai.ChatCompletionMessageParamUnion {
	if len(refs) == 0 {
		return openai.UserMessage(prompt)
	}
	parts := []openai.ChatCompletionContentPartUnionParam{openai.TextContentPart(prompt)}
	for _, img := range refs {
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: dataURL(img),
		}))
	}
	return openai.UserMessage(parts)
}

func dataURL(img []byte) string {
	return "data:" + http.DetectContentType(img) + ";base64," + base64.StdEncoding.EncodeToString(img)
}

type openAIImage struct {
	client     openai.Client
	httpClient *http.Client
	model      string
	opts       ImageOptions
}

func (g *openAIImage) GenerateImage(ctx context.Context, prompt string, refs [][]byte) ([]byte, error) {
	if g.opts.EndpointType == "chat" {
		return g.generateViaChat(ctx, prompt, refs)
	}

	resp, err := g.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openai.ImageModel(g.model),
		N:              openai.Int(1),
		Size:           openai.ImageGenerateParamsSize(g.opts.ImageSize),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("image api: empty data")
	}
	img := resp.Data[0]
	if img.B64JSON != "" {
		return base64.StdEncoding.DecodeString(img.B64JSON)
	}
	if img.URL != "" {
		return g.download(ctx, img.URL)
	}
	return nil, errors.New("image api: response has neither b64_json nor url")
}

// 部分中转服务通过 chat 接口返回 markdown 图片或 data URL
var (
	dataURLPattern = regexp.MustCompile(`data:image/[a-zA-Z+]+;base64,([A-Za-z0-9+/=]+)`)
	httpURLPattern = regexp.MustCompile(`https?://[^\s)"']+`)
)

func (g *openAIImage) generateViaChat(ctx context.Context, prompt string, refs [][]byte) ([]byte, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{userMessage(prompt, refs)},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("image api: empty choices")
	}
	content := resp.Choices[0].Message.Content
	if m := dataURLPattern.FindStringSubmatch(content); m != nil {
		return base64.StdEncoding.DecodeString(m[1])
	}
	if u := httpURLPattern.FindString(content); u != "" {
		return g.download(ctx, u)
	}
	return nil, fmt.Errorf("image api: 响应中没有图片: %.100s", content)
}

func (g *openAIImage) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	client := g.httpClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("下载图片失败: HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 32<<20))
}

func (g *openAIImage) Ping(ctx context.Context) error {
	_, err := g.client.Models.List(ctx)
	return err
}

package provider

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redink-ai/redink/internal/infra/persistence/database/dbtest"
	"github.com/redink-ai/redink/internal/infra/persistence/ent"
	"github.com/redink-ai/redink/pkg/constant"
	"github.com/redink-ai/redink/pkg/domain/model"
	"github.com/redink-ai/redink/pkg/service/utility"
)

type fakeFactory struct {
	reply   string
	err     error
	pingErr error
	lastKey string
}

func (f *fakeFactory) Text(s Settings) (TextGenerator, error) {
	f.lastKey = s.Conn().APIKey
	return fakeText{f}, nil
}

func (f *fakeFactory) Image(s Settings) (ImageGenerator, error) {
	f.lastKey = s.Conn().APIKey
	return fakeImage{f}, nil
}

type fakeText struct{ f *fakeFactory }

func (t fakeText) Generate(ctx context.Context, prompt string, refs [][]byte) (string, error) {
	return t.f.reply, t.f.err
}

type fakeImage struct{ f *fakeFactory }

func (i fakeImage) GenerateImage(ctx context.Context, prompt string, refs [][]byte) ([]byte, error) {
	return []byte("png"), i.f.err
}

func (i fakeImage) Ping(ctx context.Context) error { return i.f.pingErr }

func newTestService(t *testing.T, shared utility.CacheService) (Service, *ConfigCache, *fakeFactory) {
	t.Helper()
	db, dialectName := dbtest.Open(t)
	repo := ent.NewProviderConfigRepo(db, dialectName)
	cache := NewConfigCache(repo, shared)
	factory := &fakeFactory{reply: "你好，红墨"}
	return NewService(repo, ent.NewTransactionManager(db, dialectName), cache, factory), cache, factory
}

func TestResolveOrder(t *testing.T) {
	withKey := func(name, ptype, key, baseURL string) *model.ProviderConfig {
		return &model.ProviderConfig{Category: model.CategoryImage, Name: name, Type: ptype, APIKey: key, BaseURL: baseURL}
	}

	tests := []struct {
		name    string
		snap    *Snapshot
		lookup  string
		wantErr string
	}{
		{"没有任何配置", &Snapshot{Category: model.CategoryImage}, "", "未找到任何图片生成服务商配置"},
		{"没有激活项", &Snapshot{Category: model.CategoryImage, Providers: []*model.ProviderConfig{withKey("a", "google_genai", "k", "")}}, "", "未找到激活的"},
		{"名称不存在时列出可用项", &Snapshot{Category: model.CategoryImage, Active: "x", Providers: []*model.ProviderConfig{
			withKey("a", "google_genai", "k", ""), withKey("b", "image_api", "k", "http://b"),
		}}, "", "可用的服务商: a, b"},
		{"缺少 API Key", &Snapshot{Category: model.CategoryImage, Active: "a", Providers: []*model.ProviderConfig{withKey("a", "google_genai", " ", "")}}, "", "未配置 API Key"},
		{"image_api 缺少 Base URL", &Snapshot{Category: model.CategoryImage, Active: "a", Providers: []*model.ProviderConfig{withKey("a", "image_api", "k", "")}}, "", "未配置 Base URL"},
		{"类型与类别不符", &Snapshot{Category: model.CategoryImage, Active: "a", Providers: []*model.ProviderConfig{withKey("a", "google_gemini", "k", "")}}, "", "配置无效"},
		{"显式名称优先于激活项", &Snapshot{Category: model.CategoryImage, Active: "a", Providers: []*model.ProviderConfig{
			withKey("a", "image_api", "k", ""), withKey("b", "google_genai", "k", ""),
		}}, "b", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings, err := Resolve(tt.snap, tt.lookup)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Resolve() error = %v", err)
				}
				if settings.Conn().Name != tt.lookup {
					t.Errorf("Resolve() = %s, want %s", settings.Conn().Name, tt.lookup)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Resolve() error = %v, want contains %q", err, tt.wantErr)
			}
			if !errors.Is(err, constant.ErrConfiguration) {
				t.Errorf("错误应当属于 ErrConfiguration: %v", err)
			}
			var cfgErr *constant.ConfigurationError
			if !errors.As(err, &cfgErr) || cfgErr.Hint == "" {
				t.Errorf("配置错误应当带有解决方案: %v", err)
			}
		})
	}
}

func TestFromConfigVariants(t *testing.T) {
	text, err := FromConfig(&model.ProviderConfig{
		Category: model.CategoryText, Name: "g", Type: "google_gemini", APIKey: "k",
		ExtraConfig: model.JSONMap{"temperature": 0.3, "max_output_tokens": "2048"},
	})
	if err != nil {
		t.Fatalf("FromConfig() error = %v", err)
	}
	if _, ok := text.(GoogleGeminiText); !ok {
		t.Fatalf("FromConfig() = %T, want GoogleGeminiText", text)
	}
	opts, _ := TextOptionsOf(text)
	if opts.Temperature != 0.3 || opts.MaxOutputTokens != 2048 {
		t.Errorf("TextOptions = %+v", opts)
	}
	if text.Conn().Model != DefaultTextModel {
		t.Errorf("默认模型 = %s, want %s", text.Conn().Model, DefaultTextModel)
	}

	image, err := FromConfig(&model.ProviderConfig{
		Category: model.CategoryImage, Name: "i", Type: "image_api", APIKey: "k", BaseURL: "http://x",
		ExtraConfig: model.JSONMap{"high_concurrency": true, "endpoint_type": "chat"},
	})
	if err != nil {
		t.Fatalf("FromConfig() error = %v", err)
	}
	io, ok := ImageOptionsOf(image)
	if !ok || !io.HighConcurrency || io.EndpointType != "chat" || io.ImageSize != DefaultImageSize {
		t.Errorf("ImageOptions = %+v", io)
	}

	if _, err := FromConfig(&model.ProviderConfig{Category: model.CategoryText, Type: "midjourney"}); err == nil {
		t.Error("未知类型应当报错")
	}
}

func TestUpdateConfigKeepsKeyAndInvalidates(t *testing.T) {
	ctx := context.Background()
	shared := utility.NewMemoryCacheService()
	svc, _, _ := newTestService(t, shared)

	err := svc.UpdateConfig(ctx, &UpdateConfigRequest{
		TextGeneration: &CategoryUpdate{
			ActiveProvider: "gemini",
			Providers: map[string]map[string]any{
				"gemini": {"type": "google_gemini", "api_key": "sk-1234567890", "temperature": 0.5, "unknown": "x"},
				"spare":  {"type": "openai_compatible", "api_key": "sk-spare-key", "base_url": "http://spare"},
			},
		},
	})
	if err != nil {
		t.Fatalf("UpdateConfig() error = %v", err)
	}

	view, err := svc.GetConfig(ctx)
	if err != nil {
		t.Fatalf("GetConfig() error = %v", err)
	}
	gemini := view.TextGeneration.Providers["gemini"]
	if view.TextGeneration.ActiveProvider != "gemini" {
		t.Errorf("active = %s, want gemini", view.TextGeneration.ActiveProvider)
	}
	if gemini["api_key"] != "" || gemini["api_key_masked"] != "sk-1*****7890" {
		t.Errorf("密钥应当被遮盖: %+v", gemini)
	}
	if _, ok := gemini["unknown"]; ok {
		t.Errorf("未知字段不应保存: %+v", gemini)
	}

	// 空密钥保留原值，spare 被删除，激活项切换
	err = svc.UpdateConfig(ctx, &UpdateConfigRequest{
		TextGeneration: &CategoryUpdate{
			ActiveProvider: "gemini",
			Providers: map[string]map[string]any{
				"gemini": {"type": "google_gemini", "api_key": "", "model": "gemini-2.5-pro"},
			},
		},
	})
	if err != nil {
		t.Fatalf("UpdateConfig() error = %v", err)
	}

	settings, err := svc.ResolveText(ctx)
	if err != nil {
		t.Fatalf("ResolveText() error = %v", err)
	}
	if settings.Conn().APIKey != "sk-1234567890" {
		t.Errorf("空密钥应保留原值，got %q", settings.Conn().APIKey)
	}
	if settings.Conn().Model != "gemini-2.5-pro" {
		t.Errorf("更新后的模型未生效: %s", settings.Conn().Model)
	}

	view, _ = svc.GetConfig(ctx)
	if _, ok := view.TextGeneration.Providers["spare"]; ok {
		t.Error("请求中缺失的服务商应当被删除")
	}
}

func TestUpdateConfigValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, nil)

	tests := []struct {
		name string
		upd  *CategoryUpdate
	}{
		{"类型不适用于类别", &CategoryUpdate{Providers: map[string]map[string]any{"x": {"type": "image_api", "api_key": "k"}}}},
		{"未知类型", &CategoryUpdate{Providers: map[string]map[string]any{"x": {"type": "foo"}}}},
		{"激活项不在列表中", &CategoryUpdate{ActiveProvider: "y", Providers: map[string]map[string]any{"x": {"type": "google_gemini", "api_key": "k"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.UpdateConfig(ctx, &UpdateConfigRequest{TextGeneration: tt.upd})
			if !errors.Is(err, constant.ErrValidation) {
				t.Fatalf("UpdateConfig() error = %v, want ErrValidation", err)
			}
			view, _ := svc.GetConfig(ctx)
			if len(view.TextGeneration.Providers) != 0 {
				t.Errorf("校验失败时事务应当回滚: %+v", view.TextGeneration.Providers)
			}
		})
	}
}

func TestSharedCacheCarriesAPIKey(t *testing.T) {
	ctx := context.Background()
	shared := utility.NewMemoryCacheService()
	svc, cache, _ := newTestService(t, shared)

	err := svc.UpdateConfig(ctx, &UpdateConfigRequest{
		ImageGeneration: &CategoryUpdate{
			ActiveProvider: "img",
			Providers:      map[string]map[string]any{"img": {"type": "google_genai", "api_key": "secret-key-123"}},
		},
	})
	if err != nil {
		t.Fatalf("UpdateConfig() error = %v", err)
	}
	if _, err := cache.Get(ctx, model.CategoryImage); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	// 新实例只依赖共享缓存，仓储为 nil 时不能被访问
	other := NewConfigCache(nil, shared)
	snap, err := other.Get(ctx, model.CategoryImage)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if p := snap.Find("img"); p == nil || p.APIKey != "secret-key-123" {
		t.Fatalf("共享缓存应当保留 api_key: %+v", p)
	}
}

func TestConfigCacheSeesInvalidationFromOtherInstance(t *testing.T) {
	ctx := context.Background()
	db, dialectName := dbtest.Open(t)
	repo := ent.NewProviderConfigRepo(db, dialectName)
	shared := utility.NewMemoryCacheService()

	cacheA := NewConfigCache(repo, shared)
	cacheB := NewConfigCache(repo, shared)
	svcA := NewService(repo, ent.NewTransactionManager(db, dialectName), cacheA, &fakeFactory{})

	update := func(active string) {
		t.Helper()
		err := svcA.UpdateConfig(ctx, &UpdateConfigRequest{
			TextGeneration: &CategoryUpdate{
				ActiveProvider: active,
				Providers: map[string]map[string]any{
					"old": {"type": "openai_compatible", "api_key": "k-old", "base_url": "http://old"},
					"new": {"type": "openai_compatible", "api_key": "k-new", "base_url": "http://new"},
				},
			},
		})
		if err != nil {
			t.Fatalf("UpdateConfig(%s) error = %v", active, err)
		}
	}

	update("old")
	snap, err := cacheB.Get(ctx, model.CategoryText)
	if err != nil || snap.Active != "old" {
		t.Fatalf("Get() = %+v, %v", snap, err)
	}

	update("new")
	snap, err = cacheB.Get(ctx, model.CategoryText)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Active != "new" {
		t.Errorf("另一个实例失效缓存后应读到新配置, active = %q", snap.Active)
	}
}

func TestConfigCacheLocalEntriesExpire(t *testing.T) {
	ctx := context.Background()
	db, dialectName := dbtest.Open(t)
	repo := ent.NewProviderConfigRepo(db, dialectName)

	now := time.Now()
	cache := NewConfigCache(repo, nil)
	cache.now = func() time.Time { return now }

	if snap, err := cache.Get(ctx, model.CategoryText); err != nil || len(snap.Providers) != 0 {
		t.Fatalf("Get() = %+v, %v", snap, err)
	}

	// 绕过服务直接写库，本地缓存不知道这次写入
	err := repo.Upsert(ctx, &model.ProviderConfig{
		Category: model.CategoryText, Name: "direct", Type: "openai_compatible", APIKey: "k",
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := repo.SetActive(ctx, model.CategoryText, "direct"); err != nil {
		t.Fatalf("SetActive() error = %v", err)
	}

	snap, _ := cache.Get(ctx, model.CategoryText)
	if len(snap.Providers) != 0 {
		t.Errorf("TTL 内应返回缓存的快照, got %d providers", len(snap.Providers))
	}

	now = now.Add(defaultCacheTTL + time.Second)
	snap, _ = cache.Get(ctx, model.CategoryText)
	if snap.Active != "direct" {
		t.Errorf("过期后应重新加载, active = %q", snap.Active)
	}
}

func TestTestConnection(t *testing.T) {
	ctx := context.Background()
	svc, _, factory := newTestService(t, nil)

	_ = svc.UpdateConfig(ctx, &UpdateConfigRequest{
		TextGeneration: &CategoryUpdate{
			ActiveProvider: "gemini",
			Providers:      map[string]map[string]any{"gemini": {"type": "google_gemini", "api_key": "saved-key"}},
		},
	})

	res, err := svc.TestConnection(ctx, &TestConnectionRequest{Type: "google_gemini", ProviderName: "gemini"})
	if err != nil {
		t.Fatalf("TestConnection() error = %v", err)
	}
	if !res.Success || !strings.HasPrefix(res.Message, "连接成功！") {
		t.Errorf("TestConnection() = %+v", res)
	}
	if factory.lastKey != "saved-key" {
		t.Errorf("未传入密钥时应使用已保存的密钥，got %q", factory.lastKey)
	}

	factory.reply = "hello"
	res, _ = svc.TestConnection(ctx, &TestConnectionRequest{Type: "openai_compatible", APIKey: "k"})
	if !strings.Contains(res.Message, "不符合预期") {
		t.Errorf("回复不符合预期时应当提示: %+v", res)
	}

	factory.err = errors.New("401 Unauthorized")
	_, err = svc.TestConnection(ctx, &TestConnectionRequest{Type: "openai_compatible", APIKey: "k"})
	var perr *ProviderError
	if !errors.As(err, &perr) || perr.Kind != KindAuth {
		t.Errorf("上游错误应当被分类: %v", err)
	}

	if _, err := svc.TestConnection(ctx, &TestConnectionRequest{Type: "image_api"}); !errors.Is(err, constant.ErrValidation) {
		t.Errorf("缺少密钥应当返回校验错误: %v", err)
	}
}

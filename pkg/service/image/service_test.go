package image

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/redink-ai/redink/internal/infra/persistence/database/dbtest"
	"github.com/redink-ai/redink/internal/infra/persistence/ent"
	"github.com/redink-ai/redink/internal/infra/storage"
	"github.com/redink-ai/redink/pkg/constant"
	"github.com/redink-ai/redink/pkg/domain/model"
	"github.com/redink-ai/redink/pkg/service/history"
	"github.com/redink-ai/redink/pkg/service/provider"
)

type fakeImages struct {
	mu       sync.Mutex
	prompts  []string
	failOn   string
	inFlight atomic.Int32
	peak     atomic.Int32
	opts     provider.ImageOptions
	err      error
}

func (f *fakeImages) ImageClient(ctx context.Context) (provider.ImageGenerator, provider.Settings, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f, provider.ImageAPI{
		Connection:   provider.Connection{Name: "fake", APIKey: "k", BaseURL: "http://fake"},
		ImageOptions: f.opts,
	}, nil
}

func (f *fakeImages) GenerateImage(ctx context.Context, prompt string, refs [][]byte) ([]byte, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.failOn != "" && strings.Contains(prompt, f.failOn) {
		return nil, errors.New("429 rate limit exceeded")
	}
	return []byte("png-bytes"), nil
}

func (f *fakeImages) Ping(ctx context.Context) error { return nil }

type fixture struct {
	svc     Service
	history history.Service
	images  *fakeImages
}

func newFixture(t *testing.T, images *fakeImages) *fixture {
	t.Helper()
	db, dialectName := dbtest.Open(t)
	root := t.TempDir()
	store, err := storage.NewLocalStorage(root)
	if err != nil {
		t.Fatal(err)
	}
	hist := history.NewService(ent.NewHistoryRepo(db, dialectName), ent.NewTransactionManager(db, dialectName), root)
	return &fixture{svc: NewService(images, hist, store), history: hist, images: images}
}

func (f *fixture) createRecord(t *testing.T, pages int) string {
	t.Helper()
	outline := model.Outline{Raw: "raw"}
	for i := 0; i < pages; i++ {
		outline.Pages = append(outline.Pages, model.OutlinePage{Index: i, Type: model.PageTypeContent, Content: "第" + string(rune('A'+i)) + "页"})
	}
	id, err := f.history.Create(context.Background(), &history.CreateRequest{Title: "主题", Outline: outline})
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestGenerateForRecordSequential(t *testing.T) {
	f := newFixture(t, &fakeImages{failOn: "第B页"})
	id := f.createRecord(t, 3)

	res, err := f.svc.GenerateForRecord(context.Background(), &GenerateRequest{RecordID: id})
	if err != nil {
		t.Fatalf("GenerateForRecord() error = %v", err)
	}
	if res.Failed != 1 || len(res.Pages) != 3 {
		t.Fatalf("结果 = %+v", res)
	}
	if !res.Pages[0].Success || res.Pages[0].Filename != "0.png" {
		t.Errorf("第 0 页 = %+v", res.Pages[0])
	}
	if res.Pages[1].Success || !strings.Contains(res.Pages[1].Error, "429") {
		t.Errorf("失败页应保留原始错误: %+v", res.Pages[1])
	}
	if !strings.HasPrefix(res.TaskID, "task_") {
		t.Errorf("TaskID = %q", res.TaskID)
	}
	if got := res.Sync.Images; len(got) != 2 || got[0] != "0.png" || got[1] != "2.png" {
		t.Errorf("对账图片 = %v", got)
	}

	rec, err := f.history.Get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != model.RecordStatusPartial {
		t.Errorf("状态 = %s, want partial", rec.Status)
	}
	if rec.TaskID == nil || *rec.TaskID != res.TaskID {
		t.Errorf("记录的 task_id = %v", rec.TaskID)
	}
	if f.images.peak.Load() != 1 {
		t.Errorf("顺序模式下并发峰值 = %d", f.images.peak.Load())
	}
	for _, p := range f.images.prompts {
		if !strings.HasPrefix(p, stylePrompt) {
			t.Errorf("提示词缺少风格前缀: %q", p)
		}
	}
}

func TestGenerateForRecordConcurrentReusesTask(t *testing.T) {
	f := newFixture(t, &fakeImages{opts: provider.ImageOptions{HighConcurrency: true, ShortPrompt: true}})
	id := f.createRecord(t, 6)

	first, err := f.svc.GenerateForRecord(context.Background(), &GenerateRequest{RecordID: id})
	if err != nil {
		t.Fatal(err)
	}
	if first.Sync.Status != model.RecordStatusCompleted || len(first.Sync.Images) != 6 {
		t.Errorf("对账结果 = %+v", first.Sync)
	}
	if peak := f.images.peak.Load(); peak > HighConcurrencyLimit {
		t.Errorf("并发峰值 = %d, 超过上限 %d", peak, HighConcurrencyLimit)
	}
	for _, p := range f.images.prompts {
		if strings.HasPrefix(p, stylePrompt) {
			t.Errorf("short_prompt 模式不应拼接风格前缀: %q", p)
		}
	}

	again, err := f.svc.GenerateForRecord(context.Background(), &GenerateRequest{RecordID: id, Pages: []int{2, 2}})
	if err != nil {
		t.Fatal(err)
	}
	if again.TaskID != first.TaskID || len(again.Pages) != 1 || again.Pages[0].Filename != "2.png" {
		t.Errorf("重新生成单页 = %+v", again)
	}
}

func TestGenerateForRecordErrors(t *testing.T) {
	owner := uint(1)
	other := uint(2)
	cfgErr := &constant.ConfigurationError{Reason: "未找到激活的图片生成服务商"}

	tests := []struct {
		name   string
		images *fakeImages
		pages  int
		req    func(id string) *GenerateRequest
		want   error
	}{
		{"缺少记录ID", &fakeImages{}, 1, func(string) *GenerateRequest { return &GenerateRequest{} }, constant.ErrValidation},
		{"记录不存在", &fakeImages{}, 1, func(string) *GenerateRequest { return &GenerateRequest{RecordID: "nope"} }, constant.ErrNotFound},
		{"没有页面", &fakeImages{}, 0, func(id string) *GenerateRequest { return &GenerateRequest{RecordID: id} }, constant.ErrValidation},
		{"页码不存在", &fakeImages{}, 2, func(id string) *GenerateRequest { return &GenerateRequest{RecordID: id, Pages: []int{5}} }, constant.ErrValidation},
		{"未配置服务商", &fakeImages{err: cfgErr}, 1, func(id string) *GenerateRequest { return &GenerateRequest{RecordID: id} }, constant.ErrConfiguration},
		{"他人的记录", &fakeImages{}, 1, func(id string) *GenerateRequest { return &GenerateRequest{RecordID: id, UserID: &other} }, constant.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.images)
			outline := model.Outline{Raw: "raw"}
			for i := 0; i < tt.pages; i++ {
				outline.Pages = append(outline.Pages, model.OutlinePage{Index: i, Type: model.PageTypeContent, Content: "x"})
			}
			id, err := f.history.Create(context.Background(), &history.CreateRequest{Title: "t", Outline: outline, UserID: &owner})
			if err != nil {
				t.Fatal(err)
			}
			_, err = f.svc.GenerateForRecord(context.Background(), tt.req(id))
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

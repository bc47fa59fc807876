package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"github.com/redink-ai/redink/internal/infra/persistence/database/dbtest"
	"github.com/redink-ai/redink/internal/infra/persistence/ent"
	"github.com/redink-ai/redink/pkg/constant"
	"github.com/redink-ai/redink/pkg/domain/model"
	"github.com/redink-ai/redink/pkg/domain/repository"
)

type fixture struct {
	svc  Service
	repo repository.HistoryRepository
	root string
	now  time.Time
}

func newFixture(t *testing.T, wrap func(repository.HistoryRepository) repository.HistoryRepository) *fixture {
	t.Helper()
	db, dialectName := dbtest.Open(t)
	f := &fixture{
		repo: ent.NewHistoryRepo(db, dialectName),
		root: t.TempDir(),
		now:  time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC),
	}
	repo := f.repo
	if wrap != nil {
		repo = wrap(repo)
	}
	clock := func() time.Time {
		f.now = f.now.Add(time.Second)
		return f.now
	}
	f.svc = NewService(repo, ent.NewTransactionManager(db, dialectName), f.root, WithClock(clock))
	return f
}

func (f *fixture) create(t *testing.T, title, raw string, taskID string) string {
	t.Helper()
	req := &CreateRequest{Title: title, Outline: model.Outline{Raw: raw, Pages: threePageOutline}}
	if taskID != "" {
		req.TaskID = &taskID
	}
	id, err := f.svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return id
}

func (f *fixture) writeFiles(t *testing.T, taskID string, names ...string) {
	t.Helper()
	dir := filepath.Join(f.root, taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

const threePages = "[封面]\n标题<page>[内容]\n正文<page>[总结]\n结尾"

var threePageOutline = []model.OutlinePage{
	{Index: 0, Type: model.PageTypeCover, Content: "[封面]\n标题"},
	{Index: 1, Type: model.PageTypeContent, Content: "[内容]\n正文"},
	{Index: 2, Type: model.PageTypeSummary, Content: "[总结]\n结尾"},
}

func strPtr(s string) *string { return &s }

func TestCreateAndGet(t *testing.T) {
	f := newFixture(t, nil)
	id := f.create(t, "  秋日穿搭  ", threePages, "task_abc")

	rec, err := f.svc.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Title != "秋日穿搭" || rec.Status != model.RecordStatusDraft {
		t.Errorf("Get() = %+v", rec)
	}
	if len(rec.Pages) != 3 || rec.Pages[0].Type != model.PageTypeCover || rec.Pages[2].Type != model.PageTypeSummary {
		t.Errorf("pages = %+v", rec.Pages)
	}
	if rec.TaskID == nil || *rec.TaskID != "task_abc" {
		t.Errorf("task_id = %v", rec.TaskID)
	}

	if _, err := f.svc.Get(context.Background(), "missing"); !errors.Is(err, constant.ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := f.svc.Create(context.Background(), &CreateRequest{Title: "x", TaskID: strPtr("../etc")}); !errors.Is(err, constant.ErrValidation) {
		t.Errorf("非法 task_id 应当被拒绝: %v", err)
	}
}

func TestSyncTaskStatusThresholds(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		want  model.RecordStatus
	}{
		{"没有图片", nil, model.RecordStatusDraft},
		{"部分完成", []string{"0.png", "1.png"}, model.RecordStatusPartial},
		{"全部完成", []string{"0.png", "1.jpg", "2.jpeg"}, model.RecordStatusCompleted},
		{"多于页面数", []string{"0.png", "1.png", "2.png", "3.png"}, model.RecordStatusCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			id := f.create(t, "记录", threePages, "task_1")
			f.writeFiles(t, "task_1", tt.files...)

			res, err := f.svc.SyncTask(context.Background(), "task_1")
			if err != nil {
				t.Fatalf("SyncTask() error = %v", err)
			}
			if res.Status != tt.want || res.RecordID != id || res.NoRecord {
				t.Errorf("SyncTask() = %+v, want status %s", res, tt.want)
			}

			rec, _ := f.svc.Get(context.Background(), id)
			if rec.Status != tt.want || len(rec.Images) != len(tt.files) {
				t.Errorf("record = %+v", rec)
			}
			if len(tt.files) == 0 && rec.Thumbnail != nil {
				t.Errorf("没有图片时缩略图应为空, got %q", *rec.Thumbnail)
			}
		})
	}
}

func TestSyncTaskScanRulesAndIdempotence(t *testing.T) {
	f := newFixture(t, nil)
	id := f.create(t, "记录", threePages, "task_2")
	f.writeFiles(t, "task_2", "10.png", "2.png", "0.jpg", "thumb_0.jpg", "notes.txt", "1.PNG", "cover.png")
	if err := os.Mkdir(filepath.Join(f.root, "task_2", "3.png"), 0o755); err != nil {
		t.Fatal(err)
	}

	first, err := f.svc.SyncTask(context.Background(), "task_2")
	if err != nil {
		t.Fatalf("SyncTask() error = %v", err)
	}
	want := []string{"0.jpg", "2.png", "10.png", "cover.png"}
	if !reflect.DeepEqual(first.Images, want) {
		t.Fatalf("images = %v, want %v", first.Images, want)
	}

	second, err := f.svc.SyncTask(context.Background(), "task_2")
	if err != nil {
		t.Fatalf("SyncTask() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("两次对账结果不同:\n%+v\n%+v", first, second)
	}

	rec, _ := f.svc.Get(context.Background(), id)
	if rec.Thumbnail == nil || *rec.Thumbnail != "0.jpg" {
		t.Errorf("thumbnail = %v, want 0.jpg", rec.Thumbnail)
	}
	if !reflect.DeepEqual(rec.Images, want) {
		t.Errorf("record images = %v, want %v", rec.Images, want)
	}
}

func TestSyncTaskReplacesInsteadOfMerging(t *testing.T) {
	f := newFixture(t, nil)
	id := f.create(t, "记录", threePages, "task_3")
	f.writeFiles(t, "task_3", "0.png", "1.png")
	if _, err := f.svc.SyncTask(context.Background(), "task_3"); err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(filepath.Join(f.root, "task_3", "0.png")); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(f.root, "task_3", "1.png")); err != nil {
		t.Fatal(err)
	}
	res, err := f.svc.SyncTask(context.Background(), "task_3")
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != model.RecordStatusDraft || len(res.Images) != 0 {
		t.Errorf("SyncTask() = %+v", res)
	}

	rec, _ := f.svc.Get(context.Background(), id)
	if len(rec.Images) != 0 || rec.Thumbnail != nil || rec.Status != model.RecordStatusDraft {
		t.Errorf("目录清空后记录应当同步清空: %+v", rec)
	}
}

func TestSyncTaskOrphanDoesNotMutate(t *testing.T) {
	f := newFixture(t, nil)
	id := f.create(t, "记录", threePages, "task_known")
	before, _ := f.svc.Get(context.Background(), id)
	f.writeFiles(t, "task_orphan", "0.png")

	res, err := f.svc.SyncTask(context.Background(), "task_orphan")
	if err != nil {
		t.Fatalf("SyncTask() error = %v", err)
	}
	if !res.NoRecord || res.RecordID != "" || res.ImagesCount != 1 {
		t.Errorf("SyncTask() = %+v", res)
	}

	after, _ := f.svc.Get(context.Background(), id)
	if !reflect.DeepEqual(before, after) {
		t.Errorf("孤立任务不应修改数据库:\n%+v\n%+v", before, after)
	}
	stats, _ := f.svc.Statistics(context.Background(), nil)
	if stats.Total != 1 {
		t.Errorf("Total = %d, want 1", stats.Total)
	}
}

func TestSyncTaskRejectsBadInput(t *testing.T) {
	f := newFixture(t, nil)
	for _, taskID := range []string{"..", ".", "a/b", `a\b`, ""} {
		if _, err := f.svc.SyncTask(context.Background(), taskID); !errors.Is(err, constant.ErrValidation) {
			t.Errorf("SyncTask(%q) error = %v, want ErrValidation", taskID, err)
		}
	}
	if _, err := f.svc.SyncTask(context.Background(), "task_none"); !errors.Is(err, constant.ErrNotFound) {
		t.Errorf("目录不存在时应返回 ErrNotFound: %v", err)
	}
}

type failingRepo struct {
	repository.HistoryRepository
	failTask string
}

func (r failingRepo) FindByTaskID(ctx context.Context, taskID string) (*model.HistoryRecord, error) {
	if taskID == r.failTask {
		return nil, errors.New("disk I/O error")
	}
	return r.HistoryRepository.FindByTaskID(ctx, taskID)
}

func TestSyncAll(t *testing.T) {
	f := newFixture(t, func(r repository.HistoryRepository) repository.HistoryRepository {
		return failingRepo{HistoryRepository: r, failTask: "task_c"}
	})
	f.create(t, "A", threePages, "task_a")
	f.writeFiles(t, "task_a", "0.png", "1.png", "2.png")
	f.writeFiles(t, "task_b", "0.png")
	f.writeFiles(t, "task_c", "0.png")
	if err := os.WriteFile(filepath.Join(f.root, "index.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	batch, err := f.svc.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("SyncAll() error = %v", err)
	}
	if batch.TotalTasks != 3 || batch.Synced != 1 || batch.Failed != 1 {
		t.Errorf("batch = %+v", batch)
	}
	if !reflect.DeepEqual(batch.OrphanTasks, []string{"task_b"}) {
		t.Errorf("orphans = %v", batch.OrphanTasks)
	}
	if batch.Results[0].TaskID != "task_a" || batch.Results[0].Result.Status != model.RecordStatusCompleted {
		t.Errorf("results[0] = %+v", batch.Results[0])
	}
	if batch.Results[2].Error == "" {
		t.Errorf("失败的任务应当带有错误信息: %+v", batch.Results[2])
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	batch, err = f.svc.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll() error = %v", err)
	}
	if !batch.Interrupted || batch.TotalTasks != 0 {
		t.Errorf("取消后应当在任务之间停止: %+v", batch)
	}
}

func TestSyncAllRejectsConcurrentRun(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.create(t, "A", threePages, "task_a")
	f.writeFiles(t, "task_a", "0.png", "1.png", "2.png")
	before, err := f.svc.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}

	held := flock.New(filepath.Join(f.root, syncLockFile))
	locked, err := held.TryLock()
	if err != nil || !locked {
		t.Fatalf("TryLock() = %v, %v", locked, err)
	}

	if _, err := f.svc.SyncAll(ctx); !errors.Is(err, constant.ErrConflict) {
		t.Fatalf("持有同步锁时 SyncAll() error = %v, want ErrConflict", err)
	}
	after, _ := f.svc.Get(ctx, id)
	if after.Status != model.RecordStatusDraft || len(after.Images) != 0 || !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Errorf("锁冲突时不应修改记录: %+v", after)
	}

	if err := held.Unlock(); err != nil {
		t.Fatal(err)
	}
	batch, err := f.svc.SyncAll(ctx)
	if err != nil || batch.Synced != 1 {
		t.Fatalf("释放锁后 SyncAll() = %+v, %v", batch, err)
	}
}

func TestBlankIDIsValidationError(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.create(t, "保留", threePages, "")

	for _, blank := range []string{"", "   "} {
		if _, err := f.svc.Get(ctx, blank); !errors.Is(err, constant.ErrValidation) {
			t.Errorf("Get(%q) error = %v", blank, err)
		}
		ok, err := f.svc.Update(ctx, blank, &UpdateRequest{Status: strPtr("completed")})
		if ok || !errors.Is(err, constant.ErrValidation) {
			t.Errorf("Update(%q) = %v, %v", blank, ok, err)
		}
		ok, err = f.svc.Delete(ctx, blank)
		if ok || !errors.Is(err, constant.ErrValidation) {
			t.Errorf("Delete(%q) = %v, %v", blank, ok, err)
		}
	}
	if rec, err := f.svc.Get(ctx, id); err != nil || rec.Status != model.RecordStatusDraft {
		t.Errorf("其它记录不应受影响: %+v, %v", rec, err)
	}
}

func TestUpdateImages(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.create(t, "记录", threePages, "")

	ok, err := f.svc.Update(ctx, id, &UpdateRequest{Images: &ImagesUpdate{
		TaskID:    strPtr("task_test"),
		Generated: []*string{strPtr("0.png"), nil, strPtr("2.png")},
	}})
	if err != nil || !ok {
		t.Fatalf("Update() = %v, %v", ok, err)
	}
	rec, _ := f.svc.Get(ctx, id)
	if !reflect.DeepEqual(rec.Images, []string{"0.png", "", "2.png"}) {
		t.Errorf("images = %q", rec.Images)
	}
	if rec.TaskID == nil || *rec.TaskID != "task_test" {
		t.Errorf("task_id = %v", rec.TaskID)
	}

	// 空列表不修改已有图片
	ok, err = f.svc.Update(ctx, id, &UpdateRequest{Images: &ImagesUpdate{Generated: []*string{}}, Status: strPtr("partial")})
	if err != nil || !ok {
		t.Fatalf("Update() = %v, %v", ok, err)
	}
	rec, _ = f.svc.Get(ctx, id)
	if len(rec.Images) != 3 || rec.Status != model.RecordStatusPartial {
		t.Errorf("空列表更新后 = %+v", rec)
	}

	ok, err = f.svc.Update(ctx, "missing", &UpdateRequest{Status: strPtr("completed")})
	if err != nil || ok {
		t.Errorf("Update(missing) = %v, %v, want false, nil", ok, err)
	}
	if _, err := f.svc.Update(ctx, id, &UpdateRequest{Status: strPtr("done")}); !errors.Is(err, constant.ErrValidation) {
		t.Errorf("未知状态应当被拒绝: %v", err)
	}
}

func TestUpdateOutlineAndMonotonicTime(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.create(t, "记录", threePages, "")
	before, _ := f.svc.Get(ctx, id)

	// 时钟回拨
	f.now = f.now.Add(-time.Hour)
	raw := "第一页---第二页"
	pages := []model.OutlinePage{{Index: 5, Content: "第一页"}, {Index: 5, Type: "bogus", Content: "第二页"}}
	ok, err := f.svc.Update(ctx, id, &UpdateRequest{Outline: &model.Outline{Raw: raw, Pages: pages}})
	if err != nil || !ok {
		t.Fatalf("Update() = %v, %v", ok, err)
	}

	after, _ := f.svc.Get(ctx, id)
	if after.UpdatedAt.Before(before.UpdatedAt) {
		t.Errorf("updated_at 倒退: %v -> %v", before.UpdatedAt, after.UpdatedAt)
	}
	if len(after.Pages) != 2 || after.OutlineText != raw || after.Pages[1].Index != 1 || after.Pages[1].Type != model.PageTypeContent {
		t.Errorf("pages = %+v", after.Pages)
	}
}

func TestDeleteRemovesTaskDir(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.create(t, "记录", threePages, "task_del")
	f.writeFiles(t, "task_del", "0.png")
	if _, err := f.svc.SyncTask(ctx, "task_del"); err != nil {
		t.Fatal(err)
	}

	ok, err := f.svc.Delete(ctx, id)
	if err != nil || !ok {
		t.Fatalf("Delete() = %v, %v", ok, err)
	}
	if _, err := os.Stat(filepath.Join(f.root, "task_del")); !os.IsNotExist(err) {
		t.Errorf("任务目录应当被删除: %v", err)
	}
	if _, err := f.svc.Get(ctx, id); !errors.Is(err, constant.ErrNotFound) {
		t.Errorf("记录应当被删除: %v", err)
	}

	ok, err = f.svc.Delete(ctx, id)
	if err != nil || ok {
		t.Errorf("重复删除 = %v, %v, want false, nil", ok, err)
	}
}

func TestListSearchStatistics(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	for _, title := range []string{"Spring 旅行", "夏日 穿搭", "spring 美食"} {
		f.create(t, title, threePages, "")
	}

	res, err := f.svc.List(ctx, model.HistoryListOptions{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 3 || res.TotalPages != 2 || len(res.Records) != 2 {
		t.Errorf("List() = %+v", res)
	}
	if res.Records[0].Title != "spring 美食" || res.Records[0].PageCount != 3 {
		t.Errorf("应当按创建时间倒序: %+v", res.Records[0])
	}

	completed := model.RecordStatusCompleted
	res, _ = f.svc.List(ctx, model.HistoryListOptions{Status: &completed})
	if res.Total != 0 || res.PageSize != DefaultPageSize {
		t.Errorf("状态过滤 = %+v", res)
	}

	found, err := f.svc.Search(ctx, "SPRING", nil)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(found) != 2 {
		t.Errorf("Search() = %d 条, want 2", len(found))
	}

	stats, _ := f.svc.Statistics(ctx, nil)
	if stats.Total != 3 || stats.ByStatus[model.RecordStatusDraft] != 3 || stats.ByStatus[model.RecordStatusPartial] != 0 {
		t.Errorf("Statistics() = %+v", stats)
	}
}

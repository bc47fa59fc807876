package utility

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryCacheService(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := &memoryCacheService{data: make(map[string]cacheItem), now: func() time.Time { return now }}

	_ = svc.Set(ctx, "provider:text", `{"a":1}`, time.Minute)
	_ = svc.Set(ctx, "provider:image", 42, 0)
	_ = svc.Set(ctx, "other", "x", 0)

	if got, _ := svc.Get(ctx, "provider:text"); got != `{"a":1}` {
		t.Errorf("Get = %q", got)
	}
	if got, _ := svc.Get(ctx, "provider:image"); got != "42" {
		t.Errorf("非字符串值应格式化保存，得到 %q", got)
	}

	now = now.Add(2 * time.Minute)
	if got, _ := svc.Get(ctx, "provider:text"); got != "" {
		t.Errorf("过期键应返回空字符串，得到 %q", got)
	}

	_ = svc.DeletePrefix(ctx, "provider:")
	if got, _ := svc.Get(ctx, "provider:image"); got != "" {
		t.Errorf("前缀删除后仍然存在: %q", got)
	}
	if got, _ := svc.Get(ctx, "other"); got != "x" {
		t.Errorf("前缀删除误删了其它键")
	}
}

func TestKeyedLockerSerializesSameKey(t *testing.T) {
	l := NewKeyedLocker()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("task_1")
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("同一键的临界区出现并发: %d", maxSeen)
	}
	if len(l.locks) != 0 {
		t.Errorf("释放后锁应被回收，剩余 %d", len(l.locks))
	}
}
